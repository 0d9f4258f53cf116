package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/yourusername/idlink-api/internal/domain/entity"
	apperrors "github.com/yourusername/idlink-api/internal/pkg/errors"
)

// SessionStore реализует repository.SessionStore поверх общего Redis.
// Используется в multi-instance деплойментах: callback провайдера может
// прийти на другой инстанс, чем Init. TTL применяется самим Redis.
type SessionStore struct {
	client    redis.UniversalClient
	ttl       time.Duration
	keyPrefix string
}

func NewSessionStore(client redis.UniversalClient, ttl time.Duration) (*SessionStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil for SessionStore")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	return &SessionStore{
		client:    client,
		ttl:       ttl,
		keyPrefix: "linkauth:session:",
	}, nil
}

func (s *SessionStore) key(sessionID string) string {
	return s.keyPrefix + sessionID
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (*entity.LinkSession, error) {
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get link session: %w", err)
	}
	var session entity.LinkSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode link session: %w", err)
	}
	return &session, nil
}

// Set перезаписывает сессию и обновляет TTL.
func (s *SessionStore) Set(ctx context.Context, sessionID string, session *entity.LinkSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode link session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store link session: %w", err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.key(sessionID)).Err()
}
