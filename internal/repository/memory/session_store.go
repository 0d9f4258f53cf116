package memory

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/yourusername/idlink-api/internal/domain/entity"
	apperrors "github.com/yourusername/idlink-api/internal/pkg/errors"
)

// SessionStore implements repository.SessionStore on a bounded in-process
// LRU with TTL-based eviction. Suitable for single-instance deployments
// only: sessions are not visible across processes.
type SessionStore struct {
	cache *lru.LRU[string, *entity.LinkSession]
}

// NewSessionStore builds the store. maxEntries bounds memory regardless of
// TTL; the backend evicts expired entries on its own, so callers never see
// a stale session.
func NewSessionStore(maxEntries int, ttl time.Duration) *SessionStore {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &SessionStore{
		cache: lru.NewLRU[string, *entity.LinkSession](maxEntries, nil, ttl),
	}
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (*entity.LinkSession, error) {
	session, ok := s.cache.Get(sessionID)
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (s *SessionStore) Set(_ context.Context, sessionID string, session *entity.LinkSession) error {
	copied := *session
	s.cache.Add(sessionID, &copied)
	return nil
}

func (s *SessionStore) Delete(_ context.Context, sessionID string) error {
	s.cache.Remove(sessionID)
	return nil
}
