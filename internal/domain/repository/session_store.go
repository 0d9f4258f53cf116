package repository

import (
	"context"

	"github.com/yourusername/idlink-api/internal/domain/entity"
)

// SessionStore holds ephemeral linking-handshake state with a fixed TTL
// enforced by the backend. Backends must be behaviorally indistinguishable
// to callers apart from cross-instance visibility: a bounded in-process
// cache for single-instance deployments, or a shared redis cache for
// multi-instance ones.
type SessionStore interface {
	// Get returns the session, or apperrors.ErrNotFound when unknown or
	// already expired.
	Get(ctx context.Context, sessionID string) (*entity.LinkSession, error)

	// Set stores the session, overwriting any previous value and
	// refreshing the TTL.
	Set(ctx context.Context, sessionID string, session *entity.LinkSession) error

	Delete(ctx context.Context, sessionID string) error
}
