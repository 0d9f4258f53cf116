package repository

import (
	"context"

	"github.com/yourusername/idlink-api/internal/domain/entity"
)

// AccountRepository stores local account registrations.
type AccountRepository interface {
	// Create inserts a new account. A duplicate DID or handle surfaces as
	// apperrors.ErrConflict.
	Create(ctx context.Context, account *entity.Account) error
	GetByDID(ctx context.Context, did string) (*entity.Account, error)
	GetByHandle(ctx context.Context, handle string) (*entity.Account, error)
	UpdateRepoRoot(ctx context.Context, did, root, rev string) error
	Delete(ctx context.Context, did string) error
}
