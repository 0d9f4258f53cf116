package repository

import (
	"context"

	"github.com/yourusername/idlink-api/internal/domain/entity"
)

// IdentityMappingRepository is the durable store binding external identities
// to local DIDs.
type IdentityMappingRepository interface {
	// GetByProviderExternalID returns the mapping for (provider, externalID),
	// or apperrors.ErrNotFound.
	GetByProviderExternalID(ctx context.Context, provider, externalID string) (*entity.IdentityMapping, error)

	// GetByProviderDid returns the mapping a DID holds for the given
	// provider, or apperrors.ErrNotFound.
	GetByProviderDid(ctx context.Context, provider, did string) (*entity.IdentityMapping, error)

	// CreateOrConfirm inserts the mapping if absent. If a mapping already
	// exists for the same DID it refreshes updated_at/meta (idempotent
	// re-link); if it exists for a different DID it fails with
	// apperrors.ErrConflict. An insert racing another insert for the same
	// key must fall back to the confirm/conflict check instead of
	// propagating the raw storage error.
	CreateOrConfirm(ctx context.Context, provider, externalID, did, meta string) error

	// DeleteByProviderDid removes the DID's mapping for one provider.
	// Missing mapping → apperrors.ErrNotFound.
	DeleteByProviderDid(ctx context.Context, provider, did string) error

	// DeleteAllForDid removes every mapping owned by the DID. Best-effort
	// cleanup used when the account is deleted.
	DeleteAllForDid(ctx context.Context, did string) error
}
