package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yourusername/idlink-api/internal/domain/entity"
	apperrors "github.com/yourusername/idlink-api/internal/pkg/errors"
	"gorm.io/gorm"
)

type IdentityMappingRepo struct {
	db *gorm.DB
}

func NewIdentityMappingRepo(db *gorm.DB) *IdentityMappingRepo {
	return &IdentityMappingRepo{db: db}
}

func (r *IdentityMappingRepo) GetByProviderExternalID(ctx context.Context, provider, externalID string) (*entity.IdentityMapping, error) {
	var mapping entity.IdentityMapping
	err := r.db.WithContext(ctx).
		Where("provider = ? AND external_id = ?", provider, externalID).
		First(&mapping).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get mapping by external id: %w", err)
	}
	return &mapping, nil
}

func (r *IdentityMappingRepo) GetByProviderDid(ctx context.Context, provider, did string) (*entity.IdentityMapping, error) {
	var mapping entity.IdentityMapping
	err := r.db.WithContext(ctx).
		Where("provider = ? AND did = ?", provider, did).
		First(&mapping).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get mapping by did: %w", err)
	}
	return &mapping, nil
}

// CreateOrConfirm is a compare-and-set keyed on (provider, external_id),
// emulated over the table's composite primary key: insert, and on a
// uniqueness violation treat it as "someone else just created it" and fall
// back to the confirm/conflict check instead of surfacing the raw error.
func (r *IdentityMappingRepo) CreateOrConfirm(ctx context.Context, provider, externalID, did, meta string) error {
	existing, err := r.GetByProviderExternalID(ctx, provider, externalID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return err
	}
	if existing != nil {
		return r.confirm(ctx, existing, did, meta)
	}

	now := time.Now()
	mapping := entity.IdentityMapping{
		Provider:   provider,
		ExternalID: externalID,
		DID:        did,
		CreatedAt:  now,
		UpdatedAt:  now,
		Meta:       meta,
	}
	err = r.db.WithContext(ctx).Create(&mapping).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("failed to create identity mapping: %w", err)
	}

	// Lost the insert race; the winner's row decides.
	current, lookupErr := r.GetByProviderExternalID(ctx, provider, externalID)
	if lookupErr != nil {
		return fmt.Errorf("failed to re-check mapping after duplicate insert: %w", lookupErr)
	}
	return r.confirm(ctx, current, did, meta)
}

func (r *IdentityMappingRepo) confirm(ctx context.Context, existing *entity.IdentityMapping, did, meta string) error {
	if err := reconcileMapping(existing, did); err != nil {
		return err
	}
	err := r.db.WithContext(ctx).
		Model(&entity.IdentityMapping{}).
		Where("provider = ? AND external_id = ?", existing.Provider, existing.ExternalID).
		Updates(map[string]interface{}{"updated_at": time.Now(), "meta": meta}).Error
	if err != nil {
		return fmt.Errorf("failed to refresh identity mapping: %w", err)
	}
	return nil
}

// reconcileMapping decides what an existing row means for a link attempt:
// same DID is an idempotent re-link, a different DID is a conflict. The
// mapping is never transferred.
func reconcileMapping(existing *entity.IdentityMapping, did string) error {
	if existing == nil {
		return apperrors.ErrNotFound
	}
	if existing.DID != did {
		return fmt.Errorf("%w: external identity already linked to a different account", apperrors.ErrConflict)
	}
	return nil
}

func (r *IdentityMappingRepo) DeleteByProviderDid(ctx context.Context, provider, did string) error {
	res := r.db.WithContext(ctx).
		Where("provider = ? AND did = ?", provider, did).
		Delete(&entity.IdentityMapping{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete identity mapping: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *IdentityMappingRepo) DeleteAllForDid(ctx context.Context, did string) error {
	return r.db.WithContext(ctx).
		Where("did = ?", did).
		Delete(&entity.IdentityMapping{}).Error
}
