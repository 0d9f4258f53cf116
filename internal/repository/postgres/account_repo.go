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

type AccountRepo struct {
	db *gorm.DB
}

func NewAccountRepo(db *gorm.DB) *AccountRepo {
	return &AccountRepo{db: db}
}

func (r *AccountRepo) Create(ctx context.Context, account *entity.Account) error {
	err := r.db.WithContext(ctx).Create(account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: account did or handle already registered", apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *AccountRepo) GetByDID(ctx context.Context, did string) (*entity.Account, error) {
	var account entity.Account
	err := r.db.WithContext(ctx).Where("did = ?", did).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account by did: %w", err)
	}
	return &account, nil
}

func (r *AccountRepo) GetByHandle(ctx context.Context, handle string) (*entity.Account, error) {
	var account entity.Account
	err := r.db.WithContext(ctx).Where("handle = ?", handle).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account by handle: %w", err)
	}
	return &account, nil
}

func (r *AccountRepo) UpdateRepoRoot(ctx context.Context, did, root, rev string) error {
	res := r.db.WithContext(ctx).
		Model(&entity.Account{}).
		Where("did = ?", did).
		Updates(map[string]interface{}{"repo_root": root, "repo_rev": rev, "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("failed to update repo root: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *AccountRepo) Delete(ctx context.Context, did string) error {
	return r.db.WithContext(ctx).Where("did = ?", did).Delete(&entity.Account{}).Error
}
