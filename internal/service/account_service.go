package service

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/yourusername/idlink-api/internal/domain/entity"
	"github.com/yourusername/idlink-api/internal/domain/repository"
	apperrors "github.com/yourusername/idlink-api/internal/pkg/errors"
	"github.com/yourusername/idlink-api/pkg/auth"
)

const (
	minHandleLen = 3
	maxHandleLen = 253
	maxLabelLen  = 63
)

var handleLabelRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// reservedHandlePrefixes are never allocated to user accounts.
var reservedHandlePrefixes = []string{"admin", "root", "support", "www"}

// AccountService is the local account registry: registration, handle
// validation, status, and session minting.
type AccountService struct {
	accounts repository.AccountRepository
	mappings repository.IdentityMappingRepository
	jwt      *auth.JWTService
}

func NewAccountService(accounts repository.AccountRepository, mappings repository.IdentityMappingRepository, jwtService *auth.JWTService) (*AccountService, error) {
	if accounts == nil {
		return nil, fmt.Errorf("account repository is required")
	}
	if mappings == nil {
		return nil, fmt.Errorf("identity mapping repository is required")
	}
	if jwtService == nil {
		return nil, fmt.Errorf("jwt service is required")
	}
	return &AccountService{accounts: accounts, mappings: mappings, jwt: jwtService}, nil
}

// CreateAccountAndSession registers the account and mints its first
// credentials. A duplicate handle (the accepted allocation race) surfaces
// as apperrors.ErrConflict from the repository.
func (s *AccountService) CreateAccountAndSession(ctx context.Context, did, handle, repoRoot, repoRev string) (*Credentials, error) {
	if did == "" || handle == "" {
		return nil, fmt.Errorf("%w: did and handle are required", apperrors.ErrValidation)
	}
	now := time.Now()
	account := &entity.Account{
		DID:       did,
		Handle:    handle,
		RepoRoot:  repoRoot,
		RepoRev:   repoRev,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}
	return s.CreateSession(ctx, did)
}

// CreateSession mints fresh credentials for an existing account.
func (s *AccountService) CreateSession(ctx context.Context, did string) (*Credentials, error) {
	if _, err := s.accounts.GetByDID(ctx, did); err != nil {
		return nil, err
	}
	pair, err := s.jwt.GenerateTokenPair(did)
	if err != nil {
		return nil, err
	}
	return &Credentials{AccessJwt: pair.AccessJwt, RefreshJwt: pair.RefreshJwt}, nil
}

// RefreshSession обменивает действующий refresh token на новую пару
// токенов. Ротации нет: прежний refresh token остается валиден до
// собственного истечения.
func (s *AccountService) RefreshSession(ctx context.Context, refreshToken string) (*Credentials, error) {
	did, err := s.jwt.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid refresh token", apperrors.ErrUnauthorized)
	}
	account, err := s.accounts.GetByDID(ctx, did)
	if err != nil {
		return nil, err
	}
	if account.DeactivatedAt != nil {
		return nil, fmt.Errorf("%w: account is deactivated", apperrors.ErrUnauthorized)
	}
	pair, err := s.jwt.GenerateTokenPair(did)
	if err != nil {
		return nil, err
	}
	return &Credentials{AccessJwt: pair.AccessJwt, RefreshJwt: pair.RefreshJwt}, nil
}

func (s *AccountService) GetAccountByDID(ctx context.Context, did string) (*entity.Account, error) {
	return s.accounts.GetByDID(ctx, did)
}

func (s *AccountService) GetAccountByHandle(ctx context.Context, handle string) (*entity.Account, error) {
	return s.accounts.GetByHandle(ctx, handle)
}

func (s *AccountService) GetAccountStatus(ctx context.Context, did string) (string, error) {
	account, err := s.accounts.GetByDID(ctx, did)
	if err != nil {
		return "", err
	}
	return account.Status(), nil
}

// NormalizeAndValidateHandle lowercases the handle and enforces the
// service's handle-format rules: dot-separated labels of lowercase
// alphanumerics and inner hyphens, bounded lengths, nothing reserved.
func (s *AccountService) NormalizeAndValidateHandle(handle string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(handle))
	if len(normalized) < minHandleLen || len(normalized) > maxHandleLen {
		return "", fmt.Errorf("%w: handle length out of bounds", apperrors.ErrValidation)
	}
	labels := strings.Split(normalized, ".")
	if len(labels) < 2 {
		return "", fmt.Errorf("%w: handle must include a domain suffix", apperrors.ErrValidation)
	}
	for _, label := range labels {
		if len(label) == 0 || len(label) > maxLabelLen {
			return "", fmt.Errorf("%w: handle label length out of bounds", apperrors.ErrValidation)
		}
		if !handleLabelRe.MatchString(label) {
			return "", fmt.Errorf("%w: handle contains invalid characters", apperrors.ErrValidation)
		}
	}
	for _, reserved := range reservedHandlePrefixes {
		if labels[0] == reserved {
			return "", fmt.Errorf("%w: handle is reserved", apperrors.ErrValidation)
		}
	}
	return normalized, nil
}

func (s *AccountService) UpdateRepoRoot(ctx context.Context, did, root, rev string) error {
	return s.accounts.UpdateRepoRoot(ctx, did, root, rev)
}

// DeleteAccount removes the account row and, best-effort, every identity
// mapping it owned. Mapping cleanup is not atomic with the delete: a
// dangling mapping only blocks a future re-link from that provider, so a
// failure here is logged, not fatal.
func (s *AccountService) DeleteAccount(ctx context.Context, did string) error {
	if err := s.accounts.Delete(ctx, did); err != nil {
		return err
	}
	if err := s.mappings.DeleteAllForDid(ctx, did); err != nil {
		log.Printf("[Account] failed to clean up identity mappings for %s: %v", did, err)
	}
	return nil
}
