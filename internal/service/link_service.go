package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/idlink-api/internal/config"
	"github.com/yourusername/idlink-api/internal/domain/entity"
	"github.com/yourusername/idlink-api/internal/domain/repository"
	apperrors "github.com/yourusername/idlink-api/internal/pkg/errors"
)

// SessionTTL is the fixed lifetime of a linking session. Enforced by the
// session store backend; the stored expiresAt is advisory.
const SessionTTL = 10 * time.Minute

// InitResult is returned to the caller starting a handshake.
type InitResult struct {
	SessionID       string `json:"sessionId"`
	SessionToken    string `json:"sessionToken"`
	ServiceID       string `json:"serviceId"`
	ExpiresAt       string `json:"expiresAt"`
	ProviderBaseURL string `json:"providerBaseUrl"`
}

// StatusResult is the poll response.
type StatusResult struct {
	Status    entity.LinkSessionStatus `json:"status"`
	Result    *entity.LinkResult       `json:"result,omitempty"`
	Error     string                   `json:"error,omitempty"`
	ExpiresAt string                   `json:"expiresAt"`
}

// LinkService sequences the handshake protocol: Init opens a session with
// the provider, the provider's asynchronous Callback settles it exactly
// once, Status polls it, Login is the synchronous shortcut when the
// assertion is already in hand.
type LinkService struct {
	cfg         config.LinkAuthConfig
	publicURL   string
	store       repository.SessionStore
	provider    ProviderClient
	provisioner Provisioner
	verifier    PayloadVerifier
	mappings    repository.IdentityMappingRepository
}

func NewLinkService(
	cfg config.LinkAuthConfig,
	publicURL string,
	store repository.SessionStore,
	provider ProviderClient,
	provisioner Provisioner,
	verifier PayloadVerifier,
	mappings repository.IdentityMappingRepository,
) (*LinkService, error) {
	if store == nil || provider == nil || provisioner == nil || verifier == nil || mappings == nil {
		return nil, fmt.Errorf("all link service collaborators are required")
	}
	if publicURL == "" {
		return nil, fmt.Errorf("public url is required")
	}
	return &LinkService{
		cfg:         cfg,
		publicURL:   strings.TrimRight(publicURL, "/"),
		store:       store,
		provider:    provider,
		provisioner: provisioner,
		verifier:    verifier,
		mappings:    mappings,
	}, nil
}

// Init starts a handshake. With link=true the external identity will be
// attached to the calling account, which therefore must be authenticated.
// That check happens before any outbound call is made.
func (s *LinkService) Init(ctx context.Context, callerDid string, link, allowCreate bool) (*InitResult, error) {
	if !s.cfg.Enabled {
		return nil, fmt.Errorf("%w: external identity linking is disabled", apperrors.ErrNotEnabled)
	}
	if link && callerDid == "" {
		return nil, fmt.Errorf("%w: authentication required to link", apperrors.ErrUnauthorized)
	}

	sessionID := uuid.NewString()
	sessionToken, err := randomHex(24)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}
	callbackURL := s.publicURL + "/api/linkauth/callback"

	serviceID, err := s.provider.StartHandshake(ctx, callbackURL, sessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	expiresAt := now.Add(SessionTTL).Format(time.RFC3339)
	session := &entity.LinkSession{
		SessionID:    sessionID,
		SessionToken: sessionToken,
		ServiceID:    serviceID,
		Status:       entity.LinkSessionPending,
		CreatedAt:    now.Format(time.RFC3339),
		UpdatedAt:    now.Format(time.RFC3339),
		ExpiresAt:    expiresAt,
		AllowCreate:  allowCreate,
	}
	if link {
		session.LinkDid = callerDid
	}
	if err := s.store.Set(ctx, sessionID, session); err != nil {
		return nil, err
	}

	return &InitResult{
		SessionID:       sessionID,
		SessionToken:    sessionToken,
		ServiceID:       serviceID,
		ExpiresAt:       expiresAt,
		ProviderBaseURL: s.provider.BaseURL(),
	}, nil
}

// Callback settles a pending session with the provider-delivered
// assertion. It is idempotent on a terminal session: re-delivery just
// acknowledges the stored outcome without re-running the saga. The
// returned bool is the acknowledgement value; saga failures are recorded
// in the session for Status to expose, not returned as errors.
func (s *LinkService) Callback(ctx context.Context, sessionID string, payload *LinkPayload, reqIP string) (bool, error) {
	if !s.cfg.Enabled {
		return false, fmt.Errorf("%w: external identity linking is disabled", apperrors.ErrNotEnabled)
	}
	if sessionID == "" {
		return false, fmt.Errorf("%w: missing session id", apperrors.ErrValidation)
	}

	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, fmt.Errorf("%w: unknown or expired session", apperrors.ErrValidation)
		}
		return false, err
	}
	if session.Status != entity.LinkSessionPending {
		// Terminal already; a session leaves pending at most once.
		return session.Status == entity.LinkSessionCompleted, nil
	}

	// The saga's outcome must stay observable via Status even if the
	// delivering connection goes away mid-run.
	runCtx := context.WithoutCancel(ctx)

	runErr := s.verifier.Verify(runCtx, payload)
	var result *entity.LinkResult
	if runErr == nil {
		result, runErr = s.provisioner.Run(runCtx, payload, session.LinkDid, reqIP, session.AllowCreate)
	}

	session.UpdatedAt = time.Now().Format(time.RFC3339)
	if runErr != nil {
		session.Status = entity.LinkSessionFailed
		session.Error = runErr.Error()
	} else {
		session.Status = entity.LinkSessionCompleted
		session.Result = result
	}
	if err := s.store.Set(runCtx, sessionID, session); err != nil {
		log.Printf("[LinkAuth] failed to store session %s outcome: %v", sessionID, err)
		return false, err
	}
	return runErr == nil, nil
}

// Status is a pure read, safe to poll. Both the session id and its secret
// token are required; any mismatch is indistinguishable from an unknown
// session.
func (s *LinkService) Status(ctx context.Context, sessionID, sessionToken string) (*StatusResult, error) {
	if sessionID == "" || sessionToken == "" {
		return nil, fmt.Errorf("%w: missing session id or token", apperrors.ErrValidation)
	}
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown or expired session", apperrors.ErrValidation)
		}
		return nil, err
	}
	if session.SessionToken != sessionToken {
		return nil, fmt.Errorf("%w: unknown or expired session", apperrors.ErrValidation)
	}
	return &StatusResult{
		Status:    session.Status,
		Result:    session.Result,
		Error:     session.Error,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// Login runs the saga synchronously on an assertion the caller already
// holds. Anonymous callers are only admitted behind the operator trust
// switch, since nothing else vouches for the payload.
func (s *LinkService) Login(ctx context.Context, payload *LinkPayload, callerDid, reqIP string) (*entity.LinkResult, error) {
	if callerDid == "" && !s.cfg.AllowAll {
		return nil, fmt.Errorf("%w: payload verification not implemented", apperrors.ErrValidation)
	}
	return s.provisioner.Run(ctx, payload, callerDid, reqIP, true)
}

// GetLink reports whether the caller already holds a mapping for the
// configured provider.
func (s *LinkService) GetLink(ctx context.Context, callerDid string) (bool, string, error) {
	if !s.cfg.Enabled {
		return false, "", fmt.Errorf("%w: external identity linking is disabled", apperrors.ErrNotEnabled)
	}
	providerKey := s.provider.ProviderKey()
	_, err := s.mappings.GetByProviderDid(ctx, providerKey, callerDid)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, providerKey, nil
		}
		return false, providerKey, err
	}
	return true, providerKey, nil
}

// Unlink removes the caller's mapping for the configured provider.
func (s *LinkService) Unlink(ctx context.Context, callerDid string) error {
	if !s.cfg.Enabled {
		return fmt.Errorf("%w: external identity linking is disabled", apperrors.ErrNotEnabled)
	}
	return s.mappings.DeleteByProviderDid(ctx, s.provider.ProviderKey(), callerDid)
}

func randomHex(byteLen int) (string, error) {
	buf := make([]byte, byteLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
