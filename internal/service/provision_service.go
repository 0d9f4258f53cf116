package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/yourusername/idlink-api/internal/config"
	"github.com/yourusername/idlink-api/internal/domain/entity"
	"github.com/yourusername/idlink-api/internal/domain/repository"
	apperrors "github.com/yourusername/idlink-api/internal/pkg/errors"
	"github.com/yourusername/idlink-api/pkg/keys"
)

// LinkPayload is the handshake assertion delivered by the external
// provider. Field names match the provider's wire format. Everything
// except the external identity key (JID), the profile Properties and the
// approval State is treated as opaque pass-through metadata.
type LinkPayload struct {
	JID           string `json:"JID,omitempty"`
	ID            string `json:"Id,omitempty"`
	Provider      string `json:"Provider,omitempty"`
	Domain        string `json:"Domain,omitempty"`
	Key           string `json:"Key,omitempty"`
	ClientKeyName string `json:"ClientKeyName,omitempty"`
	Created       int64  `json:"Created,omitempty"`
	Updated       int64  `json:"Updated,omitempty"`
	From          int64  `json:"From,omitempty"`
	To            int64  `json:"To,omitempty"`

	HasClientPublicKey bool   `json:"HasClientPublicKey,omitempty"`
	ClientPubKey       string `json:"ClientPubKey,omitempty"`
	HasClientSignature bool   `json:"HasClientSignature,omitempty"`
	ClientSignature    string `json:"ClientSignature,omitempty"`
	ServerSignature    string `json:"ServerSignature,omitempty"`

	Properties  map[string]interface{} `json:"Properties,omitempty"`
	Attachments []LinkAttachment       `json:"Attachments,omitempty"`

	SessionID string `json:"SessionId,omitempty"`
	State     string `json:"State,omitempty"`
}

// LinkAttachment is carried through unmodified.
type LinkAttachment struct {
	ID          string `json:"Id"`
	ContentType string `json:"ContentType"`
	FileName    string `json:"FileName,omitempty"`
	URL         string `json:"Url,omitempty"`
	BackEndURL  string `json:"BackEndUrl,omitempty"`
}

// Provisioner runs one login/link/provisioning attempt. Split out as an
// interface so the protocol layer can be tested without the full saga.
type Provisioner interface {
	Run(ctx context.Context, payload *LinkPayload, authDid, reqIP string, allowCreate bool) (*entity.LinkResult, error)
}

// ProvisionService is the saga orchestrating the mapping store, the
// identity directory, the content-addressed repo store, the account
// registry and the event log. Exactly one of four outcomes produces a
// result: reuse of an existing link (login), idempotent re-link, link to
// the current user, or full new-account creation.
type ProvisionService struct {
	cfg         config.LinkAuthConfig
	providerKey string
	publicURL   string

	mappings  repository.IdentityMappingRepository
	events    repository.EventLogRepository
	accounts  AccountRegistry
	handles   HandleAllocator
	directory IdentityDirectory
	repoStore RepoStore
	keygen    keys.Generator
}

func NewProvisionService(
	cfg config.LinkAuthConfig,
	providerKey, publicURL string,
	mappings repository.IdentityMappingRepository,
	events repository.EventLogRepository,
	accounts AccountRegistry,
	handles HandleAllocator,
	directory IdentityDirectory,
	repoStore RepoStore,
	keygen keys.Generator,
) (*ProvisionService, error) {
	if providerKey == "" {
		return nil, fmt.Errorf("provider key is required")
	}
	if mappings == nil || events == nil || accounts == nil || handles == nil || directory == nil || repoStore == nil || keygen == nil {
		return nil, fmt.Errorf("all provisioning collaborators are required")
	}
	return &ProvisionService{
		cfg:         cfg,
		providerKey: providerKey,
		publicURL:   publicURL,
		mappings:    mappings,
		events:      events,
		accounts:    accounts,
		handles:     handles,
		directory:   directory,
		repoStore:   repoStore,
		keygen:      keygen,
	}, nil
}

// Run executes the saga. authDid is the already-authenticated caller's DID
// ("" for anonymous), reqIP is recorded in the mapping audit meta.
func (s *ProvisionService) Run(ctx context.Context, payload *LinkPayload, authDid, reqIP string, allowCreate bool) (*entity.LinkResult, error) {
	if !s.cfg.Enabled {
		return nil, fmt.Errorf("%w: external identity linking is disabled", apperrors.ErrNotEnabled)
	}
	if payload == nil || payload.JID == "" {
		return nil, fmt.Errorf("%w: missing external identity in payload", apperrors.ErrValidation)
	}
	externalID := payload.JID
	meta := buildMappingMeta(payload, reqIP)

	existing, err := s.mappings.GetByProviderExternalID(ctx, s.providerKey, externalID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	if existing != nil {
		return s.reuseExisting(ctx, existing, authDid, externalID, meta)
	}

	if authDid != "" {
		// Linking flow: bind the asserted identity to the caller. No
		// account work happens here.
		if err := s.mappings.CreateOrConfirm(ctx, s.providerKey, externalID, authDid, meta); err != nil {
			return nil, err
		}
		account, err := s.accounts.GetAccountByDID(ctx, authDid)
		if err != nil {
			return nil, err
		}
		return &entity.LinkResult{
			DID:        authDid,
			DidDoc:     s.resolveDocQuiet(ctx, authDid, false),
			Handle:     account.Handle,
			Linked:     true,
			Created:    false,
			Provider:   s.providerKey,
			ExternalID: externalID,
		}, nil
	}

	if s.cfg.AllowCreate && allowCreate {
		return s.createAccount(ctx, externalID, meta, payload.Properties)
	}

	return nil, fmt.Errorf("%w: account creation is not permitted", apperrors.ErrNotEnabled)
}

// reuseExisting handles an already-bound external identity: a conflicting
// caller is rejected, an anonymous caller gets a fresh session, the owning
// caller gets a confirmation. Either way the mapping row is only
// timestamp/meta refreshed, never rewritten.
func (s *ProvisionService) reuseExisting(ctx context.Context, existing *entity.IdentityMapping, authDid, externalID, meta string) (*entity.LinkResult, error) {
	if authDid != "" && existing.DID != authDid {
		return nil, fmt.Errorf("%w: external identity already linked to a different account", apperrors.ErrConflict)
	}

	if err := s.mappings.CreateOrConfirm(ctx, s.providerKey, externalID, existing.DID, meta); err != nil {
		return nil, err
	}
	account, err := s.accounts.GetAccountByDID(ctx, existing.DID)
	if err != nil {
		return nil, err
	}

	result := &entity.LinkResult{
		DID:        existing.DID,
		Handle:     account.Handle,
		Linked:     true,
		Created:    false,
		Provider:   s.providerKey,
		ExternalID: externalID,
	}

	if authDid == "" {
		// Fresh login: mint credentials and resolve the document
		// concurrently; the two lookups have no ordering dependency.
		var (
			wg    sync.WaitGroup
			creds *Credentials
			cErr  error
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			creds, cErr = s.accounts.CreateSession(ctx, existing.DID)
		}()
		result.DidDoc = s.resolveDocQuiet(ctx, existing.DID, false)
		wg.Wait()
		if cErr != nil {
			return nil, cErr
		}
		result.AccessJwt = creds.AccessJwt
		result.RefreshJwt = creds.RefreshJwt
	} else {
		result.DidDoc = s.resolveDocQuiet(ctx, existing.DID, false)
	}
	return result, nil
}

// createAccount runs the full creation pipeline. Everything after the repo
// reservation is covered by compensating teardown; the directory
// publication is append-only and never retracted, so a failed local
// rollback after a successful publish is the known inconsistency window
// surfaced via ErrInternalInconsistency.
func (s *ProvisionService) createAccount(ctx context.Context, externalID, meta string, props map[string]interface{}) (*entity.LinkResult, error) {
	signingKey, err := s.keygen.Generate()
	if err != nil {
		return nil, err
	}

	handle, err := s.handles.Allocate(ctx, s.handles.DeriveBaseHandle(props))
	if err != nil {
		return nil, err
	}

	rotationKeys := []string{signingKey.DID()}
	if s.cfg.RecoveryDIDKey != "" {
		rotationKeys = append([]string{s.cfg.RecoveryDIDKey}, rotationKeys...)
	}
	did, op, err := s.directory.CreateOperation(signingKey.DID(), rotationKeys, handle, s.publicURL, signingKey)
	if err != nil {
		return nil, err
	}

	if err := s.repoStore.Create(ctx, did, signingKey); err != nil {
		return nil, err
	}

	result, err := s.finishCreate(ctx, did, op, handle, externalID, meta)
	if err == nil {
		return result, nil
	}

	if rbErr := s.rollbackCreate(ctx, did); rbErr != nil {
		log.Printf("[Provision] rollback failed for %s: %v (original error: %v)", did, rbErr, err)
		return nil, errors.Join(err, fmt.Errorf("%w: rollback failed for %s: %v", apperrors.ErrInternalInconsistency, did, rbErr))
	}
	return nil, err
}

func (s *ProvisionService) finishCreate(ctx context.Context, did string, op json.RawMessage, handle, externalID, meta string) (*entity.LinkResult, error) {
	commit, err := s.repoStore.InitRepository(ctx, did)
	if err != nil {
		return nil, err
	}

	if err := s.directory.Publish(ctx, did, op); err != nil {
		return nil, err
	}
	didDoc := s.resolveDocQuiet(ctx, did, true)

	creds, err := s.accounts.CreateAccountAndSession(ctx, did, handle, commit.Root, commit.Rev)
	if err != nil {
		return nil, err
	}

	// The event log is append-only and consumers assume causal order:
	// identity, account, commit, sync — always in this order.
	if err := s.events.AppendIdentityEvent(ctx, did, handle); err != nil {
		return nil, err
	}
	status, err := s.accounts.GetAccountStatus(ctx, did)
	if err != nil {
		return nil, err
	}
	if err := s.events.AppendAccountEvent(ctx, did, status); err != nil {
		return nil, err
	}
	if err := s.events.AppendCommitEvent(ctx, did, commit.Root, commit.Rev); err != nil {
		return nil, err
	}
	if err := s.events.AppendSyncEvent(ctx, did, commit.Root, commit.Rev); err != nil {
		return nil, err
	}

	if err := s.accounts.UpdateRepoRoot(ctx, did, commit.Root, commit.Rev); err != nil {
		return nil, err
	}
	if err := s.mappings.CreateOrConfirm(ctx, s.providerKey, externalID, did, meta); err != nil {
		return nil, err
	}

	return &entity.LinkResult{
		AccessJwt:  creds.AccessJwt,
		RefreshJwt: creds.RefreshJwt,
		DID:        did,
		DidDoc:     didDoc,
		Handle:     handle,
		Linked:     false,
		Created:    true,
		Provider:   s.providerKey,
		ExternalID: externalID,
	}, nil
}

// rollbackCreate tears down the partially-created local state. The account
// row may or may not exist depending on how far the pipeline got; its
// delete is a no-op when it does not.
func (s *ProvisionService) rollbackCreate(ctx context.Context, did string) error {
	var rbErr error
	if err := s.repoStore.Destroy(ctx, did); err != nil {
		rbErr = errors.Join(rbErr, fmt.Errorf("destroy repo: %w", err))
	}
	if err := s.accounts.DeleteAccount(ctx, did); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		rbErr = errors.Join(rbErr, fmt.Errorf("delete account: %w", err))
	}
	return rbErr
}

// resolveDocQuiet fetches the DID document best-effort: the result is
// informational, a directory hiccup must not fail a login.
func (s *ProvisionService) resolveDocQuiet(ctx context.Context, did string, forceRefresh bool) interface{} {
	doc, err := s.directory.ResolveDocument(ctx, did, forceRefresh)
	if err != nil {
		log.Printf("[Provision] failed to resolve document for %s: %v", did, err)
		return nil
	}
	return doc
}

func buildMappingMeta(payload *LinkPayload, reqIP string) string {
	meta := map[string]interface{}{
		"ip":        reqIP,
		"at":        time.Now().UTC().Format(time.RFC3339),
		"id":        payload.ID,
		"provider":  payload.Provider,
		"domain":    payload.Domain,
		"key":       payload.Key,
		"sessionId": payload.SessionID,
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "{}"
	}
	return string(data)
}
