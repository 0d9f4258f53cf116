package service

import (
	"context"
	"encoding/json"

	"github.com/yourusername/idlink-api/internal/domain/entity"
	"github.com/yourusername/idlink-api/pkg/keys"
)

// Collaborator contracts consumed by the provisioning saga and the linking
// protocol. The repository format, directory internals and key custody are
// out of scope here; only these contracts are relied upon.

// RepoStore is the content-addressed repository collaborator.
type RepoStore interface {
	// Create reserves storage and the signing key for the DID. Must be
	// reversible via Destroy until provisioning completes.
	Create(ctx context.Context, did string, signingKey keys.Keypair) error

	// InitRepository writes the empty genesis commit and returns it.
	InitRepository(ctx context.Context, did string) (*entity.RepoCommit, error)

	// Destroy tears down all local repository state for the DID.
	Destroy(ctx context.Context, did string) error
}

// IdentityDirectory is the distributed system of record for DID creation.
// Operations are append-only and not locally revocable once published.
type IdentityDirectory interface {
	// CreateOperation builds and signs a create operation locally, deriving
	// the DID from it. No remote state changes until Publish.
	CreateOperation(signingKeyDID string, rotationKeys []string, handle, serviceURL string, signer keys.Keypair) (did string, op json.RawMessage, err error)

	// Publish submits the operation to the directory.
	Publish(ctx context.Context, did string, op json.RawMessage) error

	// ResolveDocument fetches the DID document, optionally bypassing
	// directory-side caches.
	ResolveDocument(ctx context.Context, did string, forceRefresh bool) (json.RawMessage, error)
}

// Credentials are freshly-minted local session tokens.
type Credentials struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
}

// AccountRegistry is the local account collaborator: registration, handle
// validation and session minting.
type AccountRegistry interface {
	CreateAccountAndSession(ctx context.Context, did, handle, repoRoot, repoRev string) (*Credentials, error)
	CreateSession(ctx context.Context, did string) (*Credentials, error)
	GetAccountByDID(ctx context.Context, did string) (*entity.Account, error)
	GetAccountByHandle(ctx context.Context, handle string) (*entity.Account, error)
	GetAccountStatus(ctx context.Context, did string) (string, error)

	// NormalizeAndValidateHandle lowercases the handle and fails with
	// apperrors.ErrValidation on malformed or reserved handles.
	NormalizeAndValidateHandle(handle string) (string, error)
	UpdateRepoRoot(ctx context.Context, did, root, rev string) error
	DeleteAccount(ctx context.Context, did string) error
}

// HandleAllocator derives and reserves-by-probing a human-readable handle.
type HandleAllocator interface {
	DeriveBaseHandle(props map[string]interface{}) string
	Allocate(ctx context.Context, base string) (string, error)
}

// ProviderClient is the outbound call to the external identity provider
// that opens a handshake.
type ProviderClient interface {
	// StartHandshake registers the callback address and session id with the
	// provider and returns the provider-assigned service id. Transport
	// failures and non-success responses surface as
	// apperrors.ErrUpstreamFailure.
	StartHandshake(ctx context.Context, callbackURL, sessionID string) (string, error)

	// BaseURL is the normalized provider base URL.
	BaseURL() string

	// ProviderKey is the stable mapping-store key for this provider
	// (hostname of the base URL).
	ProviderKey() string
}

// PayloadVerifier decides whether a callback payload is trustworthy enough
// to act on. The shipped implementation only checks the provider-asserted
// approval marker behind an operator-controlled trust switch; deployments
// needing real assertion verification plug in their own.
type PayloadVerifier interface {
	Verify(ctx context.Context, payload *LinkPayload) error
}
