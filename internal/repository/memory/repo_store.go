package memory

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yourusername/idlink-api/internal/domain/entity"
	apperrors "github.com/yourusername/idlink-api/internal/pkg/errors"
	"github.com/yourusername/idlink-api/pkg/keys"
)

type repoState struct {
	signingKeyDID string
	commit        *entity.RepoCommit
}

// RepoStore is an in-process content-addressed repository collaborator.
// Commit roots are content hashes, revisions are ULIDs. Good enough for
// single-instance deployments and tests; the on-disk repository format is
// out of scope for this service.
type RepoStore struct {
	mu    sync.Mutex
	repos map[string]*repoState
}

func NewRepoStore() *RepoStore {
	return &RepoStore{repos: make(map[string]*repoState)}
}

func (s *RepoStore) Create(_ context.Context, did string, signingKey keys.Keypair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.repos[did]; ok {
		return fmt.Errorf("%w: repository already exists for %s", apperrors.ErrConflict, did)
	}
	s.repos[did] = &repoState{signingKeyDID: signingKey.DID()}
	return nil
}

func (s *RepoStore) InitRepository(_ context.Context, did string) (*entity.RepoCommit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.repos[did]
	if !ok {
		return nil, fmt.Errorf("%w: no repository reserved for %s", apperrors.ErrNotFound, did)
	}
	rev := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	sum := sha256.Sum256([]byte(did + "\x00" + rev))
	state.commit = &entity.RepoCommit{
		Root: hex.EncodeToString(sum[:]),
		Rev:  rev,
	}
	return state.commit, nil
}

func (s *RepoStore) Destroy(_ context.Context, did string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.repos, did)
	return nil
}

// Exists reports whether any local repository state remains for the DID.
func (s *RepoStore) Exists(did string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.repos[did]
	return ok
}
