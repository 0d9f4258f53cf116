package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/idlink-api/internal/domain/entity"
	"github.com/yourusername/idlink-api/internal/service"
	"github.com/yourusername/idlink-api/pkg/auth"
)

// stubAccounts отдает заранее заданный аккаунт на чтение
type stubAccounts struct {
	account *entity.Account
	err     error
}

func (s stubAccounts) Create(ctx context.Context, account *entity.Account) error {
	return s.err
}

func (s stubAccounts) GetByDID(ctx context.Context, did string) (*entity.Account, error) {
	return s.account, s.err
}

func (s stubAccounts) GetByHandle(ctx context.Context, handle string) (*entity.Account, error) {
	return s.account, s.err
}

func (s stubAccounts) UpdateRepoRoot(ctx context.Context, did, root, rev string) error {
	return s.err
}

func (s stubAccounts) Delete(ctx context.Context, did string) error {
	return s.err
}

func newSessionRouter(t *testing.T, accounts stubAccounts) (*gin.Engine, *service.AccountService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jwtService, err := auth.NewJWTService("test-secret", time.Hour, 24*time.Hour)
	require.NoError(t, err)
	accountService, err := service.NewAccountService(accounts, stubMappings{}, jwtService)
	require.NoError(t, err)

	router := gin.New()
	router.POST("/api/session/refresh", NewSessionHandler(accountService).Refresh)
	return router, accountService
}

func TestSessionHandler_Refresh_Success(t *testing.T) {
	accounts := stubAccounts{account: &entity.Account{DID: "did:idl:alice", Handle: "alice.test"}}
	router, accountService := newSessionRouter(t, accounts)

	creds, err := accountService.CreateSession(context.Background(), "did:idl:alice")
	require.NoError(t, err)

	w := doJSON(router, http.MethodPost, "/api/session/refresh", RefreshRequest{RefreshJwt: creds.RefreshJwt})

	require.Equal(t, http.StatusOK, w.Code)
	var resp service.Credentials
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AccessJwt)
	assert.NotEmpty(t, resp.RefreshJwt)
}

func TestSessionHandler_Refresh_MissingToken(t *testing.T) {
	router, _ := newSessionRouter(t, stubAccounts{account: &entity.Account{DID: "did:idl:alice"}})

	w := doJSON(router, http.MethodPost, "/api/session/refresh", map[string]string{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionHandler_Refresh_InvalidToken(t *testing.T) {
	router, _ := newSessionRouter(t, stubAccounts{account: &entity.Account{DID: "did:idl:alice"}})

	w := doJSON(router, http.MethodPost, "/api/session/refresh", RefreshRequest{RefreshJwt: "not-a-jwt"})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "token_invalid", errorType(t, w))
}

func TestSessionHandler_Refresh_AccessTokenRejected(t *testing.T) {
	accounts := stubAccounts{account: &entity.Account{DID: "did:idl:alice"}}
	router, accountService := newSessionRouter(t, accounts)

	creds, err := accountService.CreateSession(context.Background(), "did:idl:alice")
	require.NoError(t, err)

	w := doJSON(router, http.MethodPost, "/api/session/refresh", RefreshRequest{RefreshJwt: creds.AccessJwt})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "token_invalid", errorType(t, w))
}

func TestSessionHandler_Refresh_DeactivatedAccount(t *testing.T) {
	now := time.Now()
	accounts := stubAccounts{account: &entity.Account{DID: "did:idl:alice", DeactivatedAt: &now}}
	router, accountService := newSessionRouter(t, accounts)

	creds, err := accountService.CreateSession(context.Background(), "did:idl:alice")
	require.NoError(t, err)

	w := doJSON(router, http.MethodPost, "/api/session/refresh", RefreshRequest{RefreshJwt: creds.RefreshJwt})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "token_invalid", errorType(t, w))
}
