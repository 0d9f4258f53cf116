package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/idlink-api/internal/config"
	"github.com/yourusername/idlink-api/internal/domain/entity"
	apperrors "github.com/yourusername/idlink-api/internal/pkg/errors"
	"github.com/yourusername/idlink-api/internal/repository/memory"
)

// ============================================================================
// Моки протокольного слоя
// ============================================================================

// MockProviderClient реализует ProviderClient
type MockProviderClient struct {
	mock.Mock
}

func (m *MockProviderClient) StartHandshake(ctx context.Context, callbackURL, sessionID string) (string, error) {
	args := m.Called(ctx, callbackURL, sessionID)
	return args.String(0), args.Error(1)
}

func (m *MockProviderClient) BaseURL() string {
	return "https://provider.example.com"
}

func (m *MockProviderClient) ProviderKey() string {
	return testProvider
}

// MockProvisioner реализует Provisioner
type MockProvisioner struct {
	mock.Mock
}

func (m *MockProvisioner) Run(ctx context.Context, payload *LinkPayload, authDid, reqIP string, allowCreate bool) (*entity.LinkResult, error) {
	args := m.Called(ctx, payload, authDid, reqIP, allowCreate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.LinkResult), args.Error(1)
}

// MockVerifier реализует PayloadVerifier
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, payload *LinkPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

// ============================================================================
// Тестовая обвязка: реальный memory session store + моки
// ============================================================================

type linkFixture struct {
	store       *memory.SessionStore
	provider    *MockProviderClient
	provisioner *MockProvisioner
	verifier    *MockVerifier
	mappings    *MockMappingRepo
	svc         *LinkService
}

func newLinkFixture(t *testing.T, cfg config.LinkAuthConfig) *linkFixture {
	t.Helper()
	f := &linkFixture{
		store:       memory.NewSessionStore(100, time.Minute),
		provider:    new(MockProviderClient),
		provisioner: new(MockProvisioner),
		verifier:    new(MockVerifier),
		mappings:    new(MockMappingRepo),
	}
	svc, err := NewLinkService(cfg, testPublicURL, f.store, f.provider, f.provisioner, f.verifier, f.mappings)
	require.NoError(t, err)
	f.svc = svc
	return f
}

// initSession открывает сессию через Init и возвращает ее параметры
func (f *linkFixture) initSession(t *testing.T, callerDid string, link, allowCreate bool) *InitResult {
	t.Helper()
	f.provider.On("StartHandshake", mock.Anything, testPublicURL+"/api/linkauth/callback", mock.Anything).
		Return("service-1", nil).Once()
	res, err := f.svc.Init(context.Background(), callerDid, link, allowCreate)
	require.NoError(t, err)
	return res
}

// ============================================================================
// Init
// ============================================================================

func TestLinkService_Init_Success(t *testing.T) {
	f := newLinkFixture(t, enabledCfg())

	res := f.initSession(t, "", false, true)

	assert.NotEmpty(t, res.SessionID)
	// 24 байта секрета в hex
	assert.Len(t, res.SessionToken, 48)
	assert.Equal(t, "service-1", res.ServiceID)
	assert.Equal(t, "https://provider.example.com", res.ProviderBaseURL)

	// Сессия лежит в кеше в статусе pending
	sess, err := f.store.Get(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, entity.LinkSessionPending, sess.Status)
	assert.True(t, sess.AllowCreate)
	assert.Empty(t, sess.LinkDid)
}

func TestLinkService_Init_LinkRequiresAuth(t *testing.T) {
	f := newLinkFixture(t, enabledCfg())

	_, err := f.svc.Init(context.Background(), "", true, false)

	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	// Проверка аутентификации идет до любого обращения к провайдеру
	f.provider.AssertNotCalled(t, "StartHandshake", mock.Anything, mock.Anything, mock.Anything)
}

func TestLinkService_Init_LinkStoresCallerDid(t *testing.T) {
	f := newLinkFixture(t, enabledCfg())

	res := f.initSession(t, "did:idl:alice", true, false)

	sess, err := f.store.Get(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "did:idl:alice", sess.LinkDid)
}

func TestLinkService_Init_ProviderFailure(t *testing.T) {
	f := newLinkFixture(t, enabledCfg())
	f.provider.On("StartHandshake", mock.Anything, mock.Anything, mock.Anything).
		Return("", apperrors.ErrUpstreamFailure)

	_, err := f.svc.Init(context.Background(), "", false, false)

	assert.ErrorIs(t, err, apperrors.ErrUpstreamFailure)
}

func TestLinkService_Init_Disabled(t *testing.T) {
	f := newLinkFixture(t, config.LinkAuthConfig{Enabled: false})

	_, err := f.svc.Init(context.Background(), "", false, false)

	assert.ErrorIs(t, err, apperrors.ErrNotEnabled)
}

// ============================================================================
// Callback
// ============================================================================

func TestLinkService_Callback_Success(t *testing.T) {
	f := newLinkFixture(t, enabledCfg())
	res := f.initSession(t, "", false, true)
	payload := approvedPayload("alice@x")

	f.verifier.On("Verify", mock.Anything, payload).Return(nil)
	f.provisioner.On("Run", mock.Anything, payload, "", "1.2.3.4", true).
		Return(&entity.LinkResult{DID: "did:idl:alice", Handle: "alice.test", Created: true}, nil)

	ok, err := f.svc.Callback(context.Background(), res.SessionID, payload, "1.2.3.4")

	require.NoError(t, err)
	assert.True(t, ok)

	status, err := f.svc.Status(context.Background(), res.SessionID, res.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, entity.LinkSessionCompleted, status.Status)
	require.NotNil(t, status.Result)
	assert.Equal(t, "did:idl:alice", status.Result.DID)
}

func TestLinkService_Callback_PassesSessionFlagsToSaga(t *testing.T) {
	f := newLinkFixture(t, enabledCfg())
	res := f.initSession(t, "did:idl:alice", true, false)
	payload := approvedPayload("alice@x")

	f.verifier.On("Verify", mock.Anything, payload).Return(nil)
	// LinkDid и AllowCreate сессии должны дойти до саги как есть
	f.provisioner.On("Run", mock.Anything, payload, "did:idl:alice", "1.2.3.4", false).
		Return(&entity.LinkResult{DID: "did:idl:alice", Linked: true}, nil)

	_, err := f.svc.Callback(context.Background(), res.SessionID, payload, "1.2.3.4")

	require.NoError(t, err)
	f.provisioner.AssertExpectations(t)
}

func TestLinkService_Callback_UnknownSession(t *testing.T) {
	f := newLinkFixture(t, enabledCfg())

	_, err := f.svc.Callback(context.Background(), "no-such-session", approvedPayload("alice@x"), "1.2.3.4")

	assert.ErrorIs(t, err, apperrors.ErrValidation)
	f.provisioner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLinkService_Callback_IdempotentOnCompleted(t *testing.T) {
	f := newLinkFixture(t, enabledCfg())
	res := f.initSession(t, "", false, true)
	payload := approvedPayload("alice@x")

	f.verifier.On("Verify", mock.Anything, payload).Return(nil)
	f.provisioner.On("Run", mock.Anything, payload, "", "1.2.3.4", true).
		Return(&entity.LinkResult{DID: "did:idl:alice"}, nil).Once()

	ok, err := f.svc.Callback(context.Background(), res.SessionID, payload, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)

	// Повторная доставка только подтверждает исход, сага не перезапускается
	ok, err = f.svc.Callback(context.Background(), res.SessionID, payload, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)
	f.provisioner.AssertNumberOfCalls(t, "Run", 1)
}

func TestLinkService_Callback_FailedIsTerminal(t *testing.T) {
	f := newLinkFixture(t, enabledCfg())
	res := f.initSession(t, "", false, true)
	payload := approvedPayload("alice@x")

	f.verifier.On("Verify", mock.Anything, payload).Return(nil)
	f.provisioner.On("Run", mock.Anything, payload, "", "1.2.3.4", true).
		Return(nil, errors.New("directory down")).Once()

	ok, err := f.svc.Callback(context.Background(), res.SessionID, payload, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok)

	status, err := f.svc.Status(context.Background(), res.SessionID, res.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, entity.LinkSessionFailed, status.Status)
	assert.Contains(t, status.Error, "directory down")

	// Failed — терминальное состояние, повторный callback не перезапускает сагу
	ok, err = f.svc.Callback(context.Background(), res.SessionID, payload, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok)
	f.provisioner.AssertNumberOfCalls(t, "Run", 1)
}

func TestLinkService_Callback_RejectedPayload(t *testing.T) {
	f := newLinkFixture(t, enabledCfg())
	res := f.initSession(t, "", false, true)
	payload := &LinkPayload{JID: "alice@x", State: "Pending"}

	f.verifier.On("Verify", mock.Anything, payload).
		Return(apperrors.ErrValidation)

	ok, err := f.svc.Callback(context.Background(), res.SessionID, payload, "1.2.3.4")

	require.NoError(t, err)
	assert.False(t, ok)
	f.provisioner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	status, err := f.svc.Status(context.Background(), res.SessionID, res.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, entity.LinkSessionFailed, status.Status)
}

// ============================================================================
// Status
// ============================================================================

func TestLinkService_Status_Pending(t *testing.T) {
	f := newLinkFixture(t, enabledCfg())
	res := f.initSession(t, "", false, false)

	status, err := f.svc.Status(context.Background(), res.SessionID, res.SessionToken)

	require.NoError(t, err)
	assert.Equal(t, entity.LinkSessionPending, status.Status)
	assert.Nil(t, status.Result)
}

func TestLinkService_Status_WrongToken(t *testing.T) {
	f := newLinkFixture(t, enabledCfg())
	res := f.initSession(t, "", false, false)

	_, err := f.svc.Status(context.Background(), res.SessionID, "wrong-token")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.svc.Status(context.Background(), "no-such-session", res.SessionToken)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.svc.Status(context.Background(), res.SessionID, "")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

// ============================================================================
// Login
// ============================================================================

func TestLinkService_Login_AnonymousRequiresTrustSwitch(t *testing.T) {
	f := newLinkFixture(t, enabledCfg()) // AllowAll не включен

	_, err := f.svc.Login(context.Background(), approvedPayload("alice@x"), "", "1.2.3.4")

	assert.ErrorIs(t, err, apperrors.ErrValidation)
	f.provisioner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLinkService_Login_AnonymousWithTrustSwitch(t *testing.T) {
	cfg := enabledCfg()
	cfg.AllowAll = true
	f := newLinkFixture(t, cfg)
	payload := approvedPayload("alice@x")

	f.provisioner.On("Run", mock.Anything, payload, "", "1.2.3.4", true).
		Return(&entity.LinkResult{DID: "did:idl:alice", Created: true}, nil)

	result, err := f.svc.Login(context.Background(), payload, "", "1.2.3.4")

	require.NoError(t, err)
	assert.Equal(t, "did:idl:alice", result.DID)
}

func TestLinkService_Login_Authenticated(t *testing.T) {
	f := newLinkFixture(t, enabledCfg())
	payload := approvedPayload("alice@x")

	f.provisioner.On("Run", mock.Anything, payload, "did:idl:alice", "1.2.3.4", true).
		Return(&entity.LinkResult{DID: "did:idl:alice", Linked: true}, nil)

	result, err := f.svc.Login(context.Background(), payload, "did:idl:alice", "1.2.3.4")

	require.NoError(t, err)
	assert.True(t, result.Linked)
}

// ============================================================================
// GetLink / Unlink
// ============================================================================

func TestLinkService_GetLink(t *testing.T) {
	f := newLinkFixture(t, enabledCfg())

	f.mappings.On("GetByProviderDid", mock.Anything, testProvider, "did:idl:alice").
		Return(&entity.IdentityMapping{Provider: testProvider, DID: "did:idl:alice"}, nil)
	f.mappings.On("GetByProviderDid", mock.Anything, testProvider, "did:idl:bob").
		Return(nil, apperrors.ErrNotFound)

	linked, provider, err := f.svc.GetLink(context.Background(), "did:idl:alice")
	require.NoError(t, err)
	assert.True(t, linked)
	assert.Equal(t, testProvider, provider)

	linked, _, err = f.svc.GetLink(context.Background(), "did:idl:bob")
	require.NoError(t, err)
	assert.False(t, linked)
}

func TestLinkService_Unlink(t *testing.T) {
	f := newLinkFixture(t, enabledCfg())

	f.mappings.On("DeleteByProviderDid", mock.Anything, testProvider, "did:idl:alice").Return(nil)
	f.mappings.On("DeleteByProviderDid", mock.Anything, testProvider, "did:idl:bob").
		Return(apperrors.ErrNotFound)

	require.NoError(t, f.svc.Unlink(context.Background(), "did:idl:alice"))
	assert.ErrorIs(t, f.svc.Unlink(context.Background(), "did:idl:bob"), apperrors.ErrNotFound)
}
