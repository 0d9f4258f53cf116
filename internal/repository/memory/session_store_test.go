package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/idlink-api/internal/domain/entity"
	apperrors "github.com/yourusername/idlink-api/internal/pkg/errors"
)

func TestSessionStore_SetGetDelete(t *testing.T) {
	store := NewSessionStore(10, time.Minute)
	ctx := context.Background()

	session := &entity.LinkSession{
		SessionID:    "s1",
		SessionToken: "secret",
		Status:       entity.LinkSessionPending,
	}
	require.NoError(t, store.Set(ctx, "s1", session))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "secret", got.SessionToken)
	assert.Equal(t, entity.LinkSessionPending, got.Status)

	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSessionStore_GetReturnsCopy(t *testing.T) {
	store := NewSessionStore(10, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "s1", &entity.LinkSession{SessionID: "s1", Status: entity.LinkSessionPending}))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	// Мутация полученной копии не должна влиять на кеш
	got.Status = entity.LinkSessionFailed

	again, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, entity.LinkSessionPending, again.Status)
}

func TestSessionStore_TTLExpiry(t *testing.T) {
	store := NewSessionStore(10, 50*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "s1", &entity.LinkSession{SessionID: "s1"}))

	_, err := store.Get(ctx, "s1")
	require.NoError(t, err)

	time.Sleep(120 * time.Millisecond)

	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSessionStore_Unknown(t *testing.T) {
	store := NewSessionStore(0, time.Minute) // 0 → дефолтный размер

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
