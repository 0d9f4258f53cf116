package directory

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/yourusername/idlink-api/internal/pkg/errors"
)

type stubSigner struct{ did string }

func (s stubSigner) DID() string                      { return s.did }
func (s stubSigner) Sign(data []byte) ([]byte, error) { return []byte("signature"), nil }

func TestClient_CreateOperation(t *testing.T) {
	client, err := NewClient("http://directory.local", time.Second)
	require.NoError(t, err)

	signer := stubSigner{did: "did:key:signing"}
	did, op, err := client.CreateOperation("did:key:signing", []string{"did:key:recovery", "did:key:signing"},
		"alice.test", "https://idlink.example.com", signer)

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(did, "did:idl:"))
	// 24 символа base32 после префикса
	assert.Len(t, strings.TrimPrefix(did, "did:idl:"), 24)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(op, &decoded))
	assert.Equal(t, "create", decoded["type"])
	assert.Equal(t, "alice.test", decoded["handle"])
	assert.Equal(t, "https://idlink.example.com", decoded["service"])
	assert.Nil(t, decoded["prev"])
	assert.NotEmpty(t, decoded["sig"])

	// DID детерминирован содержимым операции
	did2, _, err := client.CreateOperation("did:key:signing", []string{"did:key:recovery", "did:key:signing"},
		"alice.test", "https://idlink.example.com", signer)
	require.NoError(t, err)
	assert.Equal(t, did, did2)

	// Другой handle дает другой DID
	did3, _, err := client.CreateOperation("did:key:signing", []string{"did:key:recovery", "did:key:signing"},
		"bob.test", "https://idlink.example.com", signer)
	require.NoError(t, err)
	assert.NotEqual(t, did, did3)
}

func TestClient_CreateOperation_Validation(t *testing.T) {
	client, err := NewClient("http://directory.local", time.Second)
	require.NoError(t, err)

	_, _, err = client.CreateOperation("", nil, "alice.test", "", stubSigner{})
	assert.Error(t, err)

	_, _, err = client.CreateOperation("did:key:x", nil, "", "", stubSigner{})
	assert.Error(t, err)
}

func TestClient_Publish(t *testing.T) {
	var gotPath string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, time.Second)
	require.NoError(t, err)

	op := json.RawMessage(`{"type":"create"}`)
	require.NoError(t, client.Publish(context.Background(), "did:idl:abc", op))
	assert.Equal(t, "/did:idl:abc", gotPath)
	assert.JSONEq(t, `{"type":"create"}`, string(gotBody))
}

func TestClient_Publish_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rejected", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, time.Second)
	require.NoError(t, err)

	err = client.Publish(context.Background(), "did:idl:abc", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, apperrors.ErrUpstreamFailure)
}

func TestClient_ResolveDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/did:idl:known":
			if r.URL.Query().Get("refresh") == "true" {
				w.Header().Set("X-Refreshed", "1")
			}
			w.Write([]byte(`{"id":"did:idl:known"}`))
		case "/did:idl:broken":
			w.Write([]byte(`{not json`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, time.Second)
	require.NoError(t, err)
	ctx := context.Background()

	doc, err := client.ResolveDocument(ctx, "did:idl:known", true)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"did:idl:known"}`, string(doc))

	_, err = client.ResolveDocument(ctx, "did:idl:unknown", false)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = client.ResolveDocument(ctx, "did:idl:broken", false)
	assert.ErrorIs(t, err, apperrors.ErrUpstreamFailure)
}
