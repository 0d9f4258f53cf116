package directory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base32"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/yourusername/idlink-api/internal/pkg/errors"
	"github.com/yourusername/idlink-api/pkg/keys"
)

// didEncoding is the lowercase unpadded base32 used for DID derivation.
var didEncoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// Client talks to the distributed identity directory. Create operations are
// built and signed locally; only Publish touches the network. The directory
// is append-only: a published operation cannot be retracted from here.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("directory base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid directory base url: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type createOperation struct {
	Type         string   `json:"type"`
	SigningKey   string   `json:"signingKey"`
	RotationKeys []string `json:"rotationKeys"`
	Handle       string   `json:"handle"`
	Service      string   `json:"service"`
	Prev         *string  `json:"prev"`
	Sig          string   `json:"sig,omitempty"`
}

// CreateOperation signs a genesis operation and derives the DID from its
// hash, so the identifier is fixed before anything is published.
func (c *Client) CreateOperation(signingKeyDID string, rotationKeys []string, handle, serviceURL string, signer keys.Keypair) (string, json.RawMessage, error) {
	if signingKeyDID == "" || handle == "" {
		return "", nil, fmt.Errorf("signing key and handle are required for a create operation")
	}
	op := createOperation{
		Type:         "create",
		SigningKey:   signingKeyDID,
		RotationKeys: rotationKeys,
		Handle:       handle,
		Service:      serviceURL,
		Prev:         nil,
	}
	unsigned, err := json.Marshal(op)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode create operation: %w", err)
	}
	sig, err := signer.Sign(unsigned)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign create operation: %w", err)
	}
	op.Sig = base64.RawURLEncoding.EncodeToString(sig)

	signed, err := json.Marshal(op)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode signed create operation: %w", err)
	}
	sum := sha256.Sum256(signed)
	did := "did:idl:" + didEncoding.EncodeToString(sum[:])[:24]
	return did, signed, nil
}

func (c *Client) Publish(ctx context.Context, did string, op json.RawMessage) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+url.PathEscape(did), bytes.NewReader(op))
	if err != nil {
		return fmt.Errorf("failed to create directory publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: directory unreachable: %v", apperrors.ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%w: directory publish status=%d body=%s", apperrors.ErrUpstreamFailure, resp.StatusCode, string(body))
	}
	return nil
}

func (c *Client) ResolveDocument(ctx context.Context, did string, forceRefresh bool) (json.RawMessage, error) {
	resolveURL := c.baseURL + "/" + url.PathEscape(did)
	if forceRefresh {
		resolveURL += "?refresh=true"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolveURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create directory resolve request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: directory unreachable: %v", apperrors.ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("%w: directory resolve status=%d body=%s", apperrors.ErrUpstreamFailure, resp.StatusCode, string(body))
	}

	doc, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read directory document: %w", err)
	}
	if !json.Valid(doc) {
		return nil, fmt.Errorf("%w: directory returned invalid document", apperrors.ErrUpstreamFailure)
	}
	return doc, nil
}
