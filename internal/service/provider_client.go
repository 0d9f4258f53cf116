package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/yourusername/idlink-api/internal/pkg/errors"
)

// HTTPProviderClient implements ProviderClient against the external
// provider's handshake endpoint.
type HTTPProviderClient struct {
	baseURL     string
	providerKey string
	httpClient  *http.Client
}

// NewHTTPProviderClient takes an already-normalized absolute base URL (see
// config.LinkAuthConfig.NormalizedProviderBaseURL). The URL's hostname
// becomes the provider key used by the mapping store.
func NewHTTPProviderClient(baseURL string) (*HTTPProviderClient, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Hostname() == "" {
		return nil, fmt.Errorf("invalid provider base url %q", baseURL)
	}
	return &HTTPProviderClient{
		baseURL:     baseURL,
		providerKey: parsed.Hostname(),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				// Провайдер не должен уводить handshake редиректом.
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

func (c *HTTPProviderClient) BaseURL() string     { return c.baseURL }
func (c *HTTPProviderClient) ProviderKey() string { return c.providerKey }

type handshakeRequest struct {
	Service   string `json:"service"`
	SessionID string `json:"sessionId"`
}

type handshakeResponse struct {
	ServiceID string `json:"serviceId"`
}

func (c *HTTPProviderClient) StartHandshake(ctx context.Context, callbackURL, sessionID string) (string, error) {
	body, err := json.Marshal(handshakeRequest{Service: callbackURL, SessionID: sessionID})
	if err != nil {
		return "", fmt.Errorf("failed to encode handshake request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/QuickLogin", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create handshake request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: provider unreachable: %v", apperrors.ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("%w: provider handshake status=%d body=%s", apperrors.ErrUpstreamFailure, resp.StatusCode, string(respBody))
	}

	var payload handshakeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: invalid provider handshake response: %v", apperrors.ErrUpstreamFailure, err)
	}
	if payload.ServiceID == "" {
		return "", fmt.Errorf("%w: provider handshake response missing serviceId", apperrors.ErrUpstreamFailure)
	}
	return payload.ServiceID, nil
}
