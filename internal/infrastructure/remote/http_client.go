package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/syncbridge/backend/internal/domain/integration"
)

// maxResponseSize is the maximum allowed response size from a remote API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// authorizer decorates an outgoing request with credentials
type authorizer interface {
	authorize(ctx context.Context, req *http.Request) error
	// invalidate drops cached credentials after the remote rejected them
	invalidate()
}

// apiClient is the JSON-over-HTTP transport shared by the adapters
type apiClient struct {
	provider   integration.Provider
	baseURL    string
	httpClient *http.Client
	auth       authorizer
	userAgent  string
}

func newAPIClient(provider integration.Provider, baseURL string, timeout time.Duration, auth authorizer) *apiClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &apiClient{
		provider:   provider,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		auth:       auth,
		userAgent:  "syncbridge/1.0",
	}
}

// do sends a request and decodes a JSON response into out (if non-nil).
// Errors are *integration.SyncError values classified by HTTP status.
func (c *apiClient) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	raw, err := c.doRaw(ctx, op, method, path, query, body)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return integration.NewSyncError(integration.ErrorClassPermanent, op,
			fmt.Errorf("%w: %v", integration.ErrRemoteInvalidResponse, err))
	}
	return nil
}

func (c *apiClient) doRaw(ctx context.Context, op, method, path string, query url.Values, body any) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to encode request: %w", c.provider, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", c.provider, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth != nil {
		if err := c.auth.authorize(ctx, req); err != nil {
			return nil, err
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, integration.NewSyncError(integration.ErrorClassTransient, op,
			fmt.Errorf("%w: %v", integration.ErrRemoteUnavailable, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, integration.NewSyncError(integration.ErrorClassTransient, op,
			fmt.Errorf("%w: failed to read response: %v", integration.ErrRemoteUnavailable, err))
	}

	if resp.StatusCode >= 400 {
		if (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) && c.auth != nil {
			c.auth.invalidate()
		}
		return nil, integration.NewHTTPError(op, resp.StatusCode, truncateBody(raw))
	}
	return raw, nil
}

func truncateBody(raw []byte) string {
	const limit = 512
	body := strings.ToValidUTF8(string(raw), "\uFFFD")
	if len(body) > limit {
		return integration.TruncateUTF8(body, limit) + "..."
	}
	return body
}

// ---------------------------------------------------------------------------
// Authorizers
// ---------------------------------------------------------------------------

// bearerAuth sends a token obtained from a TokenSource
type bearerAuth struct {
	tokens *TokenSource
}

func (a bearerAuth) authorize(ctx context.Context, req *http.Request) error {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (a bearerAuth) invalidate() { a.tokens.Invalidate() }

// staticBearerAuth sends a long-lived bearer token
type staticBearerAuth struct {
	token string
}

func (a staticBearerAuth) authorize(_ context.Context, req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+a.token)
	return nil
}

func (staticBearerAuth) invalidate() {}

// headerKeyAuth sends an API key in a fixed header
type headerKeyAuth struct {
	header string
	key    string
}

func (a headerKeyAuth) authorize(_ context.Context, req *http.Request) error {
	req.Header.Set(a.header, a.key)
	return nil
}

func (headerKeyAuth) invalidate() {}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// parseTime parses RFC 3339 timestamps, tolerating empty values
func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
