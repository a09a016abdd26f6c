package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/syncbridge/backend/internal/domain/integration"
)

const (
	// tokenRefreshSkew refreshes tokens this long before they expire
	tokenRefreshSkew = 5 * time.Minute
	// defaultTokenLifetime applies when neither expires_in nor a JWT exp is present
	defaultTokenLifetime = time.Hour
)

// ErrEmptyAccessToken is returned when the token endpoint answers without a token
var ErrEmptyAccessToken = errors.New("remote: token endpoint returned no access token")

// Token is an access token with its expiry
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// valid reports whether the token can be used at now
func (t *Token) valid(now time.Time) bool {
	return t != nil && t.AccessToken != "" && now.Add(tokenRefreshSkew).Before(t.ExpiresAt)
}

// TokenFetcher obtains a fresh token from an authorization server
type TokenFetcher func(ctx context.Context) (*Token, error)

// TokenSource caches a token and refreshes it shortly before expiry.
// Concurrent callers share one in-flight refresh.
type TokenSource struct {
	fetch TokenFetcher
	group singleflight.Group
	now   func() time.Time

	mu    sync.RWMutex
	token *Token
}

// NewTokenSource creates a token source around fetch
func NewTokenSource(fetch TokenFetcher) *TokenSource {
	return &TokenSource{fetch: fetch, now: time.Now}
}

// Token returns a valid access token, refreshing it if needed
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	tok := s.token
	s.mu.RUnlock()
	if tok.valid(s.now()) {
		return tok.AccessToken, nil
	}

	ch := s.group.DoChan("token", func() (any, error) {
		// Detach from the first caller's cancellation; other waiters share this result
		fresh, err := s.fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.token = fresh
		s.mu.Unlock()
		return fresh, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(*Token).AccessToken, nil
	}
}

// Invalidate drops the cached token so the next call refreshes it
func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	s.token = nil
	s.mu.Unlock()
}

// ---------------------------------------------------------------------------
// OAuth client credentials
// ---------------------------------------------------------------------------

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// ClientCredentialsFetcher returns a TokenFetcher for the OAuth 2.0 client
// credentials grant
func ClientCredentialsFetcher(httpClient *http.Client, tokenURL, clientID, clientSecret string) TokenFetcher {
	return func(ctx context.Context) (*Token, error) {
		form := url.Values{}
		form.Set("grant_type", "client_credentials")
		form.Set("client_id", clientID)
		form.Set("client_secret", clientSecret)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, fmt.Errorf("remote: failed to create token request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")

		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, integration.NewSyncError(integration.ErrorClassTransient, "token",
				fmt.Errorf("%w: %v", integration.ErrRemoteUnavailable, err))
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return nil, integration.NewSyncError(integration.ErrorClassTransient, "token",
				fmt.Errorf("%w: %v", integration.ErrRemoteUnavailable, err))
		}
		if resp.StatusCode >= 400 {
			if resp.StatusCode == http.StatusBadRequest {
				// invalid_client and invalid_grant are credential problems
				return nil, integration.NewHTTPError("token", http.StatusUnauthorized, truncateBody(body))
			}
			return nil, integration.NewHTTPError("token", resp.StatusCode, truncateBody(body))
		}

		var tr tokenResponse
		if err := json.Unmarshal(body, &tr); err != nil {
			return nil, integration.NewSyncError(integration.ErrorClassPermanent, "token",
				fmt.Errorf("%w: %v", integration.ErrRemoteInvalidResponse, err))
		}
		if tr.AccessToken == "" {
			return nil, integration.NewSyncError(integration.ErrorClassAuthentication, "token", ErrEmptyAccessToken)
		}

		return &Token{
			AccessToken: tr.AccessToken,
			ExpiresAt:   tokenExpiry(tr.AccessToken, tr.ExpiresIn, time.Now()),
		}, nil
	}
}

// tokenExpiry prefers expires_in, then the JWT exp claim, then a default lifetime
func tokenExpiry(accessToken string, expiresIn int64, now time.Time) time.Time {
	if expiresIn > 0 {
		return now.Add(time.Duration(expiresIn) * time.Second)
	}
	if exp, ok := jwtExpiry(accessToken); ok {
		return exp
	}
	return now.Add(defaultTokenLifetime)
}

// jwtExpiry reads the exp claim without verifying the signature; the token
// is opaque to us and only its lifetime matters
func jwtExpiry(accessToken string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
