package remote

import (
	"errors"
	"strings"
	"time"
)

// OrderAPIConfig holds configuration for the order management API
type OrderAPIConfig struct {
	// BaseURL is the REST API root, e.g. https://api.example.com
	BaseURL string
	// TokenURL is the OAuth token endpoint (defaults to BaseURL + /oauth/token)
	TokenURL string
	// ClientID and ClientSecret are the OAuth client credentials
	ClientID     string
	ClientSecret string
	// AccountID is the remote account this instance syncs
	AccountID string
	// Timeout is the HTTP request timeout
	Timeout time.Duration
}

// Errors for order API configuration
var (
	ErrOrderAPIConfigMissingBaseURL      = errors.New("order_api: base URL is required")
	ErrOrderAPIConfigMissingClientID     = errors.New("order_api: client ID is required")
	ErrOrderAPIConfigMissingClientSecret = errors.New("order_api: client secret is required")
	ErrOrderAPIConfigMissingAccountID    = errors.New("order_api: account ID is required")
)

// Validate validates the configuration and fills defaults
func (c *OrderAPIConfig) Validate() error {
	if c.BaseURL == "" {
		return ErrOrderAPIConfigMissingBaseURL
	}
	if c.ClientID == "" {
		return ErrOrderAPIConfigMissingClientID
	}
	if c.ClientSecret == "" {
		return ErrOrderAPIConfigMissingClientSecret
	}
	if c.AccountID == "" {
		return ErrOrderAPIConfigMissingAccountID
	}
	if c.TokenURL == "" {
		c.TokenURL = strings.TrimRight(c.BaseURL, "/") + "/oauth/token"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return nil
}
