package remote

import (
	"errors"
	"time"
)

// ProofAPIConfig holds configuration for the proofing GraphQL API
type ProofAPIConfig struct {
	// Endpoint is the GraphQL endpoint URL
	Endpoint string
	// Token is the static API bearer token
	Token string
	// AccountID is the remote workspace this instance syncs
	AccountID string
	Timeout   time.Duration
}

// Errors for proof API configuration
var (
	ErrProofAPIConfigMissingEndpoint  = errors.New("proof_api: endpoint is required")
	ErrProofAPIConfigMissingToken     = errors.New("proof_api: token is required")
	ErrProofAPIConfigMissingAccountID = errors.New("proof_api: account ID is required")
)

// Validate validates the configuration and fills defaults
func (c *ProofAPIConfig) Validate() error {
	if c.Endpoint == "" {
		return ErrProofAPIConfigMissingEndpoint
	}
	if c.Token == "" {
		return ErrProofAPIConfigMissingToken
	}
	if c.AccountID == "" {
		return ErrProofAPIConfigMissingAccountID
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return nil
}
