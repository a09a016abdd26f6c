package webhook

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/syncbridge/backend/internal/domain/integration"
)

// Strategy names a signature verification scheme
type Strategy string

const (
	// StrategyHMACSHA256 signs timestamp + "." + body with HMAC-SHA256
	StrategyHMACSHA256 Strategy = "hmac_sha256"
	// StrategyHMACSHA1URL signs the full URL plus sorted form params with HMAC-SHA1
	StrategyHMACSHA1URL Strategy = "hmac_sha1_url"
	// StrategyQueryToken compares a shared secret passed as ?token=
	StrategyQueryToken Strategy = "query_token"
	// StrategyInsecure skips verification
	StrategyInsecure Strategy = "insecure"
)

// DefaultTolerance is the accepted clock skew for signed timestamps
const DefaultTolerance = 5 * time.Minute

// Verification errors. All of them mean the delivery is rejected with 401.
var (
	ErrMissingSignature   = errors.New("webhook: signature missing")
	ErrInvalidSignature   = errors.New("webhook: signature mismatch")
	ErrMissingTimestamp   = errors.New("webhook: timestamp missing")
	ErrTimestampTolerance = errors.New("webhook: timestamp outside tolerance")
	ErrUnknownStrategy    = errors.New("webhook: unknown verification strategy")
)

// IsVerificationError reports whether err rejects the delivery as unauthenticated
func IsVerificationError(err error) bool {
	return errors.Is(err, ErrMissingSignature) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrMissingTimestamp) ||
		errors.Is(err, ErrTimestampTolerance)
}

// Request is the part of an inbound delivery a verifier looks at
type Request struct {
	Header http.Header
	// URL is the absolute URL the sender posted to
	URL *url.URL
	// Form holds the parsed form params of url-encoded deliveries
	Form url.Values
	Body []byte
}

// Verifier authenticates webhook deliveries of one provider
type Verifier interface {
	Verify(req *Request) error
	Strategy() Strategy
}

// Config configures the verifier of one provider
type Config struct {
	Strategy Strategy
	Secret   string
	// SignatureHeader overrides the default <Provider>-Signature header
	SignatureHeader string
	// TimestampHeader overrides the default <Provider>-Timestamp header
	TimestampHeader string
	Tolerance       time.Duration
}

// NewVerifier builds the verifier configured for provider. Without a secret
// verification is skipped and an InsecureVerifier is returned.
func NewVerifier(provider integration.Provider, cfg Config, logger *zap.Logger) (Verifier, error) {
	if cfg.Secret == "" || cfg.Strategy == StrategyInsecure {
		return NewInsecureVerifier(provider, logger), nil
	}

	prefix := headerPrefix(provider)
	switch cfg.Strategy {
	case StrategyHMACSHA256, "":
		v := &HMACSHA256Verifier{
			secret:          []byte(cfg.Secret),
			signatureHeader: cfg.SignatureHeader,
			timestampHeader: cfg.TimestampHeader,
			tolerance:       cfg.Tolerance,
			now:             time.Now,
		}
		if v.signatureHeader == "" {
			v.signatureHeader = prefix + "-Signature"
		}
		if v.timestampHeader == "" {
			v.timestampHeader = prefix + "-Timestamp"
		}
		if v.tolerance <= 0 {
			v.tolerance = DefaultTolerance
		}
		return v, nil
	case StrategyHMACSHA1URL:
		header := cfg.SignatureHeader
		if header == "" {
			header = "X-Signature"
		}
		return &HMACSHA1URLVerifier{secret: []byte(cfg.Secret), header: header}, nil
	case StrategyQueryToken:
		return &QueryTokenVerifier{token: []byte(cfg.Secret)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, cfg.Strategy)
	}
}

// headerPrefix turns a provider code into a header prefix, order_api -> Order-Api
func headerPrefix(provider integration.Provider) string {
	words := strings.Split(string(provider), "_")
	caser := cases.Title(language.Und)
	for i, w := range words {
		words[i] = caser.String(w)
	}
	return strings.Join(words, "-")
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// Verifiers maps providers to their verifier
type Verifiers struct {
	byProvider map[integration.Provider]Verifier
}

// NewVerifiers builds a verifier for every configured provider
func NewVerifiers(configs map[integration.Provider]Config, logger *zap.Logger) (*Verifiers, error) {
	vs := &Verifiers{byProvider: make(map[integration.Provider]Verifier, len(configs))}
	for provider, cfg := range configs {
		v, err := NewVerifier(provider, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", provider, err)
		}
		vs.byProvider[provider] = v
	}
	return vs, nil
}

// For returns the verifier of provider
func (v *Verifiers) For(provider integration.Provider) (Verifier, error) {
	verifier, ok := v.byProvider[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", integration.ErrProviderNotConfigured, provider)
	}
	return verifier, nil
}
