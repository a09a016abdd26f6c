package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/syncbridge/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// HMAC-SHA256 over timestamp + "." + body
// ---------------------------------------------------------------------------

// HMACSHA256Verifier accepts either a "sha256=<hex>" signature header paired
// with a timestamp header, or a combined "t=<ts>,v1=<hex>" header.
type HMACSHA256Verifier struct {
	secret          []byte
	signatureHeader string
	timestampHeader string
	tolerance       time.Duration
	now             func() time.Time
}

// Strategy returns StrategyHMACSHA256
func (v *HMACSHA256Verifier) Strategy() Strategy { return StrategyHMACSHA256 }

// Verify checks the signature and the timestamp tolerance
func (v *HMACSHA256Verifier) Verify(req *Request) error {
	header := strings.TrimSpace(req.Header.Get(v.signatureHeader))
	if header == "" {
		return ErrMissingSignature
	}

	timestamp, signatures := parseSignatureHeader(header)
	if timestamp == "" {
		timestamp = strings.TrimSpace(req.Header.Get(v.timestampHeader))
	}
	if timestamp == "" {
		return ErrMissingTimestamp
	}
	if len(signatures) == 0 {
		return ErrMissingSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrMissingTimestamp, timestamp)
	}
	skew := v.now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.tolerance {
		return ErrTimestampTolerance
	}

	expected := SignHMACSHA256(v.secret, timestamp, req.Body)
	for _, sig := range signatures {
		if hmac.Equal([]byte(strings.ToLower(sig)), []byte(expected)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// parseSignatureHeader splits "t=<ts>,v1=<hex>[,v1=<hex>]" or "sha256=<hex>"
func parseSignatureHeader(header string) (timestamp string, signatures []string) {
	for part := range strings.SplitSeq(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1", "sha256":
			signatures = append(signatures, value)
		}
	}
	return timestamp, signatures
}

// SignHMACSHA256 returns the hex signature of timestamp + "." + body
func SignHMACSHA256(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ---------------------------------------------------------------------------
// HMAC-SHA1 over URL + sorted form params
// ---------------------------------------------------------------------------

// HMACSHA1URLVerifier verifies a base64 HMAC-SHA1 of the full request URL
// followed by each form param key and value in key order.
// NOTE: SHA1 is fixed by the sender's signing scheme.
type HMACSHA1URLVerifier struct {
	secret []byte
	header string
}

// Strategy returns StrategyHMACSHA1URL
func (v *HMACSHA1URLVerifier) Strategy() Strategy { return StrategyHMACSHA1URL }

// Verify checks the signature header
func (v *HMACSHA1URLVerifier) Verify(req *Request) error {
	sig := strings.TrimSpace(req.Header.Get(v.header))
	if sig == "" {
		return ErrMissingSignature
	}
	if req.URL == nil {
		return ErrInvalidSignature
	}

	params := make(map[string]string, len(req.Form))
	for k, vals := range req.Form {
		if len(vals) > 0 {
			params[k] = vals[0]
		}
	}
	expected := SignHMACSHA1URL(v.secret, req.URL.String(), params)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}

// SignHMACSHA1URL returns the base64 signature of url + k1v1k2v2...
func SignHMACSHA1URL(secret []byte, fullURL string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var builder strings.Builder
	builder.WriteString(fullURL)
	for _, k := range keys {
		builder.WriteString(k)
		builder.WriteString(params[k])
	}

	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write([]byte(builder.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ---------------------------------------------------------------------------
// Query token
// ---------------------------------------------------------------------------

// QueryTokenVerifier compares ?token= against a shared secret
type QueryTokenVerifier struct {
	token []byte
}

// Strategy returns StrategyQueryToken
func (v *QueryTokenVerifier) Strategy() Strategy { return StrategyQueryToken }

// Verify checks the token query param
func (v *QueryTokenVerifier) Verify(req *Request) error {
	if req.URL == nil {
		return ErrMissingSignature
	}
	got := req.URL.Query().Get("token")
	if got == "" {
		return ErrMissingSignature
	}
	if subtle.ConstantTimeCompare([]byte(got), v.token) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

// ---------------------------------------------------------------------------
// Insecure
// ---------------------------------------------------------------------------

// InsecureVerifier accepts every delivery. It is used when no secret is
// configured and warns on every request.
type InsecureVerifier struct {
	provider integration.Provider
	logger   *zap.Logger
}

// NewInsecureVerifier creates an InsecureVerifier and logs a warning
func NewInsecureVerifier(provider integration.Provider, logger *zap.Logger) *InsecureVerifier {
	logger.Warn("webhook signature verification disabled; no secret configured",
		zap.String("provider", string(provider)))
	return &InsecureVerifier{provider: provider, logger: logger}
}

// Strategy returns StrategyInsecure
func (v *InsecureVerifier) Strategy() Strategy { return StrategyInsecure }

// Verify accepts the delivery
func (v *InsecureVerifier) Verify(*Request) error {
	v.logger.Warn("accepting unverified webhook delivery", zap.String("provider", string(v.provider)))
	return nil
}

var (
	_ Verifier = (*HMACSHA256Verifier)(nil)
	_ Verifier = (*HMACSHA1URLVerifier)(nil)
	_ Verifier = (*QueryTokenVerifier)(nil)
	_ Verifier = (*InsecureVerifier)(nil)
)
