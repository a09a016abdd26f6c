package integration

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrUnknownEntityType     = errors.New("integration: unknown entity type")
	ErrUnknownProvider       = errors.New("integration: unknown provider")
	ErrProviderNotConfigured = errors.New("integration: provider not configured")
	ErrAdapterNotFound       = errors.New("integration: no remote adapter registered for entity type")
	ErrAdapterAlreadyExists  = errors.New("integration: remote adapter already registered")

	ErrEntityNotFound    = errors.New("integration: sync entity not found")
	ErrWatermarkNotFound = errors.New("integration: watermark not found")
	ErrSyncRunNotFound   = errors.New("integration: sync run not found")

	ErrRemoteNotFound        = errors.New("integration: remote entity not found")
	ErrRemoteUnavailable     = errors.New("integration: remote system unavailable")
	ErrRemoteRateLimited     = errors.New("integration: remote rate limit exceeded")
	ErrRemoteRequestFailed   = errors.New("integration: remote request rejected")
	ErrRemoteAuthFailed      = errors.New("integration: remote authentication failed")
	ErrRemoteInvalidResponse = errors.New("integration: invalid response from remote system")
	ErrPushNotSupported      = errors.New("integration: push not supported for entity type")

	ErrValidationFailed = errors.New("integration: record failed validation")
	ErrMissingParent    = errors.New("integration: referenced parent entity does not exist locally")
	ErrInvalidStatus    = errors.New("integration: status is not valid for entity type")
	ErrCircuitOpen      = errors.New("integration: entity disabled after repeated failures")
	ErrEntityGone       = errors.New("integration: entity no longer exists remotely")

	ErrSyncAlreadyRunning = errors.New("integration: sync already running for entity type and account")
	ErrInvalidCursor      = errors.New("integration: invalid cursor")

	ErrWebhookSignatureInvalid = errors.New("integration: webhook signature invalid")
	ErrWebhookMalformed        = errors.New("integration: webhook payload malformed")
	ErrWebhookUnsupportedEvent = errors.New("integration: webhook event type not supported")
)

// ---------------------------------------------------------------------------
// Error taxonomy
// ---------------------------------------------------------------------------

// ErrorClass is the sync failure taxonomy driving retry and circuit-breaking decisions
type ErrorClass string

const (
	// ErrorClassTransient covers network errors, timeouts, 5xx and rate limits.
	// Retried on the next scheduled pass.
	ErrorClassTransient ErrorClass = "transient"
	// ErrorClassPermanent covers 4xx rejections and validation failures.
	// The entity is marked Error and retried on the next full pass.
	ErrorClassPermanent ErrorClass = "permanent"
	// ErrorClassGone is a 404 for a previously known entity. Terminal.
	ErrorClassGone ErrorClass = "gone"
	// ErrorClassAuthentication is a credential failure. Aborts the whole run.
	ErrorClassAuthentication ErrorClass = "authentication"
	// ErrorClassCircuitOpen marks an entity skipped because it is disabled.
	ErrorClassCircuitOpen ErrorClass = "circuit_open"
)

// SyncError carries a classified failure from a remote call or a sync step
type SyncError struct {
	Class      ErrorClass
	Op         string
	StatusCode int
	Err        error
}

// NewSyncError creates a classified error
func NewSyncError(class ErrorClass, op string, err error) *SyncError {
	return &SyncError{Class: class, Op: op, Err: err}
}

// NewHTTPError classifies an HTTP failure status for the given operation
func NewHTTPError(op string, statusCode int, body string) *SyncError {
	var base error
	switch ClassifyHTTPStatus(statusCode) {
	case ErrorClassAuthentication:
		base = ErrRemoteAuthFailed
	case ErrorClassTransient:
		if statusCode == http.StatusTooManyRequests {
			base = ErrRemoteRateLimited
		} else {
			base = ErrRemoteUnavailable
		}
	default:
		if statusCode == http.StatusNotFound {
			base = ErrRemoteNotFound
		} else {
			base = ErrRemoteRequestFailed
		}
	}
	err := fmt.Errorf("%w: HTTP %d", base, statusCode)
	if body != "" {
		err = fmt.Errorf("%w: HTTP %d: %s", base, statusCode, body)
	}
	return &SyncError{
		Class:      ClassifyHTTPStatus(statusCode),
		Op:         op,
		StatusCode: statusCode,
		Err:        err,
	}
}

// Error implements the error interface
func (e *SyncError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Class, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Class, e.Err)
}

// Unwrap returns the wrapped error
func (e *SyncError) Unwrap() error {
	return e.Err
}

// ClassifyHTTPStatus maps an HTTP status code to an error class.
// 404 is reported as Permanent: only the caller knows whether the entity
// was previously seen and the failure is therefore Gone.
func ClassifyHTTPStatus(code int) ErrorClass {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrorClassAuthentication
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests:
		return ErrorClassTransient
	case code >= 500:
		return ErrorClassTransient
	case code >= 400:
		return ErrorClassPermanent
	}
	return ErrorClassTransient
}

// Classify determines the class of an arbitrary error. Unexpected errors are
// treated as Transient so they count toward the circuit breaker.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}

	var syncErr *SyncError
	if errors.As(err, &syncErr) && syncErr.Class != "" {
		return syncErr.Class
	}

	switch {
	case errors.Is(err, ErrEntityGone):
		return ErrorClassGone
	case errors.Is(err, ErrCircuitOpen):
		return ErrorClassCircuitOpen
	case errors.Is(err, ErrRemoteAuthFailed):
		return ErrorClassAuthentication
	case errors.Is(err, ErrRemoteUnavailable),
		errors.Is(err, ErrRemoteRateLimited),
		errors.Is(err, context.DeadlineExceeded):
		return ErrorClassTransient
	case errors.Is(err, ErrRemoteNotFound),
		errors.Is(err, ErrRemoteRequestFailed),
		errors.Is(err, ErrRemoteInvalidResponse),
		errors.Is(err, ErrValidationFailed),
		errors.Is(err, ErrMissingParent),
		errors.Is(err, ErrPushNotSupported):
		return ErrorClassPermanent
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassTransient
	}

	return ErrorClassTransient
}

// IsBatchFatal returns true when the error invalidates the whole run rather
// than a single entity
func IsBatchFatal(err error) bool {
	return Classify(err) == ErrorClassAuthentication
}
