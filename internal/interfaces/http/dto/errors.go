package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	ErrCodeUnknown  = "ERR_UNKNOWN"
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation and input error codes
const (
	ErrCodeValidation      = "ERR_VALIDATION"
	ErrCodeBadRequest      = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput    = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON     = "ERR_INVALID_JSON"
	ErrCodePayloadTooLarge = "ERR_PAYLOAD_TOO_LARGE"
	// ErrCodeMalformedPayload is a webhook body that fails parsing or schema validation
	ErrCodeMalformedPayload = "ERR_MALFORMED_PAYLOAD"
)

// Authentication error codes
const (
	ErrCodeUnauthorized     = "ERR_UNAUTHORIZED"
	ErrCodeForbidden        = "ERR_FORBIDDEN"
	ErrCodeSignatureInvalid = "ERR_SIGNATURE_INVALID"
)

// Resource error codes
const (
	ErrCodeNotFound      = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	ErrCodeConflict      = "ERR_CONFLICT"
	ErrCodeGone          = "ERR_GONE"
)

// Business rule error codes
const (
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	ErrCodeCircuitOpen  = "ERR_CIRCUIT_OPEN"
)

// Dependency error codes
const (
	ErrCodeUnavailable = "ERR_SERVICE_UNAVAILABLE"
	ErrCodeBadGateway  = "ERR_BAD_GATEWAY"
	ErrCodeTimeout     = "ERR_TIMEOUT"
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeValidation:       http.StatusBadRequest,
	ErrCodeBadRequest:       http.StatusBadRequest,
	ErrCodeInvalidInput:     http.StatusBadRequest,
	ErrCodeInvalidJSON:      http.StatusBadRequest,
	ErrCodeMalformedPayload: http.StatusBadRequest,
	ErrCodePayloadTooLarge:  http.StatusRequestEntityTooLarge,

	ErrCodeUnauthorized:     http.StatusUnauthorized,
	ErrCodeSignatureInvalid: http.StatusUnauthorized,
	ErrCodeForbidden:        http.StatusForbidden,

	ErrCodeNotFound:      http.StatusNotFound,
	ErrCodeAlreadyExists: http.StatusConflict,
	ErrCodeConflict:      http.StatusConflict,
	ErrCodeGone:          http.StatusGone,

	ErrCodeInvalidState: http.StatusUnprocessableEntity,
	ErrCodeCircuitOpen:  http.StatusUnprocessableEntity,

	ErrCodeUnavailable: http.StatusServiceUnavailable,
	ErrCodeBadGateway:  http.StatusBadGateway,
	ErrCodeTimeout:     http.StatusGatewayTimeout,
	ErrCodeRateLimited: http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// LegacyErrorCodeMapping maps shared.DomainError codes to API error codes
var LegacyErrorCodeMapping = map[string]string{
	"NOT_FOUND":           ErrCodeNotFound,
	"ALREADY_EXISTS":      ErrCodeAlreadyExists,
	"INVALID_INPUT":       ErrCodeInvalidInput,
	"CONFLICT":            ErrCodeConflict,
	"INVALID_STATE":       ErrCodeInvalidState,
	"UNAUTHORIZED":        ErrCodeUnauthorized,
	"SERVICE_UNAVAILABLE": ErrCodeUnavailable,
	"BAD_GATEWAY":         ErrCodeBadGateway,
	"TIMEOUT":             ErrCodeTimeout,
	"VALIDATION_ERROR":    ErrCodeValidation,
	"INTERNAL_ERROR":      ErrCodeInternal,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Codes already in the API format are returned as-is.
func NormalizeErrorCode(code string) string {
	if newCode, ok := LegacyErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}
