package dto

import "net/http"

// Error codes returned in the error envelope. Domain errors keep the code
// they were raised with; the transport layer adds the codes it produces on
// its own (authentication, rate limiting, malformed bodies).

// General error codes
const (
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "INTERNAL_ERROR"
)

// Input error codes
const (
	// ErrCodeValidation is used for invalid request fields and domain validation failures
	ErrCodeValidation = "VALIDATION_ERROR"
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "BAD_REQUEST"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "INVALID_JSON"
	// ErrCodeRequestTooLarge is used when the body exceeds the configured limit
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"

	ErrCodeInvalidDocumentType = "INVALID_DOCUMENT_TYPE"
	ErrCodeInvalidResetPolicy  = "INVALID_RESET_POLICY"
)

// Authentication error codes
const (
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeTokenExpired  = "TOKEN_EXPIRED"
	ErrCodeTokenInvalid  = "INVALID_TOKEN"
	ErrCodeTenantMissing = "TENANT_REQUIRED"
)

// Resource error codes
const (
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeAlreadyExists       = "ALREADY_EXISTS"
	ErrCodeConcurrencyConflict = "CONCURRENT_MODIFICATION"
	ErrCodeDuplicateRequest    = "DUPLICATE_REQUEST"
	ErrCodeIdempotencyReuse    = "IDEMPOTENCY_KEY_REUSED"
)

// Business rule error codes
const (
	ErrCodeInvalidState      = "INVALID_STATE"
	ErrCodeAmountMismatch    = "AMOUNT_MISMATCH"
	ErrCodeAlreadyMatched    = "ALREADY_MATCHED"
	ErrCodeSessionIncomplete = "SESSION_INCOMPLETE"
	ErrCodeCounterConflict   = "CONCURRENT_COUNTER_CONFLICT"
	ErrCodeClientRequired    = "CLIENT_REQUIRED"
	ErrCodeResetNotAllowed   = "RESET_NOT_ALLOWED"
)

// Statement import error codes
const (
	ErrCodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	ErrCodeFileTooLarge      = "FILE_TOO_LARGE"
)

// Rate limiting error codes
const (
	ErrCodeRateLimited = "RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal: http.StatusInternalServerError,

	// Input errors -> 400 Bad Request
	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeClientRequired:  http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	ErrCodeInvalidDocumentType: http.StatusBadRequest,
	ErrCodeInvalidResetPolicy:  http.StatusBadRequest,

	// Auth errors
	ErrCodeUnauthorized:  http.StatusUnauthorized,
	ErrCodeTokenExpired:  http.StatusUnauthorized,
	ErrCodeTokenInvalid:  http.StatusUnauthorized,
	ErrCodeTenantMissing: http.StatusUnauthorized,
	ErrCodeForbidden:     http.StatusForbidden,

	// Resource errors
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeDuplicateRequest:    http.StatusConflict,
	ErrCodeAlreadyMatched:      http.StatusConflict,
	ErrCodeCounterConflict:     http.StatusConflict,

	// Business rule errors -> 422 Unprocessable Entity
	ErrCodeInvalidState:      http.StatusUnprocessableEntity,
	ErrCodeAmountMismatch:    http.StatusUnprocessableEntity,
	ErrCodeSessionIncomplete: http.StatusUnprocessableEntity,
	ErrCodeResetNotAllowed:   http.StatusUnprocessableEntity,
	ErrCodeIdempotencyReuse:  http.StatusUnprocessableEntity,

	// Statement files
	ErrCodeUnsupportedFormat: http.StatusUnsupportedMediaType,
	ErrCodeFileTooLarge:      http.StatusRequestEntityTooLarge,

	// Rate limiting -> 429 Too Many Requests
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

// LegacyErrorCodeMapping maps older spellings still raised by some callers
// to the codes clients see
var LegacyErrorCodeMapping = map[string]string{
	"INVALID_INPUT":        ErrCodeValidation,
	"CONCURRENCY_CONFLICT": ErrCodeConcurrencyConflict,
	"SCOPE_NOT_FOUND":      ErrCodeNotFound,
	"INTERNAL":             ErrCodeInternal,
}

// NormalizeErrorCode converts a legacy error code to the standardized format
// If the code is already in the new format or unknown, returns it as-is
func NormalizeErrorCode(code string) string {
	if newCode, ok := LegacyErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}
