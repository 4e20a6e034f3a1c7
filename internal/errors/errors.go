package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/slot-automator/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryValidation represents rejected user input (4xx)
	CategoryValidation ErrorCategory = "validation"
	// CategoryAuthentication represents a wrong passphrase or an undecryptable blob
	CategoryAuthentication ErrorCategory = "authentication"
	// CategorySubmission represents a relay JSON-RPC error for a broadcast transaction
	CategorySubmission ErrorCategory = "submission"
	// CategoryNetwork represents a transport failure talking to the relay or oracle
	CategoryNetwork ErrorCategory = "network"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict represents conflict errors
	CategoryConflict ErrorCategory = "conflict"
	// CategoryLocked represents an operation that needs the wallet collection unlocked
	CategoryLocked ErrorCategory = "locked"
	// CategoryRateLimit represents rate limit errors
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// User Errors (4xx)

// NewValidationError creates an error for input that failed validation
func NewValidationError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "VALIDATION_FAILED",
		Message:    message,
	}
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewAuthenticationError creates an error for a passphrase that does not open the blob
func NewAuthenticationError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthentication,
		StatusCode: http.StatusUnauthorized,
		Code:       "AUTHENTICATION_FAILED",
		Message:    message,
		Cause:      cause,
	}
}

// NewLockedError is returned when the wallet collection has not been unlocked
func NewLockedError() *CategorizedError {
	return &CategorizedError{
		Category:   CategoryLocked,
		StatusCode: http.StatusLocked,
		Code:       "WALLETS_LOCKED",
		Message:    "wallet collection is locked",
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewConflictError creates a conflict error
func NewConflictError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       "CONFLICT",
		Message:    message,
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(retryAfter int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "rate limit exceeded",
		Details: map[string]interface{}{
			"retryAfter": retryAfter,
		},
	}
}

// Upstream Errors

// NewSubmissionError wraps the message of a JSON-RPC error object returned by the relay
func NewSubmissionError(message string, code int) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySubmission,
		StatusCode: http.StatusBadGateway,
		Code:       "SUBMISSION_REJECTED",
		Message:    message,
		Details: map[string]interface{}{
			"rpcCode": code,
		},
	}
}

// NewNetworkError creates an error for a failed request to an upstream service
func NewNetworkError(service string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNetwork,
		StatusCode: http.StatusBadGateway,
		Code:       "NETWORK_ERROR",
		Message:    fmt.Sprintf("request to %s failed", service),
		Cause:      cause,
		Details: map[string]interface{}{
			"service": service,
		},
	}
}

// NewNetworkTimeoutError creates an error for an upstream request that timed out
func NewNetworkTimeoutError(service string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNetwork,
		StatusCode: http.StatusGatewayTimeout,
		Code:       "NETWORK_TIMEOUT",
		Message:    fmt.Sprintf("request to %s timed out", service),
		Cause:      cause,
		Details: map[string]interface{}{
			"service": service,
		},
	}
}

// System Errors (5xx)

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// NewStorageError creates an error for a failed read or write of persisted state
func NewStorageError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "STORAGE_ERROR",
		Message:    fmt.Sprintf("storage error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewServiceUnavailableError creates a service unavailable error
func NewServiceUnavailableError(service string) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusServiceUnavailable,
		Code:       "SERVICE_UNAVAILABLE",
		Message:    fmt.Sprintf("service unavailable: %s", service),
		Details: map[string]interface{}{
			"service": service,
		},
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if stderrors.As(err, &svcErr) {
		return categorizeServiceError(svcErr)
	}

	return NewInternalError("unexpected error", err)
}

// categorizeServiceError categorizes a ServiceError by its code
func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	catErr := &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       err.Code,
		Message:    err.Message,
		Details:    err.Details,
	}
	switch err.Code {
	case "VALIDATION_FAILED", "INVALID_PARAMETER":
		catErr.Category, catErr.StatusCode = CategoryValidation, http.StatusBadRequest
	case "AUTHENTICATION_FAILED":
		catErr.Category, catErr.StatusCode = CategoryAuthentication, http.StatusUnauthorized
	case "NOT_FOUND":
		catErr.Category, catErr.StatusCode = CategoryNotFound, http.StatusNotFound
	case "CONFLICT":
		catErr.Category, catErr.StatusCode = CategoryConflict, http.StatusConflict
	}
	return catErr
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

func isCategory(err error, category ErrorCategory) bool {
	var catErr *CategorizedError
	return stderrors.As(err, &catErr) && catErr.Category == category
}

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool { return isCategory(err, CategoryValidation) }

// IsAuthentication reports whether err is an authentication error
func IsAuthentication(err error) bool { return isCategory(err, CategoryAuthentication) }

// IsSubmission reports whether err is a relay rejection
func IsSubmission(err error) bool { return isCategory(err, CategorySubmission) }

// IsNetwork reports whether err is a transport failure
func IsNetwork(err error) bool { return isCategory(err, CategoryNetwork) }

// IsNotFound reports whether err is a not found error
func IsNotFound(err error) bool { return isCategory(err, CategoryNotFound) }

// IsConflict reports whether err is a conflict error
func IsConflict(err error) bool { return isCategory(err, CategoryConflict) }

// IsLocked reports whether err was caused by a locked wallet collection
func IsLocked(err error) bool { return isCategory(err, CategoryLocked) }

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}

// IsSystemError determines if an error is a system error (5xx)
func IsSystemError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 500
}
