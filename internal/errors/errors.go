package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/memes-airdrop/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryConfiguration represents a missing or malformed setting (e.g. signing key)
	CategoryConfiguration ErrorCategory = "configuration"
	// CategorySelection represents a failure querying eligible participants
	CategorySelection ErrorCategory = "selection"
	// CategoryResolution represents a failure resolving a sponsor address
	CategoryResolution ErrorCategory = "resolution"
	// CategorySubmission represents a send error, revert, failed receipt or timeout
	CategorySubmission ErrorCategory = "submission"
	// CategoryMarking represents a failure persisting the exported flag
	CategoryMarking ErrorCategory = "marking"
	// CategoryValidation represents invalid input
	CategoryValidation ErrorCategory = "validation"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict represents conflict errors
	CategoryConflict ErrorCategory = "conflict"
	// CategoryDatabase represents database errors outside the export cycle
	CategoryDatabase ErrorCategory = "database"
	// CategoryProvider represents RPC provider errors
	CategoryProvider ErrorCategory = "provider"
	// CategorySystem represents unexpected errors
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

// Export cycle errors

// NewConfigurationError creates a configuration error
func NewConfigurationError(setting string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConfiguration,
		StatusCode: http.StatusServiceUnavailable,
		Code:       "CONFIGURATION_ERROR",
		Message:    fmt.Sprintf("invalid or missing configuration: %s", setting),
		Cause:      cause,
		Details: map[string]interface{}{
			"setting": setting,
		},
	}
}

// NewSelectionError creates an eligibility selection error
func NewSelectionError(cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySelection,
		StatusCode: http.StatusInternalServerError,
		Code:       "SELECTION_ERROR",
		Message:    "failed to select eligible participants",
		Cause:      cause,
	}
}

// NewResolutionError creates a sponsor resolution error
func NewResolutionError(referredBy string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryResolution,
		StatusCode: http.StatusInternalServerError,
		Code:       "RESOLUTION_ERROR",
		Message:    fmt.Sprintf("failed to resolve sponsor for %q", referredBy),
		Cause:      cause,
		Details: map[string]interface{}{
			"referredBy": referredBy,
		},
	}
}

// NewSubmissionError creates a batch submission error
func NewSubmissionError(reason string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySubmission,
		StatusCode: http.StatusBadGateway,
		Code:       "SUBMISSION_ERROR",
		Message:    fmt.Sprintf("batch submission failed: %s", reason),
		Cause:      cause,
		Details: map[string]interface{}{
			"reason": reason,
		},
	}
}

// NewSubmissionTimeoutError creates a confirmation timeout error
func NewSubmissionTimeoutError(txHash string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySubmission,
		StatusCode: http.StatusGatewayTimeout,
		Code:       "SUBMISSION_TIMEOUT",
		Message:    fmt.Sprintf("timed out waiting for receipt of %s", txHash),
		Cause:      cause,
		Details: map[string]interface{}{
			"txHash": txHash,
		},
	}
}

// NewMarkingError creates an export marking error
func NewMarkingError(walletAddress string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryMarking,
		StatusCode: http.StatusInternalServerError,
		Code:       "MARKING_ERROR",
		Message:    fmt.Sprintf("failed to mark %s exported", walletAddress),
		Cause:      cause,
		Details: map[string]interface{}{
			"walletAddress": walletAddress,
		},
	}
}

// User Input Errors (4xx)

// NewInvalidAddressError creates an invalid address error
func NewInvalidAddressError(address string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_ADDRESS",
		Message:    fmt.Sprintf("invalid address format: %s", address),
		Details: map[string]interface{}{
			"address": address,
		},
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

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewProviderError creates an RPC provider error
func NewProviderError(provider string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryProvider,
		StatusCode: http.StatusBadGateway,
		Code:       "PROVIDER_ERROR",
		Message:    fmt.Sprintf("rpc provider error: %s", provider),
		Cause:      cause,
		Details: map[string]interface{}{
			"provider": provider,
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

// categorizeServiceError categorizes a ServiceError
func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	switch err.Code {
	case "INVALID_ADDRESS", "INVALID_PARAMETER":
		return &CategorizedError{
			Category:   CategoryValidation,
			StatusCode: http.StatusBadRequest,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	case "PARTICIPANT_NOT_FOUND", "NOT_FOUND":
		return &CategorizedError{
			Category:   CategoryNotFound,
			StatusCode: http.StatusNotFound,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	case "CONFLICT", "PARTICIPANT_EXISTS", "REFERRER_ALREADY_SET":
		return &CategorizedError{
			Category:   CategoryConflict,
			StatusCode: http.StatusConflict,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	default:
		return &CategorizedError{
			Category:   CategorySystem,
			StatusCode: http.StatusInternalServerError,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	}
}

// CategoryOf returns the category of err, or CategorySystem for uncategorized errors
func CategoryOf(err error) ErrorCategory {
	if catErr := Categorize(err); catErr != nil {
		return catErr.Category
	}
	return ""
}

// Is reports whether err belongs to category
func Is(err error, category ErrorCategory) bool {
	return err != nil && CategoryOf(err) == category
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable determines if an error is transient.
// Configuration and validation errors repeat identically until someone intervenes.
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryProvider, CategoryDatabase, CategorySelection, CategoryResolution, CategoryMarking:
		return true
	case CategorySubmission:
		return catErr.Code == "SUBMISSION_TIMEOUT" || catErr.StatusCode == http.StatusBadGateway
	default:
		return false
	}
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}
