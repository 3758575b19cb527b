// Package errors provides standardized error handling for the tutor HTTP API.
package errors

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInvalidQuestion      ErrorCode = "INVALID_QUESTION"
	ErrCodeImageTooLarge        ErrorCode = "IMAGE_TOO_LARGE"
	ErrCodeUnsupportedImageType ErrorCode = "UNSUPPORTED_IMAGE_TYPE"

	ErrCodeAgentUnavailable ErrorCode = "AGENT_UNAVAILABLE"
	ErrCodeAgentTimeout     ErrorCode = "AGENT_TIMEOUT"
	ErrCodeFallbackFailed   ErrorCode = "FALLBACK_FAILED"

	ErrCodeSessionNotFound    ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeHistoryStoreFailed ErrorCode = "HISTORY_STORE_FAILED"

	ErrCodeRateLimited   ErrorCode = "RATE_LIMITED"
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// WithMetadata attaches a metadata entry and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. Error Constructors
// ==========================

// NewInvalidQuestionError creates a non-retryable validation error.
func NewInvalidQuestionError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidQuestion,
		Message:   "Question must contain text or an image",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewImageTooLargeError creates a non-retryable upload error.
func NewImageTooLargeError(size, limit int64) *StandardError {
	return &StandardError{
		Code:      ErrCodeImageTooLarge,
		Message:   "Uploaded image exceeds the size limit",
		Details:   fmt.Sprintf("size: %d bytes, limit: %d bytes", size, limit),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnsupportedImageTypeError creates a non-retryable upload error.
func NewUnsupportedImageTypeError(contentType string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnsupportedImageType,
		Message:   "Uploaded file is not a supported image",
		Details:   fmt.Sprintf("contentType: %s", contentType),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAgentUnavailableError reports that every agent endpoint candidate failed.
func NewAgentUnavailableError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeAgentUnavailable,
		Message:   fmt.Sprintf("Agent operation '%s' failed on every endpoint", operation),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewAgentTimeoutError creates a retryable timeout error.
func NewAgentTimeoutError(operation string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAgentTimeout,
		Message:   "Agent call timed out",
		Details:   fmt.Sprintf("operation: %s", operation),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewFallbackFailedError reports that the plain chat-completion path failed too.
func NewFallbackFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeFallbackFailed,
		Message:   "Chat completion failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionNotFoundError creates a non-retryable lookup error.
func NewSessionNotFoundError(sessionID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionNotFound,
		Message:   "Session not found",
		Details:   fmt.Sprintf("sessionId: %s", sessionID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewHistoryStoreFailedError creates a retryable storage error.
func NewHistoryStoreFailedError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeHistoryStoreFailed,
		Message:   "Conversation history store error",
		Details:   fmt.Sprintf("op: %s, error: %s", op, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewRateLimitedError creates a retryable throttling error.
func NewRateLimitedError(client string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRateLimited,
		Message:   "Too many requests",
		Details:   fmt.Sprintf("client: %s", client),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. HTTP Mapping
// ==========================

// HTTPStatusMapping maps error codes to response status codes.
var HTTPStatusMapping = map[ErrorCode]int{
	ErrCodeInvalidQuestion:      http.StatusBadRequest,
	ErrCodeImageTooLarge:        http.StatusRequestEntityTooLarge,
	ErrCodeUnsupportedImageType: http.StatusUnsupportedMediaType,
	ErrCodeAgentUnavailable:     http.StatusBadGateway,
	ErrCodeAgentTimeout:         http.StatusGatewayTimeout,
	ErrCodeFallbackFailed:       http.StatusBadGateway,
	ErrCodeSessionNotFound:      http.StatusNotFound,
	ErrCodeHistoryStoreFailed:   http.StatusServiceUnavailable,
	ErrCodeRateLimited:          http.StatusTooManyRequests,
	ErrCodeInternalError:        http.StatusInternalServerError,
}

// GetHTTPStatus returns the response status for an error code.
func GetHTTPStatus(code ErrorCode) int {
	if status, ok := HTTPStatusMapping[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// GetRetryCount returns how many times a client may reasonably retry.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeAgentUnavailable,
		ErrCodeFallbackFailed,
		ErrCodeHistoryStoreFailed:
		return 2

	case ErrCodeAgentTimeout,
		ErrCodeRateLimited:
		return 1

	default:
		return 0
	}
}

// ==========================
// 4. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "AGENT") || strings.Contains(codeStr, "FALLBACK"):
		return "AI"
	case strings.Contains(codeStr, "HISTORY") || strings.Contains(codeStr, "SESSION"):
		return "STORAGE"
	case strings.Contains(codeStr, "IMAGE") || strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	case strings.Contains(codeStr, "RATE"):
		return "THROTTLING"
	default:
		return "OTHER"
	}
}
