package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Webhook ingestion errors (WEBHOOK_*)
	ErrorCodeSignatureInvalid ErrorCode = "WEBHOOK_SIGNATURE_INVALID"
	ErrorCodeSignatureMissing ErrorCode = "WEBHOOK_SIGNATURE_MISSING"
	ErrorCodePayloadMalformed ErrorCode = "WEBHOOK_PAYLOAD_MALFORMED"
	ErrorCodeGatewayUnknown   ErrorCode = "WEBHOOK_GATEWAY_UNKNOWN"

	// Ledger errors (LEDGER_*)
	ErrorCodeEventDuplicate  ErrorCode = "LEDGER_EVENT_DUPLICATE"
	ErrorCodeTransitionStale ErrorCode = "LEDGER_TRANSITION_STALE"

	// Subscription errors (SUB_*)
	ErrorCodeSubNotFound    ErrorCode = "SUB_NOT_FOUND"
	ErrorCodePlanUnknown    ErrorCode = "SUB_PLAN_UNKNOWN"
	ErrorCodeUserUnresolved ErrorCode = "SUB_USER_UNRESOLVED"

	// Infrastructure errors (STORAGE_*, CACHE_*)
	ErrorCodeStorageFailure ErrorCode = "STORAGE_FAILURE"
	ErrorCodeCacheDegraded  ErrorCode = "CACHE_DEGRADED"

	// Internal errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsSignatureError checks if an error is an authenticity failure that
// should surface as HTTP 401
func IsSignatureError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeSignatureInvalid || code == ErrorCodeSignatureMissing
}

// IsPayloadError checks if an error is a malformed-payload rejection that
// should surface as HTTP 400
func IsPayloadError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodePayloadMalformed || code == ErrorCodeGatewayUnknown ||
		code == ErrorCodePlanUnknown
}

// IsStorageError checks if an error is a transient storage failure that
// should surface as HTTP 5xx so the gateway retries
func IsStorageError(err error) bool {
	return GetErrorCode(err) == ErrorCodeStorageFailure
}

// Structured error instances
var (
	ErrSignatureInvalid = NewDomainError(ErrorCodeSignatureInvalid, "webhook signature verification failed")
	ErrSignatureMissing = NewDomainError(ErrorCodeSignatureMissing, "webhook signature header missing")
	ErrPayloadMalformed = NewDomainError(ErrorCodePayloadMalformed, "webhook payload missing required fields")
	ErrGatewayUnknown   = NewDomainError(ErrorCodeGatewayUnknown, "unknown payment gateway")

	ErrTransitionStale = NewDomainError(ErrorCodeTransitionStale, "transaction already in a final state")

	ErrSubscriptionNotFound = NewDomainError(ErrorCodeSubNotFound, "subscription not found")
	ErrPlanUnknown          = NewDomainError(ErrorCodePlanUnknown, "no plan matches payment amount")
	ErrUserUnresolved       = NewDomainError(ErrorCodeUserUnresolved, "no user matches customer reference")

	ErrStorageFailure = NewDomainError(ErrorCodeStorageFailure, "persistent store unavailable")
	ErrInternalError  = NewDomainError(ErrorCodeInternalError, "internal server error")
)
