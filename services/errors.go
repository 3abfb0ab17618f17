package services

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeUnauthenticated        ErrorType = "unauthenticated"
	ErrorTypeNoOrganization         ErrorType = "no_organization"
	ErrorTypeForbidden              ErrorType = "forbidden"
	ErrorTypeValidation             ErrorType = "validation"
	ErrorTypeMembershipLookupFailed ErrorType = "membership_lookup_failed"
	ErrorTypeProviderCallFailed     ErrorType = "provider_call_failed"
	ErrorTypeMalformedResponseShape ErrorType = "malformed_response_shape"
	ErrorTypeInternal               ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error. Never call it on the package-level sentinels.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// HTTPStatus maps the error type to the status code written at the HTTP boundary.
func (e *DomainError) HTTPStatus() int {
	switch e.Type {
	case ErrorTypeUnauthenticated:
		return http.StatusUnauthorized
	case ErrorTypeNoOrganization, ErrorTypeForbidden:
		return http.StatusForbidden
	case ErrorTypeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	// Session errors
	ErrUnauthenticated = NewDomainError(ErrorTypeUnauthenticated, "unauthenticated", nil)
	ErrNoCredentials   = NewDomainError(ErrorTypeUnauthenticated, "no session credentials", nil)
	ErrSessionExpired  = NewDomainError(ErrorTypeUnauthenticated, "session expired", nil)
	ErrRefreshFailed   = NewDomainError(ErrorTypeUnauthenticated, "session refresh failed", nil)

	// Tenant errors
	ErrNoOrganization = NewDomainError(ErrorTypeNoOrganization, "no organization membership", nil)

	// Permission errors
	ErrForbidden               = NewDomainError(ErrorTypeForbidden, "access forbidden", nil)
	ErrInsufficientPermissions = NewDomainError(ErrorTypeForbidden, "insufficient permissions", nil)
	ErrBootstrapDisabled       = NewDomainError(ErrorTypeForbidden, "organization bootstrap disabled", nil)

	// Validation errors
	ErrInvalidInput = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrInvalidEmail = NewDomainError(ErrorTypeValidation, "invalid email format", nil)

	// Lookup and provider errors
	ErrMembershipLookupFailed = NewDomainError(ErrorTypeMembershipLookupFailed, "membership lookup failed", nil)
	ErrProviderCallFailed     = NewDomainError(ErrorTypeProviderCallFailed, "identity provider call failed", nil)
	ErrMalformedResponse      = NewDomainError(ErrorTypeMalformedResponseShape, "malformed response shape", nil)

	// Internal errors
	ErrInternal      = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrDatabaseError = NewDomainError(ErrorTypeInternal, "database error", nil)
)

// Error type checking helper functions

func isType(err error, t ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == t
	}
	return false
}

// IsUnauthenticatedError checks if an error is an unauthenticated error
func IsUnauthenticatedError(err error) bool {
	return isType(err, ErrorTypeUnauthenticated)
}

// IsNoOrganizationError checks if the caller has no active membership
func IsNoOrganizationError(err error) bool {
	return isType(err, ErrorTypeNoOrganization)
}

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool {
	return isType(err, ErrorTypeForbidden)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return isType(err, ErrorTypeValidation)
}

// IsMembershipLookupError checks if the membership store failed
func IsMembershipLookupError(err error) bool {
	return isType(err, ErrorTypeMembershipLookupFailed)
}

// IsProviderCallError checks if an outbound provider or RPC call failed
func IsProviderCallError(err error) bool {
	return isType(err, ErrorTypeProviderCallFailed)
}

// IsMalformedResponseError checks if an RPC returned a non-canonical shape
func IsMalformedResponseError(err error) bool {
	return isType(err, ErrorTypeMalformedResponseShape)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return isType(err, ErrorTypeInternal)
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapUnauthenticated wraps an identity failure as unauthenticated
func WrapUnauthenticated(message string, err error) error {
	return NewDomainError(ErrorTypeUnauthenticated, message, err)
}

// WrapProviderCall wraps an outbound call failure
func WrapProviderCall(message string, err error) error {
	return NewDomainError(ErrorTypeProviderCallFailed, message, err)
}

// WrapMembershipLookup wraps a membership store failure
func WrapMembershipLookup(message string, err error) error {
	return NewDomainError(ErrorTypeMembershipLookupFailed, message, err)
}

// WrapMalformed wraps an RPC response that is not in the canonical shape
func WrapMalformed(message string, err error) error {
	return NewDomainError(ErrorTypeMalformedResponseShape, message, err)
}
