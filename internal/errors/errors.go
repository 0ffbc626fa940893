// Package errors provides the unified error handling system for the
// reporting backend. Every error crossing a layer boundary is an *AppError
// carrying a type for programmatic handling, a severity for logging and
// alerting, and an optional underlying cause for errors.Is/As chains.
package errors

import (
	"errors"
	"fmt"
)

// ErrorType defines the category of error for proper handling and response.
type ErrorType string

const (
	// Business logic errors
	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeNotFound   ErrorType = "NOT_FOUND"
	ErrorTypeForbidden  ErrorType = "FORBIDDEN"

	// Infrastructure errors
	ErrorTypeInternal    ErrorType = "INTERNAL"
	ErrorTypeUnavailable ErrorType = "UNAVAILABLE"

	// External service errors
	ErrorTypeExternal ErrorType = "EXTERNAL"
)

// ErrorSeverity defines the severity level for logging and monitoring.
// Security-relevant rejections (filter field validation, permission scope
// mismatches) are High or Critical so they stand out in alerting.
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "LOW"
	SeverityMedium   ErrorSeverity = "MEDIUM"
	SeverityHigh     ErrorSeverity = "HIGH"
	SeverityCritical ErrorSeverity = "CRITICAL"
)

// AppError is the single error type used across all application layers.
type AppError struct {
	Type     ErrorType     `json:"type"`
	Code     string        `json:"code"`
	Message  string        `json:"message"`
	Details  string        `json:"details,omitempty"`
	Severity ErrorSeverity `json:"severity"`

	// Operation and Resource give the error enough context to be logged
	// usefully without the call site repeating itself.
	Operation string `json:"operation,omitempty"`
	Resource  string `json:"resource,omitempty"`
	UserID    string `json:"userId,omitempty"`

	// Security marks errors that must be logged as security-relevant
	// regardless of how the caller handles them.
	Security bool `json:"security,omitempty"`

	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s:%s] %s: %s", e.Type, e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

// Unwrap allows errors.Is and errors.As to traverse the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// ============================================================================
// ERROR BUILDER
// ============================================================================

// Builder provides a fluent interface for constructing AppError instances.
type Builder struct {
	err *AppError
}

// New creates a new error builder with the specified type, code and message.
func New(errType ErrorType, code, message string) *Builder {
	return &Builder{err: &AppError{
		Type:     errType,
		Code:     code,
		Message:  message,
		Severity: SeverityMedium,
	}}
}

// WithDetails adds additional context information to the error.
func (b *Builder) WithDetails(details string) *Builder {
	b.err.Details = details
	return b
}

// WithOperation records the operation that failed.
func (b *Builder) WithOperation(operation string) *Builder {
	b.err.Operation = operation
	return b
}

// WithResource records the resource being operated on.
func (b *Builder) WithResource(resource string) *Builder {
	b.err.Resource = resource
	return b
}

// WithUserID attaches the acting user for audit trails.
func (b *Builder) WithUserID(userID string) *Builder {
	b.err.UserID = userID
	return b
}

// WithSeverity sets the error severity.
func (b *Builder) WithSeverity(severity ErrorSeverity) *Builder {
	b.err.Severity = severity
	return b
}

// WithCause attaches the underlying error.
func (b *Builder) WithCause(cause error) *Builder {
	b.err.Cause = cause
	return b
}

// AsSecurity marks the error security-relevant.
func (b *Builder) AsSecurity() *Builder {
	b.err.Security = true
	return b
}

// Build finalizes the error.
func (b *Builder) Build() *AppError {
	return b.err
}

// ============================================================================
// CONVENIENCE CONSTRUCTORS
// ============================================================================

// Validation creates a validation rejection. Field validation failures in
// the query layer are the sole SQL-injection defense for dynamic column
// names, so these are security-relevant and logged at high severity.
func Validation(code, message string) *AppError {
	return New(ErrorTypeValidation, code, message).
		WithSeverity(SeverityHigh).
		AsSecurity().
		Build()
}

// Forbidden creates a permission scope rejection. A claimed scope the
// caller's grants do not support aborts the whole request; it is never
// silently downgraded.
func Forbidden(code, message string) *AppError {
	return New(ErrorTypeForbidden, code, message).
		WithSeverity(SeverityCritical).
		AsSecurity().
		Build()
}

// Internal wraps an unexpected failure.
func Internal(code, message string, cause error) *AppError {
	return New(ErrorTypeInternal, code, message).
		WithSeverity(SeverityHigh).
		WithCause(cause).
		Build()
}

// External wraps a collaborator failure that propagates to the caller
// unchanged in meaning (for example a database query error).
func External(code, message string, cause error) *AppError {
	return New(ErrorTypeExternal, code, message).
		WithCause(cause).
		Build()
}

// ============================================================================
// CLASSIFICATION HELPERS
// ============================================================================

// IsType reports whether err (or anything it wraps) is an AppError of the
// given type.
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errType
	}
	return false
}

// IsSecurity reports whether err is security-relevant.
func IsSecurity(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Security
	}
	return false
}
