package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_FluentConstruction(t *testing.T) {
	cause := errors.New("connection refused")

	err := New(ErrorTypeExternal, "DB_QUERY_FAILED", "query execution failed").
		WithDetails("data source 7").
		WithOperation("Fetch").
		WithSeverity(SeverityHigh).
		WithCause(cause).
		Build()

	assert.Equal(t, ErrorTypeExternal, err.Type)
	assert.Equal(t, "DB_QUERY_FAILED", err.Code)
	assert.Contains(t, err.Error(), "data source 7")
	assert.True(t, errors.Is(err, cause))
}

func TestValidation_IsSecurityRelevantAndHighSeverity(t *testing.T) {
	err := Validation("INVALID_FILTER_FIELD", "filter field not allowed")

	assert.True(t, err.Security)
	assert.Equal(t, SeverityHigh, err.Severity)
	assert.True(t, IsType(err, ErrorTypeValidation))
	assert.True(t, IsSecurity(err))
}

func TestForbidden_IsCritical(t *testing.T) {
	err := Forbidden("SCOPE_MISMATCH", "claimed scope not supported by grants")

	assert.Equal(t, SeverityCritical, err.Severity)
	assert.True(t, IsType(err, ErrorTypeForbidden))
}

func TestIsType_TraversesWrappedErrors(t *testing.T) {
	inner := Validation("INVALID_FILTER_FIELD", "bad field")
	wrapped := fmt.Errorf("validating request: %w", inner)

	require.True(t, IsType(wrapped, ErrorTypeValidation))
	assert.False(t, IsType(wrapped, ErrorTypeForbidden))
	assert.True(t, IsSecurity(wrapped))
}

func TestIsType_PlainErrorsAreNotClassified(t *testing.T) {
	assert.False(t, IsType(errors.New("boom"), ErrorTypeInternal))
	assert.False(t, IsSecurity(errors.New("boom")))
}
