package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"reporting-backend/internal/domain/reporting"
	appErrors "reporting-backend/internal/errors"
)

// MockColumnRegistry is a testify mock for the live column registry.
type MockColumnRegistry struct {
	mock.Mock
}

func (m *MockColumnRegistry) ColumnsFor(ctx context.Context, dataSourceID int) ([]reporting.Column, error) {
	args := m.Called(ctx, dataSourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]reporting.Column), args.Error(1)
}

func TestValidateFields_AllowsConfiguredFilterableColumn(t *testing.T) {
	// Arrange
	ctx := context.Background()
	registry := new(MockColumnRegistry)
	registry.On("ColumnsFor", ctx, 1).Return([]reporting.Column{
		{Name: "payer_name", Filterable: true},
		{Name: "internal_cost", Filterable: false},
	}, nil)
	validator := NewValidator(registry, zap.NewNop())

	// Act
	err := validator.ValidateFields(ctx,
		[]reporting.FilterSpec{{Field: "payer_name", Operator: reporting.OpEq, Value: "Blue"}}, 1)

	// Assert
	require.NoError(t, err)
	registry.AssertExpectations(t)
}

func TestValidateFields_RejectsNonFilterableColumn(t *testing.T) {
	ctx := context.Background()
	registry := new(MockColumnRegistry)
	registry.On("ColumnsFor", ctx, 1).Return([]reporting.Column{
		{Name: "internal_cost", Filterable: false},
	}, nil)
	validator := NewValidator(registry, zap.NewNop())

	err := validator.ValidateFields(ctx,
		[]reporting.FilterSpec{{Field: "internal_cost", Operator: reporting.OpGt, Value: 0}}, 1)

	require.Error(t, err)
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeValidation))
	assert.True(t, appErrors.IsSecurity(err))
}

// Scenario: a hostile field name is rejected by validation before it can
// reach query construction.
func TestValidateFields_RejectsInjectionAttempt(t *testing.T) {
	ctx := context.Background()
	registry := new(MockColumnRegistry)
	registry.On("ColumnsFor", ctx, 1).Return([]reporting.Column{
		{Name: "payer_name", Filterable: true},
	}, nil)
	validator := NewValidator(registry, zap.NewNop())

	err := validator.ValidateFields(ctx,
		[]reporting.FilterSpec{{Field: "'; DROP TABLE x; --", Operator: reporting.OpEq, Value: 1}}, 1)

	require.Error(t, err)
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeValidation))
}

func TestValidateFields_StandardDimensionsAlwaysAllowed(t *testing.T) {
	ctx := context.Background()
	registry := new(MockColumnRegistry)
	registry.On("ColumnsFor", ctx, 1).Return([]reporting.Column{}, nil)
	validator := NewValidator(registry, zap.NewNop())

	for _, field := range []string{"practice_id", "provider_id", "measure", "frequency", "date_index", "freq"} {
		err := validator.ValidateFields(ctx,
			[]reporting.FilterSpec{{Field: field, Operator: reporting.OpEq, Value: 1}}, 1)
		assert.NoError(t, err, "standard column %q must be allowed", field)
	}
}

func TestValidateFields_NoFiltersSkipsRegistry(t *testing.T) {
	validator := NewValidator(new(MockColumnRegistry), zap.NewNop())

	err := validator.ValidateFields(context.Background(), nil, 1)

	assert.NoError(t, err)
}

func TestValidateFields_RegistryErrorPropagates(t *testing.T) {
	ctx := context.Background()
	registry := new(MockColumnRegistry)
	registry.On("ColumnsFor", ctx, 1).Return(nil, assert.AnError)
	validator := NewValidator(registry, zap.NewNop())

	err := validator.ValidateFields(ctx,
		[]reporting.FilterSpec{{Field: "payer_name", Operator: reporting.OpEq, Value: "x"}}, 1)

	assert.Error(t, err)
}
