package permissions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"reporting-backend/internal/domain/reporting"
	appErrors "reporting-backend/internal/errors"
	"reporting-backend/internal/infrastructure/observability"
)

func newTestEngine() *Engine {
	return NewEngine(zap.NewNop(), observability.NewNopMetrics())
}

func row(practiceID int, providerID any) reporting.Row {
	return reporting.Row{
		"practice_id": practiceID,
		"provider_id": providerID,
		"measure":     "Charges",
		"total":       100.0,
	}
}

func TestFilter_ScopeAllReturnsEverything(t *testing.T) {
	// Arrange
	engine := newTestEngine()
	rows := []reporting.Row{row(114, 1), row(115, 2), row(116, nil)}
	rc := reporting.RenderContext{
		UserID:       "admin-1",
		Scope:        reporting.ScopeAll,
		IsSuperAdmin: true,
	}

	// Act
	filtered, err := engine.Filter(context.Background(), rows, rc)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, rows, filtered)
}

// A shared cache entry holds rows for practices 114, 115 and 116; a caller
// whose grant covers only practice 114 must see exactly the 114 rows.
func TestFilter_NarrowsSharedDatasetToGrantedPractices(t *testing.T) {
	engine := newTestEngine()
	rows := []reporting.Row{
		row(114, 1), row(114, 2),
		row(115, 1),
		row(116, 3),
	}
	rc := reporting.RenderContext{
		UserID:              "user-b",
		Scope:               reporting.ScopeOrganization,
		AccessiblePractices: []int{114},
		HasOrganizationRead: true,
	}

	filtered, err := engine.Filter(context.Background(), rows, rc)

	require.NoError(t, err)
	require.Len(t, filtered, 2)
	for _, r := range filtered {
		practiceID, ok := r.PracticeID()
		require.True(t, ok)
		assert.Equal(t, 114, practiceID)
	}
}

func TestFilter_EmptyPracticeGrantYieldsZeroRows(t *testing.T) {
	engine := newTestEngine()
	rows := []reporting.Row{row(114, 1), row(115, 2)}
	rc := reporting.RenderContext{
		UserID:              "user-empty",
		Scope:               reporting.ScopeOrganization,
		AccessiblePractices: nil,
		HasOrganizationRead: true,
	}

	filtered, err := engine.Filter(context.Background(), rows, rc)

	require.NoError(t, err)
	assert.Empty(t, filtered)
}

func TestFilter_OwnScopeRestrictsToGrantedProviders(t *testing.T) {
	engine := newTestEngine()
	rows := []reporting.Row{row(114, 1), row(114, 2), row(114, 3)}
	rc := reporting.RenderContext{
		UserID:              "provider-2",
		Scope:               reporting.ScopeOwn,
		AccessiblePractices: []int{114},
		AccessibleProviders: []int{2},
	}

	filtered, err := engine.Filter(context.Background(), rows, rc)

	require.NoError(t, err)
	require.Len(t, filtered, 1)
	providerID, ok := filtered[0].ProviderID()
	require.True(t, ok)
	assert.Equal(t, 2, providerID)
}

func TestFilter_ProviderSetAppliesAtOrganizationScope(t *testing.T) {
	// A provider grant narrows visibility whenever it is present, not only
	// at own scope.
	engine := newTestEngine()
	rows := []reporting.Row{row(114, 7), row(114, 99)}
	rc := reporting.RenderContext{
		UserID:              "org-provider-reader",
		Scope:               reporting.ScopeOrganization,
		AccessiblePractices: []int{114},
		AccessibleProviders: []int{7},
		HasOrganizationRead: true,
	}

	filtered, err := engine.Filter(context.Background(), rows, rc)

	require.NoError(t, err)
	require.Len(t, filtered, 1)
	providerID, ok := filtered[0].ProviderID()
	require.True(t, ok)
	assert.Equal(t, 7, providerID)
}

func TestFilter_OrganizationProviderSetStillSeesSystemAggregates(t *testing.T) {
	engine := newTestEngine()
	rows := []reporting.Row{row(114, 7), row(114, 99), row(114, nil)}
	rc := reporting.RenderContext{
		UserID:              "org-provider-reader",
		Scope:               reporting.ScopeOrganization,
		AccessiblePractices: []int{114},
		AccessibleProviders: []int{7},
		HasOrganizationRead: true,
	}

	filtered, err := engine.Filter(context.Background(), rows, rc)

	require.NoError(t, err)
	assert.Len(t, filtered, 2)
}

func TestFilter_SystemAggregatesVisibleAtOrganizationScope(t *testing.T) {
	engine := newTestEngine()
	rows := []reporting.Row{row(114, 1), row(114, nil)}
	rc := reporting.RenderContext{
		UserID:              "org-reader",
		Scope:               reporting.ScopeOrganization,
		AccessiblePractices: []int{114},
		HasOrganizationRead: true,
	}

	filtered, err := engine.Filter(context.Background(), rows, rc)

	require.NoError(t, err)
	assert.Len(t, filtered, 2)
}

func TestFilter_SystemAggregatesHiddenFromProviderScopedGrant(t *testing.T) {
	// A null provider_id marks a practice-wide aggregate; releasing it
	// through a single provider's view would leak the whole practice.
	engine := newTestEngine()
	rows := []reporting.Row{row(114, 1), row(114, nil)}
	rc := reporting.RenderContext{
		UserID:              "provider-1",
		Scope:               reporting.ScopeOwn,
		AccessiblePractices: []int{114},
		AccessibleProviders: []int{1},
	}

	filtered, err := engine.Filter(context.Background(), rows, rc)

	require.NoError(t, err)
	require.Len(t, filtered, 1)
	_, hasProvider := filtered[0].ProviderID()
	assert.True(t, hasProvider)
}

func TestFilter_RowsNumericVariantsFromJSONRoundTrip(t *testing.T) {
	// Rows decoded from a cache entry carry float64 identifiers.
	engine := newTestEngine()
	rows := []reporting.Row{
		{"practice_id": float64(114), "provider_id": float64(1)},
		{"practice_id": float64(115), "provider_id": float64(1)},
	}
	rc := reporting.RenderContext{
		UserID:              "user-b",
		Scope:               reporting.ScopeOrganization,
		AccessiblePractices: []int{114},
		HasOrganizationRead: true,
	}

	filtered, err := engine.Filter(context.Background(), rows, rc)

	require.NoError(t, err)
	assert.Len(t, filtered, 1)
}

func TestFilter_AuditRecordsPracticeSetsBeforeAndAfter(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	engine := NewEngine(zap.New(core), observability.NewNopMetrics())
	rows := []reporting.Row{row(114, 1), row(115, 2), row(116, 3)}
	rc := reporting.RenderContext{
		UserID:              "user-b",
		Scope:               reporting.ScopeOrganization,
		AccessiblePractices: []int{114},
		HasOrganizationRead: true,
	}

	_, err := engine.Filter(context.Background(), rows, rc)

	require.NoError(t, err)
	entries := logs.FilterMessage("permission filter applied").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.ElementsMatch(t, []int{114, 115, 116}, fields["input_practices"])
	assert.ElementsMatch(t, []int{114}, fields["output_practices"])
	assert.Equal(t, int64(3), fields["input_rows"])
	assert.Equal(t, int64(1), fields["output_rows"])
	assert.Equal(t, false, fields["suspicious_empty_result"])
}

func TestValidateScope_RejectsUnsupportedClaims(t *testing.T) {
	engine := newTestEngine()

	cases := []struct {
		name string
		rc   reporting.RenderContext
	}{
		{
			name: "all without unrestricted read",
			rc: reporting.RenderContext{
				UserID: "u1", Scope: reporting.ScopeAll,
			},
		},
		{
			name: "organization without organization read",
			rc: reporting.RenderContext{
				UserID: "u2", Scope: reporting.ScopeOrganization,
				AccessiblePractices: []int{114},
			},
		},
		{
			name: "super admin narrowed to own",
			rc: reporting.RenderContext{
				UserID: "u3", Scope: reporting.ScopeOwn, IsSuperAdmin: true,
			},
		},
		{
			name: "unknown scope",
			rc: reporting.RenderContext{
				UserID: "u4", Scope: "galaxy",
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := engine.ValidateScope(tc.rc)

			require.Error(t, err)
			assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeForbidden))
			assert.True(t, appErrors.IsSecurity(err))
		})
	}
}

func TestValidateScope_AllowsSupportedClaims(t *testing.T) {
	engine := newTestEngine()

	assert.NoError(t, engine.ValidateScope(reporting.RenderContext{
		UserID: "u1", Scope: reporting.ScopeAll, HasUnrestrictedRead: true,
	}))
	assert.NoError(t, engine.ValidateScope(reporting.RenderContext{
		UserID: "u2", Scope: reporting.ScopeOrganization, HasOrganizationRead: true,
	}))
	assert.NoError(t, engine.ValidateScope(reporting.RenderContext{
		UserID: "u3", Scope: reporting.ScopeOwn,
	}))
}

func TestFilter_ScopeMismatchReleasesNoRows(t *testing.T) {
	engine := newTestEngine()
	rows := []reporting.Row{row(114, 1)}
	rc := reporting.RenderContext{
		UserID: "claimer",
		Scope:  reporting.ScopeAll, // claimed, not granted
	}

	filtered, err := engine.Filter(context.Background(), rows, rc)

	require.Error(t, err)
	assert.Nil(t, filtered)
}
