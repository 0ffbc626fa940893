// Package reporting defines the core value types of the analytics-result
// cache: cache key components, cached entries, render contexts, and the
// advanced filter specification. All types here are immutable value objects;
// nothing in this package touches a store, a database, or a logger.
package reporting

import (
	"fmt"
	"time"
)

// Row is a single pre-aggregated analytics row. The cache and filter layers
// never assume a fixed schema beyond the well-known dimension columns below.
type Row map[string]any

// Well-known dimension columns every data source shares.
const (
	ColumnPracticeID = "practice_id"
	ColumnProviderID = "provider_id"
	ColumnMeasure    = "measure"
	ColumnFrequency  = "frequency"
	ColumnDateIndex  = "date_index"
)

// ============================================================================
// CACHE KEY COMPONENTS
// ============================================================================

// CacheKeyComponents carries the explicit query dimensions that are encoded
// into a cache key. Only chart-level filters populate PracticeID/ProviderID;
// permission-derived values must never appear here, otherwise cache entries
// would fragment per user and reuse across permission contexts would break.
//
// Invariant: identical components always produce an identical key.
type CacheKeyComponents struct {
	DataSourceID int
	Measure      string
	PracticeID   *int
	ProviderID   *int
	Frequency    string
}

// ============================================================================
// CACHED ENTRY
// ============================================================================

// CachedEntry is the unit stored in the key-value store. Entries are
// immutable once written; an overwrite replaces the entry wholesale with a
// fresh TTL, never patches it in place.
type CachedEntry struct {
	Rows          []Row              `json:"rows"`
	RowCount      int                `json:"rowCount"`
	CachedAt      time.Time          `json:"cachedAt"`
	ExpiresAt     time.Time          `json:"expiresAt"`
	SizeBytes     int64              `json:"sizeBytes"`
	KeyComponents CacheKeyComponents `json:"keyComponents"`
}

// ============================================================================
// PERMISSION SCOPE AND RENDER CONTEXT
// ============================================================================

// PermissionScope is the coarse visibility tier a caller claims. It is
// distinct from the fine-grained practice/provider access sets.
type PermissionScope string

const (
	ScopeOwn          PermissionScope = "own"
	ScopeOrganization PermissionScope = "organization"
	ScopeAll          PermissionScope = "all"
)

// Valid reports whether s is one of the three supported scopes.
func (s PermissionScope) Valid() bool {
	switch s {
	case ScopeOwn, ScopeOrganization, ScopeAll:
		return true
	}
	return false
}

// RenderContext is the per-request permission snapshot used to filter rows
// after every cache or database fetch. It is constructed fresh for each
// request from the access resolver and must never be cached, pooled, or
// shared across users.
type RenderContext struct {
	UserID string

	// Scope is the caller's claimed visibility tier. It must be verified
	// against the grant flags below before any rows are released.
	Scope PermissionScope

	AccessiblePractices []int
	AccessibleProviders []int

	IsSuperAdmin bool

	// Grant flags resolved from the caller's actual permissions. Scope
	// validation compares the claimed Scope against these.
	HasUnrestrictedRead bool
	HasOrganizationRead bool
}

// ============================================================================
// FILTER SPECIFICATION
// ============================================================================

// FilterOperator is the closed set of comparison operators an advanced
// filter may use. Unknown operators are rejected at construction rather
// than at query time.
type FilterOperator string

const (
	OpEq    FilterOperator = "eq"
	OpNeq   FilterOperator = "neq"
	OpGt    FilterOperator = "gt"
	OpGte   FilterOperator = "gte"
	OpLt    FilterOperator = "lt"
	OpLte   FilterOperator = "lte"
	OpIn    FilterOperator = "in"
	OpNotIn FilterOperator = "not_in"
	OpLike  FilterOperator = "like"
)

var validOperators = map[FilterOperator]struct{}{
	OpEq: {}, OpNeq: {}, OpGt: {}, OpGte: {}, OpLt: {}, OpLte: {},
	OpIn: {}, OpNotIn: {}, OpLike: {},
}

// FilterSpec is one caller-supplied advanced filter. Field must be resolved
// against the column registry before the spec is allowed anywhere near SQL.
type FilterSpec struct {
	Field    string         `json:"field"`
	Operator FilterOperator `json:"operator"`
	Value    any            `json:"value"`
}

// NewFilterSpec constructs a FilterSpec, rejecting unknown operators and
// empty field names up front.
func NewFilterSpec(field string, operator FilterOperator, value any) (FilterSpec, error) {
	if field == "" {
		return FilterSpec{}, fmt.Errorf("filter field must not be empty")
	}
	if _, ok := validOperators[operator]; !ok {
		return FilterSpec{}, fmt.Errorf("unsupported filter operator: %q", operator)
	}
	return FilterSpec{Field: field, Operator: operator, Value: value}, nil
}

// PracticeID extracts the practice identifier from a row, tolerating the
// numeric types the database driver and JSON round-trips produce.
func (r Row) PracticeID() (int, bool) {
	return intColumn(r, ColumnPracticeID)
}

// ProviderID extracts the provider identifier from a row. The second return
// is false when the column is absent or null, which marks a system-level
// aggregate row.
func (r Row) ProviderID() (int, bool) {
	return intColumn(r, ColumnProviderID)
}

func intColumn(r Row, column string) (int, bool) {
	v, ok := r[column]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
