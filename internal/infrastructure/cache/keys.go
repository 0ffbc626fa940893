package cache

import (
	"fmt"
	"strconv"

	"reporting-backend/internal/domain/reporting"
)

// Wildcard is the token substituted for an absent dimension in a cache key.
const Wildcard = "*"

// KeyBuilder deterministically encodes query dimensions into canonical cache
// keys and produces the ordered fallback hierarchy used on lookup.
//
// Key layout (dimension order is fixed: measure, practice, provider,
// frequency):
//
//	<prefix>:ds:<dataSourceID>:m:<measure|*>:p:<practice|*>:pr:<provider|*>:f:<frequency|*>
type KeyBuilder struct {
	prefix string
}

// NewKeyBuilder creates a key builder with the given keyspace prefix.
func NewKeyBuilder(prefix string) *KeyBuilder {
	return &KeyBuilder{prefix: prefix}
}

// Prefix returns the keyspace prefix all keys share.
func (b *KeyBuilder) Prefix() string {
	return b.prefix
}

// BuildKey produces the canonical key for the given components. It is a
// pure function: identical components always produce an identical key, and
// components differing in any one dimension never collide.
func (b *KeyBuilder) BuildKey(c reporting.CacheKeyComponents) string {
	return fmt.Sprintf("%s:ds:%d:m:%s:p:%s:pr:%s:f:%s",
		b.prefix,
		c.DataSourceID,
		orWildcard(c.Measure),
		orWildcardInt(c.PracticeID),
		orWildcardInt(c.ProviderID),
		orWildcard(c.Frequency),
	)
}

// DataSourcePattern returns the glob pattern matching every key for a data
// source, used by invalidation and the warmer.
func (b *KeyBuilder) DataSourcePattern(dataSourceID int) string {
	return fmt.Sprintf("%s:ds:%d:*", b.prefix, dataSourceID)
}

// MeasurePattern returns the glob pattern matching every key for a data
// source and measure.
func (b *KeyBuilder) MeasurePattern(dataSourceID int, measure string) string {
	return fmt.Sprintf("%s:ds:%d:m:%s:*", b.prefix, dataSourceID, measure)
}

// BuildHierarchy returns cache keys ordered from most specific to least
// specific. Each emitted level removes exactly one dimension from the level
// above it; levels whose dimensions are not present in the input are
// omitted. The terminal level is always the data-source-only key (all
// wildcards), the widest entry the warmer and invalidation operate on.
//
// This ordering is the tie-break rule for cache lookup: the first hit in
// hierarchy order wins, never the freshest or largest entry.
func (b *KeyBuilder) BuildHierarchy(c reporting.CacheKeyComponents) []string {
	levels := make([]reporting.CacheKeyComponents, 0, 4)
	levels = append(levels, c)

	cur := c
	if cur.ProviderID != nil {
		cur.ProviderID = nil
		levels = append(levels, cur)
	}
	if cur.PracticeID != nil {
		cur.PracticeID = nil
		levels = append(levels, cur)
	}
	if cur.Measure != "" || cur.Frequency != "" {
		cur.Measure = ""
		cur.Frequency = ""
		levels = append(levels, cur)
	}

	keys := make([]string, 0, len(levels))
	seen := make(map[string]struct{}, len(levels))
	for _, level := range levels {
		key := b.BuildKey(level)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

func orWildcard(s string) string {
	if s == "" {
		return Wildcard
	}
	return s
}

func orWildcardInt(n *int) string {
	if n == nil {
		return Wildcard
	}
	return strconv.Itoa(*n)
}
