package cache

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Stats is a read-only snapshot of the analytics keyspace for operational
// monitoring.
type Stats struct {
	TotalKeys int `json:"totalKeys"`
	// ApproxMemoryBytes is extrapolated from a bounded sample of entry
	// sizes; it is an estimate, not an exact accounting.
	ApproxMemoryBytes int64       `json:"approxMemoryBytes"`
	SampledKeys       int         `json:"sampledKeys"`
	ByDataSource      map[int]int `json:"byDataSource"`
}

// StatsCollector scans and samples the cache keyspace. It only ever reads;
// it never blocks writers and never mutates entries.
type StatsCollector struct {
	store      Store
	keys       *KeyBuilder
	sampleSize int
	logger     *zap.Logger
}

// NewStatsCollector creates a collector sampling at most sampleSize entries
// per Collect call.
func NewStatsCollector(store Store, keys *KeyBuilder, sampleSize int, logger *zap.Logger) *StatsCollector {
	if sampleSize <= 0 {
		sampleSize = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsCollector{
		store:      store,
		keys:       keys,
		sampleSize: sampleSize,
		logger:     logger,
	}
}

// Collect scans the keyspace and returns totals, an approximate memory
// figure, and a per-data-source key count breakdown.
func (c *StatsCollector) Collect(ctx context.Context) (Stats, error) {
	keys, err := c.store.Scan(ctx, c.keys.Prefix()+":")
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		TotalKeys:    len(keys),
		ByDataSource: make(map[int]int),
	}

	var sampledBytes int64
	for _, key := range keys {
		if id, ok := dataSourceFromKey(key); ok {
			stats.ByDataSource[id]++
		}
		if stats.SampledKeys >= c.sampleSize {
			continue
		}
		data, found, err := c.store.Get(ctx, key)
		if err != nil || !found {
			// Expired between scan and read, or the store hiccuped;
			// either way the sample just gets smaller.
			continue
		}
		sampledBytes += int64(len(data))
		stats.SampledKeys++
	}

	if stats.SampledKeys > 0 {
		avg := sampledBytes / int64(stats.SampledKeys)
		stats.ApproxMemoryBytes = avg * int64(stats.TotalKeys)
	}

	return stats, nil
}

// dataSourceFromKey parses the data-source id out of a canonical key of the
// form <prefix>:ds:<id>:m:...
func dataSourceFromKey(key string) (int, bool) {
	parts := strings.Split(key, ":")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == "ds" {
			id, err := strconv.Atoi(parts[i+1])
			if err != nil {
				return 0, false
			}
			return id, true
		}
	}
	return 0, false
}
