package cache

import (
	"encoding/json"
	"time"

	"reporting-backend/internal/domain/reporting"
)

// NewEntry assembles an immutable CachedEntry for the given rows. SizeBytes
// is the serialized size of the rows payload, recorded so the stats
// collector can estimate memory without deserializing entries.
func NewEntry(rows []reporting.Row, components reporting.CacheKeyComponents, ttl time.Duration) (reporting.CachedEntry, []byte, error) {
	rowBytes, err := json.Marshal(rows)
	if err != nil {
		return reporting.CachedEntry{}, nil, err
	}
	now := time.Now().UTC()
	entry := reporting.CachedEntry{
		Rows:          rows,
		RowCount:      len(rows),
		CachedAt:      now,
		ExpiresAt:     now.Add(ttl),
		SizeBytes:     int64(len(rowBytes)),
		KeyComponents: components,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return reporting.CachedEntry{}, nil, err
	}
	return entry, data, nil
}

// DecodeEntry deserializes stored bytes back into a CachedEntry.
func DecodeEntry(data []byte) (reporting.CachedEntry, error) {
	var entry reporting.CachedEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return reporting.CachedEntry{}, err
	}
	return entry, nil
}
