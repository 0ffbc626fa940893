package cache

import (
	"context"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryStore is a thread-safe in-memory implementation of Store with
// per-item TTL and glob-pattern invalidation. It is suitable for
// single-instance deployments and is the substitute used in tests, where a
// Redis server is not available.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*memoryItem

	// Statistics
	hits   int64
	misses int64

	logger *zap.Logger
}

type memoryItem struct {
	value  []byte
	expiry time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		items:  make(map[string]*memoryItem),
		logger: logger,
	}
}

// Get retrieves a value. Expired items read as misses and are removed.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.items[key]
	if !exists {
		s.misses++
		return nil, false, nil
	}
	if time.Now().After(item.expiry) {
		delete(s.items, key)
		s.misses++
		return nil, false, nil
	}
	s.hits++

	// Return a copy to prevent external modifications.
	value := make([]byte, len(item.value))
	copy(value, item.value)
	return value, true, nil
}

// Set stores a value with the specified TTL, replacing any existing entry.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	s.items[key] = &memoryItem{
		value:  stored,
		expiry: time.Now().Add(ttl),
	}
	return nil
}

// Scan returns all live keys with the given prefix.
func (s *MemoryStore) Scan(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	keys := make([]string, 0)
	for key, item := range s.items {
		if now.After(item.expiry) {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// DeleteByPattern removes all keys matching a glob-style pattern and
// returns the number removed.
func (s *MemoryStore) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key := range s.items {
		if matchPattern(key, pattern) {
			delete(s.items, key)
			removed++
		}
	}
	s.logger.Debug("deleted cache entries by pattern",
		zap.String("pattern", pattern),
		zap.Int("count", removed),
	)
	return removed, nil
}

// SetNX stores value only if key is absent (or its entry expired),
// returning true when the write happened.
func (s *MemoryStore) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item, exists := s.items[key]; exists && time.Now().Before(item.expiry) {
		return false, nil
	}
	s.items[key] = &memoryItem{
		value:  []byte(value),
		expiry: time.Now().Add(ttl),
	}
	return true, nil
}

// Delete removes a single key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

// DeleteIfValue removes key only while it still holds value. The compare and
// the delete happen under one lock acquisition.
func (s *MemoryStore) DeleteIfValue(ctx context.Context, key string, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.items[key]
	if !exists || time.Now().After(item.expiry) || string(item.value) != value {
		return false, nil
	}
	delete(s.items, key)
	return true, nil
}

// HitRate returns the fraction of reads served from the store.
func (s *MemoryStore) HitRate() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := s.hits + s.misses
	if total == 0 {
		return 0
	}
	return float64(s.hits) / float64(total)
}

// matchPattern implements glob matching over cache keys. '*' matches any
// run of characters; keys never contain '/' so path.Match semantics are
// exactly what Redis-style patterns need here.
func matchPattern(key, pattern string) bool {
	ok, err := path.Match(pattern, key)
	return err == nil && ok
}
