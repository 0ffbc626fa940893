package warmer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"reporting-backend/internal/infrastructure/cache"
)

// Lock is the per-data-source mutual-exclusion lock for warming runs. It is
// a conditional set-if-absent with a fixed expiry: a crashed warmer's lock
// evaporates on its own, bounding worst-case staleness without any liveness
// detection.
type Lock struct {
	store  cache.Store
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewLock creates a lock manager on the given store. The prefix must live
// outside the cache data keyspace: invalidation pattern-deletes everything
// under the data prefix, and a held lock must survive that.
func NewLock(store cache.Store, prefix string, ttl time.Duration, logger *zap.Logger) *Lock {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lock{store: store, prefix: prefix, ttl: ttl, logger: logger}
}

func (l *Lock) key(dataSourceID int) string {
	return fmt.Sprintf("%s:warm-lock:ds:%d", l.prefix, dataSourceID)
}

// Acquire attempts to take the lock for a data source. On success it returns
// an owner token that must be passed back to Release; on contention it
// returns acquired=false without blocking or retrying.
func (l *Lock) Acquire(ctx context.Context, dataSourceID int) (token string, acquired bool, err error) {
	token = uuid.New().String()
	acquired, err = l.store.SetNX(ctx, l.key(dataSourceID), token, l.ttl)
	if err != nil {
		return "", false, err
	}
	if !acquired {
		return "", false, nil
	}
	return token, true, nil
}

// Release removes the lock only while this holder still owns it, as one
// atomic compare-and-delete. A lock that expired and was re-acquired by
// another warmer is left untouched.
func (l *Lock) Release(ctx context.Context, dataSourceID int, token string) {
	key := l.key(dataSourceID)
	if _, err := l.store.DeleteIfValue(ctx, key, token); err != nil {
		l.logger.Warn("warm lock release failed; lock will expire on its own",
			zap.String("key", key), zap.Error(err))
	}
}
