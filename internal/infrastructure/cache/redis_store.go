package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// RedisStore implements Store on top of a Redis client. All operations are
// routed through a circuit breaker so a flapping Redis degrades to
// cache-miss behavior instead of adding latency to every request while the
// store is down.
type RedisStore struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-store",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Only trip once there are enough requests to judge.
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("cache store circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &RedisStore{
		client:  client,
		breaker: breaker,
		logger:  logger,
	}
}

// Get retrieves the raw bytes for key. A miss and an unavailable store are
// both reported as (nil, false); the error lets callers count store
// failures without treating them as fatal.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	result, err := s.breaker.Execute(func() (any, error) {
		data, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return data, nil
	})
	if err != nil {
		return nil, false, err
	}
	if result == nil {
		return nil, false, nil
	}
	return result.([]byte), true, nil
}

// Set stores value under key with the given TTL.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.client.Set(ctx, key, value, ttl).Err()
	})
	return err
}

// Scan returns all keys with the given prefix using cursor iteration, so it
// never blocks the server the way KEYS would.
func (s *RedisStore) Scan(ctx context.Context, prefix string) ([]string, error) {
	result, err := s.breaker.Execute(func() (any, error) {
		var (
			keys   []string
			cursor uint64
		)
		for {
			batch, next, err := s.client.Scan(ctx, cursor, prefix+"*", 100).Result()
			if err != nil {
				return nil, err
			}
			keys = append(keys, batch...)
			cursor = next
			if cursor == 0 {
				return keys, nil
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

// DeleteByPattern removes all keys matching the glob pattern.
func (s *RedisStore) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	result, err := s.breaker.Execute(func() (any, error) {
		var (
			removed int64
			cursor  uint64
		)
		for {
			batch, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
			if err != nil {
				return nil, err
			}
			if len(batch) > 0 {
				n, err := s.client.Del(ctx, batch...).Result()
				if err != nil {
					return nil, err
				}
				removed += n
			}
			cursor = next
			if cursor == 0 {
				return int(removed), nil
			}
		}
	})
	if err != nil {
		return 0, err
	}
	return result.(int), nil
}

// SetNX performs the conditional set-if-absent write behind the warming
// lock. The TTL bounds how long a crashed holder can keep the key alive.
func (s *RedisStore) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	result, err := s.breaker.Execute(func() (any, error) {
		return s.client.SetNX(ctx, key, value, ttl).Result()
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

// Delete removes a single key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.client.Del(ctx, key).Err()
	})
	return err
}

// deleteIfValueScript compares and deletes in one server-side step, so a
// stale lock holder cannot race a re-acquisition between a GET and a DEL.
var deleteIfValueScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// DeleteIfValue removes key only while it still holds value.
func (s *RedisStore) DeleteIfValue(ctx context.Context, key string, value string) (bool, error) {
	result, err := s.breaker.Execute(func() (any, error) {
		return deleteIfValueScript.Run(ctx, s.client, []string{key}, value).Int()
	})
	if err != nil {
		return false, err
	}
	return result.(int) == 1, nil
}
