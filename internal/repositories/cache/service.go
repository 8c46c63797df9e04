// Package cache wraps Redis as a JSON read-through cache for ledger views.
// It never holds balances that are used for authorisation; those are always
// read under a row lock.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheService stores JSON values under a shared key namespace, so several
// deployments can share one Redis database.
type CacheService struct {
	client    redis.UniversalClient
	namespace string
	ttl       time.Duration
}

func NewCacheService(client redis.UniversalClient, namespace string, defaultTTL time.Duration) *CacheService {
	return &CacheService{
		client:    client,
		namespace: namespace,
		ttl:       defaultTTL,
	}
}

// Key joins parts under the service namespace.
func (s *CacheService) Key(parts ...string) string {
	if s.namespace == "" {
		return strings.Join(parts, ":")
	}
	return s.namespace + ":" + strings.Join(parts, ":")
}

// Put stores value for ttl, or the default TTL when ttl is zero.
func (s *CacheService) Put(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

// Fetch decodes the cached value into dest. A miss returns false and no error.
func (s *CacheService) Fetch(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get cache value: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		// A value written by an older schema is dropped rather than served.
		_ = s.client.Del(ctx, key).Err()
		return false, nil
	}
	return true, nil
}

// Counter reads an integer key, treating a missing key as zero.
func (s *CacheService) Counter(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read counter: %w", err)
	}
	return n, nil
}

var errCounterMoved = errors.New("counter moved")

// PutIfCounter stores value only while counterKey still holds want. It
// reports false when the counter moved before or during the write.
func (s *CacheService) PutIfCounter(ctx context.Context, counterKey string, want int64, key string, value interface{}, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal cache value: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, counterKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != want {
			return errCounterMoved
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, ttl)
			return nil
		})
		return err
	}, counterKey)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errCounterMoved), errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, fmt.Errorf("failed to set cache value: %w", err)
	}
}

// Bump increments each counter, then evicts keys. Counters are incremented
// first so a concurrent PutIfCounter cannot land after the eviction.
func (s *CacheService) Bump(ctx context.Context, counterTTL time.Duration, counters []string, evict ...string) error {
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range counters {
			pipe.Incr(ctx, key)
			pipe.Expire(ctx, key, counterTTL)
		}
		for _, key := range evict {
			pipe.Del(ctx, key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to bump %d cache counters: %w", len(counters), err)
	}
	return nil
}

// Evict removes keys in one round trip.
func (s *CacheService) Evict(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to evict %d cache keys: %w", len(keys), err)
	}
	return nil
}
