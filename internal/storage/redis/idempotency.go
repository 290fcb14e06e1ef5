// Package redis implements the checkout idempotency store on Redis so that
// deduplication survives process restarts and is shared across replicas.
package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/brambleberry/storefront/internal/domain/order"
)

var _ order.IdempotencyStore = (*IdempotencyStore)(nil)

// IdempotencyStore maps (customer, key) pairs to created order IDs with a TTL.
type IdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewIdempotencyStore creates a store on the given client. Entries expire
// after ttl; a retried request outside the window creates a fresh order.
func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

func lockKey(scope, key string) string { return "idem:lock:" + scope + ":" + key }
func mapKey(scope, key string) string  { return "idem:order:" + scope + ":" + key }

// TryLock claims the key for the duration of one checkout attempt.
func (s *IdempotencyStore) TryLock(ctx context.Context, scope, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, lockKey(scope, key), "1", s.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "idempotency setnx")
	}
	return ok, nil
}

// Release frees the lock after a failed attempt so the client may retry.
func (s *IdempotencyStore) Release(ctx context.Context, scope, key string) error {
	if err := s.rdb.Del(ctx, lockKey(scope, key)).Err(); err != nil {
		return errors.Wrap(err, "idempotency del")
	}
	return nil
}

// Remember records the order created under this key.
func (s *IdempotencyStore) Remember(ctx context.Context, scope, key, value string) error {
	if err := s.rdb.Set(ctx, mapKey(scope, key), value, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "idempotency set")
	}
	return nil
}

// Recall returns the order previously created under this key, if any.
func (s *IdempotencyStore) Recall(ctx context.Context, scope, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, mapKey(scope, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "idempotency get")
	}
	return val, true, nil
}
