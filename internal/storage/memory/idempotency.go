// Package memory implements the checkout idempotency store in process memory
// for single-replica deployments without Redis, and for tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/brambleberry/storefront/internal/domain/order"
)

var _ order.IdempotencyStore = (*IdempotencyStore)(nil)

type entry struct {
	orderID   string
	expiresAt time.Time
}

// IdempotencyStore keeps (scope, key) → order ID mappings with a TTL.
// Expired material is pruned opportunistically on writes, at most once per
// TTL window, so the maps stay bounded on long-running deployments.
type IdempotencyStore struct {
	ttl time.Duration

	mu        sync.Mutex
	locks     map[string]time.Time
	entries   map[string]entry
	nextSweep time.Time
}

// NewIdempotencyStore creates an empty store whose entries expire after ttl.
func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		ttl:       ttl,
		locks:     make(map[string]time.Time),
		entries:   make(map[string]entry),
		nextSweep: time.Now().Add(ttl),
	}
}

func compound(scope, key string) string { return scope + "\x00" + key }

// sweep drops expired locks and entries. Caller must hold s.mu.
func (s *IdempotencyStore) sweep(now time.Time) {
	if now.Before(s.nextSweep) {
		return
	}
	for k, exp := range s.locks {
		if now.After(exp) {
			delete(s.locks, k)
		}
	}
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
		}
	}
	s.nextSweep = now.Add(s.ttl)
}

// TryLock claims the key for the duration of one checkout attempt.
func (s *IdempotencyStore) TryLock(_ context.Context, scope, key string) (bool, error) {
	now := time.Now()
	k := compound(scope, key)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep(now)

	if exp, ok := s.locks[k]; ok && now.Before(exp) {
		return false, nil
	}
	s.locks[k] = now.Add(s.ttl)
	return true, nil
}

// Release frees the lock after a failed attempt.
func (s *IdempotencyStore) Release(_ context.Context, scope, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, compound(scope, key))
	return nil
}

// Remember records the order created under this key.
func (s *IdempotencyStore) Remember(_ context.Context, scope, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[compound(scope, key)] = entry{orderID: value, expiresAt: time.Now().Add(s.ttl)}
	return nil
}

// Recall returns the order previously created under this key, if any.
func (s *IdempotencyStore) Recall(_ context.Context, scope, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[compound(scope, key)]
	if !ok || time.Now().After(e.expiresAt) {
		return "", false, nil
	}
	return e.orderID, true, nil
}
