package cache

import (
	"context"
	"time"

	"github.com/invoicehub/backend/internal/domain/shared"
	gocache "github.com/patrickmn/go-cache"
)

// DefaultCleanupInterval is how often expired entries are evicted
const DefaultCleanupInterval = 10 * time.Minute

// InMemoryIdempotencyStore implements shared.IdempotencyStore on go-cache.
// State is per process, so it only suits single-instance deployments and tests.
type InMemoryIdempotencyStore struct {
	cache *gocache.Cache
}

// NewInMemoryIdempotencyStore creates an in-memory store
func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	return &InMemoryIdempotencyStore{
		cache: gocache.New(shared.DefaultIdempotencyConfig().TTL, DefaultCleanupInterval),
	}
}

// Claim marks key as in flight; Add fails atomically if the key exists
func (s *InMemoryIdempotencyStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if err := s.cache.Add(key, pendingMarker, ttl); err != nil {
		return false, nil
	}
	return true, nil
}

// Complete stores the result of key
func (s *InMemoryIdempotencyStore) Complete(_ context.Context, key string, result []byte, ttl time.Duration) error {
	s.cache.Set(key, encodeResult(result), ttl)
	return nil
}

// Load returns the completed result of key
func (s *InMemoryIdempotencyStore) Load(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	value, _ := v.(string)
	result, done := decodeResult(value)
	return result, done, nil
}

// Release drops the claim on key
func (s *InMemoryIdempotencyStore) Release(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

// Size returns the number of live entries
func (s *InMemoryIdempotencyStore) Size() int {
	return s.cache.ItemCount()
}

// Close drops every entry
func (s *InMemoryIdempotencyStore) Close() error {
	s.cache.Flush()
	return nil
}

var _ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
