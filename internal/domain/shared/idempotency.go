package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers the outcome of requests carrying an
// Idempotency-Key so replays return the original result.
type IdempotencyStore interface {
	// Claim marks key as in flight. It returns false if the key was already
	// claimed or completed.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Complete stores the serialized result for a claimed key
	Complete(ctx context.Context, key string, result []byte, ttl time.Duration) error

	// Load returns the stored result. found is false for unknown keys and for
	// keys that are claimed but not yet completed.
	Load(ctx context.Context, key string) (result []byte, found bool, err error)

	// Release drops a claim so the request can be retried after a failure
	Release(ctx context.Context, key string) error

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is how long a completed result is replayed
	TTL time.Duration

	// Enabled determines whether idempotency keys are honoured
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
