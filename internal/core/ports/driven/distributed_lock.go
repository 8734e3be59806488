package driven

import (
	"context"
	"time"
)

// DistributedLock provides distributed locking for coordinating work across
// instances. It enforces the one-active-pipeline-per-document invariant.
type DistributedLock interface {
	// Acquire attempts to acquire a named lock with the given TTL.
	// Returns true if the lock was acquired, false if already held elsewhere.
	Acquire(ctx context.Context, name string, ttl time.Duration) (acquired bool, err error)

	// Release releases a named lock. Best-effort; TTL-based implementations
	// auto-expire anyway. Safe to call when the lock is not held.
	Release(ctx context.Context, name string) error

	// Extend extends the TTL of a currently held lock.
	// Returns error if the lock is not held by this instance.
	Extend(ctx context.Context, name string, ttl time.Duration) error

	// Ping checks if the lock backend is healthy.
	Ping(ctx context.Context) error
}
