package port

import (
	"context"
	"time"
)

// LockStore provides coarse advisory locks for operations that need a
// single-writer guarantee across instances (reconciliation runs, the
// first-user bootstrap).
type LockStore interface {
	// Acquire takes the named lock for at most ttl. It returns false
	// without error when another holder owns the lock.
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
}
