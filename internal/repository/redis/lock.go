package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/uzswlu/campus-iam/internal/core/port"
)

const defaultLockPrefix = "iam:lock"

// LockStore implements port.LockStore with SET NX advisory locks. Locks
// expire on their own so a crashed holder cannot wedge reconciliation.
type LockStore struct {
	client *red.Client
	prefix string
}

// NewLockStore constructs a redis-backed lock store.
func NewLockStore(client *red.Client, keyPrefix string) *LockStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultLockPrefix
	}

	return &LockStore{client: client, prefix: prefix}
}

// Acquire takes the named lock for at most ttl. Returns false when
// another holder owns it.
func (s *LockStore) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	key := s.key(name)
	if key == "" {
		return false, fmt.Errorf("lock name is required")
	}
	if ttl <= 0 {
		return false, fmt.Errorf("ttl must be positive")
	}

	ok, err := s.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis acquire lock: %w", err)
	}
	return ok, nil
}

// Release drops the named lock.
func (s *LockStore) Release(ctx context.Context, name string) error {
	key := s.key(name)
	if key == "" {
		return fmt.Errorf("lock name is required")
	}

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis release lock: %w", err)
	}
	return nil
}

func (s *LockStore) key(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", s.prefix, name)
}

var _ port.LockStore = (*LockStore)(nil)
