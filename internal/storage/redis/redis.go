package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/BariVakhidov/waitingroom/internal/storage"
	"github.com/redis/go-redis/v9"
)

type Storage struct {
	client *redis.Client
	ttl    time.Duration
}

func New(addr string, ttl time.Duration) *Storage {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // no password set
		DB:       0,  // use default DB
	})

	return &Storage{client: client, ttl: ttl}
}

// AcquireReclaimLock takes the shared reclamation lock. Only one process holds
// it per TTL window; losing the race is reported as ErrLockNotAcquired, not a
// failure. The reclamation scan itself is idempotent, the lock only prevents
// every instance from scanning on the same cadence.
func (s *Storage) AcquireReclaimLock(ctx context.Context, instanceID string) error {
	const op = "storage.redis.AcquireReclaimLock"

	ok, err := s.client.SetNX(ctx, "waitingroom:reclaim_lock", instanceID, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrLockNotAcquired)
	}

	return nil
}

// ReleaseReclaimLock drops the lock if this instance still owns it. A lock
// that expired and was re-acquired by another instance is left untouched.
func (s *Storage) ReleaseReclaimLock(ctx context.Context, instanceID string) error {
	const op = "storage.redis.ReleaseReclaimLock"

	owner, err := s.client.Get(ctx, "waitingroom:reclaim_lock").Result()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if owner != instanceID {
		return nil
	}

	if err := s.client.Del(ctx, "waitingroom:reclaim_lock").Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) Stop() error {
	const op = "storage.redis.Stop"

	if err := s.client.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
