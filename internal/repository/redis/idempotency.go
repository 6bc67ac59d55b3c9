package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyPrefix = "storefront:idempotency:"
	inFlight          = "__in_flight__"
)

// releaseScript deletes a key only while it still holds the in-flight marker,
// so a late Release never erases a completed order number.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// IdempotencyStore implements repository.IdempotencyStore on Redis.
type IdempotencyStore struct {
	client redis.UniversalClient
}

// NewIdempotencyStore creates a Redis-backed place-order idempotency store.
func NewIdempotencyStore(client redis.UniversalClient) *IdempotencyStore {
	return &IdempotencyStore{client: client}
}

func (s *IdempotencyStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, idempotencyPrefix+key, inFlight, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis acquire idempotency key: %w", err)
	}
	return ok, nil
}

func (s *IdempotencyStore) Complete(ctx context.Context, key, orderNumber string, ttl time.Duration) error {
	if err := s.client.Set(ctx, idempotencyPrefix+key, orderNumber, ttl).Err(); err != nil {
		return fmt.Errorf("redis complete idempotency key: %w", err)
	}
	return nil
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if err := releaseScript.Run(ctx, s.client, []string{idempotencyPrefix + key}, inFlight).Err(); err != nil {
		return fmt.Errorf("redis release idempotency key: %w", err)
	}
	return nil
}

func (s *IdempotencyStore) Lookup(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, idempotencyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis lookup idempotency key: %w", err)
	}
	if v == inFlight {
		return "", false, nil
	}
	return v, true, nil
}
