package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const processedPrefix = "storefront:processed-event:"

// ProcessedEventStore remembers handled Kafka event ids for a retention
// window. It satisfies kafka.IdempotencyStore.
type ProcessedEventStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewProcessedEventStore creates a store that forgets ids after ttl.
func NewProcessedEventStore(client redis.UniversalClient, ttl time.Duration) *ProcessedEventStore {
	return &ProcessedEventStore{client: client, ttl: ttl}
}

func (s *ProcessedEventStore) Contains(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, processedPrefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists processed event: %w", err)
	}
	return n > 0, nil
}

func (s *ProcessedEventStore) Add(ctx context.Context, eventID string) error {
	if err := s.client.Set(ctx, processedPrefix+eventID, 1, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set processed event: %w", err)
	}
	return nil
}
