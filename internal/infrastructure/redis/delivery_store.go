// Package redis keeps processed webhook delivery ids in Redis so that every
// replica rejects the same redelivery.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "storefront:webhook:delivery:"

type DeliveryStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDeliveryStore(redisURL string, ttl time.Duration) (*DeliveryStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &DeliveryStore{client: client, ttl: ttl}, nil
}

func (s *DeliveryStore) Close() error { return s.client.Close() }

func (s *DeliveryStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *DeliveryStore) Seen(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, keyPrefix+id).Result()
	if err != nil {
		return false, fmt.Errorf("delivery lookup: %w", err)
	}
	return n == 1, nil
}

func (s *DeliveryStore) Remember(ctx context.Context, id string) error {
	if err := s.client.Set(ctx, keyPrefix+id, time.Now().UTC().Format(time.RFC3339), s.ttl).Err(); err != nil {
		return fmt.Errorf("delivery remember: %w", err)
	}
	return nil
}
