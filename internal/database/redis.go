package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClients keeps publishing and subscribing on separate connections;
// a subscribed connection cannot issue other commands.
type RedisClients struct {
	Publisher *redis.Client
	PubSub    *redis.Client
}

func NewRedisClients(redisURL string) (*RedisClients, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	publisher := redis.NewClient(opt)
	if err := publisher.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis (publisher): %w", err)
	}

	pubsubOpt := *opt
	pubsubClient := redis.NewClient(&pubsubOpt)
	if err := pubsubClient.Ping(ctx).Err(); err != nil {
		publisher.Close()
		return nil, fmt.Errorf("failed to ping Redis (pubsub): %w", err)
	}

	return &RedisClients{
		Publisher: publisher,
		PubSub:    pubsubClient,
	}, nil
}

func (r *RedisClients) Close() {
	r.Publisher.Close()
	r.PubSub.Close()
}
