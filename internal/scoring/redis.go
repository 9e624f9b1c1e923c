// Package scoring keeps per-identity engagement counters in Redis. Counters
// are advisory (badges, leaderboards) so writes are fire-and-forget from the
// callers' point of view; the database never depends on them.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "agora:scores:"

type Redis struct {
	client *redis.Client
}

func NewRedis(ctx context.Context, redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{client: client}, nil
}

func (r *Redis) Increment(ctx context.Context, identityID, counter string) error {
	if err := r.client.HIncrBy(ctx, keyPrefix+identityID, counter, 1).Err(); err != nil {
		return fmt.Errorf("increment %s for %s: %w", counter, identityID, err)
	}
	return nil
}

// Decrement lowers a counter, clamping at zero; a counter can never go
// negative even if an undo arrives after a crash lost the original bump.
func (r *Redis) Decrement(ctx context.Context, identityID, counter string) error {
	value, err := r.client.HIncrBy(ctx, keyPrefix+identityID, counter, -1).Result()
	if err != nil {
		return fmt.Errorf("decrement %s for %s: %w", counter, identityID, err)
	}
	if value < 0 {
		if err := r.client.HSet(ctx, keyPrefix+identityID, counter, 0).Err(); err != nil {
			return fmt.Errorf("clamp %s for %s: %w", counter, identityID, err)
		}
	}
	return nil
}

func (r *Redis) Score(ctx context.Context, identityID, counter string) (int64, error) {
	value, err := r.client.HGet(ctx, keyPrefix+identityID, counter).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s for %s: %w", counter, identityID, err)
	}
	return value, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
