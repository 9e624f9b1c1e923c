// Package notify fans lifecycle events out to followers through a Redis
// channel. Consumers (mailers, in-app notification feeds) subscribe to the
// channel and render the events; this side only publishes.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Channel is the pub/sub channel every event goes to.
const Channel = "agora:events"

// Event is the wire format. Affected identities took part in what happened
// (coauthors, usually); followers merely subscribed to it.
type Event struct {
	Name      string         `json:"name"`
	OpinionID string         `json:"opinion_id"`
	Affected  []string       `json:"affected,omitempty"`
	Followers []string       `json:"followers,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
	At        time.Time      `json:"at"`
}

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

func (r *Redis) Publish(ctx context.Context, name, opinionID string, affected, followers []string, extra map[string]any) error {
	payload, err := json.Marshal(Event{
		Name:      name,
		OpinionID: opinionID,
		Affected:  affected,
		Followers: followers,
		Extra:     extra,
		At:        time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := r.client.Publish(ctx, Channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event %s: %w", name, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
