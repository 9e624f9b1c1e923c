package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestPublish(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	n, err := NewRedis(ctx, "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("new redis notifier: %v", err)
	}
	defer n.Close()

	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()}).Subscribe(ctx, Channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	err = n.Publish(ctx, "opinion.accepted", "op1",
		[]string{"alice"}, []string{"bob", "carol"},
		map[string]any{"previous_state": "evaluating"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		var event Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if event.Name != "opinion.accepted" || event.OpinionID != "op1" {
			t.Fatalf("event = %+v", event)
		}
		if len(event.Affected) != 1 || len(event.Followers) != 2 {
			t.Fatalf("recipients = %v / %v", event.Affected, event.Followers)
		}
		if event.Extra["previous_state"] != "evaluating" {
			t.Fatalf("extra = %v", event.Extra)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestNewRedisBadURL(t *testing.T) {
	if _, err := NewRedis(context.Background(), "not-a-url"); err == nil {
		t.Fatal("expected error for malformed url")
	}
}
