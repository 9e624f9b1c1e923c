package scoring

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func newScores(t *testing.T) *Redis {
	t.Helper()
	mr := miniredis.RunT(t)
	scores, err := NewRedis(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("new redis scores: %v", err)
	}
	t.Cleanup(func() { scores.Close() })
	return scores
}

func TestIncrementDecrement(t *testing.T) {
	scores := newScores(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := scores.Increment(ctx, "alice", "votes_cast"); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	if err := scores.Decrement(ctx, "alice", "votes_cast"); err != nil {
		t.Fatalf("decrement: %v", err)
	}

	got, err := scores.Score(ctx, "alice", "votes_cast")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if got != 2 {
		t.Fatalf("score = %d, want 2", got)
	}
}

func TestDecrementClampsAtZero(t *testing.T) {
	scores := newScores(t)
	ctx := context.Background()

	if err := scores.Decrement(ctx, "alice", "opinions_accepted"); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	got, err := scores.Score(ctx, "alice", "opinions_accepted")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if got != 0 {
		t.Fatalf("score = %d, want 0", got)
	}
}

func TestScoreUnknownIdentity(t *testing.T) {
	scores := newScores(t)

	got, err := scores.Score(context.Background(), "nobody", "votes_cast")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if got != 0 {
		t.Fatalf("score = %d, want 0", got)
	}
}

func TestCountersAreIndependent(t *testing.T) {
	scores := newScores(t)
	ctx := context.Background()

	if err := scores.Increment(ctx, "alice", "votes_cast"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := scores.Increment(ctx, "alice", "opinions_accepted"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := scores.Increment(ctx, "bob", "votes_cast"); err != nil {
		t.Fatalf("increment: %v", err)
	}

	if got, _ := scores.Score(ctx, "alice", "votes_cast"); got != 1 {
		t.Fatalf("alice votes_cast = %d, want 1", got)
	}
	if got, _ := scores.Score(ctx, "bob", "opinions_accepted"); got != 0 {
		t.Fatalf("bob opinions_accepted = %d, want 0", got)
	}
}
