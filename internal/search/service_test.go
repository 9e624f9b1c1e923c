package search

import (
	"testing"
	"time"

	"agora/core/internal/store"
)

func TestRecordFromOpinion(t *testing.T) {
	now := time.Now().UTC()
	op := store.Opinion{
		ID:             "op1",
		ComponentID:    "comp1",
		Reference:      "AGORA-2026-42",
		PublishedTitle: "Bike lanes",
		PublishedBody:  "More of them",
		Category:       "mobility",
		State:          "accepted",
		InternalState:  "accepted",
		PublishedAt:    &now,
	}

	// Gate not fired: the staged answer must not leak into the index.
	record := recordFromOpinion(op)
	if record.State != "not_answered" {
		t.Fatalf("state = %q, want not_answered before the gate fires", record.State)
	}
	if record.Title != "Bike lanes" || record.Body != "More of them" {
		t.Fatalf("record = %+v", record)
	}

	op.StatePublishedAt = &now
	if got := recordFromOpinion(op).State; got != "accepted" {
		t.Fatalf("state = %q, want accepted after the gate fires", got)
	}
}

func TestFirstNonBlank(t *testing.T) {
	if got := firstNonBlank("", "  ", "x", "y"); got != "x" {
		t.Fatalf("got %q", got)
	}
	if got := firstNonBlank("", "  "); got != "" {
		t.Fatalf("got %q", got)
	}
}
