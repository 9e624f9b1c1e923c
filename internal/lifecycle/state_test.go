package lifecycle

import (
	"testing"
	"time"

	"agora/core/internal/store"
)

func TestParse(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want State
		ok   bool
	}{
		{"", StateNone, true},
		{"not_answered", StateNone, true},
		{"evaluating", StateEvaluating, true},
		{"accepted", StateAccepted, true},
		{"rejected", StateRejected, true},
		{"withdrawn", StateWithdrawn, true},
		{"bogus", StateNone, false},
		{"ACCEPTED", StateNone, false},
	} {
		got, err := Parse(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Errorf("Parse(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Errorf("Parse(%q) succeeded, want error", tc.in)
		}
	}
}

func TestCanTransition(t *testing.T) {
	answered := []State{StateEvaluating, StateAccepted, StateRejected}

	// Withdrawn is terminal.
	for _, to := range append(answered, StateNone, StateWithdrawn) {
		if CanTransition(StateWithdrawn, to) {
			t.Errorf("withdrawn -> %q allowed", to)
		}
	}

	// Answers can be revised freely between the answered states.
	for _, from := range answered {
		for _, to := range answered {
			if !CanTransition(from, to) {
				t.Errorf("%q -> %q denied", from, to)
			}
		}
		if CanTransition(from, StateNone) {
			t.Errorf("%q -> not answered allowed", from)
		}
		if !CanTransition(from, StateWithdrawn) {
			t.Errorf("%q -> withdrawn denied", from)
		}
	}

	if !CanTransition(StateNone, StateEvaluating) || !CanTransition(StateNone, StateWithdrawn) {
		t.Error("transitions out of the unanswered state denied")
	}
}

func TestPublic(t *testing.T) {
	now := time.Now().UTC()
	op := store.Opinion{State: "accepted", InternalState: "accepted", PublishedAt: &now}

	// Gate not fired: the staged answer must not leak.
	if got := Public(op); got != StateNone {
		t.Fatalf("Public = %q, want none before the gate fires", got)
	}

	op.StatePublishedAt = &now
	if got := Public(op); got != StateAccepted {
		t.Fatalf("Public = %q, want accepted", got)
	}

	op.WithdrawnAt = &now
	if got := Public(op); got != StateWithdrawn {
		t.Fatalf("Public = %q, want withdrawn", got)
	}
}
