package lifecycle

import (
	"errors"
	"fmt"

	"agora/core/internal/store"
)

// State is an opinion's answer state. The zero value means "published, not
// answered"; drafts are recognized by a nil published_at, not by a state.
type State string

const (
	StateNone       State = ""
	StateEvaluating State = "evaluating"
	StateAccepted   State = "accepted"
	StateRejected   State = "rejected"
	StateWithdrawn  State = "withdrawn"
)

var ErrInvalidTransition = errors.New("invalid state transition")

// Parse validates a state name. The empty string and "not_answered" both map
// to StateNone.
func Parse(s string) (State, error) {
	switch s {
	case "", "not_answered":
		return StateNone, nil
	case "evaluating":
		return StateEvaluating, nil
	case "accepted":
		return StateAccepted, nil
	case "rejected":
		return StateRejected, nil
	case "withdrawn":
		return StateWithdrawn, nil
	}
	return StateNone, fmt.Errorf("unknown state %q", s)
}

// CanTransition is the closed transition table. Withdrawn is terminal; an
// answer can be revised between the three answered states any number of
// times; nothing ever returns to not-answered.
func CanTransition(from, to State) bool {
	if from == StateWithdrawn {
		return false
	}
	switch to {
	case StateEvaluating, StateAccepted, StateRejected, StateWithdrawn:
		return true
	case StateNone:
		return from == StateNone
	}
	return false
}

// Public returns the state visible to participants. Before the
// state_published_at gate fires the staged internal answer must not leak.
func Public(op store.Opinion) State {
	if op.WithdrawnAt != nil {
		return StateWithdrawn
	}
	if op.StatePublishedAt == nil {
		return StateNone
	}
	return State(op.State)
}
