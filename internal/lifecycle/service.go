package lifecycle

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"agora/core/internal/store"
)

// Notification events emitted after a committed transition.
const (
	EventPublished  = "opinion.published"
	EventEvaluating = "opinion.evaluating"
	EventAccepted   = "opinion.accepted"
	EventRejected   = "opinion.rejected"
)

// ScoreAcceptedOpinions is the gamification counter adjusted for each
// coauthor when an opinion becomes (or stops being) publicly accepted.
const ScoreAcceptedOpinions = "opinions_accepted"

var ErrNotAuthorized = errors.New("actor is not a coauthor")

type dataStore interface {
	InTx(ctx context.Context, fn func(store.Mutator) error) error
	GetComponent(ctx context.Context, id string) (store.Component, error)
	ListCoauthors(ctx context.Context, opinionID string) ([]string, error)
	OpinionFollowers(ctx context.Context, opinionID string) ([]string, error)
	SpaceFollowers(ctx context.Context, spaceID string) ([]string, error)
}

type notifier interface {
	Publish(ctx context.Context, event, opinionID string, affected, followers []string, extra map[string]any) error
}

type scorer interface {
	Increment(ctx context.Context, identityID, counter string) error
	Decrement(ctx context.Context, identityID, counter string) error
}

type indexer interface {
	IndexOpinion(ctx context.Context, opinion store.Opinion)
	RemoveOpinion(ctx context.Context, opinionID string)
}

// Service owns the opinion lifecycle: publication, the staged answer, and
// the public reveal gate. Withdrawal lives in the amendments coordinator
// because it cascades.
type Service struct {
	store  dataStore
	notify notifier
	scores scorer
	search indexer
	log    *zap.SugaredLogger
}

func New(dataStore dataStore, notify notifier, scores scorer, search indexer, log *zap.SugaredLogger) *Service {
	return &Service{
		store:  dataStore,
		notify: notify,
		scores: scores,
		search: search,
		log:    log,
	}
}

// Publish moves a draft to published. The working title/body are frozen into
// the published snapshot at this instant; published_at is never cleared
// afterwards.
func (s *Service) Publish(ctx context.Context, opinionID, actorID string) error {
	var op store.Opinion
	err := s.store.InTx(ctx, func(m store.Mutator) error {
		var err error
		op, err = m.GetOpinionForUpdate(ctx, opinionID)
		if err != nil {
			return err
		}
		ok, err := m.IsCoauthor(ctx, opinionID, actorID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotAuthorized
		}
		if op.PublishedAt != nil || op.WithdrawnAt != nil {
			return ErrInvalidTransition
		}
		now := time.Now().UTC()
		op.PublishedAt = &now
		op.PublishedTitle = op.Title
		op.PublishedBody = op.Body
		return m.UpdateOpinion(ctx, op)
	})
	if err != nil {
		return err
	}
	s.publishSideEffects(ctx, op)
	return nil
}

// publishSideEffects notifies the opinion's own followers and the space's
// followers minus the former, each exactly once. Failures are logged, never
// propagated: the publication is already committed.
func (s *Service) publishSideEffects(ctx context.Context, op store.Opinion) {
	coauthors, err := s.store.ListCoauthors(ctx, op.ID)
	if err != nil {
		s.log.Warnw("load coauthors for publish notification", "opinion", op.ID, "error", err)
	}
	own, err := s.store.OpinionFollowers(ctx, op.ID)
	if err != nil {
		s.log.Warnw("load opinion followers", "opinion", op.ID, "error", err)
	}
	var space []string
	if comp, err := s.store.GetComponent(ctx, op.ComponentID); err != nil {
		s.log.Warnw("load component for publish notification", "opinion", op.ID, "error", err)
	} else if space, err = s.store.SpaceFollowers(ctx, comp.SpaceID); err != nil {
		s.log.Warnw("load space followers", "space", comp.SpaceID, "error", err)
	}

	if err := s.notify.Publish(ctx, EventPublished, op.ID, coauthors, own, nil); err != nil {
		s.log.Warnw("publish notification failed", "opinion", op.ID, "error", err)
	}
	if others := difference(space, own); len(others) > 0 {
		extra := map[string]any{"participatory_space": true}
		if err := s.notify.Publish(ctx, EventPublished, op.ID, coauthors, others, extra); err != nil {
			s.log.Warnw("space publish notification failed", "opinion", op.ID, "error", err)
		}
	}
	if s.search != nil {
		s.search.IndexOpinion(ctx, op)
	}
}

// AnswerInput carries the staged answer. Cost fields are opaque payload.
type AnswerInput struct {
	InternalState      State
	Answer             string
	Cost               string
	CostReport         string
	ExecutionPeriod    string
	PublishImmediately bool
}

// Answer stages an answer on a published opinion and, when asked to (or when
// the component always does), fires the public reveal gate. Notifications
// and score changes happen only when the gate flips unset to set, or when
// the internal state changed while already public.
func (s *Service) Answer(ctx context.Context, opinionID, actorID string, input AnswerInput) error {
	switch input.InternalState {
	case StateEvaluating, StateAccepted, StateRejected:
	default:
		return ErrInvalidTransition
	}

	var (
		op    store.Opinion
		prev  State
		fired bool
	)
	err := s.store.InTx(ctx, func(m store.Mutator) error {
		var err error
		op, err = m.GetOpinionForUpdate(ctx, opinionID)
		if err != nil {
			return err
		}
		if op.PublishedAt == nil || op.WithdrawnAt != nil {
			return ErrInvalidTransition
		}
		if !CanTransition(State(op.InternalState), input.InternalState) {
			return ErrInvalidTransition
		}
		comp, err := m.GetComponent(ctx, op.ComponentID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		op.InternalState = string(input.InternalState)
		op.Answer = input.Answer
		op.Cost = input.Cost
		op.CostReport = input.CostReport
		op.ExecutionPeriod = input.ExecutionPeriod
		op.AnsweredAt = &now

		if input.PublishImmediately || comp.PublishAnswersImmediately {
			if op.StatePublishedAt == nil {
				prev = StateNone
				fired = true
				op.StatePublishedAt = &now
				op.State = string(input.InternalState)
			} else if State(op.State) != input.InternalState {
				prev = State(op.State)
				fired = true
				op.State = string(input.InternalState)
			}
		}
		return m.UpdateOpinion(ctx, op)
	})
	if err != nil {
		return err
	}
	if fired {
		s.answerSideEffects(ctx, op, prev, State(op.State))
	}
	return nil
}

// PublishAnswer fires the reveal gate for one opinion. Idempotent: opinions
// without a staged answer, or already revealed, are left alone.
func (s *Service) PublishAnswer(ctx context.Context, opinionID string) error {
	var (
		op    store.Opinion
		fired bool
	)
	err := s.store.InTx(ctx, func(m store.Mutator) error {
		var err error
		op, err = m.GetOpinionForUpdate(ctx, opinionID)
		if err != nil {
			return err
		}
		if op.WithdrawnAt != nil || op.InternalState == "" || op.StatePublishedAt != nil {
			return nil
		}
		now := time.Now().UTC()
		op.StatePublishedAt = &now
		op.State = op.InternalState
		fired = true
		return m.UpdateOpinion(ctx, op)
	})
	if err != nil {
		return err
	}
	if fired {
		s.answerSideEffects(ctx, op, StateNone, State(op.State))
	}
	return nil
}

// ItemError reports a per-item failure of a best-effort batch operation.
type ItemError struct {
	OpinionID string
	Err       error
}

// PublishAnswersBulk fires the gate for each opinion, best effort. Failed
// items are reported and do not stop the batch.
func (s *Service) PublishAnswersBulk(ctx context.Context, opinionIDs []string) []ItemError {
	var failures []ItemError
	for _, id := range opinionIDs {
		if err := s.PublishAnswer(ctx, id); err != nil {
			failures = append(failures, ItemError{OpinionID: id, Err: err})
		}
	}
	return failures
}

func (s *Service) answerSideEffects(ctx context.Context, op store.Opinion, prev, next State) {
	coauthors, err := s.store.ListCoauthors(ctx, op.ID)
	if err != nil {
		s.log.Warnw("load coauthors for answer notification", "opinion", op.ID, "error", err)
	}
	followers, err := s.store.OpinionFollowers(ctx, op.ID)
	if err != nil {
		s.log.Warnw("load followers for answer notification", "opinion", op.ID, "error", err)
	}

	if event := answerEvent(next); event != "" {
		extra := map[string]any{"previous_state": string(prev)}
		if err := s.notify.Publish(ctx, event, op.ID, coauthors, followers, extra); err != nil {
			s.log.Warnw("answer notification failed", "opinion", op.ID, "event", event, "error", err)
		}
	}

	switch {
	case next == StateAccepted && prev != StateAccepted:
		for _, id := range coauthors {
			if err := s.scores.Increment(ctx, id, ScoreAcceptedOpinions); err != nil {
				s.log.Warnw("accepted score increment failed", "identity", id, "error", err)
			}
		}
	case prev == StateAccepted && next != StateAccepted:
		for _, id := range coauthors {
			if err := s.scores.Decrement(ctx, id, ScoreAcceptedOpinions); err != nil {
				s.log.Warnw("accepted score decrement failed", "identity", id, "error", err)
			}
		}
	}

	if s.search != nil {
		s.search.IndexOpinion(ctx, op)
	}
}

// AssignValuator grants a valuator role answer rights over an opinion.
// Duplicate assignments are no-ops.
func (s *Service) AssignValuator(ctx context.Context, opinionID, valuatorRoleID string) error {
	return s.store.InTx(ctx, func(m store.Mutator) error {
		if _, err := m.GetOpinion(ctx, opinionID); err != nil {
			return err
		}
		return m.InsertValuationAssignment(ctx, store.ValuationAssignment{
			OpinionID:      opinionID,
			ValuatorRoleID: valuatorRoleID,
		})
	})
}

func (s *Service) UnassignValuator(ctx context.Context, opinionID, valuatorRoleID string) error {
	return s.store.InTx(ctx, func(m store.Mutator) error {
		_, err := m.DeleteValuationAssignment(ctx, opinionID, valuatorRoleID)
		return err
	})
}

func answerEvent(state State) string {
	switch state {
	case StateEvaluating:
		return EventEvaluating
	case StateAccepted:
		return EventAccepted
	case StateRejected:
		return EventRejected
	}
	return ""
}

func difference(all, exclude []string) []string {
	if len(all) == 0 {
		return nil
	}
	excluded := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		excluded[id] = struct{}{}
	}
	result := make([]string, 0, len(all))
	for _, id := range all {
		if _, ok := excluded[id]; ok {
			continue
		}
		result = append(result, id)
	}
	return result
}
