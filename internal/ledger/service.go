package ledger

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"agora/core/internal/lifecycle"
	"agora/core/internal/store"
)

// Unlimited is returned by RemainingVotes when the component has no per-user
// vote limit.
const Unlimited = -1

// ScoreVotesCast is the gamification counter adjusted on every vote and
// unvote, independent of the temporary flag.
const ScoreVotesCast = "votes_cast"

var (
	ErrAlreadyVoted     = errors.New("voter already voted for this opinion")
	ErrThresholdReached = errors.New("vote threshold reached")
	ErrNotVotable       = errors.New("opinion is not votable")
)

type dataStore interface {
	InTx(ctx context.Context, fn func(store.Mutator) error) error
	GetComponent(ctx context.Context, id string) (store.Component, error)
	CountVoterConfirmedVotes(ctx context.Context, componentID, voterID string) (int, error)
}

type scorer interface {
	Increment(ctx context.Context, identityID, counter string) error
	Decrement(ctx context.Context, identityID, counter string) error
}

// Service is the vote ledger. Every mutation runs in one transaction under
// an advisory lock keyed by (component, voter) plus a row lock on the
// opinion, so concurrent votes by the same voter serialize and a vote can
// never race a withdrawal.
type Service struct {
	store  dataStore
	scores scorer
	log    *zap.SugaredLogger
}

func New(dataStore dataStore, scores scorer, log *zap.SugaredLogger) *Service {
	return &Service{store: dataStore, scores: scores, log: log}
}

// Vote records a vote for the opinion. The vote starts temporary when the
// component configures a per-user quorum; reconciliation may confirm it (and
// every other vote of the voter) in the same transaction.
func (s *Service) Vote(ctx context.Context, opinionID, voterID string) (store.Vote, error) {
	var vote store.Vote
	err := s.store.InTx(ctx, func(m store.Mutator) error {
		op, err := m.GetOpinionForUpdate(ctx, opinionID)
		if err != nil {
			return err
		}
		comp, err := m.GetComponent(ctx, op.ComponentID)
		if err != nil {
			return err
		}
		if err := m.LockVoter(ctx, comp.ID, voterID); err != nil {
			return err
		}
		voter, err := m.GetIdentity(ctx, voterID)
		if err != nil {
			return err
		}
		if voter.OrganizationID != comp.OrganizationID {
			return ErrNotVotable
		}
		if op.PublishedAt == nil || op.WithdrawnAt != nil || lifecycle.Public(op) == lifecycle.StateRejected {
			return ErrNotVotable
		}

		existing, err := m.GetVote(ctx, opinionID, voterID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAlreadyVoted
		}

		// Admission counts temporary votes too: a seat held below quorum
		// still occupies the ceiling, so confirming a batch can never push
		// an opinion past it. RemainingVotes reports confirmed votes only.
		if comp.VoteThreshold > 0 && !op.AllowOverflow {
			count, err := m.CountOpinionVotes(ctx, opinionID, false)
			if err != nil {
				return err
			}
			if count >= comp.VoteThreshold {
				return ErrThresholdReached
			}
		}
		if comp.VoteLimit > 0 {
			count, err := m.CountVoterVotes(ctx, comp.ID, voterID)
			if err != nil {
				return err
			}
			if count >= comp.VoteLimit {
				return ErrThresholdReached
			}
		}

		vote = store.Vote{
			OpinionID: opinionID,
			VoterID:   voterID,
			Temporary: comp.MinimumVotesPerUser > 0,
		}
		if err := m.InsertVote(ctx, vote); err != nil {
			return err
		}
		return s.reconcile(ctx, m, comp, voterID)
	})
	if err != nil {
		return store.Vote{}, err
	}
	if err := s.scores.Increment(ctx, voterID, ScoreVotesCast); err != nil {
		s.log.Warnw("vote score increment failed", "voter", voterID, "error", err)
	}
	return vote, nil
}

// Unvote removes the voter's vote. Removing a vote that does not exist is a
// no-op; the score counter only moves when a record was actually deleted.
func (s *Service) Unvote(ctx context.Context, opinionID, voterID string) error {
	deleted := false
	err := s.store.InTx(ctx, func(m store.Mutator) error {
		op, err := m.GetOpinionForUpdate(ctx, opinionID)
		if err != nil {
			return err
		}
		comp, err := m.GetComponent(ctx, op.ComponentID)
		if err != nil {
			return err
		}
		if err := m.LockVoter(ctx, comp.ID, voterID); err != nil {
			return err
		}
		deleted, err = m.DeleteVote(ctx, opinionID, voterID)
		if err != nil {
			return err
		}
		if !deleted {
			return nil
		}
		// The voter no longer has a vote here, so the batch refresh in
		// reconcile skips this opinion. Recount it explicitly.
		if err := m.RefreshOpinionVoteCount(ctx, opinionID); err != nil {
			return err
		}
		return s.reconcile(ctx, m, comp, voterID)
	})
	if err != nil {
		return err
	}
	if deleted {
		if err := s.scores.Decrement(ctx, voterID, ScoreVotesCast); err != nil {
			s.log.Warnw("vote score decrement failed", "voter", voterID, "error", err)
		}
	}
	return nil
}

// reconcile applies the quorum to the voter's whole vote set in the
// component: all temporary below quorum, all confirmed at or above it, never
// a mix. The denormalized opinion counters are refreshed for every opinion
// the voter touches, since a batch flip changes many tallies at once.
func (s *Service) reconcile(ctx context.Context, m store.Mutator, comp store.Component, voterID string) error {
	if comp.MinimumVotesPerUser > 0 {
		count, err := m.CountVoterVotes(ctx, comp.ID, voterID)
		if err != nil {
			return err
		}
		if err := m.SetVoterVotesTemporary(ctx, comp.ID, voterID, count < comp.MinimumVotesPerUser); err != nil {
			return err
		}
	}
	return m.RefreshVoterOpinionCounts(ctx, comp.ID, voterID)
}

// RemainingVotes reports how many votes the voter has left in the component,
// or Unlimited when no per-user limit is configured.
func (s *Service) RemainingVotes(ctx context.Context, voterID, componentID string) (int, error) {
	comp, err := s.store.GetComponent(ctx, componentID)
	if err != nil {
		return 0, err
	}
	if comp.VoteLimit <= 0 {
		return Unlimited, nil
	}
	count, err := s.store.CountVoterConfirmedVotes(ctx, componentID, voterID)
	if err != nil {
		return 0, err
	}
	remaining := comp.VoteLimit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
