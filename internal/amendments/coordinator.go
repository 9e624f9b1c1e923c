package amendments

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"agora/core/internal/lifecycle"
	"agora/core/internal/store"
	"agora/core/internal/util"
)

// ErrHasVotes blocks withdrawal of an opinion that already gathered support.
var ErrHasVotes = errors.New("opinion has votes and cannot be withdrawn")

type dataStore interface {
	InTx(ctx context.Context, fn func(store.Mutator) error) error
}

// reviewer is the amendment-review collaborator: it rejects the pending
// amendment attached to an emendation, reporting whether one was rejected.
type reviewer interface {
	RejectPending(ctx context.Context, emendationID string) (bool, error)
}

// attachmentCopier duplicates a stored object and returns the new key.
type attachmentCopier interface {
	Copy(ctx context.Context, objectKey string) (string, error)
}

type indexer interface {
	IndexOpinion(ctx context.Context, opinion store.Opinion)
	RemoveOpinion(ctx context.Context, opinionID string)
}

// Coordinator orchestrates the transitions that cascade beyond a single
// opinion: withdrawal (which touches emendations and is fenced by the vote
// ledger's locks) and collaborative-draft promotion.
type Coordinator struct {
	store  dataStore
	review reviewer
	attach attachmentCopier
	search indexer
	log    *zap.SugaredLogger
}

func New(dataStore dataStore, review reviewer, attach attachmentCopier, search indexer, log *zap.SugaredLogger) *Coordinator {
	return &Coordinator{store: dataStore, review: review, attach: attach, search: search, log: log}
}

// Withdraw moves the opinion to the terminal withdrawn state. The zero-vote
// precondition is checked under the same row lock Vote takes, so a vote and
// a withdrawal cannot interleave. The emendation cascade asks the review
// collaborator to reject pending amendments and stops after the first
// successful rejection.
func (c *Coordinator) Withdraw(ctx context.Context, opinionID, actorID string) error {
	var emendations []store.Opinion
	err := c.store.InTx(ctx, func(m store.Mutator) error {
		op, err := m.GetOpinionForUpdate(ctx, opinionID)
		if err != nil {
			return err
		}
		ok, err := m.IsCoauthor(ctx, opinionID, actorID)
		if err != nil {
			return err
		}
		if !ok {
			return lifecycle.ErrNotAuthorized
		}
		if !lifecycle.CanTransition(lifecycle.Public(op), lifecycle.StateWithdrawn) {
			return lifecycle.ErrInvalidTransition
		}
		votes, err := m.CountOpinionVotes(ctx, opinionID, true)
		if err != nil {
			return err
		}
		if votes > 0 {
			return ErrHasVotes
		}

		now := time.Now().UTC()
		op.WithdrawnAt = &now
		op.State = string(lifecycle.StateWithdrawn)
		if err := m.UpdateOpinion(ctx, op); err != nil {
			return err
		}
		emendations, err = m.ListEmendations(ctx, opinionID)
		return err
	})
	if err != nil {
		return err
	}

	for _, emendation := range emendations {
		rejected, err := c.review.RejectPending(ctx, emendation.ID)
		if err != nil {
			c.log.Warnw("emendation rejection failed", "emendation", emendation.ID, "error", err)
			continue
		}
		if rejected {
			break
		}
	}

	if c.search != nil {
		c.search.RemoveOpinion(ctx, opinionID)
	}
	return nil
}

// PublishDraft promotes a collaborative draft into a first-class opinion,
// copying coauthors, category and attachments, and linking draft to opinion.
// The new opinion and the provenance link commit together or not at all;
// rejecting pending access requests to the draft is best effort afterwards.
func (c *Coordinator) PublishDraft(ctx context.Context, draftID, actorID string) (string, error) {
	var created store.Opinion
	err := c.store.InTx(ctx, func(m store.Mutator) error {
		draft, err := m.GetOpinionForUpdate(ctx, draftID)
		if err != nil {
			return err
		}
		ok, err := m.IsCoauthor(ctx, draftID, actorID)
		if err != nil {
			return err
		}
		if !ok {
			return lifecycle.ErrNotAuthorized
		}
		if draft.PublishedAt != nil || draft.WithdrawnAt != nil {
			return lifecycle.ErrInvalidTransition
		}

		seq, err := m.NextReferenceSeq(ctx)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		created = store.Opinion{
			ID:             util.NewID("op"),
			ComponentID:    draft.ComponentID,
			Reference:      util.NewReference(seq),
			Title:          draft.Title,
			Body:           draft.Body,
			PublishedTitle: draft.Title,
			PublishedBody:  draft.Body,
			Category:       draft.Category,
			PublishedAt:    &now,
		}
		if err := m.InsertOpinion(ctx, created); err != nil {
			return err
		}

		coauthors, err := m.ListCoauthors(ctx, draftID)
		if err != nil {
			return err
		}
		for _, id := range coauthors {
			if err := m.InsertCoauthorship(ctx, created.ID, id); err != nil {
				return err
			}
		}

		attachments, err := m.ListAttachments(ctx, draftID)
		if err != nil {
			return err
		}
		for _, attachment := range attachments {
			key := attachment.ObjectKey
			if c.attach != nil {
				if key, err = c.attach.Copy(ctx, attachment.ObjectKey); err != nil {
					return err
				}
			}
			if err := m.InsertAttachment(ctx, store.Attachment{
				ID:        util.NewID("att"),
				OpinionID: created.ID,
				Title:     attachment.Title,
				ObjectKey: key,
			}); err != nil {
				return err
			}
		}

		return m.InsertResourceLink(ctx, store.ResourceLink{
			FromID: draftID,
			ToID:   created.ID,
			Reason: store.LinkCreatedFromCollaborativeDraft,
		})
	})
	if err != nil {
		return "", err
	}

	if err := c.store.InTx(ctx, func(m store.Mutator) error {
		_, err := m.RejectPendingAccessRequests(ctx, draftID)
		return err
	}); err != nil {
		c.log.Warnw("rejecting draft access requests failed", "draft", draftID, "error", err)
	}

	if c.search != nil {
		c.search.IndexOpinion(ctx, created)
	}
	return created.ID, nil
}

// Review is the store-backed amendment reviewer used when no external
// review system is wired in.
type Review struct {
	store dataStore
}

func NewReview(dataStore dataStore) *Review {
	return &Review{store: dataStore}
}

// RejectPending rejects the emendation's pending amendment, if any.
func (r *Review) RejectPending(ctx context.Context, emendationID string) (bool, error) {
	rejected := false
	err := r.store.InTx(ctx, func(m store.Mutator) error {
		pending, err := m.PendingAmendment(ctx, emendationID)
		if err != nil {
			return err
		}
		if pending == nil {
			return nil
		}
		rejected, err = m.UpdateAmendmentStatus(ctx, pending.ID, store.AmendmentRejected)
		return err
	})
	if err != nil {
		return false, err
	}
	return rejected, nil
}
