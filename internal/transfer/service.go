// Package transfer moves opinions between components: bulk import with
// duplicate suppression, merging several opinions into one, and splitting
// one opinion into several. Every copy is tied to its originals through
// resource links so repeated transfers can be detected.
package transfer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"agora/core/internal/lifecycle"
	"agora/core/internal/store"
	"agora/core/internal/util"
)

var (
	ErrTooFewOpinions     = errors.New("merge requires at least two opinions")
	ErrMixedComponents    = errors.New("opinions belong to different components")
	ErrTargetIsSource     = errors.New("target component equals the source component")
	ErrOpinionWithdrawn   = errors.New("opinion is withdrawn")
	ErrOpinionUnpublished = errors.New("opinion is not published")
)

type dataStore interface {
	InTx(ctx context.Context, fn func(store.Mutator) error) error
	ListOpinionsByPublicState(ctx context.Context, componentID string, states []string) ([]store.Opinion, error)
}

type attachmentCopier interface {
	Copy(ctx context.Context, objectKey string) (string, error)
}

type indexer interface {
	IndexOpinion(ctx context.Context, opinion store.Opinion)
	RemoveOpinion(ctx context.Context, opinionID string)
}

type Service struct {
	store  dataStore
	attach attachmentCopier
	search indexer
	log    *zap.SugaredLogger
}

func New(dataStore dataStore, attach attachmentCopier, search indexer, log *zap.SugaredLogger) *Service {
	return &Service{store: dataStore, attach: attach, search: search, log: log}
}

// ImportInput selects which opinions move where. An empty States slice
// imports every published opinion of the source component.
type ImportInput struct {
	SourceComponentID string
	TargetComponentID string
	States            []lifecycle.State
	KeepAuthors       bool
}

// ItemError reports a single opinion that failed during a best-effort bulk
// operation.
type ItemError struct {
	OpinionID string
	Err       error
}

// Import copies the matching opinions of the source component into the
// target. Each opinion is copied in its own transaction; one failure does
// not stop the rest. An opinion already copied into the target component is
// skipped silently, so re-running an import never duplicates.
func (s *Service) Import(ctx context.Context, in ImportInput) ([]string, []ItemError, error) {
	if in.SourceComponentID == in.TargetComponentID {
		return nil, nil, ErrTargetIsSource
	}
	states := make([]string, 0, len(in.States))
	for _, state := range in.States {
		if state == lifecycle.StateNone {
			states = append(states, "not_answered")
			continue
		}
		states = append(states, string(state))
	}
	sources, err := s.store.ListOpinionsByPublicState(ctx, in.SourceComponentID, states)
	if err != nil {
		return nil, nil, err
	}

	var copied []store.Opinion
	var failed []ItemError
	for _, src := range sources {
		var cp store.Opinion
		skipped := false
		err := s.store.InTx(ctx, func(m store.Mutator) error {
			already, err := m.LinkedToComponent(ctx, src.ID, store.LinkCopiedFromComponent, in.TargetComponentID)
			if err != nil {
				return err
			}
			if already {
				skipped = true
				return nil
			}
			cp, err = s.copyOpinion(ctx, m, src, in.TargetComponentID, in.KeepAuthors)
			if err != nil {
				return err
			}
			return m.InsertResourceLink(ctx, store.ResourceLink{
				FromID: src.ID,
				ToID:   cp.ID,
				Reason: store.LinkCopiedFromComponent,
			})
		})
		if err != nil {
			s.log.Warnw("import opinion failed", "opinion", src.ID, "error", err)
			failed = append(failed, ItemError{OpinionID: src.ID, Err: err})
			continue
		}
		if !skipped {
			copied = append(copied, cp)
		}
	}

	ids := make([]string, 0, len(copied))
	for _, cp := range copied {
		ids = append(ids, cp.ID)
		if s.search != nil {
			s.search.IndexOpinion(ctx, cp)
		}
	}
	return ids, failed, nil
}

// Merge combines two or more opinions of one component into a single new
// opinion carrying the first one's content. Everything commits together.
// Merging into the same component consumes the originals: they are deleted
// and the copy inherits their provenance links one hop back. Merging into
// another component leaves the originals in place and links them to the copy.
func (s *Service) Merge(ctx context.Context, opinionIDs []string, targetComponentID string) (string, error) {
	if len(opinionIDs) < 2 {
		return "", ErrTooFewOpinions
	}
	var created store.Opinion
	var consumed []string
	err := s.store.InTx(ctx, func(m store.Mutator) error {
		sources, sameComponent, err := loadSources(ctx, m, opinionIDs, targetComponentID)
		if err != nil {
			return err
		}
		created, err = s.copyOpinion(ctx, m, sources[0], targetComponentID, sameComponent)
		if err != nil {
			return err
		}
		for _, src := range sources {
			if err := s.linkCopy(ctx, m, src, created, sameComponent); err != nil {
				return err
			}
		}
		if sameComponent {
			for _, src := range sources {
				if err := m.DeleteOpinion(ctx, src.ID); err != nil {
					return err
				}
				consumed = append(consumed, src.ID)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if s.search != nil {
		s.search.IndexOpinion(ctx, created)
		for _, id := range consumed {
			s.search.RemoveOpinion(ctx, id)
		}
	}
	return created.ID, nil
}

// Split fans one or more opinions out into copies: two per opinion when
// splitting into another component, one when splitting inside the same
// component, where the original stays published next to its copy. Link and
// deletion rules match Merge, except originals are never deleted.
func (s *Service) Split(ctx context.Context, opinionIDs []string, targetComponentID string) ([]string, error) {
	if len(opinionIDs) == 0 {
		return nil, nil
	}
	var created []store.Opinion
	err := s.store.InTx(ctx, func(m store.Mutator) error {
		sources, sameComponent, err := loadSources(ctx, m, opinionIDs, targetComponentID)
		if err != nil {
			return err
		}
		copies := 2
		if sameComponent {
			copies = 1
		}
		for _, src := range sources {
			for i := 0; i < copies; i++ {
				cp, err := s.copyOpinion(ctx, m, src, targetComponentID, sameComponent)
				if err != nil {
					return err
				}
				if err := s.linkCopy(ctx, m, src, cp, sameComponent); err != nil {
					return err
				}
				created = append(created, cp)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(created))
	for _, cp := range created {
		ids = append(ids, cp.ID)
		if s.search != nil {
			s.search.IndexOpinion(ctx, cp)
		}
	}
	return ids, nil
}

// loadSources locks the opinions, checks they are transferable and share one
// component, and reports whether that component is the target itself.
func loadSources(ctx context.Context, m store.Mutator, opinionIDs []string, targetComponentID string) ([]store.Opinion, bool, error) {
	sources := make([]store.Opinion, 0, len(opinionIDs))
	for _, id := range opinionIDs {
		op, err := m.GetOpinionForUpdate(ctx, id)
		if err != nil {
			return nil, false, err
		}
		if op.PublishedAt == nil {
			return nil, false, ErrOpinionUnpublished
		}
		if op.WithdrawnAt != nil {
			return nil, false, ErrOpinionWithdrawn
		}
		if len(sources) > 0 && op.ComponentID != sources[0].ComponentID {
			return nil, false, ErrMixedComponents
		}
		sources = append(sources, op)
	}
	return sources, sources[0].ComponentID == targetComponentID, nil
}

// copyOpinion creates a fresh published opinion in the target component with
// the source's content and none of its answer. Authors are carried over or
// replaced by the target organization's official identity.
func (s *Service) copyOpinion(ctx context.Context, m store.Mutator, src store.Opinion, targetComponentID string, keepAuthors bool) (store.Opinion, error) {
	target, err := m.GetComponent(ctx, targetComponentID)
	if err != nil {
		return store.Opinion{}, err
	}
	seq, err := m.NextReferenceSeq(ctx)
	if err != nil {
		return store.Opinion{}, err
	}

	now := time.Now().UTC()
	cp := store.Opinion{
		ID:             util.NewID("op"),
		ComponentID:    targetComponentID,
		Reference:      util.NewReference(seq),
		Title:          src.Title,
		Body:           src.Body,
		PublishedTitle: src.Title,
		PublishedBody:  src.Body,
		Category:       src.Category,
		PublishedAt:    &now,
	}
	if err := m.InsertOpinion(ctx, cp); err != nil {
		return store.Opinion{}, err
	}

	authors := []string{}
	if keepAuthors {
		if authors, err = m.ListCoauthors(ctx, src.ID); err != nil {
			return store.Opinion{}, err
		}
	} else {
		official, err := m.OrganizationIdentity(ctx, target.OrganizationID)
		if err != nil {
			return store.Opinion{}, err
		}
		authors = append(authors, official.ID)
	}
	for _, id := range authors {
		if err := m.InsertCoauthorship(ctx, cp.ID, id); err != nil {
			return store.Opinion{}, err
		}
	}

	attachments, err := m.ListAttachments(ctx, src.ID)
	if err != nil {
		return store.Opinion{}, err
	}
	for _, attachment := range attachments {
		key := attachment.ObjectKey
		if s.attach != nil {
			if key, err = s.attach.Copy(ctx, attachment.ObjectKey); err != nil {
				return store.Opinion{}, err
			}
		}
		if err := m.InsertAttachment(ctx, store.Attachment{
			ID:        util.NewID("att"),
			OpinionID: cp.ID,
			Title:     attachment.Title,
			ObjectKey: key,
		}); err != nil {
			return store.Opinion{}, err
		}
	}
	return cp, nil
}

// linkCopy records provenance. A same-component copy replaces its source, so
// the source's own transfer history moves to the copy instead of an edge to
// an opinion that is about to disappear or sit next to its twin.
func (s *Service) linkCopy(ctx context.Context, m store.Mutator, src, cp store.Opinion, sameComponent bool) error {
	if !sameComponent {
		return m.InsertResourceLink(ctx, store.ResourceLink{
			FromID: src.ID,
			ToID:   cp.ID,
			Reason: store.LinkCopiedFromComponent,
		})
	}
	partners, err := m.ListLinkPartners(ctx, src.ID, store.LinkCopiedFromComponent)
	if err != nil {
		return err
	}
	for _, partner := range partners {
		if err := m.InsertResourceLink(ctx, store.ResourceLink{
			FromID: partner,
			ToID:   cp.ID,
			Reason: store.LinkCopiedFromComponent,
		}); err != nil {
			return err
		}
	}
	return nil
}
