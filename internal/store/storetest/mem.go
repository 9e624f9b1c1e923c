// Package storetest provides an in-memory stand-in for the Postgres store so
// service tests can exercise transactional flows without a database.
package storetest

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"agora/core/internal/store"
)

// Mem implements store.Mutator over maps and hands itself to InTx callbacks.
// It has no rollback; tests that care about partial failure inject errors via
// the Fail* hooks and assert on the resulting state.
type Mem struct {
	Components  map[string]store.Component
	Identities  map[string]store.Identity
	Opinions    map[string]store.Opinion
	Coauthors   map[string][]string
	Votes       map[string]store.Vote
	Links       []store.ResourceLink
	Attachments map[string][]store.Attachment
	Amendments  []store.Amendment

	OpinionFollowerIDs map[string][]string
	SpaceFollowerIDs   map[string][]string
	PendingRequests    map[string]int

	RefSeq int64

	FailInsertOpinion func(op store.Opinion) error
}

func NewMem() *Mem {
	return &Mem{
		Components:         map[string]store.Component{},
		Identities:         map[string]store.Identity{},
		Opinions:           map[string]store.Opinion{},
		Coauthors:          map[string][]string{},
		Votes:              map[string]store.Vote{},
		Attachments:        map[string][]store.Attachment{},
		OpinionFollowerIDs: map[string][]string{},
		SpaceFollowerIDs:   map[string][]string{},
		PendingRequests:    map[string]int{},
	}
}

var _ store.Mutator = (*Mem)(nil)

func voteKey(opinionID, voterID string) string { return opinionID + "|" + voterID }

func (m *Mem) InTx(ctx context.Context, fn func(store.Mutator) error) error {
	return fn(m)
}

func (m *Mem) LockVoter(ctx context.Context, componentID, voterID string) error { return nil }

func (m *Mem) GetIdentity(ctx context.Context, id string) (store.Identity, error) {
	identity, ok := m.Identities[id]
	if !ok {
		return store.Identity{}, fmt.Errorf("get identity %s: %w", id, sql.ErrNoRows)
	}
	return identity, nil
}

func (m *Mem) OrganizationIdentity(ctx context.Context, organizationID string) (store.Identity, error) {
	for _, identity := range m.Identities {
		if identity.OrganizationID == organizationID && identity.Kind == "organization" {
			return identity, nil
		}
	}
	return store.Identity{}, fmt.Errorf("organization identity %s: %w", organizationID, sql.ErrNoRows)
}

func (m *Mem) GetComponent(ctx context.Context, id string) (store.Component, error) {
	comp, ok := m.Components[id]
	if !ok {
		return store.Component{}, fmt.Errorf("get component %s: %w", id, sql.ErrNoRows)
	}
	return comp, nil
}

func (m *Mem) GetOpinion(ctx context.Context, id string) (store.Opinion, error) {
	op, ok := m.Opinions[id]
	if !ok {
		return store.Opinion{}, fmt.Errorf("get opinion %s: %w", id, sql.ErrNoRows)
	}
	return op, nil
}

func (m *Mem) GetOpinionForUpdate(ctx context.Context, id string) (store.Opinion, error) {
	return m.GetOpinion(ctx, id)
}

func (m *Mem) InsertOpinion(ctx context.Context, opinion store.Opinion) error {
	if m.FailInsertOpinion != nil {
		if err := m.FailInsertOpinion(opinion); err != nil {
			return err
		}
	}
	m.Opinions[opinion.ID] = opinion
	return nil
}

func (m *Mem) UpdateOpinion(ctx context.Context, opinion store.Opinion) error {
	if _, ok := m.Opinions[opinion.ID]; !ok {
		return fmt.Errorf("update opinion %s: %w", opinion.ID, sql.ErrNoRows)
	}
	m.Opinions[opinion.ID] = opinion
	return nil
}

func (m *Mem) DeleteOpinion(ctx context.Context, id string) error {
	delete(m.Opinions, id)
	return nil
}

func (m *Mem) IsCoauthor(ctx context.Context, opinionID, identityID string) (bool, error) {
	for _, id := range m.Coauthors[opinionID] {
		if id == identityID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Mem) ListCoauthors(ctx context.Context, opinionID string) ([]string, error) {
	return append([]string(nil), m.Coauthors[opinionID]...), nil
}

func (m *Mem) InsertCoauthorship(ctx context.Context, opinionID, identityID string) error {
	m.Coauthors[opinionID] = append(m.Coauthors[opinionID], identityID)
	if op, ok := m.Opinions[opinionID]; ok {
		op.CoauthorshipsCount++
		m.Opinions[opinionID] = op
	}
	return nil
}

func (m *Mem) GetVote(ctx context.Context, opinionID, voterID string) (*store.Vote, error) {
	if vote, ok := m.Votes[voteKey(opinionID, voterID)]; ok {
		v := vote
		return &v, nil
	}
	return nil, nil
}

func (m *Mem) InsertVote(ctx context.Context, vote store.Vote) error {
	m.Votes[voteKey(vote.OpinionID, vote.VoterID)] = vote
	return nil
}

func (m *Mem) DeleteVote(ctx context.Context, opinionID, voterID string) (bool, error) {
	key := voteKey(opinionID, voterID)
	if _, ok := m.Votes[key]; !ok {
		return false, nil
	}
	delete(m.Votes, key)
	return true, nil
}

func (m *Mem) voterVotes(componentID, voterID string) []store.Vote {
	var votes []store.Vote
	for _, vote := range m.Votes {
		if vote.VoterID != voterID {
			continue
		}
		if op, ok := m.Opinions[vote.OpinionID]; ok && op.ComponentID == componentID && op.WithdrawnAt == nil {
			votes = append(votes, vote)
		}
	}
	return votes
}

func (m *Mem) CountVoterVotes(ctx context.Context, componentID, voterID string) (int, error) {
	return len(m.voterVotes(componentID, voterID)), nil
}

func (m *Mem) CountVoterConfirmedVotes(ctx context.Context, componentID, voterID string) (int, error) {
	n := 0
	for _, vote := range m.voterVotes(componentID, voterID) {
		if !vote.Temporary {
			n++
		}
	}
	return n, nil
}

func (m *Mem) CountOpinionVotes(ctx context.Context, opinionID string, confirmedOnly bool) (int, error) {
	n := 0
	for _, vote := range m.Votes {
		if vote.OpinionID != opinionID {
			continue
		}
		if confirmedOnly && vote.Temporary {
			continue
		}
		n++
	}
	return n, nil
}

func (m *Mem) SetVoterVotesTemporary(ctx context.Context, componentID, voterID string, temporary bool) error {
	for key, vote := range m.Votes {
		if vote.VoterID != voterID {
			continue
		}
		if op, ok := m.Opinions[vote.OpinionID]; ok && op.ComponentID == componentID && op.WithdrawnAt == nil {
			vote.Temporary = temporary
			m.Votes[key] = vote
		}
	}
	return nil
}

func (m *Mem) RefreshVoterOpinionCounts(ctx context.Context, componentID, voterID string) error {
	for _, vote := range m.voterVotes(componentID, voterID) {
		if err := m.RefreshOpinionVoteCount(ctx, vote.OpinionID); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mem) RefreshOpinionVoteCount(ctx context.Context, opinionID string) error {
	op, ok := m.Opinions[opinionID]
	if !ok {
		return nil
	}
	n, _ := m.CountOpinionVotes(ctx, opinionID, true)
	op.VoteCount = n
	m.Opinions[opinionID] = op
	return nil
}

// ListOpinionsByPublicState mirrors the store query: only published,
// non-withdrawn opinions, filtered by their public answer state, where the
// "not_answered" pseudo-state selects opinions with no revealed answer.
func (m *Mem) ListOpinionsByPublicState(ctx context.Context, componentID string, states []string) ([]store.Opinion, error) {
	var out []store.Opinion
	for _, op := range m.Opinions {
		if op.ComponentID != componentID || op.PublishedAt == nil || op.WithdrawnAt != nil {
			continue
		}
		public := "not_answered"
		if op.StatePublishedAt != nil && op.State != "" {
			public = op.State
		}
		matched := len(states) == 0
		for _, s := range states {
			if s == public {
				matched = true
				break
			}
		}
		if matched {
			out = append(out, op)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Mem) ListEmendations(ctx context.Context, opinionID string) ([]store.Opinion, error) {
	var out []store.Opinion
	for _, op := range m.Opinions {
		if op.AmendableID != nil && *op.AmendableID == opinionID {
			out = append(out, op)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Mem) PendingAmendment(ctx context.Context, emendationID string) (*store.Amendment, error) {
	for _, amendment := range m.Amendments {
		if amendment.EmendationID == emendationID && amendment.Status == store.AmendmentPending {
			a := amendment
			return &a, nil
		}
	}
	return nil, nil
}

func (m *Mem) UpdateAmendmentStatus(ctx context.Context, amendmentID, status string) (bool, error) {
	for i, amendment := range m.Amendments {
		if amendment.ID == amendmentID {
			m.Amendments[i].Status = status
			return true, nil
		}
	}
	return false, nil
}

func (m *Mem) InsertResourceLink(ctx context.Context, link store.ResourceLink) error {
	m.Links = append(m.Links, link)
	return nil
}

func (m *Mem) ListResourceLinks(ctx context.Context, fromID, reason string) ([]store.ResourceLink, error) {
	var out []store.ResourceLink
	for _, link := range m.Links {
		if link.FromID == fromID && link.Reason == reason {
			out = append(out, link)
		}
	}
	return out, nil
}

func (m *Mem) ListLinkPartners(ctx context.Context, opinionID, reason string) ([]string, error) {
	var out []string
	for _, link := range m.Links {
		if link.Reason != reason {
			continue
		}
		if link.FromID == opinionID {
			out = append(out, link.ToID)
		} else if link.ToID == opinionID {
			out = append(out, link.FromID)
		}
	}
	return out, nil
}

func (m *Mem) LinkedToComponent(ctx context.Context, fromID, reason, componentID string) (bool, error) {
	for _, link := range m.Links {
		if link.FromID != fromID || link.Reason != reason {
			continue
		}
		if op, ok := m.Opinions[link.ToID]; ok && op.ComponentID == componentID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Mem) ListAttachments(ctx context.Context, opinionID string) ([]store.Attachment, error) {
	return append([]store.Attachment(nil), m.Attachments[opinionID]...), nil
}

func (m *Mem) InsertAttachment(ctx context.Context, attachment store.Attachment) error {
	m.Attachments[attachment.OpinionID] = append(m.Attachments[attachment.OpinionID], attachment)
	return nil
}

func (m *Mem) InsertValuationAssignment(ctx context.Context, assignment store.ValuationAssignment) error {
	return nil
}

func (m *Mem) DeleteValuationAssignment(ctx context.Context, opinionID, valuatorRoleID string) (bool, error) {
	return true, nil
}

func (m *Mem) RejectPendingAccessRequests(ctx context.Context, opinionID string) (int, error) {
	n := m.PendingRequests[opinionID]
	m.PendingRequests[opinionID] = 0
	return n, nil
}

func (m *Mem) NextReferenceSeq(ctx context.Context) (int64, error) {
	m.RefSeq++
	return m.RefSeq, nil
}

func (m *Mem) OpinionFollowers(ctx context.Context, opinionID string) ([]string, error) {
	return append([]string(nil), m.OpinionFollowerIDs[opinionID]...), nil
}

func (m *Mem) SpaceFollowers(ctx context.Context, spaceID string) ([]string, error) {
	return append([]string(nil), m.SpaceFollowerIDs[spaceID]...), nil
}

// AddOpinion seeds an opinion and its coauthors in one call.
func (m *Mem) AddOpinion(op store.Opinion, coauthors ...string) {
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now().UTC()
	}
	op.CoauthorshipsCount = len(coauthors)
	m.Opinions[op.ID] = op
	m.Coauthors[op.ID] = coauthors
}
