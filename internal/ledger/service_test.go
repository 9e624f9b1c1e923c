package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"agora/core/internal/store"
	"agora/core/internal/store/storetest"
)

type fakeScorer struct {
	deltas map[string]int
}

func newFakeScorer() *fakeScorer { return &fakeScorer{deltas: map[string]int{}} }

func (f *fakeScorer) Increment(_ context.Context, identityID, counter string) error {
	f.deltas[identityID+"/"+counter]++
	return nil
}

func (f *fakeScorer) Decrement(_ context.Context, identityID, counter string) error {
	f.deltas[identityID+"/"+counter]--
	return nil
}

type fixture struct {
	mem    *storetest.Mem
	scores *fakeScorer
	svc    *Service
}

func newFixture(comp store.Component) *fixture {
	mem := storetest.NewMem()
	comp.OrganizationID = "org1"
	mem.Components[comp.ID] = comp
	mem.Identities["alice"] = store.Identity{ID: "alice", OrganizationID: "org1", Kind: "participant"}
	mem.Identities["bob"] = store.Identity{ID: "bob", OrganizationID: "org1", Kind: "participant"}
	mem.Identities["eve"] = store.Identity{ID: "eve", OrganizationID: "org2", Kind: "participant"}
	f := &fixture{mem: mem, scores: newFakeScorer()}
	f.svc = New(mem, f.scores, zap.NewNop().Sugar())
	return f
}

func (f *fixture) addPublished(id, component string) {
	now := time.Now().UTC()
	f.mem.AddOpinion(store.Opinion{ID: id, ComponentID: component, PublishedAt: &now}, "author")
}

func TestVote(t *testing.T) {
	f := newFixture(store.Component{ID: "comp1"})
	f.addPublished("op1", "comp1")

	vote, err := f.svc.Vote(context.Background(), "op1", "alice")
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if vote.Temporary {
		t.Fatal("vote temporary without a quorum configured")
	}
	if got := f.mem.Opinions["op1"].VoteCount; got != 1 {
		t.Fatalf("vote_count = %d, want 1", got)
	}
	if f.scores.deltas["alice/"+ScoreVotesCast] != 1 {
		t.Fatalf("scores = %v", f.scores.deltas)
	}
}

func TestVoteTwice(t *testing.T) {
	f := newFixture(store.Component{ID: "comp1"})
	f.addPublished("op1", "comp1")

	if _, err := f.svc.Vote(context.Background(), "op1", "alice"); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if _, err := f.svc.Vote(context.Background(), "op1", "alice"); !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("err = %v, want ErrAlreadyVoted", err)
	}
	if f.scores.deltas["alice/"+ScoreVotesCast] != 1 {
		t.Fatalf("scores = %v", f.scores.deltas)
	}
}

func TestVoteOutsideOrganization(t *testing.T) {
	f := newFixture(store.Component{ID: "comp1"})
	f.addPublished("op1", "comp1")

	if _, err := f.svc.Vote(context.Background(), "op1", "eve"); !errors.Is(err, ErrNotVotable) {
		t.Fatalf("err = %v, want ErrNotVotable", err)
	}
}

func TestVoteNotVotable(t *testing.T) {
	f := newFixture(store.Component{ID: "comp1"})
	now := time.Now().UTC()

	// Draft.
	f.mem.AddOpinion(store.Opinion{ID: "draft", ComponentID: "comp1"}, "author")
	// Withdrawn.
	f.addPublished("gone", "comp1")
	gone := f.mem.Opinions["gone"]
	gone.WithdrawnAt = &now
	f.mem.Opinions["gone"] = gone
	// Publicly rejected.
	f.addPublished("nope", "comp1")
	nope := f.mem.Opinions["nope"]
	nope.State = "rejected"
	nope.StatePublishedAt = &now
	f.mem.Opinions["nope"] = nope
	// Rejection staged but not revealed: still votable.
	f.addPublished("pending", "comp1")
	pending := f.mem.Opinions["pending"]
	pending.InternalState = "rejected"
	f.mem.Opinions["pending"] = pending

	for _, id := range []string{"draft", "gone", "nope"} {
		if _, err := f.svc.Vote(context.Background(), id, "alice"); !errors.Is(err, ErrNotVotable) {
			t.Errorf("Vote(%s) = %v, want ErrNotVotable", id, err)
		}
	}
	if _, err := f.svc.Vote(context.Background(), "pending", "alice"); err != nil {
		t.Errorf("Vote(pending) = %v, want success while the rejection is unrevealed", err)
	}
}

func TestVoteCeiling(t *testing.T) {
	f := newFixture(store.Component{ID: "comp1", VoteThreshold: 1})
	f.addPublished("op1", "comp1")

	if _, err := f.svc.Vote(context.Background(), "op1", "alice"); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if _, err := f.svc.Vote(context.Background(), "op1", "bob"); !errors.Is(err, ErrThresholdReached) {
		t.Fatalf("err = %v, want ErrThresholdReached", err)
	}
}

func TestVoteCeilingOverflow(t *testing.T) {
	f := newFixture(store.Component{ID: "comp1", VoteThreshold: 1})
	f.addPublished("op1", "comp1")
	op := f.mem.Opinions["op1"]
	op.AllowOverflow = true
	f.mem.Opinions["op1"] = op

	if _, err := f.svc.Vote(context.Background(), "op1", "alice"); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if _, err := f.svc.Vote(context.Background(), "op1", "bob"); err != nil {
		t.Fatalf("overflow vote: %v", err)
	}
	if got := f.mem.Opinions["op1"].VoteCount; got != 2 {
		t.Fatalf("vote_count = %d, want 2", got)
	}
}

func TestVoteLimitCountsTemporaryVotes(t *testing.T) {
	f := newFixture(store.Component{ID: "comp1", VoteLimit: 2, MinimumVotesPerUser: 3})
	f.addPublished("op1", "comp1")
	f.addPublished("op2", "comp1")
	f.addPublished("op3", "comp1")

	for _, id := range []string{"op1", "op2"} {
		if _, err := f.svc.Vote(context.Background(), id, "alice"); err != nil {
			t.Fatalf("vote %s: %v", id, err)
		}
	}
	// Both votes are temporary (below quorum) but still consume the limit.
	if _, err := f.svc.Vote(context.Background(), "op3", "alice"); !errors.Is(err, ErrThresholdReached) {
		t.Fatalf("err = %v, want ErrThresholdReached", err)
	}
}

func TestQuorumConfirmsWholeVoteSet(t *testing.T) {
	f := newFixture(store.Component{ID: "comp1", MinimumVotesPerUser: 2})
	f.addPublished("op1", "comp1")
	f.addPublished("op2", "comp1")

	vote, err := f.svc.Vote(context.Background(), "op1", "alice")
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if !vote.Temporary {
		t.Fatal("first vote not temporary below quorum")
	}
	if got := f.mem.Opinions["op1"].VoteCount; got != 0 {
		t.Fatalf("vote_count = %d, want 0 while temporary", got)
	}

	if _, err := f.svc.Vote(context.Background(), "op2", "alice"); err != nil {
		t.Fatalf("vote: %v", err)
	}
	// Quorum reached: the whole set flips to confirmed at once.
	for _, key := range []string{"op1|alice", "op2|alice"} {
		if f.mem.Votes[key].Temporary {
			t.Fatalf("vote %s still temporary after quorum", key)
		}
	}
	for _, id := range []string{"op1", "op2"} {
		if got := f.mem.Opinions[id].VoteCount; got != 1 {
			t.Fatalf("%s vote_count = %d, want 1", id, got)
		}
	}
}

func TestUnvoteBelowQuorumFlipsBack(t *testing.T) {
	f := newFixture(store.Component{ID: "comp1", MinimumVotesPerUser: 2})
	f.addPublished("op1", "comp1")
	f.addPublished("op2", "comp1")

	for _, id := range []string{"op1", "op2"} {
		if _, err := f.svc.Vote(context.Background(), id, "alice"); err != nil {
			t.Fatalf("vote %s: %v", id, err)
		}
	}
	if err := f.svc.Unvote(context.Background(), "op2", "alice"); err != nil {
		t.Fatalf("unvote: %v", err)
	}

	// Back below quorum: the remaining vote demotes to temporary.
	if !f.mem.Votes["op1|alice"].Temporary {
		t.Fatal("remaining vote still confirmed below quorum")
	}
	if got := f.mem.Opinions["op1"].VoteCount; got != 0 {
		t.Fatalf("vote_count = %d, want 0", got)
	}
	// The unvoted opinion itself is recounted too.
	if got := f.mem.Opinions["op2"].VoteCount; got != 0 {
		t.Fatalf("unvoted opinion vote_count = %d, want 0", got)
	}
}

func TestUnvoteResetsOpinionVoteCount(t *testing.T) {
	f := newFixture(store.Component{ID: "comp1"})
	f.addPublished("op1", "comp1")

	if _, err := f.svc.Vote(context.Background(), "op1", "alice"); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if got := f.mem.Opinions["op1"].VoteCount; got != 1 {
		t.Fatalf("vote_count = %d, want 1 after vote", got)
	}

	// No quorum configured, so the voter has no other votes left to batch
	// over: the unvoted opinion must still be recounted.
	if err := f.svc.Unvote(context.Background(), "op1", "alice"); err != nil {
		t.Fatalf("unvote: %v", err)
	}
	if got := f.mem.Opinions["op1"].VoteCount; got != 0 {
		t.Fatalf("vote_count = %d, want 0 after unvote", got)
	}
}

func TestUnvoteIsIdempotent(t *testing.T) {
	f := newFixture(store.Component{ID: "comp1"})
	f.addPublished("op1", "comp1")

	if err := f.svc.Unvote(context.Background(), "op1", "alice"); err != nil {
		t.Fatalf("unvote: %v", err)
	}
	if got := f.scores.deltas["alice/"+ScoreVotesCast]; got != 0 {
		t.Fatalf("score moved on a no-op unvote: %d", got)
	}

	if _, err := f.svc.Vote(context.Background(), "op1", "alice"); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if err := f.svc.Unvote(context.Background(), "op1", "alice"); err != nil {
		t.Fatalf("unvote: %v", err)
	}
	if got := f.scores.deltas["alice/"+ScoreVotesCast]; got != 0 {
		t.Fatalf("score = %d, want 0 after vote and unvote", got)
	}
}

func TestRemainingVotes(t *testing.T) {
	f := newFixture(store.Component{ID: "comp1", VoteLimit: 3, MinimumVotesPerUser: 2})
	f.addPublished("op1", "comp1")
	f.addPublished("op2", "comp1")

	got, err := f.svc.RemainingVotes(context.Background(), "alice", "comp1")
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if got != 3 {
		t.Fatalf("remaining = %d, want 3", got)
	}

	// A temporary vote does not reduce the confirmed remainder.
	if _, err := f.svc.Vote(context.Background(), "op1", "alice"); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if got, _ = f.svc.RemainingVotes(context.Background(), "alice", "comp1"); got != 3 {
		t.Fatalf("remaining = %d, want 3 while below quorum", got)
	}

	if _, err := f.svc.Vote(context.Background(), "op2", "alice"); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if got, _ = f.svc.RemainingVotes(context.Background(), "alice", "comp1"); got != 1 {
		t.Fatalf("remaining = %d, want 1 after quorum confirmation", got)
	}
}

func TestRemainingVotesUnlimited(t *testing.T) {
	f := newFixture(store.Component{ID: "comp1"})

	got, err := f.svc.RemainingVotes(context.Background(), "alice", "comp1")
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if got != Unlimited {
		t.Fatalf("remaining = %d, want Unlimited", got)
	}
}
