package lifecycle

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"
	"time"

	"go.uber.org/zap"

	"agora/core/internal/store"
	"agora/core/internal/store/storetest"
)

type notification struct {
	event     string
	opinionID string
	affected  []string
	followers []string
	extra     map[string]any
}

type fakeNotifier struct {
	sent []notification
	err  error
}

func (f *fakeNotifier) Publish(_ context.Context, event, opinionID string, affected, followers []string, extra map[string]any) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, notification{event, opinionID, affected, followers, extra})
	return nil
}

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

type fakeIndexer struct {
	indexed []string
	removed []string
}

func (f *fakeIndexer) IndexOpinion(_ context.Context, op store.Opinion) {
	f.indexed = append(f.indexed, op.ID)
}

func (f *fakeIndexer) RemoveOpinion(_ context.Context, id string) {
	f.removed = append(f.removed, id)
}

type fixture struct {
	mem    *storetest.Mem
	notify *fakeNotifier
	scores *fakeScorer
	search *fakeIndexer
	svc    *Service
}

func newFixture(publishImmediately bool) *fixture {
	mem := storetest.NewMem()
	mem.Components["comp1"] = store.Component{
		ID: "comp1", SpaceID: "space1",
		PublishAnswersImmediately: publishImmediately,
	}
	f := &fixture{
		mem:    mem,
		notify: &fakeNotifier{},
		scores: newFakeScorer(),
		search: &fakeIndexer{},
	}
	f.svc = New(mem, f.notify, f.scores, f.search, zap.NewNop().Sugar())
	return f
}

func (f *fixture) addDraft(id string, coauthors ...string) {
	f.mem.AddOpinion(store.Opinion{
		ID: id, ComponentID: "comp1",
		Title: "working title", Body: "working body",
	}, coauthors...)
}

func (f *fixture) addPublished(id string, coauthors ...string) {
	f.addDraft(id, coauthors...)
	op := f.mem.Opinions[id]
	now := time.Now().UTC()
	op.PublishedAt = &now
	op.PublishedTitle = op.Title
	op.PublishedBody = op.Body
	f.mem.Opinions[id] = op
}

func TestPublishFreezesSnapshot(t *testing.T) {
	f := newFixture(false)
	f.addDraft("op1", "alice")

	if err := f.svc.Publish(context.Background(), "op1", "alice"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	op := f.mem.Opinions["op1"]
	if op.PublishedAt == nil {
		t.Fatal("published_at not set")
	}
	if op.PublishedTitle != "working title" || op.PublishedBody != "working body" {
		t.Fatalf("snapshot = %q / %q", op.PublishedTitle, op.PublishedBody)
	}
	if len(f.search.indexed) != 1 {
		t.Fatalf("search indexed = %v", f.search.indexed)
	}
}

func TestPublishNotifiesEachFollowerOnce(t *testing.T) {
	f := newFixture(false)
	f.addDraft("op1", "alice")
	f.mem.OpinionFollowerIDs["op1"] = []string{"f1", "f2"}
	f.mem.SpaceFollowerIDs["space1"] = []string{"f2", "f3"}

	if err := f.svc.Publish(context.Background(), "op1", "alice"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(f.notify.sent) != 2 {
		t.Fatalf("sent %d notifications, want 2", len(f.notify.sent))
	}

	own := f.notify.sent[0]
	if own.event != EventPublished || !reflect.DeepEqual(own.followers, []string{"f1", "f2"}) || own.extra != nil {
		t.Fatalf("opinion-follower notification = %+v", own)
	}
	space := f.notify.sent[1]
	if !reflect.DeepEqual(space.followers, []string{"f3"}) {
		t.Fatalf("space notification followers = %v, want only f3", space.followers)
	}
	if space.extra["participatory_space"] != true {
		t.Fatalf("space notification extra = %v", space.extra)
	}

	// Nobody appears in both notifications.
	seen := map[string]int{}
	for _, n := range f.notify.sent {
		for _, id := range n.followers {
			seen[id]++
		}
	}
	for id, count := range seen {
		if count > 1 {
			t.Fatalf("follower %s notified %d times", id, count)
		}
	}
}

func TestPublishRequiresCoauthor(t *testing.T) {
	f := newFixture(false)
	f.addDraft("op1", "alice")

	if err := f.svc.Publish(context.Background(), "op1", "mallory"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("err = %v, want ErrNotAuthorized", err)
	}
}

func TestPublishTwice(t *testing.T) {
	f := newFixture(false)
	f.addPublished("op1", "alice")

	if err := f.svc.Publish(context.Background(), "op1", "alice"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestAnswerStagesWithoutRevealing(t *testing.T) {
	f := newFixture(false)
	f.addPublished("op1", "alice")

	err := f.svc.Answer(context.Background(), "op1", "admin", AnswerInput{
		InternalState: StateAccepted,
		Answer:        "will do",
	})
	if err != nil {
		t.Fatalf("answer: %v", err)
	}

	op := f.mem.Opinions["op1"]
	if op.InternalState != "accepted" || op.AnsweredAt == nil {
		t.Fatalf("answer not staged: %+v", op)
	}
	if op.StatePublishedAt != nil || op.State != "" {
		t.Fatalf("gate fired early: %+v", op)
	}
	if Public(op) != StateNone {
		t.Fatalf("public state = %q, want none", Public(op))
	}
	if len(f.notify.sent) != 0 {
		t.Fatalf("notifications sent before the reveal: %+v", f.notify.sent)
	}
	if len(f.scores.deltas) != 0 {
		t.Fatalf("scores changed before the reveal: %v", f.scores.deltas)
	}
}

func TestPublishAnswerRevealsAndScores(t *testing.T) {
	f := newFixture(false)
	f.addPublished("op1", "alice", "bob")
	f.mem.OpinionFollowerIDs["op1"] = []string{"f1"}

	if err := f.svc.Answer(context.Background(), "op1", "admin", AnswerInput{InternalState: StateAccepted}); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if err := f.svc.PublishAnswer(context.Background(), "op1"); err != nil {
		t.Fatalf("publish answer: %v", err)
	}

	op := f.mem.Opinions["op1"]
	if op.StatePublishedAt == nil || Public(op) != StateAccepted {
		t.Fatalf("gate not fired: %+v", op)
	}
	if len(f.notify.sent) != 1 || f.notify.sent[0].event != EventAccepted {
		t.Fatalf("notifications = %+v", f.notify.sent)
	}
	if f.notify.sent[0].extra["previous_state"] != "" {
		t.Fatalf("previous_state = %v, want empty", f.notify.sent[0].extra)
	}
	if f.scores.deltas["alice/"+ScoreAcceptedOpinions] != 1 || f.scores.deltas["bob/"+ScoreAcceptedOpinions] != 1 {
		t.Fatalf("scores = %v", f.scores.deltas)
	}
}

func TestPublishAnswerIsIdempotent(t *testing.T) {
	f := newFixture(false)
	f.addPublished("op1", "alice")

	if err := f.svc.Answer(context.Background(), "op1", "admin", AnswerInput{InternalState: StateAccepted}); err != nil {
		t.Fatalf("answer: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := f.svc.PublishAnswer(context.Background(), "op1"); err != nil {
			t.Fatalf("publish answer %d: %v", i, err)
		}
	}
	if f.scores.deltas["alice/"+ScoreAcceptedOpinions] != 1 {
		t.Fatalf("accepted counted %d times, want once", f.scores.deltas["alice/"+ScoreAcceptedOpinions])
	}
	if len(f.notify.sent) != 1 {
		t.Fatalf("sent %d notifications, want 1", len(f.notify.sent))
	}
}

func TestPublishAnswerWithoutStagedAnswer(t *testing.T) {
	f := newFixture(false)
	f.addPublished("op1", "alice")

	if err := f.svc.PublishAnswer(context.Background(), "op1"); err != nil {
		t.Fatalf("publish answer: %v", err)
	}
	if f.mem.Opinions["op1"].StatePublishedAt != nil {
		t.Fatal("gate fired with nothing staged")
	}
}

func TestAnswerImmediateComponent(t *testing.T) {
	f := newFixture(true)
	f.addPublished("op1", "alice")

	if err := f.svc.Answer(context.Background(), "op1", "admin", AnswerInput{InternalState: StateEvaluating}); err != nil {
		t.Fatalf("answer: %v", err)
	}
	op := f.mem.Opinions["op1"]
	if Public(op) != StateEvaluating {
		t.Fatalf("public state = %q, want evaluating", Public(op))
	}
	if len(f.notify.sent) != 1 || f.notify.sent[0].event != EventEvaluating {
		t.Fatalf("notifications = %+v", f.notify.sent)
	}
}

func TestAnswerRevisionMovesScore(t *testing.T) {
	f := newFixture(true)
	f.addPublished("op1", "alice")

	if err := f.svc.Answer(context.Background(), "op1", "admin", AnswerInput{InternalState: StateAccepted}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := f.svc.Answer(context.Background(), "op1", "admin", AnswerInput{InternalState: StateRejected}); err != nil {
		t.Fatalf("reject: %v", err)
	}

	if got := f.scores.deltas["alice/"+ScoreAcceptedOpinions]; got != 0 {
		t.Fatalf("accepted score = %d, want 0 after the revision", got)
	}
	last := f.notify.sent[len(f.notify.sent)-1]
	if last.event != EventRejected || last.extra["previous_state"] != "accepted" {
		t.Fatalf("revision notification = %+v", last)
	}
}

func TestAnswerSameStateTwiceNotifiesOnce(t *testing.T) {
	f := newFixture(true)
	f.addPublished("op1", "alice")

	for i := 0; i < 2; i++ {
		if err := f.svc.Answer(context.Background(), "op1", "admin", AnswerInput{InternalState: StateAccepted}); err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
	}
	if len(f.notify.sent) != 1 {
		t.Fatalf("sent %d notifications, want 1", len(f.notify.sent))
	}
	if f.scores.deltas["alice/"+ScoreAcceptedOpinions] != 1 {
		t.Fatalf("scores = %v", f.scores.deltas)
	}
}

func TestAnswerRejectsBadInput(t *testing.T) {
	f := newFixture(false)
	f.addPublished("op1", "alice")

	for _, state := range []State{StateNone, StateWithdrawn, State("bogus")} {
		err := f.svc.Answer(context.Background(), "op1", "admin", AnswerInput{InternalState: state})
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Answer(%q) = %v, want ErrInvalidTransition", state, err)
		}
	}
}

func TestAnswerDraft(t *testing.T) {
	f := newFixture(false)
	f.addDraft("op1", "alice")

	err := f.svc.Answer(context.Background(), "op1", "admin", AnswerInput{InternalState: StateEvaluating})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestPublishAnswersBulkBestEffort(t *testing.T) {
	f := newFixture(false)
	f.addPublished("op1", "alice")
	f.addPublished("op2", "alice")
	for _, id := range []string{"op1", "op2"} {
		if err := f.svc.Answer(context.Background(), id, "admin", AnswerInput{InternalState: StateAccepted}); err != nil {
			t.Fatalf("answer %s: %v", id, err)
		}
	}

	failures := f.svc.PublishAnswersBulk(context.Background(), []string{"op1", "missing", "op2"})
	if len(failures) != 1 || failures[0].OpinionID != "missing" {
		t.Fatalf("failures = %+v", failures)
	}

	var revealed []string
	for id, op := range f.mem.Opinions {
		if op.StatePublishedAt != nil {
			revealed = append(revealed, id)
		}
	}
	sort.Strings(revealed)
	if !reflect.DeepEqual(revealed, []string{"op1", "op2"}) {
		t.Fatalf("revealed = %v", revealed)
	}
}
