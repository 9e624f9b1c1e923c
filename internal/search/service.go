package search

import (
	"context"

	"go.uber.org/zap"

	"agora/core/internal/lifecycle"
	"agora/core/internal/store"
)

// Service is the facade the domain services talk to: Meilisearch first,
// PG FTS fallback for reads, fire-and-forget writes.
type Service struct {
	meili *Meili
	pgfts *PgFTS
	log   *zap.SugaredLogger
}

// NewService creates a search service. meili may be nil when Meilisearch is
// not configured; reads then always go to Postgres.
func NewService(meili *Meili, pgfts *PgFTS, log *zap.SugaredLogger) *Service {
	return &Service{meili: meili, pgfts: pgfts, log: log}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.log.Warnw("meilisearch error, falling back to pgfts", "error", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		s.log.Errorw("pgfts search failed", "error", err)
		return Response{Results: []Result{}, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexOpinion reflects an opinion's current visibility in the index. Drafts
// and withdrawn opinions are removed; everything else is upserted with its
// public answer state.
func (s *Service) IndexOpinion(ctx context.Context, op store.Opinion) {
	if op.PublishedAt == nil || op.WithdrawnAt != nil {
		s.RemoveOpinion(ctx, op.ID)
		return
	}
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	record := recordFromOpinion(op)
	go func() {
		if err := s.meili.IndexOpinion(record); err != nil {
			s.log.Warnw("index opinion failed", "opinion", record.ID, "error", err)
		}
	}()
}

// RemoveOpinion removes an opinion from the index (fire-and-forget).
func (s *Service) RemoveOpinion(ctx context.Context, id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteOpinion(id); err != nil {
			s.log.Warnw("delete opinion from index failed", "opinion", id, "error", err)
		}
	}()
}

// ReindexAllFromPG reloads every indexable opinion from Postgres and pushes
// the batch to Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	records, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		s.log.Errorw("reindex load failed", "error", err)
		return
	}
	if err := s.meili.IndexOpinions(records); err != nil {
		s.log.Errorw("reindex push failed", "error", err)
	}
}

func recordFromOpinion(op store.Opinion) OpinionRecord {
	state := "not_answered"
	if public := lifecycle.Public(op); public != lifecycle.StateNone {
		state = string(public)
	}
	return OpinionRecord{
		ID:          op.ID,
		Reference:   op.Reference,
		Title:       op.PublishedTitle,
		Body:        op.PublishedBody,
		Category:    op.Category,
		ComponentID: op.ComponentID,
		State:       state,
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
