package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
// It reads the generated fts column over the published snapshot, so it only
// ever sees content participants see.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs plainto_tsquery with ts_rank ordering and ts_headline snippets
// over published, non-withdrawn opinions.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}

	where := "fts @@ " + tsQuery + " AND published_at IS NOT NULL AND withdrawn_at IS NULL"
	if q.FilterComponentID != "" {
		args = append(args, q.FilterComponentID)
		where += fmt.Sprintf(" AND component_id = $%d", len(args))
	}
	switch {
	case q.FilterState == "not_answered":
		where += " AND state_published_at IS NULL"
	case q.FilterState != "":
		args = append(args, q.FilterState)
		where += fmt.Sprintf(" AND state_published_at IS NOT NULL AND state = $%d", len(args))
	}

	countSQL := "SELECT count(*) FROM opinions WHERE " + where
	dataSQL := fmt.Sprintf(`
		SELECT id, reference, published_title,
			ts_headline('english', coalesce(published_body, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
			component_id,
			CASE WHEN state_published_at IS NULL THEN 'not_answered' ELSE state END AS state
		FROM opinions
		WHERE %s
		ORDER BY ts_rank(fts, %s) DESC
		LIMIT %d OFFSET %d`,
		tsQuery, where, tsQuery, limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Reference, &r.Title, &r.Snippet, &r.ComponentID, &r.State); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every indexable opinion for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]OpinionRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, reference, published_title, published_body, category, component_id,
			CASE WHEN state_published_at IS NULL THEN 'not_answered' ELSE state END
		FROM opinions
		WHERE published_at IS NOT NULL AND withdrawn_at IS NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("load opinions: %w", err)
	}
	defer rows.Close()

	records := make([]OpinionRecord, 0)
	for rows.Next() {
		var r OpinionRecord
		if err := rows.Scan(&r.ID, &r.Reference, &r.Title, &r.Body, &r.Category, &r.ComponentID, &r.State); err != nil {
			return nil, fmt.Errorf("scan opinion record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate opinion records: %w", err)
	}
	return records, nil
}
