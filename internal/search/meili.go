package search

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"
)

const idxOpinions = "agora_opinions"

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	log     *zap.SugaredLogger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the opinions index.
// The client starts unhealthy if the initial connection fails; the health
// loop will pick the instance up when it comes back.
func NewMeili(url, apiKey string, log *zap.SugaredLogger) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		log:    log,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Warnw("meilisearch unavailable", "url", url, "error", err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxOpinions,
		PrimaryKey: "id",
	}); err != nil {
		m.log.Debugw("create index (may already exist)", "index", idxOpinions, "error", err)
	}

	index := m.client.Index(idxOpinions)
	filterable := []interface{}{"componentId", "state"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.log.Warnw("update filterable attributes", "index", idxOpinions, "error", err)
	}
	searchable := []string{"title", "body", "reference"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.log.Warnw("update searchable attributes", "index", idxOpinions, "error", err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.log.Infow("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries the opinions index.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	sr := &meili.SearchRequest{
		Limit:                 limit,
		Offset:                int64(q.Offset),
		AttributesToHighlight: []string{"*"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}
	var filters []string
	if q.FilterComponentID != "" {
		filters = append(filters, fmt.Sprintf("componentId = %q", q.FilterComponentID))
	}
	if q.FilterState != "" {
		filters = append(filters, fmt.Sprintf("state = %q", q.FilterState))
	}
	if len(filters) > 0 {
		sr.Filter = filters
	}

	resp, err := m.client.Index(idxOpinions).Search(q.Text, sr)
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	results := make([]Result, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		results = append(results, hitToResult(hit))
	}
	return results, int(resp.EstimatedTotalHits), nil
}

func hitToResult(hit meili.Hit) Result {
	return Result{
		ID:          decodeString(hit, "id"),
		Reference:   decodeString(hit, "reference"),
		Title:       firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title")),
		Snippet:     firstNonBlank(decodeFormattedString(hit, "body"), decodeString(hit, "body")),
		ComponentID: decodeString(hit, "componentId"),
		State:       decodeString(hit, "state"),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return strings.TrimSpace(formatted[key])
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexOpinion adds or updates an opinion in the search index.
func (m *Meili) IndexOpinion(record OpinionRecord) error {
	_, err := m.client.Index(idxOpinions).AddDocuments([]OpinionRecord{record}, nil)
	return err
}

// IndexOpinions bulk-indexes opinions.
func (m *Meili) IndexOpinions(records []OpinionRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxOpinions).AddDocuments(records, nil)
	return err
}

// DeleteOpinion removes an opinion from the search index.
func (m *Meili) DeleteOpinion(id string) error {
	_, err := m.client.Index(idxOpinions).DeleteDocument(id, nil)
	return err
}
