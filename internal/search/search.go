package search

// OpinionRecord is the data we index for a published opinion. State is the
// public answer state, with "not_answered" standing in for the empty one so
// it stays filterable.
type OpinionRecord struct {
	ID          string `json:"id"`
	Reference   string `json:"reference"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	Category    string `json:"category"`
	ComponentID string `json:"componentId"`
	State       string `json:"state"`
}

// Query describes a search request.
type Query struct {
	Text              string
	FilterComponentID string
	FilterState       string // empty = all states
	Limit             int
	Offset            int
}

// Result is a single search hit returned to the caller.
type Result struct {
	ID          string `json:"id"`
	Reference   string `json:"reference"`
	Title       string `json:"title"`
	Snippet     string `json:"snippet"`
	ComponentID string `json:"componentId"`
	State       string `json:"state"`
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}
