package analytics

import "time"

// SearchEvent is published for every search request, including the ones
// rejected for missing input.
type SearchEvent struct {
	Query      string    `json:"query"`
	Collection string    `json:"collection"`
	State      string    `json:"state"`
	Results    int       `json:"results"`
	LatencyMs  int64     `json:"latency_ms"`
	CacheHit   bool      `json:"cache_hit"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
}

// Outcome states that count as answered searches.
const (
	stateOK        = "ok"
	stateNoResults = "no_results"
)

func (e SearchEvent) answered() bool {
	return e.State == stateOK || e.State == stateNoResults
}
