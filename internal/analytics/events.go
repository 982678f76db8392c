package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventZeroResult EventType = "zero_result"
	EventSync       EventType = "sync"
)

// SearchEvent records one evaluated query.
type SearchEvent struct {
	Type           EventType         `json:"type"`
	Query          string            `json:"query"`
	Facets         map[string]string `json:"facets,omitempty"`
	Mode           string            `json:"mode"`
	TotalHits      int               `json:"total_hits"`
	Returned       int               `json:"returned"`
	LatencyMs      int64             `json:"latency_ms"`
	CacheHit       bool              `json:"cache_hit"`
	CatalogVersion string            `json:"catalog_version"`
	Timestamp      time.Time         `json:"timestamp"`
	RequestID      string            `json:"request_id,omitempty"`
}

// SyncEvent records one completed synchronisation attempt.
type SyncEvent struct {
	Type      EventType `json:"type"`
	Outcome   string    `json:"outcome"`
	Version   string    `json:"version,omitempty"`
	Cards     int       `json:"cards"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// Label is the aggregation key for a search: the free-text query, or the
// active facet constraints when no text was given.
func (e SearchEvent) Label() string {
	if e.Query != "" {
		return e.Query
	}
	if len(e.Facets) == 0 {
		return "*"
	}
	return facetLabel(e.Facets)
}
