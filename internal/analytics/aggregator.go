package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalSearches     int64            `json:"total_searches"`
	CacheHits         int64            `json:"cache_hits"`
	CacheMisses       int64            `json:"cache_misses"`
	ZeroResultCount   int64            `json:"zero_result_count"`
	AvgLatencyMs      float64          `json:"avg_latency_ms"`
	P50LatencyMs      int64            `json:"p50_latency_ms"`
	P95LatencyMs      int64            `json:"p95_latency_ms"`
	P99LatencyMs      int64            `json:"p99_latency_ms"`
	SearchesByMode    map[string]int64 `json:"searches_by_mode"`
	TopQueries        []QueryCount     `json:"top_queries"`
	ZeroResultQueries []QueryCount     `json:"zero_result_queries"`
	TopFacetValues    []QueryCount     `json:"top_facet_values"`
	SyncsByOutcome    map[string]int64 `json:"syncs_by_outcome"`
	CatalogVersion    string           `json:"catalog_version,omitempty"`
	QueriesPerMinute  float64          `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds search and sync events into in-memory counters.
type Aggregator struct {
	totalSearches atomic.Int64
	cacheHits     atomic.Int64
	cacheMisses   atomic.Int64
	zeroResults   atomic.Int64

	mu                sync.RWMutex
	latencies         []int64
	next              int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	facetCounts       map[string]int64
	modeCounts        map[string]int64
	syncCounts        map[string]int64
	catalogVersion    string
	startTime         time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		facetCounts:       make(map[string]int64),
		modeCounts:        make(map[string]int64),
		syncCounts:        make(map[string]int64),
		startTime:         time.Now(),
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// Handle is a kafka.MessageHandler. Undecodable messages are logged and
// committed.
func (a *Aggregator) Handle(_ context.Context, _ []byte, value []byte) error {
	var envelope struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(value, &envelope); err != nil {
		a.logger.Error("failed to decode analytics event", "error", err)
		return nil
	}
	switch envelope.Type {
	case EventSearch, EventZeroResult:
		var e SearchEvent
		if err := json.Unmarshal(value, &e); err != nil {
			a.logger.Error("failed to decode search event", "error", err)
			return nil
		}
		a.RecordSearch(e)
	case EventSync:
		var e SyncEvent
		if err := json.Unmarshal(value, &e); err != nil {
			a.logger.Error("failed to decode sync event", "error", err)
			return nil
		}
		a.RecordSync(e)
	default:
		a.logger.Warn("ignoring analytics event of unknown type", "type", envelope.Type)
	}
	return nil
}

func (a *Aggregator) RecordSearch(e SearchEvent) {
	a.totalSearches.Add(1)
	if e.CacheHit {
		a.cacheHits.Add(1)
	} else {
		a.cacheMisses.Add(1)
	}
	if e.TotalHits == 0 {
		a.zeroResults.Add(1)
	}

	label := e.Label()
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, e.LatencyMs)
	} else {
		a.latencies[a.next] = e.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
	a.queryCounts[label]++
	if e.TotalHits == 0 {
		a.zeroResultQueries[label]++
	}
	for facet, value := range e.Facets {
		a.facetCounts[facet+"="+value]++
	}
	if e.Mode != "" {
		a.modeCounts[e.Mode]++
	}
	if e.CatalogVersion != "" {
		a.catalogVersion = e.CatalogVersion
	}
}

func (a *Aggregator) RecordSync(e SyncEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.syncCounts[e.Outcome]++
	if e.Version != "" {
		a.catalogVersion = e.Version
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:   a.totalSearches.Load(),
		CacheHits:       a.cacheHits.Load(),
		CacheMisses:     a.cacheMisses.Load(),
		ZeroResultCount: a.zeroResults.Load(),
		SearchesByMode:  copyCounts(a.modeCounts),
		SyncsByOutcome:  copyCounts(a.syncCounts),
		CatalogVersion:  a.catalogVersion,
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	stats.TopFacetValues = topN(a.facetCounts, 10)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN returns the n largest counts; ties break by query text.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func facetLabel(facets map[string]string) string {
	keys := make([]string, 0, len(facets))
	for k := range facets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + facets[k]
	}
	return strings.Join(parts, " ")
}
