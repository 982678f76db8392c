// Command loadtest drives a running catalogd with a mix of free-text,
// faceted and paginated queries and reports throughput, latency and cache
// effectiveness.
//
//	go run ./cmd/loadtest -url http://localhost:8080 -concurrency 20 -duration 1m
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	RPS         float64
	Terms       []string
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	cacheHits     atomic.Int64
	zeroResults   atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	byKind        map[string]*atomic.Int64
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		byKind:      make(map[string]*atomic.Int64),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(kind string, duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)
	if err != nil {
		s.errorCount.Add(1)
		return
	}
	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	if _, ok := s.byKind[kind]; !ok {
		s.byKind[kind] = &atomic.Int64{}
	}
	s.byKind[kind].Add(1)
	s.statusCodesMu.Unlock()
}

// facetValues is what the generator learns from /api/v1/facets before the
// run, so constraints name values that exist.
type facetValues map[string][]string

// queryMix builds one request URL. Kinds are weighted towards single-facet
// browsing, which dominates real traffic.
type queryMix struct {
	base   string
	terms  []string
	facets facetValues
	names  []string
}

func (m *queryMix) next(r *rand.Rand) (kind, rawURL string) {
	params := url.Values{}
	params.Set("limit", "20")
	roll := r.IntN(100)
	switch {
	case roll < 40 && len(m.names) > 0:
		kind = "facet"
		m.addFacet(r, params)
	case roll < 60 && len(m.names) > 1:
		kind = "multi_facet"
		m.addFacet(r, params)
		m.addFacet(r, params)
	case roll < 85:
		kind = "search"
		params.Set("q", m.terms[r.IntN(len(m.terms))])
	case roll < 95 && len(m.names) > 0:
		kind = "search_facet"
		params.Set("q", m.terms[r.IntN(len(m.terms))])
		m.addFacet(r, params)
	default:
		kind = "page"
		params.Set("offset", fmt.Sprint(20*r.IntN(10)))
	}
	return kind, m.base + "/api/v1/cards?" + params.Encode()
}

func (m *queryMix) addFacet(r *rand.Rand, params url.Values) {
	name := m.names[r.IntN(len(m.names))]
	values := m.facets[name]
	params.Set(name, values[r.IntN(len(values))])
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of catalogd")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	rps := flag.Float64("rps", 0, "overall request rate limit (0 for unlimited)")
	flag.Parse()

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		RPS:         *rps,
		Terms: []string{
			"char", "pika", "mewtwo ex", "gardevoir", "=charizard",
			"blastoise", "lucario", "sv3-125", "trainer", "energy",
			"psyduck", "eevee", "zzqx",
		},
	}

	client := newClient(cfg.Concurrency)
	facets, err := discoverFacets(client, cfg.BaseURL, "rarity", "type", "set", "subtype")
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading facets: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("=== Card Catalog Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Terms:       %d unique\n", len(cfg.Terms))
	fmt.Printf("Facets:      %d with values\n", len(facets))
	fmt.Println()

	stats := runLoadTest(cfg, client, facets)
	printReport(stats, cfg.Duration)
}

func newClient(concurrency int) *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

func discoverFacets(client *http.Client, base string, names ...string) (facetValues, error) {
	out := make(facetValues)
	for _, name := range names {
		resp, err := client.Get(base + "/api/v1/facets/" + name)
		if err != nil {
			return nil, err
		}
		var body struct {
			Values []struct {
				Value string `json:"value"`
			} `json:"values"`
		}
		err = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("GET facets/%s: status %d", name, resp.StatusCode)
		}
		if err != nil {
			return nil, fmt.Errorf("decoding facets/%s: %w", name, err)
		}
		for _, v := range body.Values {
			out[name] = append(out[name], v.Value)
		}
	}
	return out, nil
}

func runLoadTest(cfg Config, client *http.Client, facets facetValues) *Stats {
	stats := NewStats()
	mix := &queryMix{base: cfg.BaseURL, terms: cfg.Terms, facets: facets}
	for name, values := range facets {
		if len(values) > 0 {
			mix.names = append(mix.names, name)
		}
	}
	sort.Strings(mix.names)

	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Concurrency)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			r := rand.New(rand.NewPCG(uint64(workerID), uint64(time.Now().UnixNano())))

			for {
				if limiter != nil {
					if err := limiter.Wait(ctx); err != nil {
						return
					}
				}
				select {
				case <-ctx.Done():
					return
				default:
				}

				kind, rawURL := mix.next(r)
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
				if err != nil {
					stats.RecordRequest(kind, 0, 0, err)
					continue
				}

				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					stats.RecordRequest(kind, elapsed, 0, err)
					continue
				}
				var page struct {
					Total    int  `json:"total"`
					CacheHit bool `json:"cacheHit"`
				}
				if resp.StatusCode == http.StatusOK && json.NewDecoder(resp.Body).Decode(&page) == nil {
					if page.CacheHit {
						stats.cacheHits.Add(1)
					}
					if page.Total == 0 {
						stats.zeroResults.Add(1)
					}
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()

				stats.RecordRequest(kind, elapsed, resp.StatusCode, nil)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errors)
	if total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(errors)/float64(total)*100)
		fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}
	if success > 0 {
		fmt.Printf("Cache Hit Rate:  %.2f%%\n", float64(stats.cacheHits.Load())/float64(success)*100)
		fmt.Printf("Zero Results:    %d\n", stats.zeroResults.Load())
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
	}

	stats.statusCodesMu.Lock()
	fmt.Println()
	fmt.Println("=== Query Mix ===")
	kinds := make([]string, 0, len(stats.byKind))
	for k := range stats.byKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Printf("  %-13s %d\n", k+":", stats.byKind[k].Load())
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.statusCodes[code].Load())
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is catalogd running and synced?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
