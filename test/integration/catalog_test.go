//go:build integration

// Package integration contains tests that verify the interaction between
// catalog components. They serve the real router, handler, sync manager and
// SQLite-backed stores, with an httptest server standing in for the CDN.
//
// Run with:
//
//	go test -v -tags=integration ./test/integration/...
package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/catalogtest"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/source"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/store"
	catalogsync "github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/sync"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/searcher/router"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/sqldb"
)

// cdn serves one manifest and artifact pair that tests can swap.
type cdn struct {
	mu       gosync.Mutex
	manifest []byte
	artifact []byte
}

func (c *cdn) publish(version string, corrupt bool) {
	body := catalogtest.ArtifactJSON(version)
	manifest := catalogtest.ManifestJSON(version, "artifact.json", body)
	if corrupt {
		body = append(body, ' ')
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manifest, c.artifact = manifest, body
}

func (c *cdn) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch r.URL.Path {
	case "/catalog/manifest.json":
		if c.manifest == nil {
			http.NotFound(w, r)
			return
		}
		w.Write(c.manifest)
	case "/catalog/artifact.json":
		w.Write(c.artifact)
	default:
		http.NotFound(w, r)
	}
}

type recorder struct{ agg *analytics.Aggregator }

func (r recorder) TrackSearch(e analytics.SearchEvent) { r.agg.RecordSearch(e) }

type stack struct {
	srv    *httptest.Server
	syncer *catalogsync.Syncer
	agg    *analytics.Aggregator
	snaps  *aggregator.Store
}

// newStack wires one catalogd instance over the SQLite database at dbPath.
func newStack(t *testing.T, cdnURL, dbPath string) *stack {
	t.Helper()
	ctx := context.Background()

	db, err := sqldb.NewSQLite(dbPath)
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	st, err := store.NewSQLStore(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	snaps, err := aggregator.NewStore(ctx, db)
	if err != nil {
		t.Fatal(err)
	}

	agg := analytics.NewAggregator()
	s := catalogsync.New(source.NewHTTPFetcher(), st, catalogsync.Options{
		ManifestURL:  cdnURL + "/catalog/manifest.json",
		FetchTimeout: 5 * time.Second,
		OnSync: func(outcome string, info catalogsync.Info, elapsed time.Duration) {
			agg.RecordSync(analytics.SyncEvent{
				Type:      analytics.EventSync,
				Outcome:   outcome,
				Version:   info.Version,
				Cards:     info.Cards,
				LatencyMs: elapsed.Milliseconds(),
				Timestamp: time.Now().UTC(),
			})
		},
	})

	checker := health.NewChecker()
	checker.Register("catalog", health.CatalogCheck(func() health.CatalogState {
		info := s.Info()
		return health.CatalogState{Installed: s.Catalog() != nil, Version: info.Version, Cards: info.Cards, LastError: info.LastError}
	}))
	checker.Register("database", health.PingCheck(db, false))

	h := handler.New(s, handler.Options{Tracker: recorder{agg}, DefaultLimit: 20, MaxResults: 100})
	srv := httptest.NewServer(router.New(router.Deps{
		Handler:        h,
		Analytics:      analytics.NewHandler(agg, snaps),
		Health:         checker,
		Limiter:        middleware.NewClientLimiter(1000, 1000),
		CORS:           middleware.DefaultCORSConfig(),
		RequestTimeout: 5 * time.Second,
	}))
	t.Cleanup(srv.Close)
	return &stack{srv: srv, syncer: s, agg: agg, snaps: snaps}
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode
}

func postSync(t *testing.T, base string) int {
	t.Helper()
	resp, err := http.Post(base+"/api/v1/sync", "application/json", nil)
	if err != nil {
		t.Fatalf("POST sync: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

// TestSyncServeRestart walks one instance from empty to serving, then
// restarts it over the same database and checks it serves from cache.
func TestSyncServeRestart(t *testing.T) {
	origin := &cdn{}
	origin.publish("20240501", false)
	cdnSrv := httptest.NewServer(origin)
	defer cdnSrv.Close()
	dbPath := filepath.Join(t.TempDir(), "catalog.db")

	first := newStack(t, cdnSrv.URL, dbPath)
	base := first.srv.URL

	if code := getJSON(t, base+"/api/v1/cards", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("before sync: code %d, want 503", code)
	}
	if code := getJSON(t, base+"/health/ready", nil); code != http.StatusServiceUnavailable {
		t.Errorf("ready before sync: code %d, want 503", code)
	}

	if code := postSync(t, base); code != http.StatusOK {
		t.Fatalf("sync: code %d", code)
	}

	var page handler.ListResponse
	if code := getJSON(t, base+"/api/v1/cards?type=Fire", &page); code != http.StatusOK {
		t.Fatalf("query: code %d", code)
	}
	if page.Version != "20240501" || page.Total != 2 {
		t.Errorf("type=Fire page = %+v", page)
	}
	getJSON(t, base+"/api/v1/cards?q=zzzz", nil)

	var stats analytics.AggregatedStats
	getJSON(t, base+"/api/v1/analytics", &stats)
	if stats.TotalSearches != 2 || stats.ZeroResultCount != 1 || stats.SyncsByOutcome["network"] != 1 {
		t.Errorf("analytics = %+v", stats)
	}

	if err := first.snaps.SaveSnapshot(context.Background(), first.agg.Stats()); err != nil {
		t.Fatal(err)
	}
	var history []analytics.AggregatedStats
	getJSON(t, base+"/api/v1/analytics/history?limit=5", &history)
	if len(history) != 1 || history[0].TotalSearches != 2 {
		t.Errorf("history = %+v", history)
	}

	second := newStack(t, cdnSrv.URL, dbPath)
	if !second.syncer.Rehydrate(context.Background()) {
		t.Fatal("restart did not rehydrate from the database")
	}
	var status catalogsync.Info
	getJSON(t, second.srv.URL+"/api/v1/status", &status)
	if status.Version != "20240501" || status.Cards != 3 {
		t.Errorf("status after restart = %+v", status)
	}
	if err := second.syncer.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := second.syncer.Status(); got != catalogsync.StatusReadyFromCache {
		t.Errorf("status = %s, want ready_from_cache", got)
	}
}

// TestFailedRefreshKeepsServing checks a corrupted publish leaves the
// previous catalog in place and readiness degraded rather than down.
func TestFailedRefreshKeepsServing(t *testing.T) {
	origin := &cdn{}
	origin.publish("20240501", false)
	cdnSrv := httptest.NewServer(origin)
	defer cdnSrv.Close()

	s := newStack(t, cdnSrv.URL, filepath.Join(t.TempDir(), "catalog.db"))
	base := s.srv.URL
	if code := postSync(t, base); code != http.StatusOK {
		t.Fatalf("sync: code %d", code)
	}

	origin.publish("20240601", true)
	if code := postSync(t, base); code == http.StatusOK {
		t.Fatal("corrupted artifact was accepted")
	}

	var page handler.ListResponse
	if code := getJSON(t, base+"/api/v1/cards", &page); code != http.StatusOK {
		t.Fatalf("query after failed refresh: code %d", code)
	}
	if page.Version != "20240501" || page.Total != 3 {
		t.Errorf("page after failed refresh = %+v", page)
	}
	if code := getJSON(t, base+"/health/ready", nil); code != http.StatusOK {
		t.Errorf("ready after failed refresh: code %d, want 200 (degraded)", code)
	}

	origin.publish("20240601", false)
	if code := postSync(t, base); code != http.StatusOK {
		t.Fatalf("recovery sync: code %d", code)
	}
	getJSON(t, base+"/api/v1/cards", &page)
	if page.Version != "20240601" {
		t.Errorf("version after recovery = %s", page.Version)
	}
}
