package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/catalogtest"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/index"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/snapshot"
	catalogsync "github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/sync"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/searcher/cache"
	apperrors "github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

type fakeService struct {
	mu         sync.Mutex
	cat        *index.Catalog
	refreshErr error
	refreshes  int
}

func (f *fakeService) Catalog() *index.Catalog {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cat
}

func (f *fakeService) Info() catalogsync.Info {
	f.mu.Lock()
	defer f.mu.Unlock()
	info := catalogsync.Info{Status: catalogsync.StatusIdle}
	if f.cat != nil {
		info.Status = catalogsync.StatusReadyFromNetwork
		info.Version = f.cat.Version()
		info.Cards = f.cat.Len()
	}
	if f.refreshErr != nil {
		info.Status = catalogsync.StatusError
		info.LastError = f.refreshErr.Error()
	}
	return info
}

func (f *fakeService) Refresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return f.refreshErr
}

type recordingTracker struct {
	mu     sync.Mutex
	events []analytics.SearchEvent
}

func (r *recordingTracker) TrackSearch(e analytics.SearchEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

type mapBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (b *mapBackend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.data[key]; ok {
		return v, nil
	}
	return nil, goredis.Nil
}

func (b *mapBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = value
	return nil
}

func (b *mapBackend) FlushByPattern(context.Context, string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := int64(len(b.data))
	b.data = make(map[string][]byte)
	return n, nil
}

func loaded(t *testing.T) *fakeService {
	t.Helper()
	cat, err := index.Build("v1", catalogtest.Tables(), catalogtest.Cards(), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return &fakeService{cat: cat}
}

func serve(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/cards", h.ListCards)
	mux.HandleFunc("GET /api/v1/cards/{id}", h.GetCard)
	mux.HandleFunc("GET /api/v1/facets/{facet}", h.Facet)
	mux.HandleFunc("GET /api/v1/status", h.Status)
	mux.HandleFunc("POST /api/v1/sync", h.Sync)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	return mux
}

func do(t *testing.T, mux http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

type listBody struct {
	Version  string                   `json:"version"`
	Total    int                      `json:"total"`
	Offset   int                      `json:"offset"`
	Limit    int                      `json:"limit"`
	CacheHit bool                     `json:"cacheHit"`
	Cards    []index.DenormalizedCard `json:"cards"`
}

func decodeList(t *testing.T, rec *httptest.ResponseRecorder) listBody {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body listBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding %s: %v", rec.Body.String(), err)
	}
	return body
}

func ids(cards []index.DenormalizedCard) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.ID
	}
	return out
}

func TestNotReadyReturns503(t *testing.T) {
	mux := serve(New(&fakeService{}, Options{}))
	for _, target := range []string{"/api/v1/cards", "/api/v1/cards/sv3-125", "/api/v1/facets/type"} {
		rec := do(t, mux, http.MethodGet, target)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status %d, want 503", target, rec.Code)
		}
		if rec.Header().Get("Retry-After") == "" {
			t.Errorf("%s: missing Retry-After", target)
		}
	}
	rec := do(t, mux, http.MethodGet, "/api/v1/status")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"idle"`) {
		t.Errorf("status endpoint: %d %s", rec.Code, rec.Body.String())
	}
}

func TestListCardsFacetFilter(t *testing.T) {
	mux := serve(New(loaded(t), Options{}))

	body := decodeList(t, do(t, mux, http.MethodGet, "/api/v1/cards?type=Fire"))
	if got := ids(body.Cards); fmt.Sprint(got) != "[sv3-125 sv3-030]" {
		t.Errorf("type=Fire = %v, want list order [sv3-125 sv3-030]", got)
	}
	if body.Total != 2 || body.Version != "v1" {
		t.Errorf("total %d version %q", body.Total, body.Version)
	}
	if body.Cards[0].Rarity != "Rare" || body.Cards[0].Set.ID != "sv3" {
		t.Errorf("card not denormalized: %+v", body.Cards[0])
	}

	body = decodeList(t, do(t, mux, http.MethodGet, "/api/v1/cards?artist=Fire"))
	if got := ids(body.Cards); fmt.Sprint(got) != "[sv1-045]" {
		t.Errorf("artist=Fire = %v, want [sv1-045]", got)
	}
}

func TestListCardsZeroMatchesIsEmptyArray(t *testing.T) {
	mux := serve(New(loaded(t), Options{}))
	rec := do(t, mux, http.MethodGet, "/api/v1/cards?type=Psychic")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"cards":[]`) {
		t.Errorf("zero matches body = %s, want cards []", rec.Body.String())
	}
}

func TestListCardsSearchAndTracking(t *testing.T) {
	tracker := &recordingTracker{}
	mux := serve(New(loaded(t), Options{Tracker: tracker}))

	body := decodeList(t, do(t, mux, http.MethodGet, "/api/v1/cards?q=char"))
	if got := ids(body.Cards); fmt.Sprint(got) != "[sv3-030 sv3-125]" {
		t.Errorf("q=char = %v", got)
	}

	decodeList(t, do(t, mux, http.MethodGet, "/api/v1/cards?q=char&rarity=Common"))
	do(t, mux, http.MethodGet, "/api/v1/cards?q=zzzz")

	if len(tracker.events) != 3 {
		t.Fatalf("tracked %d events, want 3", len(tracker.events))
	}
	e := tracker.events[1]
	if e.Mode != "search" || e.Query != "char" || e.Facets["rarity"] != "Common" || e.TotalHits != 1 {
		t.Errorf("event = %+v", e)
	}
	if tracker.events[2].Type != analytics.EventZeroResult {
		t.Errorf("zero-result event type = %s", tracker.events[2].Type)
	}
}

func TestBlankSearchIsFacetMode(t *testing.T) {
	tracker := &recordingTracker{}
	mux := serve(New(loaded(t), Options{Tracker: tracker}))

	body := decodeList(t, do(t, mux, http.MethodGet, "/api/v1/cards?q=%20%20&type=Fire"))
	if body.Total != 2 {
		t.Errorf("q=blank&type=Fire total = %d, want 2", body.Total)
	}
	if len(tracker.events) != 1 || tracker.events[0].Mode != "facet" {
		t.Fatalf("events = %+v, want one facet-mode event", tracker.events)
	}
}

func TestListCardsPagination(t *testing.T) {
	mux := serve(New(loaded(t), Options{DefaultLimit: 2, MaxResults: 2}))

	body := decodeList(t, do(t, mux, http.MethodGet, "/api/v1/cards"))
	if body.Total != 3 || len(body.Cards) != 2 || body.Limit != 2 {
		t.Errorf("default page: total %d cards %d limit %d", body.Total, len(body.Cards), body.Limit)
	}

	body = decodeList(t, do(t, mux, http.MethodGet, "/api/v1/cards?type=Fire&limit=1&offset=1"))
	if got := ids(body.Cards); fmt.Sprint(got) != "[sv3-030]" || body.Total != 2 {
		t.Errorf("page 2 = %v total %d", got, body.Total)
	}

	body = decodeList(t, do(t, mux, http.MethodGet, "/api/v1/cards?limit=50"))
	if body.Limit != 2 {
		t.Errorf("limit not clamped: %d", body.Limit)
	}

	body = decodeList(t, do(t, mux, http.MethodGet, "/api/v1/cards?offset=10"))
	if len(body.Cards) != 0 || body.Total != 3 {
		t.Errorf("past end: %d cards total %d", len(body.Cards), body.Total)
	}

	for _, bad := range []string{"limit=0", "limit=x", "offset=-1", "view=xml"} {
		if rec := do(t, mux, http.MethodGet, "/api/v1/cards?"+bad); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", bad, rec.Code)
		}
	}
}

func TestListCardsNormalizedView(t *testing.T) {
	mux := serve(New(loaded(t), Options{}))
	rec := do(t, mux, http.MethodGet, "/api/v1/cards?rarity=Common&view=normalized")
	var body struct {
		Cards []snapshot.NormalizedCard `json:"cards"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Cards) != 1 || body.Cards[0].ID != "sv3-030" || body.Cards[0].RarityID == nil || *body.Cards[0].RarityID != 1 {
		t.Errorf("normalized cards = %+v", body.Cards)
	}
}

func TestGetCard(t *testing.T) {
	mux := serve(New(loaded(t), Options{}))

	rec := do(t, mux, http.MethodGet, "/api/v1/cards/sv1-045")
	var card index.DenormalizedCard
	if err := json.Unmarshal(rec.Body.Bytes(), &card); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK || card.Name != "Blastoise" || card.Artist != "Fire" {
		t.Errorf("card = %d %+v", rec.Code, card)
	}

	if rec := do(t, mux, http.MethodGet, "/api/v1/cards/nope-1"); rec.Code != http.StatusNotFound {
		t.Errorf("missing card: status %d, want 404", rec.Code)
	}
}

func TestFacetCounts(t *testing.T) {
	mux := serve(New(loaded(t), Options{}))

	rec := do(t, mux, http.MethodGet, "/api/v1/facets/type")
	var body facetResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Facet != "type" || len(body.Values) != 2 || body.Values[0] != (index.ValueCount{Value: "Fire", Count: 2}) {
		t.Errorf("facet = %+v", body)
	}

	if rec := do(t, mux, http.MethodGet, "/api/v1/facets/colour"); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown facet: status %d, want 400", rec.Code)
	}
}

func TestSync(t *testing.T) {
	svc := loaded(t)
	mux := serve(New(svc, Options{}))

	if rec := do(t, mux, http.MethodPost, "/api/v1/sync"); rec.Code != http.StatusOK {
		t.Errorf("sync: status %d", rec.Code)
	}

	svc.refreshErr = fmt.Errorf("%w: status 500", apperrors.ErrManifestFetch)
	rec := do(t, mux, http.MethodPost, "/api/v1/sync")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("failed sync: status %d, want 502", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"version":"v1"`) {
		t.Errorf("failed sync should still report the installed version: %s", rec.Body.String())
	}
	if svc.refreshes != 2 {
		t.Errorf("refreshes = %d, want 2", svc.refreshes)
	}
}

func TestResultCache(t *testing.T) {
	qc := cache.New(&mapBackend{data: make(map[string][]byte)}, time.Minute, nil)
	mux := serve(New(loaded(t), Options{Cache: qc}))

	first := decodeList(t, do(t, mux, http.MethodGet, "/api/v1/cards?type=Fire"))
	second := decodeList(t, do(t, mux, http.MethodGet, "/api/v1/cards?type=Fire"))
	if first.CacheHit || !second.CacheHit {
		t.Errorf("cache hits = %v, %v; want false, true", first.CacheHit, second.CacheHit)
	}
	if fmt.Sprint(ids(first.Cards)) != fmt.Sprint(ids(second.Cards)) {
		t.Errorf("cached page differs: %v vs %v", ids(first.Cards), ids(second.Cards))
	}

	rec := do(t, mux, http.MethodGet, "/api/v1/cache/stats")
	if !strings.Contains(rec.Body.String(), `"hits":1`) {
		t.Errorf("stats = %s", rec.Body.String())
	}
	rec = do(t, mux, http.MethodPost, "/api/v1/cache/invalidate")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"keys_deleted":1`) {
		t.Errorf("invalidate = %d %s", rec.Code, rec.Body.String())
	}
}

func TestCacheEndpointsWhenDisabled(t *testing.T) {
	mux := serve(New(loaded(t), Options{}))
	if rec := do(t, mux, http.MethodGet, "/api/v1/cache/stats"); !strings.Contains(rec.Body.String(), "disabled") {
		t.Errorf("stats = %s", rec.Body.String())
	}
	if rec := do(t, mux, http.MethodPost, "/api/v1/cache/invalidate"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("invalidate: status %d, want 503", rec.Code)
	}
}
