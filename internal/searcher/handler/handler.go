// Package handler serves the catalog query API over HTTP JSON.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/index"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/query"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/snapshot"
	catalogsync "github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/sync"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/searcher/cache"
	apperrors "github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// CatalogService is the part of the sync manager the API reads from.
type CatalogService interface {
	Catalog() *index.Catalog
	Info() catalogsync.Info
	Refresh(ctx context.Context) error
}

// Tracker receives one event per evaluated query.
type Tracker interface {
	TrackSearch(analytics.SearchEvent)
}

type Handler struct {
	catalog      CatalogService
	cache        *cache.QueryCache
	tracker      Tracker
	metrics      *metrics.Metrics
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// Options carries the optional collaborators; any of them may be nil.
type Options struct {
	Cache        *cache.QueryCache
	Tracker      Tracker
	Metrics      *metrics.Metrics
	DefaultLimit int
	MaxResults   int
}

func New(svc CatalogService, opts Options) *Handler {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 500
	}
	if opts.DefaultLimit <= 0 || opts.DefaultLimit > opts.MaxResults {
		opts.DefaultLimit = opts.MaxResults
	}
	return &Handler{
		catalog:      svc,
		cache:        opts.Cache,
		tracker:      opts.Tracker,
		metrics:      opts.Metrics,
		defaultLimit: opts.DefaultLimit,
		maxResults:   opts.MaxResults,
		logger:       slog.Default().With("component", "catalog-handler"),
	}
}

// ListResponse is one page of query results.
type ListResponse struct {
	Version  string `json:"version"`
	Total    int    `json:"total"`
	Offset   int    `json:"offset"`
	Limit    int    `json:"limit"`
	CacheHit bool   `json:"cacheHit"`
	Cards    any    `json:"cards"`
}

type facetResponse struct {
	Facet  string             `json:"facet"`
	Values []index.ValueCount `json:"values"`
}

// ListCards evaluates the query string's search and facet filters.
//
//	GET /api/v1/cards?q=char&type=Fire&rarity=Rare&limit=20&offset=0&view=normalized
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	cat := h.catalog.Catalog()
	if cat == nil {
		h.writeError(w, apperrors.ErrNotReady)
		return
	}

	params := r.URL.Query()
	filters := filtersFrom(params)
	offset, limit, err := h.pageFrom(params)
	if err != nil {
		h.writeError(w, err)
		return
	}
	view := params.Get("view")
	if view != "" && view != "full" && view != "normalized" {
		h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "unknown view %q", view))
		return
	}

	mode := "facet"
	if filters.HasSearch() {
		mode = "search"
	}
	ctx, span := tracing.StartSpan(ctx, "catalog.query",
		attribute.String("catalog.version", cat.Version()),
		attribute.String("query.mode", mode),
		attribute.String("query.filters", filters.Key()),
	)

	compute := func() (*cache.Result, error) {
		results := query.Evaluate(cat, filters)
		page := query.Page(results, offset, limit)
		ids := make([]string, len(page))
		for i, c := range page {
			ids[i] = c.ID
		}
		return &cache.Result{Version: cat.Version(), Total: len(results), IDs: ids}, nil
	}

	var res *cache.Result
	cacheHit := false
	if h.cache != nil {
		key := cache.Key(cat.Version(), filters, offset, limit)
		res, cacheHit, err = h.cache.GetOrCompute(ctx, key, compute)
	} else {
		res, err = compute()
	}
	span.SetAttributes(attribute.Int("query.total", safeTotal(res)), attribute.Bool("query.cache_hit", cacheHit))
	tracing.End(span, err)
	if err != nil {
		log.Error("query evaluation failed", "filters", filters.Key(), "error", err)
		h.writeError(w, err)
		return
	}

	resp := ListResponse{
		Version:  cat.Version(),
		Total:    res.Total,
		Offset:   offset,
		Limit:    limit,
		CacheHit: cacheHit,
	}
	if view == "normalized" {
		cards := make([]snapshot.NormalizedCard, 0, len(res.IDs))
		for _, id := range res.IDs {
			if c, ok := cat.Card(id); ok {
				cards = append(cards, c.NormalizedCard)
			}
		}
		resp.Cards = cards
	} else {
		cards := make([]index.DenormalizedCard, 0, len(res.IDs))
		for _, id := range res.IDs {
			if c, ok := cat.Card(id); ok {
				cards = append(cards, cat.Denormalize(c))
			}
		}
		resp.Cards = cards
	}

	latency := time.Since(start)
	h.metrics.ObserveQuery(mode, res.Total, latency)
	log.Info("query completed",
		"filters", filters.Key(),
		"total", res.Total,
		"returned", len(res.IDs),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	if h.tracker != nil {
		eventType := analytics.EventSearch
		if res.Total == 0 {
			eventType = analytics.EventZeroResult
		}
		h.tracker.TrackSearch(analytics.SearchEvent{
			Type:           eventType,
			Query:          filters.Search,
			Facets:         facetMap(filters),
			Mode:           mode,
			TotalHits:      res.Total,
			Returned:       len(res.IDs),
			LatencyMs:      latency.Milliseconds(),
			CacheHit:       cacheHit,
			CatalogVersion: cat.Version(),
			Timestamp:      time.Now().UTC(),
			RequestID:      middleware.GetRequestID(ctx),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetCard returns one denormalized card by id.
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	cat := h.catalog.Catalog()
	if cat == nil {
		h.writeError(w, apperrors.ErrNotReady)
		return
	}
	id := r.PathValue("id")
	card, ok := cat.Card(id)
	if !ok {
		h.writeError(w, apperrors.Newf(apperrors.ErrCardNotFound, http.StatusNotFound, "no card with id %q", id))
		return
	}
	h.writeJSON(w, http.StatusOK, cat.Denormalize(card))
}

// Facet lists every value of one facet with its card count.
func (h *Handler) Facet(w http.ResponseWriter, r *http.Request) {
	cat := h.catalog.Catalog()
	if cat == nil {
		h.writeError(w, apperrors.ErrNotReady)
		return
	}
	facet, err := index.ParseFacet(r.PathValue("facet"))
	if err != nil {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, err.Error()))
		return
	}
	h.writeJSON(w, http.StatusOK, facetResponse{
		Facet:  facet.String(),
		Values: cat.Index(facet).Counts(),
	})
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.catalog.Info())
}

// Sync runs a refresh and reports the resulting status. A failed refresh
// keeps serving the previous catalog; the response carries the failure.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	err := h.catalog.Refresh(r.Context())
	info := h.catalog.Info()
	if err != nil {
		logger.FromContext(r.Context()).Warn("manual sync failed", "error", err)
		h.writeJSON(w, apperrors.HTTPStatusCode(err), map[string]any{
			"error":  err.Error(),
			"status": info,
		})
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.cache.Stats())
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "caching is disabled"})
		return
	}
	n, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": n})
}

func filtersFrom(params map[string][]string) query.Filters {
	f := query.Filters{Facets: make(map[index.Facet]string)}
	if v := params["q"]; len(v) > 0 {
		f.Search = v[0]
	}
	for _, facet := range index.Facets {
		if v := params[facet.String()]; len(v) > 0 && v[0] != "" {
			f.Facets[facet] = v[0]
		}
	}
	return f
}

func facetMap(f query.Filters) map[string]string {
	active := f.Active()
	if len(active) == 0 {
		return nil
	}
	out := make(map[string]string, len(active))
	for _, a := range active {
		out[a.Facet.String()] = a.Value
	}
	return out
}

func (h *Handler) pageFrom(params map[string][]string) (offset, limit int, err error) {
	limit = h.defaultLimit
	if v := first(params, "limit"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n < 1 {
			return 0, 0, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, h.maxResults)
	}
	if v := first(params, "offset"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n < 0 {
			return 0, 0, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "offset must be a non-negative integer")
		}
		offset = n
	}
	return offset, limit, nil
}

func first(params map[string][]string, name string) string {
	if v := params[name]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func safeTotal(res *cache.Result) int {
	if res == nil {
		return 0
	}
	return res.Total
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	msg := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	if errors.Is(err, apperrors.ErrNotReady) {
		w.Header().Set("Retry-After", "5")
	}
	h.writeJSON(w, apperrors.HTTPStatusCode(err), map[string]string{"error": msg})
}
