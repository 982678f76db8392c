// Package router wires the catalog API routes and applies the middleware
// chain (RequestID → AccessLog → CORS → RateLimit → Metrics).
package router

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/middleware"
)

type Deps struct {
	Handler   *handler.Handler
	Analytics *analytics.Handler
	Health    *health.Checker
	Limiter   *middleware.ClientLimiter
	Metrics   *metrics.Metrics
	CORS      middleware.CORSConfig
	// RequestTimeout bounds read endpoints. Sync is exempt: it is bounded
	// by the catalog fetch timeout instead.
	RequestTimeout time.Duration
}

// New builds the catalog HTTP handler.
//
// Route table:
//
//	GET    /api/v1/cards                → query cards (search + facets)
//	GET    /api/v1/cards/{id}           → one card
//	GET    /api/v1/facets/{facet}       → facet values with counts
//	GET    /api/v1/status               → sync status
//	POST   /api/v1/sync                 → refresh from the CDN
//	GET    /api/v1/cache/stats          → result cache stats
//	POST   /api/v1/cache/invalidate     → drop cached results
//	GET    /api/v1/analytics            → aggregated search analytics
//	GET    /api/v1/analytics/history    → persisted analytics snapshots
//	GET    /health/live, /health/ready  → probes
func New(d Deps) http.Handler {
	mux := http.NewServeMux()
	bounded := middleware.Timeout(d.RequestTimeout)
	h := d.Handler

	mux.Handle("GET /api/v1/cards", bounded(http.HandlerFunc(h.ListCards)))
	mux.Handle("GET /api/v1/cards/{id}", bounded(http.HandlerFunc(h.GetCard)))
	mux.Handle("GET /api/v1/facets/{facet}", bounded(http.HandlerFunc(h.Facet)))
	mux.HandleFunc("GET /api/v1/status", h.Status)
	mux.HandleFunc("POST /api/v1/sync", h.Sync)

	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.Handle("POST /api/v1/cache/invalidate", bounded(http.HandlerFunc(h.CacheInvalidate)))

	if d.Analytics != nil {
		mux.HandleFunc("GET /api/v1/analytics", d.Analytics.Stats)
		mux.Handle("GET /api/v1/analytics/history", bounded(http.HandlerFunc(d.Analytics.History)))
	}

	if d.Health != nil {
		mux.HandleFunc("GET /health/live", d.Health.LiveHandler())
		mux.HandleFunc("GET /health/ready", d.Health.ReadyHandler())
		mux.HandleFunc("GET /health", d.Health.ReadyHandler())
	}

	// Applied inside-out:
	// request → RequestID → AccessLog → CORS → RateLimit → Metrics → mux
	var chain http.Handler = mux
	chain = middleware.Metrics(d.Metrics)(chain)
	chain = middleware.RateLimit(d.Limiter)(chain)
	chain = middleware.CORS(d.CORS)(chain)
	chain = middleware.AccessLog(chain)
	chain = middleware.RequestID(chain)
	return chain
}
