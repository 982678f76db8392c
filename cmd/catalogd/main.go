// Command catalogd hosts one card catalog and serves queries over HTTP.
//
// On boot it rehydrates the catalog from the durable cache, then synchronises
// with the published manifest. It refreshes again whenever a catalog-published
// event arrives on Kafka or an operator calls POST /api/v1/sync.
//
// Usage:
//
//	go run ./cmd/catalogd [-config configs/catalogd.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/notify"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/source"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/store"
	catalogsync "github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/sync"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/searcher/router"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/sqldb"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	configPath := flag.String("config", "configs/catalogd.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting catalog service",
		"port", cfg.Server.Port,
		"manifest_url", cfg.Catalog.ManifestURL,
		"store", cfg.Store.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		slog.Warn("tracing unavailable", "error", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownTracing(sctx)
	}()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
		stopMetrics := metrics.StartServer(cfg.Metrics.Port, reg)
		defer stopMetrics(context.Background())
	}

	st, closer, err := store.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open catalog store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer closer.Close()

	fetcher, err := newFetcher(ctx, cfg)
	if err != nil {
		slog.Error("failed to create artifact fetcher", "error", err)
		os.Exit(1)
	}

	checker := health.NewChecker()

	var producer *kafka.Producer
	var collector *analytics.Collector
	agg := analytics.NewAggregator()
	if cfg.Kafka.Enabled && cfg.Analytics.Enabled {
		producer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		collector = analytics.NewCollector(producer, cfg.Analytics, m)
		collector.Start(ctx)
		defer collector.Close()

		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, agg.Handle)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("analytics consumer error", "error", err)
			}
		}()
		slog.Info("analytics pipeline started", "topic", cfg.Kafka.Topics.AnalyticsEvents)
	}

	syncer := catalogsync.New(fetcher, st, catalogsync.Options{
		ManifestURL:  cfg.Catalog.ManifestURL,
		CacheKey:     cfg.Catalog.CacheKey,
		FetchTimeout: cfg.Catalog.FetchTimeout,
		Metrics:      m,
		OnSync: func(outcome string, info catalogsync.Info, elapsed time.Duration) {
			if info.Version != "" {
				m.SetCatalog(info.Version, info.Cards)
			}
			event := analytics.SyncEvent{
				Type:      analytics.EventSync,
				Outcome:   outcome,
				Version:   info.Version,
				Cards:     info.Cards,
				LatencyMs: elapsed.Milliseconds(),
				Timestamp: time.Now().UTC(),
			}
			if collector != nil {
				collector.TrackSync(event)
			} else {
				agg.RecordSync(event)
			}
		},
	})

	checker.Register("catalog", health.CatalogCheck(func() health.CatalogState {
		info := syncer.Info()
		return health.CatalogState{
			Installed:       info.Version != "",
			Version:         info.Version,
			Cards:           info.Cards,
			SyncStatus:      info.Status.String(),
			ManifestVersion: info.ManifestVersion,
			LastSync:        info.LastSync,
			LastError:       info.LastError,
		}
	}))

	if syncer.Rehydrate(ctx) {
		info := syncer.Info()
		m.SetCatalog(info.Version, info.Cards)
		slog.Info("serving cached catalog while synchronising", "version", info.Version)
	}
	go initialSync(ctx, cfg.Catalog, syncer)

	if cfg.Kafka.Enabled {
		breaker := resilience.NewCircuitBreaker("catalog-refresh", resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.Catalog.RefreshFailureLimit,
			ResetTimeout:     cfg.Catalog.RefreshCooldown,
			IsFailure:        apperrors.IsSyncFailure,
			OnStateChange: func(name string, _, to resilience.State) {
				m.SetBreakerState(name, int(to))
			},
		})
		listener := notify.NewListener(syncer, breaker)
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.CatalogPublished, listener.Handle)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("publish notification consumer error", "error", err)
			}
		}()
		slog.Info("listening for catalog publications", "topic", cfg.Kafka.Topics.CatalogPublished)
	}

	var queryCache *cache.QueryCache
	if cfg.Search.CacheResults {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, result caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			checker.Register("redis", health.PingCheck(redisClient, true))
			slog.Info("result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var history analytics.History
	if db, ok := closer.(*sqldb.Client); ok {
		if snapshots, err := aggregator.NewStore(ctx, db); err != nil {
			slog.Warn("analytics snapshots disabled", "error", err)
		} else {
			snapshots.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)
			history = snapshots
		}
		checker.Register("database", health.PingCheck(db, false))
	}

	var limiter *middleware.ClientLimiter
	if cfg.Server.RateLimitRPS > 0 {
		limiter = middleware.NewClientLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
		go sweepLimiter(ctx, limiter)
	}

	var tracker handler.Tracker
	if collector != nil {
		tracker = collector
	} else {
		tracker = localTracker{agg}
	}

	h := handler.New(syncer, handler.Options{
		Cache:        queryCache,
		Tracker:      tracker,
		Metrics:      m,
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxResults:   cfg.Search.MaxResults,
	})
	chain := router.New(router.Deps{
		Handler:        h,
		Analytics:      analytics.NewHandler(agg, history),
		Health:         checker,
		Limiter:        limiter,
		Metrics:        m,
		CORS:           middleware.DefaultCORSConfig(),
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("catalog service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("catalog service stopped")
}

// newFetcher routes http(s) artifact URLs through a rate-limited client and,
// when enabled, s3:// URLs through the S3 API.
func newFetcher(ctx context.Context, cfg *config.Config) (source.Fetcher, error) {
	mux := source.NewMux()
	httpFetcher := source.NewHTTPFetcher(
		source.WithRateLimit(cfg.Catalog.FetchRPS, 1),
		source.WithUserAgent(cfg.Catalog.UserAgent),
	)
	mux.Handle("http", httpFetcher)
	mux.Handle("https", httpFetcher)
	if cfg.S3.Enabled {
		s3Fetcher, err := source.NewS3Fetcher(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		mux.Handle("s3", s3Fetcher)
	}
	return mux, nil
}

// initialSync retries only the first synchronisation, and only for
// transport failures; integrity and parse errors will not heal on retry.
func initialSync(ctx context.Context, cfg config.CatalogConfig, syncer *catalogsync.Syncer) {
	err := resilience.Retry(ctx, "initial catalog sync", resilience.RetryConfig{
		MaxAttempts:  cfg.InitialSyncAttempts,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Retryable: func(err error) bool {
			return errors.Is(err, apperrors.ErrManifestFetch) || errors.Is(err, apperrors.ErrArtifactFetch)
		},
	}, func() error {
		return syncer.Initialize(ctx)
	})
	if err != nil {
		slog.Error("initial catalog sync failed", "error", err, "serving_version", syncer.Version())
	}
}

func sweepLimiter(ctx context.Context, l *middleware.ClientLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

// localTracker feeds the in-process aggregator when Kafka is off.
type localTracker struct{ agg *analytics.Aggregator }

func (t localTracker) TrackSearch(e analytics.SearchEvent) { t.agg.RecordSearch(e) }
