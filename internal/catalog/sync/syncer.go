// Package sync keeps the in-memory catalog in step with the published
// snapshot. A Syncer rehydrates from the durable cache, compares the cached
// version with the manifest and, only when they differ, downloads, verifies,
// parses and indexes the artifact before swapping it in whole.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/fuzzy"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/index"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/snapshot"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/source"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// Options configures a Syncer.
type Options struct {
	ManifestURL string
	// CacheKey names the persisted state in the store.
	CacheKey     string
	FetchTimeout time.Duration
	Matcher      fuzzy.Matcher
	Metrics      *metrics.Metrics
	// OnSync, if set, is called after every synchronisation attempt with
	// its outcome ("network", "unchanged" or "error").
	OnSync func(outcome string, info Info, elapsed time.Duration)
}

// Info is a point-in-time view of the Syncer for status reporting.
type Info struct {
	Status          Status    `json:"status"`
	Version         string    `json:"version,omitempty"`
	Cards           int       `json:"cards"`
	ManifestVersion string    `json:"manifestVersion,omitempty"`
	LastSync        time.Time `json:"lastSync,omitempty"`
	LastError       string    `json:"lastError,omitempty"`
}

type Syncer struct {
	fetcher source.Fetcher
	store   store.Store
	opts    Options
	logger  *slog.Logger

	catalog atomic.Pointer[index.Catalog]

	// loadMu serialises the work of Rehydrate and Initialize.
	loadMu gosync.Mutex

	mu              gosync.Mutex
	status          Status
	err             error
	manifestVersion string
	lastSync        time.Time
}

func New(fetcher source.Fetcher, st store.Store, opts Options) *Syncer {
	if opts.Matcher == nil {
		opts.Matcher = fuzzy.NewEngine()
	}
	if opts.CacheKey == "" {
		opts.CacheKey = "card-catalog"
	}
	return &Syncer{
		fetcher: fetcher,
		store:   st,
		opts:    opts,
		logger:  slog.Default().With("component", "catalog-sync"),
	}
}

// Catalog returns the installed catalog, or nil before the first successful
// load. The returned value is immutable.
func (s *Syncer) Catalog() *index.Catalog {
	return s.catalog.Load()
}

func (s *Syncer) Version() string {
	if cat := s.catalog.Load(); cat != nil {
		return cat.Version()
	}
	return ""
}

func (s *Syncer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Err returns the error that put the Syncer in StatusError, if any.
func (s *Syncer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Syncer) Info() Info {
	s.mu.Lock()
	info := Info{
		Status:          s.status,
		ManifestVersion: s.manifestVersion,
		LastSync:        s.lastSync,
	}
	if s.err != nil {
		info.LastError = s.err.Error()
	}
	s.mu.Unlock()
	if cat := s.catalog.Load(); cat != nil {
		info.Version = cat.Version()
		info.Cards = cat.Len()
	}
	return info
}

// Rehydrate loads the persisted state and indexes it before any query can
// see it. A missing, unreadable or corrupted entry is a cache miss; corrupted
// entries are removed. It reports whether a cached catalog was installed.
func (s *Syncer) Rehydrate(ctx context.Context) bool {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	ctx, span := tracing.StartSpan(ctx, "catalog.rehydrate", attribute.String("cache_key", s.opts.CacheKey))
	defer span.End()

	state, err := s.store.GetItem(ctx, s.opts.CacheKey)
	if err != nil {
		s.opts.Metrics.StoreError("get")
		s.logger.Warn("durable cache unreadable, treating as miss", "error", err)
		if errors.Is(err, apperrors.ErrCorruptState) {
			s.discard(ctx)
		}
		return false
	}
	if state == nil {
		s.logger.Info("durable cache empty")
		return false
	}

	cat, err := index.Build(state.Version, state.LookupTables, state.Cards, s.opts.Matcher)
	if err != nil {
		s.logger.Warn("cached state failed validation, treating as miss", "version", state.Version, "error", err)
		s.discard(ctx)
		return false
	}
	s.publish(cat)
	span.SetAttributes(attribute.String("version", cat.Version()), attribute.Int("cards", cat.Len()))
	s.logger.Info("catalog rehydrated from durable cache", "version", cat.Version(), "cards", cat.Len())
	return true
}

func (s *Syncer) discard(ctx context.Context) {
	if err := s.store.RemoveItem(ctx, s.opts.CacheKey); err != nil {
		s.opts.Metrics.StoreError("remove")
		s.logger.Warn("removing cached state failed", "error", err)
	}
}

// Initialize brings the catalog up to the published version. Only one call
// does the work: a call made while another is loading, or after a ready
// state has been reached, returns nil at once. A failed attempt leaves the
// previously installed catalog in place and the Syncer in StatusError; it is
// never retried here.
func (s *Syncer) Initialize(ctx context.Context) error {
	if !s.begin(false) {
		return nil
	}
	return s.run(ctx)
}

// Refresh re-arms a finished Syncer and synchronises again. It is a no-op
// while a load is in flight.
func (s *Syncer) Refresh(ctx context.Context) error {
	if !s.begin(true) {
		return nil
	}
	return s.run(ctx)
}

func (s *Syncer) begin(rearm bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.status == StatusLoading:
		return false
	case s.status.Ready() && !rearm:
		return false
	}
	s.status = StatusLoading
	return true
}

func (s *Syncer) run(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "catalog.sync", attribute.String("manifest_url", s.opts.ManifestURL))
	status, err := s.synchronize(ctx)
	tracing.End(span, err)

	s.mu.Lock()
	s.status = status
	s.err = err
	s.lastSync = time.Now()
	s.mu.Unlock()

	outcome := "error"
	switch status {
	case StatusReadyFromCache:
		outcome = "unchanged"
	case StatusReadyFromNetwork:
		outcome = "network"
	}
	elapsed := time.Since(start)
	s.opts.Metrics.ObserveSync(outcome, elapsed)
	if s.opts.OnSync != nil {
		s.opts.OnSync(outcome, s.Info(), elapsed)
	}

	if err != nil {
		s.logger.Error("catalog synchronisation failed",
			"error", err,
			"installed_version", s.Version(),
			"duration", elapsed,
		)
		return err
	}
	s.logger.Info("catalog synchronised",
		"status", status.String(),
		"version", s.Version(),
		"duration", elapsed,
	)
	return nil
}

func (s *Syncer) synchronize(ctx context.Context) (Status, error) {
	manifest, err := s.fetchManifest(ctx)
	if err != nil {
		return StatusError, err
	}
	s.mu.Lock()
	s.manifestVersion = manifest.Version
	s.mu.Unlock()

	if current := s.catalog.Load(); current != nil && current.Version() == manifest.Version {
		return StatusReadyFromCache, nil
	}

	raw, err := s.fetchArtifact(ctx, manifest)
	if err != nil {
		return StatusError, err
	}
	if err := snapshot.VerifyChecksum(raw, manifest.CheckSum); err != nil {
		return StatusError, err
	}

	artifact, err := snapshot.ParseArtifact(raw)
	if err != nil {
		return StatusError, err
	}
	if artifact.Version != manifest.Version {
		return StatusError, fmt.Errorf("%w: artifact version %q does not match manifest version %q",
			apperrors.ErrParse, artifact.Version, manifest.Version)
	}
	if manifest.CardCount > 0 && manifest.CardCount != len(artifact.Cards) {
		s.logger.Warn("manifest card count differs from artifact",
			"manifest_count", manifest.CardCount,
			"artifact_count", len(artifact.Cards),
		)
	}

	_, buildSpan := tracing.StartSpan(ctx, "catalog.build", attribute.Int("cards", len(artifact.Cards)))
	cat, err := index.Build(artifact.Version, artifact.Tables(), artifact.Cards, s.opts.Matcher)
	tracing.End(buildSpan, err)
	if err != nil {
		return StatusError, err
	}

	s.publish(cat)
	s.persist(ctx, artifact)
	return StatusReadyFromNetwork, nil
}

func (s *Syncer) fetchManifest(ctx context.Context) (*snapshot.Manifest, error) {
	var data []byte
	err := resilience.WithTimeout(ctx, s.opts.FetchTimeout, "manifest fetch", func(ctx context.Context) error {
		var err error
		data, err = s.fetcher.Fetch(ctx, s.opts.ManifestURL)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrManifestFetch, err)
	}
	return snapshot.ParseManifest(data)
}

func (s *Syncer) fetchArtifact(ctx context.Context, m *snapshot.Manifest) ([]byte, error) {
	artifactURL, err := source.ResolveURL(s.opts.ManifestURL, m.URL)
	if err != nil {
		return nil, err
	}
	ctx, span := tracing.StartSpan(ctx, "catalog.fetch_artifact", attribute.String("url", artifactURL))
	var data []byte
	err = resilience.WithTimeout(ctx, s.opts.FetchTimeout, "artifact fetch", func(ctx context.Context) error {
		var err error
		data, err = s.fetcher.Fetch(ctx, artifactURL)
		return err
	})
	span.SetAttributes(attribute.Int("bytes", len(data)))
	tracing.End(span, err)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrArtifactFetch, err)
	}
	return data, nil
}

// publish swaps in cat as one unit; readers see either the old catalog or
// the new one.
func (s *Syncer) publish(cat *index.Catalog) {
	s.catalog.Store(cat)
	s.opts.Metrics.SetCatalog(cat.Version(), cat.Len())
}

// persist writes tables, cards and version, never the derived indexes. A
// failure is logged and does not affect the synchronisation outcome.
func (s *Syncer) persist(ctx context.Context, a *snapshot.Artifact) {
	state := &store.State{
		LookupTables: a.Tables(),
		Cards:        a.Cards,
		Version:      a.Version,
	}
	if err := s.store.SetItem(ctx, s.opts.CacheKey, state); err != nil {
		s.opts.Metrics.StoreError("set")
		s.logger.Warn("persisting catalog failed", "version", a.Version, "error", err)
	}
}

// Purge removes the persisted state. The installed catalog is unaffected.
func (s *Syncer) Purge(ctx context.Context) error {
	if err := s.store.RemoveItem(ctx, s.opts.CacheKey); err != nil {
		s.opts.Metrics.StoreError("remove")
		return fmt.Errorf("purging durable cache: %w", err)
	}
	return nil
}
