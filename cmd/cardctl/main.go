// Command cardctl is the operator CLI for the card catalog: it builds and
// announces manifests, synchronises the local durable cache and queries it.
//
// Usage:
//
//	cardctl manifest artifact.json --url https://cdn.example.com/catalog/artifact.json
//	cardctl sync --config configs/catalogd.yaml
//	cardctl search char --type Fire --limit 10
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/source"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/store"
	catalogsync "github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/sync"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	flagConfig   string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:          "cardctl",
	Short:        "Operate the card catalog index",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.SetupWriter(os.Stderr, flagLogLevel, "text")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file (defaults plus CATALOG_* environment)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "log level: debug, info, warn or error")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openSyncer builds a sync manager over the configured store. The CLI never
// hosts a long-lived catalog; each command rehydrates what it needs.
func openSyncer(ctx context.Context, cfg *config.Config) (*catalogsync.Syncer, io.Closer, error) {
	st, closer, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s store: %w", cfg.Store.Backend, err)
	}
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
			closer.Close()
			return nil, nil, err
		}
		mux.Handle("s3", s3Fetcher)
	}
	s := catalogsync.New(mux, st, catalogsync.Options{
		ManifestURL:  cfg.Catalog.ManifestURL,
		CacheKey:     cfg.Catalog.CacheKey,
		FetchTimeout: cfg.Catalog.FetchTimeout,
	})
	return s, closer, nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}
