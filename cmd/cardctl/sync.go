package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var flagSyncManifest string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronise the durable cache with the published manifest",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the durable cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the persisted catalog",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

func init() {
	syncCmd.Flags().StringVar(&flagSyncManifest, "manifest-url", "", "override catalog.manifestUrl")
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(syncCmd, cacheCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if flagSyncManifest != "" {
		cfg.Catalog.ManifestURL = flagSyncManifest
	}
	ctx := cmd.Context()
	s, closer, err := openSyncer(ctx, cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	s.Rehydrate(ctx)
	syncErr := s.Initialize(ctx)

	out, err := json.MarshalIndent(s.Info(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return syncErr
}

func runCacheClear(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, closer, err := openSyncer(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	if err := s.Purge(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %q from the %s store\n", cfg.Catalog.CacheKey, cfg.Store.Backend)
	return nil
}
