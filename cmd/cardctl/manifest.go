package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/snapshot"
	"github.com/spf13/cobra"
)

var (
	flagManifestURL    string
	flagManifestOutput string
)

var manifestCmd = &cobra.Command{
	Use:   "manifest <artifact.json>",
	Short: "Validate an artifact and write the manifest that announces it",
	Args:  cobra.ExactArgs(1),
	RunE:  runManifest,
}

func init() {
	manifestCmd.Flags().StringVar(&flagManifestURL, "url", "", "artifact URL to record in the manifest (defaults to the file name)")
	manifestCmd.Flags().StringVarP(&flagManifestOutput, "output", "o", "", "write the manifest here instead of stdout")
	rootCmd.AddCommand(manifestCmd)
}

func runManifest(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	artifact, err := snapshot.ParseArtifact(data)
	if err != nil {
		return err
	}
	if err := artifact.Validate(); err != nil {
		return err
	}

	url := flagManifestURL
	if url == "" {
		url = args[0]
	}
	m, err := snapshot.NewManifest(data, url, time.Now())
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	out = append(out, '\n')

	if flagManifestOutput == "" {
		_, err = cmd.OutOrStdout().Write(out)
		return err
	}
	if err := os.WriteFile(flagManifestOutput, out, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote manifest for %s (%d cards) to %s\n", m.Version, m.CardCount, flagManifestOutput)
	return nil
}
