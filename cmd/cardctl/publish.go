package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/notify"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/snapshot"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/kafka"
	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:   "publish <manifest.json>",
	Short: "Announce a published manifest so running services refresh",
	Args:  cobra.ExactArgs(1),
	RunE:  runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Kafka.Enabled {
		return errors.New("kafka is disabled; set kafka.enabled or CATALOG_KAFKA_ENABLED=true")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	m, err := snapshot.ParseManifest(data)
	if err != nil {
		return err
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CatalogPublished)
	defer producer.Close()
	if err := notify.NewPublisher(producer).Announce(cmd.Context(), *m); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "announced %s on %s\n", m.Version, cfg.Kafka.Topics.CatalogPublished)
	return nil
}
