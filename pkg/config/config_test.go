package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalogd.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Backend != "file" || cfg.Catalog.CacheKey != "card-catalog" {
		t.Errorf("store defaults = %+v / %+v", cfg.Store, cfg.Catalog)
	}
	a := cfg.Analytics
	if !a.Enabled || a.BufferSize != 10000 || a.BatchSize != 100 || a.FlushInterval != 5*time.Second || a.SnapshotInterval != time.Minute {
		t.Errorf("analytics defaults = %+v", a)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
catalog:
  manifestUrl: https://cdn.example.com/catalog/manifest.json
  fetchTimeout: 5s
store:
  backend: sqlite
kafka:
  brokers: [a:9092]
search:
  defaultLimit: 25
`)
	t.Setenv("CATALOG_SERVER_PORT", "9191")
	t.Setenv("CATALOG_KAFKA_BROKERS", "b:9092,c:9092")
	t.Setenv("CATALOG_ANALYTICS_BATCH_SIZE", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("port = %d, env should win", cfg.Server.Port)
	}
	if cfg.Catalog.ManifestURL != "https://cdn.example.com/catalog/manifest.json" || cfg.Catalog.FetchTimeout != 5*time.Second {
		t.Errorf("catalog = %+v", cfg.Catalog)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Search.DefaultLimit != 25 || cfg.Search.MaxResults != 500 {
		t.Errorf("store/search = %+v / %+v", cfg.Store, cfg.Search)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "c:9092" {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Analytics.BatchSize != 7 {
		t.Errorf("batch size = %d", cfg.Analytics.BatchSize)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown backend": "store:\n  backend: tape\n",
		"limit too large": "search:\n  defaultLimit: 900\n",
		"bad yaml":        "server: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Error("expected error")
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}
}
