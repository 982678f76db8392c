//go:build e2e

// Package e2e contains end-to-end tests against a running catalogd that has
// been pointed at a published manifest.
//
// Prerequisites:
//   - catalogd running (go run ./cmd/catalogd --config configs/catalogd.yaml)
//   - a manifest and artifact reachable at catalog.manifestUrl
//
// Run with:
//
//	go test -v -tags=e2e -timeout=120s ./test/e2e/...
package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

func baseURL() string {
	if v := os.Getenv("E2E_CATALOGD_URL"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func get(t *testing.T, client *http.Client, path string, out any) int {
	t.Helper()
	resp, err := client.Get(baseURL() + path)
	if err != nil {
		t.Skipf("catalogd unavailable: %v", err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			t.Fatalf("decoding %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

// waitReady polls the readiness probe until the initial sync finishes.
func waitReady(t *testing.T, client *http.Client) {
	t.Helper()
	for attempt := 0; attempt < 30; attempt++ {
		if get(t, client, "/health/ready", nil) == http.StatusOK {
			return
		}
		time.Sleep(time.Second)
	}
	t.Fatal("catalogd did not become ready within 30s")
}

func TestHealthProbes(t *testing.T) {
	client := &http.Client{Timeout: 5 * time.Second}
	if code := get(t, client, "/health/live", nil); code != http.StatusOK {
		t.Errorf("live: code %d", code)
	}
	waitReady(t, client)
}

func TestQueryAndFacets(t *testing.T) {
	client := &http.Client{Timeout: 10 * time.Second}
	waitReady(t, client)

	var status map[string]any
	get(t, client, "/api/v1/status", &status)
	t.Logf("status: %v", status)
	if s := status["status"]; s != "ready_from_cache" && s != "ready_from_network" {
		t.Fatalf("status = %v", s)
	}

	var rarity struct {
		Facet  string `json:"facet"`
		Values []struct {
			Value string `json:"value"`
			Count int    `json:"count"`
		} `json:"values"`
	}
	if code := get(t, client, "/api/v1/facets/rarity", &rarity); code != http.StatusOK {
		t.Fatalf("facets: code %d", code)
	}
	if len(rarity.Values) == 0 {
		t.Skip("catalog has no rarities")
	}
	value := rarity.Values[0]

	var page struct {
		Total int               `json:"total"`
		Cards []json.RawMessage `json:"cards"`
	}
	url := "/api/v1/cards?limit=5&rarity=" + value.Value
	if code := get(t, client, url, &page); code != http.StatusOK {
		t.Fatalf("cards: code %d", code)
	}
	if page.Total != value.Count {
		t.Errorf("rarity=%s total %d, facet count %d", value.Value, page.Total, value.Count)
	}
	if len(page.Cards) > 5 {
		t.Errorf("limit ignored: %d cards", len(page.Cards))
	}
}

func TestAnalyticsRecordsQueries(t *testing.T) {
	client := &http.Client{Timeout: 5 * time.Second}
	waitReady(t, client)

	var before map[string]any
	get(t, client, "/api/v1/analytics", &before)
	get(t, client, "/api/v1/cards?q=e2e-no-such-card", nil)

	// Kafka-backed deployments aggregate asynchronously.
	for attempt := 0; attempt < 10; attempt++ {
		var after map[string]any
		get(t, client, "/api/v1/analytics", &after)
		if after["zero_result_count"].(float64) > before["zero_result_count"].(float64) {
			return
		}
		time.Sleep(time.Second)
	}
	t.Error("zero-result query was not recorded")
}
