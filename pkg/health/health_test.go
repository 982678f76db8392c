package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func up(context.Context) error { return nil }

func TestRunWorstStatusWins(t *testing.T) {
	c := NewChecker()
	c.Register("db", PingCheck(pingFunc(up), false))
	c.Register("cache", PingCheck(pingFunc(func(context.Context) error { return errors.New("refused") }), true))

	report := c.Run(context.Background())
	if report.Status != StatusDegraded {
		t.Fatalf("status = %s, want degraded", report.Status)
	}
	if report.Components["cache"].Message != "refused" {
		t.Errorf("cache message = %q", report.Components["cache"].Message)
	}

	c.Register("catalog", CatalogCheck(func() CatalogState { return CatalogState{} }))
	if got := c.Run(context.Background()).Status; got != StatusDown {
		t.Errorf("status with missing catalog = %s, want down", got)
	}
}

func TestCatalogCheck(t *testing.T) {
	cases := []struct {
		name  string
		state CatalogState
		want  Status
	}{
		{"not loaded", CatalogState{}, StatusDown},
		{"initial sync failed", CatalogState{LastError: "manifest fetch failed"}, StatusDown},
		{"serving", CatalogState{Installed: true, Version: "v1", Cards: 3}, StatusUp},
		{"stale after failure", CatalogState{Installed: true, Version: "v1", LastError: "checksum"}, StatusDegraded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CatalogCheck(func() CatalogState { return tc.state })(context.Background())
			if got.Status != tc.want {
				t.Errorf("status = %s, want %s (%s)", got.Status, tc.want, got.Message)
			}
		})
	}
}

func TestReadyHandler(t *testing.T) {
	installed := false
	c := NewChecker()
	c.Register("catalog", CatalogCheck(func() CatalogState {
		return CatalogState{Installed: installed, Version: "v1", LastError: "cdn down"}
	}))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("not loaded: code %d, want 503", rec.Code)
	}

	installed = true
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("degraded: code %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	c.LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("live: code %d", rec.Code)
	}
}

func TestHungCheckIsDown(t *testing.T) {
	c := NewChecker()
	c.SetCheckTimeout(20 * time.Millisecond)
	release := make(chan struct{})
	defer close(release)
	c.Register("stuck", func(context.Context) ComponentHealth {
		<-release
		return ComponentHealth{Status: StatusUp}
	})
	c.Register("db", PingCheck(pingFunc(up), false))

	report := c.Run(context.Background())
	if report.Status != StatusDown || report.Ready() {
		t.Fatalf("status = %s, want down", report.Status)
	}
	if !strings.Contains(report.Components["stuck"].Message, "timed out") {
		t.Errorf("stuck message = %q", report.Components["stuck"].Message)
	}
	if report.Components["db"].Status != StatusUp {
		t.Errorf("db status = %s", report.Components["db"].Status)
	}
}

func TestPanickingCheckIsDown(t *testing.T) {
	c := NewChecker()
	c.Register("bad", func(context.Context) ComponentHealth { panic("boom") })
	if got := c.Run(context.Background()).Components["bad"]; got.Status != StatusDown || !strings.Contains(got.Message, "boom") {
		t.Errorf("bad = %+v", got)
	}
}

func TestCatalogDetailsInReport(t *testing.T) {
	synced := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := NewChecker()
	c.Register("catalog", CatalogCheck(func() CatalogState {
		return CatalogState{
			Installed: true, Version: "20240501", Cards: 3,
			SyncStatus: "ready_from_network", ManifestVersion: "20240501", LastSync: synced,
		}
	}))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var report Report
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	d := report.Components["catalog"].Details
	if d["version"] != "20240501" || d["syncStatus"] != "ready_from_network" || d["cards"] != float64(3) {
		t.Errorf("details = %v", d)
	}
	if d["lastSync"] != "2024-05-01T12:00:00Z" {
		t.Errorf("lastSync = %v", d["lastSync"])
	}
}
