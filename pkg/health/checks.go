package health

import (
	"context"
	"fmt"
	"time"
)

// Pinger is satisfied by the redis and sqldb clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports a dependency as down when it fails to answer. Optional
// dependencies report degraded instead, which keeps the service ready.
func PingCheck(p Pinger, optional bool) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := p.Ping(ctx); err != nil {
			status := StatusDown
			if optional {
				status = StatusDegraded
			}
			return ComponentHealth{Status: status, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// CatalogState is what the catalog check needs to know about the sync
// manager.
type CatalogState struct {
	Installed       bool
	Version         string
	Cards           int
	SyncStatus      string
	ManifestVersion string
	LastSync        time.Time
	LastError       string
}

func (s CatalogState) details() map[string]any {
	d := map[string]any{"cards": s.Cards}
	if s.Version != "" {
		d["version"] = s.Version
	}
	if s.SyncStatus != "" {
		d["syncStatus"] = s.SyncStatus
	}
	if s.ManifestVersion != "" {
		d["manifestVersion"] = s.ManifestVersion
	}
	if !s.LastSync.IsZero() {
		d["lastSync"] = s.LastSync.UTC().Format(time.RFC3339)
	}
	return d
}

// CatalogCheck is down until a catalog is installed. A failed refresh on top
// of an installed catalog is degraded: queries are still answered from the
// previous version.
func CatalogCheck(state func() CatalogState) Check {
	return func(context.Context) ComponentHealth {
		s := state()
		h := ComponentHealth{Details: s.details()}
		switch {
		case !s.Installed && s.LastError != "":
			h.Status, h.Message = StatusDown, s.LastError
		case !s.Installed:
			h.Status, h.Message = StatusDown, "catalog not loaded"
		case s.LastError != "":
			h.Status = StatusDegraded
			h.Message = fmt.Sprintf("serving %s after failed sync: %s", s.Version, s.LastError)
		default:
			h.Status = StatusUp
			h.Message = fmt.Sprintf("%s (%d cards)", s.Version, s.Cards)
		}
		return h
	}
}
