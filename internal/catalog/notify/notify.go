// Package notify turns catalog-published events from Kafka into catalog
// refreshes. Refreshes pass through a circuit breaker so a failing CDN is
// not hit once per event.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/snapshot"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/resilience"
)

// PublishedEvent announces a new artifact. It carries the manifest so
// consumers can skip versions they already hold.
type PublishedEvent struct {
	Manifest    snapshot.Manifest `json:"manifest"`
	PublishedAt time.Time         `json:"publishedAt"`
}

// Refresher is the part of the sync manager a listener drives.
type Refresher interface {
	Refresh(ctx context.Context) error
	Version() string
}

type Listener struct {
	refresher Refresher
	breaker   *resilience.CircuitBreaker
	logger    *slog.Logger
}

func NewListener(r Refresher, breaker *resilience.CircuitBreaker) *Listener {
	return &Listener{
		refresher: r,
		breaker:   breaker,
		logger:    slog.Default().With("component", "catalog-notify"),
	}
}

// Handle processes one event. Malformed events and refresh failures are
// logged and committed; the sync manager's status records the failure.
func (l *Listener) Handle(ctx context.Context, key, value []byte) error {
	event, err := kafka.DecodeJSON[PublishedEvent](value)
	if err != nil {
		l.logger.Error("dropping malformed publish event", "key", string(key), "error", err)
		return nil
	}
	if v := event.Manifest.Version; v != "" && v == l.refresher.Version() {
		l.logger.Debug("catalog already at published version", "version", v)
		return nil
	}

	err = l.breaker.Execute(func() error {
		return l.refresher.Refresh(ctx)
	})
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		l.logger.Warn("refresh suppressed, circuit open", "version", event.Manifest.Version, "error", err)
	case err != nil:
		l.logger.Error("refresh after publish event failed", "version", event.Manifest.Version, "error", err)
	default:
		l.logger.Info("catalog refreshed after publish event",
			"announced", event.Manifest.Version,
			"installed", l.refresher.Version(),
		)
	}
	return nil
}

// Publisher announces artifacts on the catalog-published topic.
type Publisher struct {
	producer *kafka.Producer
}

func NewPublisher(p *kafka.Producer) *Publisher {
	return &Publisher{producer: p}
}

func (p *Publisher) Announce(ctx context.Context, m snapshot.Manifest) error {
	return p.producer.Publish(ctx, kafka.Event{
		Key:   m.Version,
		Value: PublishedEvent{Manifest: m, PublishedAt: time.Now().UTC()},
	})
}
