package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/snapshot"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/resilience"
	kafkago "github.com/segmentio/kafka-go"
)

type fakeRefresher struct {
	mu      sync.Mutex
	version string
	calls   int
	err     error
	next    string
}

func (f *fakeRefresher) Refresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.version = f.next
	return nil
}

func (f *fakeRefresher) Version() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.version
}

func event(t *testing.T, version string) []byte {
	t.Helper()
	data, err := json.Marshal(PublishedEvent{Manifest: snapshot.Manifest{Version: version, URL: "a.json", CheckSum: "x"}})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func breaker(threshold int) *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker("refresh", resilience.CircuitBreakerConfig{
		FailureThreshold: threshold,
		ResetTimeout:     time.Hour,
	})
}

func TestHandleRefreshesOnNewVersion(t *testing.T) {
	r := &fakeRefresher{version: "v1", next: "v2"}
	l := NewListener(r, breaker(3))
	if err := l.Handle(context.Background(), []byte("v2"), event(t, "v2")); err != nil {
		t.Fatal(err)
	}
	if r.calls != 1 || r.Version() != "v2" {
		t.Errorf("calls %d version %q", r.calls, r.Version())
	}
}

func TestHandleSkipsKnownVersion(t *testing.T) {
	r := &fakeRefresher{version: "v1"}
	l := NewListener(r, breaker(3))
	l.Handle(context.Background(), nil, event(t, "v1"))
	if r.calls != 0 {
		t.Errorf("refresh called for installed version")
	}
}

func TestHandleDropsMalformed(t *testing.T) {
	r := &fakeRefresher{}
	l := NewListener(r, breaker(3))
	if err := l.Handle(context.Background(), nil, []byte("{")); err != nil {
		t.Errorf("malformed events must be committed, got %v", err)
	}
	if r.calls != 0 {
		t.Error("malformed event triggered a refresh")
	}
}

func TestBreakerStopsHammeringFailingCDN(t *testing.T) {
	r := &fakeRefresher{version: "v1", err: errors.New("cdn down")}
	l := NewListener(r, breaker(2))
	for i := 0; i < 5; i++ {
		l.Handle(context.Background(), nil, event(t, "v2"))
	}
	if r.calls != 2 {
		t.Errorf("refresh called %d times, want 2 before the circuit opens", r.calls)
	}
}

type fakeReader struct {
	msgs      chan kafkago.Message
	committed []kafkago.Message
	mu        sync.Mutex
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	select {
	case m := <-f.msgs:
		return m, nil
	case <-ctx.Done():
		return kafkago.Message{}, ctx.Err()
	}
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeReader) Close() error { return nil }

func TestConsumerLoopDrivesListener(t *testing.T) {
	r := &fakeRefresher{version: "v1", next: "v2"}
	l := NewListener(r, breaker(3))
	reader := &fakeReader{msgs: make(chan kafkago.Message, 1)}
	reader.msgs <- kafkago.Message{Key: []byte("v2"), Value: event(t, "v2")}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- kafka.NewConsumerWithReader(reader, "catalog-published", l.Handle).Start(ctx) }()

	deadline := time.After(2 * time.Second)
	for r.Version() != "v2" {
		select {
		case <-deadline:
			t.Fatal("listener never refreshed")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("consumer returned %v", err)
	}
	reader.mu.Lock()
	defer reader.mu.Unlock()
	if len(reader.committed) != 1 {
		t.Errorf("committed %d messages, want 1", len(reader.committed))
	}
}

type fakeWriter struct {
	msgs []kafkago.Message
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestPublisherAnnounce(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisher(kafka.NewProducerWithWriter(w, "catalog-published"))
	if err := p.Announce(context.Background(), snapshot.Manifest{Version: "v9", URL: "a.json", CheckSum: "abc"}); err != nil {
		t.Fatal(err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "v9" {
		t.Fatalf("unexpected messages %+v", w.msgs)
	}
	got, err := kafka.DecodeJSON[PublishedEvent](w.msgs[0].Value)
	if err != nil || got.Manifest.CheckSum != "abc" {
		t.Errorf("decoded %+v, %v", got, err)
	}
}
