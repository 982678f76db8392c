package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/index"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/query"
	goredis "github.com/redis/go-redis/v9"
)

// mapBackend is an in-memory Backend with redis miss semantics.
type mapBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapBackend() *mapBackend { return &mapBackend{data: make(map[string][]byte)} }

func (b *mapBackend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	if !ok {
		return nil, goredis.Nil
	}
	return v, nil
}

func (b *mapBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = value
	return nil
}

func (b *mapBackend) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var n int64
	for k := range b.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(b.data, k)
			n++
		}
	}
	return n, nil
}

func TestKeyIsCanonical(t *testing.T) {
	a := query.Filters{Search: " Char "}.With(index.FacetType, "Fire").With(index.FacetRarity, "Rare")
	b := query.Filters{Search: "char"}.With(index.FacetRarity, "Rare").With(index.FacetType, "Fire")
	if Key("v1", a, 0, 20) != Key("v1", b, 0, 20) {
		t.Error("equivalent filters produced different keys")
	}
	if Key("v1", a, 0, 20) == Key("v2", a, 0, 20) {
		t.Error("key ignores catalog version")
	}
	if Key("v1", a, 0, 20) == Key("v1", a, 20, 20) {
		t.Error("key ignores page")
	}
}

func TestGetOrComputeCachesAndCounts(t *testing.T) {
	c := New(newMapBackend(), time.Minute, nil)
	ctx := context.Background()
	key := Key("v1", query.Filters{Search: "char"}, 0, 10)

	var calls atomic.Int32
	compute := func() (*Result, error) {
		calls.Add(1)
		return &Result{Version: "v1", Total: 2, IDs: []string{"sv3-030", "sv3-125"}}, nil
	}

	res, hit, err := c.GetOrCompute(ctx, key, compute)
	if err != nil || hit {
		t.Fatalf("first call: hit=%v err=%v", hit, err)
	}
	res2, hit, err := c.GetOrCompute(ctx, key, compute)
	if err != nil || !hit {
		t.Fatalf("second call: hit=%v err=%v", hit, err)
	}
	if calls.Load() != 1 {
		t.Errorf("compute ran %d times, want 1", calls.Load())
	}
	if res2.Total != res.Total || len(res2.IDs) != 2 || res2.IDs[0] != "sv3-030" {
		t.Errorf("cached result = %+v", res2)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.HitRate != 0.5 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestComputeErrorIsNotCached(t *testing.T) {
	backend := newMapBackend()
	c := New(backend, time.Minute, nil)
	boom := errors.New("boom")

	_, _, err := c.GetOrCompute(context.Background(), "k", func() (*Result, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if len(backend.data) != 0 {
		t.Error("failed computation was cached")
	}
}

func TestInvalidateOnlyDropsQueryKeys(t *testing.T) {
	backend := newMapBackend()
	c := New(backend, time.Minute, nil)
	ctx := context.Background()
	c.Set(ctx, Key("v1", query.Filters{}, 0, 10), &Result{Version: "v1"})
	c.Set(ctx, Key("v1", query.Filters{Search: "x"}, 0, 10), &Result{Version: "v1"})
	backend.Set(ctx, "catalog:state:card-catalog", []byte("keep"), 0)

	n, err := c.Invalidate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("deleted %d keys, want 2", n)
	}
	if _, err := backend.Get(ctx, "catalog:state:card-catalog"); err != nil {
		t.Error("invalidate removed the persisted catalog state")
	}
}

func TestCorruptEntryIsAMiss(t *testing.T) {
	backend := newMapBackend()
	c := New(backend, time.Minute, nil)
	backend.Set(context.Background(), "catalog:query:bad", []byte("{"), 0)
	if _, ok := c.Get(context.Background(), "catalog:query:bad"); ok {
		t.Error("corrupt entry reported as hit")
	}
}
