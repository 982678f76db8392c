// Package source fetches published catalog objects (manifest and artifact)
// over HTTP(S) or from S3-compatible object storage.
package source

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/errors"
)

// maxObjectBytes caps a single fetched object.
const maxObjectBytes = 256 << 20

// Fetcher retrieves the raw bytes at a URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, rawURL string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	return f(ctx, rawURL)
}

// Mux dispatches a fetch to the Fetcher registered for the URL scheme.
type Mux struct {
	mu       sync.RWMutex
	fetchers map[string]Fetcher
}

func NewMux() *Mux {
	return &Mux{fetchers: make(map[string]Fetcher)}
}

// Handle registers f for scheme, replacing any earlier registration.
func (m *Mux) Handle(scheme string, f Fetcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchers[scheme] = f
}

func (m *Mux) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: url %q: %v", apperrors.ErrInvalidInput, rawURL, err)
	}
	m.mu.RLock()
	f, ok := m.fetchers[u.Scheme]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no fetcher for scheme %q", apperrors.ErrInvalidInput, u.Scheme)
	}
	return f.Fetch(ctx, rawURL)
}

// ResolveURL resolves ref against base, so a manifest may name its artifact
// relative to its own location. Absolute refs are returned unchanged.
func ResolveURL(base, ref string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%w: artifact url %q: %v", apperrors.ErrParse, ref, err)
	}
	if r.IsAbs() {
		return r.String(), nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: manifest url %q: %v", apperrors.ErrInvalidInput, base, err)
	}
	return b.ResolveReference(r).String(), nil
}
