// Package store is the durable local cache for the catalog. It persists the
// lookup tables, card list and version between runs; derived indexes are
// never stored and are rebuilt on load.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/snapshot"
	apperrors "github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/errors"
	"github.com/golang/snappy"
)

const lockRetryDelay = 20 * time.Millisecond

// State is the persisted unit. Tables and cards always carry the same
// version; they are written and read together.
type State struct {
	LookupTables snapshot.LookupTables     `json:"lookupTables"`
	Cards        []snapshot.NormalizedCard `json:"cards"`
	Version      string                    `json:"version"`
}

// Store is an async key-value store for State.
type Store interface {
	// GetItem returns the state stored under name, or (nil, nil) if absent.
	GetItem(ctx context.Context, name string) (*State, error)
	SetItem(ctx context.Context, name string, state *State) error
	RemoveItem(ctx context.Context, name string) error
}

// Encode serialises a state as snappy-compressed JSON.
func Encode(state *State) ([]byte, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encoding state: %w", err)
	}
	return snappy.Encode(nil, raw), nil
}

// Decode reverses Encode. Any malformed payload wraps ErrCorruptState.
func Decode(data []byte) (*State, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("%w: decompressing: %v", apperrors.ErrCorruptState, err)
	}
	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("%w: decoding: %v", apperrors.ErrCorruptState, err)
	}
	if state.Version == "" {
		return nil, fmt.Errorf("%w: missing version", apperrors.ErrCorruptState)
	}
	return &state, nil
}
