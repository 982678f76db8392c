package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/sqldb"
)

const (
	postgresSchema = `CREATE TABLE IF NOT EXISTS catalog_state (
	name       TEXT PRIMARY KEY,
	payload    BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`
	sqliteSchema = `CREATE TABLE IF NOT EXISTS catalog_state (
	name       TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`
	upsertState = `INSERT INTO catalog_state (name, payload, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (name) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`
	selectState = `SELECT payload FROM catalog_state WHERE name = $1`
	deleteState = `DELETE FROM catalog_state WHERE name = $1`
)

// SQLStore persists states in a single catalog_state table. It works against
// both PostgreSQL and SQLite; only the schema differs.
type SQLStore struct {
	db *sqldb.Client
}

// NewSQLStore creates the table if needed.
func NewSQLStore(ctx context.Context, db *sqldb.Client) (*SQLStore, error) {
	schema := postgresSchema
	if db.Driver() == sqldb.DriverSQLite {
		schema = sqliteSchema
	}
	if _, err := db.DB.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("creating catalog_state table: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) GetItem(ctx context.Context, name string) (*State, error) {
	var payload []byte
	err := s.db.DB.QueryRowContext(ctx, selectState, name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading state %s: %w", name, err)
	}
	return Decode(payload)
}

func (s *SQLStore) SetItem(ctx context.Context, name string, state *State) error {
	data, err := Encode(state)
	if err != nil {
		return err
	}
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, upsertState, name, data, time.Now().UTC()); err != nil {
			return fmt.Errorf("saving state %s: %w", name, err)
		}
		return nil
	})
}

func (s *SQLStore) RemoveItem(ctx context.Context, name string) error {
	if _, err := s.db.DB.ExecContext(ctx, deleteState, name); err != nil {
		return fmt.Errorf("removing state %s: %w", name, err)
	}
	return nil
}
