package store

import (
	"context"
	"fmt"
	"io"

	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/sqldb"
)

const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open builds the backend named by cfg.Store.Backend. The returned closer
// releases any connection the backend holds.
func Open(ctx context.Context, cfg *config.Config) (Store, io.Closer, error) {
	switch cfg.Store.Backend {
	case BackendFile, "":
		s, err := NewFileStore(cfg.Store.Dir)
		if err != nil {
			return nil, nil, err
		}
		return s, nopCloser{}, nil
	case BackendMemory:
		return NewMemoryStore(), nopCloser{}, nil
	case BackendRedis:
		client, err := redis.NewClient(cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}
		return NewRedisStore(client), client, nil
	case BackendPostgres, BackendSQLite:
		var (
			db  *sqldb.Client
			err error
		)
		if cfg.Store.Backend == BackendPostgres {
			db, err = sqldb.NewPostgres(cfg.Postgres)
		} else {
			db, err = sqldb.NewSQLite(cfg.Store.SQLitePath)
		}
		if err != nil {
			return nil, nil, err
		}
		s, err := NewSQLStore(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return s, db, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown store backend %q", apperrors.ErrInvalidInput, cfg.Store.Backend)
	}
}
