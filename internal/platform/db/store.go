package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/datacollector/datacollector/internal/config"
)

// Dialect names the SQL flavour behind a Store. It doubles as the name of the
// migrations subdirectory for that backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Store is the single shared database handle of the process. Exactly one of
// SQL and Pool is set, depending on Dialect.
type Store struct {
	Dialect Dialect
	SQL     *sql.DB
	Pool    *pgxpool.Pool
}

// Open connects to the database at url. A postgres:// or postgresql:// URL
// opens a pgx pool; anything else is treated as a SQLite location whose parent
// directories are created when missing.
func Open(ctx context.Context, url string, maxConns int32) (*Store, error) {
	if config.IsPostgresURL(url) {
		pool, err := NewPool(ctx, url, maxConns, 1)
		if err != nil {
			return nil, err
		}
		return &Store{Dialect: DialectPostgres, Pool: pool}, nil
	}

	sqlDB, err := OpenSQLite(ctx, SQLitePath(url), int(maxConns))
	if err != nil {
		return nil, err
	}
	return &Store{Dialect: DialectSQLite, SQL: sqlDB}, nil
}

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if s.Pool != nil {
		return s.Pool.Ping(ctx)
	}
	return s.SQL.PingContext(ctx)
}

// Close releases every connection. It blocks until they are closed.
func (s *Store) Close() error {
	if s.Pool != nil {
		s.Pool.Close()
		return nil
	}
	if s.SQL != nil {
		if err := s.SQL.Close(); err != nil {
			return fmt.Errorf("close sqlite: %w", err)
		}
	}
	return nil
}
