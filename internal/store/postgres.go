package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// NewPostgresStore connects a pgx pool to dsn and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*SQLStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	s, err := newSQLStore(ctx, db, postgresDialect)
	if err != nil {
		db.Close()
		pool.Close()
		return nil, err
	}
	s.onClose = pool.Close
	return s, nil
}
