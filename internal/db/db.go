// Package db provides PostgreSQL access to stored assessments and participants.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonathan/digiready/internal/logging"
	"github.com/rs/zerolog"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool   *pgxpool.Pool
	logger *zerolog.Logger
}

// Connect establishes a connection pool to the database. A nil logger
// discards log output.
func Connect(ctx context.Context, databaseURL string, logger *zerolog.Logger) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool, logger: logging.OrNop(logger)}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

type rollbacker interface {
	Rollback(ctx context.Context) error
}

// rollback ends tx if it is still open. It is deferred after Begin, so a
// committed transaction is expected and not logged.
func (db *DB) rollback(ctx context.Context, tx rollbacker) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		logging.OrNop(db.logger).Warn().Err(err).Msg("failed to rollback transaction")
	}
}
