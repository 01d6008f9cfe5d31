// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package store is the Postgres persistence layer: the chess metadata
// repository (players, games, positions) and the durable embedding job
// queue share one schema and one connection pool.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	cerrors "github.com/chessmate/chessmate/internal/errors"
)

// Store wraps a pgx pool with the repository and queue operations.
type Store struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// Open connects to Postgres. poolSize should cover concurrent users of
// the store (worker loops + HTTP handlers + 2 slack connections).
func Open(ctx context.Context, databaseURL string, poolSize int) (*Store, error) {
	if databaseURL == "" {
		return nil, cerrors.NewUserError(
			"no database configured",
			"DATABASE_URL is empty",
			"set DATABASE_URL to a Postgres connection string",
			nil,
		)
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if poolSize > 0 {
		cfg.MaxConns = int32(poolSize)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", infra(err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", infra(err))
	}

	return &Store{pool: pool, log: slog.Default()}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// Ping reports whether the database answers.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return infra(err)
	}
	return nil
}

// EnsureSchema creates all tables and indexes if absent. Safe to run on
// every startup; every statement is idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", infra(err))
	}
	s.log.Debug("store.schema.ensured")
	return nil
}

// infra folds transport-level database failures into ErrUnavailable so
// the pipeline's degradation policy can recognize them.
func infra(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// A reachable server that rejects a statement is not an outage.
		return err
	}
	// Timeouts, refused connections, broken pools.
	return fmt.Errorf("%w: %v", cerrors.ErrUnavailable, err)
}

// inTx runs fn inside a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return infra(err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
