package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresSchema uses the C collation so that byte-wise range scans
// select exactly one subtree.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS firesync_nodes (
	path  TEXT COLLATE "C" PRIMARY KEY,
	value TEXT NOT NULL
)`

// PostgresStore keeps one row per leaf in firesync_nodes.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool
// and makes sure the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Get returns the subtree at path.
func (s *PostgresStore) Get(ctx context.Context, path string) (any, error) {
	path, err := CleanPath(path)
	if err != nil {
		return nil, err
	}

	lo, hi := subtreeBounds(path)
	rows, err := s.pool.Query(ctx, `
		SELECT path, value FROM firesync_nodes
		WHERE path = $1 OR (path >= $2 AND path < $3)
	`, path, lo, hi)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := make(map[string][]byte)
	for rows.Next() {
		var leaf, value string
		if err := rows.Scan(&leaf, &value); err != nil {
			return nil, err
		}
		found[leaf] = []byte(value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return assemble(path, found)
}

// Set replaces the subtree at path in a single transaction.
func (s *PostgresStore) Set(ctx context.Context, path string, value any) error {
	path, err := CleanPath(path)
	if err != nil {
		return err
	}
	leaves, err := flatten(path, value)
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		lo, hi := subtreeBounds(path)
		batch := &pgx.Batch{}
		batch.Queue(`DELETE FROM firesync_nodes WHERE path = $1 OR (path >= $2 AND path < $3)`, path, lo, hi)
		batch.Queue(`DELETE FROM firesync_nodes WHERE path = ANY($1)`, ancestors(path))
		for leaf, data := range leaves {
			batch.Queue(`INSERT INTO firesync_nodes (path, value) VALUES ($1, $2)`, leaf, string(data))
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// Push stores value under a new child key of path.
func (s *PostgresStore) Push(ctx context.Context, path string, value any) (string, error) {
	key := NewPushKey()
	if err := s.Set(ctx, Join(path, key), value); err != nil {
		return "", err
	}
	return key, nil
}

// Remove deletes the subtree at path.
func (s *PostgresStore) Remove(ctx context.Context, path string) error {
	path, err := CleanPath(path)
	if err != nil {
		return err
	}

	lo, hi := subtreeBounds(path)
	_, err = s.pool.Exec(ctx, `
		DELETE FROM firesync_nodes WHERE path = $1 OR (path >= $2 AND path < $3)
	`, path, lo, hi)
	return err
}

// Exists reports whether anything is stored at or below path.
func (s *PostgresStore) Exists(ctx context.Context, path string) (bool, error) {
	path, err := CleanPath(path)
	if err != nil {
		return false, err
	}

	lo, hi := subtreeBounds(path)
	var exists bool
	err = s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM firesync_nodes WHERE path = $1 OR (path >= $2 AND path < $3)
		)
	`, path, lo, hi).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return exists, nil
}
