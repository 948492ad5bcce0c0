// Package blobstore persists the correlator's serialized state in
// Postgres: one opaque JSON value per (chainId, key), upserted by primary
// key. The schema lives in schema.sql and is applied at startup.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is a Postgres-backed opaque blob store keyed by (chainId, key).
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool against connStr and verifies connectivity.
func Connect(ctx context.Context, connStr string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping failed: %w", err)
	}
	log.Println("[BlobStore] connected to PostgreSQL for attack-correlator state")
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema loads and executes schema.sql.
func (s *Store) InitSchema(ctx context.Context, schemaPath string) error {
	schemaBytes, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}
	if _, err := s.pool.Exec(ctx, string(schemaBytes)); err != nil {
		return fmt.Errorf("failed to execute schema migration: %w", err)
	}
	log.Println("[BlobStore] engine_state schema initialized")
	return nil
}

// Save upserts value under (chainID, key).
func (s *Store) Save(ctx context.Context, chainID int64, key string, value []byte) error {
	sql := `
		INSERT INTO engine_state (chain_id, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (chain_id, key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = NOW();
	`
	_, err := s.pool.Exec(ctx, sql, chainID, key, value)
	return err
}

// Load fetches the value stored under (chainID, key). The bool return is
// false when no row exists, which the caller treats as "start empty"
// rather than an error.
func (s *Store) Load(ctx context.Context, chainID int64, key string) ([]byte, bool, error) {
	var value []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM engine_state WHERE chain_id = $1 AND key = $2`,
		chainID, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}
