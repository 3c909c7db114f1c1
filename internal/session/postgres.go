package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const sessionCacheKey = "default"

// PostgresStore persists the session cache in a single-row Postgres table.
// Used when SESSION_PG_DSN is set, so several replicas share one session.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens the database and ensures the cache table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("session pgstore: open failed: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session pgstore: ping failed: %w", err)
	}
	store := &PostgresStore{db: db}
	if err = store.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS session_cache (
			id TEXT PRIMARY KEY,
			content JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("session pgstore: create table failed: %w", err)
	}
	return nil
}

// Load fetches the cache row. No row yet is not an error.
func (s *PostgresStore) Load(ctx context.Context) ([]byte, error) {
	var content []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT content FROM session_cache WHERE id = $1", sessionCacheKey).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session pgstore: select failed: %w", err)
	}
	return content, nil
}

// Save upserts the cache row.
func (s *PostgresStore) Save(ctx context.Context, data []byte) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO session_cache (id, content, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (id)
		DO UPDATE SET content = EXCLUDED.content, updated_at = NOW()
	`, sessionCacheKey, data); err != nil {
		return fmt.Errorf("session pgstore: upsert failed: %w", err)
	}
	return nil
}

// Close releases the underlying database connection.
func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
