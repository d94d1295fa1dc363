package apq

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRegistry stores persisted queries durably so registrations
// survive gateway restarts, the way a shipped client's operation registry
// is expected to.
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

// NewPostgresRegistry creates a registry backed by the given connection pool.
// The persisted_queries table is created by the embedded migrations.
func NewPostgresRegistry(pool *pgxpool.Pool) *PostgresRegistry {
	return &PostgresRegistry{pool: pool}
}

// Register implements Registry. Last-write-wins on hash collisions.
func (r *PostgresRegistry) Register(ctx context.Context, hash, queryText string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO persisted_queries (hash, query_text)
		VALUES ($1, $2)
		ON CONFLICT (hash) DO UPDATE SET query_text = EXCLUDED.query_text`,
		hash, queryText,
	)
	if err != nil {
		return fmt.Errorf("register persisted query: %w", err)
	}
	return nil
}

// Lookup implements Registry.
func (r *PostgresRegistry) Lookup(ctx context.Context, hash string) (string, bool, error) {
	var text string
	err := r.pool.QueryRow(ctx,
		`SELECT query_text FROM persisted_queries WHERE hash = $1`, hash,
	).Scan(&text)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup persisted query: %w", err)
	}
	return text, true, nil
}

// IsRegistered implements Registry.
func (r *PostgresRegistry) IsRegistered(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM persisted_queries WHERE hash = $1)`, hash,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check persisted query: %w", err)
	}
	return exists, nil
}

// CheckReadiness implements observability.ReadinessChecker.
func (r *PostgresRegistry) CheckReadiness(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
