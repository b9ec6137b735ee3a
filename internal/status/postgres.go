package status

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository using pgxpool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a Repository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &PostgresRepository{pool: pool}
}

// Upsert overwrites the status row for row.DID in place.
func (r *PostgresRepository) Upsert(ctx context.Context, row *CachedStatus) error {
	query := `
		INSERT INTO status (did, status, updated_at, indexed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (did) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at,
			indexed_at = EXCLUDED.indexed_at`

	_, err := r.pool.Exec(ctx, query, row.DID, row.Status, row.UpdatedAt, row.IndexedAt)
	if err != nil {
		return fmt.Errorf("upserting status row: %w", err)
	}
	return nil
}

// GetByDID retrieves the cached status row for one account.
func (r *PostgresRepository) GetByDID(ctx context.Context, did string) (*CachedStatus, error) {
	query := `
		SELECT did, status, updated_at, indexed_at
		FROM status
		WHERE did = $1`

	var row CachedStatus
	err := r.pool.QueryRow(ctx, query, did).Scan(&row.DID, &row.Status, &row.UpdatedAt, &row.IndexedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning status row: %w", err)
	}
	return &row, nil
}

// ListRecent retrieves the most recently indexed status rows.
func (r *PostgresRepository) ListRecent(ctx context.Context, limit int) ([]CachedStatus, error) {
	query := `
		SELECT did, status, updated_at, indexed_at
		FROM status
		ORDER BY indexed_at DESC, did ASC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing status rows: %w", err)
	}
	defer rows.Close()

	var out []CachedStatus
	for rows.Next() {
		var row CachedStatus
		if err := rows.Scan(&row.DID, &row.Status, &row.UpdatedAt, &row.IndexedAt); err != nil {
			return nil, fmt.Errorf("scanning status row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status rows: %w", err)
	}
	return out, nil
}
