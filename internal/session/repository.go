package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a session row does not exist.
var ErrNotFound = errors.New("session not found")

// Repository persists browser sessions keyed by a random session id.
type Repository interface {
	Create(ctx context.Context, id uuid.UUID, did string) error
	GetDID(ctx context.Context, id uuid.UUID) (string, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// PostgresRepository implements Repository using pgxpool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a Repository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &PostgresRepository{pool: pool}
}

// Create inserts a new session row bound to the given account.
func (r *PostgresRepository) Create(ctx context.Context, id uuid.UUID, did string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (id, did) VALUES ($1, $2)`, id, did)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// GetDID resolves a session id to its account identifier.
func (r *PostgresRepository) GetDID(ctx context.Context, id uuid.UUID) (string, error) {
	var did string
	err := r.pool.QueryRow(ctx,
		`SELECT did FROM sessions WHERE id = $1`, id).Scan(&did)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("fetching session: %w", err)
	}
	return did, nil
}

// Delete removes a session row. Deleting an absent session is a no-op.
func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}
