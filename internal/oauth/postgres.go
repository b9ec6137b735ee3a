package oauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Store backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &PostgresStore{pool: pool}
}

// SaveAuthRequest inserts the server-side state for an authorization flow.
func (s *PostgresStore) SaveAuthRequest(ctx context.Context, req *AuthRequest) error {
	query := `
		INSERT INTO oauth_requests (state, handle, did, pds_url, auth_server_url, pkce_verifier, dpop_private_jwk)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		req.State, req.Handle, req.DID, req.PDSURL, req.AuthServerURL, req.PKCEVerifier, req.DPoPKeyJWK)
	if err != nil {
		return fmt.Errorf("inserting auth request: %w", err)
	}
	return nil
}

// TakeAuthRequest deletes and returns the request for the given state. States
// older than an hour are treated as expired and not returned.
func (s *PostgresStore) TakeAuthRequest(ctx context.Context, state string) (*AuthRequest, error) {
	query := `
		DELETE FROM oauth_requests
		WHERE state = $1
		RETURNING state, handle, did, pds_url, auth_server_url, pkce_verifier, dpop_private_jwk, created_at`

	var req AuthRequest
	err := s.pool.QueryRow(ctx, query, state).Scan(
		&req.State, &req.Handle, &req.DID, &req.PDSURL,
		&req.AuthServerURL, &req.PKCEVerifier, &req.DPoPKeyJWK, &req.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("taking auth request: %w", err)
	}

	if req.Expired() {
		return nil, ErrStateNotFound
	}
	return &req, nil
}

// SaveTokenSet upserts the grant material for a DID.
func (s *PostgresStore) SaveTokenSet(ctx context.Context, ts *TokenSet) error {
	query := `
		INSERT INTO oauth_sessions (did, pds_url, auth_server_url, access_token, refresh_token, dpop_private_jwk, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (did) DO UPDATE SET
			pds_url = EXCLUDED.pds_url,
			auth_server_url = EXCLUDED.auth_server_url,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			dpop_private_jwk = EXCLUDED.dpop_private_jwk,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		ts.DID, ts.PDSURL, ts.AuthServerURL, ts.AccessToken, ts.RefreshToken, ts.DPoPKeyJWK, ts.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upserting token set: %w", err)
	}
	return nil
}

// GetTokenSet retrieves the grant material for a DID.
func (s *PostgresStore) GetTokenSet(ctx context.Context, did string) (*TokenSet, error) {
	query := `
		SELECT did, pds_url, auth_server_url, access_token, refresh_token, dpop_private_jwk, expires_at
		FROM oauth_sessions
		WHERE did = $1`

	var ts TokenSet
	err := s.pool.QueryRow(ctx, query, did).Scan(
		&ts.DID, &ts.PDSURL, &ts.AuthServerURL,
		&ts.AccessToken, &ts.RefreshToken, &ts.DPoPKeyJWK, &ts.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoGrant
		}
		return nil, fmt.Errorf("fetching token set: %w", err)
	}
	return &ts, nil
}

// DeleteTokenSet removes the grant material for a DID.
func (s *PostgresStore) DeleteTokenSet(ctx context.Context, did string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM oauth_sessions WHERE did = $1`, did)
	if err != nil {
		return fmt.Errorf("deleting token set: %w", err)
	}
	return nil
}
