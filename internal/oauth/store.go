package oauth

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"time"
)

// ErrNoGrant is returned when no stored grant exists for a DID.
var ErrNoGrant = errors.New("no authorization grant for account")

// ErrStateNotFound is returned when a callback references an unknown or
// expired authorization request.
var ErrStateNotFound = errors.New("authorization request not found")

// AuthRequest is the server-side state of an in-flight authorization flow,
// keyed by the OAuth state parameter.
type AuthRequest struct {
	State         string
	Handle        string
	DID           string
	PDSURL        string
	AuthServerURL string
	PKCEVerifier  string
	DPoPKeyJWK    string
	CreatedAt     time.Time
}

// Expired reports whether the authorization request has outlived the window
// in which a callback is accepted.
func (r *AuthRequest) Expired() bool {
	return time.Since(r.CreatedAt) > time.Hour
}

// TokenSet is the durable, revocable grant material for one account.
type TokenSet struct {
	DID           string
	PDSURL        string
	AuthServerURL string
	AccessToken   string
	RefreshToken  string
	DPoPKeyJWK    string
	ExpiresAt     time.Time
}

// DPoPKey deserializes the grant's DPoP signing key.
func (t *TokenSet) DPoPKey() (*ecdsa.PrivateKey, error) {
	return parseJWK(t.DPoPKeyJWK)
}

// Expired reports whether the access token is expired or about to expire.
func (t *TokenSet) Expired() bool {
	return time.Now().After(t.ExpiresAt.Add(-30 * time.Second))
}

// Store persists authorization requests and grants.
type Store interface {
	SaveAuthRequest(ctx context.Context, req *AuthRequest) error
	// TakeAuthRequest atomically removes and returns the request for state.
	// Returns ErrStateNotFound for unknown or expired states.
	TakeAuthRequest(ctx context.Context, state string) (*AuthRequest, error)

	SaveTokenSet(ctx context.Context, ts *TokenSet) error
	// GetTokenSet returns ErrNoGrant when no grant is stored for the DID.
	GetTokenSet(ctx context.Context, did string) (*TokenSet, error)
	DeleteTokenSet(ctx context.Context, did string) error
}
