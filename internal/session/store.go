package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/statusky/statusky/internal/oauth"
	"github.com/statusky/statusky/internal/pds"
)

const cookieName = "statusky_session"

// Sessions last 30 days; the underlying grant is refreshed as needed.
const cookieMaxAge = 30 * 24 * 60 * 60

// Grants materializes and refreshes authorization grants. Implemented by
// oauth.Client.
type Grants interface {
	Grant(ctx context.Context, did string) (*oauth.TokenSet, error)
	Refresh(ctx context.Context, did string) (*oauth.TokenSet, error)
}

// Store manages the browser session lifecycle and turns a session into an
// authenticated agent for the request.
type Store struct {
	repo   Repository
	grants Grants
	sealer *sealer
	secure bool
	log    *slog.Logger
}

// NewStore creates a session Store. secret seals the session cookie; secure
// controls the cookie's Secure attribute.
func NewStore(repo Repository, grants Grants, secret string, secure bool, log *slog.Logger) (*Store, error) {
	s, err := newSealer(secret)
	if err != nil {
		return nil, err
	}
	return &Store{
		repo:   repo,
		grants: grants,
		sealer: s,
		secure: secure,
		log:    log.With("component", "session_store"),
	}, nil
}

// Create establishes a new session bound to the given account and attaches
// the sealed session reference to the response. Any prior cookie for this
// browser is overwritten.
func (s *Store) Create(ctx context.Context, w http.ResponseWriter, did string) error {
	id := uuid.New()
	if err := s.repo.Create(ctx, id, did); err != nil {
		return err
	}

	sealed, err := s.sealer.seal(id.String())
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    sealed,
		Path:     "/",
		MaxAge:   cookieMaxAge,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Destroy invalidates the current session and clears the cookie. Destroying
// an absent session is a no-op; failures are logged, never surfaced.
func (s *Store) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if id, ok := s.sessionID(r); ok {
		if err := s.repo.Delete(ctx, id); err != nil {
			s.log.Warn("failed to delete session row", "error", err)
		}
	}
	s.clearCookie(w)
}

// GetAgent resolves the request's session reference to an authenticated
// agent, refreshing the grant when expired. It returns (nil, nil) when the
// request carries no session, the session or grant is unknown, or refresh
// fails: an expired session is an expected condition and the caller must
// treat the user as anonymous rather than fail the request.
func (s *Store) GetAgent(w http.ResponseWriter, r *http.Request) (*pds.Agent, error) {
	ctx := r.Context()

	id, ok := s.sessionID(r)
	if !ok {
		return nil, nil
	}

	did, err := s.repo.GetDID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.clearCookie(w)
			return nil, nil
		}
		return nil, err
	}

	ts, err := s.grants.Grant(ctx, did)
	if err != nil {
		if errors.Is(err, oauth.ErrNoGrant) {
			s.discard(ctx, w, id)
			return nil, nil
		}
		return nil, err
	}

	if ts.Expired() {
		ts, err = s.grants.Refresh(ctx, did)
		if err != nil {
			if errors.Is(err, oauth.ErrGrantRevoked) || errors.Is(err, oauth.ErrNoGrant) {
				s.discard(ctx, w, id)
				return nil, nil
			}
			s.log.Warn("grant refresh failed, treating session as anonymous", "did", did, "error", err)
			return nil, nil
		}
	}

	agent, err := pds.NewAgent(ts)
	if err != nil {
		s.log.Warn("failed to build agent from grant", "did", did, "error", err)
		return nil, nil
	}
	return agent, nil
}

// sessionID extracts and unseals the session id from the request cookie.
// A missing or tampered cookie yields ok=false.
func (s *Store) sessionID(r *http.Request) (uuid.UUID, bool) {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return uuid.UUID{}, false
	}
	plain, err := s.sealer.open(c.Value)
	if err != nil {
		return uuid.UUID{}, false
	}
	id, err := uuid.Parse(plain)
	if err != nil {
		return uuid.UUID{}, false
	}
	return id, true
}

// discard removes a dead session row and clears the cookie.
func (s *Store) discard(ctx context.Context, w http.ResponseWriter, id uuid.UUID) {
	if err := s.repo.Delete(ctx, id); err != nil {
		s.log.Warn("failed to delete dead session row", "error", err)
	}
	s.clearCookie(w)
}

func (s *Store) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
