package oauth_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statusky/statusky/internal/identity"
	"github.com/statusky/statusky/internal/oauth"
)

// memStore is an in-memory Store for flow tests.
type memStore struct {
	mu     sync.Mutex
	reqs   map[string]*oauth.AuthRequest
	tokens map[string]*oauth.TokenSet
}

func newMemStore() *memStore {
	return &memStore{
		reqs:   make(map[string]*oauth.AuthRequest),
		tokens: make(map[string]*oauth.TokenSet),
	}
}

func (s *memStore) SaveAuthRequest(ctx context.Context, req *oauth.AuthRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs[req.State] = req
	return nil
}

func (s *memStore) TakeAuthRequest(ctx context.Context, state string) (*oauth.AuthRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.reqs[state]
	if !ok {
		return nil, oauth.ErrStateNotFound
	}
	delete(s.reqs, state)
	if req.Expired() {
		return nil, oauth.ErrStateNotFound
	}
	return req, nil
}

func (s *memStore) SaveTokenSet(ctx context.Context, ts *oauth.TokenSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[ts.DID] = ts
	return nil
}

func (s *memStore) GetTokenSet(ctx context.Context, did string) (*oauth.TokenSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.tokens[did]
	if !ok {
		return nil, oauth.ErrNoGrant
	}
	return ts, nil
}

func (s *memStore) DeleteTokenSet(ctx context.Context, did string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, did)
	return nil
}

// fakeDirectory maps handles to DIDs and all DIDs to one PDS.
type fakeDirectory struct {
	dids   map[string]string
	pdsURL string
}

func (d *fakeDirectory) ResolveHandleToDID(ctx context.Context, handle string) (string, error) {
	did, ok := d.dids[handle]
	if !ok {
		return "", identity.ErrHandleNotFound
	}
	return did, nil
}

func (d *fakeDirectory) PDSEndpoint(ctx context.Context, did string) (string, error) {
	return d.pdsURL, nil
}

// authServer plays both the PDS discovery endpoint and the authorization
// server. The token handler is swappable per test.
type authServer struct {
	*httptest.Server
	mu    sync.Mutex
	token http.HandlerFunc
}

func newAuthServer(t *testing.T) *authServer {
	t.Helper()

	s := &authServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-protected-resource", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"authorization_servers": []string{s.URL}})
	})
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"issuer":                                s.URL,
			"authorization_endpoint":                s.URL + "/authorize",
			"token_endpoint":                        s.URL + "/token",
			"pushed_authorization_request_endpoint": s.URL + "/par",
		})
	})
	mux.HandleFunc("/par", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.NotEmpty(t, r.Header.Get("DPoP"))
		assert.Equal(t, "S256", r.PostFormValue("code_challenge_method"))
		assert.NotEmpty(t, r.PostFormValue("code_challenge"))
		assert.NotEmpty(t, r.PostFormValue("state"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"request_uri": "urn:ietf:params:oauth:request_uri:demo"})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		h := s.token
		s.mu.Unlock()
		require.NotNil(t, h, "test did not install a token handler")
		h(w, r)
	})
	s.Server = httptest.NewServer(mux)
	return s
}

func (s *authServer) setTokenHandler(h http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = h
}

func tokenSuccess(t *testing.T, sub string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.NotEmpty(t, r.Header.Get("DPoP"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-1",
			"token_type":    "DPoP",
			"refresh_token": "refresh-1",
			"expires_in":    3600,
			"scope":         oauth.Scope,
			"sub":           sub,
		})
	}
}

func newTestClient(store oauth.Store, dir oauth.Directory) *oauth.Client {
	return oauth.NewClient("https://statusky.example.com", store, dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func seedAuthRequest(t *testing.T, store *memStore, srv *authServer, state, did string) *oauth.AuthRequest {
	t.Helper()

	key, err := oauth.GenerateDPoPKey()
	require.NoError(t, err)
	jwk, err := oauth.MarshalJWK(key)
	require.NoError(t, err)

	req := &oauth.AuthRequest{
		State:         state,
		Handle:        "alice.test",
		DID:           did,
		PDSURL:        srv.URL,
		AuthServerURL: srv.URL,
		PKCEVerifier:  "verifier-1",
		DPoPKeyJWK:    jwk,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, store.SaveAuthRequest(context.Background(), req))
	return req
}

func TestMetadata(t *testing.T) {
	c := newTestClient(newMemStore(), &fakeDirectory{})

	md := c.Metadata()

	assert.Equal(t, "https://statusky.example.com/client-metadata.json", md.ClientID)
	assert.Equal(t, []string{"https://statusky.example.com/oauth/callback"}, md.RedirectURIs)
	assert.Equal(t, "none", md.TokenEndpointAuthMethod)
	assert.True(t, md.DPoPBoundAccessTokens)
	assert.Contains(t, md.GrantTypes, "refresh_token")
}

func TestStartAuthorize(t *testing.T) {
	srv := newAuthServer(t)
	defer srv.Close()

	store := newMemStore()
	dir := &fakeDirectory{dids: map[string]string{"alice.test": "did:plc:alice"}, pdsURL: srv.URL}
	c := newTestClient(store, dir)

	authorizeURL, err := c.StartAuthorize(context.Background(), "alice.test")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(authorizeURL, srv.URL+"/authorize?"), authorizeURL)
	assert.Contains(t, authorizeURL, url.QueryEscape("urn:ietf:params:oauth:request_uri:demo"))

	require.Len(t, store.reqs, 1)
	for _, req := range store.reqs {
		assert.Equal(t, "did:plc:alice", req.DID)
		assert.Equal(t, srv.URL, req.PDSURL)
		assert.Equal(t, srv.URL, req.AuthServerURL)
		assert.NotEmpty(t, req.PKCEVerifier)
		assert.NotEmpty(t, req.DPoPKeyJWK)
	}
}

func TestStartAuthorize_UnknownHandle(t *testing.T) {
	c := newTestClient(newMemStore(), &fakeDirectory{dids: map[string]string{}})

	_, err := c.StartAuthorize(context.Background(), "ghost.test")

	assert.ErrorIs(t, err, oauth.ErrAccountNotFound)
}

func TestHandleCallback(t *testing.T) {
	srv := newAuthServer(t)
	defer srv.Close()

	store := newMemStore()
	c := newTestClient(store, &fakeDirectory{})
	seedAuthRequest(t, store, srv, "state-1", "did:plc:alice")

	srv.setTokenHandler(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostFormValue("grant_type"))
		assert.Equal(t, "code-1", r.PostFormValue("code"))
		assert.Equal(t, "verifier-1", r.PostFormValue("code_verifier"))
		assert.Equal(t, c.ClientID(), r.PostFormValue("client_id"))
		tokenSuccess(t, "did:plc:alice")(w, r)
	})

	did, err := c.HandleCallback(context.Background(), "state-1", "code-1", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "did:plc:alice", did)

	ts, err := store.GetTokenSet(context.Background(), "did:plc:alice")
	require.NoError(t, err)
	assert.Equal(t, "access-1", ts.AccessToken)
	assert.Equal(t, "refresh-1", ts.RefreshToken)
	assert.Equal(t, srv.URL, ts.PDSURL)
	assert.False(t, ts.Expired())
}

func TestHandleCallback_UnknownState(t *testing.T) {
	c := newTestClient(newMemStore(), &fakeDirectory{})

	_, err := c.HandleCallback(context.Background(), "missing", "code-1", "")

	assert.ErrorIs(t, err, oauth.ErrStateNotFound)
}

func TestHandleCallback_StateIsSingleUse(t *testing.T) {
	srv := newAuthServer(t)
	defer srv.Close()

	store := newMemStore()
	c := newTestClient(store, &fakeDirectory{})
	seedAuthRequest(t, store, srv, "state-1", "did:plc:alice")
	srv.setTokenHandler(tokenSuccess(t, "did:plc:alice"))

	_, err := c.HandleCallback(context.Background(), "state-1", "code-1", srv.URL)
	require.NoError(t, err)

	_, err = c.HandleCallback(context.Background(), "state-1", "code-1", srv.URL)
	assert.ErrorIs(t, err, oauth.ErrStateNotFound)
}

func TestHandleCallback_IssuerMismatch(t *testing.T) {
	srv := newAuthServer(t)
	defer srv.Close()

	store := newMemStore()
	c := newTestClient(store, &fakeDirectory{})
	seedAuthRequest(t, store, srv, "state-1", "did:plc:alice")

	_, err := c.HandleCallback(context.Background(), "state-1", "code-1", "https://evil.example.com")

	assert.Error(t, err)
	assert.Empty(t, store.tokens)
}

func TestHandleCallback_SubjectMismatch(t *testing.T) {
	srv := newAuthServer(t)
	defer srv.Close()

	store := newMemStore()
	c := newTestClient(store, &fakeDirectory{})
	seedAuthRequest(t, store, srv, "state-1", "did:plc:alice")
	srv.setTokenHandler(tokenSuccess(t, "did:plc:mallory"))

	_, err := c.HandleCallback(context.Background(), "state-1", "code-1", srv.URL)

	assert.Error(t, err)
	assert.Empty(t, store.tokens)
}

func TestRefresh(t *testing.T) {
	srv := newAuthServer(t)
	defer srv.Close()

	store := newMemStore()
	c := newTestClient(store, &fakeDirectory{})

	key, err := oauth.GenerateDPoPKey()
	require.NoError(t, err)
	jwk, err := oauth.MarshalJWK(key)
	require.NoError(t, err)
	require.NoError(t, store.SaveTokenSet(context.Background(), &oauth.TokenSet{
		DID:           "did:plc:alice",
		PDSURL:        srv.URL,
		AuthServerURL: srv.URL,
		AccessToken:   "stale-access",
		RefreshToken:  "stale-refresh",
		DPoPKeyJWK:    jwk,
		ExpiresAt:     time.Now().Add(-time.Minute),
	}))

	srv.setTokenHandler(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostFormValue("grant_type"))
		assert.Equal(t, "stale-refresh", r.PostFormValue("refresh_token"))
		tokenSuccess(t, "did:plc:alice")(w, r)
	})

	ts, err := c.Refresh(context.Background(), "did:plc:alice")
	require.NoError(t, err)
	assert.Equal(t, "access-1", ts.AccessToken)
	assert.Equal(t, "refresh-1", ts.RefreshToken)
	assert.False(t, ts.Expired())

	stored, err := store.GetTokenSet(context.Background(), "did:plc:alice")
	require.NoError(t, err)
	assert.Equal(t, "access-1", stored.AccessToken)
}

func TestRefresh_RevokedGrant(t *testing.T) {
	srv := newAuthServer(t)
	defer srv.Close()

	store := newMemStore()
	c := newTestClient(store, &fakeDirectory{})

	key, err := oauth.GenerateDPoPKey()
	require.NoError(t, err)
	jwk, err := oauth.MarshalJWK(key)
	require.NoError(t, err)
	require.NoError(t, store.SaveTokenSet(context.Background(), &oauth.TokenSet{
		DID:           "did:plc:alice",
		AuthServerURL: srv.URL,
		RefreshToken:  "stale-refresh",
		DPoPKeyJWK:    jwk,
	}))

	srv.setTokenHandler(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
	})

	_, err = c.Refresh(context.Background(), "did:plc:alice")
	assert.ErrorIs(t, err, oauth.ErrGrantRevoked)

	_, err = store.GetTokenSet(context.Background(), "did:plc:alice")
	assert.ErrorIs(t, err, oauth.ErrNoGrant, "revoked grant must be dropped from the store")
}

func TestRefresh_RetriesWithDPoPNonce(t *testing.T) {
	srv := newAuthServer(t)
	defer srv.Close()

	store := newMemStore()
	c := newTestClient(store, &fakeDirectory{})

	key, err := oauth.GenerateDPoPKey()
	require.NoError(t, err)
	jwk, err := oauth.MarshalJWK(key)
	require.NoError(t, err)
	require.NoError(t, store.SaveTokenSet(context.Background(), &oauth.TokenSet{
		DID:           "did:plc:alice",
		AuthServerURL: srv.URL,
		RefreshToken:  "stale-refresh",
		DPoPKeyJWK:    jwk,
	}))

	var calls int
	srv.setTokenHandler(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("DPoP-Nonce", "server-nonce")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "use_dpop_nonce"})
			return
		}
		tokenSuccess(t, "did:plc:alice")(w, r)
	})

	ts, err := c.Refresh(context.Background(), "did:plc:alice")
	require.NoError(t, err)
	assert.Equal(t, "access-1", ts.AccessToken)
	assert.Equal(t, 2, calls, "client retries exactly once with the issued nonce")
}

func TestRefresh_NoGrant(t *testing.T) {
	c := newTestClient(newMemStore(), &fakeDirectory{})

	_, err := c.Refresh(context.Background(), "did:plc:nobody")

	assert.ErrorIs(t, err, oauth.ErrNoGrant)
}
