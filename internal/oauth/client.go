package oauth

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/statusky/statusky/internal/identity"
)

// ErrAccountNotFound is returned when the login handle does not resolve to
// any account. Callers show a specific message rather than a generic failure.
var ErrAccountNotFound = errors.New("account not found")

// ErrGrantRevoked is returned when the authorization server rejects a refresh
// because the grant was revoked or expired.
var ErrGrantRevoked = errors.New("authorization grant revoked")

// Directory resolves login handles and locates account service endpoints.
// Implemented by identity.Resolver.
type Directory interface {
	ResolveHandleToDID(ctx context.Context, handle string) (string, error)
	PDSEndpoint(ctx context.Context, did string) (string, error)
}

// Client drives the AT Protocol OAuth flow: pushed authorization requests,
// PKCE, DPoP-bound token exchange, and grant refresh. Safe for concurrent use.
type Client struct {
	http      *resty.Client
	store     Store
	dir       Directory
	publicURL string
	log       *slog.Logger
}

// NewClient creates an OAuth client. publicURL is this app's external base URL.
func NewClient(publicURL string, store Store, dir Directory, log *slog.Logger) *Client {
	return &Client{
		http:      resty.New().SetTimeout(15 * time.Second),
		store:     store,
		dir:       dir,
		publicURL: publicURL,
		log:       log.With("component", "oauth_client"),
	}
}

// ClientID is the public client identifier: the metadata document URL.
func (c *Client) ClientID() string {
	return c.publicURL + "/client-metadata.json"
}

// RedirectURI is the callback URL registered in the client metadata.
func (c *Client) RedirectURI() string {
	return c.publicURL + "/oauth/callback"
}

// Metadata returns the discovery document served at /client-metadata.json.
func (c *Client) Metadata() ClientMetadata {
	return ClientMetadata{
		ClientID:                c.ClientID(),
		ClientName:              "Statusky",
		ClientURI:               c.publicURL,
		RedirectURIs:            []string{c.RedirectURI()},
		Scope:                   Scope,
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
		ApplicationType:         "web",
		TokenEndpointAuthMethod: "none",
		DPoPBoundAccessTokens:   true,
	}
}

// StartAuthorize begins the login flow for a handle and returns the URL to
// redirect the browser to. Returns ErrAccountNotFound when the handle does
// not resolve.
func (c *Client) StartAuthorize(ctx context.Context, handle string) (string, error) {
	did, err := c.dir.ResolveHandleToDID(ctx, handle)
	if err != nil {
		if errors.Is(err, identity.ErrHandleNotFound) {
			return "", ErrAccountNotFound
		}
		return "", fmt.Errorf("resolving handle: %w", err)
	}

	pdsURL, err := c.dir.PDSEndpoint(ctx, did)
	if err != nil {
		return "", fmt.Errorf("locating PDS: %w", err)
	}

	issuer, err := c.authServerForPDS(ctx, pdsURL)
	if err != nil {
		return "", err
	}
	md, err := c.fetchServerMetadata(ctx, issuer)
	if err != nil {
		return "", err
	}

	key, err := GenerateDPoPKey()
	if err != nil {
		return "", fmt.Errorf("generating DPoP key: %w", err)
	}
	keyJWK, err := MarshalJWK(key)
	if err != nil {
		return "", err
	}

	state := uuid.NewString()
	verifier, challenge, err := newPKCE()
	if err != nil {
		return "", err
	}

	req := &AuthRequest{
		State:         state,
		Handle:        handle,
		DID:           did,
		PDSURL:        pdsURL,
		AuthServerURL: issuer,
		PKCEVerifier:  verifier,
		DPoPKeyJWK:    keyJWK,
		CreatedAt:     time.Now().UTC(),
	}
	if err := c.store.SaveAuthRequest(ctx, req); err != nil {
		return "", fmt.Errorf("persisting auth request: %w", err)
	}

	var parResp struct {
		RequestURI string `json:"request_uri"`
	}
	form := map[string]string{
		"client_id":             c.ClientID(),
		"response_type":         "code",
		"redirect_uri":          c.RedirectURI(),
		"state":                 state,
		"scope":                 Scope,
		"login_hint":            handle,
		"code_challenge":        challenge,
		"code_challenge_method": "S256",
	}
	resp, err := c.postForm(ctx, key, md.PAREndpoint, form, &parResp)
	if err != nil {
		return "", fmt.Errorf("pushed authorization request: %w", err)
	}
	if !resp.IsSuccess() || parResp.RequestURI == "" {
		return "", fmt.Errorf("pushed authorization request rejected: status %d: %s", resp.StatusCode(), resp.String())
	}

	authorizeURL := md.AuthorizationEndpoint +
		"?client_id=" + url.QueryEscape(c.ClientID()) +
		"&request_uri=" + url.QueryEscape(parResp.RequestURI)
	return authorizeURL, nil
}

// tokenResponse is the token endpoint's success body.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	Sub          string `json:"sub"`
}

// HandleCallback completes the authorization flow. It consumes the stored
// auth request for state, exchanges the code, persists the grant, and returns
// the authenticated account's DID.
func (c *Client) HandleCallback(ctx context.Context, state, code, iss string) (string, error) {
	req, err := c.store.TakeAuthRequest(ctx, state)
	if err != nil {
		return "", err
	}
	if iss != "" && iss != req.AuthServerURL {
		return "", fmt.Errorf("callback issuer %q does not match authorization server %q", iss, req.AuthServerURL)
	}

	md, err := c.fetchServerMetadata(ctx, req.AuthServerURL)
	if err != nil {
		return "", err
	}
	key, err := parseJWK(req.DPoPKeyJWK)
	if err != nil {
		return "", err
	}

	var tr tokenResponse
	form := map[string]string{
		"grant_type":    "authorization_code",
		"code":          code,
		"code_verifier": req.PKCEVerifier,
		"client_id":     c.ClientID(),
		"redirect_uri":  c.RedirectURI(),
	}
	resp, err := c.postForm(ctx, key, md.TokenEndpoint, form, &tr)
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("token exchange rejected: status %d: %s", resp.StatusCode(), resp.String())
	}
	if tr.Sub == "" || tr.AccessToken == "" {
		return "", fmt.Errorf("token exchange returned incomplete grant")
	}
	if req.DID != "" && req.DID != tr.Sub {
		return "", fmt.Errorf("token subject %q does not match expected account %q", tr.Sub, req.DID)
	}

	ts := &TokenSet{
		DID:           tr.Sub,
		PDSURL:        req.PDSURL,
		AuthServerURL: req.AuthServerURL,
		AccessToken:   tr.AccessToken,
		RefreshToken:  tr.RefreshToken,
		DPoPKeyJWK:    req.DPoPKeyJWK,
		ExpiresAt:     time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}
	if err := c.store.SaveTokenSet(ctx, ts); err != nil {
		return "", fmt.Errorf("persisting grant: %w", err)
	}

	c.log.Info("authorization grant established", "did", ts.DID)
	return ts.DID, nil
}

// Grant returns the stored grant for a DID. Returns ErrNoGrant when absent.
func (c *Client) Grant(ctx context.Context, did string) (*TokenSet, error) {
	return c.store.GetTokenSet(ctx, did)
}

// Refresh rotates the grant's tokens. On a revoked or expired grant it
// removes the stored token set and returns ErrGrantRevoked.
func (c *Client) Refresh(ctx context.Context, did string) (*TokenSet, error) {
	ts, err := c.store.GetTokenSet(ctx, did)
	if err != nil {
		return nil, err
	}

	md, err := c.fetchServerMetadata(ctx, ts.AuthServerURL)
	if err != nil {
		return nil, err
	}
	key, err := ts.DPoPKey()
	if err != nil {
		return nil, err
	}

	var tr tokenResponse
	form := map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": ts.RefreshToken,
		"client_id":     c.ClientID(),
	}
	resp, err := c.postForm(ctx, key, md.TokenEndpoint, form, &tr)
	if err != nil {
		return nil, fmt.Errorf("refreshing grant: %w", err)
	}
	if !resp.IsSuccess() {
		if oauthErrorCode(resp) == "invalid_grant" {
			if delErr := c.store.DeleteTokenSet(ctx, did); delErr != nil {
				c.log.Warn("failed to delete revoked grant", "did", did, "error", delErr)
			}
			return nil, ErrGrantRevoked
		}
		return nil, fmt.Errorf("grant refresh rejected: status %d: %s", resp.StatusCode(), resp.String())
	}

	ts.AccessToken = tr.AccessToken
	if tr.RefreshToken != "" {
		ts.RefreshToken = tr.RefreshToken
	}
	ts.ExpiresAt = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	if err := c.store.SaveTokenSet(ctx, ts); err != nil {
		return nil, fmt.Errorf("persisting refreshed grant: %w", err)
	}
	return ts, nil
}

// RevokeGrant drops the stored grant material for a DID.
func (c *Client) RevokeGrant(ctx context.Context, did string) error {
	return c.store.DeleteTokenSet(ctx, did)
}

// postForm posts a form with a DPoP proof, retrying once when the server
// demands a nonce via use_dpop_nonce.
func (c *Client) postForm(ctx context.Context, key *ecdsa.PrivateKey, endpoint string, form map[string]string, out any) (*resty.Response, error) {
	resp, err := c.postFormOnce(ctx, key, endpoint, form, "", out)
	if err != nil {
		return nil, err
	}
	if oauthErrorCode(resp) == "use_dpop_nonce" {
		if nonce := resp.Header().Get("DPoP-Nonce"); nonce != "" {
			return c.postFormOnce(ctx, key, endpoint, form, nonce, out)
		}
	}
	return resp, nil
}

func (c *Client) postFormOnce(ctx context.Context, key *ecdsa.PrivateKey, endpoint string, form map[string]string, nonce string, out any) (*resty.Response, error) {
	proof, err := SignDPoP(key, http.MethodPost, endpoint, nonce, "")
	if err != nil {
		return nil, err
	}
	return c.http.R().
		SetContext(ctx).
		SetFormData(form).
		SetHeader("DPoP", proof).
		SetResult(out).
		Post(endpoint)
}

// oauthErrorCode extracts the "error" code from an OAuth error response body.
func oauthErrorCode(resp *resty.Response) string {
	if resp.IsSuccess() {
		return ""
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return ""
	}
	return body.Error
}

// newPKCE generates a PKCE verifier and its S256 challenge.
func newPKCE() (verifier, challenge string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generating PKCE verifier: %w", err)
	}
	verifier = base64.RawURLEncoding.EncodeToString(b)
	sum := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(sum[:])
	return verifier, challenge, nil
}
