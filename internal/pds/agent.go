package pds

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/statusky/statusky/internal/oauth"
)

// Agent is an authenticated capability to act on one account's repository.
// Agents are materialized per request from the session's grant and are not
// safe for concurrent use.
type Agent struct {
	did         string
	pdsURL      string
	accessToken string
	key         *ecdsa.PrivateKey
	http        *resty.Client

	// nonce is the most recent DPoP nonce issued by the PDS.
	nonce string
}

// NewAgent builds an Agent from stored grant material.
func NewAgent(ts *oauth.TokenSet) (*Agent, error) {
	key, err := ts.DPoPKey()
	if err != nil {
		return nil, fmt.Errorf("loading DPoP key: %w", err)
	}
	return &Agent{
		did:         ts.DID,
		pdsURL:      ts.PDSURL,
		accessToken: ts.AccessToken,
		key:         key,
		http:        resty.New().SetTimeout(10 * time.Second),
	}, nil
}

// DID returns the account identifier this agent acts for.
func (a *Agent) DID() string {
	return a.did
}

// PutRecord writes a record to the account's repository at the given
// collection and record key, overwriting any existing record in that slot.
// The write skips remote schema validation; callers validate locally first.
func (a *Agent) PutRecord(ctx context.Context, collection, rkey string, record any) error {
	body := map[string]any{
		"repo":       a.did,
		"collection": collection,
		"rkey":       rkey,
		"record":     record,
		"validate":   false,
	}

	resp, err := a.do(ctx, http.MethodPost, "/xrpc/com.atproto.repo.putRecord", nil, body, nil)
	if err != nil {
		return fmt.Errorf("putRecord %s/%s: %w", collection, rkey, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("putRecord %s/%s: status %d: %s", collection, rkey, resp.StatusCode(), resp.String())
	}
	return nil
}

// GetRecord reads a record from the account's repository into out.
func (a *Agent) GetRecord(ctx context.Context, collection, rkey string, out any) error {
	var envelope struct {
		URI   string          `json:"uri"`
		CID   string          `json:"cid"`
		Value json.RawMessage `json:"value"`
	}

	query := map[string]string{
		"repo":       a.did,
		"collection": collection,
		"rkey":       rkey,
	}
	resp, err := a.do(ctx, http.MethodGet, "/xrpc/com.atproto.repo.getRecord", query, nil, &envelope)
	if err != nil {
		return fmt.Errorf("getRecord %s/%s: %w", collection, rkey, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("getRecord %s/%s: status %d: %s", collection, rkey, resp.StatusCode(), resp.String())
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Value, out); err != nil {
			return fmt.Errorf("decoding record value: %w", err)
		}
	}
	return nil
}

// Profile is the live profile of an account as served by its PDS.
type Profile struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
	Avatar      string `json:"avatar"`
}

// GetProfile fetches the agent's own profile.
func (a *Agent) GetProfile(ctx context.Context) (*Profile, error) {
	var profile Profile

	query := map[string]string{"actor": a.did}
	resp, err := a.do(ctx, http.MethodGet, "/xrpc/app.bsky.actor.getProfile", query, nil, &profile)
	if err != nil {
		return nil, fmt.Errorf("getProfile: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("getProfile: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &profile, nil
}

// do performs one authenticated XRPC call, retrying once when the server
// demands a fresh DPoP nonce.
func (a *Agent) do(ctx context.Context, method, path string, query map[string]string, body, out any) (*resty.Response, error) {
	resp, err := a.doOnce(ctx, method, path, query, body, out)
	if err != nil {
		return nil, err
	}
	if isUseDPoPNonce(resp) {
		if nonce := resp.Header().Get("DPoP-Nonce"); nonce != "" {
			a.nonce = nonce
			return a.doOnce(ctx, method, path, query, body, out)
		}
	}
	return resp, nil
}

func (a *Agent) doOnce(ctx context.Context, method, path string, query map[string]string, body, out any) (*resty.Response, error) {
	endpoint := a.pdsURL + path

	proof, err := oauth.SignDPoP(a.key, method, endpoint, a.nonce, a.accessToken)
	if err != nil {
		return nil, err
	}

	req := a.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "DPoP "+a.accessToken).
		SetHeader("DPoP", proof)
	if query != nil {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}

	return req.Execute(method, endpoint)
}

// isUseDPoPNonce reports whether the response is a DPoP nonce challenge.
func isUseDPoPNonce(resp *resty.Response) bool {
	if resp.IsSuccess() {
		return false
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return false
	}
	return body.Error == "use_dpop_nonce"
}
