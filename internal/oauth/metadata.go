package oauth

import (
	"context"
	"fmt"
	"net/http"
)

// Scope requested from the authorization server.
const Scope = "atproto transition:generic"

// ClientMetadata is the discovery document served at /client-metadata.json.
// The client is public: its identity is the metadata URL itself and token
// requests are sender-constrained with DPoP instead of a client secret.
type ClientMetadata struct {
	ClientID                string   `json:"client_id"`
	ClientName              string   `json:"client_name"`
	ClientURI               string   `json:"client_uri"`
	RedirectURIs            []string `json:"redirect_uris"`
	Scope                   string   `json:"scope"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	ApplicationType         string   `json:"application_type"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	DPoPBoundAccessTokens   bool     `json:"dpop_bound_access_tokens"`
}

// serverMetadata is the subset of authorization server metadata the client uses.
type serverMetadata struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	PAREndpoint           string `json:"pushed_authorization_request_endpoint"`
}

// authServerForPDS discovers the authorization server protecting a PDS.
func (c *Client) authServerForPDS(ctx context.Context, pdsURL string) (string, error) {
	var body struct {
		AuthorizationServers []string `json:"authorization_servers"`
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		Get(pdsURL + "/.well-known/oauth-protected-resource")
	if err != nil {
		return "", fmt.Errorf("fetching protected resource metadata: %w", err)
	}
	if resp.StatusCode() != http.StatusOK || len(body.AuthorizationServers) == 0 {
		return "", fmt.Errorf("no authorization server advertised by %s (status %d)", pdsURL, resp.StatusCode())
	}
	return body.AuthorizationServers[0], nil
}

// fetchServerMetadata retrieves the authorization server's metadata document.
func (c *Client) fetchServerMetadata(ctx context.Context, issuer string) (*serverMetadata, error) {
	var md serverMetadata
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&md).
		Get(issuer + "/.well-known/oauth-authorization-server")
	if err != nil {
		return nil, fmt.Errorf("fetching authorization server metadata: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("authorization server metadata: status %d", resp.StatusCode())
	}
	if md.TokenEndpoint == "" || md.AuthorizationEndpoint == "" {
		return nil, fmt.Errorf("authorization server metadata from %s is incomplete", issuer)
	}
	return &md, nil
}
