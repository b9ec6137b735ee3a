package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/statusky/statusky/internal/feed"
	"github.com/statusky/statusky/internal/lexicon"
	"github.com/statusky/statusky/internal/oauth"
	"github.com/statusky/statusky/internal/pds"
	"github.com/statusky/statusky/internal/view"
)

// testAgent builds a throwaway authenticated agent. Tests drive the
// collaborator fakes, so the agent's PDS is never contacted.
func testAgent(t *testing.T, did string) *pds.Agent {
	t.Helper()

	key, err := oauth.GenerateDPoPKey()
	require.NoError(t, err)
	jwk, err := oauth.MarshalJWK(key)
	require.NoError(t, err)

	agent, err := pds.NewAgent(&oauth.TokenSet{
		DID:         did,
		PDSURL:      "https://pds.example.com",
		AccessToken: "access-token",
		DPoPKeyJWK:  jwk,
		ExpiresAt:   time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	return agent
}

type fakeSessions struct {
	agent    *pds.Agent
	agentErr error

	created   []string
	createErr error
	destroyed int
}

func (f *fakeSessions) Create(ctx context.Context, w http.ResponseWriter, did string) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, did)
	return nil
}

func (f *fakeSessions) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	f.destroyed++
}

func (f *fakeSessions) GetAgent(w http.ResponseWriter, r *http.Request) (*pds.Agent, error) {
	return f.agent, f.agentErr
}

type fakeAuthorizer struct {
	authorizeURL string
	startErr     error
	startHandle  string

	callbackDID string
	callbackErr error
}

func (f *fakeAuthorizer) StartAuthorize(ctx context.Context, handle string) (string, error) {
	f.startHandle = handle
	if f.startErr != nil {
		return "", f.startErr
	}
	return f.authorizeURL, nil
}

func (f *fakeAuthorizer) HandleCallback(ctx context.Context, state, code, iss string) (string, error) {
	if f.callbackErr != nil {
		return "", f.callbackErr
	}
	return f.callbackDID, nil
}

func (f *fakeAuthorizer) Metadata() oauth.ClientMetadata {
	return oauth.ClientMetadata{
		ClientID:     "https://statusky.example.com/client-metadata.json",
		RedirectURIs: []string{"https://statusky.example.com/oauth/callback"},
		Scope:        oauth.Scope,
	}
}

type fakePublisher struct {
	record     lexicon.StatusRecord
	publishErr error

	gotStatus string
	calls     int
}

func (f *fakePublisher) Publish(ctx context.Context, agent *pds.Agent, rawStatus string) (lexicon.StatusRecord, error) {
	f.calls++
	f.gotStatus = rawStatus
	if f.publishErr != nil {
		return lexicon.StatusRecord{}, f.publishErr
	}
	return f.record, nil
}

type fakeFeedBuilder struct {
	feed     *feed.Feed
	buildErr error
}

func (f *fakeFeedBuilder) BuildFeed(ctx context.Context, agent *pds.Agent) (*feed.Feed, error) {
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	return f.feed, nil
}

// fakeRenderer records the view-model and writes a marker body.
type fakeRenderer struct {
	home  *view.HomeData
	login *view.LoginData
}

func (f *fakeRenderer) Home(w http.ResponseWriter, data view.HomeData) error {
	f.home = &data
	_, err := w.Write([]byte("home"))
	return err
}

func (f *fakeRenderer) Login(w http.ResponseWriter, data view.LoginData) error {
	f.login = &data
	_, err := w.Write([]byte("login"))
	return err
}

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(ctx context.Context) error {
	return f.err
}
