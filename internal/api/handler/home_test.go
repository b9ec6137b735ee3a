package handler_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statusky/statusky/internal/api/handler"
	"github.com/statusky/statusky/internal/feed"
)

func TestHome_Anonymous(t *testing.T) {
	builder := &fakeFeedBuilder{feed: &feed.Feed{
		Entries: []feed.Entry{{DID: "did:plc:bob", Handle: "bob.test", Status: "🎉"}},
	}}
	renderer := &fakeRenderer{}
	h := handler.NewHomeHandler(&fakeSessions{}, builder, renderer)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, renderer.home)
	require.Len(t, renderer.home.Feed.Entries, 1)
	assert.Equal(t, "bob.test", renderer.home.Feed.Entries[0].Handle)
	assert.Empty(t, renderer.home.Feed.Viewer)
}

func TestHome_SignedIn(t *testing.T) {
	builder := &fakeFeedBuilder{feed: &feed.Feed{Viewer: "did:plc:alice"}}
	renderer := &fakeRenderer{}
	sessions := &fakeSessions{agent: testAgent(t, "did:plc:alice")}
	h := handler.NewHomeHandler(sessions, builder, renderer)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, renderer.home)
	assert.Equal(t, "did:plc:alice", renderer.home.Feed.Viewer)
}

func TestHome_ErrorFlag(t *testing.T) {
	builder := &fakeFeedBuilder{feed: &feed.Feed{}}
	renderer := &fakeRenderer{}
	h := handler.NewHomeHandler(&fakeSessions{}, builder, renderer)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?error=oauth", nil))

	require.NotNil(t, renderer.home)
	assert.Equal(t, "oauth", renderer.home.Error)
}

func TestHome_SessionLookupFailure(t *testing.T) {
	sessions := &fakeSessions{agentErr: errors.New("database unavailable")}
	h := handler.NewHomeHandler(sessions, &fakeFeedBuilder{}, &fakeRenderer{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHome_FeedFailure(t *testing.T) {
	builder := &fakeFeedBuilder{buildErr: errors.New("connection refused")}
	h := handler.NewHomeHandler(&fakeSessions{}, builder, &fakeRenderer{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
