package handler

import (
	"context"
	"net/http"

	"github.com/statusky/statusky/internal/feed"
	"github.com/statusky/statusky/internal/lexicon"
	"github.com/statusky/statusky/internal/oauth"
	"github.com/statusky/statusky/internal/pds"
)

// Sessions is the session store surface the handlers depend on.
// Implemented by session.Store.
type Sessions interface {
	Create(ctx context.Context, w http.ResponseWriter, did string) error
	Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request)
	// GetAgent returns (nil, nil) for anonymous requests.
	GetAgent(w http.ResponseWriter, r *http.Request) (*pds.Agent, error)
}

// Authorizer drives the OAuth login flow. Implemented by oauth.Client.
type Authorizer interface {
	StartAuthorize(ctx context.Context, handle string) (string, error)
	HandleCallback(ctx context.Context, state, code, iss string) (string, error)
	Metadata() oauth.ClientMetadata
}

// StatusPublisher publishes a status record. Implemented by status.Publisher.
type StatusPublisher interface {
	Publish(ctx context.Context, agent *pds.Agent, rawStatus string) (lexicon.StatusRecord, error)
}

// FeedBuilder assembles the feed view-model. Implemented by feed.Assembler.
type FeedBuilder interface {
	BuildFeed(ctx context.Context, agent *pds.Agent) (*feed.Feed, error)
}
