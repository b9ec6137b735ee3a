package api

import (
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/go-chi/chi/v5"

	"github.com/statusky/statusky/internal/api/handler"
	"github.com/statusky/statusky/internal/api/middleware"
	"github.com/statusky/statusky/internal/view"
)

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	DBPinger   handler.DBPinger
	Version    string
	Authorizer handler.Authorizer
	Sessions   handler.Sessions
	Publisher  handler.StatusPublisher
	Feed       handler.FeedBuilder
	Renderer   view.Renderer
}

// NewRouter creates and configures a Chi router with all middleware and routes.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(chimiddleware.Logger)

	healthHandler := handler.NewHealthHandler(deps.DBPinger, deps.Version)
	r.Get("/health", healthHandler.ServeHTTP)

	metadataHandler := handler.NewMetadataHandler(deps.Authorizer)
	r.Get("/client-metadata.json", metadataHandler.ServeHTTP)

	loginHandler := handler.NewLoginHandler(deps.Authorizer, deps.Renderer)
	r.Get("/login", loginHandler.Show)
	r.Post("/login", loginHandler.Submit)

	callbackHandler := handler.NewCallbackHandler(deps.Authorizer, deps.Sessions)
	r.Get("/oauth/callback", callbackHandler.ServeHTTP)

	logoutHandler := handler.NewLogoutHandler(deps.Sessions)
	r.Post("/logout", logoutHandler.ServeHTTP)

	homeHandler := handler.NewHomeHandler(deps.Sessions, deps.Feed, deps.Renderer)
	r.Get("/", homeHandler.ServeHTTP)

	statusHandler := handler.NewStatusHandler(deps.Sessions, deps.Publisher)
	r.Post("/status", statusHandler.ServeHTTP)

	return r
}
