package handler

import (
	"log/slog"
	"net/http"

	"github.com/statusky/statusky/internal/view"
)

// HomeHandler handles GET /, the aggregate status feed.
type HomeHandler struct {
	sessions Sessions
	feed     FeedBuilder
	renderer view.Renderer
}

// NewHomeHandler creates a new HomeHandler.
func NewHomeHandler(sessions Sessions, feed FeedBuilder, renderer view.Renderer) *HomeHandler {
	return &HomeHandler{
		sessions: sessions,
		feed:     feed,
		renderer: renderer,
	}
}

// ServeHTTP builds and renders the feed. The viewer may be anonymous.
func (h *HomeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	agent, err := h.sessions.GetAgent(w, r)
	if err != nil {
		slog.Error("failed to resolve session", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	feedView, err := h.feed.BuildFeed(r.Context(), agent)
	if err != nil {
		slog.Error("failed to build feed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	data := view.HomeData{
		Feed:  feedView,
		Error: r.URL.Query().Get("error"),
	}
	if err := h.renderer.Home(w, data); err != nil {
		slog.Error("failed to render home page", "error", err)
	}
}
