package handler

import (
	"log/slog"
	"net/http"
)

// CallbackHandler handles GET /oauth/callback, the return leg of the
// authorization flow.
type CallbackHandler struct {
	authorizer Authorizer
	sessions   Sessions
}

// NewCallbackHandler creates a new CallbackHandler.
func NewCallbackHandler(authorizer Authorizer, sessions Sessions) *CallbackHandler {
	return &CallbackHandler{
		authorizer: authorizer,
		sessions:   sessions,
	}
}

// ServeHTTP completes the flow and establishes a session. Unexpected
// failures redirect to the home view with a generic error flag rather than
// exposing internal detail.
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if errCode := q.Get("error"); errCode != "" {
		slog.Warn("authorization denied by server", "error", errCode, "description", q.Get("error_description"))
		h.fail(w, r)
		return
	}

	did, err := h.authorizer.HandleCallback(r.Context(), q.Get("state"), q.Get("code"), q.Get("iss"))
	if err != nil {
		slog.Error("oauth callback failed", "error", err)
		h.fail(w, r)
		return
	}

	if err := h.sessions.Create(r.Context(), w, did); err != nil {
		slog.Error("failed to create session", "did", did, "error", err)
		h.fail(w, r)
		return
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *CallbackHandler) fail(w http.ResponseWriter, r *http.Request) {
	h.sessions.Destroy(r.Context(), w, r)
	http.Redirect(w, r, "/?error=oauth", http.StatusSeeOther)
}
