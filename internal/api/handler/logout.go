package handler

import "net/http"

// LogoutHandler handles POST /logout.
type LogoutHandler struct {
	sessions Sessions
}

// NewLogoutHandler creates a new LogoutHandler.
func NewLogoutHandler(sessions Sessions) *LogoutHandler {
	return &LogoutHandler{sessions: sessions}
}

// ServeHTTP destroys the current session and redirects home. Logging out
// without a session is a no-op.
func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.sessions.Destroy(r.Context(), w, r)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
