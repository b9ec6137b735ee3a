package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/statusky/statusky/internal/oauth"
	"github.com/statusky/statusky/internal/view"
)

// LoginHandler handles the login page and login form submission.
type LoginHandler struct {
	authorizer Authorizer
	renderer   view.Renderer
}

// NewLoginHandler creates a new LoginHandler.
func NewLoginHandler(authorizer Authorizer, renderer view.Renderer) *LoginHandler {
	return &LoginHandler{
		authorizer: authorizer,
		renderer:   renderer,
	}
}

// Show handles GET /login.
func (h *LoginHandler) Show(w http.ResponseWriter, r *http.Request) {
	data := view.LoginData{Error: r.URL.Query().Get("error")}
	if err := h.renderer.Login(w, data); err != nil {
		slog.Error("failed to render login page", "error", err)
	}
}

// Submit handles POST /login. It starts the authorization flow for the
// submitted handle and redirects the browser to the authorization server.
// Failures redirect back to the login view with a human-readable reason.
func (h *LoginHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectWithError(w, r, "/login", "Invalid form submission")
		return
	}

	handle := strings.TrimSpace(r.PostFormValue("handle"))
	handle = strings.TrimPrefix(handle, "@")
	if handle == "" {
		redirectWithError(w, r, "/login", "Enter your handle to sign in")
		return
	}

	authorizeURL, err := h.authorizer.StartAuthorize(r.Context(), handle)
	if err != nil {
		if errors.Is(err, oauth.ErrAccountNotFound) {
			redirectWithError(w, r, "/login", "Could not find an account for that handle")
			return
		}
		slog.Error("failed to start authorization", "handle", handle, "error", err)
		redirectWithError(w, r, "/login", "Sign-in is unavailable right now, please try again")
		return
	}

	http.Redirect(w, r, authorizeURL, http.StatusFound)
}

// redirectWithError sends the browser back to path with a readable reason.
func redirectWithError(w http.ResponseWriter, r *http.Request, path, message string) {
	http.Redirect(w, r, path+"?error="+url.QueryEscape(message), http.StatusSeeOther)
}
