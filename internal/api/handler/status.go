package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/statusky/statusky/internal/api/middleware"
	"github.com/statusky/statusky/internal/api/response"
	"github.com/statusky/statusky/internal/status"
)

// StatusHandler handles POST /status, the publish endpoint.
type StatusHandler struct {
	sessions  Sessions
	publisher StatusPublisher
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(sessions Sessions, publisher StatusPublisher) *StatusHandler {
	return &StatusHandler{
		sessions:  sessions,
		publisher: publisher,
	}
}

// ServeHTTP publishes the submitted status. It returns 401 without a
// capability, 400 on schema validation failure, 500 when the authoritative
// write fails, and 200 with an empty body on success regardless of the
// cache mirror's outcome.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	agent, err := h.sessions.GetAgent(w, r)
	if err != nil {
		slog.Error("failed to resolve session", "requestId", requestID, "error", err)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Could not resolve session", requestID)
		return
	}

	if err := r.ParseForm(); err != nil {
		response.Err(w, http.StatusBadRequest, "INVALID_STATUS", "Invalid form submission", requestID)
		return
	}

	_, err = h.publisher.Publish(r.Context(), agent, r.PostFormValue("status"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, status.ErrUnauthenticated):
		response.Err(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Sign in to set a status", requestID)
	case errors.Is(err, status.ErrInvalidInput):
		response.Err(w, http.StatusBadRequest, "INVALID_STATUS", "Status must be a single emoji or character", requestID)
	default:
		slog.Error("publish failed", "requestId", requestID, "error", err)
		response.Err(w, http.StatusInternalServerError, "PUBLISH_FAILED", "Could not publish status", requestID)
	}
}
