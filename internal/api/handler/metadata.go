package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// MetadataHandler serves the OAuth client discovery document at
// GET /client-metadata.json. The document is served raw, not enveloped:
// authorization servers fetch it directly.
type MetadataHandler struct {
	authorizer Authorizer
}

// NewMetadataHandler creates a new MetadataHandler.
func NewMetadataHandler(authorizer Authorizer) *MetadataHandler {
	return &MetadataHandler{authorizer: authorizer}
}

// ServeHTTP handles the client metadata request.
func (h *MetadataHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.authorizer.Metadata()); err != nil {
		slog.Error("failed to encode client metadata", "error", err)
	}
}
