// Package shared holds response helpers and context keys used across
// API handlers and middleware.
package shared

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// contextKey is a private type for request context keys.
type contextKey string

// ClientIDContextKey carries the authenticated client's UUID.
const ClientIDContextKey contextKey = "client_id"

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RespondWithJSON writes a JSON response with the given status.
func RespondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// RespondWithError writes a JSON error response with the given status.
func RespondWithError(w http.ResponseWriter, r *http.Request, status int, message string) {
	RespondWithJSON(w, status, ErrorResponse{Error: message})
}
