// Package httpapi is the edge gateway's network surface (spec §6 "Network
// surface (edge gateway)"): POST /authorize, POST /heartbeat, POST /sync,
// GET /status, GET /health, routed and logged in the chi idiom.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Respond writes a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("httpapi: encoding response", "error", err)
	}
}

// ErrorResponse is the JSON error envelope every non-2xx response uses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// RespondError writes a JSON error response.
func RespondError(w http.ResponseWriter, status int, kind, message string) {
	Respond(w, status, ErrorResponse{Error: kind, Message: message})
}
