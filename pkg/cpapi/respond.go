// Package cpapi is the control plane's network surface (spec §6 "Network
// surface (control plane)"): the four endpoints gateways and bypass callers
// use to pull policy bundles, pull revocations, push ledger batches, and
// run a server-side secondary evaluation.
package cpapi

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
		slog.Error("cpapi: encoding response", "error", err)
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
