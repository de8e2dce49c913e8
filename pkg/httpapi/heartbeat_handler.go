package httpapi

import (
	"errors"
	"net/http"

	"github.com/Ritinpaul/AgentGovern-OS/pkg/passport"
)

// heartbeatRequest is the wire shape of POST /heartbeat (spec §6). The
// gateway's own configured environment (GATEWAY_ENVIRONMENT), not a field
// on the request, is what gets recorded as the agent's location: a
// heartbeat only ever arrives through the gateway serving that environment.
type heartbeatRequest struct {
	AgentID       string            `json:"agent_id" validate:"required"`
	PassportToken string            `json:"passport_token" validate:"required"`
	HostID        string            `json:"host_id"`
	Region        string            `json:"region"`
	AgentVersion  string            `json:"agent_version"`
	Metadata      map[string]string `json:"metadata"`
}

type heartbeatResponse struct {
	Status string `json:"status"`
	Alert  any    `json:"alert,omitempty"`
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if _, err := s.deps.PassportSvc.Verify(req.PassportToken); err != nil {
		writeHeartbeatError(w, err)
		return
	}

	result := s.deps.EnvRegistry.Heartbeat(req.AgentID, passport.Environment(s.deps.Environment), req.HostID, req.Region, req.AgentVersion)

	Respond(w, http.StatusOK, heartbeatResponse{Status: result.Status, Alert: result.Alert})
}

func writeHeartbeatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, passport.ErrExpired):
		RespondError(w, http.StatusUnauthorized, "PassportExpired", err.Error())
	case errors.Is(err, passport.ErrBadSignature):
		RespondError(w, http.StatusUnauthorized, "PassportBadSignature", err.Error())
	case errors.Is(err, passport.ErrMalformed):
		RespondError(w, http.StatusUnauthorized, "PassportMalformed", err.Error())
	case errors.Is(err, passport.ErrRevoked):
		RespondError(w, http.StatusUnauthorized, "PassportRevoked", err.Error())
	default:
		RespondError(w, http.StatusUnauthorized, "PassportInvalid", err.Error())
	}
}
