package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Ritinpaul/AgentGovern-OS/pkg/passport"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/pipeline"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/telemetry"
)

// authorizeRequest is the wire shape of POST /authorize (spec §6).
type authorizeRequest struct {
	PassportToken string         `json:"passport_token" validate:"required"`
	ActionType    string         `json:"action_type" validate:"required"`
	Resource      string         `json:"resource"`
	Amount        float64        `json:"amount"`
	Currency      string         `json:"currency"`
	Environment   string         `json:"environment" validate:"required"`
	Context       map[string]any `json:"context"`
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ctx, span := s.deps.telemetry().StartSpan(r.Context(), "authorize")
	defer span.End()

	start := time.Now()
	resp, err := s.deps.Pipeline.Authorize(ctx, pipeline.Request{
		PassportToken: req.PassportToken,
		ActionType:    req.ActionType,
		Resource:      req.Resource,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Environment:   req.Environment,
		Context:       req.Context,
	})
	if err != nil {
		telemetry.AuthorizeTotal.WithLabelValues("error", "").Inc()
		writeAuthorizeError(w, err)
		return
	}

	telemetry.AuthorizeLatency.WithLabelValues(resp.Verdict).Observe(time.Since(start).Seconds())
	telemetry.AuthorizeTotal.WithLabelValues(resp.Verdict, resp.Mode).Inc()

	Respond(w, http.StatusOK, resp)
}

// writeAuthorizeError maps a pipeline error to the status codes spec §6/§7
// mandate: 401 for any passport verification failure with no ledger write,
// 504 for a deadline exceeded before the ledger append, 503 for a genuine
// append failure (the caller must retry), 500 otherwise.
func writeAuthorizeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, passport.ErrExpired):
		RespondError(w, http.StatusUnauthorized, "PassportExpired", err.Error())
	case errors.Is(err, passport.ErrBadSignature):
		RespondError(w, http.StatusUnauthorized, "PassportBadSignature", err.Error())
	case errors.Is(err, passport.ErrMalformed):
		RespondError(w, http.StatusUnauthorized, "PassportMalformed", err.Error())
	case errors.Is(err, passport.ErrRevoked):
		RespondError(w, http.StatusUnauthorized, "PassportRevoked", err.Error())
	case errors.Is(err, pipeline.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		RespondError(w, http.StatusGatewayTimeout, "DeadlineExceeded", err.Error())
	case errors.Is(err, pipeline.ErrAppendFailed):
		RespondError(w, http.StatusServiceUnavailable, "AppendFailed", err.Error())
	default:
		RespondError(w, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
	}
}
