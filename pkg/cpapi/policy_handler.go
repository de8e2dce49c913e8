package cpapi

import (
	"net/http"

	"github.com/Ritinpaul/AgentGovern-OS/pkg/passport"
)

// handlePolicyBundle serves GET /sentinel/policies/bundle?env=… (spec §6).
// It serves the full, unfiltered bundle rather than an env-scoped subset: the
// edge must be able to recompute and verify the published hash directly
// (spec §4.3 "the edge bundle carries the same version and hash as the full
// bundle"), which only works if it is handed the exact rule set the hash was
// computed over. The edge applies policy.Bundle.ForEnvironment itself, after
// verification.
func (s *Server) handlePolicyBundle(w http.ResponseWriter, r *http.Request) {
	env := r.URL.Query().Get("env")
	if env == "" {
		RespondError(w, http.StatusBadRequest, "bad_request", "env query parameter is required")
		return
	}
	if !passport.ValidEnvironments[passport.Environment(env)] {
		RespondError(w, http.StatusBadRequest, "bad_request", "unknown environment")
		return
	}

	bundle, ok := s.deps.Bundles.Current()
	if !ok {
		RespondError(w, http.StatusServiceUnavailable, "no_current_bundle", "no policy bundle has been published")
		return
	}

	Respond(w, http.StatusOK, bundle)
}
