package cpapi

import (
	"net/http"

	"github.com/Ritinpaul/AgentGovern-OS/pkg/passport"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/policy"
)

// These are the control plane's own admin operations: minting and revoking
// passports, and publishing a new policy bundle (spec §3 "A thin cloud
// control plane issues cryptographic identity tokens... publishes signed
// policy bundles"). They sit alongside the edge-facing routes rather than
// under a separate binary, since both share the same store/registry
// instances in process.

type issuePassportRequest struct {
	AgentID             string             `json:"agent_id" validate:"required"`
	Role                string             `json:"role" validate:"required"`
	TrustScore          float64            `json:"trust_score" validate:"gte=0,lte=1"`
	AuthorityLimit      float64            `json:"authority_limit" validate:"gte=0"`
	AllowedEnvironments []string           `json:"allowed_environments" validate:"required,min=1"`
	Genes               []passport.Gene    `json:"genes"`
}

type issuePassportResponse struct {
	Token string `json:"token"`
}

func (s *Server) handleIssuePassport(w http.ResponseWriter, r *http.Request) {
	var req issuePassportRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	envs := make([]passport.Environment, len(req.AllowedEnvironments))
	for i, e := range req.AllowedEnvironments {
		envs[i] = passport.Environment(e)
	}

	token, err := s.deps.PassportSvc.Issue(passport.Data{
		AgentID:             req.AgentID,
		Role:                req.Role,
		TrustScore:          req.TrustScore,
		AuthorityLimit:      req.AuthorityLimit,
		AllowedEnvironments: envs,
		Genes:               req.Genes,
	})
	if err != nil {
		RespondError(w, http.StatusBadRequest, "issue_failed", err.Error())
		return
	}

	Respond(w, http.StatusCreated, issuePassportResponse{Token: token})
}

type revokePassportRequest struct {
	JTI string `json:"jti" validate:"required"`
}

func (s *Server) handleRevokePassport(w http.ResponseWriter, r *http.Request) {
	var req revokePassportRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	s.deps.Revocations.Add(req.JTI)

	Respond(w, http.StatusOK, map[string]string{"status": "revoked", "jti": req.JTI})
}

type publishBundleRequest struct {
	Rules    []policy.Rule     `json:"rules" validate:"required,min=1,dive"`
	Metadata map[string]string `json:"metadata"`
}

func (s *Server) handlePublishBundle(w http.ResponseWriter, r *http.Request) {
	var req publishBundleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	bundle, err := s.deps.Publisher.Publish(req.Rules, req.Metadata)
	if err != nil {
		RespondError(w, http.StatusBadRequest, "publish_failed", err.Error())
		return
	}

	Respond(w, http.StatusCreated, bundle)
}
