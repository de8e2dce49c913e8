package cpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Ritinpaul/AgentGovern-OS/pkg/ledger"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/passport"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/policy"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/revocation"
)

// Deps bundles everything the control plane's HTTP surface needs.
type Deps struct {
	Bundles     *policy.Store
	Revocations *revocation.Registry
	Master      *ledger.Master
	PassportSvc *passport.Service
	Publisher   *policy.Publisher
	Logger      *slog.Logger
}

// Server is the control plane's chi router plus the dependencies its
// handlers close over (spec §6 "Network surface (control plane)").
type Server struct {
	router *chi.Mux
	deps   Deps
}

// NewServer builds the router and registers every control-plane route.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{router: chi.NewRouter(), deps: deps}

	s.router.Use(requestID)
	s.router.Use(requestLogger(deps.Logger))
	s.router.Use(recoverer(deps.Logger))

	s.router.Get("/metrics", promhttp.Handler().ServeHTTP)
	s.router.Get("/sentinel/policies/bundle", s.handlePolicyBundle)
	s.router.Get("/identity/revocation-list", s.handleRevocationList)
	s.router.Post("/ancestor/bulk-record", s.handleBulkRecord)
	s.router.Route("/api/v1/sentinel", func(r chi.Router) {
		r.Post("/evaluate", s.handleEvaluate)
	})
	s.router.Route("/admin", func(r chi.Router) {
		r.Post("/identity/issue", s.handleIssuePassport)
		r.Post("/identity/revoke", s.handleRevokePassport)
		r.Post("/policies/publish", s.handlePublishBundle)
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
