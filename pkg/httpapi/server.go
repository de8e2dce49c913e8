package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Ritinpaul/AgentGovern-OS/pkg/environment"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/ledger"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/passport"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/pipeline"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/policy"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/sync"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/telemetry"
)

var noopTelemetry = &telemetry.Provider{}

// Deps bundles everything the edge gateway's HTTP surface needs. SyncEngine,
// Bundles, LocalLedger, Logger, Telemetry and CORSAllowedOrigins may be left
// unset: the handlers check for nil (Logger falls back to slog.Default,
// Telemetry to a no-op provider). The other fields are required.
type Deps struct {
	Pipeline           *pipeline.Pipeline
	PassportSvc        *passport.Service
	EnvRegistry        *environment.Registry
	SyncEngine         *sync.Engine
	Bundles            *policy.Store
	LocalLedger        *ledger.Local
	GatewayID          string
	Environment        string
	ControlPlaneURL    string
	Logger             *slog.Logger
	CORSAllowedOrigins []string
	Telemetry          *telemetry.Provider
}

// telemetry returns deps.Telemetry, falling back to a disabled no-op
// provider so handlers never need a nil check.
func (d Deps) telemetry() *telemetry.Provider {
	if d.Telemetry == nil {
		return noopTelemetry
	}
	return d.Telemetry
}

// Server is the edge gateway's chi router plus the dependencies its
// handlers close over.
type Server struct {
	router *chi.Mux
	deps   Deps
}

// NewServer builds the router and registers every route in spec §6
// "Network surface (edge gateway)".
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{router: chi.NewRouter(), deps: deps}

	s.router.Use(requestID)
	s.router.Use(requestLogger(deps.Logger))
	s.router.Use(recoverer(deps.Logger))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/status", s.handleStatus)
	s.router.Get("/metrics", promhttp.Handler().ServeHTTP)
	s.router.Post("/authorize", s.handleAuthorize)
	s.router.Post("/heartbeat", s.handleHeartbeat)
	s.router.Post("/sync", s.handleSync)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	GatewayID       string  `json:"gateway_id"`
	Environment     string  `json:"environment"`
	Mode            string  `json:"mode"`
	ControlPlaneURL string  `json:"control_plane_url"`
	LocalLedgerSize int     `json:"local_ledger_size"`
	PolicyCount     int     `json:"policy_count"`
	PolicyVersion   string  `json:"policy_version"`
	LastSyncAt      *string `json:"last_sync_at"`
	Timestamp       string  `json:"timestamp"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ledgerSize := 0
	if s.deps.LocalLedger != nil {
		if n, err := s.deps.LocalLedger.Count(ctx); err == nil {
			ledgerSize = n
		}
	}

	policyCount, policyVersion := 0, ""
	if s.deps.Bundles != nil {
		if b, ok := s.deps.Bundles.Current(); ok {
			policyCount = len(b.Rules)
			policyVersion = b.Version
		}
	}

	mode := "online"
	var lastSyncAt *string
	if s.deps.SyncEngine != nil {
		st := s.deps.SyncEngine.Status()
		mode = string(st.Mode)
		if !st.LastSyncAt.IsZero() {
			formatted := st.LastSyncAt.UTC().Format(time.RFC3339)
			lastSyncAt = &formatted
		}
	}

	Respond(w, http.StatusOK, statusResponse{
		GatewayID:       s.deps.GatewayID,
		Environment:     s.deps.Environment,
		Mode:            mode,
		ControlPlaneURL: s.deps.ControlPlaneURL,
		LocalLedgerSize: ledgerSize,
		PolicyCount:     policyCount,
		PolicyVersion:   policyVersion,
		LastSyncAt:      lastSyncAt,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	})
}

type syncStepResult struct {
	Mode        string `json:"mode"`
	Error       string `json:"error,omitempty"`
	LastSyncErr string `json:"last_sync_err,omitempty"`
}

// handleSync is the admin-triggered sync: it runs one reconciliation tick
// out of band from the periodic loop and reports the resulting status
// (spec §6 "POST /sync — admin trigger, returns per-step outcomes").
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.deps.SyncEngine == nil {
		RespondError(w, http.StatusServiceUnavailable, "sync_unavailable", "sync engine not configured")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	tickErr := s.deps.SyncEngine.Tick(ctx)

	result := syncStepResult{Mode: string(s.deps.SyncEngine.Status().Mode)}
	if tickErr != nil {
		result.Error = tickErr.Error()
	}
	if st := s.deps.SyncEngine.Status(); st.LastSyncErr != "" {
		result.LastSyncErr = st.LastSyncErr
	}

	Respond(w, http.StatusOK, result)
}
