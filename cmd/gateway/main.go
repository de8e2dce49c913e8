// Command gateway runs the edge gateway binary (spec §4 "stateless edge
// gateways deployed near agents"): it verifies passports and enforces the
// most recent locally synced policy bundle, buffering decisions to a local
// ledger the sync engine drains to the control plane.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ritinpaul/AgentGovern-OS/pkg/collaborators"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/config"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/enforcer"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/environment"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/httpapi"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/ledger"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/passport"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/pipeline"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/policy"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/revocation"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/sync"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/telemetry"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

func main() {
	os.Exit(run())
}

// Exit codes (spec §6 "Exit codes (gateway CLI)"): 0 clean shutdown, 1
// configuration error, 2 irrecoverable local persistence fault.
func run() int {
	logger := slog.Default()

	cfg, err := config.LoadGateway()
	if err != nil {
		logger.Error("gateway: configuration error", "error", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	telemetryProvider, err := telemetry.New(ctx, telemetry.Config{
		ServiceName: "agentgovern-gateway",
		Environment: cfg.Environment,
		Enabled:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "",
	})
	if err != nil {
		logger.Error("gateway: telemetry setup failed", "error", err)
		return 1
	}
	defer telemetryProvider.Shutdown(context.Background())
	prometheus.MustRegister(telemetry.Collectors()...)

	localLedger, err := ledger.OpenLocal(ctx, cfg.LocalLedgerPath, cfg.GatewayID)
	if err != nil {
		logger.Error("gateway: local ledger open failed", "error", err)
		return 2
	}
	defer localLedger.Close()

	keys, err := passport.NewHMACKeySet([]byte(cfg.JWTSecret))
	if err != nil {
		logger.Error("gateway: keyset init failed", "error", err)
		return 1
	}

	revocations := revocation.New()
	passportSvc := passport.NewService(keys, revocations)

	bundles := policy.NewStore()

	controlPlaneClient := sync.NewControlPlaneClient(cfg.ControlPlaneURL, cfg.GatewayID)

	syncEngine := sync.NewEngine(sync.Config{
		Environment:  cfg.Environment,
		SyncInterval: cfg.SyncInterval,
		SoftCap:      cfg.LedgerSoftCap,
		HardCap:      cfg.LedgerHardCap,
	}, controlPlaneClient, controlPlaneClient, controlPlaneClient, localLedger, bundles, revocations)

	syncEngine.StartupSync(ctx)

	envRegistry := environment.NewRegistry()

	gatewayPipeline := pipeline.NewPipeline(passportSvc, bundles, localLedger, cfg.GatewayID).
		WithDeadline(cfg.Deadline).
		WithHardCap(cfg.LedgerHardCap).
		WithModeProvider(syncEngine)

	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
		defer redisClient.Close()
		gatewayPipeline = gatewayPipeline.WithSplitDetector(enforcer.NewRedisSplitDetector(redisClient))
	}

	if orchestratorURL := os.Getenv("AGENT_ORCHESTRATOR_URL"); orchestratorURL != "" {
		// collaborators.HTTPAgentOrchestrator satisfies both
		// pipeline.HistoryProvider and pipeline.StatusProvider without an
		// adapter (spec §1 "agent orchestration" is an external
		// collaborator, never in-process state).
		orchestrator := collaborators.NewHTTPAgentOrchestrator(orchestratorURL)
		gatewayPipeline = gatewayPipeline.WithHistoryProvider(orchestrator).WithStatusProvider(orchestrator)
	}

	server := httpapi.NewServer(httpapi.Deps{
		Pipeline:           gatewayPipeline,
		PassportSvc:        passportSvc,
		EnvRegistry:        envRegistry,
		SyncEngine:         syncEngine,
		Bundles:            bundles,
		LocalLedger:        localLedger,
		GatewayID:          cfg.GatewayID,
		Environment:        cfg.Environment,
		ControlPlaneURL:    cfg.ControlPlaneURL,
		Logger:             logger,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Telemetry:          telemetryProvider,
	})

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: server}

	syncErrCh := make(chan error, 1)
	go func() { syncErrCh <- syncEngine.Run(ctx) }()

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- httpServer.ListenAndServe() }()

	logger.Info("gateway: ready", "addr", cfg.ListenAddr, "environment", cfg.Environment)

	select {
	case <-ctx.Done():
	case err := <-serveErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("gateway: http server failed", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("gateway: http shutdown incomplete", "error", err)
	}

	<-syncErrCh
	logger.Info("gateway: shutdown complete")
	return 0
}
