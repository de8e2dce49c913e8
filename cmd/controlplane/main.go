// Command controlplane runs the cloud control plane (spec §3 "a thin cloud
// control plane issues cryptographic identity tokens, publishes signed
// policy bundles, and owns the master ledger"). It serves the network
// surface edge gateways sync against, plus admin routes to mint passports
// and publish bundles.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ritinpaul/AgentGovern-OS/pkg/config"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/cpapi"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/ledger"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/passport"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/policy"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/revocation"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/telemetry"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	os.Exit(run())
}

// Exit codes mirror the gateway's own (spec §6): 0 clean shutdown, 1
// configuration error, 2 irrecoverable persistence fault.
func run() int {
	logger := slog.Default()

	cfg, err := config.LoadControlPlane()
	if err != nil {
		logger.Error("controlplane: configuration error", "error", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	telemetryProvider, err := telemetry.New(ctx, telemetry.Config{
		ServiceName: "agentgovern-controlplane",
		Environment: "cloud",
		Enabled:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "",
	})
	if err != nil {
		logger.Error("controlplane: telemetry setup failed", "error", err)
		return 1
	}
	defer telemetryProvider.Shutdown(context.Background())
	prometheus.MustRegister(telemetry.Collectors()...)

	master, err := ledger.OpenMaster(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("controlplane: master ledger open failed", "error", err)
		return 2
	}
	defer master.Close()

	keys, err := passport.NewHMACKeySet([]byte(cfg.JWTSecret))
	if err != nil {
		logger.Error("controlplane: keyset init failed", "error", err)
		return 1
	}

	revocations := revocation.New()
	passportSvc := passport.NewService(keys, revocations)

	bundles := policy.NewStore()

	schemas, err := policy.NewParamSchemas()
	if err != nil {
		logger.Error("controlplane: param schema init failed", "error", err)
		return 1
	}
	celEval, err := policy.NewCELEvaluator()
	if err != nil {
		logger.Error("controlplane: CEL evaluator init failed", "error", err)
		return 1
	}
	publisher := policy.NewPublisher(bundles, schemas, celEval)

	if seedPath := os.Getenv("POLICY_SEED_FILE"); seedPath != "" {
		if err := seedBundle(seedPath, publisher); err != nil {
			logger.Warn("controlplane: policy seed failed, starting with no current bundle", "error", err)
		}
	}

	server := cpapi.NewServer(cpapi.Deps{
		Bundles:     bundles,
		Revocations: revocations,
		Master:      master,
		PassportSvc: passportSvc,
		Publisher:   publisher,
		Logger:      logger,
	})

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: server}

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- httpServer.ListenAndServe() }()

	logger.Info("controlplane: ready", "addr", cfg.ListenAddr)

	select {
	case <-ctx.Done():
	case err := <-serveErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("controlplane: http server failed", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("controlplane: http shutdown incomplete", "error", err)
	}

	logger.Info("controlplane: shutdown complete")
	return 0
}

// seedBundle loads a YAML rule document and publishes it as the initial
// bundle, so a fresh control plane doesn't start with no current bundle
// (edge gateways would otherwise 503 on every bundle pull until an operator
// publishes one by hand).
func seedBundle(path string, publisher *policy.Publisher) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	rules, metadata, err := policy.ParseRulesYAML(data)
	if err != nil {
		return err
	}
	_, err = publisher.Publish(rules, metadata)
	return err
}
