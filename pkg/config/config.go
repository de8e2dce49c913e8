// Package config loads gateway and control-plane configuration from
// environment variables (spec §6 "Configuration").
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Gateway holds the edge gateway's configuration.
type Gateway struct {
	ControlPlaneURL     string
	GatewayID           string
	Environment         string
	JWTSecret           string
	SyncInterval        time.Duration
	LedgerSoftCap       int
	LedgerHardCap       int
	Deadline            time.Duration
	ListenAddr          string
	LocalLedgerPath     string
	CORSAllowedOrigins  []string
}

// LoadGateway loads the edge gateway's configuration from the environment,
// returning an error for anything a clean shutdown can't recover from
// (spec §6 "Exit codes (gateway CLI)": 1 is a configuration error).
func LoadGateway() (*Gateway, error) {
	controlPlaneURL := os.Getenv("CONTROL_PLANE_URL")
	if controlPlaneURL == "" {
		return nil, fmt.Errorf("config: CONTROL_PLANE_URL is required")
	}

	gatewayID := os.Getenv("GATEWAY_ID")
	if gatewayID == "" {
		return nil, fmt.Errorf("config: GATEWAY_ID is required")
	}

	environment := os.Getenv("GATEWAY_ENVIRONMENT")
	if environment == "" {
		return nil, fmt.Errorf("config: GATEWAY_ENVIRONMENT is required")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("config: JWT_SECRET is required")
	}

	syncInterval, err := envDurationSeconds("SYNC_INTERVAL_SECONDS", 30*time.Second)
	if err != nil {
		return nil, err
	}

	softCap, err := envInt("LEDGER_SOFT_CAP", 10000)
	if err != nil {
		return nil, err
	}

	hardCap, err := envInt("LEDGER_HARD_CAP", 100000)
	if err != nil {
		return nil, err
	}
	if hardCap < softCap {
		return nil, fmt.Errorf("config: LEDGER_HARD_CAP (%d) must be >= LEDGER_SOFT_CAP (%d)", hardCap, softCap)
	}

	deadline, err := envDurationMillis("DEADLINE_MS", 5*time.Second)
	if err != nil {
		return nil, err
	}

	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	localLedgerPath := os.Getenv("LOCAL_LEDGER_PATH")
	if localLedgerPath == "" {
		localLedgerPath = "./gateway-ledger.db"
	}

	return &Gateway{
		ControlPlaneURL:    controlPlaneURL,
		GatewayID:          gatewayID,
		Environment:        environment,
		JWTSecret:          jwtSecret,
		SyncInterval:       syncInterval,
		LedgerSoftCap:      softCap,
		LedgerHardCap:      hardCap,
		Deadline:           deadline,
		ListenAddr:         listenAddr,
		LocalLedgerPath:    localLedgerPath,
		CORSAllowedOrigins: []string{"*"},
	}, nil
}

// ControlPlane holds the control plane's configuration.
type ControlPlane struct {
	ListenAddr  string
	DatabaseURL string
	JWTSecret   string
}

// LoadControlPlane loads the control plane's configuration from the
// environment.
func LoadControlPlane() (*ControlPlane, error) {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("config: JWT_SECRET is required")
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		databaseURL = "postgres://agentgovern@localhost:5432/agentgovern?sslmode=disable"
	}

	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":9090"
	}

	return &ControlPlane{
		ListenAddr:  listenAddr,
		DatabaseURL: databaseURL,
		JWTSecret:   jwtSecret,
	}, nil
}

func envInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	return v, nil
}

func envDurationSeconds(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer number of seconds: %w", key, err)
	}
	return time.Duration(seconds) * time.Second, nil
}

func envDurationMillis(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	millis, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer number of milliseconds: %w", key, err)
	}
	return time.Duration(millis) * time.Millisecond, nil
}
