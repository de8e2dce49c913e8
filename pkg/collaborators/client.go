package collaborators

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/Ritinpaul/AgentGovern-OS/pkg/enforcer"
)

// HTTPAgentOrchestrator implements AgentOrchestrator against an external
// agent-orchestration service over HTTP, with the same W3C trace-context
// injection and capped-retry resilience shape the control-plane client
// uses (spec §1 "agent orchestration" — the core treats it purely as a
// network collaborator, never as in-process state).
type HTTPAgentOrchestrator struct {
	baseURL string
	http    *http.Client
	retries uint
}

// NewHTTPAgentOrchestrator points at baseURL, e.g. the agent orchestration
// service's "/agents" API root.
func NewHTTPAgentOrchestrator(baseURL string) *HTTPAgentOrchestrator {
	return &HTTPAgentOrchestrator{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
		retries: 2,
	}
}

type historyResponse struct {
	HistoryCount      int     `json:"history_count"`
	HistoricalSuccess float64 `json:"historical_success"`
}

// History implements AgentOrchestrator.
func (c *HTTPAgentOrchestrator) History(ctx context.Context, agentID string) (int, float64, error) {
	var out historyResponse
	if err := c.getJSON(ctx, "/"+url.PathEscape(agentID)+"/history", &out); err != nil {
		return 0, 0, err
	}
	return out.HistoryCount, out.HistoricalSuccess, nil
}

type statusResponse struct {
	Status string `json:"status"`
}

// AgentStatus implements AgentOrchestrator.
func (c *HTTPAgentOrchestrator) AgentStatus(ctx context.Context, agentID string) (enforcer.AgentStatus, error) {
	var out statusResponse
	if err := c.getJSON(ctx, "/"+url.PathEscape(agentID)+"/status", &out); err != nil {
		return "", err
	}
	return enforcer.AgentStatus(out.Status), nil
}

func (c *HTTPAgentOrchestrator) getJSON(ctx context.Context, path string, out any) error {
	operation := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("collaborators: build request: %w", err))
		}
		injectTraceContext(req)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err // transient: network error, retry
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return nil, fmt.Errorf("collaborators: orchestrator status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, backoff.Permanent(fmt.Errorf("collaborators: orchestrator status %d: %s", resp.StatusCode, body))
		}
		return resp, nil
	}

	resp, err := backoff.Retry(ctx, operation, backoff.WithMaxTries(c.retries+1))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("collaborators: decode response: %w", err)
	}
	return nil
}

func injectTraceContext(req *http.Request) {
	var traceBytes [16]byte
	if _, err := rand.Read(traceBytes[:]); err != nil {
		return
	}
	req.Header.Set("traceparent", fmt.Sprintf("00-%s-0000000000000001-01", hex.EncodeToString(traceBytes[:])))
}

// HTTPTrustScoreUpdater implements TrustScoreUpdater against an external
// trust-scoring service.
type HTTPTrustScoreUpdater struct {
	baseURL string
	http    *http.Client
}

func NewHTTPTrustScoreUpdater(baseURL string) *HTTPTrustScoreUpdater {
	return &HTTPTrustScoreUpdater{baseURL: baseURL, http: &http.Client{Timeout: 5 * time.Second}}
}

// RecordOutcome implements TrustScoreUpdater.
func (c *HTTPTrustScoreUpdater) RecordOutcome(ctx context.Context, agentID string, verdict string, predictedTrustDelta float64) error {
	body, err := json.Marshal(struct {
		AgentID             string  `json:"agent_id"`
		Verdict             string  `json:"verdict"`
		PredictedTrustDelta float64 `json:"predicted_trust_delta"`
	}{agentID, verdict, predictedTrustDelta})
	if err != nil {
		return fmt.Errorf("collaborators: marshal outcome: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/outcomes", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("collaborators: build outcome request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	injectTraceContext(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("collaborators: record outcome: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("collaborators: record outcome: status %d: %s", resp.StatusCode, respBody)
	}
	return nil
}
