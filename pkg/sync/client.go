package sync

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
	"strconv"
	"time"

	"github.com/Ritinpaul/AgentGovern-OS/pkg/ledger"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/policy"
)

// ControlPlaneClient talks to the cloud control-plane HTTP surface (spec
// §6 "Network surface (control plane)"). One instance implements
// PolicyPuller, RevocationPuller, and LedgerPusher so the sync engine only
// needs a single base URL and http.Client.
type ControlPlaneClient struct {
	baseURL   string
	gatewayID string
	http      *http.Client
}

func NewControlPlaneClient(baseURL, gatewayID string) *ControlPlaneClient {
	return &ControlPlaneClient{
		baseURL:   baseURL,
		gatewayID: gatewayID,
		http:      &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *ControlPlaneClient) do(req *http.Request) (*http.Response, error) {
	var traceBytes [16]byte
	traceID := ""
	if _, err := rand.Read(traceBytes[:]); err == nil {
		traceID = hex.EncodeToString(traceBytes[:])
	}
	if traceID != "" {
		req.Header.Set("traceparent", fmt.Sprintf("00-%s-0000000000000001-01", traceID))
	}
	req.Header.Set("X-Gateway-ID", c.gatewayID)
	return c.http.Do(req)
}

// PullPolicies implements PolicyPuller via GET /sentinel/policies/bundle?env=.
func (c *ControlPlaneClient) PullPolicies(ctx context.Context, env string) (*policy.Bundle, error) {
	u := fmt.Sprintf("%s/sentinel/policies/bundle?env=%s", c.baseURL, url.QueryEscape(env))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("sync: build policies request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("sync: pull policies: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("sync: pull policies: status %d: %s", resp.StatusCode, body)
	}

	var bundle policy.Bundle
	if err := json.NewDecoder(resp.Body).Decode(&bundle); err != nil {
		return nil, fmt.Errorf("sync: decode policy bundle: %w", err)
	}
	return &bundle, nil
}

type revocationListResponse struct {
	SnapshotID   uint64   `json:"snapshot_id"`
	RevokedJTIs  []string `json:"revoked_jtis"`
}

// PullRevocations implements RevocationPuller via
// GET /identity/revocation-list?since=. A missing `since` or a server-
// detected gap always yields a full snapshot (spec §4.6 step 2).
func (c *ControlPlaneClient) PullRevocations(ctx context.Context, since uint64) (uint64, []string, bool, error) {
	u := fmt.Sprintf("%s/identity/revocation-list", c.baseURL)
	if since > 0 {
		u += "?since=" + strconv.FormatUint(since, 10)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, nil, false, fmt.Errorf("sync: build revocations request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return 0, nil, false, fmt.Errorf("sync: pull revocations: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		// Server-detected gap: caller must fall back to a full snapshot,
		// which this same endpoint already returns because `since` is
		// dropped from the retried request.
		return c.PullRevocations(ctx, 0)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, nil, false, fmt.Errorf("sync: pull revocations: status %d: %s", resp.StatusCode, body)
	}

	var payload revocationListResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, nil, false, fmt.Errorf("sync: decode revocation list: %w", err)
	}

	full := since == 0
	return payload.SnapshotID, payload.RevokedJTIs, full, nil
}

// PushRecords implements LedgerPusher via POST /ancestor/bulk-record.
func (c *ControlPlaneClient) PushRecords(ctx context.Context, records []ledger.Record) error {
	body, err := json.Marshal(struct {
		GatewayID string          `json:"gateway_id"`
		Records   []ledger.Record `json:"records"`
	}{GatewayID: c.gatewayID, Records: records})
	if err != nil {
		return fmt.Errorf("sync: marshal push batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ancestor/bulk-record", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("sync: build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("sync: push records: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sync: push records: status %d: %s", resp.StatusCode, respBody)
	}
	return nil
}
