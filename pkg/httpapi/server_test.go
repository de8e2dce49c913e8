package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ritinpaul/AgentGovern-OS/pkg/environment"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/ledger"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/passport"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/pipeline"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/policy"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/revocation"
)

type testHarness struct {
	server      *Server
	passportSvc *passport.Service
	revocations *revocation.Registry
	ledger      *ledger.Local
	envRegistry *environment.Registry
}

func newTestHarness(t *testing.T, gatewayEnv string) *testHarness {
	t.Helper()

	rev := revocation.New()
	ks, err := passport.NewHMACKeySet([]byte("httpapi-test-root-secret-012345"))
	require.NoError(t, err)
	svc := passport.NewService(ks, rev)

	store := policy.NewStore()
	_, err = store.CreateBundle([]policy.Rule{
		{ID: "POL-1", Name: "amount cap", Type: policy.RuleAmountLimit, Parameters: policy.Parameters{MaxAmount: 100000}, OnFail: policy.OnFailDeny, Active: true},
	}, nil)
	require.NoError(t, err)

	l, err := ledger.OpenLocal(context.Background(), ":memory:", "gw-test")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	p := pipeline.NewPipeline(svc, store, l, "gw-test")
	envReg := environment.NewRegistry()

	s := NewServer(Deps{
		Pipeline:    p,
		PassportSvc: svc,
		EnvRegistry: envReg,
		Bundles:     store,
		LocalLedger: l,
		GatewayID:   "gw-test",
		Environment: gatewayEnv,
	})

	return &testHarness{server: s, passportSvc: svc, revocations: rev, ledger: l, envRegistry: envReg}
}

func issueToken(t *testing.T, svc *passport.Service, data passport.Data) string {
	t.Helper()
	token, err := svc.Issue(data)
	require.NoError(t, err)
	return token
}

func TestHandleAuthorize_Allow(t *testing.T) {
	h := newTestHarness(t, "edge")
	token := issueToken(t, h.passportSvc, passport.Data{
		AgentID: "agent-1", TrustScore: 0.80, AuthorityLimit: 50000,
		AllowedEnvironments: []passport.Environment{passport.EnvEdge},
	})

	body, _ := json.Marshal(map[string]any{
		"passport_token": token, "action_type": "write", "amount": 45000, "environment": "edge",
	})
	req := httptest.NewRequest(http.MethodPost, "/authorize", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp pipeline.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Authorized)
	require.Equal(t, "allow", resp.Verdict)
}

func TestHandleAuthorize_RevokedPassportReturns401(t *testing.T) {
	h := newTestHarness(t, "edge")
	token := issueToken(t, h.passportSvc, passport.Data{
		AgentID: "agent-1", TrustScore: 0.80, AuthorityLimit: 50000,
		AllowedEnvironments: []passport.Environment{passport.EnvEdge},
	})
	claims, err := h.passportSvc.Verify(token)
	require.NoError(t, err)
	h.revocations.Add(claims.JTI)

	body, _ := json.Marshal(map[string]any{
		"passport_token": token, "action_type": "write", "amount": 100, "environment": "edge",
	})
	req := httptest.NewRequest(http.MethodPost, "/authorize", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	require.Equal(t, "PassportRevoked", errResp.Error)

	unsynced, err := h.ledger.Unsynced(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, unsynced)
}

func TestHandleAuthorize_MissingFieldReturns400(t *testing.T) {
	h := newTestHarness(t, "edge")

	body, _ := json.Marshal(map[string]any{"action_type": "write"})
	req := httptest.NewRequest(http.MethodPost, "/authorize", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHeartbeat_AlertOnForbiddenTransition(t *testing.T) {
	h := newTestHarness(t, "client")
	token := issueToken(t, h.passportSvc, passport.Data{
		AgentID: "agent-1", TrustScore: 0.80, AuthorityLimit: 50000,
		AllowedEnvironments: []passport.Environment{passport.EnvClient, passport.EnvCloud},
	})

	body, _ := json.Marshal(map[string]any{"agent_id": "agent-1", "passport_token": token})

	req := httptest.NewRequest(http.MethodPost, "/heartbeat", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// A second gateway, serving "cloud", shares the same environment
	// registry: heartbeating the same agent through it simulates a
	// client->cloud jump, which is forbidden by default.
	cloudServer := NewServer(Deps{
		Pipeline:    pipelineFor(t, h),
		PassportSvc: h.passportSvc,
		EnvRegistry: h.envRegistry,
		GatewayID:   "gw-test",
		Environment: "cloud",
	})

	req2 := httptest.NewRequest(http.MethodPost, "/heartbeat", bytes.NewReader(body))
	rec2 := httptest.NewRecorder()
	cloudServer.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)

	var resp heartbeatResponse
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &resp))
	require.Equal(t, "alert", resp.Status)
}

// pipelineFor builds a throwaway pipeline sharing the harness's ledger and
// passport service, since the heartbeat handler never touches it.
func pipelineFor(t *testing.T, h *testHarness) *pipeline.Pipeline {
	t.Helper()
	store := policy.NewStore()
	return pipeline.NewPipeline(h.passportSvc, store, h.ledger, "gw-test")
}

func TestHandleHealth(t *testing.T) {
	h := newTestHarness(t, "edge")
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleStatus(t *testing.T) {
	h := newTestHarness(t, "edge")
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "gw-test", resp.GatewayID)
	require.Equal(t, 1, resp.PolicyCount)
}
