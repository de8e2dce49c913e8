package cpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ritinpaul/AgentGovern-OS/pkg/passport"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/policy"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/revocation"
)

func newTestPassportSvc(t *testing.T) (*passport.Service, *revocation.Registry) {
	t.Helper()
	keys, err := passport.NewHMACKeySet([]byte("test-root-secret-at-least-32-bytes!"))
	require.NoError(t, err)
	rev := revocation.New()
	return passport.NewService(keys, rev), rev
}

func TestHandleIssuePassport_ReturnsSignedToken(t *testing.T) {
	svc, rev := newTestPassportSvc(t)
	s := NewServer(Deps{Bundles: newTestStore(t), Revocations: rev, PassportSvc: svc})

	body, _ := json.Marshal(map[string]any{
		"agent_id":             "agent-1",
		"role":                 "writer",
		"trust_score":          0.8,
		"authority_limit":      10000,
		"allowed_environments": []string{"edge"},
	})
	req := httptest.NewRequest(http.MethodPost, "/admin/identity/issue", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp issuePassportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)

	claims, err := svc.Verify(resp.Token)
	require.NoError(t, err)
	require.Equal(t, "agent-1", claims.Subject)
}

func TestHandleRevokePassport_AddsToRegistry(t *testing.T) {
	svc, rev := newTestPassportSvc(t)
	s := NewServer(Deps{Bundles: newTestStore(t), Revocations: rev, PassportSvc: svc})

	body, _ := json.Marshal(map[string]string{"jti": "jti-123"})
	req := httptest.NewRequest(http.MethodPost, "/admin/identity/revoke", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, rev.Contains("jti-123"))
}

func TestHandlePublishBundle_RejectsUnrecognizedRuleType(t *testing.T) {
	store := policy.NewStore()
	schemas, err := policy.NewParamSchemas()
	require.NoError(t, err)
	celEval, err := policy.NewCELEvaluator()
	require.NoError(t, err)
	publisher := policy.NewPublisher(store, schemas, celEval)

	s := NewServer(Deps{Bundles: store, Revocations: revocation.New(), Publisher: publisher})

	body, _ := json.Marshal(map[string]any{
		"rules": []map[string]any{
			{"id": "POL-1", "name": "bogus", "type": "not_a_real_type", "active": true},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/admin/policies/publish", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePublishBundle_PublishesValidRule(t *testing.T) {
	store := policy.NewStore()
	schemas, err := policy.NewParamSchemas()
	require.NoError(t, err)
	celEval, err := policy.NewCELEvaluator()
	require.NoError(t, err)
	publisher := policy.NewPublisher(store, schemas, celEval)

	s := NewServer(Deps{Bundles: store, Revocations: revocation.New(), Publisher: publisher})

	body, _ := json.Marshal(map[string]any{
		"rules": []map[string]any{
			{"id": "POL-1", "name": "amount cap", "type": "amount_limit", "on_fail": "deny",
				"active": true, "environment_scope": []string{"edge"},
				"parameters": map[string]any{"max_amount": 5000}},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/admin/policies/publish", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var bundle policy.Bundle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bundle))
	require.Len(t, bundle.Rules, 1)
	require.NotEmpty(t, bundle.Hash)
}
