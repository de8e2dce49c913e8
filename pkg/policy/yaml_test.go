package policy

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseRulesYAML_ValidDocument(t *testing.T) {
	doc := `
metadata:
  owner: platform-governance
rules:
  - id: POL-1
    name: amount cap
    type: amount_limit
    on_fail: deny
    active: true
    environment_scope: [edge]
    parameters:
      max_amount: 100000
  - id: POL-2
    name: authority cap
    type: authority_limit
    on_fail: escalate
    active: true
    environment_scope: [edge, cloud]
`
	rules, metadata, err := ParseRulesYAML([]byte(doc))
	require.NoError(t, err)
	require.Len(t, rules, 2)
	require.Equal(t, "POL-1", rules[0].ID)
	require.Equal(t, RuleAmountLimit, rules[0].Type)
	require.Equal(t, 100000.0, rules[0].Parameters.MaxAmount)
	require.Equal(t, "platform-governance", metadata["owner"])
}

func TestParseRulesYAML_EmptyInput(t *testing.T) {
	_, _, err := ParseRulesYAML([]byte("   \n\t  "))
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "empty"))
}

func TestParseRulesYAML_RejectsRuleWithoutID(t *testing.T) {
	doc := `
rules:
  - name: missing id
    type: amount_limit
`
	_, _, err := ParseRulesYAML([]byte(doc))
	require.Error(t, err)
}

func TestMarshalBundleYAML_RoundTrips(t *testing.T) {
	store := NewStore()
	store.WithClock(fixedClock(time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)))
	bundle, err := store.CreateBundle(sampleRules(), map[string]string{"owner": "platform-governance"})
	require.NoError(t, err)

	out, err := MarshalBundleYAML(bundle)
	require.NoError(t, err)

	rules, metadata, err := ParseRulesYAML(out)
	require.NoError(t, err)
	require.Equal(t, len(bundle.Rules), len(rules))
	require.Equal(t, bundle.Metadata, metadata)
}
