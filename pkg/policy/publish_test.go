package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestPublisher(t *testing.T) *Publisher {
	t.Helper()
	schemas, err := NewParamSchemas()
	require.NoError(t, err)
	celEval, err := NewCELEvaluator()
	require.NoError(t, err)
	return NewPublisher(NewStore(), schemas, celEval)
}

func TestPublish_RejectsUnknownRuleType(t *testing.T) {
	pub := newTestPublisher(t)
	_, err := pub.Publish([]Rule{{ID: "1", Type: "made-up-type"}}, nil)
	require.Error(t, err)
}

func TestPublish_RejectsBadParameters(t *testing.T) {
	pub := newTestPublisher(t)
	_, err := pub.Publish([]Rule{{ID: "1", Type: RuleAmountLimit, Parameters: Parameters{Raw: map[string]any{}}}}, nil)
	require.Error(t, err)
}

func TestPublish_CompilesCELExpression(t *testing.T) {
	pub := newTestPublisher(t)
	bundle, err := pub.Publish([]Rule{
		{ID: "1", Type: RuleCELExpression, Parameters: Parameters{Expression: "amount < 10.0"}, Active: true},
	}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, bundle.Hash)

	pass, err := pub.cel.Evaluate("1", EvalInput{Amount: 5})
	require.NoError(t, err)
	require.True(t, pass)
}

func TestPublish_ValidBundleSucceeds(t *testing.T) {
	pub := newTestPublisher(t)
	bundle, err := pub.Publish(sampleRules(), map[string]string{"author": "ops"})
	require.NoError(t, err)
	require.NotEmpty(t, bundle.Version)
}
