package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCELEvaluator_CompileAndEvaluate(t *testing.T) {
	ev, err := NewCELEvaluator()
	require.NoError(t, err)

	require.NoError(t, ev.Compile("rule-1", "amount < 1000.0 && tier != 'T4'"))

	pass, err := ev.Evaluate("rule-1", EvalInput{Amount: 500, Tier: "T2"})
	require.NoError(t, err)
	require.True(t, pass)

	fail, err := ev.Evaluate("rule-1", EvalInput{Amount: 500, Tier: "T4"})
	require.NoError(t, err)
	require.False(t, fail)
}

func TestCELEvaluator_RejectsNonBoolExpression(t *testing.T) {
	ev, err := NewCELEvaluator()
	require.NoError(t, err)

	err = ev.Compile("rule-2", "amount + 1.0")
	require.Error(t, err)
}

func TestCELEvaluator_UncompiledRuleFailsClosed(t *testing.T) {
	ev, err := NewCELEvaluator()
	require.NoError(t, err)

	_, err = ev.Evaluate("never-compiled", EvalInput{})
	require.Error(t, err)
}
