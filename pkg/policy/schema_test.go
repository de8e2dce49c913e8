package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateParameters_AmountLimitValid(t *testing.T) {
	ps, err := NewParamSchemas()
	require.NoError(t, err)

	rule := Rule{ID: "1", Type: RuleAmountLimit, Parameters: Parameters{MaxAmount: 500}}
	require.NoError(t, ps.ValidateParameters(rule))
}

func TestValidateParameters_AmountLimitMissingRequired(t *testing.T) {
	ps, err := NewParamSchemas()
	require.NoError(t, err)

	rule := Rule{ID: "1", Type: RuleAmountLimit, Parameters: Parameters{Raw: map[string]any{}}}
	require.Error(t, ps.ValidateParameters(rule))
}

func TestValidateParameters_UnknownTypeRejected(t *testing.T) {
	ps, err := NewParamSchemas()
	require.NoError(t, err)

	rule := Rule{ID: "1", Type: "not-a-real-type", Parameters: Parameters{}}
	require.Error(t, ps.ValidateParameters(rule))
}

func TestValidateParameters_CELExpressionRequiresExpression(t *testing.T) {
	ps, err := NewParamSchemas()
	require.NoError(t, err)

	rule := Rule{ID: "1", Type: RuleCELExpression, Parameters: Parameters{Raw: map[string]any{}}}
	require.Error(t, ps.ValidateParameters(rule))

	rule2 := Rule{ID: "2", Type: RuleCELExpression, Parameters: Parameters{Expression: "amount < 100.0"}}
	require.NoError(t, ps.ValidateParameters(rule2))
}
