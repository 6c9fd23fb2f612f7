package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"profit-hopper/internal/model"
)

func writePolicy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault_Validates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestDefault_ReturnsFreshMaps(t *testing.T) {
	a := Default()
	a.BudgetFraction[model.Conservative] = 0.9

	b := Default()
	assert.Equal(t, 0.02, b.BudgetFraction[model.Conservative])
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	p, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), p)
}

func TestLoad_OverridesOnTopOfDefaults(t *testing.T) {
	path := writePolicy(t, `
budget_fraction:
  conservative: 0.03
stop_win_multiplier: 2
per_bet_fraction:
  aggressive:
    low: 0.5
    medium: 0.4
    high: 0.3
`)

	p, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.03, p.BudgetFraction[model.Conservative])
	assert.Equal(t, 0.05, p.BudgetFraction[model.Moderate])
	assert.Equal(t, 2.0, p.StopWinMultiplier)
	assert.Equal(t, 0.5, p.PerBetFraction[model.Aggressive][model.VolatilityLow])
	assert.Equal(t, 0.25, p.PerBetFraction[model.Conservative][model.VolatilityLow])
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("HOPPER_SLACK", "0.25")
	path := writePolicy(t, `
plan_slack: ${HOPPER_SLACK}
advantage_threshold: ${HOPPER_UNSET_THRESHOLD:4}
`)

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.25, p.PlanSlack)
	assert.Equal(t, 4.0, p.AdvantageThreshold)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	path := writePolicy(t, "budget_fraction: [1, 2")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Policy)
	}{
		{"missing weights", func(p *Policy) { delete(p.Weights, model.Moderate) }},
		{"negative volatility weight", func(p *Policy) {
			p.Weights[model.Aggressive] = Weights{RTP: 1, Advantage: 0.1, Volatility: -1}
		}},
		{"zero budget fraction", func(p *Policy) { p.BudgetFraction[model.Conservative] = 0 }},
		{"budget fraction above one", func(p *Policy) { p.BudgetFraction[model.Aggressive] = 1.5 }},
		{"stop loss of whole budget", func(p *Policy) { p.StopLossFraction[model.Moderate] = 1 }},
		{"per-bet grows with volatility", func(p *Policy) {
			p.PerBetFraction[model.Moderate][model.VolatilityHigh] = 0.9
		}},
		{"missing per-bet volatility", func(p *Policy) {
			delete(p.PerBetFraction[model.Conservative], model.VolatilityMedium)
		}},
		{"penalty shrinks", func(p *Policy) { p.VolatilityPenalty[model.VolatilityHigh] = 0.1 }},
		{"low penalty not zero", func(p *Policy) { p.VolatilityPenalty[model.VolatilityLow] = 0.05 }},
		{"stop win multiplier too small", func(p *Policy) { p.StopWinMultiplier = 1 }},
		{"negative slack", func(p *Policy) { p.PlanSlack = -0.1 }},
		{"negative history weight", func(p *Policy) { p.HistoryWeight = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Default()
			tt.mutate(&p)
			assert.ErrorIs(t, p.Validate(), ErrInvalidPolicy)
		})
	}
}

func TestLoad_ShippedPolicyMatchesDefaults(t *testing.T) {
	p, err := Load(filepath.Join("..", "..", "config", "policy.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), p)
}
