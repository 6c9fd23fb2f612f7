// Package policy holds the lookup tables that drive game scoring and bankroll planning.
// The tables are the whole tunable surface of the engine; they are loaded once at startup
// and passed by value to the engine and the planner.
package policy

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"profit-hopper/internal/model"
)

// ErrInvalidPolicy is returned when a policy table is incomplete or inconsistent.
var ErrInvalidPolicy = errors.New("invalid policy")

// Weights are the scoring coefficients for one risk tolerance:
// score = RTP·rtp + Advantage·advantageScore − Volatility·penalty.
type Weights struct {
	RTP        float64 `yaml:"rtp" json:"rtp"`
	Advantage  float64 `yaml:"advantage" json:"advantage"`
	Volatility float64 `yaml:"volatility" json:"volatility"`
}

// Policy is the complete set of tables.
type Policy struct {
	Weights           map[model.RiskTolerance]Weights    `yaml:"weights"`
	VolatilityPenalty map[model.Volatility]float64       `yaml:"volatility_penalty"`
	// HistoryWeight scales the trip-history ROI bonus applied when ranking with history.
	HistoryWeight float64 `yaml:"history_weight"`

	BudgetFraction    map[model.RiskTolerance]float64                      `yaml:"budget_fraction"`
	PerBetFraction    map[model.RiskTolerance]map[model.Volatility]float64 `yaml:"per_bet_fraction"`
	StopLossFraction  map[model.RiskTolerance]float64                      `yaml:"stop_loss_fraction"`
	StopWinMultiplier float64                                              `yaml:"stop_win_multiplier"`

	// PlanSlack is the tolerated overshoot of |delta| over the budget, as a fraction of the budget.
	PlanSlack float64 `yaml:"plan_slack"`
	// AdvantageThreshold selects the sessions counted in the advantage-play yield.
	AdvantageThreshold float64 `yaml:"advantage_threshold"`
}

// Default returns the built-in tables. Each call returns fresh maps.
func Default() Policy {
	return Policy{
		Weights: map[model.RiskTolerance]Weights{
			model.Conservative: {RTP: 1.0, Advantage: 0.01, Volatility: 0.08},
			model.Moderate:     {RTP: 1.0, Advantage: 0.02, Volatility: 0.04},
			model.Aggressive:   {RTP: 1.0, Advantage: 0.04, Volatility: 0.01},
		},
		VolatilityPenalty: map[model.Volatility]float64{
			model.VolatilityLow:    0,
			model.VolatilityMedium: 0.5,
			model.VolatilityHigh:   1.0,
		},
		HistoryWeight: 0.02,
		BudgetFraction: map[model.RiskTolerance]float64{
			model.Conservative: 0.02,
			model.Moderate:     0.05,
			model.Aggressive:   0.10,
		},
		PerBetFraction: map[model.RiskTolerance]map[model.Volatility]float64{
			model.Conservative: {model.VolatilityLow: 0.25, model.VolatilityMedium: 0.20, model.VolatilityHigh: 0.15},
			model.Moderate:     {model.VolatilityLow: 0.30, model.VolatilityMedium: 0.25, model.VolatilityHigh: 0.20},
			model.Aggressive:   {model.VolatilityLow: 0.40, model.VolatilityMedium: 0.35, model.VolatilityHigh: 0.30},
		},
		StopLossFraction: map[model.RiskTolerance]float64{
			model.Conservative: 0.60,
			model.Moderate:     0.70,
			model.Aggressive:   0.80,
		},
		StopWinMultiplier:  1.5,
		PlanSlack:          0.10,
		AdvantageThreshold: 3.0,
	}
}

// Load reads a policy YAML file on top of the defaults and validates the result.
// Keys present in the file replace the default entry; ${VAR} and ${VAR:default}
// are expanded from the environment before parsing.
func Load(path string) (Policy, error) {
	p := Default()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}

	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &p); err != nil {
		return Policy{}, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}

	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate checks that every tolerance and volatility has an entry and that the
// tables are monotonic where the planner and the engine rely on it.
func (p Policy) Validate() error {
	for _, tol := range model.RiskTolerances() {
		w, ok := p.Weights[tol]
		if !ok {
			return fmt.Errorf("%w: missing weights for %s", ErrInvalidPolicy, tol)
		}
		if !finite(w.RTP, w.Advantage, w.Volatility) || w.Volatility < 0 {
			return fmt.Errorf("%w: bad weights for %s", ErrInvalidPolicy, tol)
		}

		bf, ok := p.BudgetFraction[tol]
		if !ok || !finite(bf) || bf <= 0 || bf > 1 {
			return fmt.Errorf("%w: budget fraction for %s must be in (0,1]", ErrInvalidPolicy, tol)
		}

		sl, ok := p.StopLossFraction[tol]
		if !ok || !finite(sl) || sl <= 0 || sl >= 1 {
			return fmt.Errorf("%w: stop-loss fraction for %s must be in (0,1)", ErrInvalidPolicy, tol)
		}

		perBet, ok := p.PerBetFraction[tol]
		if !ok {
			return fmt.Errorf("%w: missing per-bet fractions for %s", ErrInvalidPolicy, tol)
		}
		prev := math.Inf(1)
		for _, vol := range model.Volatilities() {
			f, ok := perBet[vol]
			if !ok || !finite(f) || f <= 0 || f > 1 {
				return fmt.Errorf("%w: per-bet fraction for %s/%s must be in (0,1]", ErrInvalidPolicy, tol, vol)
			}
			if f > prev {
				return fmt.Errorf("%w: per-bet fraction for %s must not grow with volatility", ErrInvalidPolicy, tol)
			}
			prev = f
		}
	}

	prev := math.Inf(-1)
	for _, vol := range model.Volatilities() {
		pen, ok := p.VolatilityPenalty[vol]
		if !ok || !finite(pen) || pen < 0 {
			return fmt.Errorf("%w: missing volatility penalty for %s", ErrInvalidPolicy, vol)
		}
		if pen < prev {
			return fmt.Errorf("%w: volatility penalty must not shrink as volatility grows", ErrInvalidPolicy)
		}
		prev = pen
	}
	if p.VolatilityPenalty[model.VolatilityLow] != 0 {
		return fmt.Errorf("%w: low volatility penalty must be 0", ErrInvalidPolicy)
	}

	if !finite(p.StopWinMultiplier) || p.StopWinMultiplier <= 1 {
		return fmt.Errorf("%w: stop-win multiplier must be greater than 1", ErrInvalidPolicy)
	}
	if !finite(p.PlanSlack) || p.PlanSlack < 0 {
		return fmt.Errorf("%w: plan slack must be non-negative", ErrInvalidPolicy)
	}
	if !finite(p.HistoryWeight, p.AdvantageThreshold) || p.HistoryWeight < 0 {
		return fmt.Errorf("%w: history weight must be non-negative", ErrInvalidPolicy)
	}
	return nil
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}.
func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		parts := strings.SplitN(key, ":", 2)
		value := os.Getenv(parts[0])
		if value == "" && len(parts) == 2 {
			return parts[1]
		}
		return value
	})
}
