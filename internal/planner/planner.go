// Package planner turns a bankroll, a game and a risk profile into session limits.
package planner

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"profit-hopper/internal/model"
	"profit-hopper/internal/policy"
)

// ErrInsufficientBankroll is returned when the bankroll cannot cover the game's
// minimum bet under the chosen risk profile.
var ErrInsufficientBankroll = errors.New("insufficient bankroll")

// InsufficientBankrollError carries the numbers behind ErrInsufficientBankroll.
type InsufficientBankrollError struct {
	GameID string
	Budget decimal.Decimal
	MaxBet decimal.Decimal
	MinBet decimal.Decimal
}

func (e *InsufficientBankrollError) Error() string {
	return fmt.Sprintf("insufficient bankroll: %s allows a max bet of %s with budget %s, minimum bet is %s",
		e.GameID, e.MaxBet.StringFixed(2), e.Budget.StringFixed(2), e.MinBet.StringFixed(2))
}

func (e *InsufficientBankrollError) Unwrap() error {
	return ErrInsufficientBankroll
}

// Streak factor bounds and the scales the average recent result is measured against.
const (
	minStreakFactor = 0.85
	maxStreakFactor = 1.25
	minStreakLength = 3
	streakWindow    = 5
	winScale        = 20.0
	lossScale       = 40.0
)

// Planner computes SessionPlans. It is stateless apart from its policy and clock.
type Planner struct {
	policy policy.Policy
	now    func() time.Time
}

// Option configures a Planner.
type Option func(*Planner)

// WithClock replaces the clock used to stamp plans.
func WithClock(now func() time.Time) Option {
	return func(p *Planner) {
		p.now = now
	}
}

// New creates a planner over the given policy.
func New(p policy.Policy, opts ...Option) *Planner {
	pl := &Planner{
		policy: p,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(pl)
	}
	return pl
}

type planOptions struct {
	recent []decimal.Decimal
}

// PlanOption adjusts a single Plan call.
type PlanOption func(*planOptions)

// WithRecentResults scales the budget by the streak factor of the given
// session results, oldest first.
func WithRecentResults(deltas []decimal.Decimal) PlanOption {
	return func(o *planOptions) {
		o.recent = deltas
	}
}

// Plan computes the limits for one session on game.
//
// The budget is the tolerance's fraction of the bankroll, capped at an even split
// over the trip's remaining sessions, scaled by the streak factor, clamped to the
// bankroll and rounded down to cents. The max bet is the volatility-dependent
// fraction of the budget, capped at the game's max bet.
func (p *Planner) Plan(bankroll decimal.Decimal, game model.Game, profile model.RiskProfile, opts ...PlanOption) (model.SessionPlan, error) {
	var o planOptions
	for _, opt := range opts {
		opt(&o)
	}

	if bankroll.IsNegative() {
		return model.SessionPlan{}, violation("negative bankroll %s", bankroll)
	}

	tol := profile.Tolerance
	budgetFraction, ok := p.policy.BudgetFraction[tol]
	if !ok {
		return model.SessionPlan{}, violation("unknown risk tolerance %q", tol)
	}
	perBetFraction, ok := p.policy.PerBetFraction[tol][game.Volatility]
	if !ok {
		return model.SessionPlan{}, violation("game %s: no per-bet fraction for %s/%s", game.ID, tol, game.Volatility)
	}
	stopLossFraction := p.policy.StopLossFraction[tol]

	budget := bankroll.Mul(decimal.NewFromFloat(budgetFraction))
	if profile.TripSessions > 0 {
		budget = decimal.Min(budget, bankroll.Div(decimal.NewFromInt(int64(profile.TripSessions))))
	}
	if len(o.recent) > 0 {
		budget = budget.Mul(decimal.NewFromFloat(StreakFactor(o.recent)))
	}
	budget = decimal.Min(budget, bankroll).RoundFloor(2)

	maxBet := decimal.Min(game.MaxBet, budget.Mul(decimal.NewFromFloat(perBetFraction)).RoundFloor(2))
	if maxBet.LessThan(game.MinBet) {
		log.Debug().
			Str("game_id", game.ID).
			Str("tolerance", string(tol)).
			Str("budget", budget.String()).
			Str("max_bet", maxBet.String()).
			Msg("Bankroll below game minimum")
		return model.SessionPlan{}, &InsufficientBankrollError{
			GameID: game.ID,
			Budget: budget,
			MaxBet: maxBet,
			MinBet: game.MinBet,
		}
	}

	plan := model.SessionPlan{
		GameID:         game.ID,
		Tolerance:      tol,
		Volatility:     game.Volatility,
		AdvantageScore: game.AdvantageScore,
		Bankroll:       bankroll,
		Budget:         budget,
		MaxBet:         maxBet,
		StopLoss:       budget.Mul(decimal.NewFromFloat(stopLossFraction)).RoundFloor(2),
		CreatedAt:      p.now(),
	}
	if profile.StopWin {
		stopWin := budget.Mul(decimal.NewFromFloat(p.policy.StopWinMultiplier)).RoundFloor(2)
		plan.StopWin = &stopWin
	}

	if plan.StopLoss.GreaterThan(plan.Budget) || plan.Budget.GreaterThan(bankroll) {
		return model.SessionPlan{}, violation("plan for %s breaks stopLoss <= budget <= bankroll", game.ID)
	}

	log.Debug().
		Str("game_id", game.ID).
		Str("tolerance", string(tol)).
		Str("budget", budget.String()).
		Str("max_bet", maxBet.String()).
		Msg("Session planned")
	return plan, nil
}

// StreakFactor scales budgets after a run of wins or losses. The mean of the last
// five results (at least three are required) moves the factor up to 1.25 after
// wins and down to 0.85 after losses.
func StreakFactor(deltas []decimal.Decimal) float64 {
	if len(deltas) < minStreakLength {
		return 1.0
	}
	last := deltas[max(0, len(deltas)-streakWindow):]
	avg := decimal.Avg(last[0], last[1:]...).InexactFloat64()

	switch {
	case avg > 0:
		return min(maxStreakFactor, 1.0+avg/max(winScale, avg)*(maxStreakFactor-1))
	case avg < 0:
		return max(minStreakFactor, 1.0+avg/max(lossScale, -avg)*(1-minStreakFactor))
	}
	return 1.0
}

func violation(format string, args ...any) error {
	err := fmt.Errorf("%w: "+format, append([]any{model.ErrInvariantViolation}, args...)...)
	log.Error().Err(err).Msg("Planning rejected input")
	return err
}
