// Package engine scores games against a risk profile and ranks them.
//
// A game's score is
//
//	w.RTP·rtp + w.Advantage·advantageScore − w.Volatility·penalty(volatility)
//
// with w taken from the policy weight table for the profile's risk tolerance.
// When trip history is supplied, games with recorded sessions receive an
// additional HistoryWeight·clamp(ROI, −1, 1).
package engine

import (
	"cmp"
	"fmt"
	"iter"
	"math"
	"slices"

	"github.com/rs/zerolog/log"

	"profit-hopper/internal/model"
	"profit-hopper/internal/policy"
)

// Ranked is one entry of a ranking.
type Ranked struct {
	Game  model.Game `json:"game"`
	Score float64    `json:"score"`
}

// Engine ranks games. It holds no state besides the policy and is safe for concurrent use.
type Engine struct {
	policy policy.Policy
}

// New creates an engine over the given policy.
func New(p policy.Policy) *Engine {
	return &Engine{policy: p}
}

type rankOptions struct {
	history  map[string]model.GamePerformance
	excluded map[string]struct{}
}

// RankOption adjusts a single Rank call.
type RankOption func(*rankOptions)

// WithHistory feeds per-game trip performance back into scoring.
func WithHistory(history map[string]model.GamePerformance) RankOption {
	return func(o *rankOptions) {
		o.history = history
	}
}

// WithExcluded drops the given game ids from the ranking.
func WithExcluded(ids ...string) RankOption {
	return func(o *rankOptions) {
		if o.excluded == nil {
			o.excluded = make(map[string]struct{}, len(ids))
		}
		for _, id := range ids {
			o.excluded[id] = struct{}{}
		}
	}
}

// Rank scores every game and returns them best first. Ties are broken by
// advantage score descending, then RTP descending, then id ascending.
// An empty sequence yields an empty, non-nil slice.
func (e *Engine) Rank(games iter.Seq[model.Game], profile model.RiskProfile, opts ...RankOption) ([]Ranked, error) {
	var o rankOptions
	for _, opt := range opts {
		opt(&o)
	}

	ranked := make([]Ranked, 0)
	for g := range games {
		if _, skip := o.excluded[g.ID]; skip {
			continue
		}

		score, err := e.Score(g, profile)
		if err != nil {
			return nil, err
		}
		if perf, ok := o.history[g.ID]; ok && perf.Sessions > 0 {
			score += e.policy.HistoryWeight * clampROI(perf.ROI)
		}
		ranked = append(ranked, Ranked{Game: g, Score: score})
	}

	slices.SortStableFunc(ranked, compareRanked)

	log.Debug().
		Str("tolerance", string(profile.Tolerance)).
		Int("count", len(ranked)).
		Msg("Games ranked")
	return ranked, nil
}

// Score computes the base score of a single game, without history.
func (e *Engine) Score(g model.Game, profile model.RiskProfile) (float64, error) {
	w, ok := e.policy.Weights[profile.Tolerance]
	if !ok {
		return 0, violation("unknown risk tolerance %q", profile.Tolerance)
	}
	penalty, ok := e.policy.VolatilityPenalty[g.Volatility]
	if !ok {
		return 0, violation("game %s: unknown volatility %q", g.ID, g.Volatility)
	}
	if math.IsNaN(g.RTP) || g.RTP < 0 || g.RTP > 1 {
		return 0, violation("game %s: rtp %v outside [0,1]", g.ID, g.RTP)
	}

	score := w.RTP*g.RTP + w.Advantage*g.AdvantageScore - w.Volatility*penalty
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, violation("game %s: score is not finite", g.ID)
	}
	return score, nil
}

func compareRanked(a, b Ranked) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Game.AdvantageScore, a.Game.AdvantageScore); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Game.RTP, a.Game.RTP); c != 0 {
		return c
	}
	return cmp.Compare(a.Game.ID, b.Game.ID)
}

func clampROI(roi float64) float64 {
	if math.IsNaN(roi) {
		return 0
	}
	return math.Max(-1, math.Min(1, roi))
}

func violation(format string, args ...any) error {
	err := fmt.Errorf("%w: "+format, append([]any{model.ErrInvariantViolation}, args...)...)
	log.Error().Err(err).Msg("Ranking rejected input")
	return err
}
