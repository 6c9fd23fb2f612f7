// Package analytics rolls a session history up into trip statistics.
package analytics

import (
	"iter"
	"maps"
	"slices"

	"github.com/shopspring/decimal"

	"profit-hopper/internal/model"
)

// Analyzer summarizes session histories. It holds only configuration.
type Analyzer struct {
	threshold float64
}

// New creates an analyzer. Sessions on games whose advantage score is strictly
// above threshold count toward the advantage-play yield.
func New(threshold float64) *Analyzer {
	return &Analyzer{threshold: threshold}
}

// Summarize computes the summary of sessions in the order given. It has no side
// effects; the same input always yields the same summary.
func (a *Analyzer) Summarize(sessions iter.Seq[model.Session]) model.TripSummary {
	sum := model.TripSummary{
		GrowthCurve: []decimal.Decimal{},
		PerGame:     []model.GamePerformance{},
	}

	perGame := make(map[string]*model.GamePerformance)
	var (
		played  int
		wins    int
		playNet decimal.Decimal
		peak    decimal.Decimal
		started bool
	)

	for s := range sessions {
		if !started {
			sum.StartingBankroll = s.StartingBankroll
			peak = s.StartingBankroll
			started = true
		}
		sum.SessionCount++
		sum.EndingBankroll = s.EndingBankroll
		sum.GrowthCurve = append(sum.GrowthCurve, s.EndingBankroll)

		peak = decimal.Max(peak, s.EndingBankroll)
		sum.MaxDrawdown = decimal.Max(sum.MaxDrawdown, peak.Sub(s.EndingBankroll))

		g, ok := perGame[s.GameID]
		if !ok {
			g = &model.GamePerformance{GameID: s.GameID}
			perGame[s.GameID] = g
		}
		g.Net = g.Net.Add(s.OutcomeDelta)

		advantage := s.Plan.AdvantageScore > a.threshold
		if advantage {
			sum.AdvantageNet = sum.AdvantageNet.Add(s.OutcomeDelta)
		}

		if s.Bankrupt {
			sum.BankruptCount++
		}
		if s.Kind == model.SessionCorrection {
			continue
		}

		played++
		playNet = playNet.Add(s.OutcomeDelta)
		g.Sessions++
		g.Budgeted = g.Budgeted.Add(s.Plan.Budget)
		sum.TotalBudgeted = sum.TotalBudgeted.Add(s.Plan.Budget)
		if s.OutcomeDelta.IsPositive() {
			g.Wins++
			wins++
		}
		if advantage {
			sum.AdvantageWagered = sum.AdvantageWagered.Add(s.Plan.Budget)
		}
		if s.PlanExceeded {
			sum.PlanExceededCount++
		}
	}

	sum.NetGrowth = sum.EndingBankroll.Sub(sum.StartingBankroll)
	sum.AdvantageYield = ratio(sum.AdvantageNet, sum.AdvantageWagered)
	sum.ROI = ratio(sum.NetGrowth, sum.TotalBudgeted)
	if played > 0 {
		sum.WinRate = float64(wins) / float64(played)
		sum.AverageDelta = playNet.Div(decimal.NewFromInt(int64(played))).Round(2)
	}

	for _, id := range slices.Sorted(maps.Keys(perGame)) {
		g := perGame[id]
		g.ROI = ratio(g.Net, g.Budgeted)
		sum.PerGame = append(sum.PerGame, *g)
	}
	return sum
}

// Performance indexes the per-game figures of a summary by game id, in the shape
// the ranking engine accepts as history.
func Performance(sum model.TripSummary) map[string]model.GamePerformance {
	out := make(map[string]model.GamePerformance, len(sum.PerGame))
	for _, g := range sum.PerGame {
		out[g.GameID] = g
	}
	return out
}

func ratio(num, den decimal.Decimal) float64 {
	if !den.IsPositive() {
		return 0
	}
	return num.Div(den).InexactFloat64()
}
