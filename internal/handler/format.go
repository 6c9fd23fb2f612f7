package handler

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"profit-hopper/internal/engine"
	"profit-hopper/internal/model"
	"profit-hopper/internal/service"
)

func money(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}

func signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + money(d)
	}
	return money(d)
}

func percent(f float64) string {
	return fmt.Sprintf("%.1f%%", f*100)
}

func formatGames(games []model.Game) string {
	if len(games) == 0 {
		return "📭 The game list is empty"
	}
	var sb strings.Builder
	sb.WriteString("🎰 Games\n━━━━━━━━━━━━━━━\n")
	for _, g := range games {
		fmt.Fprintf(&sb, "%s (%s)\n   RTP %s · %s · advantage %s · bets %s–%s\n",
			g.Name, g.ID, percent(g.RTP), g.Volatility.Label(), model.AdvantageLabel(g.AdvantageScore),
			money(g.MinBet), money(g.MaxBet))
	}
	return sb.String()
}

func formatRanking(ranked []engine.Ranked, tol model.RiskTolerance) string {
	if len(ranked) == 0 {
		return "📭 No games to recommend"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "🏆 Best games for a %s player\n━━━━━━━━━━━━━━━\n", tol)
	for i, r := range ranked {
		fmt.Fprintf(&sb, "%d. %s (%s): score %.3f\n   RTP %s · %s · advantage %s\n",
			i+1, r.Game.Name, r.Game.ID, r.Score, percent(r.Game.RTP), r.Game.Volatility.Label(),
			model.AdvantageLabel(r.Game.AdvantageScore))
		if r.Game.Tips != "" {
			fmt.Fprintf(&sb, "   💡 %s\n", r.Game.Tips)
		}
	}
	return sb.String()
}

func formatPlan(plan model.SessionPlan, game model.Game) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 Session plan: %s\n━━━━━━━━━━━━━━━\n", game.Name)
	fmt.Fprintf(&sb, "💰 Bankroll: %s\n", money(plan.Bankroll))
	fmt.Fprintf(&sb, "🎯 Session budget: %s\n", money(plan.Budget))
	fmt.Fprintf(&sb, "🪙 Max bet: %s (table minimum %s)\n", money(plan.MaxBet), money(game.MinBet))
	fmt.Fprintf(&sb, "🛑 Stop loss: walk away after losing %s\n", money(plan.StopLoss))
	if plan.StopWin != nil {
		fmt.Fprintf(&sb, "🏁 Stop win: cash out once up %s\n", money(*plan.StopWin))
	}
	sb.WriteString("\nReport the result with /result <net> [bets=N] [min=N] [notes]")
	return sb.String()
}

func formatSession(s model.Session) string {
	var sb strings.Builder
	icon := "✅"
	if s.OutcomeDelta.IsNegative() {
		icon = "📉"
	}
	label := "Session"
	if s.Kind == model.SessionCorrection {
		label = "Correction"
	}
	fmt.Fprintf(&sb, "%s %s #%d recorded on %s\n", icon, label, s.Seq, s.GameID)
	fmt.Fprintf(&sb, "Result: %s\n", signed(s.OutcomeDelta))
	fmt.Fprintf(&sb, "Bankroll: %s → %s\n", money(s.StartingBankroll), money(s.EndingBankroll))
	if s.PlanExceeded {
		fmt.Fprintf(&sb, "⚠️ The result moved more than the %s budget allows\n", money(s.Plan.Budget))
	}
	if s.Bankrupt {
		sb.WriteString("💀 The bankroll is exhausted\n")
	}
	return sb.String()
}

func formatSummary(sum model.TripSummary) string {
	var sb strings.Builder
	sb.WriteString("📊 Trip summary\n━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(&sb, "Sessions: %d\n", sum.SessionCount)
	fmt.Fprintf(&sb, "Bankroll: %s → %s (%s)\n",
		money(sum.StartingBankroll), money(sum.EndingBankroll), signed(sum.NetGrowth))
	if sum.SessionCount == 0 {
		return sb.String()
	}
	fmt.Fprintf(&sb, "Win rate: %s · average %s per session\n", percent(sum.WinRate), signed(sum.AverageDelta))
	fmt.Fprintf(&sb, "ROI on budget: %s · max drawdown %s\n", percent(sum.ROI), money(sum.MaxDrawdown))
	if !sum.AdvantageWagered.IsZero() {
		fmt.Fprintf(&sb, "Advantage play: %s on %s budgeted (%s)\n",
			signed(sum.AdvantageNet), money(sum.AdvantageWagered), percent(sum.AdvantageYield))
	}
	if sum.BankruptCount > 0 || sum.PlanExceededCount > 0 {
		fmt.Fprintf(&sb, "Bankrupt sessions: %d · over budget: %d\n", sum.BankruptCount, sum.PlanExceededCount)
	}
	if len(sum.PerGame) > 0 {
		sb.WriteString("\nPer game:\n")
		for _, g := range sum.PerGame {
			fmt.Fprintf(&sb, "• %s: %s over %d session(s), ROI %s\n", g.GameID, signed(g.Net), g.Sessions, percent(g.ROI))
		}
	}
	return sb.String()
}

func formatTrips(trips []service.TripOverview) string {
	if len(trips) == 0 {
		return "📭 No trips yet. Start one with /trip <bankroll> <tolerance>"
	}
	var sb strings.Builder
	sb.WriteString("🧳 Your trips\n━━━━━━━━━━━━━━━\n")
	for _, o := range trips {
		status := "ended"
		if o.Trip.Active {
			status = "active"
		}
		casino := o.Trip.Casino
		if casino == "" {
			casino = "—"
		}
		fmt.Fprintf(&sb, "#%d %s · %s · %s · %d session(s) · %s\n",
			o.Trip.ID, o.Trip.StartedAt.Format("2006-01-02"), casino, status,
			o.Summary.SessionCount, signed(o.Summary.NetGrowth))
	}
	return sb.String()
}
