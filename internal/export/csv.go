// Package export renders session history and trip summaries as CSV reports.
// Column sets are fixed; every row of a report has the same shape.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"iter"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"profit-hopper/internal/model"
)

// SessionColumns is the header of the session history report.
var SessionColumns = []string{
	"seq", "id", "kind", "corrects_id", "completed_at", "game_id", "tolerance", "volatility",
	"advantage_score", "budget", "max_bet", "stop_loss", "stop_win", "starting_bankroll",
	"ending_bankroll", "outcome_delta", "duration_minutes", "bets_placed", "bankrupt",
	"plan_exceeded", "notes",
}

// PerGameColumns is the header of the per-game report.
var PerGameColumns = []string{"game_id", "sessions", "wins", "net", "budgeted", "roi"}

// SummaryColumns is the header of the summary report.
var SummaryColumns = []string{"metric", "value"}

// GameColumns is the header of the catalog report.
var GameColumns = []string{
	"id", "name", "type", "rtp", "volatility", "advantage_score", "advantage", "min_bet", "max_bet",
	"bonus_frequency", "tips",
}

// WriteGames writes one row per catalog entry.
func WriteGames(w io.Writer, games iter.Seq[model.Game]) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(GameColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for g := range games {
		row := []string{
			g.ID,
			g.Name,
			g.Type,
			ratio(g.RTP),
			string(g.Volatility),
			strconv.FormatFloat(g.AdvantageScore, 'f', -1, 64),
			model.AdvantageLabel(g.AdvantageScore),
			money(g.MinBet),
			money(g.MaxBet),
			ratio(g.BonusFrequency),
			g.Tips,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write game %s: %w", g.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSessions writes one row per session.
func WriteSessions(w io.Writer, sessions iter.Seq[model.Session]) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SessionColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for s := range sessions {
		corrects := ""
		if s.CorrectsID != nil {
			corrects = s.CorrectsID.String()
		}
		stopWin := ""
		if s.Plan.StopWin != nil {
			stopWin = money(*s.Plan.StopWin)
		}

		row := []string{
			strconv.FormatInt(s.Seq, 10),
			s.ID.String(),
			string(s.Kind),
			corrects,
			s.CompletedAt.UTC().Format(time.RFC3339),
			s.GameID,
			string(s.Plan.Tolerance),
			string(s.Plan.Volatility),
			strconv.FormatFloat(s.Plan.AdvantageScore, 'f', -1, 64),
			money(s.Plan.Budget),
			money(s.Plan.MaxBet),
			money(s.Plan.StopLoss),
			stopWin,
			money(s.StartingBankroll),
			money(s.EndingBankroll),
			money(s.OutcomeDelta),
			strconv.FormatFloat(s.Duration.Minutes(), 'f', 1, 64),
			strconv.Itoa(s.BetsPlaced),
			strconv.FormatBool(s.Bankrupt),
			strconv.FormatBool(s.PlanExceeded),
			s.Notes,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write session %d: %w", s.Seq, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WritePerGame writes the per-game roll-up of a summary.
func WritePerGame(w io.Writer, sum model.TripSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(PerGameColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, g := range sum.PerGame {
		row := []string{
			g.GameID,
			strconv.Itoa(g.Sessions),
			strconv.Itoa(g.Wins),
			money(g.Net),
			money(g.Budgeted),
			ratio(g.ROI),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write game %s: %w", g.GameID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummary writes the trip-level figures as metric/value pairs.
func WriteSummary(w io.Writer, sum model.TripSummary) error {
	rows := [][]string{
		SummaryColumns,
		{"session_count", strconv.Itoa(sum.SessionCount)},
		{"starting_bankroll", money(sum.StartingBankroll)},
		{"ending_bankroll", money(sum.EndingBankroll)},
		{"net_growth", money(sum.NetGrowth)},
		{"total_budgeted", money(sum.TotalBudgeted)},
		{"roi", ratio(sum.ROI)},
		{"win_rate", ratio(sum.WinRate)},
		{"average_delta", money(sum.AverageDelta)},
		{"max_drawdown", money(sum.MaxDrawdown)},
		{"advantage_net", money(sum.AdvantageNet)},
		{"advantage_wagered", money(sum.AdvantageWagered)},
		{"advantage_yield", ratio(sum.AdvantageYield)},
		{"bankrupt_sessions", strconv.Itoa(sum.BankruptCount)},
		{"plan_exceeded_sessions", strconv.Itoa(sum.PlanExceededCount)},
	}

	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func ratio(f float64) string {
	return strconv.FormatFloat(f, 'f', 4, 64)
}
