// Package model defines the plain data shared by the decision engine and its collaborators.
// Nothing here carries behavior beyond parsing and labels, so every type can be persisted
// or exported as-is.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Game is a catalog entry. Games are immutable once loaded.
type Game struct {
	ID             string          `json:"id" db:"id"`
	Name           string          `json:"name" db:"name"`
	Type           string          `json:"type" db:"type"`
	RTP            float64         `json:"rtp" db:"rtp"`
	Volatility     Volatility      `json:"volatility" db:"volatility"`
	AdvantageScore float64         `json:"advantage_score" db:"advantage_score"`
	MinBet         decimal.Decimal `json:"min_bet" db:"min_bet"`
	MaxBet         decimal.Decimal `json:"max_bet" db:"max_bet"`
	BonusFrequency float64         `json:"bonus_frequency" db:"bonus_frequency"`
	Tips           string          `json:"tips,omitempty" db:"tips"`
}

// RiskProfile holds the player's chosen risk parameters for a planning request.
type RiskProfile struct {
	Tolerance     RiskTolerance `json:"tolerance"`
	SessionLength time.Duration `json:"session_length"`
	TripDuration  time.Duration `json:"trip_duration"`
	// TripSessions is the number of sessions the bankroll has to last; 0 means unbounded.
	TripSessions int  `json:"trip_sessions"`
	StopWin      bool `json:"stop_win"`
}

// SessionPlan is the planner's output for one session.
// The game's volatility and advantage score are copied in so that a recorded
// session can be analyzed without the catalog.
type SessionPlan struct {
	GameID         string           `json:"game_id"`
	Tolerance      RiskTolerance    `json:"tolerance"`
	Volatility     Volatility       `json:"volatility"`
	AdvantageScore float64          `json:"advantage_score"`
	Bankroll       decimal.Decimal  `json:"bankroll"`
	Budget         decimal.Decimal  `json:"budget"`
	MaxBet         decimal.Decimal  `json:"max_bet"`
	StopLoss       decimal.Decimal  `json:"stop_loss"`
	StopWin        *decimal.Decimal `json:"stop_win,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// SessionKind distinguishes played sessions from compensating entries.
type SessionKind string

// Session kinds.
const (
	SessionPlay       SessionKind = "play"
	SessionCorrection SessionKind = "correction"
)

// Session is an append-only record of one completed play (or a correction of one).
type Session struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	TripID           int64           `json:"trip_id" db:"trip_id"`
	Seq              int64           `json:"seq" db:"seq"`
	Kind             SessionKind     `json:"kind" db:"kind"`
	CorrectsID       *uuid.UUID      `json:"corrects_id,omitempty" db:"corrects_id"`
	GameID           string          `json:"game_id" db:"game_id"`
	Plan             SessionPlan     `json:"plan" db:"plan"`
	StartingBankroll decimal.Decimal `json:"starting_bankroll" db:"starting_bankroll"`
	EndingBankroll   decimal.Decimal `json:"ending_bankroll" db:"ending_bankroll"`
	OutcomeDelta     decimal.Decimal `json:"outcome_delta" db:"outcome_delta"`
	Duration         time.Duration   `json:"duration" db:"duration"`
	BetsPlaced       int             `json:"bets_placed" db:"bets_placed"`
	Notes            string          `json:"notes,omitempty" db:"notes"`
	Bankrupt         bool            `json:"bankrupt" db:"bankrupt"`
	PlanExceeded     bool            `json:"plan_exceeded" db:"plan_exceeded"`
	CompletedAt      time.Time       `json:"completed_at" db:"completed_at"`
}

// Trip groups the sessions played against one bankroll.
type Trip struct {
	ID               int64           `json:"id" db:"id"`
	UserID           int64           `json:"user_id" db:"user_id"`
	Casino           string          `json:"casino" db:"casino"`
	StartingBankroll decimal.Decimal `json:"starting_bankroll" db:"starting_bankroll"`
	Bankroll         decimal.Decimal `json:"bankroll" db:"bankroll"`
	Profile          RiskProfile     `json:"profile" db:"profile"`
	Excluded         []string        `json:"excluded" db:"excluded"`
	Active           bool            `json:"active" db:"active"`
	StartedAt        time.Time       `json:"started_at" db:"started_at"`
	EndedAt          *time.Time      `json:"ended_at,omitempty" db:"ended_at"`
}

// GamePerformance is the per-game roll-up inside a TripSummary.
type GamePerformance struct {
	GameID   string          `json:"game_id"`
	Sessions int             `json:"sessions"`
	Wins     int             `json:"wins"`
	Net      decimal.Decimal `json:"net"`
	Budgeted decimal.Decimal `json:"budgeted"`
	ROI      float64         `json:"roi"`
}

// TripSummary is the aggregated view over an ordered session sequence.
type TripSummary struct {
	SessionCount      int               `json:"session_count"`
	StartingBankroll  decimal.Decimal   `json:"starting_bankroll"`
	EndingBankroll    decimal.Decimal   `json:"ending_bankroll"`
	NetGrowth         decimal.Decimal   `json:"net_growth"`
	GrowthCurve       []decimal.Decimal `json:"growth_curve"`
	PerGame           []GamePerformance `json:"per_game"`
	AdvantageNet      decimal.Decimal   `json:"advantage_net"`
	AdvantageWagered  decimal.Decimal   `json:"advantage_wagered"`
	AdvantageYield    float64           `json:"advantage_yield"`
	TotalBudgeted     decimal.Decimal   `json:"total_budgeted"`
	ROI               float64           `json:"roi"`
	WinRate           float64           `json:"win_rate"`
	AverageDelta      decimal.Decimal   `json:"average_delta"`
	MaxDrawdown       decimal.Decimal   `json:"max_drawdown"`
	BankruptCount     int               `json:"bankrupt_count"`
	PlanExceededCount int               `json:"plan_exceeded_count"`
}
