package handler

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v3"

	"profit-hopper/internal/catalog"
	"profit-hopper/internal/engine"
	"profit-hopper/internal/model"
	"profit-hopper/internal/pkg/lock"
	"profit-hopper/internal/planner"
	"profit-hopper/internal/service"
	"profit-hopper/internal/tracker"
)

// TripService is the part of service.TripService the bot drives.
type TripService interface {
	Games() iter.Seq[model.Game]
	Game(id string) (model.Game, error)
	StartTrip(ctx context.Context, userID int64, bankroll decimal.Decimal, profile model.RiskProfile, casino string) (*model.Trip, error)
	StopTrip(ctx context.Context, userID int64) (*model.Trip, model.TripSummary, error)
	ActiveTrip(ctx context.Context, userID int64) (*model.Trip, error)
	Recommend(ctx context.Context, userID int64, limit int) ([]engine.Ranked, error)
	Plan(ctx context.Context, userID int64, gameID string) (model.SessionPlan, error)
	Commit(ctx context.Context, userID int64, delta decimal.Decimal, opts ...tracker.CommitOption) (model.Session, error)
	Correct(ctx context.Context, userID int64, sessionID uuid.UUID, delta decimal.Decimal, notes string) (model.Session, error)
	Summary(ctx context.Context, tripID int64) (model.TripSummary, error)
	Sessions(ctx context.Context, tripID int64) ([]model.Session, error)
	Blacklist(ctx context.Context, userID int64, gameID string) (*model.Trip, error)
	Trips(ctx context.Context, userID int64, limit int) ([]service.TripOverview, error)
}

const helpText = "🎲 Profit Hopper\n\n" +
	"Plan every casino session around your bankroll.\n\n" +
	"Commands:\n" +
	"/trip <bankroll> <tolerance> [sessions] [casino] - start a trip\n" +
	"/games - list games\n" +
	"/rank [n] - best games for your trip\n" +
	"/plan <game> - budget, max bet and stop loss\n" +
	"/result <net> [bets=N] [min=N] [notes] - record the session\n" +
	"/correct <session#> <net> [notes] - fix a recorded result\n" +
	"/skip <game> - never recommend a game again this trip\n" +
	"/summary - trip analytics\n" +
	"/trips - past trips\n" +
	"/stop - end the trip\n\n" +
	"Tolerance is conservative, moderate or aggressive."

// TripHandler handles the trip lifecycle commands.
type TripHandler struct {
	svc TripService
}

// NewTripHandler creates a new TripHandler.
func NewTripHandler(svc TripService) *TripHandler {
	return &TripHandler{svc: svc}
}

// HandleStart handles the /start command.
func (h *TripHandler) HandleStart(c tele.Context) error {
	return c.Reply(helpText)
}

// HandleTrip handles /trip <bankroll> <tolerance> [sessions] [casino].
func (h *TripHandler) HandleTrip(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args, err := parseTripArgs(c.Args())
	if err != nil {
		if errors.Is(err, errUsage) {
			return c.Reply("Usage: /trip <bankroll> <conservative|moderate|aggressive> [sessions] [casino]")
		}
		return c.Reply("❌ " + err.Error())
	}

	trip, err := h.svc.StartTrip(ctx, sender.ID, args.bankroll, args.profile, args.casino)
	switch {
	case errors.Is(err, service.ErrTripActive):
		return c.Reply("❌ You already have an active trip. End it with /stop first")
	case errors.Is(err, service.ErrInvalidBankroll):
		return c.Reply("❌ The bankroll must be positive")
	case err != nil:
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Failed to start trip")
		return c.Reply("❌ Could not start the trip, please try again later")
	}

	sessions := "open-ended"
	if trip.Profile.TripSessions > 0 {
		sessions = fmt.Sprintf("%d sessions", trip.Profile.TripSessions)
	}
	return c.Reply(fmt.Sprintf(
		"🧳 Trip #%d started\n\n"+
			"💰 Bankroll: %s\n"+
			"🎚 Tolerance: %s\n"+
			"📅 Plan: %s\n\n"+
			"Use /rank to see where to play",
		trip.ID, money(trip.Bankroll), trip.Profile.Tolerance, sessions,
	))
}

// HandleStop handles /stop.
func (h *TripHandler) HandleStop(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	trip, sum, err := h.svc.StopTrip(ctx, sender.ID)
	if err != nil {
		return replyTripError(c, sender.ID, err, "Failed to stop trip")
	}
	return c.Reply(fmt.Sprintf("🏁 Trip #%d ended\n\n%s", trip.ID, formatSummary(sum)))
}

// HandleSummary handles /summary.
func (h *TripHandler) HandleSummary(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	trip, err := h.svc.ActiveTrip(ctx, sender.ID)
	if err != nil {
		return replyTripError(c, sender.ID, err, "Failed to load trip")
	}
	sum, err := h.svc.Summary(ctx, trip.ID)
	if err != nil {
		return replyTripError(c, sender.ID, err, "Failed to summarize trip")
	}
	return c.Reply(formatSummary(sum))
}

// HandleTrips handles /trips [n].
func (h *TripHandler) HandleTrips(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	trips, err := h.svc.Trips(ctx, sender.ID, parseLimit(c.Args(), 5, 20))
	if err != nil {
		return replyTripError(c, sender.ID, err, "Failed to list trips")
	}
	return c.Reply(formatTrips(trips))
}

// HandleSkip handles /skip <game>.
func (h *TripHandler) HandleSkip(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) != 1 {
		return c.Reply("Usage: /skip <game>")
	}

	trip, err := h.svc.Blacklist(ctx, sender.ID, args[0])
	if err != nil {
		return replyTripError(c, sender.ID, err, "Failed to blacklist game")
	}
	return c.Reply(fmt.Sprintf("🚫 %s will not be recommended again this trip (%d skipped)", args[0], len(trip.Excluded)))
}

// replyTripError turns service errors into user-facing replies.
func replyTripError(c tele.Context, userID int64, err error, msg string) error {
	var insufficient *planner.InsufficientBankrollError
	switch {
	case errors.Is(err, service.ErrNoActiveTrip):
		return c.Reply("❌ No active trip. Start one with /trip <bankroll> <tolerance>")
	case errors.Is(err, service.ErrNoPlan):
		return c.Reply("❌ No session planned. Use /plan <game> first")
	case errors.Is(err, service.ErrGameExcluded):
		return c.Reply("❌ That game is blacklisted for this trip")
	case errors.Is(err, catalog.ErrNotFound):
		return c.Reply("❌ Unknown game. See /games for the list")
	case errors.Is(err, tracker.ErrSessionNotFound):
		return c.Reply("❌ Unknown session")
	case errors.Is(err, lock.ErrLockTimeout):
		return c.Reply("⏳ Your trip is busy, please try again")
	case errors.As(err, &insufficient):
		return c.Reply(fmt.Sprintf(
			"❌ Bankroll too small for this game: the plan allows at most %s per bet but the minimum is %s",
			money(insufficient.MaxBet), money(insufficient.MinBet)))
	}
	log.Error().Err(err).Int64("user_id", userID).Msg(msg)
	return c.Reply("❌ Something went wrong, please try again later")
}
