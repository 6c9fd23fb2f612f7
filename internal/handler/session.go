package handler

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"

	"profit-hopper/internal/model"
	"profit-hopper/internal/tracker"
)

// SessionHandler handles the per-session commands: browse, rank, plan, record.
type SessionHandler struct {
	svc TripService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(svc TripService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

// HandleGames handles /games.
func (h *SessionHandler) HandleGames(c tele.Context) error {
	return c.Reply(formatGames(slices.Collect(h.svc.Games())))
}

// HandleRank handles /rank [n].
func (h *SessionHandler) HandleRank(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	trip, err := h.svc.ActiveTrip(ctx, sender.ID)
	if err != nil {
		return replyTripError(c, sender.ID, err, "Failed to load trip")
	}
	ranked, err := h.svc.Recommend(ctx, sender.ID, parseLimit(c.Args(), 5, 25))
	if err != nil {
		return replyTripError(c, sender.ID, err, "Failed to rank games")
	}
	if len(ranked) == 0 {
		return c.Reply(formatRanking(ranked, trip.Profile.Tolerance))
	}
	return c.Reply(formatRanking(ranked, trip.Profile.Tolerance), rankingKeyboard(ranked))
}

// HandlePlan handles /plan <game>.
func (h *SessionHandler) HandlePlan(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) != 1 {
		return c.Reply("Usage: /plan <game>")
	}

	plan, err := h.svc.Plan(ctx, sender.ID, args[0])
	if err != nil {
		return replyTripError(c, sender.ID, err, "Failed to plan session")
	}
	game, err := h.svc.Game(plan.GameID)
	if err != nil {
		return replyTripError(c, sender.ID, err, "Failed to load game")
	}
	return c.Reply(formatPlan(plan, game))
}

// HandleResult handles /result <net> [bets=N] [min=N] [notes].
func (h *SessionHandler) HandleResult(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args, err := parseResultArgs(c.Args())
	if err != nil {
		return c.Reply("Usage: /result <net result, e.g. +35 or -20> [bets=N] [min=N] [notes]")
	}

	opts := []tracker.CommitOption{tracker.WithNotes(args.notes)}
	if args.bets > 0 {
		opts = append(opts, tracker.WithBetsPlaced(args.bets))
	}
	if args.duration > 0 {
		opts = append(opts, tracker.WithDuration(args.duration))
	}

	session, err := h.svc.Commit(ctx, sender.ID, args.delta, opts...)
	if err != nil {
		return replyTripError(c, sender.ID, err, "Failed to record session")
	}
	return c.Reply(formatSession(session))
}

// HandleCorrect handles /correct <session#> <net> [notes].
// The entry is appended; the original session stays in the history.
func (h *SessionHandler) HandleCorrect(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 2 {
		return c.Reply("Usage: /correct <session#> <net adjustment> [notes]")
	}
	seq, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil {
		return c.Reply("❌ Session number must be an integer")
	}
	delta, err := parseAmount(args[1])
	if err != nil {
		return c.Reply("❌ " + err.Error())
	}

	trip, err := h.svc.ActiveTrip(ctx, sender.ID)
	if err != nil {
		return replyTripError(c, sender.ID, err, "Failed to load trip")
	}
	history, err := h.svc.Sessions(ctx, trip.ID)
	if err != nil {
		return replyTripError(c, sender.ID, err, "Failed to load sessions")
	}
	i := slices.IndexFunc(history, func(s model.Session) bool { return s.Seq == seq })
	if i < 0 {
		return c.Reply(fmt.Sprintf("❌ Session #%d not found on this trip", seq))
	}

	session, err := h.svc.Correct(ctx, sender.ID, history[i].ID, delta, strings.Join(args[2:], " "))
	if err != nil {
		return replyTripError(c, sender.ID, err, "Failed to correct session")
	}
	return c.Reply(formatSession(session))
}
