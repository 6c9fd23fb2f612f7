package handler

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"profit-hopper/internal/engine"
)

// Callback data prefixes
const (
	CallbackPlan = "plan:" // plan:<game id>
	CallbackSkip = "skip:" // skip:<game id>
)

// rankingKeyboard puts a plan and a skip button under every ranked game.
func rankingKeyboard(ranked []engine.Ranked) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(ranked))
	for _, r := range ranked {
		rows = append(rows, markup.Row(
			markup.Data("📋 "+r.Game.Name, CallbackPlan+r.Game.ID),
			markup.Data("🚫 Skip", CallbackSkip+r.Game.ID),
		))
	}
	markup.Inline(rows...)
	return markup
}

// HandleCallback handles the ranking buttons.
func (h *SessionHandler) HandleCallback(c tele.Context) error {
	ctx := context.Background()
	callback := c.Callback()
	sender := c.Sender()
	if callback == nil || sender == nil {
		return nil
	}

	// Telebot v3 prefixes unique callback data with \f
	data := strings.TrimPrefix(callback.Data, "\f")

	switch {
	case strings.HasPrefix(data, CallbackPlan):
		_ = c.Respond()
		plan, err := h.svc.Plan(ctx, sender.ID, strings.TrimPrefix(data, CallbackPlan))
		if err != nil {
			return replyTripError(c, sender.ID, err, "Failed to plan session")
		}
		game, err := h.svc.Game(plan.GameID)
		if err != nil {
			return replyTripError(c, sender.ID, err, "Failed to load game")
		}
		return c.Reply(formatPlan(plan, game))

	case strings.HasPrefix(data, CallbackSkip):
		gameID := strings.TrimPrefix(data, CallbackSkip)
		if _, err := h.svc.Blacklist(ctx, sender.ID, gameID); err != nil {
			_ = c.Respond()
			return replyTripError(c, sender.ID, err, "Failed to blacklist game")
		}
		return c.Respond(&tele.CallbackResponse{Text: fmt.Sprintf("🚫 %s skipped for this trip", gameID)})
	}

	return c.Respond(&tele.CallbackResponse{Text: "❌ Unknown action"})
}
