// Package tracker records completed sessions and owns the running bankroll of a trip.
//
// A Tracker is the single writer of its bankroll. It does no locking of its own;
// callers that share one across goroutines must serialize Commit and Correct.
package tracker

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"profit-hopper/internal/model"
)

// ErrSessionNotFound is returned by Correct when the referenced session is unknown.
var ErrSessionNotFound = errors.New("session not found")

// DefaultSlack is the tolerated overshoot of |delta| over the planned budget.
const DefaultSlack = 0.10

// Tracker holds the append-only session history and the bankroll derived from it.
type Tracker struct {
	tripID   int64
	bankroll decimal.Decimal
	sessions []model.Session
	byID     map[uuid.UUID]int
	slack    decimal.Decimal
	now      func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithSlack sets the plan-exceeded tolerance as a fraction of the budget.
func WithSlack(slack float64) Option {
	return func(t *Tracker) {
		t.slack = decimal.NewFromFloat(slack)
	}
}

// WithClock replaces the completion clock.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithTripID stamps every new session with the trip id.
func WithTripID(id int64) Option {
	return func(t *Tracker) {
		t.tripID = id
	}
}

// WithHistory rehydrates a tracker from persisted sessions, oldest first.
// The bankroll becomes the ending bankroll of the last session.
func WithHistory(sessions []model.Session) Option {
	return func(t *Tracker) {
		for _, s := range sessions {
			t.byID[s.ID] = len(t.sessions)
			t.sessions = append(t.sessions, s)
		}
		if n := len(t.sessions); n > 0 {
			t.bankroll = t.sessions[n-1].EndingBankroll
		}
	}
}

// New creates a tracker starting from the given bankroll.
func New(initial decimal.Decimal, opts ...Option) *Tracker {
	t := &Tracker{
		bankroll: initial,
		byID:     make(map[uuid.UUID]int),
		slack:    decimal.NewFromFloat(DefaultSlack),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type commitOptions struct {
	duration   time.Duration
	betsPlaced int
	notes      string
}

// CommitOption adds optional details to a committed session.
type CommitOption func(*commitOptions)

// WithDuration records how long the session lasted.
func WithDuration(d time.Duration) CommitOption {
	return func(o *commitOptions) { o.duration = d }
}

// WithBetsPlaced records the number of wagers made.
func WithBetsPlaced(n int) CommitOption {
	return func(o *commitOptions) { o.betsPlaced = n }
}

// WithNotes attaches free-form notes.
func WithNotes(notes string) CommitOption {
	return func(o *commitOptions) { o.notes = notes }
}

// Commit records a played session with net result delta and updates the bankroll.
// A result that would take the bankroll below zero clamps it to zero and marks the
// session bankrupt. A result whose magnitude exceeds the budget by more than the
// slack marks the session planExceeded. Neither is an error. A plan whose budget
// is above the current bankroll was made against money the trip no longer has
// and is rejected with model.ErrInvariantViolation.
func (t *Tracker) Commit(plan model.SessionPlan, delta decimal.Decimal, opts ...CommitOption) (model.Session, error) {
	if plan.Budget.IsNegative() {
		return model.Session{}, violation("plan for %s has negative budget %s", plan.GameID, plan.Budget)
	}
	if plan.StopLoss.GreaterThan(plan.Budget) {
		return model.Session{}, violation("plan for %s has stop loss %s above budget %s", plan.GameID, plan.StopLoss, plan.Budget)
	}
	if plan.Budget.GreaterThan(t.bankroll) {
		return model.Session{}, violation("plan for %s has budget %s above bankroll %s", plan.GameID, plan.Budget, t.bankroll)
	}

	var o commitOptions
	for _, opt := range opts {
		opt(&o)
	}

	s := t.append(model.SessionPlay, plan.GameID, plan, delta)
	s.Duration = o.duration
	s.BetsPlaced = o.betsPlaced
	s.Notes = o.notes
	s.PlanExceeded = delta.Abs().GreaterThan(plan.Budget.Mul(decimal.NewFromInt(1).Add(t.slack)))
	t.sessions[len(t.sessions)-1] = s

	log.Debug().
		Int64("trip_id", t.tripID).
		Str("game_id", plan.GameID).
		Str("delta", delta.String()).
		Str("bankroll", s.EndingBankroll.String()).
		Bool("bankrupt", s.Bankrupt).
		Bool("plan_exceeded", s.PlanExceeded).
		Msg("Session committed")
	return s, nil
}

// Correct appends a compensating entry against an earlier session. The original
// session is left untouched; delta is applied to the current bankroll.
func (t *Tracker) Correct(sessionID uuid.UUID, delta decimal.Decimal, notes string) (model.Session, error) {
	i, ok := t.byID[sessionID]
	if !ok {
		return model.Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	orig := t.sessions[i]

	s := t.append(model.SessionCorrection, orig.GameID, orig.Plan, delta)
	s.CorrectsID = &orig.ID
	s.Notes = notes
	t.sessions[len(t.sessions)-1] = s

	log.Debug().
		Int64("trip_id", t.tripID).
		Str("corrects", orig.ID.String()).
		Str("delta", delta.String()).
		Msg("Correction committed")
	return s, nil
}

func (t *Tracker) append(kind model.SessionKind, gameID string, plan model.SessionPlan, delta decimal.Decimal) model.Session {
	start := t.bankroll
	end := start.Add(delta)
	bankrupt := end.IsNegative()
	if bankrupt {
		end = decimal.Zero
	}

	completed := t.now()
	var seq int64 = 1
	if n := len(t.sessions); n > 0 {
		last := t.sessions[n-1]
		seq = last.Seq + 1
		if completed.Before(last.CompletedAt) {
			completed = last.CompletedAt
		}
	}

	s := model.Session{
		ID:               uuid.New(),
		TripID:           t.tripID,
		Seq:              seq,
		Kind:             kind,
		GameID:           gameID,
		Plan:             plan,
		StartingBankroll: start,
		EndingBankroll:   end,
		OutcomeDelta:     delta,
		Bankrupt:         bankrupt,
		CompletedAt:      completed,
	}
	t.byID[s.ID] = len(t.sessions)
	t.sessions = append(t.sessions, s)
	t.bankroll = end
	return s
}

// Bankroll returns the current bankroll.
func (t *Tracker) Bankroll() decimal.Decimal {
	return t.bankroll
}

// Len returns the number of recorded sessions, corrections included.
func (t *Tracker) Len() int {
	return len(t.sessions)
}

// History returns the sessions in commit order. Each range starts from the first
// session again and sees the history as it was when the range began.
func (t *Tracker) History() iter.Seq[model.Session] {
	return func(yield func(model.Session) bool) {
		sessions := t.sessions[:len(t.sessions):len(t.sessions)]
		for _, s := range sessions {
			if !yield(s) {
				return
			}
		}
	}
}

// Sessions returns a copy of the history.
func (t *Tracker) Sessions() []model.Session {
	return slices.Clone(t.sessions)
}

// RecentResults returns the deltas of the last n played sessions, oldest first.
func (t *Tracker) RecentResults(n int) []decimal.Decimal {
	var out []decimal.Decimal
	for i := len(t.sessions) - 1; i >= 0 && len(out) < n; i-- {
		if t.sessions[i].Kind == model.SessionPlay {
			out = append(out, t.sessions[i].OutcomeDelta)
		}
	}
	slices.Reverse(out)
	return out
}

func violation(format string, args ...any) error {
	err := fmt.Errorf("%w: "+format, append([]any{model.ErrInvariantViolation}, args...)...)
	log.Error().Err(err).Msg("Commit rejected plan")
	return err
}
