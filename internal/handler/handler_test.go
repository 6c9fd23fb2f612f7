package handler

import (
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"

	"profit-hopper/internal/catalog"
	"profit-hopper/internal/engine"
	"profit-hopper/internal/model"
	"profit-hopper/internal/pkg/lock"
	"profit-hopper/internal/planner"
	"profit-hopper/internal/service"
	"profit-hopper/internal/tracker"
)

type fakeContext struct {
	tele.Context
	sender    *tele.User
	args      []string
	callback  *tele.Callback
	replies   []string
	markups   int
	responses []string
}

func (c *fakeContext) Sender() *tele.User { return c.sender }
func (c *fakeContext) Args() []string     { return c.args }
func (c *fakeContext) Text() string       { return "" }

func (c *fakeContext) Callback() *tele.Callback { return c.callback }

func (c *fakeContext) Reply(what interface{}, opts ...interface{}) error {
	c.replies = append(c.replies, what.(string))
	for _, o := range opts {
		if _, ok := o.(*tele.ReplyMarkup); ok {
			c.markups++
		}
	}
	return nil
}

func (c *fakeContext) Respond(resp ...*tele.CallbackResponse) error {
	for _, r := range resp {
		c.responses = append(c.responses, r.Text)
	}
	return nil
}

func (c *fakeContext) last() string {
	if len(c.replies) == 0 {
		return ""
	}
	return c.replies[len(c.replies)-1]
}

func newCtx(args ...string) *fakeContext {
	return &fakeContext{sender: &tele.User{ID: 42}, args: args}
}

var slots = model.Game{
	ID: "buffalo", Name: "Buffalo", Type: "slot", RTP: 0.94,
	Volatility: model.VolatilityHigh, AdvantageScore: 1,
	MinBet: decimal.RequireFromString("0.4"), MaxBet: decimal.NewFromInt(10),
	Tips: "Watch the coin meter",
}

// fakeService records calls and returns canned results.
type fakeService struct {
	trip     *model.Trip
	sessions []model.Session
	err      error

	startedWith  decimal.Decimal
	commitOpts   int
	committed    decimal.Decimal
	correctedID  uuid.UUID
	correctNotes string
	imported     []model.Game
	loaded       bool
}

func (f *fakeService) Games() iter.Seq[model.Game] { return slices.Values([]model.Game{slots}) }

func (f *fakeService) Game(id string) (model.Game, error) {
	if id != slots.ID {
		return model.Game{}, catalog.ErrNotFound
	}
	return slots, nil
}

func (f *fakeService) StartTrip(_ context.Context, userID int64, bankroll decimal.Decimal, profile model.RiskProfile, casino string) (*model.Trip, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.startedWith = bankroll
	return &model.Trip{ID: 9, UserID: userID, Casino: casino, Bankroll: bankroll, Profile: profile, Active: true}, nil
}

func (f *fakeService) StopTrip(context.Context, int64) (*model.Trip, model.TripSummary, error) {
	if f.trip == nil {
		return nil, model.TripSummary{}, service.ErrNoActiveTrip
	}
	return f.trip, model.TripSummary{StartingBankroll: f.trip.StartingBankroll, EndingBankroll: f.trip.Bankroll}, nil
}

func (f *fakeService) ActiveTrip(context.Context, int64) (*model.Trip, error) {
	if f.trip == nil {
		return nil, service.ErrNoActiveTrip
	}
	return f.trip, nil
}

func (f *fakeService) Recommend(context.Context, int64, int) ([]engine.Ranked, error) {
	return []engine.Ranked{{Game: slots, Score: 0.812}}, f.err
}

func (f *fakeService) Plan(_ context.Context, _ int64, gameID string) (model.SessionPlan, error) {
	if f.err != nil {
		return model.SessionPlan{}, f.err
	}
	if _, err := f.Game(gameID); err != nil {
		return model.SessionPlan{}, err
	}
	return model.SessionPlan{
		GameID: gameID, Bankroll: decimal.NewFromInt(1000), Budget: decimal.NewFromInt(20),
		MaxBet: decimal.NewFromInt(3), StopLoss: decimal.NewFromInt(14),
	}, nil
}

func (f *fakeService) Commit(_ context.Context, _ int64, delta decimal.Decimal, opts ...tracker.CommitOption) (model.Session, error) {
	if f.err != nil {
		return model.Session{}, f.err
	}
	f.committed = delta
	f.commitOpts = len(opts)
	return model.Session{Seq: 1, Kind: model.SessionPlay, GameID: slots.ID, OutcomeDelta: delta,
		StartingBankroll: decimal.NewFromInt(1000), EndingBankroll: decimal.NewFromInt(1000).Add(delta)}, nil
}

func (f *fakeService) Correct(_ context.Context, _ int64, sessionID uuid.UUID, delta decimal.Decimal, notes string) (model.Session, error) {
	f.correctedID = sessionID
	f.correctNotes = notes
	return model.Session{Seq: 3, Kind: model.SessionCorrection, GameID: slots.ID, OutcomeDelta: delta}, nil
}

func (f *fakeService) Summary(context.Context, int64) (model.TripSummary, error) {
	return model.TripSummary{SessionCount: 2, NetGrowth: decimal.NewFromInt(15), WinRate: 0.5}, f.err
}

func (f *fakeService) Sessions(context.Context, int64) ([]model.Session, error) {
	return f.sessions, nil
}

func (f *fakeService) Blacklist(_ context.Context, _ int64, gameID string) (*model.Trip, error) {
	if f.trip == nil {
		return nil, service.ErrNoActiveTrip
	}
	f.trip.Excluded = append(f.trip.Excluded, gameID)
	return f.trip, nil
}

func (f *fakeService) Trips(context.Context, int64, int) ([]service.TripOverview, error) {
	if f.trip == nil {
		return nil, nil
	}
	return []service.TripOverview{{Trip: f.trip}}, nil
}

func (f *fakeService) ImportGames(_ context.Context, games []model.Game) (int, error) {
	f.imported = games
	return len(games), f.err
}

func (f *fakeService) LoadCatalog(context.Context) error {
	f.loaded = true
	return nil
}

func activeTrip() *model.Trip {
	return &model.Trip{
		ID: 9, UserID: 42, Active: true,
		StartingBankroll: decimal.NewFromInt(1000), Bankroll: decimal.NewFromInt(1015),
		Profile:   model.RiskProfile{Tolerance: model.Moderate},
		StartedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestTripHandler_HandleTrip(t *testing.T) {
	svc := &fakeService{}
	h := NewTripHandler(svc)

	c := newCtx("1000", "moderate", "4", "Wynn")
	require.NoError(t, h.HandleTrip(c))
	assert.Contains(t, c.last(), "Trip #9 started")
	assert.Contains(t, c.last(), "$1000.00")
	assert.Contains(t, c.last(), "4 sessions")
	assert.True(t, svc.startedWith.Equal(decimal.NewFromInt(1000)))

	c = newCtx("1000")
	require.NoError(t, h.HandleTrip(c))
	assert.Contains(t, c.last(), "Usage: /trip")

	c = newCtx("1000", "yolo")
	require.NoError(t, h.HandleTrip(c))
	assert.Contains(t, c.last(), "❌")

	svc.err = service.ErrTripActive
	c = newCtx("1000", "moderate")
	require.NoError(t, h.HandleTrip(c))
	assert.Contains(t, c.last(), "already have an active trip")
}

func TestTripHandler_NoActiveTrip(t *testing.T) {
	h := NewTripHandler(&fakeService{})
	for name, fn := range map[string]func(tele.Context) error{
		"summary": h.HandleSummary,
		"stop":    h.HandleStop,
	} {
		t.Run(name, func(t *testing.T) {
			c := newCtx()
			require.NoError(t, fn(c))
			assert.Contains(t, c.last(), "No active trip")
		})
	}
}

func TestTripHandler_SummaryStopAndTrips(t *testing.T) {
	svc := &fakeService{trip: activeTrip()}
	h := NewTripHandler(svc)

	c := newCtx()
	require.NoError(t, h.HandleSummary(c))
	assert.Contains(t, c.last(), "Sessions: 2")
	assert.Contains(t, c.last(), "Win rate: 50.0%")

	c = newCtx()
	require.NoError(t, h.HandleTrips(c))
	assert.Contains(t, c.last(), "#9 2026-03-01")
	assert.Contains(t, c.last(), "active")

	c = newCtx()
	require.NoError(t, h.HandleStop(c))
	assert.Contains(t, c.last(), "Trip #9 ended")
	assert.Contains(t, c.last(), "$1000.00 → $1015.00")
}

func TestTripHandler_HandleSkip(t *testing.T) {
	svc := &fakeService{trip: activeTrip()}
	h := NewTripHandler(svc)

	c := newCtx()
	require.NoError(t, h.HandleSkip(c))
	assert.Contains(t, c.last(), "Usage: /skip")

	c = newCtx("keno")
	require.NoError(t, h.HandleSkip(c))
	assert.Contains(t, c.last(), "keno will not be recommended")
	assert.Equal(t, []string{"keno"}, svc.trip.Excluded)
}

func TestSessionHandler_RankAndPlan(t *testing.T) {
	svc := &fakeService{trip: activeTrip()}
	h := NewSessionHandler(svc)

	c := newCtx("3")
	require.NoError(t, h.HandleRank(c))
	assert.Contains(t, c.last(), "moderate player")
	assert.Contains(t, c.last(), "1. Buffalo (buffalo): score 0.812")
	assert.Contains(t, c.last(), "Watch the coin meter")
	assert.Equal(t, 1, c.markups)

	c = newCtx("buffalo")
	require.NoError(t, h.HandlePlan(c))
	assert.Contains(t, c.last(), "Session budget: $20.00")
	assert.Contains(t, c.last(), "Max bet: $3.00 (table minimum $0.40)")
	assert.Contains(t, c.last(), "losing $14.00")

	c = newCtx("roulette")
	require.NoError(t, h.HandlePlan(c))
	assert.Contains(t, c.last(), "Unknown game")
}

func TestSessionHandler_PlanErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"excluded", service.ErrGameExcluded, "blacklisted"},
		{"busy", lock.ErrLockTimeout, "busy"},
		{"insufficient", &planner.InsufficientBankrollError{
			GameID: "buffalo", MaxBet: decimal.RequireFromString("0.25"), MinBet: decimal.RequireFromString("0.4"),
		}, "at most $0.25 per bet but the minimum is $0.40"},
		{"unexpected", errors.New("db down"), "Something went wrong"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSessionHandler(&fakeService{trip: activeTrip(), err: tt.err})
			c := newCtx("buffalo")
			require.NoError(t, h.HandlePlan(c))
			assert.Contains(t, c.last(), tt.want)
		})
	}
}

func TestSessionHandler_HandleResult(t *testing.T) {
	svc := &fakeService{trip: activeTrip()}
	h := NewSessionHandler(svc)

	c := newCtx("-12.5", "bets=40", "min=30", "tight", "machine")
	require.NoError(t, h.HandleResult(c))
	assert.True(t, svc.committed.Equal(decimal.RequireFromString("-12.5")))
	assert.Equal(t, 3, svc.commitOpts)
	assert.Contains(t, c.last(), "Session #1 recorded on buffalo")
	assert.Contains(t, c.last(), "-$12.50")

	svc.err = service.ErrNoPlan
	c = newCtx("+5")
	require.NoError(t, h.HandleResult(c))
	assert.Contains(t, c.last(), "/plan <game> first")

	c = newCtx()
	require.NoError(t, h.HandleResult(c))
	assert.Contains(t, c.last(), "Usage: /result")
}

func TestSessionHandler_HandleCorrect(t *testing.T) {
	id := uuid.New()
	svc := &fakeService{
		trip:     activeTrip(),
		sessions: []model.Session{{ID: uuid.New(), Seq: 1}, {ID: id, Seq: 2}},
	}
	h := NewSessionHandler(svc)

	c := newCtx("#2", "+20", "miscounted", "chips")
	require.NoError(t, h.HandleCorrect(c))
	assert.Equal(t, id, svc.correctedID)
	assert.Equal(t, "miscounted chips", svc.correctNotes)
	assert.Contains(t, c.last(), "Correction #3")

	c = newCtx("7", "+20")
	require.NoError(t, h.HandleCorrect(c))
	assert.Contains(t, c.last(), "Session #7 not found")

	c = newCtx("two", "+20")
	require.NoError(t, h.HandleCorrect(c))
	assert.Contains(t, c.last(), "must be an integer")
}

func TestAdminHandler_HandleImport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "games.csv")
	csv := "Game Name,RTP,Volatility,Advantage Play Potential,Min Bet,Max Bet,Bonus Frequency,Tips\n" +
		"Buffalo,94%,High,1,0.40,10,0.05,Watch the coin meter\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o600))

	svc := &fakeService{}
	h := NewAdminHandler(svc, path)

	c := newCtx()
	require.NoError(t, h.HandleImport(c))
	assert.Contains(t, c.last(), "Imported 1 games")
	assert.True(t, svc.loaded)
	require.Len(t, svc.imported, 1)
	assert.Equal(t, "Buffalo", svc.imported[0].Name)

	c = newCtx(filepath.Join(t.TempDir(), "missing.csv"))
	require.NoError(t, h.HandleImport(c))
	assert.Contains(t, c.last(), "Import failed")

	c = newCtx()
	require.NoError(t, NewAdminHandler(svc, "").HandleImport(c))
	assert.Contains(t, c.last(), "Usage: /import")
}

func TestSessionHandler_HandleCallback(t *testing.T) {
	svc := &fakeService{trip: activeTrip()}
	h := NewSessionHandler(svc)

	c := newCtx()
	c.callback = &tele.Callback{Data: "\f" + CallbackPlan + "buffalo"}
	require.NoError(t, h.HandleCallback(c))
	assert.Contains(t, c.last(), "Session plan: Buffalo")

	c = newCtx()
	c.callback = &tele.Callback{Data: "\f" + CallbackSkip + "buffalo"}
	require.NoError(t, h.HandleCallback(c))
	assert.Empty(t, c.replies)
	assert.Equal(t, []string{"🚫 buffalo skipped for this trip"}, c.responses)
	assert.Equal(t, []string{"buffalo"}, svc.trip.Excluded)

	c = newCtx()
	c.callback = &tele.Callback{Data: "dance:buffalo"}
	require.NoError(t, h.HandleCallback(c))
	assert.Equal(t, []string{"❌ Unknown action"}, c.responses)

	h = NewSessionHandler(&fakeService{})
	c = newCtx()
	c.callback = &tele.Callback{Data: CallbackSkip + "buffalo"}
	require.NoError(t, h.HandleCallback(c))
	assert.Contains(t, c.last(), "No active trip")
}
