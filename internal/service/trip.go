// Package service orchestrates the decision engine around persisted trips:
// rank, plan, commit and summarize, one trip at a time.
package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"profit-hopper/internal/analytics"
	"profit-hopper/internal/cache"
	"profit-hopper/internal/catalog"
	"profit-hopper/internal/engine"
	"profit-hopper/internal/metrics"
	"profit-hopper/internal/model"
	"profit-hopper/internal/pkg/lock"
	"profit-hopper/internal/planner"
	"profit-hopper/internal/policy"
	"profit-hopper/internal/repository"
	"profit-hopper/internal/tracker"
)

// Trip-related errors.
var (
	ErrTripNotFound    = errors.New("trip not found")
	ErrNoActiveTrip    = errors.New("no active trip")
	ErrTripActive      = errors.New("a trip is already active")
	ErrNoPlan          = errors.New("no session planned")
	ErrInvalidBankroll = errors.New("invalid bankroll: must be positive")
	ErrGameExcluded    = errors.New("game is blacklisted for this trip")
)

// GameStore persists the catalog.
type GameStore interface {
	Upsert(ctx context.Context, g model.Game) error
	List(ctx context.Context) ([]model.Game, error)
}

// TripStore persists trips.
type TripStore interface {
	Create(ctx context.Context, trip model.Trip) (*model.Trip, error)
	Get(ctx context.Context, id int64) (*model.Trip, error)
	GetActive(ctx context.Context, userID int64) (*model.Trip, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]*model.Trip, error)
	CountActive(ctx context.Context) (int, error)
	SetBankroll(ctx context.Context, id int64, bankroll decimal.Decimal) error
	SetExcluded(ctx context.Context, id int64, excluded []string) error
	Close(ctx context.Context, id int64, endedAt time.Time) error
}

// SessionStore persists the append-only session history.
type SessionStore interface {
	Append(ctx context.Context, s model.Session) error
	ListByTrip(ctx context.Context, tripID int64) ([]model.Session, error)
}

// SummaryCache holds computed summaries. cache.ErrMiss signals a miss.
type SummaryCache interface {
	Get(ctx context.Context, tripID int64) (model.TripSummary, error)
	Set(ctx context.Context, tripID int64, sum model.TripSummary) error
	Invalidate(ctx context.Context, tripID int64) error
}

// TxManager runs fn in a transaction carried by the context.
type TxManager interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Deps are the collaborators of a TripService. Cache and Metrics are optional.
type Deps struct {
	Policy   policy.Policy
	Games    GameStore
	Trips    TripStore
	Sessions SessionStore
	Tx       TxManager
	Cache    SummaryCache
	Metrics  *metrics.Metrics
}

// Option configures a TripService.
type Option func(*TripService)

// WithClock replaces the service clock.
func WithClock(now func() time.Time) Option {
	return func(s *TripService) { s.now = now }
}

// WithLockTimeout bounds how long an operation waits for a busy trip.
func WithLockTimeout(d time.Duration) Option {
	return func(s *TripService) { s.lockTimeout = d }
}

// WithDefaultSessions sets the planned session count for trips started without one.
func WithDefaultSessions(n int) Option {
	return func(s *TripService) { s.defaultSessions = n }
}

// WithRecentResults sets how many recent results feed the streak factor.
func WithRecentResults(n int) Option {
	return func(s *TripService) { s.recentResults = n }
}

// TripOverview pairs a trip with its summary.
type TripOverview struct {
	Trip    *model.Trip
	Summary model.TripSummary
}

// TripService handles the trip lifecycle.
type TripService struct {
	policy   policy.Policy
	catalog  *catalog.Catalog
	engine   *engine.Engine
	planner  *planner.Planner
	analyzer *analytics.Analyzer

	games    GameStore
	trips    TripStore
	sessions SessionStore
	tx       TxManager
	cache    SummaryCache
	metrics  *metrics.Metrics

	locks *lock.TripLock

	plansMu sync.Mutex
	plans   map[int64]model.SessionPlan

	now             func() time.Time
	lockTimeout     time.Duration
	defaultSessions int
	recentResults   int
}

// NewTripService creates a new TripService instance with an empty catalog.
func NewTripService(deps Deps, opts ...Option) *TripService {
	s := &TripService{
		policy:        deps.Policy,
		catalog:       catalog.New(),
		engine:        engine.New(deps.Policy),
		analyzer:      analytics.New(deps.Policy.AdvantageThreshold),
		games:         deps.Games,
		trips:         deps.Trips,
		sessions:      deps.Sessions,
		tx:            deps.Tx,
		cache:         deps.Cache,
		metrics:       deps.Metrics,
		locks:         lock.NewTripLock(),
		plans:         make(map[int64]model.SessionPlan),
		now:           time.Now,
		lockTimeout:   5 * time.Second,
		recentResults: 5,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.planner = planner.New(deps.Policy, planner.WithClock(s.now))
	return s
}

// ImportGames validates and stores games. Invalid rows are skipped and logged.
// Returns the number of games stored.
func (s *TripService) ImportGames(ctx context.Context, games []model.Game) (int, error) {
	stored := 0
	err := s.tx.Do(ctx, func(ctx context.Context) error {
		for _, g := range games {
			if err := catalog.Validate(g); err != nil {
				log.Warn().Err(err).Str("game_id", g.ID).Msg("Skipping invalid game")
				continue
			}
			if err := s.games.Upsert(ctx, g); err != nil {
				return err
			}
			stored++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to import games: %w", err)
	}
	log.Info().Int("games", stored).Msg("Games imported")
	return stored, nil
}

// LoadCatalog adds every stored game not yet in the catalog.
func (s *TripService) LoadCatalog(ctx context.Context) error {
	games, err := s.games.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	for _, g := range games {
		if _, err := s.catalog.Get(g.ID); err == nil {
			continue
		}
		if err := s.catalog.Add(g); err != nil {
			return fmt.Errorf("failed to load catalog: %w", err)
		}
	}
	log.Info().Int("games", s.catalog.Len()).Msg("Catalog loaded")
	return nil
}

// Games lists the catalog in load order.
func (s *TripService) Games() iter.Seq[model.Game] {
	return s.catalog.List()
}

// Game returns a catalog entry.
func (s *TripService) Game(id string) (model.Game, error) {
	return s.catalog.Get(id)
}

// StartTrip opens a new trip for the user.
func (s *TripService) StartTrip(ctx context.Context, userID int64, bankroll decimal.Decimal, profile model.RiskProfile, casino string) (*model.Trip, error) {
	if !bankroll.IsPositive() {
		return nil, ErrInvalidBankroll
	}
	if !profile.Tolerance.Valid() {
		return nil, fmt.Errorf("unknown risk tolerance %q", profile.Tolerance)
	}
	if profile.TripSessions == 0 {
		profile.TripSessions = s.defaultSessions
	}

	trip, err := s.trips.Create(ctx, model.Trip{
		UserID:           userID,
		Casino:           casino,
		StartingBankroll: bankroll,
		Bankroll:         bankroll,
		Profile:          profile,
		StartedAt:        s.now(),
	})
	if err != nil {
		if errors.Is(err, repository.ErrActiveTripExists) {
			return nil, ErrTripActive
		}
		return nil, fmt.Errorf("failed to start trip: %w", err)
	}

	if s.metrics != nil {
		s.metrics.ActiveTrips.Inc()
	}
	log.Info().
		Int64("trip_id", trip.ID).
		Int64("user_id", userID).
		Str("bankroll", bankroll.String()).
		Str("tolerance", string(profile.Tolerance)).
		Msg("Trip started")
	return trip, nil
}

// SyncActiveTrips sets the active trips gauge from storage, so trips left open
// by an earlier process are counted before the first stop.
func (s *TripService) SyncActiveTrips(ctx context.Context) error {
	if s.metrics == nil {
		return nil
	}
	n, err := s.trips.CountActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to sync active trips: %w", err)
	}
	s.metrics.ActiveTrips.Set(float64(n))
	return nil
}

// ActiveTrip returns the user's active trip or ErrNoActiveTrip.
func (s *TripService) ActiveTrip(ctx context.Context, userID int64) (*model.Trip, error) {
	trip, err := s.trips.GetActive(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrTripNotFound) {
			return nil, ErrNoActiveTrip
		}
		return nil, fmt.Errorf("failed to get active trip: %w", err)
	}
	return trip, nil
}

// Trip returns a trip by id.
func (s *TripService) Trip(ctx context.Context, tripID int64) (*model.Trip, error) {
	trip, err := s.trips.Get(ctx, tripID)
	if err != nil {
		if errors.Is(err, repository.ErrTripNotFound) {
			return nil, ErrTripNotFound
		}
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}
	return trip, nil
}

// StopTrip closes the user's active trip and returns its final summary.
func (s *TripService) StopTrip(ctx context.Context, userID int64) (*model.Trip, model.TripSummary, error) {
	trip, err := s.ActiveTrip(ctx, userID)
	if err != nil {
		return nil, model.TripSummary{}, err
	}

	err = s.locks.WithLockContext(ctx, trip.ID, s.lockTimeout, func() error {
		endedAt := s.now()
		if err := s.trips.Close(ctx, trip.ID, endedAt); err != nil {
			return err
		}
		trip.Active = false
		trip.EndedAt = &endedAt
		s.dropPlan(trip.ID)
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrTripNotFound) {
			return nil, model.TripSummary{}, ErrNoActiveTrip
		}
		return nil, model.TripSummary{}, fmt.Errorf("failed to stop trip: %w", err)
	}

	if s.metrics != nil {
		s.metrics.ActiveTrips.Dec()
	}
	log.Info().Int64("trip_id", trip.ID).Msg("Trip stopped")

	sum, err := s.Summary(ctx, trip.ID)
	if err != nil {
		return trip, model.TripSummary{}, err
	}
	return trip, sum, nil
}

// Recommend ranks the catalog for the user's active trip, leaving out blacklisted
// games and favoring games that have paid off on this trip. A limit of 0 returns
// every game.
func (s *TripService) Recommend(ctx context.Context, userID int64, limit int) ([]engine.Ranked, error) {
	trip, err := s.ActiveTrip(ctx, userID)
	if err != nil {
		return nil, err
	}

	sum, err := s.Summary(ctx, trip.ID)
	if err != nil {
		return nil, err
	}

	ranked, err := s.engine.Rank(s.catalog.List(), trip.Profile,
		engine.WithHistory(analytics.Performance(sum)),
		engine.WithExcluded(trip.Excluded...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to rank games: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RankRequests.Inc()
	}
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// Plan produces the session plan for gameID against the active trip's bankroll
// and remembers it as the plan the next Commit will be measured against.
func (s *TripService) Plan(ctx context.Context, userID int64, gameID string) (model.SessionPlan, error) {
	trip, err := s.ActiveTrip(ctx, userID)
	if err != nil {
		return model.SessionPlan{}, err
	}
	game, err := s.catalog.Get(gameID)
	if err != nil {
		return model.SessionPlan{}, err
	}
	if slices.Contains(trip.Excluded, gameID) {
		return model.SessionPlan{}, ErrGameExcluded
	}

	var plan model.SessionPlan
	err = s.locks.WithLockContext(ctx, trip.ID, s.lockTimeout, func() error {
		history, err := s.sessions.ListByTrip(ctx, trip.ID)
		if err != nil {
			return err
		}
		tr := tracker.New(trip.Bankroll, tracker.WithHistory(history))

		plan, err = s.planner.Plan(tr.Bankroll(), game, trip.Profile,
			planner.WithRecentResults(tr.RecentResults(s.recentResults)))
		if err != nil {
			return err
		}
		s.plansMu.Lock()
		s.plans[trip.ID] = plan
		s.plansMu.Unlock()
		return nil
	})
	if err != nil {
		if s.metrics != nil && errors.Is(err, planner.ErrInsufficientBankroll) {
			s.metrics.InsufficientBankroll.Inc()
		}
		return model.SessionPlan{}, fmt.Errorf("failed to plan session: %w", err)
	}

	if s.metrics != nil {
		s.metrics.PlansIssued.WithLabelValues(string(game.Volatility)).Inc()
	}
	log.Debug().
		Int64("trip_id", trip.ID).
		Str("game_id", gameID).
		Str("budget", plan.Budget.String()).
		Str("max_bet", plan.MaxBet.String()).
		Msg("Session planned")
	return plan, nil
}

// PendingPlan returns the plan awaiting a result on the user's active trip.
func (s *TripService) PendingPlan(ctx context.Context, userID int64) (model.SessionPlan, error) {
	trip, err := s.ActiveTrip(ctx, userID)
	if err != nil {
		return model.SessionPlan{}, err
	}
	s.plansMu.Lock()
	defer s.plansMu.Unlock()
	plan, ok := s.plans[trip.ID]
	if !ok {
		return model.SessionPlan{}, ErrNoPlan
	}
	return plan, nil
}

// Commit records the result of the pending plan. The session row and the new
// bankroll are written in one transaction; the plan is consumed on success.
func (s *TripService) Commit(ctx context.Context, userID int64, delta decimal.Decimal, opts ...tracker.CommitOption) (model.Session, error) {
	trip, err := s.ActiveTrip(ctx, userID)
	if err != nil {
		return model.Session{}, err
	}

	var session model.Session
	err = s.locks.WithLockContext(ctx, trip.ID, s.lockTimeout, func() error {
		if err := s.ensureActive(ctx, trip.ID); err != nil {
			return err
		}
		s.plansMu.Lock()
		plan, ok := s.plans[trip.ID]
		s.plansMu.Unlock()
		if !ok {
			return ErrNoPlan
		}

		tr, err := s.tracker(ctx, trip)
		if err != nil {
			return err
		}
		session, err = tr.Commit(plan, delta, opts...)
		if err != nil {
			return err
		}
		if err := s.persist(ctx, trip.ID, session); err != nil {
			return err
		}
		s.dropPlan(trip.ID)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNoPlan) || errors.Is(err, ErrNoActiveTrip) {
			return model.Session{}, err
		}
		return model.Session{}, fmt.Errorf("failed to commit session: %w", err)
	}

	if s.metrics != nil {
		s.metrics.SessionsCommitted.WithLabelValues(string(session.Plan.Tolerance)).Inc()
		s.metrics.SessionDelta.Observe(session.OutcomeDelta.InexactFloat64())
		if session.Bankrupt {
			s.metrics.SessionsBankrupt.Inc()
		}
		if session.PlanExceeded {
			s.metrics.SessionsPlanExceeded.Inc()
		}
	}
	log.Info().
		Int64("trip_id", trip.ID).
		Str("game_id", session.GameID).
		Str("delta", session.OutcomeDelta.String()).
		Str("bankroll", session.EndingBankroll.String()).
		Bool("bankrupt", session.Bankrupt).
		Bool("plan_exceeded", session.PlanExceeded).
		Msg("Session committed")
	return session, nil
}

// Correct appends a compensating entry for a recorded session of the active trip.
// Any pending plan is dropped and must be requested again.
func (s *TripService) Correct(ctx context.Context, userID int64, sessionID uuid.UUID, delta decimal.Decimal, notes string) (model.Session, error) {
	trip, err := s.ActiveTrip(ctx, userID)
	if err != nil {
		return model.Session{}, err
	}

	var session model.Session
	err = s.locks.WithLockContext(ctx, trip.ID, s.lockTimeout, func() error {
		if err := s.ensureActive(ctx, trip.ID); err != nil {
			return err
		}
		tr, err := s.tracker(ctx, trip)
		if err != nil {
			return err
		}
		session, err = tr.Correct(sessionID, delta, notes)
		if err != nil {
			return err
		}
		if err := s.persist(ctx, trip.ID, session); err != nil {
			return err
		}
		// A pending plan was sized for the bankroll before the correction.
		s.dropPlan(trip.ID)
		return nil
	})
	if err != nil {
		if errors.Is(err, tracker.ErrSessionNotFound) || errors.Is(err, ErrNoActiveTrip) {
			return model.Session{}, err
		}
		return model.Session{}, fmt.Errorf("failed to correct session: %w", err)
	}

	if s.metrics != nil {
		s.metrics.Corrections.Inc()
	}
	log.Info().
		Int64("trip_id", trip.ID).
		Str("corrects", sessionID.String()).
		Str("delta", delta.String()).
		Msg("Session corrected")
	return session, nil
}

// Summary returns the analytics of a trip, served from the cache when possible.
// A miss is recomputed and stored under the trip lock, so a summary read before
// a commit cannot be cached after the commit invalidated it.
func (s *TripService) Summary(ctx context.Context, tripID int64) (model.TripSummary, error) {
	if s.cache == nil {
		return s.summarize(ctx, tripID)
	}

	sum, err := s.cache.Get(ctx, tripID)
	if err == nil {
		s.countCache("hit")
		return sum, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		log.Warn().Err(err).Int64("trip_id", tripID).Msg("Summary cache read failed")
	}
	s.countCache("miss")

	err = s.locks.WithLockContext(ctx, tripID, s.lockTimeout, func() error {
		var err error
		sum, err = s.summarize(ctx, tripID)
		if err != nil {
			return err
		}
		if err := s.cache.Set(ctx, tripID, sum); err != nil {
			log.Warn().Err(err).Int64("trip_id", tripID).Msg("Summary cache write failed")
		}
		return nil
	})
	if err != nil {
		return model.TripSummary{}, err
	}
	return sum, nil
}

// summarize replays the stored history of a trip.
func (s *TripService) summarize(ctx context.Context, tripID int64) (model.TripSummary, error) {
	trip, err := s.Trip(ctx, tripID)
	if err != nil {
		return model.TripSummary{}, err
	}
	history, err := s.sessions.ListByTrip(ctx, tripID)
	if err != nil {
		return model.TripSummary{}, fmt.Errorf("failed to load sessions: %w", err)
	}

	sum := s.analyzer.Summarize(slices.Values(history))
	if sum.SessionCount == 0 {
		sum.StartingBankroll = trip.StartingBankroll
		sum.EndingBankroll = trip.Bankroll
	}
	return sum, nil
}

// Sessions returns a trip's history in commit order.
func (s *TripService) Sessions(ctx context.Context, tripID int64) ([]model.Session, error) {
	if _, err := s.Trip(ctx, tripID); err != nil {
		return nil, err
	}
	history, err := s.sessions.ListByTrip(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}
	return history, nil
}

// Blacklist excludes a game from the active trip's recommendations and plans.
func (s *TripService) Blacklist(ctx context.Context, userID int64, gameID string) (*model.Trip, error) {
	trip, err := s.ActiveTrip(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.catalog.Get(gameID); err != nil {
		return nil, err
	}
	if slices.Contains(trip.Excluded, gameID) {
		return trip, nil
	}

	excluded := append(slices.Clone(trip.Excluded), gameID)
	if err := s.trips.SetExcluded(ctx, trip.ID, excluded); err != nil {
		return nil, fmt.Errorf("failed to blacklist game: %w", err)
	}
	trip.Excluded = excluded

	s.plansMu.Lock()
	if plan, ok := s.plans[trip.ID]; ok && plan.GameID == gameID {
		delete(s.plans, trip.ID)
	}
	s.plansMu.Unlock()

	log.Info().Int64("trip_id", trip.ID).Str("game_id", gameID).Msg("Game blacklisted")
	return trip, nil
}

// Trips returns the user's most recent trips with their summaries, newest first.
func (s *TripService) Trips(ctx context.Context, userID int64, limit int) ([]TripOverview, error) {
	trips, err := s.trips.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}

	out := make([]TripOverview, 0, len(trips))
	for _, trip := range trips {
		sum, err := s.Summary(ctx, trip.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, TripOverview{Trip: trip, Summary: sum})
	}
	return out, nil
}

// ensureActive fails with ErrNoActiveTrip when the trip was stopped after it
// was looked up. Callers hold the trip lock.
func (s *TripService) ensureActive(ctx context.Context, tripID int64) error {
	trip, err := s.trips.Get(ctx, tripID)
	if err != nil {
		return err
	}
	if !trip.Active {
		return ErrNoActiveTrip
	}
	return nil
}

// tracker rehydrates the trip's ledger from storage.
func (s *TripService) tracker(ctx context.Context, trip *model.Trip) (*tracker.Tracker, error) {
	history, err := s.sessions.ListByTrip(ctx, trip.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}
	return tracker.New(trip.Bankroll,
		tracker.WithTripID(trip.ID),
		tracker.WithSlack(s.policy.PlanSlack),
		tracker.WithClock(s.now),
		tracker.WithHistory(history),
	), nil
}

// persist writes the session and the bankroll it leaves behind atomically.
func (s *TripService) persist(ctx context.Context, tripID int64, session model.Session) error {
	err := s.tx.Do(ctx, func(ctx context.Context) error {
		if err := s.sessions.Append(ctx, session); err != nil {
			return err
		}
		return s.trips.SetBankroll(ctx, tripID, session.EndingBankroll)
	})
	if err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, tripID); err != nil {
			log.Warn().Err(err).Int64("trip_id", tripID).Msg("Summary cache invalidation failed")
		}
	}
	return nil
}

func (s *TripService) dropPlan(tripID int64) {
	s.plansMu.Lock()
	delete(s.plans, tripID)
	s.plansMu.Unlock()
}

func (s *TripService) countCache(result string) {
	if s.metrics != nil {
		s.metrics.SummaryCache.WithLabelValues(result).Inc()
	}
}
