package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"profit-hopper/internal/model"
	"profit-hopper/internal/repository"
)

// memStore is an in-memory stand-in for the Postgres repositories. Do gives it
// all-or-nothing semantics by restoring a snapshot when fn fails.
type memStore struct {
	mu       sync.Mutex
	games    []model.Game
	trips    map[int64]model.Trip
	sessions []model.Session
	nextID   int64

	failSetBankroll error
	txCount         int
}

func newMemStore() *memStore {
	return &memStore{trips: make(map[int64]model.Trip)}
}

type snapshot struct {
	games    []model.Game
	trips    map[int64]model.Trip
	sessions []model.Session
}

func (m *memStore) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	m.txCount++
	snap := snapshot{
		games:    slices.Clone(m.games),
		trips:    make(map[int64]model.Trip, len(m.trips)),
		sessions: slices.Clone(m.sessions),
	}
	for k, v := range m.trips {
		snap.trips[k] = v
	}
	m.mu.Unlock()

	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.games, m.trips, m.sessions = snap.games, snap.trips, snap.sessions
		m.mu.Unlock()
		return err
	}
	return nil
}

// games

func (m *memStore) Upsert(_ context.Context, g model.Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := slices.IndexFunc(m.games, func(x model.Game) bool { return x.ID == g.ID }); i >= 0 {
		m.games[i] = g
		return nil
	}
	m.games = append(m.games, g)
	return nil
}

func (m *memStore) List(context.Context) ([]model.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.games), nil
}

// trips

type tripStore struct{ *memStore }

func (s tripStore) Create(_ context.Context, trip model.Trip) (*model.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.trips {
		if t.UserID == trip.UserID && t.Active {
			return nil, repository.ErrActiveTripExists
		}
	}
	s.nextID++
	trip.ID = s.nextID
	trip.Active = true
	trip.Excluded = slices.Clone(trip.Excluded)
	s.trips[trip.ID] = trip
	return &trip, nil
}

func (s tripStore) Get(_ context.Context, id int64) (*model.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[id]
	if !ok {
		return nil, repository.ErrTripNotFound
	}
	t.Excluded = slices.Clone(t.Excluded)
	return &t, nil
}

func (s tripStore) GetActive(_ context.Context, userID int64) (*model.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.trips {
		if t.UserID == userID && t.Active {
			t.Excluded = slices.Clone(t.Excluded)
			return &t, nil
		}
	}
	return nil, repository.ErrTripNotFound
}

func (s tripStore) ListByUser(_ context.Context, userID int64, limit int) ([]*model.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Trip
	for _, t := range s.trips {
		if t.UserID == userID {
			out = append(out, &t)
		}
	}
	slices.SortFunc(out, func(a, b *model.Trip) int { return int(b.ID - a.ID) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s tripStore) CountActive(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.trips {
		if t.Active {
			n++
		}
	}
	return n, nil
}

func (s tripStore) SetBankroll(_ context.Context, id int64, bankroll decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSetBankroll != nil {
		return s.failSetBankroll
	}
	t, ok := s.trips[id]
	if !ok {
		return repository.ErrTripNotFound
	}
	t.Bankroll = bankroll
	s.trips[id] = t
	return nil
}

func (s tripStore) SetExcluded(_ context.Context, id int64, excluded []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[id]
	if !ok {
		return repository.ErrTripNotFound
	}
	t.Excluded = slices.Clone(excluded)
	s.trips[id] = t
	return nil
}

func (s tripStore) Close(_ context.Context, id int64, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[id]
	if !ok || !t.Active {
		return repository.ErrTripNotFound
	}
	t.Active = false
	t.EndedAt = &endedAt
	s.trips[id] = t
	return nil
}

// sessions

type sessionStore struct{ *memStore }

func (s sessionStore) Append(_ context.Context, session model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.sessions {
		if x.TripID == session.TripID && x.Seq == session.Seq {
			return errors.New("duplicate seq")
		}
	}
	s.sessions = append(s.sessions, session)
	return nil
}

func (s sessionStore) ListByTrip(_ context.Context, tripID int64) ([]model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Session
	for _, x := range s.sessions {
		if x.TripID == tripID {
			out = append(out, x)
		}
	}
	return out, nil
}
