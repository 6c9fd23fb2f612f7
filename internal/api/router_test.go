package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"profit-hopper/internal/export"
	"profit-hopper/internal/model"
	"profit-hopper/internal/service"
)

type fakeReports struct {
	games    []model.Game
	trips    map[int64]*model.Trip
	sessions map[int64][]model.Session
	failWith error
}

func (f *fakeReports) Games() iter.Seq[model.Game] { return slices.Values(f.games) }

func (f *fakeReports) Trip(_ context.Context, id int64) (*model.Trip, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	t, ok := f.trips[id]
	if !ok {
		return nil, service.ErrTripNotFound
	}
	return t, nil
}

func (f *fakeReports) Sessions(ctx context.Context, id int64) ([]model.Session, error) {
	if _, err := f.Trip(ctx, id); err != nil {
		return nil, err
	}
	return f.sessions[id], nil
}

func (f *fakeReports) Summary(ctx context.Context, id int64) (model.TripSummary, error) {
	if _, err := f.Trip(ctx, id); err != nil {
		return model.TripSummary{}, err
	}
	return model.TripSummary{
		SessionCount:     len(f.sessions[id]),
		StartingBankroll: decimal.NewFromInt(1000),
		EndingBankroll:   decimal.NewFromInt(1030),
		NetGrowth:        decimal.NewFromInt(30),
		PerGame: []model.GamePerformance{
			{GameID: "blackjack", Sessions: 1, Wins: 1, Net: decimal.NewFromInt(30), Budgeted: decimal.NewFromInt(20), ROI: 1.5},
		},
	}, nil
}

func newTestHandler(t *testing.T) (*fakeReports, http.Handler) {
	t.Helper()
	reports := &fakeReports{
		games: []model.Game{
			{ID: "blackjack", Name: "Blackjack", RTP: 0.995, Volatility: model.VolatilityLow, MinBet: decimal.NewFromInt(10), MaxBet: decimal.NewFromInt(500)},
		},
		trips: map[int64]*model.Trip{
			7: {ID: 7, UserID: 1, StartingBankroll: decimal.NewFromInt(1000), Bankroll: decimal.NewFromInt(1030), Active: true},
		},
		sessions: map[int64][]model.Session{
			7: {{
				ID:               uuid.New(),
				TripID:           7,
				Seq:              1,
				Kind:             model.SessionPlay,
				GameID:           "blackjack",
				StartingBankroll: decimal.NewFromInt(1000),
				EndingBankroll:   decimal.NewFromInt(1030),
				OutcomeDelta:     decimal.NewFromInt(30),
				CompletedAt:      time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC),
			}},
		},
	}
	h := NewHandler(HandlerDeps{
		Reports:  reports,
		Registry: prometheus.NewRegistry(),
	})
	return reports, h.Router()
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func readCSV(t *testing.T, body string) [][]string {
	t.Helper()
	rows, err := csv.NewReader(strings.NewReader(body)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestHealthz(t *testing.T) {
	_, h := newTestHandler(t)
	rec := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHealthz_Unavailable(t *testing.T) {
	h := NewHandler(HandlerDeps{
		Reports: &fakeReports{},
		Health:  func(context.Context) error { return errors.New("db down") },
	}).Router()

	rec := get(t, h, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "db down")
}

func TestMetrics(t *testing.T) {
	_, h := newTestHandler(t)
	rec := get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGames(t *testing.T) {
	_, h := newTestHandler(t)

	rec := get(t, h, "/games")
	require.Equal(t, http.StatusOK, rec.Code)
	var games []model.Game
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &games))
	require.Len(t, games, 1)
	assert.Equal(t, "blackjack", games[0].ID)

	rec = get(t, h, "/games.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	rows := readCSV(t, rec.Body.String())
	assert.Equal(t, export.GameColumns, rows[0])
	assert.Len(t, rows, 2)
}

func TestTripEndpoints(t *testing.T) {
	_, h := newTestHandler(t)

	rec := get(t, h, "/trips/7/")
	require.Equal(t, http.StatusOK, rec.Code)
	var trip model.Trip
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trip))
	assert.Equal(t, int64(7), trip.ID)

	rec = get(t, h, "/trips/7/summary")
	require.Equal(t, http.StatusOK, rec.Code)
	var sum model.TripSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.True(t, sum.NetGrowth.Equal(decimal.NewFromInt(30)))

	rec = get(t, h, "/trips/7/sessions.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "trip-7-sessions.csv")
	rows := readCSV(t, rec.Body.String())
	require.Len(t, rows, 2)
	assert.Equal(t, export.SessionColumns, rows[0])
	assert.Equal(t, "blackjack", rows[1][5])

	rec = get(t, h, "/trips/7/summary.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	rows = readCSV(t, rec.Body.String())
	assert.Equal(t, export.SummaryColumns, rows[0])

	rec = get(t, h, "/trips/7/games.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	rows = readCSV(t, rec.Body.String())
	assert.Equal(t, [][]string{
		export.PerGameColumns,
		{"blackjack", "1", "1", "30.00", "20.00", "1.5000"},
	}, rows)
}

func TestTripEndpoints_Errors(t *testing.T) {
	reports, h := newTestHandler(t)

	tests := []struct {
		name string
		path string
		code int
	}{
		{"unknown trip", "/trips/99/sessions.csv", http.StatusNotFound},
		{"unknown trip summary", "/trips/99/summary.csv", http.StatusNotFound},
		{"malformed id", "/trips/abc/sessions.csv", http.StatusBadRequest},
		{"negative id", "/trips/-1/summary", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, get(t, h, tt.path).Code)
		})
	}

	reports.failWith = errors.New("connection refused")
	rec := get(t, h, "/trips/7/summary")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestCORS(t *testing.T) {
	_, h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/games", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
