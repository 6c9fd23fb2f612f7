// Package api serves trip reports, CSV exports and metrics over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"profit-hopper/internal/export"
	"profit-hopper/internal/model"
	"profit-hopper/internal/service"
)

// Reports is the read side of the trip service.
type Reports interface {
	Games() iter.Seq[model.Game]
	Trip(ctx context.Context, tripID int64) (*model.Trip, error)
	Sessions(ctx context.Context, tripID int64) ([]model.Session, error)
	Summary(ctx context.Context, tripID int64) (model.TripSummary, error)
}

// HandlerDeps are the collaborators of the HTTP surface.
type HandlerDeps struct {
	Reports        Reports
	Registry       *prometheus.Registry
	Health         func(ctx context.Context) error
	AllowedOrigins []string
}

// Handler serves the HTTP endpoints.
type Handler struct {
	reports  Reports
	registry *prometheus.Registry
	health   func(ctx context.Context) error
	origins  []string
}

// NewHandler creates a new Handler instance.
func NewHandler(deps HandlerDeps) *Handler {
	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Handler{
		reports:  deps.Reports,
		registry: deps.Registry,
		health:   deps.Health,
		origins:  origins,
	}
}

// Router builds the chi router.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.origins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           60 * 15,
	}))

	r.Get("/healthz", h.Healthz)
	if h.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))
	}

	r.Get("/games", h.Games)
	r.Get("/games.csv", h.GamesCSV)

	r.Route("/trips/{id}", func(rr chi.Router) {
		rr.Get("/", h.Trip)
		rr.Get("/summary", h.Summary)
		rr.Get("/sessions.csv", h.SessionsCSV)
		rr.Get("/summary.csv", h.SummaryCSV)
		rr.Get("/games.csv", h.PerGameCSV)
	})

	return r
}

// Healthz reports whether the backing stores answer.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Games lists the catalog as JSON.
func (h *Handler) Games(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, slices.Collect(h.reports.Games()))
}

// GamesCSV lists the catalog as CSV.
func (h *Handler) GamesCSV(w http.ResponseWriter, r *http.Request) {
	csvHeaders(w, "games.csv")
	if err := export.WriteGames(w, h.reports.Games()); err != nil {
		log.Error().Err(err).Msg("Failed to write games export")
	}
}

// Trip returns the trip as JSON.
func (h *Handler) Trip(w http.ResponseWriter, r *http.Request) {
	id, ok := tripID(w, r)
	if !ok {
		return
	}
	trip, err := h.reports.Trip(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// Summary returns the trip analytics as JSON.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	id, ok := tripID(w, r)
	if !ok {
		return
	}
	sum, err := h.reports.Summary(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// SessionsCSV exports the trip's session history.
func (h *Handler) SessionsCSV(w http.ResponseWriter, r *http.Request) {
	id, ok := tripID(w, r)
	if !ok {
		return
	}
	history, err := h.reports.Sessions(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	csvHeaders(w, fmt.Sprintf("trip-%d-sessions.csv", id))
	if err := export.WriteSessions(w, slices.Values(history)); err != nil {
		log.Error().Err(err).Int64("trip_id", id).Msg("Failed to write sessions export")
	}
}

// SummaryCSV exports the trip's headline metrics.
func (h *Handler) SummaryCSV(w http.ResponseWriter, r *http.Request) {
	h.summaryCSV(w, r, "summary", export.WriteSummary)
}

// PerGameCSV exports the trip's per-game breakdown.
func (h *Handler) PerGameCSV(w http.ResponseWriter, r *http.Request) {
	h.summaryCSV(w, r, "games", export.WritePerGame)
}

func (h *Handler) summaryCSV(w http.ResponseWriter, r *http.Request, name string, write func(io.Writer, model.TripSummary) error) {
	id, ok := tripID(w, r)
	if !ok {
		return
	}
	sum, err := h.reports.Summary(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	csvHeaders(w, fmt.Sprintf("trip-%d-%s.csv", id, name))
	if err := write(w, sum); err != nil {
		log.Error().Err(err).Int64("trip_id", id).Str("export", name).Msg("Failed to write export")
	}
}

func tripID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid trip id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrTripNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	log.Error().Err(err).Msg("Request failed")
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func csvHeaders(w http.ResponseWriter, filename string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
