package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	trmpgx "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"profit-hopper/internal/model"
)

const tripColumns = `id, user_id, casino, starting_bankroll::text, bankroll::text, tolerance,
	session_length_ns, trip_duration_ns, trip_sessions, stop_win, excluded, active, started_at, ended_at`

// TripRepository persists trips and their running bankroll.
type TripRepository struct {
	pool *pgxpool.Pool
}

// NewTripRepository creates a new TripRepository instance.
func NewTripRepository(pool *pgxpool.Pool) *TripRepository {
	return &TripRepository{pool: pool}
}

// uniqueViolation is the Postgres error code raised by idx_trips_user_active.
const uniqueViolation = "23505"

// Create stores a new active trip and returns it with its id.
// Returns ErrActiveTripExists if the user already has an active trip.
func (r *TripRepository) Create(ctx context.Context, trip model.Trip) (*model.Trip, error) {
	query := `
		INSERT INTO trips (user_id, casino, starting_bankroll, bankroll, tolerance,
			session_length_ns, trip_duration_ns, trip_sessions, stop_win, excluded, active, started_at)
		VALUES ($1, $2, $3::numeric, $3::numeric, $4, $5, $6, $7, $8, $9, TRUE, $10)
		RETURNING ` + tripColumns

	excluded := trip.Excluded
	if excluded == nil {
		excluded = []string{}
	}

	conn := trmpgx.DefaultCtxGetter.DefaultTrOrDB(ctx, r.pool)
	created, err := scanTrip(conn.QueryRow(ctx, query,
		trip.UserID,
		trip.Casino,
		trip.StartingBankroll.String(),
		string(trip.Profile.Tolerance),
		int64(trip.Profile.SessionLength),
		int64(trip.Profile.TripDuration),
		trip.Profile.TripSessions,
		trip.Profile.StopWin,
		excluded,
		trip.StartedAt,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrActiveTripExists
		}
		return nil, fmt.Errorf("failed to create trip: %w", err)
	}
	return created, nil
}

// Get retrieves a trip by id.
// Returns ErrTripNotFound if the trip does not exist.
func (r *TripRepository) Get(ctx context.Context, id int64) (*model.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1`

	conn := trmpgx.DefaultCtxGetter.DefaultTrOrDB(ctx, r.pool)
	trip, err := scanTrip(conn.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTripNotFound
		}
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}
	return trip, nil
}

// GetActive retrieves the user's active trip.
// Returns ErrTripNotFound if the user has none.
func (r *TripRepository) GetActive(ctx context.Context, userID int64) (*model.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE user_id = $1 AND active`

	conn := trmpgx.DefaultCtxGetter.DefaultTrOrDB(ctx, r.pool)
	trip, err := scanTrip(conn.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTripNotFound
		}
		return nil, fmt.Errorf("failed to get active trip: %w", err)
	}
	return trip, nil
}

// ListByUser returns the user's trips, newest first. A limit of 0 means no limit.
func (r *TripRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*model.Trip, error) {
	builder := sq.Select(tripColumns).
		From("trips").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("started_at DESC", "id DESC").
		PlaceholderFormat(sq.Dollar)
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build trips query: %w", err)
	}

	conn := trmpgx.DefaultCtxGetter.DefaultTrOrDB(ctx, r.pool)
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	defer rows.Close()

	var trips []*model.Trip
	for rows.Next() {
		trip, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trip: %w", err)
		}
		trips = append(trips, trip)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trips: %w", err)
	}
	return trips, nil
}

// CountActive returns the number of trips that have not been stopped.
func (r *TripRepository) CountActive(ctx context.Context) (int, error) {
	query, args, err := sq.Select("count(*)").
		From("trips").
		Where(sq.Eq{"active": true}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build count query: %w", err)
	}

	var n int
	conn := trmpgx.DefaultCtxGetter.DefaultTrOrDB(ctx, r.pool)
	if err := conn.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count active trips: %w", err)
	}
	return n, nil
}

// SetBankroll stores the trip's current bankroll.
func (r *TripRepository) SetBankroll(ctx context.Context, id int64, bankroll decimal.Decimal) error {
	const query = `UPDATE trips SET bankroll = $2::numeric WHERE id = $1`
	return r.exec(ctx, "update bankroll", query, id, bankroll.String())
}

// SetExcluded replaces the trip's list of blacklisted games.
func (r *TripRepository) SetExcluded(ctx context.Context, id int64, excluded []string) error {
	if excluded == nil {
		excluded = []string{}
	}
	const query = `UPDATE trips SET excluded = $2 WHERE id = $1`
	return r.exec(ctx, "update excluded games", query, id, excluded)
}

// Close marks the trip inactive.
func (r *TripRepository) Close(ctx context.Context, id int64, endedAt time.Time) error {
	const query = `UPDATE trips SET active = FALSE, ended_at = $2 WHERE id = $1 AND active`
	return r.exec(ctx, "close trip", query, id, endedAt)
}

func (r *TripRepository) exec(ctx context.Context, what, query string, args ...any) error {
	conn := trmpgx.DefaultCtxGetter.DefaultTrOrDB(ctx, r.pool)
	tag, err := conn.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", what, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTripNotFound
	}
	return nil
}

func scanTrip(row pgx.Row) (*model.Trip, error) {
	var (
		trip          model.Trip
		starting      string
		bankroll      string
		tolerance     string
		sessionLength int64
		tripDuration  int64
	)
	err := row.Scan(
		&trip.ID,
		&trip.UserID,
		&trip.Casino,
		&starting,
		&bankroll,
		&tolerance,
		&sessionLength,
		&tripDuration,
		&trip.Profile.TripSessions,
		&trip.Profile.StopWin,
		&trip.Excluded,
		&trip.Active,
		&trip.StartedAt,
		&trip.EndedAt,
	)
	if err != nil {
		return nil, err
	}

	trip.Profile.Tolerance = model.RiskTolerance(tolerance)
	trip.Profile.SessionLength = time.Duration(sessionLength)
	trip.Profile.TripDuration = time.Duration(tripDuration)
	if trip.StartingBankroll, err = parseDecimal(starting); err != nil {
		return nil, err
	}
	if trip.Bankroll, err = parseDecimal(bankroll); err != nil {
		return nil, err
	}
	return &trip, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid numeric %q: %w", s, err)
	}
	return d, nil
}
