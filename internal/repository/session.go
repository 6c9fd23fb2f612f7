package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	trmpgx "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"profit-hopper/internal/model"
)

const sessionColumns = `id, trip_id, seq, kind, corrects_id, game_id, plan, starting_bankroll::text,
	ending_bankroll::text, outcome_delta::text, duration_ns, bets_placed, notes, bankrupt, plan_exceeded, completed_at`

// SessionFilter narrows a session listing. Zero fields do not filter.
type SessionFilter struct {
	TripID int64
	GameID string
	Kind   model.SessionKind
	Since  time.Time
	Limit  int
}

// SessionRepository persists the append-only session history.
// There is deliberately no update or delete.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository instance.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Append stores a committed session.
func (r *SessionRepository) Append(ctx context.Context, s model.Session) error {
	const query = `
		INSERT INTO sessions (id, trip_id, seq, kind, corrects_id, game_id, plan, starting_bankroll,
			ending_bankroll, outcome_delta, duration_ns, bets_placed, notes, bankrupt, plan_exceeded, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10::numeric, $11, $12, $13, $14, $15, $16)
	`

	plan, err := json.Marshal(s.Plan)
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}

	conn := trmpgx.DefaultCtxGetter.DefaultTrOrDB(ctx, r.pool)
	_, err = conn.Exec(ctx, query,
		s.ID,
		s.TripID,
		s.Seq,
		string(s.Kind),
		s.CorrectsID,
		s.GameID,
		plan,
		s.StartingBankroll.String(),
		s.EndingBankroll.String(),
		s.OutcomeDelta.String(),
		int64(s.Duration),
		s.BetsPlaced,
		s.Notes,
		s.Bankrupt,
		s.PlanExceeded,
		s.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append session: %w", err)
	}
	return nil
}

// ListByTrip returns a trip's sessions in commit order.
func (r *SessionRepository) ListByTrip(ctx context.Context, tripID int64) ([]model.Session, error) {
	return r.List(ctx, SessionFilter{TripID: tripID})
}

// List returns sessions matching the filter in commit order.
func (r *SessionRepository) List(ctx context.Context, f SessionFilter) ([]model.Session, error) {
	builder := sq.Select(sessionColumns).
		From("sessions").
		OrderBy("trip_id", "seq").
		PlaceholderFormat(sq.Dollar)
	if f.TripID != 0 {
		builder = builder.Where(sq.Eq{"trip_id": f.TripID})
	}
	if f.GameID != "" {
		builder = builder.Where(sq.Eq{"game_id": f.GameID})
	}
	if f.Kind != "" {
		builder = builder.Where(sq.Eq{"kind": string(f.Kind)})
	}
	if !f.Since.IsZero() {
		builder = builder.Where(sq.GtOrEq{"completed_at": f.Since})
	}
	if f.Limit > 0 {
		builder = builder.Limit(uint64(f.Limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sessions query: %w", err)
	}

	conn := trmpgx.DefaultCtxGetter.DefaultTrOrDB(ctx, r.pool)
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

func scanSession(row pgx.Row) (model.Session, error) {
	var (
		s          model.Session
		kind       string
		correctsID *uuid.UUID
		plan       []byte
		starting   string
		ending     string
		delta      string
		duration   int64
	)
	err := row.Scan(
		&s.ID,
		&s.TripID,
		&s.Seq,
		&kind,
		&correctsID,
		&s.GameID,
		&plan,
		&starting,
		&ending,
		&delta,
		&duration,
		&s.BetsPlaced,
		&s.Notes,
		&s.Bankrupt,
		&s.PlanExceeded,
		&s.CompletedAt,
	)
	if err != nil {
		return model.Session{}, err
	}

	s.Kind = model.SessionKind(kind)
	s.CorrectsID = correctsID
	s.Duration = time.Duration(duration)
	if err := json.Unmarshal(plan, &s.Plan); err != nil {
		return model.Session{}, fmt.Errorf("invalid plan: %w", err)
	}
	if s.StartingBankroll, err = parseDecimal(starting); err != nil {
		return model.Session{}, err
	}
	if s.EndingBankroll, err = parseDecimal(ending); err != nil {
		return model.Session{}, err
	}
	if s.OutcomeDelta, err = parseDecimal(delta); err != nil {
		return model.Session{}, err
	}
	return s, nil
}
