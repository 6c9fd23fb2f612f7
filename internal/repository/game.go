// Package repository provides data access layer implementations.
//
// Repositories pick up the transaction carried by the context when one is open
// (see the trm manager in the service layer) and fall back to the pool otherwise.
// Currency columns are NUMERIC; they are read back as text and parsed into
// decimals so no precision is lost.
package repository

import (
	"context"
	"errors"
	"fmt"

	trmpgx "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"profit-hopper/internal/model"
)

// Common errors for repository operations.
var (
	ErrGameNotFound = errors.New("game not found")
	ErrTripNotFound = errors.New("trip not found")

	ErrActiveTripExists = errors.New("user already has an active trip")
)

const gameColumns = `id, name, type, rtp, volatility, advantage_score, min_bet::text, max_bet::text, bonus_frequency, tips`

// GameRepository persists the game catalog.
type GameRepository struct {
	pool *pgxpool.Pool
}

// NewGameRepository creates a new GameRepository instance.
func NewGameRepository(pool *pgxpool.Pool) *GameRepository {
	return &GameRepository{pool: pool}
}

// Upsert inserts a game or refreshes its attributes if the id exists.
func (r *GameRepository) Upsert(ctx context.Context, g model.Game) error {
	const query = `
		INSERT INTO games (id, name, type, rtp, volatility, advantage_score, min_bet, max_bet, bonus_frequency, tips)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			rtp = EXCLUDED.rtp,
			volatility = EXCLUDED.volatility,
			advantage_score = EXCLUDED.advantage_score,
			min_bet = EXCLUDED.min_bet,
			max_bet = EXCLUDED.max_bet,
			bonus_frequency = EXCLUDED.bonus_frequency,
			tips = EXCLUDED.tips,
			updated_at = NOW()
	`

	conn := trmpgx.DefaultCtxGetter.DefaultTrOrDB(ctx, r.pool)
	_, err := conn.Exec(ctx, query,
		g.ID, g.Name, g.Type, g.RTP, string(g.Volatility), g.AdvantageScore,
		g.MinBet.String(), g.MaxBet.String(), g.BonusFrequency, g.Tips,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert game %s: %w", g.ID, err)
	}
	return nil
}

// Get retrieves a game by id.
// Returns ErrGameNotFound if the game does not exist.
func (r *GameRepository) Get(ctx context.Context, id string) (model.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE id = $1`

	conn := trmpgx.DefaultCtxGetter.DefaultTrOrDB(ctx, r.pool)
	g, err := scanGame(conn.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Game{}, ErrGameNotFound
		}
		return model.Game{}, fmt.Errorf("failed to get game: %w", err)
	}
	return g, nil
}

// List returns all games in the order they were first stored.
func (r *GameRepository) List(ctx context.Context) ([]model.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games ORDER BY created_at, id`

	conn := trmpgx.DefaultCtxGetter.DefaultTrOrDB(ctx, r.pool)
	rows, err := conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	var games []model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating games: %w", err)
	}
	return games, nil
}

func scanGame(row pgx.Row) (model.Game, error) {
	var (
		g          model.Game
		volatility string
		minBet     string
		maxBet     string
	)
	err := row.Scan(
		&g.ID,
		&g.Name,
		&g.Type,
		&g.RTP,
		&volatility,
		&g.AdvantageScore,
		&minBet,
		&maxBet,
		&g.BonusFrequency,
		&g.Tips,
	)
	if err != nil {
		return model.Game{}, err
	}
	g.Volatility = model.Volatility(volatility)
	if g.MinBet, err = parseDecimal(minBet); err != nil {
		return model.Game{}, err
	}
	if g.MaxBet, err = parseDecimal(maxBet); err != nil {
		return model.Game{}, err
	}
	return g, nil
}
