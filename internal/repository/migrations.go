package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{
		name: "games table",
		sql: `
		CREATE TABLE IF NOT EXISTS games (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT '',
			rtp DOUBLE PRECISION NOT NULL CHECK (rtp >= 0 AND rtp <= 1),
			volatility TEXT NOT NULL,
			advantage_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			min_bet NUMERIC NOT NULL CHECK (min_bet > 0),
			max_bet NUMERIC NOT NULL CHECK (max_bet >= min_bet),
			bonus_frequency DOUBLE PRECISION NOT NULL DEFAULT 0,
			tips TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_games_created ON games(created_at, id);
	`,
	},
	{
		name: "trips table",
		sql: `
		CREATE TABLE IF NOT EXISTS trips (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			casino TEXT NOT NULL DEFAULT '',
			starting_bankroll NUMERIC NOT NULL CHECK (starting_bankroll >= 0),
			bankroll NUMERIC NOT NULL CHECK (bankroll >= 0),
			tolerance TEXT NOT NULL,
			session_length_ns BIGINT NOT NULL DEFAULT 0,
			trip_duration_ns BIGINT NOT NULL DEFAULT 0,
			trip_sessions INT NOT NULL DEFAULT 0,
			stop_win BOOLEAN NOT NULL DEFAULT FALSE,
			excluded TEXT[] NOT NULL DEFAULT '{}',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			ended_at TIMESTAMPTZ
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_trips_user_active ON trips(user_id) WHERE active;
		CREATE INDEX IF NOT EXISTS idx_trips_user_started ON trips(user_id, started_at DESC);
	`,
	},
	{
		name: "sessions table",
		sql: `
		CREATE TABLE IF NOT EXISTS sessions (
			id UUID PRIMARY KEY,
			trip_id BIGINT NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
			seq BIGINT NOT NULL,
			kind TEXT NOT NULL,
			corrects_id UUID REFERENCES sessions(id),
			game_id TEXT NOT NULL,
			plan JSONB NOT NULL,
			starting_bankroll NUMERIC NOT NULL,
			ending_bankroll NUMERIC NOT NULL CHECK (ending_bankroll >= 0),
			outcome_delta NUMERIC NOT NULL,
			duration_ns BIGINT NOT NULL DEFAULT 0,
			bets_placed INT NOT NULL DEFAULT 0,
			notes TEXT NOT NULL DEFAULT '',
			bankrupt BOOLEAN NOT NULL DEFAULT FALSE,
			plan_exceeded BOOLEAN NOT NULL DEFAULT FALSE,
			completed_at TIMESTAMPTZ NOT NULL,
			UNIQUE (trip_id, seq)
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_game ON sessions(game_id, completed_at);
	`,
	},
}

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	log.Info().Msg("Running database migrations...")

	for i, m := range migrations {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %d (%s): %w", i+1, m.name, err)
		}
		log.Info().Int("migration", i+1).Str("name", m.name).Msg("Migration applied")
	}

	log.Info().Msg("All migrations completed successfully")
	return nil
}
