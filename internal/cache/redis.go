// Package cache keeps computed trip summaries in Redis so repeated /summary and
// export requests do not replay the whole session history.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"profit-hopper/internal/config"
	"profit-hopper/internal/model"
)

const (
	// DefaultTTL bounds how long a summary survives without being invalidated.
	DefaultTTL = 10 * time.Minute
	// KeyPrefix is the prefix for all summary keys.
	KeyPrefix = "profit_hopper:summary:"
)

// ErrMiss is returned by Get when no summary is cached for the trip.
var ErrMiss = errors.New("summary not cached")

// SummaryCache stores TripSummary snapshots keyed by trip id.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New wraps an existing client. A non-positive ttl falls back to DefaultTTL.
func New(client *redis.Client, ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SummaryCache{client: client, ttl: ttl}
}

// Connect dials Redis and pings it with exponential backoff until it answers
// or cfg.ConnectTimeout elapses.
func Connect(ctx context.Context, cfg *config.RedisConfig) (*SummaryCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	b := backoff.NewExponentialBackOff()
	if cfg.ConnectTimeout > 0 {
		b.MaxElapsedTime = cfg.ConnectTimeout
	}

	err := backoff.Retry(func() error {
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Addr).Msg("Redis connection failed, retrying")
			return err
		}
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	log.Info().Str("addr", cfg.Addr).Msg("Connected to Redis")
	return New(client, cfg.TTL), nil
}

func makeKey(tripID int64) string {
	return fmt.Sprintf("%s%d", KeyPrefix, tripID)
}

// Get returns the cached summary for a trip, or ErrMiss.
func (c *SummaryCache) Get(ctx context.Context, tripID int64) (model.TripSummary, error) {
	data, err := c.client.Get(ctx, makeKey(tripID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.TripSummary{}, ErrMiss
	}
	if err != nil {
		return model.TripSummary{}, fmt.Errorf("failed to get summary: %w", err)
	}

	var sum model.TripSummary
	if err := json.Unmarshal(data, &sum); err != nil {
		return model.TripSummary{}, fmt.Errorf("failed to unmarshal summary: %w", err)
	}
	return sum, nil
}

// Set stores a summary with the cache TTL.
func (c *SummaryCache) Set(ctx context.Context, tripID int64, sum model.TripSummary) error {
	data, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := c.client.Set(ctx, makeKey(tripID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set summary: %w", err)
	}
	return nil
}

// Invalidate drops the cached summary for a trip. Missing keys are not an error.
func (c *SummaryCache) Invalidate(ctx context.Context, tripID int64) error {
	if err := c.client.Del(ctx, makeKey(tripID)).Err(); err != nil {
		return fmt.Errorf("failed to delete summary: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (c *SummaryCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (c *SummaryCache) Close() error {
	return c.client.Close()
}
