// Package main is the entry point for Profit Hopper: the Telegram bot and the
// reporting HTTP server share one trip service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	trmpgx "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/avito-tech/go-transaction-manager/trm/v2/manager"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"profit-hopper/internal/api"
	"profit-hopper/internal/bot"
	"profit-hopper/internal/cache"
	"profit-hopper/internal/config"
	"profit-hopper/internal/handler"
	"profit-hopper/internal/metrics"
	"profit-hopper/internal/pkg/db"
	"profit-hopper/internal/policy"
	"profit-hopper/internal/repository"
	"profit-hopper/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// A missing .env is fine; the environment may already be populated.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to read .env")
	}

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	log.Info().Msg("Configuration loaded successfully")

	pol, err := policy.Load(cfg.Policy.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load policy")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	if err := repository.Migrate(ctx, dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	txManager, err := manager.New(trmpgx.NewDefaultFactory(dbPool.Pool))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create transaction manager")
	}

	m := metrics.New()
	m.RegisterPool(func() metrics.PoolStats { return dbPool.Stats() })

	deps := service.Deps{
		Policy:   pol,
		Games:    repository.NewGameRepository(dbPool.Pool),
		Trips:    repository.NewTripRepository(dbPool.Pool),
		Sessions: repository.NewSessionRepository(dbPool.Pool),
		Tx:       txManager,
		Metrics:  m,
	}

	var summaries *cache.SummaryCache
	if cfg.Redis.Addr != "" {
		summaries, err = cache.Connect(ctx, &cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Summary cache unavailable, continuing without it")
		} else {
			defer summaries.Close()
			deps.Cache = summaries
		}
	}

	trips := service.NewTripService(deps,
		service.WithLockTimeout(cfg.Trip.LockTimeout),
		service.WithDefaultSessions(cfg.Trip.DefaultSessions),
		service.WithRecentResults(cfg.Trip.RecentResults),
	)
	if err := trips.SyncActiveTrips(ctx); err != nil {
		log.Warn().Err(err).Msg("Active trips gauge not seeded")
	}

	if cfg.Catalog.CSV != "" {
		n, err := handler.ImportCSV(ctx, trips, cfg.Catalog.CSV)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Catalog.CSV).Msg("Failed to import game list")
		}
		log.Info().Int("games", n).Str("path", cfg.Catalog.CSV).Msg("Game list imported")
	} else if err := trips.LoadCatalog(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to load catalog")
	}

	var server *http.Server
	if cfg.HTTP.Addr != "" {
		h := api.NewHandler(api.HandlerDeps{
			Reports:        trips,
			Registry:       m.Registry,
			Health:         health(dbPool, summaries),
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
		})
		server = &http.Server{
			Addr:         cfg.HTTP.Addr,
			Handler:      h.Router(),
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
		}
		go func() {
			log.Info().Str("addr", cfg.HTTP.Addr).Msg("HTTP server is starting...")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("HTTP server failed")
				stop()
			}
		}()
	}

	var telegramBot *bot.Bot
	if cfg.Bot.Token != "" {
		telegramBot, err = bot.New(&bot.Dependencies{
			Config:  cfg,
			Trips:   trips,
			Catalog: trips,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create bot")
		}
		go telegramBot.Start()
	} else {
		log.Warn().Msg("No bot token configured, running the HTTP server only")
	}

	<-ctx.Done()
	log.Info().Msg("Received shutdown signal")

	if telegramBot != nil {
		telegramBot.Stop()
	}
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown failed")
		}
	}
	log.Info().Msg("Stopped gracefully")
}

// health reports the database and, when configured, the summary cache.
func health(pool *db.Pool, summaries *cache.SummaryCache) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := pool.HealthCheck(ctx); err != nil {
			return err
		}
		if summaries != nil {
			return summaries.Ping(ctx)
		}
		return nil
	}
}
