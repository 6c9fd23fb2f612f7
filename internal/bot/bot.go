// Package bot wires the Telegram bot: settings, middleware and command routes.
package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"profit-hopper/internal/config"
	"profit-hopper/internal/handler"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot     *tele.Bot
	cfg     *config.Config
	members *memberSet

	tripHandler    *handler.TripHandler
	sessionHandler *handler.SessionHandler
	adminHandler   *handler.AdminHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config  *config.Config
	Trips   handler.TripService
	Catalog handler.CatalogLoader
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	timeout := deps.Config.Bot.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	teleBot, err := tele.NewBot(tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
		OnError: func(err error, c tele.Context) {
			log.Error().Err(err).Msg("Bot handler error")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:            teleBot,
		cfg:            deps.Config,
		members:        newMemberSet(),
		tripHandler:    handler.NewTripHandler(deps.Trips),
		sessionHandler: handler.NewSessionHandler(deps.Trips),
		adminHandler:   handler.NewAdminHandler(deps.Catalog, deps.Config.Catalog.CSV),
	}

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg, b.members))
	b.bot.Use(LoggingMiddleware())
}

func (b *Bot) registerHandlers() {
	// Trip lifecycle
	b.bot.Handle("/start", b.tripHandler.HandleStart)
	b.bot.Handle("/help", b.tripHandler.HandleStart)
	b.bot.Handle("/trip", b.tripHandler.HandleTrip)
	b.bot.Handle("/stop", b.tripHandler.HandleStop)
	b.bot.Handle("/summary", b.tripHandler.HandleSummary)
	b.bot.Handle("/trips", b.tripHandler.HandleTrips)
	b.bot.Handle("/skip", b.tripHandler.HandleSkip)

	// Sessions
	b.bot.Handle("/games", b.sessionHandler.HandleGames)
	b.bot.Handle("/rank", b.sessionHandler.HandleRank)
	b.bot.Handle("/plan", b.sessionHandler.HandlePlan)
	b.bot.Handle("/result", b.sessionHandler.HandleResult)
	b.bot.Handle("/correct", b.sessionHandler.HandleCorrect)
	b.bot.Handle(tele.OnCallback, b.sessionHandler.HandleCallback)

	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/import", b.adminHandler.HandleImport)
}

// Start starts long polling. It blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Str("username", b.bot.Me.Username).Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}
