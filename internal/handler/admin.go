package handler

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"profit-hopper/internal/catalog"
	"profit-hopper/internal/model"
)

// CatalogLoader imports games and refreshes the in-memory catalog.
type CatalogLoader interface {
	ImportGames(ctx context.Context, games []model.Game) (int, error)
	LoadCatalog(ctx context.Context) error
}

// AdminHandler handles admin-only commands.
type AdminHandler struct {
	loader  CatalogLoader
	csvPath string
}

// NewAdminHandler creates a new AdminHandler. csvPath is the default game list
// for /import.
func NewAdminHandler(loader CatalogLoader, csvPath string) *AdminHandler {
	return &AdminHandler{loader: loader, csvPath: csvPath}
}

// HandleImport handles /import [path].
// Games already in the catalog keep their loaded attributes until restart.
func (h *AdminHandler) HandleImport(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	path := h.csvPath
	if args := c.Args(); len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		return c.Reply("Usage: /import <path to game list CSV>")
	}

	n, err := importCSV(ctx, h.loader, path)
	if err != nil {
		log.Error().Err(err).Int64("admin_id", sender.ID).Str("path", path).Msg("Game import failed")
		return c.Reply("❌ Import failed: " + err.Error())
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Str("path", path).
		Int("games", n).
		Str("operation", "import").
		Msg("Admin operation executed")
	return c.Reply(fmt.Sprintf("✅ Imported %d games from %s", n, path))
}

// importCSV reads a game list, stores it and reloads the catalog.
func importCSV(ctx context.Context, loader CatalogLoader, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open game list: %w", err)
	}
	defer f.Close()

	games, err := catalog.ReadCSV(f)
	if err != nil {
		return 0, err
	}
	n, err := loader.ImportGames(ctx, games)
	if err != nil {
		return 0, err
	}
	if err := loader.LoadCatalog(ctx); err != nil {
		return n, err
	}
	return n, nil
}

// ImportCSV is the startup path for the configured game list.
func ImportCSV(ctx context.Context, loader CatalogLoader, path string) (int, error) {
	return importCSV(ctx, loader, path)
}
