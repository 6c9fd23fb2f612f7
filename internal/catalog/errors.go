package catalog

import "errors"

// Catalog errors.
var (
	// ErrDuplicateGame is returned by Add when the game id is already present.
	ErrDuplicateGame = errors.New("duplicate game")

	// ErrNotFound is returned by Get when no game has the requested id.
	ErrNotFound = errors.New("game not found")

	// ErrInvalidGame is returned by Add when a game fails validation.
	ErrInvalidGame = errors.New("invalid game")
)
