// Package catalog holds the set of known games and validates them on the way in.
package catalog

import (
	"fmt"
	"iter"
	"math"
	"sync"

	"github.com/rs/zerolog/log"

	"profit-hopper/internal/model"
)

// Catalog stores games in insertion order with lookup by id.
// Games are never replaced or removed once added.
type Catalog struct {
	games []model.Game
	index map[string]int
	mu    sync.RWMutex
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{
		index: make(map[string]int),
	}
}

// Add validates and stores a game.
func (c *Catalog) Add(g model.Game) error {
	if err := Validate(g); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.index[g.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateGame, g.ID)
	}
	c.index[g.ID] = len(c.games)
	c.games = append(c.games, g)
	return nil
}

// AddAll adds games in order and stops at the first failure.
// Games before the failing one stay in the catalog.
func (c *Catalog) AddAll(games []model.Game) error {
	for i, g := range games {
		if err := c.Add(g); err != nil {
			return fmt.Errorf("game %d: %w", i, err)
		}
	}
	log.Debug().Int("count", len(games)).Msg("Catalog loaded")
	return nil
}

// Get returns the game with the given id.
func (c *Catalog) Get(id string) (model.Game, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.index[id]
	if !ok {
		return model.Game{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c.games[i], nil
}

// List returns a lazy sequence of all games in insertion order.
// Each range over the sequence starts from the first game again; games added
// while a range is in progress are not visited by it.
func (c *Catalog) List() iter.Seq[model.Game] {
	return func(yield func(model.Game) bool) {
		c.mu.RLock()
		games := c.games[:len(c.games):len(c.games)]
		c.mu.RUnlock()

		for _, g := range games {
			if !yield(g) {
				return
			}
		}
	}
}

// Len returns the number of games.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.games)
}

// Validate checks the static attributes of a game.
func Validate(g model.Game) error {
	switch {
	case g.ID == "":
		return fmt.Errorf("%w: empty id", ErrInvalidGame)
	case math.IsNaN(g.RTP) || g.RTP < 0 || g.RTP > 1:
		return fmt.Errorf("%w: %s: rtp %v outside [0,1]", ErrInvalidGame, g.ID, g.RTP)
	case !g.Volatility.Valid():
		return fmt.Errorf("%w: %s: unknown volatility %q", ErrInvalidGame, g.ID, g.Volatility)
	case math.IsNaN(g.AdvantageScore) || math.IsInf(g.AdvantageScore, 0) || g.AdvantageScore < 0:
		return fmt.Errorf("%w: %s: bad advantage score %v", ErrInvalidGame, g.ID, g.AdvantageScore)
	case !g.MinBet.IsPositive():
		return fmt.Errorf("%w: %s: min bet must be positive", ErrInvalidGame, g.ID)
	case !g.MaxBet.IsPositive():
		return fmt.Errorf("%w: %s: max bet must be positive", ErrInvalidGame, g.ID)
	case g.MinBet.GreaterThan(g.MaxBet):
		return fmt.Errorf("%w: %s: min bet %s above max bet %s", ErrInvalidGame, g.ID, g.MinBet, g.MaxBet)
	case math.IsNaN(g.BonusFrequency) || g.BonusFrequency < 0 || g.BonusFrequency > 1:
		return fmt.Errorf("%w: %s: bonus frequency %v outside [0,1]", ErrInvalidGame, g.ID, g.BonusFrequency)
	}
	return nil
}
