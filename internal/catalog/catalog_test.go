package catalog

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"profit-hopper/internal/model"
)

func testGame(id string) model.Game {
	return model.Game{
		ID:             id,
		Name:           strings.ToUpper(id),
		Type:           "slot",
		RTP:            0.96,
		Volatility:     model.VolatilityMedium,
		AdvantageScore: 2,
		MinBet:         decimal.NewFromInt(1),
		MaxBet:         decimal.NewFromInt(100),
	}
}

// ============================================
// Add / Get
// ============================================

func TestCatalog_AddAndGet(t *testing.T) {
	c := New()
	require.NoError(t, c.Add(testGame("blackjack")))

	g, err := c.Get("blackjack")
	require.NoError(t, err)
	assert.Equal(t, "BLACKJACK", g.Name)
	assert.Equal(t, 1, c.Len())
}

func TestCatalog_AddDuplicate(t *testing.T) {
	c := New()
	require.NoError(t, c.Add(testGame("blackjack")))

	err := c.Add(testGame("blackjack"))
	assert.ErrorIs(t, err, ErrDuplicateGame)
	assert.Equal(t, 1, c.Len())
}

func TestCatalog_GetMissing(t *testing.T) {
	_, err := New().Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatalog_AddInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(g *model.Game)
	}{
		{"empty id", func(g *model.Game) { g.ID = "" }},
		{"rtp above one", func(g *model.Game) { g.RTP = 1.2 }},
		{"negative rtp", func(g *model.Game) { g.RTP = -0.1 }},
		{"nan rtp", func(g *model.Game) { g.RTP = math.NaN() }},
		{"unknown volatility", func(g *model.Game) { g.Volatility = "wild" }},
		{"negative advantage", func(g *model.Game) { g.AdvantageScore = -1 }},
		{"zero min bet", func(g *model.Game) { g.MinBet = decimal.Zero }},
		{"negative max bet", func(g *model.Game) { g.MaxBet = decimal.NewFromInt(-5) }},
		{"min above max", func(g *model.Game) { g.MinBet = decimal.NewFromInt(500) }},
		{"bonus frequency above one", func(g *model.Game) { g.BonusFrequency = 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := testGame("roulette")
			tt.mutate(&g)

			c := New()
			assert.ErrorIs(t, c.Add(g), ErrInvalidGame)
			assert.Equal(t, 0, c.Len())
		})
	}
}

func TestCatalog_RTPBoundsAccepted(t *testing.T) {
	c := New()
	zero := testGame("zero")
	zero.RTP = 0
	one := testGame("one")
	one.RTP = 1

	assert.NoError(t, c.Add(zero))
	assert.NoError(t, c.Add(one))
}

func TestCatalog_AddAllStopsAtFirstFailure(t *testing.T) {
	c := New()
	err := c.AddAll([]model.Game{testGame("a"), testGame("b"), testGame("a"), testGame("c")})

	require.ErrorIs(t, err, ErrDuplicateGame)
	assert.Contains(t, err.Error(), "game 2")
	assert.Equal(t, 2, c.Len())
}

// ============================================
// List
// ============================================

func TestCatalog_ListEmpty(t *testing.T) {
	count := 0
	for range New().List() {
		count++
	}
	assert.Zero(t, count)
}

func TestCatalog_ListIsRestartable(t *testing.T) {
	c := New()
	require.NoError(t, c.AddAll([]model.Game{testGame("c"), testGame("a"), testGame("b")}))

	seq := c.List()
	first := ids(seq)
	second := ids(seq)

	assert.Equal(t, []string{"c", "a", "b"}, first)
	assert.Equal(t, first, second)
}

func TestCatalog_ListEarlyBreak(t *testing.T) {
	c := New()
	require.NoError(t, c.AddAll([]model.Game{testGame("a"), testGame("b"), testGame("c")}))

	var got []string
	for g := range c.List() {
		got = append(got, g.ID)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestCatalog_ListSnapshotsAtRangeStart(t *testing.T) {
	c := New()
	require.NoError(t, c.Add(testGame("a")))

	var got []string
	for g := range c.List() {
		got = append(got, g.ID)
		require.NoError(t, c.Add(testGame("late")))
	}
	assert.Equal(t, []string{"a"}, got)
	assert.Equal(t, []string{"a", "late"}, ids(c.List()))
}

// TestCatalog_InsertionOrderProperty checks that List yields every accepted game
// exactly once, in the order it was added, whatever the mix of duplicates.
func TestCatalog_InsertionOrderProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		names := rapid.SliceOfN(rapid.StringMatching(`[a-f]{1,2}`), 0, 40).Draw(t, "ids")

		c := New()
		var expected []string
		for _, id := range names {
			err := c.Add(testGame(id))
			if slices.Contains(expected, id) {
				if err == nil {
					t.Fatalf("duplicate %q accepted", id)
				}
				continue
			}
			if err != nil {
				t.Fatalf("add %q: %v", id, err)
			}
			expected = append(expected, id)
		}

		got := ids(c.List())
		if !slices.Equal(got, expected) {
			t.Fatalf("List order %v, want %v", got, expected)
		}
		if c.Len() != len(expected) {
			t.Fatalf("Len %d, want %d", c.Len(), len(expected))
		}
	})
}

func ids(seq func(func(model.Game) bool)) []string {
	var out []string
	for g := range seq {
		out = append(out, g.ID)
	}
	return out
}

func ExampleCatalog_List() {
	c := New()
	_ = c.Add(testGame("baccarat"))
	_ = c.Add(testGame("craps"))

	for g := range c.List() {
		fmt.Println(g.ID)
	}
	// Output:
	// baccarat
	// craps
}
