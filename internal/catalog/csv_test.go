package catalog

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"profit-hopper/internal/model"
)

func TestReadCSV_NormalizesColumns(t *testing.T) {
	input := `Game Name, RTP ,Min Bet,Max Bet,Advantage Play Potential,Volatility,Bonus Frequency,Type,Tips
Buffalo Gold,96.5,$0.40,"$1,000",2,4,30,slot,Watch the coin meter
Jacks or Better Video Poker,0.995,1,5,4,low,0.1,,Use a strategy card
`

	games, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, games, 2)

	buffalo := games[0]
	assert.Equal(t, "buffalo-gold", buffalo.ID)
	assert.Equal(t, "Buffalo Gold", buffalo.Name)
	assert.InDelta(t, 0.965, buffalo.RTP, 1e-9)
	assert.True(t, buffalo.MinBet.Equal(decimal.RequireFromString("0.40")))
	assert.True(t, buffalo.MaxBet.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, model.VolatilityHigh, buffalo.Volatility)
	assert.InDelta(t, 0.3, buffalo.BonusFrequency, 1e-9)
	assert.Equal(t, "Watch the coin meter", buffalo.Tips)

	poker := games[1]
	assert.Equal(t, "jacks-or-better-video-poker", poker.ID)
	assert.Equal(t, "video poker", poker.Type)
	assert.Equal(t, model.VolatilityLow, poker.Volatility)
	assert.Equal(t, 4.0, poker.AdvantageScore)

	for _, g := range games {
		assert.NoError(t, Validate(g))
	}
}

func TestReadCSV_Defaults(t *testing.T) {
	input := "title,expected_rtp,minbet\nKeno Classic,0.92,2\n"

	games, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, games, 1)

	g := games[0]
	assert.Equal(t, DefaultAdvantageScore, g.AdvantageScore)
	assert.Equal(t, model.VolatilityMedium, g.Volatility)
	assert.Equal(t, DefaultBonusFrequency, g.BonusFrequency)
	assert.True(t, g.MaxBet.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, "keno", g.Type)
}

func TestReadCSV_SkipsIncompleteRows(t *testing.T) {
	input := "name,rtp,min_bet\nGood,0.95,1\nNo RTP,,1\nNo Bet,0.9,n/a\n"

	games, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "good", games[0].ID)
}

func TestReadCSV_SkipsBadVolatility(t *testing.T) {
	input := "name,rtp,min_bet,volatility\nSteady,0.95,1,2\nBroken,0.95,1,NaN\nEndless,0.95,1,Inf\nNegative,0.95,1,-7\nBlank,0.95,1,\n"

	games, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, games, 2)
	assert.Equal(t, "steady", games[0].ID)
	assert.Equal(t, model.VolatilityLow, games[0].Volatility)
	assert.Equal(t, "blank", games[1].ID)
	assert.Equal(t, model.VolatilityMedium, games[1].Volatility)
}

func TestReadCSV_MissingRequiredColumn(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("name,rtp\nA,0.9\n"))
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestReadCSV_EmptyInput(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	assert.Error(t, err)
}

func TestReadCSV_LoadsIntoCatalog(t *testing.T) {
	input := "name,rtp,min_bet,max_bet\nA,0.9,1,10\nB,0.95,5,50\n"

	games, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)

	c := New()
	require.NoError(t, c.AddAll(games))
	assert.Equal(t, 2, c.Len())
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"Buffalo Gold":           "buffalo-gold",
		"  Deuces Wild (NSU) ":   "deuces-wild-nsu",
		"88 Fortunes":            "88-fortunes",
		"---":                    "",
		"Blackjack 3:2 / 6-Deck": "blackjack-3-2-6-deck",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slug(in), in)
	}
}
