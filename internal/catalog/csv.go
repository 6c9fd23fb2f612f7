package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"profit-hopper/internal/model"
)

// Defaults applied to optional game list columns.
const (
	DefaultAdvantageScore = 3.0
	DefaultBonusFrequency = 0.2
	defaultMaxBetFactor   = 100
)

// ErrMissingColumn is returned by ReadCSV when a required column is absent.
var ErrMissingColumn = errors.New("missing required column")

var columnAliases = map[string][]string{
	"id":         {"id", "game_id", "slug"},
	"name":       {"game_name", "name", "title", "game"},
	"rtp":        {"rtp", "expected_rtp"},
	"min_bet":    {"min_bet", "minbet", "minimum_bet"},
	"max_bet":    {"max_bet", "maxbet", "maximum_bet"},
	"advantage":  {"advantage_play_potential", "app", "advantage_potential", "advantage_score"},
	"volatility": {"volatility", "vol"},
	"bonus":      {"bonus_frequency", "bonus_freq", "bonus_rate"},
	"type":       {"type", "game_type", "category"},
	"tips":       {"tips", "tip", "strategy"},
}

var (
	nonWord    = regexp.MustCompile(`\W+`)
	nonAlnum   = regexp.MustCompile(`[^a-z0-9]+`)
	moneyClean = strings.NewReplacer("$", "", ",", "", " ", "")
)

// ReadCSV parses a game list. Column names are normalized to snake_case and
// matched against the known aliases; rtp and min_bet are required.
// Rows without a usable rtp or min bet, or with an unreadable volatility, are skipped.
// An RTP above 1 is read as a percentage.
func ReadCSV(r io.Reader) ([]model.Game, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	cols := resolveColumns(header)
	for _, required := range []string{"rtp", "min_bet"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, required)
		}
	}

	var games []model.Game
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read line %d: %w", line, err)
		}

		g, ok := parseRow(cols, record, line)
		if !ok {
			log.Debug().Int("line", line).Msg("Skipping unusable game row")
			continue
		}
		games = append(games, g)
	}
	return games, nil
}

func resolveColumns(header []string) map[string]int {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.Trim(nonWord.ReplaceAllString(strings.ToLower(strings.TrimSpace(h)), "_"), "_")
		if _, seen := positions[name]; !seen {
			positions[name] = i
		}
	}

	cols := make(map[string]int)
	for field, aliases := range columnAliases {
		for _, alias := range aliases {
			if i, ok := positions[alias]; ok {
				cols[field] = i
				break
			}
		}
	}
	return cols
}

func parseRow(cols map[string]int, record []string, line int) (model.Game, bool) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	rtp, err := strconv.ParseFloat(strings.TrimSuffix(field("rtp"), "%"), 64)
	if err != nil {
		return model.Game{}, false
	}
	if rtp > 1 {
		rtp /= 100
	}

	minBet, err := decimal.NewFromString(moneyClean.Replace(field("min_bet")))
	if err != nil {
		return model.Game{}, false
	}

	maxBet := minBet.Mul(decimal.NewFromInt(defaultMaxBetFactor))
	if v, err := decimal.NewFromString(moneyClean.Replace(field("max_bet"))); err == nil {
		maxBet = v
	}

	advantage := DefaultAdvantageScore
	if v, err := strconv.ParseFloat(field("advantage"), 64); err == nil {
		advantage = v
	}

	volatility := model.VolatilityMedium
	if raw := field("volatility"); raw != "" {
		v, err := model.ParseVolatility(raw)
		if err != nil {
			log.Warn().Err(err).Int("line", line).Msg("Skipping game row with bad volatility")
			return model.Game{}, false
		}
		volatility = v
	}

	bonus := DefaultBonusFrequency
	if v, err := strconv.ParseFloat(strings.TrimSuffix(field("bonus"), "%"), 64); err == nil {
		if v > 1 {
			v /= 100
		}
		bonus = v
	}

	name := field("name")
	if name == "" {
		name = fmt.Sprintf("Unknown Game %d", line)
	}

	id := Slug(field("id"))
	if id == "" {
		id = Slug(name)
	}

	gameType := field("type")
	if gameType == "" {
		gameType = inferType(name)
	}

	return model.Game{
		ID:             id,
		Name:           name,
		Type:           gameType,
		RTP:            rtp,
		Volatility:     volatility,
		AdvantageScore: advantage,
		MinBet:         minBet,
		MaxBet:         maxBet,
		BonusFrequency: bonus,
		Tips:           field("tips"),
	}, true
}

// Slug turns a display name into a game id.
func Slug(name string) string {
	return strings.Trim(nonAlnum.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

func inferType(name string) string {
	s := strings.ToLower(name)
	switch {
	case strings.Contains(s, "keno"):
		if strings.Contains(s, "video") {
			return "video keno"
		}
		return "keno"
	case strings.Contains(s, "poker"):
		return "video poker"
	case strings.Contains(s, "slot"), strings.Contains(s, "reel"):
		return "slot"
	}
	return "unknown"
}
