package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Volatility is the ordered variance category of a game.
type Volatility string

// Volatility categories, lowest first.
const (
	VolatilityLow    Volatility = "low"
	VolatilityMedium Volatility = "medium"
	VolatilityHigh   Volatility = "high"
)

// Volatilities lists every category in ascending order.
func Volatilities() []Volatility {
	return []Volatility{VolatilityLow, VolatilityMedium, VolatilityHigh}
}

// Level returns the position of v in the ascending order, or -1 if v is unknown.
func (v Volatility) Level() int {
	switch v {
	case VolatilityLow:
		return 0
	case VolatilityMedium:
		return 1
	case VolatilityHigh:
		return 2
	default:
		return -1
	}
}

// Valid reports whether v is a known category.
func (v Volatility) Valid() bool {
	return v.Level() >= 0
}

// Label returns the human readable label used in bot replies.
func (v Volatility) Label() string {
	switch v {
	case VolatilityLow:
		return "Low volatility (frequent small wins)"
	case VolatilityMedium:
		return "Medium volatility"
	case VolatilityHigh:
		return "High volatility (rare big wins)"
	default:
		return "Unknown"
	}
}

// maxVolatilityScore bounds the numeric proxy. Scores past 5 are clamped to high;
// anything beyond this is a broken row.
const maxVolatilityScore = 10

// ParseVolatility accepts a category name or the 1-5 numeric proxy used by game lists
// (1-2 low, 3 medium, 4-5 high; values are rounded and clamped). Numbers outside
// [0, 10] and non-finite values are rejected.
func ParseVolatility(s string) (Volatility, error) {
	t := strings.ToLower(strings.TrimSpace(s))
	switch t {
	case "low", "very low":
		return VolatilityLow, nil
	case "medium", "med":
		return VolatilityMedium, nil
	case "high", "very high":
		return VolatilityHigh, nil
	}

	f, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return "", fmt.Errorf("unknown volatility %q", s)
	}
	if math.IsNaN(f) || f < 0 || f > maxVolatilityScore {
		return "", fmt.Errorf("volatility score %q out of range [0, %d]", s, maxVolatilityScore)
	}
	n := int(f + 0.5)
	switch {
	case n <= 2:
		return VolatilityLow, nil
	case n == 3:
		return VolatilityMedium, nil
	default:
		return VolatilityHigh, nil
	}
}

// RiskTolerance is the player's appetite for variance.
type RiskTolerance string

// Risk tolerances.
const (
	Conservative RiskTolerance = "conservative"
	Moderate     RiskTolerance = "moderate"
	Aggressive   RiskTolerance = "aggressive"
)

// RiskTolerances lists every tolerance from most to least cautious.
func RiskTolerances() []RiskTolerance {
	return []RiskTolerance{Conservative, Moderate, Aggressive}
}

// Valid reports whether r is a known tolerance.
func (r RiskTolerance) Valid() bool {
	switch r {
	case Conservative, Moderate, Aggressive:
		return true
	}
	return false
}

// ParseRiskTolerance parses a tolerance name; single-letter shortcuts are accepted.
func ParseRiskTolerance(s string) (RiskTolerance, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "conservative", "c", "low":
		return Conservative, nil
	case "moderate", "m", "medium":
		return Moderate, nil
	case "aggressive", "a", "high":
		return Aggressive, nil
	}
	return "", fmt.Errorf("unknown risk tolerance %q", s)
}

// AdvantageLabel maps an advantage-play score on the 0-5 scale to a label.
func AdvantageLabel(score float64) string {
	n := int(score + 0.5)
	switch {
	case n <= 0:
		return "None"
	case n == 1:
		return "Low"
	case n == 2:
		return "Low-Med"
	case n == 3:
		return "Medium"
	case n == 4:
		return "Med-High"
	default:
		return "High"
	}
}
