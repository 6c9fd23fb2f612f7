// Package handler provides Telegram bot command handlers.
package handler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"profit-hopper/internal/model"
)

var errUsage = errors.New("usage")

// parseAmount reads a currency amount such as "250", "+35.50", "-$40" or "1,200".
func parseAmount(s string) (decimal.Decimal, error) {
	clean := strings.NewReplacer("$", "", ",", "", "+", "").Replace(strings.TrimSpace(s))
	if clean == "" || clean == "-" {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q", s)
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q", s)
	}
	return d.Round(2), nil
}

type tripArgs struct {
	bankroll decimal.Decimal
	profile  model.RiskProfile
	casino   string
}

// parseTripArgs reads: <bankroll> <tolerance> [sessions] [casino...]
func parseTripArgs(args []string) (tripArgs, error) {
	if len(args) < 2 {
		return tripArgs{}, errUsage
	}
	bankroll, err := parseAmount(args[0])
	if err != nil {
		return tripArgs{}, err
	}
	tol, err := model.ParseRiskTolerance(args[1])
	if err != nil {
		return tripArgs{}, err
	}

	out := tripArgs{bankroll: bankroll, profile: model.RiskProfile{Tolerance: tol}}
	rest := args[2:]
	if len(rest) > 0 {
		if n, err := strconv.Atoi(rest[0]); err == nil {
			if n < 0 {
				return tripArgs{}, fmt.Errorf("session count must not be negative")
			}
			out.profile.TripSessions = n
			rest = rest[1:]
		}
	}
	out.casino = strings.Join(rest, " ")
	return out, nil
}

type resultArgs struct {
	delta    decimal.Decimal
	bets     int
	duration time.Duration
	notes    string
}

// parseResultArgs reads: <delta> [bets=N] [min=N] [notes...]
func parseResultArgs(args []string) (resultArgs, error) {
	if len(args) == 0 {
		return resultArgs{}, errUsage
	}
	delta, err := parseAmount(args[0])
	if err != nil {
		return resultArgs{}, err
	}

	out := resultArgs{delta: delta}
	var notes []string
	for _, a := range args[1:] {
		key, value, ok := strings.Cut(a, "=")
		if !ok {
			notes = append(notes, a)
			continue
		}
		n, err := strconv.Atoi(value)
		switch {
		case key == "bets" && err == nil && n >= 0:
			out.bets = n
		case key == "min" && err == nil && n >= 0:
			out.duration = time.Duration(n) * time.Minute
		default:
			notes = append(notes, a)
		}
	}
	out.notes = strings.Join(notes, " ")
	return out, nil
}

// parseLimit reads an optional positive count, falling back to def.
func parseLimit(args []string, def, maxN int) int {
	if len(args) == 0 {
		return def
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return def
	}
	return min(n, maxN)
}
