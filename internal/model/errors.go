package model

import "errors"

// ErrInvariantViolation signals a contract breach upstream of the component that
// detected it. It never occurs in correct usage.
var ErrInvariantViolation = errors.New("invariant violation")
