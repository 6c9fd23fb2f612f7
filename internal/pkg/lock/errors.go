package lock

import "errors"

// ErrLockTimeout is returned when a trip's lock cannot be taken within the timeout.
var ErrLockTimeout = errors.New("trip lock timeout")
