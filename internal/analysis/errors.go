package analysis

import "errors"

// ErrNotRunning indicates the session is not in a cancellable state.
var ErrNotRunning = errors.New("session is not running")
