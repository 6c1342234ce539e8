package deals

import "errors"

// ErrNotFound indicates the deal does not exist or is not visible to the user.
var ErrNotFound = errors.New("deal not found")
