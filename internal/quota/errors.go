package quota

import "errors"

// ErrLimitReached indicates the user exhausted their analysis-run allowance.
var ErrLimitReached = errors.New("limit reached")
