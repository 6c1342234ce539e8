package sessions

import "errors"

var (
	// ErrNotFound indicates the session or version does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNoAnalysis indicates staleness was requested for a deal that has
	// never been analyzed; "no analysis" is distinct from "not stale".
	ErrNoAnalysis = errors.New("no analysis for deal")
)
