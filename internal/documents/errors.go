package documents

import "errors"

var (
	// ErrNotFound indicates the document does not exist for the given deal.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidInput indicates the request failed validation.
	ErrInvalidInput = errors.New("invalid input")
)
