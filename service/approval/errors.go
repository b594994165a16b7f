package approval

import "errors"

// Sentinel errors surfaced by the engine. Callers detect them via errors.Is;
// none of them is retried internally.
var (
	// ErrNotFound indicates an unknown approval id.
	ErrNotFound = errors.New("approval: record not found")

	// ErrAlreadyDecided indicates the record reached a terminal state first.
	// The caller lost the race and must re-query the current state.
	ErrAlreadyDecided = errors.New("approval: already decided")

	// ErrUnauthorized indicates the actor lacks the role or authority the
	// operation requires. Security relevant, logged distinctly.
	ErrUnauthorized = errors.New("approval: unauthorized")
)
