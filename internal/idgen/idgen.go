package idgen

import "github.com/google/uuid"

// NewFunc produces a new globally unique identifier. Exposed as a variable so
// tests can substitute predictable ids.
var NewFunc = func() string { return uuid.New().String() }

// New returns a fresh identifier as an opaque string.
func New() string { return NewFunc() }
