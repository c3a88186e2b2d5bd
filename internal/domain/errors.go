package domain

import "errors"

// ErrNotFound reports a lookup of an id or name that is absent from a
// store. When it surfaces for an id a session points at, it signals a
// data-integrity bug rather than user error.
var ErrNotFound = errors.New("not found")
