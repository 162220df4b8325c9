package domain

import "errors"

// ErrNotFound reports a missing work record, regardless of which
// repository implementation backs the store.
var ErrNotFound = errors.New("work not found")
