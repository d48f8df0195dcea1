// Package store persists indexed chunks (SQLite) and their embeddings (binary
// vector index) under a single index directory, and exposes a combined Index
// used by ingestion and retrieval.
package store

import (
	"errors"
	"fmt"
)

// ErrUnavailable reports that the index backend cannot be reached at all, for
// example when the index directory is gone. Callers treat it as a signal for
// recovery rather than retry.
var ErrUnavailable = errors.New("index store unavailable")

// TransientError wraps a failure that is worth retrying, such as a locked
// database or a short write. Permanent failures (bad input, dimension
// mismatch) are returned unwrapped.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err (or any wrapped error) is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}
