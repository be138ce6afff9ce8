package domain

import "errors"

var (
	// ErrValidation marks malformed or incomplete input. Never persisted.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks a duplicate create; callers treat it as a no-op.
	ErrConflict = errors.New("already exists")
	// ErrNotFound marks a reference this node cannot resolve.
	ErrNotFound = errors.New("not found")
)
