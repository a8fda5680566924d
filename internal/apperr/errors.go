// Package apperr defines the error taxonomy shared by the registry, the reading
// engine and the scheduler. Callers wrap these sentinels with context and test
// for them with errors.Is.
package apperr

import "errors"

var (
	// ErrValidation marks bad input rejected before any state change.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an unknown target, reading session or rotation id.
	ErrNotFound = errors.New("not found")
	// ErrEmptyQueue is returned when a rotation has no eligible targets.
	ErrEmptyQueue = errors.New("no eligible targets")
	// ErrSubSession marks a display or reading sub-session that failed to open or poll.
	ErrSubSession = errors.New("sub-session failed")
	// ErrStorage marks a failed durable write; in-memory state is left unchanged.
	ErrStorage = errors.New("storage failure")
	// ErrInvalidState marks an illegal lifecycle transition (e.g. resume while running).
	ErrInvalidState = errors.New("invalid state transition")
)
