package models

import "errors"

var (
	// ErrValidation marks malformed input rejected before any state change.
	ErrValidation = errors.New("validation error")
	// ErrInvalidState marks a lifecycle operation attempted from the wrong state.
	ErrInvalidState = errors.New("invalid state")
	// ErrStateConflict marks a lost concurrent-update race; callers may retry.
	ErrStateConflict = errors.New("state conflict")
)
