package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources. Job
	// processing treats it as a validation failure and never retries it.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
)
