package agent

import "errors"

var (
	// ErrUnknownBackend is returned when no factory is registered for a
	// backend type
	ErrUnknownBackend = errors.New("unknown backend type")
)
