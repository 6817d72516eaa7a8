package session

import "errors"

var (
	// ErrSessionNotFound is returned for identifiers that were never created or are already closed.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionLimit is returned by Create when the registry is full.
	ErrSessionLimit = errors.New("maximum number of sessions reached")

	// ErrRegistryClosed is returned by Create once shutdown has begun.
	ErrRegistryClosed = errors.New("session registry is closed")
)
