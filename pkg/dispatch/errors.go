package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownAction is returned for action names missing from the dispatch table.
	ErrUnknownAction = errors.New("unknown action")

	// ErrInvalidRequest is returned when a required input is missing or malformed.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrURLNotAllowed is returned when a navigation target is rejected by the URL policy.
	ErrURLNotAllowed = errors.New("url not allowed")
)

// AutomationError wraps a driver-level failure during an action.
type AutomationError struct {
	Action string
	Err    error
}

func (e *AutomationError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Action, e.Err)
}

func (e *AutomationError) Unwrap() error {
	return e.Err
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
