package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrMaxHopsExceeded is returned when a turn needs more model calls than allowed.
	ErrMaxHopsExceeded = errors.New("exceeded maximum hops for this turn")

	// ErrNoChoices is returned when the model response has no choices.
	ErrNoChoices = errors.New("no choices in model response")
)

// EndpointError wraps a failed model call. The turn is aborted and nothing
// is persisted for the failed call.
type EndpointError struct {
	Hop int
	Err error
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("model endpoint call failed on hop %d: %v", e.Hop, e.Err)
}

func (e *EndpointError) Unwrap() error { return e.Err }

// PersistenceError wraps a durable log failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("history %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
