package jobmanager

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrNilTask     = errors.New("task cannot be nil")

	// ErrShutdown is returned by StartJob once Shutdown has been called.
	ErrShutdown = errors.New("job manager is shutting down")
)

// InvalidStateError is returned when a Job is asked to make a state
// transition its current state doesn't allow, such as stopping a Job that
// already finished.
type InvalidStateError struct {
	From JobState
	To   JobState
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("cannot go from %s to %s", e.From, e.To)
}

func NewInvalidStateError(from, to JobState) InvalidStateError {
	return InvalidStateError{From: from, To: to}
}
