package app

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by commands issued after Close.
	ErrClosed = errors.New("controller is closed")

	// ErrStartInProgress is returned when Start is called while another
	// Start is still initializing the source.
	ErrStartInProgress = errors.New("start already in progress")

	// ErrStartAborted is returned by Start when Recalibrate, Stop or Close
	// ran while the source was initializing.
	ErrStartAborted = errors.New("start aborted")

	// ErrPersistence wraps failures of the persistence sink.
	ErrPersistence = errors.New("persistence sink failed")

	// ErrNotification wraps failures of the notifier and indicator sinks.
	ErrNotification = errors.New("notification sink failed")
)

// InitializationError reports that the landmark source did not become ready.
// The controller stays in Setup and can be started again.
type InitializationError struct {
	Attempts int
	Err      error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("landmark source failed to initialize after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *InitializationError) Unwrap() error {
	return e.Err
}
