package pose

import (
	"context"
	"errors"
)

// ErrSourceNotReady is returned by Start when Init has not succeeded.
var ErrSourceNotReady = errors.New("landmark source is not initialized")

// Source produces landmark frames from a camera and pose model.
//
// A Source is reusable: after Close, Init may be called again to reacquire
// the camera and model.
type Source interface {
	// Init acquires the camera and loads the pose model. It blocks until
	// both are ready or ctx is done. On error nothing is left acquired.
	Init(ctx context.Context) error

	// Start begins delivering frames to onResult. Frames without a detected
	// person carry nil Landmarks. onResult is called from a single goroutine.
	Start(onResult func(Frame)) error

	// Stop stops frame delivery. After Stop returns onResult is not called.
	Stop() error

	// Close stops frame delivery and releases the camera and model.
	Close() error
}
