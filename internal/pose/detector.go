package pose

import (
	"context"

	"gocv.io/x/gocv"
)

// Detector defines the interface for pose estimation implementations.
type Detector interface {
	// Init loads the model and blocks until it is ready to accept frames
	// or ctx is done.
	Init(ctx context.Context) error

	// Detect analyzes a video frame and returns the detected body landmarks.
	// Returns nil landmarks and a nil error if no person is detected.
	Detect(frame *gocv.Mat) (*Landmarks, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for pose detection.
type Config struct {
	// ModelComplexity selects the pose model variant (0, 1 or 2).
	ModelComplexity int

	// SmoothLandmarks enables the model's temporal landmark filter.
	SmoothLandmarks bool

	// MinDetectionConf is the minimum detection confidence threshold (0.0-1.0).
	MinDetectionConf float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64

	// ScriptPath overrides the location of the pose service script.
	ScriptPath string

	// PythonPath overrides the Python interpreter used to run the script.
	PythonPath string
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		ModelComplexity:  1,
		SmoothLandmarks:  true,
		MinDetectionConf: 0.5,
		MinTrackingConf:  0.5,
	}
}
