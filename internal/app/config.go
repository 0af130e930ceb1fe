package app

import (
	"time"

	"github.com/ayusman/posturepilot/internal/posture"
	"github.com/ayusman/posturepilot/internal/retry"
)

// Config holds controller settings.
type Config struct {
	// CalibrationFrames is the number of samples that completes calibration.
	CalibrationFrames int
	// MinCalibrationFrames is the fewest samples FinishCalibration accepts.
	MinCalibrationFrames int
	Limits               posture.Limits
	// MonitorInterval classifies one frame per interval while monitoring.
	// Zero classifies every frame.
	MonitorInterval time.Duration
	// SmoothingAlpha is the weight of new samples in the feature average.
	// Zero disables smoothing.
	SmoothingAlpha float64
	// MinVisibility treats keypoints below this visibility as absent.
	MinVisibility float64
	// Init bounds source initialization.
	Init retry.Policy
	// QueueFrames makes the source wait for the frame path instead of
	// dropping frames that arrive while one is being processed.
	QueueFrames bool
	// NotifyCooldown is the minimum time between alerts. Zero alerts on
	// every non-good status.
	NotifyCooldown time.Duration
	// DispatchQueueSize bounds pending sink calls and events.
	DispatchQueueSize int
	// SinkTimeout bounds a single sink call.
	SinkTimeout time.Duration
}

// DefaultConfig returns the standard controller settings.
func DefaultConfig() Config {
	policy := retry.DefaultPolicy()
	policy.Name = "landmark source init"
	return Config{
		CalibrationFrames:    posture.DefaultCalibrationFrames,
		MinCalibrationFrames: posture.DefaultMinFrames,
		Limits:               posture.DefaultLimits(),
		Init:                 policy,
		DispatchQueueSize:    256,
		SinkTimeout:          5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.CalibrationFrames < 1 {
		c.CalibrationFrames = def.CalibrationFrames
	}
	if c.MinCalibrationFrames < 1 {
		c.MinCalibrationFrames = def.MinCalibrationFrames
	}
	if c.Limits == (posture.Limits{}) {
		c.Limits = def.Limits
	}
	if c.Init.Attempts < 1 {
		c.Init.Attempts = def.Init.Attempts
	}
	if c.Init.Name == "" {
		c.Init.Name = def.Init.Name
	}
	if c.DispatchQueueSize < 1 {
		c.DispatchQueueSize = def.DispatchQueueSize
	}
	if c.SinkTimeout <= 0 {
		c.SinkTimeout = def.SinkTimeout
	}
	return c
}
