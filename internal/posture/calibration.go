package posture

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Calibration defaults.
const (
	DefaultCalibrationFrames = 60
	DefaultMinFrames         = 15
)

// ErrCalibrationIncomplete is returned when calibration is finished before
// enough samples were collected.
var ErrCalibrationIncomplete = errors.New("calibration incomplete")

// Baseline is the personal reference captured by a calibration episode.
type Baseline struct {
	// ScaleFactor is the mean horizontal shoulder distance.
	ScaleFactor float64   `json:"scaleFactor"`
	Samples     int       `json:"samples"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Calibrator accumulates shoulder-distance samples until it has enough to
// derive a Baseline. It is not safe for concurrent use.
type Calibrator struct {
	need    int
	samples []float64
	done    bool
}

// NewCalibrator creates a Calibrator that completes after n samples.
// Values below 1 use DefaultCalibrationFrames.
func NewCalibrator(n int) *Calibrator {
	if n < 1 {
		n = DefaultCalibrationFrames
	}
	return &Calibrator{
		need:    n,
		samples: make([]float64, 0, n),
	}
}

// Reset discards all samples and starts a new episode.
func (c *Calibrator) Reset() {
	c.samples = c.samples[:0]
	c.done = false
}

// Add records the shoulder distance of f. Non-positive or non-finite
// distances are ignored. The second return value is true exactly once, when
// the sample that completes the episode is added.
func (c *Calibrator) Add(f Features) (Baseline, bool) {
	if c.done {
		return Baseline{}, false
	}
	d := f.ShoulderDistance
	if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return Baseline{}, false
	}

	c.samples = append(c.samples, d)
	if len(c.samples) < c.need {
		return Baseline{}, false
	}

	c.done = true
	return c.baseline(f.Timestamp), true
}

// Finish completes the episode early with the samples collected so far.
// It returns ErrCalibrationIncomplete if fewer than min samples exist.
func (c *Calibrator) Finish(min int, now time.Time) (Baseline, error) {
	if c.done {
		return Baseline{}, fmt.Errorf("%w: episode already complete", ErrCalibrationIncomplete)
	}
	if min < 1 {
		min = 1
	}
	if len(c.samples) < min {
		return Baseline{}, fmt.Errorf("%w: have %d samples, need %d", ErrCalibrationIncomplete, len(c.samples), min)
	}

	c.done = true
	return c.baseline(now), nil
}

// Progress reports how many samples have been collected and how many the
// episode needs.
func (c *Calibrator) Progress() (have, need int) {
	return len(c.samples), c.need
}

// Done reports whether the episode has produced a Baseline.
func (c *Calibrator) Done() bool {
	return c.done
}

func (c *Calibrator) baseline(at time.Time) Baseline {
	var sum float64
	for _, d := range c.samples {
		sum += d
	}
	return Baseline{
		ScaleFactor: sum / float64(len(c.samples)),
		Samples:     len(c.samples),
		CreatedAt:   at,
	}
}
