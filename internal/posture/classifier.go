package posture

import (
	"errors"
	"math"
	"strings"
)

// ErrNotCalibrated is returned when classifying without a positive scale.
var ErrNotCalibrated = errors.New("posture is not calibrated")

// Level is the severity of a posture classification.
type Level string

const (
	LevelGood    Level = "good"
	LevelWarning Level = "warning"
	LevelBad     Level = "bad"
	// LevelUnknown is used by indicators when no classification is running.
	LevelUnknown Level = "unknown"
)

func (l Level) rank() int {
	switch l {
	case LevelWarning:
		return 1
	case LevelBad:
		return 2
	default:
		return 0
	}
}

// Check labels.
const (
	LabelForwardHead     = "Forward Head"
	LabelHeadTilt        = "Head Tilt"
	LabelUnevenShoulders = "Uneven Shoulders"
	MessageGood          = "Good Posture"
)

// Limits are the classification thresholds. A metric above its limit is a
// warning; above limit×Escalation it is bad.
type Limits struct {
	HeadForward   float64 `json:"headForward" yaml:"head_forward"`
	NeckTilt      float64 `json:"neckTilt" yaml:"neck_tilt"`
	ShoulderSlope float64 `json:"shoulderSlope" yaml:"shoulder_slope"`
	Escalation    float64 `json:"escalation" yaml:"escalation"`
}

// DefaultLimits returns the standard thresholds.
func DefaultLimits() Limits {
	return Limits{
		HeadForward:   0.25,
		NeckTilt:      0.10,
		ShoulderSlope: 0.15,
		Escalation:    1.5,
	}
}

// Metrics are the live values compared against Limits.
type Metrics struct {
	NormForward      float64 `json:"normForward"`
	NeckTiltAbs      float64 `json:"neckTiltAbs"`
	ShoulderSlopeAbs float64 `json:"shoulderSlopeAbs"`
}

// MetricPercent is each metric as a percentage of its limit.
type MetricPercent struct {
	NormForward      float64 `json:"normForward"`
	NeckTiltAbs      float64 `json:"neckTiltAbs"`
	ShoulderSlopeAbs float64 `json:"shoulderSlopeAbs"`
}

// Percent returns the metrics as percentages of lim, capped at 999.
func (m Metrics) Percent(lim Limits) MetricPercent {
	return MetricPercent{
		NormForward:      percent(m.NormForward, lim.HeadForward),
		NeckTiltAbs:      percent(m.NeckTiltAbs, lim.NeckTilt),
		ShoulderSlopeAbs: percent(m.ShoulderSlopeAbs, lim.ShoulderSlope),
	}
}

func percent(v, limit float64) float64 {
	if limit <= 0 {
		return 999
	}
	return math.Min(v/limit*100, 999)
}

// Status is the result of classifying one frame.
type Status struct {
	Level        Level    `json:"status"`
	Message      string   `json:"message"`
	Metrics      Metrics  `json:"metrics"`
	Measurements Features `json:"measurements"`
}

// ShouldNotify reports whether the status warrants an alert.
func (s Status) ShouldNotify() bool {
	return s.Level != LevelGood
}

// Classify compares f, normalized by scale, against lim.
func Classify(f Features, scale float64, lim Limits) (Status, error) {
	if !(scale > 0) {
		return Status{}, ErrNotCalibrated
	}

	m := Metrics{
		NormForward:      f.HeadForward.Forward / scale,
		NeckTiltAbs:      math.Abs(f.NeckTilt),
		ShoulderSlopeAbs: math.Abs(f.ShoulderSlope),
	}

	checks := []struct {
		value, limit float64
		label        string
	}{
		{m.NormForward, lim.HeadForward, LabelForwardHead},
		{m.NeckTiltAbs, lim.NeckTilt, LabelHeadTilt},
		{m.ShoulderSlopeAbs, lim.ShoulderSlope, LabelUnevenShoulders},
	}

	level := LevelGood
	var labels []string
	for _, c := range checks {
		got := grade(c.value, c.limit, lim.Escalation)
		if got == LevelGood {
			continue
		}
		labels = append(labels, c.label)
		if got.rank() > level.rank() {
			level = got
		}
	}

	msg := MessageGood
	if len(labels) > 0 {
		msg = strings.Join(labels, " & ")
	}

	return Status{
		Level:        level,
		Message:      msg,
		Metrics:      m,
		Measurements: f,
	}, nil
}

// grade rates a single metric. An escalation below 1 is treated as 1.
func grade(value, limit, escalation float64) Level {
	if escalation < 1 {
		escalation = 1
	}
	switch {
	case value > limit*escalation:
		return LevelBad
	case value > limit:
		return LevelWarning
	default:
		return LevelGood
	}
}
