// Package posture turns body landmarks into posture measurements, derives a
// personal scale from a calibration episode and classifies live measurements.
package posture

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ayusman/posturepilot/internal/pose"
	"github.com/golang/geo/r3"
)

// MaxSlope bounds slopes between two points that share an x coordinate.
const MaxSlope = 1e3

// ErrInsufficientLandmarks is returned when a frame lacks a keypoint the
// extractor needs.
var ErrInsufficientLandmarks = errors.New("insufficient landmarks")

// required lists the keypoints every extraction reads.
var required = []int{
	pose.Nose,
	pose.LeftEye, pose.RightEye,
	pose.LeftEar, pose.RightEar,
	pose.LeftShoulder, pose.RightShoulder,
}

// HeadForward describes where the head sits relative to the shoulders.
type HeadForward struct {
	// Forward is the horizontal distance between the ear midpoint and the
	// shoulder midpoint.
	Forward float64 `json:"forward"`
	// Vertical is the ear midpoint's y minus the shoulder midpoint's y.
	Vertical float64 `json:"vertical"`
	// NoseAngle is the angle of the shoulder-midpoint-to-nose vector in degrees.
	NoseAngle float64 `json:"noseAngle"`
}

// Features are the posture measurements derived from a single frame.
type Features struct {
	ShoulderSlope    float64     `json:"shoulderSlope"`
	NeckTilt         float64     `json:"neckTilt"`
	HeadForward      HeadForward `json:"headForward"`
	ShoulderDistance float64     `json:"shoulderDistance"`
	Timestamp        time.Time   `json:"timestamp"`
}

// Extractor computes Features from landmarks.
type Extractor struct {
	// MinVisibility treats keypoints below this visibility as absent.
	// Zero accepts every keypoint the model returned.
	MinVisibility float64
}

// Extract computes Features from lm with the default Extractor.
func Extract(lm *pose.Landmarks, ts time.Time) (Features, error) {
	return Extractor{}.Extract(lm, ts)
}

// Extract computes Features from lm. The result depends only on lm and ts.
func (e Extractor) Extract(lm *pose.Landmarks, ts time.Time) (Features, error) {
	if lm == nil {
		return Features{}, fmt.Errorf("%w: no landmarks", ErrInsufficientLandmarks)
	}

	var pts [pose.NumLandmarks]pose.Point
	for _, i := range required {
		p, ok := lm.Get(i, e.MinVisibility)
		if !ok || !finite(p) {
			return Features{}, fmt.Errorf("%w: missing %s", ErrInsufficientLandmarks, pose.Name(i))
		}
		pts[i] = p
	}

	nose := pts[pose.Nose].Vec()
	lEar, rEar := pts[pose.LeftEar].Vec(), pts[pose.RightEar].Vec()
	lSh, rSh := pts[pose.LeftShoulder].Vec(), pts[pose.RightShoulder].Vec()

	neck := midpoint(lSh, rSh)
	earMid := midpoint(lEar, rEar)
	toNose := nose.Sub(neck)

	return Features{
		ShoulderSlope: slope(lSh, rSh),
		NeckTilt:      slope(lEar, rEar),
		HeadForward: HeadForward{
			Forward:   math.Abs(earMid.X - neck.X),
			Vertical:  earMid.Y - neck.Y,
			NoseAngle: math.Atan2(toNose.Y, toNose.X) * 180 / math.Pi,
		},
		ShoulderDistance: math.Abs(lSh.X - rSh.X),
		Timestamp:        ts,
	}, nil
}

func finite(p pose.Point) bool {
	for _, v := range []float64{p.X, p.Y, p.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func midpoint(a, b r3.Vector) r3.Vector {
	return a.Add(b).Mul(0.5)
}

// slope returns Δy/Δx from a to b. Vertical lines clamp to ±MaxSlope and a
// degenerate pair (same point) has zero slope.
func slope(a, b r3.Vector) float64 {
	d := b.Sub(a)
	if math.Abs(d.X) < 1e-9 {
		switch {
		case d.Y > 0:
			return MaxSlope
		case d.Y < 0:
			return -MaxSlope
		default:
			return 0
		}
	}
	s := d.Y / d.X
	return math.Max(-MaxSlope, math.Min(MaxSlope, s))
}
