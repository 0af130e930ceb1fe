// Package pose provides body landmark types and landmark sources for posture analysis.
package pose

import (
	"strconv"
	"time"

	"github.com/golang/geo/r3"
)

// Body landmark indices following the MediaPipe Pose (BlazePose) convention.
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
const (
	Nose           = 0
	LeftEyeInner   = 1
	LeftEye        = 2
	LeftEyeOuter   = 3
	RightEyeInner  = 4
	RightEye       = 5
	RightEyeOuter  = 6
	LeftEar        = 7
	RightEar       = 8
	MouthLeft      = 9
	MouthRight     = 10
	LeftShoulder   = 11
	RightShoulder  = 12
	LeftElbow      = 13
	RightElbow     = 14
	LeftWrist      = 15
	RightWrist     = 16
	LeftPinky      = 17
	RightPinky     = 18
	LeftIndex      = 19
	RightIndex     = 20
	LeftThumb      = 21
	RightThumb     = 22
	LeftHip        = 23
	RightHip       = 24
	LeftKnee       = 25
	RightKnee      = 26
	LeftAnkle      = 27
	RightAnkle     = 28
	LeftHeel       = 29
	RightHeel      = 30
	LeftFootIndex  = 31
	RightFootIndex = 32
	NumLandmarks   = 33
)

var landmarkNames = map[int]string{
	Nose:          "nose",
	LeftEye:       "left eye",
	RightEye:      "right eye",
	LeftEar:       "left ear",
	RightEar:      "right ear",
	MouthLeft:     "mouth left",
	MouthRight:    "mouth right",
	LeftShoulder:  "left shoulder",
	RightShoulder: "right shoulder",
	LeftElbow:     "left elbow",
	RightElbow:    "right elbow",
	LeftHip:       "left hip",
	RightHip:      "right hip",
}

// Name returns a human-readable name for a landmark index.
func Name(i int) string {
	if name, ok := landmarkNames[i]; ok {
		return name
	}
	return "landmark " + strconv.Itoa(i)
}

// Point is a normalized body keypoint. X and Y are in image coordinates
// (0-1), Z is depth relative to the hips. Visibility is the model's
// confidence that the point is visible (0-1).
type Point struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility,omitempty"`
}

// Vec returns the point as a 3-D vector.
func (p Point) Vec() r3.Vector {
	return r3.Vector{X: p.X, Y: p.Y, Z: p.Z}
}

// Landmarks is the set of keypoints the pose model produced for one person.
// Models may return fewer than NumLandmarks points; missing trailing points
// are treated as absent.
type Landmarks struct {
	Points []Point `json:"points"`
	Score  float64 `json:"score,omitempty"`
}

// Get returns the landmark at index i. The second return value is false if
// the point is absent or its visibility is below minVisibility.
func (l *Landmarks) Get(i int, minVisibility float64) (Point, bool) {
	if l == nil || i < 0 || i >= len(l.Points) {
		return Point{}, false
	}
	p := l.Points[i]
	if minVisibility > 0 && p.Visibility < minVisibility {
		return Point{}, false
	}
	return p, true
}

// Clone returns a deep copy of the landmarks.
func (l *Landmarks) Clone() *Landmarks {
	if l == nil {
		return nil
	}
	points := make([]Point, len(l.Points))
	copy(points, l.Points)
	return &Landmarks{Points: points, Score: l.Score}
}

// Frame is a single result delivered by a landmark source. Landmarks is nil
// when no person was detected in the video frame.
type Frame struct {
	Landmarks *Landmarks `json:"landmarks"`
	Timestamp time.Time  `json:"timestamp"`
	Seq       uint64     `json:"seq"`
}

// HasLandmarks reports whether the frame carries a detection.
func (f Frame) HasLandmarks() bool {
	return f.Landmarks != nil && len(f.Landmarks.Points) > 0
}
