package pose

import (
	"context"
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu        sync.Mutex
	landmarks *Landmarks
	err       error
	initErr   error
	inits     int
	closes    int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetLandmarks sets the landmarks that will be returned by Detect.
func (m *MockDetector) SetLandmarks(lm *Landmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.landmarks = lm
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetInitError sets the error that will be returned by Init.
func (m *MockDetector) SetInitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initErr = err
}

// Init records the call and returns the configured init error.
func (m *MockDetector) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inits++
	return m.initErr
}

// Detect returns the pre-configured landmarks or error.
func (m *MockDetector) Detect(frame *gocv.Mat) (*Landmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.landmarks.Clone(), nil
}

// Close records the call.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

// Calls returns how many times Init and Close were called.
func (m *MockDetector) Calls() (inits, closes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inits, m.closes
}

// Seated describes a synthetic seated upper body facing the camera.
// Distances are in normalized image coordinates.
type Seated struct {
	// ShoulderWidth is the horizontal distance between the shoulders.
	ShoulderWidth float64
	// HeadForward is the horizontal offset of the ear midpoint from the
	// shoulder midpoint.
	HeadForward float64
	// NeckTilt is the slope of the line between the ears.
	NeckTilt float64
	// ShoulderSlope is the slope of the line between the shoulders.
	ShoulderSlope float64
}

// Landmarks builds a full 33-point landmark set for the pose.
// The shoulder midpoint sits at (0.5, 0.6) and the ear midpoint 0.2 above it.
func (s Seated) Landmarks() *Landmarks {
	const (
		neckX = 0.5
		neckY = 0.6
		earY  = 0.4
		vis   = 0.99
	)

	half := s.ShoulderWidth / 2
	earHalf := s.ShoulderWidth * 0.35
	earX := neckX + s.HeadForward

	lm := &Landmarks{
		Points: make([]Point, NumLandmarks),
		Score:  0.95,
	}
	set := func(i int, x, y float64) {
		lm.Points[i] = Point{X: x, Y: y, Visibility: vis}
	}

	// Head
	set(Nose, earX, earY+0.02)
	set(LeftEyeInner, earX+earHalf*0.3, earY-0.02)
	set(LeftEye, earX+earHalf*0.5, earY-0.02+s.NeckTilt*earHalf*0.5)
	set(LeftEyeOuter, earX+earHalf*0.7, earY-0.02)
	set(RightEyeInner, earX-earHalf*0.3, earY-0.02)
	set(RightEye, earX-earHalf*0.5, earY-0.02-s.NeckTilt*earHalf*0.5)
	set(RightEyeOuter, earX-earHalf*0.7, earY-0.02)
	set(LeftEar, earX+earHalf, earY+s.NeckTilt*earHalf)
	set(RightEar, earX-earHalf, earY-s.NeckTilt*earHalf)
	set(MouthLeft, earX+earHalf*0.3, earY+0.05)
	set(MouthRight, earX-earHalf*0.3, earY+0.05)

	// Shoulders
	set(LeftShoulder, neckX+half, neckY+s.ShoulderSlope*half)
	set(RightShoulder, neckX-half, neckY-s.ShoulderSlope*half)

	// Arms resting on a desk
	set(LeftElbow, neckX+half*1.2, neckY+0.2)
	set(RightElbow, neckX-half*1.2, neckY+0.2)
	set(LeftWrist, neckX+half*0.6, neckY+0.3)
	set(RightWrist, neckX-half*0.6, neckY+0.3)
	for _, i := range []int{LeftPinky, LeftIndex, LeftThumb} {
		set(i, neckX+half*0.5, neckY+0.32)
	}
	for _, i := range []int{RightPinky, RightIndex, RightThumb} {
		set(i, neckX-half*0.5, neckY+0.32)
	}

	// Lower body is mostly out of frame for a desk camera
	lower := []int{LeftHip, RightHip, LeftKnee, RightKnee, LeftAnkle, RightAnkle,
		LeftHeel, RightHeel, LeftFootIndex, RightFootIndex}
	for _, i := range lower {
		x := neckX + half*0.8
		if i%2 == 0 {
			x = neckX - half*0.8
		}
		lm.Points[i] = Point{X: x, Y: 1.0, Visibility: 0.05}
	}

	return lm
}

// UprightLandmarks returns landmarks for a person sitting straight with a
// shoulder width of 0.2.
func UprightLandmarks() *Landmarks {
	return Seated{ShoulderWidth: 0.2}.Landmarks()
}

// ForwardHeadLandmarks returns landmarks for a person leaning their head
// forward by the given horizontal offset with a shoulder width of 0.2.
func ForwardHeadLandmarks(forward float64) *Landmarks {
	return Seated{ShoulderWidth: 0.2, HeadForward: forward}.Landmarks()
}

// TiltedHeadLandmarks returns landmarks with the ear line at the given slope.
func TiltedHeadLandmarks(slope float64) *Landmarks {
	return Seated{ShoulderWidth: 0.2, NeckTilt: slope}.Landmarks()
}
