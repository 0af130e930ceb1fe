// Package capture reads webcam frames with GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// Default camera settings. Posture changes slowly, so a low frame rate
// keeps the pose model cheap.
const (
	DefaultFPS    = 10
	DefaultWidth  = 640
	DefaultHeight = 480

	// DefaultMaxReadFailures is how many reads in a row may fail before the
	// device counts as lost.
	DefaultMaxReadFailures = 30
)

var (
	// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")

	// ErrEmptyFrame is returned when the device delivers an empty image.
	ErrEmptyFrame = errors.New("captured frame is empty")

	// ErrCameraLost is returned once reads have failed MaxReadFailures times
	// in a row, typically because the webcam was unplugged or taken by
	// another application.
	ErrCameraLost = errors.New("camera lost")
)

// Config holds camera settings.
type Config struct {
	DeviceID        int
	FPS             int
	Width           int
	Height          int
	MaxReadFailures int
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		DeviceID:        0,
		FPS:             DefaultFPS,
		Width:           DefaultWidth,
		Height:          DefaultHeight,
		MaxReadFailures: DefaultMaxReadFailures,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.FPS <= 0 {
		c.FPS = def.FPS
	}
	if c.Width <= 0 {
		c.Width = def.Width
	}
	if c.Height <= 0 {
		c.Height = def.Height
	}
	if c.MaxReadFailures <= 0 {
		c.MaxReadFailures = def.MaxReadFailures
	}
	return c
}

// Camera is a frame source the pose pipeline polls.
type Camera interface {
	Open() error
	Close() error
	// ReadFrame returns the next frame. The caller closes the Mat.
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

var _ Camera = (*Webcam)(nil)

// Webcam is a Camera backed by a gocv.VideoCapture device.
type Webcam struct {
	config Config

	mu       sync.Mutex
	capture  *gocv.VideoCapture
	failures int
}

// NewCamera creates a Webcam. Zero fields in config take their defaults.
func NewCamera(config Config) *Webcam {
	return &Webcam{config: config.withDefaults()}
}

// Open opens the device and requests the configured size and frame rate.
// Opening an open camera is a no-op.
func (c *Webcam) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture != nil {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(c.config.DeviceID)
	if err != nil {
		return fmt.Errorf("open camera %d: %w", c.config.DeviceID, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("open camera %d: device not available", c.config.DeviceID)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(c.config.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(c.config.Height))
	capture.Set(gocv.VideoCaptureFPS, float64(c.config.FPS))

	c.capture = capture
	c.failures = 0
	return nil
}

// Close releases the device. Closing a closed camera is a no-op.
func (c *Webcam) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil
	}
	err := c.capture.Close()
	c.capture = nil
	return err
}

// ReadFrame grabs one frame. After MaxReadFailures consecutive failures it
// returns an error wrapping ErrCameraLost; the device stays open so the
// caller decides whether to reopen it.
func (c *Webcam) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	var err error
	switch {
	case !c.capture.Read(&mat):
		err = errors.New("read failed")
	case mat.Empty():
		err = ErrEmptyFrame
	}
	if err != nil {
		mat.Close()
		return nil, c.readFailed(err)
	}

	c.failures = 0
	return &mat, nil
}

func (c *Webcam) readFailed(err error) error {
	c.failures++
	if c.failures >= c.config.MaxReadFailures {
		return fmt.Errorf("%w after %d failed reads: %w", ErrCameraLost, c.failures, err)
	}
	return fmt.Errorf("camera %d: %w", c.config.DeviceID, err)
}

// SetFPS changes the capture rate. Values <= 0 are ignored.
func (c *Webcam) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.config.FPS = fps
	if c.capture != nil {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

// FPS returns the configured capture rate.
func (c *Webcam) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config.FPS
}

// IsOpen reports whether the device is open.
func (c *Webcam) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capture != nil
}

// Failures returns the number of consecutive failed reads.
func (c *Webcam) Failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}
