package pose

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ayusman/posturepilot/internal/capture"
	"gocv.io/x/gocv"
)

const (
	// previewMinVisibility hides low-confidence joints on the preview.
	previewMinVisibility = 0.5

	// Restart backoff for a lost pose service, doubled after each failure.
	minRestartBackoff = time.Second
	maxRestartBackoff = 30 * time.Second
	restartTimeout    = 30 * time.Second

	// errorLogInterval limits repeated frame errors in the log.
	errorLogInterval = 5 * time.Second
)

// CameraSource is a Source that reads frames from a camera and runs them
// through a pose Detector. It keeps the latest annotated frame as JPEG for
// live previews.
type CameraSource struct {
	camera   capture.Camera
	detector Detector

	mu     sync.Mutex
	ready  bool
	stopCh chan struct{}
	doneCh chan struct{}
	seq    uint64

	// Owned by the capture goroutine.
	detectorDown bool
	backoff      time.Duration
	retryAt      time.Time
	errLog       logLimiter

	// restartBackoff is the first delay before restarting a lost detector.
	restartBackoff time.Duration

	pmu      sync.RWMutex
	preview  []byte
	reopens  int
	restarts int
}

// NewCameraSource creates a CameraSource. Neither the camera nor the
// detector is touched until Init.
func NewCameraSource(camera capture.Camera, detector Detector) *CameraSource {
	return &CameraSource{
		camera:         camera,
		detector:       detector,
		restartBackoff: minRestartBackoff,
		errLog:         logLimiter{every: errorLogInterval},
	}
}

// Init opens the camera and initializes the detector. If the detector fails
// the camera is closed again.
func (s *CameraSource) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return nil
	}

	if err := s.camera.Open(); err != nil {
		return err
	}

	if err := s.detector.Init(ctx); err != nil {
		s.camera.Close()
		return fmt.Errorf("init pose detector: %w", err)
	}

	s.detectorDown = false
	s.ready = true
	return nil
}

// Start begins the capture loop at the camera's frame rate.
func (s *CameraSource) Start(onResult func(Frame)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return ErrSourceNotReady
	}
	if s.stopCh != nil {
		return nil
	}

	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.run(s.stopCh, s.doneCh, onResult)

	log.Println("Camera source started")
	return nil
}

// Stop stops the capture loop and waits for it to exit.
func (s *CameraSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	return nil
}

func (s *CameraSource) stopLocked() {
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	<-s.doneCh
	s.stopCh = nil
	s.doneCh = nil
}

// Close stops the capture loop, closes the detector and releases the camera.
func (s *CameraSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	var errs []error
	if s.ready {
		if err := s.detector.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close detector: %w", err))
		}
	}
	if err := s.camera.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close camera: %w", err))
	}
	s.ready = false

	s.pmu.Lock()
	s.preview = nil
	s.pmu.Unlock()

	return errors.Join(errs...)
}

// Preview returns the latest annotated frame as JPEG. The second return
// value is false if no frame has been captured since Start.
func (s *CameraSource) Preview() ([]byte, bool) {
	s.pmu.RLock()
	defer s.pmu.RUnlock()
	return s.preview, s.preview != nil
}

func (s *CameraSource) run(stopCh <-chan struct{}, doneCh chan<- struct{}, onResult func(Frame)) {
	defer close(doneCh)

	fps := s.camera.FPS()
	if fps <= 0 {
		fps = capture.DefaultFPS
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			frame, ok := s.capture(ctx)
			if !ok {
				continue
			}
			onResult(frame)
		}
	}
}

func (s *CameraSource) reopen() {
	if err := s.camera.Close(); err != nil {
		log.Printf("Error closing camera: %v", err)
	}
	if err := s.camera.Open(); err != nil {
		log.Printf("Error reopening camera: %v", err)
		return
	}
	s.pmu.Lock()
	s.reopens++
	s.pmu.Unlock()
}

// Reopens returns how often the camera was reopened after being lost.
func (s *CameraSource) Reopens() int {
	s.pmu.RLock()
	defer s.pmu.RUnlock()
	return s.reopens
}

// DetectorRestarts returns how often a lost pose service was restarted.
func (s *CameraSource) DetectorRestarts() int {
	s.pmu.RLock()
	defer s.pmu.RUnlock()
	return s.restarts
}

func (s *CameraSource) detectorLost(err error) {
	log.Printf("Pose service lost, restarting in %s: %v", s.restartBackoff, err)
	s.detectorDown = true
	s.backoff = s.restartBackoff
	s.retryAt = time.Now().Add(s.backoff)
}

// restartDetector initializes the detector again and reports whether it is
// usable. A failure doubles the backoff up to maxRestartBackoff.
func (s *CameraSource) restartDetector(ctx context.Context) bool {
	if err := s.detector.Close(); err != nil {
		log.Printf("Error closing pose detector: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, restartTimeout)
	defer cancel()
	if err := s.detector.Init(ctx); err != nil {
		s.backoff = min(s.backoff*2, maxRestartBackoff)
		s.retryAt = time.Now().Add(s.backoff)
		log.Printf("Pose service restart failed, retrying in %s: %v", s.backoff, err)
		return false
	}

	s.detectorDown = false
	s.pmu.Lock()
	s.restarts++
	s.pmu.Unlock()
	log.Println("Pose service restarted")
	return true
}

// capture reads and analyzes one camera frame.
func (s *CameraSource) capture(ctx context.Context) (Frame, bool) {
	if s.detectorDown {
		if time.Now().Before(s.retryAt) || !s.restartDetector(ctx) {
			return Frame{}, false
		}
	}

	mat, err := s.camera.ReadFrame()
	if errors.Is(err, capture.ErrCameraLost) {
		log.Printf("Camera lost, reopening: %v", err)
		s.reopen()
		return Frame{}, false
	}
	if err != nil {
		s.errLog.Printf("Error reading frame: %v", err)
		return Frame{}, false
	}
	defer mat.Close()

	ts := time.Now()
	lm, err := s.detector.Detect(mat)
	if errors.Is(err, ErrDetectorLost) {
		s.detectorLost(err)
		return Frame{}, false
	}
	if err != nil {
		s.errLog.Printf("Error detecting pose: %v", err)
		return Frame{}, false
	}

	DrawSkeleton(mat, lm, previewMinVisibility)
	if buf, err := gocv.IMEncode(".jpg", *mat); err == nil {
		jpeg := append([]byte(nil), buf.GetBytes()...)
		buf.Close()
		s.pmu.Lock()
		s.preview = jpeg
		s.pmu.Unlock()
	}

	s.seq++
	return Frame{Landmarks: lm, Timestamp: ts, Seq: s.seq}, true
}

// logLimiter logs at most once per interval and counts what it skipped.
type logLimiter struct {
	every      time.Duration
	last       time.Time
	suppressed int
}

func (l *logLimiter) Printf(format string, args ...any) {
	now := time.Now()
	if !l.last.IsZero() && now.Sub(l.last) < l.every {
		l.suppressed++
		return
	}
	if l.suppressed > 0 {
		format = fmt.Sprintf("%s (%d similar errors suppressed)", format, l.suppressed)
	}
	l.last = now
	l.suppressed = 0
	log.Printf(format, args...)
}
