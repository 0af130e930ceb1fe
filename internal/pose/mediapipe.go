package pose

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/vmihailenco/msgpack/v5"
	"gocv.io/x/gocv"
)

// maxMessageSize bounds a single response from the pose service.
const maxMessageSize = 16 << 20

var (
	// ErrDetectorNotReady is returned by Detect before Init has succeeded.
	ErrDetectorNotReady = errors.New("pose detector is not initialized")

	// ErrDetectorLost is returned by Detect when the pose service went away.
	// The detector is shut down and must be initialized again.
	ErrDetectorLost = errors.New("pose service lost")
)

// Wire operations understood by the pose service.
const (
	opConfigure = "configure"
	opDetect    = "detect"
)

// MediaPipeDetector implements Detector using a Python MediaPipe Pose subprocess.
//
// Messages in both directions are framed as a 4-byte big-endian length
// followed by a msgpack payload.
type MediaPipeDetector struct {
	config Config
	script string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	mu     sync.Mutex
	ready  bool
}

// NewMediaPipeDetector creates a new MediaPipe pose detector.
// The Python process is started by Init.
func NewMediaPipeDetector(config Config) (*MediaPipeDetector, error) {
	script := config.ScriptPath
	if script == "" {
		script = findPoseScript()
	}
	if script == "" {
		return nil, fmt.Errorf("pose_service.py not found")
	}

	return &MediaPipeDetector{
		config: config,
		script: script,
	}, nil
}

// Init starts the Python service and sends the model options. The service
// replies once the model is loaded. If ctx expires first, the process is
// killed.
func (d *MediaPipeDetector) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ready {
		return nil
	}

	if err := d.start(); err != nil {
		return err
	}

	w, r := d.stdin, d.stdout
	req := request{Op: opConfigure, Options: optionsFromConfig(d.config)}

	done := make(chan error, 1)
	go func() {
		var resp response
		err := exchange(w, r, req, &resp)
		if err == nil && !resp.OK {
			err = fmt.Errorf("pose service: %s", resp.Error)
		}
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			d.shutdown()
			return fmt.Errorf("configure pose service: %w", err)
		}
		d.ready = true
		return nil
	case <-ctx.Done():
		if d.cmd != nil && d.cmd.Process != nil {
			d.cmd.Process.Kill()
		}
		<-done
		d.shutdown()
		return ctx.Err()
	}
}

// Detect analyzes a frame and returns the detected body landmarks.
func (d *MediaPipeDetector) Detect(frame *gocv.Mat) (*Landmarks, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.ready {
		return nil, ErrDetectorNotReady
	}

	// Encode frame as JPEG
	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	var resp response
	if err := exchange(d.stdin, d.stdout, request{Op: opDetect, Image: buf.GetBytes()}, &resp); err != nil {
		if serviceGone(err) {
			d.shutdown()
			return nil, fmt.Errorf("%w: %w", ErrDetectorLost, err)
		}
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("pose service: %s", resp.Error)
	}

	return resp.landmarks(), nil
}

// Close shuts down the Python process.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

func (d *MediaPipeDetector) start() error {
	if d.cmd != nil {
		return nil
	}

	// Use virtual environment Python if available
	pythonPath := d.config.PythonPath
	if pythonPath == "" {
		pythonPath = findVenvPython()
	}
	if pythonPath == "" {
		pythonPath = "python3"
	}

	cmd := exec.Command(pythonPath, d.script)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	// Capture stderr for debugging
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start pose service: %w", err)
	}

	d.cmd = cmd
	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)

	return nil
}

func (d *MediaPipeDetector) shutdown() error {
	d.ready = false
	if d.cmd == nil {
		return nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// The service exits non-zero when its stdin closes mid-message or
		// when it was killed during Init.
		return nil
	}
	return err
}

// serviceGone reports whether err means the pose process closed its pipes.
func serviceGone(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, os.ErrClosed)
}

// request is the msgpack message sent to the pose service.
type request struct {
	Op      string       `msgpack:"op"`
	Image   []byte       `msgpack:"image,omitempty"`
	Options *wireOptions `msgpack:"options,omitempty"`
}

type wireOptions struct {
	ModelComplexity        int     `msgpack:"model_complexity"`
	SmoothLandmarks        bool    `msgpack:"smooth_landmarks"`
	MinDetectionConfidence float64 `msgpack:"min_detection_confidence"`
	MinTrackingConfidence  float64 `msgpack:"min_tracking_confidence"`
}

func optionsFromConfig(c Config) *wireOptions {
	return &wireOptions{
		ModelComplexity:        c.ModelComplexity,
		SmoothLandmarks:        c.SmoothLandmarks,
		MinDetectionConfidence: c.MinDetectionConf,
		MinTrackingConfidence:  c.MinTrackingConf,
	}
}

// response is the msgpack message returned by the pose service.
type response struct {
	OK        bool        `msgpack:"ok"`
	Error     string      `msgpack:"error,omitempty"`
	Landmarks []wirePoint `msgpack:"landmarks,omitempty"`
	Score     float64     `msgpack:"score,omitempty"`
}

type wirePoint struct {
	X          float64 `msgpack:"x"`
	Y          float64 `msgpack:"y"`
	Z          float64 `msgpack:"z"`
	Visibility float64 `msgpack:"visibility"`
}

func (r response) landmarks() *Landmarks {
	if len(r.Landmarks) == 0 {
		return nil
	}
	lm := &Landmarks{
		Points: make([]Point, 0, NumLandmarks),
		Score:  r.Score,
	}
	for i := 0; i < NumLandmarks && i < len(r.Landmarks); i++ {
		p := r.Landmarks[i]
		lm.Points = append(lm.Points, Point{X: p.X, Y: p.Y, Z: p.Z, Visibility: p.Visibility})
	}
	return lm
}

// exchange writes one request and reads one response.
func exchange(w io.Writer, r io.Reader, req request, resp *response) error {
	if err := writeMessage(w, req); err != nil {
		return err
	}
	return readMessage(r, resp)
}

// writeMessage writes v as a length-prefixed msgpack message.
func writeMessage(w io.Writer, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := w.Write(length); err != nil {
		return fmt.Errorf("write length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	return nil
}

// readMessage reads a length-prefixed msgpack message into v.
func readMessage(r io.Reader, v any) error {
	var length [4]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return fmt.Errorf("read length: %w", err)
	}

	n := binary.BigEndian.Uint32(length[:])
	if n > maxMessageSize {
		return fmt.Errorf("response too large: %d bytes", n)
	}

	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("read data: %w", err)
	}

	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func findPoseScript() string {
	// Get executable directory
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		"scripts/pose_service.py",
		"../scripts/pose_service.py",
		filepath.Join(execDir, "scripts/pose_service.py"),
		filepath.Join(os.Getenv("HOME"), ".posturepilot/scripts/pose_service.py"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".posturepilot/venv/bin/python"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}
