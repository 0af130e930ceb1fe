package pose

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Record is one line of a landmark recording. Recordings are JSON lines;
// a record without points means no person was detected in that frame.
type Record struct {
	OffsetMs int64   `json:"offset_ms"`
	Points   []Point `json:"points,omitempty"`
}

// Recording is a sequence of landmark records in capture order.
type Recording []Record

// LoadRecording reads a JSON-lines recording. Blank lines are ignored.
func LoadRecording(r io.Reader) (Recording, error) {
	var rec Recording

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rec = append(rec, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read recording: %w", err)
	}
	return rec, nil
}

// LoadRecordingFile reads a recording from path.
func LoadRecordingFile(path string) (Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadRecording(f)
}

// Recorder appends frames to a JSON-lines recording.
type Recorder struct {
	mu    sync.Mutex
	enc   *json.Encoder
	start time.Time
}

// NewRecorder creates a Recorder writing to w.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{enc: json.NewEncoder(w)}
}

// Write appends one frame. Offsets are relative to the first frame written.
func (r *Recorder) Write(f Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.start.IsZero() {
		r.start = f.Timestamp
	}
	record := Record{OffsetMs: f.Timestamp.Sub(r.start).Milliseconds()}
	if f.HasLandmarks() {
		record.Points = f.Landmarks.Points
	}
	return r.enc.Encode(record)
}

// ReplaySource is a Source that plays back a recording. Frames are paced by
// their recorded offsets divided by Speed; a Speed of 0 plays back as fast
// as the consumer accepts them.
type ReplaySource struct {
	recording Recording
	Speed     float64

	mu     sync.Mutex
	ready  bool
	stopCh chan struct{}
	doneCh chan struct{}
	done   chan struct{}
}

// NewReplaySource creates a ReplaySource for rec at real-time speed.
func NewReplaySource(rec Recording) *ReplaySource {
	return &ReplaySource{recording: rec, Speed: 1, done: make(chan struct{})}
}

// Len returns the number of frames in the recording.
func (s *ReplaySource) Len() int {
	return len(s.recording)
}

// Init prepares playback. It never fails.
func (s *ReplaySource) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
	return ctx.Err()
}

// Start plays the recording from the beginning.
func (s *ReplaySource) Start(onResult func(Frame)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return ErrSourceNotReady
	}
	if s.stopCh != nil {
		return nil
	}

	select {
	case <-s.done:
		s.done = make(chan struct{})
	default:
	}

	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.play(s.stopCh, s.doneCh, s.done, onResult)
	return nil
}

// Done returns a channel that is closed when the current playback has
// delivered every frame.
func (s *ReplaySource) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Stop stops playback.
func (s *ReplaySource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	return nil
}

func (s *ReplaySource) stopLocked() {
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	<-s.doneCh
	s.stopCh = nil
	s.doneCh = nil
}

// Close stops playback and requires a new Init before the next Start.
func (s *ReplaySource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.ready = false
	return nil
}

func (s *ReplaySource) play(stopCh <-chan struct{}, doneCh, finished chan<- struct{}, onResult func(Frame)) {
	defer close(doneCh)

	start := time.Now()
	for i, record := range s.recording {
		if s.Speed > 0 {
			due := start.Add(time.Duration(float64(record.OffsetMs)/s.Speed) * time.Millisecond)
			if wait := time.Until(due); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-stopCh:
					timer.Stop()
					return
				case <-timer.C:
				}
			}
		}

		select {
		case <-stopCh:
			return
		default:
		}

		frame := Frame{
			Timestamp: start.Add(time.Duration(record.OffsetMs) * time.Millisecond),
			Seq:       uint64(i + 1),
		}
		if len(record.Points) > 0 {
			frame.Landmarks = &Landmarks{Points: record.Points}
		}
		onResult(frame)
	}
	close(finished)
}
