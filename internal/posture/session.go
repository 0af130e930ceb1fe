package posture

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned when an event is not allowed in the
// current state.
var ErrInvalidTransition = errors.New("invalid state transition")

// State is the session state that decides where frames go.
type State int

const (
	StateSetup State = iota
	StateCalibrating
	StateMonitoring
	StatePaused
)

var stateNames = map[State]string{
	StateSetup:       "setup",
	StateCalibrating: "calibrating",
	StateMonitoring:  "monitoring",
	StatePaused:      "paused",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for st, name := range stateNames {
		if name == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Route tells the frame path what to do with a frame.
type Route int

const (
	// RouteDiscard drops the frame.
	RouteDiscard Route = iota
	// RouteCalibrate feeds the frame to the calibrator.
	RouteCalibrate
	// RouteClassify classifies the frame.
	RouteClassify
)

// Session is the monitoring state machine:
//
//	Setup -> Calibrating -> Monitoring <-> Paused
//
// Recalibrate returns to Setup from any state. With a positive interval,
// Monitoring classifies one frame per interval and the countdown freezes
// while Paused. Session is not safe for concurrent use.
type Session struct {
	state     State
	interval  time.Duration
	next      time.Time
	remaining time.Duration
	now       func() time.Time
}

// NewSession creates a Session in Setup. An interval of 0 classifies every
// frame while monitoring.
func NewSession(interval time.Duration) *Session {
	if interval < 0 {
		interval = 0
	}
	return &Session{interval: interval, now: time.Now}
}

// SetClock replaces the time source.
func (s *Session) SetClock(now func() time.Time) {
	s.now = now
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// Interval returns the analysis interval; 0 means continuous.
func (s *Session) Interval() time.Duration {
	return s.interval
}

// Ready moves Setup to Calibrating once the camera and model are ready.
func (s *Session) Ready() error {
	return s.transition("ready", StateSetup, StateCalibrating)
}

// Calibrated moves Calibrating to Monitoring and arms the countdown.
func (s *Session) Calibrated() error {
	if err := s.transition("calibrated", StateCalibrating, StateMonitoring); err != nil {
		return err
	}
	s.arm(s.interval)
	return nil
}

// Pause moves Monitoring to Paused and freezes the countdown.
func (s *Session) Pause() error {
	if err := s.transition("pause", StateMonitoring, StatePaused); err != nil {
		return err
	}
	if s.interval > 0 {
		s.remaining = max(s.next.Sub(s.now()), 0)
	}
	return nil
}

// Resume moves Paused to Monitoring, continuing the frozen countdown.
func (s *Session) Resume() error {
	if err := s.transition("resume", StatePaused, StateMonitoring); err != nil {
		return err
	}
	s.arm(s.remaining)
	return nil
}

// Recalibrate returns to Setup from any state.
func (s *Session) Recalibrate() {
	s.state = StateSetup
	s.next = time.Time{}
	s.remaining = 0
}

// Route decides what to do with a frame arriving now.
func (s *Session) Route() Route {
	switch s.state {
	case StateCalibrating:
		return RouteCalibrate
	case StateMonitoring:
		if s.interval == 0 {
			return RouteClassify
		}
		now := s.now()
		if now.Before(s.next) {
			return RouteDiscard
		}
		s.next = now.Add(s.interval)
		return RouteClassify
	default:
		return RouteDiscard
	}
}

// Remaining returns the time until the next analysis. It is 0 in
// continuous mode and outside Monitoring and Paused.
func (s *Session) Remaining() time.Duration {
	if s.interval == 0 {
		return 0
	}
	switch s.state {
	case StatePaused:
		return s.remaining
	case StateMonitoring:
		return max(s.next.Sub(s.now()), 0)
	default:
		return 0
	}
}

func (s *Session) arm(d time.Duration) {
	if s.interval == 0 {
		return
	}
	s.next = s.now().Add(d)
	s.remaining = 0
}

func (s *Session) transition(event string, from, to State) error {
	if s.state != from {
		return fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, event, s.state)
	}
	s.state = to
	return nil
}
