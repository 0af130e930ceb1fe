package app

import (
	"sync"
	"time"

	"github.com/ayusman/posturepilot/internal/posture"
)

// EventType identifies a controller event.
type EventType string

const (
	EventStateChanged        EventType = "state_changed"
	EventCalibrationProgress EventType = "calibration_progress"
	EventStatusUpdated       EventType = "status_updated"
)

// Progress is the state of the running calibration episode.
type Progress struct {
	Have int `json:"have"`
	Need int `json:"need"`
}

// Event is delivered to subscribers. Only the fields relevant to Type are set.
type Event struct {
	Type     EventType              `json:"type"`
	State    posture.State          `json:"state"`
	Time     time.Time              `json:"time"`
	Progress *Progress              `json:"progress,omitempty"`
	Baseline *posture.Baseline      `json:"baseline,omitempty"`
	Status   *posture.Status        `json:"status,omitempty"`
	Percent  *posture.MetricPercent `json:"percent,omitempty"`
}

// subscribers is the set of event callbacks.
type subscribers struct {
	mu   sync.RWMutex
	next int
	fns  map[int]func(Event)
}

func (s *subscribers) add(fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fns == nil {
		s.fns = make(map[int]func(Event))
	}
	id := s.next
	s.next++
	s.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.fns, id)
			s.mu.Unlock()
		})
	}
}

func (s *subscribers) snapshot() []func(Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fns := make([]func(Event), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	return fns
}
