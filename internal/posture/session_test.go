package posture

import (
	"errors"
	"testing"
	"time"
)

func TestSession_Transitions(t *testing.T) {
	type step struct {
		event   string
		wantErr bool
		want    State
	}

	tests := []struct {
		name  string
		steps []step
	}{
		{
			name: "happy path",
			steps: []step{
				{"ready", false, StateCalibrating},
				{"calibrated", false, StateMonitoring},
				{"pause", false, StatePaused},
				{"resume", false, StateMonitoring},
			},
		},
		{
			name: "pause before monitoring",
			steps: []step{
				{"pause", true, StateSetup},
				{"ready", false, StateCalibrating},
				{"pause", true, StateCalibrating},
			},
		},
		{
			name: "resume while monitoring",
			steps: []step{
				{"ready", false, StateCalibrating},
				{"calibrated", false, StateMonitoring},
				{"resume", true, StateMonitoring},
			},
		},
		{
			name: "ready twice",
			steps: []step{
				{"ready", false, StateCalibrating},
				{"ready", true, StateCalibrating},
			},
		},
		{
			name: "calibrated from setup",
			steps: []step{
				{"calibrated", true, StateSetup},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession(0)
			for i, st := range tt.steps {
				var err error
				switch st.event {
				case "ready":
					err = s.Ready()
				case "calibrated":
					err = s.Calibrated()
				case "pause":
					err = s.Pause()
				case "resume":
					err = s.Resume()
				}
				if st.wantErr != (err != nil) {
					t.Fatalf("step %d (%s): error = %v, wantErr %v", i, st.event, err, st.wantErr)
				}
				if err != nil && !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("step %d: error %v is not ErrInvalidTransition", i, err)
				}
				if s.State() != st.want {
					t.Fatalf("step %d (%s): state = %s, want %s", i, st.event, s.State(), st.want)
				}
			}
		})
	}
}

func TestSession_RecalibrateFromAnyState(t *testing.T) {
	setups := map[State]func(*Session){
		StateSetup:       func(*Session) {},
		StateCalibrating: func(s *Session) { s.Ready() },
		StateMonitoring:  func(s *Session) { s.Ready(); s.Calibrated() },
		StatePaused:      func(s *Session) { s.Ready(); s.Calibrated(); s.Pause() },
	}

	for from, setup := range setups {
		t.Run(from.String(), func(t *testing.T) {
			s := NewSession(0)
			setup(s)
			if s.State() != from {
				t.Fatalf("setup reached %s, want %s", s.State(), from)
			}
			s.Recalibrate()
			s.Recalibrate()
			if s.State() != StateSetup {
				t.Errorf("state = %s, want setup", s.State())
			}
		})
	}
}

func TestSession_Route(t *testing.T) {
	s := NewSession(0)

	if r := s.Route(); r != RouteDiscard {
		t.Errorf("setup routes %v, want discard", r)
	}
	s.Ready()
	if r := s.Route(); r != RouteCalibrate {
		t.Errorf("calibrating routes %v, want calibrate", r)
	}
	s.Calibrated()
	for i := 0; i < 3; i++ {
		if r := s.Route(); r != RouteClassify {
			t.Errorf("continuous monitoring routes %v, want classify", r)
		}
	}
	s.Pause()
	if r := s.Route(); r != RouteDiscard {
		t.Errorf("paused routes %v, want discard", r)
	}
}

func TestSession_CountdownFreezesWhilePaused(t *testing.T) {
	now := t0
	s := NewSession(30 * time.Second)
	s.SetClock(func() time.Time { return now })

	s.Ready()
	s.Calibrated()

	if r := s.Route(); r != RouteDiscard {
		t.Fatal("first analysis should wait for the interval")
	}

	now = now.Add(10 * time.Second)
	if got := s.Remaining(); got != 20*time.Second {
		t.Fatalf("Remaining() = %v, want 20s", got)
	}

	s.Pause()
	now = now.Add(5 * time.Minute)
	if got := s.Remaining(); got != 20*time.Second {
		t.Fatalf("Remaining() while paused = %v, want 20s", got)
	}

	s.Resume()
	now = now.Add(19 * time.Second)
	if r := s.Route(); r != RouteDiscard {
		t.Fatal("countdown should not have expired yet")
	}

	now = now.Add(time.Second)
	if r := s.Route(); r != RouteClassify {
		t.Fatal("expected analysis when the countdown expires")
	}
	if got := s.Remaining(); got != 30*time.Second {
		t.Errorf("Remaining() after analysis = %v, want 30s", got)
	}
}

func TestState_Text(t *testing.T) {
	for st, name := range stateNames {
		b, err := st.MarshalText()
		if err != nil || string(b) != name {
			t.Errorf("MarshalText(%d) = %q, %v", st, b, err)
		}
		var back State
		if err := back.UnmarshalText(b); err != nil || back != st {
			t.Errorf("UnmarshalText(%q) = %v, %v", b, back, err)
		}
	}

	var s State
	if err := s.UnmarshalText([]byte("sleeping")); err == nil {
		t.Error("expected error for unknown state")
	}
}
