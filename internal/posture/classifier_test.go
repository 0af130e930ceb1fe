package posture

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func features(forward, tilt, slope float64) Features {
	return Features{
		HeadForward:      HeadForward{Forward: forward},
		NeckTilt:         tilt,
		ShoulderSlope:    slope,
		ShoulderDistance: 0.2,
	}
}

func TestClassify(t *testing.T) {
	lim := DefaultLimits()

	tests := []struct {
		name      string
		f         Features
		wantLevel Level
		wantMsg   string
	}{
		{
			name:      "upright",
			f:         features(0.01, 0.02, -0.03),
			wantLevel: LevelGood,
			wantMsg:   MessageGood,
		},
		{
			// 0.07 / 0.20 = 0.35, between 0.25 and 0.375
			name:      "forward head warning",
			f:         features(0.07, 0, 0),
			wantLevel: LevelWarning,
			wantMsg:   "Forward Head",
		},
		{
			// 0.08 / 0.20 = 0.40, above 1.5 x 0.25
			name:      "forward 0.08 exceeds escalated limit",
			f:         features(0.08, 0, 0),
			wantLevel: LevelBad,
			wantMsg:   "Forward Head",
		},
		{
			name:      "forward head bad",
			f:         features(0.12, 0, 0),
			wantLevel: LevelBad,
			wantMsg:   "Forward Head",
		},
		{
			name:      "negative tilt uses magnitude",
			f:         features(0, -0.12, 0),
			wantLevel: LevelWarning,
			wantMsg:   "Head Tilt",
		},
		{
			name:      "uneven shoulders bad",
			f:         features(0, 0, 0.3),
			wantLevel: LevelBad,
			wantMsg:   "Uneven Shoulders",
		},
		{
			name:      "bad then warnings keeps bad and joins labels",
			f:         features(0.12, 0.11, 0.16),
			wantLevel: LevelBad,
			wantMsg:   "Forward Head & Head Tilt & Uneven Shoulders",
		},
		{
			name:      "warning escalates to bad",
			f:         features(0.06, 0.2, 0),
			wantLevel: LevelBad,
			wantMsg:   "Forward Head & Head Tilt",
		},
		{
			name:      "tilt and slope exactly at limit is good",
			f:         features(0.04, 0.10, 0.15),
			wantLevel: LevelGood,
			wantMsg:   MessageGood,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Classify(tt.f, 0.20, lim)
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if s.Level != tt.wantLevel {
				t.Errorf("Level = %s, want %s (metrics %+v)", s.Level, tt.wantLevel, s.Metrics)
			}
			if s.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", s.Message, tt.wantMsg)
			}
			if s.ShouldNotify() != (tt.wantLevel != LevelGood) {
				t.Errorf("ShouldNotify() = %v for level %s", s.ShouldNotify(), s.Level)
			}
			if s.Measurements != tt.f {
				t.Error("Measurements should carry the classified features")
			}
		})
	}
}

func TestClassify_NotCalibrated(t *testing.T) {
	for _, scale := range []float64{0, -1, math.NaN()} {
		if _, err := Classify(features(0.1, 0, 0), scale, DefaultLimits()); !errors.Is(err, ErrNotCalibrated) {
			t.Errorf("scale %v: error = %v, want ErrNotCalibrated", scale, err)
		}
	}
}

func TestClassify_MonotonicInForward(t *testing.T) {
	lim := DefaultLimits()
	for _, other := range []Features{features(0, 0, 0), features(0, 0.11, 0), features(0, 0, 0.2)} {
		prev := -1
		for forward := 0.0; forward <= 0.2; forward += 0.001 {
			f := other
			f.HeadForward.Forward = forward
			s, err := Classify(f, 0.2, lim)
			if err != nil {
				t.Fatal(err)
			}
			if r := s.Level.rank(); r < prev {
				t.Fatalf("severity dropped at forward=%.3f (tilt %.2f, slope %.2f)", forward, other.NeckTilt, other.ShoulderSlope)
			} else {
				prev = r
			}
		}
	}
}

func TestClassify_BadNeverDowngrades(t *testing.T) {
	lim := DefaultLimits()
	// Every check set to bad alone; combining with any mix of the others
	// must stay bad.
	bads := []Features{features(0.1, 0, 0), features(0, 0.2, 0), features(0, 0, 0.3)}
	mods := []Features{features(0, 0, 0), features(0.06, 0, 0), features(0, 0.11, 0), features(0, 0, 0.16)}

	for _, b := range bads {
		for _, m := range mods {
			f := Features{
				HeadForward:   HeadForward{Forward: math.Max(b.HeadForward.Forward, m.HeadForward.Forward)},
				NeckTilt:      math.Max(b.NeckTilt, m.NeckTilt),
				ShoulderSlope: math.Max(b.ShoulderSlope, m.ShoulderSlope),
			}
			s, _ := Classify(f, 0.2, lim)
			if s.Level != LevelBad {
				t.Errorf("features %+v downgraded to %s", f, s.Level)
			}
			if strings.Contains(s.Message, MessageGood) {
				t.Errorf("message %q should not mention good posture", s.Message)
			}
		}
	}
}

func TestMetrics_Percent(t *testing.T) {
	m := Metrics{NormForward: 0.125, NeckTiltAbs: 0.5, ShoulderSlopeAbs: 30}
	p := m.Percent(DefaultLimits())

	if math.Abs(p.NormForward-50) > 1e-9 {
		t.Errorf("NormForward = %v, want 50", p.NormForward)
	}
	if math.Abs(p.NeckTiltAbs-500) > 1e-9 {
		t.Errorf("NeckTiltAbs = %v, want 500", p.NeckTiltAbs)
	}
	if p.ShoulderSlopeAbs != 999 {
		t.Errorf("ShoulderSlopeAbs = %v, want capped 999", p.ShoulderSlopeAbs)
	}
}
