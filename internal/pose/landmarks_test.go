package pose

import (
	"math"
	"testing"
)

const epsilon = 1e-9

func TestLandmarks_Get(t *testing.T) {
	lm := &Landmarks{Points: []Point{
		{X: 0.1, Y: 0.2, Visibility: 0.9},
		{X: 0.3, Y: 0.4, Visibility: 0.2},
	}}

	tests := []struct {
		name   string
		lm     *Landmarks
		index  int
		minVis float64
		wantOK bool
	}{
		{name: "visible point", lm: lm, index: 0, minVis: 0.5, wantOK: true},
		{name: "below visibility", lm: lm, index: 1, minVis: 0.5, wantOK: false},
		{name: "visibility check disabled", lm: lm, index: 1, minVis: 0, wantOK: true},
		{name: "index past end", lm: lm, index: LeftShoulder, wantOK: false},
		{name: "negative index", lm: lm, index: -1, wantOK: false},
		{name: "nil landmarks", lm: nil, index: 0, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := tt.lm.Get(tt.index, tt.minVis)
			if ok != tt.wantOK {
				t.Errorf("Get(%d, %v) ok = %v, want %v", tt.index, tt.minVis, ok, tt.wantOK)
			}
		})
	}
}

func TestLandmarks_Clone(t *testing.T) {
	orig := UprightLandmarks()
	clone := orig.Clone()

	clone.Points[Nose].X = 42
	if orig.Points[Nose].X == 42 {
		t.Error("modifying clone changed the original")
	}

	var nilLM *Landmarks
	if nilLM.Clone() != nil {
		t.Error("expected nil clone of nil landmarks")
	}
}

func TestName(t *testing.T) {
	if got := Name(LeftShoulder); got != "left shoulder" {
		t.Errorf("Name(LeftShoulder) = %q", got)
	}
	if got := Name(LeftHeel); got != "landmark 29" {
		t.Errorf("Name(LeftHeel) = %q", got)
	}
}

func TestFrame_HasLandmarks(t *testing.T) {
	if (Frame{}).HasLandmarks() {
		t.Error("empty frame should have no landmarks")
	}
	if (Frame{Landmarks: &Landmarks{}}).HasLandmarks() {
		t.Error("frame with zero points should have no landmarks")
	}
	if !(Frame{Landmarks: UprightLandmarks()}).HasLandmarks() {
		t.Error("expected landmarks")
	}
}

func TestSeated_Geometry(t *testing.T) {
	pose := Seated{ShoulderWidth: 0.2, HeadForward: 0.05, NeckTilt: 0.1, ShoulderSlope: -0.2}
	lm := pose.Landmarks()

	if len(lm.Points) != NumLandmarks {
		t.Fatalf("expected %d points, got %d", NumLandmarks, len(lm.Points))
	}

	ls, rs := lm.Points[LeftShoulder], lm.Points[RightShoulder]
	if d := math.Abs(ls.X - rs.X); math.Abs(d-0.2) > epsilon {
		t.Errorf("shoulder width = %f, want 0.2", d)
	}
	if s := (ls.Y - rs.Y) / (ls.X - rs.X); math.Abs(s-(-0.2)) > epsilon {
		t.Errorf("shoulder slope = %f, want -0.2", s)
	}

	le, re := lm.Points[LeftEar], lm.Points[RightEar]
	if s := (le.Y - re.Y) / (le.X - re.X); math.Abs(s-0.1) > epsilon {
		t.Errorf("ear slope = %f, want 0.1", s)
	}

	earMid := (le.X + re.X) / 2
	neck := (ls.X + rs.X) / 2
	if f := earMid - neck; math.Abs(f-0.05) > epsilon {
		t.Errorf("head forward = %f, want 0.05", f)
	}
}
