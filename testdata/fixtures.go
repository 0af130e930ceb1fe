// Package testdata embeds landmark recordings used by tests.
package testdata

import (
	"embed"
	"fmt"

	"github.com/ayusman/posturepilot/internal/pose"
)

//go:embed recordings/*.jsonl
var recordingsFS embed.FS

// DeskSession is a recording of a seated session: 60 upright frames for
// calibration, 5 frames with nobody in view, then 20 upright, 20 frames with
// the head 0.12 forward and 10 frames with the head 0.07 forward. Frames are
// 100ms apart and the shoulder width is 0.2 throughout.
const DeskSession = "desk_session.jsonl"

// Expected outcome of replaying DeskSession with the default limits.
const (
	DeskSessionFrames   = 115
	DeskSessionNoPerson = 5
	DeskSessionGood     = 20
	DeskSessionBad      = 20
	DeskSessionWarning  = 10
)

// LoadRecording loads an embedded recording by name.
func LoadRecording(name string) (pose.Recording, error) {
	f, err := recordingsFS.Open("recordings/" + name)
	if err != nil {
		return nil, fmt.Errorf("load recording %s: %w", name, err)
	}
	defer f.Close()
	return pose.LoadRecording(f)
}
