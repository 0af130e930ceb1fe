// Package icons renders the tray status icons.
package icons

import (
	"bytes"
	"image"
	"image/color"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/ayusman/posturepilot/internal/posture"
)

// IconSize is the edge length of tray icons in pixels.
const IconSize = 22

// supersample is the factor icons are drawn at before downscaling.
const supersample = 4

var (
	colorGood    = color.NRGBA{R: 0x2e, G: 0xcc, B: 0x71, A: 0xff}
	colorAlert   = color.NRGBA{R: 0xe7, G: 0x4c, B: 0x3c, A: 0xff}
	colorIdle    = color.NRGBA{R: 0x95, G: 0xa5, B: 0xa6, A: 0xff}
	colorOutline = color.NRGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xc0}
)

// LevelColor returns the indicator color for level: green for good, red
// for warning or bad, gray otherwise.
func LevelColor(level posture.Level) color.NRGBA {
	switch level {
	case posture.LevelGood:
		return colorGood
	case posture.LevelWarning, posture.LevelBad:
		return colorAlert
	default:
		return colorIdle
	}
}

var (
	iconMu    sync.Mutex
	iconCache = map[color.NRGBA][]byte{}
)

// Icon returns the PNG-encoded tray icon for level.
func Icon(level posture.Level) ([]byte, error) {
	c := LevelColor(level)

	iconMu.Lock()
	defer iconMu.Unlock()
	if data, ok := iconCache[c]; ok {
		return data, nil
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, renderDot(c, IconSize), imaging.PNG); err != nil {
		return nil, err
	}
	iconCache[c] = buf.Bytes()
	return buf.Bytes(), nil
}

// renderDot draws a filled, outlined circle on a transparent square.
func renderDot(fill color.NRGBA, size int) *image.NRGBA {
	big := size * supersample
	img := imaging.New(big, big, color.NRGBA{})

	center := float64(big-1) / 2
	outer := float64(big)/2 - float64(supersample)
	inner := outer - float64(supersample)*1.5

	for y := 0; y < big; y++ {
		for x := 0; x < big; x++ {
			dx, dy := float64(x)-center, float64(y)-center
			d2 := dx*dx + dy*dy
			switch {
			case d2 <= inner*inner:
				img.SetNRGBA(x, y, fill)
			case d2 <= outer*outer:
				img.SetNRGBA(x, y, colorOutline)
			}
		}
	}

	return imaging.Resize(img, size, size, imaging.Lanczos)
}
