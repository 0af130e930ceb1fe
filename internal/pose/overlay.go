package pose

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// skeleton lists the upper-body landmark pairs drawn on the preview.
var skeleton = [][2]int{
	{LeftEar, LeftEye},
	{LeftEye, Nose},
	{Nose, RightEye},
	{RightEye, RightEar},
	{MouthLeft, MouthRight},
	{LeftShoulder, RightShoulder},
	{LeftShoulder, LeftElbow},
	{LeftElbow, LeftWrist},
	{RightShoulder, RightElbow},
	{RightElbow, RightWrist},
	{LeftShoulder, LeftHip},
	{RightShoulder, RightHip},
	{LeftHip, RightHip},
}

var (
	boneColor  = color.RGBA{R: 0, G: 200, B: 255, A: 0}
	jointColor = color.RGBA{R: 255, G: 255, B: 255, A: 0}
)

// DrawSkeleton draws the landmark skeleton onto img. Points below
// minVisibility are skipped.
func DrawSkeleton(img *gocv.Mat, lm *Landmarks, minVisibility float64) {
	if img == nil || img.Empty() || lm == nil {
		return
	}

	w, h := img.Cols(), img.Rows()
	pixel := func(p Point) image.Point {
		return image.Pt(int(p.X*float64(w)), int(p.Y*float64(h)))
	}

	for _, bone := range skeleton {
		a, okA := lm.Get(bone[0], minVisibility)
		b, okB := lm.Get(bone[1], minVisibility)
		if !okA || !okB {
			continue
		}
		gocv.Line(img, pixel(a), pixel(b), boneColor, 2)
	}

	for i := range lm.Points {
		if i > RightHip {
			break
		}
		p, ok := lm.Get(i, minVisibility)
		if !ok {
			continue
		}
		gocv.Circle(img, pixel(p), 3, jointColor, -1)
	}
}
