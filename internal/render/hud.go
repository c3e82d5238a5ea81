// Package render draws the driver-facing overlay and shows annotated frames.
package render

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/vigil/internal/classifier"
)

// HUD colors. gocv converts RGBA to OpenCV's BGR order.
var (
	ColorText    = color.RGBA{R: 255, G: 255, B: 255}
	ColorOK      = color.RGBA{R: 0, G: 200, B: 0}
	ColorAlert   = color.RGBA{R: 255, G: 0, B: 0}
	hudFont      = gocv.FontHersheySimplex
	hudThickness = 2
)

// Line is one piece of overlay text.
type Line struct {
	Text   string
	Origin image.Point
	Scale  float64
	Color  color.RGBA
}

// Lines lays out the overlay for a classification result. The status line
// is always present; the feature lines only when a face was measured.
func Lines(res classifier.Result) []Line {
	statusColor := ColorOK
	if res.Alert {
		statusColor = ColorAlert
	}

	lines := []Line{{
		Text:   "Status: " + res.Status.Label(),
		Origin: image.Pt(20, 40),
		Scale:  1,
		Color:  statusColor,
	}}

	if f := res.Features; f != nil {
		lines = append(lines,
			Line{Text: fmt.Sprintf("EAR: %.3f", f.EAR), Origin: image.Pt(20, 80), Scale: 0.7, Color: ColorText},
			Line{Text: fmt.Sprintf("MAR: %.3f", f.MAR), Origin: image.Pt(20, 110), Scale: 0.7, Color: ColorText},
			Line{Text: fmt.Sprintf("Tilt Angle: %.2f", f.Tilt), Origin: image.Pt(20, 140), Scale: 0.7, Color: ColorText},
		)
	}

	return lines
}

// Draw writes the overlay for res onto frame in place.
func Draw(frame *gocv.Mat, res classifier.Result) {
	if frame == nil || frame.Empty() {
		return
	}
	for _, l := range Lines(res) {
		gocv.PutText(frame, l.Text, l.Origin, hudFont, l.Scale, l.Color, hudThickness)
	}
}
