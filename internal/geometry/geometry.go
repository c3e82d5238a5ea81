// Package geometry provides 2D point helpers used by the facial feature extractor.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Point2D is a point in pixel coordinates.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FromNormalized scales a normalized landmark coordinate (0-1) to pixel
// coordinates for a frame of the given size. Coordinates are truncated to
// whole pixels.
func FromNormalized(x, y float64, width, height int) Point2D {
	return Point2D{
		X: math.Trunc(x * float64(width)),
		Y: math.Trunc(y * float64(height)),
	}
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point2D) float64 {
	return floats.Distance([]float64{a.X, a.Y}, []float64{b.X, b.Y}, 2)
}

// Angle returns the direction of the vector from -> to in degrees,
// in the range (-180, 180].
func Angle(from, to Point2D) float64 {
	deg := math.Atan2(to.Y-from.Y, to.X-from.X) * 180 / math.Pi
	if deg <= -180 {
		deg += 360
	}
	return deg
}
