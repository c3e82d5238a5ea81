package geometry

import (
	"math"
	"testing"
)

const epsilon = 1e-9

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b Point2D
		want float64
	}{
		{"same point", Point2D{3, 4}, Point2D{3, 4}, 0},
		{"3-4-5 triangle", Point2D{0, 0}, Point2D{3, 4}, 5},
		{"negative coordinates", Point2D{-1, -1}, Point2D{2, 3}, 5},
		{"horizontal", Point2D{10, 7}, Point2D{4, 7}, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Distance(tt.a, tt.b); math.Abs(got-tt.want) > epsilon {
				t.Errorf("Distance() = %f, want %f", got, tt.want)
			}
			if got := Distance(tt.b, tt.a); math.Abs(got-tt.want) > epsilon {
				t.Errorf("Distance() not symmetric: got %f, want %f", got, tt.want)
			}
		})
	}
}

func TestAngle(t *testing.T) {
	tests := []struct {
		name     string
		from, to Point2D
		want     float64
	}{
		{"level", Point2D{0, 0}, Point2D{10, 0}, 0},
		{"45 degrees down", Point2D{0, 0}, Point2D{10, 10}, 45},
		{"45 degrees up", Point2D{0, 0}, Point2D{10, -10}, -45},
		{"straight down", Point2D{5, 5}, Point2D{5, 15}, 90},
		{"reversed is 180 not -180", Point2D{10, 0}, Point2D{0, 0}, 180},
		{"coincident points", Point2D{1, 1}, Point2D{1, 1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Angle(tt.from, tt.to)
			if math.Abs(got-tt.want) > epsilon {
				t.Errorf("Angle() = %f, want %f", got, tt.want)
			}
			if got <= -180 || got > 180 {
				t.Errorf("Angle() = %f out of range (-180, 180]", got)
			}
		})
	}
}

func TestAngle_NegativeZeroY(t *testing.T) {
	got := Angle(Point2D{X: 10, Y: 0}, Point2D{X: 0, Y: math.Copysign(0, -1)})
	if got != 180 {
		t.Errorf("Angle() = %f, want 180", got)
	}
}

func TestFromNormalized(t *testing.T) {
	p := FromNormalized(0.5, 0.25, 640, 480)
	if p.X != 320 || p.Y != 120 {
		t.Errorf("FromNormalized() = %+v, want {320 120}", p)
	}

	// Fractions of a pixel are truncated.
	p = FromNormalized(0.1234, 0.9999, 100, 100)
	if p.X != 12 || p.Y != 99 {
		t.Errorf("FromNormalized() = %+v, want {12 99}", p)
	}
}
