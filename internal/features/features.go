// Package features computes drowsiness indicators from a face mesh: the eye
// aspect ratio (EAR), the mouth aspect ratio (MAR) and the head tilt angle.
package features

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/ayusman/vigil/internal/detector"
	"github.com/ayusman/vigil/internal/geometry"
)

// minReference is the smallest reference distance (in pixels) accepted as a
// ratio denominator.
const minReference = 1e-10

var (
	// ErrDegenerate is returned when a reference distance is zero, e.g. the two
	// eye corners coincide. The frame carries no reliable measurement.
	ErrDegenerate = errors.New("degenerate landmark geometry")

	// ErrIncompleteLandmarks is returned when the mesh has fewer points than the canonical face mesh.
	ErrIncompleteLandmarks = errors.New("incomplete face mesh")

	// ErrInvalidFrameSize is returned when the frame width or height is not positive.
	ErrInvalidFrameSize = errors.New("invalid frame size")
)

// Triple holds the per-frame measurements.
type Triple struct {
	EAR  float64 `json:"ear"`
	MAR  float64 `json:"mar"`
	Tilt float64 `json:"tilt"` // degrees, (-180, 180]
}

// EyeAspectRatio computes (|p1-p5| + |p2-p4|) / (2 |p0-p3|) for a six-point
// eye contour ordered outer corner, upper lid, upper lid, inner corner,
// lower lid, lower lid.
func EyeAspectRatio(eye [6]geometry.Point2D) (float64, error) {
	width := geometry.Distance(eye[0], eye[3])
	if width < minReference {
		return 0, fmt.Errorf("eye width: %w", ErrDegenerate)
	}

	a := geometry.Distance(eye[1], eye[5])
	b := geometry.Distance(eye[2], eye[4])
	return (a + b) / (2 * width), nil
}

// MouthAspectRatio computes |top-bottom| / |left-right|.
func MouthAspectRatio(top, bottom, left, right geometry.Point2D) (float64, error) {
	width := geometry.Distance(left, right)
	if width < minReference {
		return 0, fmt.Errorf("mouth width: %w", ErrDegenerate)
	}
	return geometry.Distance(top, bottom) / width, nil
}

// HeadTilt returns the roll of the line from the left to the right reference
// point in degrees. Coincident points give no direction and are degenerate.
func HeadTilt(left, right geometry.Point2D) (float64, error) {
	if geometry.Distance(left, right) < minReference {
		return 0, fmt.Errorf("face width: %w", ErrDegenerate)
	}
	return geometry.Angle(left, right), nil
}

// Extract computes the feature triple for one face in a frame of the given
// size. EAR is the mean of both eyes.
func Extract(face *detector.FaceLandmarks, width, height int) (Triple, error) {
	if width <= 0 || height <= 0 {
		return Triple{}, fmt.Errorf("%dx%d: %w", width, height, ErrInvalidFrameSize)
	}
	if !face.Complete() {
		return Triple{}, ErrIncompleteLandmarks
	}

	point := func(idx int) geometry.Point2D {
		p := face.Points[idx]
		return geometry.FromNormalized(p.X, p.Y, width, height)
	}
	eye := func(indices [6]int) [6]geometry.Point2D {
		var pts [6]geometry.Point2D
		for i, idx := range indices {
			pts[i] = point(idx)
		}
		return pts
	}

	left, err := EyeAspectRatio(eye(detector.LeftEye))
	if err != nil {
		return Triple{}, fmt.Errorf("left eye: %w", err)
	}
	right, err := EyeAspectRatio(eye(detector.RightEye))
	if err != nil {
		return Triple{}, fmt.Errorf("right eye: %w", err)
	}

	mar, err := MouthAspectRatio(
		point(detector.MouthTop), point(detector.MouthBottom),
		point(detector.MouthLeft), point(detector.MouthRight),
	)
	if err != nil {
		return Triple{}, err
	}

	tilt, err := HeadTilt(point(detector.LeftEar), point(detector.RightEar))
	if err != nil {
		return Triple{}, err
	}

	return Triple{
		EAR:  stat.Mean([]float64{left, right}, nil),
		MAR:  mar,
		Tilt: tilt,
	}, nil
}
