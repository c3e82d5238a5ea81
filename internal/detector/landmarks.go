// Package detector provides face-mesh landmark detection for driver monitoring.
package detector

// Face mesh sizes following the MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/face_landmarker
const (
	// NumLandmarks is the size of the canonical face mesh.
	NumLandmarks = 468
	// NumRefinedLandmarks includes the ten iris points added by refine_landmarks.
	NumRefinedLandmarks = 478
)

// Face mesh indices used by the feature extractor.
var (
	// LeftEye is ordered outer corner, two upper-lid points, inner corner, two lower-lid points.
	LeftEye = [6]int{33, 160, 158, 133, 153, 144}
	// RightEye uses the same ordering as LeftEye.
	RightEye = [6]int{362, 385, 387, 263, 373, 380}
)

const (
	// MouthTop and MouthBottom are the inner-lip midpoints; MouthLeft and
	// MouthRight are the mouth corners. Together they give the mouth aspect ratio.
	MouthTop    = 13
	MouthBottom = 14
	MouthLeft   = 61
	MouthRight  = 291

	// LeftEar and RightEar are the face-width reference points used for head tilt.
	LeftEar  = 234
	RightEar = 454
)

// Point3D is a normalized landmark position. X and Y are in the range 0-1
// relative to the frame; Z is relative depth.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// FaceLandmarks is the face mesh of a single detected face.
type FaceLandmarks struct {
	Points []Point3D `json:"points"`
}

// Complete reports whether the mesh holds at least the canonical 468 points.
func (f *FaceLandmarks) Complete() bool {
	return f != nil && len(f.Points) >= NumLandmarks
}
