package detector

import "gocv.io/x/gocv"

// Detector defines the interface for face-mesh detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns the landmarks of one face.
	// Returns nil without error if no face is found.
	Detect(frame *gocv.Mat) (*FaceLandmarks, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for face-mesh detection.
type Config struct {
	// ScriptPath overrides the location of facemesh_service.py.
	ScriptPath string

	// PythonPath overrides the interpreter; a virtualenv python is preferred when empty.
	PythonPath string

	// RefineLandmarks enables the iris points (478-point mesh).
	RefineLandmarks bool

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		RefineLandmarks: true,
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
	}
}
