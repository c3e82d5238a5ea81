package detector

import (
	"math"
	"sync"

	"gocv.io/x/gocv"
)

// Frame size the fixture landmarks are laid out for.
const (
	FixtureWidth  = 640
	FixtureHeight = 480
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results, either a fixed face or
// a sequence played back one entry per Detect call.
type MockDetector struct {
	mu       sync.Mutex
	face     *FaceLandmarks
	sequence []*FaceLandmarks
	index    int
	err      error
	calls    int
	closed   bool
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetFace sets the face returned by every Detect call. nil means no face.
func (m *MockDetector) SetFace(face *FaceLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.face = face
	m.sequence = nil
}

// SetSequence queues faces returned by successive Detect calls. nil entries
// mean no face for that frame. Once exhausted, the face set by SetFace is used.
func (m *MockDetector) SetSequence(faces []*FaceLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequence = faces
	m.index = 0
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect was called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the pre-configured face or error.
func (m *MockDetector) Detect(frame *gocv.Mat) (*FaceLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.index < len(m.sequence) {
		face := m.sequence[m.index]
		m.index++
		return face, nil
	}
	return m.face, nil
}

// Close records that the detector was closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Eye and mouth openings (in pixels at the fixture frame size) used by the presets.
// The eyes are 40px wide, so EAR = opening/20; the mouth is 60px wide, so MAR = opening/30.
const (
	openEyeOpening   = 6  // EAR 0.30
	closedEyeOpening = 2  // EAR 0.10
	closedMouth      = 3  // MAR 0.10
	yawnMouth        = 24 // MAR 0.80
)

// AlertFaceLandmarks returns a face with open eyes, closed mouth and a level head.
func AlertFaceLandmarks() FaceLandmarks {
	return NewFaceFixture(openEyeOpening, closedMouth, 0)
}

// ClosedEyesLandmarks returns a face with both eyes nearly shut.
func ClosedEyesLandmarks() FaceLandmarks {
	return NewFaceFixture(closedEyeOpening, closedMouth, 0)
}

// YawningLandmarks returns a face with open eyes and a wide-open mouth.
func YawningLandmarks() FaceLandmarks {
	return NewFaceFixture(openEyeOpening, yawnMouth, 0)
}

// TiltedLandmarks returns an alert face with the head rolled by deg degrees.
func TiltedLandmarks(deg float64) FaceLandmarks {
	return NewFaceFixture(openEyeOpening, closedMouth, deg)
}

// NewFaceFixture builds a refined 478-point mesh for a FixtureWidth x FixtureHeight
// frame. eyeOpening is the lid half-gap of both eyes and mouthOpening the lip
// half-gap, both in pixels; tiltDeg rotates the ear reference points.
func NewFaceFixture(eyeOpening, mouthOpening int, tiltDeg float64) FaceLandmarks {
	face := FaceLandmarks{Points: make([]Point3D, NumRefinedLandmarks)}
	for i := range face.Points {
		face.Points[i] = Point3D{X: 0.5, Y: 0.5}
	}

	set := func(idx int, px, py float64) {
		// Half-pixel offset keeps truncation to whole pixels stable.
		face.Points[idx] = Point3D{
			X: (px + 0.5) / FixtureWidth,
			Y: (py + 0.5) / FixtureHeight,
		}
	}

	h := float64(eyeOpening)

	// Left eye: outer corner at x=260, inner corner at x=300.
	set(LeftEye[0], 260, 200)
	set(LeftEye[1], 273, 200-h)
	set(LeftEye[2], 287, 200-h)
	set(LeftEye[3], 300, 200)
	set(LeftEye[4], 287, 200+h)
	set(LeftEye[5], 273, 200+h)

	// Right eye mirrors the left one.
	set(RightEye[0], 380, 200)
	set(RightEye[1], 367, 200-h)
	set(RightEye[2], 353, 200-h)
	set(RightEye[3], 340, 200)
	set(RightEye[4], 353, 200+h)
	set(RightEye[5], 367, 200+h)

	m := float64(mouthOpening)
	set(MouthLeft, 290, 300)
	set(MouthRight, 350, 300)
	set(MouthTop, 320, 300-m)
	set(MouthBottom, 320, 300+m)

	rad := tiltDeg * math.Pi / 180
	set(LeftEar, 200, 220)
	set(RightEar, math.Round(200+240*math.Cos(rad)), math.Round(220+240*math.Sin(rad)))

	return face
}
