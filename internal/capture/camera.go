// Package capture provides video capture from a camera device or a video
// file using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

// Default capture settings
const (
	DefaultFPS    = 30
	DefaultWidth  = 640
	DefaultHeight = 480
)

var (
	// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")

	// ErrEndOfStream is returned when the source yields no more frames:
	// the end of a video file or a camera that stopped delivering.
	ErrEndOfStream = errors.New("end of stream")
)

// Camera defines the interface for video sources.
type Camera interface {
	Open() error
	Close() error
	// ReadFrame returns the next frame. The caller owns the returned Mat.
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// Source identifies a video source: a camera device index or a file path.
type Source struct {
	DeviceID int
	Path     string
}

// ParseSource interprets s as a device index when it is a non-negative
// integer and as a file path otherwise. An empty string means device 0.
func ParseSource(s string) (Source, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Source{}, nil
	}
	if id, err := strconv.Atoi(s); err == nil {
		if id < 0 {
			return Source{}, fmt.Errorf("invalid camera index %d", id)
		}
		return Source{DeviceID: id}, nil
	}
	return Source{Path: s}, nil
}

// IsFile reports whether the source is a video file.
func (s Source) IsFile() bool {
	return s.Path != ""
}

// String implements fmt.Stringer.
func (s Source) String() string {
	if s.IsFile() {
		return s.Path
	}
	return strconv.Itoa(s.DeviceID)
}

// cameraImpl manages video capture using GoCV.
type cameraImpl struct {
	source  Source
	capture *gocv.VideoCapture
	mu      sync.Mutex
	running bool
	fps     int
}

// NewCamera creates a new Camera for the given source.
func NewCamera(source Source) Camera {
	return &cameraImpl{
		source: source,
		fps:    DefaultFPS,
	}
}

// Open opens the source. Devices are asked for 640x480; files keep their
// native resolution.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	var (
		capture *gocv.VideoCapture
		err     error
	)
	if c.source.IsFile() {
		capture, err = gocv.OpenVideoCapture(c.source.Path)
	} else {
		capture, err = gocv.OpenVideoCapture(c.source.DeviceID)
	}
	if err != nil {
		return fmt.Errorf("open video source %s: %w", c.source, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("open video source %s: not opened", c.source)
	}

	if !c.source.IsFile() {
		capture.Set(gocv.VideoCaptureFrameWidth, DefaultWidth)
		capture.Set(gocv.VideoCaptureFrameHeight, DefaultHeight)
		capture.Set(gocv.VideoCaptureFPS, float64(c.fps))
	}

	c.capture = capture
	c.running = true

	return nil
}

// Close releases the source.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false

	return err
}

// ReadFrame reads a single frame. A failed or empty read is reported as
// ErrEndOfStream.
func (c *cameraImpl) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, ErrEndOfStream
	}

	return &mat, nil
}

// SetFPS sets the requested frame rate.
// Values less than or equal to 0 are ignored.
func (c *cameraImpl) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.fps = fps

	if c.capture != nil && !c.source.IsFile() {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

// FPS returns the current frame rate. For an open video file this is the
// file's own frame rate when known.
func (c *cameraImpl) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture != nil && c.source.IsFile() {
		if fps := int(c.capture.Get(gocv.VideoCaptureFPS)); fps > 0 {
			return fps
		}
	}
	return c.fps
}

// IsOpen returns true if the source is currently open.
func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}
