// Package monitor runs the per-frame loop: capture, detect, extract,
// classify, alert and render.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
	"golang.org/x/time/rate"

	"github.com/ayusman/vigil/internal/alert"
	"github.com/ayusman/vigil/internal/capture"
	"github.com/ayusman/vigil/internal/classifier"
	"github.com/ayusman/vigil/internal/detector"
	"github.com/ayusman/vigil/internal/features"
	"github.com/ayusman/vigil/internal/log"
	"github.com/ayusman/vigil/internal/render"
)

// warnInterval bounds how often a repeating per-frame failure is logged.
const warnInterval = 5 * time.Second

// Display shows annotated frames. Show returns false when the user asked to quit.
type Display interface {
	Show(frame *gocv.Mat) bool
	Close() error
}

// Config holds the collaborators of a Monitor. Camera and Detector are required.
type Config struct {
	Camera     capture.Camera
	Detector   detector.Detector
	Classifier classifier.Config
	// Alarm may be nil for a silent run.
	Alarm alert.Alarm
	// Display may be nil for a headless run.
	Display Display
	// Frames, when set, receives every annotated frame as JPEG.
	Frames *capture.FrameBuffer
	// OnResult is called on the loop goroutine after each classified frame.
	OnResult func(classifier.Result)
}

// Stats counts frames seen during a session.
type Stats struct {
	Frames        int `json:"frames"`
	MissingFrames int `json:"missing_frames"`
	AlertFrames   int `json:"alert_frames"`
}

// Monitor owns the classifier and alert controller for one session. Run and
// ProcessFrame must be called from a single goroutine; SetEnabled, Last and
// Stats are safe from any goroutine.
type Monitor struct {
	cfg        Config
	classifier *classifier.Classifier
	alerts     *alert.Controller
	sessionID  string
	log        *logrus.Entry

	detectWarn rate.Sometimes
	alarmWarn  rate.Sometimes
	frameWarn  rate.Sometimes

	mu      sync.RWMutex
	enabled bool
	last    classifier.Result
	stats   Stats
}

// New creates a Monitor. Monitoring starts enabled.
func New(cfg Config) (*Monitor, error) {
	if cfg.Camera == nil {
		return nil, errors.New("monitor: camera is required")
	}
	if cfg.Detector == nil {
		return nil, errors.New("monitor: detector is required")
	}

	id := log.NewSessionID()
	return &Monitor{
		cfg:        cfg,
		classifier: classifier.New(cfg.Classifier),
		alerts:     alert.NewController(cfg.Alarm),
		sessionID:  id,
		log:        log.WithSession(id),
		detectWarn: rate.Sometimes{First: 1, Interval: warnInterval},
		alarmWarn:  rate.Sometimes{First: 1, Interval: warnInterval},
		frameWarn:  rate.Sometimes{First: 1, Interval: warnInterval},
		enabled:    true,
	}, nil
}

// SessionID identifies this monitoring run in logs.
func (m *Monitor) SessionID() string {
	return m.sessionID
}

// SetEnabled turns classification on or off. While disabled the alarm is
// silenced on the next frame and the closed-eye counter starts over when
// monitoring resumes.
func (m *Monitor) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
}

// IsEnabled returns whether frames are being classified.
func (m *Monitor) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Last returns the most recent classification.
func (m *Monitor) Last() classifier.Result {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Stats returns the frame counters for this session.
func (m *Monitor) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// Run opens the camera and processes frames until the stream ends, the
// display requests quit, or ctx is cancelled. All three are a normal stop
// and return nil after shutdown.
func (m *Monitor) Run(ctx context.Context) (err error) {
	if err := m.cfg.Camera.Open(); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}
	defer func() {
		if cerr := m.shutdown(); err == nil {
			err = cerr
		}
	}()

	m.log.WithFields(logrus.Fields{
		"ear_threshold":  m.cfg.Classifier.EARThreshold,
		"ear_frames":     m.classifier.Config().EARFrames,
		"mar_threshold":  m.cfg.Classifier.MARThreshold,
		"tilt_threshold": m.cfg.Classifier.TiltThreshold,
		"no_face":        m.cfg.Classifier.NoFace.String(),
	}).Info("[monitor.Run] monitoring started")

	wasEnabled := true
	for {
		select {
		case <-ctx.Done():
			m.log.Info("[monitor.Run] cancelled")
			return nil
		default:
		}

		frame, err := m.cfg.Camera.ReadFrame()
		if err != nil {
			if errors.Is(err, capture.ErrEndOfStream) {
				m.log.Info("[monitor.Run] end of stream")
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}

		enabled := m.IsEnabled()
		var res classifier.Result
		if enabled {
			if !wasEnabled {
				m.classifier.Reset()
			}
			res = m.ProcessFrame(frame)
		} else {
			// Repeated on every paused frame so a failed stop is retried.
			m.setAlert(false)
		}
		wasEnabled = enabled

		render.Draw(frame, res)
		if m.cfg.Frames != nil {
			if err := m.cfg.Frames.Publish(frame); err != nil {
				m.frameWarn.Do(func() {
					m.log.WithError(err).Warn("[monitor.Run] failed to publish frame")
				})
			}
		}

		keepGoing := true
		if m.cfg.Display != nil {
			keepGoing = m.cfg.Display.Show(frame)
		}
		frame.Close()

		if !keepGoing {
			m.log.Info("[monitor.Run] quit requested")
			return nil
		}
	}
}

// ProcessFrame runs detection and classification on one frame and drives the
// alarm from the result. The frame is not modified.
func (m *Monitor) ProcessFrame(frame *gocv.Mat) classifier.Result {
	var res classifier.Result

	face, err := m.cfg.Detector.Detect(frame)
	switch {
	case err != nil:
		m.detectWarn.Do(func() {
			m.log.WithError(err).Warn("[monitor.ProcessFrame] face detection failed")
		})
		res = m.classifier.ObserveMissing()
	case face == nil:
		res = m.classifier.ObserveMissing()
	default:
		triple, err := features.Extract(face, frame.Cols(), frame.Rows())
		if err != nil {
			m.log.WithError(err).Debug("[monitor.ProcessFrame] unusable landmarks")
			res = m.classifier.ObserveMissing()
		} else {
			res = m.classifier.Observe(triple)
		}
	}

	m.setAlert(res.Alert)
	m.record(res)

	if m.cfg.OnResult != nil {
		m.cfg.OnResult(res)
	}
	return res
}

func (m *Monitor) setAlert(active bool) {
	if err := m.alerts.SetAlert(active); err != nil {
		m.alarmWarn.Do(func() {
			m.log.WithError(err).Warn("[monitor] alarm control failed")
		})
	}
}

func (m *Monitor) record(res classifier.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.last = res
	m.stats.Frames++
	if res.Features == nil {
		m.stats.MissingFrames++
	}
	if res.Alert {
		m.stats.AlertFrames++
	}
}

// shutdown silences the alarm, then closes the detector, camera and display
// in that order.
func (m *Monitor) shutdown() error {
	var errs []error

	if err := m.alerts.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := m.cfg.Detector.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close detector: %w", err))
	}
	if err := m.cfg.Camera.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close camera: %w", err))
	}
	if m.cfg.Display != nil {
		if err := m.cfg.Display.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close display: %w", err))
		}
	}

	stats := m.Stats()
	m.log.WithFields(logrus.Fields{
		"frames":         stats.Frames,
		"missing_frames": stats.MissingFrames,
		"alert_frames":   stats.AlertFrames,
	}).Info("[monitor.Run] monitoring stopped")

	return errors.Join(errs...)
}
