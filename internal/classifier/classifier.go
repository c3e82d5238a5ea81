// Package classifier turns per-frame feature measurements into a debounced
// drowsiness status and an alert flag.
package classifier

import (
	"math"

	"github.com/ayusman/vigil/internal/features"
)

// Default thresholds.
const (
	DefaultEARThreshold  = 0.25
	DefaultEARFrames     = 20
	DefaultMARThreshold  = 0.6
	DefaultTiltThreshold = 15.0 // degrees
)

// Config holds the classifier thresholds. They are fixed for the lifetime of
// a Classifier.
type Config struct {
	// EARThreshold is the eye aspect ratio below which eyes count as closed.
	EARThreshold float64
	// EARFrames is the number of consecutive closed-eye frames that raise DROWSY.
	EARFrames int
	// MARThreshold is the mouth aspect ratio above which the driver is yawning.
	MARThreshold float64
	// TiltThreshold is the absolute head roll in degrees above which the head counts as tilted.
	TiltThreshold float64
	// NoFace decides how frames without a usable face affect the closed-eye counter.
	NoFace NoFacePolicy
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		EARThreshold:  DefaultEARThreshold,
		EARFrames:     DefaultEARFrames,
		MARThreshold:  DefaultMARThreshold,
		TiltThreshold: DefaultTiltThreshold,
		NoFace:        FreezeOnMissing,
	}
}

// Result is the classification of one frame.
type Result struct {
	Status Status `json:"status"`
	Alert  bool   `json:"alert"`
	// Active lists every condition that held on this frame, in precedence order.
	Active []Status `json:"active,omitempty"`
	// ClosedFrames is the closed-eye counter after this frame.
	ClosedFrames int `json:"closed_frames"`
	// Features is nil for frames without a usable face.
	Features *features.Triple `json:"features,omitempty"`
}

// Classifier is a debounced level detector over the feature stream. It is
// not safe for concurrent use; frames must be observed in capture order.
type Classifier struct {
	cfg          Config
	closedFrames int
}

// New creates a Classifier. A non-positive EARFrames is treated as 1.
func New(cfg Config) *Classifier {
	if cfg.EARFrames < 1 {
		cfg.EARFrames = 1
	}
	return &Classifier{cfg: cfg}
}

// Config returns the thresholds in use.
func (c *Classifier) Config() Config {
	return c.cfg
}

// ClosedFrames returns the current closed-eye counter.
func (c *Classifier) ClosedFrames() int {
	return c.closedFrames
}

// Reset clears the closed-eye counter.
func (c *Classifier) Reset() {
	c.closedFrames = 0
}

// Observe classifies one frame with a measured face. A triple with a
// non-finite component is treated as a missing face.
func (c *Classifier) Observe(t features.Triple) Result {
	if !finite(t.EAR) || !finite(t.MAR) || !finite(t.Tilt) {
		return c.ObserveMissing()
	}

	active := make(map[Status]bool, len(Precedence))

	if t.EAR < c.cfg.EARThreshold {
		c.closedFrames++
		if c.closedFrames >= c.cfg.EARFrames {
			active[StatusDrowsy] = true
		}
	} else {
		c.closedFrames = 0
	}

	if t.MAR > c.cfg.MARThreshold {
		active[StatusYawning] = true
	}

	if math.Abs(t.Tilt) > c.cfg.TiltThreshold {
		active[StatusHeadTilt] = true
	}

	res := Result{
		Status:       StatusOK,
		ClosedFrames: c.closedFrames,
		Features:     &t,
	}
	for _, s := range Precedence {
		if !active[s] {
			continue
		}
		if !res.Alert {
			res.Status = s
			res.Alert = true
		}
		res.Active = append(res.Active, s)
	}

	return res
}

// ObserveMissing handles a frame without a usable face: no face detected or
// degenerate geometry. It never alerts.
func (c *Classifier) ObserveMissing() Result {
	if c.cfg.NoFace == ResetOnMissing {
		c.closedFrames = 0
	}
	return Result{
		Status:       StatusOK,
		ClosedFrames: c.closedFrames,
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
