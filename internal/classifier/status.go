package classifier

import (
	"fmt"
	"strings"
)

// Status is the per-frame diagnosis shown to the driver.
type Status int

const (
	StatusOK Status = iota
	StatusDrowsy
	StatusYawning
	StatusHeadTilt
)

// Precedence lists the alerting statuses from highest to lowest priority.
// When several conditions hold on the same frame the first one in this list
// is reported. Precedence only picks the label; the alert itself is raised
// whenever any condition holds.
var Precedence = []Status{StatusHeadTilt, StatusYawning, StatusDrowsy}

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusDrowsy:
		return "DROWSY"
	case StatusYawning:
		return "YAWNING"
	case StatusHeadTilt:
		return "HEAD_TILT"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Label is the human-readable form used on the HUD.
func (s Status) Label() string {
	return strings.ReplaceAll(s.String(), "_", " ")
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// NoFacePolicy decides what a frame without a usable face does to the
// closed-eye counter.
type NoFacePolicy int

const (
	// FreezeOnMissing leaves the counter untouched.
	FreezeOnMissing NoFacePolicy = iota
	// ResetOnMissing clears the counter, as if the eyes had opened.
	ResetOnMissing
)

// String implements fmt.Stringer.
func (p NoFacePolicy) String() string {
	switch p {
	case FreezeOnMissing:
		return "freeze"
	case ResetOnMissing:
		return "reset"
	default:
		return fmt.Sprintf("NoFacePolicy(%d)", int(p))
	}
}

// ParseNoFacePolicy parses "freeze" or "reset".
func ParseNoFacePolicy(s string) (NoFacePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "freeze", "":
		return FreezeOnMissing, nil
	case "reset":
		return ResetOnMissing, nil
	default:
		return FreezeOnMissing, fmt.Errorf("unknown no-face policy %q", s)
	}
}
