package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Keys under which threshold overrides are persisted.
const (
	SettingEARThreshold  = "ear_threshold"
	SettingEARFrames     = "ear_frames"
	SettingMARThreshold  = "mar_threshold"
	SettingTiltThreshold = "tilt_threshold"
	SettingNoFacePolicy  = "no_face_policy"
)

// SettingKeys lists every persisted threshold key.
var SettingKeys = []string{
	SettingEARThreshold,
	SettingEARFrames,
	SettingMARThreshold,
	SettingTiltThreshold,
	SettingNoFacePolicy,
}

// ThresholdPatch is a partial update; nil fields are left unchanged.
type ThresholdPatch struct {
	EARThreshold  *float64 `json:"ear_threshold,omitempty"`
	EARFrames     *int     `json:"ear_frames,omitempty"`
	MARThreshold  *float64 `json:"mar_threshold,omitempty"`
	TiltThreshold *float64 `json:"tilt_threshold,omitempty"`
	NoFacePolicy  *string  `json:"no_face_policy,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ThresholdPatch) Empty() bool {
	return len(p.Keys()) == 0
}

// Keys returns the setting keys the patch changes.
func (p ThresholdPatch) Keys() []string {
	var keys []string
	if p.EARThreshold != nil {
		keys = append(keys, SettingEARThreshold)
	}
	if p.EARFrames != nil {
		keys = append(keys, SettingEARFrames)
	}
	if p.MARThreshold != nil {
		keys = append(keys, SettingMARThreshold)
	}
	if p.TiltThreshold != nil {
		keys = append(keys, SettingTiltThreshold)
	}
	if p.NoFacePolicy != nil {
		keys = append(keys, SettingNoFacePolicy)
	}
	return keys
}

// Apply returns t with the patch's non-nil fields applied.
func (t Thresholds) Apply(p ThresholdPatch) Thresholds {
	if p.EARThreshold != nil {
		t.EARThreshold = *p.EARThreshold
	}
	if p.EARFrames != nil {
		t.EARFrames = *p.EARFrames
	}
	if p.MARThreshold != nil {
		t.MARThreshold = *p.MARThreshold
	}
	if p.TiltThreshold != nil {
		t.TiltThreshold = *p.TiltThreshold
	}
	if p.NoFacePolicy != nil {
		t.NoFacePolicy = strings.ToLower(strings.TrimSpace(*p.NoFacePolicy))
	}
	return t
}

// Settings encodes t as persisted key/value pairs.
func (t Thresholds) Settings() map[string]string {
	return map[string]string{
		SettingEARThreshold:  strconv.FormatFloat(t.EARThreshold, 'g', -1, 64),
		SettingEARFrames:     strconv.Itoa(t.EARFrames),
		SettingMARThreshold:  strconv.FormatFloat(t.MARThreshold, 'g', -1, 64),
		SettingTiltThreshold: strconv.FormatFloat(t.TiltThreshold, 'g', -1, 64),
		SettingNoFacePolicy:  t.NoFacePolicy,
	}
}

// WithSettings returns t overridden by persisted key/value pairs. Keys that
// are not threshold settings are ignored.
func (t Thresholds) WithSettings(settings map[string]string) (Thresholds, error) {
	for key, value := range settings {
		var err error
		switch key {
		case SettingEARThreshold:
			t.EARThreshold, err = strconv.ParseFloat(value, 64)
		case SettingEARFrames:
			t.EARFrames, err = strconv.Atoi(value)
		case SettingMARThreshold:
			t.MARThreshold, err = strconv.ParseFloat(value, 64)
		case SettingTiltThreshold:
			t.TiltThreshold, err = strconv.ParseFloat(value, 64)
		case SettingNoFacePolicy:
			t.NoFacePolicy = strings.ToLower(strings.TrimSpace(value))
		}
		if err != nil {
			return t, fmt.Errorf("setting %s=%q: %w", key, value, err)
		}
	}
	return t, nil
}
