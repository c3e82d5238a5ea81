// Package config loads vigil's settings from the environment, an optional
// .env file and persisted overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/ayusman/vigil/internal/classifier"
)

// Environment variable names.
const (
	EnvSource        = "VIGIL_SOURCE"
	EnvAlarmFile     = "VIGIL_ALARM_FILE"
	EnvAudioPlayer   = "VIGIL_AUDIO_PLAYER"
	EnvEARThreshold  = "VIGIL_EAR_THRESHOLD"
	EnvEARFrames     = "VIGIL_EAR_FRAMES"
	EnvMARThreshold  = "VIGIL_MAR_THRESHOLD"
	EnvTiltThreshold = "VIGIL_TILT_THRESHOLD"
	EnvNoFacePolicy  = "VIGIL_NO_FACE_POLICY"
	EnvDBPath        = "VIGIL_DB_PATH"
	EnvPreviewAddr   = "VIGIL_PREVIEW_ADDR"
	EnvLogLevel      = "VIGIL_LOG_LEVEL"
	EnvLogFile       = "VIGIL_LOG_FILE"
	EnvWindow        = "VIGIL_WINDOW"
	EnvTray          = "VIGIL_TRAY"
)

var validate = validator.New()

// Thresholds are the classifier settings a user may tune.
type Thresholds struct {
	EARThreshold  float64 `json:"ear_threshold" validate:"gt=0,lt=1"`
	EARFrames     int     `json:"ear_frames" validate:"gte=1,lte=10000"`
	MARThreshold  float64 `json:"mar_threshold" validate:"gt=0,lte=10"`
	TiltThreshold float64 `json:"tilt_threshold" validate:"gte=0,lte=180"`
	NoFacePolicy  string  `json:"no_face_policy" validate:"oneof=freeze reset"`
}

// DefaultThresholds returns the classifier defaults.
func DefaultThresholds() Thresholds {
	d := classifier.DefaultConfig()
	return Thresholds{
		EARThreshold:  d.EARThreshold,
		EARFrames:     d.EARFrames,
		MARThreshold:  d.MARThreshold,
		TiltThreshold: d.TiltThreshold,
		NoFacePolicy:  d.NoFace.String(),
	}
}

// Validate checks the thresholds are in range.
func (t Thresholds) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("invalid thresholds: %w", err)
	}
	return nil
}

// Classifier converts the thresholds into a classifier configuration.
func (t Thresholds) Classifier() (classifier.Config, error) {
	policy, err := classifier.ParseNoFacePolicy(t.NoFacePolicy)
	if err != nil {
		return classifier.Config{}, err
	}
	return classifier.Config{
		EARThreshold:  t.EARThreshold,
		EARFrames:     t.EARFrames,
		MARThreshold:  t.MARThreshold,
		TiltThreshold: t.TiltThreshold,
		NoFace:        policy,
	}, nil
}

// Config holds all runtime settings.
type Config struct {
	Source      string `validate:"required"`
	AlarmFile   string `validate:"required"`
	AudioPlayer string
	Thresholds  Thresholds
	DBPath      string
	PreviewAddr string `validate:"omitempty,hostname_port"`
	LogLevel    string `validate:"oneof=trace debug info warn warning error"`
	LogFile     string
	Window      bool
	Tray        bool
}

// Load reads an optional .env file from the working directory, then the
// environment. A missing .env file is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables over the defaults.
func FromEnv() (*Config, error) {
	t := DefaultThresholds()

	var err error
	if t.EARThreshold, err = getEnvFloat(EnvEARThreshold, t.EARThreshold); err != nil {
		return nil, err
	}
	if t.EARFrames, err = getEnvInt(EnvEARFrames, t.EARFrames); err != nil {
		return nil, err
	}
	if t.MARThreshold, err = getEnvFloat(EnvMARThreshold, t.MARThreshold); err != nil {
		return nil, err
	}
	if t.TiltThreshold, err = getEnvFloat(EnvTiltThreshold, t.TiltThreshold); err != nil {
		return nil, err
	}
	t.NoFacePolicy = strings.ToLower(getEnv(EnvNoFacePolicy, t.NoFacePolicy))

	cfg := &Config{
		Source:      getEnv(EnvSource, "0"),
		AlarmFile:   getEnv(EnvAlarmFile, "alarm.wav"),
		AudioPlayer: getEnv(EnvAudioPlayer, ""),
		Thresholds:  t,
		DBPath:      getEnv(EnvDBPath, DefaultDBPath()),
		PreviewAddr: getEnv(EnvPreviewAddr, ""),
		LogLevel:    strings.ToLower(getEnv(EnvLogLevel, "info")),
		LogFile:     getEnv(EnvLogFile, ""),
	}
	if cfg.Window, err = getEnvBool(EnvWindow, true); err != nil {
		return nil, err
	}
	if cfg.Tray, err = getEnvBool(EnvTray, false); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks every field.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// DefaultDBPath is ~/.vigil/vigil.db, or vigil.db when the home directory is unknown.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "vigil.db"
	}
	return filepath.Join(home, ".vigil", "vigil.db")
}

func getEnv(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	v := getEnv(key, "")
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	v := getEnv(key, "")
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
