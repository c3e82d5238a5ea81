// Package log wraps logrus with the formatter and file rotation used across vigil.
package log

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"
	"sync"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger *logrus.Logger
	mu     sync.RWMutex
)

// SessionIDKey is the field carrying the monitoring session id.
const SessionIDKey = "session_id"

type Fields = logrus.Fields

// Options configures the logger.
type Options struct {
	// Level is a logrus level name. Empty means info.
	Level string
	// File, when set, receives a copy of the log rotated by lumberjack.
	File string
	// Output defaults to os.Stderr.
	Output io.Writer
	// NoColors disables ANSI colors, for non-terminal output.
	NoColors bool
}

// Init builds the package logger. It may be called again to reconfigure.
func Init(opts Options) error {
	level := logrus.InfoLevel
	if opts.Level != "" {
		l, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return fmt.Errorf("parse log level: %w", err)
		}
		level = l
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	l := logrus.New()
	l.SetLevel(level)
	l.SetFormatter(&formatter.Formatter{
		NoColors:        opts.NoColors,
		TimestampFormat: "02 Jan 06 - 15:04:05",
		HideKeys:        false,
		CallerFirst:     true,
		CustomCallerFormatter: func(f *runtime.Frame) string {
			s := strings.Split(f.Function, ".")
			funcName := s[len(s)-1]
			if opts.NoColors {
				return fmt.Sprintf(" [%s:%d][%s()]", path.Base(f.File), f.Line, funcName)
			}
			return fmt.Sprintf(" \x1b[%dm[%s:%d][%s()]", 34, path.Base(f.File), f.Line, funcName)
		},
	})

	writers := []io.Writer{out}
	if opts.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			LocalTime:  true,
			Compress:   true,
			MaxSize:    20,
			MaxAge:     7,
			MaxBackups: 3,
		})
	}

	l.SetOutput(io.MultiWriter(writers...))
	l.SetReportCaller(true)

	mu.Lock()
	logger = l
	mu.Unlock()
	return nil
}

// L returns the package logger, creating a default one on first use.
func L() *logrus.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}

	_ = Init(Options{})
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// NewSessionID returns a fresh id for one monitoring run.
func NewSessionID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return "unknown"
	}
	return id.String()
}

// WithSession returns an entry tagged with the session id.
func WithSession(id string) *logrus.Entry {
	if id == "" {
		id = "unknown"
	}
	return L().WithField(SessionIDKey, id)
}

func Debug(fields Fields, msg string) {
	if fields == nil {
		fields = Fields{}
	}
	L().WithFields(fields).Debug(msg)
}

func Info(fields Fields, msg string) {
	if fields == nil {
		fields = Fields{}
	}
	L().WithFields(fields).Info(msg)
}

func Warn(fields Fields, msg string) {
	if fields == nil {
		fields = Fields{}
	}
	L().WithFields(fields).Warn(msg)
}

func Error(fields Fields, msg string) {
	if fields == nil {
		fields = Fields{}
	}
	L().WithFields(fields).Error(msg)
}
