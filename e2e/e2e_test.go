package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"gocv.io/x/gocv"

	"github.com/ayusman/vigil/internal/audio"
	"github.com/ayusman/vigil/internal/capture"
	"github.com/ayusman/vigil/internal/classifier"
	"github.com/ayusman/vigil/internal/config"
	"github.com/ayusman/vigil/internal/detector"
	"github.com/ayusman/vigil/internal/monitor"
	"github.com/ayusman/vigil/internal/server"
	"github.com/ayusman/vigil/internal/store"
)

// alarmPlayer returns a Player that runs a sleeping shell script in place of
// a real audio player, with a valid alarm loaded.
func alarmPlayer(t *testing.T) *audio.Player {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	dir := t.TempDir()

	script := filepath.Join(dir, "fakeplay")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nsleep 5\n"), 0755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	wav := filepath.Join(dir, "alarm.wav")
	data := append([]byte("RIFF\x24\x00\x00\x00WAVEfmt "), make([]byte, 32)...)
	if err := os.WriteFile(wav, data, 0644); err != nil {
		t.Fatalf("write wav: %v", err)
	}

	p, err := audio.NewPlayer(script)
	if err != nil {
		t.Fatalf("NewPlayer() error = %v", err)
	}
	if err := p.LoadAlarm(wav); err != nil {
		t.Fatalf("LoadAlarm() error = %v", err)
	}
	return p
}

func blankFrames(t *testing.T, n int) []*gocv.Mat {
	t.Helper()
	frames := make([]*gocv.Mat, n)
	for i := range frames {
		m := gocv.NewMatWithSize(detector.FixtureHeight, detector.FixtureWidth, gocv.MatTypeCV8UC3)
		frames[i] = &m
	}
	t.Cleanup(func() {
		for _, f := range frames {
			f.Close()
		}
	})
	return frames
}

func repeat(f detector.FaceLandmarks, n int) []*detector.FaceLandmarks {
	out := make([]*detector.FaceLandmarks, n)
	for i := range out {
		face := f
		out[i] = &face
	}
	return out
}

func TestE2E_SettingsDriveNextSession(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	s, err := store.New(filepath.Join(t.TempDir(), "data.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	defaults := config.DefaultThresholds()
	frames := capture.NewFrameBuffer()
	srv := server.New(server.Config{Store: s, Frames: frames, Thresholds: defaults})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	t.Run("UpdateThresholds", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/settings",
			strings.NewReader(`{"ear_frames": 5}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("PUT settings error = %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}
	})

	// A new session picks the stored overrides up.
	overrides, err := s.Settings().Map()
	if err != nil {
		t.Fatalf("Settings().Map() error = %v", err)
	}
	thresholds, err := defaults.WithSettings(overrides)
	if err != nil {
		t.Fatalf("WithSettings() error = %v", err)
	}
	cfg, err := thresholds.Classifier()
	if err != nil {
		t.Fatalf("Classifier() error = %v", err)
	}
	if cfg.EARFrames != 5 {
		t.Fatalf("EARFrames = %d, want 5", cfg.EARFrames)
	}

	// 4 open, 6 closed, 3 open.
	seq := repeat(detector.AlertFaceLandmarks(), 4)
	seq = append(seq, repeat(detector.ClosedEyesLandmarks(), 6)...)
	seq = append(seq, repeat(detector.AlertFaceLandmarks(), 3)...)

	det := detector.NewMockDetector()
	det.SetSequence(seq)
	cam := capture.NewMockCamera(blankFrames(t, len(seq)), false)
	player := alarmPlayer(t)

	var (
		results []classifier.Result
		playing []bool
	)
	m, err := monitor.New(monitor.Config{
		Camera:     cam,
		Detector:   det,
		Classifier: cfg,
		Alarm:      player,
		Frames:     frames,
		OnResult: func(r classifier.Result) {
			results = append(results, r)
			playing = append(playing, player.IsPlaying())
		},
	})
	if err != nil {
		t.Fatalf("monitor.New() error = %v", err)
	}

	t.Run("RunSession", func(t *testing.T) {
		if err := m.Run(context.Background()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(results) != len(seq) {
			t.Fatalf("results = %d, want %d", len(results), len(seq))
		}

		for i, r := range results {
			wantAlert := i == 8 || i == 9
			if r.Alert != wantAlert {
				t.Errorf("frame %d: alert = %v, want %v", i, r.Alert, wantAlert)
			}
			if playing[i] != wantAlert {
				t.Errorf("frame %d: alarm playing = %v, want %v", i, playing[i], wantAlert)
			}
		}
		if results[8].Status != classifier.StatusDrowsy {
			t.Errorf("frame 8 status = %s, want DROWSY", results[8].Status)
		}
		if player.IsPlaying() {
			t.Error("alarm still playing after the session ended")
		}
	})

	t.Run("PreviewPublished", func(t *testing.T) {
		jpeg, version := frames.Latest()
		if version != uint64(len(seq)) {
			t.Errorf("frame version = %d, want %d", version, len(seq))
		}
		if len(jpeg) < 2 || jpeg[0] != 0xFF || jpeg[1] != 0xD8 {
			t.Error("latest frame is not a JPEG")
		}
	})

	t.Run("HealthAfterSession", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/health")
		if err != nil {
			t.Fatalf("GET /api/health error = %v", err)
		}
		defer resp.Body.Close()

		var health struct {
			Status string `json:"status"`
		}
		json.NewDecoder(resp.Body).Decode(&health)
		if resp.StatusCode != http.StatusOK || health.Status != "ok" {
			t.Errorf("health = %d %q", resp.StatusCode, health.Status)
		}
	})
}

func TestE2E_NoFaceDoesNotInterruptEpisode(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	cfg := classifier.DefaultConfig()
	cfg.EARFrames = 4

	// Closed eyes with a dropout in the middle. Under the freeze policy the
	// counter carries across the gap.
	seq := repeat(detector.ClosedEyesLandmarks(), 2)
	seq = append(seq, nil, nil)
	seq = append(seq, repeat(detector.ClosedEyesLandmarks(), 2)...)

	det := detector.NewMockDetector()
	det.SetSequence(seq)

	var results []classifier.Result
	m, err := monitor.New(monitor.Config{
		Camera:     capture.NewMockCamera(blankFrames(t, len(seq)), false),
		Detector:   det,
		Classifier: cfg,
		Alarm:      alarmPlayer(t),
		OnResult:   func(r classifier.Result) { results = append(results, r) },
	})
	if err != nil {
		t.Fatalf("monitor.New() error = %v", err)
	}
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wantCounter := []int{1, 2, 2, 2, 3, 4}
	for i, r := range results {
		if r.ClosedFrames != wantCounter[i] {
			t.Errorf("frame %d: closed frames = %d, want %d", i, r.ClosedFrames, wantCounter[i])
		}
	}
	if last := results[len(results)-1]; !last.Alert || last.Status != classifier.StatusDrowsy {
		t.Errorf("last frame = %+v, want DROWSY alert", last)
	}

	stats := m.Stats()
	if stats.MissingFrames != 2 || stats.AlertFrames != 1 {
		t.Errorf("stats = %+v", stats)
	}
}
