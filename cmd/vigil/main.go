package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/ayusman/vigil/internal/audio"
	"github.com/ayusman/vigil/internal/capture"
	"github.com/ayusman/vigil/internal/classifier"
	"github.com/ayusman/vigil/internal/config"
	"github.com/ayusman/vigil/internal/detector"
	"github.com/ayusman/vigil/internal/log"
	"github.com/ayusman/vigil/internal/monitor"
	"github.com/ayusman/vigil/internal/render"
	"github.com/ayusman/vigil/internal/server"
	"github.com/ayusman/vigil/internal/store"
	"github.com/ayusman/vigil/internal/tray"
)

func main() {
	if err := run(); err != nil {
		log.Error(log.Fields{"error": err.Error()}, "[main] vigil exited with error")
		os.Exit(1)
	}
}

// options are the values that only come from the command line.
type options struct {
	scriptPath string
	pythonPath string
}

func run() error {
	fmt.Println("Vigil - Driver Drowsiness Monitor")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	opts, patch, err := parseFlags(cfg, os.Args[1:])
	if err != nil {
		return err
	}

	if err := log.Init(log.Options{Level: cfg.LogLevel, File: cfg.LogFile}); err != nil {
		return err
	}

	var st *store.Store
	if cfg.DBPath != "" {
		st, err = store.New(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open settings store: %w", err)
		}
		defer st.Close()

		overrides, err := st.Settings().Map()
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
		if cfg.Thresholds, err = cfg.Thresholds.WithSettings(overrides); err != nil {
			return fmt.Errorf("stored settings: %w", err)
		}
	}
	cfg.Thresholds = cfg.Thresholds.Apply(patch)

	if err := cfg.Validate(); err != nil {
		return err
	}
	classifierCfg, err := cfg.Thresholds.Classifier()
	if err != nil {
		return err
	}

	player, err := newAlarm(cfg)
	if err != nil {
		return err
	}

	detCfg := detector.DefaultConfig()
	detCfg.ScriptPath = opts.scriptPath
	detCfg.PythonPath = opts.pythonPath
	det, err := detector.NewMediaPipeDetector(detCfg)
	if err != nil {
		return fmt.Errorf("face mesh detector: %w", err)
	}

	source, err := capture.ParseSource(cfg.Source)
	if err != nil {
		det.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var t *tray.Tray
	if cfg.Tray {
		t = tray.New()
	}

	var frames *capture.FrameBuffer
	if cfg.PreviewAddr != "" {
		frames = capture.NewFrameBuffer()
	}

	monCfg := monitor.Config{
		Camera:     capture.NewCamera(source),
		Detector:   det,
		Classifier: classifierCfg,
		Alarm:      player,
		Frames:     frames,
	}
	if t != nil {
		monCfg.OnResult = t.SetStatus
	}
	// The OpenCV window and the tray both need the main thread; tray mode
	// runs headless with the preview server as its display.
	if cfg.Window && t == nil {
		monCfg.Display = render.NewWindow()
	}

	m, err := monitor.New(monCfg)
	if err != nil {
		det.Close()
		return err
	}

	log.Info(log.Fields{
		"session_id": m.SessionID(),
		"source":     source.String(),
		"alarm":      cfg.AlarmFile,
		"player":     strings.Join(player.Command(), " "),
		"thresholds": thresholdSummary(classifierCfg),
	}, "[main] vigil starting")

	if frames != nil {
		srv := server.New(server.Config{
			Store:      st,
			Frames:     frames,
			Thresholds: cfg.Thresholds,
			Enabled:    m.IsEnabled,
		})
		go func() {
			log.Info(log.Fields{"addr": cfg.PreviewAddr}, "[main] preview server listening")
			if err := srv.ListenAndServe(cfg.PreviewAddr); err != nil {
				log.Error(log.Fields{"error": err.Error()}, "[main] preview server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	if t == nil {
		return m.Run(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t.OnToggle(func(enabled bool) {
		m.SetEnabled(enabled)
		log.Info(log.Fields{"enabled": enabled}, "[main] monitoring toggled")
	})
	t.OnQuit(cancel)
	if cfg.PreviewAddr != "" {
		t.OnPreview(func() { openBrowser(previewURL(cfg.PreviewAddr)) })
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- m.Run(ctx)
		t.Quit()
	}()

	t.Run()
	cancel()
	return <-runErr
}

// parseFlags overrides cfg with command-line flags. Threshold flags are
// returned as a patch since they win over persisted settings, which are
// only readable once the database path is known.
func parseFlags(cfg *config.Config, args []string) (options, config.ThresholdPatch, error) {
	var (
		opts  options
		patch config.ThresholdPatch
	)
	fs := flag.NewFlagSet("vigil", flag.ContinueOnError)

	fs.StringVar(&cfg.Source, "source", cfg.Source, "camera index or video file path")
	fs.StringVar(&cfg.AlarmFile, "alarm", cfg.AlarmFile, "alarm WAV file")
	fs.StringVar(&cfg.AudioPlayer, "audio-player", cfg.AudioPlayer, "audio player command (default: auto-detect)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "settings database path (empty disables persisted settings)")
	fs.StringVar(&cfg.PreviewAddr, "preview-addr", cfg.PreviewAddr, "address for the local preview server, e.g. 127.0.0.1:8090")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "also write logs to this file, rotated")
	fs.BoolVar(&cfg.Window, "window", cfg.Window, "show the preview window")
	fs.BoolVar(&cfg.Tray, "tray", cfg.Tray, "run from the system tray")
	fs.StringVar(&opts.scriptPath, "facemesh-script", "", "path to facemesh_service.py (default: search)")
	fs.StringVar(&opts.pythonPath, "python", "", "python interpreter for the face mesh service")

	var flagT config.Thresholds
	fs.Float64Var(&flagT.EARThreshold, "ear-threshold", cfg.Thresholds.EARThreshold, "eye aspect ratio below which eyes count as closed")
	fs.IntVar(&flagT.EARFrames, "ear-frames", cfg.Thresholds.EARFrames, "consecutive closed-eye frames before DROWSY")
	fs.Float64Var(&flagT.MARThreshold, "mar-threshold", cfg.Thresholds.MARThreshold, "mouth aspect ratio above which the driver is yawning")
	fs.Float64Var(&flagT.TiltThreshold, "tilt-threshold", cfg.Thresholds.TiltThreshold, "head roll in degrees above which the head counts as tilted")
	fs.StringVar(&flagT.NoFacePolicy, "no-face", cfg.Thresholds.NoFacePolicy, "closed-eye counter on frames without a face: freeze or reset")

	if err := fs.Parse(args); err != nil {
		return opts, patch, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "ear-threshold":
			patch.EARThreshold = &flagT.EARThreshold
		case "ear-frames":
			patch.EARFrames = &flagT.EARFrames
		case "mar-threshold":
			patch.MARThreshold = &flagT.MARThreshold
		case "tilt-threshold":
			patch.TiltThreshold = &flagT.TiltThreshold
		case "no-face":
			patch.NoFacePolicy = &flagT.NoFacePolicy
		}
	})
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	return opts, patch, nil
}

// newAlarm finds an audio player and loads the alarm. Without a working
// alarm vigil refuses to start.
func newAlarm(cfg *config.Config) (*audio.Player, error) {
	var player *audio.Player
	var err error
	if cfg.AudioPlayer != "" {
		player, err = audio.NewPlayer(strings.Fields(cfg.AudioPlayer)...)
	} else {
		player, err = audio.NewPlayer()
	}
	if err != nil {
		return nil, err
	}
	if err := player.LoadAlarm(cfg.AlarmFile); err != nil {
		return nil, err
	}
	return player, nil
}

func previewURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr + "/"
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Warn(log.Fields{"url": url, "error": err.Error()}, "[main] failed to open browser")
		return
	}
	go cmd.Wait()
}

func thresholdSummary(c classifier.Config) string {
	return fmt.Sprintf("ear<%.2f for %d frames, mar>%.2f, |tilt|>%.1f, no-face=%s",
		c.EARThreshold, c.EARFrames, c.MARThreshold, c.TiltThreshold, c.NoFace)
}
