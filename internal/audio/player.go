// Package audio plays the alarm tone through the system's command-line audio player.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ayusman/vigil/internal/log"
)

const (
	// retryDelay is the pause between player runs after a failed one.
	retryDelay = time.Second
	// minRunInterval is the shortest time between the starts of two
	// successful runs. A clip shorter than this repeats with a gap.
	minRunInterval = 250 * time.Millisecond
	// warnInterval limits how often playback failures are logged.
	warnInterval = 5 * time.Second
)

var (
	// ErrNoPlayer is returned when no supported audio player is installed.
	ErrNoPlayer = errors.New("no audio player available")

	// ErrInvalidAlarm is returned when the alarm file is not a RIFF/WAVE file.
	ErrInvalidAlarm = errors.New("alarm is not a WAV file")

	// ErrNotLoaded is returned by PlayLooping before LoadAlarm succeeded.
	ErrNotLoaded = errors.New("alarm not loaded")
)

// playerCandidates are tried in order. Each entry is the binary followed by
// the arguments placed before the file path.
var playerCandidates = [][]string{
	{"afplay"},
	{"paplay"},
	{"aplay", "-q"},
	{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet"},
}

// Player loops a single WAV file by re-running an external player process.
type Player struct {
	command []string
	path    string

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	playing bool

	failWarn rate.Sometimes
}

func newPlayer(command []string) *Player {
	return &Player{
		command:  command,
		failWarn: rate.Sometimes{First: 1, Interval: warnInterval},
	}
}

// NewPlayer finds the first available system audio player. command, when
// non-empty, is used instead of auto-detection.
func NewPlayer(command ...string) (*Player, error) {
	if len(command) > 0 {
		if _, err := exec.LookPath(command[0]); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrNoPlayer, command[0])
		}
		return newPlayer(command), nil
	}

	for _, candidate := range playerCandidates {
		if _, err := exec.LookPath(candidate[0]); err == nil {
			return newPlayer(candidate), nil
		}
	}
	return nil, ErrNoPlayer
}

// Command returns the player command line without the file path.
func (p *Player) Command() []string {
	return p.command
}

// LoadAlarm checks that path is a readable WAV file and makes it the tone
// played by PlayLooping.
func (p *Player) LoadAlarm(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open alarm: %w", err)
	}
	defer f.Close()

	header := make([]byte, 12)
	if _, err := io.ReadFull(f, header); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAlarm, path)
	}
	if !bytes.Equal(header[0:4], []byte("RIFF")) || !bytes.Equal(header[8:12], []byte("WAVE")) {
		return fmt.Errorf("%w: %s", ErrInvalidAlarm, path)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.path = path
	return nil
}

// IsPlaying reports whether the playback loop is running.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// PlayLooping starts playing the alarm in a loop. It is a no-op if the loop
// is already running.
func (p *Player) PlayLooping() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.path == "" {
		return ErrNotLoaded
	}
	if p.playing {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.playing = true

	go p.loop(ctx, p.path, p.done)
	return nil
}

// Stop ends the playback loop and waits for the player process to exit.
func (p *Player) Stop() error {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return nil
	}
	cancel, done := p.cancel, p.done
	p.playing = false
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	cancel()
	<-done
	return nil
}

func (p *Player) loop(ctx context.Context, path string, done chan struct{}) {
	defer close(done)

	args := append(append([]string{}, p.command[1:]...), path)
	for {
		start := time.Now()
		cmd := exec.CommandContext(ctx, p.command[0], args...)
		err := cmd.Run()

		if ctx.Err() != nil {
			return
		}

		var wait time.Duration
		if err != nil {
			p.failWarn.Do(func() {
				log.Warn(log.Fields{"player": p.command[0], "error": err.Error()}, "[audio.Player] playback failed, retrying")
			})
			wait = retryDelay
		} else if elapsed := time.Since(start); elapsed < minRunInterval {
			wait = minRunInterval - elapsed
		}
		if wait == 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}
