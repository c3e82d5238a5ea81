// Package alert maps the classifier's alert flag onto an audible alarm.
package alert

import (
	"fmt"
	"sync"
)

// Alarm is a single preloaded tone that can be looped and stopped.
type Alarm interface {
	IsPlaying() bool
	PlayLooping() error
	Stop() error
}

// Controller issues play and stop calls on an Alarm only when the commanded
// state changes. It remembers the last commanded state so that calling
// SetAlert every frame never restarts a loop that is already playing, even if
// the underlying Alarm is not idempotent itself.
type Controller struct {
	alarm   Alarm
	mu      sync.Mutex
	playing bool
}

// NewController creates a Controller for the given alarm.
func NewController(alarm Alarm) *Controller {
	return &Controller{alarm: alarm}
}

// SetAlert starts the alarm when active and not already playing, and stops
// it when inactive and playing. A nil alarm makes every call a no-op.
func (c *Controller) SetAlert(active bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.alarm == nil {
		return nil
	}

	if active {
		// The loop may have died underneath us; restart it only in that case.
		if c.playing && c.alarm.IsPlaying() {
			return nil
		}
		if err := c.alarm.PlayLooping(); err != nil {
			c.playing = false
			return fmt.Errorf("start alarm: %w", err)
		}
		c.playing = true
		return nil
	}

	if !c.playing {
		return nil
	}
	if err := c.alarm.Stop(); err != nil {
		return fmt.Errorf("stop alarm: %w", err)
	}
	c.playing = false
	return nil
}

// Playing returns the last commanded state.
func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Close silences the alarm if it is playing.
func (c *Controller) Close() error {
	return c.SetAlert(false)
}
