// Package tray provides a system tray interface for vigil.
package tray

import (
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/vigil/internal/classifier"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle  func(enabled bool)
	onPreview func()
	onQuit    func()
	enabled   bool
	status    string
	mu        sync.RWMutex

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuStatus *systray.MenuItem
}

// New creates a new Tray instance with enabled state set to true by default.
func New() *Tray {
	return &Tray{
		enabled: true,
		status:  statusTitle(classifier.StatusOK, false),
	}
}

// OnToggle sets the callback function to be called when monitoring is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnPreview sets the callback for the "Open Preview" item. Without one the
// item is not shown.
func (t *Tray) OnPreview(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPreview = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray, making Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Vigil")
	systray.SetTooltip("Vigil driver drowsiness monitor")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle drowsiness monitoring")
	systray.AddSeparator()

	t.menuStatus = systray.AddMenuItem(t.status, "Current driver status")
	t.menuStatus.Disable()
	systray.AddSeparator()

	var previewClicked chan struct{}
	if t.onPreview != nil {
		previewClicked = systray.AddMenuItem("Open Preview...", "Open the live preview in a browser").ClickedCh
		systray.AddSeparator()
	}
	t.mu.Unlock()

	menuQuit := systray.AddMenuItem("Quit", "Quit Vigil")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-previewClicked:
				t.handlePreview()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// onExit is called when the system tray is about to exit.
func (t *Tray) onExit() {}

// handleToggle handles the toggle menu item click.
func (t *Tray) handleToggle() {
	enabled, callback := t.toggle()
	if callback != nil {
		callback(enabled)
	}
}

// toggle flips the enabled state and returns it with the callback to run
// outside the lock.
func (t *Tray) toggle() (bool, func(bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.enabled = !t.enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(t.enabled))
	}
	return t.enabled, t.onToggle
}

// handlePreview handles the preview menu item click.
func (t *Tray) handlePreview() {
	t.mu.RLock()
	callback := t.onPreview
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetStatus updates the status line. Calls that do not change the text are
// cheap, so it can be driven from every frame.
func (t *Tray) SetStatus(res classifier.Result) {
	title := statusTitle(res.Status, res.Alert)

	t.mu.Lock()
	defer t.mu.Unlock()

	if title == t.status {
		return
	}
	t.status = title
	if t.menuStatus != nil {
		t.menuStatus.SetTitle(title)
	}
}

// Status returns the current status line.
func (t *Tray) Status() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Monitoring"
	}
	return "○ Paused"
}

func statusTitle(s classifier.Status, alert bool) string {
	if alert {
		return "Status: " + s.Label() + " ⚠"
	}
	return "Status: " + s.Label()
}
