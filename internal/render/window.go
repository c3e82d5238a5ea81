package render

import (
	"gocv.io/x/gocv"
)

// WindowTitle is the title of the preview window.
const WindowTitle = "Driver Monitor"

// QuitKey closes the preview window and ends monitoring.
const QuitKey = 'q'

// Window shows annotated frames on screen.
type Window struct {
	win *gocv.Window
}

// NewWindow opens the preview window.
func NewWindow() *Window {
	return &Window{win: gocv.NewWindow(WindowTitle)}
}

// Show displays frame and polls the keyboard for 1ms. It returns false once
// the user pressed the quit key or closed the window.
func (w *Window) Show(frame *gocv.Mat) bool {
	if frame != nil && !frame.Empty() {
		w.win.IMShow(*frame)
	}
	key := w.win.WaitKey(1)
	if key&0xFF == QuitKey {
		return false
	}
	return w.win.IsOpen()
}

// Close destroys the window.
func (w *Window) Close() error {
	return w.win.Close()
}
