package server

import (
	"fmt"
	"net/http"

	"github.com/ayusman/vigil/internal/capture"
)

// StreamHandler serves the annotated frames as MJPEG.
type StreamHandler struct {
	frames *capture.FrameBuffer
}

// NewStreamHandler creates a new StreamHandler reading from frames.
func NewStreamHandler(frames *capture.FrameBuffer) *StreamHandler {
	return &StreamHandler{frames: frames}
}

// ServeHTTP streams MJPEG frames until the client disconnects.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var version uint64
	for {
		jpeg, v, err := h.frames.Wait(r.Context(), version)
		if err != nil {
			return
		}
		version = v

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(jpeg))
		if _, err := w.Write(jpeg); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}
