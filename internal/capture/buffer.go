package capture

import (
	"context"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// FrameBuffer holds the most recent frame as JPEG bytes so that readers on
// other goroutines never touch a Mat owned by the capture loop.
type FrameBuffer struct {
	mu      sync.Mutex
	jpeg    []byte
	version uint64
	updated chan struct{}
}

// NewFrameBuffer creates an empty FrameBuffer.
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{updated: make(chan struct{})}
}

// Publish encodes frame as JPEG and stores it as the latest frame.
func (b *FrameBuffer) Publish(frame *gocv.Mat) error {
	if frame == nil || frame.Empty() {
		return fmt.Errorf("publish frame: empty frame")
	}

	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return fmt.Errorf("publish frame: %w", err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	b.Set(data)
	return nil
}

// Set stores already encoded JPEG bytes as the latest frame and wakes waiters.
func (b *FrameBuffer) Set(jpeg []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.jpeg = jpeg
	b.version++
	close(b.updated)
	b.updated = make(chan struct{})
}

// Latest returns the latest frame and its version. Version 0 means no frame
// has been published yet.
func (b *FrameBuffer) Latest() ([]byte, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.jpeg, b.version
}

// Wait blocks until a frame newer than after is available or ctx is done.
func (b *FrameBuffer) Wait(ctx context.Context, after uint64) ([]byte, uint64, error) {
	for {
		b.mu.Lock()
		if b.version > after {
			jpeg, version := b.jpeg, b.version
			b.mu.Unlock()
			return jpeg, version, nil
		}
		updated := b.updated
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, after, ctx.Err()
		case <-updated:
		}
	}
}
