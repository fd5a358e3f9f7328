package protocol

import (
	"context"
	"sync"
)

// Frameable is anything that encodes to frames: a Message or a Request.
type Frameable interface {
	Frames() []Frame
}

// Writer sends messages so that the frames of one Send call are never
// interleaved with another's.
type Writer struct {
	mu     sync.Mutex
	frames FrameWriter
}

// NewWriter wraps fw.
func NewWriter(fw FrameWriter) *Writer {
	return &Writer{frames: fw}
}

// Send writes every frame of items in order.
func (w *Writer) Send(ctx context.Context, items ...Frameable) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, item := range items {
		for _, f := range item.Frames() {
			if err := w.frames.WriteFrame(ctx, f); err != nil {
				return err
			}
		}
	}
	return nil
}
