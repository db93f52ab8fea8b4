package window

import (
	"context"
	"sync"
	"time"

	"pkt.systems/streamfx/internal/framesource"
	"pkt.systems/streamfx/schema"
)

// Window is a headless preview surface. Validity is checked under mu before
// every operation, so Destroy may race in-flight Capture or Present.
type Window struct {
	id      schema.WindowID
	source  *framesource.Pattern
	created time.Time
	release func(schema.WindowID)

	mu        sync.Mutex
	destroyed bool
	done      chan struct{}
	latest    schema.Frame
	presented uint64
}

// ID implements core.Window.
func (w *Window) ID() schema.WindowID { return w.id }

// Capture implements core.Window.
func (w *Window) Capture(ctx context.Context) (schema.Frame, error) {
	if err := ctx.Err(); err != nil {
		return schema.Frame{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.destroyed {
		return schema.Frame{}, schema.ErrWindowDestroyed
	}
	return w.source.Next(), nil
}

// Present implements core.Window.
func (w *Window) Present(ctx context.Context, frame schema.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.destroyed {
		return schema.ErrWindowDestroyed
	}
	w.latest = frame
	w.presented++
	return nil
}

// Destroy implements core.Window.
func (w *Window) Destroy() error {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return schema.ErrAlreadyDestroyed
	}
	w.destroyed = true
	w.latest = schema.Frame{}
	close(w.done)
	w.mu.Unlock()
	if w.release != nil {
		w.release(w.id)
	}
	return nil
}

// Done implements core.Window.
func (w *Window) Done() <-chan struct{} { return w.done }

// Latest returns the last presented frame.
func (w *Window) Latest() (schema.Frame, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.destroyed || w.latest.Empty() {
		return schema.Frame{}, false
	}
	return w.latest, true
}

// Presented returns the number of frames presented.
func (w *Window) Presented() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.presented
}
