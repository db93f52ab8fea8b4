package core

import (
	"context"
	"errors"
	"fmt"

	"pkt.systems/pslog"
	"pkt.systems/streamfx/schema"
)

// Window is a preview surface owned by at most one task at a time.
//
// Implementations must make Capture and Present safe to call concurrently with
// Destroy: once Destroy has run they return schema.ErrWindowDestroyed.
type Window interface {
	ID() schema.WindowID
	// Capture acquires the next frame from the window's capture surface.
	Capture(ctx context.Context) (schema.Frame, error)
	// Present renders a frame into the window.
	Present(ctx context.Context, frame schema.Frame) error
	// Destroy releases the window. Redundant calls return schema.ErrAlreadyDestroyed.
	Destroy() error
	// Done is closed once the window has been destroyed.
	Done() <-chan struct{}
}

// WindowFactory allocates preview windows.
// Create returns an error wrapping schema.ErrWindowCreationFailed and never a nil window on success.
type WindowFactory interface {
	Create(ctx context.Context) (Window, error)
}

// WindowFactoryFunc adapts a function into a WindowFactory.
type WindowFactoryFunc func(ctx context.Context) (Window, error)

// Create implements WindowFactory.
func (f WindowFactoryFunc) Create(ctx context.Context) (Window, error) { return f(ctx) }

func createWindow(ctx context.Context, factory WindowFactory) (Window, error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: no window factory", schema.ErrWindowCreationFailed)
	}
	window, err := factory.Create(ctx)
	if err != nil {
		if !errors.Is(err, schema.ErrWindowCreationFailed) {
			err = fmt.Errorf("%w: %w", schema.ErrWindowCreationFailed, err)
		}
		return nil, err
	}
	if window == nil {
		return nil, fmt.Errorf("%w: factory returned nil window", schema.ErrWindowCreationFailed)
	}
	return window, nil
}

// destroyWindow destroys the window, swallowing redundant destroys.
func destroyWindow(log pslog.Logger, window Window) {
	if window == nil {
		return
	}
	err := window.Destroy()
	switch {
	case err == nil:
		log.Debug("window destroyed", "window", window.ID())
	case errors.Is(err, schema.ErrAlreadyDestroyed):
		log.Debug("window destroy skipped", "window", window.ID(), "reason", "already destroyed")
	default:
		log.Warn("window destroy failed", "window", window.ID(), "err", err)
	}
}

func windowGone(window Window) bool {
	if window == nil {
		return true
	}
	return isDone(window.Done())
}

func isDone(ch <-chan struct{}) bool {
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
