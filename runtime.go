// Package streamfx wires the preview session controller to its headless
// window layer, built-in effects, history store and network bindings.
package streamfx

import (
	"context"
	"errors"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/streamfx/core"
	"pkt.systems/streamfx/httpapi"
	"pkt.systems/streamfx/internal/effects"
	"pkt.systems/streamfx/internal/eventbus"
	"pkt.systems/streamfx/internal/history"
	"pkt.systems/streamfx/internal/window"
	"pkt.systems/streamfx/schema"
)

// RuntimeDeps overrides runtime collaborators. Zero values select the
// built-in implementations.
type RuntimeDeps struct {
	Windows    core.WindowFactory
	Inferencer core.Inferencer
	EventSink  core.EventSink
	Logger     pslog.Logger
	// MaxWindows caps the built-in window manager; zero means unlimited.
	MaxWindows int
}

// Runtime is a running session controller and the pieces around it.
type Runtime struct {
	Controller *core.Controller
	Events     *eventbus.Bus
	History    *history.Store
	// Windows is the built-in window manager, nil when RuntimeDeps.Windows was set.
	Windows *window.Manager

	logger pslog.Logger
}

// NewRuntime builds a controller from cfg. The controller pre-creates its
// spare window before NewRuntime returns.
func NewRuntime(ctx context.Context, cfg schema.ControllerConfig, deps RuntimeDeps) (*Runtime, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	normalized, err := schema.NormalizeControllerConfig(cfg)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(ctx)
	}
	ctx = pslog.ContextWithLogger(ctx, logger)

	rt := &Runtime{logger: logger}
	windows := deps.Windows
	if windows == nil {
		rt.Windows = window.NewManager(ctx, window.Options{
			Width:   normalized.Width,
			Height:  normalized.Height,
			MaxLive: deps.MaxWindows,
		})
		windows = rt.Windows
	}
	infer := deps.Inferencer
	if infer == nil {
		builtin, err := effects.NewRuntime(normalized.Effect)
		if err != nil {
			return nil, err
		}
		logger.Debug("using built-in effect", "effect", builtin.Kind(), "model_file", effects.ModelFile(builtin.Kind()))
		infer = builtin
	}
	store, err := history.Open(normalized.StateDir, normalized.HistoryLimit, logger)
	if err != nil {
		return nil, err
	}
	rt.History = store
	rt.Events = eventbus.New(logger)

	ctrl, err := core.NewController(ctx, normalized, core.ControllerDeps{
		Windows:    windows,
		Inferencer: infer,
		EventSink:  fanout(rt.Events, deps.EventSink),
		History:    store,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	rt.Controller = ctrl
	return rt, nil
}

// Frames returns the frame source for previews, or nil when windows are external.
func (r *Runtime) Frames() httpapi.FrameSource {
	if r.Windows == nil {
		return nil
	}
	return r.Windows
}

// Close shuts the controller down, waits up to ctx for running tasks and
// releases every window.
func (r *Runtime) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var errs []error
	if err := r.Controller.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.Controller.Wait(waitCtx); err != nil {
		r.logger.Warn("preview tasks still running at close", "err", err)
		errs = append(errs, err)
	}
	if r.Windows != nil {
		r.Windows.Close()
	}
	r.Events.Close()
	return errors.Join(errs...)
}
