package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"pkt.systems/pslog"
	"pkt.systems/streamfx/internal/logx"
	"pkt.systems/streamfx/schema"
)

// Controller owns the preview session state machine. It is the only component
// that creates or destroys windows and starts or stops tasks.
//
// Toggle never waits for a task to exit: teardown cancels the task and destroys
// its window, then returns. A torn-down task may still be finishing its last
// iteration while a new session starts; it holds only its own, already
// destroyed window, so it cannot touch the new session.
type Controller struct {
	cfg     schema.ControllerConfig
	windows WindowFactory
	infer   Inferencer
	sink    EventSink
	history HistoryRecorder
	logger  pslog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc
	tasks      sync.WaitGroup

	mu     sync.Mutex
	state  schema.SessionState
	spare  Window
	active *activeSession
	closed bool
}

type activeSession struct {
	id     schema.SessionID
	window Window
	task   *Task
}

// NewController constructs a controller in the Idle state and pre-creates the
// spare window. A failed pre-creation is logged and retried on the next Toggle.
func NewController(ctx context.Context, cfg schema.ControllerConfig, deps ControllerDeps) (*Controller, error) {
	normalized, err := schema.NormalizeControllerConfig(cfg)
	if err != nil {
		return nil, err
	}
	if deps.Windows == nil {
		return nil, errors.New("window factory is required")
	}
	if deps.Inferencer == nil {
		return nil, errors.New("inferencer is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(ctx)
	}
	logger = logx.WithEffect(logger, normalized.Effect, normalized.ModelPath)
	baseCtx, baseCancel := logx.Detach(pslog.ContextWithLogger(ctx, logger))
	c := &Controller{
		cfg:        normalized,
		windows:    deps.Windows,
		infer:      deps.Inferencer,
		sink:       deps.EventSink,
		history:    deps.History,
		logger:     logger,
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		state:      schema.SessionIdle,
	}
	c.mu.Lock()
	spareErr := c.ensureSpareLocked(ctx)
	c.mu.Unlock()
	if spareErr != nil {
		logger.Warn("spare window pre-create failed; will retry on toggle", "err", spareErr)
	}
	logger.Info("session controller ready", "width", normalized.Width, "height", normalized.Height, "fps", normalized.TargetFPS)
	return c, nil
}

// Config returns the normalized controller configuration.
func (c *Controller) Config() schema.ControllerConfig {
	return c.cfg
}

// Toggle flips the session state once and returns the new state.
func (c *Controller) Toggle(ctx context.Context) (schema.SessionState, error) {
	return c.toggle(ctx, "")
}

// ToggleFrom flips the session state only if it still equals observed. A caller
// whose observation is stale (a second click racing the first) gets the current
// state back and nothing changes.
func (c *Controller) ToggleFrom(ctx context.Context, observed schema.SessionState) (schema.SessionState, error) {
	if observed != schema.SessionIdle && observed != schema.SessionActive {
		return c.State(), fmt.Errorf("%w: unknown session state %q", schema.ErrInvalidConfig, observed)
	}
	return c.toggle(ctx, observed)
}

func (c *Controller) toggle(ctx context.Context, observed schema.SessionState) (schema.SessionState, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var events []schema.StateEvent
	defer func() { c.emit(events...) }()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.state, schema.ErrControllerClosed
	}
	if observed != "" && observed != c.state {
		c.logger.Debug("session toggle ignored", "reason", "stale observation", "observed", observed, "state", c.state)
		return c.state, nil
	}
	switch c.state {
	case schema.SessionIdle:
		if err := c.activateLocked(ctx); err != nil {
			events = append(events, c.eventLocked(schema.StateEventSpareFailed, nil, err))
			return c.state, err
		}
	case schema.SessionActive:
		c.teardownLocked()
		c.state = schema.SessionIdle
		if err := c.ensureSpareLocked(ctx); err != nil {
			c.logger.Warn("spare window pre-create failed; will retry on toggle", "err", err)
			events = append(events, c.eventLocked(schema.StateEventSpareFailed, nil, err))
		}
		c.logger.Info("session deactivated")
	}
	events = append(events, c.eventLocked(schema.StateEventTransition, nil, nil))
	return c.state, nil
}

func (c *Controller) activateLocked(ctx context.Context) error {
	if err := c.ensureSpareLocked(ctx); err != nil {
		c.logger.Warn("session activation failed", "err", err)
		return err
	}
	window := c.spare
	c.spare = nil
	sessionID := schema.SessionID(uuid.NewString())
	c.tasks.Add(1)
	task, err := StartTask(c.baseCtx, TaskRequest{
		SessionID:        sessionID,
		ModelPath:        c.cfg.ModelPath,
		Window:           window,
		Inferencer:       c.infer,
		Limiter:          newFrameLimiter(c.cfg.TargetFPS),
		InferenceTimeout: c.cfg.InferenceTimeout,
		OnComplete: func(status schema.TaskStatus) {
			defer c.tasks.Done()
			c.onTaskComplete(status)
		},
	})
	if err != nil {
		c.tasks.Done()
		c.spare = window
		c.logger.Error("session activation failed", "err", err)
		return err
	}
	c.active = &activeSession{id: sessionID, window: window, task: task}
	c.state = schema.SessionActive
	logx.WithWindow(c.logger.With("session", sessionID), window.ID()).Info("session activated")
	return nil
}

// teardownLocked requests the active task to stop without waiting for it.
func (c *Controller) teardownLocked() {
	sess := c.active
	c.active = nil
	if sess == nil {
		return
	}
	log := logx.WithWindow(c.logger.With("session", sess.id), sess.window.ID())
	if sess.task == nil || sess.task.IsCompleted() {
		log.Debug("session teardown skipped", "reason", "task already completed")
		return
	}
	sess.task.Cancel()
	destroyWindow(log, sess.window)
	log.Info("session teardown requested")
}

// ensureSpareLocked makes sure an unused, live spare window exists.
func (c *Controller) ensureSpareLocked(ctx context.Context) error {
	if c.spare != nil {
		if !windowGone(c.spare) {
			return nil
		}
		c.logger.Warn("spare window lost; recreating", "window", c.spare.ID())
		c.spare = nil
	}
	window, err := createWindow(ctx, c.windows)
	if err != nil {
		return err
	}
	c.spare = window
	c.logger.Debug("spare window ready", "window", window.ID())
	return nil
}

func (c *Controller) onTaskComplete(status schema.TaskStatus) {
	if c.history != nil {
		record := schema.SessionRecord{
			SessionID: status.SessionID,
			WindowID:  status.WindowID,
			Effect:    c.cfg.Effect,
			Started:   status.Started,
			Ended:     status.Ended,
			Frames:    status.Frames,
			Reason:    status.Reason,
			Err:       status.Err,
		}
		if err := c.history.Append(record); err != nil {
			c.logger.Warn("session history append failed", "session", status.SessionID, "err", err)
		}
	}
	c.mu.Lock()
	event := c.eventLocked(schema.StateEventTaskCompleted, &status, nil)
	c.mu.Unlock()
	c.emit(event)
}

// Shutdown tears down any active session and releases the spare window. It is
// idempotent; Toggle fails with schema.ErrControllerClosed afterwards.
func (c *Controller) Shutdown(ctx context.Context) error {
	_ = ctx
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.teardownLocked()
	if c.spare != nil {
		destroyWindow(c.logger, c.spare)
		c.spare = nil
	}
	c.state = schema.SessionIdle
	event := c.eventLocked(schema.StateEventClosed, nil, nil)
	c.mu.Unlock()

	c.baseCancel()
	c.emit(event)
	c.logger.Info("session controller shut down")
	return nil
}

// Wait blocks until every task started by the controller has exited or ctx is done.
// Toggle and Shutdown never call it.
func (c *Controller) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current session state.
func (c *Controller) State() schema.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the observable controller state.
func (c *Controller) Snapshot() schema.SessionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// ActiveTask returns the task of the active session, or nil when idle.
func (c *Controller) ActiveTask() *Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil
	}
	return c.active.task
}

// ActiveWindow returns the window of the active session, or nil when idle.
func (c *Controller) ActiveWindow() Window {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil
	}
	return c.active.window
}

func (c *Controller) snapshotLocked() schema.SessionSnapshot {
	snap := schema.SessionSnapshot{
		State:  c.state,
		Effect: c.cfg.Effect,
		Closed: c.closed,
	}
	if c.spare != nil && !windowGone(c.spare) {
		snap.SpareWindowID = c.spare.ID()
		snap.SpareReady = true
	}
	if c.active != nil {
		snap.SessionID = c.active.id
		snap.WindowID = c.active.window.ID()
		if c.active.task != nil {
			status := c.active.task.Status()
			snap.Task = &status
		}
	}
	return snap
}

func (c *Controller) eventLocked(kind schema.StateEventType, task *schema.TaskStatus, err error) schema.StateEvent {
	event := schema.StateEvent{
		Type:      kind,
		Snapshot:  c.snapshotLocked(),
		Task:      task,
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		event.Err = err.Error()
	}
	return event
}

func (c *Controller) emit(events ...schema.StateEvent) {
	if c.sink == nil {
		return
	}
	for _, event := range events {
		c.sink.OnStateEvent(event)
	}
}

func newFrameLimiter(fps float64) *rate.Limiter {
	if fps <= 0 || math.IsInf(fps, 1) {
		return nil
	}
	return rate.NewLimiter(rate.Limit(fps), 1)
}
