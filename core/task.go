package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"pkt.systems/pslog"
	"pkt.systems/streamfx/internal/logx"
	"pkt.systems/streamfx/schema"
)

// TaskRequest describes one preview loop.
type TaskRequest struct {
	SessionID  schema.SessionID
	ModelPath  string
	Window     Window
	Inferencer Inferencer
	// Limiter paces frame acquisition; nil runs unpaced.
	Limiter *rate.Limiter
	// InferenceTimeout bounds a single Infer call; zero disables the bound.
	InferenceTimeout time.Duration
	// OnComplete runs on the task goroutine after the loop exits.
	OnComplete func(schema.TaskStatus)
}

// Task runs a capture -> infer -> present loop on its own goroutine until it is
// cancelled or its window is destroyed. The task owns its window and destroys it
// on exit.
type Task struct {
	req     TaskRequest
	log     pslog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	started time.Time

	done            chan struct{}
	finishOnce      sync.Once
	completed       atomic.Bool
	cancelRequested atomic.Bool
	frames          atomic.Uint64

	mu     sync.Mutex
	ended  time.Time
	reason schema.TaskEndReason
	err    error
}

// StartTask launches the loop and returns immediately. The loop runs on a
// context detached from ctx; only Cancel or window destruction stop it.
func StartTask(ctx context.Context, req TaskRequest) (*Task, error) {
	if req.Window == nil {
		return nil, errors.New("task window is required")
	}
	if req.Inferencer == nil {
		return nil, errors.New("task inferencer is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	log := logx.WithSessionWindow(ctx, req.SessionID, req.Window.ID())
	runCtx, cancel := logx.Detach(logx.ContextWithSessionLogger(ctx, log, req.SessionID, req.Window.ID()))
	t := &Task{
		req:     req,
		log:     log,
		ctx:     runCtx,
		cancel:  cancel,
		started: time.Now(),
		done:    make(chan struct{}),
	}
	go t.watchWindow()
	go t.run()
	log.Info("preview task started", "model_path", req.ModelPath)
	return t, nil
}

// SessionID returns the session the task belongs to.
func (t *Task) SessionID() schema.SessionID { return t.req.SessionID }

// Window returns the window the task renders into.
func (t *Task) Window() Window { return t.req.Window }

// IsCompleted reports whether the loop has exited. It never blocks.
func (t *Task) IsCompleted() bool { return t.completed.Load() }

// Done is closed once the loop has exited.
func (t *Task) Done() <-chan struct{} { return t.done }

// Frames returns the number of frames presented so far.
func (t *Task) Frames() uint64 { return t.frames.Load() }

// CancelRequested reports whether Cancel has been called.
func (t *Task) CancelRequested() bool { return t.cancelRequested.Load() }

// Cancel signals the loop to stop at its next check point. It does not wait.
func (t *Task) Cancel() {
	if t.cancelRequested.CompareAndSwap(false, true) {
		t.log.Debug("preview task cancel requested")
	}
	t.cancel()
}

// Status returns a snapshot of the task.
func (t *Task) Status() schema.TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	status := schema.TaskStatus{
		SessionID: t.req.SessionID,
		WindowID:  t.req.Window.ID(),
		Completed: t.completed.Load(),
		Frames:    t.frames.Load(),
		Started:   t.started,
		Ended:     t.ended,
		Reason:    t.reason,
	}
	if t.err != nil {
		status.Err = t.err.Error()
	}
	return status
}

// Err returns the terminal error, if the loop ended abnormally.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Task) watchWindow() {
	select {
	case <-t.req.Window.Done():
		t.cancel()
	case <-t.done:
	}
}

func (t *Task) run() {
	window := t.req.Window
	for {
		if reason, stop := t.stopReason(); stop {
			t.finish(reason, nil)
			return
		}
		if t.req.Limiter != nil {
			if err := t.req.Limiter.Wait(t.ctx); err != nil {
				reason, stop := t.stopReason()
				if !stop {
					// Wait fails fast when the next token lies beyond a deadline; treat as a stop.
					reason = schema.TaskCancelled
				}
				t.finish(reason, nil)
				return
			}
		}
		frame, err := window.Capture(t.ctx)
		if err != nil {
			t.finish(t.classify(err, schema.TaskCaptureFailed))
			return
		}
		out, err := t.infer(frame)
		if err != nil {
			t.finish(t.classify(err, schema.TaskInferenceFailed))
			return
		}
		if err := window.Present(t.ctx, out); err != nil {
			t.finish(t.classify(err, schema.TaskPresentFailed))
			return
		}
		n := t.frames.Add(1)
		if n == 1 {
			t.log.Debug("preview task first frame", "latency_ms", time.Since(t.started).Milliseconds())
		}
	}
}

type inferResult struct {
	frame schema.Frame
	err   error
}

// infer runs the inference call on its own goroutine so a call that ignores
// its context cannot pin the loop past the timeout or a teardown. A call that
// never returns leaks that goroutine until it does.
func (t *Task) infer(frame schema.Frame) (schema.Frame, error) {
	ctx := t.ctx
	if t.req.InferenceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.req.InferenceTimeout)
		defer cancel()
	}
	resultCh := make(chan inferResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- inferResult{err: fmt.Errorf("%w: panic: %v", schema.ErrInferenceFailed, r)}
			}
		}()
		out, err := t.req.Inferencer.Infer(ctx, t.req.ModelPath, frame)
		resultCh <- inferResult{frame: out, err: err}
	}()
	select {
	case res := <-resultCh:
		if res.err != nil {
			return schema.Frame{}, res.err
		}
		if res.frame.Empty() {
			return schema.Frame{}, fmt.Errorf("%w: empty output frame", schema.ErrInferenceFailed)
		}
		return res.frame, nil
	case <-ctx.Done():
		if t.ctx.Err() != nil {
			return schema.Frame{}, t.ctx.Err()
		}
		return schema.Frame{}, fmt.Errorf("%w after %s", schema.ErrInferenceTimeout, t.req.InferenceTimeout)
	}
}

// stopReason checks both stop signals. Either one is authoritative.
func (t *Task) stopReason() (schema.TaskEndReason, bool) {
	if t.cancelRequested.Load() {
		return schema.TaskCancelled, true
	}
	if windowGone(t.req.Window) {
		return schema.TaskWindowDestroyed, true
	}
	if t.ctx.Err() != nil {
		return schema.TaskCancelled, true
	}
	return schema.TaskRunning, false
}

func (t *Task) classify(err error, fallback schema.TaskEndReason) (schema.TaskEndReason, error) {
	if reason, stop := t.stopReason(); stop {
		return reason, nil
	}
	switch {
	case errors.Is(err, schema.ErrWindowDestroyed):
		return schema.TaskWindowDestroyed, nil
	case errors.Is(err, context.Canceled):
		return schema.TaskCancelled, nil
	case errors.Is(err, schema.ErrInferenceTimeout):
		return schema.TaskInferenceTimeout, err
	case fallback == schema.TaskInferenceFailed && !errors.Is(err, schema.ErrInferenceFailed):
		return fallback, fmt.Errorf("%w: %w", schema.ErrInferenceFailed, err)
	default:
		return fallback, err
	}
}

func (t *Task) finish(reason schema.TaskEndReason, err error) {
	t.finishOnce.Do(func() {
		t.mu.Lock()
		t.ended = time.Now()
		t.reason = reason
		t.err = err
		t.mu.Unlock()

		destroyWindow(t.log, t.req.Window)
		t.cancel()
		t.completed.Store(true)
		close(t.done)

		frames := t.frames.Load()
		duration := time.Since(t.started)
		if err != nil {
			t.log.Warn("preview task failed", "reason", reason, "frames", frames, "duration_ms", duration.Milliseconds(), "err", err)
		} else {
			t.log.Info("preview task exited", "reason", reason, "frames", frames, "duration_ms", duration.Milliseconds())
		}
		if t.req.OnComplete != nil {
			t.req.OnComplete(t.Status())
		}
	})
}
