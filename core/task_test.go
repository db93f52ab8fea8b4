package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"pkt.systems/streamfx/schema"
)

func startTestTask(t *testing.T, ctx context.Context, window Window, infer Inferencer, timeout time.Duration) *Task {
	t.Helper()
	task, err := StartTask(ctx, TaskRequest{
		SessionID:        "s1",
		ModelPath:        "/models",
		Window:           window,
		Inferencer:       infer,
		Limiter:          rate.NewLimiter(rate.Limit(500), 1),
		InferenceTimeout: timeout,
	})
	if err != nil {
		t.Fatalf("start task: %v", err)
	}
	t.Cleanup(func() {
		task.Cancel()
		<-task.Done()
	})
	return task
}

func TestStartTaskRequiresWindowAndInferencer(t *testing.T) {
	if _, err := StartTask(context.Background(), TaskRequest{Inferencer: passthrough()}); err == nil {
		t.Fatalf("expected error without window")
	}
	if _, err := StartTask(context.Background(), TaskRequest{Window: newFakeWindow("w")}); err == nil {
		t.Fatalf("expected error without inferencer")
	}
}

func TestTaskStopsWhenWindowDestroyed(t *testing.T) {
	window := newFakeWindow("w")
	task := startTestTask(t, context.Background(), window, passthrough(), time.Second)
	waitFor(t, "first frame", func() bool { return task.Frames() > 0 })

	if err := window.Destroy(); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	waitDone(t, task)
	status := task.Status()
	if !status.Completed || !task.IsCompleted() {
		t.Fatalf("expected completed task, got %+v", status)
	}
	if status.Reason != schema.TaskWindowDestroyed {
		t.Fatalf("expected window_destroyed, got %q", status.Reason)
	}
	if task.Err() != nil {
		t.Fatalf("window destruction is not an error, got %v", task.Err())
	}
}

func TestTaskStopsOnCancelAndReleasesWindow(t *testing.T) {
	window := newFakeWindow("w")
	task := startTestTask(t, context.Background(), window, passthrough(), time.Second)
	waitFor(t, "first frame", func() bool { return task.Frames() > 0 })

	task.Cancel()
	task.Cancel()
	waitDone(t, task)
	if task.Status().Reason != schema.TaskCancelled {
		t.Fatalf("expected cancelled, got %q", task.Status().Reason)
	}
	if !window.isDestroyed() {
		t.Fatalf("expected task to destroy its window on exit")
	}
}

func TestTaskSurvivesCallerContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	window := newFakeWindow("w")
	task := startTestTask(t, ctx, window, passthrough(), time.Second)
	cancel()

	before := task.Frames()
	waitFor(t, "frames after caller cancel", func() bool { return task.Frames() > before+2 })
	if task.IsCompleted() {
		t.Fatalf("task should not follow the caller context")
	}
}

func TestTaskInferenceFailureIsTerminal(t *testing.T) {
	calls := 0
	infer := InferFunc(func(ctx context.Context, modelPath string, frame schema.Frame) (schema.Frame, error) {
		calls++
		if calls == 3 {
			return schema.Frame{}, errors.New("device lost")
		}
		return frame, nil
	})
	window := newFakeWindow("w")
	task := startTestTask(t, context.Background(), window, infer, time.Second)
	waitDone(t, task)

	if task.Status().Reason != schema.TaskInferenceFailed {
		t.Fatalf("expected inference_failed, got %q", task.Status().Reason)
	}
	if !errors.Is(task.Err(), schema.ErrInferenceFailed) {
		t.Fatalf("expected ErrInferenceFailed, got %v", task.Err())
	}
	if task.Frames() != 2 {
		t.Fatalf("expected 2 frames before failure, got %d", task.Frames())
	}
	if !window.isDestroyed() {
		t.Fatalf("expected window released after failure")
	}
}

func TestTaskRecoversInferencePanic(t *testing.T) {
	infer := InferFunc(func(ctx context.Context, modelPath string, frame schema.Frame) (schema.Frame, error) {
		panic("tensor shape mismatch")
	})
	task := startTestTask(t, context.Background(), newFakeWindow("w"), infer, time.Second)
	waitDone(t, task)
	if !errors.Is(task.Err(), schema.ErrInferenceFailed) {
		t.Fatalf("expected ErrInferenceFailed from panic, got %v", task.Err())
	}
}

func TestTaskInferenceTimeout(t *testing.T) {
	stuck := newStuckInferencer(t)
	task := startTestTask(t, context.Background(), newFakeWindow("w"), stuck, 20*time.Millisecond)
	waitDone(t, task)
	if task.Status().Reason != schema.TaskInferenceTimeout {
		t.Fatalf("expected inference_timeout, got %q", task.Status().Reason)
	}
	if !errors.Is(task.Err(), schema.ErrInferenceTimeout) {
		t.Fatalf("expected ErrInferenceTimeout, got %v", task.Err())
	}
}

func TestTaskEmptyOutputFails(t *testing.T) {
	infer := InferFunc(func(ctx context.Context, modelPath string, frame schema.Frame) (schema.Frame, error) {
		return schema.Frame{}, nil
	})
	task := startTestTask(t, context.Background(), newFakeWindow("w"), infer, time.Second)
	waitDone(t, task)
	if task.Status().Reason != schema.TaskInferenceFailed {
		t.Fatalf("expected inference_failed, got %q", task.Status().Reason)
	}
}

func TestTaskStuckInferenceDoesNotBlockTeardown(t *testing.T) {
	stuck := newStuckInferencer(t)
	window := newFakeWindow("w")
	task := startTestTask(t, context.Background(), window, stuck, 0)
	<-stuck.entered

	task.Cancel()
	if err := window.Destroy(); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	waitDone(t, task)
	if task.Status().Reason != schema.TaskCancelled {
		t.Fatalf("expected cancelled, got %q", task.Status().Reason)
	}
}

func TestTaskOnCompleteReceivesStatus(t *testing.T) {
	got := make(chan schema.TaskStatus, 1)
	window := newFakeWindow("w")
	task, err := StartTask(context.Background(), TaskRequest{
		SessionID:  "s9",
		Window:     window,
		Inferencer: passthrough(),
		Limiter:    rate.NewLimiter(rate.Limit(500), 1),
		OnComplete: func(status schema.TaskStatus) { got <- status },
	})
	if err != nil {
		t.Fatalf("start task: %v", err)
	}
	task.Cancel()
	select {
	case status := <-got:
		if status.SessionID != "s9" || status.WindowID != "w" || !status.Completed {
			t.Fatalf("unexpected status %+v", status)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("OnComplete not called")
	}
}
