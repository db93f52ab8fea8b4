package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"pkt.systems/streamfx"
	"pkt.systems/streamfx/schema"
)

func newTestRuntime(t *testing.T) *streamfx.Runtime {
	t.Helper()
	rt, err := streamfx.NewRuntime(context.Background(), schema.ControllerConfig{
		ModelPath:        t.TempDir(),
		Effect:           schema.EffectInvert,
		Width:            32,
		Height:           24,
		TargetFPS:        200,
		InferenceTimeout: time.Second,
	}, streamfx.RuntimeDeps{})
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = rt.Close(ctx)
	})
	return rt
}

func TestRunPreviewTogglesFromInput(t *testing.T) {
	rt := newTestRuntime(t)
	var out bytes.Buffer
	in := strings.NewReader("\ns\n\nq\n")

	if err := runPreview(context.Background(), rt, in, &out); err != nil {
		t.Fatalf("run preview: %v", err)
	}
	if state := rt.Controller.State(); state != schema.SessionIdle {
		t.Fatalf("expected idle after two toggles, got %q", state)
	}
	deadline := time.Now().Add(2 * time.Second)
	for rt.History.Len() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("expected one recorded session, got %d", rt.History.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
	text := out.String()
	if !strings.Contains(text, "state=idle effect=invert") {
		t.Fatalf("expected initial idle snapshot, got:\n%s", text)
	}
	if !strings.Contains(text, "state=active effect=invert session=") {
		t.Fatalf("expected active status line, got:\n%s", text)
	}
}

func TestRunPreviewStopsAtEOF(t *testing.T) {
	rt := newTestRuntime(t)
	var out bytes.Buffer
	if err := runPreview(context.Background(), rt, strings.NewReader("\n"), &out); err != nil {
		t.Fatalf("run preview: %v", err)
	}
	if state := rt.Controller.State(); state != schema.SessionActive {
		t.Fatalf("expected active after one toggle, got %q", state)
	}
}

func TestRunPreviewReportsUnknownCommand(t *testing.T) {
	rt := newTestRuntime(t)
	var out bytes.Buffer
	if err := runPreview(context.Background(), rt, strings.NewReader("bogus\nq\n"), &out); err != nil {
		t.Fatalf("run preview: %v", err)
	}
	if !strings.Contains(out.String(), `unknown command "bogus"`) {
		t.Fatalf("expected unknown command message, got:\n%s", out.String())
	}
}

func TestFormatEventAndRecord(t *testing.T) {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	event := schema.StateEvent{
		Type: schema.StateEventTaskCompleted,
		Snapshot: schema.SessionSnapshot{
			State:  schema.SessionIdle,
			Effect: schema.EffectInvert,
		},
		Task: &schema.TaskStatus{Completed: true, Reason: schema.TaskInferenceFailed},
		Err:  "boom",
	}
	line := formatEvent(event)
	for _, want := range []string{"[task_completed]", "state=idle", "reason=inference_failed", "error=boom"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}

	record := schema.SessionRecord{
		SessionID: "s1",
		Effect:    schema.EffectInvert,
		Started:   started,
		Ended:     started.Add(1500 * time.Millisecond),
		Frames:    42,
		Reason:    schema.TaskCancelled,
	}
	got := formatRecord(record)
	want := "2026-01-02T03:04:05Z s1 effect=invert frames=42 duration=1.5s reason=cancelled"
	if got != want {
		t.Fatalf("formatRecord = %q, want %q", got, want)
	}
}
