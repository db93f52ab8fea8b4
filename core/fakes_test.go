package core

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pkt.systems/streamfx/schema"
)

type fakeWindow struct {
	id schema.WindowID

	mu           sync.Mutex
	destroyed    bool
	destroyCalls int
	done         chan struct{}
	seq          uint64

	presented atomic.Uint64
}

func newFakeWindow(id string) *fakeWindow {
	return &fakeWindow{id: schema.WindowID(id), done: make(chan struct{})}
}

func (w *fakeWindow) ID() schema.WindowID { return w.id }

func (w *fakeWindow) Capture(ctx context.Context) (schema.Frame, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.destroyed {
		return schema.Frame{}, schema.ErrWindowDestroyed
	}
	w.seq++
	return schema.Frame{Seq: w.seq, Image: image.NewRGBA(image.Rect(0, 0, 4, 4)), Captured: time.Now()}, nil
}

func (w *fakeWindow) Present(ctx context.Context, frame schema.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.destroyed {
		return schema.ErrWindowDestroyed
	}
	w.presented.Add(1)
	return nil
}

func (w *fakeWindow) Destroy() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.destroyCalls++
	if w.destroyed {
		return schema.ErrAlreadyDestroyed
	}
	w.destroyed = true
	close(w.done)
	return nil
}

func (w *fakeWindow) Done() <-chan struct{} { return w.done }

func (w *fakeWindow) destroyCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.destroyCalls
}

func (w *fakeWindow) isDestroyed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.destroyed
}

type fakeFactory struct {
	mu       sync.Mutex
	windows  []*fakeWindow
	attempts int
	fail     bool
}

func (f *fakeFactory) Create(ctx context.Context) (Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.fail {
		return nil, fmt.Errorf("%w: display unavailable", schema.ErrWindowCreationFailed)
	}
	w := newFakeWindow(fmt.Sprintf("w%d", len(f.windows)))
	f.windows = append(f.windows, w)
	return w, nil
}

func (f *fakeFactory) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func (f *fakeFactory) created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.windows)
}

func (f *fakeFactory) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func (f *fakeFactory) window(i int) *fakeWindow {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.windows[i]
}

func (f *fakeFactory) live() int {
	f.mu.Lock()
	windows := append([]*fakeWindow(nil), f.windows...)
	f.mu.Unlock()
	live := 0
	for _, w := range windows {
		if !w.isDestroyed() {
			live++
		}
	}
	return live
}

func passthrough() Inferencer {
	return InferFunc(func(ctx context.Context, modelPath string, frame schema.Frame) (schema.Frame, error) {
		return frame, nil
	})
}

// stuckInferencer ignores its context and blocks until released.
type stuckInferencer struct {
	entered chan struct{}
	once    sync.Once
	release chan struct{}
}

func newStuckInferencer(t *testing.T) *stuckInferencer {
	s := &stuckInferencer{entered: make(chan struct{}), release: make(chan struct{})}
	t.Cleanup(func() { close(s.release) })
	return s
}

func (s *stuckInferencer) Infer(ctx context.Context, modelPath string, frame schema.Frame) (schema.Frame, error) {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return frame, nil
}

type captureSink struct {
	mu     sync.Mutex
	events []schema.StateEvent
}

func (s *captureSink) OnStateEvent(event schema.StateEvent) {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func (s *captureSink) ofType(kind schema.StateEventType) []schema.StateEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []schema.StateEvent
	for _, event := range s.events {
		if event.Type == kind {
			out = append(out, event)
		}
	}
	return out
}

type memoryHistory struct {
	mu      sync.Mutex
	records []schema.SessionRecord
}

func (h *memoryHistory) Append(record schema.SessionRecord) error {
	h.mu.Lock()
	h.records = append(h.records, record)
	h.mu.Unlock()
	return nil
}

func (h *memoryHistory) all() []schema.SessionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]schema.SessionRecord(nil), h.records...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitDone(t *testing.T, task *Task) {
	t.Helper()
	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("task %s did not exit", task.SessionID())
	}
}
