package window

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pkt.systems/streamfx/core"
	"pkt.systems/streamfx/internal/effects"
	"pkt.systems/streamfx/schema"
)

var _ core.WindowFactory = (*Manager)(nil)

func TestWindowLifecycle(t *testing.T) {
	m := NewManager(context.Background(), Options{Width: 8, Height: 6})
	w, err := m.Create(context.Background())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	frame, err := w.Capture(context.Background())
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if frame.Image.Bounds().Dx() != 8 || frame.Image.Bounds().Dy() != 6 {
		t.Fatalf("unexpected frame bounds %v", frame.Image.Bounds())
	}
	if _, ok := m.Latest(w.ID()); ok {
		t.Fatalf("expected no latest frame before present")
	}
	if err := w.Present(context.Background(), frame); err != nil {
		t.Fatalf("present: %v", err)
	}
	if latest, ok := m.Latest(w.ID()); !ok || latest.Seq != frame.Seq {
		t.Fatalf("expected latest frame %d, got %d (%v)", frame.Seq, latest.Seq, ok)
	}

	if err := w.Destroy(); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if err := w.Destroy(); !errors.Is(err, schema.ErrAlreadyDestroyed) {
		t.Fatalf("expected ErrAlreadyDestroyed, got %v", err)
	}
	select {
	case <-w.Done():
	default:
		t.Fatalf("expected done closed")
	}
	if _, err := w.Capture(context.Background()); !errors.Is(err, schema.ErrWindowDestroyed) {
		t.Fatalf("expected ErrWindowDestroyed from capture, got %v", err)
	}
	if err := w.Present(context.Background(), frame); !errors.Is(err, schema.ErrWindowDestroyed) {
		t.Fatalf("expected ErrWindowDestroyed from present, got %v", err)
	}
	if len(m.Live()) != 0 {
		t.Fatalf("expected no live windows, got %v", m.Live())
	}
}

func TestManagerLimitAndClose(t *testing.T) {
	m := NewManager(context.Background(), Options{Width: 4, Height: 4, MaxLive: 1})
	first, err := m.Create(context.Background())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.Create(context.Background()); !errors.Is(err, schema.ErrWindowCreationFailed) {
		t.Fatalf("expected ErrWindowCreationFailed at limit, got %v", err)
	}
	_ = first.Destroy()
	second, err := m.Create(context.Background())
	if err != nil {
		t.Fatalf("create after release: %v", err)
	}
	if second.ID() == first.ID() {
		t.Fatalf("window ids must be unique")
	}

	m.Close()
	if _, err := m.Create(context.Background()); !errors.Is(err, ErrManagerClosed) {
		t.Fatalf("expected ErrManagerClosed, got %v", err)
	}
	if !errors.Is(second.Destroy(), schema.ErrAlreadyDestroyed) {
		t.Fatalf("expected close to destroy live windows")
	}
	if m.Created() != 2 {
		t.Fatalf("expected 2 created, got %d", m.Created())
	}
}

func TestDestroyRacesCapture(t *testing.T) {
	m := NewManager(context.Background(), Options{Width: 4, Height: 4})
	w, err := m.Create(context.Background())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				frame, err := w.Capture(context.Background())
				if err != nil {
					if !errors.Is(err, schema.ErrWindowDestroyed) {
						t.Errorf("unexpected capture error: %v", err)
					}
					return
				}
				if err := w.Present(context.Background(), frame); err != nil && !errors.Is(err, schema.ErrWindowDestroyed) {
					t.Errorf("unexpected present error: %v", err)
					return
				}
			}
		}()
	}
	time.Sleep(5 * time.Millisecond)
	destroyed := 0
	for i := 0; i < 3; i++ {
		if w.Destroy() == nil {
			destroyed++
		}
	}
	wg.Wait()
	if destroyed != 1 {
		t.Fatalf("expected exactly one successful destroy, got %d", destroyed)
	}
}

func TestControllerWithHeadlessWindows(t *testing.T) {
	m := NewManager(context.Background(), Options{Width: 16, Height: 12})
	rt, err := effects.NewRuntime(schema.EffectInvert)
	if err != nil {
		t.Fatalf("runtime: %v", err)
	}
	ctrl, err := core.NewController(context.Background(), schema.ControllerConfig{
		ModelPath: t.TempDir(),
		Effect:    schema.EffectInvert,
		TargetFPS: 200,
	}, core.ControllerDeps{Windows: m, Inferencer: rt})
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	if _, err := ctrl.Toggle(context.Background()); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	id := ctrl.Snapshot().WindowID
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := m.Latest(id); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no frame presented into %s", id)
		}
		time.Sleep(2 * time.Millisecond)
	}
	if _, err := ctrl.Toggle(context.Background()); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if err := ctrl.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ctrl.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if live := m.Live(); len(live) != 0 {
		t.Fatalf("expected no live windows after shutdown, got %v", live)
	}
}
