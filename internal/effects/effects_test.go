package effects

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"pkt.systems/streamfx/internal/framesource"
	"pkt.systems/streamfx/schema"
)

func TestNewRejectsUnknownEffect(t *testing.T) {
	if _, err := New("sepia"); !errors.Is(err, schema.ErrUnknownEffect) {
		t.Fatalf("expected ErrUnknownEffect, got %v", err)
	}
	for _, kind := range []schema.EffectKind{schema.EffectStyleTransfer, schema.EffectBackgroundBlur, schema.EffectInvert} {
		if _, err := New(kind); err != nil {
			t.Fatalf("new %s: %v", kind, err)
		}
	}
}

func TestModelPath(t *testing.T) {
	if got := ModelPath("/models", schema.EffectStyleTransfer); got != "/models/mosaic.onnx" {
		t.Fatalf("unexpected model path %q", got)
	}
	if got := ModelPath("/models", schema.EffectInvert); got != "/models" {
		t.Fatalf("expected bare dir for model-less effect, got %q", got)
	}
}

func TestInvertTwiceIsIdentity(t *testing.T) {
	src := framesource.Render(16, 8, 3)
	back := Invert(Invert(src))
	for i := range src.Pix {
		if src.Pix[i] != back.Pix[i] {
			t.Fatalf("pixel %d differs after double invert", i)
		}
	}
}

func TestMosaicFillsCellsUniformly(t *testing.T) {
	src := framesource.Render(16, 16, 1)
	out := Mosaic{Cell: 4, Levels: 4}.Apply(src)
	ref := out.RGBAAt(0, 0)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			if got := out.RGBAAt(x, y); got != ref {
				t.Fatalf("cell not uniform at %d,%d: %v vs %v", x, y, got, ref)
			}
		}
	}
	for _, v := range []uint8{ref.R, ref.G, ref.B} {
		if v%85 != 0 {
			t.Fatalf("expected posterized channel, got %d", v)
		}
	}
}

func TestBackgroundBlurKeepsCenterSharp(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			if (x+y)%2 == 0 {
				src.SetRGBA(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
			} else {
				src.SetRGBA(x, y, color.RGBA{A: 255})
			}
		}
	}
	out := BackgroundBlur{Radius: 2}.Apply(src)
	if out.RGBAAt(10, 10) != src.RGBAAt(10, 10) {
		t.Fatalf("expected center pixel untouched")
	}
	corner := out.RGBAAt(0, 0)
	if corner.R == 0 || corner.R == 255 {
		t.Fatalf("expected corner blurred, got %v", corner)
	}
}

func TestRuntimeInfer(t *testing.T) {
	rt, err := NewRuntime("")
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	if rt.Kind() != schema.EffectStyleTransfer {
		t.Fatalf("expected default style transfer, got %q", rt.Kind())
	}
	frame := framesource.NewPattern(32, 24).Next()
	out, err := rt.Infer(context.Background(), "/models/mosaic.onnx", frame)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if out.Seq != frame.Seq || out.Image.Bounds() != frame.Image.Bounds() {
		t.Fatalf("unexpected output frame %d %v", out.Seq, out.Image.Bounds())
	}
	if out.Image == frame.Image {
		t.Fatalf("effect must not alias the input")
	}
	if _, err := rt.Infer(context.Background(), "", schema.Frame{}); !errors.Is(err, schema.ErrInferenceFailed) {
		t.Fatalf("expected ErrInferenceFailed for empty frame, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := rt.Infer(ctx, "", frame); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}
