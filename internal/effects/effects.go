// Package effects holds the built-in frame transforms used in place of a
// model runtime. Each effect is selected by schema.EffectKind and exposed
// through Runtime, which satisfies core.Inferencer.
package effects

import (
	"context"
	"fmt"
	"image"
	"path/filepath"

	"pkt.systems/streamfx/schema"
)

// Effect transforms one frame. Implementations must not modify src.
type Effect interface {
	Apply(src *image.RGBA) *image.RGBA
}

// EffectFunc adapts a function into an Effect.
type EffectFunc func(src *image.RGBA) *image.RGBA

// Apply implements Effect.
func (f EffectFunc) Apply(src *image.RGBA) *image.RGBA { return f(src) }

var modelFiles = map[schema.EffectKind]string{
	schema.EffectStyleTransfer:  "mosaic.onnx",
	schema.EffectBackgroundBlur: "fcn-resnet50-11.onnx",
}

// ModelFile returns the model file name an effect would load from the model
// directory, or "" when the effect needs no model.
func ModelFile(kind schema.EffectKind) string {
	return modelFiles[kind]
}

// ModelPath joins the model directory with the effect's model file.
func ModelPath(dir string, kind schema.EffectKind) string {
	file := ModelFile(kind)
	if file == "" {
		return dir
	}
	return filepath.Join(dir, file)
}

// New returns the effect for kind.
func New(kind schema.EffectKind) (Effect, error) {
	switch kind {
	case schema.EffectStyleTransfer, "":
		return Mosaic{Cell: 8, Levels: 4}, nil
	case schema.EffectBackgroundBlur:
		return BackgroundBlur{Radius: 4}, nil
	case schema.EffectInvert:
		return EffectFunc(Invert), nil
	default:
		return nil, fmt.Errorf("%w: %q", schema.ErrUnknownEffect, kind)
	}
}

// Runtime runs an Effect as an inference call.
type Runtime struct {
	kind   schema.EffectKind
	effect Effect
}

// NewRuntime builds the runtime for kind.
func NewRuntime(kind schema.EffectKind) (*Runtime, error) {
	effect, err := New(kind)
	if err != nil {
		return nil, err
	}
	if kind == "" {
		kind = schema.EffectStyleTransfer
	}
	return &Runtime{kind: kind, effect: effect}, nil
}

// Kind returns the effect kind.
func (r *Runtime) Kind() schema.EffectKind { return r.kind }

// Infer applies the effect to frame. The model path is accepted for interface
// compatibility and not read.
func (r *Runtime) Infer(ctx context.Context, modelPath string, frame schema.Frame) (schema.Frame, error) {
	if err := ctx.Err(); err != nil {
		return schema.Frame{}, err
	}
	if frame.Empty() {
		return schema.Frame{}, fmt.Errorf("%w: empty input frame", schema.ErrInferenceFailed)
	}
	out := r.effect.Apply(frame.Image)
	if out == nil {
		return schema.Frame{}, fmt.Errorf("%w: %s produced no output", schema.ErrInferenceFailed, r.kind)
	}
	return schema.Frame{Seq: frame.Seq, Image: out, Captured: frame.Captured}, nil
}
