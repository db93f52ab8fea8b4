package core

import (
	"context"

	"pkt.systems/streamfx/schema"
)

// Inferencer runs one inference pass over a frame and returns the transformed frame.
// Failures should wrap schema.ErrInferenceFailed.
type Inferencer interface {
	Infer(ctx context.Context, modelPath string, frame schema.Frame) (schema.Frame, error)
}

// InferFunc adapts a function into an Inferencer.
type InferFunc func(ctx context.Context, modelPath string, frame schema.Frame) (schema.Frame, error)

// Infer implements Inferencer.
func (f InferFunc) Infer(ctx context.Context, modelPath string, frame schema.Frame) (schema.Frame, error) {
	return f(ctx, modelPath, frame)
}
