package schema

import (
	"image"
	"time"
)

// SessionID identifies one activation-to-deactivation run of the preview.
type SessionID string

// WindowID identifies a preview window.
type WindowID string

// SessionState is the controller-visible session state.
type SessionState string

const (
	// SessionIdle indicates no preview session is running.
	SessionIdle SessionState = "idle"
	// SessionActive indicates a preview session has been started.
	SessionActive SessionState = "active"
)

// EffectKind selects the built-in frame transform.
type EffectKind string

const (
	// EffectStyleTransfer applies a mosaic-style posterize transform.
	EffectStyleTransfer EffectKind = "style_transfer"
	// EffectBackgroundBlur blurs everything outside the foreground region.
	EffectBackgroundBlur EffectKind = "background_blur"
	// EffectInvert inverts every channel.
	EffectInvert EffectKind = "invert"
)

// Frame is one captured or rendered image.
type Frame struct {
	Seq      uint64
	Image    *image.RGBA
	Captured time.Time
}

// Empty reports whether the frame carries no pixels.
func (f Frame) Empty() bool {
	return f.Image == nil || f.Image.Rect.Empty()
}
