package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultFrameWidth is the default preview width in pixels.
	DefaultFrameWidth = 640
	// DefaultFrameHeight is the default preview height in pixels.
	DefaultFrameHeight = 480
	// DefaultTargetFPS caps the preview loop rate.
	DefaultTargetFPS = 30.0
	// DefaultInferenceTimeout bounds a single inference pass.
	DefaultInferenceTimeout = 2 * time.Second
	// DefaultHistoryLimit caps the number of persisted session records.
	DefaultHistoryLimit = 200
)

// ControllerConfig defines the immutable inputs of a session controller.
type ControllerConfig struct {
	// ModelPath is the directory holding deployable model assets. Read-only.
	ModelPath        string
	Effect           EffectKind
	Width            int
	Height           int
	TargetFPS        float64
	InferenceTimeout time.Duration
	// StateDir enables the session history store when set.
	StateDir     string
	HistoryLimit int
}

// NormalizeControllerConfig applies defaults and validates the config.
func NormalizeControllerConfig(cfg ControllerConfig) (ControllerConfig, error) {
	modelPath, err := ResolveModelPath(cfg.ModelPath)
	if err != nil {
		return ControllerConfig{}, err
	}
	cfg.ModelPath = modelPath
	if cfg.Effect == "" {
		cfg.Effect = EffectStyleTransfer
	}
	if err := ValidateEffect(cfg.Effect); err != nil {
		return ControllerConfig{}, err
	}
	if cfg.Width == 0 {
		cfg.Width = DefaultFrameWidth
	}
	if cfg.Height == 0 {
		cfg.Height = DefaultFrameHeight
	}
	if cfg.Width < 0 || cfg.Height < 0 {
		return ControllerConfig{}, fmt.Errorf("%w: frame size %dx%d", ErrInvalidConfig, cfg.Width, cfg.Height)
	}
	if cfg.TargetFPS == 0 {
		cfg.TargetFPS = DefaultTargetFPS
	}
	if cfg.TargetFPS < 0 {
		return ControllerConfig{}, fmt.Errorf("%w: target fps %.2f", ErrInvalidConfig, cfg.TargetFPS)
	}
	if cfg.InferenceTimeout == 0 {
		cfg.InferenceTimeout = DefaultInferenceTimeout
	}
	if cfg.InferenceTimeout < 0 {
		return ControllerConfig{}, fmt.Errorf("%w: inference timeout %s", ErrInvalidConfig, cfg.InferenceTimeout)
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	cfg.StateDir = strings.TrimSpace(cfg.StateDir)
	return cfg, nil
}

// ResolveModelPath cleans the model directory to an absolute path.
// A missing directory is accepted; an existing non-directory is not.
func ResolveModelPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidModelPath)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidModelPath, err)
	}
	info, err := os.Stat(abs)
	if err == nil && !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrInvalidModelPath, abs)
	}
	return abs, nil
}

// ValidateEffect checks that the effect kind is supported.
func ValidateEffect(kind EffectKind) error {
	switch kind {
	case EffectStyleTransfer, EffectBackgroundBlur, EffectInvert:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEffect, kind)
	}
}
