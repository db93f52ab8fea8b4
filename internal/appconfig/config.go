package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pkt.systems/streamfx/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string        `mapstructure:"state_dir" yaml:"state_dir"`
	Preview       PreviewConfig `mapstructure:"preview" yaml:"preview"`
	HTTP          HTTPConfig    `mapstructure:"http" yaml:"http"`
	GRPC          GRPCConfig    `mapstructure:"grpc" yaml:"grpc"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// PreviewConfig controls the preview session controller.
type PreviewConfig struct {
	ModelDir           string  `mapstructure:"model_dir" yaml:"model_dir"`
	Effect             string  `mapstructure:"effect" yaml:"effect"`
	Width              int     `mapstructure:"width" yaml:"width"`
	Height             int     `mapstructure:"height" yaml:"height"`
	TargetFPS          float64 `mapstructure:"target_fps" yaml:"target_fps"`
	InferenceTimeoutMS int     `mapstructure:"inference_timeout_ms" yaml:"inference_timeout_ms"`
	HistoryLimit       int     `mapstructure:"history_limit" yaml:"history_limit"`
	MaxWindows         int     `mapstructure:"max_windows" yaml:"max_windows"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr                   string `mapstructure:"addr" yaml:"addr"`
	BasePath               string `mapstructure:"base_path" yaml:"base_path"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"`
}

// GRPCConfig configures the health endpoint.
type GRPCConfig struct {
	SocketPath string `mapstructure:"socket_path" yaml:"socket_path"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		runtimeDir = filepath.Join("/run", "user", fmt.Sprintf("%d", os.Getuid()))
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".streamfx", "state"),
		Preview: PreviewConfig{
			ModelDir:           filepath.Join(home, ".streamfx", "models"),
			Effect:             string(schema.EffectStyleTransfer),
			Width:              schema.DefaultFrameWidth,
			Height:             schema.DefaultFrameHeight,
			TargetFPS:          schema.DefaultTargetFPS,
			InferenceTimeoutMS: int(schema.DefaultInferenceTimeout / time.Millisecond),
			HistoryLimit:       schema.DefaultHistoryLimit,
			MaxWindows:         4,
		},
		HTTP: HTTPConfig{
			Addr:                   "127.0.0.1:27580",
			BasePath:               "",
			ShutdownTimeoutSeconds: 5,
		},
		GRPC: GRPCConfig{
			SocketPath: filepath.Join(runtimeDir, "streamfx", "health.sock"),
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".streamfx", "config.yaml"), nil
}

// ControllerConfig maps the preview section onto the controller configuration.
func (c Config) ControllerConfig() schema.ControllerConfig {
	return schema.ControllerConfig{
		ModelPath:        c.Preview.ModelDir,
		Effect:           schema.EffectKind(c.Preview.Effect),
		Width:            c.Preview.Width,
		Height:           c.Preview.Height,
		TargetFPS:        c.Preview.TargetFPS,
		InferenceTimeout: time.Duration(c.Preview.InferenceTimeoutMS) * time.Millisecond,
		StateDir:         c.StateDir,
		HistoryLimit:     c.Preview.HistoryLimit,
	}
}

// ShutdownTimeout returns the HTTP graceful shutdown window.
func (c HTTPConfig) ShutdownTimeout() time.Duration {
	if c.ShutdownTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}
