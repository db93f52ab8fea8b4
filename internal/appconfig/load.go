package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"pkt.systems/streamfx/schema"
)

// EnvPrefix prefixes environment overrides, e.g. STREAMFX_PREVIEW_EFFECT.
const EnvPrefix = "STREAMFX"

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
// A .env file next to the config is loaded first; it never overrides variables
// already set in the environment.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}
	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return Config{}, err
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("preview.model_dir", cfg.Preview.ModelDir)
	v.SetDefault("preview.effect", cfg.Preview.Effect)
	v.SetDefault("preview.width", cfg.Preview.Width)
	v.SetDefault("preview.height", cfg.Preview.Height)
	v.SetDefault("preview.target_fps", cfg.Preview.TargetFPS)
	v.SetDefault("preview.inference_timeout_ms", cfg.Preview.InferenceTimeoutMS)
	v.SetDefault("preview.history_limit", cfg.Preview.HistoryLimit)
	v.SetDefault("preview.max_windows", cfg.Preview.MaxWindows)
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.base_path", cfg.HTTP.BasePath)
	v.SetDefault("http.shutdown_timeout_seconds", cfg.HTTP.ShutdownTimeoutSeconds)
	v.SetDefault("grpc.socket_path", cfg.GRPC.SocketPath)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.InConfig("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func validate(cfg Config) error {
	if err := schema.ValidateEffect(schema.EffectKind(cfg.Preview.Effect)); err != nil {
		return fmt.Errorf("preview.effect: %w", err)
	}
	if strings.TrimSpace(cfg.Preview.ModelDir) == "" {
		return fmt.Errorf("preview.model_dir is required")
	}
	if cfg.Preview.Width < 0 || cfg.Preview.Height < 0 {
		return fmt.Errorf("preview.width and preview.height must not be negative")
	}
	if cfg.Preview.TargetFPS < 0 {
		return fmt.Errorf("preview.target_fps must not be negative")
	}
	if cfg.Preview.InferenceTimeoutMS < 0 {
		return fmt.Errorf("preview.inference_timeout_ms must not be negative")
	}
	if basePath := strings.TrimSpace(cfg.HTTP.BasePath); strings.Contains(basePath, "://") || strings.ContainsAny(basePath, "?#") {
		return fmt.Errorf("http.base_path must be a path prefix")
	}
	if strings.TrimSpace(cfg.HTTP.Addr) == "" && strings.TrimSpace(cfg.GRPC.SocketPath) == "" {
		return fmt.Errorf("at least one of http.addr or grpc.socket_path must be set")
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.Preview.ModelDir = expandEnv(cfg.Preview.ModelDir)
	cfg.GRPC.SocketPath = expandEnv(cfg.GRPC.SocketPath)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// Marshal renders cfg as YAML in the config file layout.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
