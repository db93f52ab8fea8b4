package appconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pkt.systems/streamfx/schema"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Preview.Effect != string(schema.EffectStyleTransfer) {
		t.Fatalf("expected default effect, got %q", cfg.Preview.Effect)
	}
	if cfg.Preview.TargetFPS != schema.DefaultTargetFPS {
		t.Fatalf("expected default fps, got %v", cfg.Preview.TargetFPS)
	}
}

func TestLoadRejectsUnsupportedConfigVersion(t *testing.T) {
	path := writeConfig(t, `
config_version: 9
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unsupported config_version") {
		t.Fatalf("expected config_version error, got %v", err)
	}
}

func TestLoadRequiresConfigVersion(t *testing.T) {
	path := writeConfig(t, `
preview:
  effect: invert
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "config_version is required") {
		t.Fatalf("expected config_version required error, got %v", err)
	}
}

func TestLoadRejectsUnknownEffect(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
preview:
  effect: sepia
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "preview.effect") {
		t.Fatalf("expected effect error, got %v", err)
	}
}

func TestLoadFileAndControllerConfig(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
state_dir: /tmp/streamfx-state
preview:
  model_dir: /opt/models
  effect: background_blur
  width: 320
  height: 240
  target_fps: 15
  inference_timeout_ms: 500
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cc := cfg.ControllerConfig()
	if cc.ModelPath != "/opt/models" || cc.Effect != schema.EffectBackgroundBlur {
		t.Fatalf("unexpected controller config %+v", cc)
	}
	if cc.Width != 320 || cc.Height != 240 || cc.TargetFPS != 15 {
		t.Fatalf("unexpected dimensions %+v", cc)
	}
	if cc.InferenceTimeout != 500*time.Millisecond {
		t.Fatalf("expected 500ms timeout, got %s", cc.InferenceTimeout)
	}
	if cc.StateDir != "/tmp/streamfx-state" {
		t.Fatalf("unexpected state dir %q", cc.StateDir)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
preview:
  effect: background_blur
`)
	t.Setenv("STREAMFX_PREVIEW_EFFECT", "invert")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Preview.Effect != "invert" {
		t.Fatalf("expected env override, got %q", cfg.Preview.Effect)
	}
}

func TestLoadDotEnvNextToConfig(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
preview:
  model_dir: $STREAMFX_TEST_MODELS/zoo
`)
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := os.WriteFile(envPath, []byte("STREAMFX_TEST_MODELS=/srv/models\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("STREAMFX_TEST_MODELS") })
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Preview.ModelDir != "/srv/models/zoo" {
		t.Fatalf("expected .env expansion, got %q", cfg.Preview.ModelDir)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("FOO", "bar")
	value := expandEnv("$FOO/$UID/$GID/$MISSING")
	if !strings.HasPrefix(value, "bar/") {
		t.Fatalf("expected env expansion, got %q", value)
	}
	if strings.Contains(value, "$UID") || strings.Contains(value, "$GID") {
		t.Fatalf("expected UID/GID expansion, got %q", value)
	}
	if !strings.HasSuffix(value, "/$MISSING") {
		t.Fatalf("expected missing vars to remain, got %q", value)
	}
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	written, err := WriteDefault(path, false)
	if err != nil {
		t.Fatalf("write default: %v", err)
	}
	if written != path {
		t.Fatalf("unexpected path %q", written)
	}
	if _, err := WriteDefault(path, false); err == nil {
		t.Fatalf("expected error when config exists")
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load written default: %v", err)
	}
	if cfg.ConfigVersion != CurrentConfigVersion {
		t.Fatalf("unexpected version %d", cfg.ConfigVersion)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(body)+"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
