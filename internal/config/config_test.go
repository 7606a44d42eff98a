package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"grainbridge/internal/config"
)

func TestLoadDefaultsExpandPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "grainbridge", "data")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Engine.Binary != "grainsynth" {
		t.Fatalf("unexpected engine binary: %q", cfg.Engine.Binary)
	}
	if !cfg.Engine.Restart.Enabled {
		t.Fatal("expected restart watchdog enabled by default")
	}
	if cfg.Engine.Restart.MaxAttempts != 5 {
		t.Fatalf("unexpected restart max attempts: %d", cfg.Engine.Restart.MaxAttempts)
	}
	if cfg.OSC.CommandPort != 57120 || cfg.OSC.TelemetryPort != 57121 {
		t.Fatalf("unexpected OSC ports: %d/%d", cfg.OSC.CommandPort, cfg.OSC.TelemetryPort)
	}
	if cfg.OSC.ChannelPrefix != "/ch" {
		t.Fatalf("unexpected channel prefix: %q", cfg.OSC.ChannelPrefix)
	}
	if cfg.Gateway.Bind != "127.0.0.1:8765" {
		t.Fatalf("unexpected gateway bind: %q", cfg.Gateway.Bind)
	}
	if cfg.Telemetry.RingSize != 12000 {
		t.Fatalf("unexpected telemetry ring size: %d", cfg.Telemetry.RingSize)
	}
	if cfg.Logging.BufferSize != 512 {
		t.Fatalf("unexpected log buffer size: %d", cfg.Logging.BufferSize)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.Paths.CaptureDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "grainbridge.toml")

	type payload struct {
		Engine struct {
			Binary  string `toml:"binary"`
			Restart struct {
				MaxAttempts int `toml:"max_attempts"`
				BaseDelayMS int `toml:"base_delay_ms"`
			} `toml:"restart"`
		} `toml:"engine"`
		OSC struct {
			CommandPort   int    `toml:"command_port"`
			ChannelPrefix string `toml:"channel_prefix"`
			ChannelCount  int    `toml:"channel_count"`
		} `toml:"osc"`
	}
	custom := payload{}
	custom.Engine.Binary = "/opt/synth/bin/grainsynth-dev"
	custom.Engine.Restart.MaxAttempts = 3
	custom.Engine.Restart.BaseDelayMS = 250
	custom.OSC.CommandPort = 9000
	custom.OSC.ChannelPrefix = "voice"
	custom.OSC.ChannelCount = 8
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Engine.Binary != "/opt/synth/bin/grainsynth-dev" {
		t.Fatalf("expected engine binary from file, got %q", cfg.Engine.Binary)
	}
	if cfg.Engine.Restart.MaxAttempts != 3 {
		t.Fatalf("expected max attempts 3, got %d", cfg.Engine.Restart.MaxAttempts)
	}
	if cfg.Engine.Restart.BaseDelayMS != 250 {
		t.Fatalf("expected base delay 250, got %d", cfg.Engine.Restart.BaseDelayMS)
	}
	if cfg.OSC.CommandPort != 9000 {
		t.Fatalf("expected command port 9000, got %d", cfg.OSC.CommandPort)
	}
	// Bare prefixes gain a leading slash during normalization.
	if cfg.OSC.ChannelPrefix != "/voice" {
		t.Fatalf("expected normalized channel prefix /voice, got %q", cfg.OSC.ChannelPrefix)
	}
	if cfg.OSC.ChannelCount != 8 {
		t.Fatalf("expected channel count 8, got %d", cfg.OSC.ChannelCount)
	}
}

func TestEnvVarFallbacks(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("GRAINBRIDGE_API_TOKEN", "env-token")
	t.Setenv("GRAINBRIDGE_NTFY_TOPIC", "env-topic")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Gateway.Token != "env-token" {
		t.Errorf("expected gateway token from env, got %q", cfg.Gateway.Token)
	}
	if cfg.Notifications.NtfyTopic != "env-topic" {
		t.Errorf("expected ntfy topic from env, got %q", cfg.Notifications.NtfyTopic)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "grainsynth") {
		t.Fatalf("sample config missing engine binary default: %s", contents)
	}

	// Validate it decodes
	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if cfg.OSC.CommandPort != 57120 {
		t.Fatalf("expected sample command port 57120, got %d", cfg.OSC.CommandPort)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	cfg.OSC.CommandPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for out-of-range port")
	}

	cfg = config.Default()
	cfg.OSC.TelemetryPort = cfg.OSC.CommandPort
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when command and telemetry ports collide")
	}

	cfg = config.Default()
	cfg.OSC.ChannelCount = 120
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for channel count above two-digit range")
	}

	cfg = config.Default()
	cfg.OSC.ChannelPrefix = "ch"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for prefix without leading slash")
	}

	cfg = config.Default()
	cfg.Engine.Restart.MaxDelayMS = cfg.Engine.Restart.BaseDelayMS - 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when max delay below base delay")
	}

	cfg = config.Default()
	cfg.Gateway.Bind = "not-a-bind"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for malformed gateway bind")
	}
}
