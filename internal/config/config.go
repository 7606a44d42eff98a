package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration for daemon state and engine assets.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	SamplesDir string `toml:"samples_dir"`
	LogDir     string `toml:"log_dir"`
	CaptureDir string `toml:"capture_dir"`
	PresetDB   string `toml:"preset_db"`
}

// Engine contains configuration for the external synthesis engine process.
type Engine struct {
	Binary      string        `toml:"binary"`
	ExtraArgs   []string      `toml:"extra_args"`
	Autostart   bool          `toml:"autostart"`
	NoAudio     bool          `toml:"no_audio"`
	SpawnOnBoot bool          `toml:"spawn_on_boot"`
	StopTimeout int           `toml:"stop_timeout"`
	Restart     EngineRestart `toml:"restart"`
}

// EngineRestart contains the crash watchdog backoff policy.
type EngineRestart struct {
	Enabled           bool `toml:"enabled"`
	MaxAttempts       int  `toml:"max_attempts"`
	BaseDelayMS       int  `toml:"base_delay_ms"`
	MaxDelayMS        int  `toml:"max_delay_ms"`
	ResetAfterSeconds int  `toml:"reset_after_seconds"`
}

// OSC contains addressing for the engine's command and telemetry sockets.
type OSC struct {
	CommandHost          string `toml:"command_host"`
	CommandPort          int    `toml:"command_port"`
	TelemetryHost        string `toml:"telemetry_host"`
	TelemetryPort        int    `toml:"telemetry_port"`
	ChannelPrefix        string `toml:"channel_prefix"`
	ChannelCount         int    `toml:"channel_count"`
	MaxMessagesPerSecond int    `toml:"max_messages_per_second"`
	HelloAddress         string `toml:"hello_address"`
	ScanAddress          string `toml:"scan_address"`
	BindTimeoutMS        int    `toml:"bind_timeout_ms"`
}

// Telemetry contains sizing for the inbound telemetry pipeline.
type Telemetry struct {
	RingSize     int `toml:"ring_size"`
	ReadBufferKB int `toml:"read_buffer_kb"`
}

// Gateway contains configuration for the HTTP and WebSocket surface.
type Gateway struct {
	Bind             string   `toml:"bind"`
	Token            string   `toml:"token"`
	AllowedOrigins   []string `toml:"allowed_origins"`
	ClientSendBuffer int      `toml:"client_send_buffer"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	EngineStart    bool   `toml:"engine_start"`
	EngineCrash    bool   `toml:"engine_crash"`
	EngineGiveUp   bool   `toml:"engine_give_up"`
	Errors         bool   `toml:"errors"`
}

// Presets contains configuration for the saved channel snapshot store.
type Presets struct {
	Enabled bool `toml:"enabled"`
}

// DeviceMonitor contains configuration for sound card hotplug detection.
type DeviceMonitor struct {
	Enabled bool `toml:"enabled"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
	BufferSize    int    `toml:"buffer_size"`
}

// Config encapsulates all configuration values for grainbridge.
//
// Configuration sections by subsystem:
//   - Paths: daemon state directories and engine asset locations
//   - Engine: engine binary, launch flags, and crash restart policy
//   - OSC: command/telemetry socket addressing and channel layout
//   - Telemetry: inbound sample ring sizing
//   - Gateway: HTTP/WebSocket bind address and auth token
//   - Presets: saved channel snapshot store
//   - Notifications: ntfy push notification settings
//   - DeviceMonitor: sound card hotplug detection
//   - Logging: log format, level, retention, and stream buffer size
type Config struct {
	Paths         Paths         `toml:"paths"`
	Engine        Engine        `toml:"engine"`
	OSC           OSC           `toml:"osc"`
	Telemetry     Telemetry     `toml:"telemetry"`
	Gateway       Gateway       `toml:"gateway"`
	Presets       Presets       `toml:"presets"`
	Notifications Notifications `toml:"notifications"`
	DeviceMonitor DeviceMonitor `toml:"device_monitor"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/grainbridge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/grainbridge/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("grainbridge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// SamplesDir is created on a best-effort basis so the daemon can run when
// external sample storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.CaptureDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.SamplesDir) != "" {
		// Best-effort to avoid failing config load when storage is offline.
		_ = os.MkdirAll(c.Paths.SamplesDir, 0o755)
	}
	if dir := filepath.Dir(c.Paths.PresetDB); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create preset database directory %q: %w", dir, err)
		}
	}
	return nil
}

// CommandAddr returns the host:port the relay sends engine commands to.
func (c *Config) CommandAddr() string {
	return net.JoinHostPort(c.OSC.CommandHost, strconv.Itoa(c.OSC.CommandPort))
}

// TelemetryAddr returns the host:port the telemetry listener binds.
func (c *Config) TelemetryAddr() string {
	return net.JoinHostPort(c.OSC.TelemetryHost, strconv.Itoa(c.OSC.TelemetryPort))
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
