package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeEngine()
	c.normalizeOSC()
	c.normalizeTelemetry()
	c.normalizeGateway()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SamplesDir) == "" {
		c.Paths.SamplesDir = defaultSamplesDir
	}
	if c.Paths.SamplesDir, err = expandPath(c.Paths.SamplesDir); err != nil {
		return fmt.Errorf("paths.samples_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.CaptureDir) == "" {
		c.Paths.CaptureDir = defaultCaptureDir
	}
	if c.Paths.CaptureDir, err = expandPath(c.Paths.CaptureDir); err != nil {
		return fmt.Errorf("paths.capture_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.PresetDB) == "" {
		c.Paths.PresetDB = defaultPresetDB
	}
	if c.Paths.PresetDB, err = expandPath(c.Paths.PresetDB); err != nil {
		return fmt.Errorf("paths.preset_db: %w", err)
	}
	return nil
}

func (c *Config) normalizeEngine() {
	c.Engine.Binary = strings.TrimSpace(c.Engine.Binary)
	if c.Engine.Binary == "" {
		c.Engine.Binary = defaultEngineBinary
	}
	args := make([]string, 0, len(c.Engine.ExtraArgs))
	for _, arg := range c.Engine.ExtraArgs {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			args = append(args, trimmed)
		}
	}
	c.Engine.ExtraArgs = args
	if c.Engine.StopTimeout <= 0 {
		c.Engine.StopTimeout = defaultEngineStopTimeout
	}
	if c.Engine.Restart.MaxAttempts <= 0 {
		c.Engine.Restart.MaxAttempts = defaultRestartMaxAttempts
	}
	if c.Engine.Restart.BaseDelayMS <= 0 {
		c.Engine.Restart.BaseDelayMS = defaultRestartBaseDelayMS
	}
	if c.Engine.Restart.MaxDelayMS <= 0 {
		c.Engine.Restart.MaxDelayMS = defaultRestartMaxDelayMS
	}
	if c.Engine.Restart.ResetAfterSeconds <= 0 {
		c.Engine.Restart.ResetAfterSeconds = defaultRestartResetAfterS
	}
}

func (c *Config) normalizeOSC() {
	c.OSC.CommandHost = strings.TrimSpace(c.OSC.CommandHost)
	if c.OSC.CommandHost == "" {
		c.OSC.CommandHost = defaultCommandHost
	}
	c.OSC.TelemetryHost = strings.TrimSpace(c.OSC.TelemetryHost)
	if c.OSC.TelemetryHost == "" {
		c.OSC.TelemetryHost = defaultTelemetryHost
	}
	if c.OSC.CommandPort <= 0 {
		c.OSC.CommandPort = defaultCommandPort
	}
	if c.OSC.TelemetryPort <= 0 {
		c.OSC.TelemetryPort = defaultTelemetryPort
	}

	// Channel prefix is always rooted and never ends with a slash; the relay
	// appends "/NN" when building per-channel addresses.
	prefix := strings.TrimSpace(c.OSC.ChannelPrefix)
	if prefix == "" {
		prefix = defaultChannelPrefix
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	for len(prefix) > 1 && strings.HasSuffix(prefix, "/") {
		prefix = prefix[:len(prefix)-1]
	}
	c.OSC.ChannelPrefix = prefix

	if c.OSC.ChannelCount <= 0 {
		c.OSC.ChannelCount = defaultChannelCount
	}
	if c.OSC.MaxMessagesPerSecond <= 0 {
		c.OSC.MaxMessagesPerSecond = defaultMaxMessagesPerSecond
	}

	c.OSC.HelloAddress = normalizeAddress(c.OSC.HelloAddress, defaultHelloAddress)
	c.OSC.ScanAddress = normalizeAddress(c.OSC.ScanAddress, defaultScanAddress)

	if c.OSC.BindTimeoutMS <= 0 {
		c.OSC.BindTimeoutMS = defaultBindTimeoutMS
	}
}

func normalizeAddress(value, fallback string) string {
	addr := strings.TrimSpace(value)
	if addr == "" {
		addr = fallback
	}
	if !strings.HasPrefix(addr, "/") {
		addr = "/" + addr
	}
	return addr
}

func (c *Config) normalizeTelemetry() {
	if c.Telemetry.RingSize <= 0 {
		c.Telemetry.RingSize = defaultTelemetryRingSize
	}
	if c.Telemetry.ReadBufferKB <= 0 {
		c.Telemetry.ReadBufferKB = defaultReadBufferKB
	}
}

func (c *Config) normalizeGateway() {
	c.Gateway.Bind = strings.TrimSpace(c.Gateway.Bind)
	if c.Gateway.Bind == "" {
		c.Gateway.Bind = defaultGatewayBind
	}
	c.Gateway.Token = strings.TrimSpace(c.Gateway.Token)
	if c.Gateway.Token == "" {
		if value, ok := os.LookupEnv("GRAINBRIDGE_API_TOKEN"); ok {
			c.Gateway.Token = strings.TrimSpace(value)
		}
	}
	origins := make([]string, 0, len(c.Gateway.AllowedOrigins))
	seen := make(map[string]struct{}, len(c.Gateway.AllowedOrigins))
	for _, origin := range c.Gateway.AllowedOrigins {
		normalized := strings.TrimSpace(origin)
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		origins = append(origins, normalized)
	}
	c.Gateway.AllowedOrigins = origins
	if c.Gateway.ClientSendBuffer <= 0 {
		c.Gateway.ClientSendBuffer = defaultClientSendBuffer
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("GRAINBRIDGE_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
	if c.Logging.BufferSize <= 0 {
		c.Logging.BufferSize = defaultLogBufferSize
	}
}
