package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateOSC(); err != nil {
		return err
	}
	if err := c.validateTelemetry(); err != nil {
		return err
	}
	if err := c.validateGateway(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateEngine() error {
	if strings.TrimSpace(c.Engine.Binary) == "" {
		return errors.New("engine.binary must be set")
	}
	if err := ensurePositiveMap(map[string]int{
		"engine.stop_timeout":                c.Engine.StopTimeout,
		"engine.restart.max_attempts":        c.Engine.Restart.MaxAttempts,
		"engine.restart.base_delay_ms":       c.Engine.Restart.BaseDelayMS,
		"engine.restart.max_delay_ms":        c.Engine.Restart.MaxDelayMS,
		"engine.restart.reset_after_seconds": c.Engine.Restart.ResetAfterSeconds,
	}); err != nil {
		return err
	}
	if c.Engine.Restart.MaxDelayMS < c.Engine.Restart.BaseDelayMS {
		return errors.New("engine.restart.max_delay_ms must be >= engine.restart.base_delay_ms")
	}
	return nil
}

func (c *Config) validateOSC() error {
	for key, port := range map[string]int{
		"osc.command_port":   c.OSC.CommandPort,
		"osc.telemetry_port": c.OSC.TelemetryPort,
	} {
		if port < 1 || port > 65535 {
			return fmt.Errorf("%s must be between 1 and 65535", key)
		}
	}
	if c.OSC.CommandPort == c.OSC.TelemetryPort && c.OSC.CommandHost == c.OSC.TelemetryHost {
		return errors.New("osc.command_port and osc.telemetry_port must differ on the same host")
	}
	if !strings.HasPrefix(c.OSC.ChannelPrefix, "/") {
		return errors.New("osc.channel_prefix must start with '/'")
	}
	// Channel addresses embed a two-digit suffix, so the count caps at 99.
	if c.OSC.ChannelCount < 1 || c.OSC.ChannelCount > 99 {
		return errors.New("osc.channel_count must be between 1 and 99")
	}
	if c.OSC.MaxMessagesPerSecond < 1 || c.OSC.MaxMessagesPerSecond > 1000 {
		return errors.New("osc.max_messages_per_second must be between 1 and 1000")
	}
	if c.OSC.HelloAddress == c.OSC.ScanAddress {
		return errors.New("osc.hello_address and osc.scan_address must differ")
	}
	if c.OSC.BindTimeoutMS < 100 {
		return errors.New("osc.bind_timeout_ms must be at least 100")
	}
	return nil
}

func (c *Config) validateTelemetry() error {
	if c.Telemetry.RingSize < 64 {
		return errors.New("telemetry.ring_size must be at least 64")
	}
	if c.Telemetry.ReadBufferKB < 4 {
		return errors.New("telemetry.read_buffer_kb must be at least 4")
	}
	return nil
}

func (c *Config) validateGateway() error {
	if strings.TrimSpace(c.Gateway.Bind) == "" {
		return errors.New("gateway.bind must be set")
	}
	if _, _, err := net.SplitHostPort(c.Gateway.Bind); err != nil {
		return fmt.Errorf("gateway.bind must be host:port: %w", err)
	}
	if c.Gateway.ClientSendBuffer < 1 {
		return errors.New("gateway.client_send_buffer must be positive")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
