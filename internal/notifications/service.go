package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"grainbridge/internal/config"
)

const userAgent = "Grainbridge/0.1.0"

// Service defines the notification surface exposed to the daemon.
type Service interface {
	NotifyEngineStarted(ctx context.Context, binary string, pid int) error
	NotifyEngineCrashed(ctx context.Context, detail string, attempt, maxAttempts int) error
	NotifyEngineRecovered(ctx context.Context, pid, attempt int) error
	NotifyEngineGaveUp(ctx context.Context, attempts int, detail string) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint: topic,
		client:   client,
		events:   cfg.Notifications,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	events   config.Notifications
}

func (n *ntfyService) NotifyEngineStarted(ctx context.Context, binary string, pid int) error {
	if !n.events.EngineStart {
		return nil
	}
	binary = strings.TrimSpace(binary)
	data := payload{
		title:   "Grainbridge - Engine Started",
		message: fmt.Sprintf("Engine started: %s (pid %d)", binary, pid),
		tags:    []string{"grainbridge", "engine", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyEngineCrashed(ctx context.Context, detail string, attempt, maxAttempts int) error {
	if !n.events.EngineCrash {
		return nil
	}
	detail = strings.TrimSpace(detail)
	if detail == "" {
		detail = "unknown exit"
	}
	data := payload{
		title:    "Grainbridge - Engine Crashed",
		message:  fmt.Sprintf("Engine crashed: %s\nRestart %d of %d scheduled", detail, attempt, maxAttempts),
		tags:     []string{"grainbridge", "engine", "crashed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyEngineRecovered(ctx context.Context, pid, attempt int) error {
	if !n.events.EngineCrash {
		return nil
	}
	data := payload{
		title:   "Grainbridge - Engine Recovered",
		message: fmt.Sprintf("✅ Engine recovered: pid %d (restart %d)", pid, attempt),
		tags:    []string{"grainbridge", "engine", "recovered"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyEngineGaveUp(ctx context.Context, attempts int, detail string) error {
	if !n.events.EngineGiveUp {
		return nil
	}
	detail = strings.TrimSpace(detail)
	message := fmt.Sprintf("❌ Engine gave up after %d failed restarts\nManual start required", attempts)
	if detail != "" {
		message = fmt.Sprintf("%s\nLast error: %s", message, detail)
	}
	data := payload{
		title:    "Grainbridge - Engine Gave Up",
		message:  message,
		tags:     []string{"grainbridge", "engine", "exhausted"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.events.Errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("❌ Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Grainbridge - Error",
		message:  builder.String(),
		tags:     []string{"grainbridge", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Grainbridge - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"grainbridge", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyEngineStarted(context.Context, string, int) error      { return nil }
func (noopService) NotifyEngineCrashed(context.Context, string, int, int) error { return nil }
func (noopService) NotifyEngineRecovered(context.Context, int, int) error       { return nil }
func (noopService) NotifyEngineGaveUp(context.Context, int, string) error       { return nil }
func (noopService) NotifyError(context.Context, error, string) error            { return nil }
func (noopService) TestNotification(context.Context) error                      { return nil }
