package logging

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"
)

func TestStreamHandler_WithAttrs(t *testing.T) {
	hub := NewStreamHub(100)

	base := slog.NewTextHandler(discardWriter{}, nil)
	handler := newStreamHandler(base, hub)

	// Component loggers attach their identity via WithAttrs.
	logger := slog.New(handler).With(slog.String(FieldComponent, "relay"))

	logger.Info("test message", slog.String("extra", "value"))

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	if events[0].Component != "relay" {
		t.Errorf("expected component=relay, got %q", events[0].Component)
	}
	if events[0].Message != "test message" {
		t.Errorf("expected message='test message', got %q", events[0].Message)
	}
	if events[0].Source != SourceSystem {
		t.Errorf("expected slog records tagged as system, got %q", events[0].Source)
	}
	if events[0].Fields["extra"] != "value" {
		t.Errorf("expected extra field retained, got %v", events[0].Fields)
	}
}

func TestStreamHandler_CallSiteOverridesWithAttrs(t *testing.T) {
	hub := NewStreamHub(100)
	base := slog.NewTextHandler(discardWriter{}, nil)
	handler := newStreamHandler(base, hub)

	logger := slog.New(handler).With(slog.String(FieldComponent, "original"))

	logger.Info("message", slog.String(FieldComponent, "overridden"))

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Component != "overridden" {
		t.Errorf("expected component='overridden', got %q", events[0].Component)
	}
}

func TestStreamHandler_NilHub(t *testing.T) {
	base := slog.NewTextHandler(discardWriter{}, nil)
	handler := newStreamHandler(base, nil)

	if handler != base {
		t.Errorf("expected base handler when hub is nil")
	}
}

func TestStreamHandler_Enabled(t *testing.T) {
	hub := NewStreamHub(100)
	base := slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	handler := newStreamHandler(base, hub)

	if handler.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected INFO to be disabled when base level is WARN")
	}
	if !handler.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("expected WARN to be enabled when base level is WARN")
	}
}

func TestStreamHubEvictsOldest(t *testing.T) {
	hub := NewStreamHub(4)
	for i := 0; i < 10; i++ {
		hub.Publish(LogEvent{Message: fmt.Sprintf("line %d", i)})
	}

	events, next := hub.Tail(100)
	if len(events) != 4 {
		t.Fatalf("expected buffer capped at 4 events, got %d", len(events))
	}
	if next != 10 {
		t.Fatalf("expected next sequence 10, got %d", next)
	}
	if events[0].Message != "line 6" {
		t.Fatalf("expected oldest retained event to be line 6, got %q", events[0].Message)
	}
	if hub.FirstSequence() != events[0].Sequence {
		t.Fatalf("FirstSequence mismatch: %d vs %d", hub.FirstSequence(), events[0].Sequence)
	}
}

func TestStreamHubPublishLineTagsSource(t *testing.T) {
	hub := NewStreamHub(16)
	hub.PublishLine(SourceStderr, "engine", "buffer underrun on channel 3")
	hub.PublishLine(SourceStdout, "engine", "scan complete")

	events, _ := hub.Tail(10)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Source != SourceStderr || events[0].Level != "WARN" {
		t.Errorf("stderr line should be WARN, got %s/%s", events[0].Source, events[0].Level)
	}
	if events[1].Source != SourceStdout || events[1].Level != "INFO" {
		t.Errorf("stdout line should be INFO, got %s/%s", events[1].Source, events[1].Level)
	}
	if events[0].Component != "engine" {
		t.Errorf("expected engine component, got %q", events[0].Component)
	}
}

func TestStreamHubFetchWaitsForEvents(t *testing.T) {
	hub := NewStreamHub(16)

	done := make(chan struct{})
	var events []LogEvent
	var err error
	go func() {
		defer close(done)
		events, _, err = hub.Fetch(context.Background(), 0, 10, true)
	}()

	// Publish after the fetch is already blocked.
	time.Sleep(20 * time.Millisecond)
	hub.Publish(LogEvent{Message: "wakeup"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch did not wake after publish")
	}
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(events) != 1 || events[0].Message != "wakeup" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestStreamHubFetchHonorsContextCancel(t *testing.T) {
	hub := NewStreamHub(16)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, _, err := hub.Fetch(ctx, 0, 10, true)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected context error from cancelled Fetch")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch did not observe context cancellation")
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
