package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"grainbridge/internal/config"
	"grainbridge/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyEngineCrashed(context.Background(), "exit status 1", 1, 5); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsAlerts(t *testing.T) {
	tests := []struct {
		name           string
		send           func(ctx context.Context, svc notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "engine started",
			send: func(ctx context.Context, svc notifications.Service) error {
				return svc.NotifyEngineStarted(ctx, "/opt/grainsynth/bin/grainsynth", 4210)
			},
			expectTitle:   "Grainbridge - Engine Started",
			expectMessage: "Engine started: /opt/grainsynth/bin/grainsynth (pid 4210)",
			expectTags:    "grainbridge,engine,started",
		},
		{
			name: "engine crashed",
			send: func(ctx context.Context, svc notifications.Service) error {
				return svc.NotifyEngineCrashed(ctx, "engine exited unexpectedly (exit status 1)", 2, 5)
			},
			expectTitle:    "Grainbridge - Engine Crashed",
			expectMessage:  "Engine crashed: engine exited unexpectedly (exit status 1)\nRestart 2 of 5 scheduled",
			expectTags:     "grainbridge,engine,crashed",
			expectPriority: "high",
		},
		{
			name: "engine recovered",
			send: func(ctx context.Context, svc notifications.Service) error {
				return svc.NotifyEngineRecovered(ctx, 4211, 2)
			},
			expectTitle:   "Grainbridge - Engine Recovered",
			expectMessage: "✅ Engine recovered: pid 4211 (restart 2)",
			expectTags:    "grainbridge,engine,recovered",
		},
		{
			name: "engine gave up",
			send: func(ctx context.Context, svc notifications.Service) error {
				return svc.NotifyEngineGaveUp(ctx, 5, "exit status 1")
			},
			expectTitle:    "Grainbridge - Engine Gave Up",
			expectMessage:  "❌ Engine gave up after 5 failed restarts\nManual start required\nLast error: exit status 1",
			expectTags:     "grainbridge,engine,exhausted",
			expectPriority: "high",
		},
		{
			name: "error",
			send: func(ctx context.Context, svc notifications.Service) error {
				return svc.NotifyError(ctx, errors.New("relay socket closed"), "relay")
			},
			expectTitle:    "Grainbridge - Error",
			expectMessage:  "❌ Error with relay: relay socket closed",
			expectTags:     "grainbridge,error,alert",
			expectPriority: "high",
		},
		{
			name: "test notification",
			send: func(ctx context.Context, svc notifications.Service) error {
				return svc.TestNotification(ctx)
			},
			expectTitle:    "Grainbridge - Test",
			expectMessage:  "🧪 Notification system test",
			expectTags:     "grainbridge,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Errorf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := tc.send(context.Background(), svc); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceHonorsEventToggles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for muted event: %s", r.Header.Get("Title"))
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.EngineStart = false
	cfg.Notifications.EngineCrash = false
	cfg.Notifications.EngineGiveUp = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(&cfg)
	ctx := context.Background()

	muted := []func() error{
		func() error { return svc.NotifyEngineStarted(ctx, "grainsynth", 100) },
		func() error { return svc.NotifyEngineCrashed(ctx, "exit status 1", 1, 5) },
		func() error { return svc.NotifyEngineRecovered(ctx, 101, 1) },
		func() error { return svc.NotifyEngineGaveUp(ctx, 5, "") },
		func() error { return svc.NotifyError(ctx, errors.New("boom"), "relay") },
	}
	for i, send := range muted {
		if err := send(); err != nil {
			t.Fatalf("expected no error for muted event %d, got %v", i, err)
		}
	}
}

func TestTestNotificationBypassesToggles(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.EngineStart = false
	cfg.Notifications.EngineCrash = false
	cfg.Notifications.EngineGiveUp = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(&cfg)
	if err := svc.TestNotification(context.Background()); err != nil {
		t.Fatalf("test notification returned error: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 delivery, got %d", got)
	}
}

func TestNtfyServiceSurfacesServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("topic locked"))
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	svc := notifications.NewService(&cfg)
	err := svc.NotifyEngineCrashed(context.Background(), "exit status 1", 1, 5)
	if err == nil {
		t.Fatal("expected error from 403 response")
	}
	if got := err.Error(); got != "ntfy returned 403: topic locked" {
		t.Fatalf("unexpected error text: %q", got)
	}
}
