package daemon

import (
	"context"
	"testing"

	"github.com/pilebones/go-udev/netlink"

	"grainbridge/internal/config"
)

func monitorConfig() *config.Config {
	cfg := config.Default()
	cfg.DeviceMonitor.Enabled = true
	return &cfg
}

func TestNewSoundMonitor(t *testing.T) {
	t.Run("nil config returns nil", func(t *testing.T) {
		m := newSoundMonitor(nil, nil, nil)
		if m != nil {
			t.Error("expected nil monitor for nil config")
		}
	})

	t.Run("disabled config returns nil", func(t *testing.T) {
		cfg := config.Default()
		cfg.DeviceMonitor.Enabled = false
		m := newSoundMonitor(&cfg, nil, nil)
		if m != nil {
			t.Error("expected nil monitor when disabled")
		}
	})

	t.Run("enabled config creates monitor", func(t *testing.T) {
		m := newSoundMonitor(monitorConfig(), nil, nil)
		if m == nil {
			t.Fatal("expected non-nil monitor")
		}
	})
}

func TestSoundMonitorRunning(t *testing.T) {
	t.Run("nil monitor returns false", func(t *testing.T) {
		var m *soundMonitor
		if m.Running() {
			t.Error("expected Running() to return false for nil monitor")
		}
	})

	t.Run("unstarted monitor returns false", func(t *testing.T) {
		m := newSoundMonitor(monitorConfig(), nil, nil)
		if m.Running() {
			t.Error("expected Running() to return false for unstarted monitor")
		}
	})
}

func TestSoundMonitorStopStartIdempotency(t *testing.T) {
	t.Run("stop on nil monitor is safe", func(t *testing.T) {
		var m *soundMonitor
		m.Stop() // must not panic
	})

	t.Run("start on nil monitor is safe", func(t *testing.T) {
		var m *soundMonitor
		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("Start on nil monitor should return nil, got: %v", err)
		}
	})

	t.Run("stop on unstarted monitor is safe", func(t *testing.T) {
		m := newSoundMonitor(monitorConfig(), nil, nil)
		m.Stop() // must not panic
		if m.Running() {
			t.Error("expected Running() to return false after Stop on unstarted monitor")
		}
	})

	t.Run("double stop is safe", func(t *testing.T) {
		m := newSoundMonitor(monitorConfig(), nil, nil)
		m.Stop()
		m.Stop() // second stop - must not panic
	})

	t.Run("start after stop without prior start is safe", func(t *testing.T) {
		m := newSoundMonitor(monitorConfig(), nil, nil)
		m.Stop()
		// Start will try to connect to netlink (fails without privileges)
		// but connection failure is non-fatal.
		_ = m.Start(context.Background())
		m.Stop()
	})
}

func TestSoundMatcher(t *testing.T) {
	m := newSoundMonitor(monitorConfig(), nil, nil)

	matcher := m.buildMatcher()
	if matcher == nil {
		t.Fatal("expected non-nil matcher")
	}

	soundEnv := map[string]string{
		"SUBSYSTEM": "sound",
		"DEVPATH":   "/devices/pci0000:00/0000:00:14.0/usb1/1-2/1-2:1.0/sound/card1",
	}
	for _, event := range []netlink.UEvent{
		{Action: netlink.ADD, Env: soundEnv},
		{Action: netlink.REMOVE, Env: soundEnv},
		{Action: netlink.CHANGE, Env: soundEnv},
	} {
		if !matcher.Evaluate(event) {
			t.Errorf("expected matcher to accept sound %s event", event.Action)
		}
	}

	blockEvent := netlink.UEvent{
		Action: netlink.ADD,
		Env: map[string]string{
			"SUBSYSTEM": "block",
			"DEVPATH":   "/devices/pci0000:00/0000:00:1f.2/ata1/host0/block/sda",
		},
	}
	if matcher.Evaluate(blockEvent) {
		t.Error("expected matcher to reject block subsystem event")
	}
}

func TestSoundCardName(t *testing.T) {
	cases := []struct {
		name    string
		devpath string
		want    string
	}{
		{"card node", "/devices/pci0000:00/0000:00:14.0/usb1/1-2/1-2:1.0/sound/card1", "card1"},
		{"control node", "/devices/pci0000:00/0000:00:14.0/usb1/1-2/1-2:1.0/sound/card1/controlC1", ""},
		{"pcm node", "/devices/pci0000:00/0000:00:14.0/usb1/1-2/1-2:1.0/sound/card1/pcmC1D0p", ""},
		{"missing devpath", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := map[string]string{}
			if tc.devpath != "" {
				env["DEVPATH"] = tc.devpath
			}
			got := soundCardName(netlink.UEvent{Action: netlink.ADD, Env: env})
			if got != tc.want {
				t.Errorf("soundCardName(%q) = %q, want %q", tc.devpath, got, tc.want)
			}
		})
	}
}

func TestSoundMonitorHandleEvent(t *testing.T) {
	t.Run("ignores non-card nodes", func(t *testing.T) {
		var handlerCalled bool
		handler := func(ctx context.Context, action, device string) {
			handlerCalled = true
		}

		m := newSoundMonitor(monitorConfig(), nil, handler)
		m.handleEvent(context.Background(), netlink.UEvent{
			Action: netlink.ADD,
			Env: map[string]string{
				"SUBSYSTEM": "sound",
				"DEVPATH":   "/devices/pci0000:00/sound/card0/pcmC0D0p",
			},
		})

		if handlerCalled {
			t.Error("handler should not be called for per-node events")
		}
	})

	t.Run("forwards card events with action", func(t *testing.T) {
		var gotAction, gotDevice string
		handler := func(ctx context.Context, action, device string) {
			gotAction = action
			gotDevice = device
		}

		m := newSoundMonitor(monitorConfig(), nil, handler)
		m.handleEvent(context.Background(), netlink.UEvent{
			Action: netlink.REMOVE,
			Env: map[string]string{
				"SUBSYSTEM": "sound",
				"DEVPATH":   "/devices/pci0000:00/0000:00:14.0/usb1/1-2/1-2:1.0/sound/card1",
			},
		})

		if gotAction != "remove" {
			t.Errorf("expected action remove, got %q", gotAction)
		}
		if gotDevice != "card1" {
			t.Errorf("expected device card1, got %q", gotDevice)
		}
	})

	t.Run("nil handler is safe", func(t *testing.T) {
		m := newSoundMonitor(monitorConfig(), nil, nil)
		m.handleEvent(context.Background(), netlink.UEvent{
			Action: netlink.ADD,
			Env: map[string]string{
				"SUBSYSTEM": "sound",
				"DEVPATH":   "/devices/pci0000:00/sound/card0",
			},
		})
	})
}
