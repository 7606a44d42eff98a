package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"grainbridge/internal/oscmsg"
	"grainbridge/internal/relay"
	"grainbridge/internal/supervisor"
)

var titleCaser = cases.Title(language.Und)

// stateLabel renders an engine state for human output ("running" -> "Running").
func stateLabel(state supervisor.State) string {
	return titleCaser.String(string(state))
}

func stateKind(state supervisor.State) statusKind {
	switch state {
	case supervisor.StateRunning:
		return statusOK
	case supervisor.StateStarting, supervisor.StateStopping:
		return statusWarn
	case supervisor.StateError:
		return statusError
	default:
		return statusInfo
	}
}

func formatTime(ts *time.Time) string {
	if ts == nil || ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}

// describeResult summarizes a relay outcome for terminal output.
func describeResult(res relay.Result) string {
	switch {
	case res.Sent:
		return "sent"
	case res.RateLimited:
		return "dropped (rate limited)"
	case res.Error != "":
		return "failed: " + res.Error
	default:
		return "not sent"
	}
}

// parseArgSpec converts a CLI argument spec into a typed OSC argument.
// Specs are "type:value" with OSC type tags (f, i, d, s); bare values are
// sent as floats when numeric and strings otherwise.
func parseArgSpec(spec string) (oscmsg.Arg, error) {
	typeTag, value, found := strings.Cut(spec, ":")
	if !found {
		if f, err := strconv.ParseFloat(spec, 32); err == nil {
			return oscmsg.Float(float32(f)), nil
		}
		return oscmsg.String(spec), nil
	}

	switch oscmsg.ArgType(typeTag) {
	case oscmsg.TypeFloat:
		f, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return oscmsg.Arg{}, fmt.Errorf("float argument %q: %w", value, err)
		}
		return oscmsg.Float(float32(f)), nil
	case oscmsg.TypeInt:
		i, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return oscmsg.Arg{}, fmt.Errorf("integer argument %q: %w", value, err)
		}
		return oscmsg.Int(int32(i)), nil
	case oscmsg.TypeDouble:
		d, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return oscmsg.Arg{}, fmt.Errorf("double argument %q: %w", value, err)
		}
		return oscmsg.Double(d), nil
	case oscmsg.TypeString:
		return oscmsg.String(value), nil
	default:
		return oscmsg.Arg{}, fmt.Errorf("unknown argument type %q (use f, i, d, or s)", typeTag)
	}
}

// parseChannelAssignment parses "channel=value" pairs for preset save.
func parseChannelAssignment(spec string) (int, float64, error) {
	chText, valText, found := strings.Cut(spec, "=")
	if !found {
		return 0, 0, fmt.Errorf("expected channel=value, got %q", spec)
	}
	ch, err := strconv.Atoi(strings.TrimSpace(chText))
	if err != nil {
		return 0, 0, fmt.Errorf("channel %q: %w", chText, err)
	}
	val, err := strconv.ParseFloat(strings.TrimSpace(valText), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("value %q: %w", valText, err)
	}
	return ch, val, nil
}
