package main

import (
	"testing"

	"grainbridge/internal/oscmsg"
	"grainbridge/internal/relay"
	"grainbridge/internal/supervisor"
)

func TestParseArgSpec(t *testing.T) {
	cases := []struct {
		spec     string
		wantType oscmsg.ArgType
		wantVal  any
		wantErr  bool
	}{
		{spec: "f:0.5", wantType: oscmsg.TypeFloat, wantVal: float32(0.5)},
		{spec: "i:12", wantType: oscmsg.TypeInt, wantVal: int32(12)},
		{spec: "d:0.25", wantType: oscmsg.TypeDouble, wantVal: 0.25},
		{spec: "s:pad.wav", wantType: oscmsg.TypeString, wantVal: "pad.wav"},
		{spec: "s:has:colons", wantType: oscmsg.TypeString, wantVal: "has:colons"},
		{spec: "0.75", wantType: oscmsg.TypeFloat, wantVal: float32(0.75)},
		{spec: "hello", wantType: oscmsg.TypeString, wantVal: "hello"},
		{spec: "f:notanumber", wantErr: true},
		{spec: "i:1.5", wantErr: true},
		{spec: "x:1", wantErr: true},
	}

	for _, tc := range cases {
		arg, err := parseArgSpec(tc.spec)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseArgSpec(%q): expected error, got %+v", tc.spec, arg)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseArgSpec(%q): %v", tc.spec, err)
			continue
		}
		if arg.Type != tc.wantType {
			t.Errorf("parseArgSpec(%q) type = %q, want %q", tc.spec, arg.Type, tc.wantType)
		}
		if arg.Value != tc.wantVal {
			t.Errorf("parseArgSpec(%q) value = %v (%T), want %v (%T)", tc.spec, arg.Value, arg.Value, tc.wantVal, tc.wantVal)
		}
	}
}

func TestParseChannelAssignment(t *testing.T) {
	ch, val, err := parseChannelAssignment("3=0.75")
	if err != nil {
		t.Fatalf("parseChannelAssignment: %v", err)
	}
	if ch != 3 || val != 0.75 {
		t.Fatalf("parseChannelAssignment = (%d, %v), want (3, 0.75)", ch, val)
	}

	for _, bad := range []string{"3", "x=0.5", "3=high", ""} {
		if _, _, err := parseChannelAssignment(bad); err == nil {
			t.Errorf("parseChannelAssignment(%q): expected error", bad)
		}
	}
}

func TestStateLabel(t *testing.T) {
	if got := stateLabel(supervisor.StateRunning); got != "Running" {
		t.Fatalf("stateLabel(running) = %q", got)
	}
	if got := stateLabel(supervisor.StateError); got != "Error" {
		t.Fatalf("stateLabel(error) = %q", got)
	}
}

func TestDescribeResult(t *testing.T) {
	cases := []struct {
		result relay.Result
		want   string
	}{
		{relay.Result{Sent: true}, "sent"},
		{relay.Result{RateLimited: true}, "dropped (rate limited)"},
		{relay.Result{Error: "transport_not_ready"}, "failed: transport_not_ready"},
		{relay.Result{}, "not sent"},
	}
	for _, tc := range cases {
		if got := describeResult(tc.result); got != tc.want {
			t.Errorf("describeResult(%+v) = %q, want %q", tc.result, got, tc.want)
		}
	}
}

func TestSummarizeChannels(t *testing.T) {
	got := summarizeChannels(map[int]float64{2: 0.5, 1: 0.25})
	if got != "1=0.25 2=0.50" {
		t.Fatalf("summarizeChannels = %q", got)
	}

	many := map[int]float64{1: 0, 2: 0, 3: 0, 4: 0, 5: 0, 6: 0}
	got = summarizeChannels(many)
	if got != "1=0.00 2=0.00 3=0.00 4=0.00 +2 more" {
		t.Fatalf("summarizeChannels(six) = %q", got)
	}
}
