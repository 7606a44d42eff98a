package oscmsg_test

import (
	"errors"
	"testing"

	"grainbridge/internal/oscmsg"
)

func TestCommandValidateRejectsBadAddress(t *testing.T) {
	req := oscmsg.CommandRequest{Address: "gs/freeze"}
	err := req.Validate()
	if err == nil {
		t.Fatal("expected validation error for address missing leading slash")
	}
	if !errors.Is(err, oscmsg.ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestCommandValidateRejectsUncoercibleArg(t *testing.T) {
	req := oscmsg.CommandRequest{
		Address: "/gs/gain",
		Args:    []oscmsg.Arg{{Type: oscmsg.TypeFloat, Value: "not a number"}},
	}
	if err := req.Validate(); err == nil {
		t.Fatal("expected validation error for uncoercible float argument")
	}

	req = oscmsg.CommandRequest{
		Address: "/gs/gain",
		Args:    []oscmsg.Arg{{Type: oscmsg.ArgType("x"), Value: 1}},
	}
	if err := req.Validate(); err == nil {
		t.Fatal("expected validation error for unknown argument type")
	}
}

func TestMessageCoercesDeclaredTypes(t *testing.T) {
	req := oscmsg.CommandRequest{
		Address: "/gs/grain",
		Args: []oscmsg.Arg{
			oscmsg.Float(0.5),
			oscmsg.Int(42),
			oscmsg.Double(0.25),
			oscmsg.String("hann"),
		},
	}
	msg, err := req.Message()
	if err != nil {
		t.Fatalf("message build failed: %v", err)
	}
	if msg.Address != "/gs/grain" {
		t.Fatalf("expected address /gs/grain, got %q", msg.Address)
	}
	if len(msg.Arguments) != 4 {
		t.Fatalf("expected 4 arguments, got %d", len(msg.Arguments))
	}
	if v, ok := msg.Arguments[0].(float32); !ok || v != 0.5 {
		t.Fatalf("expected float32 0.5, got %T %v", msg.Arguments[0], msg.Arguments[0])
	}
	if v, ok := msg.Arguments[1].(int32); !ok || v != 42 {
		t.Fatalf("expected int32 42, got %T %v", msg.Arguments[1], msg.Arguments[1])
	}
	if v, ok := msg.Arguments[2].(float64); !ok || v != 0.25 {
		t.Fatalf("expected float64 0.25, got %T %v", msg.Arguments[2], msg.Arguments[2])
	}
	if v, ok := msg.Arguments[3].(string); !ok || v != "hann" {
		t.Fatalf("expected string hann, got %T %v", msg.Arguments[3], msg.Arguments[3])
	}
}

func TestIntCoercionTruncatesFractions(t *testing.T) {
	arg := oscmsg.Arg{Type: oscmsg.TypeInt, Value: 7.9}
	value, err := arg.Coerce()
	if err != nil {
		t.Fatalf("coerce failed: %v", err)
	}
	if v, ok := value.(int32); !ok || v != 7 {
		t.Fatalf("expected int32 7, got %T %v", value, value)
	}
}

func TestCoerceAcceptsNumericStrings(t *testing.T) {
	arg := oscmsg.Arg{Type: oscmsg.TypeFloat, Value: " 0.75 "}
	value, err := arg.Coerce()
	if err != nil {
		t.Fatalf("coerce failed: %v", err)
	}
	if v, ok := value.(float32); !ok || v != 0.75 {
		t.Fatalf("expected float32 0.75, got %T %v", value, value)
	}
}

func TestChannelAddressClampsAndPads(t *testing.T) {
	cases := []struct {
		channel  int
		count    int
		wantAddr string
		wantCh   int
	}{
		{channel: 7, count: 16, wantAddr: "/ch/07", wantCh: 7},
		{channel: 0, count: 16, wantAddr: "/ch/01", wantCh: 1},
		{channel: -3, count: 16, wantAddr: "/ch/01", wantCh: 1},
		{channel: 21, count: 16, wantAddr: "/ch/16", wantCh: 16},
		{channel: 12, count: 12, wantAddr: "/ch/12", wantCh: 12},
	}
	for _, tc := range cases {
		addr, effective := oscmsg.ChannelAddress("/ch", tc.channel, tc.count)
		if addr != tc.wantAddr || effective != tc.wantCh {
			t.Fatalf("channel %d/%d: expected %s (ch %d), got %s (ch %d)",
				tc.channel, tc.count, tc.wantAddr, tc.wantCh, addr, effective)
		}
	}
}

func TestChannelRequestClampsValue(t *testing.T) {
	req := oscmsg.ChannelRequest("/ch", 3, 16, 1.5)
	if req.Address != "/ch/03" {
		t.Fatalf("expected address /ch/03, got %q", req.Address)
	}
	if len(req.Args) != 1 {
		t.Fatalf("expected a single argument, got %d", len(req.Args))
	}
	if v, ok := req.Args[0].Value.(float32); !ok || v != 1.0 {
		t.Fatalf("expected clamped float32 1.0, got %T %v", req.Args[0].Value, req.Args[0].Value)
	}

	req = oscmsg.ChannelRequest("/ch", 3, 16, -2)
	if v, ok := req.Args[0].Value.(float32); !ok || v != 0 {
		t.Fatalf("expected clamped float32 0, got %T %v", req.Args[0].Value, req.Args[0].Value)
	}
}
