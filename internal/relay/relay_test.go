package relay

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/hypebeast/go-osc/osc"

	"grainbridge/internal/config"
	"grainbridge/internal/oscmsg"
)

// startEngineStub binds a loopback UDP socket standing in for the engine's
// command port.
func startEngineStub(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("bind engine stub: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func newTestRelay(t *testing.T, target *net.UDPAddr, mutate func(*config.Config)) *Relay {
	t.Helper()
	cfg := config.Default()
	if target != nil {
		cfg.OSC.CommandHost = "127.0.0.1"
		cfg.OSC.CommandPort = target.Port
	}
	if mutate != nil {
		mutate(&cfg)
	}
	r := New(&cfg, nil)
	t.Cleanup(func() { r.Close() })
	return r
}

func recvMessage(t *testing.T, conn *net.UDPConn) *osc.Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64*1024)
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("engine stub read: %v", err)
	}
	pkt, err := osc.ParsePacket(string(buf[:n]))
	if err != nil {
		t.Fatalf("decode datagram: %v", err)
	}
	msg, ok := pkt.(*osc.Message)
	if !ok {
		t.Fatalf("datagram is %T, want message", pkt)
	}
	return msg
}

func TestSendBeforeOpenFailsFast(t *testing.T) {
	r := newTestRelay(t, nil, nil)

	res, err := r.Send(oscmsg.CommandRequest{Address: "/grain/density"})
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
	if res.Sent {
		t.Fatal("nothing should be sent before Open")
	}
	if res.Error != "transport_not_ready" {
		t.Fatalf("result error = %q", res.Error)
	}
}

func TestSendDeliversDatagram(t *testing.T) {
	stub := startEngineStub(t)
	r := newTestRelay(t, stub.LocalAddr().(*net.UDPAddr), nil)
	if err := r.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !r.Ready() {
		t.Fatal("relay not ready after Open")
	}

	res, err := r.Send(oscmsg.CommandRequest{
		Address: "/grain/density",
		Args:    []oscmsg.Arg{oscmsg.Float(0.5), oscmsg.Int(7), oscmsg.String("hann")},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !res.Sent {
		t.Fatalf("result = %+v, want sent", res)
	}

	msg := recvMessage(t, stub)
	if msg.Address != "/grain/density" {
		t.Fatalf("address = %q", msg.Address)
	}
	if len(msg.Arguments) != 3 {
		t.Fatalf("argument count = %d, want 3", len(msg.Arguments))
	}
	if got, ok := msg.Arguments[0].(float32); !ok || got != 0.5 {
		t.Fatalf("arg 0 = %v (%T)", msg.Arguments[0], msg.Arguments[0])
	}
	if got, ok := msg.Arguments[1].(int32); !ok || got != 7 {
		t.Fatalf("arg 1 = %v (%T)", msg.Arguments[1], msg.Arguments[1])
	}
	if got, ok := msg.Arguments[2].(string); !ok || got != "hann" {
		t.Fatalf("arg 2 = %v (%T)", msg.Arguments[2], msg.Arguments[2])
	}
	if got := r.Stats().Sent; got != 1 {
		t.Fatalf("sent counter = %d, want 1", got)
	}
}

func TestSendRejectsInvalidRequests(t *testing.T) {
	stub := startEngineStub(t)
	r := newTestRelay(t, stub.LocalAddr().(*net.UDPAddr), nil)
	if err := r.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	res, err := r.Send(oscmsg.CommandRequest{Address: "grain/density"})
	if !errors.Is(err, oscmsg.ErrInvalidAddress) {
		t.Fatalf("err = %v, want ErrInvalidAddress", err)
	}
	if res.Sent || res.Error == "" {
		t.Fatalf("result = %+v", res)
	}

	res, err = r.Send(oscmsg.CommandRequest{
		Address: "/grain/density",
		Args:    []oscmsg.Arg{{Type: oscmsg.TypeFloat, Value: []int{1}}},
	})
	if err == nil {
		t.Fatal("uncoercible argument must be rejected")
	}
	if !strings.Contains(res.Error, "argument 0") {
		t.Fatalf("result error = %q", res.Error)
	}
	if got := r.Stats().Rejected; got != 2 {
		t.Fatalf("rejected counter = %d, want 2", got)
	}
}

func TestSendAppliesRateLimitPerKey(t *testing.T) {
	stub := startEngineStub(t)
	r := newTestRelay(t, stub.LocalAddr().(*net.UDPAddr), func(cfg *config.Config) {
		cfg.OSC.MaxMessagesPerSecond = 2 // 500ms between sends per key
	})
	if err := r.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	first, err := r.Send(oscmsg.CommandRequest{Address: "/grain/density"})
	if err != nil || !first.Sent {
		t.Fatalf("first send = %+v, %v", first, err)
	}
	second, err := r.Send(oscmsg.CommandRequest{Address: "/grain/density"})
	if err != nil {
		t.Fatalf("rate-limited send returned error: %v", err)
	}
	if !second.RateLimited || second.Sent {
		t.Fatalf("second send = %+v, want rate-limited", second)
	}

	// A different key has its own bucket.
	other, err := r.Send(oscmsg.CommandRequest{Address: "/grain/pitch"})
	if err != nil || !other.Sent {
		t.Fatalf("other-key send = %+v, %v", other, err)
	}

	stats := r.Stats()
	if stats.Sent != 2 || stats.RateLimited != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if got := r.LimiterStats().DropsByKey["/grain/density"]; got != 1 {
		t.Fatalf("per-key drops = %d, want 1", got)
	}
}

func TestSendChannelClampsAndFormats(t *testing.T) {
	stub := startEngineStub(t)
	r := newTestRelay(t, stub.LocalAddr().(*net.UDPAddr), func(cfg *config.Config) {
		cfg.OSC.ChannelCount = 16
	})
	if err := r.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	res, err := r.SendChannel(3, 1.5)
	if err != nil || !res.Sent {
		t.Fatalf("SendChannel = %+v, %v", res, err)
	}
	msg := recvMessage(t, stub)
	if msg.Address != "/ch/03" {
		t.Fatalf("address = %q, want /ch/03", msg.Address)
	}
	if got, ok := msg.Arguments[0].(float32); !ok || got != 1.0 {
		t.Fatalf("value = %v, want clamped 1.0", msg.Arguments[0])
	}

	// Out-of-range channel lands on the highest voice.
	if _, err := r.SendChannel(99, 0.25); err != nil {
		t.Fatalf("SendChannel(99): %v", err)
	}
	msg = recvMessage(t, stub)
	if msg.Address != "/ch/16" {
		t.Fatalf("address = %q, want /ch/16", msg.Address)
	}
}

func TestWriteFailureClearsReadiness(t *testing.T) {
	stub := startEngineStub(t)
	r := newTestRelay(t, stub.LocalAddr().(*net.UDPAddr), nil)
	if err := r.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Kill the socket underneath the relay: the next write fails and
	// readiness drops.
	r.mu.Lock()
	r.conn.Close()
	r.mu.Unlock()

	res, err := r.Send(oscmsg.CommandRequest{Address: "/grain/density"})
	if err == nil {
		t.Fatal("write on a closed socket must error")
	}
	if res.Error != "transport_error" {
		t.Fatalf("result error = %q, want transport_error", res.Error)
	}
	if r.Ready() {
		t.Fatal("readiness must clear after a transport error")
	}

	_, err = r.Send(oscmsg.CommandRequest{Address: "/grain/density"})
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("follow-up err = %v, want ErrNotReady", err)
	}
	stats := r.Stats()
	if stats.TransportErrors != 1 {
		t.Fatalf("transport errors = %d, want 1", stats.TransportErrors)
	}
}

func TestSendBatchResolvesItemsIndependently(t *testing.T) {
	stub := startEngineStub(t)
	r := newTestRelay(t, stub.LocalAddr().(*net.UDPAddr), func(cfg *config.Config) {
		cfg.OSC.MaxMessagesPerSecond = 1
	})
	if err := r.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	batch := r.SendBatch([]oscmsg.CommandRequest{
		{Address: "/grain/density", Args: []oscmsg.Arg{oscmsg.Float(0.5)}},
		{Address: "missing-slash"},
		{Address: "/grain/density", Args: []oscmsg.Arg{oscmsg.Float(0.75)}},
	})

	if batch.Sent != 1 || batch.Failed != 1 || batch.Dropped != 1 {
		t.Fatalf("aggregate = %+v", batch)
	}
	if len(batch.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(batch.Results))
	}
	if !batch.Results[0].Sent {
		t.Fatalf("item 0 = %+v, want sent", batch.Results[0])
	}
	if batch.Results[1].Error == "" {
		t.Fatalf("item 1 = %+v, want validation error", batch.Results[1])
	}
	if !batch.Results[2].RateLimited {
		t.Fatalf("item 2 = %+v, want rate-limited", batch.Results[2])
	}
}
