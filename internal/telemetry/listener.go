// Package telemetry receives the engine's OSC telemetry stream over UDP.
// Hello announcements and scan samples are decoded into typed values,
// retained in bounded buffers, and fanned out to subscribers. Telemetry is
// best-effort: malformed datagrams are counted and dropped, never fatal.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/prometheus/client_golang/prometheus"

	"grainbridge/internal/config"
	"grainbridge/internal/logging"
	"grainbridge/internal/oscmsg"
)

const (
	maxDatagram        = 64 * 1024
	readDeadlineStep   = 500 * time.Millisecond
	subscriberCapacity = 64
)

// Event carries one decoded telemetry sample to subscribers. Exactly one
// field is set.
type Event struct {
	Hello *oscmsg.HelloSample
	Scan  *oscmsg.ScanSample
}

// Stats is a snapshot of the listener's cumulative counters.
type Stats struct {
	Ready           bool   `json:"ready"`
	Packets         uint64 `json:"packets"`
	Scans           uint64 `json:"scans"`
	Hellos          uint64 `json:"hellos"`
	Ignored         uint64 `json:"ignored"`
	ParseErrors     uint64 `json:"parse_errors"`
	ReadErrors      uint64 `json:"read_errors"`
	SubscriberDrops uint64 `json:"subscriber_drops"`
	Buffered        int    `json:"buffered"`
}

// Option configures the listener.
type Option func(*Listener)

// WithRegisterer registers the listener's metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(l *Listener) {
		l.reg = reg
	}
}

// Listener owns the inbound telemetry socket. One listener instance serves
// the whole daemon; everything downstream consumes it through Subscribe,
// RecentScans, or CaptureWindow.
type Listener struct {
	logger  *slog.Logger
	reg     prometheus.Registerer
	metrics *metrics

	bindAddr   string
	helloAddr  string
	scanAddr   string
	readBuffer int
	ring       *scanRing

	mu       sync.Mutex
	conn     *net.UDPConn
	running  bool
	shutdown chan struct{}
	done     chan struct{}
	hello    *oscmsg.HelloSample
	subs     map[int]chan Event
	nextID   int

	packets     atomic.Uint64
	scans       atomic.Uint64
	hellos      atomic.Uint64
	ignored     atomic.Uint64
	parseErrors atomic.Uint64
	readErrors  atomic.Uint64
	subDrops    atomic.Uint64
}

// New builds a listener bound to the configured telemetry address. The
// socket is not opened until Start.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Listener {
	if logger == nil {
		logger = logging.NewNop()
	}
	l := &Listener{
		logger:     logging.NewComponentLogger(logger, "telemetry"),
		bindAddr:   net.JoinHostPort(cfg.OSC.TelemetryHost, fmt.Sprint(cfg.OSC.TelemetryPort)),
		helloAddr:  cfg.OSC.HelloAddress,
		scanAddr:   cfg.OSC.ScanAddress,
		readBuffer: cfg.Telemetry.ReadBufferKB * 1024,
		ring:       newScanRing(cfg.Telemetry.RingSize),
		subs:       make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.metrics = newMetrics(l.reg)
	return l
}

// Start binds the UDP socket and begins the read loop. Idempotent while
// running. The context backstops shutdown: when it ends, the loop drains
// and exits even if Stop is never called.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return nil
	}

	addr, err := net.ResolveUDPAddr("udp", l.bindAddr)
	if err != nil {
		return fmt.Errorf("resolve telemetry address %s: %w", l.bindAddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("bind telemetry socket %s: %w", l.bindAddr, err)
	}
	if l.readBuffer > 0 {
		if err := conn.SetReadBuffer(l.readBuffer); err != nil {
			// Some systems cap SO_RCVBUF; a smaller buffer only risks
			// drops under burst, so keep going.
			l.logger.Warn("could not grow telemetry read buffer",
				logging.Int("bytes", l.readBuffer),
				logging.Error(err))
		}
	}

	l.conn = conn
	l.running = true
	l.shutdown = make(chan struct{})
	l.done = make(chan struct{})
	l.logger.Info("telemetry listener bound",
		logging.String("addr", conn.LocalAddr().String()),
		logging.String("hello_address", l.helloAddr),
		logging.String("scan_address", l.scanAddr))

	go l.readLoop(ctx, conn, l.shutdown, l.done)
	return nil
}

// Stop closes the socket and waits for the read loop to drain.
func (l *Listener) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.shutdown)
	_ = l.conn.Close()
	done := l.done
	l.mu.Unlock()

	<-done

	l.mu.Lock()
	l.conn = nil
	l.shutdown = nil
	l.done = nil
	l.mu.Unlock()
}

// Ready reports whether the telemetry socket is bound and the loop runs.
func (l *Listener) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Addr returns the bound socket address, or nil before Start.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// LatestHello returns the most recent engine announcement, if any arrived.
func (l *Listener) LatestHello() (oscmsg.HelloSample, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hello == nil {
		return oscmsg.HelloSample{}, false
	}
	return *l.hello, true
}

// RecentScans returns the most recent limit scan samples, oldest first.
func (l *Listener) RecentScans(limit int) []oscmsg.ScanSample {
	return l.ring.latest(limit)
}

// Stats returns a snapshot of the cumulative counters.
func (l *Listener) Stats() Stats {
	return Stats{
		Ready:           l.Ready(),
		Packets:         l.packets.Load(),
		Scans:           l.scans.Load(),
		Hellos:          l.hellos.Load(),
		Ignored:         l.ignored.Load(),
		ParseErrors:     l.parseErrors.Load(),
		ReadErrors:      l.readErrors.Load(),
		SubscriberDrops: l.subDrops.Load(),
		Buffered:        l.ring.len(),
	}
}

// Subscribe registers a telemetry observer. Events are delivered with a
// non-blocking send: a subscriber that falls behind misses samples instead
// of stalling the read loop. The returned func unsubscribes.
func (l *Listener) Subscribe() (<-chan Event, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	ch := make(chan Event, subscriberCapacity)
	l.subs[id] = ch

	return ch, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if sub, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(sub)
		}
	}
}

func (l *Listener) readLoop(ctx context.Context, conn *net.UDPConn, shutdown, done chan struct{}) {
	defer close(done)
	buf := make([]byte, maxDatagram)

	for {
		select {
		case <-ctx.Done():
			return
		case <-shutdown:
			return
		default:
		}

		// A finite deadline keeps the loop responsive to shutdown even
		// when the engine goes quiet.
		_ = conn.SetReadDeadline(time.Now().Add(readDeadlineStep))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.readErrors.Add(1)
			l.metrics.readErrors.Inc()
			l.logger.Warn("telemetry read failed", logging.Error(err))
			continue
		}

		l.packets.Add(1)
		l.metrics.packets.Inc()
		now := time.Now().UTC()
		l.metrics.lastActivity.Set(float64(now.Unix()))
		l.processDatagram(buf[:n], now)
	}
}

// processDatagram decodes one OSC packet and routes its messages.
func (l *Listener) processDatagram(data []byte, now time.Time) {
	pkt, err := osc.ParsePacket(string(data))
	if err != nil {
		l.parseErrors.Add(1)
		l.metrics.parseErrors.Inc()
		return
	}
	l.routePacket(pkt, now)
}

func (l *Listener) routePacket(pkt osc.Packet, now time.Time) {
	switch p := pkt.(type) {
	case *osc.Message:
		l.routeMessage(p, now)
	case *osc.Bundle:
		for _, msg := range p.Messages {
			l.routeMessage(msg, now)
		}
		for _, nested := range p.Bundles {
			l.routePacket(nested, now)
		}
	}
}

func (l *Listener) routeMessage(msg *osc.Message, now time.Time) {
	switch msg.Address {
	case l.helloAddr:
		sample := oscmsg.ParseHello(msg.Address, msg.Arguments, now)
		l.hellos.Add(1)
		l.metrics.hellos.Inc()
		l.mu.Lock()
		l.hello = &sample
		l.mu.Unlock()
		l.logger.Info("engine hello received",
			logging.String(logging.FieldOSCAddress, msg.Address),
			logging.Int("args", len(sample.Args)))
		l.publish(Event{Hello: &sample})
	case l.scanAddr:
		sample, ok := oscmsg.ParseScan(msg.Arguments, now)
		if !ok {
			l.parseErrors.Add(1)
			l.metrics.parseErrors.Inc()
			return
		}
		l.ring.add(sample)
		l.scans.Add(1)
		l.metrics.scans.Inc()
		l.publish(Event{Scan: &sample})
	default:
		l.ignored.Add(1)
		l.metrics.ignored.Inc()
	}
}

func (l *Listener) publish(evt Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, sub := range l.subs {
		select {
		case sub <- evt:
		default:
			l.subDrops.Add(1)
			l.metrics.subscriberDrop.Inc()
		}
	}
}
