// Package relay sends validated, rate-limited OSC commands to the engine
// over UDP. It owns the outbound socket and its readiness: until Open
// succeeds, and again after a write failure, sends fail fast with
// ErrNotReady instead of blocking or queueing.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"grainbridge/internal/config"
	"grainbridge/internal/logging"
	"grainbridge/internal/oscmsg"
	"grainbridge/internal/ratelimit"
)

// ErrNotReady is returned when the outbound socket is not open. The string
// form doubles as the wire error code surfaced to gateway clients.
var ErrNotReady = errors.New("transport_not_ready")

// ErrorTransport is the wire error code reported when a UDP write fails.
const ErrorTransport = "transport_error"

// Result reports the outcome of one send. Exactly one of Sent,
// RateLimited, or Error describes what happened.
type Result struct {
	Sent        bool   `json:"sent"`
	RateLimited bool   `json:"rate_limited,omitempty"`
	Error       string `json:"error,omitempty"`
}

// BatchResult aggregates per-item outcomes. Items are resolved
// independently; one failure never aborts the rest.
type BatchResult struct {
	Results []Result `json:"results"`
	Sent    int      `json:"sent"`
	Dropped int      `json:"dropped"`
	Failed  int      `json:"failed"`
}

// Stats is a snapshot of the relay's cumulative counters.
type Stats struct {
	Ready           bool   `json:"ready"`
	Sent            uint64 `json:"sent"`
	RateLimited     uint64 `json:"rate_limited"`
	Rejected        uint64 `json:"rejected"`
	TransportErrors uint64 `json:"transport_errors"`
}

// Option configures the relay.
type Option func(*Relay)

// WithRegisterer registers the relay's metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(r *Relay) {
		r.reg = reg
	}
}

// Relay is the single writer to the engine's command port.
type Relay struct {
	logger  *slog.Logger
	reg     prometheus.Registerer
	metrics *metrics
	limiter *ratelimit.Limiter

	target      string
	bindTimeout time.Duration
	prefix      string
	channels    int

	mu    sync.Mutex
	conn  net.Conn
	ready atomic.Bool

	sentCount     atomic.Uint64
	rateLimitHits atomic.Uint64
	rejectedCount atomic.Uint64
	transportErrs atomic.Uint64
}

// New builds a relay targeting the configured command address. The socket
// is not opened until Open.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Relay {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Relay{
		logger:      logging.NewComponentLogger(logger, "relay"),
		limiter:     ratelimit.New(cfg.OSC.MaxMessagesPerSecond),
		target:      net.JoinHostPort(cfg.OSC.CommandHost, fmt.Sprint(cfg.OSC.CommandPort)),
		bindTimeout: time.Duration(cfg.OSC.BindTimeoutMS) * time.Millisecond,
		prefix:      cfg.OSC.ChannelPrefix,
		channels:    cfg.OSC.ChannelCount,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.metrics = newMetrics(r.reg)
	return r
}

// Open binds the outbound UDP socket and marks the relay ready. Idempotent
// while open. The bind timeout caps how long socket setup may take.
func (r *Relay) Open(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return nil
	}

	dialer := net.Dialer{Timeout: r.bindTimeout}
	conn, err := dialer.DialContext(ctx, "udp", r.target)
	if err != nil {
		return fmt.Errorf("open command socket %s: %w", r.target, err)
	}
	r.conn = conn
	r.ready.Store(true)
	r.metrics.ready.Set(1)
	r.logger.Info("command socket open",
		logging.String("target", r.target),
		logging.Duration("interval", r.limiter.Interval()))
	return nil
}

// Close shuts the outbound socket and clears readiness.
func (r *Relay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready.Store(false)
	r.metrics.ready.Set(0)
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}

// Ready reports whether the outbound socket accepts sends.
func (r *Relay) Ready() bool {
	return r.ready.Load()
}

// Send validates, rate-limits, and transmits one command. Rate-limit drops
// are a normal outcome (nil error, RateLimited set); validation failures
// and transport conditions come back as errors alongside the result.
func (r *Relay) Send(req oscmsg.CommandRequest) (Result, error) {
	if err := req.Validate(); err != nil {
		r.rejectedCount.Add(1)
		r.metrics.rejected.Inc()
		return Result{Error: err.Error()}, err
	}
	if !r.ready.Load() {
		return Result{Error: ErrNotReady.Error()}, ErrNotReady
	}

	key := req.Key
	if key == "" {
		key = req.Address
	}
	if !r.limiter.Allow(key) {
		r.rateLimitHits.Add(1)
		r.metrics.rateLimited.Inc()
		return Result{RateLimited: true}, nil
	}

	msg, err := req.Message()
	if err != nil {
		r.rejectedCount.Add(1)
		r.metrics.rejected.Inc()
		return Result{Error: err.Error()}, err
	}
	data, err := msg.MarshalBinary()
	if err != nil {
		r.rejectedCount.Add(1)
		r.metrics.rejected.Inc()
		return Result{Error: err.Error()}, fmt.Errorf("encode %s: %w", req.Address, err)
	}

	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return Result{Error: ErrNotReady.Error()}, ErrNotReady
	}

	if _, err := conn.Write(data); err != nil {
		r.transportErrs.Add(1)
		r.metrics.transportErrors.Inc()
		r.ready.Store(false)
		r.metrics.ready.Set(0)
		logging.ErrorWithContext(r.logger, "command send failed", "relay_transport_error",
			logging.String(logging.FieldOSCAddress, req.Address),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "socket marked not ready; reopen the relay"),
			logging.String(logging.FieldImpact, "subsequent sends fail fast until reopened"))
		return Result{Error: ErrorTransport}, fmt.Errorf("send %s: %w", req.Address, err)
	}

	r.sentCount.Add(1)
	r.metrics.sent.Inc()
	return Result{Sent: true}, nil
}

// SendChannel maps a channel number and normalized value onto the fixed
// per-channel address pattern and sends it. Channel and value are clamped,
// never rejected.
func (r *Relay) SendChannel(channel int, value float64) (Result, error) {
	return r.Send(oscmsg.ChannelRequest(r.prefix, channel, r.channels, value))
}

// SendBatch resolves every request independently and aggregates outcomes.
func (r *Relay) SendBatch(reqs []oscmsg.CommandRequest) BatchResult {
	out := BatchResult{Results: make([]Result, 0, len(reqs))}
	for _, req := range reqs {
		res, _ := r.Send(req)
		out.Results = append(out.Results, res)
		switch {
		case res.Sent:
			out.Sent++
		case res.RateLimited:
			out.Dropped++
		default:
			out.Failed++
		}
	}
	return out
}

// Stats returns a snapshot of the cumulative counters.
func (r *Relay) Stats() Stats {
	return Stats{
		Ready:           r.ready.Load(),
		Sent:            r.sentCount.Load(),
		RateLimited:     r.rateLimitHits.Load(),
		Rejected:        r.rejectedCount.Load(),
		TransportErrors: r.transportErrs.Load(),
	}
}

// LimiterStats exposes per-key drop accounting for diagnostics.
func (r *Relay) LimiterStats() ratelimit.Stats {
	return r.limiter.Snapshot()
}
