// Package gateway exposes the command relay, telemetry listener, and engine
// supervisor to remote clients over HTTP and a WebSocket duplex channel.
//
// Telemetry delivery is lossy by design: scan envelopes are pushed to every
// connected client, and a client whose send queue is full simply misses that
// sample. Command traffic flows the other way through the same validation
// the relay applies locally.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grainbridge/internal/config"
	"grainbridge/internal/logging"
	"grainbridge/internal/oscmsg"
	"grainbridge/internal/relay"
	"grainbridge/internal/supervisor"
	"grainbridge/internal/telemetry"
)

// EngineController is the supervisor surface the gateway drives.
type EngineController interface {
	Start(ctx context.Context) (supervisor.Status, error)
	Stop(ctx context.Context, reason string) (supervisor.Status, error)
	Restart(ctx context.Context) (supervisor.Status, error)
	Status() supervisor.Status
	Logs(limit int) []logging.LogEvent
}

// CommandSender is the relay surface exposed to clients.
type CommandSender interface {
	Send(req oscmsg.CommandRequest) (relay.Result, error)
	SendChannel(channel int, value float64) (relay.Result, error)
	SendBatch(reqs []oscmsg.CommandRequest) relay.BatchResult
	Ready() bool
	Stats() relay.Stats
}

// TelemetrySource is the listener surface exposed to clients.
type TelemetrySource interface {
	Ready() bool
	LatestHello() (oscmsg.HelloSample, bool)
	RecentScans(limit int) []oscmsg.ScanSample
	Stats() telemetry.Stats
	Subscribe() (<-chan telemetry.Event, func())
}

// Option configures the gateway server.
type Option func(*Server)

// WithRegistry sets the prometheus registry the gateway registers its own
// metrics on and serves at /metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

// Server is the HTTP and WebSocket front door of the daemon.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	engine   EngineController
	sender   CommandSender
	source   TelemetrySource
	registry *prometheus.Registry
	metrics  *metrics

	upgrader   websocket.Upgrader
	httpServer *http.Server
	tcp        net.Listener

	clientsMu sync.RWMutex
	clients   map[string]*client

	mu          sync.Mutex
	running     bool
	startedAt   time.Time
	shutdown    chan struct{}
	unsubscribe func()
	done        chan struct{}
}

// New builds a gateway server. Nothing listens until Start.
func New(cfg *config.Config, logger *slog.Logger, engine EngineController, sender CommandSender, source TelemetrySource, opts ...Option) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "gateway"),
		engine:  engine,
		sender:  sender,
		source:  source,
		clients: make(map[string]*client),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	s.metrics = newMetrics(s.registry)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Start binds the configured address and begins serving. The server stops
// when ctx is cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	tcp, err := net.Listen("tcp", s.cfg.Gateway.Bind)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.tcp = tcp
	s.httpServer = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.shutdown = make(chan struct{})
	s.done = make(chan struct{})
	s.startedAt = time.Now()
	s.running = true

	go func() {
		if err := s.httpServer.Serve(tcp); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("gateway server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	events, cancel := s.source.Subscribe()
	s.unsubscribe = cancel
	go s.broadcastLoop(events, s.done)

	s.logger.Info("gateway listening",
		logging.String("address", tcp.Addr().String()),
		logging.Bool("auth", strings.TrimSpace(s.cfg.Gateway.Token) != ""))
	return nil
}

// Stop closes the listener, disconnects every client, and waits for the
// broadcast loop to drain. Idempotent.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.shutdown)
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	server := s.httpServer
	done := s.done
	s.mu.Unlock()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}

	s.clientsMu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.Unlock()
	for _, c := range clients {
		s.removeClient(c)
	}

	<-done
	s.logger.Info("gateway stopped")
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tcp == nil {
		return nil
	}
	return s.tcp.Addr()
}

// ClientCount reports connected duplex clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Server) routes() http.Handler {
	token := strings.TrimSpace(s.cfg.Gateway.Token)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", authMiddleware(token, s.handleHealth))
	mux.HandleFunc("/api/config", authMiddleware(token, s.handleConfig))
	mux.HandleFunc("/api/channel", authMiddleware(token, s.handleChannel))
	mux.HandleFunc("/api/channels", authMiddleware(token, s.handleChannels))
	mux.HandleFunc("/api/osc", authMiddleware(token, s.handleOSC))
	mux.HandleFunc("/api/osc/batch", authMiddleware(token, s.handleOSCBatch))
	mux.HandleFunc("/api/engine", authMiddleware(token, s.handleEngineStatus))
	mux.HandleFunc("/api/engine/start", authMiddleware(token, s.handleEngineStart))
	mux.HandleFunc("/api/engine/stop", authMiddleware(token, s.handleEngineStop))
	mux.HandleFunc("/api/engine/restart", authMiddleware(token, s.handleEngineRestart))
	mux.HandleFunc("/api/engine/logs", authMiddleware(token, s.handleEngineLogs))
	mux.HandleFunc("/api/telemetry", authMiddleware(token, s.handleTelemetry))
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// checkOrigin admits same-origin requests, anything when no allowlist is
// configured, and otherwise only listed origins ("*" wildcards).
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	allowed := s.cfg.Gateway.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, entry := range allowed {
		entry = strings.TrimSpace(entry)
		if entry == "*" || strings.EqualFold(entry, origin) || strings.EqualFold(entry, parsed.Host) {
			return true
		}
	}
	return false
}

// handleWebSocket upgrades the connection and runs the duplex channel.
// Browsers cannot set Authorization headers on WebSocket dials, so the
// bearer token is also accepted as a "token" query parameter here.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(s.cfg.Gateway.Token)
	if token != "" && !wsAuthorized(r, token) {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", logging.Error(err))
		return
	}

	buffer := s.cfg.Gateway.ClientSendBuffer
	if buffer <= 0 {
		buffer = 32
	}
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}

	s.clientsMu.Lock()
	s.clients[c.id] = c
	count := len(s.clients)
	s.clientsMu.Unlock()
	s.metrics.connections.Inc()
	s.metrics.clientsConnected.Set(float64(count))
	s.logger.Info("client connected",
		logging.String(logging.FieldClientID, c.id),
		logging.String("remote", conn.RemoteAddr().String()),
		logging.Int("clients", count))

	s.greet(c)
	go s.writePump(c)
	s.readPump(c)
}

func wsAuthorized(r *http.Request, token string) bool {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == token {
		return true
	}
	return r.URL.Query().Get("token") == token
}

// greet queues the bridge:hello envelope a client sees first.
func (s *Server) greet(c *client) {
	hello := helloPayload{
		ClientID:       c.id,
		ServerTime:     time.Now().UTC(),
		EngineState:    string(s.engine.Status().State),
		RelayReady:     s.sender.Ready(),
		TelemetryReady: s.source.Ready(),
	}
	data, err := marshalEnvelope(TypeBridgeHello, hello)
	if err != nil {
		return
	}
	c.trySend(data)
}

// broadcastLoop forwards telemetry scans to every connected client until
// the subscription or the server shuts down.
func (s *Server) broadcastLoop(events <-chan telemetry.Event, done chan struct{}) {
	defer close(done)
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			if evt.Scan == nil {
				continue
			}
			s.broadcastScan(*evt.Scan)
		case <-s.shutdown:
			return
		}
	}
}

func (s *Server) broadcastScan(sample oscmsg.ScanSample) {
	s.clientsMu.RLock()
	if len(s.clients) == 0 {
		s.clientsMu.RUnlock()
		return
	}
	targets := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		targets = append(targets, c)
	}
	s.clientsMu.RUnlock()

	data, err := marshalEnvelope(TypeTelemetryScan, sample)
	if err != nil {
		return
	}
	for _, c := range targets {
		if c.trySend(data) {
			s.metrics.pushes.Inc()
		} else {
			s.metrics.pushDrops.Inc()
		}
	}
}

// handleClientMessage dispatches one inbound duplex message. Malformed or
// unknown messages earn a bridge:error reply; the connection stays open.
func (s *Server) handleClientMessage(c *client, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.replyError(c, "malformed_envelope", err.Error())
		return
	}

	switch env.Type {
	case TypePing:
		s.reply(c, TypePong, pongPayload{ServerTime: time.Now().UTC()})

	case TypeChannelSet:
		var req channelSet
		if err := decodePayload(env.Payload, &req); err != nil {
			s.replyError(c, "invalid_payload", err.Error())
			return
		}
		result, _ := s.sender.SendChannel(req.Channel, req.Value)
		s.reply(c, TypeBridgeAck, ackPayload{For: env.Type, Result: result})

	case TypeChannelsSet:
		var req channelBatchRequest
		if err := decodePayload(env.Payload, &req); err != nil {
			s.replyError(c, "invalid_payload", err.Error())
			return
		}
		if len(req.Channels) == 0 {
			s.replyError(c, "invalid_payload", "channels list is empty")
			return
		}
		batch := s.sendChannels(req.Channels)
		s.reply(c, TypeBridgeAck, batchAckPayload{
			For:     env.Type,
			Results: batch.Results,
			Sent:    batch.Sent,
			Dropped: batch.Dropped,
			Failed:  batch.Failed,
		})

	case TypeOSCSend:
		var req oscmsg.CommandRequest
		if err := decodePayload(env.Payload, &req); err != nil {
			s.replyError(c, "invalid_payload", err.Error())
			return
		}
		result, err := s.sender.Send(req)
		if isValidationFailure(result, err) {
			s.replyError(c, "validation_failed", err.Error())
			return
		}
		s.reply(c, TypeBridgeAck, ackPayload{For: env.Type, Result: result})

	case TypeOSCBatch:
		var req oscBatchRequest
		if err := decodePayload(env.Payload, &req); err != nil {
			s.replyError(c, "invalid_payload", err.Error())
			return
		}
		if len(req.Requests) == 0 {
			s.replyError(c, "invalid_payload", "requests list is empty")
			return
		}
		batch := s.sender.SendBatch(req.Requests)
		s.reply(c, TypeBridgeAck, batchAckPayload{
			For:     env.Type,
			Results: batch.Results,
			Sent:    batch.Sent,
			Dropped: batch.Dropped,
			Failed:  batch.Failed,
		})

	default:
		s.replyError(c, "unknown_type", fmt.Sprintf("unsupported message type %q", env.Type))
	}
}

// sendChannels resolves a channel batch item by item, mirroring SendBatch
// aggregation for the channel convenience path.
func (s *Server) sendChannels(items []channelSet) relay.BatchResult {
	out := relay.BatchResult{Results: make([]relay.Result, 0, len(items))}
	for _, item := range items {
		res, _ := s.sender.SendChannel(item.Channel, item.Value)
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

// isValidationFailure separates request-shape errors from transport
// conditions. Transport outcomes are acked so the client sees the same
// result a local relay caller would; bad requests are rejected outright.
func isValidationFailure(result relay.Result, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, relay.ErrNotReady) {
		return false
	}
	return result.Error != relay.ErrorTransport
}

func (s *Server) reply(c *client, msgType string, payload any) {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		s.logger.Error("encode reply failed", logging.Error(err), logging.String("type", msgType))
		return
	}
	c.trySend(data)
}

func (s *Server) replyError(c *client, code string, issues ...string) {
	s.metrics.wireErrors.Inc()
	s.reply(c, TypeBridgeError, errorPayload{Error: code, Issues: issues})
}
