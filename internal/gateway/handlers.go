package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"grainbridge/internal/logging"
	"grainbridge/internal/oscmsg"
	"grainbridge/internal/relay"
	"grainbridge/internal/supervisor"
	"grainbridge/internal/telemetry"
)

// authMiddleware validates bearer tokens. An empty token disables
// authentication and all requests pass through.
func authMiddleware(token string, next http.HandlerFunc) http.HandlerFunc {
	if token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		if strings.TrimPrefix(auth, "Bearer ") != token {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

type healthResponse struct {
	Status         string            `json:"status"`
	UptimeSeconds  float64           `json:"uptime_seconds"`
	RelayReady     bool              `json:"relay_ready"`
	TelemetryReady bool              `json:"telemetry_ready"`
	Clients        int               `json:"clients"`
	Engine         supervisor.Status `json:"engine"`
	Relay          relay.Stats       `json:"relay"`
	Telemetry      telemetry.Stats   `json:"telemetry"`
}

type configResponse struct {
	CommandHost          string `json:"command_host"`
	CommandPort          int    `json:"command_port"`
	TelemetryHost        string `json:"telemetry_host"`
	TelemetryPort        int    `json:"telemetry_port"`
	ChannelPrefix        string `json:"channel_prefix"`
	ChannelCount         int    `json:"channel_count"`
	MaxMessagesPerSecond int    `json:"max_messages_per_second"`
	EngineBinary         string `json:"engine_binary"`
	Autostart            bool   `json:"autostart"`
	GatewayBind          string `json:"gateway_bind"`
	AuthRequired         bool   `json:"auth_required"`
}

type logsResponse struct {
	Events []logging.LogEvent `json:"events"`
}

type telemetryResponse struct {
	Hello *oscmsg.HelloSample `json:"hello,omitempty"`
	Stats telemetry.Stats     `json:"stats"`
	Scans []oscmsg.ScanSample `json:"scans,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	relayReady := s.sender.Ready()
	telemetryReady := s.source.Ready()
	status := "ok"
	if !relayReady || !telemetryReady {
		status = "degraded"
	}
	s.mu.Lock()
	startedAt := s.startedAt
	s.mu.Unlock()
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:         status,
		UptimeSeconds:  time.Since(startedAt).Seconds(),
		RelayReady:     relayReady,
		TelemetryReady: telemetryReady,
		Clients:        s.ClientCount(),
		Engine:         s.engine.Status(),
		Relay:          s.sender.Stats(),
		Telemetry:      s.source.Stats(),
	})
}

// handleConfig returns the client-relevant configuration. The bearer token
// never appears here, only whether one is required.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	cfg := s.cfg
	s.writeJSON(w, http.StatusOK, configResponse{
		CommandHost:          cfg.OSC.CommandHost,
		CommandPort:          cfg.OSC.CommandPort,
		TelemetryHost:        cfg.OSC.TelemetryHost,
		TelemetryPort:        cfg.OSC.TelemetryPort,
		ChannelPrefix:        cfg.OSC.ChannelPrefix,
		ChannelCount:         cfg.OSC.ChannelCount,
		MaxMessagesPerSecond: cfg.OSC.MaxMessagesPerSecond,
		EngineBinary:         cfg.Engine.Binary,
		Autostart:            cfg.Engine.Autostart,
		GatewayBind:          cfg.Gateway.Bind,
		AuthRequired:         strings.TrimSpace(cfg.Gateway.Token) != "",
	})
}

func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req channelSet
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.sender.SendChannel(req.Channel, req.Value)
	s.writeRelayResult(w, result, err)
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req channelBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Channels) == 0 {
		s.writeError(w, http.StatusBadRequest, "channels list is empty")
		return
	}
	s.writeJSON(w, http.StatusOK, s.sendChannels(req.Channels))
}

func (s *Server) handleOSC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req oscmsg.CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.sender.Send(req)
	if isValidationFailure(result, err) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeRelayResult(w, result, err)
}

func (s *Server) handleOSCBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req oscBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Requests) == 0 {
		s.writeError(w, http.StatusBadRequest, "requests list is empty")
		return
	}
	s.writeJSON(w, http.StatusOK, s.sender.SendBatch(req.Requests))
}

func (s *Server) handleEngineStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleEngineStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status, err := s.engine.Start(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleEngineStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status, err := s.engine.Stop(r.Context(), "api request")
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleEngineRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status, err := s.engine.Restart(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleEngineLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 200
	}
	s.writeJSON(w, http.StatusOK, logsResponse{Events: s.engine.Logs(limit)})
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp := telemetryResponse{Stats: s.source.Stats()}
	if hello, ok := s.source.LatestHello(); ok {
		resp.Hello = &hello
	}
	if scans, _ := strconv.Atoi(r.URL.Query().Get("scans")); scans > 0 {
		resp.Scans = s.source.RecentScans(scans)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// writeRelayResult maps a send outcome onto an HTTP status. Rate-limit
// drops are a normal outcome and stay 200; transport conditions surface as
// gateway-level errors with the result still in the body.
func (s *Server) writeRelayResult(w http.ResponseWriter, result relay.Result, err error) {
	status := http.StatusOK
	switch {
	case errors.Is(err, relay.ErrNotReady):
		status = http.StatusServiceUnavailable
	case result.Error == relay.ErrorTransport:
		status = http.StatusBadGateway
	case err != nil:
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, status, result)
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, supervisor.ErrStopInProgress) {
		status = http.StatusConflict
	}
	s.writeError(w, status, err.Error())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
