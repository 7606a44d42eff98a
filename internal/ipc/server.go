package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"log/slog"

	"grainbridge/internal/daemon"
	"grainbridge/internal/logging"
	"grainbridge/internal/relay"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Grainbridge", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually or rerun grainbridge stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.log().Info("daemon started via IPC",
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = s.daemon.Status()
	return nil
}

func (s *service) EngineStart(_ EngineStartRequest, resp *EngineStartResponse) error {
	s.log().Debug("engine start requested")
	status, err := s.daemon.EngineStart(s.ctx)
	resp.Status = status
	return err
}

func (s *service) EngineStop(req EngineStopRequest, resp *EngineStopResponse) error {
	s.log().Debug("engine stop requested", logging.String("reason", req.Reason))
	status, err := s.daemon.EngineStop(s.ctx, req.Reason)
	resp.Status = status
	return err
}

func (s *service) EngineRestart(_ EngineRestartRequest, resp *EngineRestartResponse) error {
	s.log().Debug("engine restart requested")
	status, err := s.daemon.EngineRestart(s.ctx)
	resp.Status = status
	return err
}

func (s *service) EngineStatus(_ EngineStatusRequest, resp *EngineStatusResponse) error {
	resp.Status = s.daemon.EngineStatus()
	return nil
}

// Send returns relay outcomes in the response; only request validation
// failures surface as RPC errors so callers can tell misuse from a
// transport that is down.
func (s *service) Send(req SendRequest, resp *SendResponse) error {
	result, err := s.daemon.SendCommand(req.Command)
	resp.Result = result
	if err != nil && !errors.Is(err, relay.ErrNotReady) && result.Error != relay.ErrorTransport {
		return err
	}
	return nil
}

func (s *service) SetChannel(req SetChannelRequest, resp *SetChannelResponse) error {
	result, _ := s.daemon.SetChannel(req.Channel, req.Value)
	resp.Result = result
	return nil
}

func (s *service) SetChannels(req SetChannelsRequest, resp *SetChannelsResponse) error {
	if len(req.Values) == 0 {
		return errors.New("set channels requires at least one value")
	}
	resp.Batch = s.daemon.SetChannels(req.Values)
	return nil
}

func (s *service) Capture(req CaptureRequest, resp *CaptureResponse) error {
	window := time.Duration(req.WindowMillis) * time.Millisecond
	timeout := time.Duration(req.TimeoutMillis) * time.Millisecond
	capture, path, err := s.daemon.CaptureTelemetry(s.ctx, window, req.MinSamples, timeout, req.Save)
	if err != nil {
		return err
	}
	resp.Capture = capture
	resp.Path = path
	s.log().Info("telemetry captured via IPC",
		logging.String(logging.FieldEventType, "telemetry_capture"),
		logging.Int("samples", capture.Stats.Count))
	return nil
}

func (s *service) PresetSave(req PresetSaveRequest, resp *PresetSaveResponse) error {
	preset, err := s.daemon.SavePreset(s.ctx, req.Name, req.Channels)
	if err != nil {
		return err
	}
	resp.Preset = preset
	s.log().Info("preset saved via IPC",
		logging.String(logging.FieldEventType, "preset_save"),
		logging.String("preset", preset.Name))
	return nil
}

func (s *service) PresetApply(req PresetApplyRequest, resp *PresetApplyResponse) error {
	outcome, err := s.daemon.ApplyPreset(s.ctx, req.Name)
	if err != nil {
		return err
	}
	resp.Outcome = outcome
	return nil
}

func (s *service) PresetList(_ PresetListRequest, resp *PresetListResponse) error {
	list, err := s.daemon.ListPresets(s.ctx)
	if err != nil {
		return err
	}
	resp.Presets = list
	return nil
}

func (s *service) PresetDelete(req PresetDeleteRequest, resp *PresetDeleteResponse) error {
	if err := s.daemon.DeletePreset(s.ctx, req.Name); err != nil {
		return err
	}
	resp.Deleted = true
	s.log().Info("preset deleted via IPC",
		logging.String(logging.FieldEventType, "preset_delete"),
		logging.String("preset", req.Name))
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait)
		defer cancel()
	}
	events, next, err := s.daemon.FetchLogs(ctx, req.Since, req.Limit, req.Follow)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return err
	}
	resp.Events = events
	resp.Next = next
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
