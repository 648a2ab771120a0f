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

	"log/slog"

	"proctor/internal/daemon"
	"proctor/internal/logging"
	"proctor/internal/signal"
	"proctor/internal/violation"
)

// ServiceName is the JSON-RPC service the daemon registers.
const ServiceName = "Proctor"

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
	srv := &service{daemon: d, logger: logging.NewComponentLogger(logger, "ipc"), ctx: ctx}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
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
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
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
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.logger.Debug("monitoring start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "monitoring started"
	s.logger.Info("monitoring started via IPC",
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Debug("monitoring stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.logger.Info("monitoring stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.SessionID = status.SessionID
	resp.Signals = status.Signals
	resp.Noise = status.Noise
	resp.Evaluations = status.Evaluations
	resp.LogEntries = status.LogEntries
	resp.PendingRequests = status.PendingRequests
	resp.ReloadLatched = status.ReloadLatched
	resp.LockPath = status.LockFilePath
	resp.DatabasePath = status.DatabasePath
	resp.PID = os.Getpid()
	if active := status.Active; active != nil {
		resp.Active = &ActiveViolation{
			Kind:        active.Kind.String(),
			Since:       active.Since,
			Seq:         active.Seq,
			PromptOpen:  active.PromptOpen,
			Message:     active.Message,
			Prompt:      active.Prompt,
			ButtonLabel: active.ButtonLabel,
			Action:      string(active.Action),
		}
	}
	return nil
}

func (s *service) Violations(_ ViolationsRequest, resp *ViolationsResponse) error {
	resp.Entries = s.daemon.Violations(s.ctx)
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	entries, err := s.daemon.History(s.ctx, req.SessionID)
	if err != nil {
		return err
	}
	resp.Entries = entries
	return nil
}

func (s *service) Sessions(_ SessionsRequest, resp *SessionsResponse) error {
	sessions, err := s.daemon.Sessions(s.ctx)
	if err != nil {
		return err
	}
	resp.Sessions = sessions
	return nil
}

func (s *service) ReportSignal(req ReportSignalRequest, resp *ReportSignalResponse) error {
	id, err := signal.Parse(req.Signal)
	if err != nil {
		return err
	}
	value, err := signal.ParseTriState(req.Value)
	if err != nil {
		return err
	}
	if err := s.daemon.ReportSignal(s.ctx, id, value); err != nil {
		return err
	}
	resp.Accepted = true
	return nil
}

func (s *service) ReportCapture(req ReportCaptureRequest, resp *ReportCaptureResponse) error {
	if err := s.daemon.ReportCapture(s.ctx, req.Shared, req.Surface); err != nil {
		return err
	}
	resp.Accepted = true
	return nil
}

func (s *service) ReportCaptureEnded(_ ReportCaptureEndedRequest, resp *ReportCaptureResponse) error {
	if err := s.daemon.ReportCaptureEnded(s.ctx); err != nil {
		return err
	}
	resp.Accepted = true
	return nil
}

func (s *service) ReportAudioFrame(req ReportAudioFrameRequest, resp *ReportAudioFrameResponse) error {
	if err := s.daemon.ReportAudioFrame(s.ctx, req.Bins); err != nil {
		return err
	}
	resp.Accepted = true
	return nil
}

func (s *service) Acknowledge(req AcknowledgeRequest, resp *AcknowledgeResponse) error {
	kind, err := violation.ParseKind(req.Kind)
	if err != nil {
		return err
	}
	result, err := s.daemon.Acknowledge(s.ctx, kind, req.Seq)
	resp.Kind = result.Kind.String()
	resp.Action = string(result.Action)
	resp.Seq = result.Seq
	resp.Stale = result.Stale
	resp.Deduplicated = result.Deduplicated
	if err != nil {
		return err
	}
	s.logger.Debug("acknowledgement handled",
		logging.String(logging.FieldViolationKind, resp.Kind),
		logging.Bool("stale", resp.Stale),
	)
	return nil
}

func (s *service) Requests(req RequestsRequest, resp *RequestsResponse) error {
	resp.Requests = s.daemon.PendingRequests(s.ctx, req.Drain)
	if resp.Requests == nil {
		resp.Requests = []Request{}
	}
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	if err != nil {
		return err
	}
	resp.Sent = sent
	resp.Message = message
	return nil
}
