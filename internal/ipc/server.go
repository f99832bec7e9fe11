package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"

	"nftpin/internal/daemon"
	"nftpin/internal/logging"
	"nftpin/internal/pinning"
	"nftpin/internal/pinstore"
)

// ServiceName is the RPC receiver name shared by server and client.
const ServiceName = "NFTPin"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
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
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(ServiceName, &service{daemon: d, logger: logger, ctx: ctx}); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
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
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"),
				)
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
			logging.String(logging.FieldErrorHint, "remove the socket file manually"),
		)
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.StorePath = status.StorePath
	resp.LockPath = status.LockFilePath
	resp.AutoPinEnabled = status.AutoPin.Enabled
	resp.KnownTokens = len(status.AutoPin.KnownTokens)
	resp.PendingRetries = status.AutoPin.PendingRetries
	resp.Restoring = status.AutoPin.Restoring
	if status.AutoPin.Current != nil {
		resp.Current = status.AutoPin.Current.String()
	}
	resp.Queue = make([]string, 0, len(status.AutoPin.Queue))
	for _, intent := range status.AutoPin.Queue {
		resp.Queue = append(resp.Queue, intent.String())
	}
	resp.StatusCounts = make(map[string]int, len(status.StatusCounts))
	for k, v := range status.StatusCounts {
		resp.StatusCounts[string(k)] = v
	}
	resp.Preflight = make([]CheckResult, 0, len(status.Preflight))
	for _, check := range status.Preflight {
		resp.Preflight = append(resp.Preflight, CheckResult{Name: check.Name, Passed: check.Passed, Detail: check.Detail})
	}
	return nil
}

func (s *service) List(req ListRequest, resp *ListResponse) error {
	statuses := make([]pinstore.PinStatus, 0, len(req.Statuses))
	for _, token := range req.Statuses {
		status, err := ParseStatus(token)
		if err != nil {
			return err
		}
		statuses = append(statuses, status)
	}
	entries, err := s.daemon.List(s.ctx, statuses)
	if err != nil {
		return err
	}
	resp.Records = make([]Record, 0, len(entries))
	for _, entry := range entries {
		resp.Records = append(resp.Records, RecordFromEntry(entry))
	}
	return nil
}

func (s *service) SetAutoPin(req SetAutoPinRequest, resp *SetAutoPinResponse) error {
	s.logger.Debug("auto-pin change requested", logging.Bool("enabled", req.Enabled))
	if err := s.daemon.SetAutoPin(s.ctx, req.Enabled); err != nil {
		return err
	}
	enabled, err := s.daemon.AutoPinEnabled(s.ctx)
	if err != nil {
		return err
	}
	resp.Enabled = enabled
	s.logger.Info("auto-pin changed via IPC",
		logging.String(logging.FieldEventType, "autopin_set"),
		logging.Bool("enabled", enabled))
	return nil
}

func (s *service) AutoPinStatus(_ SetAutoPinRequest, resp *SetAutoPinResponse) error {
	enabled, err := s.daemon.AutoPinEnabled(s.ctx)
	if err != nil {
		return err
	}
	resp.Enabled = enabled
	return nil
}

func (s *service) Restore(_ RestoreRequest, _ *RestoreResponse) error {
	s.logger.Info("restore requested via IPC", logging.String(logging.FieldEventType, "restore_requested"))
	return s.daemon.Restore(s.ctx)
}

func (s *service) Reset(_ ResetRequest, resp *ResetResponse) error {
	s.logger.Info("reset requested via IPC", logging.String(logging.FieldEventType, "reset_requested"))
	if err := s.daemon.Reset(s.ctx); err != nil {
		return err
	}
	resp.Message = "auto-pin disabled and all pins removed"
	return nil
}

func (s *service) Pin(req TokenRequest, resp *OperationResponse) error {
	token := req.Token.Key()
	res, err := s.daemon.Pin(s.ctx, token)
	if err != nil {
		return err
	}
	s.fillOperation(resp, token, res)
	return nil
}

func (s *service) Unpin(req TokenRequest, resp *OperationResponse) error {
	token := req.Token.Key()
	res, err := s.daemon.Unpin(s.ctx, token)
	if err != nil {
		return err
	}
	s.fillOperation(resp, token, res)
	return nil
}

func (s *service) Validate(req TokenRequest, resp *OperationResponse) error {
	token := req.Token.Key()
	res, outcome, err := s.daemon.Validate(s.ctx, token)
	if err != nil {
		return err
	}
	s.fillOperation(resp, token, res)
	resp.Outcome = outcome.String()
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}

func (s *service) fillOperation(resp *OperationResponse, token pinstore.TokenKey, res pinning.Result) {
	resp.Success = res.Success
	if res.Err != nil {
		resp.ErrorCode = string(res.Err.Code)
		resp.ErrorMessage = res.Err.Message
	}
	entries, err := s.daemon.List(s.ctx, nil)
	if err != nil {
		return
	}
	path, err := pinstore.EncodePath("", token)
	if err != nil {
		return
	}
	resp.Record = Record{Path: path, Service: pinstore.LocalService, Token: TokenFromKey(token), Status: string(pinstore.StatusNotPinned)}
	for _, entry := range entries {
		if entry.Path == path {
			resp.Record = RecordFromEntry(entry)
			return
		}
	}
}

// ParseStatus accepts a status name or its stored token, case-insensitively.
func ParseStatus(value string) (pinstore.PinStatus, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, status := range pinstore.AllStatuses() {
		if string(status) == value {
			return status, nil
		}
	}
	return pinstore.ParseStatus(value)
}
