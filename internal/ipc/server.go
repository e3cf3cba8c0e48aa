package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"time"

	"log/slog"

	"dumpwatch/internal/daemon"
	"dumpwatch/internal/logging"
	"dumpwatch/internal/watch"
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
	done   chan struct{}
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
	if err := os.Chmod(path, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logging.NewComponentLogger(logger, "ipc"), ctx: serverCtx}
	if err := rpcServer.RegisterName(serviceName, srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	go func() {
		defer close(s.done)
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
				time.Sleep(50 * time.Millisecond)
				continue
			}
			go func(c net.Conn) {
				stop := context.AfterFunc(s.ctx, func() { c.Close() })
				defer stop()
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
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
	}
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

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.logger.Debug("watch start requested")
	if err := s.daemon.Start(); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "watch started"
	s.logger.Info("watch started via IPC", logging.String(logging.FieldEventType, "watch_start_requested"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Debug("watch stop requested")
	resp.WasRunning = s.daemon.Stop()
	resp.Stopped = true
	s.logger.Info("watch stopped via IPC",
		logging.Bool("was_running", resp.WasRunning),
		logging.String(logging.FieldEventType, "watch_stop_requested"),
	)
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	w := status.Watch
	*resp = StatusResponse{
		Running:             status.Running,
		State:               w.State.String(),
		WatchDir:            w.WatchDir,
		ArchiveDir:          w.ArchiveDir,
		PollIntervalSeconds: int64(w.PollInterval / time.Second),
		Recipients:          w.Recipients,
		Transport:           status.Transport,
		LastCycleID:         w.LastCycleID,
		LastCycleAt:         formatTime(w.LastCycleAt),
		LastFound:           w.LastFound,
		LastError:           w.LastError,
		Cycles:              w.Cycles,
		NotificationsSent:   w.NotificationsSent,
		NotificationsFailed: w.NotificationsFailed,
		Archived:            w.Archived,
		ArchiveFailures:     w.ArchiveFailures,
		DispatchInFlight:    w.DispatchInFlight,
		DroppedEvents:       w.DroppedEvents,
		DedupEntries:        status.DedupEntries,
		DedupDBPath:         status.DedupDBPath,
		ConfigPath:          status.ConfigPath,
		LockPath:            status.LockPath,
		LogPath:             status.LogPath,
		PID:                 status.PID,
	}
	resp.Recent = make([]ActivityEvent, 0, len(status.Recent))
	for _, ev := range status.Recent {
		resp.Recent = append(resp.Recent, convertEvent(ev))
	}
	return nil
}

func (s *service) Check(_ CheckRequest, resp *CheckResponse) error {
	s.logger.Debug("manual check requested")
	result := s.daemon.Check(s.ctx)
	*resp = CheckResponse{
		Triggered: result.Triggered,
		Ran:       result.Ran,
		CycleID:   result.CycleID,
		Found:     result.Found,
		Notified:  result.Notified,
		Archived:  result.Archived,
		Error:     result.Error,
	}
	return nil
}

func (s *service) Reload(_ ReloadRequest, resp *ReloadResponse) error {
	cfg, err := s.daemon.Reload()
	if err != nil {
		return err
	}
	resp.ConfigPath = s.daemon.Status(s.ctx).ConfigPath
	resp.Transport = cfg.Notifications.Transport
	resp.Recipients = len(cfg.Notifications.Recipients)
	resp.PollIntervalSeconds = cfg.Watch.PollInterval
	return nil
}

func (s *service) DedupList(_ DedupListRequest, resp *DedupListResponse) error {
	entries, err := s.daemon.DedupList(s.ctx)
	if err != nil {
		return err
	}
	resp.Entries = make([]DedupEntry, 0, len(entries))
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, DedupEntry{Name: entry.Name, RecordedAt: formatTime(entry.RecordedAt)})
	}
	return nil
}

func (s *service) DedupForget(req DedupForgetRequest, resp *DedupForgetResponse) error {
	removed, err := s.daemon.DedupForget(s.ctx, req.Name)
	if err != nil {
		return err
	}
	resp.Removed = removed
	return nil
}

func (s *service) DedupClear(_ DedupClearRequest, resp *DedupClearResponse) error {
	s.logger.Debug("dedup clear requested")
	removed, err := s.daemon.DedupClear(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}

func convertEvent(ev watch.Event) ActivityEvent {
	return ActivityEvent{
		Type:    string(ev.Type),
		Time:    formatTime(ev.Time),
		CycleID: ev.CycleID,
		Names:   ev.Names,
		Name:    ev.Name,
		Kind:    string(ev.Kind),
		Detail:  ev.Detail,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
