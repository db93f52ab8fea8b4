// Package healthgrpc exposes the preview session state through the standard
// gRPC health service on a Unix domain socket.
package healthgrpc

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"pkt.systems/pslog"
	"pkt.systems/streamfx/schema"
)

// ServiceName reports SERVING while a preview session is running.
const ServiceName = "streamfx.preview"

// Config configures the health endpoint.
type Config struct {
	SocketPath string
}

// Server publishes controller state as gRPC health statuses. The overall
// service ("") is SERVING while the server runs.
type Server struct {
	cfg    Config
	health *health.Server
	logger pslog.Logger
}

// NewServer constructs a health server with the preview service NOT_SERVING.
func NewServer(cfg Config) *Server {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Server{cfg: cfg, health: hs}
}

// OnStateEvent implements core.EventSink.
func (s *Server) OnStateEvent(event schema.StateEvent) {
	status := StatusFor(event.Snapshot)
	if event.Type == schema.StateEventClosed {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}

// StatusFor maps a snapshot to the preview service status.
func StatusFor(snap schema.SessionSnapshot) healthpb.HealthCheckResponse_ServingStatus {
	if snap.Closed || snap.State != schema.SessionActive {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	if snap.Task != nil && snap.Task.Completed {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}

// Serve runs the health service on listener until ctx is done.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if s.logger == nil {
		s.logger = pslog.Ctx(ctx)
	}
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, s.health)

	errCh := make(chan error, 1)
	go func() {
		errCh <- grpcServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		grpcServer.GracefulStop()
		s.logger.Info("health grpc stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// ListenAndServe serves over the configured Unix domain socket.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.cfg.SocketPath == "" {
		return errors.New("health socket path is required")
	}
	if s.logger == nil {
		s.logger = pslog.Ctx(ctx)
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), 0o755); err != nil {
		return err
	}
	_ = os.Remove(s.cfg.SocketPath)

	listener, err := listenPrivate(s.cfg.SocketPath)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(s.cfg.SocketPath) }()
	s.logger.Info("health grpc listening", "socket", s.cfg.SocketPath)
	return s.Serve(ctx, listener)
}

var umaskMu sync.Mutex

// listenPrivate creates the socket with mode 0600. The umask is process
// wide, so concurrent listeners serialize on umaskMu.
func listenPrivate(path string) (net.Listener, error) {
	umaskMu.Lock()
	defer umaskMu.Unlock()
	old := unix.Umask(0o177)
	defer unix.Umask(old)
	return net.Listen("unix", path)
}
