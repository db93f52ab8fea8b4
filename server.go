package streamfx

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"pkt.systems/pslog"
	"pkt.systems/streamfx/core"
	"pkt.systems/streamfx/httpapi"
	"pkt.systems/streamfx/internal/healthgrpc"
	"pkt.systems/streamfx/schema"
)

// Server composes the session controller with its HTTP and gRPC health bindings.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
	Runtime() *Runtime
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Controller schema.ControllerConfig
	HTTP       httpapi.Config
	Health     healthgrpc.Config
	MaxWindows int
}

// ServerDeps captures optional collaborator overrides.
type ServerDeps struct {
	Windows    core.WindowFactory
	Inferencer core.Inferencer
	Logger     pslog.Logger
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enableHTTP   bool
	enableHealth bool
}

// WithHTTP enables the HTTP API and preview page.
func WithHTTP() ServerOption {
	return func(o *serverOptions) { o.enableHTTP = true }
}

// WithHealth enables the gRPC health endpoint.
func WithHealth() ServerOption {
	return func(o *serverOptions) { o.enableHealth = true }
}

// New constructs a composable streamfx server. The controller is created
// immediately; listeners start with Start.
func New(ctx context.Context, cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if !options.enableHTTP && !options.enableHealth {
		return nil, errors.New("no services enabled")
	}
	if options.enableHTTP && cfg.HTTP.Addr == "" {
		return nil, errors.New("http address is required")
	}
	if options.enableHealth && cfg.Health.SocketPath == "" {
		return nil, errors.New("health socket path is required")
	}

	var health *healthgrpc.Server
	if options.enableHealth {
		health = healthgrpc.NewServer(cfg.Health)
	}
	var sink core.EventSink
	if health != nil {
		sink = health
	}
	rt, err := NewRuntime(ctx, cfg.Controller, RuntimeDeps{
		Windows:    deps.Windows,
		Inferencer: deps.Inferencer,
		EventSink:  sink,
		Logger:     deps.Logger,
		MaxWindows: cfg.MaxWindows,
	})
	if err != nil {
		return nil, err
	}

	var httpSrv *httpapi.Server
	if options.enableHTTP {
		httpSrv = httpapi.NewServer(cfg.HTTP, rt.Controller, rt.Events, rt.History, rt.Frames())
	}
	return &compositeServer{
		cfg:     cfg,
		options: options,
		rt:      rt,
		httpSrv: httpSrv,
		health:  health,
	}, nil
}

type compositeServer struct {
	cfg     ServerConfig
	options serverOptions
	rt      *Runtime
	httpSrv *httpapi.Server
	health  *healthgrpc.Server
	logger  pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	done    chan struct{}
	err     error
	started bool
	stopped bool
}

func (s *compositeServer) Runtime() *Runtime {
	return s.rt
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	s.ctx, s.cancel = groupCtx, cancel
	s.group = group
	s.done = make(chan struct{})
	s.started = true
	s.logger = pslog.Ctx(groupCtx)
	s.mu.Unlock()

	log := s.logger
	log.Info(
		"server start",
		"http", s.options.enableHTTP,
		"health", s.options.enableHealth,
		"http_addr", s.cfg.HTTP.Addr,
		"http_base_path", s.cfg.HTTP.BasePath,
		"health_socket", s.cfg.Health.SocketPath,
	)
	if s.httpSrv != nil {
		group.Go(func() error {
			if err := httpapi.ListenAndServe(groupCtx, s.cfg.HTTP.Addr, s.httpSrv.Handler(), s.httpSrv.Config().ShutdownTimeout); err != nil {
				log.Error("http server failed", "err", err)
				return err
			}
			return nil
		})
	}
	if s.health != nil {
		group.Go(func() error {
			if err := s.health.ListenAndServe(groupCtx); err != nil {
				log.Error("health server failed", "err", err)
				return err
			}
			return nil
		})
	}
	go func() {
		err := group.Wait()
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	}()
	return nil
}

// Wait blocks until every listener has exited, then releases the controller.
func (s *compositeServer) Wait() error {
	s.mu.Lock()
	done := s.done
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}
	<-done
	s.mu.Lock()
	err := s.err
	s.mu.Unlock()
	if err != nil {
		pslog.Ctx(s.ctx).Error("server stopped", "err", err)
	}
	if stopErr := s.Stop(context.Background()); stopErr != nil && err == nil {
		err = stopErr
	}
	return err
}

func (s *compositeServer) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	cancel := s.cancel
	done := s.done
	log := s.logger
	s.mu.Unlock()
	if log == nil {
		log = pslog.Ctx(ctx)
	}
	log.Info("server stop requested")
	if err := s.rt.Close(ctx); err != nil {
		log.Warn("server runtime close failed", "err", err)
	}
	if cancel != nil {
		cancel()
	}
	if done == nil {
		log.Info("server stopped")
		return nil
	}
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-done:
		log.Info("server stopped")
		return nil
	}
}
