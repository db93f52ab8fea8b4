package main

import (
	"errors"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/streamfx"
	"pkt.systems/streamfx/httpapi"
	"pkt.systems/streamfx/internal/appconfig"
	"pkt.systems/streamfx/internal/healthgrpc"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var disableHTTP bool
	var disableHealth bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the preview controller with the HTTP UI and gRPC health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := pslog.Ctx(ctx)

			stopProfile, err := startProfile(opts.profile, opts.profilePath)
			if err != nil {
				return err
			}
			defer stopProfile()

			cfg, err := appconfig.Load(opts.configPath)
			if err != nil {
				return err
			}
			if disableHTTP {
				cfg.HTTP.Addr = ""
			}
			if disableHealth {
				cfg.GRPC.SocketPath = ""
			}
			serverCfg, serverOpts, err := serverConfigFrom(cfg)
			if err != nil {
				return err
			}

			srv, err := streamfx.New(ctx, serverCfg, streamfx.ServerDeps{Logger: logger}, serverOpts...)
			if err != nil {
				return err
			}
			if err := srv.Start(ctx); err != nil {
				return err
			}
			logger.Info("serve ready",
				"effect", serverCfg.Controller.Effect,
				"model_dir", serverCfg.Controller.ModelPath,
				"http_addr", serverCfg.HTTP.Addr,
				"health_socket", serverCfg.Health.SocketPath,
			)
			return srv.Wait()
		},
	}
	cmd.Flags().BoolVar(&disableHTTP, "no-http", false, "disable the HTTP UI")
	cmd.Flags().BoolVar(&disableHealth, "no-health", false, "disable the gRPC health endpoint")
	return cmd
}

func serverConfigFrom(cfg appconfig.Config) (streamfx.ServerConfig, []streamfx.ServerOption, error) {
	serverCfg := streamfx.ServerConfig{
		Controller: cfg.ControllerConfig(),
		HTTP: httpapi.Config{
			Addr:            cfg.HTTP.Addr,
			BasePath:        cfg.HTTP.BasePath,
			ShutdownTimeout: cfg.HTTP.ShutdownTimeout(),
		},
		Health:     healthgrpc.Config{SocketPath: cfg.GRPC.SocketPath},
		MaxWindows: cfg.Preview.MaxWindows,
	}
	var opts []streamfx.ServerOption
	if cfg.HTTP.Addr != "" {
		opts = append(opts, streamfx.WithHTTP())
	}
	if cfg.GRPC.SocketPath != "" {
		opts = append(opts, streamfx.WithHealth())
	}
	if len(opts) == 0 {
		return streamfx.ServerConfig{}, nil, errors.New("serve needs http.addr or grpc.socket_path")
	}
	return serverCfg, opts, nil
}
