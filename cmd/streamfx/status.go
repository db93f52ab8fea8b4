package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"pkt.systems/streamfx/internal/appconfig"
	"pkt.systems/streamfx/internal/healthgrpc"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var socketPath string
	var watch bool
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query the preview health endpoint of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if socketPath == "" {
				cfg, err := appconfig.Load(opts.configPath)
				if err != nil {
					return err
				}
				socketPath = cfg.GRPC.SocketPath
			}
			if socketPath == "" {
				return errors.New("health socket path is not configured")
			}
			client, err := healthgrpc.Dial(ctx, socketPath)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			server, err := client.Check(checkCtx, "")
			if err != nil {
				return fmt.Errorf("health check %s: %w", socketPath, err)
			}
			preview, err := client.Check(checkCtx, healthgrpc.ServiceName)
			if err != nil {
				return fmt.Errorf("health check %s: %w", healthgrpc.ServiceName, err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "server  %s\n", server)
			fmt.Fprintf(out, "preview %s\n", previewLabel(preview))
			if !watch {
				return nil
			}
			return client.Watch(ctx, healthgrpc.ServiceName, func(status healthpb.HealthCheckResponse_ServingStatus) bool {
				fmt.Fprintf(out, "%s preview %s\n", time.Now().Format(time.RFC3339), previewLabel(status))
				return true
			})
		},
	}
	cmd.Flags().StringVar(&socketPath, "socket", "", "health socket path (default: grpc.socket_path from config)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "stream preview status changes")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "timeout for the initial check")
	return cmd
}

// previewLabel maps the preview service status onto session state names.
func previewLabel(status healthpb.HealthCheckResponse_ServingStatus) string {
	switch status {
	case healthpb.HealthCheckResponse_SERVING:
		return "active"
	case healthpb.HealthCheckResponse_NOT_SERVING:
		return "idle"
	case healthpb.HealthCheckResponse_SERVICE_UNKNOWN:
		return "unknown-service"
	default:
		return "unknown"
	}
}
