package hulybridge

import (
	"context"
	"fmt"
	"os"
	"time"

	"pkt.systems/hulybridge/client"
	"pkt.systems/hulybridge/internal/svcfields"
	"pkt.systems/hulybridge/internal/version"
	"pkt.systems/hulybridge/mcp"
	"pkt.systems/pslog"
)

// NewClient builds a platform client from cfg. cfg must have been validated.
func NewClient(cfg Config, logger pslog.Logger, opts ...client.Option) (*client.Client, error) {
	base := []client.Option{
		client.WithLogger(logger),
		client.WithHTTPTimeout(cfg.HTTPTimeout),
		client.WithBlobThreshold(cfg.BlobThreshold),
		client.WithSocketWrites(!cfg.DisableSocketWrites),
		client.WithSocketOptions(client.SocketOptions{
			HelloTimeout: cfg.HelloTimeout,
			TxTimeout:    cfg.TxTimeout,
		}),
	}
	return client.New(cfg.ClientConfig(), append(base, opts...)...)
}

// Run validates cfg, starts telemetry, connects the platform client and
// serves MCP until ctx is cancelled.
func Run(ctx context.Context, cfg Config, logger pslog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	lifecycle := svcfields.WithSubsystem(logger, "server.lifecycle")
	lifecycle.Info("hulybridge.start",
		"version", version.Current(),
		"pid", os.Getpid(),
		"base_url", cfg.BaseURL,
		"workspace", cfg.Workspace,
		"transport", cfg.MCPTransport,
		"read_only", cfg.ReadOnly,
	)

	telemetry, err := setupTelemetry(ctx, cfg, svcfields.WithSubsystem(logger, svcfields.Telemetry))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			lifecycle.Warn("hulybridge.telemetry.shutdown_failed", "error", err)
		}
	}()

	var clientOpts []client.Option
	if mp := telemetry.MeterProvider(); mp != nil {
		clientOpts = append(clientOpts, client.WithMeterProvider(mp))
	}
	cli, err := NewClient(cfg, logger, clientOpts...)
	if err != nil {
		return fmt.Errorf("platform client: %w", err)
	}
	defer func() {
		if err := cli.Close(); err != nil {
			lifecycle.Warn("hulybridge.client.close_failed", "error", err)
		}
	}()

	srv, err := mcp.NewServer(mcp.NewServerRequest{
		Config:   cfg.MCPConfig(),
		Platform: cli,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	start := time.Now()
	err = srv.Run(ctx)
	lifecycle.Info("hulybridge.stopped", "uptime", time.Since(start).Round(time.Millisecond).String(), "error", err)
	return err
}
