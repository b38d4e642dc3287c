package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/cadasto/openehr-assistant-mcp/internal/ckm"
	"github.com/cadasto/openehr-assistant-mcp/internal/config"
	"github.com/cadasto/openehr-assistant-mcp/internal/guides"
	httpserver "github.com/cadasto/openehr-assistant-mcp/internal/http"
	"github.com/cadasto/openehr-assistant-mcp/internal/logging"
	"github.com/cadasto/openehr-assistant-mcp/internal/mcp"
	"github.com/cadasto/openehr-assistant-mcp/internal/prompts"
	"github.com/cadasto/openehr-assistant-mcp/internal/telemetry"
	"github.com/cadasto/openehr-assistant-mcp/internal/terminology"
	"github.com/cadasto/openehr-assistant-mcp/internal/typespec"
	"github.com/cadasto/openehr-assistant-mcp/resources"
)

const ckmTracerName = "github.com/cadasto/openehr-assistant-mcp/internal/ckm"

// run starts the server and blocks until ctx is cancelled.
//
// Startup order:
//  1. Loads and validates configuration
//  2. Initializes telemetry and logger
//  3. Creates the CKM client and the resource stores
//  4. Wires the MCP server
//  5. Serves stdio or HTTP until shutdown
func run(ctx context.Context, opts *serveOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	var degraded []error
	tel, err := telemetry.New(ctx, telemetryConfig(cfg), telemetry.WithDegradedHandler(func(err error) {
		degraded = append(degraded, err)
	}))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		_ = tel.Shutdown(context.Background())
	}()

	logger, err := newLogger(cfg, tel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()
	for _, err := range degraded {
		logger.Warn(ctx, "telemetry degraded", zap.Error(err))
	}

	logger.Info(ctx, "starting openEHR assistant",
		zap.String("version", version),
		zap.String("transport", cfg.MCP.Transport),
		zap.String("ckm_api_base_url", cfg.CKM.APIBaseURL),
		zap.Bool("telemetry", tel.IsEnabled()),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	server, err := newMCPServer(ctx, cfg, logger, tel, reg)
	if err != nil {
		return err
	}

	if cfg.MCP.Transport == config.TransportStdio {
		if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Info(context.Background(), "stdio server shutdown complete")
		return nil
	}
	return serveHTTP(ctx, cfg, logger, server, reg, tel)
}

// newMCPServer builds the services and wires them into the MCP server.
func newMCPServer(ctx context.Context, cfg *config.Config, logger *logging.Logger, tel *telemetry.Telemetry, reg prometheus.Registerer) (*mcp.Server, error) {
	client, err := ckm.NewClient(ckm.ClientConfig{
		BaseURL:   cfg.CKM.APIBaseURL,
		Timeout:   cfg.HTTP.Timeout.Duration(),
		SSLVerify: cfg.HTTP.SSLVerify,
		RateLimit: cfg.CKM.RateLimit,
		RateBurst: cfg.CKM.RateBurst,
		UserAgent: config.AppName + "/" + version,
	}, logger,
		ckm.WithMetrics(ckm.NewMetrics(reg)),
		ckm.WithTracer(tel.Tracer(ckmTracerName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CKM client: %w", err)
	}
	ckmSvc, err := ckm.NewService(client, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create CKM service: %w", err)
	}

	fsys := resourcesFS(cfg)
	guideStore, err := guides.NewStore(fsys, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load guides: %w", err)
	}
	term, err := terminology.Load(fsys, terminology.DefaultPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load terminology: %w", err)
	}
	specs, err := typespec.NewStore(fsys, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load type specifications: %w", err)
	}

	// Prompts are optional; a broken prompt tree only loses the prompts.
	lib, err := prompts.Load(ctx, fsys, prompts.DefaultDir, logger)
	if err != nil {
		logger.Warn(ctx, "failed to load prompts", zap.Error(err))
		lib = nil
	}

	mcpCfg := mcp.DefaultConfig()
	mcpCfg.Version = version
	mcpCfg.SessionTimeout = cfg.Server.SessionTimeout.Duration()
	mcpCfg.Logger = logger

	server, err := mcp.NewServer(mcpCfg, mcp.Deps{
		CKM:         ckmSvc,
		Guides:      guideStore,
		Terminology: term,
		TypeSpecs:   specs,
		Prompts:     lib,
		Metrics:     mcp.NewMetrics(logger.Underlying()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP server: %w", err)
	}
	return server, nil
}

// serveHTTP runs the streamable HTTP transport and shuts it down when ctx
// is cancelled.
func serveHTTP(ctx context.Context, cfg *config.Config, logger *logging.Logger, server *mcp.Server, gatherer prometheus.Gatherer, tel *telemetry.Telemetry) error {
	srv, err := httpserver.NewServer(server, logger, &httpserver.Config{
		Host:      cfg.Server.Host,
		Port:      cfg.Server.Port,
		Version:   version,
		Gatherer:  gatherer,
		Telemetry: tel,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	if err := srv.Listen(); err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	if err := <-errCh; err != nil {
		return err
	}
	logger.Info(shutdownCtx, "server shutdown complete")
	return nil
}

// resourcesFS returns the on-disk resources tree when configured, the
// bundled one otherwise.
func resourcesFS(cfg *config.Config) fs.FS {
	if cfg.Resources.Dir != "" {
		return os.DirFS(cfg.Resources.Dir)
	}
	return resources.FS
}

func telemetryConfig(cfg *config.Config) *telemetry.Config {
	tc := telemetry.NewDefaultConfig()
	tc.Enabled = cfg.Observability.Enabled
	tc.Endpoint = cfg.Observability.Endpoint
	tc.Protocol = cfg.Observability.Protocol
	tc.ServiceName = cfg.Observability.ServiceName
	tc.ServiceVersion = version
	tc.Environment = cfg.App.Env
	tc.Insecure = cfg.Observability.Insecure
	tc.TLSSkipVerify = cfg.Observability.TLSSkipVerify
	tc.Sampling.Rate = cfg.Observability.SamplingRate
	return tc
}

func newLogger(cfg *config.Config, tel *telemetry.Telemetry) (*logging.Logger, error) {
	lc := logging.NewDefaultConfig()
	level, err := logging.LevelFromString(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	lc.Level = level
	lc.Format = cfg.Log.Format
	lc.Fields["env"] = cfg.App.Env
	lc.Fields["version"] = version
	lp := tel.LoggerProvider()
	lc.Output.OTEL = lp != nil
	return logging.NewLogger(lc, lp)
}
