// Package http hosts the MCP streamable HTTP transport behind echo.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cadasto/openehr-assistant-mcp/internal/logging"
	"github.com/cadasto/openehr-assistant-mcp/internal/telemetry"
)

// HeaderMCPSessionID carries the streamable HTTP session id.
const HeaderMCPSessionID = "Mcp-Session-Id"

// MCPEndpoint is the MCP side of the HTTP host.
type MCPEndpoint interface {
	// Handler serves the streamable HTTP transport.
	Handler() http.Handler
	// ToolNames lists the registered tools.
	ToolNames() []string
}

// TelemetryHealth reports the state of the telemetry exporters.
type TelemetryHealth interface {
	Health() telemetry.HealthStatus
}

// Server provides the HTTP endpoints of the MCP server.
type Server struct {
	echo    *echo.Echo
	mcp     MCPEndpoint
	logger  *logging.Logger
	config  *Config
	metrics *HTTPMetrics

	mu       sync.Mutex
	listener net.Listener
}

// Config holds HTTP server configuration.
type Config struct {
	Host    string
	Port    int
	Version string

	// Gatherer backs GET /metrics. Defaults to the prometheus default gatherer.
	Gatherer prometheus.Gatherer

	// Telemetry is reported by GET /health when set.
	Telemetry TelemetryHealth
}

// NewServer creates a new HTTP server around an MCP endpoint.
func NewServer(endpoint MCPEndpoint, logger *logging.Logger, cfg *Config) (*Server, error) {
	if endpoint == nil {
		return nil, fmt.Errorf("mcp endpoint cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "0.0.0.0",
			Port: 8343,
		}
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		mcp:     endpoint,
		logger:  logger.Named("http"),
		config:  cfg,
		metrics: NewHTTPMetrics(logger.Underlying()),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(s.requestLogger)
	e.Use(s.metrics.MetricsMiddleware())
	e.Use(exposeSessionHeader)

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{})))

	mcpHandler := echo.WrapHandler(s.mcp.Handler())
	s.echo.Any("/mcp", mcpHandler)
	s.echo.Any("/", mcpHandler)
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		requestID := c.Response().Header().Get(echo.HeaderXRequestID)

		req := c.Request()
		ctx := logging.WithRequestID(req.Context(), requestID)
		if sid := req.Header.Get(HeaderMCPSessionID); sid != "" {
			ctx = logging.WithSessionID(ctx, sid)
		}
		c.SetRequest(req.WithContext(ctx))

		err := next(c)

		s.logger.Info(ctx, "http request",
			zap.String("method", req.Method),
			zap.String("uri", req.RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return err
	}
}

// exposeSessionHeader lets browser clients read the MCP session id.
func exposeSessionHeader(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderAccessControlExposeHeaders, HeaderMCPSessionID)
		return next(c)
	}
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string                  `json:"status"`
	Version   string                  `json:"version,omitempty"`
	Tools     []string                `json:"tools"`
	Telemetry *telemetry.HealthStatus `json:"telemetry,omitempty"`
}

// handleHealth reports "degraded" when telemetry export failed. The MCP
// endpoint keeps serving, so the status code stays 200.
func (s *Server) handleHealth(c echo.Context) error {
	tools := s.mcp.ToolNames()
	if tools == nil {
		tools = []string{}
	}
	resp := HealthResponse{
		Status:  "ok",
		Version: s.config.Version,
		Tools:   tools,
	}
	if s.config.Telemetry != nil {
		th := s.config.Telemetry.Health()
		resp.Telemetry = &th
		if th.Degraded {
			resp.Status = "degraded"
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// Addr returns the bound address once the server is listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start binds the configured address and serves until Shutdown.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Listen binds the configured address without serving. Callers that may
// shut down early bind first so Shutdown always has a server to stop.
func (s *Server) Listen() error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.echo.Listener = ln
	s.mu.Unlock()
	return nil
}

// Serve accepts connections on the bound listener until Shutdown. A clean
// shutdown returns nil, including one that happened before Serve ran.
func (s *Server) Serve() error {
	addr := s.Addr()
	if addr == nil {
		return errors.New("http server is not listening")
	}

	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr.String()))
	if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
