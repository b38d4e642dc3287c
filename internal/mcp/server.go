package mcp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/cadasto/openehr-assistant-mcp/internal/ckm"
	"github.com/cadasto/openehr-assistant-mcp/internal/guides"
	"github.com/cadasto/openehr-assistant-mcp/internal/logging"
	"github.com/cadasto/openehr-assistant-mcp/internal/prompts"
	"github.com/cadasto/openehr-assistant-mcp/internal/terminology"
	"github.com/cadasto/openehr-assistant-mcp/internal/typespec"
)

// DefaultSessionTimeout closes idle streamable HTTP sessions.
const DefaultSessionTimeout = 10 * time.Minute

// Server is the openEHR assistant MCP server.
type Server struct {
	mcp            *mcp.Server
	ckm            *ckm.Service
	guides         *guides.Store
	terminology    *terminology.Terminology
	typeSpecs      *typespec.Store
	prompts        *prompts.Library
	toolRegistry   *ToolRegistry
	metrics        *Metrics
	sessionTimeout time.Duration
	logger         *logging.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "openehr-assistant-mcp")
	Name string

	// Title is the human readable server title.
	Title string

	// Version is the server version (default: "dev")
	Version string

	// Instructions are sent to clients on initialization. When empty they
	// are generated from the registered tools.
	Instructions string

	// SessionTimeout closes idle streamable HTTP sessions (default: 10m).
	SessionTimeout time.Duration

	// Logger for structured logging
	Logger *logging.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:           "openehr-assistant-mcp",
		Title:          "openEHR Assistant MCP Server",
		Version:        "dev",
		SessionTimeout: DefaultSessionTimeout,
		Logger:         logging.NewNop(),
	}
}

// Deps are the services the server exposes.
type Deps struct {
	CKM         *ckm.Service
	Guides      *guides.Store
	Terminology *terminology.Terminology
	TypeSpecs   *typespec.Store

	// Prompts is optional; without it no prompts are offered.
	Prompts *prompts.Library

	// Metrics is optional; it defaults to metrics on the global meter.
	Metrics *Metrics
}

// NewServer creates a new MCP server with the given services.
func NewServer(cfg *Config, deps Deps) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = DefaultConfig().Name
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = DefaultSessionTimeout
	}
	if deps.CKM == nil {
		return nil, fmt.Errorf("CKM service is required")
	}
	if deps.Guides == nil {
		return nil, fmt.Errorf("guide store is required")
	}
	if deps.Terminology == nil {
		return nil, fmt.Errorf("terminology is required")
	}
	if deps.TypeSpecs == nil {
		return nil, fmt.Errorf("type specification store is required")
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(cfg.Logger.Underlying())
	}

	registry := NewToolRegistry()
	if err := registry.RegisterAll(toolCatalog()); err != nil {
		return nil, fmt.Errorf("failed to build tool registry: %w", err)
	}

	instructions := cfg.Instructions
	if instructions == "" {
		instructions = defaultInstructions(registry)
	}

	s := &Server{
		ckm:            deps.CKM,
		guides:         deps.Guides,
		terminology:    deps.Terminology,
		typeSpecs:      deps.TypeSpecs,
		prompts:        deps.Prompts,
		toolRegistry:   registry,
		metrics:        deps.Metrics,
		sessionTimeout: cfg.SessionTimeout,
		logger:         cfg.Logger.Named("mcp"),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Title:   cfg.Title,
			Version: cfg.Version,
		},
		&mcp.ServerOptions{
			Instructions:      instructions,
			CompletionHandler: s.complete,
		},
	)

	s.registerTools()
	if err := s.registerResources(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to register resources: %w", err)
	}
	s.registerPrompts()

	return s, nil
}

// Registry returns the metadata of the registered tools.
func (s *Server) Registry() *ToolRegistry {
	return s.toolRegistry
}

// ToolNames lists the registered tool names in order.
func (s *Server) ToolNames() []string {
	return s.toolRegistry.ListNames()
}

// MCPServer returns the underlying go-sdk server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Handler returns a streamable HTTP handler serving this server.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server { return s.mcp },
		&mcp.StreamableHTTPOptions{SessionTimeout: s.sessionTimeout},
	)
}

func defaultInstructions(registry *ToolRegistry) string {
	var b strings.Builder
	b.WriteString("Assists with openEHR clinical modelling: discovering archetypes and templates in the ")
	b.WriteString("Clinical Knowledge Manager (CKM), applying the authoring guides, resolving openEHR ")
	b.WriteString("terminology and reading BMM type specifications.\n")
	b.WriteString("Search before you get: use the *_search tools to find identifiers and resource URIs, ")
	b.WriteString("then fetch full content with the matching *_get tool or by reading the resource.\n")
	b.WriteString("\nAvailable tools:\n")
	b.WriteString(registry.Summary())
	return b.String()
}

// logCall logs tool arguments at debug level.
func (s *Server) logCall(ctx context.Context, tool string, args any) {
	s.logger.Debug(ctx, "tool called", zap.String("tool", tool), zap.Any("args", args))
}
