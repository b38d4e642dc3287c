// Command openehr-assistant-mcp runs the openEHR assistant MCP server.
//
// The server speaks MCP over streamable HTTP (default) or stdio. It exposes
// CKM archetype and template lookup, the bundled authoring guides, the
// openEHR terminology and BMM type specifications.
//
// Configuration is read from $XDG_CONFIG_HOME/openehr-assistant-mcp/config.yaml
// when present, then from environment variables. See internal/config.
//
// Usage:
//
//	# Streamable HTTP on 0.0.0.0:8343
//	openehr-assistant-mcp
//
//	# stdio for desktop MCP clients
//	openehr-assistant-mcp serve --transport=stdio
//
//	# Configure via environment
//	CKM_API_BASE_URL=https://ckm.example.org/ckm/rest LOG_LEVEL=debug openehr-assistant-mcp
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cadasto/openehr-assistant-mcp/internal/config"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// serveOptions are the serve command flags. Empty values keep the loaded
// configuration.
type serveOptions struct {
	configPath string
	transport  string
	host       string
	port       int
}

func newRootCmd() *cobra.Command {
	opts := &serveOptions{}

	root := &cobra.Command{
		Use:   config.AppName,
		Short: config.AppTitle,
		Long: config.AppDescription + `.

Without a subcommand the server starts with the configured transport.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	addServeFlags(root, opts)

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server on stdio or streamable HTTP.

Examples:
  # Streamable HTTP with defaults
  openehr-assistant-mcp serve

  # stdio transport
  openehr-assistant-mcp serve --transport=stdio

  # HTTP on a different port
  openehr-assistant-mcp serve --port 9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	addServeFlags(serve, opts)

	root.AddCommand(serve, newVersionCmd())
	return root
}

func addServeFlags(cmd *cobra.Command, opts *serveOptions) {
	cmd.Flags().StringVar(&opts.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/openehr-assistant-mcp/config.yaml)")
	cmd.Flags().StringVar(&opts.transport, "transport", "", "MCP transport: stdio or http")
	cmd.Flags().StringVar(&opts.host, "host", "", "HTTP listen host")
	cmd.Flags().IntVar(&opts.port, "port", 0, "HTTP listen port")
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

// printVersion prints version information
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "%s\n", config.AppTitle)
	fmt.Fprintf(w, "Version:    %s\n", version)
	fmt.Fprintf(w, "Commit:     %s\n", gitCommit)
	fmt.Fprintf(w, "Build Date: %s\n", buildDate)
}

// loadConfig loads the configuration and applies flag overrides.
func loadConfig(opts *serveOptions) (*config.Config, error) {
	cfg, err := config.LoadWithFile(opts.configPath)
	if err != nil {
		return nil, err
	}

	if opts.transport != "" {
		cfg.MCP.Transport = config.NormalizeTransport(opts.transport)
	}
	if opts.host != "" {
		cfg.Server.Host = opts.host
	}
	if opts.port != 0 {
		cfg.Server.Port = opts.port
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
