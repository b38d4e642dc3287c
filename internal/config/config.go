// Package config provides configuration loading for the openEHR assistant
// MCP server.
//
// Configuration is layered: built-in defaults, then an optional YAML or
// TOML file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Application identity.
const (
	AppName        = "openehr-assistant-mcp"
	AppTitle       = "openEHR Assistant MCP Server"
	AppDescription = "A Model Context Protocol (MCP) Server to assist with various openEHR related tasks and APIs"
)

// Transports.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "streamable-http"
)

// Config holds the complete server configuration.
type Config struct {
	App           AppConfig           `koanf:"app"`
	Log           LogConfig           `koanf:"log"`
	CKM           CKMConfig           `koanf:"ckm"`
	HTTP          HTTPClientConfig    `koanf:"http"`
	Server        ServerConfig        `koanf:"server"`
	MCP           MCPConfig           `koanf:"mcp"`
	Resources     ResourcesConfig     `koanf:"resources"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// AppConfig holds application-wide settings.
type AppConfig struct {
	Env string `koanf:"env"`
}

// LogConfig holds logging settings. Level accepts zap names plus
// "trace", "notice", "warning", "critical", "alert" and "emergency".
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CKMConfig holds Clinical Knowledge Manager API settings.
type CKMConfig struct {
	APIBaseURL string  `koanf:"api_base_url"`
	RateLimit  float64 `koanf:"rate_limit"` // requests per second, 0 disables
	RateBurst  int     `koanf:"rate_burst"`
}

// HTTPClientConfig holds outbound HTTP client settings.
type HTTPClientConfig struct {
	Timeout   Duration `koanf:"timeout"`
	SSLVerify bool     `koanf:"ssl_verify"`
}

// ServerConfig holds settings for the streamable HTTP transport.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	SessionTimeout  Duration `koanf:"session_timeout"`
}

// MCPConfig holds MCP protocol settings.
type MCPConfig struct {
	Transport string `koanf:"transport"`
}

// ResourcesConfig points at an on-disk resources tree that replaces the
// bundled guides, terminology, BMM and prompt files.
type ResourcesConfig struct {
	Dir string `koanf:"dir"`
}

// ObservabilityConfig holds OpenTelemetry export settings.
type ObservabilityConfig struct {
	Enabled       bool    `koanf:"enabled"`
	Endpoint      string  `koanf:"endpoint"`
	Protocol      string  `koanf:"protocol"`
	ServiceName   string  `koanf:"service_name"`
	Insecure      bool    `koanf:"insecure"`
	TLSSkipVerify bool    `koanf:"tls_skip_verify"`
	SamplingRate  float64 `koanf:"sampling_rate"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.App.Env == "" {
		return errors.New("app.env is required")
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("log.format must be 'json' or 'console', got %q", c.Log.Format)
	}

	u, err := url.Parse(c.CKM.APIBaseURL)
	if err != nil {
		return fmt.Errorf("invalid ckm.api_base_url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("ckm.api_base_url must be an absolute http(s) URL, got %q", c.CKM.APIBaseURL)
	}
	if c.CKM.RateLimit < 0 {
		return fmt.Errorf("ckm.rate_limit must be >= 0, got %v", c.CKM.RateLimit)
	}
	if c.CKM.RateLimit > 0 && c.CKM.RateBurst < 1 {
		return fmt.Errorf("ckm.rate_burst must be >= 1 when rate limiting, got %d", c.CKM.RateBurst)
	}
	if c.HTTP.Timeout.Duration() <= 0 {
		return errors.New("http.timeout must be positive")
	}

	switch c.MCP.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("mcp.transport must be %q or %q, got %q", TransportStdio, TransportHTTP, c.MCP.Transport)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("server.shutdown_timeout must be positive")
	}
	if c.Server.SessionTimeout.Duration() <= 0 {
		return errors.New("server.session_timeout must be positive")
	}

	return nil
}

// NormalizeTransport maps user-facing transport names onto the canonical
// ones. Unknown names are returned lowercased for Validate to reject.
func NormalizeTransport(t string) string {
	switch t = strings.ToLower(strings.TrimSpace(t)); t {
	case "http", "streamable_http", "streamable-http", "streamablehttp":
		return TransportHTTP
	default:
		return t
	}
}

// NormalizeBaseURL trims slashes and whitespace from a base URL and adds a
// single trailing slash, so relative API paths resolve under it.
func NormalizeBaseURL(raw string) string {
	return strings.Trim(raw, "/ \t\n\r\x00\x0B") + "/"
}
