package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

const defaults = `
app:
  env: production
log:
  level: info
  format: json
ckm:
  api_base_url: https://ckm.openehr.org/ckm/rest
  rate_limit: 10
  rate_burst: 5
http:
  timeout: 10s
  ssl_verify: true
server:
  host: 0.0.0.0
  port: 8343
  shutdown_timeout: 10s
  session_timeout: 10m
mcp:
  transport: streamable-http
resources:
  dir: ""
observability:
  enabled: false
  endpoint: localhost:4317
  protocol: grpc
  service_name: openehr-assistant-mcp
  insecure: true
  sampling_rate: 1.0
`

// sections are the top-level keys environment variables may target.
var sections = map[string]bool{
	"app": true, "log": true, "ckm": true, "http": true,
	"server": true, "mcp": true, "resources": true, "observability": true,
}

// envAliases maps well-known variables that do not follow SECTION_FIELD.
var envAliases = map[string]string{
	"OTEL_EXPORTER_OTLP_ENDPOINT": "observability.endpoint",
	"OTEL_EXPORTER_OTLP_PROTOCOL": "observability.protocol",
	"OTEL_SERVICE_NAME":           "observability.service_name",
}

// Load builds configuration from defaults and environment variables only.
func Load() (*Config, error) {
	return load(nil, nil)
}

// LoadWithFile loads configuration from a YAML or TOML file, then overrides
// with environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (CKM_API_BASE_URL, HTTP_TIMEOUT, LOG_LEVEL, ...)
//  2. Config file (default: $XDG_CONFIG_HOME/openehr-assistant-mcp/config.yaml)
//  3. Built-in defaults
//
// The file is optional. When present it must live in the user or system
// config directory, have 0600 or 0400 permissions and be at most 1MB.
//
// Environment variables map onto keys by splitting on the first underscore:
//
//	CKM_API_BASE_URL -> ckm.api_base_url
//	HTTP_SSL_VERIFY  -> http.ssl_verify
//	SERVER_SESSION_TIMEOUT -> server.session_timeout
func LoadWithFile(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = DefaultConfigPath()
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	parser, err := parserFor(configPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(configPath)
	if os.IsNotExist(err) {
		return load(nil, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	// Validate through the open descriptor to avoid a TOCTOU race.
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := load(content, parser)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
	}
	return cfg, nil
}

func load(content []byte, parser koanf.Parser) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider([]byte(defaults)), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if content != nil {
		if err := k.Load(rawbytes.Provider(content), parser); err != nil {
			return nil, err
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	normalize(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps an environment variable onto a config key. Variables outside
// the known sections, and empty values, are skipped.
func envKey(key, value string) (string, interface{}) {
	if strings.TrimSpace(value) == "" {
		return "", nil
	}
	if alias, ok := envAliases[key]; ok {
		return alias, value
	}

	parts := strings.SplitN(strings.ToLower(key), "_", 2)
	if len(parts) != 2 || !sections[parts[0]] {
		return "", nil
	}
	return parts[0] + "." + parts[1], value
}

func normalize(cfg *Config) {
	cfg.CKM.APIBaseURL = NormalizeBaseURL(cfg.CKM.APIBaseURL)
	cfg.MCP.Transport = NormalizeTransport(cfg.MCP.Transport)
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/openehr-assistant-mcp/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".toml":
		return TOML(), nil
	default:
		return nil, fmt.Errorf("unsupported config file type %q (use .yaml, .yml or .toml)", filepath.Ext(path))
	}
}

// validateConfigPath checks the path is in an allowed directory, following
// symlinks. It runs even if the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolved = absPath
	}

	allowedDirs := []string{
		filepath.Join(xdg.ConfigHome, AppName),
		filepath.Join("/etc", AppName),
	}
	for _, dir := range allowedDirs {
		if resolvedDir, err := filepath.EvalSymlinks(dir); err == nil {
			dir = resolvedDir
		}
		if strings.HasPrefix(resolved, dir+string(filepath.Separator)) {
			return nil
		}
	}

	return fmt.Errorf("config file must be in %s or %s", allowedDirs[0], allowedDirs[1])
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}
