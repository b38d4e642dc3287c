package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/cadasto/openehr-assistant-mcp/internal/logging"
	"github.com/cadasto/openehr-assistant-mcp/internal/telemetry"
)

// stubEndpoint serves a go-sdk server with a single echo tool.
type stubEndpoint struct {
	server *mcp.Server
}

type echoInput struct {
	Text string `json:"text"`
}

func newStubEndpoint() *stubEndpoint {
	s := mcp.NewServer(&mcp.Implementation{Name: "stub", Version: "test"}, nil)
	mcp.AddTool(s, &mcp.Tool{Name: "echo", Description: "Echo text"},
		func(ctx context.Context, req *mcp.CallToolRequest, in echoInput) (*mcp.CallToolResult, any, error) {
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: in.Text}}}, nil, nil
		})
	return &stubEndpoint{server: s}
}

func (e *stubEndpoint) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return e.server }, nil)
}

func (e *stubEndpoint) ToolNames() []string {
	return []string{"echo"}
}

func TestNewServer(t *testing.T) {
	t.Run("creates server with valid config", func(t *testing.T) {
		cfg := &Config{Host: "localhost", Port: 8343, Version: "1.2.3"}

		server, err := NewServer(newStubEndpoint(), logging.NewNop(), cfg)
		require.NoError(t, err)
		assert.NotNil(t, server.echo)
		assert.Equal(t, cfg, server.config)
		assert.NotNil(t, server.config.Gatherer)
	})

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(newStubEndpoint(), logging.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0", server.config.Host)
		assert.Equal(t, 8343, server.config.Port)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(newStubEndpoint(), nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when endpoint is nil", func(t *testing.T) {
		_, err := NewServer(nil, logging.NewNop(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mcp endpoint cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	server := setupTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.Equal(t, []string{"echo"}, resp.Tools)
}

type staticHealth telemetry.HealthStatus

func (h staticHealth) Health() telemetry.HealthStatus { return telemetry.HealthStatus(h) }

func TestHandleHealth_Telemetry(t *testing.T) {
	tests := []struct {
		name       string
		health     telemetry.HealthStatus
		wantStatus string
	}{
		{"healthy", telemetry.HealthStatus{Healthy: true}, "ok"},
		{"degraded exporter", telemetry.HealthStatus{Healthy: true, Degraded: true}, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, err := NewServer(newStubEndpoint(), logging.NewNop(), &Config{
				Version:   "test",
				Telemetry: staticHealth(tt.health),
			})
			require.NoError(t, err)

			rec := httptest.NewRecorder()
			server.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, http.StatusOK, rec.Code)

			var resp HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			require.NotNil(t, resp.Telemetry)
			assert.Equal(t, tt.health, *resp.Telemetry)
		})
	}

	t.Run("omitted without telemetry", func(t *testing.T) {
		server := setupTestServer(t, nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.NotContains(t, rec.Body.String(), `"telemetry"`)
	})
}

func TestHandleMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "openehr_test_total", Help: "test counter"})
	reg.MustRegister(counter)
	counter.Inc()

	server := setupTestServer(t, reg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "openehr_test_total 1")
}

func TestMCPEndpoint(t *testing.T) {
	server := setupTestServer(t, nil)
	ts := httptest.NewServer(server.echo)
	t.Cleanup(ts.Close)

	for _, path := range []string{"/mcp", "/"} {
		t.Run(path, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
			cs, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: ts.URL + path}, nil)
			require.NoError(t, err)
			defer cs.Close()

			tools, err := cs.ListTools(ctx, nil)
			require.NoError(t, err)
			require.Len(t, tools.Tools, 1)
			assert.Equal(t, "echo", tools.Tools[0].Name)

			res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "echo", Arguments: map[string]any{"text": "openEHR"}})
			require.NoError(t, err)
			require.Len(t, res.Content, 1)
			assert.Equal(t, "openEHR", res.Content[0].(*mcp.TextContent).Text)
		})
	}
}

func TestMCPEndpoint_SessionHeader(t *testing.T) {
	server := setupTestServer(t, nil)

	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"curl","version":"0"}}}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAccept, "application/json, text/event-stream")
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(HeaderMCPSessionID))
	assert.Equal(t, HeaderMCPSessionID, rec.Header().Get(echo.HeaderAccessControlExposeHeaders))
}

func TestServerLifecycle(t *testing.T) {
	t.Run("starts and shuts down gracefully", func(t *testing.T) {
		cfg := &Config{
			Host: "127.0.0.1",
			Port: 0, // random available port
		}

		server, err := NewServer(newStubEndpoint(), logging.NewNop(), cfg)
		require.NoError(t, err)

		errChan := make(chan error, 1)
		go func() {
			errChan <- server.Start()
		}()

		require.Eventually(t, func() bool { return server.Addr() != nil }, 5*time.Second, 10*time.Millisecond)

		resp, err := http.Get("http://" + server.Addr().String() + "/health")
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, server.Shutdown(ctx))

		select {
		case err := <-errChan:
			assert.NoError(t, err)
		case <-time.After(6 * time.Second):
			t.Fatal("server did not shut down in time")
		}
	})

	t.Run("fails on an unusable address", func(t *testing.T) {
		server, err := NewServer(newStubEndpoint(), logging.NewNop(), &Config{Host: "256.0.0.1", Port: 1})
		require.NoError(t, err)
		assert.Error(t, server.Start())
	})

	t.Run("shutdown before serve returns", func(t *testing.T) {
		server, err := NewServer(newStubEndpoint(), logging.NewNop(), &Config{Host: "127.0.0.1", Port: 0})
		require.NoError(t, err)
		require.NoError(t, server.Listen())
		require.NotNil(t, server.Addr())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, server.Shutdown(ctx))

		errChan := make(chan error, 1)
		go func() {
			errChan <- server.Serve()
		}()

		select {
		case err := <-errChan:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("serve kept running after shutdown")
		}
	})

	t.Run("serve requires listen", func(t *testing.T) {
		server, err := NewServer(newStubEndpoint(), logging.NewNop(), &Config{Host: "127.0.0.1", Port: 0})
		require.NoError(t, err)
		assert.ErrorContains(t, server.Serve(), "not listening")
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("adds request ID to response", func(t *testing.T) {
		server := setupTestServer(t, nil)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	})

	t.Run("logs requests with the request ID", func(t *testing.T) {
		tl := logging.NewTestLogger()
		server, err := NewServer(newStubEndpoint(), tl.Logger, &Config{Host: "localhost", Port: 8343})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		tl.AssertLogged(t, zapcore.InfoLevel, "http request")
		tl.AssertField(t, "http request", "request.id", rec.Header().Get(echo.HeaderXRequestID))
	})

	t.Run("recovers from panic", func(t *testing.T) {
		server := setupTestServer(t, nil)
		server.echo.GET("/panic", func(c echo.Context) error {
			panic("test panic")
		})

		req := httptest.NewRequest(http.MethodGet, "/panic", nil)
		rec := httptest.NewRecorder()

		assert.NotPanics(t, func() {
			server.echo.ServeHTTP(rec, req)
		})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

// setupTestServer creates a test server around the stub endpoint.
func setupTestServer(t *testing.T, gatherer prometheus.Gatherer) *Server {
	t.Helper()

	server, err := NewServer(newStubEndpoint(), logging.NewNop(), &Config{
		Host:     "localhost",
		Port:     8343,
		Version:  "test",
		Gatherer: gatherer,
	})
	require.NoError(t, err)
	return server
}
