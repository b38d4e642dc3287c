package ckm

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cadasto/openehr-assistant-mcp/internal/logging"
)

const (
	instrumentationName = "github.com/cadasto/openehr-assistant-mcp/internal/ckm"

	defaultTimeout = 10 * time.Second

	// defaultMaxBodyBytes caps how much of a response body is read.
	defaultMaxBodyBytes = 32 << 20
)

// ClientConfig configures the CKM REST client.
type ClientConfig struct {
	// BaseURL is the CKM REST root, e.g. https://ckm.openehr.org/ckm/rest.
	BaseURL string

	// Timeout bounds a single request. Zero means 10s.
	Timeout time.Duration

	// SSLVerify enables TLS certificate verification.
	SSLVerify bool

	// RateLimit is the sustained requests per second. Zero disables limiting.
	RateLimit float64
	RateBurst int

	// UserAgent is sent with every request when set.
	UserAgent string

	// MaxBodyBytes rejects larger response bodies. Zero means 32 MiB.
	MaxBodyBytes int64
}

// RequestOptions carries per-request query values and headers.
type RequestOptions struct {
	Query  url.Values
	Header http.Header
}

// Response is a fully read CKM response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// HTTPError is returned for non-2xx CKM responses.
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected response %q from %s", e.Status, e.URL)
}

// Is reports ErrUpstream as a match.
func (e *HTTPError) Is(target error) bool {
	return target == ErrUpstream
}

// Doer issues GET requests against the CKM API. *Client implements it.
type Doer interface {
	Get(ctx context.Context, path string, opts *RequestOptions) (*Response, error)
}

// Client is a thin CKM REST client. Paths are resolved relative to the
// configured base URL.
type Client struct {
	baseURL    *url.URL
	userAgent  string
	maxBody    int64
	httpClient *http.Client
	limiter    *rate.Limiter
	tracer     trace.Tracer
	metrics    *Metrics
	logger     *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTracer sets the tracer used for request spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a CKM client.
func NewClient(cfg ClientConfig, logger *logging.Logger, opts ...Option) (*Client, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	base, err := url.Parse(strings.Trim(cfg.BaseURL, "/ \t\n\r\x00\x0B") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid CKM base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("CKM base URL must be absolute: %q", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !cfg.SSLVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via http.ssl_verify=false
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	c := &Client{
		baseURL:    base,
		userAgent:  cfg.UserAgent,
		maxBody:    maxBody,
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		logger:     logger.Named("ckm"),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	for _, opt := range opts {
		opt(c)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(instrumentationName)
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}

	if !cfg.SSLVerify {
		c.logger.Warn(context.Background(), "TLS certificate verification disabled for CKM client")
	}

	return c, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Get performs a synchronous GET request.
func (c *Client) Get(ctx context.Context, path string, opts *RequestOptions) (*Response, error) {
	return c.Request(ctx, http.MethodGet, path, opts)
}

// Request performs a synchronous request. Non-2xx responses are returned
// as *HTTPError.
func (c *Client) Request(ctx context.Context, method, path string, opts *RequestOptions) (*Response, error) {
	target, err := c.resolve(path, opts)
	if err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "ckm.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", target.Path),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := c.do(ctx, method, target, opts)
	elapsed := time.Since(start)

	status := "error"
	if resp != nil {
		status = strconv.Itoa(resp.StatusCode)
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	}
	c.metrics.RequestsTotal.WithLabelValues(method, status).Inc()
	c.metrics.RequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())

	c.logger.Debug(ctx, "CKM request",
		zap.String("method", method),
		zap.String("url", target.String()),
		zap.String("status", status),
		zap.Duration("duration", elapsed),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return resp, nil
}

func (c *Client) resolve(path string, opts *RequestOptions) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimLeft(path, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid request path %q", ErrInvalidArgument, path)
	}
	target := c.baseURL.ResolveReference(ref)
	if opts != nil && len(opts.Query) > 0 {
		target.RawQuery = opts.Query.Encode()
	}
	return target, nil
}

func (c *Client) do(ctx context.Context, method string, target *url.URL, opts *RequestOptions) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %w", ErrUpstream, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if opts != nil {
		for k, vs := range opts.Header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", ErrUpstream, err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("%w: %w: more than %d bytes from %s", ErrUpstream, ErrResponseTooLarge, c.maxBody, target.Redacted())
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return resp, &HTTPError{
			StatusCode: httpResp.StatusCode,
			Status:     httpResp.Status,
			URL:        target.String(),
		}
	}
	return resp, nil
}

// Future is the pending result of RequestAsync.
type Future struct {
	done chan struct{}
	resp *Response
	err  error
}

// RequestAsync starts a request in the background.
func (c *Client) RequestAsync(ctx context.Context, method, path string, opts *RequestOptions) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.resp, f.err = c.Request(ctx, method, path, opts)
	}()
	return f
}

// Wait blocks until the request completes or ctx is done.
func (f *Future) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-f.done:
		return f.resp, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed when the request completes.
func (f *Future) Done() <-chan struct{} {
	return f.done
}
