package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"pkt.systems/hulybridge/internal/svcfields"
	"pkt.systems/hulybridge/internal/version"
	"pkt.systems/pslog"
)

const (
	// DefaultBlobThreshold is the content size, in bytes, from which content is stored as a blob.
	DefaultBlobThreshold = 10 * 1024
	// DefaultHTTPTimeout bounds each REST request.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultMaxResponseBytes caps a REST response body, including fetched blobs.
	DefaultMaxResponseBytes = 64 << 20

	meterName = "pkt.systems/hulybridge/client"
)

// Config carries the credentials and tenant the client binds to.
type Config struct {
	// BaseURL is the platform front URL serving /config.json.
	BaseURL string
	// Email and Password are the account credentials.
	Email    string
	Password string
	// Workspace is the workspace URL name passed to selectWorkspace.
	Workspace string
}

// Option customises client construction.
type Option func(*Client)

// WithHTTPClient supplies a custom HTTP client. Its transport is used as is.
func WithHTTPClient(cli *http.Client) Option {
	return func(c *Client) {
		if cli != nil {
			c.httpClient = cli
		}
	}
}

// WithHTTPTimeout bounds each REST request. Zero or negative keeps the default.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpTimeout = d
		}
	}
}

// WithLogger supplies a logger for client diagnostics.
// Passing nil falls back to pslog.NoopLogger().
func WithLogger(logger pslog.Base) Option {
	return func(c *Client) {
		c.logger = svcfields.Base(logger, svcfields.ClientSDK)
		c.socketLogger = svcfields.Base(logger, svcfields.ClientSocket)
	}
}

// WithSocketWrites selects the persistent socket (true, the default) or REST
// transactions for document writes.
func WithSocketWrites(enabled bool) Option {
	return func(c *Client) {
		c.socketWrites = enabled
	}
}

// WithBlobThreshold sets the content size from which document content and
// issue descriptions are uploaded as blobs.
func WithBlobThreshold(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.blobThreshold = n
		}
	}
}

// WithSocketOptions overrides the transaction socket timeouts and dialer.
// Logger and MeterProvider default to the client's own when left unset.
func WithSocketOptions(opts SocketOptions) Option {
	return func(c *Client) {
		c.socketOpts = opts
	}
}

// WithMaxResponseBytes caps REST response bodies. A larger body fails with
// ErrInvalidResponse. Zero or negative keeps the default.
func WithMaxResponseBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxResponseBytes = n
		}
	}
}

// WithMeterProvider records client metrics through mp instead of the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Client) {
		if mp != nil {
			c.meterProvider = mp
		}
	}
}

// Client talks to one workspace of the platform. It is safe for concurrent use.
type Client struct {
	cfg              Config
	baseURL          *url.URL
	httpClient       *http.Client
	httpTimeout      time.Duration
	maxResponseBytes int64
	logger           pslog.Base
	socketLogger     pslog.Base
	socketWrites     bool
	blobThreshold    int
	socketOpts       SocketOptions
	meterProvider    metric.MeterProvider
	metrics          clientMetrics

	// authMu serializes authentication; mu guards sess.
	authMu sync.Mutex
	mu     sync.RWMutex
	sess   session

	// connectMu serializes socket handshakes. socketMu guards socket and
	// connecting only and is never held across network I/O.
	connectMu  sync.Mutex
	socketMu   sync.Mutex
	socket     *TxSocket
	connecting *TxSocket
}

type clientMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

// New validates cfg and constructs a client. No network I/O happens until
// the first operation.
func New(cfg Config, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Email) == "" || cfg.Password == "" {
		return nil, fmt.Errorf("%w: email and password required", ErrConfig)
	}
	if strings.TrimSpace(cfg.Workspace) == "" {
		return nil, fmt.Errorf("%w: workspace required", ErrConfig)
	}
	c := &Client{
		cfg:              cfg,
		baseURL:          base,
		httpTimeout:      DefaultHTTPTimeout,
		maxResponseBytes: DefaultMaxResponseBytes,
		logger:           pslog.NoopLogger(),
		socketLogger:     pslog.NoopLogger(),
		socketWrites:     true,
		blobThreshold:    DefaultBlobThreshold,
		meterProvider:    otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if c.socketOpts.Logger == nil {
		c.socketOpts.Logger = c.socketLogger
	}
	if c.socketOpts.MeterProvider == nil {
		c.socketOpts.MeterProvider = c.meterProvider
	}
	if c.socketOpts.Dialer == nil {
		c.socketOpts.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
		}
	}
	c.initMetrics()
	return c, nil
}

func (c *Client) initMetrics() {
	meter := c.meterProvider.Meter(meterName)
	var err error
	c.metrics.requests, err = meter.Int64Counter("hulybridge.client.requests",
		metric.WithDescription("Platform REST requests by operation and outcome"))
	if err != nil {
		otel.Handle(err)
	}
	c.metrics.duration, err = meter.Float64Histogram("hulybridge.client.request.duration",
		metric.WithDescription("Platform REST request latency"),
		metric.WithUnit("s"))
	if err != nil {
		otel.Handle(err)
	}
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("%w: base url required", ErrConfig)
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: base url %q must be http(s)://host", ErrInvalidURL, raw)
	}
	return u, nil
}

// BaseURL returns the configured platform URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Close disconnects the transaction socket, if any, and aborts a handshake
// in progress.
func (c *Client) Close() error {
	return c.resetSocket()
}

// resetSocket forgets the current socket and any socket still handshaking,
// then disconnects both.
func (c *Client) resetSocket() error {
	c.socketMu.Lock()
	sock, pending := c.socket, c.connecting
	c.socket, c.connecting = nil, nil
	c.socketMu.Unlock()
	if pending != nil {
		_ = pending.Disconnect()
	}
	if sock != nil {
		return sock.Disconnect()
	}
	return nil
}

// resolveURL resolves ref against the base URL. Absolute URLs are returned unchanged.
func (c *Client) resolveURL(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", nil
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidURL, ref, err)
	}
	return c.baseURL.ResolveReference(u).String(), nil
}

type httpRequest struct {
	op          string
	method      string
	url         string
	token       string
	body        io.Reader
	contentType string
}

type httpResponse struct {
	status int
	header http.Header
	body   []byte
}

func (r *httpResponse) ok() bool { return r.status >= 200 && r.status < 300 }

// do executes req and reads the whole body. Transport failures are returned
// as is; status handling is left to the caller.
func (c *Client) do(ctx context.Context, req httpRequest) (*httpResponse, error) {
	start := time.Now()
	reqCtx, cancel := context.WithTimeout(ctx, c.httpTimeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(reqCtx, req.method, req.url, req.body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())
	if req.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.token)
	}
	c.logTraceCtx(ctx, "client.http.start", "op", req.op, "method", req.method, "url", redactURL(req.url))
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.observe(ctx, req.op, "transport_error", start)
		c.logWarnCtx(ctx, "client.http.transport_error", "op", req.op, "url", redactURL(req.url), "error", err)
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	if err != nil {
		c.observe(ctx, req.op, "read_error", start)
		return nil, fmt.Errorf("read %s response: %w", req.op, err)
	}
	if int64(len(body)) > c.maxResponseBytes {
		c.observe(ctx, req.op, "too_large", start)
		c.logWarnCtx(ctx, "client.http.response.too_large", "op", req.op, "limit", humanize.IBytes(uint64(c.maxResponseBytes)))
		return nil, fmt.Errorf("%w: %s response exceeds %s", ErrInvalidResponse, req.op, humanize.IBytes(uint64(c.maxResponseBytes)))
	}
	out := &httpResponse{status: resp.StatusCode, header: resp.Header, body: body}
	if out.ok() {
		c.observe(ctx, req.op, "ok", start)
		c.logTraceCtx(ctx, "client.http.success", "op", req.op, "status", resp.StatusCode, "bytes", len(body))
	} else {
		c.observe(ctx, req.op, "status_"+strconv.Itoa(resp.StatusCode), start)
		c.logDebugCtx(ctx, "client.http.error", "op", req.op, "url", redactURL(req.url), "status", resp.StatusCode)
	}
	return out, nil
}

func (c *Client) observe(ctx context.Context, op, outcome string, start time.Time) {
	attrs := metric.WithAttributes(attribute.String("op", op), attribute.String("outcome", outcome))
	if c.metrics.requests != nil {
		c.metrics.requests.Add(ctx, 1, attrs)
	}
	if c.metrics.duration != nil {
		c.metrics.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}

// postJSON posts payload and returns the body of a 2xx response. Other
// statuses become *APIError.
func (c *Client) postJSON(ctx context.Context, op, rawURL, token string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", op, err)
	}
	resp, err := c.do(ctx, httpRequest{
		op:          op,
		method:      http.MethodPost,
		url:         rawURL,
		token:       token,
		body:        bytes.NewReader(data),
		contentType: "application/json",
	})
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, &APIError{Method: http.MethodPost, URL: redactURL(rawURL), Status: resp.status, Body: resp.body}
	}
	return resp.body, nil
}

func (c *Client) get(ctx context.Context, op, rawURL, token string) ([]byte, error) {
	resp, err := c.do(ctx, httpRequest{op: op, method: http.MethodGet, url: rawURL, token: token})
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, &APIError{Method: http.MethodGet, URL: redactURL(rawURL), Status: resp.status, Body: resp.body}
	}
	return resp.body, nil
}

// looksLikeJSON reports whether the first non-space byte opens an object or array.
func looksLikeJSON(body []byte) bool {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 64 {
		s = s[:64] + "..."
	}
	return s
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}

func (c *Client) enrichKeyvals(ctx context.Context, keyvals []any) []any {
	op := OperationIDFromContext(ctx)
	if op == "" || hasKey(keyvals, "op_id") {
		return keyvals
	}
	enriched := append([]any(nil), keyvals...)
	return append(enriched, "op_id", op)
}

func hasKey(keyvals []any, target string) bool {
	for i := 0; i+1 < len(keyvals); i += 2 {
		if key, ok := keyvals[i].(string); ok && key == target {
			return true
		}
	}
	return false
}

func (c *Client) logTraceCtx(ctx context.Context, msg string, keyvals ...any) {
	c.logger.Trace(msg, c.enrichKeyvals(ctx, keyvals)...)
}

func (c *Client) logDebugCtx(ctx context.Context, msg string, keyvals ...any) {
	c.logger.Debug(msg, c.enrichKeyvals(ctx, keyvals)...)
}

func (c *Client) logInfoCtx(ctx context.Context, msg string, keyvals ...any) {
	c.logger.Info(msg, c.enrichKeyvals(ctx, keyvals)...)
}

func (c *Client) logWarnCtx(ctx context.Context, msg string, keyvals ...any) {
	c.logger.Warn(msg, c.enrichKeyvals(ctx, keyvals)...)
}
