package hulybridge

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pkt.systems/hulybridge/client"
	"pkt.systems/hulybridge/mcp"
)

const (
	// DefaultMCPTransport serves MCP over stdio.
	DefaultMCPTransport = mcp.TransportStdio
	// DefaultMCPListen is the streamable HTTP listen address when the http transport is selected.
	DefaultMCPListen = "127.0.0.1:19342"
	// DefaultMCPPath is the HTTP path the MCP endpoint is mounted on.
	DefaultMCPPath = "/mcp"
	// DefaultMaxContentBytes caps document content, descriptions, comments and attachments per tool call.
	DefaultMaxContentBytes = int64(1 << 20)
	// DefaultBlobThreshold is the content size from which content is stored as a blob.
	DefaultBlobThreshold = client.DefaultBlobThreshold
	// DefaultHTTPTimeout bounds each REST request.
	DefaultHTTPTimeout = client.DefaultHTTPTimeout
	// DefaultHelloTimeout bounds the transaction socket handshake.
	DefaultHelloTimeout = client.DefaultHelloTimeout
	// DefaultTxTimeout bounds each socket transaction round trip.
	DefaultTxTimeout = client.DefaultTxTimeout
	// DefaultShutdownTimeout caps telemetry and client shutdown.
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultMetricsListen is the Prometheus scrape endpoint (empty disables).
	DefaultMetricsListen = ""
	// DefaultPprofListen is the pprof debug listener (empty disables).
	DefaultPprofListen = ""
	// DefaultConfigFileName is the config file searched for when --config is omitted.
	DefaultConfigFileName = "config.yaml"
)

// Config captures everything needed to run the bridge.
type Config struct {
	// BaseURL is the platform front URL serving /config.json.
	BaseURL string
	// Email and Password are the account credentials.
	Email    string
	Password string
	// Workspace is the workspace URL name.
	Workspace string

	// MCPTransport is stdio or http.
	MCPTransport string
	// MCPListen is the HTTP listen address for the http transport.
	MCPListen string
	// MCPPath is the HTTP path for the http transport.
	MCPPath string
	// ReadOnly hides every tool that writes to the platform.
	ReadOnly bool
	// MaxContentBytes caps content accepted per tool call.
	MaxContentBytes int64

	// BlobThreshold is the content size from which content is stored as a blob.
	BlobThreshold int
	// DisableSocketWrites sends document writes over REST instead of the transaction socket.
	DisableSocketWrites bool
	// HTTPTimeout bounds each REST request.
	HTTPTimeout time.Duration
	// HelloTimeout bounds the socket handshake.
	HelloTimeout time.Duration
	// TxTimeout bounds each socket transaction.
	TxTimeout time.Duration

	// OTLPEndpoint enables trace export (host:port, grpc://, grpcs://, http://, https://).
	OTLPEndpoint string
	// MetricsListen serves Prometheus metrics at /metrics when set.
	MetricsListen string
	// PprofListen serves /debug/pprof when set.
	PprofListen string
	// EnableProfilingMetrics adds Go runtime metrics to the Prometheus endpoint.
	EnableProfilingMetrics bool
	// ShutdownTimeout caps shutdown once the context is cancelled.
	ShutdownTimeout time.Duration
}

// Validate applies defaults and sanity-checks the configuration.
func (c *Config) Validate() error {
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	if c.BaseURL == "" {
		return fmt.Errorf("config: base url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("config: base url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: base url %q must be an absolute http(s) url", c.BaseURL)
	}
	c.Email = strings.TrimSpace(c.Email)
	if c.Email == "" {
		return fmt.Errorf("config: email is required")
	}
	if c.Password == "" {
		return fmt.Errorf("config: password is required")
	}
	c.Workspace = strings.TrimSpace(c.Workspace)
	if c.Workspace == "" {
		return fmt.Errorf("config: workspace is required")
	}

	c.MCPTransport = strings.ToLower(strings.TrimSpace(c.MCPTransport))
	if c.MCPTransport == "" {
		c.MCPTransport = DefaultMCPTransport
	}
	switch c.MCPTransport {
	case mcp.TransportStdio, mcp.TransportHTTP:
	default:
		return fmt.Errorf("config: mcp transport must be %q or %q", mcp.TransportStdio, mcp.TransportHTTP)
	}
	if strings.TrimSpace(c.MCPListen) == "" {
		c.MCPListen = DefaultMCPListen
	}
	if strings.TrimSpace(c.MCPPath) == "" {
		c.MCPPath = DefaultMCPPath
	}
	if c.MaxContentBytes == 0 {
		c.MaxContentBytes = DefaultMaxContentBytes
	} else if c.MaxContentBytes < 0 {
		return fmt.Errorf("config: max content bytes must be >= 0")
	}

	if c.BlobThreshold == 0 {
		c.BlobThreshold = DefaultBlobThreshold
	} else if c.BlobThreshold < 0 {
		return fmt.Errorf("config: blob threshold must be >= 0")
	}
	durations := []struct {
		name string
		v    *time.Duration
		def  time.Duration
	}{
		{"http timeout", &c.HTTPTimeout, DefaultHTTPTimeout},
		{"hello timeout", &c.HelloTimeout, DefaultHelloTimeout},
		{"tx timeout", &c.TxTimeout, DefaultTxTimeout},
		{"shutdown timeout", &c.ShutdownTimeout, DefaultShutdownTimeout},
	}
	for _, d := range durations {
		if *d.v == 0 {
			*d.v = d.def
		} else if *d.v < 0 {
			return fmt.Errorf("config: %s must be >= 0", d.name)
		}
	}

	c.OTLPEndpoint = strings.TrimSpace(c.OTLPEndpoint)
	c.MetricsListen = strings.TrimSpace(c.MetricsListen)
	c.PprofListen = strings.TrimSpace(c.PprofListen)
	if c.EnableProfilingMetrics && c.MetricsListen == "" {
		return fmt.Errorf("config: profiling metrics require metrics-listen")
	}
	return nil
}

// ClientConfig returns the credentials handed to client.New.
func (c Config) ClientConfig() client.Config {
	return client.Config{
		BaseURL:   c.BaseURL,
		Email:     c.Email,
		Password:  c.Password,
		Workspace: c.Workspace,
	}
}

// MCPConfig returns the MCP server settings.
func (c Config) MCPConfig() mcp.Config {
	return mcp.Config{
		Transport:       c.MCPTransport,
		Listen:          c.MCPListen,
		MCPPath:         c.MCPPath,
		MaxContentBytes: c.MaxContentBytes,
		ReadOnly:        c.ReadOnly,
	}
}

// DefaultConfigDir returns the default configuration directory ($HOME/.hulybridge).
// HULY_CONFIG_DIR overrides it.
func DefaultConfigDir() (string, error) {
	if override := strings.TrimSpace(os.Getenv("HULY_CONFIG_DIR")); override != "" {
		if filepath.IsAbs(override) {
			return override, nil
		}
		abs, err := filepath.Abs(override)
		if err != nil {
			return "", err
		}
		return abs, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".hulybridge"), nil
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFileName), nil
}
