package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"pkt.systems/hulybridge/api"
	"pkt.systems/hulybridge/client"
	"pkt.systems/hulybridge/internal/svcfields"
	"pkt.systems/hulybridge/internal/version"
	"pkt.systems/pslog"
)

// Transports served by Run.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

const (
	defaultListen          = "127.0.0.1:19342"
	defaultMCPPath         = "/mcp"
	defaultMaxContentBytes = 1 << 20
	shutdownTimeout        = 10 * time.Second
)

// Config controls MCP server runtime behavior.
type Config struct {
	// Transport is stdio (default) or http.
	Transport string
	// Listen is the streamable HTTP listen address.
	Listen string
	// MCPPath is the streamable HTTP endpoint path.
	MCPPath string
	// MaxContentBytes caps document content, issue descriptions and
	// attachment payloads accepted from tool calls.
	MaxContentBytes int64
	// ReadOnly registers only the tools that do not write.
	ReadOnly bool
}

// Platform is the platform client surface the tools call.
type Platform interface {
	Session() client.SessionInfo
	EnsureAuthenticated(ctx context.Context) error

	ListTeamspaces(ctx context.Context, opts client.ListOptions) ([]api.Teamspace, error)
	GetTeamspace(ctx context.Context, id api.Ref) (*api.Teamspace, error)
	CreateTeamspace(ctx context.Context, req client.CreateTeamspaceRequest) (*api.Teamspace, error)
	ListDocuments(ctx context.Context, teamspace api.Ref, opts client.ListOptions) ([]api.Document, error)
	GetDocument(ctx context.Context, id api.Ref) (*api.Document, error)
	CreateDocument(ctx context.Context, req client.CreateDocumentRequest) (*api.Document, error)
	UpdateDocument(ctx context.Context, id api.Ref, req client.UpdateDocumentRequest) (*api.Document, error)
	DeleteDocument(ctx context.Context, id api.Ref) error
	MoveDocument(ctx context.Context, id api.Ref, req client.MoveDocumentRequest) (*api.Document, error)

	ListProjects(ctx context.Context, opts client.ListOptions) ([]api.Project, error)
	GetProject(ctx context.Context, identifierOrID string) (*api.Project, error)
	ListIssues(ctx context.Context, filter client.IssueFilter) ([]api.Issue, error)
	GetIssue(ctx context.Context, identifierOrID string) (*api.Issue, error)
	CreateIssue(ctx context.Context, req client.CreateIssueRequest) (*api.Issue, error)
	UpdateIssue(ctx context.Context, identifierOrID string, req client.UpdateIssueRequest) (*api.Issue, error)
	DeleteIssue(ctx context.Context, identifierOrID string) error

	ListPersons(ctx context.Context, opts client.ListOptions) ([]api.Person, error)
	AddComment(ctx context.Context, objectID api.Ref, objectClass api.Class, message string) (*api.Comment, error)
	ListComments(ctx context.Context, objectID api.Ref, opts client.ListOptions) ([]api.Comment, error)
	ListAttachments(ctx context.Context, objectID api.Ref, opts client.ListOptions) ([]api.Attachment, error)
	AttachFile(ctx context.Context, req client.AttachFileRequest) (*api.Attachment, error)
}

var _ Platform = (*client.Client)(nil)

// Server is the MCP facade service contract.
type Server interface {
	Run(context.Context) error
}

// NewServerRequest wraps constructor inputs.
type NewServerRequest struct {
	Config   Config
	Platform Platform
	Logger   pslog.Logger
}

type server struct {
	cfg          Config
	platform     Platform
	logger       pslog.Logger
	toolLog      pslog.Logger
	lifecycleLog pslog.Logger
	transportLog pslog.Logger
	mcpHTTPPath  string
}

// NewServer constructs the MCP facade over platform.
func NewServer(req NewServerRequest) (Server, error) {
	cfg := req.Config
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if req.Platform == nil {
		return nil, fmt.Errorf("platform client required")
	}
	logger := req.Logger
	if logger == nil {
		logger = pslog.NewStructured(os.Stderr).With("app", "hulybridge")
	}
	return newServer(cfg, req.Platform, logger), nil
}

func newServer(cfg Config, platform Platform, logger pslog.Logger) *server {
	return &server{
		cfg:          cfg,
		platform:     platform,
		logger:       logger,
		toolLog:      svcfields.WithSubsystem(logger, svcfields.MCPTools),
		lifecycleLog: svcfields.WithSubsystem(logger, svcfields.Subsystem("server.lifecycle", "mcp")),
		transportLog: svcfields.WithSubsystem(logger, svcfields.MCPTransport),
		mcpHTTPPath:  cleanHTTPPath(cfg.MCPPath),
	}
}

func (s *server) Run(ctx context.Context) error {
	mcpSrv := s.newSDKServer()
	if s.cfg.Transport == TransportStdio {
		s.lifecycleLog.Info("mcp.server.start", "transport", TransportStdio, "read_only", s.cfg.ReadOnly)
		err := mcpSrv.Run(ctx, &mcpsdk.StdioTransport{})
		if err == nil || errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	httpServer := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.buildMux(mcpSrv),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.lifecycleLog.Info("mcp.server.start", "transport", TransportHTTP, "listen", s.cfg.Listen, "mcp_path", s.mcpHTTPPath, "read_only", s.cfg.ReadOnly)
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.lifecycleLog.Info("mcp.server.stopped")
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *server) newSDKServer() *mcpsdk.Server {
	mcpSrv := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "hulybridge",
		Version: version.Current(),
	}, &mcpsdk.ServerOptions{
		Instructions: defaultServerInstructions(s.cfg),
	})
	s.registerResources(mcpSrv)
	s.registerTools(mcpSrv)
	return mcpSrv
}

func (s *server) buildMux(mcpSrv *mcpsdk.Server) *http.ServeMux {
	streamable := mcpsdk.NewStreamableHTTPHandler(func(_ *http.Request) *mcpsdk.Server {
		return mcpSrv
	}, nil)
	mux := http.NewServeMux()
	mux.Handle(s.mcpHTTPPath, s.logRequests(streamable))
	return mux
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.transportLog.Trace("mcp.transport.http.request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

func applyDefaults(cfg *Config) {
	cfg.Transport = strings.ToLower(strings.TrimSpace(cfg.Transport))
	if cfg.Transport == "" {
		cfg.Transport = TransportStdio
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = defaultListen
	}
	if strings.TrimSpace(cfg.MCPPath) == "" {
		cfg.MCPPath = defaultMCPPath
	}
	if cfg.MaxContentBytes <= 0 {
		cfg.MaxContentBytes = defaultMaxContentBytes
	}
}

func validateConfig(cfg Config) error {
	switch cfg.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("invalid mcp transport %q (expected stdio|http)", cfg.Transport)
	}
	if cfg.Transport == TransportHTTP && strings.TrimSpace(cfg.Listen) == "" {
		return fmt.Errorf("listen address required")
	}
	return nil
}

func cleanHTTPPath(raw string) string {
	p := strings.TrimSpace(raw)
	if p == "" {
		return defaultMCPPath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
