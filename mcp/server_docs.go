package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	docOverviewURI  = "resource://docs/overview.md"
	docDocumentsURI = "resource://docs/documents.md"
	docTrackerURI   = "resource://docs/tracker.md"
	docErrorsURI    = "resource://docs/errors.md"
)

func defaultServerInstructions(cfg Config) string {
	mode := "read-write"
	if cfg.ReadOnly {
		mode = "read-only"
	}
	return strings.TrimSpace(fmt.Sprintf(`
hulybridge MCP operating manual:
- Mode: %s. Content, descriptions, comments and attachments are capped at %s per call.
- Start with huly.session to authenticate and learn the bound workspace, then huly.help for workflows.
- Documents live in teamspaces: huly.teamspaces.list -> huly.documents.list -> huly.documents.get.
- Issues live in projects: huly.projects.list -> huly.issues.list (filter by project identifier such as HULY) -> huly.issues.get with HULY-12 style identifiers.
- Comments and attachments hang off an issue or document: pass its id as object_id and issue or document as object_class.
- Lists default to %d results; limit accepts 1..%d.
- Errors are JSON envelopes {"error":{"error_code","detail","retryable"}}; retry only when retryable is true.
- Documentation resources: %s, %s, %s, %s
`, mode, humanize.IBytes(uint64(normalizedMaxContentBytes(cfg.MaxContentBytes))), defaultListLimit, maxListLimit,
		docOverviewURI, docDocumentsURI, docTrackerURI, docErrorsURI))
}

func (s *server) registerResources(srv *mcpsdk.Server) {
	for _, uri := range s.resourceURIs() {
		srv.AddResource(&mcpsdk.Resource{
			URI:         uri,
			Name:        uri,
			Title:       uri,
			Description: "hulybridge MCP usage documentation",
			MIMEType:    "text/markdown",
		}, s.handleDocResource)
	}
}

func (s *server) resourceURIs() []string {
	docs := s.resourceDocs()
	uris := make([]string, 0, len(docs))
	for uri := range docs {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	return uris
}

func (s *server) resourceDocs() map[string]string {
	return map[string]string{
		docOverviewURI: strings.TrimSpace(`
# hulybridge MCP overview

hulybridge exposes one platform workspace. Credentials and the workspace are
fixed by the server configuration; tools never take tokens.

Recommended sequence:
1. huly.session to authenticate and confirm the workspace.
2. huly.teamspaces.list or huly.projects.list to find where to work.
3. Read before writing: huly.documents.get, huly.issues.get.
`),
		docDocumentsURI: strings.TrimSpace(fmt.Sprintf(`
# Documents

- Documents belong to a teamspace and may nest under a parent document.
- Content is markdown. Content of 10 KiB or more is stored in blob storage
  transparently; reads always return the resolved text. When a blob cannot be
  fetched the raw blob reference is returned instead of failing the read.
- Writes travel over the transaction socket and fall back to REST when the
  socket cannot be established. A server rejection is never retried.
- Content larger than %s is rejected before any platform call.
`, humanize.IBytes(uint64(normalizedMaxContentBytes(s.cfg.MaxContentBytes))))),
		docTrackerURI: strings.TrimSpace(`
# Tracker

- Projects have a short identifier such as HULY. Issues are numbered per
  project (HULY-1, HULY-2, ...).
- Priority is 0 none, 1 urgent, 2 high, 3 medium, 4 low.
- Sub-issues: pass the parent issue identifier as parent on create. The parent
  must belong to the same project.
- Status defaults to the project's default status.
`),
		docErrorsURI: strings.TrimSpace(`
# Errors

Tool failures carry {"error":{"error_code":...,"detail":...,"retryable":...}}.

| error_code | meaning |
|---|---|
| config_error | platform discovery document unusable |
| authentication_failed | login or workspace selection rejected |
| not_authenticated | no usable session |
| invalid_url | malformed platform URL |
| invalid_input | arguments rejected before any platform call |
| not_found | the addressed object does not exist |
| request_failed | non-2xx REST response, see http_status |
| invalid_response | response body not decodable |
| not_connected, connection_closed, timeout | socket failures, retryable |
| server_error | platform rejected the transaction, see server_code |
`),
	}
}

func (s *server) handleDocResource(_ context.Context, req *mcpsdk.ReadResourceRequest) (*mcpsdk.ReadResourceResult, error) {
	uri := ""
	if req != nil && req.Params != nil {
		uri = strings.TrimSpace(req.Params.URI)
	}
	content, ok := s.resourceDocs()[uri]
	if !ok {
		return nil, mcpsdk.ResourceNotFoundError(uri)
	}
	return &mcpsdk.ReadResourceResult{
		Contents: []*mcpsdk.ResourceContents{{
			URI:      uri,
			MIMEType: "text/markdown",
			Text:     content,
		}},
	}, nil
}

type helpToolInput struct {
	Topic string `json:"topic,omitempty" jsonschema:"Optional topic: overview, documents, tracker, errors"`
}

type helpToolOutput struct {
	Topic     string   `json:"topic"`
	Summary   string   `json:"summary"`
	NextCalls []string `json:"next_calls"`
	Resources []string `json:"resources"`
	ReadOnly  bool     `json:"read_only"`
}

func (s *server) handleHelpTool(_ context.Context, _ *mcpsdk.CallToolRequest, input helpToolInput) (*mcpsdk.CallToolResult, helpToolOutput, error) {
	topic := strings.ToLower(strings.TrimSpace(input.Topic))
	if topic == "" {
		topic = "overview"
	}
	out := helpToolOutput{Topic: topic, ReadOnly: s.cfg.ReadOnly}
	switch topic {
	case "overview":
		out.Summary = "Authenticate with huly.session, then browse teamspaces and projects before reading or writing documents and issues."
		out.NextCalls = []string{toolSession, toolTeamspacesList, toolProjectsList}
		out.Resources = []string{docOverviewURI, docDocumentsURI, docTrackerURI}
	case "documents":
		out.Summary = "List teamspaces, list their documents, then read, create, update, move or delete documents. Large content is handled transparently."
		out.NextCalls = []string{toolTeamspacesList, toolDocumentsList, toolDocumentsGet, toolDocumentsCreate, toolDocumentsUpdate, toolDocumentsMove}
		out.Resources = []string{docDocumentsURI}
	case "tracker":
		out.Summary = "Find the project identifier, list or fetch issues by identifier, create issues and sub-issues, comment and attach files."
		out.NextCalls = []string{toolProjectsList, toolIssuesList, toolIssuesGet, toolIssuesCreate, toolIssuesUpdate, toolCommentsAdd, toolAttachmentsAdd}
		out.Resources = []string{docTrackerURI}
	case "errors":
		out.Summary = "Failures return a JSON envelope with a stable error_code. Retry only when retryable is true."
		out.NextCalls = []string{toolSession}
		out.Resources = []string{docErrorsURI}
	default:
		return nil, helpToolOutput{}, invalidArgument("unknown help topic %q", topic)
	}
	if s.cfg.ReadOnly {
		out.NextCalls = readableTools(out.NextCalls)
	}
	return nil, out, nil
}

func readableTools(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if !writeTools[name] {
			out = append(out, name)
		}
	}
	return out
}
