package mcp

import (
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *server) registerTools(srv *mcpsdk.Server) {
	descriptions := buildToolDescriptions(s.cfg)

	addTool(s, srv, descriptions, toolSession, s.handleSessionTool)
	addTool(s, srv, descriptions, toolHelp, s.handleHelpTool)

	addTool(s, srv, descriptions, toolTeamspacesList, s.handleTeamspacesListTool)
	addTool(s, srv, descriptions, toolTeamspacesGet, s.handleTeamspacesGetTool)
	addTool(s, srv, descriptions, toolTeamspacesCreate, s.handleTeamspacesCreateTool)
	addTool(s, srv, descriptions, toolDocumentsList, s.handleDocumentsListTool)
	addTool(s, srv, descriptions, toolDocumentsGet, s.handleDocumentsGetTool)
	addTool(s, srv, descriptions, toolDocumentsCreate, s.handleDocumentsCreateTool)
	addTool(s, srv, descriptions, toolDocumentsUpdate, s.handleDocumentsUpdateTool)
	addTool(s, srv, descriptions, toolDocumentsDelete, s.handleDocumentsDeleteTool)
	addTool(s, srv, descriptions, toolDocumentsMove, s.handleDocumentsMoveTool)

	addTool(s, srv, descriptions, toolProjectsList, s.handleProjectsListTool)
	addTool(s, srv, descriptions, toolProjectsGet, s.handleProjectsGetTool)
	addTool(s, srv, descriptions, toolIssuesList, s.handleIssuesListTool)
	addTool(s, srv, descriptions, toolIssuesGet, s.handleIssuesGetTool)
	addTool(s, srv, descriptions, toolIssuesCreate, s.handleIssuesCreateTool)
	addTool(s, srv, descriptions, toolIssuesUpdate, s.handleIssuesUpdateTool)
	addTool(s, srv, descriptions, toolIssuesDelete, s.handleIssuesDeleteTool)

	addTool(s, srv, descriptions, toolCommentsList, s.handleCommentsListTool)
	addTool(s, srv, descriptions, toolCommentsAdd, s.handleCommentsAddTool)
	addTool(s, srv, descriptions, toolPersonsList, s.handlePersonsListTool)
	addTool(s, srv, descriptions, toolAttachmentsList, s.handleAttachmentsListTool)
	addTool(s, srv, descriptions, toolAttachmentsAdd, s.handleAttachmentsAddTool)
}

func addTool[In, Out any](s *server, srv *mcpsdk.Server, descriptions map[string]string, name string, h mcpsdk.ToolHandlerFor[In, Out]) {
	if s.cfg.ReadOnly && writeTools[name] {
		return
	}
	description, ok := descriptions[name]
	if !ok {
		panic(fmt.Sprintf("missing MCP tool description for %q", name))
	}
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        name,
		Description: description,
	}, withStructuredToolErrors(name, s.toolLog, h))
}
