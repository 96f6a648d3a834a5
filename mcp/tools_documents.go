package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"pkt.systems/hulybridge/api"
	"pkt.systems/hulybridge/client"
)

type teamspacesListToolInput struct {
	Limit           *int `json:"limit,omitempty" jsonschema:"Maximum teamspaces to return (1..1000, default 50)"`
	IncludeArchived bool `json:"include_archived,omitempty" jsonschema:"Also return archived teamspaces"`
}

type teamspacesToolOutput struct {
	Teamspaces []api.Teamspace `json:"teamspaces"`
	Count      int             `json:"count"`
}

func (s *server) handleTeamspacesListTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input teamspacesListToolInput) (*mcpsdk.CallToolResult, teamspacesToolOutput, error) {
	limit, err := listLimit(input.Limit)
	if err != nil {
		return nil, teamspacesToolOutput{}, err
	}
	spaces, err := s.platform.ListTeamspaces(ctx, client.ListOptions{Limit: limit, IncludeArchived: input.IncludeArchived})
	if err != nil {
		return nil, teamspacesToolOutput{}, err
	}
	return nil, teamspacesToolOutput{Teamspaces: nonNil(spaces), Count: len(spaces)}, nil
}

type teamspaceGetToolInput struct {
	TeamspaceID string `json:"teamspace_id" jsonschema:"Teamspace id"`
}

type teamspaceToolOutput struct {
	Teamspace api.Teamspace `json:"teamspace"`
}

func (s *server) handleTeamspacesGetTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input teamspaceGetToolInput) (*mcpsdk.CallToolResult, teamspaceToolOutput, error) {
	id, err := requireRef("teamspace_id", input.TeamspaceID)
	if err != nil {
		return nil, teamspaceToolOutput{}, err
	}
	ts, err := s.platform.GetTeamspace(ctx, id)
	if err != nil {
		return nil, teamspaceToolOutput{}, err
	}
	return nil, teamspaceToolOutput{Teamspace: *ts}, nil
}

type teamspaceCreateToolInput struct {
	Name        string `json:"name" jsonschema:"Teamspace name"`
	Description string `json:"description,omitempty" jsonschema:"Optional description"`
	Private     bool   `json:"private,omitempty" jsonschema:"Restrict the teamspace to its members"`
}

func (s *server) handleTeamspacesCreateTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input teamspaceCreateToolInput) (*mcpsdk.CallToolResult, teamspaceToolOutput, error) {
	name, err := validateTitle("name", input.Name)
	if err != nil {
		return nil, teamspaceToolOutput{}, err
	}
	ts, err := s.platform.CreateTeamspace(ctx, client.CreateTeamspaceRequest{
		Name:        name,
		Description: input.Description,
		Private:     input.Private,
	})
	if err != nil {
		return nil, teamspaceToolOutput{}, err
	}
	s.toolLog.Info("mcp.tool.teamspace.created", "teamspace_id", string(ts.ID))
	return nil, teamspaceToolOutput{Teamspace: *ts}, nil
}

type documentsListToolInput struct {
	TeamspaceID string `json:"teamspace_id" jsonschema:"Teamspace id"`
	Limit       *int   `json:"limit,omitempty" jsonschema:"Maximum documents to return (1..1000, default 50)"`
}

type documentsToolOutput struct {
	Documents []api.Document `json:"documents"`
	Count     int            `json:"count"`
}

func (s *server) handleDocumentsListTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input documentsListToolInput) (*mcpsdk.CallToolResult, documentsToolOutput, error) {
	teamspace, err := requireRef("teamspace_id", input.TeamspaceID)
	if err != nil {
		return nil, documentsToolOutput{}, err
	}
	limit, err := listLimit(input.Limit)
	if err != nil {
		return nil, documentsToolOutput{}, err
	}
	docs, err := s.platform.ListDocuments(ctx, teamspace, client.ListOptions{Limit: limit})
	if err != nil {
		return nil, documentsToolOutput{}, err
	}
	return nil, documentsToolOutput{Documents: nonNil(docs), Count: len(docs)}, nil
}

type documentGetToolInput struct {
	DocumentID string `json:"document_id" jsonschema:"Document id"`
}

type documentToolOutput struct {
	Document api.Document `json:"document"`
}

func (s *server) handleDocumentsGetTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input documentGetToolInput) (*mcpsdk.CallToolResult, documentToolOutput, error) {
	id, err := requireRef("document_id", input.DocumentID)
	if err != nil {
		return nil, documentToolOutput{}, err
	}
	doc, err := s.platform.GetDocument(ctx, id)
	if err != nil {
		return nil, documentToolOutput{}, err
	}
	return nil, documentToolOutput{Document: *doc}, nil
}

type documentCreateToolInput struct {
	TeamspaceID string `json:"teamspace_id" jsonschema:"Teamspace to create the document in"`
	Title       string `json:"title" jsonschema:"Document title"`
	Content     string `json:"content,omitempty" jsonschema:"Markdown content"`
	ParentID    string `json:"parent_id,omitempty" jsonschema:"Optional parent document id"`
}

func (s *server) handleDocumentsCreateTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input documentCreateToolInput) (*mcpsdk.CallToolResult, documentToolOutput, error) {
	teamspace, err := requireRef("teamspace_id", input.TeamspaceID)
	if err != nil {
		return nil, documentToolOutput{}, err
	}
	title, err := validateTitle("title", input.Title)
	if err != nil {
		return nil, documentToolOutput{}, err
	}
	if err := s.validateContent("content", len(input.Content)); err != nil {
		return nil, documentToolOutput{}, err
	}
	doc, err := s.platform.CreateDocument(ctx, client.CreateDocumentRequest{
		Teamspace: teamspace,
		Title:     title,
		Content:   input.Content,
		Parent:    api.Ref(input.ParentID),
	})
	if err != nil {
		return nil, documentToolOutput{}, err
	}
	s.toolLog.Info("mcp.tool.document.created", "document_id", string(doc.ID), "teamspace_id", string(teamspace), "blob", doc.ContentBlob != "")
	return nil, documentToolOutput{Document: *doc}, nil
}

type documentUpdateToolInput struct {
	DocumentID string  `json:"document_id" jsonschema:"Document id"`
	Title      *string `json:"title,omitempty" jsonschema:"New title"`
	Content    *string `json:"content,omitempty" jsonschema:"New markdown content, replaces the old content"`
}

func (s *server) handleDocumentsUpdateTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input documentUpdateToolInput) (*mcpsdk.CallToolResult, documentToolOutput, error) {
	id, err := requireRef("document_id", input.DocumentID)
	if err != nil {
		return nil, documentToolOutput{}, err
	}
	if input.Title == nil && input.Content == nil {
		return nil, documentToolOutput{}, invalidArgument("title or content is required")
	}
	req := client.UpdateDocumentRequest{Content: input.Content}
	if input.Title != nil {
		title, err := validateTitle("title", *input.Title)
		if err != nil {
			return nil, documentToolOutput{}, err
		}
		req.Title = &title
	}
	if input.Content != nil {
		if err := s.validateContent("content", len(*input.Content)); err != nil {
			return nil, documentToolOutput{}, err
		}
	}
	doc, err := s.platform.UpdateDocument(ctx, id, req)
	if err != nil {
		return nil, documentToolOutput{}, err
	}
	return nil, documentToolOutput{Document: *doc}, nil
}

type documentDeleteToolInput struct {
	DocumentID string `json:"document_id" jsonschema:"Document id"`
}

type deleteToolOutput struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

func (s *server) handleDocumentsDeleteTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input documentDeleteToolInput) (*mcpsdk.CallToolResult, deleteToolOutput, error) {
	id, err := requireRef("document_id", input.DocumentID)
	if err != nil {
		return nil, deleteToolOutput{}, err
	}
	if err := s.platform.DeleteDocument(ctx, id); err != nil {
		return nil, deleteToolOutput{}, err
	}
	s.toolLog.Info("mcp.tool.document.deleted", "document_id", string(id))
	return nil, deleteToolOutput{ID: string(id), Deleted: true}, nil
}

type documentMoveToolInput struct {
	DocumentID  string `json:"document_id" jsonschema:"Document id"`
	ParentID    string `json:"parent_id,omitempty" jsonschema:"New parent document id; empty moves to top level"`
	TeamspaceID string `json:"teamspace_id,omitempty" jsonschema:"Target teamspace; empty keeps the current one"`
}

func (s *server) handleDocumentsMoveTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input documentMoveToolInput) (*mcpsdk.CallToolResult, documentToolOutput, error) {
	id, err := requireRef("document_id", input.DocumentID)
	if err != nil {
		return nil, documentToolOutput{}, err
	}
	doc, err := s.platform.MoveDocument(ctx, id, client.MoveDocumentRequest{
		Teamspace: api.Ref(input.TeamspaceID),
		Parent:    api.Ref(input.ParentID),
	})
	if err != nil {
		return nil, documentToolOutput{}, err
	}
	return nil, documentToolOutput{Document: *doc}, nil
}

// nonNil keeps empty results encoded as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
