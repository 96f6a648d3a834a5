package mcp

import (
	"context"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"pkt.systems/hulybridge/api"
	"pkt.systems/hulybridge/client"
)

type sessionToolInput struct{}

type sessionToolOutput struct {
	BaseURL       string `json:"base_url"`
	Endpoint      string `json:"endpoint,omitempty"`
	Workspace     string `json:"workspace,omitempty"`
	Account       string `json:"account,omitempty"`
	Authenticated bool   `json:"authenticated"`
	SocketState   string `json:"socket_state"`
}

func (s *server) handleSessionTool(ctx context.Context, _ *mcpsdk.CallToolRequest, _ sessionToolInput) (*mcpsdk.CallToolResult, sessionToolOutput, error) {
	if err := s.platform.EnsureAuthenticated(ctx); err != nil {
		return nil, sessionToolOutput{}, err
	}
	info := s.platform.Session()
	return nil, sessionToolOutput{
		BaseURL:       info.BaseURL,
		Endpoint:      info.Endpoint,
		Workspace:     info.Workspace,
		Account:       string(info.Account),
		Authenticated: info.Authenticated,
		SocketState:   info.Socket.String(),
	}, nil
}

type personsListToolInput struct {
	Limit *int `json:"limit,omitempty" jsonschema:"Maximum persons to return (1..1000, default 50)"`
}

type personsToolOutput struct {
	Persons []api.Person `json:"persons"`
	Count   int          `json:"count"`
}

func (s *server) handlePersonsListTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input personsListToolInput) (*mcpsdk.CallToolResult, personsToolOutput, error) {
	limit, err := listLimit(input.Limit)
	if err != nil {
		return nil, personsToolOutput{}, err
	}
	persons, err := s.platform.ListPersons(ctx, client.ListOptions{Limit: limit})
	if err != nil {
		return nil, personsToolOutput{}, err
	}
	return nil, personsToolOutput{Persons: nonNil(persons), Count: len(persons)}, nil
}

type commentsListToolInput struct {
	ObjectID string `json:"object_id" jsonschema:"Issue or document id"`
	Limit    *int   `json:"limit,omitempty" jsonschema:"Maximum comments to return (1..1000, default 50)"`
}

type commentsToolOutput struct {
	Comments []api.Comment `json:"comments"`
	Count    int           `json:"count"`
}

func (s *server) handleCommentsListTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input commentsListToolInput) (*mcpsdk.CallToolResult, commentsToolOutput, error) {
	id, err := requireRef("object_id", input.ObjectID)
	if err != nil {
		return nil, commentsToolOutput{}, err
	}
	limit, err := listLimit(input.Limit)
	if err != nil {
		return nil, commentsToolOutput{}, err
	}
	comments, err := s.platform.ListComments(ctx, id, client.ListOptions{Limit: limit})
	if err != nil {
		return nil, commentsToolOutput{}, err
	}
	return nil, commentsToolOutput{Comments: nonNil(comments), Count: len(comments)}, nil
}

type commentAddToolInput struct {
	ObjectID    string `json:"object_id" jsonschema:"Issue or document id"`
	ObjectClass string `json:"object_class" jsonschema:"issue, document or a full class id"`
	Message     string `json:"message" jsonschema:"Comment text"`
}

type commentToolOutput struct {
	Comment api.Comment `json:"comment"`
}

func (s *server) handleCommentsAddTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input commentAddToolInput) (*mcpsdk.CallToolResult, commentToolOutput, error) {
	id, err := requireRef("object_id", input.ObjectID)
	if err != nil {
		return nil, commentToolOutput{}, err
	}
	class, err := objectClass(input.ObjectClass)
	if err != nil {
		return nil, commentToolOutput{}, err
	}
	if strings.TrimSpace(input.Message) == "" {
		return nil, commentToolOutput{}, invalidArgument("message is required")
	}
	if err := s.validateContent("message", len(input.Message)); err != nil {
		return nil, commentToolOutput{}, err
	}
	comment, err := s.platform.AddComment(ctx, id, class, input.Message)
	if err != nil {
		return nil, commentToolOutput{}, err
	}
	return nil, commentToolOutput{Comment: *comment}, nil
}

type attachmentsListToolInput struct {
	ObjectID string `json:"object_id" jsonschema:"Issue or document id"`
	Limit    *int   `json:"limit,omitempty" jsonschema:"Maximum attachments to return (1..1000, default 50)"`
}

type attachmentsToolOutput struct {
	Attachments []api.Attachment `json:"attachments"`
	Count       int              `json:"count"`
}

func (s *server) handleAttachmentsListTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input attachmentsListToolInput) (*mcpsdk.CallToolResult, attachmentsToolOutput, error) {
	id, err := requireRef("object_id", input.ObjectID)
	if err != nil {
		return nil, attachmentsToolOutput{}, err
	}
	limit, err := listLimit(input.Limit)
	if err != nil {
		return nil, attachmentsToolOutput{}, err
	}
	list, err := s.platform.ListAttachments(ctx, id, client.ListOptions{Limit: limit})
	if err != nil {
		return nil, attachmentsToolOutput{}, err
	}
	return nil, attachmentsToolOutput{Attachments: nonNil(list), Count: len(list)}, nil
}

type attachmentAddToolInput struct {
	ObjectID      string `json:"object_id" jsonschema:"Issue or document id"`
	ObjectClass   string `json:"object_class" jsonschema:"issue, document or a full class id"`
	Name          string `json:"name" jsonschema:"File name"`
	ContentType   string `json:"content_type,omitempty" jsonschema:"MIME type, defaults to text/plain for content_text and application/octet-stream otherwise"`
	ContentText   string `json:"content_text,omitempty" jsonschema:"UTF-8 file content"`
	ContentBase64 string `json:"content_base64,omitempty" jsonschema:"Base64 file content"`
}

type attachmentToolOutput struct {
	Attachment api.Attachment `json:"attachment"`
}

func (s *server) handleAttachmentsAddTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input attachmentAddToolInput) (*mcpsdk.CallToolResult, attachmentToolOutput, error) {
	id, err := requireRef("object_id", input.ObjectID)
	if err != nil {
		return nil, attachmentToolOutput{}, err
	}
	class, err := objectClass(input.ObjectClass)
	if err != nil {
		return nil, attachmentToolOutput{}, err
	}
	name, err := validateTitle("name", input.Name)
	if err != nil {
		return nil, attachmentToolOutput{}, err
	}
	data, err := decodePayload(input.ContentText, input.ContentBase64)
	if err != nil {
		return nil, attachmentToolOutput{}, err
	}
	if err := s.validateContent("attachment", len(data)); err != nil {
		return nil, attachmentToolOutput{}, err
	}
	contentType := strings.TrimSpace(input.ContentType)
	if contentType == "" && input.ContentText != "" {
		contentType = "text/plain; charset=utf-8"
	}
	att, err := s.platform.AttachFile(ctx, client.AttachFileRequest{
		ObjectID:    id,
		ObjectClass: class,
		Name:        name,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		return nil, attachmentToolOutput{}, err
	}
	s.toolLog.Info("mcp.tool.attachment.added", "object_id", string(id), "attachment_id", string(att.ID), "size", att.Size)
	return nil, attachmentToolOutput{Attachment: *att}, nil
}
