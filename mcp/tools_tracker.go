package mcp

import (
	"context"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"pkt.systems/hulybridge/api"
	"pkt.systems/hulybridge/client"
)

type projectsListToolInput struct {
	Limit           *int `json:"limit,omitempty" jsonschema:"Maximum projects to return (1..1000, default 50)"`
	IncludeArchived bool `json:"include_archived,omitempty" jsonschema:"Also return archived projects"`
}

type projectsToolOutput struct {
	Projects []api.Project `json:"projects"`
	Count    int           `json:"count"`
}

func (s *server) handleProjectsListTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input projectsListToolInput) (*mcpsdk.CallToolResult, projectsToolOutput, error) {
	limit, err := listLimit(input.Limit)
	if err != nil {
		return nil, projectsToolOutput{}, err
	}
	projects, err := s.platform.ListProjects(ctx, client.ListOptions{Limit: limit, IncludeArchived: input.IncludeArchived})
	if err != nil {
		return nil, projectsToolOutput{}, err
	}
	return nil, projectsToolOutput{Projects: nonNil(projects), Count: len(projects)}, nil
}

type projectGetToolInput struct {
	Project string `json:"project" jsonschema:"Project identifier such as HULY, or project id"`
}

type projectToolOutput struct {
	Project api.Project `json:"project"`
}

func (s *server) handleProjectsGetTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input projectGetToolInput) (*mcpsdk.CallToolResult, projectToolOutput, error) {
	key, err := requireRef("project", input.Project)
	if err != nil {
		return nil, projectToolOutput{}, err
	}
	p, err := s.platform.GetProject(ctx, string(key))
	if err != nil {
		return nil, projectToolOutput{}, err
	}
	return nil, projectToolOutput{Project: *p}, nil
}

type issuesListToolInput struct {
	Project  string `json:"project,omitempty" jsonschema:"Project identifier or id"`
	Status   string `json:"status,omitempty" jsonschema:"Status id"`
	Assignee string `json:"assignee,omitempty" jsonschema:"Assignee person id"`
	Limit    *int   `json:"limit,omitempty" jsonschema:"Maximum issues to return (1..1000, default 50)"`
}

type issuesToolOutput struct {
	Issues []api.Issue `json:"issues"`
	Count  int         `json:"count"`
}

func (s *server) handleIssuesListTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input issuesListToolInput) (*mcpsdk.CallToolResult, issuesToolOutput, error) {
	limit, err := listLimit(input.Limit)
	if err != nil {
		return nil, issuesToolOutput{}, err
	}
	issues, err := s.platform.ListIssues(ctx, client.IssueFilter{
		Project:  strings.TrimSpace(input.Project),
		Status:   api.Ref(strings.TrimSpace(input.Status)),
		Assignee: api.Ref(strings.TrimSpace(input.Assignee)),
		Limit:    limit,
	})
	if err != nil {
		return nil, issuesToolOutput{}, err
	}
	return nil, issuesToolOutput{Issues: nonNil(issues), Count: len(issues)}, nil
}

type issueGetToolInput struct {
	Issue string `json:"issue" jsonschema:"Issue identifier such as HULY-12, or issue id"`
}

type issueToolOutput struct {
	Issue api.Issue `json:"issue"`
}

func (s *server) handleIssuesGetTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input issueGetToolInput) (*mcpsdk.CallToolResult, issueToolOutput, error) {
	key, err := requireRef("issue", input.Issue)
	if err != nil {
		return nil, issueToolOutput{}, err
	}
	issue, err := s.platform.GetIssue(ctx, string(key))
	if err != nil {
		return nil, issueToolOutput{}, err
	}
	return nil, issueToolOutput{Issue: *issue}, nil
}

type issueCreateToolInput struct {
	Project         string  `json:"project" jsonschema:"Project identifier or id"`
	Title           string  `json:"title" jsonschema:"Issue title"`
	Description     string  `json:"description,omitempty" jsonschema:"Markdown description"`
	Priority        int     `json:"priority,omitempty" jsonschema:"0 none, 1 urgent, 2 high, 3 medium, 4 low"`
	Status          string  `json:"status,omitempty" jsonschema:"Status id; defaults to the project default"`
	Assignee        string  `json:"assignee,omitempty" jsonschema:"Assignee person id"`
	Parent          string  `json:"parent,omitempty" jsonschema:"Parent issue identifier or id"`
	DueDateUnixMS   int64   `json:"due_date_unix_ms,omitempty" jsonschema:"Due date in Unix milliseconds"`
	EstimationHours float64 `json:"estimation_hours,omitempty" jsonschema:"Estimated effort in hours"`
}

func (s *server) handleIssuesCreateTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input issueCreateToolInput) (*mcpsdk.CallToolResult, issueToolOutput, error) {
	project, err := requireRef("project", input.Project)
	if err != nil {
		return nil, issueToolOutput{}, err
	}
	title, err := validateTitle("title", input.Title)
	if err != nil {
		return nil, issueToolOutput{}, err
	}
	if err := validatePriority(input.Priority); err != nil {
		return nil, issueToolOutput{}, err
	}
	if err := s.validateContent("description", len(input.Description)); err != nil {
		return nil, issueToolOutput{}, err
	}
	if input.DueDateUnixMS < 0 || input.EstimationHours < 0 {
		return nil, issueToolOutput{}, invalidArgument("due_date_unix_ms and estimation_hours must not be negative")
	}
	issue, err := s.platform.CreateIssue(ctx, client.CreateIssueRequest{
		Project:     string(project),
		Title:       title,
		Description: input.Description,
		Priority:    input.Priority,
		Status:      api.Ref(strings.TrimSpace(input.Status)),
		Assignee:    api.Ref(strings.TrimSpace(input.Assignee)),
		Parent:      strings.TrimSpace(input.Parent),
		DueDate:     api.Timestamp(input.DueDateUnixMS),
		Estimation:  input.EstimationHours,
	})
	if err != nil {
		return nil, issueToolOutput{}, err
	}
	return nil, issueToolOutput{Issue: *issue}, nil
}

type issueUpdateToolInput struct {
	Issue           string   `json:"issue" jsonschema:"Issue identifier or id"`
	Title           *string  `json:"title,omitempty" jsonschema:"New title"`
	Description     *string  `json:"description,omitempty" jsonschema:"New markdown description"`
	Status          *string  `json:"status,omitempty" jsonschema:"New status id"`
	Priority        *int     `json:"priority,omitempty" jsonschema:"0 none, 1 urgent, 2 high, 3 medium, 4 low"`
	Assignee        *string  `json:"assignee,omitempty" jsonschema:"Assignee person id; empty unassigns"`
	DueDateUnixMS   *int64   `json:"due_date_unix_ms,omitempty" jsonschema:"Due date in Unix milliseconds; 0 clears"`
	EstimationHours *float64 `json:"estimation_hours,omitempty" jsonschema:"Estimated effort in hours"`
}

func (s *server) handleIssuesUpdateTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input issueUpdateToolInput) (*mcpsdk.CallToolResult, issueToolOutput, error) {
	key, err := requireRef("issue", input.Issue)
	if err != nil {
		return nil, issueToolOutput{}, err
	}
	req := client.UpdateIssueRequest{
		Description: input.Description,
		Priority:    input.Priority,
		Estimation:  input.EstimationHours,
	}
	if input.Title != nil {
		title, err := validateTitle("title", *input.Title)
		if err != nil {
			return nil, issueToolOutput{}, err
		}
		req.Title = &title
	}
	if input.Description != nil {
		if err := s.validateContent("description", len(*input.Description)); err != nil {
			return nil, issueToolOutput{}, err
		}
	}
	if input.Priority != nil {
		if err := validatePriority(*input.Priority); err != nil {
			return nil, issueToolOutput{}, err
		}
	}
	if input.Status != nil {
		status := api.Ref(strings.TrimSpace(*input.Status))
		req.Status = &status
	}
	if input.Assignee != nil {
		assignee := api.Ref(strings.TrimSpace(*input.Assignee))
		req.Assignee = &assignee
	}
	if input.DueDateUnixMS != nil {
		due := api.Timestamp(*input.DueDateUnixMS)
		req.DueDate = &due
	}
	issue, err := s.platform.UpdateIssue(ctx, string(key), req)
	if err != nil {
		return nil, issueToolOutput{}, err
	}
	return nil, issueToolOutput{Issue: *issue}, nil
}

type issueDeleteToolInput struct {
	Issue string `json:"issue" jsonschema:"Issue identifier or id"`
}

func (s *server) handleIssuesDeleteTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input issueDeleteToolInput) (*mcpsdk.CallToolResult, deleteToolOutput, error) {
	key, err := requireRef("issue", input.Issue)
	if err != nil {
		return nil, deleteToolOutput{}, err
	}
	if err := s.platform.DeleteIssue(ctx, string(key)); err != nil {
		return nil, deleteToolOutput{}, err
	}
	s.toolLog.Info("mcp.tool.issue.deleted", "issue", string(key))
	return nil, deleteToolOutput{ID: string(key), Deleted: true}, nil
}
