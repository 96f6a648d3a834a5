package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"pkt.systems/hulybridge/api"
	"pkt.systems/hulybridge/internal/ids"
)

// ListProjects returns the tracker projects. Archived projects are skipped
// unless opts.IncludeArchived is set.
func (c *Client) ListProjects(ctx context.Context, opts ListOptions) ([]api.Project, error) {
	return FindAll[api.Project](ctx, c, api.ClassProject, spaceQuery(opts), opts.find())
}

// GetProject looks a project up by identifier (e.g. "HULY") and then by id.
func (c *Client) GetProject(ctx context.Context, identifierOrID string) (*api.Project, error) {
	key := strings.TrimSpace(identifierOrID)
	if key == "" {
		return nil, invalidInput("project required")
	}
	p, err := FindOne[api.Project](ctx, c, api.ClassProject, api.Attributes{"identifier": api.String(key)}, nil)
	if err != nil {
		return nil, err
	}
	if p == nil {
		if p, err = FindOne[api.Project](ctx, c, api.ClassProject, byID(api.Ref(key)), nil); err != nil {
			return nil, err
		}
	}
	if p == nil {
		return nil, notFound("project", key)
	}
	return p, nil
}

// IssueFilter narrows ListIssues. Empty fields do not filter.
type IssueFilter struct {
	// Project is a project identifier or id.
	Project  string
	Status   api.Ref
	Assignee api.Ref
	Limit    int
}

// ListIssues returns issues matching filter with descriptions resolved.
func (c *Client) ListIssues(ctx context.Context, filter IssueFilter) ([]api.Issue, error) {
	query := api.Attributes{}
	if filter.Project != "" {
		p, err := c.GetProject(ctx, filter.Project)
		if err != nil {
			return nil, err
		}
		query["space"] = api.String(string(p.ID))
	}
	if filter.Status != "" {
		query["status"] = api.String(string(filter.Status))
	}
	if filter.Assignee != "" {
		query["assignee"] = api.String(string(filter.Assignee))
	}
	var opts *FindOptions
	if filter.Limit != 0 {
		opts = &FindOptions{Limit: filter.Limit}
	}
	issues, err := FindAll[api.Issue](ctx, c, api.ClassIssue, query, opts)
	if err != nil {
		return nil, err
	}
	for i := range issues {
		issues[i].Description, _ = c.resolveContent(ctx, issues[i].Description)
	}
	return issues, nil
}

// GetIssue looks an issue up by identifier (e.g. "HULY-12") and then by id.
// The description is resolved.
func (c *Client) GetIssue(ctx context.Context, identifierOrID string) (*api.Issue, error) {
	issue, err := c.findIssue(ctx, identifierOrID)
	if err != nil {
		return nil, err
	}
	issue.Description, _ = c.resolveContent(ctx, issue.Description)
	return issue, nil
}

func (c *Client) findIssue(ctx context.Context, identifierOrID string) (*api.Issue, error) {
	key := strings.TrimSpace(identifierOrID)
	if key == "" {
		return nil, invalidInput("issue required")
	}
	issue, err := FindOne[api.Issue](ctx, c, api.ClassIssue, api.Attributes{"identifier": api.String(key)}, nil)
	if err != nil {
		return nil, err
	}
	if issue == nil {
		if issue, err = FindOne[api.Issue](ctx, c, api.ClassIssue, byID(api.Ref(key)), nil); err != nil {
			return nil, err
		}
	}
	if issue == nil {
		return nil, notFound("issue", key)
	}
	return issue, nil
}

// CreateIssueRequest describes a new issue.
type CreateIssueRequest struct {
	// Project is a project identifier or id.
	Project     string
	Title       string
	Description string
	// Priority is in 0..4.
	Priority int
	// Status defaults to the project's default status, else backlog.
	Status   api.Ref
	Assignee api.Ref
	// Parent is the identifier or id of a parent issue. Empty means top level.
	Parent     string
	DueDate    api.Timestamp
	Estimation float64
}

// CreateIssue allocates the next project number and creates the issue in
// the subIssues collection of its parent.
func (c *Client) CreateIssue(ctx context.Context, req CreateIssueRequest) (*api.Issue, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, invalidInput("title required")
	}
	if req.Priority < api.PriorityNoPriority || req.Priority > api.PriorityLow {
		return nil, invalidInput("priority %d out of range %d..%d", req.Priority, api.PriorityNoPriority, api.PriorityLow)
	}
	project, err := c.GetProject(ctx, req.Project)
	if err != nil {
		return nil, err
	}
	parent := api.CollectionRef{
		AttachedTo:      api.IssueNoParent,
		AttachedToClass: api.ClassIssue,
		Collection:      api.CollectionSubIssues,
	}
	var parents []api.Value
	if req.Parent != "" {
		p, err := c.findIssue(ctx, req.Parent)
		if err != nil {
			return nil, err
		}
		if p.Space != project.ID {
			return nil, invalidInput("parent issue %s belongs to another project", p.Identifier)
		}
		parent.AttachedTo = p.ID
		parents = append(parents, api.Map(api.Attributes{
			"parentId":    api.String(string(p.ID)),
			"identifier":  api.String(p.Identifier),
			"parentTitle": api.String(p.Title),
			"space":       api.String(string(p.Space)),
		}))
	}

	issueID := api.Ref(ids.NewRef())
	description, err := c.storeContent(ctx, issueID, req.Description)
	if err != nil {
		return nil, err
	}
	number, err := c.nextIssueNumber(ctx, project)
	if err != nil {
		return nil, err
	}
	status := firstRef(req.Status, project.DefaultIssueStatus, api.IssueStatusBacklog)
	identifier := fmt.Sprintf("%s-%d", project.Identifier, number)
	attrs := api.Attributes{
		"title":         api.String(title),
		"description":   api.String(description),
		"identifier":    api.String(identifier),
		"number":        api.Int(number),
		"status":        api.String(string(status)),
		"priority":      api.Int(int64(req.Priority)),
		"assignee":      nullableRef(req.Assignee),
		"component":     api.Null(),
		"estimation":    api.Float(req.Estimation),
		"remainingTime": api.Float(req.Estimation),
		"reportedTime":  api.Float(0),
		"reports":       api.Int(0),
		"subIssues":     api.Int(0),
		"comments":      api.Int(0),
		"parents":       api.List(parents...),
		"childInfo":     api.List(),
		"dueDate":       nullableTimestamp(req.DueDate),
		"rank":          api.String(""),
	}
	target := api.TxTarget{ObjectID: issueID, ObjectClass: api.ClassIssue, ObjectSpace: project.ID}
	if _, err := c.AddCollection(ctx, target, parent, attrs); err != nil {
		return nil, err
	}
	c.logInfoCtx(ctx, "client.issue.created", "identifier", identifier, "issue_id", string(issueID))
	return &api.Issue{
		Meta:          api.Meta{ID: issueID, Class: api.ClassIssue, Space: project.ID, ModifiedOn: api.Now()},
		CollectionRef: parent,
		Identifier:    identifier,
		Number:        number,
		Title:         title,
		Description:   req.Description,
		Status:        status,
		Priority:      req.Priority,
		Assignee:      req.Assignee,
		DueDate:       req.DueDate,
		Estimation:    req.Estimation,
	}, nil
}

// nextIssueNumber increments the project sequence and returns the new value.
// The updated project is read from the transaction result when the server
// returns it and re-read otherwise.
func (c *Client) nextIssueNumber(ctx context.Context, project *api.Project) (int64, error) {
	target := api.TxTarget{ObjectID: project.ID, ObjectClass: api.ClassProject, ObjectSpace: api.SpaceSpace}
	if project.Space != "" {
		target.ObjectSpace = project.Space
	}
	meta, err := c.meta(ctx, target, api.CollectionRef{})
	if err != nil {
		return 0, err
	}
	tx := api.NewUpdateDoc(meta, api.Attributes{
		"$inc": api.Map(api.Attributes{"sequence": api.Int(1)}),
	})
	tx.Retrieve = true
	body, err := c.Submit(ctx, tx)
	if err != nil {
		return 0, err
	}
	if seq, ok := retrievedSequence(body); ok {
		return seq, nil
	}
	updated, err := FindOne[api.Project](ctx, c, api.ClassProject, byID(project.ID), nil)
	if err != nil {
		return 0, err
	}
	if updated == nil {
		return 0, notFound("project", string(project.ID))
	}
	if updated.Sequence <= project.Sequence {
		return project.Sequence + 1, nil
	}
	return updated.Sequence, nil
}

func retrievedSequence(body []byte) (int64, bool) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return 0, false
	}
	var res struct {
		Object *api.Project `json:"object"`
	}
	if err := json.Unmarshal(body, &res); err != nil || res.Object == nil || res.Object.Sequence <= 0 {
		return 0, false
	}
	return res.Object.Sequence, true
}

func nullableRef(r api.Ref) api.Value {
	if r == "" {
		return api.Null()
	}
	return api.String(string(r))
}

func nullableTimestamp(t api.Timestamp) api.Value {
	if t.IsZero() {
		return api.Null()
	}
	return api.Int(int64(t))
}

// UpdateIssueRequest changes an issue. Nil fields are left unchanged.
type UpdateIssueRequest struct {
	Title       *string
	Description *string
	Status      *api.Ref
	Priority    *int
	// Assignee set to an empty ref unassigns.
	Assignee   *api.Ref
	DueDate    *api.Timestamp
	Estimation *float64
}

// UpdateIssue applies req to the issue as a collection-scoped update and
// returns the new state. Every field is checked before the platform is
// contacted; a large description is uploaded only once the update is valid.
func (c *Client) UpdateIssue(ctx context.Context, identifierOrID string, req UpdateIssueRequest) (*api.Issue, error) {
	var title string
	if req.Title != nil {
		title = strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, invalidInput("title must not be empty")
		}
	}
	if req.Status != nil && *req.Status == "" {
		return nil, invalidInput("status must not be empty")
	}
	if req.Priority != nil && (*req.Priority < api.PriorityNoPriority || *req.Priority > api.PriorityLow) {
		return nil, invalidInput("priority %d out of range %d..%d", *req.Priority, api.PriorityNoPriority, api.PriorityLow)
	}
	if req == (UpdateIssueRequest{}) {
		return nil, invalidInput("nothing to update")
	}

	issue, err := c.findIssue(ctx, identifierOrID)
	if err != nil {
		return nil, err
	}
	ops := api.Attributes{}
	if req.Title != nil {
		ops["title"] = api.String(title)
		issue.Title = title
	}
	if req.Status != nil {
		ops["status"] = api.String(string(*req.Status))
		issue.Status = *req.Status
	}
	if req.Priority != nil {
		ops["priority"] = api.Int(int64(*req.Priority))
		issue.Priority = *req.Priority
	}
	if req.Assignee != nil {
		ops["assignee"] = nullableRef(*req.Assignee)
		issue.Assignee = *req.Assignee
	}
	if req.DueDate != nil {
		ops["dueDate"] = nullableTimestamp(*req.DueDate)
		issue.DueDate = *req.DueDate
	}
	if req.Estimation != nil {
		ops["estimation"] = api.Float(*req.Estimation)
		issue.Estimation = *req.Estimation
	}
	if req.Description != nil {
		stored, err := c.storeContent(ctx, issue.ID, *req.Description)
		if err != nil {
			return nil, err
		}
		ops["description"] = api.String(stored)
		issue.Description = *req.Description
	} else {
		issue.Description, _ = c.resolveContent(ctx, issue.Description)
	}
	if err := c.UpdateCollection(ctx, issueTarget(issue), issueParent(issue), ops); err != nil {
		return nil, err
	}
	issue.ModifiedOn = api.Now()
	return issue, nil
}

// DeleteIssue removes an issue from its parent's subIssues collection.
func (c *Client) DeleteIssue(ctx context.Context, identifierOrID string) error {
	issue, err := c.findIssue(ctx, identifierOrID)
	if err != nil {
		return err
	}
	return c.RemoveCollection(ctx, issueTarget(issue), issueParent(issue))
}

func issueTarget(issue *api.Issue) api.TxTarget {
	return api.TxTarget{ObjectID: issue.ID, ObjectClass: api.ClassIssue, ObjectSpace: issue.Space}
}

func issueParent(issue *api.Issue) api.CollectionRef {
	parent := issue.CollectionRef
	if parent.AttachedTo == "" {
		parent.AttachedTo = api.IssueNoParent
	}
	if parent.AttachedToClass == "" {
		parent.AttachedToClass = api.ClassIssue
	}
	if parent.Collection == "" {
		parent.Collection = api.CollectionSubIssues
	}
	return parent
}
