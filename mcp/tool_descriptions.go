package mcp

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

const (
	toolSession          = "huly.session"
	toolHelp             = "huly.help"
	toolTeamspacesList   = "huly.teamspaces.list"
	toolTeamspacesGet    = "huly.teamspaces.get"
	toolTeamspacesCreate = "huly.teamspaces.create"
	toolDocumentsList    = "huly.documents.list"
	toolDocumentsGet     = "huly.documents.get"
	toolDocumentsCreate  = "huly.documents.create"
	toolDocumentsUpdate  = "huly.documents.update"
	toolDocumentsDelete  = "huly.documents.delete"
	toolDocumentsMove    = "huly.documents.move"
	toolProjectsList     = "huly.projects.list"
	toolProjectsGet      = "huly.projects.get"
	toolIssuesList       = "huly.issues.list"
	toolIssuesGet        = "huly.issues.get"
	toolIssuesCreate     = "huly.issues.create"
	toolIssuesUpdate     = "huly.issues.update"
	toolIssuesDelete     = "huly.issues.delete"
	toolCommentsList     = "huly.comments.list"
	toolCommentsAdd      = "huly.comments.add"
	toolPersonsList      = "huly.persons.list"
	toolAttachmentsList  = "huly.attachments.list"
	toolAttachmentsAdd   = "huly.attachments.add"
)

var mcpToolNames = []string{
	toolSession,
	toolHelp,
	toolTeamspacesList,
	toolTeamspacesGet,
	toolTeamspacesCreate,
	toolDocumentsList,
	toolDocumentsGet,
	toolDocumentsCreate,
	toolDocumentsUpdate,
	toolDocumentsDelete,
	toolDocumentsMove,
	toolProjectsList,
	toolProjectsGet,
	toolIssuesList,
	toolIssuesGet,
	toolIssuesCreate,
	toolIssuesUpdate,
	toolIssuesDelete,
	toolCommentsList,
	toolCommentsAdd,
	toolPersonsList,
	toolAttachmentsList,
	toolAttachmentsAdd,
}

// writeTools are left out when the server runs read-only.
var writeTools = map[string]bool{
	toolTeamspacesCreate: true,
	toolDocumentsCreate:  true,
	toolDocumentsUpdate:  true,
	toolDocumentsDelete:  true,
	toolDocumentsMove:    true,
	toolIssuesCreate:     true,
	toolIssuesUpdate:     true,
	toolIssuesDelete:     true,
	toolCommentsAdd:      true,
	toolAttachmentsAdd:   true,
}

type toolDescriptionSpec struct {
	Purpose  string
	UseWhen  string
	Requires string
	Effects  string
	Retry    string
	Next     string
}

func buildToolDescriptions(cfg Config) map[string]string {
	maxContent := humanize.IBytes(uint64(normalizedMaxContentBytes(cfg.MaxContentBytes)))
	limits := fmt.Sprintf("`limit` is 1..%d and defaults to %d.", maxListLimit, defaultListLimit)
	specs := map[string]toolDescriptionSpec{
		toolSession: {
			Purpose:  "Authenticate against the platform and report the bound workspace, account and socket state.",
			UseWhen:  "Starting a session or diagnosing authentication failures.",
			Requires: "No arguments.",
			Effects:  "Performs login and workspace selection once per process. Tokens are never returned.",
			Retry:    "Safe to retry. authentication_failed means the configured credentials were rejected.",
			Next:     "huly.teamspaces.list or huly.projects.list.",
		},
		toolHelp: {
			Purpose:  "Return workflow guidance for documents, tracker or errors.",
			UseWhen:  "Unsure which tools to call or how errors are reported.",
			Requires: "Optional `topic`: overview, documents, tracker, errors.",
			Effects:  "Read-only, no platform calls.",
			Retry:    "Not needed.",
			Next:     "Follow `next_calls` from the result.",
		},
		toolTeamspacesList: {
			Purpose:  "List document teamspaces.",
			UseWhen:  "Discovering where documents live.",
			Requires: limits + " Archived teamspaces need `include_archived=true`.",
			Effects:  "Read-only.",
			Retry:    "Safe to retry.",
			Next:     "huly.documents.list with a teamspace id.",
		},
		toolTeamspacesGet: {
			Purpose:  "Fetch one teamspace by id.",
			UseWhen:  "Checking a teamspace before writing into it.",
			Requires: "`teamspace_id`.",
			Effects:  "Read-only. not_found when absent.",
			Retry:    "Safe to retry.",
			Next:     "huly.documents.list.",
		},
		toolTeamspacesCreate: {
			Purpose:  "Create a teamspace owned by the session account.",
			UseWhen:  "No suitable teamspace exists.",
			Requires: fmt.Sprintf("`name` up to %d characters. Optional `description` and `private`.", maxTitleRunes),
			Effects:  "Creates a space document over REST.",
			Retry:    "Not idempotent; list first to avoid duplicates.",
			Next:     "huly.documents.create.",
		},
		toolDocumentsList: {
			Purpose:  "List documents of a teamspace with content resolved.",
			UseWhen:  "Browsing or searching a teamspace.",
			Requires: "`teamspace_id`. " + limits,
			Effects:  "Read-only. Large content is fetched from blob storage; unreadable blobs return the raw reference.",
			Retry:    "Safe to retry.",
			Next:     "huly.documents.get or huly.documents.update.",
		},
		toolDocumentsGet: {
			Purpose:  "Fetch one document with its content resolved.",
			UseWhen:  "Reading a document body.",
			Requires: "`document_id`.",
			Effects:  "Read-only. not_found when absent.",
			Retry:    "Safe to retry.",
			Next:     "huly.documents.update or huly.comments.add.",
		},
		toolDocumentsCreate: {
			Purpose:  "Create a markdown document in a teamspace.",
			UseWhen:  "Writing new documentation.",
			Requires: fmt.Sprintf("`teamspace_id`, `title` up to %d characters. Optional `content` up to %s and `parent_id`.", maxTitleRunes, maxContent),
			Effects:  "Large content is stored as a blob. The write goes over the transaction socket and falls back to REST when the socket cannot be established.",
			Retry:    "Not idempotent. timeout and connection_closed are retryable after checking with huly.documents.list.",
			Next:     "huly.documents.get.",
		},
		toolDocumentsUpdate: {
			Purpose:  "Change the title and/or content of a document.",
			UseWhen:  "Editing an existing document.",
			Requires: "`document_id` and at least one of `title`, `content`.",
			Effects:  "Replaces the given fields. Content follows the same blob rule as create.",
			Retry:    "Idempotent for the same input.",
			Next:     "huly.documents.get.",
		},
		toolDocumentsDelete: {
			Purpose:  "Delete a document.",
			UseWhen:  "Removing obsolete documents.",
			Requires: "`document_id`.",
			Effects:  "Removes the document. Child documents are not moved.",
			Retry:    "A retry after success reports not_found.",
			Next:     "huly.documents.list.",
		},
		toolDocumentsMove: {
			Purpose:  "Reparent a document, optionally into another teamspace.",
			UseWhen:  "Reorganizing a document tree.",
			Requires: "`document_id`. Optional `parent_id` (empty moves to top level) and `teamspace_id`.",
			Effects:  "Updates the parent and space of the document.",
			Retry:    "Idempotent for the same input.",
			Next:     "huly.documents.list.",
		},
		toolProjectsList: {
			Purpose:  "List tracker projects.",
			UseWhen:  "Discovering project identifiers such as HULY.",
			Requires: limits + " Archived projects need `include_archived=true`.",
			Effects:  "Read-only.",
			Retry:    "Safe to retry.",
			Next:     "huly.issues.list with `project`.",
		},
		toolProjectsGet: {
			Purpose:  "Fetch one project by identifier or id.",
			UseWhen:  "Reading the default status or issue sequence of a project.",
			Requires: "`project`.",
			Effects:  "Read-only. not_found when absent.",
			Retry:    "Safe to retry.",
			Next:     "huly.issues.create.",
		},
		toolIssuesList: {
			Purpose:  "List issues, optionally filtered by project, status and assignee.",
			UseWhen:  "Triaging or searching issues.",
			Requires: "Optional `project`, `status`, `assignee`. " + limits,
			Effects:  "Read-only. Descriptions are resolved from blob storage.",
			Retry:    "Safe to retry.",
			Next:     "huly.issues.get or huly.issues.update.",
		},
		toolIssuesGet: {
			Purpose:  "Fetch one issue by identifier (HULY-12) or id.",
			UseWhen:  "Reading an issue in full.",
			Requires: "`issue`.",
			Effects:  "Read-only. not_found when absent.",
			Retry:    "Safe to retry.",
			Next:     "huly.comments.list or huly.issues.update.",
		},
		toolIssuesCreate: {
			Purpose:  "Create an issue in a project, optionally as a sub-issue.",
			UseWhen:  "Recording new work.",
			Requires: fmt.Sprintf("`project`, `title` up to %d characters. Optional `description` up to %s, `priority` 0..4 (0 none, 1 urgent, 2 high, 3 medium, 4 low), `status`, `assignee`, `parent`, `due_date_unix_ms`, `estimation_hours`.", maxTitleRunes, maxContent),
			Effects:  "Allocates the next project number and returns the identifier.",
			Retry:    "Not idempotent; a retry allocates a new number.",
			Next:     "huly.issues.get.",
		},
		toolIssuesUpdate: {
			Purpose:  "Change fields of an issue.",
			UseWhen:  "Progressing or reassigning work.",
			Requires: "`issue` and at least one field. `priority` is 0..4. An empty `assignee` unassigns.",
			Effects:  "Collection-scoped update of the given fields.",
			Retry:    "Idempotent for the same input.",
			Next:     "huly.issues.get.",
		},
		toolIssuesDelete: {
			Purpose:  "Delete an issue.",
			UseWhen:  "Removing issues created in error.",
			Requires: "`issue`.",
			Effects:  "Removes the issue from its parent's sub-issues.",
			Retry:    "A retry after success reports not_found.",
			Next:     "huly.issues.list.",
		},
		toolCommentsList: {
			Purpose:  "List comments attached to an issue or document.",
			UseWhen:  "Reading a discussion.",
			Requires: "`object_id`. " + limits,
			Effects:  "Read-only.",
			Retry:    "Safe to retry.",
			Next:     "huly.comments.add.",
		},
		toolCommentsAdd: {
			Purpose:  "Post a comment on an issue or document.",
			UseWhen:  "Leaving notes or status updates.",
			Requires: fmt.Sprintf("`object_id`, `object_class` (issue, document or a full class id), `message` up to %s.", maxContent),
			Effects:  "Adds a chat message to the comments collection of the object.",
			Retry:    "Not idempotent.",
			Next:     "huly.comments.list.",
		},
		toolPersonsList: {
			Purpose:  "List workspace contacts.",
			UseWhen:  "Resolving assignee ids.",
			Requires: limits,
			Effects:  "Read-only.",
			Retry:    "Safe to retry.",
			Next:     "huly.issues.update with `assignee`.",
		},
		toolAttachmentsList: {
			Purpose:  "List files attached to an issue or document.",
			UseWhen:  "Finding attached files.",
			Requires: "`object_id`. " + limits,
			Effects:  "Read-only.",
			Retry:    "Safe to retry.",
			Next:     "huly.attachments.add.",
		},
		toolAttachmentsAdd: {
			Purpose:  "Upload a file and attach it to an issue or document.",
			UseWhen:  "Sharing logs, diagrams or exports.",
			Requires: fmt.Sprintf("`object_id`, `object_class`, `name` and exactly one of `content_text`, `content_base64` (up to %s).", maxContent),
			Effects:  "Uploads a blob, then records it in the attachments collection.",
			Retry:    "Not idempotent.",
			Next:     "huly.attachments.list.",
		},
	}

	out := make(map[string]string, len(specs))
	for name, spec := range specs {
		out[name] = renderToolDescription(spec)
	}
	return out
}

func renderToolDescription(spec toolDescriptionSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Purpose: %s\n", spec.Purpose)
	fmt.Fprintf(&b, "Use when: %s\n", spec.UseWhen)
	fmt.Fprintf(&b, "Requires: %s\n", spec.Requires)
	fmt.Fprintf(&b, "Effects: %s\n", spec.Effects)
	fmt.Fprintf(&b, "Retry: %s\n", spec.Retry)
	fmt.Fprintf(&b, "Next: %s", spec.Next)
	return b.String()
}
