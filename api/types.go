// Package api defines the wire model shared by the hulybridge client and its
// callers: identifiers, class tags, transaction records, domain records and
// request/response envelopes.
package api

import "time"

// Ref is an opaque document identifier.
type Ref string

// Class tags a platform document with its model class, e.g. "document:class:Document".
type Class string

// Timestamp is a point in time expressed as milliseconds since the Unix epoch.
type Timestamp int64

// Now returns the current time as a Timestamp.
func Now() Timestamp {
	return TimestampOf(time.Now())
}

// TimestampOf converts t to a Timestamp.
func TimestampOf(t time.Time) Timestamp {
	return Timestamp(t.UnixMilli())
}

// Time converts the timestamp back to a time.Time in UTC. Zero stays zero.
func (t Timestamp) Time() time.Time {
	if t == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(t)).UTC()
}

// IsZero reports whether the timestamp is unset.
func (t Timestamp) IsZero() bool { return t == 0 }

// Transaction classes and spaces.
const (
	ClassTxCreateDoc Class = "core:class:TxCreateDoc"
	ClassTxUpdateDoc Class = "core:class:TxUpdateDoc"
	ClassTxRemoveDoc Class = "core:class:TxRemoveDoc"

	// SpaceTx is the fixed space every transaction record lives in.
	SpaceTx Ref = "core:space:Tx"
	// SpaceSpace owns space documents such as teamspaces and projects.
	SpaceSpace Ref = "core:space:Space"
)

// Model classes used by the client.
const (
	ClassTeamspace   Class = "document:class:Teamspace"
	ClassDocument    Class = "document:class:Document"
	ClassProject     Class = "tracker:class:Project"
	ClassIssue       Class = "tracker:class:Issue"
	ClassPerson      Class = "contact:class:Person"
	ClassAttachment  Class = "attachment:class:Attachment"
	ClassChatMessage Class = "chunter:class:ChatMessage"
)

// Well-known references.
const (
	// DocumentNoParent is the parent of top-level documents in a teamspace.
	DocumentNoParent Ref = "document:ids:NoParent"
	// IssueNoParent is the parent of top-level issues in a project.
	IssueNoParent Ref = "tracker:ids:NoParent"
	// IssueStatusBacklog is used when neither the caller nor the project names a status.
	IssueStatusBacklog Ref = "tracker:status:Backlog"
	// SpaceTypeTeamspace is the default space type for new teamspaces.
	SpaceTypeTeamspace Ref = "document:spaceType:DefaultTeamspaceType"
)

// Collection names for attached documents.
const (
	CollectionSubIssues   = "subIssues"
	CollectionComments    = "comments"
	CollectionAttachments = "attachments"
)

// Issue priorities. The platform accepts the closed range 0..4.
const (
	PriorityNoPriority = 0
	PriorityUrgent     = 1
	PriorityHigh       = 2
	PriorityMedium     = 3
	PriorityLow        = 4
)

// DefaultName is the display name substituted for records without a title or name.
const DefaultName = "Unnamed"
