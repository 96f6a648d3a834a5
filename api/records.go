package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"pkt.systems/hulybridge/internal/ids"
)

// The records in this file decode leniently: every field is optional and
// falls back to its zero value, numbers may arrive as strings, and unknown
// attributes are ignored. Only a payload that is not a JSON object fails.
// Defaults that differ from the zero value are noted per field.

// Meta carries the attributes every platform document shares.
type Meta struct {
	// ID defaults to "".
	ID Ref `json:"_id"`
	// Class defaults to the record type's class constant.
	Class Class `json:"_class"`
	// Space is the owning space.
	Space Ref `json:"space"`
	// ModifiedOn is the last modification time.
	ModifiedOn Timestamp `json:"modifiedOn,omitempty"`
	// ModifiedBy is the last modifying account.
	ModifiedBy Ref `json:"modifiedBy,omitempty"`
	// CreatedOn is the creation time when the server reports it.
	CreatedOn Timestamp `json:"createdOn,omitempty"`
}

// Document is a teamspace document.
type Document struct {
	Meta
	// Title is the raw title attribute.
	Title string `json:"title"`
	// DisplayName is title, else name, else DefaultName.
	DisplayName string `json:"displayName"`
	// Content is literal text or a blob reference; see IsBlobReference.
	Content string `json:"content,omitempty"`
	// Parent is the parent document, DocumentNoParent for top-level documents.
	Parent Ref `json:"parent,omitempty"`
	// Rank orders siblings.
	Rank string `json:"rank,omitempty"`
	// ContentBlob is set when Content was resolved from this blob reference.
	ContentBlob Ref `json:"contentBlob,omitempty"`
}

// Teamspace groups documents.
type Teamspace struct {
	Meta
	// Name defaults to DefaultName.
	Name string `json:"name"`
	// Description defaults to "".
	Description string `json:"description"`
	Private     bool   `json:"private"`
	Archived    bool   `json:"archived"`
	Members     []Ref  `json:"members,omitempty"`
	Owners      []Ref  `json:"owners,omitempty"`
}

// Project is a tracker project.
type Project struct {
	Meta
	// Name defaults to DefaultName.
	Name string `json:"name"`
	// Identifier is the short issue prefix such as "HULY".
	Identifier  string `json:"identifier"`
	Description string `json:"description"`
	// Sequence is the last allocated issue number.
	Sequence           int64 `json:"sequence"`
	DefaultIssueStatus Ref   `json:"defaultIssueStatus,omitempty"`
	Private            bool  `json:"private"`
	Archived           bool  `json:"archived"`
}

// Issue is a tracker issue.
type Issue struct {
	Meta
	CollectionRef
	// Identifier is "<project>-<number>".
	Identifier string `json:"identifier"`
	Number     int64  `json:"number"`
	// Title defaults to DefaultName.
	Title string `json:"title"`
	// Description is literal markup or a blob reference.
	Description string `json:"description,omitempty"`
	Status      Ref    `json:"status,omitempty"`
	// Priority is in 0..4; out-of-range values decode as 0.
	Priority   int       `json:"priority"`
	Assignee   Ref       `json:"assignee,omitempty"`
	Component  Ref       `json:"component,omitempty"`
	DueDate    Timestamp `json:"dueDate,omitempty"`
	Estimation float64   `json:"estimation,omitempty"`
	SubIssues  int64     `json:"subIssues,omitempty"`
	Comments   int64     `json:"comments,omitempty"`
	Rank       string    `json:"rank,omitempty"`
}

// Person is a contact.
type Person struct {
	Meta
	// Name defaults to DefaultName.
	Name   string `json:"name"`
	City   string `json:"city,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// Attachment is a file attached to another document.
type Attachment struct {
	Meta
	CollectionRef
	// Name defaults to DefaultName.
	Name string `json:"name"`
	// File is the blob holding the attachment bytes.
	File         Ref       `json:"file"`
	Size         int64     `json:"size"`
	Type         string    `json:"type,omitempty"`
	LastModified Timestamp `json:"lastModified,omitempty"`
}

// Comment is a chat message attached to a document.
type Comment struct {
	Meta
	CollectionRef
	Message   string `json:"message"`
	CreatedBy Ref    `json:"createdBy,omitempty"`
}

// BlobRef describes an uploaded blob.
type BlobRef struct {
	// ID is the opaque blob identifier stored in content attributes.
	ID          Ref    `json:"id"`
	Name        string `json:"name,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// UnmarshalJSON implements lenient decoding.
func (d *Document) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	*d = Document{
		Meta:    f.meta(ClassDocument),
		Title:   f.str("title"),
		Content: f.str("content"),
		Parent:  Ref(f.str("parent")),
		Rank:    f.str("rank"),
	}
	d.DisplayName = firstNonEmpty(d.Title, f.str("name"), f.str("displayName"), DefaultName)
	d.ContentBlob = Ref(f.str("contentBlob"))
	return nil
}

// UnmarshalJSON implements lenient decoding.
func (t *Teamspace) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	*t = Teamspace{
		Meta:        f.meta(ClassTeamspace),
		Name:        firstNonEmpty(f.str("name"), DefaultName),
		Description: f.str("description"),
		Private:     f.boolean("private"),
		Archived:    f.boolean("archived"),
		Members:     f.refs("members"),
		Owners:      f.refs("owners"),
	}
	return nil
}

// UnmarshalJSON implements lenient decoding.
func (p *Project) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	*p = Project{
		Meta:               f.meta(ClassProject),
		Name:               firstNonEmpty(f.str("name"), DefaultName),
		Identifier:         f.str("identifier"),
		Description:        f.str("description"),
		Sequence:           f.integer("sequence"),
		DefaultIssueStatus: Ref(f.str("defaultIssueStatus")),
		Private:            f.boolean("private"),
		Archived:           f.boolean("archived"),
	}
	return nil
}

// UnmarshalJSON implements lenient decoding.
func (i *Issue) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	priority := int(f.integer("priority"))
	if priority < PriorityNoPriority || priority > PriorityLow {
		priority = PriorityNoPriority
	}
	*i = Issue{
		Meta:          f.meta(ClassIssue),
		CollectionRef: f.collection(),
		Identifier:    f.str("identifier"),
		Number:        f.integer("number"),
		Title:         firstNonEmpty(f.str("title"), DefaultName),
		Description:   f.str("description"),
		Status:        Ref(f.str("status")),
		Priority:      priority,
		Assignee:      Ref(f.str("assignee")),
		Component:     Ref(f.str("component")),
		DueDate:       Timestamp(f.integer("dueDate")),
		Estimation:    f.float("estimation"),
		SubIssues:     f.integer("subIssues"),
		Comments:      f.integer("comments"),
		Rank:          f.str("rank"),
	}
	return nil
}

// UnmarshalJSON implements lenient decoding.
func (p *Person) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	*p = Person{
		Meta:   f.meta(ClassPerson),
		Name:   firstNonEmpty(f.str("name"), DefaultName),
		City:   f.str("city"),
		Avatar: f.str("avatar"),
	}
	return nil
}

// UnmarshalJSON implements lenient decoding.
func (a *Attachment) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	*a = Attachment{
		Meta:          f.meta(ClassAttachment),
		CollectionRef: f.collection(),
		Name:          firstNonEmpty(f.str("name"), DefaultName),
		File:          Ref(f.str("file")),
		Size:          f.integer("size"),
		Type:          f.str("type"),
		LastModified:  Timestamp(f.integer("lastModified")),
	}
	return nil
}

// UnmarshalJSON implements lenient decoding.
func (c *Comment) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	*c = Comment{
		Meta:          f.meta(ClassChatMessage),
		CollectionRef: f.collection(),
		Message:       f.str("message"),
		CreatedBy:     Ref(f.str("createdBy")),
	}
	return nil
}

// UnmarshalJSON accepts {"id":...}, {"_id":...}, {"blobId":...} or a bare string.
func (b *BlobRef) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*b = BlobRef{ID: Ref(strings.TrimSpace(s))}
		return nil
	}
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	*b = BlobRef{
		ID:          Ref(firstNonEmpty(f.str("id"), f.str("_id"), f.str("blobId"), f.str("key"))),
		Name:        f.str("name"),
		ContentType: firstNonEmpty(f.str("contentType"), f.str("type")),
		Size:        f.integer("size"),
	}
	return nil
}

// blobContentMarker separates the document id from the upload time in the
// names given to uploaded content: <docID>-content-<unix millis>.
const blobContentMarker = "-content-"

// BlobContentName names the blob holding the content of docID uploaded at.
func BlobContentName(docID Ref, at time.Time) string {
	return string(docID) + blobContentMarker + strconv.FormatInt(at.UnixMilli(), 10)
}

// IsBlobReference reports whether a content value is a blob identifier
// instead of literal text: either a name of the form
// <docID>-content-<unix millis> or a UUID.
func IsBlobReference(content string) bool {
	if content == "" || len(content) > 256 {
		return false
	}
	if strings.ContainsAny(content, " \t\r\n") {
		return false
	}
	if i := strings.LastIndex(content, blobContentMarker); i > 0 {
		return isUnixMillis(content[i+len(blobContentMarker):])
	}
	return ids.IsUUID(content)
}

// isUnixMillis accepts the decimal millisecond timestamps used in blob
// names. Anything shorter than 12 digits predates 2001.
func isUnixMillis(s string) bool {
	if len(s) < 12 || len(s) > 19 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type fields map[string]json.RawMessage

func decodeFields(data []byte) (fields, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("expected JSON object")
	}
	var f fields
	if err := json.Unmarshal(trimmed, &f); err != nil {
		return nil, err
	}
	return f, nil
}

func (f fields) meta(class Class) Meta {
	return Meta{
		ID:         Ref(f.str("_id")),
		Class:      Class(firstNonEmpty(f.str("_class"), string(class))),
		Space:      Ref(f.str("space")),
		ModifiedOn: Timestamp(f.integer("modifiedOn")),
		ModifiedBy: Ref(f.str("modifiedBy")),
		CreatedOn:  Timestamp(f.integer("createdOn")),
	}
}

func (f fields) collection() CollectionRef {
	return CollectionRef{
		AttachedTo:      Ref(f.str("attachedTo")),
		AttachedToClass: Class(f.str("attachedToClass")),
		Collection:      f.str("collection"),
	}
}

func (f fields) value(key string) (any, bool) {
	raw, ok := f[key]
	if !ok {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || v == nil {
		return nil, false
	}
	return v, true
}

func (f fields) str(key string) string {
	v, ok := f.value(key)
	if !ok {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}

func (f fields) integer(key string) int64 {
	v, ok := f.value(key)
	if !ok {
		return 0
	}
	var n json.Number
	switch x := v.(type) {
	case json.Number:
		n = x
	case string:
		n = json.Number(strings.TrimSpace(x))
	case bool:
		if x {
			return 1
		}
		return 0
	default:
		return 0
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if fl, err := n.Float64(); err == nil && !math.IsNaN(fl) && math.Abs(fl) < 1<<63 {
		return int64(fl)
	}
	return 0
}

func (f fields) float(key string) float64 {
	v, ok := f.value(key)
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case json.Number:
		fl, _ := x.Float64()
		return fl
	case string:
		fl, _ := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return fl
	}
	return 0
}

func (f fields) boolean(key string) bool {
	v, ok := f.value(key)
	if !ok {
		return false
	}
	switch x := v.(type) {
	case bool:
		return x
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(x))
		return b
	case json.Number:
		fl, _ := x.Float64()
		return fl != 0
	}
	return false
}

func (f fields) refs(key string) []Ref {
	v, ok := f.value(key)
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Ref, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, Ref(s))
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
