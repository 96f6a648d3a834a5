package client

import (
	"context"
	"encoding/json"
	"strings"

	"pkt.systems/hulybridge/api"
	"pkt.systems/hulybridge/internal/ids"
)

// ListPersons returns the workspace contacts.
func (c *Client) ListPersons(ctx context.Context, opts ListOptions) ([]api.Person, error) {
	return FindAll[api.Person](ctx, c, api.ClassPerson, nil, opts.find())
}

// parentTarget resolves the space of the object a comment or attachment is
// attached to. Unknown objects yield ErrNotFound.
func (c *Client) parentTarget(ctx context.Context, objectID api.Ref, objectClass api.Class) (api.TxTarget, error) {
	if objectID == "" || objectClass == "" {
		return api.TxTarget{}, invalidInput("object id and class required")
	}
	res, err := c.FindAllRaw(ctx, objectClass, byID(objectID), &FindOptions{Limit: 1})
	if err != nil {
		return api.TxTarget{}, err
	}
	if len(res.Value) == 0 {
		return api.TxTarget{}, notFound(string(objectClass), string(objectID))
	}
	var head struct {
		Space api.Ref `json:"space"`
	}
	if err := json.Unmarshal(res.Value[0], &head); err != nil {
		return api.TxTarget{}, &DecodeError{Path: itemPath(0, err), Err: err}
	}
	if head.Space == "" {
		return api.TxTarget{}, &DecodeError{Path: "value[0].space", Err: errMissing}
	}
	return api.TxTarget{ObjectID: objectID, ObjectClass: objectClass, ObjectSpace: head.Space}, nil
}

// AddComment posts message to the comments collection of the given object.
func (c *Client) AddComment(ctx context.Context, objectID api.Ref, objectClass api.Class, message string) (*api.Comment, error) {
	if strings.TrimSpace(message) == "" {
		return nil, invalidInput("message required")
	}
	owner, err := c.parentTarget(ctx, objectID, objectClass)
	if err != nil {
		return nil, err
	}
	parent := api.CollectionRef{
		AttachedTo:      owner.ObjectID,
		AttachedToClass: owner.ObjectClass,
		Collection:      api.CollectionComments,
	}
	target := api.TxTarget{
		ObjectID:    api.Ref(ids.NewRef()),
		ObjectClass: api.ClassChatMessage,
		ObjectSpace: owner.ObjectSpace,
	}
	meta, err := c.meta(ctx, target, parent)
	if err != nil {
		return nil, err
	}
	if _, err := c.AddCollection(ctx, target, parent, api.Attributes{"message": api.String(message)}); err != nil {
		return nil, err
	}
	return &api.Comment{
		Meta: api.Meta{
			ID:         target.ObjectID,
			Class:      api.ClassChatMessage,
			Space:      owner.ObjectSpace,
			ModifiedBy: meta.ModifiedBy,
			ModifiedOn: api.Now(),
		},
		CollectionRef: parent,
		Message:       message,
		CreatedBy:     meta.ModifiedBy,
	}, nil
}

// ListComments returns the comments attached to objectID.
func (c *Client) ListComments(ctx context.Context, objectID api.Ref, opts ListOptions) ([]api.Comment, error) {
	if objectID == "" {
		return nil, invalidInput("object id required")
	}
	return FindAll[api.Comment](ctx, c, api.ClassChatMessage, attachedQuery(objectID, api.CollectionComments), opts.find())
}

// ListAttachments returns the attachments of objectID.
func (c *Client) ListAttachments(ctx context.Context, objectID api.Ref, opts ListOptions) ([]api.Attachment, error) {
	if objectID == "" {
		return nil, invalidInput("object id required")
	}
	return FindAll[api.Attachment](ctx, c, api.ClassAttachment, attachedQuery(objectID, api.CollectionAttachments), opts.find())
}

func attachedQuery(objectID api.Ref, collection string) api.Attributes {
	return api.Attributes{
		"attachedTo": api.String(string(objectID)),
		"collection": api.String(collection),
	}
}

// AttachFileRequest describes a file to attach.
type AttachFileRequest struct {
	ObjectID    api.Ref
	ObjectClass api.Class
	Name        string
	// ContentType defaults to application/octet-stream.
	ContentType string
	Data        []byte
}

// AttachFile uploads the file as a blob and records it in the attachments
// collection of the object.
func (c *Client) AttachFile(ctx context.Context, req AttachFileRequest) (*api.Attachment, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalidInput("file name required")
	}
	owner, err := c.parentTarget(ctx, req.ObjectID, req.ObjectClass)
	if err != nil {
		return nil, err
	}
	blob, err := c.UploadBlob(ctx, name, req.ContentType, req.Data)
	if err != nil {
		return nil, err
	}
	parent := api.CollectionRef{
		AttachedTo:      owner.ObjectID,
		AttachedToClass: owner.ObjectClass,
		Collection:      api.CollectionAttachments,
	}
	target := api.TxTarget{
		ObjectID:    api.Ref(ids.NewRef()),
		ObjectClass: api.ClassAttachment,
		ObjectSpace: owner.ObjectSpace,
	}
	now := api.Now()
	attrs := api.Attributes{
		"name":         api.String(name),
		"file":         api.String(string(blob.ID)),
		"size":         api.Int(blob.Size),
		"type":         api.String(blob.ContentType),
		"lastModified": api.Int(int64(now)),
	}
	if _, err := c.AddCollection(ctx, target, parent, attrs); err != nil {
		return nil, err
	}
	return &api.Attachment{
		Meta:          api.Meta{ID: target.ObjectID, Class: api.ClassAttachment, Space: owner.ObjectSpace, ModifiedOn: now},
		CollectionRef: parent,
		Name:          name,
		File:          blob.ID,
		Size:          blob.Size,
		Type:          blob.ContentType,
		LastModified:  now,
	}, nil
}
