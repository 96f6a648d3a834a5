package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"pkt.systems/hulybridge/api"
	"pkt.systems/hulybridge/internal/ids"
)

// ListOptions bound list operations.
type ListOptions struct {
	// Limit caps the result count. Zero leaves it to the server.
	Limit int
	// IncludeArchived also returns archived spaces.
	IncludeArchived bool
}

func (o ListOptions) find() *FindOptions {
	if o.Limit == 0 {
		return nil
	}
	return &FindOptions{Limit: o.Limit}
}

func spaceQuery(o ListOptions) api.Attributes {
	if o.IncludeArchived {
		return api.Attributes{}
	}
	return api.Attributes{"archived": api.Bool(false)}
}

func byID(id api.Ref) api.Attributes {
	return api.Attributes{"_id": api.String(string(id))}
}

// ListTeamspaces returns the teamspaces of the workspace. Archived
// teamspaces are skipped unless opts.IncludeArchived is set.
func (c *Client) ListTeamspaces(ctx context.Context, opts ListOptions) ([]api.Teamspace, error) {
	return FindAll[api.Teamspace](ctx, c, api.ClassTeamspace, spaceQuery(opts), opts.find())
}

// GetTeamspace returns the teamspace with the given id or ErrNotFound.
func (c *Client) GetTeamspace(ctx context.Context, id api.Ref) (*api.Teamspace, error) {
	if id == "" {
		return nil, invalidInput("teamspace id required")
	}
	ts, err := FindOne[api.Teamspace](ctx, c, api.ClassTeamspace, byID(id), nil)
	if err != nil {
		return nil, err
	}
	if ts == nil {
		return nil, notFound("teamspace", string(id))
	}
	return ts, nil
}

// CreateTeamspaceRequest describes a new teamspace.
type CreateTeamspaceRequest struct {
	Name        string
	Description string
	Private     bool
}

// CreateTeamspace creates a teamspace owned by the session account.
func (c *Client) CreateTeamspace(ctx context.Context, req CreateTeamspaceRequest) (*api.Teamspace, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalidInput("teamspace name required")
	}
	sess, err := c.accountSession(ctx)
	if err != nil {
		return nil, err
	}
	target := api.TxTarget{
		ObjectID:    api.Ref(ids.NewRef()),
		ObjectClass: api.ClassTeamspace,
		ObjectSpace: api.SpaceSpace,
	}
	member := api.String(string(sess.account))
	attrs := api.Attributes{
		"name":        api.String(name),
		"description": api.String(req.Description),
		"private":     api.Bool(req.Private),
		"archived":    api.Bool(false),
		"members":     api.List(member),
		"owners":      api.List(member),
		"type":        api.String(string(api.SpaceTypeTeamspace)),
	}
	if _, err := c.CreateDoc(ctx, target, attrs); err != nil {
		return nil, err
	}
	return &api.Teamspace{
		Meta: api.Meta{
			ID:         target.ObjectID,
			Class:      api.ClassTeamspace,
			Space:      api.SpaceSpace,
			ModifiedBy: sess.account,
			ModifiedOn: api.Now(),
		},
		Name:        name,
		Description: req.Description,
		Private:     req.Private,
		Members:     []api.Ref{sess.account},
		Owners:      []api.Ref{sess.account},
	}, nil
}

// ListDocuments returns the documents of a teamspace with blob content resolved.
func (c *Client) ListDocuments(ctx context.Context, teamspace api.Ref, opts ListOptions) ([]api.Document, error) {
	if teamspace == "" {
		return nil, invalidInput("teamspace required")
	}
	docs, err := FindAll[api.Document](ctx, c, api.ClassDocument,
		api.Attributes{"space": api.String(string(teamspace))}, opts.find())
	if err != nil {
		return nil, err
	}
	for i := range docs {
		docs[i].Content, docs[i].ContentBlob = c.resolveContent(ctx, docs[i].Content)
	}
	return docs, nil
}

// GetDocument returns the document with the given id, its blob content
// resolved, or ErrNotFound.
func (c *Client) GetDocument(ctx context.Context, id api.Ref) (*api.Document, error) {
	doc, err := c.findDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	doc.Content, doc.ContentBlob = c.resolveContent(ctx, doc.Content)
	return doc, nil
}

// findDocument returns the stored document without resolving its content.
func (c *Client) findDocument(ctx context.Context, id api.Ref) (*api.Document, error) {
	if id == "" {
		return nil, invalidInput("document id required")
	}
	doc, err := FindOne[api.Document](ctx, c, api.ClassDocument, byID(id), nil)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, notFound("document", string(id))
	}
	return doc, nil
}

// CreateDocumentRequest describes a new document.
type CreateDocumentRequest struct {
	Teamspace api.Ref
	Title     string
	// Content is markdown. Large content is stored as a blob.
	Content string
	// Parent nests the document. Empty means top level.
	Parent api.Ref
}

// CreateDocument creates a document. The returned document carries the
// original content; ContentBlob names the blob when one was used.
func (c *Client) CreateDocument(ctx context.Context, req CreateDocumentRequest) (*api.Document, error) {
	title := strings.TrimSpace(req.Title)
	if req.Teamspace == "" {
		return nil, invalidInput("teamspace required")
	}
	if title == "" {
		return nil, invalidInput("title required")
	}
	parent := req.Parent
	if parent == "" {
		parent = api.DocumentNoParent
	}
	target := api.TxTarget{
		ObjectID:    api.Ref(ids.NewRef()),
		ObjectClass: api.ClassDocument,
		ObjectSpace: req.Teamspace,
	}
	meta, err := c.meta(ctx, target, api.CollectionRef{})
	if err != nil {
		return nil, err
	}
	stored, err := c.storeContent(ctx, target.ObjectID, req.Content)
	if err != nil {
		return nil, err
	}
	attrs := api.Attributes{
		"title":   api.String(title),
		"content": api.String(stored),
		"parent":  api.String(string(parent)),
	}
	tx := api.NewCreateDoc(meta, attrs)
	if _, err := c.submitWrite(ctx, tx); err != nil {
		return nil, err
	}
	doc := &api.Document{
		Meta: api.Meta{
			ID:         target.ObjectID,
			Class:      api.ClassDocument,
			Space:      req.Teamspace,
			ModifiedOn: tx.ModifiedOn,
			ModifiedBy: meta.ModifiedBy,
			CreatedOn:  tx.CreatedOn,
		},
		Title:       title,
		DisplayName: title,
		Content:     req.Content,
		Parent:      parent,
	}
	if stored != req.Content {
		doc.ContentBlob = api.Ref(stored)
	}
	return doc, nil
}

// UpdateDocumentRequest changes a document. Nil fields are left unchanged.
type UpdateDocumentRequest struct {
	Title   *string
	Content *string
}

// UpdateDocument applies req to the document and returns its new state.
func (c *Client) UpdateDocument(ctx context.Context, id api.Ref, req UpdateDocumentRequest) (*api.Document, error) {
	if req.Title == nil && req.Content == nil {
		return nil, invalidInput("nothing to update")
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		return nil, invalidInput("title must not be empty")
	}
	doc, err := c.findDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	meta, err := c.meta(ctx, documentTarget(doc), api.CollectionRef{})
	if err != nil {
		return nil, err
	}
	ops := api.Attributes{}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		ops["title"] = api.String(title)
		doc.Title, doc.DisplayName = title, title
	}
	if req.Content != nil {
		stored, err := c.storeContent(ctx, doc.ID, *req.Content)
		if err != nil {
			return nil, err
		}
		ops["content"] = api.String(stored)
		doc.Content, doc.ContentBlob = *req.Content, ""
		if stored != *req.Content {
			doc.ContentBlob = api.Ref(stored)
		}
	} else {
		doc.Content, doc.ContentBlob = c.resolveContent(ctx, doc.Content)
	}
	tx := api.NewUpdateDoc(meta, ops)
	if _, err := c.submitWrite(ctx, tx); err != nil {
		return nil, err
	}
	doc.ModifiedOn, doc.ModifiedBy = tx.ModifiedOn, meta.ModifiedBy
	return doc, nil
}

// DeleteDocument removes a document.
func (c *Client) DeleteDocument(ctx context.Context, id api.Ref) error {
	doc, err := c.findDocument(ctx, id)
	if err != nil {
		return err
	}
	meta, err := c.meta(ctx, documentTarget(doc), api.CollectionRef{})
	if err != nil {
		return err
	}
	_, err = c.submitWrite(ctx, api.NewRemoveDoc(meta))
	return err
}

// MoveDocumentRequest names the destination of a move. An empty Teamspace
// keeps the current one; an empty Parent moves the document to the top level.
type MoveDocumentRequest struct {
	Teamspace api.Ref
	Parent    api.Ref
}

// MoveDocument reparents a document, optionally into another teamspace.
func (c *Client) MoveDocument(ctx context.Context, id api.Ref, req MoveDocumentRequest) (*api.Document, error) {
	if req.Parent != "" && req.Parent == id {
		return nil, invalidInput("document cannot be its own parent")
	}
	doc, err := c.findDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	meta, err := c.meta(ctx, documentTarget(doc), api.CollectionRef{})
	if err != nil {
		return nil, err
	}
	parent := req.Parent
	if parent == "" {
		parent = api.DocumentNoParent
	}
	ops := api.Attributes{"parent": api.String(string(parent))}
	if req.Teamspace != "" && req.Teamspace != doc.Space {
		ops["space"] = api.String(string(req.Teamspace))
	}
	tx := api.NewUpdateDoc(meta, ops)
	if _, err := c.submitWrite(ctx, tx); err != nil {
		return nil, err
	}
	doc.Parent = parent
	if req.Teamspace != "" {
		doc.Space = req.Teamspace
	}
	doc.ModifiedOn, doc.ModifiedBy = tx.ModifiedOn, meta.ModifiedBy
	doc.Content, doc.ContentBlob = c.resolveContent(ctx, doc.Content)
	return doc, nil
}

func documentTarget(doc *api.Document) api.TxTarget {
	return api.TxTarget{ObjectID: doc.ID, ObjectClass: api.ClassDocument, ObjectSpace: doc.Space}
}

// txSocket returns the connected transaction socket, creating and
// connecting one when none is usable. The handshake runs without socketMu
// so Session and Close stay responsive while it is in flight.
func (c *Client) txSocket(ctx context.Context) (*TxSocket, error) {
	if err := c.EnsureAuthenticated(ctx); err != nil {
		return nil, err
	}
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.socketMu.Lock()
	stale := c.socket
	if stale != nil && stale.Connected() {
		c.socketMu.Unlock()
		return stale, nil
	}
	c.socket = nil
	sess := c.snapshot()
	if sess.token == "" {
		c.socketMu.Unlock()
		return nil, ErrNotAuthenticated
	}
	sock := NewTxSocket(sess.endpoint, sess.token, c.socketOpts)
	c.connecting = sock
	c.socketMu.Unlock()
	if stale != nil {
		_ = stale.Disconnect()
	}

	err := sock.Connect(ctx)
	c.socketMu.Lock()
	aborted := c.connecting != sock
	c.connecting = nil
	if err == nil && !aborted {
		c.socket = sock
	}
	c.socketMu.Unlock()
	if err != nil {
		return nil, err
	}
	if aborted {
		_ = sock.Disconnect()
		return nil, fmt.Errorf("%w: client closed during handshake", ErrConnectionClosed)
	}
	return sock, nil
}

// dropSocket forgets sock if it is still the current socket.
func (c *Client) dropSocket(sock *TxSocket) {
	c.socketMu.Lock()
	if c.socket == sock {
		c.socket = nil
	}
	c.socketMu.Unlock()
	_ = sock.Disconnect()
}

// socketUnavailable reports whether err means the socket could not be
// established, in which case nothing was sent.
func socketUnavailable(err error) bool {
	return errors.Is(err, ErrConnectionClosed) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrNotConnected) ||
		errors.Is(err, ErrInvalidURL)
}

// submitWrite sends tx over the transaction socket. When the socket cannot
// be established, or is found disconnected before the send, the same record
// is submitted over REST instead. Failures after the record was sent are
// returned as is.
func (c *Client) submitWrite(ctx context.Context, tx api.Tx) (json.RawMessage, error) {
	if !c.socketWrites {
		return c.Submit(ctx, tx)
	}
	sock, err := c.txSocket(ctx)
	if err != nil {
		if ctx.Err() != nil || !socketUnavailable(err) {
			return nil, err
		}
		c.logWarnCtx(ctx, "client.tx.socket.fallback", "reason", "connect", "error", err)
		return c.Submit(ctx, tx)
	}
	res, err := sock.SendTransaction(ctx, tx)
	switch {
	case err == nil:
		target := tx.Target()
		c.logDebugCtx(ctx, "client.tx.socket.success",
			"tx_class", string(tx.TxClass()),
			"object_id", string(target.ObjectID),
			"object_class", string(target.ObjectClass),
		)
		return res, nil
	case errors.Is(err, ErrNotConnected):
		c.dropSocket(sock)
		c.logWarnCtx(ctx, "client.tx.socket.fallback", "reason", "not_connected", "error", err)
		return c.Submit(ctx, tx)
	case errors.Is(err, ErrConnectionClosed):
		c.dropSocket(sock)
	}
	return nil, err
}
