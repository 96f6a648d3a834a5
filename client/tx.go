package client

import (
	"context"
	"encoding/json"
	"net/url"

	"pkt.systems/hulybridge/api"
	"pkt.systems/hulybridge/internal/ids"
)

// Submit posts a transaction record to the REST transaction endpoint and
// returns the raw response body, which may be empty.
func (c *Client) Submit(ctx context.Context, tx api.Tx) (json.RawMessage, error) {
	if tx == nil {
		return nil, invalidInput("transaction required")
	}
	sess, err := c.workspaceSession(ctx)
	if err != nil {
		return nil, err
	}
	txURL := sess.endpoint + "/api/v1/tx/" + url.PathEscape(sess.workspace)
	body, err := c.postJSON(ctx, "tx", txURL, sess.token, tx)
	if err != nil {
		return nil, err
	}
	target := tx.Target()
	c.logDebugCtx(ctx, "client.tx.rest.success",
		"tx_class", string(tx.TxClass()),
		"object_id", string(target.ObjectID),
		"object_class", string(target.ObjectClass),
	)
	return body, nil
}

func checkTarget(target api.TxTarget, needID bool) error {
	if target.ObjectClass == "" {
		return invalidInput("object class required")
	}
	if target.ObjectSpace == "" {
		return invalidInput("object space required")
	}
	if needID && target.ObjectID == "" {
		return invalidInput("object id required")
	}
	return nil
}

func checkCollection(parent api.CollectionRef) error {
	if parent.AttachedTo == "" || parent.AttachedToClass == "" || parent.Collection == "" {
		return invalidInput("attachedTo, attachedToClass and collection required")
	}
	return nil
}

// meta builds transaction metadata for target authored by the session account.
func (c *Client) meta(ctx context.Context, target api.TxTarget, parent api.CollectionRef) (api.TxMeta, error) {
	sess, err := c.accountSession(ctx)
	if err != nil {
		return api.TxMeta{}, err
	}
	return api.TxMeta{TxTarget: target, ModifiedBy: sess.account, Collection: parent}, nil
}

// CreateDoc creates a document over REST. A fresh id is generated when
// target.ObjectID is empty. The created id is returned.
func (c *Client) CreateDoc(ctx context.Context, target api.TxTarget, attrs api.Attributes) (api.Ref, error) {
	return c.create(ctx, target, api.CollectionRef{}, attrs)
}

// UpdateDoc applies ops to a document over REST.
func (c *Client) UpdateDoc(ctx context.Context, target api.TxTarget, ops api.Attributes) error {
	return c.update(ctx, target, api.CollectionRef{}, ops)
}

// RemoveDoc removes a document over REST.
func (c *Client) RemoveDoc(ctx context.Context, target api.TxTarget) error {
	return c.remove(ctx, target, api.CollectionRef{})
}

// AddCollection creates a document attached to parent's collection.
func (c *Client) AddCollection(ctx context.Context, target api.TxTarget, parent api.CollectionRef, attrs api.Attributes) (api.Ref, error) {
	if err := checkCollection(parent); err != nil {
		return "", err
	}
	return c.create(ctx, target, parent, attrs)
}

// UpdateCollection updates an attached document. The record carries the
// attachedTo, attachedToClass and collection fields.
func (c *Client) UpdateCollection(ctx context.Context, target api.TxTarget, parent api.CollectionRef, ops api.Attributes) error {
	if err := checkCollection(parent); err != nil {
		return err
	}
	return c.update(ctx, target, parent, ops)
}

// RemoveCollection removes an attached document. The record carries the
// attachedTo, attachedToClass and collection fields.
func (c *Client) RemoveCollection(ctx context.Context, target api.TxTarget, parent api.CollectionRef) error {
	if err := checkCollection(parent); err != nil {
		return err
	}
	return c.remove(ctx, target, parent)
}

func (c *Client) create(ctx context.Context, target api.TxTarget, parent api.CollectionRef, attrs api.Attributes) (api.Ref, error) {
	if target.ObjectID == "" {
		target.ObjectID = api.Ref(ids.NewRef())
	}
	if err := checkTarget(target, true); err != nil {
		return "", err
	}
	meta, err := c.meta(ctx, target, parent)
	if err != nil {
		return "", err
	}
	if _, err := c.Submit(ctx, api.NewCreateDoc(meta, attrs)); err != nil {
		return "", err
	}
	return target.ObjectID, nil
}

func (c *Client) update(ctx context.Context, target api.TxTarget, parent api.CollectionRef, ops api.Attributes) error {
	if err := checkTarget(target, true); err != nil {
		return err
	}
	if len(ops) == 0 {
		return invalidInput("no update operations")
	}
	meta, err := c.meta(ctx, target, parent)
	if err != nil {
		return err
	}
	_, err = c.Submit(ctx, api.NewUpdateDoc(meta, ops))
	return err
}

func (c *Client) remove(ctx context.Context, target api.TxTarget, parent api.CollectionRef) error {
	if err := checkTarget(target, true); err != nil {
		return err
	}
	meta, err := c.meta(ctx, target, parent)
	if err != nil {
		return err
	}
	_, err = c.Submit(ctx, api.NewRemoveDoc(meta))
	return err
}
