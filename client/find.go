package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"pkt.systems/hulybridge/api"
)

// SortOrder is the direction of a sort key.
type SortOrder int

// Sort directions as the platform encodes them.
const (
	Ascending  SortOrder = 1
	Descending SortOrder = -1
)

// MaxFindLimit is the largest limit callers may request.
const MaxFindLimit = 1000

var errMissing = errors.New("missing")

// FindOptions shape a find request. Only Limit, Sort and Total are sent to
// the server. Lookup and Projection are accepted for API symmetry but are
// not serialized and have no effect.
type FindOptions struct {
	// Limit caps the number of results. Zero means server default.
	Limit int
	// Sort orders results by attribute.
	Sort map[string]SortOrder
	// Lookup is unsupported and ignored.
	Lookup map[string]any
	// Projection is unsupported and ignored.
	Projection map[string]int
	// Total asks the server to report the total match count.
	Total bool
}

func (o *FindOptions) wire() (*api.FindOptions, error) {
	if o == nil {
		return nil, nil
	}
	if o.Limit < 0 || o.Limit > MaxFindLimit {
		return nil, invalidInput("limit %d out of range 1..%d", o.Limit, MaxFindLimit)
	}
	out := &api.FindOptions{Limit: o.Limit, Total: o.Total}
	if len(o.Sort) > 0 {
		out.Sort = make(map[string]int, len(o.Sort))
		for k, v := range o.Sort {
			if v != Ascending && v != Descending {
				return nil, invalidInput("sort %q: direction must be 1 or -1", k)
			}
			out.Sort[k] = int(v)
		}
	}
	if out.Limit == 0 && out.Sort == nil && !out.Total {
		return nil, nil
	}
	return out, nil
}

// FindResult is the undecoded result of a find request.
type FindResult struct {
	// Value holds one raw JSON document per match.
	Value []json.RawMessage
	// Total is the total match count when requested and reported, else -1.
	Total int64
}

// FindAllRaw issues a find request and returns the raw documents.
func (c *Client) FindAllRaw(ctx context.Context, class api.Class, query api.Attributes, opts *FindOptions) (*FindResult, error) {
	if strings.TrimSpace(string(class)) == "" {
		return nil, invalidInput("class required")
	}
	wireOpts, err := opts.wire()
	if err != nil {
		return nil, err
	}
	sess, err := c.workspaceSession(ctx)
	if err != nil {
		return nil, err
	}
	if query == nil {
		query = api.Attributes{}
	}
	findURL := sess.endpoint + "/api/v1/find-all/" + url.PathEscape(sess.workspace)
	body, err := c.postJSON(ctx, "find", findURL, sess.token, api.FindRequest{
		Class:   class,
		Query:   query,
		Options: wireOpts,
	})
	if err != nil {
		return nil, err
	}
	if !looksLikeJSON(body) {
		return nil, fmt.Errorf("%w: find %s: body is not JSON: %q", ErrInvalidResponse, class, snippet(body))
	}
	res, err := decodeFindResult(body)
	if err != nil {
		return nil, err
	}
	c.logTraceCtx(ctx, "client.find.success", "class", string(class), "count", len(res.Value))
	return res, nil
}

func decodeFindResult(body []byte) (*FindResult, error) {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if trimmed[0] != '{' {
		return nil, &DecodeError{Err: errors.New("expected object with a value array")}
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &top); err != nil {
		return nil, &DecodeError{Err: err}
	}
	rawValue, ok := top["value"]
	if !ok {
		return nil, &DecodeError{Path: "value", Err: errMissing}
	}
	res := &FindResult{Total: -1}
	if err := json.Unmarshal(rawValue, &res.Value); err != nil || res.Value == nil {
		return nil, &DecodeError{Path: "value", Err: errors.New("expected array")}
	}
	if rawTotal, ok := top["total"]; ok && !bytes.Equal(bytes.TrimSpace(rawTotal), []byte("null")) {
		if err := json.Unmarshal(rawTotal, &res.Total); err != nil {
			return nil, &DecodeError{Path: "total", Err: err}
		}
	}
	return res, nil
}

// FindAll issues a find request and decodes every match into T. A match that
// fails to decode yields a *DecodeError naming its path.
func FindAll[T any](ctx context.Context, c *Client, class api.Class, query api.Attributes, opts *FindOptions) ([]T, error) {
	res, err := c.FindAllRaw(ctx, class, query, opts)
	if err != nil {
		return nil, err
	}
	return decodeItems[T](res.Value)
}

// FindOne returns the first match or nil when there is none.
func FindOne[T any](ctx context.Context, c *Client, class api.Class, query api.Attributes, opts *FindOptions) (*T, error) {
	one := FindOptions{Limit: 1}
	if opts != nil {
		one = *opts
		one.Limit = 1
	}
	items, err := FindAll[T](ctx, c, class, query, &one)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func decodeItems[T any](raw []json.RawMessage) ([]T, error) {
	out := make([]T, len(raw))
	for i, item := range raw {
		if err := json.Unmarshal(item, &out[i]); err != nil {
			return nil, &DecodeError{Path: itemPath(i, err), Err: err}
		}
	}
	return out, nil
}

func itemPath(i int, err error) string {
	path := fmt.Sprintf("value[%d]", i)
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		path += "." + typeErr.Field
	}
	return path
}
