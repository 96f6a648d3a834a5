package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"pkt.systems/hulybridge/api"
)

const (
	defaultFilesTemplate = "/files?workspace=:workspace&file=:blobId"
	defaultUploadPath    = "/files"
)

// UploadBlob stores data as a blob in the bound workspace. The multipart body
// carries a "workspace" field and a "file" part named name.
func (c *Client) UploadBlob(ctx context.Context, name, contentType string, data []byte) (api.BlobRef, error) {
	if strings.TrimSpace(name) == "" {
		return api.BlobRef{}, invalidInput("blob name required")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	sess, err := c.workspaceSession(ctx)
	if err != nil {
		return api.BlobRef{}, err
	}
	uploadURL := sess.uploadURL
	if uploadURL == "" {
		uploadURL = c.baseURL.String() + defaultUploadPath
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("workspace", sess.workspace); err != nil {
		return api.BlobRef{}, err
	}
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return api.BlobRef{}, err
	}
	if _, err := part.Write(data); err != nil {
		return api.BlobRef{}, err
	}
	if err := mw.Close(); err != nil {
		return api.BlobRef{}, err
	}

	resp, err := c.do(ctx, httpRequest{
		op:          "blob.upload",
		method:      http.MethodPost,
		url:         uploadURL,
		token:       sess.token,
		body:        &body,
		contentType: mw.FormDataContentType(),
	})
	if err != nil {
		return api.BlobRef{}, err
	}
	if !resp.ok() {
		return api.BlobRef{}, &APIError{Method: http.MethodPost, URL: redactURL(uploadURL), Status: resp.status, Body: resp.body}
	}
	ref, err := decodeUploadResponse(resp.body)
	if err != nil {
		return api.BlobRef{}, err
	}
	if ref.Name == "" {
		ref.Name = name
	}
	if ref.ContentType == "" {
		ref.ContentType = contentType
	}
	if ref.Size == 0 {
		ref.Size = int64(len(data))
	}
	c.logDebugCtx(ctx, "client.blob.upload.success", "blob_id", string(ref.ID), "size", humanize.Bytes(uint64(len(data))))
	return ref, nil
}

// decodeUploadResponse accepts [{"id":...}], {"id":...} or a bare identifier.
func decodeUploadResponse(body []byte) (api.BlobRef, error) {
	trimmed := bytes.TrimSpace(body)
	var ref api.BlobRef
	switch {
	case len(trimmed) == 0:
		return api.BlobRef{}, fmt.Errorf("%w: empty upload response", ErrInvalidResponse)
	case trimmed[0] == '[':
		var refs []api.BlobRef
		if err := json.Unmarshal(trimmed, &refs); err != nil {
			return api.BlobRef{}, &DecodeError{Err: err}
		}
		if len(refs) == 0 {
			return api.BlobRef{}, &DecodeError{Path: "[0]", Err: errMissing}
		}
		ref = refs[0]
	case trimmed[0] == '{' || trimmed[0] == '"':
		if err := json.Unmarshal(trimmed, &ref); err != nil {
			return api.BlobRef{}, &DecodeError{Err: err}
		}
	default:
		ref.ID = api.Ref(string(trimmed))
	}
	if ref.ID == "" || strings.ContainsAny(string(ref.ID), " \t\r\n") {
		return api.BlobRef{}, fmt.Errorf("%w: upload response carries no blob id", ErrInvalidResponse)
	}
	return ref, nil
}

// FetchBlob downloads a blob as text through the files URL template.
func (c *Client) FetchBlob(ctx context.Context, blobID api.Ref, filename string) (string, error) {
	if blobID == "" {
		return "", invalidInput("blob id required")
	}
	sess, err := c.workspaceSession(ctx)
	if err != nil {
		return "", err
	}
	tmpl := sess.filesURL
	if tmpl == "" {
		tmpl = c.baseURL.String() + defaultFilesTemplate
	}
	if filename == "" {
		filename = string(blobID)
	}
	fetchURL := expandFilesTemplate(tmpl, sess.workspace, string(blobID), filename)
	body, err := c.get(ctx, "blob.fetch", fetchURL, sess.token)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func expandFilesTemplate(tmpl, workspace, blobID, filename string) string {
	return strings.NewReplacer(
		":workspace", url.PathEscape(workspace),
		":blobId", url.PathEscape(blobID),
		":filename", url.PathEscape(filename),
	).Replace(tmpl)
}

// storeContent returns content unchanged below the blob threshold. At or
// above it the content is uploaded and the blob id is returned instead.
func (c *Client) storeContent(ctx context.Context, docID api.Ref, content string) (string, error) {
	if len(content) < c.blobThreshold {
		return content, nil
	}
	name := api.BlobContentName(docID, time.Now())
	ref, err := c.UploadBlob(ctx, name, "text/markdown", []byte(content))
	if err != nil {
		return "", fmt.Errorf("store content of %s: %w", docID, err)
	}
	return string(ref.ID), nil
}

// resolveContent replaces a blob reference with the blob text. A failed
// fetch is logged and the reference is returned unchanged.
func (c *Client) resolveContent(ctx context.Context, content string) (string, api.Ref) {
	if !api.IsBlobReference(content) {
		return content, ""
	}
	text, err := c.FetchBlob(ctx, api.Ref(content), "")
	if err != nil {
		c.logWarnCtx(ctx, "client.blob.fetch.degraded", "blob_id", content, "error", err)
		return content, ""
	}
	return text, api.Ref(content)
}
