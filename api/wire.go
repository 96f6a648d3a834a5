package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ServerConfig is the subset of {base}/config.json the client consumes.
type ServerConfig struct {
	// AccountsURL is the account service RPC endpoint. Required.
	AccountsURL string `json:"ACCOUNTS_URL"`
	// FilesURL is the blob fetch template with :workspace, :blobId and :filename placeholders.
	FilesURL string `json:"FILES_URL,omitempty"`
	// UploadURL is the multipart upload endpoint.
	UploadURL string `json:"UPLOAD_URL,omitempty"`
}

// RPCRequest is an account service call.
type RPCRequest struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

// RPCResponse is an account service reply. Exactly one of Result and Error
// is expected; a missing Result is treated as failure.
type RPCResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorObject    `json:"error,omitempty"`
}

// LoginParams are the parameters of the "login" RPC.
type LoginParams struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginInfo is the result of the "login" RPC.
type LoginInfo struct {
	Token    string `json:"token"`
	Account  Ref    `json:"account,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}

// SelectWorkspaceParams are the parameters of the "selectWorkspace" RPC.
type SelectWorkspaceParams struct {
	WorkspaceURL string `json:"workspaceUrl"`
	Kind         string `json:"kind"`
}

// WorkspaceLoginInfo is the result of the "selectWorkspace" RPC.
type WorkspaceLoginInfo struct {
	Token       string `json:"token"`
	Endpoint    string `json:"endpoint"`
	Workspace   string `json:"workspace,omitempty"`
	WorkspaceID string `json:"workspaceId,omitempty"`
	Account     Ref    `json:"account,omitempty"`
}

// WorkspaceRef returns the tenant id the REST endpoints are scoped by.
func (w WorkspaceLoginInfo) WorkspaceRef() string {
	if w.Workspace != "" {
		return w.Workspace
	}
	return w.WorkspaceID
}

// FindRequest is the body of POST {endpoint}/api/v1/find-all/{workspace}.
type FindRequest struct {
	Class   Class        `json:"_class"`
	Query   Attributes   `json:"query"`
	Options *FindOptions `json:"options,omitempty"`
}

// FindOptions are the serialized query options. Only limit, sort and total
// are transmitted.
type FindOptions struct {
	Limit int            `json:"limit,omitempty"`
	Sort  map[string]int `json:"sort,omitempty"`
	Total bool           `json:"total,omitempty"`
}

// SocketRequest is a frame sent over the transaction socket.
type SocketRequest struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
	ID     int64  `json:"id"`
}

// HelloRequestID is the reserved correlation id of the handshake.
const HelloRequestID int64 = -1

// SocketResponse is a frame received over the transaction socket.
type SocketResponse struct {
	ID     *int64          `json:"-"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorObject    `json:"error,omitempty"`
}

// UnmarshalJSON accepts numeric or numeric-string ids and leaves ID nil when
// the frame carries none.
func (r *SocketResponse) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID     json.RawMessage `json:"id"`
		Result json.RawMessage `json:"result"`
		Error  *ErrorObject    `json:"error"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*r = SocketResponse{Result: wire.Result, Error: wire.Error}
	raw := bytes.Trim(bytes.TrimSpace(wire.ID), `"`)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid frame id %q", string(wire.ID))
	}
	r.ID = &id
	return nil
}

// ErrorObject is an error reported by the account service or the socket.
// The platform reports either {code, message} or a status object
// {severity, code, params}.
type ErrorObject struct {
	Code     string         `json:"code"`
	Message  string         `json:"message,omitempty"`
	Severity string         `json:"severity,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
}

// UnmarshalJSON accepts numeric codes and falls back to params.message.
func (e *ErrorObject) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*e = ErrorObject{Code: s}
		return nil
	}
	f, err := decodeFields(trimmed)
	if err != nil {
		return err
	}
	out := ErrorObject{
		Code:     f.str("code"),
		Message:  f.str("message"),
		Severity: f.str("severity"),
	}
	if v, ok := f.value("params"); ok {
		if params, ok := v.(map[string]any); ok {
			out.Params = params
			if out.Message == "" {
				if msg, ok := params["message"].(string); ok {
					out.Message = msg
				}
			}
		}
	}
	*e = out
	return nil
}

func (e *ErrorObject) String() string {
	if e == nil {
		return ""
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		return e.Code + ": " + msg
	}
	return e.Code
}
