package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"pkt.systems/hulybridge/api"
)

// session is the authenticated state bound to one workspace.
type session struct {
	accountsURL  string
	filesURL     string
	uploadURL    string
	accountToken string
	token        string
	endpoint     string
	workspace    string
	account      api.Ref
}

// SessionInfo is a diagnostic snapshot of the session. Tokens are omitted.
type SessionInfo struct {
	BaseURL       string      `json:"base_url"`
	AccountsURL   string      `json:"accounts_url,omitempty"`
	FilesURL      string      `json:"files_url,omitempty"`
	UploadURL     string      `json:"upload_url,omitempty"`
	Endpoint      string      `json:"endpoint,omitempty"`
	Workspace     string      `json:"workspace,omitempty"`
	Account       api.Ref     `json:"account,omitempty"`
	Authenticated bool        `json:"authenticated"`
	Socket        SocketState `json:"socket_state"`
}

func (c *Client) snapshot() session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess
}

// Session reports the current session state.
func (c *Client) Session() SessionInfo {
	s := c.snapshot()
	info := SessionInfo{
		BaseURL:       c.baseURL.String(),
		AccountsURL:   s.accountsURL,
		FilesURL:      s.filesURL,
		UploadURL:     s.uploadURL,
		Endpoint:      s.endpoint,
		Workspace:     s.workspace,
		Account:       s.account,
		Authenticated: s.token != "",
	}
	c.socketMu.Lock()
	sock := c.socket
	if sock == nil {
		sock = c.connecting
	}
	c.socketMu.Unlock()
	if sock != nil {
		info.Socket = sock.State()
	}
	return info
}

// EnsureAuthenticated authenticates unless a workspace token is already held.
// Concurrent callers share a single authentication.
func (c *Client) EnsureAuthenticated(ctx context.Context) error {
	if c.snapshot().token != "" {
		return nil
	}
	c.authMu.Lock()
	defer c.authMu.Unlock()
	if c.snapshot().token != "" {
		return nil
	}
	return c.authenticateLocked(ctx)
}

// Authenticate runs the full discovery, login and workspace selection
// sequence and replaces any existing session. An open transaction socket is
// disconnected.
func (c *Client) Authenticate(ctx context.Context) error {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	return c.authenticateLocked(ctx)
}

func (c *Client) authenticateLocked(ctx context.Context) error {
	c.logDebugCtx(ctx, "client.auth.start", "base_url", c.baseURL.String(), "workspace", c.cfg.Workspace)
	next, err := c.discover(ctx)
	if err != nil {
		c.logWarnCtx(ctx, "client.auth.discover.error", "error", err)
		return err
	}

	login, err := c.login(ctx, next.accountsURL)
	if err != nil {
		c.logWarnCtx(ctx, "client.auth.login.error", "error", err)
		return err
	}
	next.accountToken = login.Token
	c.logTraceCtx(ctx, "client.auth.login.success")

	ws, err := c.selectWorkspace(ctx, next.accountsURL, login.Token)
	if err != nil {
		c.logWarnCtx(ctx, "client.auth.select_workspace.error", "error", err)
		return err
	}
	endpoint, err := normalizeEndpoint(ws.Endpoint)
	if err != nil {
		return &AuthError{Step: "selectWorkspace", Err: err}
	}
	next.token = ws.Token
	next.endpoint = endpoint
	next.workspace = ws.WorkspaceRef()
	if next.workspace == "" {
		next.workspace = c.cfg.Workspace
	}
	next.account = firstRef(ws.Account, login.Account, accountFromToken(ws.Token), accountFromToken(login.Token))

	c.mu.Lock()
	c.sess = next
	c.mu.Unlock()

	_ = c.resetSocket()

	c.logInfoCtx(ctx, "client.auth.success", "workspace", next.workspace, "endpoint", next.endpoint, "account", string(next.account))
	return nil
}

func (c *Client) discover(ctx context.Context) (session, error) {
	configURL := c.baseURL.JoinPath("config.json").String()
	resp, err := c.do(ctx, httpRequest{op: "config", method: "GET", url: configURL})
	if err != nil {
		return session{}, fmt.Errorf("%w: fetch %s: %v", ErrConfig, configURL, err)
	}
	if !resp.ok() {
		return session{}, fmt.Errorf("%w: fetch %s: status %d", ErrConfig, configURL, resp.status)
	}
	var doc api.ServerConfig
	if err := json.Unmarshal(resp.body, &doc); err != nil {
		return session{}, fmt.Errorf("%w: decode %s: %v", ErrConfig, configURL, err)
	}
	if strings.TrimSpace(doc.AccountsURL) == "" {
		return session{}, fmt.Errorf("%w: %s has no ACCOUNTS_URL", ErrConfig, configURL)
	}
	var next session
	if next.accountsURL, err = c.resolveURL(doc.AccountsURL); err != nil {
		return session{}, fmt.Errorf("%w: ACCOUNTS_URL: %v", ErrConfig, err)
	}
	if next.filesURL, err = c.resolveURL(doc.FilesURL); err != nil {
		return session{}, fmt.Errorf("%w: FILES_URL: %v", ErrConfig, err)
	}
	if next.uploadURL, err = c.resolveURL(doc.UploadURL); err != nil {
		return session{}, fmt.Errorf("%w: UPLOAD_URL: %v", ErrConfig, err)
	}
	return next, nil
}

func (c *Client) login(ctx context.Context, accountsURL string) (api.LoginInfo, error) {
	var info api.LoginInfo
	err := c.accountRPC(ctx, "login", accountsURL, "", api.LoginParams{
		Email:    c.cfg.Email,
		Password: c.cfg.Password,
	}, &info)
	if err != nil {
		return api.LoginInfo{}, err
	}
	if info.Token == "" {
		return api.LoginInfo{}, &AuthError{Step: "login", Message: "no token in login result"}
	}
	return info, nil
}

func (c *Client) selectWorkspace(ctx context.Context, accountsURL, token string) (api.WorkspaceLoginInfo, error) {
	var info api.WorkspaceLoginInfo
	err := c.accountRPC(ctx, "selectWorkspace", accountsURL, token, api.SelectWorkspaceParams{
		WorkspaceURL: c.cfg.Workspace,
		Kind:         "external",
	}, &info)
	if err != nil {
		return api.WorkspaceLoginInfo{}, err
	}
	if info.Token == "" || info.Endpoint == "" {
		return api.WorkspaceLoginInfo{}, &AuthError{Step: "selectWorkspace", Message: fmt.Sprintf("workspace %q not resolved", c.cfg.Workspace)}
	}
	return info, nil
}

// accountRPC calls method on the account service and decodes its result into
// out. Every failure is reported as *AuthError for the given step.
func (c *Client) accountRPC(ctx context.Context, method, accountsURL, token string, params, out any) error {
	body, err := c.postJSON(ctx, "account."+method, accountsURL, token, api.RPCRequest{Method: method, Params: params})
	if err != nil {
		authErr := &AuthError{Step: method, Err: err}
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			var rpc api.RPCResponse
			if json.Unmarshal(apiErr.Body, &rpc) == nil && rpc.Error != nil {
				authErr.Code, authErr.Message = rpc.Error.Code, rpc.Error.Message
			}
		}
		return authErr
	}
	var rpc api.RPCResponse
	if err := json.Unmarshal(body, &rpc); err != nil {
		return &AuthError{Step: method, Err: &DecodeError{Err: err}}
	}
	if rpc.Error != nil {
		return &AuthError{Step: method, Code: rpc.Error.Code, Message: rpc.Error.Message}
	}
	result := bytes.TrimSpace(rpc.Result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return &AuthError{Step: method, Message: "empty result"}
	}
	if err := json.Unmarshal(result, out); err != nil {
		return &AuthError{Step: method, Err: &DecodeError{Path: "result", Err: err}}
	}
	return nil
}

// normalizeEndpoint maps ws:// to http:// and wss:// to https:// and strips
// trailing slashes.
func normalizeEndpoint(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: endpoint %q: %v", ErrInvalidURL, raw, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
		u.Scheme = strings.ToLower(u.Scheme)
	default:
		return "", fmt.Errorf("%w: endpoint %q has unsupported scheme", ErrInvalidURL, raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: endpoint %q has no host", ErrInvalidURL, raw)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String(), nil
}

// accountFromToken reads the account claim. The signature is not verified.
func accountFromToken(token string) api.Ref {
	if token == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	for _, key := range []string{"account", "accountUuid", "sub"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return api.Ref(v)
		}
	}
	return ""
}

func firstRef(refs ...api.Ref) api.Ref {
	for _, r := range refs {
		if r != "" {
			return r
		}
	}
	return ""
}

// workspaceSession returns the session after ensuring authentication.
func (c *Client) workspaceSession(ctx context.Context) (session, error) {
	if err := c.EnsureAuthenticated(ctx); err != nil {
		return session{}, err
	}
	s := c.snapshot()
	if s.token == "" || s.workspace == "" {
		return session{}, fmt.Errorf("%w: no workspace bound", ErrNotAuthenticated)
	}
	return s, nil
}

// accountSession is workspaceSession plus a resolved account id.
func (c *Client) accountSession(ctx context.Context) (session, error) {
	s, err := c.workspaceSession(ctx)
	if err != nil {
		return session{}, err
	}
	if s.account == "" {
		return session{}, fmt.Errorf("%w: account id unresolved", ErrNotAuthenticated)
	}
	return s, nil
}
