// Package platformtest runs an in-memory fake of the collaboration platform
// for tests: config discovery, the account service, find and transaction
// endpoints, blob upload and fetch, and the transaction socket.
package platformtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

// Default credentials accepted by the fake.
const (
	DefaultEmail     = "dev@example.com"
	DefaultPassword  = "secret"
	DefaultWorkspace = "engineering"
	WorkspaceID      = "ws-7f3c"
	AccountID        = "acc-1"

	accountsPath = "/_accounts"
	loginToken   = "login-token"
)

// Route names reported by Count.
const (
	RouteConfig          = "config"
	RouteLogin           = "login"
	RouteSelectWorkspace = "selectWorkspace"
	RouteFind            = "find"
	RouteTx              = "tx"
	RouteUpload          = "upload"
	RouteFetch           = "fetch"
	RouteSocket          = "socket"
	RouteSocketHello     = "socket.hello"
	RouteSocketTx        = "socket.tx"
)

type options struct {
	helloDelay      time.Duration
	noHello         bool
	noTxReply       bool
	txErrCode       string
	txErrMessage    string
	socketDisabled  bool
	socketHandler   func(*websocket.Conn)
	loginErrCode    string
	configStatus    int
	configBody      string
	filesURL        string
	uploadURL       string
	accountInResult bool
	findBody        string
}

// Option customises the fake.
type Option func(*options)

// WithHelloDelay delays the hello reply.
func WithHelloDelay(d time.Duration) Option { return func(o *options) { o.helloDelay = d } }

// WithoutHello never answers the hello request.
func WithoutHello() Option { return func(o *options) { o.noHello = true } }

// WithoutTxReply applies socket transactions but never answers them.
func WithoutTxReply() Option { return func(o *options) { o.noTxReply = true } }

// WithTxError rejects every socket transaction with the given error object.
func WithTxError(code, message string) Option {
	return func(o *options) { o.txErrCode, o.txErrMessage = code, message }
}

// WithSocketDisabled refuses websocket upgrades with 503.
func WithSocketDisabled() Option { return func(o *options) { o.socketDisabled = true } }

// WithSocketHandler replaces the socket protocol handler after the upgrade.
func WithSocketHandler(fn func(*websocket.Conn)) Option {
	return func(o *options) { o.socketHandler = fn }
}

// WithLoginError rejects login with code.
func WithLoginError(code string) Option { return func(o *options) { o.loginErrCode = code } }

// WithConfigResponse serves config.json with the given status and body.
func WithConfigResponse(status int, body string) Option {
	return func(o *options) { o.configStatus, o.configBody = status, body }
}

// WithFilesURL advertises tmpl as FILES_URL.
func WithFilesURL(tmpl string) Option { return func(o *options) { o.filesURL = tmpl } }

// WithUploadURL advertises u as UPLOAD_URL.
func WithUploadURL(u string) Option { return func(o *options) { o.uploadURL = u } }

// WithAccountInResult reports the account id in the selectWorkspace result.
// Without it the id is only available from the token claims.
func WithAccountInResult() Option { return func(o *options) { o.accountInResult = true } }

// WithFindBody answers every find request with body verbatim.
func WithFindBody(body string) Option { return func(o *options) { o.findBody = body } }

// Server is a running fake platform.
type Server struct {
	// URL is the platform base URL.
	URL string

	t      testing.TB
	opts   options
	http   *httptest.Server
	token  string
	upg    websocket.Upgrader
	mu     sync.Mutex
	docs   map[string]map[string]map[string]any
	blobs  map[string][]byte
	txs    []map[string]any
	finds  []map[string]any
	counts map[string]int
	conns  map[*websocket.Conn]struct{}
}

// Start runs a fake platform until the test ends.
func Start(t testing.TB, opts ...Option) *Server {
	t.Helper()
	s := &Server{
		t:      t,
		docs:   make(map[string]map[string]map[string]any),
		blobs:  make(map[string][]byte),
		counts: make(map[string]int),
		conns:  make(map[*websocket.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(&s.opts)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"account":   AccountID,
		"workspace": WorkspaceID,
		"iat":       time.Now().Unix(),
	}).SignedString([]byte("platformtest"))
	if err != nil {
		t.Fatalf("platformtest: sign token: %v", err)
	}
	s.token = token

	mux := http.NewServeMux()
	mux.HandleFunc("GET /config.json", s.handleConfig)
	mux.HandleFunc("POST "+accountsPath, s.handleAccounts)
	mux.HandleFunc("POST /api/v1/find-all/{workspace}", s.handleFind)
	mux.HandleFunc("POST /api/v1/tx/{workspace}", s.handleTx)
	mux.HandleFunc("POST /files", s.handleUpload)
	mux.HandleFunc("GET /files", s.handleFetch)
	mux.HandleFunc("GET /{$}", s.handleSocket)
	s.http = httptest.NewServer(mux)
	s.URL = s.http.URL
	t.Cleanup(s.Close)
	return s
}

// Close drops socket connections and stops the server.
func (s *Server) Close() {
	s.DropSockets()
	s.http.Close()
}

// Endpoint is the workspace endpoint the fake advertises, in http form.
func (s *Server) Endpoint() string { return s.http.URL }

// Token is the workspace token issued by selectWorkspace.
func (s *Server) Token() string { return s.token }

// Count reports how many requests a route has served.
func (s *Server) Count(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[route]
}

func (s *Server) hit(route string) {
	s.mu.Lock()
	s.counts[route]++
	s.mu.Unlock()
}

// Seed stores docs under class. Missing _id values are generated.
func (s *Server) Seed(class string, docs ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.bucket(class)
	for i, doc := range docs {
		copied := normalize(doc)
		copied["_class"] = class
		id, _ := copied["_id"].(string)
		if id == "" {
			id = fmt.Sprintf("%s-%d", strings.ReplaceAll(class, ":", "-"), len(bucket)+i)
			copied["_id"] = id
		}
		bucket[id] = copied
	}
}

// SeedBlob stores a blob under id.
func (s *Server) SeedBlob(id string, data []byte) {
	s.mu.Lock()
	s.blobs[id] = append([]byte(nil), data...)
	s.mu.Unlock()
}

// Doc returns a copy of the stored document or nil.
func (s *Server) Doc(class, id string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[class][id]
	if !ok {
		return nil
	}
	return normalize(doc)
}

// Docs returns copies of every stored document of class ordered by id.
func (s *Server) Docs(class string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.docs[class]))
	for id := range s.docs[class] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, normalize(s.docs[class][id]))
	}
	return out
}

// Blob returns the stored blob and whether it exists.
func (s *Server) Blob(id string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[id]
	return data, ok
}

// BlobCount returns the number of stored blobs.
func (s *Server) BlobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

// Transactions returns every applied transaction record in arrival order.
func (s *Server) Transactions() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, len(s.txs))
	for i, tx := range s.txs {
		out[i] = normalize(tx)
	}
	return out
}

// FindRequests returns every decoded find request body in arrival order.
func (s *Server) FindRequests() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, len(s.finds))
	for i, req := range s.finds {
		out[i] = normalize(req)
	}
	return out
}

// DropSockets closes every open socket connection from the server side.
func (s *Server) DropSockets() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

func (s *Server) bucket(class string) map[string]map[string]any {
	b, ok := s.docs[class]
	if !ok {
		b = make(map[string]map[string]any)
		s.docs[class] = b
	}
	return b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(r io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Server) authorized(r *http.Request) bool {
	return r.Header.Get("Authorization") == "Bearer "+s.token
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	s.hit(RouteConfig)
	if s.opts.configStatus != 0 {
		w.WriteHeader(s.opts.configStatus)
		_, _ = io.WriteString(w, s.opts.configBody)
		return
	}
	cfg := map[string]string{"ACCOUNTS_URL": accountsPath}
	if s.opts.filesURL != "" {
		cfg["FILES_URL"] = s.opts.filesURL
	}
	if s.opts.uploadURL != "" {
		cfg["UPLOAD_URL"] = s.opts.uploadURL
	}
	writeJSON(w, http.StatusOK, cfg)
}

func rpcError(code string) map[string]any {
	return map[string]any{"error": map[string]any{"code": code, "message": "rejected by platformtest"}}
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string         `json:"method"`
		Params map[string]any `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, rpcError("platform:status:BadRequest"))
		return
	}
	switch req.Method {
	case "login":
		s.hit(RouteLogin)
		if s.opts.loginErrCode != "" {
			writeJSON(w, http.StatusOK, rpcError(s.opts.loginErrCode))
			return
		}
		if req.Params["email"] != DefaultEmail || req.Params["password"] != DefaultPassword {
			writeJSON(w, http.StatusOK, rpcError("platform:status:InvalidPassword"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"result": map[string]any{"token": loginToken}})
	case "selectWorkspace":
		s.hit(RouteSelectWorkspace)
		if r.Header.Get("Authorization") != "Bearer "+loginToken {
			writeJSON(w, http.StatusUnauthorized, rpcError("platform:status:Unauthorized"))
			return
		}
		if req.Params["workspaceUrl"] != DefaultWorkspace {
			writeJSON(w, http.StatusOK, rpcError("platform:status:WorkspaceNotFound"))
			return
		}
		result := map[string]any{
			"token":     s.token,
			"endpoint":  "ws" + strings.TrimPrefix(s.http.URL, "http"),
			"workspace": WorkspaceID,
		}
		if s.opts.accountInResult {
			result["account"] = AccountID
		}
		writeJSON(w, http.StatusOK, map[string]any{"result": result})
	default:
		writeJSON(w, http.StatusOK, rpcError("platform:status:UnknownMethod"))
	}
}

func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	s.hit(RouteFind)
	if !s.authorized(r) || r.PathValue("workspace") != WorkspaceID {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}
	if s.opts.findBody != "" {
		_, _ = io.WriteString(w, s.opts.findBody)
		return
	}
	req, err := decodeBody(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	class, _ := req["_class"].(string)
	query, _ := req["query"].(map[string]any)
	limit := 0
	if opts, ok := req["options"].(map[string]any); ok {
		if n, ok := opts["limit"].(json.Number); ok {
			v, _ := n.Int64()
			limit = int(v)
		}
	}
	s.mu.Lock()
	s.finds = append(s.finds, req)
	ids := make([]string, 0, len(s.docs[class]))
	for id := range s.docs[class] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	matches := make([]map[string]any, 0)
	for _, id := range ids {
		doc := s.docs[class][id]
		if matchesQuery(doc, query) {
			matches = append(matches, normalize(doc))
		}
	}
	s.mu.Unlock()
	total := len(matches)
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{"value": matches, "total": total})
}

func matchesQuery(doc, query map[string]any) bool {
	for key, want := range query {
		if !sameJSON(doc[key], want) {
			return false
		}
	}
	return true
}

func sameJSON(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ab, bb)
}

func (s *Server) handleTx(w http.ResponseWriter, r *http.Request) {
	s.hit(RouteTx)
	if !s.authorized(r) || r.PathValue("workspace") != WorkspaceID {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}
	tx, err := decodeBody(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	doc, err := s.apply(tx)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
		return
	}
	if retrieve, _ := tx["retrieve"].(bool); retrieve && doc != nil {
		writeJSON(w, http.StatusOK, map[string]any{"object": doc})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

// apply executes a transaction record and returns the resulting document.
func (s *Server) apply(tx map[string]any) (map[string]any, error) {
	class, _ := tx["objectClass"].(string)
	id, _ := tx["objectId"].(string)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = append(s.txs, normalize(tx))
	bucket := s.bucket(class)
	switch tx["_class"] {
	case "core:class:TxCreateDoc":
		doc := map[string]any{}
		if attrs, ok := tx["attributes"].(map[string]any); ok {
			doc = normalize(attrs)
		}
		doc["_id"] = id
		doc["_class"] = class
		doc["space"] = tx["objectSpace"]
		doc["modifiedOn"] = tx["modifiedOn"]
		doc["modifiedBy"] = tx["modifiedBy"]
		doc["createdOn"] = tx["createdOn"]
		doc["createdBy"] = tx["createdBy"]
		for _, key := range []string{"attachedTo", "attachedToClass", "collection"} {
			if v, ok := tx[key]; ok {
				doc[key] = v
			}
		}
		bucket[id] = doc
		return normalize(doc), nil
	case "core:class:TxUpdateDoc":
		doc, ok := bucket[id]
		if !ok {
			return nil, fmt.Errorf("%s %s not found", class, id)
		}
		ops, _ := tx["operations"].(map[string]any)
		for key, v := range ops {
			if key == "$inc" {
				incs, _ := v.(map[string]any)
				for field, delta := range incs {
					doc[field] = addNumbers(doc[field], delta)
				}
				continue
			}
			doc[key] = v
		}
		doc["modifiedOn"] = tx["modifiedOn"]
		doc["modifiedBy"] = tx["modifiedBy"]
		return normalize(doc), nil
	case "core:class:TxRemoveDoc":
		if _, ok := bucket[id]; !ok {
			return nil, fmt.Errorf("%s %s not found", class, id)
		}
		delete(bucket, id)
		return nil, nil
	}
	return nil, fmt.Errorf("unknown transaction class %v", tx["_class"])
}

func toInt(v any) int64 {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, _ := n.Float64()
			return int64(f)
		}
		return i
	case float64:
		return int64(n)
	case int:
		return int64(n)
	case int64:
		return n
	}
	return 0
}

func addNumbers(a, b any) json.Number {
	return json.Number(strconv.FormatInt(toInt(a)+toInt(b), 10))
}

// normalize deep-copies v through JSON so stored documents never alias
// caller maps and numbers are json.Number.
func normalize(v map[string]any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	out, err := decodeBody(bytes.NewReader(data))
	if err != nil {
		return map[string]any{}
	}
	return out
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	s.hit(RouteUpload)
	if !s.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		http.Error(w, "multipart expected", http.StatusBadRequest)
		return
	}
	mr := multipart.NewReader(r.Body, params["boundary"])
	var workspace, name string
	var data []byte
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		body, err := io.ReadAll(part)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		switch part.FormName() {
		case "workspace":
			workspace = string(body)
		case "file":
			name = part.FileName()
			data = body
		}
	}
	if workspace != WorkspaceID || name == "" {
		http.Error(w, "workspace and file required", http.StatusBadRequest)
		return
	}
	s.SeedBlob(name, data)
	writeJSON(w, http.StatusOK, []map[string]any{{"key": "file", "id": name}})
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	s.hit(RouteFetch)
	if !s.authorized(r) || r.URL.Query().Get("workspace") != WorkspaceID {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	data, ok := s.Blob(r.URL.Query().Get("file"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/markdown")
	_, _ = w.Write(data)
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.NotFound(w, r)
		return
	}
	s.hit(RouteSocket)
	if s.opts.socketDisabled {
		http.Error(w, "socket disabled", http.StatusServiceUnavailable)
		return
	}
	if !s.authorized(r) || r.URL.Query().Get("sessionId") == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := s.upg.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()
	if s.opts.socketHandler != nil {
		s.opts.socketHandler(conn)
		return
	}
	s.serveSocket(conn)
}

type socketFrame struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	ID     int64             `json:"id"`
}

func (s *Server) serveSocket(conn *websocket.Conn) {
	var writeMu sync.Mutex
	write := func(v any) {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.WriteJSON(v)
	}
	for {
		var frame socketFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		switch frame.Method {
		case "hello":
			s.hit(RouteSocketHello)
			if s.opts.noHello {
				continue
			}
			reply := map[string]any{"id": frame.ID, "result": "hello"}
			if s.opts.helloDelay > 0 {
				time.AfterFunc(s.opts.helloDelay, func() { write(reply) })
				continue
			}
			write(reply)
		case "tx":
			s.hit(RouteSocketTx)
			if s.opts.txErrCode != "" {
				write(map[string]any{"id": frame.ID, "error": map[string]any{
					"code": s.opts.txErrCode, "message": s.opts.txErrMessage,
				}})
				continue
			}
			if len(frame.Params) != 1 {
				write(map[string]any{"id": frame.ID, "error": map[string]any{"code": "platform:status:BadRequest"}})
				continue
			}
			tx, err := decodeBody(bytes.NewReader(frame.Params[0]))
			if err == nil {
				_, err = s.apply(tx)
			}
			if s.opts.noTxReply {
				continue
			}
			if err != nil {
				write(map[string]any{"id": frame.ID, "error": map[string]any{
					"code": "platform:status:ObjectNotFound", "message": err.Error(),
				}})
				continue
			}
			write(map[string]any{"id": frame.ID, "result": map[string]any{}})
		}
	}
}
