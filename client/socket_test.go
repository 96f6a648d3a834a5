package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pkt.systems/hulybridge/api"
	"pkt.systems/hulybridge/internal/platformtest"
)

func newTestSocket(t *testing.T, srv *platformtest.Server, opts SocketOptions) *TxSocket {
	t.Helper()
	sock := NewTxSocket(srv.Endpoint(), srv.Token(), opts)
	t.Cleanup(func() { _ = sock.Disconnect() })
	return sock
}

func socketTx(id string) api.Tx {
	return api.NewCreateDoc(api.TxMeta{
		TxTarget: api.TxTarget{
			ObjectID:    api.Ref(id),
			ObjectClass: api.ClassDocument,
			ObjectSpace: "ts-1",
		},
		ModifiedBy: "acc-1",
	}, api.Attributes{"title": api.String(id)})
}

func socketContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func (s *TxSocket) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func TestSocketURL(t *testing.T) {
	cases := map[string]string{
		"http://host:8080":       "ws://host:8080",
		"https://host/ws":        "wss://host/ws",
		"wss://host":             "wss://host",
		"HTTP://host.example.io": "ws://host.example.io",
	}
	for in, prefix := range cases {
		got, err := socketURL(in)
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		u, err := url.Parse(got)
		if err != nil {
			t.Fatalf("parse %s: %v", got, err)
		}
		if !strings.HasPrefix(got, prefix) {
			t.Fatalf("%s: got %s, want prefix %s", in, got, prefix)
		}
		if u.Query().Get("sessionId") == "" {
			t.Fatalf("%s: no session id in %s", in, got)
		}
	}
	if _, err := socketURL("ftp://host"); !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL, got %v", err)
	}
}

func TestTxSocketHandshake(t *testing.T) {
	srv := platformtest.Start(t)
	sock := newTestSocket(t, srv, SocketOptions{})
	if sock.State() != SocketDisconnected {
		t.Fatalf("initial state %s", sock.State())
	}
	if err := sock.Connect(socketContext(t)); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !sock.Connected() || sock.State() != SocketReady {
		t.Fatalf("state after connect %s", sock.State())
	}
	if err := sock.Connect(socketContext(t)); err != nil {
		t.Fatalf("second connect: %v", err)
	}
	if srv.Count(platformtest.RouteSocketHello) != 1 {
		t.Fatalf("hello sent %d times", srv.Count(platformtest.RouteSocketHello))
	}
}

func TestTxSocketLateHelloNeverReady(t *testing.T) {
	srv := platformtest.Start(t, platformtest.WithHelloDelay(300*time.Millisecond))
	sock := newTestSocket(t, srv, SocketOptions{HelloTimeout: 50 * time.Millisecond})

	err := sock.Connect(socketContext(t))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if sock.State() != SocketDisconnected {
		t.Fatalf("state after timeout %s", sock.State())
	}
	time.Sleep(400 * time.Millisecond)
	if sock.Connected() {
		t.Fatalf("late hello marked the socket ready")
	}
}

func TestTxSocketDialFailure(t *testing.T) {
	srv := platformtest.Start(t, platformtest.WithSocketDisabled())
	sock := newTestSocket(t, srv, SocketOptions{})
	err := sock.Connect(socketContext(t))
	if !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("expected ErrConnectionClosed, got %v", err)
	}
	if sock.State() != SocketDisconnected {
		t.Fatalf("state %s", sock.State())
	}
}

func TestTxSocketClosedBeforeHandshake(t *testing.T) {
	srv := platformtest.Start(t, platformtest.WithSocketHandler(func(conn *websocket.Conn) {
		_, _, _ = conn.ReadMessage()
	}))
	sock := newTestSocket(t, srv, SocketOptions{HelloTimeout: 5 * time.Second})
	err := sock.Connect(socketContext(t))
	if !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("expected ErrConnectionClosed, got %v", err)
	}
}

func TestTxSocketSendRequiresReady(t *testing.T) {
	srv := platformtest.Start(t)
	sock := newTestSocket(t, srv, SocketOptions{})
	_, err := sock.SendTransaction(socketContext(t), socketTx("doc-1"))
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestTxSocketSendApplies(t *testing.T) {
	srv := platformtest.Start(t)
	sock := newTestSocket(t, srv, SocketOptions{})
	ctx := socketContext(t)
	if err := sock.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := sock.SendTransaction(ctx, socketTx("doc-1")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if srv.Doc(string(api.ClassDocument), "doc-1") == nil {
		t.Fatalf("transaction not applied")
	}
	if sock.pendingCount() != 0 {
		t.Fatalf("pending slots left: %d", sock.pendingCount())
	}
}

func TestTxSocketServerError(t *testing.T) {
	srv := platformtest.Start(t, platformtest.WithTxError("platform:status:Forbidden", "no write access"))
	sock := newTestSocket(t, srv, SocketOptions{})
	ctx := socketContext(t)
	if err := sock.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	_, err := sock.SendTransaction(ctx, socketTx("doc-1"))
	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("expected *ServerError, got %v", err)
	}
	if serverErr.Code != "platform:status:Forbidden" || serverErr.Message != "no write access" {
		t.Fatalf("server error %+v", serverErr)
	}
	if !errors.Is(err, ErrServer) || ErrorCode(err) != CodeServerError {
		t.Fatalf("server error does not map to ErrServer")
	}
	if !sock.Connected() {
		t.Fatalf("server error must not close the socket")
	}
}

type testFrame struct {
	Method string           `json:"method"`
	ID     int64            `json:"id"`
	Params []map[string]any `json:"params"`
}

// outOfOrderHandler answers hello, then waits for two transactions and
// answers the second before the first. Each result echoes the object id.
func outOfOrderHandler(conn *websocket.Conn) {
	var held []testFrame
	for {
		var frame testFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		if frame.Method == "hello" {
			_ = conn.WriteJSON(map[string]any{"id": frame.ID, "result": "hello"})
			continue
		}
		held = append(held, frame)
		if len(held) < 2 {
			continue
		}
		for i := len(held) - 1; i >= 0; i-- {
			_ = conn.WriteJSON(map[string]any{
				"id":     held[i].ID,
				"result": map[string]any{"objectId": held[i].Params[0]["objectId"]},
			})
		}
		held = nil
	}
}

func TestTxSocketOutOfOrderResponses(t *testing.T) {
	srv := platformtest.Start(t, platformtest.WithSocketHandler(outOfOrderHandler))
	sock := newTestSocket(t, srv, SocketOptions{})
	ctx := socketContext(t)
	if err := sock.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	ids := []string{"doc-n", "doc-n-plus-1"}
	results := make([]string, len(ids))
	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			raw, err := sock.SendTransaction(ctx, socketTx(id))
			if err != nil {
				errs[i] = err
				return
			}
			var res struct {
				ObjectID string `json:"objectId"`
			}
			errs[i] = json.Unmarshal(raw, &res)
			results[i] = res.ObjectID
		}()
	}
	wg.Wait()
	for i, id := range ids {
		if errs[i] != nil {
			t.Fatalf("send %s: %v", id, errs[i])
		}
		if results[i] != id {
			t.Fatalf("caller for %s received result for %s", id, results[i])
		}
	}
}

func TestTxSocketTimeoutDropsLateResponse(t *testing.T) {
	srv := platformtest.Start(t, platformtest.WithoutTxReply())
	sock := newTestSocket(t, srv, SocketOptions{TxTimeout: 100 * time.Millisecond})
	ctx := socketContext(t)
	if err := sock.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	_, err := sock.SendTransaction(ctx, socketTx("doc-1"))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if sock.pendingCount() != 0 {
		t.Fatalf("timed out slot not removed")
	}
	// A response for the abandoned id is dropped without effect.
	sock.dispatch([]byte(`{"id":1,"result":{}}`))
	if !sock.Connected() {
		t.Fatalf("socket closed by a late response")
	}
}

func TestTxSocketDisconnectFailsPending(t *testing.T) {
	srv := platformtest.Start(t, platformtest.WithoutTxReply())
	sock := newTestSocket(t, srv, SocketOptions{})
	ctx := socketContext(t)
	if err := sock.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	errCh := make(chan error, 1)
	go func() {
		_, err := sock.SendTransaction(ctx, socketTx("doc-1"))
		errCh <- err
	}()
	deadline := time.Now().Add(5 * time.Second)
	for srv.Count(platformtest.RouteSocketTx) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("transaction never reached the server")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := sock.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	select {
	case err := <-errCh:
		if !errors.Is(err, ErrConnectionClosed) {
			t.Fatalf("expected ErrConnectionClosed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("pending send not failed by disconnect")
	}
	if sock.State() != SocketDisconnected || sock.pendingCount() != 0 {
		t.Fatalf("state %s pending %d", sock.State(), sock.pendingCount())
	}
	if err := sock.Disconnect(); err != nil {
		t.Fatalf("second disconnect: %v", err)
	}
}

func TestTxSocketConnectionLossFailsPending(t *testing.T) {
	srv := platformtest.Start(t, platformtest.WithoutTxReply())
	sock := newTestSocket(t, srv, SocketOptions{})
	ctx := socketContext(t)
	if err := sock.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	errCh := make(chan error, 1)
	go func() {
		_, err := sock.SendTransaction(ctx, socketTx("doc-1"))
		errCh <- err
	}()
	deadline := time.Now().Add(5 * time.Second)
	for srv.Count(platformtest.RouteSocketTx) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("transaction never reached the server")
		}
		time.Sleep(5 * time.Millisecond)
	}
	srv.DropSockets()
	select {
	case err := <-errCh:
		if !errors.Is(err, ErrConnectionClosed) {
			t.Fatalf("expected ErrConnectionClosed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("pending send not failed by connection loss")
	}
	if sock.Connected() {
		t.Fatalf("socket still reports connected")
	}
}

func TestTxSocketDropsUnknownFrames(t *testing.T) {
	srv := platformtest.Start(t)
	sock := newTestSocket(t, srv, SocketOptions{})
	ctx := socketContext(t)
	if err := sock.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	for _, frame := range []string{`not json`, `{"result":{}}`, `{"id":99,"result":{}}`, `{"id":"abc"}`} {
		sock.dispatch([]byte(frame))
	}
	if _, err := sock.SendTransaction(ctx, socketTx("doc-1")); err != nil {
		t.Fatalf("send after junk frames: %v", err)
	}
}

func TestSocketStateText(t *testing.T) {
	data, err := json.Marshal(map[string]SocketState{"s": SocketAwaitingHandshake})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"s":"awaiting_handshake"}` {
		t.Fatalf("got %s", data)
	}
}
