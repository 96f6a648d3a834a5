package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"pkt.systems/hulybridge/api"
	"pkt.systems/hulybridge/internal/ids"
	"pkt.systems/hulybridge/internal/version"
	"pkt.systems/pslog"
)

const (
	// DefaultHelloTimeout bounds the hello handshake.
	DefaultHelloTimeout = 10 * time.Second
	// DefaultTxTimeout bounds a transaction round trip.
	DefaultTxTimeout = 30 * time.Second

	socketWriteTimeout = 10 * time.Second
)

// SocketState is the lifecycle state of a TxSocket.
type SocketState int32

// Socket states. A socket moves Disconnected, Connecting, AwaitingHandshake,
// Ready and back to Disconnected; it never skips the handshake.
const (
	SocketDisconnected SocketState = iota
	SocketConnecting
	SocketAwaitingHandshake
	SocketReady
)

func (s SocketState) String() string {
	switch s {
	case SocketDisconnected:
		return "disconnected"
	case SocketConnecting:
		return "connecting"
	case SocketAwaitingHandshake:
		return "awaiting_handshake"
	case SocketReady:
		return "ready"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// MarshalText renders the state name.
func (s SocketState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SocketOptions tune a TxSocket.
type SocketOptions struct {
	// HelloTimeout bounds the handshake. Defaults to DefaultHelloTimeout.
	HelloTimeout time.Duration
	// TxTimeout bounds each transaction round trip. Defaults to DefaultTxTimeout.
	TxTimeout time.Duration
	// Dialer opens the websocket. Defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
	// Logger receives socket diagnostics.
	Logger pslog.Base
	// MeterProvider records socket metrics. Defaults to the global provider.
	MeterProvider metric.MeterProvider
}

type socketResult struct {
	result json.RawMessage
	err    error
}

// TxSocket is the persistent transaction socket. Requests are correlated
// with responses by id, so any number of transactions may be in flight.
type TxSocket struct {
	endpoint string
	token    string
	opts     SocketOptions
	logger   pslog.Base

	txCount    metric.Int64Counter
	txDuration metric.Float64Histogram

	// mu guards state, conn, pending, nextID and loopDone.
	mu       sync.Mutex
	state    SocketState
	conn     *websocket.Conn
	pending  map[int64]chan socketResult
	nextID   int64
	loopDone chan struct{}

	writeMu sync.Mutex
}

// NewTxSocket prepares a socket for the workspace endpoint authorized by
// token. Connect opens it.
func NewTxSocket(endpoint, token string, opts SocketOptions) *TxSocket {
	if opts.HelloTimeout <= 0 {
		opts.HelloTimeout = DefaultHelloTimeout
	}
	if opts.TxTimeout <= 0 {
		opts.TxTimeout = DefaultTxTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = pslog.NoopLogger()
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = otel.GetMeterProvider()
	}
	s := &TxSocket{
		endpoint: endpoint,
		token:    token,
		opts:     opts,
		logger:   opts.Logger,
		pending:  make(map[int64]chan socketResult),
	}
	meter := opts.MeterProvider.Meter(meterName)
	var err error
	if s.txCount, err = meter.Int64Counter("hulybridge.socket.tx",
		metric.WithDescription("Socket transactions by outcome")); err != nil {
		otel.Handle(err)
	}
	if s.txDuration, err = meter.Float64Histogram("hulybridge.socket.tx.duration",
		metric.WithDescription("Socket transaction round trip"),
		metric.WithUnit("s")); err != nil {
		otel.Handle(err)
	}
	return s
}

// State returns the current lifecycle state.
func (s *TxSocket) State() SocketState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected reports whether the handshake completed and the socket is open.
func (s *TxSocket) Connected() bool {
	return s.State() == SocketReady
}

// socketURL swaps http(s) for ws(s) and appends a fresh session id.
func socketURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: socket endpoint %q: %v", ErrInvalidURL, endpoint, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: socket endpoint %q has unsupported scheme", ErrInvalidURL, endpoint)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: socket endpoint %q has no host", ErrInvalidURL, endpoint)
	}
	q := u.Query()
	q.Set("sessionId", ids.NewSessionID())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect dials the socket, starts the receive loop and performs the hello
// handshake. It returns nil once the socket is Ready. A handshake that is
// not answered within HelloTimeout fails with ErrTimeout; a connection that
// closes first fails with ErrConnectionClosed.
func (s *TxSocket) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case SocketReady:
		s.mu.Unlock()
		return nil
	case SocketConnecting, SocketAwaitingHandshake:
		s.mu.Unlock()
		return fmt.Errorf("%w: connect already in progress", ErrNotConnected)
	}
	s.state = SocketConnecting
	s.mu.Unlock()

	target, err := socketURL(s.endpoint)
	if err != nil {
		s.setState(SocketDisconnected)
		return err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.token)
	header.Set("User-Agent", version.UserAgent())

	s.logger.Debug("client.socket.dial", "url", redactURL(target))
	conn, _, err := s.opts.Dialer.DialContext(ctx, target, header)
	if err != nil {
		s.setState(SocketDisconnected)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: dial %s: %v", ErrConnectionClosed, redactURL(target), err)
	}

	hello := make(chan socketResult, 1)
	done := make(chan struct{})
	s.mu.Lock()
	s.conn = conn
	s.state = SocketAwaitingHandshake
	s.pending[api.HelloRequestID] = hello
	s.loopDone = done
	s.mu.Unlock()

	go s.receiveLoop(conn, done)

	if err := s.writeFrame(conn, api.SocketRequest{Method: "hello", Params: []any{}, ID: api.HelloRequestID}); err != nil {
		s.teardown(conn)
		return fmt.Errorf("%w: send hello: %v", ErrConnectionClosed, err)
	}

	timer := time.NewTimer(s.opts.HelloTimeout)
	defer timer.Stop()
	select {
	case res := <-hello:
		if res.err != nil {
			s.teardown(conn)
			return res.err
		}
		s.mu.Lock()
		if s.conn != conn || s.state != SocketAwaitingHandshake {
			s.mu.Unlock()
			return fmt.Errorf("%w: closed during handshake", ErrConnectionClosed)
		}
		s.state = SocketReady
		s.mu.Unlock()
		s.logger.Info("client.socket.ready", "endpoint", s.endpoint)
		return nil
	case <-timer.C:
		s.teardown(conn)
		s.logger.Warn("client.socket.hello.timeout", "timeout", s.opts.HelloTimeout)
		return fmt.Errorf("%w: hello not answered within %s", ErrTimeout, s.opts.HelloTimeout)
	case <-ctx.Done():
		s.teardown(conn)
		return ctx.Err()
	}
}

// SendTransaction sends tx and waits for its response. The socket must be
// Ready. A response carrying an error object yields *ServerError.
func (s *TxSocket) SendTransaction(ctx context.Context, tx api.Tx) (json.RawMessage, error) {
	if tx == nil {
		return nil, invalidInput("transaction required")
	}
	start := time.Now()
	s.mu.Lock()
	if s.state != SocketReady || s.conn == nil {
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: socket is %s", ErrNotConnected, state)
	}
	s.nextID++
	id := s.nextID
	slot := make(chan socketResult, 1)
	s.pending[id] = slot
	conn := s.conn
	s.mu.Unlock()

	if err := s.writeFrame(conn, api.SocketRequest{Method: "tx", Params: []any{tx}, ID: id}); err != nil {
		s.removePending(id)
		s.teardown(conn)
		s.record(ctx, "write_error", start)
		return nil, fmt.Errorf("%w: send transaction %d: %v", ErrConnectionClosed, id, err)
	}
	s.logger.Trace("client.socket.tx.sent", "id", id, "tx_class", string(tx.TxClass()))

	timer := time.NewTimer(s.opts.TxTimeout)
	defer timer.Stop()
	select {
	case res := <-slot:
		return s.finish(ctx, id, res, start)
	case <-timer.C:
		if !s.removePending(id) {
			return s.finish(ctx, id, <-slot, start)
		}
		s.record(ctx, "timeout", start)
		s.logger.Warn("client.socket.tx.timeout", "id", id, "timeout", s.opts.TxTimeout)
		return nil, fmt.Errorf("%w: transaction %d not answered within %s", ErrTimeout, id, s.opts.TxTimeout)
	case <-ctx.Done():
		if !s.removePending(id) {
			return s.finish(ctx, id, <-slot, start)
		}
		s.record(ctx, "canceled", start)
		return nil, ctx.Err()
	}
}

func (s *TxSocket) finish(ctx context.Context, id int64, res socketResult, start time.Time) (json.RawMessage, error) {
	switch {
	case res.err == nil:
		s.record(ctx, "ok", start)
	case errors.Is(res.err, ErrServer):
		s.record(ctx, "server_error", start)
		s.logger.Debug("client.socket.tx.server_error", "id", id, "error", res.err)
	default:
		s.record(ctx, "closed", start)
	}
	return res.result, res.err
}

func (s *TxSocket) record(ctx context.Context, outcome string, start time.Time) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	if s.txCount != nil {
		s.txCount.Add(ctx, 1, attrs)
	}
	if s.txDuration != nil {
		s.txDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}

// removePending deletes the slot for id and reports whether it was still
// registered. False means the receive loop already completed it.
func (s *TxSocket) removePending(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[id]; !ok {
		return false
	}
	delete(s.pending, id)
	return true
}

func (s *TxSocket) writeFrame(conn *websocket.Conn, req api.SocketRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(socketWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (s *TxSocket) receiveLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if s.teardown(conn) {
				s.logger.Info("client.socket.closed", "error", err)
			}
			return
		}
		s.dispatch(data)
	}
}

// dispatch completes the pending slot matching the frame id. Frames with an
// unknown id, including responses that arrive after a timeout, are dropped.
func (s *TxSocket) dispatch(data []byte) {
	var resp api.SocketResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		s.logger.Debug("client.socket.frame.drop", "reason", "decode", "error", err, "bytes", len(data))
		return
	}
	if resp.ID == nil {
		s.logger.Trace("client.socket.frame.drop", "reason", "no_id")
		return
	}
	id := *resp.ID
	s.mu.Lock()
	slot, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	if !ok {
		s.logger.Debug("client.socket.frame.drop", "reason", "unmatched", "id", id)
		return
	}
	if resp.Error != nil {
		slot <- socketResult{err: &ServerError{Code: resp.Error.Code, Message: resp.Error.Message}}
		return
	}
	slot <- socketResult{result: resp.Result}
}

// teardown closes conn if it is still current and fails every pending slot
// with ErrConnectionClosed. It reports whether it did anything.
func (s *TxSocket) teardown(conn *websocket.Conn) bool {
	s.mu.Lock()
	if s.conn != conn || conn == nil {
		s.mu.Unlock()
		return false
	}
	pending := s.pending
	s.pending = make(map[int64]chan socketResult)
	s.conn = nil
	s.state = SocketDisconnected
	s.mu.Unlock()

	_ = conn.Close()
	for id, slot := range pending {
		slot <- socketResult{err: fmt.Errorf("%w: request %d abandoned", ErrConnectionClosed, id)}
	}
	return true
}

func (s *TxSocket) setState(state SocketState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Disconnect closes the socket, stops the receive loop and fails every
// pending transaction with ErrConnectionClosed. It is safe to call repeatedly.
func (s *TxSocket) Disconnect() error {
	s.mu.Lock()
	conn := s.conn
	done := s.loopDone
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	if s.teardown(conn) {
		s.logger.Debug("client.socket.disconnect", "endpoint", s.endpoint)
	}
	if done != nil {
		<-done
	}
	return nil
}
