// Package client implements the browser-side half of the relay
// protocol: a websocket with acknowledged requests, the health probe,
// and the game view reducer that reconciles local optimistic state
// against server-pushed room snapshots.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"chesstrainer/pkg/wire"
)

var (
	// ErrServerUnavailable is the stable state surfaced once the relay
	// cannot be reached; callers must not retry-loop on it.
	ErrServerUnavailable = errors.New("server unavailable")
	// ErrAckTimeout means a request got no acknowledgment in time. The
	// action must be treated as failed; move/resign are not idempotent
	// and must not be blindly retried.
	ErrAckTimeout = errors.New("request timed out")
)

// EventFunc consumes a broadcast event payload.
type EventFunc func(payload json.RawMessage)

// Socket is one long-lived relay connection. Requests are correlated to
// acks by sequence number, each bounded by the ack timeout. There is no
// reconnect: a transport drop forfeits room membership and fails every
// pending request with ErrServerUnavailable.
type Socket struct {
	url        string
	ackTimeout time.Duration

	mu       sync.Mutex
	conn     *websocket.Conn
	seq      uint64
	pending  map[uint64]chan wire.Ack
	handlers map[string][]EventFunc
	onState  []func(connected bool)

	writeMu sync.Mutex
	cancel  context.CancelFunc
}

type SocketOption func(*Socket)

func WithAckTimeout(d time.Duration) SocketOption {
	return func(s *Socket) { s.ackTimeout = d }
}

// NewSocket prepares a socket for the given ws:// URL; Connect dials it.
func NewSocket(wsURL string, opts ...SocketOption) *Socket {
	s := &Socket{
		url:        wsURL,
		ackTimeout: 5 * time.Second,
		pending:    make(map[uint64]chan wire.Ack),
		handlers:   make(map[string][]EventFunc),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SocketURL derives the websocket endpoint from the relay base URL.
func SocketURL(serverURL, socketPath string) string {
	base := strings.TrimRight(serverURL, "/")
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + socketPath
}

// On registers a handler for a broadcast event. Register before Connect.
func (s *Socket) On(event string, fn EventFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = append(s.handlers[event], fn)
}

// OnState registers a connectivity callback.
func (s *Socket) OnState(fn func(connected bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onState = append(s.onState, fn)
}

// Connect dials the relay and starts the read loop.
func (s *Socket) Connect(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, s.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServerUnavailable, err)
	}

	readCtx, readCancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.conn = conn
	s.cancel = readCancel
	s.mu.Unlock()

	s.notifyState(true)
	go s.readLoop(readCtx, conn)
	return nil
}

// Connected reports transport-level connectivity.
func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Request sends an acknowledged event and waits for its ack. A failed
// ack is returned as an error carrying the server's message.
func (s *Socket) Request(ctx context.Context, event string, payload any) (wire.Ack, error) {
	s.mu.Lock()
	if s.conn == nil {
		s.mu.Unlock()
		return wire.Ack{}, ErrServerUnavailable
	}
	s.seq++
	seq := s.seq
	ch := make(chan wire.Ack, 1)
	s.pending[seq] = ch
	conn := s.conn
	s.mu.Unlock()

	if err := s.write(conn, requestEnvelope(event, seq, payload)); err != nil {
		s.forget(seq)
		return wire.Ack{}, fmt.Errorf("%w: %v", ErrServerUnavailable, err)
	}

	timer := time.NewTimer(s.ackTimeout)
	defer timer.Stop()
	select {
	case ack, ok := <-ch:
		if !ok {
			return wire.Ack{}, ErrServerUnavailable
		}
		if !ack.OK {
			return ack, errors.New(ack.Error)
		}
		return ack, nil
	case <-timer.C:
		s.forget(seq)
		return wire.Ack{}, ErrAckTimeout
	case <-ctx.Done():
		s.forget(seq)
		return wire.Ack{}, ctx.Err()
	}
}

// Emit sends a fire-and-forget event (no seq, no ack).
func (s *Socket) Emit(ctx context.Context, event string, payload any) error {
	_ = ctx
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrServerUnavailable
	}
	return s.write(conn, requestEnvelope(event, 0, payload))
}

// Close shuts the connection down cleanly.
func (s *Socket) Close() error {
	s.mu.Lock()
	conn := s.conn
	cancel := s.cancel
	s.conn = nil
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if conn == nil {
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, "")
}

func requestEnvelope(event string, seq uint64, payload any) wire.Envelope {
	raw, _ := json.Marshal(payload)
	return wire.Envelope{Type: event, Seq: seq, Payload: raw}
}

func (s *Socket) write(conn *websocket.Conn, v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), s.ackTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}

func (s *Socket) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			s.dropConn(conn)
			return
		}
		s.route(raw)
	}
}

func (s *Socket) route(raw json.RawMessage) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return
	}

	if head.Type == wire.TypeAck {
		var ack wire.Ack
		if err := json.Unmarshal(raw, &ack); err != nil {
			return
		}
		s.mu.Lock()
		ch, ok := s.pending[ack.Seq]
		delete(s.pending, ack.Seq)
		s.mu.Unlock()
		if ok {
			ch <- ack
		}
		return
	}

	var env wire.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}
	s.mu.Lock()
	fns := append([]EventFunc(nil), s.handlers[env.Type]...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(env.Payload)
	}
}

// dropConn tears local state down after a read failure: every pending
// request fails and the state callbacks see disconnected exactly once.
func (s *Socket) dropConn(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn != conn {
		// already closed or replaced
		for seq, ch := range s.pending {
			close(ch)
			delete(s.pending, seq)
		}
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.cancel = nil
	for seq, ch := range s.pending {
		close(ch)
		delete(s.pending, seq)
	}
	s.mu.Unlock()

	_ = conn.Close(websocket.StatusGoingAway, "")
	s.notifyState(false)
}

func (s *Socket) forget(seq uint64) {
	s.mu.Lock()
	delete(s.pending, seq)
	s.mu.Unlock()
}

func (s *Socket) notifyState(connected bool) {
	s.mu.Lock()
	fns := append(([]func(bool))(nil), s.onState...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(connected)
	}
}
