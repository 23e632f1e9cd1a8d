package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/raycardillo/zendriver/pkg/cdp"
	"github.com/raycardillo/zendriver/pkg/logging"
)

// Event is an unsolicited notification decoded from the frame stream.
type Event struct {
	Method string
	Params json.RawMessage
}

// Handler consumes one event. Handlers run on the session's dispatch
// goroutine, never on the read loop, so they may call Send.
type Handler func(ev Event)

// Subscription is the disposable token returned by On. Cancel removes the
// handler by identity; cancelling twice is a no-op.
type Subscription struct {
	s      *Session
	method string
	fn     Handler
}

// Cancel unregisters the subscription's handler.
func (sub *Subscription) Cancel() {
	if sub == nil || sub.s == nil {
		return
	}
	s := sub.s
	s.mu.Lock()
	subs := s.handlers[sub.method]
	for i, candidate := range subs {
		if candidate == sub {
			s.handlers[sub.method] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	sub.s = nil
}

type result struct {
	data json.RawMessage
	err  error
}

type pendingCall struct {
	method string
	ch     chan result
}

// Session is one multiplexed duplex control channel, bound either to the
// browser root or to a single target's debugging address.
type Session struct {
	url    string
	logger *logging.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	nextID   uint64
	pending  map[uint64]*pendingCall
	handlers map[string][]*Subscription
	closed   bool

	// The websocket supports one concurrent writer only.
	writeMu sync.Mutex

	dispatch *dispatcher
}

// New creates a session bound to the given ws:// control address. No I/O
// happens until Connect or the first Send. A nil logger discards output.
func New(url string, logger *logging.Logger) *Session {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Session{
		url:      url,
		logger:   logger,
		pending:  make(map[uint64]*pendingCall),
		handlers: make(map[string][]*Subscription),
	}
}

// URL returns the control address this session is bound to.
func (s *Session) URL() string {
	return s.url
}

// Connect dials the control address and starts the read and dispatch loops.
// Connecting an already-connected session is a no-op.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked(ctx)
}

func (s *Session) connectLocked(ctx context.Context) error {
	if s.closed {
		return &TransportError{Op: "connect", Err: ErrClosed}
	}
	if s.conn != nil {
		return nil
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil) //nolint:bodyclose
	if err != nil {
		return &TransportError{Op: "dial " + s.url, Err: err}
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	s.logger.Debugf("session: connected to %s", s.url)
	s.conn = conn
	s.dispatch = newDispatcher(s)
	go s.dispatch.run()
	go s.readLoop(conn)
	return nil
}

// Send issues a command and suspends the caller until the matching response
// arrives, the context expires, or the session closes. On a remote-reported
// failure the returned error is a *ProtocolError; connection-level failures
// are *TransportError and affect this call (write errors) or the whole
// session (read errors, close).
//
// Any number of Send calls may be outstanding concurrently; responses
// resolve by id regardless of arrival order.
//
// If ctx expires first, the pending slot is simply abandoned: the response,
// if it ever arrives, is discarded, and session close fails it as usual.
func (s *Session) Send(ctx context.Context, cmd cdp.Command) (json.RawMessage, error) {
	s.mu.Lock()
	if err := s.connectLocked(ctx); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.nextID++
	id := s.nextID
	call := &pendingCall{method: cmd.Method, ch: make(chan result, 1)}
	s.pending[id] = call
	conn := s.conn
	s.mu.Unlock()

	msg := cdp.Message{ID: id, Method: cmd.Method}
	if cmd.Params != nil {
		raw, err := json.Marshal(cmd.Params)
		if err != nil {
			s.forget(id)
			return nil, fmt.Errorf("encoding %s params: %w", cmd.Method, err)
		}
		msg.Params = raw
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.forget(id)
		return nil, fmt.Errorf("encoding %s request: %w", cmd.Method, err)
	}

	s.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	s.writeMu.Unlock()
	if err != nil {
		s.forget(id)
		return nil, &TransportError{Op: "write " + cmd.Method, Err: err}
	}
	s.logger.Debugf("session: sent #%d %s", id, cmd.Method)

	select {
	case r := <-call.ch:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Poll is a read-only-intent variant of Send for idempotent polling
// commands such as target enumeration. Wire behavior is identical to Send;
// the separate name only documents that the caller expects no server-side
// mutation.
func (s *Session) Poll(ctx context.Context, cmd cdp.Command) (json.RawMessage, error) {
	return s.Send(ctx, cmd)
}

// On registers a handler for the given event method. Handlers for one
// method run in registration order. Registering on a closed session returns
// an inert subscription whose handler never fires.
func (s *Session) On(method string, fn Handler) *Subscription {
	sub := &Subscription{s: s, method: method, fn: fn}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.logger.Warnf("session: On(%s) after close; handler will never fire", method)
		sub.s = nil
		return sub
	}
	s.handlers[method] = append(s.handlers[method], sub)
	return sub
}

// Closed reports whether the session has ended.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close ends the session: the read loop stops, every still-pending request
// fails with a TransportError wrapping ErrClosed, and the underlying
// connection is released. Safe to call more than once and safe while
// requests are in flight.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	dispatch := s.dispatch
	pending := s.pending
	s.pending = make(map[uint64]*pendingCall)
	s.handlers = make(map[string][]*Subscription)
	s.mu.Unlock()

	for _, call := range pending {
		call.ch <- result{err: &TransportError{Op: "send " + call.method, Err: ErrClosed}}
	}
	if dispatch != nil {
		dispatch.stop()
	}
	if conn != nil {
		_ = conn.Close()
	}
	s.logger.Debugf("session: closed %s (%d pending failed)", s.url, len(pending))
	return nil
}

// forget drops a pending slot whose request never made it onto the wire.
func (s *Session) forget(id uint64) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// readLoop decodes incoming frames until the connection fails or the
// session closes. Malformed frames are logged and dropped; an unexpected
// connection failure is treated as Close.
func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				s.logger.Debugf("session: connection lost: %v", err)
				_ = s.Close()
			}
			return
		}

		var msg cdp.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warnf("session: dropping undecodable frame: %v", err)
			continue
		}

		switch {
		case msg.ID != 0:
			s.resolve(msg)
		case msg.Method != "":
			s.dispatch.enqueue(Event{Method: msg.Method, Params: msg.Params})
		default:
			s.logger.Warnf("session: dropping frame with neither id nor method")
		}
	}
}

// resolve delivers a response frame to the caller awaiting its id.
func (s *Session) resolve(msg cdp.Message) {
	s.mu.Lock()
	call, ok := s.pending[msg.ID]
	if ok {
		delete(s.pending, msg.ID)
	}
	s.mu.Unlock()
	if !ok {
		// Either an abandoned slot cleaned up at close, or a caller that
		// stopped waiting. The remote response is discarded.
		s.logger.Debugf("session: discarding response for unknown id %d", msg.ID)
		return
	}
	if msg.Error != nil {
		call.ch <- result{err: &ProtocolError{
			Method:  call.method,
			Code:    msg.Error.Code,
			Message: msg.Error.Message,
		}}
		return
	}
	call.ch <- result{data: msg.Result}
}

// dispatchEvent invokes, in registration order, every handler registered
// for the event's method. Unregistered kinds are dropped silently.
func (s *Session) dispatchEvent(ev Event) {
	s.mu.Lock()
	subs := append([]*Subscription(nil), s.handlers[ev.Method]...)
	s.mu.Unlock()
	for _, sub := range subs {
		sub.fn(ev)
	}
}
