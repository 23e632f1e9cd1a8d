package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raycardillo/zendriver/pkg/cdp"
)

// startEndpoint runs a fake DevTools endpoint. Each decoded client request
// is handed to handle together with a reply function that is safe to call
// from any goroutine.
func startEndpoint(t *testing.T, handle func(msg cdp.Message, reply func(cdp.Message))) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var writeMu sync.Mutex
		reply := func(m cdp.Message) {
			data, err := json.Marshal(m)
			if err != nil {
				t.Errorf("encoding reply: %v", err)
				return
			}
			writeMu.Lock()
			_ = conn.WriteMessage(websocket.TextMessage, data)
			writeMu.Unlock()
		}

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg cdp.Message
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			handle(msg, reply)
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func rawResult(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestSendResolvesOutOfOrderResponses(t *testing.T) {
	const n = 8

	var (
		mu       sync.Mutex
		received []cdp.Message
	)
	url := startEndpoint(t, func(msg cdp.Message, reply func(cdp.Message)) {
		mu.Lock()
		received = append(received, msg)
		if len(received) < n {
			mu.Unlock()
			return
		}
		batch := append([]cdp.Message(nil), received...)
		mu.Unlock()

		// Answer the whole batch in reverse arrival order; correlation must
		// still pair every caller with its own result.
		for i := len(batch) - 1; i >= 0; i-- {
			var params struct {
				Seq int `json:"seq"`
			}
			_ = json.Unmarshal(batch[i].Params, &params)
			reply(cdp.Message{
				ID:     batch[i].ID,
				Result: rawResult(t, map[string]int{"seq": params.Seq}),
			})
		}
	})

	s := New(url, nil)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(seq int) {
			defer wg.Done()
			raw, err := s.Send(ctx, cdp.Command{
				Method: "Test.echo",
				Params: map[string]int{"seq": seq},
			})
			if !assert.NoError(t, err) {
				return
			}
			var res struct {
				Seq int `json:"seq"`
			}
			if assert.NoError(t, json.Unmarshal(raw, &res)) {
				assert.Equal(t, seq, res.Seq, "response matched to wrong caller")
			}
		}(i)
	}
	wg.Wait()
}

func TestRequestIDsStartAtOneAndIncrease(t *testing.T) {
	var (
		mu  sync.Mutex
		ids []uint64
	)
	url := startEndpoint(t, func(msg cdp.Message, reply func(cdp.Message)) {
		mu.Lock()
		ids = append(ids, msg.ID)
		mu.Unlock()
		reply(cdp.Message{ID: msg.ID, Result: rawResult(t, map[string]any{})})
	})

	s := New(url, nil)
	defer s.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := s.Send(ctx, cdp.Command{Method: "Test.noop"})
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{1, 2, 3}, ids)
}

func TestEventHandlersRunInRegistrationOrder(t *testing.T) {
	url := startEndpoint(t, func(msg cdp.Message, reply func(cdp.Message)) {
		// Emit one event of an unregistered kind, then two of the
		// registered kind, then answer.
		reply(cdp.Message{Method: "Test.unheard", Params: rawResult(t, map[string]any{})})
		reply(cdp.Message{Method: "Test.tick", Params: rawResult(t, map[string]int{"n": 1})})
		reply(cdp.Message{Method: "Test.tick", Params: rawResult(t, map[string]int{"n": 2})})
		reply(cdp.Message{ID: msg.ID, Result: rawResult(t, map[string]any{})})
	})

	s := New(url, nil)
	defer s.Close()

	var (
		mu    sync.Mutex
		calls []string
	)
	done := make(chan struct{})
	s.On("Test.tick", func(ev Event) {
		mu.Lock()
		calls = append(calls, "first")
		mu.Unlock()
	})
	s.On("Test.tick", func(ev Event) {
		mu.Lock()
		calls = append(calls, "second")
		if len(calls) == 4 {
			close(done)
		}
		mu.Unlock()
	})

	_, err := s.Send(context.Background(), cdp.Command{Method: "Test.kick"})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("event handlers never completed")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second", "first", "second"}, calls)
}

func TestSubscriptionCancelStopsDelivery(t *testing.T) {
	url := startEndpoint(t, func(msg cdp.Message, reply func(cdp.Message)) {
		reply(cdp.Message{Method: "Test.muted", Params: rawResult(t, map[string]any{})})
		reply(cdp.Message{Method: "Test.sentinel", Params: rawResult(t, map[string]any{})})
		reply(cdp.Message{ID: msg.ID, Result: rawResult(t, map[string]any{})})
	})

	s := New(url, nil)
	defer s.Close()

	var mutedCalls int32
	sub := s.On("Test.muted", func(ev Event) {
		mutedCalls++
	})

	sentinel := make(chan struct{})
	s.On("Test.sentinel", func(ev Event) {
		close(sentinel)
	})

	sub.Cancel()
	sub.Cancel() // second cancel is a no-op

	_, err := s.Send(context.Background(), cdp.Command{Method: "Test.kick"})
	require.NoError(t, err)

	select {
	case <-sentinel:
	case <-time.After(5 * time.Second):
		t.Fatal("sentinel event never arrived")
	}
	assert.Zero(t, mutedCalls, "cancelled handler still fired")
}

func TestHandlerMaySendWithoutDeadlock(t *testing.T) {
	url := startEndpoint(t, func(msg cdp.Message, reply func(cdp.Message)) {
		switch msg.Method {
		case "Test.kick":
			reply(cdp.Message{Method: "Test.ping", Params: rawResult(t, map[string]any{})})
			reply(cdp.Message{ID: msg.ID, Result: rawResult(t, map[string]any{})})
		case "Test.pong":
			reply(cdp.Message{ID: msg.ID, Result: rawResult(t, map[string]any{})})
		}
	})

	s := New(url, nil)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// The handler issues a request of its own; resolving it needs the read
	// loop the handler was dispatched from.
	pongDone := make(chan error, 1)
	s.On("Test.ping", func(ev Event) {
		_, err := s.Send(ctx, cdp.Command{Method: "Test.pong"})
		pongDone <- err
	})

	_, err := s.Send(ctx, cdp.Command{Method: "Test.kick"})
	require.NoError(t, err)

	select {
	case err := <-pongDone:
		assert.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("handler-issued send deadlocked")
	}
}

func TestProtocolErrorIsScopedToItsCall(t *testing.T) {
	url := startEndpoint(t, func(msg cdp.Message, reply func(cdp.Message)) {
		switch msg.Method {
		case "Test.fail":
			reply(cdp.Message{ID: msg.ID, Error: &cdp.Error{Code: -32000, Message: "boom"}})
		default:
			reply(cdp.Message{ID: msg.ID, Result: rawResult(t, map[string]any{})})
		}
	})

	s := New(url, nil)
	defer s.Close()
	ctx := context.Background()

	_, err := s.Send(ctx, cdp.Command{Method: "Test.fail"})
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, int64(-32000), protoErr.Code)
	assert.Equal(t, "boom", protoErr.Message)
	assert.Equal(t, "Test.fail", protoErr.Method)

	// The session is still healthy.
	_, err = s.Send(ctx, cdp.Command{Method: "Test.ok"})
	assert.NoError(t, err)
}

func TestCloseFailsAllPendingCalls(t *testing.T) {
	const k = 3

	arrived := make(chan struct{}, k)
	url := startEndpoint(t, func(msg cdp.Message, reply func(cdp.Message)) {
		// Swallow every request; the callers stay pending until Close.
		arrived <- struct{}{}
	})

	s := New(url, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errs := make(chan error, k)
	for i := 0; i < k; i++ {
		go func() {
			_, err := s.Send(ctx, cdp.Command{Method: "Test.hang"})
			errs <- err
		}()
	}
	for i := 0; i < k; i++ {
		select {
		case <-arrived:
		case <-ctx.Done():
			t.Fatal("requests never reached the endpoint")
		}
	}

	require.NoError(t, s.Close())

	for i := 0; i < k; i++ {
		select {
		case err := <-errs:
			var transportErr *TransportError
			require.ErrorAs(t, err, &transportErr)
			assert.ErrorIs(t, err, ErrClosed)
		case <-ctx.Done():
			t.Fatal("pending call hung after Close")
		}
	}

	// Second close is a no-op.
	assert.NoError(t, s.Close())
	assert.True(t, s.Closed())
}

func TestSendOnClosedSessionFailsImmediately(t *testing.T) {
	s := New("ws://127.0.0.1:1/devtools/browser/none", nil)
	require.NoError(t, s.Close())

	_, err := s.Send(context.Background(), cdp.Command{Method: "Test.noop"})
	assert.ErrorIs(t, err, ErrClosed)

	sub := s.On("Test.any", func(ev Event) {})
	sub.Cancel()
}

func TestNewDoesNotDial(t *testing.T) {
	// The address is unreachable; constructing the session must not touch it.
	s := New("ws://127.0.0.1:1/devtools/browser/none", nil)
	assert.False(t, s.Closed())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.Connect(ctx)
	var transportErr *TransportError
	assert.ErrorAs(t, err, &transportErr)
}

func TestMalformedFramesAreDropped(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg cdp.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		// Undecodable garbage and an empty envelope first; both must be
		// dropped without killing the loop. Then the real response.
		_ = conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
		_ = conn.WriteMessage(websocket.TextMessage, []byte("{}"))
		response, _ := json.Marshal(cdp.Message{ID: msg.ID, Result: json.RawMessage(`{"ok":"yes"}`)})
		_ = conn.WriteMessage(websocket.TextMessage, response)
		_, _, _ = conn.ReadMessage() // hold the connection open until the client is done
	}))
	defer srv.Close()

	s := New("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	defer s.Close()

	raw, err := s.Send(context.Background(), cdp.Command{Method: "Test.noop"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":"yes"}`, string(raw))
}

func TestAbandonedCallLeavesSessionUsable(t *testing.T) {
	release := make(chan struct{})
	url := startEndpoint(t, func(msg cdp.Message, reply func(cdp.Message)) {
		switch msg.Method {
		case "Test.slow":
			go func() {
				<-release
				reply(cdp.Message{ID: msg.ID, Result: rawResult(t, map[string]any{})})
			}()
		default:
			reply(cdp.Message{ID: msg.ID, Result: rawResult(t, map[string]any{})})
		}
	})

	s := New(url, nil)
	defer s.Close()

	shortCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.Send(shortCtx, cdp.Command{Method: "Test.slow"})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The late response is discarded; the session keeps working.
	close(release)
	_, err = s.Send(context.Background(), cdp.Command{Method: "Test.noop"})
	assert.NoError(t, err)
}

func TestConnectionLossClosesSession(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Drop the connection as soon as the first request arrives.
		_, _, _ = conn.ReadMessage()
		conn.Close()
	}))
	defer srv.Close()

	s := New("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.Send(ctx, cdp.Command{Method: "Test.noop"})
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)

	require.Eventually(t, s.Closed, 2*time.Second, 10*time.Millisecond,
		"session should close itself after connection loss")
}

func TestPollHasSendSemantics(t *testing.T) {
	url := startEndpoint(t, func(msg cdp.Message, reply func(cdp.Message)) {
		assert.Equal(t, "Target.getTargets", msg.Method)
		reply(cdp.Message{ID: msg.ID, Result: rawResult(t, map[string]any{"targetInfos": []any{}})})
	})

	s := New(url, nil)
	defer s.Close()

	raw, err := s.Poll(context.Background(), cdp.GetTargets())
	require.NoError(t, err)

	var res cdp.GetTargetsResult
	require.NoError(t, json.Unmarshal(raw, &res))
	assert.Empty(t, res.TargetInfos)
}

func TestErrorStrings(t *testing.T) {
	protoErr := &ProtocolError{Method: "Page.navigate", Code: -32000, Message: "no frame"}
	assert.Equal(t, "Page.navigate: protocol error -32000: no frame", protoErr.Error())

	transportErr := &TransportError{Op: "send Page.navigate", Err: ErrClosed}
	assert.Equal(t, fmt.Sprintf("session send Page.navigate: %v", ErrClosed), transportErr.Error())
	assert.ErrorIs(t, transportErr, ErrClosed)
}
