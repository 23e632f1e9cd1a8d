package session

import (
	"errors"
	"fmt"
)

// ErrClosed reports that the session has ended. It is wrapped by the
// TransportError handed to every caller left pending at Close, and by the
// error returned from Send on an already-closed session.
var ErrClosed = errors.New("session closed")

// ProtocolError is a remote-reported error attached to the response of one
// specific command. It is scoped to the Send call that issued the command
// and says nothing about the health of the session.
type ProtocolError struct {
	Method  string
	Code    int64
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: protocol error %d: %s", e.Method, e.Code, e.Message)
}

// TransportError is a failure of the underlying connection: a write or read
// error, an unexpected close, or use of a session after Close. It fails the
// affected calls on this session only; sibling sessions are untouched.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("session %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
