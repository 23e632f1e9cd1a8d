package cdp

import (
	"encoding/json"
	"fmt"
)

// Message is the JSON envelope carried on the debugging websocket.
//
// Requests set ID and Method (and optionally Params). Responses set ID plus
// exactly one of Result or Error. Events set Method and Params with no ID.
type Message struct {
	// ID correlates a response to its request. Zero means "absent": events
	// never carry an id, and request ids start at 1.
	ID uint64 `json:"id,omitempty"`

	// Method is the namespaced command or event name, e.g. "Target.getTargets".
	Method string `json:"method,omitempty"`

	// Params holds the command or event payload, left undecoded so each
	// consumer can unmarshal into its own shape.
	Params json.RawMessage `json:"params,omitempty"`

	// Result is the successful response payload.
	Result json.RawMessage `json:"result,omitempty"`

	// Error is the remote-reported failure for the request with this ID.
	Error *Error `json:"error,omitempty"`
}

// Error is the remote error shape attached to a failed response.
type Error struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("cdp error %d: %s", e.Code, e.Message)
}

// Command is a protocol command ready to be sent on a session. Params may be
// nil for commands that take no arguments.
type Command struct {
	Method string
	Params any
}
