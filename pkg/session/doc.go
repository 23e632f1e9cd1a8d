// Package session implements the multiplexed duplex control channel of the
// driver: one websocket connection, bound either to the browser root or to a
// single target, over which many concurrent request/response exchanges and
// asynchronous event notifications are carried.
//
// # Correlation
//
// Each Session owns a monotonically increasing request id counter starting
// at 1. Send allocates the next id, writes the request and parks the caller
// in a pending table keyed by that id. Responses may arrive in any order;
// they resolve their caller solely by id. Frames that carry a method and no
// matching pending id are events and are dispatched to registered handlers.
//
// # Dispatch
//
// A read loop decodes incoming frames and hands events to a dedicated
// dispatch goroutine through an unbounded FIFO. Handlers for one event kind
// run in registration order, but never on the read loop itself, so a handler
// is free to call Send without starving the frame stream it depends on.
//
// # Lifetime
//
// Sessions dial lazily: constructing one is cheap and performs no I/O until
// Connect or the first Send. A Session ends exactly once, at Close: every
// still-pending request fails with a TransportError wrapping ErrClosed, and
// later sends or registrations are refused.
package session
