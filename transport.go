package mcp

import (
	"context"
	"iter"
)

// TransportState is one of a Transport's three observable lifecycle states
// (spec.md §3). Transitions are one-way: Unopened -> Open -> Closed.
type TransportState int

const (
	// StateUnopened is the state right after construction. No runtime-bound
	// primitive (channel, goroutine, stream) exists yet.
	StateUnopened TransportState = iota
	// StateOpen means Open succeeded: the reader/writer goroutines are
	// running and Write/Messages are usable.
	StateOpen
	// StateClosed means Close has run. Close is idempotent; once Closed,
	// a transport never returns to Open.
	StateClosed
)

// ClientTransport is the duplex-byte-stream contract the core depends on
// (spec.md §4.2, §6). Any alternative transport — HTTP, SSE, a raw pipe —
// must satisfy it, including the deferred-open invariant: constructing an
// implementation must not allocate any channel, goroutine, or other
// runtime-bound primitive. Those are created inside Open, never before.
type ClientTransport interface {
	// Open spawns/connects the transport and starts its reader, writer, and
	// (where applicable) stderr-drain goroutines. It must be safe to call
	// Open from inside another concurrent scope on the same runtime — no
	// primitive may be allocated before this call.
	Open(ctx context.Context) error

	// Write sends a single frame. Writes are serialized in submission
	// order relative to other Write calls on the same transport.
	Write(ctx context.Context, msg Message) error

	// Messages returns an iterator over inbound frames. The iterator ends
	// when the transport is closed or the underlying stream hits EOF.
	Messages() iter.Seq[Message]

	// Notifications returns the bounded channel of server-initiated
	// messages without a response expected from the caller's perspective —
	// populated by the same framing path that feeds Messages, exposed
	// separately so C6 can apply its own backpressure policy.
	Notifications() <-chan Message

	// State reports the transport's current lifecycle state.
	State() TransportState

	// Close tears down the transport. Close is idempotent and safe to call
	// from any exit path, including before Open ever ran.
	Close(ctx context.Context) error
}

// RequestClientFunc lets a server-initiated request (spec.md §4.3's
// "Request (server→client)" case) be answered by whatever application code
// registered a handler. The core's default policy without a registered
// handler is MethodNotFound.
type RequestClientFunc func(ctx context.Context, msg Message) (Message, error)
