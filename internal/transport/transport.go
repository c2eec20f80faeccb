// Package transport provides the abstract asynchronous, per-pair-ordered
// message channel spec.md §5/§6 requires of the "XMPP-style transport ...
// only its abstract guarantees are consumed" collaborator. Local routes
// messages within one actor.System; WS adapts the teacher's
// gorilla/websocket hub (internal/ws/hub.go, handler.go in the teacher
// tree) to carry wire-framed actor messages between nodes.
package transport

import "cossmic/internal/actor"

// Transport delivers a wire-encoded message body to a named destination
// actor, asynchronously and in send order per (source, destination)
// pair. Actors never depend on which Transport implementation is behind
// the Ref they were given.
type Transport interface {
	// Send delivers body (already wire-encoded) as if sent by "from" to
	// the actor at address "to". Unknown destinations are a silent
	// no-op, matching spec.md §7's tolerance for peer dropouts.
	Send(from, to, body string)
}

// Local implements Transport by routing directly through an
// actor.System's mailboxes — the in-process case used by cmd/node for
// single-node operation and by every package's tests.
type Local struct {
	system *actor.System
}

// NewLocal builds a Local transport over system.
func NewLocal(system *actor.System) *Local { return &Local{system: system} }

// Send resolves "to" in the actor system and enqueues body as a raw wire
// string; the destination actor is responsible for decoding it via the
// wire package.
func (l *Local) Send(from, to, body string) {
	ref, ok := l.system.Lookup(to)
	if !ok {
		return
	}
	ref.Send(from, body)
}
