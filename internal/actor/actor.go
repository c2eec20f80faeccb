// Package actor provides the mailbox runtime shared by every component in
// the scheduling core. It generalises the teacher's WebSocket hub
// pattern (internal/ws/hub.go: one buffered send channel per client,
// drained by one writePump goroutine) into a general-purpose primitive:
// every actor owns one mailbox, drained by exactly one goroutine, so
// handlers for a given actor never run concurrently and messages from a
// single sender to a single receiver are delivered in send order
// (spec.md §5).
package actor

import (
	"fmt"
	"sync"
)

// Message is anything an actor mailbox can carry. Sender is the address
// the sender supplied with it; messages from outside the actor system
// carry whatever name their sender gives (cmd/node uses "taskmanager").
type Message struct {
	Sender  string
	Payload any
}

// Handler processes one message. It must not block on anything other
// than the approved suspension points in spec.md §5 (a self-contained
// solver call, or a collector's own guarded wait).
type Handler func(msg Message)

// Ref is a lightweight, comparable handle to an actor's mailbox. It is
// the "opaque handle" spec.md §9 requires proxies to hold instead of a
// back-pointer to their owning producer.
type Ref struct {
	address string
	mailbox *Mailbox
}

// Address returns the actor's symbolic address.
func (r Ref) Address() string { return r.address }

// IsZero reports whether r is the zero Ref (no actor).
func (r Ref) IsZero() bool { return r.mailbox == nil }

// Send enqueues msg.Payload, tagging it with sender, for asynchronous
// delivery to the referenced actor. Send never blocks the caller longer
// than it takes to push onto a buffered channel.
func (r Ref) Send(sender string, payload any) {
	if r.mailbox == nil {
		panic("actor: Send on the zero Ref")
	}
	r.mailbox.enqueue(Message{Sender: sender, Payload: payload})
}

func (r Ref) String() string { return r.address }

// SetHandler swaps the handler of the actor r refers to. Only safe to
// call from within that actor's own dispatch goroutine (i.e. from
// inside a Handler invocation it owns) — the cancellation-by-state-
// change pattern spec.md §5 requires for Shutdown.
func (r Ref) SetHandler(h Handler) {
	if r.mailbox == nil {
		panic("actor: SetHandler on the zero Ref")
	}
	r.mailbox.SetHandler(h)
}

// Mailbox is one actor's private inbound queue plus its single dispatch
// goroutine. Construct one with System.Spawn.
type Mailbox struct {
	address string
	queue   chan Message
	handler Handler

	mu      sync.Mutex
	done    chan struct{}
	stopped bool
}

const defaultMailboxCapacity = 256

func newMailbox(address string, handler Handler) *Mailbox {
	m := &Mailbox{
		address: address,
		queue:   make(chan Message, defaultMailboxCapacity),
		handler: handler,
		done:    make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *Mailbox) run() {
	defer close(m.done)
	for msg := range m.queue {
		m.handler(msg)
	}
}

func (m *Mailbox) enqueue(msg Message) {
	m.mu.Lock()
	stopped := m.stopped
	m.mu.Unlock()
	if stopped {
		return
	}
	m.queue <- msg
}

// SetHandler atomically replaces the mailbox's handler. Because the
// mailbox is drained by exactly one goroutine, and SetHandler is only
// ever called from within that goroutine (i.e. from inside a Handler
// invocation), there is no window in which a message can be dispatched
// to a mix of the old and new handler — exactly the guarantee spec.md
// §5 requires for the "Shutdown swaps message handlers atomically"
// cancellation model.
func (m *Mailbox) SetHandler(h Handler) { m.handler = h }

// Stop closes the mailbox's queue after its currently buffered messages
// drain, and blocks until the dispatch goroutine exits.
func (m *Mailbox) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.mu.Unlock()
	close(m.queue)
	<-m.done
}

// System is the per-node actor registry: it assigns addresses to
// mailboxes and resolves addresses to refs, the in-process half of the
// Transport abstraction (internal/transport).
type System struct {
	mu       sync.RWMutex
	mailboxes map[string]*Mailbox
}

// NewSystem builds an empty actor system.
func NewSystem() *System {
	return &System{mailboxes: make(map[string]*Mailbox)}
}

// Spawn registers a new actor at address with the given handler and
// returns a Ref to it. Spawning at an already-occupied address panics:
// the actor-manager is responsible for ensuring addresses are unique
// before spawning (spec.md §4.1's live/deleted set checks).
func (s *System) Spawn(address string, handler Handler) Ref {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.mailboxes[address]; exists {
		panic(fmt.Sprintf("actor: address already registered: %s", address))
	}
	mb := newMailbox(address, handler)
	s.mailboxes[address] = mb
	return Ref{address: address, mailbox: mb}
}

// Lookup resolves an address to a Ref. The second return is false if no
// actor is registered at that address.
func (s *System) Lookup(address string) (Ref, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mb, ok := s.mailboxes[address]
	if !ok {
		return Ref{}, false
	}
	return Ref{address: address, mailbox: mb}, true
}

// Remove stops and unregisters the actor at address. It is a no-op if
// the address is not registered (removal handlers tolerate unknown
// addresses, per spec.md §7's network/peer dropout policy).
func (s *System) Remove(address string) {
	s.mu.Lock()
	mb, ok := s.mailboxes[address]
	if ok {
		delete(s.mailboxes, address)
	}
	s.mu.Unlock()
	if ok {
		mb.Stop()
	}
}

// Addresses returns every currently registered address whose prefix
// matches the supplied filter (e.g. "pv_producer" to discover producers
// during peer discovery). An empty filter returns every address.
func (s *System) Addresses(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.mailboxes))
	for addr := range s.mailboxes {
		if prefix == "" || hasPrefix(addr, prefix) {
			out = append(out, addr)
		}
	}
	return out
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
