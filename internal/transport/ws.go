package transport

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// frame is the one-message-per-frame envelope carried over the
// WebSocket connection between two nodes: From/To are actor addresses,
// Body is the already wire-encoded plain-text payload (spec.md §6).
// This plays the same role the teacher's ws.Envelope plays for
// browser push (internal/ws/messages.go), generalised from a UI event
// notification to an inter-node actor delivery.
type frame struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
}

// peer is one outbound connection to a remote node, modelled directly
// on the teacher's ws.Client: a private send channel drained by one
// writer goroutine, so a slow or dead peer never blocks the sender.
type peer struct {
	conn *websocket.Conn
	send chan frame
}

func newPeer(conn *websocket.Conn) *peer {
	p := &peer{conn: conn, send: make(chan frame, 256)}
	go p.writePump()
	return p
}

func (p *peer) writePump() {
	defer p.conn.Close()
	for f := range p.send {
		if err := p.conn.WriteJSON(f); err != nil {
			return
		}
	}
}

// WS is a Transport backed by gorilla/websocket connections to peer
// nodes, directly adapting the teacher's internal/ws.Hub (a
// mutex-guarded set of client connections broadcasting browser events)
// into a per-destination-node router for actor-to-actor delivery.
type WS struct {
	mu    sync.RWMutex
	peers map[string]*peer // keyed by remote node's base URL or connection id

	local *Local // messages to locally-hosted addresses route directly

	upgrader websocket.Upgrader
}

// NewWS builds a WS transport. Every Send is delivered through local;
// only SendToPeer sends a message to another node.
func NewWS(local *Local) *WS {
	return &WS{
		peers: make(map[string]*peer),
		local: local,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// RegisterPeer attaches an already-established connection to a remote
// node under the given node identifier (its address or known hostname).
func (w *WS) RegisterPeer(nodeID string, conn *websocket.Conn) {
	w.mu.Lock()
	w.peers[nodeID] = newPeer(conn)
	w.mu.Unlock()
	go w.readPump(nodeID, conn)
}

// RemovePeer drops a remote node's connection. Safe to call on an
// unregistered node id (peer dropouts are tolerated, spec.md §7).
func (w *WS) RemovePeer(nodeID string) {
	w.mu.Lock()
	p, ok := w.peers[nodeID]
	if ok {
		delete(w.peers, nodeID)
	}
	w.mu.Unlock()
	if ok {
		close(p.send)
	}
}

// SendToPeer forwards a message to the remote node registered under
// nodeID; an unregistered nodeID is a silent no-op, and a full send
// buffer drops the frame (routing by node id, since the wire protocol itself
// only carries actor addresses — cmd/node is responsible for knowing
// which node hosts which address, via peer discovery).
func (w *WS) SendToPeer(nodeID, from, to, body string) {
	w.mu.RLock()
	p, ok := w.peers[nodeID]
	w.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case p.send <- frame{From: from, To: to, Body: body}:
	default:
		log.Printf("transport: peer %s send buffer full, dropping frame", nodeID)
	}
}

// Send implements Transport for addresses known to be local; remote
// delivery goes through SendToPeer once a node id is resolved.
func (w *WS) Send(from, to, body string) { w.local.Send(from, to, body) }

// readPump decodes inbound frames from a peer connection and redelivers
// them to the local actor system, exactly mirroring the teacher's
// ws.Handler.readPump/handleMessage split (read loop decodes JSON,
// dispatch loop interprets the envelope).
func (w *WS) readPump(nodeID string, conn *websocket.Conn) {
	defer w.RemovePeer(nodeID)
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("transport: peer %s read error: %v", nodeID, err)
			}
			return
		}
		w.local.Send(f.From, f.To, f.Body)
	}
}

// ServeHTTP upgrades an inbound connection from a peer node and
// registers it, the WS transport's half of the hub.Handler pattern.
func (w *WS) ServeHTTP(nodeID string) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := w.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			log.Printf("transport: upgrade error: %v", err)
			return
		}
		w.RegisterPeer(nodeID, conn)
	}
}
