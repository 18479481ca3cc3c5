package worker

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/minichain/minichain/foundation/blockchain/database"
	"github.com/minichain/minichain/foundation/events"
)

// Set of gossip message types.
const (
	TypeTx     = "tx"
	TypeBlock  = "block"
	TypeGetTip = "get_tip"
	TypeTip    = "tip"
)

// Message is the single JSON frame exchanged between peers.
type Message struct {
	Type  string          `json:"type"`
	Tx    *database.Tx    `json:"tx,omitempty"`
	Block *database.Block `json:"block,omitempty"`
	Tip   *database.Block `json:"tip,omitempty"`
}

// connection wraps one full-duplex peer link. Writes are serialized per
// connection as the websocket package requires.
type connection struct {
	id      string
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *connection) send(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.ws.WriteJSON(msg)
}

// =============================================================================

// GossipHandler returns the http handler inbound peers dial into. It is
// exposed so tests can front it with their own listener.
func (w *Worker) GossipHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/gossip", w.acceptPeer)
	return mux
}

// acceptPeer upgrades one inbound peer connection and services it.
func (w *Worker) acceptPeer(rw http.ResponseWriter, r *http.Request) {
	ws, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.evHandler("worker: listen: upgrade: ERROR: %s", err)
		return
	}

	c := &connection{id: ws.RemoteAddr().String(), ws: ws}
	if !w.addConn(c) {
		ws.Close()
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.readLoop(c)
	}()
}

// listenOperations runs the gossip listener that inbound peers dial into.
func (w *Worker) listenOperations() {
	w.evHandler("worker: listenOperations: G started: listening on %s", w.listen)
	defer w.evHandler("worker: listenOperations: G completed")

	server := http.Server{Addr: w.listen, Handler: w.GossipHandler()}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		<-w.shut
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		w.evHandler("worker: listenOperations: ERROR: %s", err)
	}
}

// dialOperation returns the operation that keeps one outbound peer
// connection alive. Reconnection uses a fixed delay and is idempotent:
// an existing connection to the URL is never duplicated.
func (w *Worker) dialOperation(url string) func() {
	return func() {
		w.evHandler("worker: dialOperation: G started: peer %s", url)
		defer w.evHandler("worker: dialOperation: G completed: peer %s", url)

		for {
			if w.isShutdown() {
				return
			}

			if w.connected(url) {
				if !w.sleep(reconnectDelay) {
					return
				}
				continue
			}

			ws, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				w.evHandler("worker: dialOperation: dial %s: WARNING: %s", url, err)
				if !w.sleep(reconnectDelay) {
					return
				}
				continue
			}

			c := &connection{id: url, ws: ws}
			if !w.addConn(c) {
				ws.Close()
				continue
			}

			w.evHandler("worker: dialOperation: connected to peer %s", url)

			// Exchange tips on connect so divergence shows up early.
			if err := c.send(Message{Type: TypeGetTip}); err != nil {
				w.evHandler("worker: dialOperation: get_tip %s: WARNING: %s", url, err)
			}

			// Block here servicing the connection until it drops.
			w.readLoop(c)
		}
	}
}

// readLoop services inbound frames from one peer until the connection
// drops or shutdown is signaled.
func (w *Worker) readLoop(c *connection) {
	defer func() {
		w.removeConn(c.id)
		c.ws.Close()
	}()

	for {
		var msg Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			if !w.isShutdown() {
				w.evHandler("worker: readLoop: peer %s: disconnected: %s", c.id, err)
			}
			return
		}

		w.dispatch(c, msg)
	}
}

// dispatch processes one frame. Invalid payloads are dropped with a
// warning; the peer is not disconnected for them.
func (w *Worker) dispatch(c *connection, msg Message) {
	switch msg.Type {
	case TypeTx:
		if msg.Tx == nil {
			w.evHandler("worker: dispatch: peer %s: tx frame without tx", c.id)
			return
		}
		accepted, err := w.state.SubmitPeerTransaction(*msg.Tx)
		if err != nil {
			w.evHandler("worker: dispatch: peer %s: invalid tx: WARNING: %s", c.id, err)
			return
		}
		if accepted {
			w.evts.Send(events.KindTx, "transaction received from peer", msg.Tx)
			w.broadcast(msg, c.id)
		}

	case TypeBlock:
		if msg.Block == nil {
			w.evHandler("worker: dispatch: peer %s: block frame without block", c.id)
			return
		}
		accepted, err := w.state.ProcessPeerBlock(*msg.Block)
		if err != nil {
			w.evHandler("worker: dispatch: peer %s: invalid block: WARNING: %s", c.id, err)
			return
		}
		if accepted {
			w.evts.Send(events.KindBlock, "block received from peer", msg.Block)
			w.broadcast(msg, c.id)
		}

	case TypeGetTip:
		tip, exists := w.state.RetrieveLatestBlock()
		if !exists {
			return
		}
		if err := c.send(Message{Type: TypeTip, Tip: &tip}); err != nil {
			w.evHandler("worker: dispatch: peer %s: tip reply: WARNING: %s", c.id, err)
		}

	case TypeTip:
		if msg.Tip == nil {
			return
		}
		tip, exists := w.state.RetrieveLatestBlock()
		if exists && msg.Tip.Header.Index > tip.Header.Index {
			// The peer is ahead. Competing chains are detected but not
			// chosen between; extensions of our own tip still converge us.
			w.evHandler("worker: dispatch: peer %s: ahead at height %d, local %d", c.id, msg.Tip.Header.Index, tip.Header.Index)
		}

	default:
		w.evHandler("worker: dispatch: peer %s: unknown message type %q", c.id, msg.Type)
	}
}

// =============================================================================

// addConn registers the connection. It reports false when a connection
// with the same id already exists.
func (w *Worker) addConn(c *connection) bool {
	w.connMu.Lock()
	defer w.connMu.Unlock()

	if _, exists := w.conns[c.id]; exists {
		return false
	}
	w.conns[c.id] = c
	return true
}

// connected reports whether a connection with the id is registered.
func (w *Worker) connected(id string) bool {
	w.connMu.Lock()
	defer w.connMu.Unlock()

	_, exists := w.conns[id]
	return exists
}

// removeConn drops the connection from the registry.
func (w *Worker) removeConn(id string) {
	w.connMu.Lock()
	defer w.connMu.Unlock()

	delete(w.conns, id)
}

// closeAll closes every registered connection.
func (w *Worker) closeAll() {
	w.connMu.Lock()
	defer w.connMu.Unlock()

	for id, c := range w.conns {
		c.ws.Close()
		delete(w.conns, id)
	}
}

// broadcast sends the message to every connected peer except the one the
// message arrived from. Send failures are absorbed; the read loop handles
// the actual disconnect.
func (w *Worker) broadcast(msg Message, exceptID string) {
	w.connMu.Lock()
	peers := make([]*connection, 0, len(w.conns))
	for id, c := range w.conns {
		if id != exceptID {
			peers = append(peers, c)
		}
	}
	w.connMu.Unlock()

	for _, c := range peers {
		if err := c.send(msg); err != nil {
			w.evHandler("worker: broadcast: peer %s: WARNING: %s", c.id, err)
		}
	}
}

// sleep waits for the duration or a shutdown signal, reporting false on
// shutdown.
func (w *Worker) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-w.shut:
		return false
	}
}
