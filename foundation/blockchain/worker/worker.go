// Package worker implements the gossip mesh for the blockchain: the peer
// listener, outbound peer dialing with reconnect, and the fan-out of
// transactions and blocks.
package worker

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/minichain/minichain/foundation/blockchain/database"
	"github.com/minichain/minichain/foundation/blockchain/state"
	"github.com/minichain/minichain/foundation/events"
)

// reconnectDelay is the fixed wait between attempts to re-establish a
// lost outbound peer connection.
const reconnectDelay = 2 * time.Second

// maxShareRequests represents the max number of pending share requests
// that can be outstanding before new share requests are dropped. To keep
// this simple, buffered channels of this arbitrary number are being used.
const maxShareRequests = 100

// =============================================================================

// Worker manages the gossip workflows for the node.
type Worker struct {
	state     *state.State
	listen    string
	wg        sync.WaitGroup
	shut      chan struct{}
	txShare   chan database.Tx
	blkShare  chan database.Block
	evHandler state.EventHandler
	evts      *events.Events

	upgrader websocket.Upgrader
	connMu   sync.Mutex
	conns    map[string]*connection
}

// Config holds what the worker needs beyond the state itself.
type Config struct {
	Listen    string // host:port the gossip listener binds to
	EvHandler state.EventHandler
	Evts      *events.Events
}

// Run creates a worker, registers the worker with the state package, and
// starts up all the background processes.
func Run(st *state.State, cfg Config) *Worker {
	w := Worker{
		state:     st,
		listen:    cfg.Listen,
		shut:      make(chan struct{}),
		txShare:   make(chan database.Tx, maxShareRequests),
		blkShare:  make(chan database.Block, maxShareRequests),
		evHandler: cfg.EvHandler,
		evts:      cfg.Evts,
		conns:     make(map[string]*connection),
	}

	// Register this worker with the state package.
	st.Worker = &w

	// Load the set of operations we need to run.
	operations := []func(){
		w.listenOperations,
		w.shareOperations,
	}
	for _, p := range st.RetrieveKnownPeers() {
		operations = append(operations, w.dialOperation(p.URL))
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	for i := 0; i < g; i++ {
		<-hasStarted
	}

	return &w
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutines performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	close(w.shut)

	w.evHandler("worker: shutdown: close peer connections")
	w.closeAll()

	w.wg.Wait()
}

// SignalShareTx queues a transaction for fan-out to every connected peer.
// If the queue is full the share is dropped; gossip is best effort.
func (w *Worker) SignalShareTx(tx database.Tx) {
	select {
	case w.txShare <- tx:
		w.evHandler("worker: SignalShareTx: tx share signaled")
	default:
		w.evHandler("worker: SignalShareTx: queue full, tx won't be shared")
	}
}

// SignalShareBlock queues a block for fan-out to every connected peer.
func (w *Worker) SignalShareBlock(block database.Block) {
	select {
	case w.blkShare <- block:
		w.evHandler("worker: SignalShareBlock: block share signaled")
	default:
		w.evHandler("worker: SignalShareBlock: queue full, block won't be shared")
	}
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}

// shareOperations drains the share channels and broadcasts to all peers.
func (w *Worker) shareOperations() {
	w.evHandler("worker: shareOperations: G started")
	defer w.evHandler("worker: shareOperations: G completed")

	for {
		select {
		case tx := <-w.txShare:
			if !w.isShutdown() {
				w.broadcast(Message{Type: TypeTx, Tx: &tx}, "")
			}
		case block := <-w.blkShare:
			if !w.isShutdown() {
				w.broadcast(Message{Type: TypeBlock, Block: &block}, "")
			}
		case <-w.shut:
			w.evHandler("worker: shareOperations: received shut signal")
			return
		}
	}
}
