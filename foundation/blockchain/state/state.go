// Package state is the core API for the blockchain node and implements
// all the business rules and processing.
package state

import (
	"sync"

	"github.com/minichain/minichain/foundation/blockchain/database"
	"github.com/minichain/minichain/foundation/blockchain/database/storage"
	"github.com/minichain/minichain/foundation/blockchain/genesis"
	"github.com/minichain/minichain/foundation/blockchain/mempool"
	"github.com/minichain/minichain/foundation/blockchain/merkle"
	"github.com/minichain/minichain/foundation/blockchain/peer"
	"github.com/minichain/minichain/foundation/blockchain/signature"
)

// GenesisAddress receives the zero valued coinbase output of the
// synthesized genesis block.
const GenesisAddress = "genesis"

// EventHandler defines a function that is called when events occur in the
// processing of transactions and blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by
// any package providing gossip support. The state signals; the worker
// performs the network I/O outside the critical section.
type Worker interface {
	Shutdown()
	SignalShareTx(tx database.Tx)
	SignalShareBlock(block database.Block)
}

// =============================================================================

// Config represents the configuration required to start the node.
type Config struct {
	DataDir    string
	ParamsPath string
	KnownPeers *peer.PeerSet
	EvHandler  EventHandler
}

// State manages the blockchain database, the mempool, and the seen sets
// that make gossip reception idempotent. The mutex serializes the full
// validate, mutate, persist, gossip-signal sequence.
type State struct {
	mu sync.Mutex

	paramsPath string
	genesis    genesis.Genesis
	db         *database.Database
	mempool    *mempool.Mempool
	knownPeers *peer.PeerSet
	seenTxs    map[string]struct{}
	seenBlocks map[string]struct{}
	evHandler  EventHandler

	Worker Worker
}

// New constructs the state, replaying the block store and synthesizing the
// genesis block when the store is empty.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	// Load the chain parameters, writing defaults on first start.
	gen, err := genesis.Load(cfg.ParamsPath)
	if err != nil {
		return nil, err
	}

	// Access the storage for the blockchain.
	strg, err := storage.NewDisk(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	// Replay all existing blocks from storage, rebuilding the unspent
	// output index. Corruption here is fatal to startup.
	db, err := database.New(strg, ev)
	if err != nil {
		return nil, err
	}

	s := State{
		paramsPath: cfg.ParamsPath,
		genesis:    gen,
		db:         db,
		mempool:    mempool.New(),
		knownPeers: cfg.KnownPeers,
		seenTxs:    make(map[string]struct{}),
		seenBlocks: make(map[string]struct{}),
		evHandler:  ev,
	}

	// A brand new data directory gets the genesis block.
	if db.Height() == 0 {
		if err := s.writeGenesisBlock(); err != nil {
			return nil, err
		}
	}

	// Existing chains are already on disk; mark their blocks seen so
	// gossip replays short-circuit.
	for _, block := range db.CopyChain() {
		s.seenBlocks[block.Hash()] = struct{}{}
	}

	// The Worker is not set here. The call to worker.Run will assign
	// itself and start everything up and running for the node.

	return &s, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	defer s.db.Close()

	// Stop all blockchain writing activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	return nil
}

// writeGenesisBlock synthesizes and persists the height 0 block. The
// timestamp is fixed so every testbed node derives the same genesis hash
// and converges without coordination.
func (s *State) writeGenesisBlock() error {
	coinbase := database.Tx{
		Coinbase: true,
		Inputs:   []database.TxInput{},
		Outputs:  []database.TxOutput{{Address: GenesisAddress, Amount: 0}},
	}.WithID()

	block := database.Block{
		Header: database.BlockHeader{
			Index:      0,
			PrevHash:   signature.ZeroHash,
			TimeStamp:  0,
			MerkleRoot: merkle.RootHex([]string{coinbase.ID}),
			Nonce:      0,
			Bits:       s.genesis.Bits,
		},
		Txs: []database.Tx{coinbase},
	}

	if err := s.db.Write(block); err != nil {
		return err
	}

	s.evHandler("state: genesis: created block[0] hash[%s]", block.Hash())

	return nil
}
