package state

import (
	"github.com/minichain/minichain/foundation/blockchain/database"
	"github.com/minichain/minichain/foundation/blockchain/genesis"
	"github.com/minichain/minichain/foundation/blockchain/peer"
)

// RetrieveGenesis returns a copy of the live chain parameters, including
// the current retargeted bits.
func (s *State) RetrieveGenesis() genesis.Genesis {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.genesis
}

// RetrieveChain returns a height ordered copy of the entire chain.
func (s *State) RetrieveChain() []database.Block {
	return s.db.CopyChain()
}

// RetrieveLatestBlock returns a copy of the current tip.
func (s *State) RetrieveLatestBlock() (database.Block, bool) {
	return s.db.LatestBlock()
}

// RetrieveBlock returns the block at the specified height.
func (s *State) RetrieveBlock(height uint64) (database.Block, error) {
	return s.db.GetBlock(height)
}

// RetrieveMempool returns a copy of the mempool in insertion order.
func (s *State) RetrieveMempool() []database.Tx {
	return s.mempool.Copy()
}

// RetrieveUTXOsByAddress returns the spendable outputs owned by the
// address, keyed by outpoint.
func (s *State) RetrieveUTXOsByAddress(address string) map[string]database.UTXO {
	return s.db.UTXOsByAddress(address)
}

// QueryTx locates a transaction by id in the chain or the mempool. The
// height pointer is nil for a pooled transaction.
func (s *State) QueryTx(id string) (database.Tx, *uint64, bool) {
	if tx, height, found := s.db.BlockByTx(id); found {
		return tx, &height, true
	}

	for _, tx := range s.mempool.Copy() {
		if tx.ID == id {
			return tx, nil, true
		}
	}

	return database.Tx{}, nil, false
}

// RebuildUTXO clears and replays the unspent output index. Exposed for
// operators and the property tests; the result always equals the running
// set.
func (s *State) RebuildUTXO() database.UTXOSet {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.RebuildUTXO()
}

// RetrieveKnownPeers retrieves a copy of the known peer list.
func (s *State) RetrieveKnownPeers() []peer.Peer {
	return s.knownPeers.Copy("")
}

// AddKnownPeer provides the ability to add a new peer. It reports whether
// the peer was not already known.
func (s *State) AddKnownPeer(p peer.Peer) bool {
	return s.knownPeers.Add(p)
}
