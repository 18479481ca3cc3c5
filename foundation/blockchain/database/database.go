// Package database handles the lower level support for maintaining the
// blockchain on disk and the in memory index of unspent outputs.
package database

import (
	"fmt"
	"sync"

	"github.com/minichain/minichain/foundation/blockchain/signature"
)

// Serializer interface represents the behavior required to be implemented
// by any package providing support for storing and reading the blockchain.
type Serializer interface {
	Write(block Block) error
	GetBlock(height uint64) (Block, error)
	ForEach() Iterator
	Close() error
}

// Iterator interface represents the behavior required to be implemented by
// any package providing support to iterate over the blocks.
type Iterator interface {
	Next() (Block, error)
	Done() bool
}

// =============================================================================

// Database manages the chain of blocks and the unspent output index. All
// serialized access happens in the state package; the internal mutex only
// protects direct readers such as HTTP queries.
type Database struct {
	mu sync.RWMutex

	blocks     []Block
	utxo       UTXOSet
	serializer Serializer
}

// New constructs the database and replays every block found on disk in
// height order, rebuilding the unspent output index as it goes. A chain
// that fails the contiguity audit is unrecoverable at startup.
func New(serializer Serializer, evHandler func(v string, args ...any)) (*Database, error) {
	db := Database{
		utxo:       make(UTXOSet),
		serializer: serializer,
	}

	iter := serializer.ForEach()
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return nil, fmt.Errorf("reading block: %w", err)
		}

		if err := db.audit(block); err != nil {
			return nil, fmt.Errorf("block store corrupted: %w", err)
		}

		db.blocks = append(db.blocks, block)
		db.utxo.ApplyBlock(block)

		evHandler("database: load: block[%d] hash[%s] txs[%d]", block.Header.Index, block.Hash(), len(block.Txs))
	}

	return &db, nil
}

// audit checks a block read from disk links onto the chain loaded so far.
func (db *Database) audit(block Block) error {
	height := uint64(len(db.blocks))

	if block.Header.Index != height {
		return fmt.Errorf("block out of order, got height %d, exp %d", block.Header.Index, height)
	}

	if height == 0 {
		if block.Header.PrevHash != signature.ZeroHash {
			return fmt.Errorf("genesis previous hash, got %s, exp %s", block.Header.PrevHash, signature.ZeroHash)
		}
		return nil
	}

	prev := db.blocks[height-1]
	if block.Header.PrevHash != prev.Hash() {
		return fmt.Errorf("block %d previous hash does not match block %d", block.Header.Index, prev.Header.Index)
	}

	return nil
}

// Close releases the underlying block store.
func (db *Database) Close() {
	db.serializer.Close()
}

// Write persists the block and folds it into the chain and the unspent
// output index. Validation has already happened; this is the commit.
func (db *Database) Write(block Block) error {
	if err := db.serializer.Write(block); err != nil {
		return fmt.Errorf("persisting block %d: %w", block.Header.Index, err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	db.blocks = append(db.blocks, block)
	db.utxo.ApplyBlock(block)

	return nil
}

// Height returns the number of blocks in the chain.
func (db *Database) Height() uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return uint64(len(db.blocks))
}

// LatestBlock returns the current tip and false when the chain is empty.
func (db *Database) LatestBlock() (Block, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if len(db.blocks) == 0 {
		return Block{}, false
	}
	return db.blocks[len(db.blocks)-1], true
}

// GetBlock returns the block at the specified height.
func (db *Database) GetBlock(height uint64) (Block, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if height >= uint64(len(db.blocks)) {
		return Block{}, fmt.Errorf("height %d out of range", height)
	}
	return db.blocks[height], nil
}

// CopyChain returns a height ordered copy of the chain.
func (db *Database) CopyChain() []Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	blocks := make([]Block, len(db.blocks))
	copy(blocks, db.blocks)
	return blocks
}

// BlockByTx locates the on-chain transaction with the specified id and the
// height of the block carrying it.
func (db *Database) BlockByTx(id string) (Tx, uint64, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, block := range db.blocks {
		for _, tx := range block.Txs {
			if tx.ID == id || tx.ComputeID() == id {
				return tx, block.Header.Index, true
			}
		}
	}
	return Tx{}, 0, false
}

// =============================================================================
// Unspent output index

// UTXO looks up the unspent output for the specified outpoint key.
func (db *Database) UTXO(key string) (UTXO, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	utxo, exists := db.utxo[key]
	return utxo, exists
}

// CopyUTXOSet makes a copy of the current unspent output set. Block
// validation walks the copy so rejection has no side effects.
func (db *Database) CopyUTXOSet() UTXOSet {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.utxo.Clone()
}

// ReplaceUTXOSet swaps the live set for the one block validation produced.
func (db *Database) ReplaceUTXOSet(set UTXOSet) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.utxo = set
}

// UTXOsByAddress returns the spendable outputs owned by the address,
// keyed by outpoint.
func (db *Database) UTXOsByAddress(address string) map[string]UTXO {
	db.mu.RLock()
	defer db.mu.RUnlock()

	owned := make(map[string]UTXO)
	for key, utxo := range db.utxo {
		if utxo.Address == address {
			owned[key] = utxo
		}
	}
	return owned
}

// RebuildUTXO clears the unspent output index and replays every block.
// The result must always equal the running set; the property tests and
// operators lean on that equivalence.
func (db *Database) RebuildUTXO() UTXOSet {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.utxo = make(UTXOSet)
	for _, block := range db.blocks {
		db.utxo.ApplyBlock(block)
	}
	return db.utxo.Clone()
}
