// Package mempool maintains the pool of validated but unconfirmed
// transactions and the set of outpoints those transactions spend.
package mempool

import (
	"errors"
	"sync"

	"github.com/minichain/minichain/foundation/blockchain/database"
)

// ErrDoubleSpend is returned when a transaction spends an outpoint already
// reserved by another transaction in the pool.
var ErrDoubleSpend = errors.New("mempool double spend")

// Mempool represents a cache of transactions keyed by id plus the set of
// outpoints any pooled transaction spends. Insertion order is preserved
// for block candidate selection.
type Mempool struct {
	mu    sync.RWMutex
	pool  map[string]database.Tx
	order []string
	spent map[string]string // outpoint key -> reserving tx id
}

// New constructs a new mempool.
func New() *Mempool {
	return &Mempool{
		pool:  make(map[string]database.Tx),
		spent: make(map[string]string),
	}
}

// Count returns the current number of transactions in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Upsert adds the transaction to the pool and reserves every outpoint it
// spends. A transaction already present is an idempotent success. The
// caller has already run stateful validation.
func (mp *Mempool) Upsert(tx database.Tx) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.pool[tx.ID]; exists {
		return nil
	}

	for _, in := range tx.Inputs {
		if owner, reserved := mp.spent[in.Outpoint().Key()]; reserved && owner != tx.ID {
			return ErrDoubleSpend
		}
	}

	mp.pool[tx.ID] = tx
	mp.order = append(mp.order, tx.ID)
	for _, in := range tx.Inputs {
		mp.spent[in.Outpoint().Key()] = tx.ID
	}

	return nil
}

// Reserved reports whether the outpoint is already claimed by a pooled
// transaction other than the one specified.
func (mp *Mempool) Reserved(outpointKey string, txID string) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	owner, reserved := mp.spent[outpointKey]
	return reserved && owner != txID
}

// Delete removes a transaction from the pool and releases the outpoints
// it had reserved.
func (mp *Mempool) Delete(id string) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.remove(id)
}

// remove drops the id from the pool, order slice and reservation set.
// The caller must hold the lock.
func (mp *Mempool) remove(id string) {
	tx, exists := mp.pool[id]
	if !exists {
		return
	}

	delete(mp.pool, id)
	for _, in := range tx.Inputs {
		if mp.spent[in.Outpoint().Key()] == id {
			delete(mp.spent, in.Outpoint().Key())
		}
	}

	for i, oid := range mp.order {
		if oid == id {
			mp.order = append(mp.order[:i], mp.order[i+1:]...)
			break
		}
	}
}

// PickOldest returns up to howMany transactions in insertion order. Pass
// -1 for the entire pool.
func (mp *Mempool) PickOldest(howMany int) []database.Tx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	if howMany < 0 || howMany > len(mp.order) {
		howMany = len(mp.order)
	}

	txs := make([]database.Tx, 0, howMany)
	for _, id := range mp.order[:howMany] {
		txs = append(txs, mp.pool[id])
	}
	return txs
}

// Copy returns the entire pool in insertion order.
func (mp *Mempool) Copy() []database.Tx {
	return mp.PickOldest(-1)
}

// EvictBlock removes every transaction the accepted block included, then
// drops any remaining transaction that spends an outpoint the block
// consumed through a different transaction. Those have been orphaned and
// can never validate again.
func (mp *Mempool) EvictBlock(block database.Block, stillSpendable func(outpointKey string) bool) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	for _, tx := range block.Txs {
		mp.remove(tx.ID)
	}

	var orphaned []string
	for id, tx := range mp.pool {
		for _, in := range tx.Inputs {
			if !stillSpendable(in.Outpoint().Key()) {
				orphaned = append(orphaned, id)
				break
			}
		}
	}
	for _, id := range orphaned {
		mp.remove(id)
	}
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]database.Tx)
	mp.order = nil
	mp.spent = make(map[string]string)
}
