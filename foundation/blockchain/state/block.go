package state

import (
	"fmt"
	"time"

	"github.com/minichain/minichain/foundation/blockchain/database"
	"github.com/minichain/minichain/foundation/blockchain/target"
)

// maxFutureDrift bounds how far ahead of this node's clock a block
// timestamp may sit.
const maxFutureDrift = 2 * time.Hour

// ProcessSubmittedBlock takes a solved block received from a miner,
// validates it, and commits it to the chain. The accepted block is shared
// with the gossip mesh. It returns the height the block landed at.
func (s *State) ProcessSubmittedBlock(block database.Block) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.seenBlocks[block.Hash()]; seen {
		return block.Header.Index, nil
	}

	if err := s.validateAndCommit(block); err != nil {
		return 0, err
	}

	s.Worker.SignalShareBlock(block)

	return block.Header.Index, nil
}

// ProcessPeerBlock processes a block that arrived over gossip. It reports
// whether the block was newly accepted so the caller can re-broadcast it
// to the other peers; a repeat reception is a no-op.
func (s *State) ProcessPeerBlock(block database.Block) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.seenBlocks[block.Hash()]; seen {
		return false, nil
	}

	if err := s.validateAndCommit(block); err != nil {
		return false, err
	}

	return true, nil
}

// validateAndCommit runs the full block rules against a temporary copy of
// the unspent set and, only when every rule passes, persists the block,
// folds it into the live state, evicts the mempool, and retargets. The
// caller must hold the state lock.
func (s *State) validateAndCommit(block database.Block) error {

	// Ids carried on the wire are untrusted; recompute before anything
	// keys off them.
	for i := range block.Txs {
		block.Txs[i].ID = block.Txs[i].ComputeID()
	}

	tip, exists := s.db.LatestBlock()

	s.evHandler("state: validateBlock: started: blk[%d] hash[%s] txs[%d]", block.Header.Index, block.Hash(), len(block.Txs))

	switch {
	case !exists:
		if block.Header.Index != 0 {
			return fmt.Errorf("chain is empty, expected genesis, got height %d", block.Header.Index)
		}

	default:
		if block.Header.Index != tip.Header.Index+1 {
			return fmt.Errorf("%w: got height %d, exp %d", ErrNotTip, block.Header.Index, tip.Header.Index+1)
		}
		if block.Header.PrevHash != tip.Hash() {
			return fmt.Errorf("%w: previous hash does not match tip", ErrNotTip)
		}
	}

	if block.Header.TimeStamp > time.Now().Add(maxFutureDrift).UnixMilli() {
		return fmt.Errorf("block timestamp too far in the future")
	}

	if root := block.MerkleRoot(); root != block.Header.MerkleRoot {
		return fmt.Errorf("merkle root mismatch, got %s, exp %s", block.Header.MerkleRoot, root)
	}

	if !target.HashMeets(block.Hash(), block.Header.Bits) {
		return fmt.Errorf("insufficient proof of work")
	}

	// Walk the transactions in order against a snapshot of the unspent
	// set so intra-block dependencies resolve when a child appears after
	// its parent and a rejection leaves no trace.
	temp := s.db.CopyUTXOSet()
	lookup := func(key string) (database.UTXO, bool) {
		utxo, ok := temp[key]
		return utxo, ok
	}

	var fees uint64
	var coinbaseSum uint64
	var coinbaseCount int

	for _, tx := range block.Txs {
		if tx.Coinbase {
			coinbaseCount++
			if _, err := s.validateTx(tx, block.Header.Index, lookup); err != nil {
				return fmt.Errorf("coinbase tx %s: %w", tx.ID, err)
			}
			for _, out := range tx.Outputs {
				coinbaseSum += out.Amount
			}
			temp.ApplyTx(tx, block.Header.Index)
			continue
		}

		fee, err := s.validateTx(tx, block.Header.Index, lookup)
		if err != nil {
			return fmt.Errorf("tx %s: %w", tx.ID, err)
		}
		fees += fee
		temp.ApplyTx(tx, block.Header.Index)
	}

	if coinbaseCount != 1 {
		return fmt.Errorf("expected exactly one coinbase, got %d", coinbaseCount)
	}

	maxReward := s.genesis.Subsidy(block.Header.Index) + fees
	if coinbaseSum > maxReward {
		return fmt.Errorf("coinbase pays %d, exceeds subsidy plus fees %d", coinbaseSum, maxReward)
	}

	// Commit. Persist first; a write failure must not leave the in
	// memory chain ahead of disk.
	if err := s.db.Write(block); err != nil {
		return err
	}

	s.seenBlocks[block.Hash()] = struct{}{}

	// Drop mined transactions and anything the block orphaned.
	s.mempool.EvictBlock(block, func(outpointKey string) bool {
		_, ok := s.db.UTXO(outpointKey)
		return ok
	})

	s.evHandler("state: validateBlock: accepted: blk[%d] hash[%s] fees[%d]", block.Header.Index, block.Hash(), fees)

	// Retarget after acceptance, persisting the new bits with the chain
	// update inside the same critical section. The block is committed at
	// this point; a parameters write failure must not read as a rejection.
	if err := s.retarget(); err != nil {
		s.evHandler("state: validateBlock: retarget: ERROR: %s", err)
	}

	return nil
}
