package state

import (
	"fmt"

	"github.com/minichain/minichain/foundation/blockchain/database"
	"github.com/minichain/minichain/foundation/blockchain/signature"
)

// SubmitWalletTransaction accepts an already signed transaction from an
// external submitter. On first acceptance the transaction is shared with
// the gossip mesh. Resubmitting a pooled transaction is an idempotent
// success.
func (s *State) SubmitWalletTransaction(tx database.Tx) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, accepted, err := s.admitTransaction(tx)
	if err != nil {
		return "", err
	}

	if accepted {
		s.evHandler("state: SubmitWalletTransaction: accepted tx[%s]", tx)
		s.Worker.SignalShareTx(tx)
	}

	return tx.ID, nil
}

// SubmitPeerTransaction processes a transaction that arrived over gossip.
// It reports whether the transaction was newly accepted so the caller can
// re-broadcast it to the other peers; a repeat reception is a no-op.
func (s *State) SubmitPeerTransaction(tx database.Tx) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.seenTxs[tx.ComputeID()]; seen {
		return false, nil
	}

	tx, accepted, err := s.admitTransaction(tx)
	if err != nil {
		return false, err
	}

	if accepted {
		s.evHandler("state: SubmitPeerTransaction: accepted tx[%s]", tx)
	}

	return accepted, nil
}

// admitTransaction runs mempool admission under the state lock: recompute
// the id, validate against the live unspent set, reserve outpoints.
func (s *State) admitTransaction(tx database.Tx) (database.Tx, bool, error) {
	tx = tx.WithID()

	if _, seen := s.seenTxs[tx.ID]; seen {
		return tx, false, nil
	}

	// A coinbase only exists inside a block. Letting one into the pool
	// would poison every candidate built from it.
	if tx.Coinbase {
		return tx, false, fmt.Errorf("coinbase not allowed in mempool")
	}

	if _, err := s.validateTx(tx, s.db.Height(), s.db.UTXO); err != nil {
		return tx, false, err
	}

	if err := s.mempool.Upsert(tx); err != nil {
		return tx, false, err
	}

	s.seenTxs[tx.ID] = struct{}{}

	return tx, true, nil
}

// validateTx applies the stateful transaction rules. The lookup function
// abstracts the unspent set so the same rules run against the live index
// during admission and against the temporary set during a block walk.
// currentHeight is the height the transaction would confirm at.
func (s *State) validateTx(tx database.Tx, currentHeight uint64, lookup func(key string) (database.UTXO, bool)) (uint64, error) {
	if tx.Coinbase {
		if len(tx.Inputs) != 0 {
			return 0, fmt.Errorf("coinbase carries inputs")
		}
		for _, out := range tx.Outputs {
			if out.Amount == 0 {
				return 0, fmt.Errorf("non-positive output amount")
			}
		}
		return 0, nil
	}

	if len(tx.Inputs) == 0 {
		return 0, fmt.Errorf("transaction has no inputs")
	}
	if len(tx.Outputs) == 0 {
		return 0, fmt.Errorf("transaction has no outputs")
	}

	var outSum uint64
	for _, out := range tx.Outputs {
		if out.Amount == 0 {
			return 0, fmt.Errorf("non-positive output amount")
		}
		outSum += out.Amount
	}

	// No outpoint may be referenced twice within the transaction.
	claimed := make(map[string]struct{}, len(tx.Inputs))
	for _, in := range tx.Inputs {
		key := in.Outpoint().Key()
		if _, dup := claimed[key]; dup {
			return 0, fmt.Errorf("duplicate outpoint %s in transaction", key)
		}
		claimed[key] = struct{}{}
	}

	sigHash := tx.SigHash()

	var inSum uint64
	for _, in := range tx.Inputs {
		key := in.Outpoint().Key()

		utxo, exists := lookup(key)
		if !exists {
			return 0, fmt.Errorf("%w %s", ErrUnknownUTXO, key)
		}

		if utxo.IsCoinbase && currentHeight-utxo.BlockHeight < s.genesis.CoinbaseMaturity {
			return 0, ErrNotMature
		}

		address, err := signature.Address(in.PubKey)
		if err != nil {
			return 0, ErrBadSignature
		}
		if address != utxo.Address {
			return 0, ErrAddressMismatch
		}

		if !signature.Verify(in.PubKey, sigHash, in.Sig) {
			return 0, ErrBadSignature
		}

		inSum += utxo.Amount
	}

	if inSum < outSum {
		return 0, ErrNegativeFee
	}

	return inSum - outSum, nil
}
