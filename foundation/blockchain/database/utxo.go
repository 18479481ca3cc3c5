package database

// UTXO is one spendable transaction output together with the context
// needed for validation.
type UTXO struct {
	Amount      uint64 `json:"amount"`
	Address     string `json:"address"`
	BlockHeight uint64 `json:"blockHeight"` // Height of the block that created the output.
	IsCoinbase  bool   `json:"isCoinbase"`
}

// UTXOSet is the authoritative set of unspent outputs, keyed by the
// outpoint's "txid:index" form.
type UTXOSet map[string]UTXO

// Clone makes an independent copy of the set. Block validation walks the
// copy so a rejected block leaves no trace.
func (set UTXOSet) Clone() UTXOSet {
	clone := make(UTXOSet, len(set))
	for key, utxo := range set {
		clone[key] = utxo
	}
	return clone
}

// ApplyTx removes the outputs a transaction spends and adds the outputs it
// creates. The caller has already validated the spend against the set.
func (set UTXOSet) ApplyTx(tx Tx, blockHeight uint64) {
	if !tx.Coinbase {
		for _, in := range tx.Inputs {
			delete(set, in.Outpoint().Key())
		}
	}

	id := tx.ComputeID()
	for i, out := range tx.Outputs {
		key := Outpoint{TxID: id, Index: i}.Key()
		set[key] = UTXO{
			Amount:      out.Amount,
			Address:     out.Address,
			BlockHeight: blockHeight,
			IsCoinbase:  tx.Coinbase,
		}
	}
}

// ApplyBlock folds every transaction of the block into the set in order.
func (set UTXOSet) ApplyBlock(block Block) {
	for _, tx := range block.Txs {
		set.ApplyTx(tx, block.Header.Index)
	}
}
