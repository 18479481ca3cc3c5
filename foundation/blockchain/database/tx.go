package database

import (
	"encoding/json"
	"fmt"

	"github.com/minichain/minichain/foundation/blockchain/signature"
)

// TxInput references one unspent output and carries the material proving
// the spender controls it.
type TxInput struct {
	TxID   string `json:"txid"`   // Id of the transaction that created the output.
	Index  int    `json:"index"`  // Position of the output in that transaction.
	PubKey string `json:"pubKey"` // Hex compressed secp256k1 public key of the spender.
	Sig    string `json:"sig"`    // Hex DER ECDSA signature over the signing preimage.
}

// Outpoint returns the outpoint this input spends.
func (in TxInput) Outpoint() Outpoint {
	return Outpoint{TxID: in.TxID, Index: in.Index}
}

// TxOutput assigns value to an address.
type TxOutput struct {
	Address string `json:"address"` // 40 hex character ripemd160(sha256(pubKey)).
	Amount  uint64 `json:"amount"`  // Positive integral value.
}

// Tx is either a coinbase (marker set, no inputs) or a spend.
type Tx struct {
	ID       string     `json:"id"`
	Coinbase bool       `json:"coinbase"`
	Inputs   []TxInput  `json:"inputs"`
	Outputs  []TxOutput `json:"outputs"`
}

// =============================================================================

// Outpoint identifies one previous transaction output.
type Outpoint struct {
	TxID  string `json:"txid"`
	Index int    `json:"index"`
}

// Key renders the outpoint in its canonical "txid:index" map key form.
func (op Outpoint) Key() string {
	return fmt.Sprintf("%s:%d", op.TxID, op.Index)
}

// =============================================================================

// The id preimage covers, per input, only (txid, index, pubKey) and, per
// output, (address, amount). Signatures are excluded so the id is stable
// across re-signing by the same key set.
type idInput struct {
	TxID   string `json:"txid"`
	Index  int    `json:"index"`
	PubKey string `json:"pubKey"`
}

// The signing preimage covers, per input, only (txid, index). Every input
// signs this same digest.
type sigInput struct {
	TxID  string `json:"txid"`
	Index int    `json:"index"`
}

type preOutput struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}

// ComputeID derives the deterministic transaction id.
func (tx Tx) ComputeID() string {
	preimage := struct {
		Inputs  []idInput   `json:"inputs"`
		Outputs []preOutput `json:"outputs"`
	}{
		Inputs:  make([]idInput, 0, len(tx.Inputs)),
		Outputs: make([]preOutput, 0, len(tx.Outputs)),
	}

	for _, in := range tx.Inputs {
		preimage.Inputs = append(preimage.Inputs, idInput{TxID: in.TxID, Index: in.Index, PubKey: in.PubKey})
	}
	for _, out := range tx.Outputs {
		preimage.Outputs = append(preimage.Outputs, preOutput{Address: out.Address, Amount: out.Amount})
	}

	// Struct marshaling preserves field order, so the document is canonical.
	data, err := json.Marshal(preimage)
	if err != nil {
		return ""
	}

	return signature.Hash(data)
}

// SigHash derives the 32 byte signing preimage ("sighash-ALL") every input
// must sign.
func (tx Tx) SigHash() []byte {
	preimage := struct {
		Inputs  []sigInput  `json:"inputs"`
		Outputs []preOutput `json:"outputs"`
	}{
		Inputs:  make([]sigInput, 0, len(tx.Inputs)),
		Outputs: make([]preOutput, 0, len(tx.Outputs)),
	}

	for _, in := range tx.Inputs {
		preimage.Inputs = append(preimage.Inputs, sigInput{TxID: in.TxID, Index: in.Index})
	}
	for _, out := range tx.Outputs {
		preimage.Outputs = append(preimage.Outputs, preOutput{Address: out.Address, Amount: out.Amount})
	}

	data, err := json.Marshal(preimage)
	if err != nil {
		return nil
	}

	return signature.Digest(data)
}

// WithID returns a copy of the transaction with its id recomputed.
func (tx Tx) WithID() Tx {
	tx.ID = tx.ComputeID()
	return tx
}

// String implements the fmt.Stringer interface for logging.
func (tx Tx) String() string {
	if tx.Coinbase {
		return fmt.Sprintf("coinbase:%s", shortID(tx.ID))
	}
	return fmt.Sprintf("spend:%s:in[%d]:out[%d]", shortID(tx.ID), len(tx.Inputs), len(tx.Outputs))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
