package public

import (
	"github.com/minichain/minichain/foundation/blockchain/database"
)

// submitTxInput is the wire form of one transaction input.
type submitTxInput struct {
	TxID   string `json:"txid" validate:"required,hexadecimal,len=64"`
	Index  int    `json:"index" validate:"gte=0"`
	PubKey string `json:"pubKey" validate:"required,hexadecimal,len=66"`
	Sig    string `json:"sig" validate:"required,hexadecimal"`
}

// submitTxOutput is the wire form of one transaction output.
type submitTxOutput struct {
	Address string `json:"address" validate:"required,hexadecimal,len=40"`
	Amount  uint64 `json:"amount" validate:"required,gt=0"`
}

// submitTx is what wallets POST to /transactions. Coinbase transactions
// only exist inside blocks, so the marker is not accepted here.
type submitTx struct {
	ID      string           `json:"id" validate:"omitempty,hexadecimal,len=64"`
	Inputs  []submitTxInput  `json:"inputs" validate:"required,min=1,dive"`
	Outputs []submitTxOutput `json:"outputs" validate:"required,min=1,dive"`
}

// toDatabase converts the wire form into the core transaction model.
func (app submitTx) toDatabase() database.Tx {
	tx := database.Tx{
		ID:      app.ID,
		Inputs:  make([]database.TxInput, len(app.Inputs)),
		Outputs: make([]database.TxOutput, len(app.Outputs)),
	}
	for i, in := range app.Inputs {
		tx.Inputs[i] = database.TxInput{TxID: in.TxID, Index: in.Index, PubKey: in.PubKey, Sig: in.Sig}
	}
	for i, out := range app.Outputs {
		tx.Outputs[i] = database.TxOutput{Address: out.Address, Amount: out.Amount}
	}
	return tx
}

// =============================================================================

// utxo is the wire form of one spendable output for /utxos/:address.
type utxo struct {
	TxID        string `json:"txid"`
	Index       int    `json:"index"`
	Amount      uint64 `json:"amount"`
	BlockHeight uint64 `json:"blockHeight"`
	IsCoinbase  bool   `json:"isCoinbase"`
}

type utxoList struct {
	UTXOs []utxo `json:"utxos"`
}

// txInfo is the response for /tx/:id. BlockHeight is null for a pooled
// transaction.
type txInfo struct {
	Tx          database.Tx `json:"tx"`
	BlockHeight *uint64     `json:"blockHeight"`
}

// submitResult acknowledges an accepted transaction.
type submitResult struct {
	OK bool   `json:"ok"`
	ID string `json:"id"`
}

// blockResult acknowledges an accepted block.
type blockResult struct {
	OK     bool   `json:"ok"`
	Height uint64 `json:"height"`
}
