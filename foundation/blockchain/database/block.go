package database

import (
	"fmt"

	"github.com/minichain/minichain/foundation/blockchain/merkle"
	"github.com/minichain/minichain/foundation/blockchain/signature"
)

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	Index      uint64 `json:"index"`        // Block height, 0 based.
	PrevHash   string `json:"previousHash"` // Header hash of the previous block, "0" for genesis.
	TimeStamp  int64  `json:"timestamp"`    // Milliseconds since epoch the block was assembled.
	MerkleRoot string `json:"merkleRoot"`   // Merkle root over the transaction ids.
	Nonce      uint64 `json:"nonce"`        // Value discovered by the miner to solve the target.
	Bits       uint32 `json:"bits"`         // Compact target the header hash must meet.
}

// Block represents a group of transactions batched together.
type Block struct {
	Header BlockHeader `json:"header"`
	Txs    []Tx        `json:"txs"`
}

// Hash returns the unique header hash for the block: sha256 over the pipe
// delimited concatenation index|previousHash|timestamp|merkleRoot|nonce|bits.
// The timestamp is always milliseconds since epoch in decimal form.
func (b Block) Hash() string {
	h := b.Header
	preimage := fmt.Sprintf("%d|%s|%d|%s|%d|%d", h.Index, h.PrevHash, h.TimeStamp, h.MerkleRoot, h.Nonce, h.Bits)
	return signature.Hash([]byte(preimage))
}

// MerkleRoot recomputes the merkle root over the block's transaction ids.
func (b Block) MerkleRoot() string {
	ids := make([]string, len(b.Txs))
	for i, tx := range b.Txs {
		ids[i] = tx.ComputeID()
	}
	return merkle.RootHex(ids)
}

// CoinbaseCount reports how many coinbase transactions the block carries.
func (b Block) CoinbaseCount() int {
	var count int
	for _, tx := range b.Txs {
		if tx.Coinbase {
			count++
		}
	}
	return count
}
