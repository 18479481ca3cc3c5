package state

import (
	"time"

	"github.com/minichain/minichain/foundation/blockchain/database"
	"github.com/minichain/minichain/foundation/blockchain/merkle"
)

// BuildCandidate produces an unsolved block for an external miner: the
// next header on the current tip plus the coinbase and up to maxBlockTx
// mempool transactions in insertion order. The miner owns the nonce
// search; the node owns everything else.
func (s *State) BuildCandidate(minerAddress string) (database.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tip, exists := s.db.LatestBlock()
	if !exists {
		return database.Block{}, ErrNoTip
	}

	index := tip.Header.Index + 1
	picks := s.mempool.PickOldest(s.genesis.MaxBlockTx)

	// Fees are computed against the current unspent set. An entry whose
	// inputs have vanished since admission is orphaned; leave it out and
	// let block eviction reap it.
	var fees uint64
	txs := make([]database.Tx, 0, len(picks)+1)
	for _, tx := range picks {
		fee, err := s.validateTx(tx, index, s.db.UTXO)
		if err != nil {
			s.evHandler("state: BuildCandidate: skipping tx[%s]: %s", tx, err)
			continue
		}
		fees += fee
		txs = append(txs, tx.WithID())
	}

	coinbase := database.Tx{
		Coinbase: true,
		Inputs:   []database.TxInput{},
		Outputs:  []database.TxOutput{{Address: minerAddress, Amount: s.genesis.Subsidy(index) + fees}},
	}.WithID()

	txs = append([]database.Tx{coinbase}, txs...)

	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}

	block := database.Block{
		Header: database.BlockHeader{
			Index:      index,
			PrevHash:   tip.Hash(),
			TimeStamp:  time.Now().UnixMilli(),
			MerkleRoot: merkle.RootHex(ids),
			Nonce:      0,
			Bits:       s.genesis.Bits,
		},
		Txs: txs,
	}

	s.evHandler("state: BuildCandidate: blk[%d] txs[%d] fees[%d]", index, len(txs), fees)

	return block, nil
}
