package state_test

import (
	"encoding/hex"
	"errors"
	"math/big"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/minichain/minichain/foundation/blockchain/database"
	"github.com/minichain/minichain/foundation/blockchain/genesis"
	"github.com/minichain/minichain/foundation/blockchain/merkle"
	"github.com/minichain/minichain/foundation/blockchain/mempool"
	"github.com/minichain/minichain/foundation/blockchain/peer"
	"github.com/minichain/minichain/foundation/blockchain/signature"
	"github.com/minichain/minichain/foundation/blockchain/state"
	"github.com/minichain/minichain/foundation/blockchain/target"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// nopWorker stands in for the gossip worker in tests.
type nopWorker struct{}

func (nopWorker) Shutdown()                             {}
func (nopWorker) SignalShareTx(tx database.Tx)          {}
func (nopWorker) SignalShareBlock(block database.Block) {}

// testParams are tuned so proof of work solves in a handful of attempts
// and coinbase maturity only needs two confirmations.
func testParams() genesis.Genesis {
	return genesis.Genesis{
		AdjustEvery:        1000,
		TargetBlockTimeSec: 10,
		BlockSubsidy:       50,
		HalvingInterval:    100000,
		CoinbaseMaturity:   2,
		MaxBlockTx:         10,
		Bits:               0x207fffff,
	}
}

func newTestState(t *testing.T, dir string, params genesis.Genesis) *state.State {
	t.Helper()

	paramsPath := filepath.Join(dir, "genesis.json")
	if err := params.Save(paramsPath); err != nil {
		t.Fatalf("\t%s\tShould be able to write the chain parameters: %v", failed, err)
	}

	st, err := state.New(state.Config{
		DataDir:    filepath.Join(dir, "blocks"),
		ParamsPath: paramsPath,
		KnownPeers: peer.NewPeerSet(),
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the state: %v", failed, err)
	}
	st.Worker = nopWorker{}

	return st
}

func testKeys(t *testing.T) (*secp256k1.PrivateKey, string, string) {
	t.Helper()

	keyBytes, err := hex.DecodeString("fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959")
	if err != nil {
		t.Fatalf("\t%s\tShould be able to decode the key bytes: %v", failed, err)
	}

	priv := secp256k1.PrivKeyFromBytes(keyBytes)
	pubKey := hex.EncodeToString(priv.PubKey().SerializeCompressed())

	address, err := signature.Address(pubKey)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to derive the address: %v", failed, err)
	}

	return priv, pubKey, address
}

// solve grinds the nonce until the header hash meets the block's own bits.
func solve(t *testing.T, block database.Block) database.Block {
	t.Helper()

	for !target.HashMeets(block.Hash(), block.Header.Bits) {
		block.Header.Nonce++
		if block.Header.Nonce > 10_000_000 {
			t.Fatalf("\t%s\tShould be able to solve the block at test difficulty.", failed)
		}
	}
	return block
}

// mineNext pulls a candidate, solves it, and submits it.
func mineNext(t *testing.T, st *state.State, minerAddress string) database.Block {
	t.Helper()

	candidate, err := st.BuildCandidate(minerAddress)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to build a candidate: %v", failed, err)
	}

	block := solve(t, candidate)
	if _, err := st.ProcessSubmittedBlock(block); err != nil {
		t.Fatalf("\t%s\tShould be able to submit the solved block: %v", failed, err)
	}
	return block
}

func Test_GenesisOnlyNode(t *testing.T) {
	t.Log("Given the need to start a node on an empty block directory.")
	{
		t.Logf("\tTest 0:\tWhen constructing the state for the first time.")
		{
			params := testParams()
			st := newTestState(t, t.TempDir(), params)
			defer st.Shutdown()

			chain := st.RetrieveChain()
			if len(chain) != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould have a chain of exactly one block, got %d.", failed, len(chain))
			}
			t.Logf("\t%s\tTest 0:\tShould have a chain of exactly one block.", success)

			gBlock := chain[0]
			if gBlock.Header.Index != 0 || gBlock.Header.PrevHash != signature.ZeroHash {
				t.Errorf("\t%s\tTest 0:\tShould be at height 0 with previous hash %q.", failed, signature.ZeroHash)
			} else {
				t.Logf("\t%s\tTest 0:\tShould be at height 0 with previous hash %q.", success, signature.ZeroHash)
			}

			if gBlock.Header.Bits != params.Bits {
				t.Errorf("\t%s\tTest 0:\tShould carry the configured bits.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould carry the configured bits.", success)
			}

			if len(gBlock.Txs) != 1 || !gBlock.Txs[0].Coinbase {
				t.Fatalf("\t%s\tTest 0:\tShould hold a single coinbase transaction.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould hold a single coinbase transaction.", success)

			out := gBlock.Txs[0].Outputs[0]
			if out.Address != state.GenesisAddress || out.Amount != 0 {
				t.Errorf("\t%s\tTest 0:\tShould pay amount 0 to %q, got %d to %q.", failed, state.GenesisAddress, out.Amount, out.Address)
			} else {
				t.Logf("\t%s\tTest 0:\tShould pay amount 0 to %q.", success, state.GenesisAddress)
			}
		}
	}
}

func Test_SpendLifecycle(t *testing.T) {
	priv, pubKey, minerAddr := testKeys(t)

	t.Log("Given the need to mine, mature, spend, and confirm value.")
	{
		params := testParams()
		st := newTestState(t, t.TempDir(), params)
		defer st.Shutdown()

		t.Logf("\tTest 0:\tWhen mining the first block.")

		block1 := mineNext(t, st, minerAddr)

		coinbaseID := block1.Txs[0].ID
		outpoint := database.Outpoint{TxID: coinbaseID, Index: 0}

		owned := st.RetrieveUTXOsByAddress(minerAddr)
		if utxo, exists := owned[outpoint.Key()]; !exists || utxo.Amount != params.BlockSubsidy {
			t.Fatalf("\t%s\tTest 0:\tShould credit the miner with the subsidy.", failed)
		}
		t.Logf("\t%s\tTest 0:\tShould credit the miner with the subsidy.", success)

		t.Logf("\tTest 1:\tWhen spending a coinbase before it matures.")
		{
			spend := signedSpend(priv, pubKey, outpoint, []database.TxOutput{{Address: strings.Repeat("ab", 20), Amount: params.BlockSubsidy}})

			_, err := st.SubmitWalletTransaction(spend)
			if !errors.Is(err, state.ErrNotMature) {
				t.Fatalf("\t%s\tTest 1:\tShould reject with %q, got %v.", failed, state.ErrNotMature, err)
			}
			t.Logf("\t%s\tTest 1:\tShould reject with %q.", success, state.ErrNotMature)
		}

		// One more confirmation satisfies coinbaseMaturity = 2. It pays a
		// different address: a coinbase with identical outputs would share
		// the first one's id and replace its unspent entry at the new height.
		mineNext(t, st, strings.Repeat("ef", 20))

		t.Logf("\tTest 2:\tWhen spending a matured coinbase.")

		recipient := strings.Repeat("cd", 20)
		spend := signedSpend(priv, pubKey, outpoint, []database.TxOutput{
			{Address: recipient, Amount: 30},
			{Address: minerAddr, Amount: 19},
		})

		id, err := st.SubmitWalletTransaction(spend)
		if err != nil {
			t.Fatalf("\t%s\tTest 2:\tShould admit the spend: %v", failed, err)
		}
		t.Logf("\t%s\tTest 2:\tShould admit the spend.", success)

		if pool := st.RetrieveMempool(); len(pool) != 1 || pool[0].ID != id {
			t.Fatalf("\t%s\tTest 2:\tShould hold the spend in the mempool.", failed)
		}
		t.Logf("\t%s\tTest 2:\tShould hold the spend in the mempool.", success)

		// Resubmission is an idempotent success with the same id.
		if again, err := st.SubmitWalletTransaction(spend); err != nil || again != id {
			t.Errorf("\t%s\tTest 2:\tShould accept a duplicate submission idempotently.", failed)
		} else {
			t.Logf("\t%s\tTest 2:\tShould accept a duplicate submission idempotently.", success)
		}

		t.Logf("\tTest 3:\tWhen a second transaction spends the reserved outpoint.")
		{
			other := signedSpend(priv, pubKey, outpoint, []database.TxOutput{{Address: recipient, Amount: 49}})

			_, err := st.SubmitWalletTransaction(other)
			if !errors.Is(err, mempool.ErrDoubleSpend) {
				t.Fatalf("\t%s\tTest 3:\tShould reject with %q, got %v.", failed, mempool.ErrDoubleSpend, err)
			}
			t.Logf("\t%s\tTest 3:\tShould reject with %q.", success, mempool.ErrDoubleSpend)
		}

		t.Logf("\tTest 4:\tWhen gossip delivers the pooled transaction again.")
		{
			accepted, err := st.SubmitPeerTransaction(spend)
			if err != nil || accepted {
				t.Errorf("\t%s\tTest 4:\tShould be a no-op on repeat reception, got accepted %v err %v.", failed, accepted, err)
			} else {
				t.Logf("\t%s\tTest 4:\tShould be a no-op on repeat reception.", success)
			}
		}

		t.Logf("\tTest 5:\tWhen mining the block that confirms the spend.")

		block3 := mineNext(t, st, minerAddr)

		if len(block3.Txs) != 2 {
			t.Fatalf("\t%s\tTest 5:\tShould include the coinbase and the spend, got %d txs.", failed, len(block3.Txs))
		}
		t.Logf("\t%s\tTest 5:\tShould include the coinbase and the spend.", success)

		// 30 + 19 leaves a fee of 1 on top of the subsidy.
		if reward := block3.Txs[0].Outputs[0].Amount; reward != params.BlockSubsidy+1 {
			t.Errorf("\t%s\tTest 5:\tShould pay the miner subsidy plus fee, got %d.", failed, reward)
		} else {
			t.Logf("\t%s\tTest 5:\tShould pay the miner subsidy plus fee.", success)
		}

		if len(st.RetrieveMempool()) != 0 {
			t.Errorf("\t%s\tTest 5:\tShould leave the mempool empty.", failed)
		} else {
			t.Logf("\t%s\tTest 5:\tShould leave the mempool empty.", success)
		}

		if _, height, found := st.QueryTx(id); !found || height == nil || *height != block3.Header.Index {
			t.Errorf("\t%s\tTest 5:\tShould find the spend on chain at height %d.", failed, block3.Header.Index)
		} else {
			t.Logf("\t%s\tTest 5:\tShould find the spend on chain.", success)
		}

		if owned := st.RetrieveUTXOsByAddress(recipient); len(owned) != 1 {
			t.Errorf("\t%s\tTest 5:\tShould credit the recipient with one output.", failed)
		} else {
			t.Logf("\t%s\tTest 5:\tShould credit the recipient with one output.", success)
		}
	}
}

func Test_RebuildAndRestart(t *testing.T) {
	_, _, minerAddr := testKeys(t)

	t.Log("Given the need to keep the unspent set equal to the chain fold.")
	{
		dir := t.TempDir()
		params := testParams()
		st := newTestState(t, dir, params)

		for i := 0; i < 3; i++ {
			mineNext(t, st, minerAddr)
		}

		t.Logf("\tTest 0:\tWhen rebuilding the unspent set from the chain.")
		{
			live := st.RetrieveUTXOsByAddress(minerAddr)
			rebuilt := st.RebuildUTXO()

			for key, utxo := range live {
				if rebuilt[key] != utxo {
					t.Fatalf("\t%s\tTest 0:\tShould rebuild to the running unspent set.", failed)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould rebuild to the running unspent set.", success)
		}

		chainBefore := st.RetrieveChain()
		utxosBefore := st.RetrieveUTXOsByAddress(minerAddr)
		st.Shutdown()

		t.Logf("\tTest 1:\tWhen restarting the node over the same directory.")
		{
			st2 := newTestState(t, dir, params)
			defer st2.Shutdown()

			if !reflect.DeepEqual(st2.RetrieveChain(), chainBefore) {
				t.Errorf("\t%s\tTest 1:\tShould replay to an identical chain.", failed)
			} else {
				t.Logf("\t%s\tTest 1:\tShould replay to an identical chain.", success)
			}

			if !reflect.DeepEqual(st2.RetrieveUTXOsByAddress(minerAddr), utxosBefore) {
				t.Errorf("\t%s\tTest 1:\tShould replay to an identical unspent set.", failed)
			} else {
				t.Logf("\t%s\tTest 1:\tShould replay to an identical unspent set.", success)
			}
		}
	}
}

func Test_Retarget(t *testing.T) {
	_, _, minerAddr := testKeys(t)

	t.Log("Given the need to retarget difficulty from observed block times.")
	{
		t.Logf("\tTest 0:\tWhen a window of blocks arrives four times too fast.")
		{
			params := testParams()
			params.AdjustEvery = 2
			params.TargetBlockTimeSec = 10

			dir := t.TempDir()
			st := newTestState(t, dir, params)
			defer st.Shutdown()

			oldBits := params.Bits

			// Hand-build the two blocks so the window spans exactly 5
			// seconds against the 20 expected: ratio 4, no clamping.
			tip, _ := st.RetrieveLatestBlock()
			block1 := solve(t, manualBlock(tip, 1, 1_000, minerAddr, params))
			if _, err := st.ProcessSubmittedBlock(block1); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould accept block 1: %v", failed, err)
			}

			block2 := solve(t, manualBlock(block1, 2, 5_000, minerAddr, params))
			if _, err := st.ProcessSubmittedBlock(block2); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould accept block 2: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould accept the window of blocks.", success)

			newBits := st.RetrieveGenesis().Bits
			if newBits == oldBits {
				t.Fatalf("\t%s\tTest 0:\tShould have produced new bits.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould have produced new bits.", success)

			// new target * 4 must match the old target within the one
			// byte of precision the compact encoding keeps.
			oldTarget := target.ToBig(oldBits)
			scaled := new(big.Int).Mul(target.ToBig(newBits), big.NewInt(4))

			if scaled.Cmp(oldTarget) > 0 {
				t.Errorf("\t%s\tTest 0:\tShould never retarget above the old target over 4.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould never retarget above the old target over 4.", success)
			}

			loss := new(big.Int).Sub(oldTarget, scaled)
			bound := new(big.Int).Rsh(oldTarget, 16)
			if loss.Cmp(bound) > 0 {
				t.Errorf("\t%s\tTest 0:\tShould quarter the target within encoding precision, off by %s.", failed, loss)
			} else {
				t.Logf("\t%s\tTest 0:\tShould quarter the target within encoding precision.", success)
			}

			// The retargeted bits survive a restart via the parameters file.
			reloaded, err := genesis.Load(filepath.Join(dir, "genesis.json"))
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to reload the parameters: %v", failed, err)
			}
			if reloaded.Bits != newBits {
				t.Errorf("\t%s\tTest 0:\tShould persist the new bits, got %08x.", failed, reloaded.Bits)
			} else {
				t.Logf("\t%s\tTest 0:\tShould persist the new bits.", success)
			}
		}
	}
}

// =============================================================================

// signedSpend builds a spend of the outpoint where every input signs the
// shared signing preimage.
func signedSpend(priv *secp256k1.PrivateKey, pubKey string, op database.Outpoint, outputs []database.TxOutput) database.Tx {
	tx := database.Tx{
		Inputs:  []database.TxInput{{TxID: op.TxID, Index: op.Index, PubKey: pubKey}},
		Outputs: outputs,
	}

	sig := signature.Sign(priv, tx.SigHash())
	for i := range tx.Inputs {
		tx.Inputs[i].Sig = sig
	}

	return tx.WithID()
}

// manualBlock builds a solvable block with a controlled timestamp.
func manualBlock(prev database.Block, index uint64, ts int64, minerAddr string, params genesis.Genesis) database.Block {
	coinbase := database.Tx{
		Coinbase: true,
		Inputs:   []database.TxInput{},
		Outputs:  []database.TxOutput{{Address: minerAddr, Amount: params.Subsidy(index)}},
	}.WithID()

	return database.Block{
		Header: database.BlockHeader{
			Index:      index,
			PrevHash:   prev.Hash(),
			TimeStamp:  ts,
			MerkleRoot: merkle.RootHex([]string{coinbase.ID}),
			Nonce:      0,
			Bits:       params.Bits,
		},
		Txs: []database.Tx{coinbase},
	}
}
