package database_test

import (
	"reflect"
	"testing"

	"github.com/minichain/minichain/foundation/blockchain/database"
	"github.com/minichain/minichain/foundation/blockchain/database/storage"
	"github.com/minichain/minichain/foundation/blockchain/merkle"
	"github.com/minichain/minichain/foundation/blockchain/signature"
)

func nopEv(v string, args ...any) {}

// makeBlock links a new block with one coinbase onto the previous one.
func makeBlock(t *testing.T, prev *database.Block, index uint64, address string) database.Block {
	t.Helper()

	coinbase := database.Tx{
		Coinbase: true,
		Inputs:   []database.TxInput{},
		Outputs:  []database.TxOutput{{Address: address, Amount: 50}},
	}.WithID()

	prevHash := signature.ZeroHash
	if prev != nil {
		prevHash = prev.Hash()
	}

	return database.Block{
		Header: database.BlockHeader{
			Index:      index,
			PrevHash:   prevHash,
			TimeStamp:  int64(1000 * index),
			MerkleRoot: merkle.RootHex([]string{coinbase.ID}),
			Bits:       0x207fffff,
		},
		Txs: []database.Tx{coinbase},
	}
}

func Test_PersistReplay(t *testing.T) {
	t.Log("Given the need to replay the block store on restart.")
	{
		t.Logf("\tTest 0:\tWhen writing blocks and reopening the database.")
		{
			dir := t.TempDir()

			disk, err := storage.NewDisk(dir)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to open storage: %v", failed, err)
			}

			db, err := database.New(disk, nopEv)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to open an empty database: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to open an empty database.", success)

			genesis := makeBlock(t, nil, 0, "aabbccddeeff00112233445566778899aabbccdd")
			if err := db.Write(genesis); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to write the genesis block: %v", failed, err)
			}

			next := makeBlock(t, &genesis, 1, "1122334455667788990011223344556677889900")
			if err := db.Write(next); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to write the next block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to write blocks.", success)

			liveUTXO := db.CopyUTXOSet()
			liveChain := db.CopyChain()

			// A second database over the same directory must land on a
			// bit-identical chain and unspent output set.
			disk2, err := storage.NewDisk(dir)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to reopen storage: %v", failed, err)
			}

			db2, err := database.New(disk2, nopEv)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to replay the block store: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to replay the block store.", success)

			if !reflect.DeepEqual(db2.CopyChain(), liveChain) {
				t.Errorf("\t%s\tTest 0:\tShould replay to an identical chain.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould replay to an identical chain.", success)
			}

			if !reflect.DeepEqual(db2.CopyUTXOSet(), liveUTXO) {
				t.Errorf("\t%s\tTest 0:\tShould replay to an identical unspent set.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould replay to an identical unspent set.", success)
			}

			if !reflect.DeepEqual(db2.RebuildUTXO(), liveUTXO) {
				t.Errorf("\t%s\tTest 0:\tShould rebuild to the running unspent set.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould rebuild to the running unspent set.", success)
			}
		}

		t.Logf("\tTest 1:\tWhen the block store has a broken link.")
		{
			dir := t.TempDir()

			disk, err := storage.NewDisk(dir)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to open storage: %v", failed, err)
			}

			genesis := makeBlock(t, nil, 0, "aabbccddeeff00112233445566778899aabbccdd")
			if err := disk.Write(genesis); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to write the genesis block: %v", failed, err)
			}

			// Height 1 that does not reference the genesis hash.
			orphan := makeBlock(t, nil, 1, "1122334455667788990011223344556677889900")
			if err := disk.Write(orphan); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to write the orphan block: %v", failed, err)
			}

			if _, err := database.New(disk, nopEv); err == nil {
				t.Errorf("\t%s\tTest 1:\tShould refuse to load a discontiguous chain.", failed)
			} else {
				t.Logf("\t%s\tTest 1:\tShould refuse to load a discontiguous chain.", success)
			}
		}
	}
}
