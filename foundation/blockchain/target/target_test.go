package target_test

import (
	"math/big"
	"strings"
	"testing"

	"github.com/minichain/minichain/foundation/blockchain/target"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_RoundTrip(t *testing.T) {
	tt := []struct {
		name string
		bits uint32
	}{
		{name: "mainnet-limit", bits: 0x1d00ffff},
		{name: "testbed-easy", bits: 0x207fffff},
		{name: "regtest-start", bits: 0x1f00ffff},
		{name: "small-exponent", bits: 0x02123400},
		{name: "tiny", bits: 0x01120000},
	}

	t.Log("Given the need to round trip compact bits through a target.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling bits %08x.", testID, tst.bits)
			{
				trg := target.ToBig(tst.bits)
				back := target.FromBig(trg)

				if back != tst.bits {
					t.Errorf("\t%s\tTest %d:\tShould re-encode to the same bits, got %08x.", failed, testID, back)
				} else {
					t.Logf("\t%s\tTest %d:\tShould re-encode to the same bits.", success, testID)
				}
			}
		}
	}
}

func Test_EncodingLoss(t *testing.T) {
	t.Log("Given the need to bound the precision loss of encoding.")
	{
		t.Logf("\tTest 0:\tWhen encoding a target with more than 23 significant bits.")
		{
			trg, ok := new(big.Int).SetString("123456789abcdef0123456789abcdef0", 16)
			if !ok {
				t.Fatalf("\t%s\tTest 0:\tShould be able to parse the test constant.", failed)
			}

			encoded := target.ToBig(target.FromBig(trg))

			if encoded.Cmp(trg) > 0 {
				t.Errorf("\t%s\tTest 0:\tShould never round the target up.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould never round the target up.", success)
			}

			// The loss is confined below the top three bytes of the value.
			loss := new(big.Int).Sub(trg, encoded)
			bound := new(big.Int).Lsh(big.NewInt(1), uint(len(trg.Bytes())-3)*8)
			if loss.Cmp(bound) >= 0 {
				t.Errorf("\t%s\tTest 0:\tShould lose less than the mantissa precision, lost %s.", failed, loss)
			} else {
				t.Logf("\t%s\tTest 0:\tShould lose less than the mantissa precision.", success)
			}
		}
	}
}

func Test_HashMeets(t *testing.T) {
	t.Log("Given the need to compare block hashes against the target.")
	{
		t.Logf("\tTest 0:\tWhen handling hashes around the threshold.")
		{
			const bits = 0x1f00ffff
			trg := target.ToBig(bits)

			exact := strings.ToLower(trg.Text(16))
			if !target.HashMeets(exact, bits) {
				t.Errorf("\t%s\tTest 0:\tShould accept a hash equal to the target.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould accept a hash equal to the target.", success)
			}

			over := new(big.Int).Add(trg, big.NewInt(1))
			if target.HashMeets(over.Text(16), bits) {
				t.Errorf("\t%s\tTest 0:\tShould reject a hash above the target.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould reject a hash above the target.", success)
			}

			if !target.HashMeets("0", bits) {
				t.Errorf("\t%s\tTest 0:\tShould accept the zero hash.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould accept the zero hash.", success)
			}
		}

		t.Logf("\tTest 1:\tWhen handling a malformed hash.")
		{
			if target.HashMeets("not-hex", 0x1f00ffff) {
				t.Errorf("\t%s\tTest 1:\tShould reject a non hex hash.", failed)
			} else {
				t.Logf("\t%s\tTest 1:\tShould reject a non hex hash.", success)
			}
		}
	}
}
