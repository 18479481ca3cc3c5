// Package merkle computes the merkle root over the ordered list of
// transaction ids carried by a block.
package merkle

import (
	"github.com/minichain/minichain/foundation/blockchain/signature"
)

// RootHex iterates pairwise sha256 over the transaction ids until a single
// digest remains. A layer with an odd number of nodes duplicates its last
// element before pairing. An empty list hashes to sha256 of nothing, and a
// single id is its own root.
func RootHex(ids []string) string {
	if len(ids) == 0 {
		return signature.Hash(nil)
	}

	layer := make([]string, len(ids))
	copy(layer, ids)

	for len(layer) > 1 {
		if len(layer)%2 == 1 {
			layer = append(layer, layer[len(layer)-1])
		}

		next := make([]string, 0, len(layer)/2)
		for i := 0; i < len(layer); i += 2 {
			next = append(next, signature.Hash([]byte(layer[i]+layer[i+1])))
		}
		layer = next
	}

	return layer[0]
}
