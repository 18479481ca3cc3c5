// Package target implements the compact "bits" representation of the
// 256 bit proof-of-work target and the comparisons against it.
//
// The compact form packs a big number into an unsigned 32 bit word:
//
//	-------------------------------------------------
//	|   Exponent     |    Sign    |    Mantissa     |
//	-------------------------------------------------
//	| 8 bits [31-24] | 1 bit [23] | 23 bits [22-00] |
//	-------------------------------------------------
//
// N = mantissa * 256^(exponent-3). Targets are unsigned, so the sign bit is
// clear whenever FromBig encodes a non-negative number; FromBig sets it only
// for a negative input, and ToBig honours it when decoding.
package target

import (
	"math/big"
	"strings"
)

// oneLsh256 is 1 shifted left 256 bits. It is defined here to avoid
// the overhead of creating it multiple times.
var oneLsh256 = new(big.Int).Lsh(big.NewInt(1), 256)

// ToBig converts the compact representation to the unsigned 256 bit
// target it describes.
func ToBig(bits uint32) *big.Int {

	// Extract the mantissa, sign bit, and exponent.
	mantissa := bits & 0x007fffff
	isNegative := bits&0x00800000 != 0
	exponent := uint(bits >> 24)

	// Since the base for the exponent is 256, the exponent can be treated
	// as the number of bytes to represent the full number. So, treat the
	// exponent as the number of bytes and shift the mantissa accordingly.
	var bn *big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		bn = big.NewInt(int64(mantissa))
	} else {
		bn = big.NewInt(int64(mantissa))
		bn.Lsh(bn, 8*(exponent-3))
	}

	// The sign bit never appears in a target this node encodes, but a
	// peer could hand us one.
	if isNegative {
		bn = bn.Neg(bn)
	}

	return bn
}

// FromBig converts the number to its compact representation. The compact
// form only carries 23 bits of precision, so values larger than (2^23 - 1)
// only encode the most significant digits of the number.
func FromBig(n *big.Int) uint32 {

	// No need to do any work if it's zero.
	if n.Sign() == 0 {
		return 0
	}

	// Since the base for the exponent is 256, the exponent can be treated
	// as the number of bytes. So, shift the number right or left
	// accordingly. This is equivalent to: mantissa = n / 256^(exponent-3)
	var mantissa uint32
	exponent := uint(len(n.Bytes()))
	if exponent <= 3 {
		mantissa = uint32(n.Bits()[0])
		mantissa <<= 8 * (3 - exponent)
	} else {
		// Use a copy to avoid modifying the caller's original number.
		tn := new(big.Int).Set(n)
		mantissa = uint32(tn.Rsh(tn, 8*(exponent-3)).Bits()[0])
	}

	// When the mantissa already has the sign bit set, the number is too
	// large to fit into the available 23 bits, so divide the number by
	// 256 and increment the exponent accordingly.
	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	compact := uint32(exponent<<24) | mantissa
	if n.Sign() < 0 {
		compact |= 0x00800000
	}

	return compact
}

// HashMeets reports whether the hex encoded block hash, interpreted as an
// unsigned 256 bit integer, does not exceed the target the bits describe.
func HashMeets(hashHex string, bits uint32) bool {
	hashInt, ok := new(big.Int).SetString(strings.TrimPrefix(hashHex, "0x"), 16)
	if !ok {
		return false
	}

	return hashInt.Cmp(ToBig(bits)) <= 0
}

// MaxTarget returns the largest target expressible in 256 bits. It bounds
// what the retargeter may produce.
func MaxTarget() *big.Int {
	return new(big.Int).Sub(oneLsh256, big.NewInt(1))
}
