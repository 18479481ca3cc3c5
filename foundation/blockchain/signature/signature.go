// Package signature provides helper functions for handling the blockchain
// hashing and signature needs.
package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/ripemd160"
)

// ZeroHash represents the previous hash value carried by the genesis block.
const ZeroHash = "0"

// Hash returns the hex encoded sha256 digest of the data.
func Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Digest returns the raw 32 byte sha256 digest of the data.
func Digest(data []byte) []byte {
	hash := sha256.Sum256(data)
	return hash[:]
}

// Ripemd160 returns the 20 byte ripemd-160 digest of the data.
func Ripemd160(data []byte) []byte {
	h := ripemd160.New()
	h.Write(data)
	return h.Sum(nil)
}

// Address derives the account address for a hex encoded compressed secp256k1
// public key: hex(ripemd160(sha256(pubKey))). The result is always 40
// lowercase hex characters.
func Address(pubKeyHex string) (string, error) {
	pubKeyBytes, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return "", fmt.Errorf("decoding public key: %w", err)
	}

	// Reject anything that is not a valid point on the curve. Address
	// derivation must never succeed for garbage key material.
	if _, err := secp256k1.ParsePubKey(pubKeyBytes); err != nil {
		return "", fmt.Errorf("parsing public key: %w", err)
	}

	return hex.EncodeToString(Ripemd160(Digest(pubKeyBytes))), nil
}

// Verify reports whether the DER encoded ECDSA signature is valid for the
// 32 byte digest under the hex encoded compressed public key. Any decoding
// failure is treated as an invalid signature, never a fault.
func Verify(pubKeyHex string, digest []byte, sigHex string) bool {
	pubKeyBytes, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return false
	}

	pubKey, err := secp256k1.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false
	}

	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}

	sig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		return false
	}

	return sig.Verify(digest, pubKey)
}

// Sign produces a hex encoded DER signature over the 32 byte digest. Wallets
// normally do this on their own; the function exists for tooling and tests.
func Sign(privKey *secp256k1.PrivateKey, digest []byte) string {
	sig := ecdsa.Sign(privKey, digest)
	return hex.EncodeToString(sig.Serialize())
}
