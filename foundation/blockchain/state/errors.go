package state

import "errors"

// Validation failures surfaced verbatim to submitters. The exact text is
// part of the API contract miners and wallets match on.
var (
	ErrNotMature       = errors.New("coinbase not mature")
	ErrUnknownUTXO     = errors.New("unknown utxo")
	ErrBadSignature    = errors.New("invalid signature")
	ErrAddressMismatch = errors.New("pubkey does not match utxo address")
	ErrNegativeFee     = errors.New("outputs exceed inputs")
	ErrNotTip          = errors.New("block does not extend current tip")
	ErrNoTip           = errors.New("chain is empty")
)
