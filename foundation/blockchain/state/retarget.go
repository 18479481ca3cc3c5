package state

import (
	"math/big"

	"github.com/minichain/minichain/foundation/blockchain/target"
)

// retarget adjusts the compact difficulty bits after a block is accepted.
// Every adjustEvery blocks the observed time for the window is compared to
// the expected time and the target scaled by the inverse ratio, entirely in
// big integer arithmetic. The ratio is clamped to [0.25, 4.0] per window
// and the resulting target is never allowed to reach zero. The caller must
// hold the state lock.
func (s *State) retarget() error {
	tip, exists := s.db.LatestBlock()
	if !exists {
		return nil
	}

	height := tip.Header.Index
	if height == 0 || s.genesis.AdjustEvery == 0 || height%s.genesis.AdjustEvery != 0 {
		return nil
	}

	windowStart, err := s.db.GetBlock(height - s.genesis.AdjustEvery)
	if err != nil {
		return err
	}

	actualSec := (tip.Header.TimeStamp - windowStart.Header.TimeStamp) / 1000
	if actualSec < 1 {
		actualSec = 1
	}

	expectedSec := int64(s.genesis.AdjustEvery * s.genesis.TargetBlockTimeSec)

	// ratio = expected/actual clamped to [0.25, 4.0]. Clamping the
	// observed seconds to [expected/4, expected*4] is the same bound and
	// keeps everything integral.
	clampedSec := actualSec
	if clampedSec < expectedSec/4 {
		clampedSec = expectedSec / 4
	}
	if clampedSec > expectedSec*4 {
		clampedSec = expectedSec * 4
	}

	// newTarget = oldTarget * actual / expected: the target grows when
	// blocks arrive too slowly and shrinks when they arrive too fast.
	oldTarget := target.ToBig(s.genesis.Bits)
	newTarget := new(big.Int).Mul(oldTarget, big.NewInt(clampedSec))
	newTarget.Div(newTarget, big.NewInt(expectedSec))

	if newTarget.Sign() <= 0 {
		newTarget.SetInt64(1)
	}
	if max := target.MaxTarget(); newTarget.Cmp(max) > 0 {
		newTarget.Set(max)
	}

	newBits := target.FromBig(newTarget)
	if newBits == s.genesis.Bits {
		return nil
	}

	s.evHandler("state: retarget: blk[%d] window[%ds] expected[%ds] bits[%08x -> %08x]", height, actualSec, expectedSec, s.genesis.Bits, newBits)

	s.genesis.Bits = newBits

	// The new bits are part of chain state; they must survive a restart
	// together with the block that triggered them.
	return s.genesis.Save(s.paramsPath)
}
