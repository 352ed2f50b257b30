package staking

import (
	"math/big"
	"time"
)

const (
	// basisPointsFull is the denominator for APR basis points.
	basisPointsFull = 10_000
	// secondsPerYear anchors the annual rate to accumulator seconds.
	secondsPerYear = 31_536_000
	// FeeBase is the denominator for the early-withdrawal fee percentage.
	FeeBase = 100
	// MaxEarlyWithdrawFee caps the early-withdrawal fee at 20%.
	MaxEarlyWithdrawFee = 20
	// MaxLockDays bounds the configurable withdraw lock period.
	MaxLockDays = 365
	// DefaultEarlyWithdrawFee is applied until the operator overrides it.
	DefaultEarlyWithdrawFee = 10

	secondsPerDay = 24 * 60 * 60
)

// rewardScale converts accumulator products (basis-point-seconds times
// deposit) back into asset units. All divisions through it are exact floor
// divisions: rounding up anywhere would let a position overdraw its
// time-weighted entitlement.
var rewardScale = new(big.Int).Mul(
	big.NewInt(basisPointsFull),
	big.NewInt(secondsPerYear),
)

func nowUnix() int64 { return time.Now().Unix() }

// indexDelta computes the accumulator advance for elapsed seconds at the
// given basis-point rate.
func indexDelta(elapsed, aprBps uint64) *big.Int {
	if elapsed == 0 || aprBps == 0 {
		return big.NewInt(0)
	}
	delta := new(big.Int).SetUint64(elapsed)
	return delta.Mul(delta, new(big.Int).SetUint64(aprBps))
}

// scaledEntitlement is the accumulator-scaled reward owed to a deposit of the
// given size at the given index, before subtracting reward debt.
func scaledEntitlement(accIndex, deposit *big.Int) *big.Int {
	if accIndex == nil || deposit == nil || deposit.Sign() == 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(accIndex, deposit)
}

// pendingReward derives the unscaled pending reward for a position. The
// subtraction never underflows when callers settle reward debt before every
// resize; a negative intermediate is clamped to zero and indicates a logic
// defect upstream, not a recoverable condition.
func pendingReward(accIndex, deposit, rewardDebt *big.Int) *big.Int {
	if deposit == nil || deposit.Sign() == 0 {
		return big.NewInt(0)
	}
	owed := scaledEntitlement(accIndex, deposit)
	if rewardDebt != nil {
		owed.Sub(owed, rewardDebt)
	}
	if owed.Sign() <= 0 {
		return big.NewInt(0)
	}
	return owed.Quo(owed, rewardScale)
}

// earlyWithdrawPenalty computes the fee withheld from principal when a
// position exits before its lock boundary.
func earlyWithdrawPenalty(amount *big.Int, feePct uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || feePct == 0 {
		return big.NewInt(0)
	}
	penalty := new(big.Int).Mul(amount, new(big.Int).SetUint64(feePct))
	return penalty.Quo(penalty, big.NewInt(FeeBase))
}

// minBig returns the smaller of two non-nil big integers.
func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}
