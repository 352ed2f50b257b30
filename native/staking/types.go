package staking

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Pool captures the global accounting state for one staking pool. Amount
// values are denominated in the asset's smallest unit and expressed as big
// integers to match on-chain precision.
type Pool struct {
	// AprBps is the fixed annual reward rate in basis points. Zero marks
	// the pool disabled for new deposits while existing positions remain
	// free to withdraw or harvest.
	AprBps uint64
	// TotalDeposit is the sum of all active positions' deposit amounts.
	TotalDeposit *big.Int
	// LockPeriod is the number of seconds a deposit must age before the
	// early-withdrawal fee is waived.
	LockPeriod uint64
	// AccIndex is the cumulative APR-times-time accumulator in
	// basis-point-second units. It only ever advances.
	AccIndex *big.Int
	// LastUpdate records the unix timestamp of the last accumulator
	// refresh. Never ahead of the current instant.
	LastUpdate uint64
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := &Pool{
		AprBps:     p.AprBps,
		LockPeriod: p.LockPeriod,
		LastUpdate: p.LastUpdate,
	}
	if p.TotalDeposit != nil {
		clone.TotalDeposit = new(big.Int).Set(p.TotalDeposit)
	}
	if p.AccIndex != nil {
		clone.AccIndex = new(big.Int).Set(p.AccIndex)
	}
	return clone
}

// EnsureDefaults populates nil big.Int fields so codec handling is safe.
func (p *Pool) EnsureDefaults() {
	if p.TotalDeposit == nil {
		p.TotalDeposit = big.NewInt(0)
	}
	if p.AccIndex == nil {
		p.AccIndex = big.NewInt(0)
	}
}

// LockBoundary derives the instant at which the position created or topped
// up at lastDeposit clears the pool's lock.
func (p *Pool) LockBoundary(lastDeposit uint64) uint64 {
	return lastDeposit + p.LockPeriod
}

// Position maintains the staking ledger for an individual participant within
// a single pool. Created lazily on first deposit.
type Position struct {
	// Address is the participant's account identifier.
	Address common.Address
	// DepositAmount is the currently staked amount. Zero means no active
	// position.
	DepositAmount *big.Int
	// RewardDebt is the portion of AccIndex times DepositAmount already
	// settled (paid or locked), in accumulator-scaled units. It prevents
	// re-paying reward accrued before the current deposit size applied.
	RewardDebt *big.Int
	// RewardLockedUp holds reward computed as owed but deferred because
	// the position has not cleared its lock boundary.
	RewardLockedUp *big.Int
	// LastInteraction is the unix timestamp of the most recent settlement
	// touching this position.
	LastInteraction uint64
	// LastDeposit is the unix timestamp of the most recent deposit. Every
	// deposit restarts the lock clock for the entire position.
	LastDeposit uint64
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := &Position{
		Address:         p.Address,
		LastInteraction: p.LastInteraction,
		LastDeposit:     p.LastDeposit,
	}
	if p.DepositAmount != nil {
		clone.DepositAmount = new(big.Int).Set(p.DepositAmount)
	}
	if p.RewardDebt != nil {
		clone.RewardDebt = new(big.Int).Set(p.RewardDebt)
	}
	if p.RewardLockedUp != nil {
		clone.RewardLockedUp = new(big.Int).Set(p.RewardLockedUp)
	}
	return clone
}

// EnsureDefaults populates nil big.Int fields so codec handling is safe.
func (p *Position) EnsureDefaults() {
	if p.DepositAmount == nil {
		p.DepositAmount = big.NewInt(0)
	}
	if p.RewardDebt == nil {
		p.RewardDebt = big.NewInt(0)
	}
	if p.RewardLockedUp == nil {
		p.RewardLockedUp = big.NewInt(0)
	}
}

// FeeParams groups the operator-controlled withdrawal fee settings.
type FeeParams struct {
	// EarlyWithdrawFee is the percentage of principal charged when a
	// position exits before its lock boundary. Percent units over FeeBase.
	EarlyWithdrawFee uint64
	// MarketingAddress receives early-withdrawal penalties. Penalties are
	// never returned to the reward reserve.
	MarketingAddress common.Address
}

// Clone returns a copy of the fee parameters.
func (f *FeeParams) Clone() *FeeParams {
	if f == nil {
		return nil
	}
	clone := *f
	return &clone
}

// Clock supplies the non-decreasing current instant consumed by settlement.
type Clock interface {
	Now() uint64
}

// SystemClock reads the wall clock in unix seconds.
type SystemClock struct{}

func (SystemClock) Now() uint64 { return uint64(nowUnix()) }
