package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"stakevault/core/types"
)

const (
	// TypeStakePoolCreated captures a new pool entering the table.
	TypeStakePoolCreated = "stake.poolCreated"
	// TypeStakePoolUpdated captures operator changes to a pool's APR or lock.
	TypeStakePoolUpdated = "stake.poolUpdated"
	// TypeStakeDeposited captures principal entering a position.
	TypeStakeDeposited = "stake.deposited"
	// TypeStakeWithdrawn captures a position closing, with any penalty.
	TypeStakeWithdrawn = "stake.withdrawn"
	// TypeStakeRewardPaid is emitted when settlement pays reward out.
	TypeStakeRewardPaid = "stake.rewardPaid"
	// TypeStakeRewardLocked is emitted when settlement defers reward behind
	// the lock boundary.
	TypeStakeRewardLocked = "stake.rewardLocked"
	// TypeStakeReserveFunded captures reward reserve top-ups.
	TypeStakeReserveFunded = "stake.reserveFunded"
	// TypeStakeTreasureRecovered captures the operator draining the reserve.
	TypeStakeTreasureRecovered = "stake.treasureRecovered"
	// TypeStakeFeeUpdated captures early-withdrawal fee changes.
	TypeStakeFeeUpdated = "stake.feeUpdated"
	// TypeStakeMarketingUpdated captures marketing address rotations.
	TypeStakeMarketingUpdated = "stake.marketingUpdated"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }

// StakePoolCreated captures the parameters of a freshly added pool.
type StakePoolCreated struct {
	PoolID     uint64
	AprBps     uint64
	LockPeriod uint64
}

// EventType satisfies the Event interface.
func (StakePoolCreated) EventType() string { return TypeStakePoolCreated }

// Event converts the structured payload into a broadcastable event.
func (e StakePoolCreated) Event() *types.Event {
	return &types.Event{Type: TypeStakePoolCreated, Attributes: map[string]string{
		"poolId":     formatUint(e.PoolID),
		"aprBps":     formatUint(e.AprBps),
		"lockPeriod": formatUint(e.LockPeriod),
	}}
}

// StakePoolUpdated captures an operator edit to pool parameters.
type StakePoolUpdated struct {
	PoolID     uint64
	AprBps     uint64
	LockPeriod uint64
	AccIndex   *big.Int
}

// EventType satisfies the Event interface.
func (StakePoolUpdated) EventType() string { return TypeStakePoolUpdated }

// Event converts the structured payload into a broadcastable event.
func (e StakePoolUpdated) Event() *types.Event {
	attrs := map[string]string{
		"poolId":     formatUint(e.PoolID),
		"aprBps":     formatUint(e.AprBps),
		"lockPeriod": formatUint(e.LockPeriod),
	}
	if e.AccIndex != nil {
		attrs["accIndex"] = e.AccIndex.String()
	}
	return &types.Event{Type: TypeStakePoolUpdated, Attributes: attrs}
}

// StakeDeposited captures principal entering a position.
type StakeDeposited struct {
	PoolID       uint64
	Account      common.Address
	Amount       *big.Int
	TotalDeposit *big.Int
	LockedUntil  uint64
}

// EventType satisfies the Event interface.
func (StakeDeposited) EventType() string { return TypeStakeDeposited }

// Event converts the structured payload into a broadcastable event.
func (e StakeDeposited) Event() *types.Event {
	attrs := map[string]string{
		"poolId": formatUint(e.PoolID),
		"addr":   e.Account.Hex(),
		"amount": formatAmount(e.Amount),
	}
	if e.TotalDeposit != nil {
		attrs["totalDeposit"] = e.TotalDeposit.String()
	}
	if e.LockedUntil > 0 {
		attrs["lockedUntil"] = formatUint(e.LockedUntil)
	}
	return &types.Event{Type: TypeStakeDeposited, Attributes: attrs}
}

// StakeWithdrawn captures a position closing with its payout breakdown.
type StakeWithdrawn struct {
	PoolID  uint64
	Account common.Address
	Amount  *big.Int
	Penalty *big.Int
	Early   bool
}

// EventType satisfies the Event interface.
func (StakeWithdrawn) EventType() string { return TypeStakeWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e StakeWithdrawn) Event() *types.Event {
	attrs := map[string]string{
		"poolId": formatUint(e.PoolID),
		"addr":   e.Account.Hex(),
		"amount": formatAmount(e.Amount),
		"early":  strconv.FormatBool(e.Early),
	}
	if e.Penalty != nil && e.Penalty.Sign() > 0 {
		attrs["penalty"] = e.Penalty.String()
	}
	return &types.Event{Type: TypeStakeWithdrawn, Attributes: attrs}
}

// StakeRewardPaid captures reward leaving the reserve for a participant.
type StakeRewardPaid struct {
	PoolID    uint64
	Account   common.Address
	Amount    *big.Int
	Shortfall *big.Int
}

// EventType satisfies the Event interface.
func (StakeRewardPaid) EventType() string { return TypeStakeRewardPaid }

// Event converts the structured payload into a broadcastable event.
func (e StakeRewardPaid) Event() *types.Event {
	attrs := map[string]string{
		"poolId": formatUint(e.PoolID),
		"addr":   e.Account.Hex(),
		"amount": formatAmount(e.Amount),
	}
	if e.Shortfall != nil && e.Shortfall.Sign() > 0 {
		attrs["shortfall"] = e.Shortfall.String()
	}
	return &types.Event{Type: TypeStakeRewardPaid, Attributes: attrs}
}

// StakeRewardLocked captures reward deferred behind the lock boundary.
type StakeRewardLocked struct {
	PoolID      uint64
	Account     common.Address
	Amount      *big.Int
	TotalLocked *big.Int
	UnlockAt    uint64
}

// EventType satisfies the Event interface.
func (StakeRewardLocked) EventType() string { return TypeStakeRewardLocked }

// Event converts the structured payload into a broadcastable event.
func (e StakeRewardLocked) Event() *types.Event {
	attrs := map[string]string{
		"poolId": formatUint(e.PoolID),
		"addr":   e.Account.Hex(),
		"amount": formatAmount(e.Amount),
	}
	if e.TotalLocked != nil {
		attrs["totalLocked"] = e.TotalLocked.String()
	}
	if e.UnlockAt > 0 {
		attrs["unlockAt"] = formatUint(e.UnlockAt)
	}
	return &types.Event{Type: TypeStakeRewardLocked, Attributes: attrs}
}

// StakeReserveFunded captures a reward reserve top-up.
type StakeReserveFunded struct {
	From       common.Address
	Amount     *big.Int
	NewReserve *big.Int
}

// EventType satisfies the Event interface.
func (StakeReserveFunded) EventType() string { return TypeStakeReserveFunded }

// Event converts the structured payload into a broadcastable event.
func (e StakeReserveFunded) Event() *types.Event {
	attrs := map[string]string{
		"from":   e.From.Hex(),
		"amount": formatAmount(e.Amount),
	}
	if e.NewReserve != nil {
		attrs["newReserve"] = e.NewReserve.String()
	}
	return &types.Event{Type: TypeStakeReserveFunded, Attributes: attrs}
}

// StakeTreasureRecovered captures the operator escape hatch draining the
// reserve.
type StakeTreasureRecovered struct {
	To     common.Address
	Amount *big.Int
}

// EventType satisfies the Event interface.
func (StakeTreasureRecovered) EventType() string { return TypeStakeTreasureRecovered }

// Event converts the structured payload into a broadcastable event.
func (e StakeTreasureRecovered) Event() *types.Event {
	return &types.Event{Type: TypeStakeTreasureRecovered, Attributes: map[string]string{
		"to":     e.To.Hex(),
		"amount": formatAmount(e.Amount),
	}}
}

// StakeFeeUpdated captures an early-withdrawal fee change.
type StakeFeeUpdated struct {
	FeePct uint64
}

// EventType satisfies the Event interface.
func (StakeFeeUpdated) EventType() string { return TypeStakeFeeUpdated }

// Event converts the structured payload into a broadcastable event.
func (e StakeFeeUpdated) Event() *types.Event {
	return &types.Event{Type: TypeStakeFeeUpdated, Attributes: map[string]string{
		"feePct": formatUint(e.FeePct),
	}}
}

// StakeMarketingUpdated captures a marketing address rotation.
type StakeMarketingUpdated struct {
	Address common.Address
}

// EventType satisfies the Event interface.
func (StakeMarketingUpdated) EventType() string { return TypeStakeMarketingUpdated }

// Event converts the structured payload into a broadcastable event.
func (e StakeMarketingUpdated) Event() *types.Event {
	return &types.Event{Type: TypeStakeMarketingUpdated, Attributes: map[string]string{
		"addr": e.Address.Hex(),
	}}
}
