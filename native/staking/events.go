package staking

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"stakevault/core/events"
	"stakevault/core/types"
)

type eventPayload interface {
	Event() *types.Event
}

func (e *Engine) emit(payload eventPayload) {
	if e == nil || e.state == nil || payload == nil {
		return
	}
	e.state.AppendEvent(payload.Event())
}

func (e *Engine) emitPoolCreated(pid uint64, pool *Pool) {
	e.emit(events.StakePoolCreated{
		PoolID:     pid,
		AprBps:     pool.AprBps,
		LockPeriod: pool.LockPeriod,
	})
}

func (e *Engine) emitPoolUpdated(pid uint64, pool *Pool) {
	e.emit(events.StakePoolUpdated{
		PoolID:     pid,
		AprBps:     pool.AprBps,
		LockPeriod: pool.LockPeriod,
		AccIndex:   pool.AccIndex,
	})
}

func (e *Engine) emitDeposited(pid uint64, pool *Pool, pos *Position, amount *big.Int) {
	e.emit(events.StakeDeposited{
		PoolID:       pid,
		Account:      pos.Address,
		Amount:       amount,
		TotalDeposit: pool.TotalDeposit,
		LockedUntil:  pool.LockBoundary(pos.LastDeposit),
	})
}

func (e *Engine) emitWithdrawn(pid uint64, addr common.Address, amount, penalty *big.Int, early bool) {
	e.emit(events.StakeWithdrawn{
		PoolID:  pid,
		Account: addr,
		Amount:  amount,
		Penalty: penalty,
		Early:   early,
	})
}

func (e *Engine) emitRewardPaid(pid uint64, addr common.Address, amount, shortfall *big.Int) {
	e.emit(events.StakeRewardPaid{
		PoolID:    pid,
		Account:   addr,
		Amount:    amount,
		Shortfall: shortfall,
	})
}

func (e *Engine) emitRewardLocked(pid uint64, pool *Pool, pos *Position, amount *big.Int) {
	e.emit(events.StakeRewardLocked{
		PoolID:      pid,
		Account:     pos.Address,
		Amount:      amount,
		TotalLocked: pos.RewardLockedUp,
		UnlockAt:    pool.LockBoundary(pos.LastDeposit),
	})
}

func (e *Engine) emitReserveFunded(from common.Address, amount, reserve *big.Int) {
	e.emit(events.StakeReserveFunded{
		From:       from,
		Amount:     amount,
		NewReserve: reserve,
	})
}

func (e *Engine) emitTreasureRecovered(to common.Address, amount *big.Int) {
	e.emit(events.StakeTreasureRecovered{To: to, Amount: amount})
}

func (e *Engine) emitFeeUpdated(feePct uint64) {
	e.emit(events.StakeFeeUpdated{FeePct: feePct})
}

func (e *Engine) emitMarketingUpdated(addr common.Address) {
	e.emit(events.StakeMarketingUpdated{Address: addr})
}
