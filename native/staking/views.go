package staking

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PendingReward reports the reward a settlement at the current instant would
// compute for a position, before the pay-or-lock decision. Deferred
// RewardLockedUp amounts are not included. The stored accumulator is
// projected to now without being persisted, and the same settlement-path
// denominator applies here.
func (e *Engine) PendingReward(pid uint64, addr common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	pool, err := e.loadPool(pid)
	if err != nil {
		return nil, err
	}
	pos, err := e.ensurePosition(pid, addr)
	if err != nil {
		return nil, err
	}
	e.refreshPool(pool, e.clock.Now())
	return pendingReward(pool.AccIndex, pos.DepositAmount, pos.RewardDebt), nil
}

// PoolInfo returns a copy of the stored pool record.
func (e *Engine) PoolInfo(pid uint64) (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	pool, err := e.loadPool(pid)
	if err != nil {
		return nil, err
	}
	return pool.Clone(), nil
}

// Pools returns copies of every pool in creation order.
func (e *Engine) Pools() ([]*Pool, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	count, err := e.state.PoolCount()
	if err != nil {
		return nil, err
	}
	pools := make([]*Pool, 0, count)
	for pid := uint64(0); pid < count; pid++ {
		pool, err := e.loadPool(pid)
		if err != nil {
			return nil, err
		}
		pools = append(pools, pool.Clone())
	}
	return pools, nil
}

// PositionInfo returns a copy of the stored position; an address that never
// deposited reads as an empty position.
func (e *Engine) PositionInfo(pid uint64, addr common.Address) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if _, err := e.loadPool(pid); err != nil {
		return nil, err
	}
	pos, err := e.ensurePosition(pid, addr)
	if err != nil {
		return nil, err
	}
	return pos.Clone(), nil
}

// PoolCount reports the number of pools ever created.
func (e *Engine) PoolCount() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	return e.state.PoolCount()
}

// RewardReserve reports the reward asset currently held for future payouts.
func (e *Engine) RewardReserve() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.loadReserve()
}

// FeeSettings returns the active early-withdrawal fee configuration.
func (e *Engine) FeeSettings() (*FeeParams, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	params, err := e.ensureFeeParams()
	if err != nil {
		return nil, err
	}
	return params.Clone(), nil
}

// TimeToEmpty approximates how many seconds the reserve lasts at the current
// aggregate payout rate across all pools. It ignores already-locked and
// unsettled pending reward. Zero when the rate or the reserve is zero.
func (e *Engine) TimeToEmpty() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	count, err := e.state.PoolCount()
	if err != nil {
		return nil, err
	}
	weighted := big.NewInt(0)
	for pid := uint64(0); pid < count; pid++ {
		pool, err := e.loadPool(pid)
		if err != nil {
			return nil, err
		}
		if pool.AprBps == 0 || pool.TotalDeposit.Sign() == 0 {
			continue
		}
		term := new(big.Int).Mul(pool.TotalDeposit, new(big.Int).SetUint64(pool.AprBps))
		weighted.Add(weighted, term)
	}
	ratePerSecond := weighted.Quo(weighted, rewardScale)
	if ratePerSecond.Sign() == 0 {
		return big.NewInt(0), nil
	}
	reserve, err := e.loadReserve()
	if err != nil {
		return nil, err
	}
	if reserve.Sign() == 0 {
		return big.NewInt(0), nil
	}
	return reserve.Quo(reserve, ratePerSecond), nil
}
