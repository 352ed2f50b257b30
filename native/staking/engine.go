package staking

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"stakevault/core/token"
	"stakevault/core/types"
	nativecommon "stakevault/native/common"
)

const moduleName = "staking"

// State is the persistence surface consumed by the engine. Pools are keyed
// by dense integer identifiers assigned at creation and never reused;
// positions are keyed by (pool id, address). Implementations return nil for
// records that do not exist yet.
type State interface {
	PoolCount() (uint64, error)
	SetPoolCount(count uint64) error
	GetPool(pid uint64) (*Pool, error)
	PutPool(pid uint64, pool *Pool) error
	GetPosition(pid uint64, addr common.Address) (*Position, error)
	PutPosition(pid uint64, pos *Position) error
	RewardReserve() (*big.Int, error)
	SetRewardReserve(amount *big.Int) error
	FeeParams() (*FeeParams, error)
	PutFeeParams(params *FeeParams) error
	AppendEvent(evt *types.Event)
}

// Engine orchestrates the accrual and settlement state transitions for the
// staking vault. Every mutating call refreshes the pool accumulator and
// settles the caller's pending reward before the requested size change is
// applied; that ordering is the sole discipline keeping reward debt honest.
type Engine struct {
	state        State
	gateway      token.Gateway
	clock        Clock
	vaultAddress common.Address
	pauses       nativecommon.PauseView
}

// NewEngine constructs a staking engine bound to the vault treasury address
// and its asset-transfer gateway. The system clock is used until overridden.
func NewEngine(vaultAddr common.Address, gateway token.Gateway) *Engine {
	return &Engine{
		gateway:      gateway,
		clock:        SystemClock{},
		vaultAddress: vaultAddr,
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state State) { e.state = state }

// SetClock overrides the time source. Tests drive settlement with a manual
// clock; the instant must never decrease between calls.
func (e *Engine) SetClock(clock Clock) {
	if e == nil || clock == nil {
		return
	}
	e.clock = clock
}

// SetPauses wires the operator pause switchboard checked on mutating calls.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// VaultAddress returns the treasury address holding deposits and reserve.
func (e *Engine) VaultAddress() common.Address { return e.vaultAddress }

// AddPool creates a new pool with the given basis-point APR and withdraw
// lock expressed in days, returning the assigned identifier.
func (e *Engine) AddPool(aprBps, lockDays uint64) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if aprBps == 0 {
		return 0, ErrInvalidPoolAPR
	}
	if lockDays > MaxLockDays {
		return 0, ErrInvalidWithdrawLockPeriod
	}
	count, err := e.state.PoolCount()
	if err != nil {
		return 0, err
	}
	pool := &Pool{
		AprBps:       aprBps,
		TotalDeposit: big.NewInt(0),
		LockPeriod:   lockDays * secondsPerDay,
		AccIndex:     big.NewInt(0),
		LastUpdate:   e.clock.Now(),
	}
	if err := e.state.PutPool(count, pool); err != nil {
		return 0, err
	}
	if err := e.state.SetPoolCount(count + 1); err != nil {
		return 0, err
	}
	e.emitPoolCreated(count, pool)
	return count, nil
}

// EditPool changes a pool's APR and lock period. The accumulator is
// refreshed before the APR changes so accrual up to this instant stays
// priced at the old rate. Setting aprBps to zero disables new deposits
// without touching existing positions.
func (e *Engine) EditPool(pid, aprBps, lockDays uint64) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if lockDays > MaxLockDays {
		return ErrInvalidWithdrawLockPeriod
	}
	pool, err := e.loadPool(pid)
	if err != nil {
		return err
	}
	e.refreshPool(pool, e.clock.Now())
	pool.AprBps = aprBps
	pool.LockPeriod = lockDays * secondsPerDay
	if err := e.state.PutPool(pid, pool); err != nil {
		return err
	}
	e.emitPoolUpdated(pid, pool)
	return nil
}

// Deposit settles the caller's position, pulls the amount into the vault and
// grows the position. Any deposit restarts the lock clock for the entire
// position, top-ups included.
func (e *Engine) Deposit(caller common.Address, pid uint64, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if e.gateway == nil {
		return ErrNilGateway
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInsufficientDepositAmount
	}
	pool, err := e.loadPool(pid)
	if err != nil {
		return err
	}
	if pool.AprBps == 0 {
		return ErrInvalidPoolID
	}
	now := e.clock.Now()
	e.refreshPool(pool, now)

	pos, err := e.ensurePosition(pid, caller)
	if err != nil {
		return err
	}
	if _, err := e.settle(pid, pool, pos, now); err != nil {
		return err
	}

	if !e.gateway.TransferFrom(caller, e.vaultAddress, amount) {
		return ErrTransferFrom
	}

	pos.DepositAmount = new(big.Int).Add(pos.DepositAmount, amount)
	pool.TotalDeposit = new(big.Int).Add(pool.TotalDeposit, amount)
	pos.LastDeposit = now
	pos.LastInteraction = now
	pos.RewardDebt = scaledEntitlement(pool.AccIndex, pos.DepositAmount)

	if err := e.state.PutPosition(pid, pos); err != nil {
		return err
	}
	if err := e.state.PutPool(pid, pool); err != nil {
		return err
	}
	e.emitDeposited(pid, pool, pos, amount)
	return nil
}

// Withdraw settles and fully closes the caller's position. Inside the lock
// window the early-withdrawal fee is withheld from principal and routed to
// the marketing address; past the boundary the full principal returns.
// The net principal actually paid out is returned.
func (e *Engine) Withdraw(caller common.Address, pid uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if e.gateway == nil {
		return nil, ErrNilGateway
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	pool, err := e.loadPool(pid)
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()
	e.refreshPool(pool, now)

	pos, err := e.ensurePosition(pid, caller)
	if err != nil {
		return nil, err
	}
	if _, err := e.settle(pid, pool, pos, now); err != nil {
		return nil, err
	}

	amount := new(big.Int).Set(pos.DepositAmount)
	early := pool.LockBoundary(pos.LastDeposit) >= now
	penalty := big.NewInt(0)
	if early {
		params, err := e.ensureFeeParams()
		if err != nil {
			return nil, err
		}
		penalty = earlyWithdrawPenalty(amount, params.EarlyWithdrawFee)
		if penalty.Sign() > 0 {
			if _, err := e.safeTransfer(params.MarketingAddress, penalty); err != nil {
				return nil, err
			}
		}
	}
	net := new(big.Int).Sub(amount, penalty)
	paid, err := e.safeTransfer(caller, net)
	if err != nil {
		return nil, err
	}

	pool.TotalDeposit = new(big.Int).Sub(pool.TotalDeposit, amount)
	pos.DepositAmount = big.NewInt(0)
	pos.RewardDebt = big.NewInt(0)
	pos.RewardLockedUp = big.NewInt(0)
	pos.LastInteraction = now

	if err := e.state.PutPosition(pid, pos); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(pid, pool); err != nil {
		return nil, err
	}
	e.emitWithdrawn(pid, caller, amount, penalty, early)
	return paid, nil
}

// Harvest runs settlement without touching principal, realising pending or
// previously locked reward according to the pay-or-lock rule. The reward
// actually paid out is returned; zero when the position is still locked.
func (e *Engine) Harvest(caller common.Address, pid uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if e.gateway == nil {
		return nil, ErrNilGateway
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	pool, err := e.loadPool(pid)
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()
	e.refreshPool(pool, now)

	pos, err := e.ensurePosition(pid, caller)
	if err != nil {
		return nil, err
	}
	paid, err := e.settle(pid, pool, pos, now)
	if err != nil {
		return nil, err
	}
	pos.RewardDebt = scaledEntitlement(pool.AccIndex, pos.DepositAmount)

	if err := e.state.PutPosition(pid, pos); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(pid, pool); err != nil {
		return nil, err
	}
	return paid, nil
}

// AddRewardTokens pulls amount from the funder into the vault and grows the
// reward reserve.
func (e *Engine) AddRewardTokens(from common.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if e.gateway == nil {
		return ErrNilGateway
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	reserve, err := e.loadReserve()
	if err != nil {
		return err
	}
	if !e.gateway.TransferFrom(from, e.vaultAddress, amount) {
		return ErrTransferFrom
	}
	reserve = new(big.Int).Add(reserve, amount)
	if err := e.state.SetRewardReserve(reserve); err != nil {
		return err
	}
	e.emitReserveFunded(from, amount, reserve)
	return nil
}

// RecoverTreasure transfers the entire reward reserve to the destination and
// zeroes it. An operator escape hatch, not part of normal accrual flow.
func (e *Engine) RecoverTreasure(to common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if e.gateway == nil {
		return nil, ErrNilGateway
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if (to == common.Address{}) {
		return nil, ErrInvalidSettings
	}
	reserve, err := e.loadReserve()
	if err != nil {
		return nil, err
	}
	if reserve.Sign() == 0 {
		return nil, ErrInvalidSettings
	}
	paid, err := e.safeTransfer(to, reserve)
	if err != nil {
		return nil, err
	}
	if err := e.state.SetRewardReserve(big.NewInt(0)); err != nil {
		return nil, err
	}
	e.emitTreasureRecovered(to, paid)
	return paid, nil
}

// SetEarlyWithdrawFee updates the percentage withheld from early exits.
func (e *Engine) SetEarlyWithdrawFee(feePct uint64) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if feePct > MaxEarlyWithdrawFee {
		return ErrInvalidEarlyWithdrawFee
	}
	params, err := e.ensureFeeParams()
	if err != nil {
		return err
	}
	params.EarlyWithdrawFee = feePct
	if err := e.state.PutFeeParams(params); err != nil {
		return err
	}
	e.emitFeeUpdated(feePct)
	return nil
}

// SetMarketingAddress rotates the recipient of early-withdrawal penalties.
func (e *Engine) SetMarketingAddress(addr common.Address) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if (addr == common.Address{}) {
		return ErrInvalidSettings
	}
	params, err := e.ensureFeeParams()
	if err != nil {
		return err
	}
	params.MarketingAddress = addr
	if err := e.state.PutFeeParams(params); err != nil {
		return err
	}
	e.emitMarketingUpdated(addr)
	return nil
}

// refreshPool advances the accumulator for the elapsed window and stamps the
// pool with the current instant. This is the single place accrual time is
// consumed; calling it twice at the same instant is a no-op. The timestamp
// moves even when the APR is zero so a later re-enable cannot retroactively
// credit the disabled window.
func (e *Engine) refreshPool(pool *Pool, now uint64) {
	if pool == nil || now <= pool.LastUpdate {
		return
	}
	if pool.AprBps > 0 {
		delta := indexDelta(now-pool.LastUpdate, pool.AprBps)
		pool.AccIndex = new(big.Int).Add(pool.AccIndex, delta)
	}
	pool.LastUpdate = now
}

// settle computes the position's pending reward against the freshly
// refreshed accumulator and applies the pay-or-lock decision. Exactly one of
// the two happens: past the lock boundary any pending plus previously locked
// reward pays out immediately; inside the window pending reward is deferred
// into RewardLockedUp. Callers must re-derive RewardDebt after resizing the
// position. Returns the reward actually transferred.
func (e *Engine) settle(pid uint64, pool *Pool, pos *Position, now uint64) (*big.Int, error) {
	pending := pendingReward(pool.AccIndex, pos.DepositAmount, pos.RewardDebt)
	unlocked := pool.LockBoundary(pos.LastDeposit) < now
	paid := big.NewInt(0)
	if unlocked {
		owed := new(big.Int).Add(pending, pos.RewardLockedUp)
		if owed.Sign() > 0 {
			var err error
			paid, err = e.payReward(pid, pos.Address, owed)
			if err != nil {
				return nil, err
			}
			pos.RewardLockedUp = big.NewInt(0)
		}
	} else if pending.Sign() > 0 {
		pos.RewardLockedUp = new(big.Int).Add(pos.RewardLockedUp, pending)
		e.emitRewardLocked(pid, pool, pos, pending)
	}
	pos.LastInteraction = now
	return paid, nil
}

// payReward draws owed reward from the reserve, capped at what the reserve
// and the vault balance can actually cover. The capped payment satisfies the
// claim; the shortfall is surfaced on the event, never as an error.
func (e *Engine) payReward(pid uint64, to common.Address, owed *big.Int) (*big.Int, error) {
	reserve, err := e.loadReserve()
	if err != nil {
		return nil, err
	}
	amount := minBig(new(big.Int).Set(owed), reserve)
	paid, err := e.safeTransfer(to, amount)
	if err != nil {
		return nil, err
	}
	if paid.Sign() > 0 {
		reserve = new(big.Int).Sub(reserve, paid)
		if err := e.state.SetRewardReserve(reserve); err != nil {
			return nil, err
		}
	}
	shortfall := new(big.Int).Sub(owed, paid)
	e.emitRewardPaid(pid, to, paid, shortfall)
	return paid, nil
}

// safeTransfer moves at most the vault's actual balance so rounding-induced
// shortfalls degrade the payout instead of aborting the call. Returns the
// amount actually transferred.
func (e *Engine) safeTransfer(to common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	pay := minBig(new(big.Int).Set(amount), e.gateway.BalanceOf(e.vaultAddress))
	if pay.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if !e.gateway.Transfer(to, pay) {
		return nil, ErrTransfer
	}
	return pay, nil
}

func (e *Engine) loadPool(pid uint64) (*Pool, error) {
	count, err := e.state.PoolCount()
	if err != nil {
		return nil, err
	}
	if pid >= count {
		return nil, ErrInvalidPoolID
	}
	pool, err := e.state.GetPool(pid)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrInvalidPoolID
	}
	pool.EnsureDefaults()
	return pool, nil
}

func (e *Engine) ensurePosition(pid uint64, addr common.Address) (*Position, error) {
	pos, err := e.state.GetPosition(pid, addr)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		pos = &Position{Address: addr}
	}
	pos.EnsureDefaults()
	return pos, nil
}

func (e *Engine) loadReserve() (*big.Int, error) {
	reserve, err := e.state.RewardReserve()
	if err != nil {
		return nil, err
	}
	if reserve == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(reserve), nil
}

func (e *Engine) ensureFeeParams() (*FeeParams, error) {
	params, err := e.state.FeeParams()
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = &FeeParams{EarlyWithdrawFee: DefaultEarlyWithdrawFee}
	}
	return params, nil
}
