package token

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"stakevault/core/types"
)

// Gateway is the asset-transfer surface consumed by the staking engine.
// Transfers are atomic and all-or-nothing; a false return means no balance
// moved. Transfer debits the account the gateway was bound to.
type Gateway interface {
	TransferFrom(from, to common.Address, amount *big.Int) bool
	Transfer(to common.Address, amount *big.Int) bool
	BalanceOf(addr common.Address) *big.Int
}

// AccountStore is the persistence surface backing the ledger.
type AccountStore interface {
	GetAccount(addr common.Address) (*types.Account, error)
	PutAccount(addr common.Address, acc *types.Account) error
}

// Ledger implements Gateway over the account store for a single fungible
// asset. The owner address is the vault; outbound Transfer calls debit it.
type Ledger struct {
	store AccountStore
	owner common.Address
}

// NewLedger binds a ledger gateway to the vault's own address.
func NewLedger(store AccountStore, owner common.Address) *Ledger {
	return &Ledger{store: store, owner: owner}
}

// TransferFrom moves amount between two accounts. Zero amounts succeed
// without touching the store.
func (l *Ledger) TransferFrom(from, to common.Address, amount *big.Int) bool {
	return l.move(from, to, amount)
}

// Transfer moves amount from the bound owner account to the recipient.
func (l *Ledger) Transfer(to common.Address, amount *big.Int) bool {
	return l.move(l.owner, to, amount)
}

// BalanceOf reports the current balance for an address. Missing accounts
// read as zero.
func (l *Ledger) BalanceOf(addr common.Address) *big.Int {
	if l == nil || l.store == nil {
		return big.NewInt(0)
	}
	acc, err := l.store.GetAccount(addr)
	if err != nil || acc == nil || acc.Balance == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(acc.Balance)
}

// Mint credits freshly issued balance to an address. Used for genesis
// allocations and operator funding flows, not exposed through the Gateway.
func (l *Ledger) Mint(to common.Address, amount *big.Int) error {
	if l == nil || l.store == nil {
		return errNilStore
	}
	if amount == nil || amount.Sign() <= 0 {
		return errNonPositiveAmount
	}
	acc, err := l.loadAccount(to)
	if err != nil {
		return err
	}
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	return l.store.PutAccount(to, acc)
}

func (l *Ledger) move(from, to common.Address, amount *big.Int) bool {
	if l == nil || l.store == nil {
		return false
	}
	if amount == nil || amount.Sign() < 0 {
		return false
	}
	if amount.Sign() == 0 {
		return true
	}
	if (to == common.Address{}) {
		return false
	}
	fromAcc, err := l.loadAccount(from)
	if err != nil {
		return false
	}
	if fromAcc.Balance.Cmp(amount) < 0 {
		return false
	}
	toAcc, err := l.loadAccount(to)
	if err != nil {
		return false
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := l.store.PutAccount(from, fromAcc); err != nil {
		return false
	}
	if err := l.store.PutAccount(to, toAcc); err != nil {
		return false
	}
	return true
}

func (l *Ledger) loadAccount(addr common.Address) (*types.Account, error) {
	acc, err := l.store.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = &types.Account{}
	}
	acc.EnsureDefaults()
	return acc, nil
}
