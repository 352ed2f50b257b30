package types

import "math/big"

// Account holds the single-asset balance tracked by the vault's ledger.
// Amounts are denominated in the asset's smallest unit and expressed as big
// integers to match on-chain precision.
type Account struct {
	Balance *big.Int
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := &Account{}
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	}
	return clone
}

// EnsureDefaults populates nil big.Int fields so codec handling is safe.
func (a *Account) EnsureDefaults() {
	if a.Balance == nil {
		a.Balance = big.NewInt(0)
	}
}

// Event is the broadcastable record emitted by state transitions. Attributes
// are string encoded so downstream consumers do not need the module's types.
type Event struct {
	Type       string
	Attributes map[string]string
}
