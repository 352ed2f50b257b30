package token

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"stakevault/core/types"
)

var (
	vault = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b22")
)

type memStore struct {
	accounts map[common.Address]*types.Account
}

func newMemStore() *memStore {
	return &memStore{accounts: make(map[common.Address]*types.Account)}
}

func (s *memStore) GetAccount(addr common.Address) (*types.Account, error) {
	return s.accounts[addr].Clone(), nil
}

func (s *memStore) PutAccount(addr common.Address, acc *types.Account) error {
	s.accounts[addr] = acc.Clone()
	return nil
}

func newTestLedger(t *testing.T) (*Ledger, *memStore) {
	t.Helper()
	store := newMemStore()
	return NewLedger(store, vault), store
}

func TestMintCreditsBalance(t *testing.T) {
	ledger, _ := newTestLedger(t)
	if err := ledger.Mint(alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Mint(alice, big.NewInt(50)); err != nil {
		t.Fatalf("second mint: %v", err)
	}
	if got := ledger.BalanceOf(alice); got.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("expected balance 150, got %s", got)
	}
	if err := ledger.Mint(alice, big.NewInt(0)); err == nil {
		t.Fatalf("expected error for zero mint")
	}
	if err := ledger.Mint(alice, nil); err == nil {
		t.Fatalf("expected error for nil mint")
	}
}

func TestTransferFrom(t *testing.T) {
	ledger, _ := newTestLedger(t)
	if err := ledger.Mint(alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if !ledger.TransferFrom(alice, bob, big.NewInt(40)) {
		t.Fatalf("expected transfer to succeed")
	}
	if got := ledger.BalanceOf(alice); got.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("expected alice at 60, got %s", got)
	}
	if got := ledger.BalanceOf(bob); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("expected bob at 40, got %s", got)
	}

	if ledger.TransferFrom(alice, bob, big.NewInt(61)) {
		t.Fatalf("expected insufficient balance to fail")
	}
	if got := ledger.BalanceOf(alice); got.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("failed transfer must not move balance, alice at %s", got)
	}
}

func TestTransferEdgeCases(t *testing.T) {
	ledger, _ := newTestLedger(t)
	if err := ledger.Mint(vault, big.NewInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	// Zero amounts succeed without touching the store.
	if !ledger.Transfer(bob, big.NewInt(0)) {
		t.Fatalf("expected zero transfer to succeed")
	}
	if got := ledger.BalanceOf(bob); got.Sign() != 0 {
		t.Fatalf("zero transfer must not credit, bob at %s", got)
	}

	if ledger.Transfer(bob, big.NewInt(-1)) {
		t.Fatalf("expected negative transfer to fail")
	}
	if ledger.Transfer(common.Address{}, big.NewInt(1)) {
		t.Fatalf("expected transfer to zero address to fail")
	}

	// Transfer debits the bound owner account.
	if !ledger.Transfer(bob, big.NewInt(10)) {
		t.Fatalf("expected owner transfer to succeed")
	}
	if got := ledger.BalanceOf(vault); got.Sign() != 0 {
		t.Fatalf("expected vault drained, got %s", got)
	}
}

func TestBalanceOfMissingAccount(t *testing.T) {
	ledger, _ := newTestLedger(t)
	if got := ledger.BalanceOf(bob); got.Sign() != 0 {
		t.Fatalf("expected zero for unknown account, got %s", got)
	}
}
