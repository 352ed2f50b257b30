package state

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"stakevault/core/types"
	"stakevault/native/staking"
	"stakevault/storage"
)

const (
	keyPoolCount = "staking/poolcount"
	keyReserve   = "staking/reserve"
	keyFeeParams = "staking/feeparams"
)

// Manager implements the staking engine's state interface and the token
// ledger's account store over a key-value database, with JSON codecs for the
// records and an in-memory buffer for events emitted during the current call.
//
// Calls that mutate state run inside a transaction: Begin opens a write
// overlay, reads see overlaid values, and Commit flushes the overlay to the
// database while Abort drops it together with any events appended since
// Begin. This is what makes every engine call all-or-nothing.
type Manager struct {
	mu     sync.Mutex
	db     storage.Database
	events []*types.Event

	overlay    map[string][]byte
	eventsMark int
}

// NewManager wraps a database in a state manager.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Begin opens a write overlay for the current call. Calls are serialised by
// the transport; nested transactions are a programming error.
func (m *Manager) Begin() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overlay = make(map[string][]byte)
	m.eventsMark = len(m.events)
}

// Commit flushes the overlay to the database in one atomic batch and closes
// the transaction.
func (m *Manager) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.overlay) > 0 {
		if err := m.db.WriteBatch(m.overlay); err != nil {
			return err
		}
	}
	m.overlay = nil
	return nil
}

// Abort drops the overlay and any events appended since Begin.
func (m *Manager) Abort() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overlay = nil
	m.events = m.events[:m.eventsMark]
}

func (m *Manager) getRaw(key []byte) ([]byte, error) {
	if m.overlay != nil {
		if value, ok := m.overlay[string(key)]; ok {
			return append([]byte(nil), value...), nil
		}
	}
	return m.db.Get(key)
}

func (m *Manager) putRaw(key, value []byte) error {
	if m.overlay != nil {
		m.overlay[string(key)] = append([]byte(nil), value...)
		return nil
	}
	return m.db.Put(key, value)
}

func poolKey(pid uint64) []byte {
	return []byte(fmt.Sprintf("staking/pool/%d", pid))
}

func positionKey(pid uint64, addr common.Address) []byte {
	return []byte(fmt.Sprintf("staking/pos/%d/%x", pid, addr))
}

func accountKey(addr common.Address) []byte {
	return []byte(fmt.Sprintf("token/acct/%x", addr))
}

// PoolCount reports how many pools have been created.
func (m *Manager) PoolCount() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := m.getRaw([]byte(keyPoolCount))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("state: malformed pool count record")
	}
	return binary.BigEndian.Uint64(raw), nil
}

// SetPoolCount persists the dense pool identifier high-water mark.
func (m *Manager) SetPoolCount(count uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw := make([]byte, 8)
	binary.BigEndian.PutUint64(raw, count)
	return m.putRaw([]byte(keyPoolCount), raw)
}

// GetPool loads a pool record; nil when it does not exist.
func (m *Manager) GetPool(pid uint64) (*staking.Pool, error) {
	pool := new(staking.Pool)
	ok, err := m.getJSON(poolKey(pid), pool)
	if err != nil || !ok {
		return nil, err
	}
	pool.EnsureDefaults()
	return pool, nil
}

// PutPool persists a pool record.
func (m *Manager) PutPool(pid uint64, pool *staking.Pool) error {
	if pool == nil {
		return fmt.Errorf("state: nil pool")
	}
	return m.putJSON(poolKey(pid), pool)
}

// GetPosition loads a position record; nil when the address never deposited.
func (m *Manager) GetPosition(pid uint64, addr common.Address) (*staking.Position, error) {
	pos := new(staking.Position)
	ok, err := m.getJSON(positionKey(pid, addr), pos)
	if err != nil || !ok {
		return nil, err
	}
	pos.EnsureDefaults()
	return pos, nil
}

// PutPosition persists a position record under its (pool, address) key.
func (m *Manager) PutPosition(pid uint64, pos *staking.Position) error {
	if pos == nil {
		return fmt.Errorf("state: nil position")
	}
	return m.putJSON(positionKey(pid, pos.Address), pos)
}

// RewardReserve loads the process-wide reward reserve counter.
func (m *Manager) RewardReserve() (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := m.getRaw([]byte(keyReserve))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	reserve, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return nil, fmt.Errorf("state: malformed reserve record")
	}
	return reserve, nil
}

// SetRewardReserve persists the reward reserve counter. Negative values are
// rejected: the reserve must never go below zero at any observable point.
func (m *Manager) SetRewardReserve(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: reserve must be non-negative")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putRaw([]byte(keyReserve), []byte(amount.String()))
}

// FeeParams loads the withdrawal fee configuration; nil when unset.
func (m *Manager) FeeParams() (*staking.FeeParams, error) {
	params := new(staking.FeeParams)
	ok, err := m.getJSON([]byte(keyFeeParams), params)
	if err != nil || !ok {
		return nil, err
	}
	return params, nil
}

// PutFeeParams persists the withdrawal fee configuration.
func (m *Manager) PutFeeParams(params *staking.FeeParams) error {
	if params == nil {
		return fmt.Errorf("state: nil fee params")
	}
	return m.putJSON([]byte(keyFeeParams), params)
}

// GetAccount loads a token ledger account; nil when it does not exist.
func (m *Manager) GetAccount(addr common.Address) (*types.Account, error) {
	acc := new(types.Account)
	ok, err := m.getJSON(accountKey(addr), acc)
	if err != nil || !ok {
		return nil, err
	}
	acc.EnsureDefaults()
	return acc, nil
}

// PutAccount persists a token ledger account.
func (m *Manager) PutAccount(addr common.Address, acc *types.Account) error {
	if acc == nil {
		return fmt.Errorf("state: nil account")
	}
	return m.putJSON(accountKey(addr), acc)
}

// AppendEvent buffers an event emitted during the current call.
func (m *Manager) AppendEvent(evt *types.Event) {
	if evt == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

// DrainEvents returns and clears the buffered events. Callers drain once per
// completed call and hand the batch to whatever observes them.
func (m *Manager) DrainEvents() []*types.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	drained := m.events
	m.events = nil
	return drained
}

func (m *Manager) getJSON(key []byte, out interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := m.getRaw(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) putJSON(key []byte, in interface{}) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putRaw(key, raw)
}
