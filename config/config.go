package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"

	"stakevault/native/staking"
)

// Config captures the runtime configuration for the staking vault daemon.
type Config struct {
	RPCAddress       string           `toml:"RPCAddress"`
	MetricsAddress   string           `toml:"MetricsAddress"`
	DataDir          string           `toml:"DataDir"`
	Environment      string           `toml:"Environment"`
	VaultAddress     string           `toml:"VaultAddress"`
	MarketingAddress string           `toml:"MarketingAddress"`
	EarlyWithdrawFee uint64           `toml:"EarlyWithdrawFee"`
	PausedModules    []string         `toml:"PausedModules"`
	Pools            []PoolSeed       `toml:"pools"`
	Genesis          []GenesisAccount `toml:"genesis"`
}

// PoolSeed describes a pool created on first boot.
type PoolSeed struct {
	AprBps   uint64 `toml:"AprBps"`
	LockDays uint64 `toml:"LockDays"`
}

// GenesisAccount seeds a ledger balance on first boot.
type GenesisAccount struct {
	Address string `toml:"Address"`
	Balance string `toml:"Balance"`
}

// Load reads the configuration from the given path, writing a commented
// default file when none exists yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = "127.0.0.1:8645"
	}
	if strings.TrimSpace(c.MetricsAddress) == "" {
		c.MetricsAddress = "127.0.0.1:9097"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./data"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "local"
	}
	if c.PausedModules == nil {
		c.PausedModules = []string{}
	}
}

// Validate checks the address and fee fields before the daemon wires them in.
func (c *Config) Validate() error {
	if _, err := c.VaultAddr(); err != nil {
		return err
	}
	if strings.TrimSpace(c.MarketingAddress) != "" {
		if _, err := c.MarketingAddr(); err != nil {
			return err
		}
	}
	if c.EarlyWithdrawFee > staking.MaxEarlyWithdrawFee {
		return fmt.Errorf("config: early withdraw fee %d exceeds maximum %d", c.EarlyWithdrawFee, staking.MaxEarlyWithdrawFee)
	}
	for i, seed := range c.Pools {
		if seed.AprBps == 0 {
			return fmt.Errorf("config: pool %d has zero apr", i)
		}
	}
	for i, acct := range c.Genesis {
		if !common.IsHexAddress(acct.Address) {
			return fmt.Errorf("config: genesis account %d has invalid address %q", i, acct.Address)
		}
		if _, ok := new(big.Int).SetString(strings.TrimSpace(acct.Balance), 10); !ok {
			return fmt.Errorf("config: genesis account %d has invalid balance %q", i, acct.Balance)
		}
	}
	return nil
}

// VaultAddr parses the vault treasury address.
func (c *Config) VaultAddr() (common.Address, error) {
	trimmed := strings.TrimSpace(c.VaultAddress)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("config: invalid vault address %q", c.VaultAddress)
	}
	return common.HexToAddress(trimmed), nil
}

// MarketingAddr parses the early-withdrawal penalty recipient.
func (c *Config) MarketingAddr() (common.Address, error) {
	trimmed := strings.TrimSpace(c.MarketingAddress)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("config: invalid marketing address %q", c.MarketingAddress)
	}
	return common.HexToAddress(trimmed), nil
}

// Pauses builds the module pause view handed to the engine.
func (c *Config) Pauses() PauseSet {
	set := make(PauseSet, len(c.PausedModules))
	for _, module := range c.PausedModules {
		set[strings.ToLower(strings.TrimSpace(module))] = struct{}{}
	}
	return set
}

// PauseSet is a static pause switchboard sourced from configuration.
type PauseSet map[string]struct{}

// IsPaused reports whether a module name appears in the paused list.
func (p PauseSet) IsPaused(module string) bool {
	_, ok := p[strings.ToLower(module)]
	return ok
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		VaultAddress:     "0x0000000000000000000000000000000000000001",
		MarketingAddress: "0x0000000000000000000000000000000000000002",
		EarlyWithdrawFee: 10,
		Pools: []PoolSeed{
			{AprBps: 1500, LockDays: 0},
			{AprBps: 3000, LockDays: 30},
		},
	}
	cfg.applyDefaults()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
