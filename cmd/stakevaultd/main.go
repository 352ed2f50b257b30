package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stakevault/config"
	"stakevault/core/token"
	"stakevault/native/staking"
	"stakevault/observability/logging"
	"stakevault/rpc"
	"stakevault/state"
	"stakevault/storage"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./config.toml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup("stakevaultd", cfg.Environment)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)

	vaultAddr, err := cfg.VaultAddr()
	if err != nil {
		logger.Error("invalid vault address", "error", err)
		os.Exit(1)
	}
	ledger := token.NewLedger(manager, vaultAddr)

	engine := staking.NewEngine(vaultAddr, ledger)
	engine.SetState(manager)
	engine.SetPauses(cfg.Pauses())

	if err := seedState(cfg, manager, engine, ledger); err != nil {
		logger.Error("failed to seed state", "error", err)
		os.Exit(1)
	}

	server := rpc.NewServer(engine, manager, logger, rpc.ServerConfig{
		AuthToken: strings.TrimSpace(os.Getenv("STAKEVAULT_RPC_TOKEN")),
	})

	errCh := make(chan error, 2)
	go func() {
		errCh <- server.Start(cfg.RPCAddress)
	}()

	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("starting metrics server", "addr", cfg.MetricsAddress)
		errCh <- metricsServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(ctx)
}

// seedState applies the first-boot configuration: pools, the early-withdrawal
// fee, and genesis balances. Records that already exist are left alone so a
// restart never rewrites live state.
func seedState(cfg *config.Config, manager *state.Manager, engine *staking.Engine, ledger *token.Ledger) error {
	manager.Begin()

	count, err := engine.PoolCount()
	if err != nil {
		manager.Abort()
		return err
	}
	if count == 0 {
		for _, seed := range cfg.Pools {
			if _, err := engine.AddPool(seed.AprBps, seed.LockDays); err != nil {
				manager.Abort()
				return fmt.Errorf("seed pool apr=%d lock=%dd: %w", seed.AprBps, seed.LockDays, err)
			}
		}
	}

	params, err := manager.FeeParams()
	if err != nil {
		manager.Abort()
		return err
	}
	if params == nil {
		marketing := common.Address{}
		if strings.TrimSpace(cfg.MarketingAddress) != "" {
			if marketing, err = cfg.MarketingAddr(); err != nil {
				manager.Abort()
				return err
			}
		}
		if err := manager.PutFeeParams(&staking.FeeParams{
			EarlyWithdrawFee: cfg.EarlyWithdrawFee,
			MarketingAddress: marketing,
		}); err != nil {
			manager.Abort()
			return err
		}
	}

	for _, acct := range cfg.Genesis {
		addr := common.HexToAddress(strings.TrimSpace(acct.Address))
		existing, err := manager.GetAccount(addr)
		if err != nil {
			manager.Abort()
			return err
		}
		if existing != nil {
			continue
		}
		balance, ok := new(big.Int).SetString(strings.TrimSpace(acct.Balance), 10)
		if !ok {
			manager.Abort()
			return fmt.Errorf("invalid genesis balance %q for %s", acct.Balance, acct.Address)
		}
		if balance.Sign() == 0 {
			continue
		}
		if err := ledger.Mint(addr, balance); err != nil {
			manager.Abort()
			return err
		}
	}

	// Seeding events have no observer yet; drop them.
	if err := manager.Commit(); err != nil {
		manager.Abort()
		return err
	}
	manager.DrainEvents()
	return nil
}
