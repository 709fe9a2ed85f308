// Command reconcile-report runs one balance-reconciliation pass against the
// live chains and the local store, and prints the result, independent of
// the daemon's own maintenance-cycle cadence. Grounded on
// original_source/balance_reconciler.py's run_single/print_account_reconciliation
// CLI surface, adapted from that original's per-account trade-delta report
// to this module's aggregate vault/treasury cross-check
// (internal/bridge/balance_reconciler.go).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/usdbridge/bridge/internal/bridge"
	"github.com/usdbridge/bridge/internal/chains"
	"github.com/usdbridge/bridge/internal/config"
	"github.com/usdbridge/bridge/internal/store"
	"github.com/usdbridge/bridge/pkg/logging"
)

func main() {
	var (
		configFile = flag.String("config", "", "YAML config overlay path (env vars always win)")
		timeout    = flag.Duration("timeout", 30*time.Second, "Wall-clock budget for the reconciliation pass")
	)
	flag.Parse()

	log := logging.New(&logging.Config{Level: "info", TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal("failed to load config", "error", err)
	}

	st, err := store.New(&store.Config{DataDir: cfg.Storage.DataDir})
	if err != nil {
		log.Fatal("failed to open store", "error", err)
	}
	defer st.Close()

	vault, err := chains.LoadVaultKeypair(cfg.ChainS.VaultKeypair, cfg.ChainS.VaultMnemonic)
	if err != nil {
		log.Fatal("failed to load vault keypair", "error", err)
	}
	chainS := chains.NewJSONRPCChainS(chains.JSONRPCChainSConfig{
		RPCURL:       cfg.ChainS.RPCURL,
		Vault:        vault,
		VaultUSDCAcc: cfg.ChainS.VaultUSDCAcct,
		USDCMint:     cfg.ChainS.USDCMint,
		Decimals:     cfg.ChainS.USDCDecimals,
		CallTimeout:  time.Duration(cfg.ChainS.RPCTimeoutSec) * time.Second,
	})
	chainN := chains.NewCLIChainN(chains.CLIChainNConfig{
		CLIPath:   cfg.ChainN.CLIPath,
		Pin:       cfg.ChainN.Pin,
		TokenName: cfg.ChainN.TokenName,
		Decimals:  cfg.ChainN.USDDDecimals,
		Timeout:   time.Duration(cfg.ChainN.CLITimeoutSec) * time.Second,
	})

	rec := bridge.NewBalanceReconciler(chainS, chainN, st, cfg.ChainS, cfg.ChainN)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	vaultReport, err := rec.ComputeVault(ctx)
	if err != nil {
		log.Fatal("vault reconciliation failed", "error", err)
	}
	treasuryReport, err := rec.ComputeTreasury(ctx)
	if err != nil {
		log.Fatal("treasury reconciliation failed", "error", err)
	}

	exitCode := 0
	printReport("vault (Chain-S)", vaultReport)
	if !vaultReport.Balanced() {
		exitCode = 1
	}
	printReport("treasury (Chain-N)", treasuryReport)
	if !treasuryReport.Balanced() {
		exitCode = 1
	}

	os.Exit(exitCode)
}

func printReport(label string, r bridge.AccountReport) {
	status := "balanced"
	if !r.Balanced() {
		status = "MISMATCH"
	}
	fmt.Printf("[%s] account=%s live=%d ledger=%d diff=%d (%s)\n",
		label, r.Account, r.Live, r.Expected, r.Diff(), status)
}
