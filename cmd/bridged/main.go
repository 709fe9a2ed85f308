// Package main provides bridged, the custodial S<->D bridge daemon.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/usdbridge/bridge/internal/bridge"
	"github.com/usdbridge/bridge/internal/chains"
	"github.com/usdbridge/bridge/internal/config"
	"github.com/usdbridge/bridge/internal/store"
	"github.com/usdbridge/bridge/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  = flag.String("config", "", "YAML config overlay path (env vars always win)")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error), overrides config")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	if *showVersion {
		println("bridged " + version + " (commit: " + commit + ")")
		os.Exit(0)
	}

	log := logging.New(&logging.Config{Level: "info", TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal("failed to load config", "error", err)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	log = logging.New(&logging.Config{Level: cfg.Logging.Level, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)
	log.Info("config loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.New(&store.Config{DataDir: cfg.Storage.DataDir})
	if err != nil {
		log.Fatal("failed to initialize store", "error", err)
	}
	defer st.Close()
	log.Info("store initialized", "data_dir", cfg.Storage.DataDir)

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
	log.Info("chain adapters initialized", "vault_address", vault.Address)

	ref := bridge.NewReferenceTracker(st, cfg.Retry)

	if err := bridge.NewRecovery(chainS, st, cfg.Fees, cfg.ChainS, cfg.ChainN).Run(ctx); err != nil {
		log.Fatal("startup recovery failed", "error", err)
	}

	reconciler := bridge.NewReconciler(chainS, chainN, st, cfg.Backing, cfg.ChainS, cfg.ChainN)
	backing := bridge.NewBacking(reconciler.Paused)

	deps := bridge.SupervisorDeps{
		IngestS:    bridge.NewIngestS(chainS, st, cfg.ChainS, cfg.Fees, cfg.ChainS.VaultUSDCAcct),
		ProcessorS: bridge.NewProcessorS(chainS, chainN, st, ref, cfg.Retry, cfg.Fees, cfg.ChainS, cfg.ChainN, cfg.ChainN.QuarantineAccount, backing),
		IngestN:    bridge.NewIngestN(chainN, st, cfg.ChainN, cfg.Fees, cfg.ChainN.TreasuryAccount),
		ProcessorN: bridge.NewProcessorN(chainS, chainN, st, ref, cfg.Retry, cfg.Fees, cfg.ChainS, cfg.ChainN, cfg.ChainN.LocalAccount, cfg.ChainN.QuarantineAccount, backing),
		Heartbeat:  bridge.NewHeartbeat(chainN, st, cfg.Heartbeat, cfg.ChainS, cfg.ChainN),
		Reconciler: reconciler,
		BalanceRec: bridge.NewBalanceReconciler(chainS, chainN, st, cfg.ChainS, cfg.ChainN),
	}
	supervisor := bridge.NewSupervisor(deps, cfg.ChainS, cfg.ChainN, cfg.Heartbeat, cfg.Backing)
	supervisor.Start(ctx)
	log.Info("bridge running", "vault", cfg.ChainS.VaultUSDCAcct, "treasury", cfg.ChainN.TreasuryAccount)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")

	supervisor.Stop()
	cancel()
	log.Info("goodbye")
}
