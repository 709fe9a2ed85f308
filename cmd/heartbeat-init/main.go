// Command heartbeat-init mints the Chain-N asset the running bridge
// publishes its poll progress to, matching original_source's
// create_heartbeat_asset.py one-time setup step. It is not part of the
// daemon's own runtime: run it once against a fresh deployment's treasury
// pin, then point config's heartbeat.asset_address at the address it
// prints.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/usdbridge/bridge/internal/chains"
	"github.com/usdbridge/bridge/internal/config"
	"github.com/usdbridge/bridge/pkg/logging"
)

func main() {
	var (
		configFile = flag.String("config", "", "YAML config overlay path (env vars always win)")
		assetName  = flag.String("name", "", "Asset name to mint (defaults to config heartbeat.asset_name)")
		provider   = flag.String("provider", "usdbridge", "Recommended 'provider' field value")
		distType   = flag.String("type", "custodial-bridge-heartbeat", "Recommended 'distordiaType' field value")
		version    = flag.String("version", "1", "Recommended 'version' field value")
	)
	flag.Parse()

	log := logging.New(&logging.Config{Level: "info", TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal("failed to load config", "error", err)
	}

	name := *assetName
	if name == "" {
		name = cfg.Heartbeat.AssetName
	}
	if name == "" {
		log.Fatal("no asset name given: pass -name or set heartbeat.asset_name")
	}

	chainN := chains.NewCLIChainN(chains.CLIChainNConfig{
		CLIPath:   cfg.ChainN.CLIPath,
		Pin:       cfg.ChainN.Pin,
		TokenName: cfg.ChainN.TokenName,
		Decimals:  cfg.ChainN.USDDDecimals,
		Timeout:   time.Duration(cfg.ChainN.CLITimeoutSec) * time.Second,
	})

	now := time.Now().Unix()
	fields := chains.AssetFields{
		// Required fields per create_heartbeat_asset.py's asset standard.
		"last_poll_timestamp":        fmt.Sprintf("%d", now),
		"last_safe_timestamp_solana": "0",
		"last_safe_timestamp_nexus":  "0",
		// Recommended fields.
		"distordiaType": *distType,
		"provider":      *provider,
		"version":       *version,
		// Transparency fields, seeded from config so a reader of the asset
		// can find the bridge's accounts without asking anyone.
		"supported_chains":       "chain_s,chain_n",
		"supported_tokens":       fmt.Sprintf("%s,%s", cfg.ChainS.USDCMint, cfg.ChainN.TokenName),
		"nexus_treasury_address": cfg.ChainN.TreasuryAccount,
		"nexus_treasury_token":   cfg.ChainN.TokenName,
		"solana_vault_address":   cfg.ChainS.VaultUSDCAcct,
		"solana_vault_token":     cfg.ChainS.USDCMint,
		"solana_vault_mint":      cfg.ChainS.USDCMint,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	addr, err := chainN.CreateAsset(ctx, name, fields)
	if err != nil {
		log.Fatal("create heartbeat asset failed", "error", err)
	}

	log.Info("heartbeat asset created", "name", name, "address", addr)
	fmt.Println()
	fmt.Println("Add to your config/environment:")
	fmt.Printf("  NEXUS_HEARTBEAT_ASSET_ADDRESS=%s\n", addr)
	fmt.Printf("  NEXUS_HEARTBEAT_ASSET_NAME=%s\n", name)
	os.Exit(0)
}
