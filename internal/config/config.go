// Package config loads bridge configuration from the environment, with an
// optional YAML overlay file for operators who prefer a file over exported
// variables. Environment variables always win over the overlay file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// RequiredEnv lists the environment variables that must be set for the
// bridge to start; there is no safe default for custodial key material or
// account addresses.
var RequiredEnv = []string{
	"SOLANA_RPC_URL",
	"VAULT_KEYPAIR",
	"VAULT_USDC_ACCOUNT",
	"USDC_MINT",
	"SOL_MINT",
	"NEXUS_PIN",
	"NEXUS_USDD_TREASURY_ACCOUNT",
	"SOL_MAIN_ACCOUNT",
}

// ChainSConfig holds Chain-S (account-model, SPL-style) connection settings.
type ChainSConfig struct {
	RPCURL          string `yaml:"rpc_url"`
	VaultKeypair    string `yaml:"vault_keypair"`
	VaultMnemonic   string `yaml:"vault_mnemonic"`
	VaultUSDCAcct   string `yaml:"vault_usdc_account"`
	USDCMint        string `yaml:"usdc_mint"`
	SOLMint         string `yaml:"sol_mint"`
	SOLMainAccount  string `yaml:"sol_main_account"`
	USDCDecimals    uint8  `yaml:"usdc_decimals"`
	RPCTimeoutSec   int    `yaml:"rpc_timeout_sec"`
	TxFetchTimeout  int    `yaml:"tx_fetch_timeout_sec"`
	PollTimeBudget  int    `yaml:"poll_time_budget_sec"`
	MaxTxFetchPoll  int    `yaml:"max_tx_fetch_per_poll"`
	PollIntervalSec int    `yaml:"poll_interval_sec"`
}

// ChainNConfig holds Chain-N (UTXO-style, subprocess CLI) connection settings.
type ChainNConfig struct {
	CLIPath           string `yaml:"cli_path"`
	RPCHost           string `yaml:"rpc_host"`
	TokenName         string `yaml:"token_name"`
	Pin               string `yaml:"pin"`
	TreasuryAccount   string `yaml:"treasury_account"`
	LocalAccount      string `yaml:"local_account"`
	QuarantineAccount string `yaml:"quarantine_account"`
	FeesAccount       string `yaml:"fees_account"`
	USDDDecimals      uint8  `yaml:"usdd_decimals"`
	CLITimeoutSec     int    `yaml:"cli_timeout_sec"`
	PollTimeBudget    int    `yaml:"poll_time_budget_sec"`
	PollIntervalSec   int    `yaml:"poll_interval_sec"`
}

// RetryConfig holds the shared attempt/cooldown retry policy.
type RetryConfig struct {
	MaxActionAttempts     int `yaml:"max_action_attempts"`
	ActionRetryCooldown   int `yaml:"action_retry_cooldown_sec"`
	StaleRowSec           int `yaml:"stale_row_sec"`
	RefundTimeoutSec      int `yaml:"refund_timeout_sec"`
	StaleQuarantineSec    int `yaml:"stale_deposit_quarantine_sec"`
	ConfirmTimeoutSec     int `yaml:"usdc_confirm_timeout_sec"`
	ReservationTTLSec     int `yaml:"reservation_ttl_sec"`
}

// HeartbeatConfig holds heartbeat/waterline publication settings.
type HeartbeatConfig struct {
	Enabled            bool   `yaml:"enabled"`
	AssetAddress       string `yaml:"asset_address"`
	AssetName          string `yaml:"asset_name"`
	MinIntervalSec     int    `yaml:"min_interval_sec"`
	WaterlineEnabled   bool   `yaml:"waterline_enabled"`
	WaterlineSafetySec int    `yaml:"waterline_safety_sec"`
}

// FeeConfig holds the fee schedule and anti-DoS minimums.
type FeeConfig struct {
	FlatFeeUSDCUnits       int64 `yaml:"flat_fee_usdc_units"`
	FlatFeeUSDCUnitsRefund int64 `yaml:"flat_fee_usdc_units_refund"`
	DynamicFeeBPS          int64 `yaml:"dynamic_fee_bps"`
	MinDepositUSDCUnits    int64 `yaml:"min_deposit_usdc_units"`
	MinCreditUSDDUnits     int64 `yaml:"min_credit_usdd_units"`
	MaxDepositsPerLoop     int   `yaml:"max_deposits_per_loop"`
	MaxCreditsPerLoop      int   `yaml:"max_credits_per_loop"`

	// MicroCountsAgainstCapS/N resolve SPEC_FULL.md Open Question #4: whether
	// below-minimum rows still count toward the per-loop processing cap.
	MicroCountsAgainstCapS bool `yaml:"micro_counts_against_cap_s"`
	MicroCountsAgainstCapN bool `yaml:"micro_counts_against_cap_n"`
}

// BackingConfig holds the reconciler's pause/surplus-mint thresholds.
type BackingConfig struct {
	DeficitPausePct               int64 `yaml:"backing_deficit_pause_pct"`
	SurplusMintThresholdUSDCUnits int64 `yaml:"backing_surplus_mint_threshold_usdc_units"`
	ReconcileIntervalSec          int   `yaml:"backing_reconcile_interval_sec"`
}

// StorageConfig holds the durable store location.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// LoggingConfig holds structured-logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Config aggregates every configuration group the bridge daemon needs.
type Config struct {
	ChainS    ChainSConfig     `yaml:"chain_s"`
	ChainN    ChainNConfig     `yaml:"chain_n"`
	Retry     RetryConfig      `yaml:"retry"`
	Heartbeat HeartbeatConfig  `yaml:"heartbeat"`
	Fees      FeeConfig        `yaml:"fees"`
	Backing   BackingConfig    `yaml:"backing"`
	Storage   StorageConfig    `yaml:"storage"`
	Logging   LoggingConfig    `yaml:"logging"`
	FeeConversionEnabled bool  `yaml:"fee_conversion_enabled"`
}

// Load builds a Config from the environment, optionally overlaying values
// from a YAML file first (env vars always take precedence over the file).
func Load(overlayPath string) (*Config, error) {
	cfg := defaultConfig()

	if overlayPath != "" {
		data, err := os.ReadFile(overlayPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config overlay %s: %w", overlayPath, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config overlay %s: %w", overlayPath, err)
		}
	}

	applyEnvOverrides(cfg)

	for _, v := range RequiredEnv {
		if os.Getenv(v) == "" {
			return nil, fmt.Errorf("required environment variable %s is not set", v)
		}
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		ChainS: ChainSConfig{
			USDCDecimals:    6,
			RPCTimeoutSec:   8,
			TxFetchTimeout:  12,
			PollTimeBudget:  15,
			MaxTxFetchPoll:  120,
			PollIntervalSec: 10,
		},
		ChainN: ChainNConfig{
			CLIPath:         "./nexus",
			RPCHost:         "http://127.0.0.1:8399",
			TokenName:       "USDD",
			USDDDecimals:    6,
			CLITimeoutSec:   20,
			PollTimeBudget:  15,
			PollIntervalSec: 10,
		},
		Retry: RetryConfig{
			MaxActionAttempts:   3,
			ActionRetryCooldown: 300,
			StaleRowSec:         86400,
			RefundTimeoutSec:    3600,
			StaleQuarantineSec:  86400,
			ConfirmTimeoutSec:   600,
			ReservationTTLSec:   300,
		},
		Heartbeat: HeartbeatConfig{
			Enabled:            true,
			MinIntervalSec:     10,
			WaterlineEnabled:   true,
			WaterlineSafetySec: 120,
		},
		Fees: FeeConfig{
			FlatFeeUSDCUnits:       500_000, // 0.5 USDC at 6 decimals
			FlatFeeUSDCUnitsRefund: 100_000, // 0.1 USDC/USDD at 6 decimals
			DynamicFeeBPS:          10,
			MinDepositUSDCUnits:    100_101, // "0.100101"
			MinCreditUSDDUnits:     500_501, // "0.500501"
			MaxDepositsPerLoop:     100,
			MaxCreditsPerLoop:      100,
			MicroCountsAgainstCapS: true,
			MicroCountsAgainstCapN: false,
		},
		Backing: BackingConfig{
			DeficitPausePct:               90,
			SurplusMintThresholdUSDCUnits: 20_000_000, // 20 USDC at 6 decimals
			ReconcileIntervalSec:          3600,
		},
		Storage: StorageConfig{
			DataDir: "~/.bridge",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// applyEnvOverrides mirrors original_source/src/config.py's env var names
// and defaults exactly; env vars win over any YAML overlay already applied.
func applyEnvOverrides(cfg *Config) {
	str(&cfg.ChainS.RPCURL, "SOLANA_RPC_URL")
	str(&cfg.ChainS.VaultKeypair, "VAULT_KEYPAIR")
	str(&cfg.ChainS.VaultMnemonic, "VAULT_MNEMONIC")
	str(&cfg.ChainS.VaultUSDCAcct, "VAULT_USDC_ACCOUNT")
	str(&cfg.ChainS.USDCMint, "USDC_MINT")
	str(&cfg.ChainS.SOLMint, "SOL_MINT")
	str(&cfg.ChainS.SOLMainAccount, "SOL_MAIN_ACCOUNT")
	u8(&cfg.ChainS.USDCDecimals, "USDC_DECIMALS")
	ival(&cfg.ChainS.RPCTimeoutSec, "SOLANA_RPC_TIMEOUT_SEC")
	ival(&cfg.ChainS.TxFetchTimeout, "SOLANA_TX_FETCH_TIMEOUT_SEC")
	ival(&cfg.ChainS.PollTimeBudget, "SOLANA_POLL_TIME_BUDGET_SEC")
	ival(&cfg.ChainS.MaxTxFetchPoll, "SOLANA_MAX_TX_FETCH_PER_POLL")
	pollInterval(&cfg.ChainS.PollIntervalSec, "SOLANA_POLL_INTERVAL")

	str(&cfg.ChainN.CLIPath, "NEXUS_CLI_PATH")
	str(&cfg.ChainN.RPCHost, "NEXUS_RPC_HOST")
	str(&cfg.ChainN.TokenName, "NEXUS_TOKEN_NAME")
	str(&cfg.ChainN.Pin, "NEXUS_PIN")
	str(&cfg.ChainN.TreasuryAccount, "NEXUS_USDD_TREASURY_ACCOUNT")
	str(&cfg.ChainN.LocalAccount, "NEXUS_USDD_LOCAL_ACCOUNT")
	str(&cfg.ChainN.QuarantineAccount, "NEXUS_USDD_QUARANTINE_ACCOUNT")
	str(&cfg.ChainN.FeesAccount, "NEXUS_USDD_FEES_ACCOUNT")
	u8(&cfg.ChainN.USDDDecimals, "USDD_DECIMALS")
	ival(&cfg.ChainN.CLITimeoutSec, "NEXUS_CLI_TIMEOUT_SEC")
	ival(&cfg.ChainN.PollTimeBudget, "NEXUS_POLL_TIME_BUDGET_SEC")
	pollInterval(&cfg.ChainN.PollIntervalSec, "NEXUS_POLL_INTERVAL")

	ival(&cfg.Retry.MaxActionAttempts, "MAX_ACTION_ATTEMPTS")
	ival(&cfg.Retry.ActionRetryCooldown, "ACTION_RETRY_COOLDOWN_SEC")
	ival(&cfg.Retry.StaleRowSec, "STALE_ROW_SEC")
	ival(&cfg.Retry.RefundTimeoutSec, "REFUND_TIMEOUT_SEC")
	ival(&cfg.Retry.StaleQuarantineSec, "STALE_DEPOSIT_QUARANTINE_SEC")
	ival(&cfg.Retry.ConfirmTimeoutSec, "USDC_CONFIRM_TIMEOUT_SEC")
	ival(&cfg.Retry.ReservationTTLSec, "RESERVATION_TTL_SEC")

	boolean(&cfg.Heartbeat.Enabled, "HEARTBEAT_ENABLED")
	str(&cfg.Heartbeat.AssetAddress, "NEXUS_HEARTBEAT_ASSET_ADDRESS")
	str(&cfg.Heartbeat.AssetName, "NEXUS_HEARTBEAT_ASSET_NAME")
	ival(&cfg.Heartbeat.MinIntervalSec, "HEARTBEAT_MIN_INTERVAL_SEC")
	if cfg.Heartbeat.MinIntervalSec < 10 {
		cfg.Heartbeat.MinIntervalSec = 10
	}
	boolean(&cfg.Heartbeat.WaterlineEnabled, "HEARTBEAT_WATERLINE_ENABLED")
	ival(&cfg.Heartbeat.WaterlineSafetySec, "HEARTBEAT_WATERLINE_SAFETY_SEC")

	decimalUnits(&cfg.Fees.FlatFeeUSDCUnits, "FLAT_FEE_USDC", cfg.ChainS.USDCDecimals)
	decimalUnits(&cfg.Fees.FlatFeeUSDCUnitsRefund, "FLAT_FEE_USDD", cfg.ChainS.USDCDecimals)
	i64(&cfg.Fees.DynamicFeeBPS, "DYNAMIC_FEE_BPS")
	decimalUnits(&cfg.Fees.MinDepositUSDCUnits, "MIN_DEPOSIT_USDC", cfg.ChainS.USDCDecimals)
	decimalUnits(&cfg.Fees.MinCreditUSDDUnits, "MIN_CREDIT_USDD", cfg.ChainN.USDDDecimals)
	ival(&cfg.Fees.MaxDepositsPerLoop, "MAX_DEPOSITS_PER_LOOP")
	ival(&cfg.Fees.MaxCreditsPerLoop, "MAX_CREDITS_PER_LOOP")
	boolean(&cfg.Fees.MicroCountsAgainstCapS, "MICRO_COUNTS_AGAINST_CAP_S")
	boolean(&cfg.Fees.MicroCountsAgainstCapN, "MICRO_COUNTS_AGAINST_CAP_N")

	i64(&cfg.Backing.DeficitPausePct, "BACKING_DEFICIT_PAUSE_PCT")
	decimalUnits(&cfg.Backing.SurplusMintThresholdUSDCUnits, "BACKING_SURPLUS_MINT_THRESHOLD_USDC", cfg.ChainS.USDCDecimals)
	ival(&cfg.Backing.ReconcileIntervalSec, "BACKING_RECONCILE_INTERVAL_SEC")

	str(&cfg.Storage.DataDir, "BRIDGE_DATA_DIR")
	str(&cfg.Logging.Level, "LOG_LEVEL")
	boolean(&cfg.FeeConversionEnabled, "FEE_CONVERSION_ENABLED")
}

func str(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func ival(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func i64(dst *int64, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func u8(dst *uint8, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = uint8(n)
		}
	}
}

func boolean(dst *bool, env string) {
	v := strings.ToLower(os.Getenv(env))
	switch v {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	}
}

// pollInterval applies the legacy global POLL_INTERVAL fallback before the
// chain-specific override, matching original_source/src/config.py.
func pollInterval(dst *int, specificEnv string) {
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
	ival(dst, specificEnv)
}

// decimalUnits converts a decimal-string env var (e.g. "0.5") into integer
// base units at the given decimals, rounding down, matching the adapter
// boundary's conversion contract.
func decimalUnits(dst *int64, env string, decimals uint8) {
	v := os.Getenv(env)
	if v == "" {
		return
	}
	units, err := parseDecimalToUnits(v, decimals)
	if err != nil {
		return
	}
	*dst = units
}

// parseDecimalToUnits parses a decimal string into base units, truncating
// any precision beyond `decimals` (round-down, never round-nearest).
func parseDecimalToUnits(s string, decimals uint8) (int64, error) {
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	for len(frac) < int(decimals) {
		frac += "0"
	}
	frac = frac[:decimals]
	combined := strings.TrimLeft(whole+frac, "0")
	if combined == "" {
		combined = "0"
	}
	n, err := strconv.ParseInt(combined, 10, 64)
	if err != nil {
		return 0, err
	}
	if neg {
		n = -n
	}
	return n, nil
}
