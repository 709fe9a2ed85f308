package config

import "testing"

func setRequiredEnv(t *testing.T) {
	t.Helper()
	vals := map[string]string{
		"SOLANA_RPC_URL":              "http://localhost:8899",
		"VAULT_KEYPAIR":               "/tmp/vault.json",
		"VAULT_USDC_ACCOUNT":          "VaultUSDCAccount111",
		"USDC_MINT":                   "USDCMint1111",
		"SOL_MINT":                    "So11111111111111111111111111111111111111112",
		"NEXUS_PIN":                   "1234",
		"NEXUS_USDD_TREASURY_ACCOUNT": "treasury",
		"SOL_MAIN_ACCOUNT":            "main",
	}
	for k, v := range vals {
		t.Setenv(k, v)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error when required env vars are unset")
	}
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Fees.FlatFeeUSDCUnits != 500_000 {
		t.Errorf("FlatFeeUSDCUnits = %d, want 500000", cfg.Fees.FlatFeeUSDCUnits)
	}
	if cfg.Fees.FlatFeeUSDCUnitsRefund != 100_000 {
		t.Errorf("FlatFeeUSDCUnitsRefund = %d, want 100000", cfg.Fees.FlatFeeUSDCUnitsRefund)
	}
	if cfg.Fees.DynamicFeeBPS != 10 {
		t.Errorf("DynamicFeeBPS = %d, want 10", cfg.Fees.DynamicFeeBPS)
	}
	if cfg.Fees.MinDepositUSDCUnits != 100_101 {
		t.Errorf("MinDepositUSDCUnits = %d, want 100101", cfg.Fees.MinDepositUSDCUnits)
	}
	if cfg.Fees.MinCreditUSDDUnits != 500_501 {
		t.Errorf("MinCreditUSDDUnits = %d, want 500501", cfg.Fees.MinCreditUSDDUnits)
	}
	if cfg.Backing.DeficitPausePct != 90 {
		t.Errorf("DeficitPausePct = %d, want 90", cfg.Backing.DeficitPausePct)
	}
	if !cfg.Fees.MicroCountsAgainstCapS {
		t.Error("MicroCountsAgainstCapS default should be true")
	}
	if cfg.Fees.MicroCountsAgainstCapN {
		t.Error("MicroCountsAgainstCapN default should be false")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DYNAMIC_FEE_BPS", "25")
	t.Setenv("MAX_DEPOSITS_PER_LOOP", "50")
	t.Setenv("MICRO_COUNTS_AGAINST_CAP_N", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Fees.DynamicFeeBPS != 25 {
		t.Errorf("DynamicFeeBPS = %d, want 25", cfg.Fees.DynamicFeeBPS)
	}
	if cfg.Fees.MaxDepositsPerLoop != 50 {
		t.Errorf("MaxDepositsPerLoop = %d, want 50", cfg.Fees.MaxDepositsPerLoop)
	}
	if !cfg.Fees.MicroCountsAgainstCapN {
		t.Error("MicroCountsAgainstCapN should be overridden to true")
	}
}

func TestParseDecimalToUnits(t *testing.T) {
	cases := []struct {
		in       string
		decimals uint8
		want     int64
	}{
		{"0.5", 6, 500_000},
		{"0.100101", 6, 100_101},
		{"1", 6, 1_000_000},
		{"0.0000001", 6, 0}, // truncated, not rounded
		{"20", 6, 20_000_000},
	}
	for _, tc := range cases {
		got, err := parseDecimalToUnits(tc.in, tc.decimals)
		if err != nil {
			t.Fatalf("parseDecimalToUnits(%q) error = %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("parseDecimalToUnits(%q, %d) = %d, want %d", tc.in, tc.decimals, got, tc.want)
		}
	}
}
