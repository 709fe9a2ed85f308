package bridge

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/usdbridge/bridge/internal/chains"
	"github.com/usdbridge/bridge/internal/config"
	"github.com/usdbridge/bridge/internal/store"
	"github.com/usdbridge/bridge/pkg/logging"
)

// Reconciler maintains the backing invariant vault(T_S) >= supply(T_D) and
// recognizes accumulated protocol revenue as fees, following spec §4.8 and
// original_source/src/fees.py's maintain_backing_and_bounds.
type Reconciler struct {
	chainS chains.ChainS
	chainN chains.ChainN
	store  *store.Store
	cfg    config.BackingConfig
	cfgS   config.ChainSConfig
	cfgN   config.ChainNConfig
	log    *logging.Logger

	vault     string
	treasury  string
	feesAcct  string
	tokenName string

	paused atomic.Bool
}

// NewReconciler builds a Reconciler.
func NewReconciler(chainS chains.ChainS, chainN chains.ChainN, st *store.Store, cfg config.BackingConfig, cfgS config.ChainSConfig, cfgN config.ChainNConfig) *Reconciler {
	return &Reconciler{
		chainS:    chainS,
		chainN:    chainN,
		store:     st,
		cfg:       cfg,
		cfgS:      cfgS,
		cfgN:      cfgN,
		log:       logging.GetDefault().Component("reconciler"),
		vault:     cfgS.VaultUSDCAcct,
		treasury:  cfgN.TreasuryAccount,
		feesAcct:  cfgN.FeesAccount,
		tokenName: cfgN.TokenName,
	}
}

// Paused reports whether the reconciler currently has outbound payouts
// paused due to a backing deficit. Processors consult this before emitting
// any debit, refund, or quarantine transfer.
func (r *Reconciler) Paused() bool {
	return r.paused.Load()
}

// Run executes one reconciliation pass, bounded by ctx.
func (r *Reconciler) Run(ctx context.Context) error {
	vaultBal, err := r.chainS.GetTokenBalance(ctx, r.vault)
	if err != nil {
		return fmt.Errorf("reconciler: get vault balance: %w", err)
	}
	supply, err := r.chainN.GetTokenSupply(ctx, r.tokenName)
	if err != nil {
		return fmt.Errorf("reconciler: get token supply: %w", err)
	}

	if err := r.store.SaveLastVaultBalance(vaultBal, time.Now().Unix()); err != nil {
		r.log.Warn("save vault balance failed", "err", err)
	}

	deficit := vaultBal*100 < r.cfg.DeficitPausePct*supply
	wasPaused := r.paused.Swap(deficit)
	if deficit {
		if !wasPaused {
			r.log.Error("backing deficit detected, pausing outbound payouts",
				"vault_units", vaultBal, "supply_units", supply, "pause_pct", r.cfg.DeficitPausePct)
		}
		return nil
	}
	if wasPaused {
		r.log.Info("backing deficit cleared, resuming outbound payouts", "vault_units", vaultBal, "supply_units", supply)
	}

	return r.maybeEmitSurplusFees(ctx, vaultBal, supply)
}

// maybeEmitSurplusFees mints the vault's surplus over circulating supply to
// the fees account, but only when there is no pending S->D work (a pending
// debit could itself be the source of an apparent surplus) and the surplus
// clears the configured threshold.
func (r *Reconciler) maybeEmitSurplusFees(ctx context.Context, vaultBal, supply int64) error {
	if r.feesAcct == "" {
		return nil
	}

	pending, err := r.store.GetUnprocessedDepositsS()
	if err != nil {
		return fmt.Errorf("reconciler: check pending deposits: %w", err)
	}
	if len(pending) > 0 {
		return nil
	}

	if vaultBal < supply {
		return nil
	}
	surplus := vaultBal - supply
	if surplus < r.cfg.SurplusMintThresholdUSDCUnits {
		return nil
	}

	reference, err := r.store.NextReference()
	if err != nil {
		return fmt.Errorf("reconciler: next reference: %w", err)
	}
	res, err := r.chainN.TransferBetweenAccounts(ctx, r.treasury, r.feesAcct, surplus, reference)
	if err != nil {
		return fmt.Errorf("reconciler: mint surplus fees: %w", err)
	}
	if !res.OK {
		return nil
	}

	r.log.Info("minted surplus as fees", "units", surplus, "reference", reference, "txid", res.Txid)
	return r.store.RecordFeeEntry(&store.FeeEntry{
		Txid:            res.Txid,
		Kind:            "surplus_mint",
		AmountUSDDUnits: surplus,
		Timestamp:       time.Now().Unix(),
	})
}
