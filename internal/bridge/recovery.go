package bridge

import (
	"context"
	"fmt"

	"github.com/usdbridge/bridge/internal/chains"
	"github.com/usdbridge/bridge/internal/config"
	"github.com/usdbridge/bridge/internal/store"
	"github.com/usdbridge/bridge/pkg/helpers"
	"github.com/usdbridge/bridge/pkg/logging"
)

const (
	memoTxidPrefix    = "nexus_txid:"
	memoRefundPrefix  = "refundSig:"
	memoQuarantinePfx = "quarantinedSig:"
)

// Recovery scans the vault's recent memo history at startup and reconciles
// any unprocessed row whose corresponding on-chain send already landed but
// whose promotion never committed, per spec §4.9, grounded on
// original_source/src/startup_recovery.py's
// reconstruct_processed_from_memos/perform_startup_recovery. Every terminal
// field it writes is recomputed deterministically from the still-present
// unprocessed row and the fee schedule, the same way the processors
// themselves would compute it — Recovery never trusts a remembered amount,
// only the memo's existence as proof the send happened. It is additive and
// idempotent: running it twice inserts nothing the first run didn't already
// insert, and it is a backstop underneath the processors' own in-band
// ScanRecentMemos guards (trySend, tryRefund, maybeQuarantineStale), not
// their replacement.
type Recovery struct {
	chainS chains.ChainS
	store  *store.Store
	fees   config.FeeConfig
	cfgS   config.ChainSConfig
	cfgN   config.ChainNConfig
	log    *logging.Logger
}

// NewRecovery builds a Recovery pass over the vault token account.
func NewRecovery(chainS chains.ChainS, st *store.Store, fees config.FeeConfig, cfgS config.ChainSConfig, cfgN config.ChainNConfig) *Recovery {
	return &Recovery{
		chainS: chainS,
		store:  st,
		fees:   fees,
		cfgS:   cfgS,
		cfgN:   cfgN,
		log:    logging.GetDefault().Component("recovery"),
	}
}

// Run scans the vault's recent memos once and reconciles every still-open
// unprocessed row against them, then seeds the reference counter.
func (rc *Recovery) Run(ctx context.Context) error {
	memos, err := rc.chainS.ScanRecentMemos(ctx, 200)
	if err != nil {
		return fmt.Errorf("recovery: scan memos: %w", err)
	}

	recoveredSends, err := rc.recoverSends(memos)
	if err != nil {
		return fmt.Errorf("recovery: recover sends: %w", err)
	}
	recoveredRefunds, recoveredQuarantines, err := rc.recoverDeposits(memos)
	if err != nil {
		return fmt.Errorf("recovery: recover deposits: %w", err)
	}

	if err := rc.seedReferenceCounter(); err != nil {
		return fmt.Errorf("recovery: seed reference counter: %w", err)
	}

	rc.log.Info("startup recovery complete",
		"recovered_sends", recoveredSends,
		"recovered_refunds", recoveredRefunds,
		"recovered_quarantines", recoveredQuarantines)
	return nil
}

// recoverSends matches still-unprocessed Chain-N credits against a
// "nexus_txid:<t>" memo, reconstructing the D->S payout trySend would have
// promoted had the crash landed one step later.
func (rc *Recovery) recoverSends(memos map[string]string) (int, error) {
	rows, err := rc.store.GetUnprocessedCreditsN()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, row := range rows {
		sig, ok := memos[memoTxidPrefix+row.Txid]
		if !ok {
			continue
		}
		done, err := rc.store.IsProcessedCreditN(row.Txid)
		if err != nil {
			return count, err
		}
		if done {
			continue
		}

		result := ComputeSwapFeeN(row.AmountUSDDUnits, rc.fees)
		payoutUSDCUnits := int64(helpers.ScaleAmount(uint64(result.PayoutUnits), rc.cfgN.USDDDecimals, rc.cfgS.USDCDecimals))

		if err := rc.store.PromoteCreditToProcessed(&store.ProcessedCreditN{
			Txid:            row.Txid,
			Timestamp:       row.Timestamp,
			AmountUSDDUnits: row.AmountUSDDUnits,
			AmountUSDCUnits: payoutUSDCUnits,
			FromAddress:     row.FromAddress,
			ToAddress:       row.ToAddress,
			Owner:           row.OwnerFromAddress,
			Sig:             sig,
			Status:          store.StatusRecoveredFromMemo,
		}); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// recoverDeposits matches still-unprocessed Chain-S deposits against their
// "refundSig:<s>" or "quarantinedSig:<s>" memo, reconstructing whichever
// terminal row tryRefund/maybeQuarantineStale would have promoted.
func (rc *Recovery) recoverDeposits(memos map[string]string) (refunds, quarantines int, err error) {
	rows, err := rc.store.GetUnprocessedDepositsS()
	if err != nil {
		return 0, 0, err
	}

	for _, row := range rows {
		if sig, ok := memos[memoRefundPrefix+row.Sig]; ok {
			refundUnits := RefundAmountS(row.AmountUSDCUnits, rc.fees)
			if err := rc.store.PromoteDepositToRefunded(&store.RefundedDepositS{
				Sig:             row.Sig,
				Timestamp:       row.Timestamp,
				FromAddress:     row.FromAddress,
				AmountUSDCUnits: row.AmountUSDCUnits,
				Memo:            row.Memo,
				RefundSig:       sig,
				RefundedUnits:   refundUnits,
				Status:          store.StatusRecoveredFromMemo,
			}); err != nil {
				return refunds, quarantines, err
			}
			refunds++
			continue
		}
		if sig, ok := memos[memoQuarantinePfx+row.Sig]; ok {
			if err := rc.store.PromoteDepositToQuarantined(&store.QuarantinedDepositS{
				Sig:              row.Sig,
				Timestamp:        row.Timestamp,
				FromAddress:      row.FromAddress,
				AmountUSDCUnits:  row.AmountUSDCUnits,
				Memo:             row.Memo,
				QuarantineSig:    sig,
				QuarantinedUnits: row.AmountUSDCUnits,
				Status:           store.StatusRecoveredFromMemo,
			}); err != nil {
				return refunds, quarantines, err
			}
			quarantines++
		}
	}
	return refunds, quarantines, nil
}

// seedReferenceCounter ensures the monotone reference counter starts no
// lower than the highest reference already recorded, so a fresh deployment
// pointed at an existing database never reissues a reference.
func (rc *Recovery) seedReferenceCounter() error {
	max, err := rc.store.LatestReference()
	if err != nil {
		return err
	}
	if max <= 0 {
		return nil
	}
	for {
		next, err := rc.store.NextReference()
		if err != nil {
			return err
		}
		if next > max {
			return nil
		}
	}
}
