package bridge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/usdbridge/bridge/internal/chains"
	"github.com/usdbridge/bridge/internal/config"
	"github.com/usdbridge/bridge/internal/store"
	"github.com/usdbridge/bridge/pkg/logging"
)

const memoDepositPrefix = "nexus:"

// IngestS polls Chain-S for inbound T_S transfers to the vault and records
// them as unprocessed deposits, following
// original_source/src/swap_solana.py's poll_solana_deposits.
type IngestS struct {
	chain  chains.ChainS
	store  *store.Store
	cfg    config.ChainSConfig
	fees   config.FeeConfig
	log    *logging.Logger
	vault  string
}

// NewIngestS builds an IngestS poller for the vault's USDC token account.
func NewIngestS(chain chains.ChainS, st *store.Store, cfg config.ChainSConfig, fees config.FeeConfig, vaultUSDCAccount string) *IngestS {
	return &IngestS{
		chain: chain,
		store: st,
		cfg:   cfg,
		fees:  fees,
		log:   logging.GetDefault().Component("ingest-s"),
		vault: vaultUSDCAccount,
	}
}

// Run executes one poll cycle, bounded by ctx. sinceWaterline is the
// caller-applied safety-adjusted Chain-S waterline (spec §4.7); it is the
// floor below which no new signature needs fetching.
func (g *IngestS) Run(ctx context.Context, sinceWaterline int64) error {
	now := time.Now().Unix()

	currentBal, err := g.chain.GetTokenBalance(ctx, g.vault)
	if err != nil {
		return fmt.Errorf("ingest_s: get vault balance: %w", err)
	}
	lastBal, _, hadLast, err := g.store.LoadLastVaultBalance()
	if err != nil {
		return fmt.Errorf("ingest_s: load last vault balance: %w", err)
	}
	delta := currentBal
	if hadLast {
		delta = currentBal - lastBal
	}

	// Bug #11 fix: a micro-batch-sized delta only skips fetching *new*
	// signatures; existing unprocessed rows still get processed below.
	skipNewFetch := delta < g.fees.MinDepositUSDCUnits

	if skipNewFetch {
		if err := g.store.ProposeWaterlineS(now); err != nil {
			g.log.Warn("propose waterline failed", "err", err)
		}
		if err := g.store.SaveLastVaultBalance(currentBal, now); err != nil {
			g.log.Warn("save vault balance failed", "err", err)
		}
		g.log.Info("micro batch skipped", "delta_units", delta, "threshold", g.fees.MinDepositUSDCUnits)
	} else {
		if err := g.fetchNewDeposits(ctx, sinceWaterline); err != nil {
			g.log.Warn("fetch new deposits failed", "err", err)
		}
	}

	minPageTS, err := g.minUnprocessedTimestamp()
	if err != nil {
		g.log.Warn("compute waterline candidate failed", "err", err)
	} else if minPageTS > 0 {
		if err := g.store.ProposeWaterlineS(minPageTS); err != nil {
			g.log.Warn("propose waterline failed", "err", err)
		}
	}

	// Bug #7 fix: save the vault balance observed after this cycle's work,
	// not before, so the next cycle's delta reflects what actually moved.
	afterBal, err := g.chain.GetTokenBalance(ctx, g.vault)
	if err != nil {
		g.log.Warn("get post-cycle vault balance failed", "err", err)
		return nil
	}
	if err := g.store.SaveLastVaultBalance(afterBal, time.Now().Unix()); err != nil {
		g.log.Warn("save vault balance failed", "err", err)
	}
	return nil
}

// fetchNewDeposits pages in signatures since sinceWaterline and writes any
// not already tracked in any table as new unprocessed deposits.
func (g *IngestS) fetchNewDeposits(ctx context.Context, sinceWaterline int64) error {
	limit := g.cfg.MaxTxFetchPoll
	if limit <= 0 {
		limit = 120
	}
	sigs, err := g.chain.GetSignaturesForAddress(ctx, g.vault, sinceWaterline, limit)
	if err != nil {
		return fmt.Errorf("get signatures: %w", err)
	}

	added := 0
	for _, info := range sigs {
		if added >= g.fees.MaxDepositsPerLoop {
			break
		}
		known, err := g.isKnownSignature(info.Sig)
		if err != nil {
			g.log.Warn("check known signature failed", "sig", info.Sig, "err", err)
			continue
		}
		if known {
			continue
		}

		if info.AmountUnits < g.fees.MinDepositUSDCUnits {
			// Edge policy: a below-minimum deposit is retained whole as a
			// fee and never refunded. Nothing leaves the vault, so the
			// quarantine row records zero QuarantinedUnits.
			if err := g.store.RecordFeeEntry(&store.FeeEntry{
				Sig:             info.Sig,
				Kind:            "micro_fee",
				AmountUSDCUnits: info.AmountUnits,
				Timestamp:       info.Timestamp,
			}); err != nil {
				g.log.Warn("record micro fee failed", "sig", info.Sig, "err", err)
				continue
			}
			if err := g.store.PromoteDepositToQuarantined(&store.QuarantinedDepositS{
				Sig:              info.Sig,
				Timestamp:        info.Timestamp,
				FromAddress:      info.FromAddress,
				AmountUSDCUnits:  info.AmountUnits,
				Memo:             info.Memo,
				QuarantinedUnits: 0,
				Status:           store.StatusQuarantined,
			}); err != nil {
				g.log.Warn("quarantine micro deposit failed", "sig", info.Sig, "err", err)
			}
			if g.fees.MicroCountsAgainstCapS {
				added++
			}
			continue
		}

		// Full validation of the memo's destination account is cross-chain
		// (Chain-N) and happens in the processor; ingestion only checks
		// that a memo is present and parseable.
		status := store.DepositStatusNew
		if _, ok := parseDepositMemo(info.Memo); !ok {
			status = store.DepositStatusMemoUnresolved
		}

		if err := g.store.InsertUnprocessedDepositS(&store.UnprocessedDepositS{
			Sig:             info.Sig,
			Timestamp:       info.Timestamp,
			Memo:            info.Memo,
			FromAddress:     info.FromAddress,
			AmountUSDCUnits: info.AmountUnits,
			Status:          status,
		}); err != nil {
			g.log.Warn("insert unprocessed deposit failed", "sig", info.Sig, "err", err)
			continue
		}
		added++
	}
	g.log.Info("new deposits fetched", "count", added)
	return nil
}

// isKnownSignature reports whether sig already exists in any lifecycle
// table, so a repeated page fetch never re-inserts it.
func (g *IngestS) isKnownSignature(sig string) (bool, error) {
	if ok, err := g.store.IsUnprocessedDepositS(sig); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}
	if ok, err := g.store.IsProcessedDepositS(sig); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}
	if ok, err := g.store.IsRefundedDepositS(sig); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}
	if ok, err := g.store.IsQuarantinedDepositS(sig); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}
	return false, nil
}

// minUnprocessedTimestamp returns the oldest timestamp still sitting in the
// unprocessed table (0 when it is empty), which Run proposes as the Chain-S
// waterline candidate.
func (g *IngestS) minUnprocessedTimestamp() (int64, error) {
	rows, err := g.store.GetUnprocessedDepositsS()
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Timestamp, nil
}

// parseDepositMemo extracts the Chain-N account string from a deposit memo
// of the form "nexus:<addr>", per the on-chain conventions in spec §6.
func parseDepositMemo(memo string) (string, bool) {
	trimmed := strings.TrimSpace(memo)
	if !strings.HasPrefix(trimmed, memoDepositPrefix) {
		return "", false
	}
	addr := strings.TrimSpace(strings.TrimPrefix(trimmed, memoDepositPrefix))
	if addr == "" {
		return "", false
	}
	return addr, true
}
