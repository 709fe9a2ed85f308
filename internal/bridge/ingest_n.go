package bridge

import (
	"context"
	"fmt"
	"strings"

	"github.com/usdbridge/bridge/internal/chains"
	"github.com/usdbridge/bridge/internal/config"
	"github.com/usdbridge/bridge/internal/store"
	"github.com/usdbridge/bridge/pkg/logging"
)

const solanaRefPrefix = "solana:"

// IngestN polls Chain-N for inbound transfers into the treasury account and
// records them as unprocessed credits, following
// original_source/src/swap_nexus.py's poll_nexus_usdd_deposits.
type IngestN struct {
	chain    chains.ChainN
	store    *store.Store
	cfg      config.ChainNConfig
	fees     config.FeeConfig
	log      *logging.Logger
	treasury string
}

// NewIngestN builds an IngestN poller for the treasury account.
func NewIngestN(chain chains.ChainN, st *store.Store, cfg config.ChainNConfig, fees config.FeeConfig, treasuryAccount string) *IngestN {
	return &IngestN{
		chain:    chain,
		store:    st,
		cfg:      cfg,
		fees:     fees,
		log:      logging.GetDefault().Component("ingest-n"),
		treasury: treasuryAccount,
	}
}

// Run executes one poll cycle, bounded by ctx. waterlineCutoff is the
// caller-applied safety-adjusted Chain-N waterline; transactions strictly
// older than it are skipped on the assumption they were already resolved.
func (g *IngestN) Run(ctx context.Context, waterlineCutoff int64) error {
	limit := 100
	txs, err := g.chain.ListTransactionsForAccount(ctx, g.treasury, limit)
	if err != nil {
		return fmt.Errorf("ingest_n: list transactions: %w", err)
	}

	added := 0
	var minPageTS int64
	for _, tx := range txs {
		if tx.Timestamp > 0 && (minPageTS == 0 || tx.Timestamp < minPageTS) {
			minPageTS = tx.Timestamp
		}
		if waterlineCutoff > 0 && tx.Timestamp > 0 && tx.Timestamp < waterlineCutoff {
			continue
		}
		if tx.Confirmations <= 0 {
			continue
		}
		if tx.ToAddress != g.treasury {
			continue
		}
		processedKey := fmt.Sprintf("%s:%s", tx.Txid, tx.ContractID)

		known, err := g.isKnownKey(tx.Txid)
		if err != nil {
			g.log.Warn("check known credit failed", "txid", tx.Txid, "err", err)
			continue
		}
		if known {
			continue
		}

		if tx.AmountUnits <= 0 {
			continue
		}

		if added >= g.fees.MaxCreditsPerLoop {
			break
		}

		// Tiny-deposit routing: below-threshold credits are not swapped,
		// only recorded as retained fee value; the actual routing transfer
		// to the local account is a processor concern (reservation-gated).
		isTiny := IsTinyCreditN(tx.AmountUnits, g.fees)

		reference := extractSolanaReference(tx.Reference)

		if err := g.store.InsertUnprocessedCreditN(&store.UnprocessedCreditN{
			Txid:             tx.Txid,
			Timestamp:        tx.Timestamp,
			AmountUSDDUnits:  tx.AmountUnits,
			FromAddress:      tx.FromAddress,
			ToAddress:        tx.ToAddress,
			OwnerFromAddress: tx.OwnerFrom,
			Confirmations:    tx.Confirmations,
			Status:           store.DepositStatusNew,
			ReceivalAccount:  reference,
		}); err != nil {
			g.log.Warn("insert unprocessed credit failed", "txid", tx.Txid, "key", processedKey, "err", err)
			continue
		}
		if g.fees.MicroCountsAgainstCapN || !isTiny {
			added++
		}
	}

	// A non-full page means we have seen the entire recent history for this
	// account, so it is safe to propose the oldest timestamp on the page as
	// a waterline; a full page may hide older, not-yet-fetched rows.
	if len(txs) < limit && minPageTS > 0 {
		if err := g.store.ProposeWaterlineN(minPageTS); err != nil {
			g.log.Warn("propose waterline failed", "err", err)
		}
	}

	g.log.Info("new credits fetched", "count", added)
	return nil
}

func (g *IngestN) isKnownKey(txid string) (bool, error) {
	if ok, err := g.store.IsUnprocessedCreditN(txid); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}
	if ok, err := g.store.IsProcessedCreditN(txid); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}
	if ok, err := g.store.IsRefundedCreditN(txid); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}
	if ok, err := g.store.IsQuarantinedCreditN(txid); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}
	return false, nil
}

// extractSolanaReference pulls the Chain-S address out of a contract
// reference of the form "solana:<addr>", per the on-chain conventions in
// spec §6. Returns "" if the reference is missing or not in that form.
func extractSolanaReference(ref string) string {
	trimmed := strings.TrimSpace(ref)
	lower := strings.ToLower(trimmed)
	if !strings.HasPrefix(lower, solanaRefPrefix) {
		return ""
	}
	addr := strings.TrimSpace(trimmed[len(solanaRefPrefix):])
	return addr
}
