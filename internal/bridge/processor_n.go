package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/usdbridge/bridge/internal/chains"
	"github.com/usdbridge/bridge/internal/config"
	"github.com/usdbridge/bridge/internal/store"
	"github.com/usdbridge/bridge/pkg/helpers"
	"github.com/usdbridge/bridge/pkg/logging"
)

const minConfirmationsN = 1

// ProcessorN drives UnprocessedCredit_N rows through the D->S state machine
// (spec §4.6), grounded on original_source/src/nexus_client.py's
// find_asset_receival_account_by_txid_and_owner/find_asset_receival_account_by_sig
// and original_source/src/solana_client.py's
// ensure_send_usdc_owner_or_ata/send_usdc_to_token_account_with_sig.
type ProcessorN struct {
	chainS       chains.ChainS
	chainN       chains.ChainN
	store        *store.Store
	ref          *ReferenceTracker
	retry        config.RetryConfig
	fees         config.FeeConfig
	cfgS         config.ChainSConfig
	cfgN         config.ChainNConfig
	log          *logging.Logger
	localAccount string
	quarantine   string
	backing      *Backing
}

// NewProcessorN builds a ProcessorN.
func NewProcessorN(chainS chains.ChainS, chainN chains.ChainN, st *store.Store, ref *ReferenceTracker, retry config.RetryConfig, fees config.FeeConfig, cfgS config.ChainSConfig, cfgN config.ChainNConfig, localAccount, quarantineAccount string, backing *Backing) *ProcessorN {
	return &ProcessorN{
		chainS:       chainS,
		chainN:       chainN,
		store:        st,
		ref:          ref,
		retry:        retry,
		fees:         fees,
		cfgS:         cfgS,
		cfgN:         cfgN,
		log:          logging.GetDefault().Component("processor-n"),
		localAccount: localAccount,
		quarantine:   quarantineAccount,
		backing:      backing,
	}
}

// Run advances every unprocessed Chain-N credit row one step, bounded by
// ctx's deadline.
func (p *ProcessorN) Run(ctx context.Context) error {
	rows, err := p.store.GetUnprocessedCreditsN()
	if err != nil {
		return fmt.Errorf("processor_n: load unprocessed: %w", err)
	}

	for _, row := range rows {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if err := p.step(ctx, row); err != nil {
			p.log.Warn("step failed", "txid", row.Txid, "status", row.Status, "err", err)
		}
	}
	return nil
}

func (p *ProcessorN) step(ctx context.Context, row store.UnprocessedCreditN) error {
	switch row.Status {
	case store.DepositStatusNew:
		if IsTinyCreditN(row.AmountUSDDUnits, p.fees) {
			return p.routeTiny(ctx, row)
		}
		return p.trySend(ctx, row)
	case store.DepositStatusMemoUnresolved:
		return p.tryRefund(ctx, row)
	case store.DepositStatusSendPending:
		return p.checkSendConfirmation(ctx, row)
	}
	return p.maybeQuarantineStale(ctx, row)
}

// resolveRecipient finds the Chain-S token account a credit should pay out
// to. Resolution order per spec §4.6: the asset registry first (a prior
// outbound send to this owner recorded the txid against an asset, the
// strongest signal of intent), falling back to the credit's own
// "solana:<addr>" reference field. The oldest (created, modified) match
// wins when the registry returns more than one candidate, mirroring
// find_asset_receival_account_by_txid_and_owner's multi-match handling.
func (p *ProcessorN) resolveRecipient(ctx context.Context, row store.UnprocessedCreditN) (string, error) {
	assets, err := p.chainN.FindAssetByFields(ctx, chains.AssetPredicate{
		"txid_toService": row.Txid,
		"owner":          row.OwnerFromAddress,
	})
	if err == nil && len(assets) > 0 {
		if addr, ok := assets[0].Fields["receival_account"]; ok && addr != "" {
			return addr, nil
		}
	}
	if row.ReceivalAccount != "" {
		return row.ReceivalAccount, nil
	}
	return "", nil
}

// resolveSendDestination decides whether addr already names a Chain-S token
// account for the configured mint, or whether it is an owner address whose
// associated token account must be derived first, mirroring
// ensure_send_usdc_owner_or_ata's dual-path check.
func (p *ProcessorN) resolveSendDestination(ctx context.Context, addr string) (string, error) {
	isTokenAcct, err := p.chainS.IsTokenAccountForMint(ctx, addr)
	if err != nil {
		return "", fmt.Errorf("check token account: %w", err)
	}
	if isTokenAcct {
		return addr, nil
	}
	ata, err := p.chainS.DeriveATA(ctx, addr)
	if err != nil {
		return "", fmt.Errorf("derive ata: %w", err)
	}
	return ata, nil
}

// trySend resolves the recipient, derives/validates the destination token
// account, and computes the payout, then hands off to issueSend. The row is
// moved to send_pending (with no signature yet) before issueSend is ever
// called, per spec §4.1's crash-safety ordering: a crash between here and a
// signature landing leaves a row that checkSendConfirmation can reconcile by
// re-scanning for the "nexus_txid:<txid>" memo rather than silently losing
// track of whether a send went out.
func (p *ProcessorN) trySend(ctx context.Context, row store.UnprocessedCreditN) error {
	if p.backing.isPaused() {
		return nil
	}

	addr, err := p.resolveRecipient(ctx, row)
	if err != nil {
		p.log.Warn("resolve recipient failed", "txid", row.Txid, "err", err)
	}
	if addr == "" {
		return p.store.UpdateUnprocessedCreditNStatus(row.Txid, store.DepositStatusMemoUnresolved)
	}

	actionKey := SendActionKey(row.Txid)
	should, err := p.ref.ShouldAttempt(actionKey)
	if err != nil {
		return err
	}
	if !should {
		return p.maybeQuarantineStale(ctx, row)
	}

	dest, err := p.resolveSendDestination(ctx, addr)
	if err != nil {
		// A recipient that resolves to neither a token account nor a valid
		// owner is not retryable by waiting; queue a refund instead.
		return p.store.UpdateUnprocessedCreditNStatus(row.Txid, store.DepositStatusMemoUnresolved)
	}

	acquired, err := p.ref.Reserve("send_s", row.Txid)
	if err != nil {
		return err
	}
	if !acquired {
		return nil
	}
	defer p.ref.Release("send_s", row.Txid)

	if err := p.ref.RecordAttempt(actionKey); err != nil {
		p.log.Warn("record attempt failed", "txid", row.Txid, "err", err)
	}

	result := ComputeSwapFeeN(row.AmountUSDDUnits, p.fees)
	if result.PayoutUnits <= 0 {
		return p.tryRefund(ctx, row)
	}
	payoutUSDCUnits := int64(helpers.ScaleAmount(uint64(result.PayoutUnits), p.cfgN.USDDDecimals, p.cfgS.USDCDecimals))

	if err := p.store.SetCreditPendingSend(row.Txid, "", payoutUSDCUnits); err != nil {
		return fmt.Errorf("record pending send: %w", err)
	}

	return p.issueSend(ctx, row.Txid, dest, payoutUSDCUnits)
}

// issueSend performs the actual Chain-S send for a payout amount already
// durably recorded against row.Txid, stamping the confirmatory
// "nexus_txid:<txid>" memo so a crash-and-resend is recognizable. It never
// promotes to terminal itself — spec §4.6 step 4 requires the adapter to
// report confirmation first, which checkSendConfirmation verifies on a
// later cycle.
func (p *ProcessorN) issueSend(ctx context.Context, txid, dest string, payoutUSDCUnits int64) error {
	memo := fmt.Sprintf("nexus_txid:%s", txid)

	// Idempotent-resend guard: if a send carrying this txid's memo already
	// landed (crash between send and this write), recognize it instead of
	// sending twice.
	if existing, err := p.chainS.ScanRecentMemos(ctx, 200); err == nil {
		if sig, ok := existing[memo]; ok {
			return p.store.SetCreditPendingSend(txid, sig, payoutUSDCUnits)
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, time.Duration(p.cfgS.RPCTimeoutSec)*time.Second)
	defer cancel()
	res, err := p.chainS.SendToken(sendCtx, dest, payoutUSDCUnits, memo)
	if err != nil {
		// TransientIO: leave the row send_pending with no signature; worth
		// retrying next cycle via checkSendConfirmation.
		return fmt.Errorf("send token: %w", err)
	}

	return p.store.SetCreditPendingSend(txid, res.Sig, payoutUSDCUnits)
}

// checkSendConfirmation handles a row left in send_pending by a prior cycle.
// With no signature recorded yet, it retries issueSend (which itself
// re-checks for a landed send before ever resubmitting). With a signature
// recorded, it asks Chain-S for that signature's confirmation count and
// only promotes once it clears minConfirmationsN, mirroring
// processor_s.go's checkConfirmation.
func (p *ProcessorN) checkSendConfirmation(ctx context.Context, row store.UnprocessedCreditN) error {
	if row.PendingSig == "" {
		if p.backing.isPaused() {
			return nil
		}
		actionKey := SendActionKey(row.Txid)
		should, err := p.ref.ShouldAttempt(actionKey)
		if err != nil {
			return err
		}
		if !should {
			return p.maybeQuarantineStale(ctx, row)
		}

		addr, err := p.resolveRecipient(ctx, row)
		if err != nil || addr == "" {
			return p.store.UpdateUnprocessedCreditNStatus(row.Txid, store.DepositStatusMemoUnresolved)
		}
		dest, err := p.resolveSendDestination(ctx, addr)
		if err != nil {
			return p.store.UpdateUnprocessedCreditNStatus(row.Txid, store.DepositStatusMemoUnresolved)
		}

		if err := p.ref.RecordAttempt(actionKey); err != nil {
			p.log.Warn("record attempt failed", "txid", row.Txid, "err", err)
		}
		return p.issueSend(ctx, row.Txid, dest, row.PendingUSDCUnits)
	}

	confirmations, err := p.chainS.GetConfirmations(ctx, row.PendingSig)
	if err != nil {
		return fmt.Errorf("check send confirmation: %w", err)
	}
	if confirmations < minConfirmationsN {
		return nil
	}
	return p.promoteSend(row, row.PendingSig, row.PendingUSDCUnits)
}

func (p *ProcessorN) promoteSend(row store.UnprocessedCreditN, sig string, payoutUSDCUnits int64) error {
	return p.store.PromoteCreditToProcessed(&store.ProcessedCreditN{
		Txid:            row.Txid,
		Timestamp:       row.Timestamp,
		AmountUSDDUnits: row.AmountUSDDUnits,
		AmountUSDCUnits: payoutUSDCUnits,
		FromAddress:     row.FromAddress,
		ToAddress:       row.ToAddress,
		Owner:           row.OwnerFromAddress,
		Sig:             sig,
		Status:          store.StatusCompleted,
	})
}

// routeTiny moves a below-threshold credit into the bridge's local account
// instead of swapping it, per swap_nexus.py's tiny-deposit routing.
func (p *ProcessorN) routeTiny(ctx context.Context, row store.UnprocessedCreditN) error {
	if p.backing.isPaused() {
		return nil
	}
	actionKey := fmt.Sprintf("route_tiny_n:%s", row.Txid)
	should, err := p.ref.ShouldAttempt(actionKey)
	if err != nil {
		return err
	}
	if !should {
		return p.maybeQuarantineStale(ctx, row)
	}

	acquired, err := p.ref.Reserve("route_tiny", row.Txid)
	if err != nil {
		return err
	}
	if !acquired {
		return nil
	}
	defer p.ref.Release("route_tiny", row.Txid)

	if err := p.ref.RecordAttempt(actionKey); err != nil {
		p.log.Warn("record attempt failed", "txid", row.Txid, "err", err)
	}

	reference, err := p.ref.NextReference()
	if err != nil {
		return err
	}
	res, err := p.chainN.TransferBetweenAccounts(ctx, row.ToAddress, p.localAccount, row.AmountUSDDUnits, reference)
	if err != nil {
		return fmt.Errorf("route tiny credit: %w", err)
	}
	if !res.OK {
		return nil
	}
	return p.store.PromoteCreditToProcessed(&store.ProcessedCreditN{
		Txid:            row.Txid,
		Timestamp:       row.Timestamp,
		AmountUSDDUnits: row.AmountUSDDUnits,
		FromAddress:     row.FromAddress,
		ToAddress:       p.localAccount,
		Owner:           row.OwnerFromAddress,
		Status:          store.StatusCompleted,
	})
}

// tryRefund reserves the refund action and moves the credited amount back
// to the sender's own Chain-N account, mirroring nexus_client.py's
// refund_usdd.
func (p *ProcessorN) tryRefund(ctx context.Context, row store.UnprocessedCreditN) error {
	if p.backing.isPaused() {
		return nil
	}
	actionKey := RefundActionKeyN(row.Txid)
	should, err := p.ref.ShouldAttempt(actionKey)
	if err != nil {
		return err
	}
	if !should {
		return p.maybeQuarantineStale(ctx, row)
	}

	acquired, err := p.ref.Reserve("refund_n", row.Txid)
	if err != nil {
		return err
	}
	if !acquired {
		return nil
	}
	defer p.ref.Release("refund_n", row.Txid)

	if err := p.ref.RecordAttempt(actionKey); err != nil {
		p.log.Warn("record attempt failed", "txid", row.Txid, "err", err)
	}

	reference, err := p.ref.NextReference()
	if err != nil {
		return err
	}
	res, err := p.chainN.TransferBetweenAccounts(ctx, row.ToAddress, row.FromAddress, row.AmountUSDDUnits, reference)
	if err != nil {
		return fmt.Errorf("refund credit: %w", err)
	}
	if !res.OK {
		return nil
	}
	return p.store.PromoteCreditToRefunded(&store.RefundedCreditN{
		Txid:             row.Txid,
		Timestamp:        row.Timestamp,
		AmountUSDDUnits:  row.AmountUSDDUnits,
		FromAddress:      row.FromAddress,
		ToAddress:        row.ToAddress,
		OwnerFromAddress: row.OwnerFromAddress,
		Confirmations:    row.Confirmations,
		Status:           store.StatusRefunded,
		Sig:              res.Txid,
	})
}

// maybeQuarantineStale moves a row aged past the stale threshold into
// quarantine. It checks only the row's age, not its attempt count: callers
// reach it when ShouldAttempt refuses another attempt, which happens both
// at the attempt ceiling and while the retry cooldown has not yet elapsed,
// and when a row's status has no other handler. It does nothing while
// payouts are paused.
func (p *ProcessorN) maybeQuarantineStale(ctx context.Context, row store.UnprocessedCreditN) error {
	if p.backing.isPaused() {
		return nil
	}
	age := time.Now().Unix() - row.Timestamp
	if age < int64(p.retry.StaleRowSec) {
		return nil
	}
	acquired, err := p.ref.Reserve("quarantine_n", row.Txid)
	if err != nil {
		return err
	}
	if !acquired {
		return nil
	}
	defer p.ref.Release("quarantine_n", row.Txid)

	reference, err := p.ref.NextReference()
	if err != nil {
		return err
	}
	res, err := p.chainN.TransferBetweenAccounts(ctx, row.ToAddress, p.quarantine, row.AmountUSDDUnits, reference)
	if err != nil {
		return fmt.Errorf("move to quarantine: %w", err)
	}
	return p.store.PromoteCreditToQuarantined(&store.QuarantinedCreditN{
		Txid:            row.Txid,
		Timestamp:       row.Timestamp,
		AmountUSDDUnits: row.AmountUSDDUnits,
		FromAddress:     row.FromAddress,
		ToAddress:       p.quarantine,
		Owner:           row.OwnerFromAddress,
		Sig:             res.Txid,
		Status:          store.StatusQuarantined,
	})
}
