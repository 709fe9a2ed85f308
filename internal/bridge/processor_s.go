package bridge

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/usdbridge/bridge/internal/chains"
	"github.com/usdbridge/bridge/internal/config"
	"github.com/usdbridge/bridge/internal/store"
	"github.com/usdbridge/bridge/pkg/helpers"
	"github.com/usdbridge/bridge/pkg/logging"
)

const minConfirmationsS = 1

// ProcessorS drives UnprocessedDeposit_S rows through the S->D state
// machine (spec §4.5), grounded on original_source/src/solana_client.py's
// refund_usdc_to_source/move_usdc_to_quarantine and
// original_source/src/nexus_client.py's debit_usdd_with_txid/
// check_unconfirmed_debits.
type ProcessorS struct {
	chainS   chains.ChainS
	chainN   chains.ChainN
	store    *store.Store
	ref      *ReferenceTracker
	retry    config.RetryConfig
	fees     config.FeeConfig
	cfgS     config.ChainSConfig
	cfgN     config.ChainNConfig
	log      *logging.Logger
	quarAcct string
	backing  *Backing
}

// Backing reports whether outbound payouts are currently paused by the
// reconciler (spec §4.8); it is read, never written, by the processors.
type Backing struct {
	paused func() bool
}

// NewBacking wraps a pause-flag predicate for the processors to consult.
func NewBacking(paused func() bool) *Backing {
	return &Backing{paused: paused}
}

func (b *Backing) isPaused() bool {
	return b != nil && b.paused != nil && b.paused()
}

// NewProcessorS builds a ProcessorS.
func NewProcessorS(chainS chains.ChainS, chainN chains.ChainN, st *store.Store, ref *ReferenceTracker, retry config.RetryConfig, fees config.FeeConfig, cfgS config.ChainSConfig, cfgN config.ChainNConfig, quarantineAccount string, backing *Backing) *ProcessorS {
	return &ProcessorS{
		chainS:   chainS,
		chainN:   chainN,
		store:    st,
		ref:      ref,
		retry:    retry,
		fees:     fees,
		cfgS:     cfgS,
		cfgN:     cfgN,
		log:      logging.GetDefault().Component("processor-s"),
		quarAcct: quarantineAccount,
		backing:  backing,
	}
}

// Run advances every unprocessed Chain-S deposit row one step, bounded by
// ctx's deadline.
func (p *ProcessorS) Run(ctx context.Context) error {
	rows, err := p.store.GetUnprocessedDepositsS()
	if err != nil {
		return fmt.Errorf("processor_s: load unprocessed: %w", err)
	}

	for _, row := range rows {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if err := p.step(ctx, row); err != nil {
			p.log.Warn("step failed", "sig", row.Sig, "status", row.Status, "err", err)
		}
	}
	return nil
}

func (p *ProcessorS) step(ctx context.Context, row store.UnprocessedDepositS) error {
	switch row.Status {
	case store.DepositStatusNew:
		return p.resolveNew(ctx, row)
	case store.DepositStatusMemoResolved:
		return p.tryDebit(ctx, row)
	case store.DepositStatusMemoUnresolved:
		return p.tryRefund(ctx, row, "memo missing or unparseable")
	case store.DepositStatusDebitPending:
		return p.checkConfirmation(ctx, row)
	}
	return p.maybeQuarantineStale(row)
}

// resolveNew validates the memo's Chain-N destination and transitions to
// either memo_resolved (ready for debit) or memo_unresolved (queue refund).
func (p *ProcessorS) resolveNew(ctx context.Context, row store.UnprocessedDepositS) error {
	addr, ok := parseDepositMemo(row.Memo)
	if !ok {
		return p.store.UpdateUnprocessedDepositSStatus(row.Sig, store.DepositStatusMemoUnresolved)
	}
	valid, err := p.chainN.IsValidAccount(ctx, addr)
	if err != nil || !valid {
		return p.store.UpdateUnprocessedDepositSStatus(row.Sig, store.DepositStatusMemoUnresolved)
	}
	return p.store.UpdateUnprocessedDepositSStatus(row.Sig, store.DepositStatusMemoResolved)
}

// tryDebit computes the fee split and issues the Chain-N debit. The
// reference it debits with is allocated and durably written to the row
// (status debit_pending, pending_reference set) before DebitAccount is ever
// called, per spec §4.1's crash-safety ordering: a crash after the debit
// lands on-chain but before this call returns leaves a row that
// checkConfirmation can reconcile on the very next cycle, using the same
// reference rather than risking a second debit under a freshly allocated
// one.
func (p *ProcessorS) tryDebit(ctx context.Context, row store.UnprocessedDepositS) error {
	if p.backing.isPaused() {
		return nil
	}
	addr, ok := parseDepositMemo(row.Memo)
	if !ok {
		return p.store.UpdateUnprocessedDepositSStatus(row.Sig, store.DepositStatusMemoUnresolved)
	}

	actionKey := DebitActionKey(row.Sig)
	should, err := p.ref.ShouldAttempt(actionKey)
	if err != nil {
		return err
	}
	if !should {
		return p.maybeQuarantineStale(row)
	}

	result := ComputeSwapFeeS(row.AmountUSDCUnits, p.fees)
	if result.PayoutUnits <= 0 {
		return p.tryRefund(ctx, row, "net payout is zero after fees")
	}
	payoutUSDDUnits := int64(helpers.ScaleAmount(uint64(result.PayoutUnits), p.cfgS.USDCDecimals, p.cfgN.USDDDecimals))

	acquired, err := p.ref.Reserve("debit", row.Sig)
	if err != nil {
		return err
	}
	if !acquired {
		return nil
	}
	defer p.ref.Release("debit", row.Sig)

	reference, err := p.ref.NextReference()
	if err != nil {
		return err
	}

	if err := p.ref.RecordAttempt(actionKey); err != nil {
		p.log.Warn("record attempt failed", "sig", row.Sig, "err", err)
	}

	if err := p.store.SetDepositPendingDebit(row.Sig, reference); err != nil {
		return fmt.Errorf("record pending debit reference: %w", err)
	}

	return p.issueDebit(ctx, row, addr, reference, payoutUSDDUnits)
}

// issueDebit performs the actual Chain-N debit call for a reference already
// durably recorded against row.Sig, and promotes as soon as DebitAccount
// reports success, without waiting for confirmations (only
// checkConfirmation gates promotion on minConfirmationsS).
func (p *ProcessorS) issueDebit(ctx context.Context, row store.UnprocessedDepositS, addr string, reference, payoutUSDDUnits int64) error {
	debitCtx, cancel := context.WithTimeout(ctx, time.Duration(p.cfgN.CLITimeoutSec)*time.Second)
	defer cancel()
	res, err := p.chainN.DebitAccount(debitCtx, "", addr, payoutUSDDUnits, reference)
	if err != nil {
		// TransientIO: leave the row debit_pending with its reference
		// intact, worth retrying next cycle via checkConfirmation.
		return fmt.Errorf("debit account: %w", err)
	}
	if !res.OK {
		return nil
	}

	return p.store.PromoteDepositToProcessed(&store.ProcessedDepositS{
		Sig:             row.Sig,
		Timestamp:       row.Timestamp,
		AmountUSDCUnits: row.AmountUSDCUnits,
		Txid:            res.Txid,
		AmountUSDDUnits: payoutUSDDUnits,
		Status:          store.StatusCompleted,
		Reference:       reference,
	})
}

// checkConfirmation handles a row left in debit_pending by a prior cycle.
// It first asks Chain-N whether a contract already carrying this row's
// pending reference exists (the debit landed but promotion never
// committed) and promotes from that if so, rather than ever reissuing a
// debit blind. Only when no such contract is found, and the retry budget
// allows it, does it reissue the debit — reusing the SAME reference so a
// third crash would still reconcile to one contract.
func (p *ProcessorS) checkConfirmation(ctx context.Context, row store.UnprocessedDepositS) error {
	addr, ok := parseDepositMemo(row.Memo)
	if !ok || row.PendingReference == 0 {
		return p.maybeQuarantineStale(row)
	}

	refStr := strconv.FormatInt(row.PendingReference, 10)
	txs, err := p.chainN.ListTransactionsForAccount(ctx, addr, 50)
	if err != nil {
		return fmt.Errorf("scan for pending debit: %w", err)
	}
	for _, tx := range txs {
		if tx.Reference != refStr {
			continue
		}
		if tx.Confirmations < minConfirmationsS {
			return nil
		}
		return p.store.PromoteDepositToProcessed(&store.ProcessedDepositS{
			Sig:             row.Sig,
			Timestamp:       row.Timestamp,
			AmountUSDCUnits: row.AmountUSDCUnits,
			Txid:            tx.Txid,
			AmountUSDDUnits: tx.AmountUnits,
			Status:          store.StatusCompleted,
			Reference:       row.PendingReference,
		})
	}

	if p.backing.isPaused() {
		return nil
	}
	actionKey := DebitActionKey(row.Sig)
	should, err := p.ref.ShouldAttempt(actionKey)
	if err != nil {
		return err
	}
	if !should {
		return p.maybeQuarantineStale(row)
	}

	result := ComputeSwapFeeS(row.AmountUSDCUnits, p.fees)
	payoutUSDDUnits := int64(helpers.ScaleAmount(uint64(result.PayoutUnits), p.cfgS.USDCDecimals, p.cfgN.USDDDecimals))

	if err := p.ref.RecordAttempt(actionKey); err != nil {
		p.log.Warn("record attempt failed", "sig", row.Sig, "err", err)
	}
	return p.issueDebit(ctx, row, addr, row.PendingReference, payoutUSDDUnits)
}

// tryRefund reserves the refund action and sends the deposit amount, minus
// the smaller refund flat fee, back to the sender's token account.
func (p *ProcessorS) tryRefund(ctx context.Context, row store.UnprocessedDepositS, reason string) error {
	if p.backing.isPaused() {
		return nil
	}
	actionKey := RefundActionKeyS(row.Sig)
	should, err := p.ref.ShouldAttempt(actionKey)
	if err != nil {
		return err
	}
	if !should {
		return p.maybeQuarantineStale(row)
	}

	acquired, err := p.ref.Reserve("refund_s", row.Sig)
	if err != nil {
		return err
	}
	if !acquired {
		return nil
	}
	defer p.ref.Release("refund_s", row.Sig)

	if err := p.ref.RecordAttempt(actionKey); err != nil {
		p.log.Warn("record attempt failed", "sig", row.Sig, "err", err)
	}

	refundUnits := RefundAmountS(row.AmountUSDCUnits, p.fees)
	if refundUnits <= 0 {
		return p.store.PromoteDepositToRefunded(&store.RefundedDepositS{
			Sig:             row.Sig,
			Timestamp:       row.Timestamp,
			FromAddress:     row.FromAddress,
			AmountUSDCUnits: row.AmountUSDCUnits,
			Memo:            row.Memo,
			RefundedUnits:   0,
			Status:          store.StatusRefunded,
		})
	}

	memo := fmt.Sprintf("refundSig:%s", row.Sig)

	// Idempotent-resend guard: if a refund carrying this memo already landed
	// (crash between send and promotion), recognize it instead of refunding
	// twice.
	if existing, err := p.chainS.ScanRecentMemos(ctx, 200); err == nil {
		if sig, ok := existing[memo]; ok {
			return p.store.PromoteDepositToRefunded(&store.RefundedDepositS{
				Sig:             row.Sig,
				Timestamp:       row.Timestamp,
				FromAddress:     row.FromAddress,
				AmountUSDCUnits: row.AmountUSDCUnits,
				Memo:            row.Memo,
				RefundSig:       sig,
				RefundedUnits:   refundUnits,
				Status:          store.StatusRefunded,
			})
		}
	}

	res, err := p.chainS.SendToken(ctx, row.FromAddress, refundUnits, memo)
	if err != nil {
		return fmt.Errorf("send refund: %w: %s", err, reason)
	}

	return p.store.PromoteDepositToRefunded(&store.RefundedDepositS{
		Sig:             row.Sig,
		Timestamp:       row.Timestamp,
		FromAddress:     row.FromAddress,
		AmountUSDCUnits: row.AmountUSDCUnits,
		Memo:            row.Memo,
		RefundSig:       res.Sig,
		RefundedUnits:   refundUnits,
		Status:          store.StatusRefunded,
	})
}

// maybeQuarantineStale moves a row aged past the stale-quarantine threshold
// into quarantine. It checks only the row's age, not its attempt count:
// callers reach it when ShouldAttempt refuses another attempt, which
// happens both at the attempt ceiling and while the retry cooldown has not
// yet elapsed, and when a row cannot be advanced at all. It does nothing
// while payouts are paused.
func (p *ProcessorS) maybeQuarantineStale(row store.UnprocessedDepositS) error {
	if p.backing.isPaused() {
		return nil
	}
	age := time.Now().Unix() - row.Timestamp
	if age < int64(p.retry.StaleQuarantineSec) {
		return nil
	}
	acquired, err := p.ref.Reserve("quarantine_s", row.Sig)
	if err != nil {
		return err
	}
	if !acquired {
		return nil
	}
	defer p.ref.Release("quarantine_s", row.Sig)

	memo := fmt.Sprintf("quarantinedSig:%s", row.Sig)

	if existing, err := p.chainS.ScanRecentMemos(context.Background(), 200); err == nil {
		if qsig, ok := existing[memo]; ok {
			return p.store.PromoteDepositToQuarantined(&store.QuarantinedDepositS{
				Sig:              row.Sig,
				Timestamp:        row.Timestamp,
				FromAddress:      row.FromAddress,
				AmountUSDCUnits:  row.AmountUSDCUnits,
				Memo:             row.Memo,
				QuarantineSig:    qsig,
				QuarantinedUnits: row.AmountUSDCUnits,
				Status:           store.StatusQuarantined,
			})
		}
	}

	res, err := p.chainS.SendToken(context.Background(), p.quarAcct, row.AmountUSDCUnits, memo)
	if err != nil {
		return fmt.Errorf("move to quarantine: %w", err)
	}
	return p.store.PromoteDepositToQuarantined(&store.QuarantinedDepositS{
		Sig:              row.Sig,
		Timestamp:        row.Timestamp,
		FromAddress:      row.FromAddress,
		AmountUSDCUnits:  row.AmountUSDCUnits,
		Memo:             row.Memo,
		QuarantineSig:    res.Sig,
		QuarantinedUnits: row.AmountUSDCUnits,
		Status:           store.StatusQuarantined,
	})
}
