package store

import (
	"os"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "bridge-store-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	st, err := New(&Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestUnprocessedDepositSLifecycle(t *testing.T) {
	st := newTestStore(t)

	d := &UnprocessedDepositS{
		Sig:             "sig1",
		Timestamp:       1000,
		Memo:            "nexus:addr1",
		FromAddress:     "source1",
		AmountUSDCUnits: 5_000_000,
		Status:          DepositStatusNew,
	}
	if err := st.InsertUnprocessedDepositS(d); err != nil {
		t.Fatalf("InsertUnprocessedDepositS() error = %v", err)
	}

	ok, err := st.IsUnprocessedDepositS("sig1")
	if err != nil || !ok {
		t.Fatalf("IsUnprocessedDepositS() = %v, %v, want true, nil", ok, err)
	}

	rows, err := st.GetUnprocessedDepositsS()
	if err != nil {
		t.Fatalf("GetUnprocessedDepositsS() error = %v", err)
	}
	if len(rows) != 1 || rows[0].Sig != "sig1" {
		t.Fatalf("GetUnprocessedDepositsS() = %+v, want one row with sig1", rows)
	}

	// Re-inserting the same signature is an idempotent update, not a
	// duplicate row.
	d.Status = DepositStatusMemoResolved
	if err := st.InsertUnprocessedDepositS(d); err != nil {
		t.Fatalf("re-insert error = %v", err)
	}
	rows, _ = st.GetUnprocessedDepositsS()
	if len(rows) != 1 {
		t.Fatalf("expected re-insert to update in place, got %d rows", len(rows))
	}
	if rows[0].Status != DepositStatusMemoResolved {
		t.Errorf("Status = %s, want %s", rows[0].Status, DepositStatusMemoResolved)
	}

	if err := st.SetDepositPendingDebit("sig1", 42); err != nil {
		t.Fatalf("SetDepositPendingDebit() error = %v", err)
	}
	rows, _ = st.GetUnprocessedDepositsS()
	if rows[0].Status != DepositStatusDebitPending || rows[0].PendingReference != 42 {
		t.Errorf("after SetDepositPendingDebit: status=%s pending_reference=%d, want debit_pending/42",
			rows[0].Status, rows[0].PendingReference)
	}

	if err := st.PromoteDepositToProcessed(&ProcessedDepositS{
		Sig: "sig1", Timestamp: 1000, AmountUSDCUnits: 5_000_000, Txid: "txid1",
		AmountUSDDUnits: 4_990_000, Status: StatusCompleted, Reference: 42,
	}); err != nil {
		t.Fatalf("PromoteDepositToProcessed() error = %v", err)
	}

	ok, _ = st.IsUnprocessedDepositS("sig1")
	if ok {
		t.Error("deposit should no longer be unprocessed after promotion")
	}
	ok, err = st.IsProcessedDepositS("sig1")
	if err != nil || !ok {
		t.Fatalf("IsProcessedDepositS() = %v, %v, want true, nil", ok, err)
	}

	latest, err := st.LatestReference()
	if err != nil || latest != 42 {
		t.Fatalf("LatestReference() = %d, %v, want 42, nil", latest, err)
	}
}

func TestPromoteDepositToProcessedIsIdempotent(t *testing.T) {
	st := newTestStore(t)

	p := &ProcessedDepositS{
		Sig: "sig-dup", Timestamp: 1, AmountUSDCUnits: 1, Txid: "t", AmountUSDDUnits: 1,
		Status: StatusCompleted, Reference: 1,
	}
	if err := st.PromoteDepositToProcessed(p); err != nil {
		t.Fatalf("first promote error = %v", err)
	}
	if err := st.PromoteDepositToProcessed(p); err != nil {
		t.Fatalf("second promote (same sig) should not error, got %v", err)
	}

	rows, err := st.GetUnprocessedDepositsS()
	if err != nil {
		t.Fatalf("GetUnprocessedDepositsS() error = %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no unprocessed rows left, got %d", len(rows))
	}
}

func TestDepositRefundAndQuarantineLifecycle(t *testing.T) {
	st := newTestStore(t)

	if err := st.InsertUnprocessedDepositS(&UnprocessedDepositS{
		Sig: "sig-refund", Timestamp: 1, FromAddress: "src", AmountUSDCUnits: 100, Status: DepositStatusNew,
	}); err != nil {
		t.Fatalf("insert error = %v", err)
	}
	if err := st.PromoteDepositToRefunded(&RefundedDepositS{
		Sig: "sig-refund", Timestamp: 1, FromAddress: "src", AmountUSDCUnits: 100,
		RefundSig: "refund-sig", RefundedUnits: 95, Status: StatusRefunded,
	}); err != nil {
		t.Fatalf("PromoteDepositToRefunded() error = %v", err)
	}
	ok, err := st.IsRefundedDepositS("sig-refund")
	if err != nil || !ok {
		t.Fatalf("IsRefundedDepositS() = %v, %v, want true, nil", ok, err)
	}

	if err := st.InsertUnprocessedDepositS(&UnprocessedDepositS{
		Sig: "sig-quar", Timestamp: 2, FromAddress: "src2", AmountUSDCUnits: 1, Status: DepositStatusNew,
	}); err != nil {
		t.Fatalf("insert error = %v", err)
	}
	if err := st.PromoteDepositToQuarantined(&QuarantinedDepositS{
		Sig: "sig-quar", Timestamp: 2, FromAddress: "src2", AmountUSDCUnits: 1,
		QuarantineSig: "q-sig", QuarantinedUnits: 1, Status: StatusQuarantined,
	}); err != nil {
		t.Fatalf("PromoteDepositToQuarantined() error = %v", err)
	}

	qs, err := st.GetQuarantinedDepositsS()
	if err != nil {
		t.Fatalf("GetQuarantinedDepositsS() error = %v", err)
	}
	if len(qs) != 1 || qs[0].Sig != "sig-quar" {
		t.Fatalf("GetQuarantinedDepositsS() = %+v, want one row sig-quar", qs)
	}

	ok, _ = st.IsUnprocessedDepositS("sig-quar")
	if ok {
		t.Error("quarantined deposit should no longer be unprocessed")
	}
}
