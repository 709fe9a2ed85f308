package store

import "testing"

func TestSumLandedDepositsSUSDCAcrossAllLifecycles(t *testing.T) {
	st := newTestStore(t)

	if err := st.InsertUnprocessedDepositS(&UnprocessedDepositS{
		Sig: "sig-unproc", Timestamp: 1, FromAddress: "a", AmountUSDCUnits: 100, Status: DepositStatusNew,
	}); err != nil {
		t.Fatalf("insert unprocessed error = %v", err)
	}
	if err := st.PromoteDepositToProcessed(&ProcessedDepositS{
		Sig: "sig-proc", Timestamp: 2, AmountUSDCUnits: 200, Txid: "t", AmountUSDDUnits: 199,
		Status: StatusCompleted, Reference: 1,
	}); err != nil {
		t.Fatalf("promote processed error = %v", err)
	}
	if err := st.InsertUnprocessedDepositS(&UnprocessedDepositS{
		Sig: "sig-refund", Timestamp: 3, FromAddress: "a", AmountUSDCUnits: 300, Status: DepositStatusNew,
	}); err != nil {
		t.Fatalf("insert error = %v", err)
	}
	if err := st.PromoteDepositToRefunded(&RefundedDepositS{
		Sig: "sig-refund", Timestamp: 3, FromAddress: "a", AmountUSDCUnits: 300,
		RefundSig: "r", RefundedUnits: 290, Status: StatusRefunded,
	}); err != nil {
		t.Fatalf("promote refunded error = %v", err)
	}
	if err := st.InsertUnprocessedDepositS(&UnprocessedDepositS{
		Sig: "sig-quar", Timestamp: 4, FromAddress: "a", AmountUSDCUnits: 400, Status: DepositStatusNew,
	}); err != nil {
		t.Fatalf("insert error = %v", err)
	}
	if err := st.PromoteDepositToQuarantined(&QuarantinedDepositS{
		Sig: "sig-quar", Timestamp: 4, FromAddress: "a", AmountUSDCUnits: 400,
		QuarantineSig: "q", QuarantinedUnits: 400, Status: StatusQuarantined,
	}); err != nil {
		t.Fatalf("promote quarantined error = %v", err)
	}

	landed, err := st.SumLandedDepositsSUSDC()
	if err != nil {
		t.Fatalf("SumLandedDepositsSUSDC() error = %v", err)
	}
	want := int64(100 + 200 + 300 + 400)
	if landed != want {
		t.Errorf("SumLandedDepositsSUSDC() = %d, want %d", landed, want)
	}
}

func TestSumVaultOutflowsUSDC(t *testing.T) {
	st := newTestStore(t)

	if err := st.PromoteCreditToProcessed(&ProcessedCreditN{
		Txid: "txid1", Timestamp: 1, AmountUSDDUnits: 1000, AmountUSDCUnits: 990,
		FromAddress: "user", ToAddress: "dest", Owner: "owner", Sig: "sig", Status: StatusCompleted,
	}); err != nil {
		t.Fatalf("promote processed credit error = %v", err)
	}
	if err := st.InsertUnprocessedDepositS(&UnprocessedDepositS{
		Sig: "sig-refund", Timestamp: 2, FromAddress: "a", AmountUSDCUnits: 50, Status: DepositStatusNew,
	}); err != nil {
		t.Fatalf("insert error = %v", err)
	}
	if err := st.PromoteDepositToRefunded(&RefundedDepositS{
		Sig: "sig-refund", Timestamp: 2, FromAddress: "a", AmountUSDCUnits: 50,
		RefundSig: "r", RefundedUnits: 45, Status: StatusRefunded,
	}); err != nil {
		t.Fatalf("promote refunded error = %v", err)
	}
	if err := st.InsertUnprocessedDepositS(&UnprocessedDepositS{
		Sig: "sig-quar", Timestamp: 3, FromAddress: "a", AmountUSDCUnits: 10, Status: DepositStatusNew,
	}); err != nil {
		t.Fatalf("insert error = %v", err)
	}
	if err := st.PromoteDepositToQuarantined(&QuarantinedDepositS{
		Sig: "sig-quar", Timestamp: 3, FromAddress: "a", AmountUSDCUnits: 10,
		QuarantineSig: "q", QuarantinedUnits: 10, Status: StatusQuarantined,
	}); err != nil {
		t.Fatalf("promote quarantined error = %v", err)
	}

	out, err := st.SumVaultOutflowsUSDC()
	if err != nil {
		t.Fatalf("SumVaultOutflowsUSDC() error = %v", err)
	}
	want := int64(990 + 45 + 10)
	if out != want {
		t.Errorf("SumVaultOutflowsUSDC() = %d, want %d", out, want)
	}
}

func TestSumTreasuryOutflowsUSDDIncludesSurplusMintOnly(t *testing.T) {
	st := newTestStore(t)

	if err := st.PromoteDepositToProcessed(&ProcessedDepositS{
		Sig: "sig1", Timestamp: 1, AmountUSDCUnits: 100, Txid: "t", AmountUSDDUnits: 950,
		Status: StatusCompleted, Reference: 1,
	}); err != nil {
		t.Fatalf("promote processed error = %v", err)
	}

	if err := st.RecordFeeEntry(&FeeEntry{
		Sig: "sig1", Kind: "surplus_mint", AmountUSDDUnits: 5, Timestamp: 1,
	}); err != nil {
		t.Fatalf("RecordFeeEntry(surplus_mint) error = %v", err)
	}
	if err := st.RecordFeeEntry(&FeeEntry{
		Sig: "sig1", Kind: "flat_fee", AmountUSDDUnits: 1000, Timestamp: 1,
	}); err != nil {
		t.Fatalf("RecordFeeEntry(flat_fee) error = %v", err)
	}

	out, err := st.SumTreasuryOutflowsUSDD()
	if err != nil {
		t.Fatalf("SumTreasuryOutflowsUSDD() error = %v", err)
	}
	want := int64(950 + 5) // flat_fee kind must not count toward treasury outflows
	if out != want {
		t.Errorf("SumTreasuryOutflowsUSDD() = %d, want %d (flat_fee entries must be excluded)", out, want)
	}
}
