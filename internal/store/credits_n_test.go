package store

import "testing"

func TestUnprocessedCreditNLifecycle(t *testing.T) {
	st := newTestStore(t)

	c := &UnprocessedCreditN{
		Txid: "txid1", Timestamp: 1000, AmountUSDDUnits: 2_000_000,
		FromAddress: "user1", ToAddress: "treasury", OwnerFromAddress: "owner1",
		Confirmations: 0, Status: DepositStatusNew, ReceivalAccount: "recv1",
	}
	if err := st.InsertUnprocessedCreditN(c); err != nil {
		t.Fatalf("InsertUnprocessedCreditN() error = %v", err)
	}

	ok, err := st.IsUnprocessedCreditN("txid1")
	if err != nil || !ok {
		t.Fatalf("IsUnprocessedCreditN() = %v, %v, want true, nil", ok, err)
	}

	rows, err := st.GetUnprocessedCreditsN()
	if err != nil {
		t.Fatalf("GetUnprocessedCreditsN() error = %v", err)
	}
	if len(rows) != 1 || rows[0].Txid != "txid1" || rows[0].ReceivalAccount != "recv1" {
		t.Fatalf("GetUnprocessedCreditsN() = %+v, want one row txid1/recv1", rows)
	}

	if err := st.UpdateUnprocessedCreditNStatus("txid1", DepositStatusMemoResolved); err != nil {
		t.Fatalf("UpdateUnprocessedCreditNStatus() error = %v", err)
	}
	rows, _ = st.GetUnprocessedCreditsN()
	if rows[0].Status != DepositStatusMemoResolved {
		t.Errorf("Status = %s, want %s", rows[0].Status, DepositStatusMemoResolved)
	}

	if err := st.RemoveUnprocessedCreditN("txid1"); err != nil {
		t.Fatalf("RemoveUnprocessedCreditN() error = %v", err)
	}
	ok, _ = st.IsUnprocessedCreditN("txid1")
	if ok {
		t.Error("credit should be gone after RemoveUnprocessedCreditN")
	}
}

func TestQuarantinedCreditNLifecycle(t *testing.T) {
	st := newTestStore(t)

	if err := st.InsertUnprocessedCreditN(&UnprocessedCreditN{
		Txid: "txid-q", Timestamp: 1, AmountUSDDUnits: 1, FromAddress: "user", ToAddress: "treasury",
		Status: DepositStatusNew,
	}); err != nil {
		t.Fatalf("insert error = %v", err)
	}
	if err := st.PromoteCreditToQuarantined(&QuarantinedCreditN{
		Txid: "txid-q", Timestamp: 1, AmountUSDDUnits: 1, FromAddress: "user", ToAddress: "treasury",
		Owner: "owner", Sig: "sig", Status: StatusQuarantined,
	}); err != nil {
		t.Fatalf("PromoteCreditToQuarantined() error = %v", err)
	}

	ok, err := st.IsQuarantinedCreditN("txid-q")
	if err != nil || !ok {
		t.Fatalf("IsQuarantinedCreditN() = %v, %v, want true, nil", ok, err)
	}

	qs, err := st.GetQuarantinedCreditsN()
	if err != nil {
		t.Fatalf("GetQuarantinedCreditsN() error = %v", err)
	}
	if len(qs) != 1 || qs[0].Txid != "txid-q" {
		t.Fatalf("GetQuarantinedCreditsN() = %+v, want one row txid-q", qs)
	}

	ok, _ = st.IsUnprocessedCreditN("txid-q")
	if ok {
		t.Error("quarantined credit should no longer be unprocessed")
	}
}
