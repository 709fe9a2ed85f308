package store

import "testing"

func TestNextReferenceIsMonotone(t *testing.T) {
	st := newTestStore(t)

	first, err := st.NextReference()
	if err != nil {
		t.Fatalf("NextReference() error = %v", err)
	}
	if first != 1 {
		t.Errorf("first NextReference() = %d, want 1", first)
	}

	second, err := st.NextReference()
	if err != nil {
		t.Fatalf("NextReference() error = %v", err)
	}
	if second != first+1 {
		t.Errorf("second NextReference() = %d, want %d", second, first+1)
	}
}

func TestNextReferenceSeedsFromExistingProcessedDeposits(t *testing.T) {
	st := newTestStore(t)

	if err := st.PromoteDepositToProcessed(&ProcessedDepositS{
		Sig: "sig1", Timestamp: 1, AmountUSDCUnits: 1, Txid: "t", AmountUSDDUnits: 1,
		Status: StatusCompleted, Reference: 500,
	}); err != nil {
		t.Fatalf("PromoteDepositToProcessed() error = %v", err)
	}

	next, err := st.NextReference()
	if err != nil {
		t.Fatalf("NextReference() error = %v", err)
	}
	if next != 501 {
		t.Errorf("NextReference() = %d, want 501 (seeded from max recorded reference)", next)
	}
}

func TestAttemptsLifecycle(t *testing.T) {
	st := newTestStore(t)

	should, err := st.ShouldAttempt("key1", 3)
	if err != nil || !should {
		t.Fatalf("ShouldAttempt() on unseen key = %v, %v, want true, nil", should, err)
	}

	for i := 0; i < 3; i++ {
		if err := st.RecordAttempt("key1"); err != nil {
			t.Fatalf("RecordAttempt() error = %v", err)
		}
	}

	count, err := st.GetAttemptCount("key1")
	if err != nil || count != 3 {
		t.Fatalf("GetAttemptCount() = %d, %v, want 3, nil", count, err)
	}

	should, err = st.ShouldAttempt("key1", 3)
	if err != nil || should {
		t.Fatalf("ShouldAttempt() at cap = %v, %v, want false, nil", should, err)
	}

	if err := st.ResetAttempts("key1"); err != nil {
		t.Fatalf("ResetAttempts() error = %v", err)
	}
	should, err = st.ShouldAttempt("key1", 3)
	if err != nil || !should {
		t.Fatalf("ShouldAttempt() after reset = %v, %v, want true, nil", should, err)
	}
}

func TestShouldAttemptWithCooldown(t *testing.T) {
	st := newTestStore(t)

	should, err := st.ShouldAttemptWithCooldown("key2", 5, 3600)
	if err != nil || !should {
		t.Fatalf("ShouldAttemptWithCooldown() on unseen key = %v, %v, want true, nil", should, err)
	}

	if err := st.RecordAttempt("key2"); err != nil {
		t.Fatalf("RecordAttempt() error = %v", err)
	}

	should, err = st.ShouldAttemptWithCooldown("key2", 5, 3600)
	if err != nil || should {
		t.Fatalf("ShouldAttemptWithCooldown() immediately after an attempt = %v, %v, want false, nil (cooldown not elapsed)", should, err)
	}

	should, err = st.ShouldAttemptWithCooldown("key2", 5, 0)
	if err != nil || !should {
		t.Fatalf("ShouldAttemptWithCooldown() with cooldown disabled = %v, %v, want true, nil", should, err)
	}
}
