package store

import (
	"testing"
	"time"
)

func TestReserveBlocksConcurrentAttempt(t *testing.T) {
	st := newTestStore(t)

	ok, err := st.Reserve("debit", "sig1", 60)
	if err != nil || !ok {
		t.Fatalf("first Reserve() = %v, %v, want true, nil", ok, err)
	}

	ok, err = st.Reserve("debit", "sig1", 60)
	if err != nil {
		t.Fatalf("second Reserve() error = %v", err)
	}
	if ok {
		t.Error("second Reserve() on a live reservation should return false")
	}

	reserved, err := st.IsReserved("debit", "sig1", 60)
	if err != nil || !reserved {
		t.Fatalf("IsReserved() = %v, %v, want true, nil", reserved, err)
	}

	if err := st.Release("debit", "sig1"); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	ok, err = st.Reserve("debit", "sig1", 60)
	if err != nil || !ok {
		t.Fatalf("Reserve() after Release() = %v, %v, want true, nil", ok, err)
	}
}

func TestReservationExpiresAfterTTL(t *testing.T) {
	st := newTestStore(t)

	ok, err := st.Reserve("send", "txid1", 1)
	if err != nil || !ok {
		t.Fatalf("Reserve() = %v, %v, want true, nil", ok, err)
	}

	time.Sleep(2100 * time.Millisecond)

	ok, err = st.Reserve("send", "txid1", 1)
	if err != nil {
		t.Fatalf("Reserve() after expiry error = %v", err)
	}
	if !ok {
		t.Error("Reserve() should succeed once the prior reservation's TTL has elapsed")
	}
}

func TestCleanupExpiredReservations(t *testing.T) {
	st := newTestStore(t)

	if _, err := st.Reserve("debit", "a", 1); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}

	time.Sleep(2100 * time.Millisecond)

	if _, err := st.Reserve("debit", "b", 60); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}

	n, err := st.CleanupExpiredReservations(1)
	if err != nil {
		t.Fatalf("CleanupExpiredReservations() error = %v", err)
	}
	if n != 1 {
		t.Errorf("CleanupExpiredReservations() removed %d rows, want 1", n)
	}

	reserved, _ := st.IsReserved("debit", "b", 60)
	if !reserved {
		t.Error("unexpired reservation should survive cleanup")
	}
}
