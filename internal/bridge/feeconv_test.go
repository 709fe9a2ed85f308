package bridge

import "testing"

func TestShouldTopUpNative(t *testing.T) {
	if !ShouldTopUpNative(5, 10) {
		t.Error("ShouldTopUpNative(5, 10) = false, want true")
	}
	if ShouldTopUpNative(10, 10) {
		t.Error("ShouldTopUpNative(10, 10) = true, want false (at the floor, not below it)")
	}
	if ShouldTopUpNative(20, 10) {
		t.Error("ShouldTopUpNative(20, 10) = true, want false")
	}
}

func TestSplitFeeSurplus(t *testing.T) {
	cases := []struct {
		fees, cap      int64
		wantTop, wantH int64
	}{
		{fees: 0, cap: 100, wantTop: 0, wantH: 0},
		{fees: -5, cap: 100, wantTop: 0, wantH: 0},
		{fees: 50, cap: 100, wantTop: 50, wantH: 0},
		{fees: 100, cap: 100, wantTop: 100, wantH: 0},
		{fees: 150, cap: 100, wantTop: 100, wantH: 50},
	}
	for _, c := range cases {
		top, held := SplitFeeSurplus(c.fees, c.cap)
		if top != c.wantTop || held != c.wantH {
			t.Errorf("SplitFeeSurplus(%d, %d) = (%d, %d), want (%d, %d)",
				c.fees, c.cap, top, held, c.wantTop, c.wantH)
		}
	}
}

func TestNoopFeeConverterNeverActs(t *testing.T) {
	actions, err := NoopFeeConverter{}.Convert(nil, FeeBalanceState{FeesUSDDUnits: 1_000_000})
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if actions != nil {
		t.Errorf("Convert() = %v, want nil", actions)
	}
}
