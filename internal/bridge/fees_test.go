package bridge

import (
	"testing"

	"github.com/usdbridge/bridge/internal/config"
)

func TestComputeSwapFeeN(t *testing.T) {
	fees := config.FeeConfig{FlatFeeUSDCUnits: 500_000, DynamicFeeBPS: 10}

	got := ComputeSwapFeeN(2_000_000, fees)
	want := SwapFeeResult{FlatUnits: 500_000, DynamicUnits: 1_500, PayoutUnits: 1_498_500}
	if got != want {
		t.Errorf("ComputeSwapFeeN(2_000_000) = %+v, want %+v", got, want)
	}
}

func TestComputeSwapFeeSClampsToZeroOnTinyDeposit(t *testing.T) {
	fees := config.FeeConfig{FlatFeeUSDCUnits: 500_000, DynamicFeeBPS: 10}

	got := ComputeSwapFeeS(100_000, fees)
	if got.PayoutUnits != 0 {
		t.Errorf("PayoutUnits = %d, want 0 (deposit smaller than flat fee)", got.PayoutUnits)
	}
	if got.FlatUnits != 500_000 {
		t.Errorf("FlatUnits = %d, want the configured flat fee regardless of payout clamp", got.FlatUnits)
	}
}

func TestComputeSwapFeeSNegativeFlatFeeClampedToZero(t *testing.T) {
	fees := config.FeeConfig{FlatFeeUSDCUnits: -1, DynamicFeeBPS: 0}

	got := ComputeSwapFeeS(1_000, fees)
	if got.FlatUnits != 0 {
		t.Errorf("FlatUnits = %d, want 0 for a misconfigured negative flat fee", got.FlatUnits)
	}
	if got.PayoutUnits != 1_000 {
		t.Errorf("PayoutUnits = %d, want 1000", got.PayoutUnits)
	}
}

func TestRefundAmountS(t *testing.T) {
	fees := config.FeeConfig{FlatFeeUSDCUnitsRefund: 100}

	if got := RefundAmountS(1_000, fees); got != 900 {
		t.Errorf("RefundAmountS(1000) = %d, want 900", got)
	}
	if got := RefundAmountS(50, fees); got != 0 {
		t.Errorf("RefundAmountS(50) = %d, want 0 (refund fee exceeds deposit)", got)
	}
}

func TestIsTinyCreditN(t *testing.T) {
	fees := config.FeeConfig{MinCreditUSDDUnits: 1_000_000}

	if !IsTinyCreditN(999_999, fees) {
		t.Error("IsTinyCreditN(999_999) = false, want true")
	}
	if IsTinyCreditN(1_000_000, fees) {
		t.Error("IsTinyCreditN(1_000_000) = true, want false (exactly at the minimum)")
	}
}
