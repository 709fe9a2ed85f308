package bridge

import "github.com/usdbridge/bridge/internal/config"

// SwapFeeResult is the outcome of computing a swap's fee split.
type SwapFeeResult struct {
	FlatUnits    int64
	DynamicUnits int64
	PayoutUnits  int64
}

// ComputeSwapFeeS computes the S->D (USDC deposit -> USDD payout) fee split:
// a flat fee plus a dynamic bps fee on the remainder, following
// original_source/src/fees.py's schedule. A deposit that nets to zero after
// fees should be refunded rather than debited for zero, which callers check
// via PayoutUnits == 0.
func ComputeSwapFeeS(amountUnits int64, fees config.FeeConfig) SwapFeeResult {
	flat := fees.FlatFeeUSDCUnits
	if flat < 0 {
		flat = 0
	}
	remainder := amountUnits - flat
	if remainder < 0 {
		remainder = 0
	}
	dyn := (remainder * fees.DynamicFeeBPS) / 10_000
	if dyn < 0 {
		dyn = 0
	}
	payout := amountUnits - flat - dyn
	if payout < 0 {
		payout = 0
	}
	return SwapFeeResult{FlatUnits: flat, DynamicUnits: dyn, PayoutUnits: payout}
}

// ComputeSwapFeeN computes the D->S (USDD credit -> USDC payout) fee split:
// the same flat-plus-dynamic-bps schedule as ComputeSwapFeeS, applied on
// the USDD side before cross-decimal rescale. Spec §8 scenario 4 (amount
// 2_000_000, flat 500_000, dynamic bps 10 -> payout 1_498_500) only holds
// with a flat deduction on this leg too, not dynamic-only.
func ComputeSwapFeeN(amountUnits int64, fees config.FeeConfig) SwapFeeResult {
	flat := fees.FlatFeeUSDCUnits
	if flat < 0 {
		flat = 0
	}
	remainder := amountUnits - flat
	if remainder < 0 {
		remainder = 0
	}
	dyn := (remainder * fees.DynamicFeeBPS) / 10_000
	if dyn < 0 {
		dyn = 0
	}
	payout := amountUnits - flat - dyn
	if payout < 0 {
		payout = 0
	}
	return SwapFeeResult{FlatUnits: flat, DynamicUnits: dyn, PayoutUnits: payout}
}

// RefundAmountS computes the amount returned to the sender when a Chain-S
// deposit is refunded instead of swapped: the original deposit minus the
// smaller refund-specific flat fee.
func RefundAmountS(amountUnits int64, fees config.FeeConfig) int64 {
	out := amountUnits - fees.FlatFeeUSDCUnitsRefund
	if out < 0 {
		return 0
	}
	return out
}

// IsTinyCreditN reports whether a Chain-N credit is below
// MIN_CREDIT_USDD_UNITS and should be routed to the bridge's local account
// instead of being swapped, following swap_nexus.py's tiny-fee routing
// check.
func IsTinyCreditN(amountUnits int64, fees config.FeeConfig) bool {
	return amountUnits < fees.MinCreditUSDDUnits
}
