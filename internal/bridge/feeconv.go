package bridge

import "context"

// FeeBalanceState is the snapshot a FeeConverter decides against: the
// fees account's accumulated USDD balance, and the native-coin reserves on
// each chain that a top-up would draw into.
type FeeBalanceState struct {
	FeesUSDDUnits  int64
	SOLNativeUnits int64
	NXSNativeUnits int64
}

// ConversionActionKind names what a FeeConverter decided to do with fee
// surplus this cycle.
type ConversionActionKind string

const (
	ConversionTopUpSOL ConversionActionKind = "topup_sol"
	ConversionTopUpNXS ConversionActionKind = "topup_nxs"
	ConversionHold     ConversionActionKind = "hold"
)

// ConversionAction is one decision a FeeConverter returned for the caller
// to (eventually) carry out.
type ConversionAction struct {
	Kind  ConversionActionKind
	Units int64
}

// FeeConverter decides what to do with accumulated protocol fees: convert
// a slice of them to top up a chain's native-gas reserve, or hold. No code
// in this module calls Convert: the supervisor's maintenance cycle does not
// consult a FeeConverter, and Reconciler's surplus-fee-mint runs
// independently of it.
//
// Wiring a real implementation means giving it a DEX client capable of
// swapping held USDD/USDC for native SOL or NXS, which is explicitly out
// of scope here; NoopFeeConverter is the only implementation this module
// ships.
type FeeConverter interface {
	Convert(ctx context.Context, state FeeBalanceState) ([]ConversionAction, error)
}

// NoopFeeConverter never acts. It is the default, matching fee conversion
// being strictly out of the critical path.
type NoopFeeConverter struct{}

func (NoopFeeConverter) Convert(ctx context.Context, state FeeBalanceState) ([]ConversionAction, error) {
	return nil, nil
}

// ShouldTopUpNative reports whether a native-coin reserve has fallen below
// minUnits and would warrant a top-up from converted fees. Factored out as
// a pure function so the trigger logic is testable without a DEX client.
func ShouldTopUpNative(balanceUnits, minUnits int64) bool {
	return balanceUnits < minUnits
}

// SplitFeeSurplus divides a fees account's USDD balance between a
// native-top-up reserve, capped at topUpCapUnits, and whatever is left to
// hold. feesUSDDUnits <= 0 splits to nothing.
func SplitFeeSurplus(feesUSDDUnits, topUpCapUnits int64) (topUp, held int64) {
	if feesUSDDUnits <= 0 {
		return 0, 0
	}
	if feesUSDDUnits <= topUpCapUnits {
		return feesUSDDUnits, 0
	}
	return topUpCapUnits, feesUSDDUnits - topUpCapUnits
}
