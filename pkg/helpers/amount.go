// Package helpers provides common utility functions used across the codebase.
package helpers

import "math/big"

// ScaleAmount rescales a base-unit amount from one decimals precision to
// another. Scaling up is exact (multiplication); scaling down truncates
// toward zero, matching the adapter boundary's round-down contract.
func ScaleAmount(amount uint64, srcDecimals, dstDecimals uint8) uint64 {
	if srcDecimals == dstDecimals {
		return amount
	}
	amountBig := new(big.Int).SetUint64(amount)
	if srcDecimals < dstDecimals {
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(dstDecimals-srcDecimals)), nil)
		return amountBig.Mul(amountBig, factor).Uint64()
	}
	factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(srcDecimals-dstDecimals)), nil)
	return amountBig.Div(amountBig, factor).Uint64()
}
