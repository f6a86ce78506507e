package fixedpoint

import "math/big"

// Q96 is the Uniswap fixed-point scale, 2^96.
var Q96 = new(big.Int).Lsh(big.NewInt(1), 96)

// PriceX96X96 squares a Q96 square-root price into a Q192 price (price * 2^192).
func PriceX96X96(sqrtPriceX96 *big.Int) *big.Int {
	if sqrtPriceX96 == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
}

// ValueInAsset1 values an (amount0, amount1) pair in asset-1 units at the given
// Q96 square-root price. The Q192 scale is removed in two floor divisions by Q96.
// A zero price values amount0 at nothing. Nil amounts count as zero.
func ValueInAsset1(amount0, amount1, sqrtPriceX96 *big.Int) *big.Int {
	value := new(big.Int)
	if amount0 != nil && amount0.Sign() != 0 && sqrtPriceX96 != nil && sqrtPriceX96.Sign() != 0 {
		value.Mul(amount0, PriceX96X96(sqrtPriceX96))
		value.Div(value, Q96)
		value.Div(value, Q96)
	}
	if amount1 != nil {
		value.Add(value, amount1)
	}
	return value
}
