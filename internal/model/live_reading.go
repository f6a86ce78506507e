package model

import "math/big"

// LiveReading is a best-effort consistent on-chain read of a vault at CurrentBlock.
type LiveReading struct {
	CurrentBlock uint64
	SqrtPriceX96 *big.Int
	Amount0      *big.Int
	Amount1      *big.Int
	Liquidity    *big.Int
	TotalSupply  *big.Int
	// PendingFees are fees accrued since the last fee snapshot, when the source knows them.
	PendingFees *TokenPair
}
