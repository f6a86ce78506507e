package model

import "math/big"

// PayloadKind identifies which variant a Snapshot carries.
type PayloadKind uint8

const (
	PayloadGrowth PayloadKind = iota + 1
	PayloadFee
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadGrowth:
		return "growth"
	case PayloadFee:
		return "fee"
	default:
		return "unknown"
	}
}

// Payload is implemented only by GrowthPayload and FeePayload.
type Payload interface {
	Kind() PayloadKind
	Equal(other Payload) bool
}

// Snapshot is one observation of a vault at a block height.
type Snapshot struct {
	Block   uint64
	Payload Payload
}

// Growth returns the growth payload, if that is the variant carried.
func (s Snapshot) Growth() (GrowthPayload, bool) {
	p, ok := s.Payload.(GrowthPayload)
	return p, ok
}

// Fee returns the fee/reserve payload, if that is the variant carried.
func (s Snapshot) Fee() (FeePayload, bool) {
	p, ok := s.Payload.(FeePayload)
	return p, ok
}

// GrowthPayload tracks the vault share value via liquidity * tickSpan / totalSupply.
type GrowthPayload struct {
	TotalSupply *big.Int
	Liquidity   *big.Int
	TickSpan    int64
}

func (GrowthPayload) Kind() PayloadKind { return PayloadGrowth }

func (p GrowthPayload) Equal(other Payload) bool {
	o, ok := other.(GrowthPayload)
	if !ok {
		return false
	}
	return p.TickSpan == o.TickSpan && bigEqual(p.TotalSupply, o.TotalSupply) && bigEqual(p.Liquidity, o.Liquidity)
}

// TokenPair is an amount of each pool asset in raw token units.
type TokenPair struct {
	Amount0 *big.Int
	Amount1 *big.Int
}

// IsZero reports whether both amounts are zero or unset.
func (p TokenPair) IsZero() bool {
	return (p.Amount0 == nil || p.Amount0.Sign() == 0) && (p.Amount1 == nil || p.Amount1.Sign() == 0)
}

// Equal compares amounts, treating nil as zero.
func (p TokenPair) Equal(o TokenPair) bool {
	return bigEqual(p.Amount0, o.Amount0) && bigEqual(p.Amount1, o.Amount1)
}

// FeePayload carries vault reserves, fees earned since the previous snapshot, or both.
type FeePayload struct {
	Reserves *TokenPair
	Fees     *TokenPair
}

func (FeePayload) Kind() PayloadKind { return PayloadFee }

func (p FeePayload) Equal(other Payload) bool {
	o, ok := other.(FeePayload)
	if !ok {
		return false
	}
	return pairPtrEqual(p.Reserves, o.Reserves) && pairPtrEqual(p.Fees, o.Fees)
}

func pairPtrEqual(a, b *TokenPair) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func bigEqual(a, b *big.Int) bool {
	if a == nil {
		a = new(big.Int)
	}
	if b == nil {
		b = new(big.Int)
	}
	return a.Cmp(b) == 0
}
