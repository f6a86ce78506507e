package fixedpoint

import (
	"math/big"
	"testing"
)

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("invalid int: %s", s)
	}
	return v
}

func TestValueInAsset1UnitPrice(t *testing.T) {
	got := ValueInAsset1(big.NewInt(1_000), big.NewInt(250), Q96)
	if got.Cmp(big.NewInt(1_250)) != 0 {
		t.Fatalf("value mismatch: %s", got)
	}
}

func TestValueInAsset1ScaledPrice(t *testing.T) {
	// sqrt price 2 * 2^96 means price 4.
	sqrt := new(big.Int).Lsh(big.NewInt(2), 96)
	got := ValueInAsset1(big.NewInt(10), big.NewInt(3), sqrt)
	if got.Cmp(big.NewInt(43)) != 0 {
		t.Fatalf("value mismatch: %s", got)
	}
}

func TestValueInAsset1ZeroPrice(t *testing.T) {
	got := ValueInAsset1(big.NewInt(5_000), big.NewInt(7), big.NewInt(0))
	if got.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("zero price should value amount1 only: %s", got)
	}
	got = ValueInAsset1(big.NewInt(5_000), nil, nil)
	if got.Sign() != 0 {
		t.Fatalf("nil price and nil amount1 should be zero: %s", got)
	}
}

func TestValueInAsset1Linear(t *testing.T) {
	// Roughly the ETH/USDC mainnet sqrt price.
	sqrt := mustBig(t, "1771595571142957166518320255467520")
	amounts := []string{"1", "999", "1000000000000000000", "123456789012345678901234"}
	for _, raw := range amounts {
		a := mustBig(t, raw)
		single := ValueInAsset1(a, nil, sqrt)
		double := ValueInAsset1(new(big.Int).Lsh(a, 1), nil, sqrt)

		diff := new(big.Int).Sub(double, new(big.Int).Lsh(single, 1))
		if diff.Sign() < 0 || diff.Cmp(big.NewInt(1)) > 0 {
			t.Fatalf("amount %s: doubling drifted by %s", raw, diff)
		}
	}
}

func TestValueInAsset1DoesNotMutate(t *testing.T) {
	a0 := big.NewInt(42)
	a1 := big.NewInt(8)
	sqrt := new(big.Int).Set(Q96)
	_ = ValueInAsset1(a0, a1, sqrt)
	if a0.Int64() != 42 || a1.Int64() != 8 || sqrt.Cmp(Q96) != 0 {
		t.Fatalf("inputs mutated")
	}
}
