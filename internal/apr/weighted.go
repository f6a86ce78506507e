package apr

import (
	"math/big"

	"vaultYield/internal/model"
)

// IntervalValue maps the interval ending at curr to a scalar. prev is nil when
// curr is paired with an anchor block instead of a predecessor. Returning false
// drops the interval, blocks included.
type IntervalValue func(prev *model.Snapshot, curr model.Snapshot) (*big.Rat, bool)

// SnapshotValue maps a single snapshot to a scalar.
type SnapshotValue func(s model.Snapshot) (*big.Rat, bool)

// Accumulation is a block-weighted sum over a snapshot series.
type Accumulation struct {
	Sum    *big.Rat
	Blocks uint64
}

// Average returns Sum/Blocks. It reports false when no blocks were accumulated.
func (a Accumulation) Average() (*big.Rat, bool) {
	if a.Blocks == 0 || a.Sum == nil {
		return nil, false
	}
	return new(big.Rat).Quo(a.Sum, new(big.Rat).SetUint64(a.Blocks)), true
}

// Accumulate weights each adjacent pair of an ordered series by its block delta.
func Accumulate(series []model.Snapshot, value IntervalValue) Accumulation {
	acc := Accumulation{Sum: new(big.Rat)}
	for i := 1; i < len(series); i++ {
		prev := series[i-1]
		acc.add(prev.Block, &prev, series[i], value)
	}
	return acc
}

// AccumulateFrom is Accumulate with the first element paired against startBlock.
// No interval is weighted before startBlock, so Blocks never exceeds
// lastBlock - startBlock.
func AccumulateFrom(series []model.Snapshot, startBlock uint64, value IntervalValue) Accumulation {
	acc := Accumulation{Sum: new(big.Rat)}
	for i, curr := range series {
		if i == 0 {
			acc.add(startBlock, nil, curr, value)
			continue
		}
		prev := series[i-1]
		acc.add(max(prev.Block, startBlock), &prev, curr, value)
	}
	return acc
}

// WeightedAverage averages value over the series, each snapshot weighted by the
// blocks elapsed since its predecessor (or since startBlock for the first one).
func WeightedAverage(series []model.Snapshot, value SnapshotValue, startBlock uint64) (*big.Rat, bool) {
	acc := AccumulateFrom(series, startBlock, func(_ *model.Snapshot, curr model.Snapshot) (*big.Rat, bool) {
		return value(curr)
	})
	return acc.Average()
}

func (a *Accumulation) add(fromBlock uint64, prev *model.Snapshot, curr model.Snapshot, value IntervalValue) {
	delta := blockDelta(fromBlock, curr.Block)
	v, ok := value(prev, curr)
	if !ok || v == nil {
		return
	}
	weighted := new(big.Rat).Mul(v, new(big.Rat).SetUint64(delta))
	a.Sum.Add(a.Sum, weighted)
	a.Blocks += delta
}

func blockDelta(from, to uint64) uint64 {
	if to < from {
		return 0
	}
	return to - from
}
