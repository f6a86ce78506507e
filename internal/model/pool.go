package model

import "fmt"

// PoolDescriptor is the static context of one vault.
type PoolDescriptor struct {
	ID                   string `json:"id"`
	UniswapPool          string `json:"uniswap_pool"`
	LowerTick            int32  `json:"lower_tick"`
	UpperTick            int32  `json:"upper_tick"`
	LastTouchWithoutFees uint64 `json:"last_touch_without_fees"`
}

// TickSpan returns upperTick - lowerTick.
func (d PoolDescriptor) TickSpan() int64 {
	return int64(d.UpperTick) - int64(d.LowerTick)
}

// Validate checks the tick range.
func (d PoolDescriptor) Validate() error {
	if d.UpperTick <= d.LowerTick {
		return fmt.Errorf("upper tick %d must be greater than lower tick %d", d.UpperTick, d.LowerTick)
	}
	return nil
}

// PoolHistory is the decoded history of one vault as served by the history source.
type PoolHistory struct {
	Descriptor         PoolDescriptor
	SupplySnapshots    []Snapshot
	RebalanceSnapshots []Snapshot
	FeeSnapshots       []Snapshot
	ReserveSnapshots   []Snapshot
}

// HasFeeData reports whether fee-accrual snapshots are available.
func (h PoolHistory) HasFeeData() bool {
	return len(h.FeeSnapshots) > 0
}
