package apr

import (
	"math/big"
	"sort"

	"go.uber.org/zap"

	"vaultYield/internal/model"
)

// FeeSeries holds the normalized inputs of fee-accrual mode.
type FeeSeries struct {
	Fees     []model.Snapshot
	Reserves []model.Snapshot
}

// NormalizeGrowth builds the ordered growth-ratio series ending at the live reading.
// Rebalance snapshots are used when present; otherwise the newest supply snapshot
// at least SupplyLagBlocks behind the current block is the single historical point.
// An empty result means there is no usable history yet.
func (e *Estimator) NormalizeGrowth(history model.PoolHistory, live model.LiveReading) ([]model.Snapshot, error) {
	poolID := history.Descriptor.ID

	series, err := sortSeries(poolID, history.RebalanceSnapshots, model.PayloadGrowth)
	if err != nil {
		return nil, err
	}

	if len(series) == 0 {
		supply, err := sortSeries(poolID, history.SupplySnapshots, model.PayloadGrowth)
		if err != nil {
			return nil, err
		}
		for i := len(supply) - 1; i >= 0; i-- {
			if supply[i].Block+e.cfg.SupplyLagBlocks < live.CurrentBlock {
				series = []model.Snapshot{supply[i]}
				break
			}
		}
		if len(series) == 0 && len(supply) > 0 {
			e.logger.Debug("no supply snapshot past lag",
				zap.String("pool", poolID),
				zap.Uint64("current_block", live.CurrentBlock),
				zap.Uint64("lag_blocks", e.cfg.SupplyLagBlocks),
			)
		}
	}

	if len(series) == 0 {
		return nil, nil
	}

	for _, s := range series {
		g, _ := s.Growth()
		if g.TickSpan < 0 {
			return nil, invariantAtBlock(poolID, s.Block, "negative tick span %d", g.TickSpan)
		}
	}

	current := model.Snapshot{
		Block: live.CurrentBlock,
		Payload: model.GrowthPayload{
			TotalSupply: live.TotalSupply,
			Liquidity:   live.Liquidity,
			TickSpan:    history.Descriptor.TickSpan(),
		},
	}
	return appendCurrent(poolID, series, current)
}

// NormalizeFees builds the ordered fee and reserve series ending at the live reading.
// Negative amounts are clamped to zero.
func (e *Estimator) NormalizeFees(history model.PoolHistory, live model.LiveReading) (FeeSeries, error) {
	poolID := history.Descriptor.ID

	fees, err := sortSeries(poolID, e.clampSeries(poolID, history.FeeSnapshots), model.PayloadFee)
	if err != nil {
		return FeeSeries{}, err
	}
	reserves, err := sortSeries(poolID, e.clampSeries(poolID, history.ReserveSnapshots), model.PayloadFee)
	if err != nil {
		return FeeSeries{}, err
	}

	if len(fees) > 0 && live.PendingFees != nil {
		pending := e.clampPair(poolID, live.CurrentBlock, "pending_fees", *live.PendingFees)
		fees, err = appendCurrent(poolID, fees, model.Snapshot{
			Block:   live.CurrentBlock,
			Payload: model.FeePayload{Fees: &pending},
		})
		if err != nil {
			return FeeSeries{}, err
		}
	}

	if live.Amount0 != nil || live.Amount1 != nil {
		balances := e.clampPair(poolID, live.CurrentBlock, "underlying_balances", model.TokenPair{Amount0: live.Amount0, Amount1: live.Amount1})
		reserves, err = appendCurrent(poolID, reserves, model.Snapshot{
			Block:   live.CurrentBlock,
			Payload: model.FeePayload{Reserves: &balances},
		})
		if err != nil {
			return FeeSeries{}, err
		}
	}

	return FeeSeries{Fees: fees, Reserves: reserves}, nil
}

// sortSeries returns a sorted copy of snapshots. Identical snapshots at the same
// block collapse into one; differing ones are rejected.
func sortSeries(poolID string, snapshots []model.Snapshot, kind model.PayloadKind) ([]model.Snapshot, error) {
	if len(snapshots) == 0 {
		return nil, nil
	}

	sorted := make([]model.Snapshot, 0, len(snapshots))
	for _, s := range snapshots {
		if s.Payload == nil {
			return nil, invariantAtBlock(poolID, s.Block, "snapshot has no payload")
		}
		if s.Payload.Kind() != kind {
			return nil, invariantAtBlock(poolID, s.Block, "expected %s payload, got %s", kind, s.Payload.Kind())
		}
		sorted = append(sorted, s)
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Block < sorted[j].Block
	})

	out := sorted[:1]
	for _, s := range sorted[1:] {
		last := out[len(out)-1]
		if s.Block == last.Block {
			if !s.Payload.Equal(last.Payload) {
				return nil, invariantAtBlock(poolID, s.Block, "conflicting snapshots at the same block")
			}
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func appendCurrent(poolID string, series []model.Snapshot, current model.Snapshot) ([]model.Snapshot, error) {
	if n := len(series); n > 0 && current.Block < series[n-1].Block {
		return nil, invariantAtBlock(poolID, series[n-1].Block, "live block %d is behind history", current.Block)
	}
	out := make([]model.Snapshot, len(series), len(series)+1)
	copy(out, series)
	return append(out, current), nil
}

func (e *Estimator) clampSeries(poolID string, snapshots []model.Snapshot) []model.Snapshot {
	out := make([]model.Snapshot, 0, len(snapshots))
	for _, s := range snapshots {
		fee, ok := s.Fee()
		if !ok {
			out = append(out, s)
			continue
		}
		if fee.Fees != nil {
			clamped := e.clampPair(poolID, s.Block, "fees", *fee.Fees)
			fee.Fees = &clamped
		}
		if fee.Reserves != nil {
			clamped := e.clampPair(poolID, s.Block, "reserves", *fee.Reserves)
			fee.Reserves = &clamped
		}
		out = append(out, model.Snapshot{Block: s.Block, Payload: fee})
	}
	return out
}

func (e *Estimator) clampPair(poolID string, block uint64, field string, pair model.TokenPair) model.TokenPair {
	return model.TokenPair{
		Amount0: e.clampAmount(poolID, block, field+"0", pair.Amount0),
		Amount1: e.clampAmount(poolID, block, field+"1", pair.Amount1),
	}
}

func (e *Estimator) clampAmount(poolID string, block uint64, field string, amount *big.Int) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	if amount.Sign() < 0 {
		e.logger.Warn("negative amount clamped to zero",
			zap.String("pool", poolID),
			zap.Uint64("block", block),
			zap.String("field", field),
			zap.String("value", amount.String()),
		)
		return new(big.Int)
	}
	return new(big.Int).Set(amount)
}
