package apr

import (
	"math/big"

	"go.uber.org/zap"

	"vaultYield/internal/fixedpoint"
	"vaultYield/internal/model"
)

const (
	// DefaultBlocksPerYear approximates annual Ethereum block production.
	DefaultBlocksPerYear uint64 = 2_102_400
	// DefaultSupplyLagBlocks keeps a supply snapshot clear of its own mint/rebalance block.
	DefaultSupplyLagBlocks uint64 = 5_600
)

// Config controls estimation constants.
type Config struct {
	BlocksPerYear   uint64
	SupplyLagBlocks uint64
}

// Estimator turns a vault history plus a live reading into an annualized rate.
type Estimator struct {
	cfg    Config
	logger *zap.Logger
}

func NewEstimator(cfg Config, logger *zap.Logger) *Estimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BlocksPerYear == 0 {
		cfg.BlocksPerYear = DefaultBlocksPerYear
	}
	if cfg.SupplyLagBlocks == 0 {
		cfg.SupplyLagBlocks = DefaultSupplyLagBlocks
	}
	return &Estimator{cfg: cfg, logger: logger}
}

// Estimate is the outcome of one estimation. A nil Rate means there was not
// enough history and the yield is reported as zero.
type Estimate struct {
	Mode   model.Mode
	Rate   *big.Rat
	Blocks uint64
}

// Sufficient reports whether a rate could be derived.
func (e Estimate) Sufficient() bool {
	return e.Rate != nil
}

// Float64 converts the rate once, at the very end. Insufficient data yields 0.
func (e Estimate) Float64() float64 {
	if e.Rate == nil {
		return 0
	}
	f, _ := e.Rate.Float64()
	return f
}

// Estimate picks fee-accrual mode when fee snapshots exist and growth-ratio mode otherwise.
func (e *Estimator) Estimate(history model.PoolHistory, live model.LiveReading) (Estimate, error) {
	if err := history.Descriptor.Validate(); err != nil {
		return Estimate{}, invariantError(history.Descriptor.ID, "%v", err)
	}
	if history.HasFeeData() {
		return e.estimateFees(history, live)
	}
	return e.estimateGrowth(history, live)
}

func (e *Estimator) estimateGrowth(history model.PoolHistory, live model.LiveReading) (Estimate, error) {
	series, err := e.NormalizeGrowth(history, live)
	if err != nil {
		return Estimate{}, err
	}
	if len(series) == 0 {
		return Estimate{Mode: model.ModeNone}, nil
	}

	acc := Accumulate(series, growthInterval)
	avg, ok := acc.Average()
	if !ok {
		return Estimate{Mode: model.ModeGrowth}, nil
	}

	rate := new(big.Rat).Mul(avg, new(big.Rat).SetUint64(e.cfg.BlocksPerYear))
	rate.Quo(rate, new(big.Rat).SetUint64(acc.Blocks))
	return Estimate{Mode: model.ModeGrowth, Rate: rate, Blocks: acc.Blocks}, nil
}

func (e *Estimator) estimateFees(history model.PoolHistory, live model.LiveReading) (Estimate, error) {
	series, err := e.NormalizeFees(history, live)
	if err != nil {
		return Estimate{}, err
	}

	est := Estimate{Mode: model.ModeFees}
	start := history.Descriptor.LastTouchWithoutFees
	if live.CurrentBlock <= start {
		return est, nil
	}
	elapsed := live.CurrentBlock - start

	fees0, fees1 := sumFees(series.Fees)
	feeValue := fixedpoint.ValueInAsset1(fees0, fees1, live.SqrtPriceX96)
	if feeValue.Sign() == 0 {
		est.Rate = new(big.Rat)
		est.Blocks = elapsed
		return est, nil
	}

	avgReserves, ok := WeightedAverage(series.Reserves, reservesValue(live.SqrtPriceX96), start)
	if !ok {
		return est, nil
	}

	fees := new(big.Rat).SetInt(feeValue)
	principal := new(big.Rat).Sub(avgReserves, fees)
	if principal.Sign() <= 0 {
		e.logger.Warn("fees exceed average reserves, using unadjusted reserves",
			zap.String("pool", history.Descriptor.ID),
			zap.String("avg_reserves", avgReserves.FloatString(0)),
			zap.String("fee_value", feeValue.String()),
		)
		principal = avgReserves
	}
	if principal.Sign() <= 0 {
		return est, nil
	}

	denom := new(big.Rat).Mul(principal, new(big.Rat).SetUint64(elapsed))
	rate := new(big.Rat).Mul(fees, new(big.Rat).SetUint64(e.cfg.BlocksPerYear))
	rate.Quo(rate, denom)

	est.Rate = rate
	est.Blocks = elapsed
	return est, nil
}

// ValuePerShare returns liquidity * tickSpan / totalSupply for a growth snapshot.
func ValuePerShare(s model.Snapshot) (*big.Rat, bool) {
	g, ok := s.Growth()
	if !ok || g.TotalSupply == nil || g.TotalSupply.Sign() <= 0 {
		return nil, false
	}
	liquidity := g.Liquidity
	if liquidity == nil {
		liquidity = new(big.Int)
	}
	num := new(big.Int).Mul(liquidity, big.NewInt(g.TickSpan))
	return new(big.Rat).SetFrac(num, g.TotalSupply), true
}

func growthInterval(prev *model.Snapshot, curr model.Snapshot) (*big.Rat, bool) {
	if prev == nil {
		return nil, false
	}
	prevValue, ok := ValuePerShare(*prev)
	if !ok || prevValue.Sign() == 0 {
		return nil, false
	}
	currValue, ok := ValuePerShare(curr)
	if !ok {
		return nil, false
	}
	growth := new(big.Rat).Sub(currValue, prevValue)
	return growth.Quo(growth, prevValue), true
}

func reservesValue(sqrtPriceX96 *big.Int) SnapshotValue {
	return func(s model.Snapshot) (*big.Rat, bool) {
		fee, ok := s.Fee()
		if !ok || fee.Reserves == nil {
			return nil, false
		}
		value := fixedpoint.ValueInAsset1(fee.Reserves.Amount0, fee.Reserves.Amount1, sqrtPriceX96)
		return new(big.Rat).SetInt(value), true
	}
}

func sumFees(series []model.Snapshot) (*big.Int, *big.Int) {
	fees0 := new(big.Int)
	fees1 := new(big.Int)
	for _, s := range series {
		fee, ok := s.Fee()
		if !ok || fee.Fees == nil {
			continue
		}
		if fee.Fees.Amount0 != nil && fee.Fees.Amount0.Sign() > 0 {
			fees0.Add(fees0, fee.Fees.Amount0)
		}
		if fee.Fees.Amount1 != nil && fee.Fees.Amount1.Sign() > 0 {
			fees1.Add(fees1, fee.Fees.Amount1)
		}
	}
	return fees0, fees1
}
