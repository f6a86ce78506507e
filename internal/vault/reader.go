package vault

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"vaultYield/internal/model"
)

// Caller is the subset of chain.Client used by Reader.
type Caller interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ReaderConfig controls live reads.
type ReaderConfig struct {
	HelperAddress string
	MaxRetries    int
	RetryBackoff  time.Duration
}

// Reader reads live vault state from chain.
type Reader struct {
	cfg    ReaderConfig
	caller Caller
	helper common.Address
	logger *zap.Logger
}

func NewReader(cfg ReaderConfig, caller Caller, logger *zap.Logger) (*Reader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HelperAddress == "" {
		cfg.HelperAddress = DefaultHelperAddress
	}
	if !common.IsHexAddress(cfg.HelperAddress) {
		return nil, fmt.Errorf("invalid helper address: %s", cfg.HelperAddress)
	}
	return &Reader{
		cfg:    cfg,
		caller: caller,
		helper: common.HexToAddress(cfg.HelperAddress),
		logger: logger,
	}, nil
}

// FetchLiveReading reads price, balances, supply and liquidity for a vault, all
// pinned to the latest block observed at the start of the read.
func (r *Reader) FetchLiveReading(ctx context.Context, desc model.PoolDescriptor) (model.LiveReading, error) {
	if r.caller == nil {
		return model.LiveReading{}, fmt.Errorf("chain client is nil")
	}
	if !common.IsHexAddress(desc.ID) {
		return model.LiveReading{}, fmt.Errorf("invalid vault address: %s", desc.ID)
	}
	if desc.UniswapPool == "" {
		onChain, err := r.FetchDescriptor(ctx, desc.ID)
		if err != nil {
			return model.LiveReading{}, fmt.Errorf("resolve descriptor: %w", err)
		}
		r.logger.Debug("uniswap pool resolved from chain", zap.String("pool", desc.ID), zap.String("uniswap_pool", onChain.UniswapPool))
		desc.UniswapPool = onChain.UniswapPool
	}
	if !common.IsHexAddress(desc.UniswapPool) {
		return model.LiveReading{}, fmt.Errorf("invalid uniswap pool address: %s", desc.UniswapPool)
	}
	vaultAddr := common.HexToAddress(desc.ID)
	poolAddr := common.HexToAddress(desc.UniswapPool)

	vABI, err := VaultABI()
	if err != nil {
		return model.LiveReading{}, fmt.Errorf("parse vault abi: %w", err)
	}
	pABI, err := PoolABI()
	if err != nil {
		return model.LiveReading{}, fmt.Errorf("parse pool abi: %w", err)
	}
	hABI, err := HelperABI()
	if err != nil {
		return model.LiveReading{}, fmt.Errorf("parse helper abi: %w", err)
	}

	var currentBlock uint64
	err = retry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		currentBlock, err = r.caller.LatestBlockNumber(ctx)
		return err
	}, func(attempt int, err error) {
		r.logger.Warn("latest block failed", zap.Int("attempt", attempt), zap.Error(err))
	})
	if err != nil {
		return model.LiveReading{}, fmt.Errorf("get latest block: %w", err)
	}
	block := new(big.Int).SetUint64(currentBlock)

	values, err := r.call(ctx, poolAddr, pABI, "slot0", block)
	if err != nil {
		return model.LiveReading{}, err
	}
	sqrtPriceX96, err := asBigInt(values[0])
	if err != nil {
		return model.LiveReading{}, fmt.Errorf("slot0: %w", err)
	}

	values, err = r.call(ctx, vaultAddr, vABI, "getUnderlyingBalances", block)
	if err != nil {
		return model.LiveReading{}, err
	}
	if len(values) != 2 {
		return model.LiveReading{}, fmt.Errorf("getUnderlyingBalances return size %d", len(values))
	}
	amount0, err := asBigInt(values[0])
	if err != nil {
		return model.LiveReading{}, fmt.Errorf("amount0: %w", err)
	}
	amount1, err := asBigInt(values[1])
	if err != nil {
		return model.LiveReading{}, fmt.Errorf("amount1: %w", err)
	}

	values, err = r.call(ctx, vaultAddr, vABI, "totalSupply", block)
	if err != nil {
		return model.LiveReading{}, err
	}
	totalSupply, err := asBigInt(values[0])
	if err != nil {
		return model.LiveReading{}, fmt.Errorf("total supply: %w", err)
	}

	values, err = r.call(ctx, r.helper, hABI, "getLiquidityForAmounts", block,
		sqrtPriceX96,
		big.NewInt(int64(desc.LowerTick)),
		big.NewInt(int64(desc.UpperTick)),
		amount0,
		amount1,
	)
	if err != nil {
		return model.LiveReading{}, err
	}
	liquidity, err := asBigInt(values[0])
	if err != nil {
		return model.LiveReading{}, fmt.Errorf("liquidity: %w", err)
	}

	r.logger.Debug("live reading",
		zap.String("vault", desc.ID),
		zap.Uint64("block", currentBlock),
		zap.String("sqrt_price_x96", sqrtPriceX96.String()),
		zap.String("liquidity", liquidity.String()),
	)

	return model.LiveReading{
		CurrentBlock: currentBlock,
		SqrtPriceX96: sqrtPriceX96,
		Amount0:      amount0,
		Amount1:      amount1,
		Liquidity:    liquidity,
		TotalSupply:  totalSupply,
	}, nil
}

// FetchDescriptor reads the static range of a vault from chain.
func (r *Reader) FetchDescriptor(ctx context.Context, vaultAddress string) (model.PoolDescriptor, error) {
	if r.caller == nil {
		return model.PoolDescriptor{}, fmt.Errorf("chain client is nil")
	}
	if !common.IsHexAddress(vaultAddress) {
		return model.PoolDescriptor{}, fmt.Errorf("invalid vault address: %s", vaultAddress)
	}
	vaultAddr := common.HexToAddress(vaultAddress)

	vABI, err := VaultABI()
	if err != nil {
		return model.PoolDescriptor{}, fmt.Errorf("parse vault abi: %w", err)
	}

	values, err := r.call(ctx, vaultAddr, vABI, "pool", nil)
	if err != nil {
		return model.PoolDescriptor{}, err
	}
	pool, err := asAddress(values[0])
	if err != nil {
		return model.PoolDescriptor{}, fmt.Errorf("pool: %w", err)
	}

	ticks := make([]int32, 0, 2)
	for _, method := range []string{"lowerTick", "upperTick"} {
		values, err := r.call(ctx, vaultAddr, vABI, method, nil)
		if err != nil {
			return model.PoolDescriptor{}, err
		}
		tickInt, err := asBigInt(values[0])
		if err != nil {
			return model.PoolDescriptor{}, fmt.Errorf("%s: %w", method, err)
		}
		tick, err := int24FromBig(tickInt)
		if err != nil {
			return model.PoolDescriptor{}, fmt.Errorf("%s: %w", method, err)
		}
		ticks = append(ticks, tick)
	}

	return model.PoolDescriptor{
		ID:          vaultAddr.Hex(),
		UniswapPool: pool.Hex(),
		LowerTick:   ticks[0],
		UpperTick:   ticks[1],
	}, nil
}

func (r *Reader) call(ctx context.Context, to common.Address, parsed abi.ABI, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	var resp []byte
	err = retry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		resp, err = r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, block)
		return err
	}, func(attempt int, err error) {
		r.logger.Warn("contract call failed",
			zap.String("to", to.Hex()),
			zap.String("method", method),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return values, nil
}
