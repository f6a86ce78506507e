package subgraph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"vaultYield/internal/model"
)

// Scalar accepts GraphQL BigInt/BigDecimal values encoded either as JSON strings or numbers.
type Scalar string

func (s *Scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Scalar(str)
		return nil
	}
	*s = Scalar(data)
	return nil
}

// RawPool mirrors the subgraph Pool entity.
type RawPool struct {
	ID                   string               `json:"id"`
	UniswapPool          string               `json:"uniswapPool"`
	LowerTick            Scalar               `json:"lowerTick"`
	UpperTick            Scalar               `json:"upperTick"`
	TotalSupply          Scalar               `json:"totalSupply"`
	LastTouchWithoutFees Scalar               `json:"lastTouchWithoutFees"`
	SupplySnapshots      []RawGrowthSnapshot  `json:"supplySnapshots"`
	RebalanceSnapshots   []RawGrowthSnapshot  `json:"rebalanceSnapshots"`
	FeeSnapshots         []RawFeeSnapshot     `json:"feeSnapshots"`
	ReservesSnapshots    []RawReserveSnapshot `json:"reservesSnapshots"`
}

// RawGrowthSnapshot is a supply or rebalance snapshot.
type RawGrowthSnapshot struct {
	ID          string `json:"id"`
	Block       Scalar `json:"block"`
	TotalSupply Scalar `json:"totalSupply"`
	Liquidity   Scalar `json:"liquidity"`
	TickSpan    Scalar `json:"tickSpan"`
}

// RawFeeSnapshot records fees earned since the previous fee snapshot.
type RawFeeSnapshot struct {
	ID          string `json:"id"`
	Block       Scalar `json:"block"`
	FeesEarned0 Scalar `json:"feesEarned0"`
	FeesEarned1 Scalar `json:"feesEarned1"`
}

// RawReserveSnapshot records vault reserves after a touch.
type RawReserveSnapshot struct {
	ID        string `json:"id"`
	Block     Scalar `json:"block"`
	Reserves0 Scalar `json:"reserves0"`
	Reserves1 Scalar `json:"reserves1"`
}

func (s RawGrowthSnapshot) cursor() (string, Scalar)  { return s.ID, s.Block }
func (s RawFeeSnapshot) cursor() (string, Scalar)     { return s.ID, s.Block }
func (s RawReserveSnapshot) cursor() (string, Scalar) { return s.ID, s.Block }

// DecodePool validates a raw pool record and converts it into a typed history.
func DecodePool(raw RawPool) (model.PoolHistory, error) {
	if strings.TrimSpace(raw.ID) == "" {
		return model.PoolHistory{}, fmt.Errorf("pool id is empty")
	}
	history, err := decodePool(raw)
	if err != nil {
		return model.PoolHistory{}, fmt.Errorf("decode pool %s: %w", raw.ID, err)
	}
	return history, nil
}

func decodePool(raw RawPool) (model.PoolHistory, error) {
	lower, err := parseInt32(raw.LowerTick)
	if err != nil {
		return model.PoolHistory{}, fmt.Errorf("lowerTick: %w", err)
	}
	upper, err := parseInt32(raw.UpperTick)
	if err != nil {
		return model.PoolHistory{}, fmt.Errorf("upperTick: %w", err)
	}
	lastTouch, err := parseUint(raw.LastTouchWithoutFees, true)
	if err != nil {
		return model.PoolHistory{}, fmt.Errorf("lastTouchWithoutFees: %w", err)
	}

	history := model.PoolHistory{
		Descriptor: model.PoolDescriptor{
			ID:                   raw.ID,
			UniswapPool:          raw.UniswapPool,
			LowerTick:            lower,
			UpperTick:            upper,
			LastTouchWithoutFees: lastTouch,
		},
	}

	if history.SupplySnapshots, err = decodeGrowth(raw.SupplySnapshots); err != nil {
		return model.PoolHistory{}, fmt.Errorf("supply snapshot: %w", err)
	}
	if history.RebalanceSnapshots, err = decodeGrowth(raw.RebalanceSnapshots); err != nil {
		return model.PoolHistory{}, fmt.Errorf("rebalance snapshot: %w", err)
	}

	for _, rs := range raw.FeeSnapshots {
		block, err := parseUint(rs.Block, false)
		if err != nil {
			return model.PoolHistory{}, fmt.Errorf("fee snapshot %s block: %w", rs.ID, err)
		}
		fees, err := parsePair(rs.FeesEarned0, rs.FeesEarned1)
		if err != nil {
			return model.PoolHistory{}, fmt.Errorf("fee snapshot %s: %w", rs.ID, err)
		}
		history.FeeSnapshots = append(history.FeeSnapshots, model.Snapshot{
			Block:   block,
			Payload: model.FeePayload{Fees: &fees},
		})
	}

	for _, rs := range raw.ReservesSnapshots {
		block, err := parseUint(rs.Block, false)
		if err != nil {
			return model.PoolHistory{}, fmt.Errorf("reserves snapshot %s block: %w", rs.ID, err)
		}
		reserves, err := parsePair(rs.Reserves0, rs.Reserves1)
		if err != nil {
			return model.PoolHistory{}, fmt.Errorf("reserves snapshot %s: %w", rs.ID, err)
		}
		history.ReserveSnapshots = append(history.ReserveSnapshots, model.Snapshot{
			Block:   block,
			Payload: model.FeePayload{Reserves: &reserves},
		})
	}

	return history, nil
}

func decodeGrowth(raws []RawGrowthSnapshot) ([]model.Snapshot, error) {
	out := make([]model.Snapshot, 0, len(raws))
	for _, rs := range raws {
		block, err := parseUint(rs.Block, false)
		if err != nil {
			return nil, fmt.Errorf("%s block: %w", rs.ID, err)
		}
		totalSupply, err := parseBigInt(rs.TotalSupply)
		if err != nil {
			return nil, fmt.Errorf("%s totalSupply: %w", rs.ID, err)
		}
		liquidity, err := parseBigInt(rs.Liquidity)
		if err != nil {
			return nil, fmt.Errorf("%s liquidity: %w", rs.ID, err)
		}
		span, err := strconv.ParseInt(string(rs.TickSpan), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s tickSpan: %w", rs.ID, err)
		}
		out = append(out, model.Snapshot{
			Block: block,
			Payload: model.GrowthPayload{
				TotalSupply: totalSupply,
				Liquidity:   liquidity,
				TickSpan:    span,
			},
		})
	}
	return out, nil
}

func parsePair(amount0, amount1 Scalar) (model.TokenPair, error) {
	a0, err := parseBigInt(amount0)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("amount0: %w", err)
	}
	a1, err := parseBigInt(amount1)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("amount1: %w", err)
	}
	return model.TokenPair{Amount0: a0, Amount1: a1}, nil
}

func parseBigInt(value Scalar) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(string(value), 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return parsed, nil
}

func parseUint(value Scalar, optional bool) (uint64, error) {
	if value == "" {
		if optional {
			return 0, nil
		}
		return 0, fmt.Errorf("missing value")
	}
	return strconv.ParseUint(string(value), 10, 64)
}

func parseInt32(value Scalar) (int32, error) {
	if value == "" {
		return 0, fmt.Errorf("missing value")
	}
	v, err := strconv.ParseInt(string(value), 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}
