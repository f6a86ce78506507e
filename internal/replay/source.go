// Package replay serves recorded vault histories and live readings from a JSONL file.
package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"strconv"
	"strings"

	"vaultYield/internal/model"
	"vaultYield/internal/subgraph"
)

// Record is one line of a replay file.
type Record struct {
	Pool subgraph.RawPool `json:"pool"`
	Live RawLive          `json:"live"`
}

// RawLive is a recorded on-chain reading. Amounts are base-10 strings.
type RawLive struct {
	CurrentBlock subgraph.Scalar `json:"current_block"`
	SqrtPriceX96 subgraph.Scalar `json:"sqrt_price_x96"`
	Amount0      subgraph.Scalar `json:"amount0"`
	Amount1      subgraph.Scalar `json:"amount1"`
	Liquidity    subgraph.Scalar `json:"liquidity"`
	TotalSupply  subgraph.Scalar `json:"total_supply"`
	PendingFees0 subgraph.Scalar `json:"pending_fees0"`
	PendingFees1 subgraph.Scalar `json:"pending_fees1"`
}

type entry struct {
	history model.PoolHistory
	live    model.LiveReading
}

// Source implements both the history and live-reading sources over recorded data.
type Source struct {
	order   []string
	entries map[string]entry
}

func Load(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	defer f.Close()
	return Read(f)
}

func Read(r io.Reader) (*Source, error) {
	s := &Source{entries: make(map[string]entry)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		history, err := subgraph.DecodePool(rec.Pool)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		live, err := decodeLive(rec.Live)
		if err != nil {
			return nil, fmt.Errorf("line %d: pool %s live: %w", line, history.Descriptor.ID, err)
		}
		key := strings.ToLower(history.Descriptor.ID)
		if _, dup := s.entries[key]; dup {
			return nil, fmt.Errorf("line %d: duplicate pool %s", line, history.Descriptor.ID)
		}
		s.order = append(s.order, key)
		s.entries[key] = entry{history: history, live: live}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read replay file: %w", err)
	}
	return s, nil
}

func (s *Source) FetchPools(ctx context.Context) ([]model.PoolHistory, error) {
	out := make([]model.PoolHistory, 0, len(s.order))
	for _, key := range s.order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, s.entries[key].history)
	}
	return out, nil
}

func (s *Source) FetchPoolHistory(ctx context.Context, poolID string) (model.PoolHistory, error) {
	if err := ctx.Err(); err != nil {
		return model.PoolHistory{}, err
	}
	e, ok := s.entries[strings.ToLower(poolID)]
	if !ok {
		return model.PoolHistory{}, fmt.Errorf("%w: %s", subgraph.ErrPoolNotFound, poolID)
	}
	return e.history, nil
}

func (s *Source) FetchLiveReading(ctx context.Context, desc model.PoolDescriptor) (model.LiveReading, error) {
	if err := ctx.Err(); err != nil {
		return model.LiveReading{}, err
	}
	e, ok := s.entries[strings.ToLower(desc.ID)]
	if !ok {
		return model.LiveReading{}, fmt.Errorf("no live reading for pool %s", desc.ID)
	}
	return e.live, nil
}

func decodeLive(raw RawLive) (model.LiveReading, error) {
	if raw.CurrentBlock == "" {
		return model.LiveReading{}, fmt.Errorf("current_block is required")
	}
	block, err := strconv.ParseUint(string(raw.CurrentBlock), 10, 64)
	if err != nil {
		return model.LiveReading{}, fmt.Errorf("current_block: %w", err)
	}
	live := model.LiveReading{CurrentBlock: block}
	fields := []struct {
		name  string
		value subgraph.Scalar
		dst   **big.Int
	}{
		{"sqrt_price_x96", raw.SqrtPriceX96, &live.SqrtPriceX96},
		{"amount0", raw.Amount0, &live.Amount0},
		{"amount1", raw.Amount1, &live.Amount1},
		{"liquidity", raw.Liquidity, &live.Liquidity},
		{"total_supply", raw.TotalSupply, &live.TotalSupply},
	}
	for _, f := range fields {
		v, err := optionalBig(f.value)
		if err != nil {
			return model.LiveReading{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = v
	}

	if raw.PendingFees0 != "" || raw.PendingFees1 != "" {
		f0, err := optionalBig(raw.PendingFees0)
		if err != nil {
			return model.LiveReading{}, fmt.Errorf("pending_fees0: %w", err)
		}
		f1, err := optionalBig(raw.PendingFees1)
		if err != nil {
			return model.LiveReading{}, fmt.Errorf("pending_fees1: %w", err)
		}
		live.PendingFees = &model.TokenPair{Amount0: f0, Amount1: f1}
	}
	return live, nil
}

func optionalBig(value subgraph.Scalar) (*big.Int, error) {
	if value == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(string(value), 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return v, nil
}
