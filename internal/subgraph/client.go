// Package subgraph reads vault snapshot history from the G-UNI subgraph.
package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"vaultYield/internal/model"
)

// pageSize is the largest page the hosted service returns.
const pageSize = 1000

const (
	growthFields  = "id block totalSupply liquidity tickSpan"
	feeFields     = "id block feesEarned0 feesEarned1"
	reserveFields = "id block reserves0 reserves1"
)

const poolFields = `
fragment poolFields on Pool {
  id
  uniswapPool
  lowerTick
  upperTick
  totalSupply
  lastTouchWithoutFees
  supplySnapshots(first: 1000, orderBy: block, orderDirection: asc) { ` + growthFields + ` }
  rebalanceSnapshots(first: 1000, orderBy: block, orderDirection: asc) { ` + growthFields + ` }
  feeSnapshots(first: 1000, orderBy: block, orderDirection: asc) { ` + feeFields + ` }
  reservesSnapshots(first: 1000, orderBy: block, orderDirection: asc) { ` + reserveFields + ` }
}`

const poolsQuery = `query pools($lastID: ID!) {
  pools(first: 1000, orderBy: id, orderDirection: asc, where: {id_gt: $lastID}) { ...poolFields }
}` + poolFields

const poolQuery = `query pool($id: ID!) {
  pool(id: $id) { ...poolFields }
}` + poolFields

func snapshotPageQuery(entity, fields string) string {
	return fmt.Sprintf(`query page($pool: String!, $from: BigInt!) {
  page: %s(first: %d, orderBy: block, orderDirection: asc, where: {pool: $pool, block_gte: $from}) { %s }
}`, entity, pageSize, fields)
}

// ErrPoolNotFound is returned when the subgraph has no record of the requested pool.
var ErrPoolNotFound = errors.New("pool not found")

type Config struct {
	URL          string
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Timeout      time.Duration
}

type Client struct {
	url    string
	http   *retryablehttp.Client
	logger *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("subgraph url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 3 * time.Second
	if cfg.MaxRetries >= 0 {
		rc.RetryMax = cfg.MaxRetries
	}
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		rc.RetryWaitMax = cfg.RetryWaitMax
	}
	if rc.RetryWaitMax < rc.RetryWaitMin {
		rc.RetryWaitMax = rc.RetryWaitMin
	}
	if cfg.Timeout > 0 {
		rc.HTTPClient.Timeout = cfg.Timeout
	}
	rc.Logger = leveledLogger{logger.Named("subgraph-http").Sugar()}

	return &Client{url: cfg.URL, http: rc, logger: logger}, nil
}

// FetchPools returns the decoded history of every vault known to the subgraph.
// Pools that fail to load are left out and reported through a
// *model.PartialError next to the pools that did load.
func (c *Client) FetchPools(ctx context.Context) ([]model.PoolHistory, error) {
	var (
		out      []model.PoolHistory
		failures []model.PoolFailure
		lastID   string
	)
	for {
		var data struct {
			Pools []RawPool `json:"pools"`
		}
		if err := c.query(ctx, poolsQuery, map[string]interface{}{"lastID": lastID}, &data); err != nil {
			return nil, err
		}
		for _, raw := range data.Pools {
			history, err := c.loadPool(ctx, raw)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				c.logger.Warn("skipping pool", zap.String("pool", raw.ID), zap.Error(err))
				failures = append(failures, model.PoolFailure{PoolID: raw.ID, Err: err})
				continue
			}
			out = append(out, history)
		}
		if len(data.Pools) < pageSize {
			break
		}
		lastID = data.Pools[len(data.Pools)-1].ID
	}

	c.logger.Debug("fetched pools", zap.Int("count", len(out)), zap.Int("failed", len(failures)))
	if len(failures) > 0 {
		return out, &model.PartialError{Failures: failures}
	}
	return out, nil
}

// FetchPoolHistory returns the decoded history of a single vault.
func (c *Client) FetchPoolHistory(ctx context.Context, poolID string) (model.PoolHistory, error) {
	var data struct {
		Pool *RawPool `json:"pool"`
	}
	vars := map[string]interface{}{"id": strings.ToLower(poolID)}
	if err := c.query(ctx, poolQuery, vars, &data); err != nil {
		return model.PoolHistory{}, err
	}
	if data.Pool == nil {
		return model.PoolHistory{}, fmt.Errorf("%w: %s", ErrPoolNotFound, poolID)
	}
	return c.loadPool(ctx, *data.Pool)
}

// loadPool completes every truncated snapshot list of raw and decodes it.
func (c *Client) loadPool(ctx context.Context, raw RawPool) (model.PoolHistory, error) {
	var err error
	if raw.SupplySnapshots, err = completeSnapshots(ctx, c, "supplySnapshots", growthFields, raw.ID, raw.SupplySnapshots, RawGrowthSnapshot.cursor); err != nil {
		return model.PoolHistory{}, err
	}
	if raw.RebalanceSnapshots, err = completeSnapshots(ctx, c, "rebalanceSnapshots", growthFields, raw.ID, raw.RebalanceSnapshots, RawGrowthSnapshot.cursor); err != nil {
		return model.PoolHistory{}, err
	}
	if raw.FeeSnapshots, err = completeSnapshots(ctx, c, "feeSnapshots", feeFields, raw.ID, raw.FeeSnapshots, RawFeeSnapshot.cursor); err != nil {
		return model.PoolHistory{}, err
	}
	if raw.ReservesSnapshots, err = completeSnapshots(ctx, c, "reservesSnapshots", reserveFields, raw.ID, raw.ReservesSnapshots, RawReserveSnapshot.cursor); err != nil {
		return model.PoolHistory{}, err
	}
	return DecodePool(raw)
}

// completeSnapshots fetches the rest of a nested snapshot list that came back
// full. Pages start at the last block seen and repeated ids are dropped.
func completeSnapshots[T any](ctx context.Context, c *Client, entity, fields, poolID string, items []T, cursor func(T) (string, Scalar)) ([]T, error) {
	if len(items) < pageSize {
		return items, nil
	}
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		id, _ := cursor(item)
		seen[id] = true
	}

	query := snapshotPageQuery(entity, fields)
	for {
		_, from := cursor(items[len(items)-1])
		var data struct {
			Page []T `json:"page"`
		}
		vars := map[string]interface{}{"pool": poolID, "from": string(from)}
		if err := c.query(ctx, query, vars, &data); err != nil {
			return nil, fmt.Errorf("page %s of pool %s from block %s: %w", entity, poolID, from, err)
		}

		added := 0
		for _, item := range data.Page {
			id, _ := cursor(item)
			if seen[id] {
				continue
			}
			seen[id] = true
			items = append(items, item)
			added++
		}
		if len(data.Page) < pageSize {
			return items, nil
		}
		if added == 0 {
			c.logger.Warn("snapshot paging stalled",
				zap.String("pool", poolID),
				zap.String("entity", entity),
				zap.String("block", string(from)),
			)
			return items, nil
		}
	}
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

func (c *Client) query(ctx context.Context, query string, vars map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("encode query: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("subgraph request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("subgraph status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Errors) > 0 {
		msgs := make([]string, 0, len(decoded.Errors))
		for _, e := range decoded.Errors {
			msgs = append(msgs, e.Message)
		}
		return fmt.Errorf("subgraph errors: %s", strings.Join(msgs, "; "))
	}
	if len(decoded.Data) == 0 {
		return fmt.Errorf("subgraph response has no data")
	}
	if err := json.Unmarshal(decoded.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

// leveledLogger routes retryablehttp logs into zap.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
