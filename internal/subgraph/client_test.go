package subgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultYield/internal/model"
)

const poolsResponse = `{
  "data": {
    "pools": [
      {
        "id": "0xabcdef0123456789",
        "uniswapPool": "0x1111",
        "lowerTick": "-600",
        "upperTick": 600,
        "totalSupply": "1000",
        "lastTouchWithoutFees": "12000000",
        "supplySnapshots": [
          {"id": "s1", "block": "11990000", "totalSupply": "1000", "liquidity": "50000", "tickSpan": "1200"}
        ],
        "rebalanceSnapshots": [],
        "feeSnapshots": [
          {"id": "f1", "block": "12000100", "feesEarned0": "-3", "feesEarned1": "40"}
        ],
        "reservesSnapshots": [
          {"id": "r1", "block": "12000050", "reserves0": "100", "reserves1": "200"}
        ]
      }
    ]
  }
}`

func newTestClient(t *testing.T, url string, retries int) *Client {
	t.Helper()
	c, err := NewClient(Config{
		URL:          url,
		MaxRetries:   retries,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 2 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	return c
}

func TestFetchPoolsDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var req graphQLRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, "pools(first: 1000, orderBy: id")
		assert.Equal(t, "", req.Variables["lastID"])
		_, _ = w.Write([]byte(poolsResponse))
	}))
	defer srv.Close()

	pools, err := newTestClient(t, srv.URL, 0).FetchPools(context.Background())
	require.NoError(t, err)
	require.Len(t, pools, 1)

	h := pools[0]
	assert.Equal(t, "0xabcdef0123456789", h.Descriptor.ID)
	assert.Equal(t, int32(-600), h.Descriptor.LowerTick)
	assert.Equal(t, int32(600), h.Descriptor.UpperTick)
	assert.Equal(t, uint64(12000000), h.Descriptor.LastTouchWithoutFees)

	require.Len(t, h.SupplySnapshots, 1)
	g, ok := h.SupplySnapshots[0].Growth()
	require.True(t, ok)
	assert.Equal(t, int64(1200), g.TickSpan)
	assert.Equal(t, 0, g.Liquidity.Cmp(big.NewInt(50000)))

	require.Len(t, h.FeeSnapshots, 1)
	f, ok := h.FeeSnapshots[0].Fee()
	require.True(t, ok)
	require.NotNil(t, f.Fees)
	assert.Nil(t, f.Reserves)
	assert.Equal(t, int64(-3), f.Fees.Amount0.Int64())

	require.Len(t, h.ReserveSnapshots, 1)
	r, ok := h.ReserveSnapshots[0].Fee()
	require.True(t, ok)
	require.NotNil(t, r.Reserves)
	assert.Equal(t, int64(200), r.Reserves.Amount1.Int64())
	assert.True(t, h.HasFeeData())
}

func writeData(t *testing.T, w http.ResponseWriter, data interface{}) {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{"data": data})
	require.NoError(t, err)
	_, _ = w.Write(body)
}

func TestFetchPoolsSkipsMalformedPool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeData(t, w, map[string]interface{}{"pools": []RawPool{
			{ID: "0xgood", LowerTick: "-10", UpperTick: "10"},
			{ID: "0xbad", LowerTick: "notanint", UpperTick: "10"},
		}})
	}))
	defer srv.Close()

	pools, err := newTestClient(t, srv.URL, 0).FetchPools(context.Background())
	require.Len(t, pools, 1)
	assert.Equal(t, "0xgood", pools[0].Descriptor.ID)

	var partial *model.PartialError
	require.True(t, errors.As(err, &partial))
	require.Len(t, partial.Failures, 1)
	assert.Equal(t, "0xbad", partial.Failures[0].PoolID)
	assert.Contains(t, partial.Failures[0].Err.Error(), "lowerTick")
}

func TestFetchPoolsPagesPools(t *testing.T) {
	var (
		mu      sync.Mutex
		lastIDs []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		lastID, _ := req.Variables["lastID"].(string)
		mu.Lock()
		lastIDs = append(lastIDs, lastID)
		mu.Unlock()

		var pools []RawPool
		switch lastID {
		case "":
			for i := 0; i < pageSize; i++ {
				pools = append(pools, RawPool{ID: fmt.Sprintf("0x%04d", i), LowerTick: "-10", UpperTick: "10"})
			}
		case "0x0999":
			pools = []RawPool{{ID: "0x1000", LowerTick: "-10", UpperTick: "10"}}
		}
		writeData(t, w, map[string]interface{}{"pools": pools})
	}))
	defer srv.Close()

	pools, err := newTestClient(t, srv.URL, 0).FetchPools(context.Background())
	require.NoError(t, err)
	assert.Len(t, pools, pageSize+1)
	assert.Equal(t, "0x1000", pools[pageSize].Descriptor.ID)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"", "0x0999"}, lastIDs)
}

func TestFetchPoolsPagesSnapshots(t *testing.T) {
	snapshots := func(from, to int) []RawGrowthSnapshot {
		var out []RawGrowthSnapshot
		for b := from; b <= to; b++ {
			out = append(out, RawGrowthSnapshot{
				ID:          fmt.Sprintf("s%d", b),
				Block:       Scalar(fmt.Sprint(b)),
				TotalSupply: "1000",
				Liquidity:   "5000",
				TickSpan:    "20",
			})
		}
		return out
	}

	var pages int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if strings.Contains(req.Query, "page: supplySnapshots") {
			atomic.AddInt32(&pages, 1)
			assert.Equal(t, "0xpool", req.Variables["pool"])
			assert.Equal(t, "1000", req.Variables["from"])
			writeData(t, w, map[string]interface{}{"page": snapshots(1000, 1200)})
			return
		}
		writeData(t, w, map[string]interface{}{"pools": []RawPool{{
			ID:              "0xpool",
			LowerTick:       "-10",
			UpperTick:       "10",
			SupplySnapshots: snapshots(1, pageSize),
		}}})
	}))
	defer srv.Close()

	pools, err := newTestClient(t, srv.URL, 0).FetchPools(context.Background())
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&pages))

	supply := pools[0].SupplySnapshots
	require.Len(t, supply, 1200)
	assert.Equal(t, uint64(1200), supply[len(supply)-1].Block)
}

func TestFetchPoolHistoryNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "0xabc", req.Variables["id"])
		_, _ = w.Write([]byte(`{"data":{"pool":null}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, 0).FetchPoolHistory(context.Background(), "0xABC")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPoolNotFound))
}

func TestGraphQLErrorsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[{"message":"indexer behind"},{"message":"timeout"}]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, 0).FetchPools(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "indexer behind; timeout")
}

func TestNonOKStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad query", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, 0).FetchPools(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(poolsResponse))
	}))
	defer srv.Close()

	pools, err := newTestClient(t, srv.URL, 2).FetchPools(context.Background())
	require.NoError(t, err)
	assert.Len(t, pools, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDecodePoolRejectsMalformed(t *testing.T) {
	base := RawPool{ID: "0xpool", LowerTick: "-10", UpperTick: "10"}

	bad := base
	bad.SupplySnapshots = []RawGrowthSnapshot{{ID: "s1", Block: "10", TotalSupply: "1e18", Liquidity: "1", TickSpan: "20"}}
	_, err := DecodePool(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0xpool")
	assert.Contains(t, err.Error(), "totalSupply")

	bad = base
	bad.LowerTick = "abc"
	_, err = DecodePool(bad)
	require.Error(t, err)

	bad = base
	bad.FeeSnapshots = []RawFeeSnapshot{{ID: "f1", FeesEarned0: "1", FeesEarned1: "1"}}
	_, err = DecodePool(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "block")

	_, err = DecodePool(RawPool{})
	require.Error(t, err)

	h, err := DecodePool(base)
	require.NoError(t, err)
	assert.Zero(t, h.Descriptor.LastTouchWithoutFees)
}

func TestScalarAcceptsNumbersAndStrings(t *testing.T) {
	var v struct {
		A Scalar `json:"a"`
		B Scalar `json:"b"`
		C Scalar `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 12, "b": "-7", "c": null}`), &v))
	assert.Equal(t, Scalar("12"), v.A)
	assert.Equal(t, Scalar("-7"), v.B)
	assert.Equal(t, Scalar(""), v.C)
}
