package chain

import (
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// newNode serves a minimal JSON-RPC endpoint answering from results by method name.
func newNode(t *testing.T, results map[string]string, seen *[]rpcRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req rpcRequest
		require.NoError(t, json.Unmarshal(body, &req))
		if seen != nil {
			*seen = append(*seen, req)
		}
		w.Header().Set("Content-Type", "application/json")
		result, ok := results[req.Method]
		if !ok {
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"error":{"code":-32601,"message":"method not found"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":` + result + `}`))
	}))
}

func TestClientReadsPinnedCall(t *testing.T) {
	var seen []rpcRequest
	node := newNode(t, map[string]string{
		"eth_chainId":     `"0x1"`,
		"eth_blockNumber": `"0xd59f80"`,
		"eth_call":        `"0x00000000000000000000000000000000000000000000000000000000000003e8"`,
	}, &seen)
	defer node.Close()

	ctx := context.Background()
	c, err := NewClient(ctx, node.URL)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, int64(1), c.ChainID().Int64())

	latest, err := c.LatestBlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(14_000_000), latest)

	to := common.HexToAddress("0x50379f632ca68D36E50cfBC8F78fe16bd1499d1e")
	out, err := c.CallContract(ctx, ethereum.CallMsg{To: &to, Data: []byte{0x18, 0x16, 0x0d, 0xdd}}, big.NewInt(14_000_000))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), new(big.Int).SetBytes(out).Int64())

	last := seen[len(seen)-1]
	require.Equal(t, "eth_call", last.Method)
	require.Len(t, last.Params, 2)
	assert.Equal(t, `"0xd59f80"`, string(last.Params[1]))
}

func TestCallContractWrapsError(t *testing.T) {
	node := newNode(t, map[string]string{"eth_chainId": `"0x1"`}, nil)
	defer node.Close()

	c, err := NewClient(context.Background(), node.URL)
	require.NoError(t, err)
	defer c.Close()

	to := common.HexToAddress("0x50379f632ca68D36E50cfBC8F78fe16bd1499d1e")
	_, err = c.CallContract(context.Background(), ethereum.CallMsg{To: &to}, big.NewInt(5))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "eth_call at 5")
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient(context.Background(), "")
	assert.Error(t, err)
}
