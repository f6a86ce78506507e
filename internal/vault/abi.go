package vault

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// DefaultHelperAddress is the mainnet UniswapHelpers deployment exposing getLiquidityForAmounts.
const DefaultHelperAddress = "0xFbd0B8D8016b9f908fC9652895c26C5a4994fE36"

const vaultABIJSON = `[
  {
    "inputs": [],
    "name": "getUnderlyingBalances",
    "outputs": [
      {"internalType": "uint256", "name": "amount0Current", "type": "uint256"},
      {"internalType": "uint256", "name": "amount1Current", "type": "uint256"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {"inputs": [], "name": "totalSupply", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "pool", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "lowerTick", "outputs": [{"internalType": "int24", "name": "", "type": "int24"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "upperTick", "outputs": [{"internalType": "int24", "name": "", "type": "int24"}], "stateMutability": "view", "type": "function"}
]`

const poolABIJSON = `[
  {
    "inputs": [],
    "name": "slot0",
    "outputs": [
      {"internalType": "uint160", "name": "sqrtPriceX96", "type": "uint160"},
      {"internalType": "int24", "name": "tick", "type": "int24"},
      {"internalType": "uint16", "name": "observationIndex", "type": "uint16"},
      {"internalType": "uint16", "name": "observationCardinality", "type": "uint16"},
      {"internalType": "uint16", "name": "observationCardinalityNext", "type": "uint16"},
      {"internalType": "uint8", "name": "feeProtocol", "type": "uint8"},
      {"internalType": "bool", "name": "unlocked", "type": "bool"}
    ],
    "stateMutability": "view",
    "type": "function"
  }
]`

const helperABIJSON = `[
  {
    "inputs": [
      {"internalType": "uint160", "name": "sqrtRatioX96", "type": "uint160"},
      {"internalType": "int24", "name": "lowerTick", "type": "int24"},
      {"internalType": "int24", "name": "upperTick", "type": "int24"},
      {"internalType": "uint256", "name": "amount0", "type": "uint256"},
      {"internalType": "uint256", "name": "amount1", "type": "uint256"}
    ],
    "name": "getLiquidityForAmounts",
    "outputs": [{"internalType": "uint128", "name": "liquidity", "type": "uint128"}],
    "stateMutability": "pure",
    "type": "function"
  }
]`

var (
	vaultABI     abi.ABI
	vaultABIOnce sync.Once
	vaultABIErr  error

	poolABI     abi.ABI
	poolABIOnce sync.Once
	poolABIErr  error

	helperABI     abi.ABI
	helperABIOnce sync.Once
	helperABIErr  error
)

// VaultABI returns the parsed G-UNI vault ABI subset.
func VaultABI() (abi.ABI, error) {
	vaultABIOnce.Do(func() {
		vaultABI, vaultABIErr = abi.JSON(strings.NewReader(vaultABIJSON))
	})
	return vaultABI, vaultABIErr
}

// PoolABI returns the parsed Uniswap V3 pool ABI subset.
func PoolABI() (abi.ABI, error) {
	poolABIOnce.Do(func() {
		poolABI, poolABIErr = abi.JSON(strings.NewReader(poolABIJSON))
	})
	return poolABI, poolABIErr
}

// HelperABI returns the parsed UniswapHelpers ABI subset.
func HelperABI() (abi.ABI, error) {
	helperABIOnce.Do(func() {
		helperABI, helperABIErr = abi.JSON(strings.NewReader(helperABIJSON))
	})
	return helperABI, helperABIErr
}
