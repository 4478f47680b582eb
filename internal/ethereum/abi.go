package ethereum

import (
	"io"
	"strings"
)

// Minimal ABI for a Uniswap V3 style pool (Pancakeswap V3 shares it): the
// Swap event and slot0.

func mustPoolABI() io.Reader {
	return strings.NewReader(`[
		{
			"name": "Swap",
			"type": "event",
			"anonymous": false,
			"inputs": [
				{"name": "sender",       "type": "address", "indexed": true},
				{"name": "recipient",    "type": "address", "indexed": true},
				{"name": "amount0",      "type": "int256",  "indexed": false},
				{"name": "amount1",      "type": "int256",  "indexed": false},
				{"name": "sqrtPriceX96", "type": "uint160", "indexed": false},
				{"name": "liquidity",    "type": "uint128", "indexed": false},
				{"name": "tick",         "type": "int24",   "indexed": false}
			]
		},
		{
			"name": "slot0",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [
				{"name": "sqrtPriceX96",               "type": "uint160"},
				{"name": "tick",                       "type": "int24"},
				{"name": "observationIndex",           "type": "uint16"},
				{"name": "observationCardinality",     "type": "uint16"},
				{"name": "observationCardinalityNext", "type": "uint16"},
				{"name": "feeProtocol",                "type": "uint32"},
				{"name": "unlocked",                   "type": "bool"}
			]
		}
	]`)
}
