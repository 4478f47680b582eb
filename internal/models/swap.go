package models

// SwapLog is the payload the swap watcher posts to the trade-log server.
// Big numbers travel as decimal strings.
type SwapLog struct {
	DexName      string `json:"dexName"`
	BlockNumber  uint64 `json:"blockNumber"`
	Timestamp    uint64 `json:"timestamp"`
	SqrtPriceX96 string `json:"sqrtPriceX96"`
	Amount0      string `json:"amount0"`
	Amount1      string `json:"amount1"`
}
