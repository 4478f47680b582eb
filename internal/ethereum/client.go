package ethereum

import (
	"context"
	"fmt"
	"math/big"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common/lru"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

const blockTimeCacheSize = 1024

// ChainReader is the subset of ethclient.Client the watcher uses.
type ChainReader interface {
	SubscribeFilterLogs(ctx context.Context, q geth.FilterQuery, ch chan<- types.Log) (geth.Subscription, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	CallContract(ctx context.Context, msg geth.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Client wraps a chain connection and caches block timestamps, since every
// swap in a block shares one.
type Client struct {
	rpc        ChainReader
	closer     func()
	blockTimes *lru.Cache[uint64, uint64]
}

// Dial connects over websocket; log subscriptions need a streaming transport.
func Dial(ctx context.Context, rpcURL string) (*Client, error) {
	rpc, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial RPC: %w", err)
	}
	c := NewClient(rpc)
	c.closer = rpc.Close
	return c, nil
}

func NewClient(rpc ChainReader) *Client {
	return &Client{
		rpc:        rpc,
		closer:     func() {},
		blockTimes: lru.NewCache[uint64, uint64](blockTimeCacheSize),
	}
}

func (c *Client) Close() { c.closer() }

func (c *Client) Reader() ChainReader { return c.rpc }

// BlockTime returns the unix timestamp of a block.
func (c *Client) BlockTime(ctx context.Context, number uint64) (uint64, error) {
	if ts, ok := c.blockTimes.Get(number); ok {
		return ts, nil
	}
	h, err := c.rpc.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, fmt.Errorf("get block %d: %w", number, err)
	}
	c.blockTimes.Add(number, h.Time)
	return h.Time, nil
}
