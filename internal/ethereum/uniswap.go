package ethereum

import (
	"context"
	"fmt"
	"math/big"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Pool is one watched V3 pool.
type Pool struct {
	Name    string
	Address common.Address
}

// SwapEvent is a decoded pool Swap log.
type SwapEvent struct {
	Pool         common.Address
	Sender       common.Address
	Recipient    common.Address
	Amount0      *big.Int
	Amount1      *big.Int
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Tick         *big.Int
	BlockNumber  uint64
	TxHash       common.Hash
	LogIndex     uint
}

// PoolABI decodes V3 pool events and calls.
type PoolABI struct {
	abi abi.ABI
}

func NewPoolABI() (*PoolABI, error) {
	parsed, err := abi.JSON(mustPoolABI())
	if err != nil {
		return nil, fmt.Errorf("parse pool ABI: %w", err)
	}
	return &PoolABI{abi: parsed}, nil
}

// SwapTopic is keccak256("Swap(address,address,int256,int256,uint160,uint128,int24)").
func (p *PoolABI) SwapTopic() common.Hash {
	return p.abi.Events["Swap"].ID
}

// FilterQuery selects Swap logs emitted by the given pools.
func (p *PoolABI) FilterQuery(pools []Pool) geth.FilterQuery {
	addrs := make([]common.Address, 0, len(pools))
	for _, pool := range pools {
		addrs = append(addrs, pool.Address)
	}
	return geth.FilterQuery{
		Addresses: addrs,
		Topics:    [][]common.Hash{{p.SwapTopic()}},
	}
}

func (p *PoolABI) DecodeSwap(l types.Log) (SwapEvent, error) {
	if len(l.Topics) != 3 || l.Topics[0] != p.SwapTopic() {
		return SwapEvent{}, fmt.Errorf("log %s/%d is not a Swap event", l.TxHash.Hex(), l.Index)
	}

	values, err := p.abi.Events["Swap"].Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return SwapEvent{}, fmt.Errorf("unpack Swap data: %w", err)
	}
	if len(values) != 5 {
		return SwapEvent{}, fmt.Errorf("unpack Swap data: got %d values", len(values))
	}

	ints := make([]*big.Int, len(values))
	for i, v := range values {
		n, ok := v.(*big.Int)
		if !ok {
			return SwapEvent{}, fmt.Errorf("unpack Swap data: field %d is %T", i, v)
		}
		ints[i] = n
	}

	return SwapEvent{
		Pool:         l.Address,
		Sender:       common.BytesToAddress(l.Topics[1].Bytes()),
		Recipient:    common.BytesToAddress(l.Topics[2].Bytes()),
		Amount0:      ints[0],
		Amount1:      ints[1],
		SqrtPriceX96: ints[2],
		Liquidity:    ints[3],
		Tick:         ints[4],
		BlockNumber:  l.BlockNumber,
		TxHash:       l.TxHash,
		LogIndex:     l.Index,
	}, nil
}

// Slot0 reads the pool's current sqrtPriceX96.
func (p *PoolABI) Slot0(ctx context.Context, rpc ChainReader, pool common.Address) (*big.Int, error) {
	data, err := p.abi.Pack("slot0")
	if err != nil {
		return nil, err
	}
	out, err := rpc.CallContract(ctx, geth.CallMsg{To: &pool, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("slot0 call: %w", err)
	}
	values, err := p.abi.Unpack("slot0", out)
	if err != nil {
		return nil, fmt.Errorf("unpack slot0: %w", err)
	}
	sqrt, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack slot0: sqrtPriceX96 is %T", values[0])
	}
	return sqrt, nil
}
