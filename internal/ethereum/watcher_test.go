package ethereum

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/swap-price-monitor/internal/metrics"
	"github.com/kjannette/swap-price-monitor/internal/models"
	"github.com/kjannette/swap-price-monitor/internal/pricing"
)

var (
	uniPool   = common.HexToAddress("0xC6962004f452bE9203591991D15f6b388e09E8D0")
	cakePool  = common.HexToAddress("0xd9e2a1a61B6E61b275cEc326465d417e52C1b95c")
	otherPool = common.HexToAddress("0x0000000000000000000000000000000000000001")

	q96, _ = new(big.Int).SetString("79228162514264337593543950336", 10)
)

type fakeSub struct {
	errCh chan error
	once  sync.Once
}

func (s *fakeSub) Unsubscribe()      { s.once.Do(func() { close(s.errCh) }) }
func (s *fakeSub) Err() <-chan error { return s.errCh }

type fakeChain struct {
	mu          sync.Mutex
	headerCalls int
	slot0       map[common.Address][]byte
	pending     []types.Log
}

func (c *fakeChain) SubscribeFilterLogs(ctx context.Context, q geth.FilterQuery, ch chan<- types.Log) (geth.Subscription, error) {
	c.mu.Lock()
	logs := c.pending
	c.pending = nil
	c.mu.Unlock()
	go func() {
		for _, l := range logs {
			ch <- l
		}
	}()
	return &fakeSub{errCh: make(chan error, 1)}, nil
}

func (c *fakeChain) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headerCalls++
	return &types.Header{Number: number, Time: 1700000000 + number.Uint64()}, nil
}

func (c *fakeChain) CallContract(ctx context.Context, msg geth.CallMsg, blockNumber *big.Int) ([]byte, error) {
	out, ok := c.slot0[*msg.To]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return out, nil
}

type fakePoster struct {
	mu      sync.Mutex
	entries []models.SwapLog
	err     error
}

func (p *fakePoster) Post(ctx context.Context, e models.SwapLog) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.entries = append(p.entries, e)
	return nil
}

func (p *fakePoster) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

type fakeNotifier struct {
	opps []pricing.Opportunity
}

func (n *fakeNotifier) SendPriceGap(ctx context.Context, opp pricing.Opportunity, pair pricing.Pair) {
	n.opps = append(n.opps, opp)
}

func swapLog(t *testing.T, pabi *PoolABI, pool common.Address, block uint64, sqrt *big.Int) types.Log {
	t.Helper()
	data, err := pabi.abi.Events["Swap"].Inputs.NonIndexed().Pack(
		big.NewInt(-1_000_000), big.NewInt(2_500_000), sqrt, big.NewInt(123456789), big.NewInt(-201),
	)
	require.NoError(t, err)
	return types.Log{
		Address: pool,
		Topics: []common.Hash{
			pabi.SwapTopic(),
			common.BytesToHash(common.HexToAddress("0x00000000000000000000000000000000000000aa").Bytes()),
			common.BytesToHash(common.HexToAddress("0x00000000000000000000000000000000000000bb").Bytes()),
		},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.HexToHash("0x01"),
	}
}

func newTestWatcher(t *testing.T, chain *fakeChain, poster *fakePoster, notifier *fakeNotifier, m *metrics.Metrics) *Watcher {
	t.Helper()
	w, err := NewWatcher(NewClient(chain), poster, notifier, WatcherConfig{
		Pools: []Pool{
			{Name: "Uniswap", Address: uniPool},
			{Name: "Pancakeswap", Address: cakePool},
		},
		Pair:      pricing.DefaultPair,
		Threshold: decimal.RequireFromString("0.5"),
		Metrics:   m,
		Log:       zerolog.Nop(),
	})
	require.NoError(t, err)
	return w
}

func TestSwapTopic(t *testing.T) {
	pabi, err := NewPoolABI()
	require.NoError(t, err)
	assert.Equal(t,
		common.HexToHash("0xc42079f94a6350d7e6235f29174924f928cc2ac818eb64fed8004e115fbcca67"),
		pabi.SwapTopic())

	q := pabi.FilterQuery([]Pool{{Name: "Uniswap", Address: uniPool}})
	assert.Equal(t, []common.Address{uniPool}, q.Addresses)
	assert.Equal(t, pabi.SwapTopic(), q.Topics[0][0])
}

func TestDecodeSwap(t *testing.T) {
	pabi, err := NewPoolABI()
	require.NoError(t, err)

	ev, err := pabi.DecodeSwap(swapLog(t, pabi, uniPool, 42, q96))
	require.NoError(t, err)
	assert.Equal(t, uniPool, ev.Pool)
	assert.Equal(t, common.HexToAddress("0xaa"), ev.Sender)
	assert.Equal(t, common.HexToAddress("0xbb"), ev.Recipient)
	assert.Equal(t, "-1000000", ev.Amount0.String())
	assert.Equal(t, "2500000", ev.Amount1.String())
	assert.Equal(t, q96.String(), ev.SqrtPriceX96.String())
	assert.Equal(t, "-201", ev.Tick.String())
	assert.Equal(t, uint64(42), ev.BlockNumber)
}

func TestDecodeSwap_Rejects(t *testing.T) {
	pabi, err := NewPoolABI()
	require.NoError(t, err)

	l := swapLog(t, pabi, uniPool, 1, q96)
	wrongTopic := l
	wrongTopic.Topics = []common.Hash{common.HexToHash("0x1234"), l.Topics[1], l.Topics[2]}
	_, err = pabi.DecodeSwap(wrongTopic)
	assert.Error(t, err)

	short := l
	short.Data = l.Data[:64]
	_, err = pabi.DecodeSwap(short)
	assert.Error(t, err)
}

func TestHandleLog_PostsAndCachesBlockTime(t *testing.T) {
	chain := &fakeChain{}
	poster := &fakePoster{}
	m := metrics.New("test", prometheus.NewRegistry())
	w := newTestWatcher(t, chain, poster, &fakeNotifier{}, m)
	ctx := context.Background()

	require.NoError(t, w.HandleLog(ctx, swapLog(t, w.abi, uniPool, 7, q96)))
	require.NoError(t, w.HandleLog(ctx, swapLog(t, w.abi, uniPool, 7, q96)))

	require.Equal(t, 2, poster.count())
	assert.Equal(t, models.SwapLog{
		DexName:      "Uniswap",
		BlockNumber:  7,
		Timestamp:    1700000007,
		SqrtPriceX96: q96.String(),
		Amount0:      "-1000000",
		Amount1:      "2500000",
	}, poster.entries[0])
	assert.Equal(t, 1, chain.headerCalls, "block timestamps are cached")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SwapsObserved.WithLabelValues("Uniswap")))

	q, ok := w.Quote("Uniswap")
	require.True(t, ok)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(1)))
}

func TestHandleLog_SkipsAndErrors(t *testing.T) {
	chain := &fakeChain{}
	poster := &fakePoster{}
	w := newTestWatcher(t, chain, poster, &fakeNotifier{}, nil)
	ctx := context.Background()

	removed := swapLog(t, w.abi, uniPool, 1, q96)
	removed.Removed = true
	assert.NoError(t, w.HandleLog(ctx, removed))

	assert.Error(t, w.HandleLog(ctx, swapLog(t, w.abi, otherPool, 1, q96)))

	poster.err = errors.New("connection refused")
	assert.Error(t, w.HandleLog(ctx, swapLog(t, w.abi, uniPool, 1, q96)))

	poster.err = nil
	err := w.HandleLog(ctx, swapLog(t, w.abi, uniPool, 1, big.NewInt(0)))
	assert.ErrorIs(t, err, pricing.ErrDecode, "a zero price is posted but not quoted")
	assert.Equal(t, 1, poster.count())
}

func TestCheckPrice(t *testing.T) {
	chain := &fakeChain{}
	notifier := &fakeNotifier{}
	m := metrics.New("test", prometheus.NewRegistry())
	w := newTestWatcher(t, chain, &fakePoster{}, notifier, m)
	ctx := context.Background()

	// one quote only: nothing to compare
	require.NoError(t, w.HandleLog(ctx, swapLog(t, w.abi, uniPool, 1, new(big.Int).Lsh(q96, 1))))
	assert.Empty(t, notifier.opps)

	// Uniswap at 4, Pancakeswap at 1: 300% above
	require.NoError(t, w.HandleLog(ctx, swapLog(t, w.abi, cakePool, 2, q96)))
	require.Len(t, notifier.opps, 1)
	assert.Equal(t, "Uniswap", notifier.opps[0].Buy)
	assert.Equal(t, "Pancakeswap", notifier.opps[0].Sell)
	assert.Equal(t, "300.00", notifier.opps[0].DifferencePercent.StringFixed(2))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PriceGapAlerts))

	// equal prices: no opportunity
	require.NoError(t, w.HandleLog(ctx, swapLog(t, w.abi, uniPool, 3, q96)))
	assert.Len(t, notifier.opps, 1)
}

func TestCheckPrice_SkipsWhileChecking(t *testing.T) {
	w := newTestWatcher(t, &fakeChain{}, &fakePoster{}, &fakeNotifier{}, nil)
	require.NoError(t, w.updateQuote("Uniswap", new(big.Int).Lsh(q96, 1).String()))
	require.NoError(t, w.updateQuote("Pancakeswap", q96.String()))

	w.checking.Store(true)
	_, ok := w.CheckPrice(context.Background())
	assert.False(t, ok)

	w.checking.Store(false)
	_, ok = w.CheckPrice(context.Background())
	assert.True(t, ok)
}

func TestSeed(t *testing.T) {
	pabi, err := NewPoolABI()
	require.NoError(t, err)
	out, err := pabi.abi.Methods["slot0"].Outputs.Pack(
		new(big.Int).Lsh(q96, 1), big.NewInt(13863), uint16(1), uint16(1), uint16(1), uint32(0), true,
	)
	require.NoError(t, err)

	chain := &fakeChain{slot0: map[common.Address][]byte{uniPool: out}}
	w := newTestWatcher(t, chain, &fakePoster{}, &fakeNotifier{}, nil)
	w.Seed(context.Background())

	q, ok := w.Quote("Uniswap")
	require.True(t, ok)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(4)))

	_, ok = w.Quote("Pancakeswap")
	assert.False(t, ok, "a reverted slot0 call is skipped")
}

func TestRun_ProcessesSubscribedLogs(t *testing.T) {
	chain := &fakeChain{}
	poster := &fakePoster{}
	w := newTestWatcher(t, chain, poster, &fakeNotifier{}, nil)
	chain.pending = []types.Log{
		swapLog(t, w.abi, uniPool, 10, q96),
		swapLog(t, w.abi, cakePool, 11, q96),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return poster.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestNewWatcher_RequiresPools(t *testing.T) {
	_, err := NewWatcher(NewClient(&fakeChain{}), &fakePoster{}, nil, WatcherConfig{})
	assert.Error(t, err)
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, nextBackoff(time.Second))
	assert.Equal(t, maxResubscribeDelay, nextBackoff(20*time.Second))
}
