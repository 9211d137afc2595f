package vault

import (
	"context"
	"encoding/json"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"liquidityVault/internal/ledger"
	"liquidityVault/internal/model"
	"liquidityVault/internal/pool"
	"liquidityVault/internal/positionmath"
)

const startTick = 200_311

var (
	usdc        = common.HexToAddress("0x000000000000000000000000000000000000000a")
	weth        = common.HexToAddress("0x000000000000000000000000000000000000000b")
	otherToken  = common.HexToAddress("0x000000000000000000000000000000000000000c")
	poolAddr    = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	vaultAddr   = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	factoryAddr = common.HexToAddress("0x00000000000000000000000000000000000000f2")
	manager     = common.HexToAddress("0x0000000000000000000000000000000000001111")
	alice       = common.HexToAddress("0x0000000000000000000000000000000000002222")
	bob         = common.HexToAddress("0x0000000000000000000000000000000000003333")
	governance  = common.HexToAddress("0x0000000000000000000000000000000000004444")
	trader      = common.HexToAddress("0x0000000000000000000000000000000000005555")
	lp          = common.HexToAddress("0x0000000000000000000000000000000000006666")
)

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func e6(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000))
}

type feeStub struct {
	protocolFee uint32
	governance  common.Address
}

func (f *feeStub) ProtocolFee(context.Context) uint32 { return f.protocolFee }
func (f *feeStub) Governance(context.Context) common.Address { return f.governance }

type eventLog struct {
	mu     sync.Mutex
	events []model.EventRecord
}

func (e *eventLog) PutEventBatch(batch []model.EventRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, batch...)
	return nil
}

func (e *eventLog) len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}

func (e *eventLog) collectFeesSince(t *testing.T, from int) []model.CollectFeesEventData {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []model.CollectFeesEventData
	for _, rec := range e.events[from:] {
		if rec.EventName != model.EventCollectFees {
			continue
		}
		var data model.CollectFeesEventData
		require.NoError(t, json.Unmarshal(rec.Decoded, &data))
		out = append(out, data)
	}
	return out
}

func (e *eventLog) lastSnapshot(t *testing.T) model.SnapshotEventData {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.events) - 1; i >= 0; i-- {
		if e.events[i].EventName != model.EventSnapshot {
			continue
		}
		var data model.SnapshotEventData
		require.NoError(t, json.Unmarshal(e.events[i].Decoded, &data))
		return data
	}
	t.Fatalf("no snapshot event")
	return model.SnapshotEventData{}
}

type fixture struct {
	ctx    context.Context
	ledger *ledger.Ledger
	pool   *pool.SimPool
	fees   *feeStub
	vault  *Vault
	events *eventLog
}

func defaultParams() Params {
	return Params{
		Name:             "AV_TEST",
		Symbol:           "AV_TEST",
		Manager:          manager,
		MaxTotalSupply:   new(big.Int).Exp(big.NewInt(10), big.NewInt(20), nil),
		BaseThreshold:    1200,
		LimitThreshold:   600,
		Period:           0,
		MinTickMove:      0,
		MaxTwapDeviation: 100,
		TwapDuration:     60,
	}
}

func newFixture(t *testing.T, params Params) *fixture {
	t.Helper()
	ctx := context.Background()
	l := ledger.New(ledger.Config{ChainID: 1, StartTime: 1_700_000_000}, nil)
	events := &eventLog{}
	l.AddSink(events)

	require.NoError(t, l.RegisterToken(ctx, model.TokenMeta{Address: usdc.Hex(), Symbol: "USDC", Decimals: 6}))
	require.NoError(t, l.RegisterToken(ctx, model.TokenMeta{Address: weth.Hex(), Symbol: "WETH", Decimals: 18}))
	require.NoError(t, l.RegisterToken(ctx, model.TokenMeta{Address: otherToken.Hex(), Symbol: "OTH", Decimals: 18}))
	for _, holder := range []common.Address{manager, alice, bob, trader, lp} {
		require.NoError(t, l.Mint(ctx, usdc, holder, e6(1_000_000_000)))
		require.NoError(t, l.Mint(ctx, weth, holder, e18(1_000_000)))
	}

	sqrtPrice, err := positionmath.SqrtRatioAtTick(startTick)
	require.NoError(t, err)
	p, err := pool.NewSimPool(ctx, l, pool.SimConfig{
		Address:      poolAddr,
		Token0:       usdc,
		Token1:       weth,
		Fee:          3000,
		SqrtPriceX96: sqrtPrice,
	}, nil)
	require.NoError(t, err)

	floor := positionmath.FloorTick(startTick, 60)
	_, _, err = p.Mint(ctx, lp, lp, floor-6000, floor+6000, big.NewInt(2e17), func(ctx context.Context, amount0, amount1 *big.Int) error {
		if err := l.Transfer(ctx, usdc, lp, poolAddr, amount0); err != nil {
			return err
		}
		return l.Transfer(ctx, weth, lp, poolAddr, amount1)
	})
	require.NoError(t, err)

	fees := &feeStub{protocolFee: 30_000, governance: governance}
	v, err := New(ctx, l, p, fees, Config{Address: vaultAddr, Factory: factoryAddr, Params: params}, nil)
	require.NoError(t, err)
	for _, holder := range []common.Address{manager, alice, bob} {
		require.NoError(t, l.ApproveMax(ctx, usdc, holder, vaultAddr))
		require.NoError(t, l.ApproveMax(ctx, weth, holder, vaultAddr))
	}

	// The TWAP window must be covered by observations.
	l.Advance(120)
	return &fixture{ctx: ctx, ledger: l, pool: p, fees: fees, vault: v, events: events}
}

// newFixtureWithDeposit deposits 21000 USDC and 10 WETH as the manager and
// rebalances once.
func newFixtureWithDeposit(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t, defaultParams())
	_, err := f.vault.Deposit(f.ctx, manager, e6(21_000), e18(10), e6(21_000), e18(10), manager)
	require.NoError(t, err)
	require.NoError(t, f.vault.Rebalance(f.ctx, manager))
	return f
}

func (f *fixture) swapForwardAndBack(t *testing.T) {
	t.Helper()
	amount0, _, err := f.pool.SwapFrom(f.ctx, trader, false, e18(5))
	require.NoError(t, err)
	_, _, err = f.pool.SwapFrom(f.ctx, trader, true, new(big.Int).Neg(amount0))
	require.NoError(t, err)
}

func (f *fixture) balance(token, holder common.Address) *big.Int {
	return f.ledger.BalanceOf(f.ctx, token, holder)
}

func requireTag(t *testing.T, err error, tag string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, tag, ledger.TagOf(err), "error: %v", err)
}

func requireEqualBig(t *testing.T, want, got *big.Int) {
	t.Helper()
	require.Equal(t, 0, want.Cmp(got), "want %s, got %s", want, got)
}

func requireNearBig(t *testing.T, want *big.Int, got string, delta int64) {
	t.Helper()
	value, ok := new(big.Int).SetString(got, 10)
	require.True(t, ok, "parse %q", got)
	diff := new(big.Int).Sub(want, value)
	require.True(t, diff.CmpAbs(big.NewInt(delta)) <= 0, "want %s, got %s", want, got)
}
