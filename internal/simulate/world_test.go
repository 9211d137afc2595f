package simulate

import (
	"context"
	"encoding/json"
	"math/big"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"liquidityVault/internal/model"
	"liquidityVault/internal/storage"
	"liquidityVault/internal/vault"
)

var (
	manager = common.HexToAddress("0x0000000000000000000000000000000000001111")
	trader  = common.HexToAddress("0x0000000000000000000000000000000000005555")
	lp      = common.HexToAddress("0x0000000000000000000000000000000000006666")
)

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

func scaled(n, decimals int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), pow10(decimals))
}

type sink struct {
	mu     sync.Mutex
	events []model.EventRecord
}

func (s *sink) PutEventBatch(batch []model.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, batch...)
	return nil
}

func (s *sink) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.EventName == name {
			n++
		}
	}
	return n
}

func testConfig() Config {
	return Config{
		ChainID:        1,
		StartTime:      1_700_000_000,
		Token0:         Token{Address: common.HexToAddress("0x0a"), Symbol: "USDC", Decimals: 6},
		Token1:         Token{Address: common.HexToAddress("0x0b"), Symbol: "WETH", Decimals: 18},
		PoolAddress:    common.HexToAddress("0xf0"),
		PoolFee:        3000,
		StartTick:      200_311,
		LP:             lp,
		LPLiquidity:    big.NewInt(2e17),
		LPWidth:        6000,
		FactoryAddress: common.HexToAddress("0xf2"),
		Governance:     common.HexToAddress("0x4444"),
		ProtocolFee:    30_000,
		Vaults: []vault.Params{{
			Name:             "AV_USDC_WETH",
			Symbol:           "AV_USDC_WETH",
			Manager:          manager,
			MaxTotalSupply:   pow10(20),
			BaseThreshold:    1200,
			LimitThreshold:   600,
			MaxTwapDeviation: 100,
			TwapDuration:     60,
		}},
		Depositors: []Depositor{{Address: manager, Amount0: scaled(21_000, 6), Amount1: scaled(10, 18)}},
		Trader:     trader,
		Funding0:   scaled(1_000_000_000, 6),
		Funding1:   scaled(1_000_000, 18),
		Warmup:     120,
	}
}

func TestBuildSeedsDeposits(t *testing.T) {
	ctx := context.Background()
	w, err := Build(ctx, testConfig(), nil)
	require.NoError(t, err)
	require.Len(t, w.Vaults, 1)
	require.Equal(t, 1, w.Factory.NumVaults(ctx))

	v := w.Vaults[0]
	want, _ := new(big.Int).SetString("10000000000001000000", 10)
	require.Equal(t, 0, want.Cmp(v.TotalSupply(ctx)))
	require.Equal(t, 0, want.Cmp(v.BalanceOf(ctx, manager)))
}

func TestBuildRequiresVault(t *testing.T) {
	cfg := testConfig()
	cfg.Vaults = nil
	_, err := Build(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestRunRoundTripsAndRebalances(t *testing.T) {
	ctx := context.Background()
	events := &sink{}
	w, err := Build(ctx, testConfig(), nil, WithSinks(events))
	require.NoError(t, err)
	v := w.Vaults[0]

	var rebalances int
	res, err := w.Run(ctx, Schedule{Steps: 3, StepSeconds: 60, RoundTrip: scaled(5, 18)}, func(ctx context.Context, step int) error {
		rebalances++
		return v.Rebalance(ctx, manager)
	})
	require.NoError(t, err)
	require.Equal(t, 3, res.Steps)
	require.Equal(t, 3, res.Swaps)
	require.Zero(t, res.SwapFailures)
	require.Equal(t, 3, rebalances)
	require.Equal(t, 3, events.count(model.EventSnapshot))
	require.Positive(t, events.count(model.EventCollectFees))

	_, ts := v.LastRebalance(ctx)
	require.Equal(t, w.Ledger.Now(), ts)
}

func TestRunStopsOnStepError(t *testing.T) {
	ctx := context.Background()
	w, err := Build(ctx, testConfig(), nil)
	require.NoError(t, err)

	res, err := w.Run(ctx, Schedule{Steps: 5, StepSeconds: 1}, func(ctx context.Context, step int) error {
		if step == 1 {
			return vault.ErrPeriod
		}
		return nil
	})
	require.ErrorIs(t, err, vault.ErrPeriod)
	require.Equal(t, 1, res.Steps)
}

func TestReplaySwapsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swaps.jsonl")
	js := storage.NewJsonlStorage(path)

	swap := func(a0, a1 string) model.EventRecord {
		raw, err := json.Marshal(model.SwapEventData{Amount0: a0, Amount1: a1})
		require.NoError(t, err)
		return model.EventRecord{EventName: model.EventSwap, Decoded: raw}
	}
	require.NoError(t, js.PutEventBatch([]model.EventRecord{
		swap("-10000000", "5000000000000000000"),
		{EventName: model.EventMint, Decoded: json.RawMessage(`{}`)},
		swap("10000000", "-1"),
	}))

	swaps, err := ReadSwaps(path)
	require.NoError(t, err)
	require.Len(t, swaps, 2)

	ctx := context.Background()
	w, err := Build(ctx, testConfig(), nil)
	require.NoError(t, err)
	before := w.Ledger.BalanceOf(ctx, w.Config.Token1.Address, trader)

	res, err := w.Run(ctx, Schedule{Steps: 2, StepSeconds: 10, Swaps: swaps}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, res.Swaps)
	require.Zero(t, res.SwapFailures)

	after := w.Ledger.BalanceOf(ctx, w.Config.Token1.Address, trader)
	require.Equal(t, -1, after.Cmp(before))
}

func TestReplaySwapRejectsBadAmounts(t *testing.T) {
	ctx := context.Background()
	w, err := Build(ctx, testConfig(), nil)
	require.NoError(t, err)
	require.Error(t, w.ReplaySwap(ctx, model.SwapEventData{Amount0: "x", Amount1: "1"}))
	require.NoError(t, w.ReplaySwap(ctx, model.SwapEventData{Amount0: "0", Amount1: "0"}))
}
