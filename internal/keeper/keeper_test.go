package keeper

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"liquidityVault/internal/ledger"
	"liquidityVault/internal/model"
	"liquidityVault/internal/observability"
	"liquidityVault/internal/simulate"
	"liquidityVault/internal/vault"
)

var manager = common.HexToAddress("0x0000000000000000000000000000000000001111")

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

func worldConfig(period uint32) simulate.Config {
	return simulate.Config{
		ChainID:        1,
		StartTime:      1_700_000_000,
		Token0:         simulate.Token{Address: common.HexToAddress("0x0a"), Symbol: "USDC", Decimals: 6},
		Token1:         simulate.Token{Address: common.HexToAddress("0x0b"), Symbol: "WETH", Decimals: 18},
		PoolAddress:    common.HexToAddress("0xf0"),
		PoolFee:        3000,
		StartTick:      200_311,
		LP:             common.HexToAddress("0x6666"),
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
			Period:           period,
			MaxTwapDeviation: 100,
			TwapDuration:     60,
		}},
		Depositors: []simulate.Depositor{{
			Address: manager,
			Amount0: new(big.Int).Mul(big.NewInt(21_000), pow10(6)),
			Amount1: new(big.Int).Mul(big.NewInt(10), pow10(18)),
		}},
		Trader:   common.HexToAddress("0x5555"),
		Funding0: pow10(15),
		Funding1: pow10(24),
		Warmup:   120,
	}
}

type snapshotRecorder struct {
	mu        sync.Mutex
	snapshots []model.VaultSnapshot
}

func (r *snapshotRecorder) PutSnapshots(s []model.VaultSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s...)
	return nil
}

func TestRunOnceRebalancesThenSkips(t *testing.T) {
	ctx := context.Background()
	w, err := simulate.Build(ctx, worldConfig(3600), nil)
	require.NoError(t, err)
	addr := w.Vaults[0].Address()

	metrics := observability.NewMetrics()
	snaps := &snapshotRecorder{}
	cpPath := filepath.Join(t.TempDir(), "keeper.json")
	k, err := New(Config{
		Sender:            manager,
		Workers:           2,
		CheckpointPath:    cpPath,
		CheckpointEnabled: true,
	}, FactorySource(w.Factory), nil, WithMetrics(metrics), WithSnapshotStore(snaps), WithTokens(w.Ledger))
	require.NoError(t, err)
	defer k.Close()

	summary, err := k.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, Summary{Vaults: 1, Rebalance: 1}, summary)

	st, ok := k.Status(addr)
	require.True(t, ok)
	require.Equal(t, uint64(1), st.Successes)
	require.Equal(t, w.Ledger.Now(), st.LastTimestamp)
	require.Len(t, snaps.snapshots, 1)
	require.Equal(t, addr.Hex(), snaps.snapshots[0].Address)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.KeeperRebalance.WithLabelValues(addr.Hex(), observability.ResultOK)))
	require.InDelta(t, 10.000000000001, testutil.ToFloat64(metrics.VaultTotalSupply.WithLabelValues(addr.Hex())), 1e-9)

	w.Ledger.Advance(60)
	summary, err = k.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, Summary{Vaults: 1, Skipped: 1}, summary)

	st, _ = k.Status(addr)
	require.Equal(t, uint64(2), st.Attempts)
	require.Equal(t, uint64(1), st.Skipped)
	require.Equal(t, vault.ErrPeriod.Tag, st.LastTag)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.KeeperRebalance.WithLabelValues(addr.Hex(), observability.ResultSkipped)))

	reloaded, err := New(Config{CheckpointPath: cpPath, CheckpointEnabled: true}, FactorySource(w.Factory), nil)
	require.NoError(t, err)
	defer reloaded.Close()
	progress := reloaded.Progress()
	require.Equal(t, uint64(1), progress[addr.Hex()].Rebalances)
	require.Equal(t, st.LastTimestamp, progress[addr.Hex()].LastTimestamp)
}

func TestRunOnceUnauthorizedSender(t *testing.T) {
	ctx := context.Background()
	cfg := worldConfig(0)
	cfg.Vaults[0].RebalanceDelegate = common.HexToAddress("0xde1e")
	w, err := simulate.Build(ctx, cfg, nil)
	require.NoError(t, err)

	k, err := New(Config{Sender: common.HexToAddress("0xbad"), MaxRetries: 3, RetryBaseDelay: time.Millisecond}, FactorySource(w.Factory), nil)
	require.NoError(t, err)
	defer k.Close()

	summary, err := k.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Failed)

	st, _ := k.Status(w.Vaults[0].Address())
	require.Equal(t, uint64(1), st.Attempts)
	require.Equal(t, vault.ErrRebalanceDelegate.Tag, st.LastTag)
}

type flakyVault struct {
	addr  common.Address
	mu    sync.Mutex
	calls int
	errs  []error
}

func (f *flakyVault) Address() common.Address { return f.addr }
func (f *flakyVault) Token0() common.Address { return common.Address{} }
func (f *flakyVault) Token1() common.Address { return common.Address{} }

func (f *flakyVault) Rebalance(context.Context, common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *flakyVault) Describe(context.Context) (model.VaultSnapshot, error) {
	return model.VaultSnapshot{Address: f.addr.Hex(), TotalSupply: "0", Total0: "0", Total1: "0"}, nil
}

func staticSource(vaults ...Vault) Source {
	return func(context.Context) []Vault { return vaults }
}

func TestRunOnceRetriesExecutionFailures(t *testing.T) {
	flaky := &flakyVault{
		addr: common.HexToAddress("0x01"),
		errs: []error{ledger.ErrInsufficientBalance, errors.New("rpc timeout")},
	}
	gated := &flakyVault{
		addr: common.HexToAddress("0x02"),
		errs: []error{vault.ErrTickMove},
	}

	k, err := New(Config{MaxRetries: 2, RetryBaseDelay: time.Millisecond}, staticSource(flaky, gated), nil)
	require.NoError(t, err)
	defer k.Close()

	summary, err := k.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, Summary{Vaults: 2, Rebalance: 1, Skipped: 1}, summary)
	require.Equal(t, 3, flaky.calls)
	require.Equal(t, 1, gated.calls)
}

func TestRunOnceGivesUpAfterRetries(t *testing.T) {
	v := &flakyVault{
		addr: common.HexToAddress("0x01"),
		errs: []error{pool503, pool503, pool503},
	}
	k, err := New(Config{MaxRetries: 1, RetryBaseDelay: time.Millisecond}, staticSource(v), nil)
	require.NoError(t, err)
	defer k.Close()

	summary, err := k.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, 2, v.calls)

	st, _ := k.Status(v.addr)
	require.Equal(t, "upstream unavailable", st.LastTag)
}

var pool503 = errors.New("upstream unavailable")

func TestClassify(t *testing.T) {
	cases := []struct {
		err       error
		result    string
		retryable bool
	}{
		{nil, observability.ResultOK, false},
		{vault.ErrPeriod, observability.ResultSkipped, false},
		{vault.ErrTwapDeviation, observability.ResultSkipped, false},
		{vault.ErrRebalanceDelegate, observability.ResultFailed, false},
		{vault.ErrThresholdSpacing, observability.ResultFailed, false},
		{vault.ErrMaxTotalSupply, observability.ResultFailed, true},
		{ledger.ErrInsufficientBalance, observability.ResultFailed, true},
		{context.Canceled, observability.ResultFailed, false},
		{pool503, observability.ResultFailed, true},
	}
	for _, tc := range cases {
		require.Equal(t, tc.result, classify(tc.err), "%v", tc.err)
		if tc.err != nil {
			require.Equal(t, tc.retryable, retryable(tc.err), "%v", tc.err)
		}
	}
}

func TestRunRequiresSchedule(t *testing.T) {
	k, err := New(Config{}, staticSource(), nil)
	require.NoError(t, err)
	defer k.Close()
	require.Error(t, k.Run(context.Background()))
}

func TestRunStopsWithContext(t *testing.T) {
	v := &flakyVault{addr: common.HexToAddress("0x01")}
	k, err := New(Config{Schedule: "@every 1s"}, staticSource(v), nil)
	require.NoError(t, err)
	defer k.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()
	require.NoError(t, k.Run(ctx))

	st, ok := k.Status(v.addr)
	require.True(t, ok)
	require.GreaterOrEqual(t, st.Successes, uint64(1))
}
