package vault

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"liquidityVault/internal/ledger"
	"liquidityVault/internal/positionmath"
)

func TestRebalancePlacesRangesAroundTick(t *testing.T) {
	f := newFixtureWithDeposit(t)
	full, base, limit := f.vault.Ranges(f.ctx)

	floor := positionmath.FloorTick(startTick, 60)
	require.Equal(t, positionmath.MinUsableTick(60), full.Lower)
	require.Equal(t, positionmath.MaxUsableTick(60), full.Upper)
	require.Equal(t, floor-1200, base.Lower)
	require.Equal(t, floor+60+1200, base.Upper)
	if limit.Upper == floor {
		require.Equal(t, floor-600, limit.Lower)
	} else {
		require.Equal(t, floor+60, limit.Lower)
		require.Equal(t, floor+60+600, limit.Upper)
	}

	tick, ts := f.vault.LastRebalance(f.ctx)
	require.Equal(t, int32(startTick), tick)
	require.Equal(t, f.ledger.Now(), ts)

	pos, err := f.pool.Position(f.ctx, vaultAddr, base.Lower, base.Upper)
	require.NoError(t, err)
	require.Positive(t, pos.Liquidity.Sign())
}

func TestRebalanceFullRangeWeight(t *testing.T) {
	f := newFixtureWithDeposit(t)
	require.NoError(t, f.vault.SetFullRangeWeight(f.ctx, manager, 50_000))
	require.Equal(t, uint32(50_000), f.vault.CurrentParams(f.ctx).FullRangeWeight)

	require.NoError(t, f.vault.Rebalance(f.ctx, manager))
	f.swapForwardAndBack(t)
	f.ledger.Advance(120)
	require.NoError(t, f.vault.Rebalance(f.ctx, manager))

	full, _, _ := f.vault.Ranges(f.ctx)
	pos, err := f.pool.Position(f.ctx, vaultAddr, full.Lower, full.Upper)
	require.NoError(t, err)
	require.Positive(t, pos.Liquidity.Sign())

	require.NoError(t, f.vault.SetFullRangeWeight(f.ctx, manager, 0))
	f.ledger.Advance(60)
	require.NoError(t, f.vault.Rebalance(f.ctx, manager))
	pos, err = f.pool.Position(f.ctx, vaultAddr, full.Lower, full.Upper)
	require.NoError(t, err)
	require.Zero(t, pos.Liquidity.Sign())
}

func TestRebalanceGates(t *testing.T) {
	f := newFixtureWithDeposit(t)

	require.NoError(t, f.vault.SetPeriod(f.ctx, manager, 3600))
	err := f.vault.Rebalance(f.ctx, manager)
	requireTag(t, err, "PE")
	require.True(t, ledger.IsTransient(err))
	require.ErrorIs(t, f.vault.CheckCanRebalance(f.ctx), ErrPeriod)
	f.ledger.Advance(3600)
	require.NoError(t, f.vault.CheckCanRebalance(f.ctx))
	require.NoError(t, f.vault.SetPeriod(f.ctx, manager, 0))

	require.NoError(t, f.vault.SetMinTickMove(f.ctx, manager, 60))
	requireTag(t, f.vault.Rebalance(f.ctx, manager), "TM")
	require.NoError(t, f.vault.SetMinTickMove(f.ctx, manager, 0))

	_, _, err = f.pool.SwapFrom(f.ctx, trader, false, e18(100))
	require.NoError(t, err)
	requireTag(t, f.vault.Rebalance(f.ctx, manager), "TP")

	f.ledger.Advance(120)
	twap, err := f.vault.GetTwap(f.ctx)
	require.NoError(t, err)
	slot, err := f.pool.Slot0(f.ctx)
	require.NoError(t, err)
	require.Equal(t, slot.Tick, twap)
	require.NoError(t, f.vault.Rebalance(f.ctx, manager))
}

func TestRebalancePriceBounds(t *testing.T) {
	params := defaultParams()
	params.BaseThreshold = 886_020
	f := newFixture(t, params)
	_, err := f.vault.Deposit(f.ctx, manager, e6(21_000), e18(10), nil, nil, manager)
	require.NoError(t, err)
	requireTag(t, f.vault.Rebalance(f.ctx, manager), "PRICE_BOUNDS")
}

func TestRebalanceDelegate(t *testing.T) {
	f := newFixtureWithDeposit(t)

	f.ledger.Advance(60)
	require.NoError(t, f.vault.Rebalance(f.ctx, alice))

	require.NoError(t, f.vault.SetRebalanceDelegate(f.ctx, manager, bob))
	f.ledger.Advance(60)
	requireTag(t, f.vault.Rebalance(f.ctx, alice), "rebalanceDelegate")
	require.NoError(t, f.vault.Rebalance(f.ctx, bob))
	f.ledger.Advance(60)
	require.NoError(t, f.vault.Rebalance(f.ctx, manager))
}

func TestManagerFeeAppliesFromNextRebalance(t *testing.T) {
	f := newFixtureWithDeposit(t)
	require.NoError(t, f.vault.SetManagerFee(f.ctx, manager, 100_000))

	fees := f.vault.Fees(f.ctx)
	require.Equal(t, uint32(0), fees.ManagerFee)
	require.Equal(t, uint32(100_000), fees.PendingManagerFee)

	f.swapForwardAndBack(t)
	f.ledger.Advance(120)
	require.NoError(t, f.vault.Rebalance(f.ctx, manager))

	fees = f.vault.Fees(f.ctx)
	require.Equal(t, uint32(100_000), fees.ManagerFee)
	require.Positive(t, fees.AccruedProtocolFees0.Sign()+fees.AccruedProtocolFees1.Sign())
	require.Zero(t, fees.AccruedManagerFees0.Sign())
	require.Zero(t, fees.AccruedManagerFees1.Sign())

	f.swapForwardAndBack(t)
	f.ledger.Advance(120)
	require.NoError(t, f.vault.Rebalance(f.ctx, manager))

	fees = f.vault.Fees(f.ctx)
	require.Positive(t, fees.AccruedManagerFees0.Sign()+fees.AccruedManagerFees1.Sign())
}

func TestProtocolFeeRefreshAppliesToSameRebalance(t *testing.T) {
	f := newFixtureWithDeposit(t)
	f.swapForwardAndBack(t)
	f.ledger.Advance(120)

	f.fees.protocolFee = 50_000
	from := f.events.len()
	require.NoError(t, f.vault.Rebalance(f.ctx, manager))
	require.Equal(t, uint32(50_000), f.vault.Fees(f.ctx).ProtocolFee)

	splits := f.events.collectFeesSince(t, from)
	require.NotEmpty(t, splits)
	for _, split := range splits {
		for _, side := range [][3]string{
			{split.FeesToVault0, split.FeesToProtocol0, split.FeesToManager0},
			{split.FeesToVault1, split.FeesToProtocol1, split.FeesToManager1},
		} {
			gross := new(big.Int)
			for _, part := range side {
				v, ok := new(big.Int).SetString(part, 10)
				require.True(t, ok)
				gross.Add(gross, v)
			}
			protocol, _ := new(big.Int).SetString(side[1], 10)
			requireEqualBig(t, positionmath.ApplyFee(gross, 50_000), protocol)
		}
	}
}

func TestEmergencyBurn(t *testing.T) {
	f := newFixtureWithDeposit(t)
	_, base, _ := f.vault.Ranges(f.ctx)
	pos, err := f.pool.Position(f.ctx, vaultAddr, base.Lower, base.Upper)
	require.NoError(t, err)
	idleBefore := f.balance(usdc, vaultAddr)
	supply := f.vault.TotalSupply(f.ctx)

	requireTag(t, f.vault.EmergencyBurn(f.ctx, alice, base.Lower, base.Upper, pos.Liquidity), "manager")
	require.NoError(t, f.vault.EmergencyBurn(f.ctx, manager, base.Lower, base.Upper, pos.Liquidity))

	after, err := f.pool.Position(f.ctx, vaultAddr, base.Lower, base.Upper)
	require.NoError(t, err)
	require.Zero(t, after.Liquidity.Sign())
	require.True(t, f.balance(usdc, vaultAddr).Cmp(idleBefore) > 0)
	requireEqualBig(t, supply, f.vault.TotalSupply(f.ctx))
}

func TestSnapshotEventCarriesTotalAmounts(t *testing.T) {
	params := defaultParams()
	params.FullRangeWeight = 500_000
	f := newFixture(t, params)
	_, err := f.vault.Deposit(f.ctx, manager, e6(21_000), e18(10), nil, nil, manager)
	require.NoError(t, err)
	require.NoError(t, f.vault.Rebalance(f.ctx, manager))
	f.ledger.Advance(60)

	total0, total1, err := f.vault.GetTotalAmounts(f.ctx)
	require.NoError(t, err)
	require.NoError(t, f.vault.Rebalance(f.ctx, manager))

	full, _, _ := f.vault.Ranges(f.ctx)
	pos, err := f.pool.Position(f.ctx, vaultAddr, full.Lower, full.Upper)
	require.NoError(t, err)
	require.Positive(t, pos.Liquidity.Sign())

	snap := f.events.lastSnapshot(t)
	requireNearBig(t, total0, snap.TotalAmount0, 10)
	requireNearBig(t, total1, snap.TotalAmount1, 10)
	require.Equal(t, f.vault.TotalSupply(f.ctx).String(), snap.TotalSupply)
}

func TestPokeAfterSwapsIncreasesTotalAmounts(t *testing.T) {
	f := newFixtureWithDeposit(t)
	for i := 0; i < 3; i++ {
		f.swapForwardAndBack(t)
	}

	before0, before1, err := f.vault.GetTotalAmounts(f.ctx)
	require.NoError(t, err)
	res, err := f.vault.Deposit(f.ctx, manager, big.NewInt(10), big.NewInt(10), nil, nil, manager)
	require.NoError(t, err)
	after0, after1, err := f.vault.GetTotalAmounts(f.ctx)
	require.NoError(t, err)

	require.Positive(t, after0.Cmp(new(big.Int).Add(before0, res.Amount0)))
	require.Positive(t, after1.Cmp(new(big.Int).Add(before1, res.Amount1)))
}

func TestTotalSupplyStaysAtBaseline(t *testing.T) {
	f := newFixtureWithDeposit(t)
	baseline, ok := new(big.Int).SetString("10000000000001000000", 10)
	require.True(t, ok)

	f.swapForwardAndBack(t)
	f.ledger.Advance(120)
	require.NoError(t, f.vault.Rebalance(f.ctx, manager))
	requireEqualBig(t, baseline, f.vault.TotalSupply(f.ctx))

	res, err := f.vault.Deposit(f.ctx, manager, big.NewInt(10), big.NewInt(10), nil, nil, manager)
	require.NoError(t, err)
	require.Positive(t, res.Shares.Sign())
	want := new(big.Int).Add(baseline, res.Shares)
	requireEqualBig(t, want, f.vault.TotalSupply(f.ctx))

	f.ledger.Advance(120)
	require.NoError(t, f.vault.Rebalance(f.ctx, manager))
	requireEqualBig(t, want, f.vault.TotalSupply(f.ctx))
}
