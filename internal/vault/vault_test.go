package vault

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"liquidityVault/internal/ledger"
	"liquidityVault/internal/positionmath"
)

func TestInitialDepositShares(t *testing.T) {
	f := newFixtureWithDeposit(t)

	want, ok := new(big.Int).SetString("10000000000001000000", 10)
	require.True(t, ok)
	requireEqualBig(t, want, f.vault.BalanceOf(f.ctx, manager))
	requireEqualBig(t, want, f.vault.TotalSupply(f.ctx))

	f.ledger.Advance(60)
	require.NoError(t, f.vault.Rebalance(f.ctx, manager))
	requireEqualBig(t, want, f.vault.TotalSupply(f.ctx))
}

func TestFirstDepositPullsDesiredAmounts(t *testing.T) {
	cases := []struct {
		name    string
		amount0 *big.Int
		amount1 *big.Int
	}{
		{"only token1 dust", big.NewInt(0), big.NewInt(1)},
		{"only token0 dust", big.NewInt(1), big.NewInt(0)},
		{"only token0", big.NewInt(1e10), big.NewInt(0)},
		{"only token1", big.NewInt(0), big.NewInt(1e10)},
		{"uneven", big.NewInt(1e4), big.NewInt(1e10)},
		{"even", big.NewInt(1e10), big.NewInt(1e10)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, defaultParams())
			before0, before1 := f.balance(usdc, alice), f.balance(weth, alice)

			res, err := f.vault.Deposit(f.ctx, alice, tc.amount0, tc.amount1, nil, nil, alice)
			require.NoError(t, err)
			require.Positive(t, res.Shares.Sign())
			requireEqualBig(t, res.Shares, f.vault.BalanceOf(f.ctx, alice))
			requireEqualBig(t, tc.amount0, new(big.Int).Sub(before0, f.balance(usdc, alice)))
			requireEqualBig(t, tc.amount1, new(big.Int).Sub(before1, f.balance(weth, alice)))
		})
	}
}

func TestDepositChecks(t *testing.T) {
	f := newFixture(t, defaultParams())
	zero := common.Address{}

	_, err := f.vault.Deposit(f.ctx, manager, big.NewInt(0), big.NewInt(0), nil, nil, manager)
	requireTag(t, err, "amount0Desired or amount1Desired")
	_, err = f.vault.Deposit(f.ctx, manager, big.NewInt(1e8), big.NewInt(1e8), nil, nil, zero)
	requireTag(t, err, "to")
	_, err = f.vault.Deposit(f.ctx, manager, big.NewInt(1e8), big.NewInt(1e8), nil, nil, vaultAddr)
	requireTag(t, err, "to")
	_, err = f.vault.Deposit(f.ctx, manager, big.NewInt(1e8), big.NewInt(0), big.NewInt(2e8), nil, manager)
	requireTag(t, err, "amount0Min")
	_, err = f.vault.Deposit(f.ctx, manager, big.NewInt(0), big.NewInt(1e8), nil, big.NewInt(2e8), manager)
	requireTag(t, err, "amount1Min")

	_, err = f.vault.Deposit(f.ctx, manager, big.NewInt(1e8), e18(200), nil, nil, manager)
	requireTag(t, err, "maxTotalSupply")
	require.True(t, ledger.IsTransient(err))
	require.Zero(t, f.vault.TotalSupply(f.ctx).Sign())
}

func TestDepositMatchesVaultRatio(t *testing.T) {
	f := newFixtureWithDeposit(t)
	total0, total1, err := f.vault.GetTotalAmounts(f.ctx)
	require.NoError(t, err)
	supply := f.vault.TotalSupply(f.ctx)

	res, err := f.vault.Deposit(f.ctx, alice, e6(1_000), e18(10), nil, nil, alice)
	require.NoError(t, err)
	require.True(t, res.Amount0.Cmp(e6(1_000)) <= 0)
	require.True(t, res.Amount1.Cmp(e18(10)) < 0)

	// Shares never claim a larger fraction than the tokens paid in.
	lhs := new(big.Int).Mul(res.Shares, total0)
	require.True(t, lhs.Cmp(new(big.Int).Mul(res.Amount0, supply)) <= 0)
	lhs = new(big.Int).Mul(res.Shares, total1)
	require.True(t, lhs.Cmp(new(big.Int).Mul(res.Amount1, supply)) <= 0)
}

func TestWithdrawAllReturnsTotalAmounts(t *testing.T) {
	f := newFixtureWithDeposit(t)
	shares := f.vault.BalanceOf(f.ctx, manager)
	before0, before1 := f.balance(usdc, manager), f.balance(weth, manager)
	total0, total1, err := f.vault.GetTotalAmounts(f.ctx)
	require.NoError(t, err)

	res, err := f.vault.Withdraw(f.ctx, manager, shares, nil, nil, manager)
	require.NoError(t, err)
	requireEqualBig(t, total0, res.Amount0)
	requireEqualBig(t, total1, res.Amount1)
	require.Zero(t, f.vault.BalanceOf(f.ctx, manager).Sign())
	require.Zero(t, f.vault.TotalSupply(f.ctx).Sign())
	requireEqualBig(t, new(big.Int).Add(before0, total0), f.balance(usdc, manager))
	requireEqualBig(t, new(big.Int).Add(before1, total1), f.balance(weth, manager))
}

func TestWithdrawChecks(t *testing.T) {
	f := newFixtureWithDeposit(t)

	_, err := f.vault.Withdraw(f.ctx, manager, big.NewInt(0), nil, nil, manager)
	requireTag(t, err, "shares")
	_, err = f.vault.Withdraw(f.ctx, manager, big.NewInt(1e8), big.NewInt(1e10), nil, manager)
	requireTag(t, err, "amount0Min")
	_, err = f.vault.Withdraw(f.ctx, manager, big.NewInt(1e8), nil, big.NewInt(1e10), manager)
	requireTag(t, err, "amount1Min")
	_, err = f.vault.Withdraw(f.ctx, manager, big.NewInt(1e8), big.NewInt(1e8), nil, common.Address{})
	requireTag(t, err, "to")
	_, err = f.vault.Withdraw(f.ctx, manager, big.NewInt(1e8), big.NewInt(1e8), nil, vaultAddr)
	requireTag(t, err, "to")
	_, err = f.vault.Withdraw(f.ctx, alice, big.NewInt(1), nil, nil, alice)
	require.ErrorIs(t, err, ErrInsufficientShares)
}

func TestDepositWithdrawRoundTripDoesNotProfit(t *testing.T) {
	f := newFixtureWithDeposit(t)
	f.swapForwardAndBack(t)

	before0, before1 := f.balance(usdc, alice), f.balance(weth, alice)
	res, err := f.vault.Deposit(f.ctx, alice, e6(2_100), e18(1), nil, nil, alice)
	require.NoError(t, err)
	_, err = f.vault.Withdraw(f.ctx, alice, res.Shares, nil, nil, alice)
	require.NoError(t, err)

	require.True(t, f.balance(usdc, alice).Cmp(before0) <= 0)
	require.True(t, f.balance(weth, alice).Cmp(before1) <= 0)
}

func TestSharesSumToTotalSupply(t *testing.T) {
	f := newFixtureWithDeposit(t)
	res, err := f.vault.Deposit(f.ctx, alice, e6(500), e18(1), nil, nil, alice)
	require.NoError(t, err)

	half := new(big.Int).Rsh(res.Shares, 1)
	require.NoError(t, f.vault.TransferShares(f.ctx, alice, bob, half))
	err = f.vault.TransferShares(f.ctx, bob, alice, res.Shares)
	require.ErrorIs(t, err, ErrSharesTransfer)
	_, err = f.vault.Withdraw(f.ctx, bob, new(big.Int).Rsh(half, 1), nil, nil, bob)
	require.NoError(t, err)

	sum := new(big.Int)
	for _, bal := range f.vault.Holders(f.ctx) {
		sum.Add(sum, bal)
	}
	requireEqualBig(t, f.vault.TotalSupply(f.ctx), sum)
}

func TestFailedCallLeavesNoTrace(t *testing.T) {
	f := newFixtureWithDeposit(t)
	f.swapForwardAndBack(t)
	_, base, _ := f.vault.Ranges(f.ctx)

	posBefore, err := f.pool.Position(f.ctx, vaultAddr, base.Lower, base.Upper)
	require.NoError(t, err)
	events := f.events.len()
	supply := f.vault.TotalSupply(f.ctx)
	bal0, bal1 := f.balance(usdc, alice), f.balance(weth, alice)

	_, err = f.vault.Deposit(f.ctx, alice, e6(1_000_000), e18(1_000), nil, nil, alice)
	requireTag(t, err, "maxTotalSupply")

	posAfter, err := f.pool.Position(f.ctx, vaultAddr, base.Lower, base.Upper)
	require.NoError(t, err)
	requireEqualBig(t, posBefore.TokensOwed0, posAfter.TokensOwed0)
	requireEqualBig(t, posBefore.TokensOwed1, posAfter.TokensOwed1)
	requireEqualBig(t, supply, f.vault.TotalSupply(f.ctx))
	requireEqualBig(t, bal0, f.balance(usdc, alice))
	requireEqualBig(t, bal1, f.balance(weth, alice))
	require.Equal(t, events, f.events.len())
}

func TestBreakdownIsReadOnly(t *testing.T) {
	f := newFixtureWithDeposit(t)
	f.swapForwardAndBack(t)

	total0, total1, err := f.vault.GetTotalAmounts(f.ctx)
	require.NoError(t, err)
	breakdown, err := f.vault.Breakdown(f.ctx)
	require.NoError(t, err)
	require.Len(t, breakdown.Ranges, 3)

	var fees0, fees1 big.Int
	for _, row := range breakdown.Ranges {
		fees0.Add(&fees0, row.Fees0)
		fees1.Add(&fees1, row.Fees1)
	}
	require.Positive(t, fees0.Sign()+fees1.Sign())
	require.True(t, breakdown.NetTotal0.Cmp(total0) >= 0)
	require.True(t, breakdown.NetTotal1.Cmp(total1) >= 0)

	again0, again1, err := f.vault.GetTotalAmounts(f.ctx)
	require.NoError(t, err)
	requireEqualBig(t, total0, again0)
	requireEqualBig(t, total1, again1)
}

func TestDescribe(t *testing.T) {
	f := newFixtureWithDeposit(t)
	snap, err := f.vault.Describe(f.ctx)
	require.NoError(t, err)
	require.Equal(t, vaultAddr.Hex(), snap.Address)
	require.Equal(t, "10000000000001000000", snap.TotalSupply)
	require.Equal(t, uint32(30_000), snap.ProtocolFee)
	require.Equal(t, positionmath.MinUsableTick(60), snap.FullLower)
	require.Less(t, snap.BaseLower, snap.BaseUpper)
}
