package vault

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityVault/internal/ledger"
	"liquidityVault/internal/model"
	"liquidityVault/internal/positionmath"
	"liquidityVault/internal/report"
)

// WithdrawResult is what a withdrawal paid out.
type WithdrawResult struct {
	Amount0 *big.Int
	Amount1 *big.Int
}

// Withdraw burns shares from sender and pays out the proportional part of
// the idle balances and of every range, fees included.
func (v *Vault) Withdraw(ctx context.Context, sender common.Address, shares, amount0Min, amount1Min *big.Int, to common.Address) (WithdrawResult, error) {
	shares = orZero(shares)
	amount0Min, amount1Min = orZero(amount0Min), orZero(amount1Min)

	var out WithdrawResult
	err := v.apply(ctx, sender, func(ctx context.Context, _ ledger.Call, st *state) error {
		if shares.Sign() <= 0 {
			return ErrShares
		}
		if to == (common.Address{}) || to == v.address {
			return ErrRecipient
		}
		supply := st.totalSupply

		if err := v.burnShares(ctx, st, sender, shares); err != nil {
			return err
		}

		idle0, idle1 := v.idleBalances(ctx, st)
		amount0 := positionmath.MulDiv(idle0, shares, supply)
		amount1 := positionmath.MulDiv(idle1, shares, supply)

		for _, rng := range []report.Range{v.FullRange(), st.base, st.limit} {
			part0, part1, err := v.burnLiquidityShare(ctx, st, rng, shares, supply)
			if err != nil {
				return err
			}
			amount0.Add(amount0, part0)
			amount1.Add(amount1, part1)
		}

		if amount0.Cmp(amount0Min) < 0 {
			return ErrAmount0Min
		}
		if amount1.Cmp(amount1Min) < 0 {
			return ErrAmount1Min
		}
		if amount0.Sign() > 0 {
			if err := v.ledger.Transfer(ctx, v.token0, v.address, to, amount0); err != nil {
				return err
			}
		}
		if amount1.Sign() > 0 {
			if err := v.ledger.Transfer(ctx, v.token1, v.address, to, amount1); err != nil {
				return err
			}
		}

		out = WithdrawResult{Amount0: amount0, Amount1: amount1}
		return v.ledger.Emit(ctx, v.address, model.EventWithdraw, model.WithdrawEventData{
			Sender:  sender.Hex(),
			To:      to.Hex(),
			Shares:  shares.String(),
			Amount0: amount0.String(),
			Amount1: amount1.String(),
		})
	})
	if err != nil {
		return WithdrawResult{}, err
	}
	v.logger.Debug("withdraw",
		zap.String("to", to.Hex()),
		zap.String("shares", shares.String()),
		zap.String("amount0", out.Amount0.String()),
		zap.String("amount1", out.Amount1.String()),
	)
	return out, nil
}

// burnLiquidityShare removes shares/supply of rng's liquidity and returns the
// released principal plus the same share of the vault's fees.
func (v *Vault) burnLiquidityShare(ctx context.Context, st *state, rng report.Range, shares, supply *big.Int) (*big.Int, *big.Int, error) {
	total, err := v.positionLiquidity(ctx, rng)
	if err != nil {
		return nil, nil, err
	}
	liquidity := positionmath.MulDiv(total, shares, supply)
	if liquidity.Sign() == 0 {
		return new(big.Int), new(big.Int), nil
	}
	burned0, burned1, fees0, fees1, err := v.burnAndCollect(ctx, st, rng, liquidity)
	if err != nil {
		return nil, nil, err
	}
	amount0 := new(big.Int).Add(burned0, positionmath.MulDiv(fees0, shares, supply))
	amount1 := new(big.Int).Add(burned1, positionmath.MulDiv(fees1, shares, supply))
	return amount0, amount1, nil
}
