package vault

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityVault/internal/ledger"
	"liquidityVault/internal/model"
	"liquidityVault/internal/report"
)

// DepositResult is what a deposit minted and pulled.
type DepositResult struct {
	Shares  *big.Int
	Amount0 *big.Int
	Amount1 *big.Int
}

// Deposit pulls tokens from sender in proportion to the vault's holdings and
// mints shares to to. sender must have approved the vault for both tokens.
func (v *Vault) Deposit(ctx context.Context, sender common.Address, amount0Desired, amount1Desired, amount0Min, amount1Min *big.Int, to common.Address) (DepositResult, error) {
	amount0Desired, amount1Desired = orZero(amount0Desired), orZero(amount1Desired)
	amount0Min, amount1Min = orZero(amount0Min), orZero(amount1Min)

	var out DepositResult
	err := v.apply(ctx, sender, func(ctx context.Context, _ ledger.Call, st *state) error {
		if amount0Desired.Sign() <= 0 && amount1Desired.Sign() <= 0 {
			return ErrZeroDeposit
		}
		if to == (common.Address{}) || to == v.address {
			return ErrRecipient
		}

		// Credit earned fees first so that they are reflected in the share price.
		for _, rng := range []report.Range{v.FullRange(), st.base, st.limit} {
			if err := v.poke(ctx, rng); err != nil {
				return err
			}
		}

		shares, amount0, amount1, err := v.calcSharesAndAmounts(ctx, st, amount0Desired, amount1Desired)
		if err != nil {
			return err
		}
		if shares.Sign() <= 0 {
			return ErrShares
		}
		if amount0.Cmp(amount0Min) < 0 {
			return ErrAmount0Min
		}
		if amount1.Cmp(amount1Min) < 0 {
			return ErrAmount1Min
		}

		if amount0.Sign() > 0 {
			if err := v.ledger.TransferFrom(ctx, v.token0, v.address, sender, v.address, amount0); err != nil {
				return err
			}
		}
		if amount1.Sign() > 0 {
			if err := v.ledger.TransferFrom(ctx, v.token1, v.address, sender, v.address, amount1); err != nil {
				return err
			}
		}

		if err := v.mintShares(ctx, st, to, shares); err != nil {
			return err
		}
		if st.totalSupply.Cmp(st.maxTotalSupply) > 0 {
			return ErrMaxTotalSupply
		}

		out = DepositResult{Shares: shares, Amount0: amount0, Amount1: amount1}
		return v.ledger.Emit(ctx, v.address, model.EventDeposit, model.DepositEventData{
			Sender:  sender.Hex(),
			To:      to.Hex(),
			Shares:  shares.String(),
			Amount0: amount0.String(),
			Amount1: amount1.String(),
		})
	})
	if err != nil {
		return DepositResult{}, err
	}
	v.logger.Debug("deposit",
		zap.String("to", to.Hex()),
		zap.String("shares", out.Shares.String()),
		zap.String("amount0", out.Amount0.String()),
		zap.String("amount1", out.Amount1.String()),
	)
	return out, nil
}

// calcSharesAndAmounts sizes a deposit so that it matches the vault's current
// token ratio. Amounts are rounded up and shares down.
func (v *Vault) calcSharesAndAmounts(ctx context.Context, st *state, amount0Desired, amount1Desired *big.Int) (shares, amount0, amount1 *big.Int, err error) {
	supply := st.totalSupply
	if supply.Sign() == 0 {
		shares = maxBig(amount0Desired, amount1Desired)
		shares = new(big.Int).Add(shares, big.NewInt(InitialShareBonus))
		return shares, new(big.Int).Set(amount0Desired), new(big.Int).Set(amount1Desired), nil
	}

	total0, total1, err := v.totalAmounts(ctx, st)
	if err != nil {
		return nil, nil, nil, err
	}
	switch {
	case total0.Sign() <= 0 && total1.Sign() <= 0:
		return nil, nil, nil, ErrShares
	case total0.Sign() <= 0:
		amount1 = new(big.Int).Set(amount1Desired)
		shares = new(big.Int).Mul(amount1, supply)
		shares.Quo(shares, total1)
		return shares, new(big.Int), amount1, nil
	case total1.Sign() <= 0:
		amount0 = new(big.Int).Set(amount0Desired)
		shares = new(big.Int).Mul(amount0, supply)
		shares.Quo(shares, total0)
		return shares, amount0, new(big.Int), nil
	}

	cross := minBig(new(big.Int).Mul(amount0Desired, total1), new(big.Int).Mul(amount1Desired, total0))
	if cross.Sign() <= 0 {
		return nil, nil, nil, ErrCross
	}
	crossLess := new(big.Int).Sub(cross, one)
	amount0 = new(big.Int).Quo(crossLess, total1)
	amount0.Add(amount0, one)
	amount1 = new(big.Int).Quo(crossLess, total0)
	amount1.Add(amount1, one)
	shares = new(big.Int).Mul(cross, supply)
	shares.Quo(shares, total0)
	shares.Quo(shares, total1)
	return shares, amount0, amount1, nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

func maxBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}
