package vault

import (
	"context"
	"math/big"

	"liquidityVault/internal/ledger"
	"liquidityVault/internal/model"
	"liquidityVault/internal/positionmath"
	"liquidityVault/internal/report"
)

var one = big.NewInt(1)

// poke makes the pool credit fees earned so far to the range's tokens owed.
func (v *Vault) poke(ctx context.Context, rng report.Range) error {
	liquidity, err := v.positionLiquidity(ctx, rng)
	if err != nil || liquidity.Sign() == 0 {
		return err
	}
	_, _, err = v.pool.Burn(ctx, v.address, rng.Lower, rng.Upper, new(big.Int))
	return err
}

// burnAndCollect removes liquidity from rng, collects everything owed and
// splits the fee part between the vault, the protocol and the manager. It
// returns the principal released and the fees kept by the vault.
func (v *Vault) burnAndCollect(ctx context.Context, st *state, rng report.Range, liquidity *big.Int) (burned0, burned1, fees0, fees1 *big.Int, err error) {
	burned0, burned1 = new(big.Int), new(big.Int)
	if !rng.Set() {
		return burned0, burned1, new(big.Int), new(big.Int), nil
	}
	current, err := v.positionLiquidity(ctx, rng)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if current.Sign() > 0 {
		if liquidity == nil {
			liquidity = new(big.Int)
		}
		burned0, burned1, err = v.pool.Burn(ctx, v.address, rng.Lower, rng.Upper, liquidity)
		if err != nil {
			return nil, nil, nil, nil, err
		}
	}

	collect0, collect1, err := v.pool.Collect(ctx, v.address, v.address, rng.Lower, rng.Upper, positionmath.MaxUint128, positionmath.MaxUint128)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	fees0 = new(big.Int).Sub(collect0, burned0)
	fees1 = new(big.Int).Sub(collect1, burned1)
	if fees0.Sign() <= 0 && fees1.Sign() <= 0 {
		return burned0, burned1, new(big.Int), new(big.Int), nil
	}

	protocol0 := positionmath.ApplyFee(fees0, st.protocolFee)
	protocol1 := positionmath.ApplyFee(fees1, st.protocolFee)
	manager0 := positionmath.ApplyFee(fees0, st.managerFee)
	manager1 := positionmath.ApplyFee(fees1, st.managerFee)
	st.accruedProtocolFees0 = new(big.Int).Add(st.accruedProtocolFees0, protocol0)
	st.accruedProtocolFees1 = new(big.Int).Add(st.accruedProtocolFees1, protocol1)
	st.accruedManagerFees0 = new(big.Int).Add(st.accruedManagerFees0, manager0)
	st.accruedManagerFees1 = new(big.Int).Add(st.accruedManagerFees1, manager1)

	fees0.Sub(fees0, protocol0).Sub(fees0, manager0)
	fees1.Sub(fees1, protocol1).Sub(fees1, manager1)
	err = v.ledger.Emit(ctx, v.address, model.EventCollectFees, model.CollectFeesEventData{
		FeesToVault0:    fees0.String(),
		FeesToVault1:    fees1.String(),
		FeesToProtocol0: protocol0.String(),
		FeesToProtocol1: protocol1.String(),
		FeesToManager0:  manager0.String(),
		FeesToManager1:  manager1.String(),
	})
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return burned0, burned1, fees0, fees1, nil
}

// mintLiquidity adds liquidity to rng paid from the vault's idle balance.
func (v *Vault) mintLiquidity(ctx context.Context, rng report.Range, liquidity *big.Int) error {
	if liquidity == nil || liquidity.Sign() <= 0 {
		return nil
	}
	_, _, err := v.pool.Mint(ctx, v.address, v.address, rng.Lower, rng.Upper, liquidity, v.payMint)
	return err
}

// payMint is the mint callback. Only the vault's pool may invoke it.
func (v *Vault) payMint(ctx context.Context, amount0, amount1 *big.Int) error {
	call, ok := ledger.CallFrom(ctx)
	if !ok || call.Sender != v.pool.Address() {
		return ErrCallbackCaller
	}
	if amount0.Sign() > 0 {
		if err := v.ledger.Transfer(ctx, v.token0, v.address, v.pool.Address(), amount0); err != nil {
			return err
		}
	}
	if amount1.Sign() > 0 {
		if err := v.ledger.Transfer(ctx, v.token1, v.address, v.pool.Address(), amount1); err != nil {
			return err
		}
	}
	return nil
}

// fundableLiquidity returns the liquidity rng can take from amount0 and
// amount1. One unit of each token is held back so that rounding in the
// pool's favour never asks for more than is available.
func (v *Vault) fundableLiquidity(sqrtPriceX96 *big.Int, rng report.Range, amount0, amount1 *big.Int) (*big.Int, error) {
	return positionmath.LiquidityForAmounts(sqrtPriceX96, rng.Lower, rng.Upper, spare(amount0), spare(amount1))
}

func spare(amount *big.Int) *big.Int {
	if amount.Sign() <= 0 {
		return new(big.Int)
	}
	return new(big.Int).Sub(amount, one)
}
