package pool

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityVault/internal/ledger"
	"liquidityVault/internal/model"
	"liquidityVault/internal/positionmath"
)

// Mint adds liquidity for owner in [lower, upper). pay is invoked with the
// owed amounts and must transfer them to the pool before Mint returns.
func (p *SimPool) Mint(ctx context.Context, sender, owner common.Address, lower, upper int32, liquidity *big.Int, pay MintCallback) (*big.Int, *big.Int, error) {
	var amount0, amount1 *big.Int
	err := p.ledger.Execute(ctx, sender, func(ctx context.Context, call ledger.Call) error {
		if liquidity == nil || liquidity.Sign() <= 0 {
			return ErrZeroLiquidity
		}
		var err error
		amount0, amount1, err = p.modifyPosition(positionKey{owner: owner, lower: lower, upper: upper}, liquidity)
		if err != nil {
			return err
		}

		before0 := p.ledger.BalanceOf(ctx, p.token0, p.address)
		before1 := p.ledger.BalanceOf(ctx, p.token1, p.address)
		if err := p.ledger.Execute(ctx, p.address, func(ctx context.Context, _ ledger.Call) error {
			return pay(ctx, amount0, amount1)
		}); err != nil {
			return err
		}
		if amount0.Sign() > 0 && p.ledger.BalanceOf(ctx, p.token0, p.address).Cmp(new(big.Int).Add(before0, amount0)) < 0 {
			return ErrMint0
		}
		if amount1.Sign() > 0 && p.ledger.BalanceOf(ctx, p.token1, p.address).Cmp(new(big.Int).Add(before1, amount1)) < 0 {
			return ErrMint1
		}

		return p.ledger.Emit(ctx, p.address, model.EventMint, model.MintEventData{
			Sender:    call.Sender.Hex(),
			Owner:     owner.Hex(),
			TickLower: lower,
			TickUpper: upper,
			Amount:    liquidity.String(),
			Amount0:   amount0.String(),
			Amount1:   amount1.String(),
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

// Burn removes liquidity from owner's position and credits the released
// amounts to the position's tokens owed. A zero burn only accrues fees.
func (p *SimPool) Burn(ctx context.Context, owner common.Address, lower, upper int32, liquidity *big.Int) (*big.Int, *big.Int, error) {
	var amount0, amount1 *big.Int
	err := p.ledger.Execute(ctx, owner, func(ctx context.Context, _ ledger.Call) error {
		if liquidity == nil {
			liquidity = new(big.Int)
		}
		key := positionKey{owner: owner, lower: lower, upper: upper}
		var err error
		amount0, amount1, err = p.modifyPosition(key, new(big.Int).Neg(liquidity))
		if err != nil {
			return err
		}
		if amount0.Sign() > 0 || amount1.Sign() > 0 {
			pos := p.state.positions[key]
			pos.tokensOwed0 = new(big.Int).Add(pos.tokensOwed0, amount0)
			pos.tokensOwed1 = new(big.Int).Add(pos.tokensOwed1, amount1)
			p.state.positions[key] = pos
		}
		return p.ledger.Emit(ctx, p.address, model.EventBurn, model.BurnEventData{
			Owner:     owner.Hex(),
			TickLower: lower,
			TickUpper: upper,
			Amount:    liquidity.String(),
			Amount0:   amount0.String(),
			Amount1:   amount1.String(),
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

// Collect transfers up to max0/max1 of the tokens owed to owner's position.
func (p *SimPool) Collect(ctx context.Context, owner, recipient common.Address, lower, upper int32, max0, max1 *big.Int) (*big.Int, *big.Int, error) {
	var amount0, amount1 *big.Int
	err := p.ledger.Execute(ctx, owner, func(ctx context.Context, _ ledger.Call) error {
		key := positionKey{owner: owner, lower: lower, upper: upper}
		pos := p.state.position(key)
		amount0 = minBig(max0, pos.tokensOwed0)
		amount1 = minBig(max1, pos.tokensOwed1)
		if amount0.Sign() == 0 && amount1.Sign() == 0 {
			return nil
		}

		pos.tokensOwed0 = new(big.Int).Sub(pos.tokensOwed0, amount0)
		pos.tokensOwed1 = new(big.Int).Sub(pos.tokensOwed1, amount1)
		p.state.positions[key] = pos

		if err := p.ledger.Transfer(ctx, p.token0, p.address, recipient, amount0); err != nil {
			return err
		}
		if err := p.ledger.Transfer(ctx, p.token1, p.address, recipient, amount1); err != nil {
			return err
		}
		return p.ledger.Emit(ctx, p.address, model.EventCollect, model.CollectEventData{
			Owner:     owner.Hex(),
			Recipient: recipient.Hex(),
			TickLower: lower,
			TickUpper: upper,
			Amount0:   amount0.String(),
			Amount1:   amount1.String(),
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

// modifyPosition applies a signed liquidity delta and returns the token
// amounts it moves: rounded up when adding, down when removing.
func (p *SimPool) modifyPosition(key positionKey, delta *big.Int) (*big.Int, *big.Int, error) {
	if err := p.checkTicks(key.lower, key.upper); err != nil {
		return nil, nil, err
	}
	st := p.state
	pos := st.position(key)

	if delta.Sign() == 0 && pos.liquidity.Sign() == 0 {
		return nil, nil, ErrNoPosition
	}
	nextLiquidity := new(big.Int).Add(pos.liquidity, delta)
	if nextLiquidity.Sign() < 0 {
		return nil, nil, ErrLiquiditySub
	}

	if delta.Sign() != 0 {
		st.updateTick(key.lower, delta, false)
		st.updateTick(key.upper, delta, true)
	}

	inside0, inside1 := st.feeGrowthInside(key.lower, key.upper)
	owed0 := positionmath.FeesEarned(inside0, pos.feeGrowthInside0, pos.liquidity)
	owed1 := positionmath.FeesEarned(inside1, pos.feeGrowthInside1, pos.liquidity)
	pos = positionInfo{
		liquidity:        nextLiquidity,
		feeGrowthInside0: inside0,
		feeGrowthInside1: inside1,
		tokensOwed0:      new(big.Int).Add(pos.tokensOwed0, owed0),
		tokensOwed1:      new(big.Int).Add(pos.tokensOwed1, owed1),
	}
	st.positions[key] = pos

	if delta.Sign() < 0 {
		st.clearTickIfEmpty(key.lower)
		st.clearTickIfEmpty(key.upper)
	}

	amount0, amount1 := new(big.Int), new(big.Int)
	if delta.Sign() == 0 {
		return amount0, amount1, nil
	}

	magnitude := new(big.Int).Abs(delta)
	roundUp := delta.Sign() > 0
	sqrtLower, err := positionmath.SqrtRatioAtTick(key.lower)
	if err != nil {
		return nil, nil, err
	}
	sqrtUpper, err := positionmath.SqrtRatioAtTick(key.upper)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case st.tick < key.lower:
		amount0 = amount0Delta(sqrtLower, sqrtUpper, magnitude, roundUp)
	case st.tick < key.upper:
		amount0 = amount0Delta(st.sqrtPriceX96, sqrtUpper, magnitude, roundUp)
		amount1 = amount1Delta(sqrtLower, st.sqrtPriceX96, magnitude, roundUp)
		st.liquidity = new(big.Int).Add(st.liquidity, delta)
	default:
		amount1 = amount1Delta(sqrtLower, sqrtUpper, magnitude, roundUp)
	}

	p.logger.Debug("modify position",
		zap.String("owner", key.owner.Hex()),
		zap.Int32("lower", key.lower),
		zap.Int32("upper", key.upper),
		zap.String("delta", delta.String()),
	)
	return amount0, amount1, nil
}

func (p *SimPool) checkTicks(lower, upper int32) error {
	if lower >= upper {
		return ErrTickOrder
	}
	if lower < positionmath.MinTick {
		return ErrTickLowerTooLow
	}
	if upper > positionmath.MaxTick {
		return ErrTickUpperTooHigh
	}
	if lower%p.tickSpacing != 0 || upper%p.tickSpacing != 0 {
		return ErrTickSpacing
	}
	return nil
}

func (s *simState) updateTick(tick int32, delta *big.Int, upper bool) {
	info := s.tickAt(tick)
	if info.liquidityGross.Sign() == 0 && tick <= s.tick {
		info.feeGrowthOutside0 = new(big.Int).Set(s.feeGrowthGlobal0)
		info.feeGrowthOutside1 = new(big.Int).Set(s.feeGrowthGlobal1)
	}
	info.liquidityGross = new(big.Int).Add(info.liquidityGross, delta)
	if upper {
		info.liquidityNet = new(big.Int).Sub(info.liquidityNet, delta)
	} else {
		info.liquidityNet = new(big.Int).Add(info.liquidityNet, delta)
	}
	s.ticks[tick] = info
}

func (s *simState) clearTickIfEmpty(tick int32) {
	if info, ok := s.ticks[tick]; ok && info.liquidityGross.Sign() == 0 {
		delete(s.ticks, tick)
	}
}

func minBig(limit, value *big.Int) *big.Int {
	if limit != nil && limit.Cmp(value) < 0 {
		return new(big.Int).Set(limit)
	}
	return new(big.Int).Set(value)
}
