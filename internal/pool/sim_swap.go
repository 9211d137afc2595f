package pool

import (
	"context"
	"math/big"

	"github.com/daoleno/uniswapv3-sdk/constants"
	"github.com/daoleno/uniswapv3-sdk/utils"
	"github.com/ethereum/go-ethereum/common"

	"liquidityVault/internal/ledger"
	"liquidityVault/internal/model"
	"liquidityVault/internal/positionmath"
)

// Swap sells exactly amountIn of the input token (token0 when zeroForOne)
// until it is spent or the price reaches sqrtPriceLimitX96. A nil limit
// means no limit. The output is sent to recipient before pay is invoked.
func (p *SimPool) Swap(ctx context.Context, sender, recipient common.Address, zeroForOne bool, amountIn, sqrtPriceLimitX96 *big.Int, pay SwapCallback) (*big.Int, *big.Int, error) {
	var amount0, amount1 *big.Int
	err := p.ledger.Execute(ctx, sender, func(ctx context.Context, call ledger.Call) error {
		if amountIn == nil || amountIn.Sign() <= 0 {
			return ErrZeroAmount
		}
		limit, err := p.priceLimit(zeroForOne, sqrtPriceLimitX96)
		if err != nil {
			return err
		}

		spent, received, err := p.swapSteps(zeroForOne, amountIn, limit)
		if err != nil {
			return err
		}
		p.state.writeObservation(call.Timestamp, p.state.tick, p.cardinality)

		inToken, outToken := p.token0, p.token1
		if zeroForOne {
			amount0, amount1 = spent, new(big.Int).Neg(received)
		} else {
			inToken, outToken = p.token1, p.token0
			amount0, amount1 = new(big.Int).Neg(received), spent
		}

		if received.Sign() > 0 {
			if err := p.ledger.Transfer(ctx, outToken, p.address, recipient, received); err != nil {
				return err
			}
		}
		before := p.ledger.BalanceOf(ctx, inToken, p.address)
		if err := p.ledger.Execute(ctx, p.address, func(ctx context.Context, _ ledger.Call) error {
			return pay(ctx, amount0, amount1)
		}); err != nil {
			return err
		}
		if p.ledger.BalanceOf(ctx, inToken, p.address).Cmp(new(big.Int).Add(before, spent)) < 0 {
			return ErrInsufficientInput
		}

		return p.ledger.Emit(ctx, p.address, model.EventSwap, model.SwapEventData{
			Sender:       call.Sender.Hex(),
			Recipient:    recipient.Hex(),
			Amount0:      amount0.String(),
			Amount1:      amount1.String(),
			SqrtPriceX96: p.state.sqrtPriceX96.String(),
			Liquidity:    p.state.liquidity.String(),
			Tick:         p.state.tick,
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

// SwapFrom swaps on behalf of trader, paying the input out of trader's
// balance and sending the output back to trader.
func (p *SimPool) SwapFrom(ctx context.Context, trader common.Address, zeroForOne bool, amountIn *big.Int) (*big.Int, *big.Int, error) {
	return p.Swap(ctx, trader, trader, zeroForOne, amountIn, nil, func(ctx context.Context, amount0Delta, amount1Delta *big.Int) error {
		if amount0Delta.Sign() > 0 {
			return p.ledger.Transfer(ctx, p.token0, trader, p.address, amount0Delta)
		}
		if amount1Delta.Sign() > 0 {
			return p.ledger.Transfer(ctx, p.token1, trader, p.address, amount1Delta)
		}
		return nil
	})
}

func (p *SimPool) priceLimit(zeroForOne bool, limit *big.Int) (*big.Int, error) {
	current := p.state.sqrtPriceX96
	if limit == nil {
		if zeroForOne {
			return new(big.Int).Add(positionmath.MinSqrtRatio, big.NewInt(1)), nil
		}
		return new(big.Int).Sub(positionmath.MaxSqrtRatio, big.NewInt(1)), nil
	}
	if zeroForOne {
		if limit.Cmp(current) >= 0 || limit.Cmp(positionmath.MinSqrtRatio) <= 0 {
			return nil, ErrPriceLimit
		}
	} else if limit.Cmp(current) <= 0 || limit.Cmp(positionmath.MaxSqrtRatio) >= 0 {
		return nil, ErrPriceLimit
	}
	return limit, nil
}

// swapSteps walks the price across initialized ticks and returns the input
// spent (fees included) and the output produced.
func (p *SimPool) swapSteps(zeroForOne bool, amountIn, limit *big.Int) (*big.Int, *big.Int, error) {
	st := p.state
	remaining := new(big.Int).Set(amountIn)
	received := new(big.Int)
	sqrtPrice := new(big.Int).Set(st.sqrtPriceX96)
	tick := st.tick
	liquidity := new(big.Int).Set(st.liquidity)
	feeGrowth0 := new(big.Int).Set(st.feeGrowthGlobal0)
	feeGrowth1 := new(big.Int).Set(st.feeGrowthGlobal1)

	for remaining.Sign() > 0 && sqrtPrice.Cmp(limit) != 0 {
		next, initialized := st.nextInitializedTick(tick, zeroForOne)
		sqrtNext, err := positionmath.SqrtRatioAtTick(next)
		if err != nil {
			return nil, nil, err
		}
		target := sqrtNext
		if (zeroForOne && sqrtNext.Cmp(limit) < 0) || (!zeroForOne && sqrtNext.Cmp(limit) > 0) {
			target = limit
		}

		sqrtStart := sqrtPrice
		nextPrice, stepIn, stepOut, stepFee, err := utils.ComputeSwapStep(sqrtPrice, target, liquidity, remaining, constants.FeeAmount(p.fee))
		if err != nil {
			return nil, nil, err
		}
		sqrtPrice = nextPrice
		remaining = new(big.Int).Sub(remaining, new(big.Int).Add(stepIn, stepFee))
		received = new(big.Int).Add(received, stepOut)

		if liquidity.Sign() > 0 && stepFee.Sign() > 0 {
			growth := positionmath.MulDiv(stepFee, positionmath.Q128, liquidity)
			if zeroForOne {
				feeGrowth0 = new(big.Int).Add(feeGrowth0, growth)
			} else {
				feeGrowth1 = new(big.Int).Add(feeGrowth1, growth)
			}
		}

		if sqrtPrice.Cmp(sqrtNext) == 0 {
			if initialized {
				net := st.crossTick(next, feeGrowth0, feeGrowth1)
				if zeroForOne {
					net = new(big.Int).Neg(net)
				}
				liquidity = new(big.Int).Add(liquidity, net)
			}
			if zeroForOne {
				tick = next - 1
			} else {
				tick = next
			}
		} else if sqrtPrice.Cmp(sqrtStart) != 0 {
			tick, err = positionmath.TickAtSqrtRatio(sqrtPrice)
			if err != nil {
				return nil, nil, err
			}
		}
	}

	st.sqrtPriceX96 = sqrtPrice
	st.tick = tick
	st.liquidity = liquidity
	st.feeGrowthGlobal0 = feeGrowth0
	st.feeGrowthGlobal1 = feeGrowth1
	return new(big.Int).Sub(amountIn, remaining), received, nil
}

// nextInitializedTick returns the closest initialized tick at or below tick
// (lte) or strictly above it, falling back to the tick domain bounds.
func (s *simState) nextInitializedTick(tick int32, lte bool) (int32, bool) {
	found := false
	var best int32
	for t := range s.ticks {
		if lte {
			if t <= tick && (!found || t > best) {
				best, found = t, true
			}
		} else if t > tick && (!found || t < best) {
			best, found = t, true
		}
	}
	if found {
		return best, true
	}
	if lte {
		return positionmath.MinTick, false
	}
	return positionmath.MaxTick, false
}

func (s *simState) crossTick(tick int32, feeGrowth0, feeGrowth1 *big.Int) *big.Int {
	info := s.ticks[tick]
	info.feeGrowthOutside0 = new(big.Int).Sub(feeGrowth0, info.feeGrowthOutside0)
	info.feeGrowthOutside1 = new(big.Int).Sub(feeGrowth1, info.feeGrowthOutside1)
	s.ticks[tick] = info
	return info.liquidityNet
}

func amount0Delta(sqrtA, sqrtB, liquidity *big.Int, roundUp bool) *big.Int {
	return utils.GetAmount0Delta(sqrtA, sqrtB, liquidity, roundUp)
}

func amount1Delta(sqrtA, sqrtB, liquidity *big.Int, roundUp bool) *big.Int {
	return utils.GetAmount1Delta(sqrtA, sqrtB, liquidity, roundUp)
}
