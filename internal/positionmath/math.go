// Package positionmath holds the tick and liquidity arithmetic shared by the
// pool, the vault engine and the position report.
package positionmath

import (
	"fmt"
	"math/big"

	"github.com/daoleno/uniswapv3-sdk/utils"
)

// Tick domain of a concentrated-liquidity pool.
const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

// FeeDenominator is the parts-per-million scale used by every fee rate.
const FeeDenominator = 1_000_000

var (
	Q96  = new(big.Int).Lsh(big.NewInt(1), 96)
	Q128 = new(big.Int).Lsh(big.NewInt(1), 128)

	MinSqrtRatio    = big.NewInt(4295128739)
	MaxSqrtRatio, _ = new(big.Int).SetString("1461446703485210103287273052203988822378723970342", 10)

	MaxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
)

// FloorTick rounds tick down to a multiple of spacing.
func FloorTick(tick, spacing int32) int32 {
	compressed := tick / spacing
	if tick < 0 && tick%spacing != 0 {
		compressed--
	}
	return compressed * spacing
}

// MinUsableTick is the lowest tick aligned to spacing.
func MinUsableTick(spacing int32) int32 {
	return (MinTick / spacing) * spacing
}

// MaxUsableTick is the highest tick aligned to spacing.
func MaxUsableTick(spacing int32) int32 {
	return (MaxTick / spacing) * spacing
}

// SqrtRatioAtTick returns sqrt(1.0001^tick) as a Q64.96.
func SqrtRatioAtTick(tick int32) (*big.Int, error) {
	ratio, err := utils.GetSqrtRatioAtTick(int(tick))
	if err != nil {
		return nil, fmt.Errorf("sqrt ratio at tick %d: %w", tick, err)
	}
	return ratio, nil
}

// TickAtSqrtRatio returns the greatest tick whose ratio is <= sqrtPriceX96.
func TickAtSqrtRatio(sqrtPriceX96 *big.Int) (int32, error) {
	tick, err := utils.GetTickAtSqrtRatio(sqrtPriceX96)
	if err != nil {
		return 0, fmt.Errorf("tick at sqrt ratio: %w", err)
	}
	return int32(tick), nil
}

// AmountsForLiquidity returns the token amounts represented by liquidity in
// [lower, upper) at sqrtPriceX96, rounded down.
func AmountsForLiquidity(sqrtPriceX96 *big.Int, lower, upper int32, liquidity *big.Int) (*big.Int, *big.Int, error) {
	amount0, amount1 := new(big.Int), new(big.Int)
	if liquidity == nil || liquidity.Sign() == 0 {
		return amount0, amount1, nil
	}
	sqrtA, sqrtB, err := rangeRatios(lower, upper)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case sqrtPriceX96.Cmp(sqrtA) <= 0:
		amount0 = utils.GetAmount0Delta(sqrtA, sqrtB, liquidity, false)
	case sqrtPriceX96.Cmp(sqrtB) < 0:
		amount0 = utils.GetAmount0Delta(sqrtPriceX96, sqrtB, liquidity, false)
		amount1 = utils.GetAmount1Delta(sqrtA, sqrtPriceX96, liquidity, false)
	default:
		amount1 = utils.GetAmount1Delta(sqrtA, sqrtB, liquidity, false)
	}
	return amount0, amount1, nil
}

// LiquidityForAmounts returns the largest liquidity that amount0 and amount1
// can fund in [lower, upper) at sqrtPriceX96, capped to uint128.
func LiquidityForAmounts(sqrtPriceX96 *big.Int, lower, upper int32, amount0, amount1 *big.Int) (*big.Int, error) {
	sqrtA, sqrtB, err := rangeRatios(lower, upper)
	if err != nil {
		return nil, err
	}
	liquidity := utils.MaxLiquidityForAmounts(sqrtPriceX96, sqrtA, sqrtB, amount0, amount1, false)
	if liquidity.Sign() < 0 {
		return new(big.Int), nil
	}
	if liquidity.Cmp(MaxUint128) > 0 {
		return new(big.Int).Set(MaxUint128), nil
	}
	return liquidity, nil
}

// MulDiv returns floor(a*b/denominator).
func MulDiv(a, b, denominator *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, denominator)
}

// MulDivRoundingUp returns ceil(a*b/denominator) for non-negative inputs.
func MulDivRoundingUp(a, b, denominator *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	out, rem := new(big.Int).QuoRem(product, denominator, new(big.Int))
	if rem.Sign() > 0 {
		out.Add(out, big.NewInt(1))
	}
	return out
}

// ApplyFee returns amount*rate/1e6.
func ApplyFee(amount *big.Int, rate uint32) *big.Int {
	return MulDiv(amount, big.NewInt(int64(rate)), big.NewInt(FeeDenominator))
}

// FeesEarned converts a fee growth delta into token amounts for liquidity.
func FeesEarned(feeGrowthInside, feeGrowthInsideLast, liquidity *big.Int) *big.Int {
	delta := new(big.Int).Sub(feeGrowthInside, feeGrowthInsideLast)
	if delta.Sign() <= 0 || liquidity.Sign() == 0 {
		return new(big.Int)
	}
	return MulDiv(delta, liquidity, Q128)
}

func rangeRatios(lower, upper int32) (*big.Int, *big.Int, error) {
	if lower >= upper {
		return nil, nil, fmt.Errorf("invalid range [%d, %d)", lower, upper)
	}
	sqrtA, err := SqrtRatioAtTick(lower)
	if err != nil {
		return nil, nil, err
	}
	sqrtB, err := SqrtRatioAtTick(upper)
	if err != nil {
		return nil, nil, err
	}
	return sqrtA, sqrtB, nil
}
