package aggregate

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"liquidityVault/internal/positionmath"
)

const ratioScale = 18

var (
	yearSeconds = decimal.NewFromInt(int64(365 * 24 * time.Hour / time.Second))
	q96         = new(big.Int).Lsh(big.NewInt(1), 96)
)

func formatTokenAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -int32(decimals)).StringFixed(int32(decimals))
}

func formatOptional(value *big.Int, decimals uint8) *string {
	if value == nil {
		return nil
	}
	text := formatTokenAmount(value, decimals)
	return &text
}

func computeFeeRates(fee0, fee1, tvl0, tvl1 *big.Int) (*string, *string) {
	var feeRate0, feeRate1 *string
	if rate, ok := ratio(fee0, tvl0); ok {
		text := rate.StringFixed(ratioScale)
		feeRate0 = &text
	}
	if rate, ok := ratio(fee1, tvl1); ok {
		text := rate.StringFixed(ratioScale)
		feeRate1 = &text
	}
	return feeRate0, feeRate1
}

func ratio(num, denom *big.Int) (decimal.Decimal, bool) {
	if num == nil || num.Sign() == 0 || denom == nil || denom.Sign() == 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromBigInt(num, 0).DivRound(decimal.NewFromBigInt(denom, 0), ratioScale+8), true
}

// computeAPR annualises the fees earned over the window. With a known tick
// both sides are valued in token1 at that tick; otherwise the APR is only
// defined when exactly one side has a fee rate.
func computeAPR(acc *Accumulator, tvl0, tvl1 *big.Int, windowSeconds uint64) *string {
	if windowSeconds == 0 {
		return nil
	}
	window := decimal.NewFromInt(int64(windowSeconds))

	if acc.HasTotals() && tvl0 != nil && tvl1 != nil {
		fees, ok1 := valueInToken1(acc.Net0, acc.Net1, acc.Tick)
		tvl, ok2 := valueInToken1(tvl0, tvl1, acc.Tick)
		if ok1 && ok2 {
			rate, ok := ratio(fees, tvl)
			if !ok {
				return nil
			}
			apr := rate.Mul(yearSeconds).DivRound(window, ratioScale).StringFixed(ratioScale)
			return &apr
		}
	}

	rate0, ok0 := ratio(acc.Net0, tvl0)
	rate1, ok1 := ratio(acc.Net1, tvl1)
	var rate decimal.Decimal
	switch {
	case ok0 && !ok1:
		rate = rate0
	case ok1 && !ok0:
		rate = rate1
	default:
		return nil
	}
	apr := rate.Mul(yearSeconds).DivRound(window, ratioScale).StringFixed(ratioScale)
	return &apr
}

// valueInToken1 converts amount0 at the tick price and adds amount1.
func valueInToken1(amount0, amount1 *big.Int, tick int32) (*big.Int, bool) {
	sqrtPrice, err := positionmath.SqrtRatioAtTick(tick)
	if err != nil {
		return nil, false
	}
	converted := positionmath.MulDiv(positionmath.MulDiv(amount0, sqrtPrice, q96), sqrtPrice, q96)
	return converted.Add(converted, amount1), true
}
