// Package report breaks a vault's holdings down per liquidity range.
package report

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"liquidityVault/internal/model"
	"liquidityVault/internal/pool"
	"liquidityVault/internal/positionmath"
)

// Range names as they appear in a breakdown.
const (
	RangeFull  = "full"
	RangeBase  = "base"
	RangeLimit = "limit"
)

// Range is a half-open tick interval. The zero Range is unset.
type Range struct {
	Lower int32
	Upper int32
}

// Set reports whether r describes an actual interval.
func (r Range) Set() bool {
	return r.Lower < r.Upper
}

// Input is what a breakdown needs to know about a vault.
type Input struct {
	Vault       common.Address
	Full        Range
	Base        Range
	Limit       Range
	Idle0       *big.Int
	Idle1       *big.Int
	ProtocolFee uint32
	ManagerFee  uint32
}

// RangeBreakdown is the principal and uncollected fees of one range.
type RangeBreakdown struct {
	Name      string
	Range     Range
	Liquidity *big.Int
	Amount0   *big.Int
	Amount1   *big.Int
	Fees0     *big.Int
	Fees1     *big.Int
}

// Breakdown is a per-range view of a vault at the pool's current price.
type Breakdown struct {
	Tick         int32
	SqrtPriceX96 *big.Int
	Ranges       []RangeBreakdown
	Idle0        *big.Int
	Idle1        *big.Int
	// Total includes every fee at its gross amount.
	Total0 *big.Int
	Total1 *big.Int
	// NetTotal deducts the protocol and manager share of the fees.
	NetTotal0 *big.Int
	NetTotal1 *big.Int
}

// Build reads the vault's positions from r. Fees include both tokens owed and
// fee growth not yet credited to the position.
func Build(ctx context.Context, r pool.Reader, in Input) (Breakdown, error) {
	slot, err := r.Slot0(ctx)
	if err != nil {
		return Breakdown{}, fmt.Errorf("read slot0: %w", err)
	}
	out := Breakdown{
		Tick:         slot.Tick,
		SqrtPriceX96: slot.SqrtPriceX96,
		Idle0:        orZero(in.Idle0),
		Idle1:        orZero(in.Idle1),
	}
	principal0, principal1 := new(big.Int), new(big.Int)
	fees0, fees1 := new(big.Int), new(big.Int)

	ranges := []struct {
		name string
		rng  Range
	}{{RangeFull, in.Full}, {RangeBase, in.Base}, {RangeLimit, in.Limit}}
	for _, item := range ranges {
		row, err := buildRange(ctx, r, in.Vault, slot.SqrtPriceX96, item.name, item.rng)
		if err != nil {
			return Breakdown{}, err
		}
		principal0.Add(principal0, row.Amount0)
		principal1.Add(principal1, row.Amount1)
		fees0.Add(fees0, row.Fees0)
		fees1.Add(fees1, row.Fees1)
		out.Ranges = append(out.Ranges, row)
	}

	out.Total0 = new(big.Int).Add(out.Idle0, principal0)
	out.Total0.Add(out.Total0, fees0)
	out.Total1 = new(big.Int).Add(out.Idle1, principal1)
	out.Total1.Add(out.Total1, fees1)

	keep := positionmath.FeeDenominator - in.ProtocolFee - in.ManagerFee
	out.NetTotal0 = new(big.Int).Add(out.Idle0, principal0)
	out.NetTotal0.Add(out.NetTotal0, positionmath.ApplyFee(fees0, keep))
	out.NetTotal1 = new(big.Int).Add(out.Idle1, principal1)
	out.NetTotal1.Add(out.NetTotal1, positionmath.ApplyFee(fees1, keep))
	return out, nil
}

func buildRange(ctx context.Context, r pool.Reader, owner common.Address, sqrtPriceX96 *big.Int, name string, rng Range) (RangeBreakdown, error) {
	row := RangeBreakdown{
		Name:      name,
		Range:     rng,
		Liquidity: new(big.Int),
		Amount0:   new(big.Int),
		Amount1:   new(big.Int),
		Fees0:     new(big.Int),
		Fees1:     new(big.Int),
	}
	if !rng.Set() {
		return row, nil
	}
	pos, err := r.Position(ctx, owner, rng.Lower, rng.Upper)
	if err != nil {
		return row, fmt.Errorf("read %s position: %w", name, err)
	}
	row.Liquidity = orZero(pos.Liquidity)
	row.Fees0 = new(big.Int).Set(orZero(pos.TokensOwed0))
	row.Fees1 = new(big.Int).Set(orZero(pos.TokensOwed1))
	if row.Liquidity.Sign() == 0 {
		return row, nil
	}

	row.Amount0, row.Amount1, err = positionmath.AmountsForLiquidity(sqrtPriceX96, rng.Lower, rng.Upper, row.Liquidity)
	if err != nil {
		return row, fmt.Errorf("%s amounts: %w", name, err)
	}
	inside0, inside1, err := r.FeeGrowthInside(ctx, rng.Lower, rng.Upper)
	if err != nil {
		return row, fmt.Errorf("read %s fee growth: %w", name, err)
	}
	row.Fees0.Add(row.Fees0, positionmath.FeesEarned(inside0, orZero(pos.FeeGrowthInside0LastX128), row.Liquidity))
	row.Fees1.Add(row.Fees1, positionmath.FeesEarned(inside1, orZero(pos.FeeGrowthInside1LastX128), row.Liquidity))
	return row, nil
}

// Row is a display-ready range line.
type Row struct {
	Name      string `json:"name"`
	TickLower int32  `json:"tick_lower"`
	TickUpper int32  `json:"tick_upper"`
	Liquidity string `json:"liquidity"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
	Fees0     string `json:"fees0"`
	Fees1     string `json:"fees1"`
}

// Summary is a display-ready breakdown in whole-token units.
type Summary struct {
	Tick      int32  `json:"tick"`
	Token0    string `json:"token0"`
	Token1    string `json:"token1"`
	Ranges    []Row  `json:"ranges"`
	Idle0     string `json:"idle0"`
	Idle1     string `json:"idle1"`
	Total0    string `json:"total0"`
	Total1    string `json:"total1"`
	NetTotal0 string `json:"net_total0"`
	NetTotal1 string `json:"net_total1"`
}

// Format renders b using the tokens' decimals.
func (b Breakdown) Format(token0, token1 model.TokenMeta) Summary {
	out := Summary{
		Tick:      b.Tick,
		Token0:    token0.Symbol,
		Token1:    token1.Symbol,
		Idle0:     token0.FormatAmount(b.Idle0),
		Idle1:     token1.FormatAmount(b.Idle1),
		Total0:    token0.FormatAmount(b.Total0),
		Total1:    token1.FormatAmount(b.Total1),
		NetTotal0: token0.FormatAmount(b.NetTotal0),
		NetTotal1: token1.FormatAmount(b.NetTotal1),
	}
	for _, row := range b.Ranges {
		out.Ranges = append(out.Ranges, Row{
			Name:      row.Name,
			TickLower: row.Range.Lower,
			TickUpper: row.Range.Upper,
			Liquidity: row.Liquidity.String(),
			Amount0:   token0.FormatAmount(row.Amount0),
			Amount1:   token1.FormatAmount(row.Amount1),
			Fees0:     token0.FormatAmount(row.Fees0),
			Fees1:     token1.FormatAmount(row.Fees1),
		})
	}
	return out
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
