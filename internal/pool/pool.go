// Package pool describes the concentrated-liquidity pool capability the vault
// manages liquidity on, and provides an in-memory implementation of it.
package pool

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"liquidityVault/internal/ledger"
	"liquidityVault/internal/model"
)

// Slot0 is the current price state of a pool.
type Slot0 struct {
	SqrtPriceX96 *big.Int
	Tick         int32
}

// PositionInfo mirrors a pool position as stored by the pool.
type PositionInfo struct {
	Liquidity                *big.Int
	FeeGrowthInside0LastX128 *big.Int
	FeeGrowthInside1LastX128 *big.Int
	TokensOwed0              *big.Int
	TokensOwed1              *big.Int
}

// MintCallback pays the pool for minted liquidity. It runs inside the mint
// call and must transfer at least amount0/amount1 to the pool.
type MintCallback func(ctx context.Context, amount0, amount1 *big.Int) error

// SwapCallback pays the pool for a swap. Positive deltas are owed to the pool.
type SwapCallback func(ctx context.Context, amount0Delta, amount1Delta *big.Int) error

// Reader is the read-only surface of a pool.
type Reader interface {
	Address() common.Address
	Meta(ctx context.Context) (model.PoolMeta, error)
	Slot0(ctx context.Context) (Slot0, error)
	// Observe returns tick cumulatives for each secondsAgo, in order.
	Observe(ctx context.Context, secondsAgos []uint32) ([]int64, error)
	Position(ctx context.Context, owner common.Address, lower, upper int32) (PositionInfo, error)
	FeeGrowthInside(ctx context.Context, lower, upper int32) (*big.Int, *big.Int, error)
}

// Pool is a Reader that also accepts liquidity changes.
type Pool interface {
	Reader
	Mint(ctx context.Context, sender, owner common.Address, lower, upper int32, liquidity *big.Int, pay MintCallback) (*big.Int, *big.Int, error)
	Burn(ctx context.Context, owner common.Address, lower, upper int32, liquidity *big.Int) (*big.Int, *big.Int, error)
	Collect(ctx context.Context, owner, recipient common.Address, lower, upper int32, max0, max1 *big.Int) (*big.Int, *big.Int, error)
}

// Pool failures, tagged the way the reference pool reverts.
var (
	ErrTickOrder         = ledger.Fail(ledger.KindExecution, "TLU")
	ErrTickLowerTooLow   = ledger.Fail(ledger.KindExecution, "TLM")
	ErrTickUpperTooHigh  = ledger.Fail(ledger.KindExecution, "TUM")
	ErrTickSpacing       = ledger.Fail(ledger.KindExecution, "TS")
	ErrNoPosition        = ledger.Fail(ledger.KindExecution, "NP")
	ErrLiquiditySub      = ledger.Fail(ledger.KindExecution, "LS")
	ErrZeroLiquidity     = ledger.Fail(ledger.KindExecution, "ML")
	ErrMint0             = ledger.Fail(ledger.KindExecution, "M0")
	ErrMint1             = ledger.Fail(ledger.KindExecution, "M1")
	ErrZeroAmount        = ledger.Fail(ledger.KindExecution, "AS")
	ErrPriceLimit        = ledger.Fail(ledger.KindExecution, "SPL")
	ErrInsufficientInput = ledger.Fail(ledger.KindExecution, "IIA")
	ErrObservationTooOld = ledger.Fail(ledger.KindExecution, "OLD")
)

// TWAP returns the time-weighted average tick over the last duration seconds.
func TWAP(ctx context.Context, r Reader, duration uint32) (int32, error) {
	if duration == 0 {
		return 0, fmt.Errorf("twap duration must be > 0")
	}
	cumulatives, err := r.Observe(ctx, []uint32{duration, 0})
	if err != nil {
		return 0, err
	}
	if len(cumulatives) != 2 {
		return 0, fmt.Errorf("observe returned %d values", len(cumulatives))
	}
	return int32((cumulatives[1] - cumulatives[0]) / int64(duration)), nil
}

// TickSpacingForFee returns the standard tick spacing of a fee tier.
func TickSpacingForFee(fee uint32) (int32, error) {
	switch fee {
	case 100:
		return 1, nil
	case 500:
		return 10, nil
	case 3000:
		return 60, nil
	case 10000:
		return 200, nil
	default:
		return 0, fmt.Errorf("no tick spacing for fee tier %d", fee)
	}
}
