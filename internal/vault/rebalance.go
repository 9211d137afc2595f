package vault

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityVault/internal/ledger"
	"liquidityVault/internal/model"
	"liquidityVault/internal/pool"
	"liquidityVault/internal/positionmath"
	"liquidityVault/internal/report"
)

// Rebalance collects fees, withdraws the base and limit ranges, resizes the
// full range and redeploys idle tokens around the current tick.
func (v *Vault) Rebalance(ctx context.Context, sender common.Address) error {
	var tick int32
	err := v.apply(ctx, sender, func(ctx context.Context, call ledger.Call, st *state) error {
		if st.rebalanceDelegate != (common.Address{}) && sender != st.manager && sender != st.rebalanceDelegate {
			return ErrRebalanceDelegate
		}
		slot, err := v.pool.Slot0(ctx)
		if err != nil {
			return fmt.Errorf("read slot0: %w", err)
		}
		tick = slot.Tick
		if err := v.checkCanRebalance(ctx, st, call.Timestamp, tick); err != nil {
			return err
		}

		// The protocol fee in force at this rebalance applies to the fees it collects.
		st.protocolFee = v.fees.ProtocolFee(ctx)

		full := v.FullRange()
		fullLiquidity, err := v.positionLiquidity(ctx, full)
		if err != nil {
			return err
		}
		baseLiquidity, err := v.positionLiquidity(ctx, st.base)
		if err != nil {
			return err
		}
		limitLiquidity, err := v.positionLiquidity(ctx, st.limit)
		if err != nil {
			return err
		}
		if _, _, _, _, err := v.burnAndCollect(ctx, st, full, new(big.Int)); err != nil {
			return err
		}
		if _, _, _, _, err := v.burnAndCollect(ctx, st, st.base, baseLiquidity); err != nil {
			return err
		}
		if _, _, _, _, err := v.burnAndCollect(ctx, st, st.limit, limitLiquidity); err != nil {
			return err
		}

		// A manager fee change takes effect only after the fees above were split.
		st.managerFee = st.pendingManagerFee

		floor := positionmath.FloorTick(tick, v.tickSpacing)
		ceil := floor + v.tickSpacing
		base := report.Range{Lower: floor - st.baseThreshold, Upper: ceil + st.baseThreshold}
		bid := report.Range{Lower: floor - st.limitThreshold, Upper: floor}
		ask := report.Range{Lower: ceil, Upper: ceil + st.limitThreshold}

		// Base and limit are burned at this point; the full range still counts.
		total0, total1, err := v.totalAmounts(ctx, st)
		if err != nil {
			return err
		}
		if err := v.ledger.Emit(ctx, v.address, model.EventSnapshot, model.SnapshotEventData{
			Tick:         tick,
			TotalAmount0: total0.String(),
			TotalAmount1: total1.String(),
			TotalSupply:  st.totalSupply.String(),
		}); err != nil {
			return err
		}

		idle0, idle1 := v.idleBalances(ctx, st)
		if err := v.resizeFullRange(ctx, st, slot.SqrtPriceX96, fullLiquidity, idle0, idle1); err != nil {
			return err
		}

		idle0, idle1 = v.idleBalances(ctx, st)
		liquidity, err := v.fundableLiquidity(slot.SqrtPriceX96, base, idle0, idle1)
		if err != nil {
			return err
		}
		if err := v.mintLiquidity(ctx, base, liquidity); err != nil {
			return fmt.Errorf("place base order: %w", err)
		}

		idle0, idle1 = v.idleBalances(ctx, st)
		bidLiquidity, err := v.fundableLiquidity(slot.SqrtPriceX96, bid, idle0, idle1)
		if err != nil {
			return err
		}
		askLiquidity, err := v.fundableLiquidity(slot.SqrtPriceX96, ask, idle0, idle1)
		if err != nil {
			return err
		}
		limit, limitAmount := bid, bidLiquidity
		if askLiquidity.Cmp(bidLiquidity) > 0 {
			limit, limitAmount = ask, askLiquidity
		}
		if err := v.mintLiquidity(ctx, limit, limitAmount); err != nil {
			return fmt.Errorf("place limit order: %w", err)
		}

		st.base = base
		st.limit = limit
		st.lastTick = tick
		st.lastTimestamp = call.Timestamp
		return nil
	})
	if err != nil {
		return err
	}
	v.logger.Info("rebalanced", zap.Int32("tick", tick))
	return nil
}

// resizeFullRange moves the full-range position to fullRangeWeight of the
// liquidity the vault's idle and full-range tokens could fund together.
func (v *Vault) resizeFullRange(ctx context.Context, st *state, sqrtPriceX96, current, idle0, idle1 *big.Int) error {
	full := v.FullRange()
	principal0, principal1, err := positionmath.AmountsForLiquidity(sqrtPriceX96, full.Lower, full.Upper, current)
	if err != nil {
		return err
	}
	all, err := positionmath.LiquidityForAmounts(sqrtPriceX96, full.Lower, full.Upper,
		new(big.Int).Add(idle0, principal0), new(big.Int).Add(idle1, principal1))
	if err != nil {
		return err
	}
	target := positionmath.MulDiv(all, big.NewInt(int64(st.fullRangeWeight)), big.NewInt(positionmath.FeeDenominator))

	switch target.Cmp(current) {
	case -1:
		_, _, _, _, err := v.burnAndCollect(ctx, st, full, new(big.Int).Sub(current, target))
		return err
	case 1:
		fundable, err := v.fundableLiquidity(sqrtPriceX96, full, idle0, idle1)
		if err != nil {
			return err
		}
		add := minBig(new(big.Int).Sub(target, current), fundable)
		if err := v.mintLiquidity(ctx, full, add); err != nil {
			return fmt.Errorf("place full range order: %w", err)
		}
	}
	return nil
}

// CheckCanRebalance reports whether Rebalance would pass its gates now.
func (v *Vault) CheckCanRebalance(ctx context.Context) error {
	return v.view(ctx, func(ctx context.Context, st *state) error {
		slot, err := v.pool.Slot0(ctx)
		if err != nil {
			return fmt.Errorf("read slot0: %w", err)
		}
		return v.checkCanRebalance(ctx, st, v.ledger.Timestamp(ctx), slot.Tick)
	})
}

// GetTwap returns the pool's time-weighted average tick over twapDuration.
func (v *Vault) GetTwap(ctx context.Context) (int32, error) {
	var twap int32
	err := v.view(ctx, func(ctx context.Context, st *state) error {
		var err error
		twap, err = pool.TWAP(ctx, v.pool, st.twapDuration)
		return err
	})
	return twap, err
}

func (v *Vault) checkCanRebalance(ctx context.Context, st *state, now uint64, tick int32) error {
	if now < st.lastTimestamp+uint64(st.period) {
		return ErrPeriod
	}
	if st.lastTimestamp != 0 && absDiff(tick, st.lastTick) < int64(st.minTickMove) {
		return ErrTickMove
	}
	twap, err := pool.TWAP(ctx, v.pool, st.twapDuration)
	if err != nil {
		return err
	}
	if absDiff(tick, twap) > int64(st.maxTwapDeviation) {
		return ErrTwapDeviation
	}
	maxThreshold := max(st.baseThreshold, st.limitThreshold)
	if int64(tick) < int64(positionmath.MinTick)+int64(maxThreshold)+int64(v.tickSpacing) ||
		int64(tick) > int64(positionmath.MaxTick)-int64(maxThreshold)-int64(v.tickSpacing) {
		return ErrPriceBounds
	}
	return nil
}

func absDiff(a, b int32) int64 {
	d := int64(a) - int64(b)
	if d < 0 {
		return -d
	}
	return d
}
