package vault

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityVault/internal/ledger"
	"liquidityVault/internal/report"
)

// managerCall runs fn as a call that only the manager may make.
func (v *Vault) managerCall(ctx context.Context, sender common.Address, fn func(ctx context.Context, st *state) error) error {
	return v.apply(ctx, sender, func(ctx context.Context, _ ledger.Call, st *state) error {
		if sender != st.manager {
			return ErrManager
		}
		return fn(ctx, st)
	})
}

// SetBaseThreshold changes the half-width of the base range.
func (v *Vault) SetBaseThreshold(ctx context.Context, sender common.Address, threshold int32) error {
	return v.managerCall(ctx, sender, func(_ context.Context, st *state) error {
		if err := CheckThreshold(threshold, v.tickSpacing); err != nil {
			return err
		}
		st.baseThreshold = threshold
		return nil
	})
}

// SetLimitThreshold changes the width of the limit range.
func (v *Vault) SetLimitThreshold(ctx context.Context, sender common.Address, threshold int32) error {
	return v.managerCall(ctx, sender, func(_ context.Context, st *state) error {
		if err := CheckThreshold(threshold, v.tickSpacing); err != nil {
			return err
		}
		st.limitThreshold = threshold
		return nil
	})
}

func (v *Vault) SetFullRangeWeight(ctx context.Context, sender common.Address, weight uint32) error {
	return v.managerCall(ctx, sender, func(_ context.Context, st *state) error {
		if err := checkFullRangeWeight(weight); err != nil {
			return err
		}
		st.fullRangeWeight = weight
		return nil
	})
}

func (v *Vault) SetPeriod(ctx context.Context, sender common.Address, period uint32) error {
	return v.managerCall(ctx, sender, func(_ context.Context, st *state) error {
		st.period = period
		return nil
	})
}

func (v *Vault) SetMinTickMove(ctx context.Context, sender common.Address, move int32) error {
	return v.managerCall(ctx, sender, func(_ context.Context, st *state) error {
		if err := checkMinTickMove(move); err != nil {
			return err
		}
		st.minTickMove = move
		return nil
	})
}

func (v *Vault) SetMaxTwapDeviation(ctx context.Context, sender common.Address, deviation int32) error {
	return v.managerCall(ctx, sender, func(_ context.Context, st *state) error {
		if err := checkMaxTwapDeviation(deviation); err != nil {
			return err
		}
		st.maxTwapDeviation = deviation
		return nil
	})
}

func (v *Vault) SetTwapDuration(ctx context.Context, sender common.Address, duration uint32) error {
	return v.managerCall(ctx, sender, func(_ context.Context, st *state) error {
		if err := checkTwapDuration(duration); err != nil {
			return err
		}
		st.twapDuration = duration
		return nil
	})
}

// SetMaxTotalSupply changes the share cap. Existing supply above the new cap
// only blocks further deposits.
func (v *Vault) SetMaxTotalSupply(ctx context.Context, sender common.Address, supply *big.Int) error {
	return v.managerCall(ctx, sender, func(_ context.Context, st *state) error {
		st.maxTotalSupply = new(big.Int).Set(orZero(supply))
		return nil
	})
}

// SetRebalanceDelegate sets who besides the manager may rebalance. The zero
// address lets anyone rebalance.
func (v *Vault) SetRebalanceDelegate(ctx context.Context, sender, delegate common.Address) error {
	return v.managerCall(ctx, sender, func(_ context.Context, st *state) error {
		st.rebalanceDelegate = delegate
		return nil
	})
}

// SetManagerFee stages a new manager fee. It applies from the next rebalance.
func (v *Vault) SetManagerFee(ctx context.Context, sender common.Address, fee uint32) error {
	return v.managerCall(ctx, sender, func(_ context.Context, st *state) error {
		if err := checkManagerFee(fee); err != nil {
			return err
		}
		st.pendingManagerFee = fee
		return nil
	})
}

// SetManager nominates a new manager, who has to accept.
func (v *Vault) SetManager(ctx context.Context, sender, manager common.Address) error {
	return v.managerCall(ctx, sender, func(_ context.Context, st *state) error {
		st.pendingManager = manager
		return nil
	})
}

// AcceptManager completes a manager handover started with SetManager.
func (v *Vault) AcceptManager(ctx context.Context, sender common.Address) error {
	err := v.apply(ctx, sender, func(_ context.Context, _ ledger.Call, st *state) error {
		if st.pendingManager == (common.Address{}) || sender != st.pendingManager {
			return ErrPendingManager
		}
		st.manager = sender
		st.pendingManager = common.Address{}
		return nil
	})
	if err == nil {
		v.logger.Info("manager changed", zap.String("manager", sender.Hex()))
	}
	return err
}

// CollectProtocol pays the accrued protocol fees to to. Only the factory's
// governance may call it.
func (v *Vault) CollectProtocol(ctx context.Context, sender, to common.Address) (*big.Int, *big.Int, error) {
	var amount0, amount1 *big.Int
	err := v.apply(ctx, sender, func(ctx context.Context, _ ledger.Call, st *state) error {
		if sender != v.fees.Governance(ctx) {
			return ErrGovernance
		}
		if to == (common.Address{}) {
			return ErrRecipient
		}
		amount0, amount1 = st.accruedProtocolFees0, st.accruedProtocolFees1
		st.accruedProtocolFees0, st.accruedProtocolFees1 = new(big.Int), new(big.Int)
		return v.payOut(ctx, to, amount0, amount1)
	})
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

// CollectManager pays the accrued manager fees to to.
func (v *Vault) CollectManager(ctx context.Context, sender, to common.Address) (*big.Int, *big.Int, error) {
	var amount0, amount1 *big.Int
	err := v.managerCall(ctx, sender, func(ctx context.Context, st *state) error {
		if to == (common.Address{}) {
			return ErrRecipient
		}
		amount0, amount1 = st.accruedManagerFees0, st.accruedManagerFees1
		st.accruedManagerFees0, st.accruedManagerFees1 = new(big.Int), new(big.Int)
		return v.payOut(ctx, to, amount0, amount1)
	})
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

// EmergencyBurn removes liquidity from any range the vault holds, leaving the
// released tokens idle in the vault.
func (v *Vault) EmergencyBurn(ctx context.Context, sender common.Address, lower, upper int32, liquidity *big.Int) error {
	err := v.managerCall(ctx, sender, func(ctx context.Context, st *state) error {
		_, _, _, _, err := v.burnAndCollect(ctx, st, report.Range{Lower: lower, Upper: upper}, orZero(liquidity))
		return err
	})
	if err == nil {
		v.logger.Warn("emergency burn",
			zap.Int32("tick_lower", lower),
			zap.Int32("tick_upper", upper),
			zap.String("liquidity", orZero(liquidity).String()),
		)
	}
	return err
}

// Sweep sends tokens other than the vault's pair to to.
func (v *Vault) Sweep(ctx context.Context, sender, token common.Address, amount *big.Int, to common.Address) error {
	return v.managerCall(ctx, sender, func(ctx context.Context, _ *state) error {
		if token == v.token0 || token == v.token1 {
			return ErrSweepToken
		}
		if to == (common.Address{}) {
			return ErrRecipient
		}
		return v.ledger.Transfer(ctx, token, v.address, to, orZero(amount))
	})
}

func (v *Vault) payOut(ctx context.Context, to common.Address, amount0, amount1 *big.Int) error {
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
	return nil
}
