// Package vault implements a share-issuing liquidity vault that keeps its
// assets in three concentrated-liquidity ranges of a single pool.
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

// Decimals of the share token.
const Decimals = 18

// FeeSource is the factory surface a vault reads at runtime.
type FeeSource interface {
	ProtocolFee(ctx context.Context) uint32
	Governance(ctx context.Context) common.Address
}

// Config describes a vault to construct.
type Config struct {
	Address common.Address
	Factory common.Address
	Params  Params
}

// Vault is one deployed vault. All mutating methods run as ledger calls and
// either apply completely or leave no trace.
type Vault struct {
	ledger      *ledger.Ledger
	pool        pool.Pool
	fees        FeeSource
	address     common.Address
	factory     common.Address
	token0      common.Address
	token1      common.Address
	tickSpacing int32
	fullLower   int32
	fullUpper   int32
	name        string
	symbol      string
	logger      *zap.Logger

	// state is swapped for a modified clone when a call succeeds and is
	// never written in place.
	state *state
}

type state struct {
	manager           common.Address
	pendingManager    common.Address
	rebalanceDelegate common.Address
	managerFee        uint32
	pendingManagerFee uint32
	protocolFee       uint32

	baseThreshold    int32
	limitThreshold   int32
	fullRangeWeight  uint32
	period           uint32
	minTickMove      int32
	maxTwapDeviation int32
	twapDuration     uint32
	maxTotalSupply   *big.Int

	base          report.Range
	limit         report.Range
	lastTick      int32
	lastTimestamp uint64

	totalSupply *big.Int
	balances    map[common.Address]*big.Int

	accruedProtocolFees0 *big.Int
	accruedProtocolFees1 *big.Int
	accruedManagerFees0  *big.Int
	accruedManagerFees1  *big.Int
}

func (s *state) clone() *state {
	out := *s
	out.balances = make(map[common.Address]*big.Int, len(s.balances))
	for holder, bal := range s.balances {
		out.balances[holder] = bal
	}
	return &out
}

// New validates cfg against the pool and registers the vault with the ledger.
func New(ctx context.Context, l *ledger.Ledger, p pool.Pool, fees FeeSource, cfg Config, logger *zap.Logger) (*Vault, error) {
	if l == nil || p == nil || fees == nil {
		return nil, fmt.Errorf("ledger, pool and fee source are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	meta, err := p.Meta(ctx)
	if err != nil {
		return nil, fmt.Errorf("read pool meta: %w", err)
	}
	if err := cfg.Params.Validate(meta.TickSpacing); err != nil {
		return nil, err
	}

	params := cfg.Params
	maxSupply := new(big.Int)
	if params.MaxTotalSupply != nil {
		maxSupply.Set(params.MaxTotalSupply)
	}
	v := &Vault{
		ledger:      l,
		pool:        p,
		fees:        fees,
		address:     cfg.Address,
		factory:     cfg.Factory,
		token0:      common.HexToAddress(meta.Token0),
		token1:      common.HexToAddress(meta.Token1),
		tickSpacing: meta.TickSpacing,
		fullLower:   positionmath.MinUsableTick(meta.TickSpacing),
		fullUpper:   positionmath.MaxUsableTick(meta.TickSpacing),
		name:        params.Name,
		symbol:      params.Symbol,
		logger:      logger.With(zap.String("vault", cfg.Address.Hex())),
		state: &state{
			manager:              params.Manager,
			rebalanceDelegate:    params.RebalanceDelegate,
			managerFee:           params.ManagerFee,
			pendingManagerFee:    params.ManagerFee,
			protocolFee:          fees.ProtocolFee(ctx),
			baseThreshold:        params.BaseThreshold,
			limitThreshold:       params.LimitThreshold,
			fullRangeWeight:      params.FullRangeWeight,
			period:               params.Period,
			minTickMove:          params.MinTickMove,
			maxTwapDeviation:     params.MaxTwapDeviation,
			twapDuration:         params.TwapDuration,
			maxTotalSupply:       maxSupply,
			totalSupply:          new(big.Int),
			balances:             make(map[common.Address]*big.Int),
			accruedProtocolFees0: new(big.Int),
			accruedProtocolFees1: new(big.Int),
			accruedManagerFees0:  new(big.Int),
			accruedManagerFees1:  new(big.Int),
		},
	}
	l.Register(ctx, v)
	return v, nil
}

// Snapshot implements ledger.Snapshotter.
func (v *Vault) Snapshot() any { return v.state }

// Restore implements ledger.Snapshotter.
func (v *Vault) Restore(snapshot any) {
	if st, ok := snapshot.(*state); ok {
		v.state = st
	}
}

// apply runs fn on a clone of the current state inside a ledger call and
// installs the clone when fn succeeds.
func (v *Vault) apply(ctx context.Context, sender common.Address, fn func(ctx context.Context, call ledger.Call, st *state) error) error {
	return v.ledger.Execute(ctx, sender, func(ctx context.Context, call ledger.Call) error {
		next := v.state.clone()
		if err := fn(ctx, call, next); err != nil {
			return err
		}
		v.state = next
		return nil
	})
}

// view runs fn against the committed state.
func (v *Vault) view(ctx context.Context, fn func(ctx context.Context, st *state) error) error {
	return v.ledger.View(ctx, func(ctx context.Context) error {
		return fn(ctx, v.state)
	})
}

func (v *Vault) Address() common.Address { return v.address }
func (v *Vault) Factory() common.Address { return v.factory }
func (v *Vault) Pool() pool.Pool { return v.pool }
func (v *Vault) Token0() common.Address { return v.token0 }
func (v *Vault) Token1() common.Address { return v.token1 }
func (v *Vault) TickSpacing() int32 { return v.tickSpacing }
func (v *Vault) Name() string { return v.name }
func (v *Vault) Symbol() string { return v.symbol }

// FullRange returns the widest range the pool's spacing allows.
func (v *Vault) FullRange() report.Range {
	return report.Range{Lower: v.fullLower, Upper: v.fullUpper}
}

// Ranges returns the full, base and limit ranges.
func (v *Vault) Ranges(ctx context.Context) (full, base, limit report.Range) {
	_ = v.view(ctx, func(_ context.Context, st *state) error {
		base, limit = st.base, st.limit
		return nil
	})
	return v.FullRange(), base, limit
}

// CurrentParams returns the live parameter set.
func (v *Vault) CurrentParams(ctx context.Context) Params {
	var out Params
	_ = v.view(ctx, func(_ context.Context, st *state) error {
		out = Params{
			Name:              v.name,
			Symbol:            v.symbol,
			Manager:           st.manager,
			RebalanceDelegate: st.rebalanceDelegate,
			ManagerFee:        st.managerFee,
			MaxTotalSupply:    new(big.Int).Set(st.maxTotalSupply),
			BaseThreshold:     st.baseThreshold,
			LimitThreshold:    st.limitThreshold,
			FullRangeWeight:   st.fullRangeWeight,
			Period:            st.period,
			MinTickMove:       st.minTickMove,
			MaxTwapDeviation:  st.maxTwapDeviation,
			TwapDuration:      st.twapDuration,
		}
		return nil
	})
	return out
}

// FeeState is the fee configuration and the fees held back for the
// protocol and the manager.
type FeeState struct {
	ProtocolFee          uint32
	ManagerFee           uint32
	PendingManagerFee    uint32
	AccruedProtocolFees0 *big.Int
	AccruedProtocolFees1 *big.Int
	AccruedManagerFees0  *big.Int
	AccruedManagerFees1  *big.Int
}

// Fees returns the current fee state.
func (v *Vault) Fees(ctx context.Context) FeeState {
	var out FeeState
	_ = v.view(ctx, func(_ context.Context, st *state) error {
		out = FeeState{
			ProtocolFee:          st.protocolFee,
			ManagerFee:           st.managerFee,
			PendingManagerFee:    st.pendingManagerFee,
			AccruedProtocolFees0: new(big.Int).Set(st.accruedProtocolFees0),
			AccruedProtocolFees1: new(big.Int).Set(st.accruedProtocolFees1),
			AccruedManagerFees0:  new(big.Int).Set(st.accruedManagerFees0),
			AccruedManagerFees1:  new(big.Int).Set(st.accruedManagerFees1),
		}
		return nil
	})
	return out
}

// Manager returns the current and pending manager.
func (v *Vault) Manager(ctx context.Context) (current, pending common.Address) {
	_ = v.view(ctx, func(_ context.Context, st *state) error {
		current, pending = st.manager, st.pendingManager
		return nil
	})
	return current, pending
}

// LastRebalance returns the tick and time of the last rebalance.
func (v *Vault) LastRebalance(ctx context.Context) (tick int32, timestamp uint64) {
	_ = v.view(ctx, func(_ context.Context, st *state) error {
		tick, timestamp = st.lastTick, st.lastTimestamp
		return nil
	})
	return tick, timestamp
}

// GetTotalAmounts returns the vault's holdings: idle balances net of accrued
// fees, principal in every range, and tokens owed net of the fee split.
func (v *Vault) GetTotalAmounts(ctx context.Context) (*big.Int, *big.Int, error) {
	var total0, total1 *big.Int
	err := v.view(ctx, func(ctx context.Context, st *state) error {
		var err error
		total0, total1, err = v.totalAmounts(ctx, st)
		return err
	})
	return total0, total1, err
}

// Breakdown reports the vault's holdings per range including fees the pool
// has not credited to the positions yet.
func (v *Vault) Breakdown(ctx context.Context) (report.Breakdown, error) {
	var out report.Breakdown
	err := v.view(ctx, func(ctx context.Context, st *state) error {
		idle0, idle1 := v.idleBalances(ctx, st)
		var err error
		out, err = report.Build(ctx, v.pool, report.Input{
			Vault:       v.address,
			Full:        v.FullRange(),
			Base:        st.base,
			Limit:       st.limit,
			Idle0:       idle0,
			Idle1:       idle1,
			ProtocolFee: st.protocolFee,
			ManagerFee:  st.managerFee,
		})
		return err
	})
	return out, err
}

// Describe returns a persistable snapshot of the vault.
func (v *Vault) Describe(ctx context.Context) (model.VaultSnapshot, error) {
	var out model.VaultSnapshot
	err := v.view(ctx, func(ctx context.Context, st *state) error {
		total0, total1, err := v.totalAmounts(ctx, st)
		if err != nil {
			return err
		}
		out = model.VaultSnapshot{
			ChainID:              v.ledger.ChainID(),
			Address:              v.address.Hex(),
			Pool:                 v.pool.Address().Hex(),
			Token0:               v.token0.Hex(),
			Token1:               v.token1.Hex(),
			Timestamp:            v.ledger.Timestamp(ctx),
			Manager:              st.manager.Hex(),
			PendingManager:       st.pendingManager.Hex(),
			RebalanceDelegate:    st.rebalanceDelegate.Hex(),
			ManagerFee:           st.managerFee,
			PendingManagerFee:    st.pendingManagerFee,
			ProtocolFee:          st.protocolFee,
			BaseThreshold:        st.baseThreshold,
			LimitThreshold:       st.limitThreshold,
			FullRangeWeight:      st.fullRangeWeight,
			Period:               st.period,
			MinTickMove:          st.minTickMove,
			MaxTwapDeviation:     st.maxTwapDeviation,
			TwapDuration:         st.twapDuration,
			FullLower:            v.fullLower,
			FullUpper:            v.fullUpper,
			BaseLower:            st.base.Lower,
			BaseUpper:            st.base.Upper,
			LimitLower:           st.limit.Lower,
			LimitUpper:           st.limit.Upper,
			LastTick:             st.lastTick,
			LastTimestamp:        st.lastTimestamp,
			TotalSupply:          st.totalSupply.String(),
			MaxTotalSupply:       st.maxTotalSupply.String(),
			Total0:               total0.String(),
			Total1:               total1.String(),
			AccruedProtocolFees0: st.accruedProtocolFees0.String(),
			AccruedProtocolFees1: st.accruedProtocolFees1.String(),
			AccruedManagerFees0:  st.accruedManagerFees0.String(),
			AccruedManagerFees1:  st.accruedManagerFees1.String(),
		}
		return nil
	})
	return out, err
}

func (v *Vault) totalAmounts(ctx context.Context, st *state) (*big.Int, *big.Int, error) {
	total0, total1 := v.idleBalances(ctx, st)
	for _, rng := range []report.Range{v.FullRange(), st.base, st.limit} {
		amount0, amount1, err := v.positionAmounts(ctx, st, rng)
		if err != nil {
			return nil, nil, err
		}
		total0.Add(total0, amount0)
		total1.Add(total1, amount1)
	}
	return total0, total1, nil
}

// idleBalances returns token balances held by the vault minus the fees it
// owes the protocol and the manager.
func (v *Vault) idleBalances(ctx context.Context, st *state) (*big.Int, *big.Int) {
	bal0 := v.ledger.BalanceOf(ctx, v.token0, v.address)
	bal0.Sub(bal0, st.accruedProtocolFees0)
	bal0.Sub(bal0, st.accruedManagerFees0)
	bal1 := v.ledger.BalanceOf(ctx, v.token1, v.address)
	bal1.Sub(bal1, st.accruedProtocolFees1)
	bal1.Sub(bal1, st.accruedManagerFees1)
	return bal0, bal1
}

// positionAmounts values a range at the current price, counting tokens owed
// net of the protocol and manager cut.
func (v *Vault) positionAmounts(ctx context.Context, st *state, rng report.Range) (*big.Int, *big.Int, error) {
	if !rng.Set() {
		return new(big.Int), new(big.Int), nil
	}
	pos, err := v.pool.Position(ctx, v.address, rng.Lower, rng.Upper)
	if err != nil {
		return nil, nil, fmt.Errorf("read position: %w", err)
	}
	slot, err := v.pool.Slot0(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("read slot0: %w", err)
	}
	amount0, amount1, err := positionmath.AmountsForLiquidity(slot.SqrtPriceX96, rng.Lower, rng.Upper, pos.Liquidity)
	if err != nil {
		return nil, nil, err
	}
	keep := positionmath.FeeDenominator - st.protocolFee - st.managerFee
	amount0.Add(amount0, positionmath.ApplyFee(pos.TokensOwed0, keep))
	amount1.Add(amount1, positionmath.ApplyFee(pos.TokensOwed1, keep))
	return amount0, amount1, nil
}

func (v *Vault) positionLiquidity(ctx context.Context, rng report.Range) (*big.Int, error) {
	if !rng.Set() {
		return new(big.Int), nil
	}
	pos, err := v.pool.Position(ctx, v.address, rng.Lower, rng.Upper)
	if err != nil {
		return nil, fmt.Errorf("read position: %w", err)
	}
	if pos.Liquidity == nil {
		return new(big.Int), nil
	}
	return pos.Liquidity, nil
}
