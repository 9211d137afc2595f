// Package simulate assembles an in-memory ledger, pool, factory and vaults
// and replays swap flow against them.
package simulate

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityVault/internal/factory"
	"liquidityVault/internal/ledger"
	"liquidityVault/internal/model"
	"liquidityVault/internal/pool"
	"liquidityVault/internal/positionmath"
	"liquidityVault/internal/vault"
)

type Token struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

func (t Token) Meta() model.TokenMeta {
	return model.TokenMeta{Address: t.Address.Hex(), Symbol: t.Symbol, Name: t.Symbol, Decimals: t.Decimals}
}

type Depositor struct {
	Address common.Address
	Amount0 *big.Int
	Amount1 *big.Int
}

type Config struct {
	ChainID   uint64
	StartTime uint64

	Token0 Token
	Token1 Token

	PoolAddress common.Address
	PoolFee     uint32
	StartTick   int32
	// Background liquidity placed around the start price by LP.
	LP          common.Address
	LPLiquidity *big.Int
	LPWidth     int32

	FactoryAddress common.Address
	Governance     common.Address
	ProtocolFee    uint32

	Vaults     []vault.Params
	Depositors []Depositor
	Trader     common.Address
	// Minted to every actor before anything else happens.
	Funding0 *big.Int
	Funding1 *big.Int
	// Seconds of price history recorded before the first deposit.
	Warmup uint64
}

type World struct {
	Config  Config
	Ledger  *ledger.Ledger
	Pool    *pool.SimPool
	Factory *factory.Factory
	Vaults  []*vault.Vault
	logger  *zap.Logger
}

type Option func(*options)

type options struct {
	observer ledger.Observer
	sinks    []ledger.EventSink
}

func WithObserver(o ledger.Observer) Option {
	return func(opts *options) { opts.observer = o }
}

func WithSinks(sinks ...ledger.EventSink) Option {
	return func(opts *options) { opts.sinks = append(opts.sinks, sinks...) }
}

// Build creates the world, seeds the pool and funds every actor. Depositors
// deposit into every vault once the warmup has elapsed.
func Build(ctx context.Context, cfg Config, logger *zap.Logger, opts ...Option) (*World, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if len(cfg.Vaults) == 0 {
		return nil, fmt.Errorf("at least one vault is required")
	}

	l := ledger.New(ledger.Config{ChainID: cfg.ChainID, StartTime: cfg.StartTime, Observer: o.observer}, logger)
	for _, sink := range o.sinks {
		l.AddSink(sink)
	}

	for _, tok := range []Token{cfg.Token0, cfg.Token1} {
		if err := l.RegisterToken(ctx, tok.Meta()); err != nil {
			return nil, fmt.Errorf("register token %s: %w", tok.Symbol, err)
		}
	}
	if err := fund(ctx, l, cfg); err != nil {
		return nil, err
	}

	sqrtPrice, err := positionmath.SqrtRatioAtTick(cfg.StartTick)
	if err != nil {
		return nil, fmt.Errorf("start price: %w", err)
	}
	p, err := pool.NewSimPool(ctx, l, pool.SimConfig{
		Address:      cfg.PoolAddress,
		Token0:       cfg.Token0.Address,
		Token1:       cfg.Token1.Address,
		Fee:          cfg.PoolFee,
		SqrtPriceX96: sqrtPrice,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := seedLiquidity(ctx, l, p, cfg); err != nil {
		return nil, err
	}

	f, err := factory.New(ctx, l, factory.Config{
		Address:     cfg.FactoryAddress,
		Governance:  cfg.Governance,
		ProtocolFee: cfg.ProtocolFee,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create factory: %w", err)
	}
	f.RegisterPool(p)

	w := &World{Config: cfg, Ledger: l, Pool: p, Factory: f, logger: logger}
	for i, params := range cfg.Vaults {
		v, err := f.CreateVault(ctx, params.Manager, p.Address(), params)
		if err != nil {
			return nil, fmt.Errorf("create vault %d: %w", i, err)
		}
		w.Vaults = append(w.Vaults, v)
	}

	l.Advance(cfg.Warmup)
	if err := w.seedDeposits(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

func fund(ctx context.Context, l *ledger.Ledger, cfg Config) error {
	actors := []common.Address{cfg.LP, cfg.Trader}
	for _, d := range cfg.Depositors {
		actors = append(actors, d.Address)
	}
	for _, params := range cfg.Vaults {
		actors = append(actors, params.Manager)
	}
	seen := make(map[common.Address]struct{}, len(actors))
	for _, actor := range actors {
		if actor == (common.Address{}) {
			continue
		}
		if _, ok := seen[actor]; ok {
			continue
		}
		seen[actor] = struct{}{}
		if err := l.Mint(ctx, cfg.Token0.Address, actor, orZero(cfg.Funding0)); err != nil {
			return fmt.Errorf("fund %s: %w", actor.Hex(), err)
		}
		if err := l.Mint(ctx, cfg.Token1.Address, actor, orZero(cfg.Funding1)); err != nil {
			return fmt.Errorf("fund %s: %w", actor.Hex(), err)
		}
	}
	return nil
}

func seedLiquidity(ctx context.Context, l *ledger.Ledger, p *pool.SimPool, cfg Config) error {
	if cfg.LPLiquidity == nil || cfg.LPLiquidity.Sign() == 0 {
		return nil
	}
	spacing := p.TickSpacing()
	floor := positionmath.FloorTick(cfg.StartTick, spacing)
	width := cfg.LPWidth - cfg.LPWidth%spacing
	if width <= 0 {
		width = 100 * spacing
	}
	lower := max(floor-width, positionmath.MinUsableTick(spacing))
	upper := min(floor+width, positionmath.MaxUsableTick(spacing))

	_, _, err := p.Mint(ctx, cfg.LP, cfg.LP, lower, upper, cfg.LPLiquidity, func(ctx context.Context, amount0, amount1 *big.Int) error {
		if err := l.Transfer(ctx, cfg.Token0.Address, cfg.LP, p.Address(), amount0); err != nil {
			return err
		}
		return l.Transfer(ctx, cfg.Token1.Address, cfg.LP, p.Address(), amount1)
	})
	if err != nil {
		return fmt.Errorf("seed pool liquidity: %w", err)
	}
	return nil
}

func (w *World) seedDeposits(ctx context.Context) error {
	for _, v := range w.Vaults {
		for _, d := range w.Config.Depositors {
			if err := w.Ledger.ApproveMax(ctx, w.Config.Token0.Address, d.Address, v.Address()); err != nil {
				return err
			}
			if err := w.Ledger.ApproveMax(ctx, w.Config.Token1.Address, d.Address, v.Address()); err != nil {
				return err
			}
			res, err := v.Deposit(ctx, d.Address, orZero(d.Amount0), orZero(d.Amount1), big.NewInt(0), big.NewInt(0), d.Address)
			if err != nil {
				return fmt.Errorf("deposit %s into %s: %w", d.Address.Hex(), v.Address().Hex(), err)
			}
			w.logger.Debug("seed deposit",
				zap.String("vault", v.Address().Hex()),
				zap.String("depositor", d.Address.Hex()),
				zap.String("shares", res.Shares.String()),
			)
		}
	}
	return nil
}

// RoundTrip swaps amount1In of token1 into the pool and swaps the received
// token0 straight back, leaving the price roughly unchanged and fees behind.
func (w *World) RoundTrip(ctx context.Context, amount1In *big.Int) error {
	amount0, _, err := w.Pool.SwapFrom(ctx, w.Config.Trader, false, amount1In)
	if err != nil {
		return fmt.Errorf("swap token1 in: %w", err)
	}
	back := new(big.Int).Neg(amount0)
	if back.Sign() <= 0 {
		return nil
	}
	if _, _, err := w.Pool.SwapFrom(ctx, w.Config.Trader, true, back); err != nil {
		return fmt.Errorf("swap token0 back: %w", err)
	}
	return nil
}

// ReplaySwap applies the input side of a recorded swap. The positive amount
// is what the original trader paid in.
func (w *World) ReplaySwap(ctx context.Context, swap model.SwapEventData) error {
	amount0, ok0 := new(big.Int).SetString(swap.Amount0, 10)
	amount1, ok1 := new(big.Int).SetString(swap.Amount1, 10)
	if !ok0 || !ok1 {
		return fmt.Errorf("parse swap amounts %q/%q", swap.Amount0, swap.Amount1)
	}
	switch {
	case amount0.Sign() > 0:
		_, _, err := w.Pool.SwapFrom(ctx, w.Config.Trader, true, amount0)
		return err
	case amount1.Sign() > 0:
		_, _, err := w.Pool.SwapFrom(ctx, w.Config.Trader, false, amount1)
		return err
	default:
		return nil
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
