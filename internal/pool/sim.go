package pool

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityVault/internal/ledger"
	"liquidityVault/internal/model"
	"liquidityVault/internal/positionmath"
)

const defaultCardinality = 1024

// SimConfig configures an in-memory pool.
type SimConfig struct {
	Address      common.Address
	Token0       common.Address
	Token1       common.Address
	Fee          uint32
	TickSpacing  int32
	SqrtPriceX96 *big.Int
	// Cardinality bounds the number of stored price observations.
	Cardinality int
}

// SimPool is an in-memory concentrated-liquidity pool whose token balances
// live on a ledger. It takes part in the ledger's rollback.
type SimPool struct {
	ledger      *ledger.Ledger
	address     common.Address
	token0      common.Address
	token1      common.Address
	fee         uint32
	tickSpacing int32
	cardinality int
	logger      *zap.Logger

	state *simState
}

// Big integers inside simState are replaced on every change and never
// mutated in place, so cloning copies structs and shares the pointers.
type simState struct {
	sqrtPriceX96     *big.Int
	tick             int32
	liquidity        *big.Int
	feeGrowthGlobal0 *big.Int
	feeGrowthGlobal1 *big.Int
	ticks            map[int32]tickInfo
	positions        map[positionKey]positionInfo
	observations     []observation
}

type tickInfo struct {
	liquidityGross    *big.Int
	liquidityNet      *big.Int
	feeGrowthOutside0 *big.Int
	feeGrowthOutside1 *big.Int
}

type positionKey struct {
	owner common.Address
	lower int32
	upper int32
}

type positionInfo struct {
	liquidity        *big.Int
	feeGrowthInside0 *big.Int
	feeGrowthInside1 *big.Int
	tokensOwed0      *big.Int
	tokensOwed1      *big.Int
}

// NewSimPool creates a pool initialized at cfg.SqrtPriceX96 and registers it
// with the ledger.
func NewSimPool(ctx context.Context, l *ledger.Ledger, cfg SimConfig, logger *zap.Logger) (*SimPool, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if bytes.Compare(cfg.Token0.Bytes(), cfg.Token1.Bytes()) >= 0 {
		return nil, fmt.Errorf("tokens not sorted: %s >= %s", cfg.Token0.Hex(), cfg.Token1.Hex())
	}
	if cfg.TickSpacing == 0 {
		spacing, err := TickSpacingForFee(cfg.Fee)
		if err != nil {
			return nil, err
		}
		cfg.TickSpacing = spacing
	}
	if cfg.SqrtPriceX96 == nil {
		return nil, fmt.Errorf("initial sqrt price is required")
	}
	if cfg.SqrtPriceX96.Cmp(positionmath.MinSqrtRatio) < 0 || cfg.SqrtPriceX96.Cmp(positionmath.MaxSqrtRatio) >= 0 {
		return nil, fmt.Errorf("initial sqrt price out of range: %s", cfg.SqrtPriceX96)
	}
	tick, err := positionmath.TickAtSqrtRatio(cfg.SqrtPriceX96)
	if err != nil {
		return nil, err
	}
	if cfg.Cardinality <= 0 {
		cfg.Cardinality = defaultCardinality
	}

	p := &SimPool{
		ledger:      l,
		address:     cfg.Address,
		token0:      cfg.Token0,
		token1:      cfg.Token1,
		fee:         cfg.Fee,
		tickSpacing: cfg.TickSpacing,
		cardinality: cfg.Cardinality,
		logger:      logger,
		state: &simState{
			sqrtPriceX96:     new(big.Int).Set(cfg.SqrtPriceX96),
			tick:             tick,
			liquidity:        new(big.Int),
			feeGrowthGlobal0: new(big.Int),
			feeGrowthGlobal1: new(big.Int),
			ticks:            make(map[int32]tickInfo),
			positions:        make(map[positionKey]positionInfo),
			observations:     []observation{{timestamp: l.Timestamp(ctx), tick: tick}},
		},
	}
	l.Register(ctx, p)
	return p, nil
}

func (p *SimPool) Address() common.Address { return p.address }

// Token0 returns the lower-sorted token.
func (p *SimPool) Token0() common.Address { return p.token0 }

// Token1 returns the higher-sorted token.
func (p *SimPool) Token1() common.Address { return p.token1 }

func (p *SimPool) TickSpacing() int32 { return p.tickSpacing }

func (p *SimPool) Snapshot() any {
	return p.state.clone()
}

func (p *SimPool) Restore(snapshot any) {
	p.state = snapshot.(*simState)
}

func (s *simState) clone() *simState {
	out := *s
	out.ticks = make(map[int32]tickInfo, len(s.ticks))
	for k, v := range s.ticks {
		out.ticks[k] = v
	}
	out.positions = make(map[positionKey]positionInfo, len(s.positions))
	for k, v := range s.positions {
		out.positions[k] = v
	}
	out.observations = append([]observation(nil), s.observations...)
	return &out
}

func (p *SimPool) Meta(ctx context.Context) (model.PoolMeta, error) {
	var meta model.PoolMeta
	err := p.ledger.View(ctx, func(context.Context) error {
		meta = model.PoolMeta{
			Address:     p.address.Hex(),
			Token0:      p.token0.Hex(),
			Token1:      p.token1.Hex(),
			Fee:         p.fee,
			TickSpacing: p.tickSpacing,
			Liquidity:   p.state.liquidity.String(),
			Slot0: &model.PoolSlot0{
				SqrtPriceX96: p.state.sqrtPriceX96.String(),
				Tick:         p.state.tick,
			},
		}
		return nil
	})
	return meta, err
}

func (p *SimPool) Slot0(ctx context.Context) (Slot0, error) {
	var slot Slot0
	err := p.ledger.View(ctx, func(context.Context) error {
		slot = Slot0{SqrtPriceX96: new(big.Int).Set(p.state.sqrtPriceX96), Tick: p.state.tick}
		return nil
	})
	return slot, err
}

// Liquidity returns the in-range liquidity.
func (p *SimPool) Liquidity(ctx context.Context) *big.Int {
	out := new(big.Int)
	_ = p.ledger.View(ctx, func(context.Context) error {
		out.Set(p.state.liquidity)
		return nil
	})
	return out
}

func (p *SimPool) Position(ctx context.Context, owner common.Address, lower, upper int32) (PositionInfo, error) {
	var info PositionInfo
	err := p.ledger.View(ctx, func(context.Context) error {
		pos := p.state.position(positionKey{owner: owner, lower: lower, upper: upper})
		info = PositionInfo{
			Liquidity:                new(big.Int).Set(pos.liquidity),
			FeeGrowthInside0LastX128: new(big.Int).Set(pos.feeGrowthInside0),
			FeeGrowthInside1LastX128: new(big.Int).Set(pos.feeGrowthInside1),
			TokensOwed0:              new(big.Int).Set(pos.tokensOwed0),
			TokensOwed1:              new(big.Int).Set(pos.tokensOwed1),
		}
		return nil
	})
	return info, err
}

func (p *SimPool) FeeGrowthInside(ctx context.Context, lower, upper int32) (*big.Int, *big.Int, error) {
	var inside0, inside1 *big.Int
	err := p.ledger.View(ctx, func(context.Context) error {
		inside0, inside1 = p.state.feeGrowthInside(lower, upper)
		return nil
	})
	return inside0, inside1, err
}

func (s *simState) position(key positionKey) positionInfo {
	if pos, ok := s.positions[key]; ok {
		return pos
	}
	return positionInfo{
		liquidity:        new(big.Int),
		feeGrowthInside0: new(big.Int),
		feeGrowthInside1: new(big.Int),
		tokensOwed0:      new(big.Int),
		tokensOwed1:      new(big.Int),
	}
}

func (s *simState) tickAt(tick int32) tickInfo {
	if info, ok := s.ticks[tick]; ok {
		return info
	}
	return tickInfo{
		liquidityGross:    new(big.Int),
		liquidityNet:      new(big.Int),
		feeGrowthOutside0: new(big.Int),
		feeGrowthOutside1: new(big.Int),
	}
}

func (s *simState) feeGrowthInside(lower, upper int32) (*big.Int, *big.Int) {
	lo := s.tickAt(lower)
	hi := s.tickAt(upper)

	var below0, below1, above0, above1 *big.Int
	if s.tick >= lower {
		below0, below1 = lo.feeGrowthOutside0, lo.feeGrowthOutside1
	} else {
		below0 = new(big.Int).Sub(s.feeGrowthGlobal0, lo.feeGrowthOutside0)
		below1 = new(big.Int).Sub(s.feeGrowthGlobal1, lo.feeGrowthOutside1)
	}
	if s.tick < upper {
		above0, above1 = hi.feeGrowthOutside0, hi.feeGrowthOutside1
	} else {
		above0 = new(big.Int).Sub(s.feeGrowthGlobal0, hi.feeGrowthOutside0)
		above1 = new(big.Int).Sub(s.feeGrowthGlobal1, hi.feeGrowthOutside1)
	}

	inside0 := new(big.Int).Sub(s.feeGrowthGlobal0, below0)
	inside0.Sub(inside0, above0)
	inside1 := new(big.Int).Sub(s.feeGrowthGlobal1, below1)
	inside1.Sub(inside1, above1)
	return inside0, inside1
}
