package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"liquidityVault/internal/model"
	"liquidityVault/internal/pool"
)

// ChainPool is a read-only pool.Reader backed by eth_call, pinned to one
// block (nil for latest).
type ChainPool struct {
	caller  Caller
	address common.Address
	block   *big.Int
	meta    model.PoolMeta
	abi     abi.ABI
}

var _ pool.Reader = (*ChainPool)(nil)

func NewChainPool(ctx context.Context, caller Caller, address common.Address, block *big.Int) (*ChainPool, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	meta, err := FetchPoolMeta(ctx, caller, address, block)
	if err != nil {
		return nil, fmt.Errorf("fetch pool meta %s: %w", address.Hex(), err)
	}
	return &ChainPool{caller: caller, address: address, block: block, meta: meta, abi: poolABI}, nil
}

func (p *ChainPool) Address() common.Address { return p.address }

func (p *ChainPool) Meta(ctx context.Context) (model.PoolMeta, error) {
	meta := p.meta
	liquidity, err := callBig(ctx, p.caller, p.address, p.abi, "liquidity", p.block)
	if err != nil {
		return model.PoolMeta{}, err
	}
	slot, err := p.Slot0(ctx)
	if err != nil {
		return model.PoolMeta{}, err
	}
	meta.Liquidity = liquidity.String()
	meta.Slot0 = &model.PoolSlot0{SqrtPriceX96: slot.SqrtPriceX96.String(), Tick: slot.Tick}
	return meta, nil
}

func (p *ChainPool) Slot0(ctx context.Context) (pool.Slot0, error) {
	values, err := call(ctx, p.caller, p.address, p.abi, "slot0", p.block)
	if err != nil {
		return pool.Slot0{}, err
	}
	if len(values) < 2 {
		return pool.Slot0{}, fmt.Errorf("slot0 returned %d values", len(values))
	}
	sqrtPrice, err := asBigInt(values[0])
	if err != nil {
		return pool.Slot0{}, fmt.Errorf("slot0 sqrtPriceX96: %w", err)
	}
	tickBig, err := asBigInt(values[1])
	if err != nil {
		return pool.Slot0{}, fmt.Errorf("slot0 tick: %w", err)
	}
	tick, err := int24FromBig(tickBig)
	if err != nil {
		return pool.Slot0{}, err
	}
	return pool.Slot0{SqrtPriceX96: sqrtPrice, Tick: tick}, nil
}

func (p *ChainPool) Observe(ctx context.Context, secondsAgos []uint32) ([]int64, error) {
	values, err := call(ctx, p.caller, p.address, p.abi, "observe", p.block, secondsAgos)
	if err != nil {
		return nil, err
	}
	cumulatives, ok := values[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("observe: unexpected type %T", values[0])
	}
	out := make([]int64, len(cumulatives))
	for i, c := range cumulatives {
		if !c.IsInt64() {
			return nil, fmt.Errorf("observe: tick cumulative overflows int64: %s", c)
		}
		out[i] = c.Int64()
	}
	return out, nil
}

func (p *ChainPool) Position(ctx context.Context, owner common.Address, lower, upper int32) (pool.PositionInfo, error) {
	key := PositionKey(owner, lower, upper)
	values, err := call(ctx, p.caller, p.address, p.abi, "positions", p.block, [32]byte(key))
	if err != nil {
		return pool.PositionInfo{}, err
	}
	fields, err := bigValues(values, 5)
	if err != nil {
		return pool.PositionInfo{}, fmt.Errorf("positions: %w", err)
	}
	return pool.PositionInfo{
		Liquidity:                fields[0],
		FeeGrowthInside0LastX128: fields[1],
		FeeGrowthInside1LastX128: fields[2],
		TokensOwed0:              fields[3],
		TokensOwed1:              fields[4],
	}, nil
}

// FeeGrowthInside derives the fee growth inside [lower, upper) from the
// global growth and the growth recorded outside each boundary tick. All
// arithmetic wraps modulo 2^256.
func (p *ChainPool) FeeGrowthInside(ctx context.Context, lower, upper int32) (*big.Int, *big.Int, error) {
	slot, err := p.Slot0(ctx)
	if err != nil {
		return nil, nil, err
	}
	global0, err := callBig(ctx, p.caller, p.address, p.abi, "feeGrowthGlobal0X128", p.block)
	if err != nil {
		return nil, nil, err
	}
	global1, err := callBig(ctx, p.caller, p.address, p.abi, "feeGrowthGlobal1X128", p.block)
	if err != nil {
		return nil, nil, err
	}
	lower0, lower1, err := p.feeGrowthOutside(ctx, lower)
	if err != nil {
		return nil, nil, err
	}
	upper0, upper1, err := p.feeGrowthOutside(ctx, upper)
	if err != nil {
		return nil, nil, err
	}

	inside0, err := feeGrowthInside(slot.Tick, lower, upper, global0, lower0, upper0)
	if err != nil {
		return nil, nil, err
	}
	inside1, err := feeGrowthInside(slot.Tick, lower, upper, global1, lower1, upper1)
	if err != nil {
		return nil, nil, err
	}
	return inside0, inside1, nil
}

func (p *ChainPool) feeGrowthOutside(ctx context.Context, tick int32) (*big.Int, *big.Int, error) {
	values, err := call(ctx, p.caller, p.address, p.abi, "ticks", p.block, big.NewInt(int64(tick)))
	if err != nil {
		return nil, nil, err
	}
	if len(values) < 4 {
		return nil, nil, fmt.Errorf("ticks returned %d values", len(values))
	}
	outside0, err := asBigInt(values[2])
	if err != nil {
		return nil, nil, fmt.Errorf("ticks feeGrowthOutside0: %w", err)
	}
	outside1, err := asBigInt(values[3])
	if err != nil {
		return nil, nil, fmt.Errorf("ticks feeGrowthOutside1: %w", err)
	}
	return outside0, outside1, nil
}

func feeGrowthInside(current, lower, upper int32, global, outsideLower, outsideUpper *big.Int) (*big.Int, error) {
	g, overflow := uint256.FromBig(global)
	lo, overflowLo := uint256.FromBig(outsideLower)
	hi, overflowHi := uint256.FromBig(outsideUpper)
	if overflow || overflowLo || overflowHi {
		return nil, fmt.Errorf("fee growth exceeds 256 bits")
	}

	below := lo
	if current < lower {
		below = new(uint256.Int).Sub(g, lo)
	}
	above := hi
	if current >= upper {
		above = new(uint256.Int).Sub(g, hi)
	}
	inside := new(uint256.Int).Sub(g, below)
	inside.Sub(inside, above)
	return inside.ToBig(), nil
}

// PositionKey is keccak256(abi.encodePacked(owner, int24 lower, int24 upper)).
func PositionKey(owner common.Address, lower, upper int32) common.Hash {
	buf := make([]byte, 0, common.AddressLength+6)
	buf = append(buf, owner.Bytes()...)
	buf = append(buf, int24Bytes(lower)...)
	buf = append(buf, int24Bytes(upper)...)
	return crypto.Keccak256Hash(buf)
}

func int24Bytes(v int32) []byte {
	u := uint32(v) & 0xffffff
	return []byte{byte(u >> 16), byte(u >> 8), byte(u)}
}

func bigValues(values []interface{}, n int) ([]*big.Int, error) {
	if len(values) < n {
		return nil, fmt.Errorf("expected %d values, got %d", n, len(values))
	}
	out := make([]*big.Int, n)
	for i := 0; i < n; i++ {
		v, err := asBigInt(values[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
