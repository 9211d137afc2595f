package dex

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type handler func(args []interface{}) []interface{}

// fakeCaller answers eth_call by ABI-encoding canned values per contract and
// method. Methods without a handler return zero values.
type fakeCaller struct {
	abis     map[common.Address]abi.ABI
	handlers map[common.Address]map[string]handler
	calls    map[string]int
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{
		abis:     make(map[common.Address]abi.ABI),
		handlers: make(map[common.Address]map[string]handler),
		calls:    make(map[string]int),
	}
}

func (f *fakeCaller) register(addr common.Address, parsed abi.ABI) {
	f.abis[addr] = parsed
	f.handlers[addr] = make(map[string]handler)
}

func (f *fakeCaller) on(addr common.Address, method string, values ...interface{}) {
	f.handlers[addr][method] = func([]interface{}) []interface{} { return values }
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	parsed, ok := f.abis[*msg.To]
	if !ok {
		return nil, fmt.Errorf("no contract at %s", msg.To.Hex())
	}
	method, err := parsed.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	f.calls[method.Name]++

	h, ok := f.handlers[*msg.To][method.Name]
	if !ok {
		out := make([]interface{}, len(method.Outputs))
		for i, arg := range method.Outputs {
			out[i] = zeroFor(arg.Type)
		}
		return method.Outputs.Pack(out...)
	}
	return method.Outputs.Pack(h(args)...)
}

func zeroFor(t abi.Type) interface{} {
	switch t.T {
	case abi.AddressTy:
		return common.Address{}
	case abi.StringTy:
		return ""
	case abi.BoolTy:
		return false
	case abi.FixedBytesTy:
		return [32]byte{}
	case abi.UintTy:
		switch t.Size {
		case 8:
			return uint8(0)
		case 16:
			return uint16(0)
		case 32:
			return uint32(0)
		case 64:
			return uint64(0)
		}
	case abi.IntTy:
		switch t.Size {
		case 8:
			return int8(0)
		case 16:
			return int16(0)
		case 32:
			return int32(0)
		case 64:
			return int64(0)
		}
	}
	return big.NewInt(0)
}

func mustABI(t *testing.T, get func() (abi.ABI, error)) abi.ABI {
	t.Helper()
	parsed, err := get()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	return parsed
}

func TestPositionKey(t *testing.T) {
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	want := crypto.Keccak256Hash(common.FromHex("0x1111111111111111111111111111111111111111" + "ffffc4" + "00003c"))
	if got := PositionKey(owner, -60, 60); got != want {
		t.Fatalf("position key mismatch: got %s want %s", got.Hex(), want.Hex())
	}
}

func TestFeeGrowthInside(t *testing.T) {
	two256 := new(big.Int).Lsh(big.NewInt(1), 256)
	cases := []struct {
		name    string
		current int32
		want    *big.Int
	}{
		{"inside", 0, big.NewInt(70)},
		{"below", -120, new(big.Int).Sub(two256, big.NewInt(10))},
		{"above", 120, big.NewInt(10)},
	}
	for _, tc := range cases {
		got, err := feeGrowthInside(tc.current, -60, 60, big.NewInt(100), big.NewInt(10), big.NewInt(20))
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got.Cmp(tc.want) != 0 {
			t.Fatalf("%s: got %s want %s", tc.name, got, tc.want)
		}
	}
}

func poolFixture(t *testing.T) (*fakeCaller, common.Address) {
	t.Helper()
	poolAddr := common.HexToAddress("0x00000000000000000000000000000000000000f0")
	f := newFakeCaller()
	f.register(poolAddr, mustABI(t, V3PoolABI))
	f.on(poolAddr, "token0", common.HexToAddress("0x0a"))
	f.on(poolAddr, "token1", common.HexToAddress("0x0b"))
	f.on(poolAddr, "fee", big.NewInt(3000))
	f.on(poolAddr, "tickSpacing", big.NewInt(60))
	f.on(poolAddr, "liquidity", big.NewInt(5_000))
	f.on(poolAddr, "slot0", new(big.Int).Lsh(big.NewInt(1), 96), big.NewInt(-15), uint16(0), uint16(1), uint16(1), uint8(0), true)
	return f, poolAddr
}

func TestChainPoolReads(t *testing.T) {
	ctx := context.Background()
	f, poolAddr := poolFixture(t)
	owner := common.HexToAddress("0x00000000000000000000000000000000000000f1")

	f.handlers[poolAddr]["observe"] = func(args []interface{}) []interface{} {
		secondsAgos := args[0].([]uint32)
		ticks := make([]*big.Int, len(secondsAgos))
		spl := make([]*big.Int, len(secondsAgos))
		for i, ago := range secondsAgos {
			ticks[i] = big.NewInt(-int64(1000 - ago))
			spl[i] = big.NewInt(0)
		}
		return []interface{}{ticks, spl}
	}
	wantKey := PositionKey(owner, -120, 120)
	f.handlers[poolAddr]["positions"] = func(args []interface{}) []interface{} {
		if args[0].([32]byte) != [32]byte(wantKey) {
			return []interface{}{big.NewInt(0), big.NewInt(0), big.NewInt(0), big.NewInt(0), big.NewInt(0)}
		}
		return []interface{}{big.NewInt(42), big.NewInt(1), big.NewInt(2), big.NewInt(3), big.NewInt(4)}
	}

	p, err := NewChainPool(ctx, f, poolAddr, nil)
	if err != nil {
		t.Fatalf("new chain pool: %v", err)
	}

	meta, err := p.Meta(ctx)
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	if meta.Fee != 3000 || meta.TickSpacing != 60 || meta.Liquidity != "5000" || meta.Slot0.Tick != -15 {
		t.Fatalf("meta mismatch: %+v", meta)
	}

	cumulatives, err := p.Observe(ctx, []uint32{60, 0})
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if cumulatives[0] != -940 || cumulatives[1] != -1000 {
		t.Fatalf("observe mismatch: %v", cumulatives)
	}

	pos, err := p.Position(ctx, owner, -120, 120)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if pos.Liquidity.Int64() != 42 || pos.TokensOwed0.Int64() != 3 || pos.TokensOwed1.Int64() != 4 {
		t.Fatalf("position mismatch: %+v", pos)
	}
}

func TestChainPoolFeeGrowthInside(t *testing.T) {
	ctx := context.Background()
	f, poolAddr := poolFixture(t)
	f.on(poolAddr, "feeGrowthGlobal0X128", big.NewInt(1000))
	f.on(poolAddr, "feeGrowthGlobal1X128", big.NewInt(500))
	f.handlers[poolAddr]["ticks"] = func(args []interface{}) []interface{} {
		outside := map[int64][2]int64{-60: {100, 50}, 60: {200, 25}}[args[0].(*big.Int).Int64()]
		return []interface{}{
			big.NewInt(1), big.NewInt(1),
			big.NewInt(outside[0]), big.NewInt(outside[1]),
			big.NewInt(0), big.NewInt(0), uint32(0), true,
		}
	}

	p, err := NewChainPool(ctx, f, poolAddr, nil)
	if err != nil {
		t.Fatalf("new chain pool: %v", err)
	}
	inside0, inside1, err := p.FeeGrowthInside(ctx, -60, 60)
	if err != nil {
		t.Fatalf("fee growth inside: %v", err)
	}
	if inside0.Int64() != 700 || inside1.Int64() != 425 {
		t.Fatalf("fee growth mismatch: %s %s", inside0, inside1)
	}
}

func TestTokenMetaCacheResolve(t *testing.T) {
	token := common.HexToAddress("0x0a")
	f := newFakeCaller()
	f.register(token, mustABI(t, ERC20ABI))
	f.on(token, "decimals", uint8(6))
	f.handlers[token]["symbol"] = func([]interface{}) []interface{} { return []interface{}{"USDC"} }

	meta, err := FetchTokenMeta(context.Background(), f, token, nil)
	if err != nil {
		t.Fatalf("fetch token meta: %v", err)
	}
	if meta.Decimals != 6 || meta.Symbol != "USDC" {
		t.Fatalf("meta mismatch: %+v", meta)
	}

	cache := NewTokenMetaCache()
	if _, err := cache.Resolve(context.Background(), f, token, nil); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	before := f.calls["decimals"]
	if _, err := cache.Resolve(context.Background(), f, token, nil); err != nil {
		t.Fatalf("resolve cached: %v", err)
	}
	if f.calls["decimals"] != before {
		t.Fatalf("expected cached metadata")
	}
}

func TestFetchVault(t *testing.T) {
	ctx := context.Background()
	vaultAddr := common.HexToAddress("0x00000000000000000000000000000000000000f1")
	token0 := common.HexToAddress("0x0a")
	token1 := common.HexToAddress("0x0b")

	f := newFakeCaller()
	f.register(vaultAddr, mustABI(t, VaultABI))
	f.register(token0, mustABI(t, ERC20ABI))
	f.register(token1, mustABI(t, ERC20ABI))

	f.on(vaultAddr, "token0", token0)
	f.on(vaultAddr, "token1", token1)
	f.on(vaultAddr, "name", "AV_USDC_WETH")
	f.on(vaultAddr, "totalSupply", big.NewInt(1_000))
	f.on(vaultAddr, "getTotalAmounts", big.NewInt(700), big.NewInt(900))
	f.on(vaultAddr, "baseLower", big.NewInt(-1260))
	f.on(vaultAddr, "baseUpper", big.NewInt(1260))
	f.on(vaultAddr, "protocolFee", big.NewInt(30_000))
	f.on(vaultAddr, "accruedProtocolFees0", big.NewInt(5))
	f.on(vaultAddr, "accruedManagerFees1", big.NewInt(7))
	f.on(vaultAddr, "period", uint32(3600))
	f.on(vaultAddr, "lastTimestamp", big.NewInt(1_700_000_000))
	f.on(token0, "balanceOf", big.NewInt(105))
	f.on(token1, "balanceOf", big.NewInt(7))

	s, err := FetchVault(ctx, f, vaultAddr, nil)
	if err != nil {
		t.Fatalf("fetch vault: %v", err)
	}
	if s.Name != "AV_USDC_WETH" || s.Base.Lower != -1260 || s.Base.Upper != 1260 || s.Period != 3600 {
		t.Fatalf("state mismatch: %+v", s)
	}
	if s.Total0.Int64() != 700 || s.Total1.Int64() != 900 || s.LastTimestamp != 1_700_000_000 {
		t.Fatalf("totals mismatch: %+v", s)
	}

	in := s.ReportInput()
	if in.Idle0.Int64() != 100 || in.Idle1.Int64() != 0 || in.ProtocolFee != 30_000 {
		t.Fatalf("report input mismatch: %+v", in)
	}
	snap := s.Snapshot(1, 1_700_000_100)
	if snap.TotalSupply != "1000" || snap.Address != vaultAddr.Hex() || snap.BaseUpper != 1260 {
		t.Fatalf("snapshot mismatch: %+v", snap)
	}
}
