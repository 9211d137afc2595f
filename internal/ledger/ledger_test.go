package ledger

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"liquidityVault/internal/model"
)

var (
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice  = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob    = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

type memorySink struct {
	events []model.EventRecord
}

func (m *memorySink) PutEventBatch(events []model.EventRecord) error {
	m.events = append(m.events, events...)
	return nil
}

type counter struct {
	value int
}

func (c *counter) Snapshot() any        { return c.value }
func (c *counter) Restore(snapshot any) { c.value = snapshot.(int) }

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l := New(Config{ChainID: 1337, StartTime: 1_700_000_000}, nil)
	require.NoError(t, l.RegisterToken(context.Background(), model.TokenMeta{Address: tokenA.Hex(), Symbol: "A", Decimals: 18}))
	return l
}

func TestTransferMovesBalance(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	require.NoError(t, l.Mint(ctx, tokenA, alice, big.NewInt(100)))

	require.NoError(t, l.Transfer(ctx, tokenA, alice, bob, big.NewInt(40)))
	require.Equal(t, int64(60), l.BalanceOf(ctx, tokenA, alice).Int64())
	require.Equal(t, int64(40), l.BalanceOf(ctx, tokenA, bob).Int64())

	err := l.Transfer(ctx, tokenA, alice, bob, big.NewInt(61))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.Equal(t, "transfer amount exceeds balance", err.Error())
}

func TestExecuteRollsBackEverything(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	sink := &memorySink{}
	l.AddSink(sink)
	c := &counter{value: 1}
	l.Register(ctx, c)

	block := l.BlockNumber()
	boom := Fail(KindValidation, "boom")
	err := l.Execute(ctx, alice, func(ctx context.Context, call Call) error {
		require.Equal(t, alice, call.Sender)
		c.value = 7
		if err := l.Mint(ctx, tokenA, alice, big.NewInt(5)); err != nil {
			return err
		}
		if err := l.Emit(ctx, tokenA, "Touched", map[string]string{"k": "v"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, c.value)
	require.Zero(t, l.BalanceOf(ctx, tokenA, alice).Sign())
	require.Empty(t, sink.events)
	require.Equal(t, block, l.BlockNumber())
}

func TestNestedCallsJoinOuterCall(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	sink := &memorySink{}
	l.AddSink(sink)

	block := l.BlockNumber()
	err := l.Execute(ctx, alice, func(ctx context.Context, outer Call) error {
		return l.Execute(ctx, bob, func(ctx context.Context, inner Call) error {
			require.Equal(t, bob, inner.Sender)
			require.Equal(t, outer.Timestamp, inner.Timestamp)
			require.Equal(t, outer.Block, inner.Block)
			if err := l.Emit(ctx, tokenA, "First", struct{}{}); err != nil {
				return err
			}
			return l.Emit(ctx, tokenA, "Second", struct{}{})
		})
	})
	require.NoError(t, err)
	require.Len(t, sink.events, 2)
	require.Equal(t, uint64(0), sink.events[0].LogIndex)
	require.Equal(t, uint64(1), sink.events[1].LogIndex)
	require.Equal(t, bob.Hex(), sink.events[1].Sender)
	require.Equal(t, block+1, l.BlockNumber())
}

func TestViewIsReadOnly(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	err := l.View(ctx, func(ctx context.Context) error {
		return l.Mint(ctx, tokenA, alice, big.NewInt(1))
	})
	require.True(t, errors.Is(err, ErrReadOnly))
}

func TestAllowance(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	require.NoError(t, l.Mint(ctx, tokenA, alice, big.NewInt(100)))

	err := l.TransferFrom(ctx, tokenA, bob, alice, bob, big.NewInt(1))
	require.ErrorIs(t, err, ErrInsufficientAllowance)

	require.NoError(t, l.Approve(ctx, tokenA, alice, bob, big.NewInt(30)))
	require.NoError(t, l.TransferFrom(ctx, tokenA, bob, alice, bob, big.NewInt(10)))
	require.Equal(t, int64(20), l.Allowance(ctx, tokenA, alice, bob).Int64())

	require.NoError(t, l.ApproveMax(ctx, tokenA, alice, bob))
	require.NoError(t, l.TransferFrom(ctx, tokenA, bob, alice, bob, big.NewInt(50)))
	require.Equal(t, 0, l.Allowance(ctx, tokenA, alice, bob).Cmp(maxUint256.ToBig()))
	require.Equal(t, int64(60), l.BalanceOf(ctx, tokenA, bob).Int64())
}

func TestClock(t *testing.T) {
	l := newTestLedger(t)
	l.Advance(60)
	require.Equal(t, uint64(1_700_000_060), l.Now())
	require.Error(t, l.SetTime(1))
	require.NoError(t, l.SetTime(1_700_000_100))
	require.Equal(t, uint64(1_700_000_100), l.Now())
}

func TestFailureClassification(t *testing.T) {
	gate := Fail(KindGating, "PE")
	require.True(t, IsTransient(gate))
	require.True(t, IsTransient(Fail(KindCapacity, "maxTotalSupply")))
	require.False(t, IsTransient(Fail(KindAuthorization, "manager")))
	require.False(t, IsTransient(errors.New("PE")))
	require.Equal(t, "PE", TagOf(gate))
	require.ErrorIs(t, Fail(KindGating, "PE"), gate)
}
