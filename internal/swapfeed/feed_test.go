package swapfeed

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"liquidityVault/internal/dex"
	"liquidityVault/internal/model"
	"liquidityVault/internal/storage"
)

var poolAddr = common.HexToAddress("0x88e6a0c2ddd26feeb64f039a2c41296fcb3f5640")

type fakeSource struct {
	latest      uint64
	logs        []types.Log
	filterCalls [][2]uint64
	failFilter  int
}

func (s *fakeSource) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (s *fakeSource) GetChainID(context.Context) (*big.Int, error) { return big.NewInt(1), nil }

func (s *fakeSource) LatestBlockNumber(context.Context) (uint64, error) { return s.latest, nil }

func (s *fakeSource) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	return 1_700_000_000 + number*12, nil
}

func (s *fakeSource) FilterLogs(_ context.Context, from, to uint64, _ []common.Address, _ []common.Hash) ([]types.Log, error) {
	if s.failFilter > 0 {
		s.failFilter--
		return nil, errors.New("429 too many requests")
	}
	s.filterCalls = append(s.filterCalls, [2]uint64{from, to})
	var out []types.Log
	for _, l := range s.logs {
		if l.BlockNumber >= from && l.BlockNumber <= to {
			out = append(out, l)
		}
	}
	return out, nil
}

type memorySink struct {
	events []model.EventRecord
}

func (m *memorySink) PutEventBatch(events []model.EventRecord) error {
	m.events = append(m.events, events...)
	return nil
}

func swapLog(t *testing.T, block uint64, index uint, amount0, amount1 int64) types.Log {
	t.Helper()
	poolABI, err := dex.V3PoolABI()
	require.NoError(t, err)
	data, err := poolABI.Events["Swap"].Inputs.NonIndexed().Pack(
		big.NewInt(amount0),
		big.NewInt(amount1),
		new(big.Int).Lsh(big.NewInt(1), 96),
		big.NewInt(1_000_000),
		big.NewInt(0),
	)
	require.NoError(t, err)
	router := common.BytesToHash(common.LeftPadBytes(common.HexToAddress("0xe592").Bytes(), 32))
	return types.Log{
		Address:     poolAddr,
		Topics:      []common.Hash{poolABI.Events["Swap"].ID, router, router},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(block))),
		Index:       index,
	}
}

func TestFeedWritesSwapsAndResumes(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{
		latest: 110,
		logs: []types.Log{
			swapLog(t, 101, 0, 1_000, -500),
			swapLog(t, 101, 0, 1_000, -500),
			swapLog(t, 104, 3, -2_000, 900),
			{Address: poolAddr, BlockNumber: 105, Topics: []common.Hash{common.HexToHash("0xdead")}},
		},
		failFilter: 1,
	}
	sink := &memorySink{}
	progress := &storage.FileProgress{Path: filepath.Join(t.TempDir(), "swaps.state.json")}
	cfg := Config{FromBlock: 100, ToBlock: 105, Pools: []common.Address{poolAddr}, BatchSize: 3, MaxRetries: 2}

	n, err := New(cfg, src, sink, progress, nil).Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, [][2]uint64{{100, 102}, {103, 105}}, src.filterCalls)

	require.Len(t, sink.events, 2)
	first := sink.events[0]
	require.Equal(t, model.EventSwap, first.EventName)
	require.Equal(t, uint64(101), first.BlockNumber)
	require.Equal(t, uint64(1_700_000_000+101*12), first.Timestamp)
	require.Equal(t, poolAddr.Hex(), first.Address)

	var swap model.SwapEventData
	require.NoError(t, json.Unmarshal(sink.events[1].Decoded, &swap))
	require.Equal(t, "-2000", swap.Amount0)
	require.Equal(t, "900", swap.Amount1)

	last, ok, err := progress.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(105), last)

	cfg.ToBlock = 0
	src.filterCalls = nil
	n, err = New(cfg, src, sink, progress, nil).Run(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, [][2]uint64{{106, 108}, {109, 110}}, src.filterCalls)
}

func TestFeedValidatesConfig(t *testing.T) {
	_, err := New(Config{BatchSize: 10}, &fakeSource{}, &memorySink{}, nil, nil).Run(context.Background())
	require.Error(t, err)

	_, err = New(Config{Pools: []common.Address{poolAddr}}, &fakeSource{}, &memorySink{}, nil, nil).Run(context.Background())
	require.Error(t, err)
}

func TestFeedWritesJsonl(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swaps.jsonl")
	src := &fakeSource{latest: 10, logs: []types.Log{swapLog(t, 7, 1, 5, -4)}}
	cfg := Config{FromBlock: 1, Pools: []common.Address{poolAddr}, BatchSize: 100}

	_, err := New(cfg, src, storage.NewJsonlStorage(path), nil, nil).Run(context.Background())
	require.NoError(t, err)

	events, err := storage.ReadEvents(path)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, uint64(1), events[0].LogIndex)
}
