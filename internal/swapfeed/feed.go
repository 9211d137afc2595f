// Package swapfeed pulls pool Swap logs from a node into an event sink so they
// can be replayed against simulated vaults.
package swapfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"liquidityVault/internal/dex"
	"liquidityVault/internal/model"
	"liquidityVault/internal/retry"
	"liquidityVault/internal/storage"
)

// Source is the node surface the feed reads from. *chain.Client satisfies it.
type Source interface {
	dex.Caller
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// Config holds runtime settings for the feed.
type Config struct {
	FromBlock    uint64
	ToBlock      uint64
	Pools        []common.Address
	BatchSize    uint64
	MaxRetries   int
	RetryBackoff time.Duration
	WithPoolMeta bool
}

// Feed streams Swap logs block range by block range.
type Feed struct {
	cfg      Config
	source   Source
	sink     storage.Storage
	progress storage.ProgressStore
	logger   *zap.Logger
	seen     map[string]struct{}
	meta     *xsync.Map[common.Address, model.PoolMeta]
}

// New builds a Feed. progress may be nil.
func New(cfg Config, source Source, sink storage.Storage, progress storage.ProgressStore, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{
		cfg:      cfg,
		source:   source,
		sink:     sink,
		progress: progress,
		logger:   logger,
		seen:     make(map[string]struct{}),
		meta:     xsync.NewMap[common.Address, model.PoolMeta](),
	}
}

// Run fetches every batch in the configured range and returns the number of
// swaps written.
func (f *Feed) Run(ctx context.Context) (int, error) {
	if f.source == nil {
		return 0, fmt.Errorf("chain client is nil")
	}
	if f.sink == nil {
		return 0, fmt.Errorf("storage is nil")
	}
	if f.cfg.BatchSize == 0 {
		return 0, fmt.Errorf("batch size must be greater than zero")
	}
	if len(f.cfg.Pools) == 0 {
		return 0, fmt.Errorf("at least one pool is required")
	}

	topic, err := dex.SwapTopic()
	if err != nil {
		return 0, fmt.Errorf("swap topic: %w", err)
	}

	chainID, err := f.source.GetChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return 0, fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}

	from, to := f.cfg.FromBlock, f.cfg.ToBlock
	if to == 0 {
		latest, err := f.source.LatestBlockNumber(ctx)
		if err != nil {
			return 0, fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}

	if f.progress != nil {
		last, ok, err := f.progress.Load(ctx)
		if err != nil {
			return 0, err
		}
		if ok && last >= from {
			from = last + 1
			f.logger.Info("resume from checkpoint", zap.Uint64("last_processed", last), zap.Uint64("from", from))
		}
	}

	if from > to {
		f.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		return 0, nil
	}

	ranges, err := SplitRange(from, to, f.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, blockRange := range ranges {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		logs, err := f.filterLogs(ctx, blockRange, topic)
		if err != nil {
			return total, fmt.Errorf("filter logs: %w", err)
		}

		records := make([]model.EventRecord, 0, len(logs))
		for _, log := range logs {
			if log.Removed || f.isDuplicate(log) {
				continue
			}
			rec, ok, err := f.record(ctx, chainID.Uint64(), log)
			if err != nil {
				return total, err
			}
			if ok {
				records = append(records, rec)
			}
		}

		if err := f.sink.PutEventBatch(records); err != nil {
			return total, fmt.Errorf("store swaps: %w", err)
		}
		total += len(records)

		if f.progress != nil {
			if err := f.progress.Save(ctx, blockRange.To); err != nil {
				return total, err
			}
		}

		f.logger.Info("batch complete", zap.Int("swaps", len(records)), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
	}

	return total, nil
}

func (f *Feed) record(ctx context.Context, chainID uint64, log types.Log) (model.EventRecord, bool, error) {
	swap, err := dex.DecodeSwap(log)
	if err != nil {
		f.logger.Warn("skip undecodable swap", zap.String("tx", log.TxHash.Hex()), zap.Uint("log_index", log.Index), zap.Error(err))
		return model.EventRecord{}, false, nil
	}
	decoded, err := json.Marshal(swap)
	if err != nil {
		return model.EventRecord{}, false, fmt.Errorf("marshal swap: %w", err)
	}

	var ts uint64
	err = retry.Do(ctx, f.cfg.MaxRetries, f.cfg.RetryBackoff, nil, func(ctx context.Context) error {
		var err error
		ts, err = f.source.BlockTimestamp(ctx, log.BlockNumber)
		if err != nil {
			f.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", log.BlockNumber))
		}
		return err
	})
	if err != nil {
		return model.EventRecord{}, false, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
	}

	rec := model.EventRecord{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		TxIndex:     uint64(log.TxIndex),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Sender:      swap.Sender,
		EventName:   model.EventSwap,
		Timestamp:   ts,
		Decoded:     decoded,
	}
	if f.cfg.WithPoolMeta {
		meta, err := f.poolMeta(ctx, log.Address)
		if err != nil {
			f.logger.Warn("pool meta fetch failed", zap.String("pool", log.Address.Hex()), zap.Error(err))
		} else {
			rec.PoolMeta = &meta
		}
	}
	return rec, true, nil
}

func (f *Feed) poolMeta(ctx context.Context, pool common.Address) (model.PoolMeta, error) {
	if meta, ok := f.meta.Load(pool); ok {
		return meta, nil
	}
	meta, err := dex.FetchPoolMeta(ctx, f.source, pool, nil)
	if err != nil {
		return model.PoolMeta{}, err
	}
	f.meta.Store(pool, meta)
	return meta, nil
}

func (f *Feed) filterLogs(ctx context.Context, r BlockRange, topic common.Hash) ([]types.Log, error) {
	f.logger.Debug("fetch logs", zap.Uint64("from", r.From), zap.Uint64("to", r.To))
	var logs []types.Log
	err := retry.Do(ctx, f.cfg.MaxRetries, f.cfg.RetryBackoff, nil, func(ctx context.Context) error {
		var err error
		logs, err = f.source.FilterLogs(ctx, r.From, r.To, f.cfg.Pools, []common.Hash{topic})
		if err != nil {
			f.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", r.From), zap.Uint64("to", r.To))
		}
		return err
	})
	return logs, err
}

func (f *Feed) isDuplicate(log types.Log) bool {
	id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
	if _, ok := f.seen[id]; ok {
		return true
	}
	f.seen[id] = struct{}{}
	return false
}
