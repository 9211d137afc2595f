// Package aggregate buckets vault CollectFees and Snapshot events into fixed
// windows and upserts fee metrics.
package aggregate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityVault/internal/model"
	"liquidityVault/internal/storage"
)

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	RecomputeFrom uint64
	Progress      storage.ProgressStore
}

// MetricsStore receives finished windows. *postgres.Store satisfies it.
type MetricsStore interface {
	UpsertWindowMetrics(ctx context.Context, metrics []model.VaultWindowMetrics) error
}

// Summary counts what a run did with the input lines.
type Summary struct {
	Total   int
	Windows int
	Ignored int
	Skipped int
	Failed  int
}

// Aggregator aggregates vault events into window metrics.
type Aggregator struct {
	cfg          Config
	store        MetricsStore
	tokens       TokenResolver
	totals       TotalsReader
	logger       *zap.Logger
	accumulators map[string]*Accumulator
	lastTS       uint64
}

// NewAggregator builds an Aggregator. totals may be nil, in which case
// windows without a Snapshot have no TVL.
func NewAggregator(cfg Config, store MetricsStore, tokens TokenResolver, totals TotalsReader, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		cfg:          cfg,
		store:        store,
		tokens:       tokens,
		totals:       totals,
		logger:       logger,
		accumulators: make(map[string]*Accumulator),
	}
}

// Run aggregates an event JSONL file. Events at or before the stored
// progress timestamp are skipped unless RecomputeFrom is set.
func (a *Aggregator) Run(ctx context.Context, inputPath string) (Summary, error) {
	var sum Summary
	if a.store == nil {
		return sum, fmt.Errorf("store is nil")
	}
	if a.tokens == nil {
		return sum, fmt.Errorf("token resolver is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return sum, fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return sum, err
	}
	a.lastTS = startTs

	file, err := os.Open(inputPath)
	if err != nil {
		return sum, fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	batch := make([]model.VaultWindowMetrics, 0, a.cfg.BatchSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		sum.Total++

		var record model.EventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			sum.Failed++
			a.logger.Warn("decode event", zap.Error(err))
			continue
		}
		if record.EventName != model.EventCollectFees && record.EventName != model.EventSnapshot {
			sum.Ignored++
			continue
		}
		if record.Timestamp <= startTs {
			sum.Skipped++
			continue
		}

		start := windowStart(record.Timestamp, a.cfg.WindowSeconds)
		key := vaultKey(record.Address)
		acc := a.accumulators[key]
		if acc != nil && acc.WindowStart != start {
			batch = append(batch, a.flushAccumulator(ctx, acc))
			acc = nil
		}
		if acc == nil {
			acc = NewAccumulator(record, start, start+a.cfg.WindowSeconds)
			a.accumulators[key] = acc
		}

		if err := acc.AddEvent(record); err != nil {
			sum.Failed++
			a.logger.Warn("aggregate event", zap.Error(err), zap.String("vault", record.Address), zap.String("event", record.EventName))
			continue
		}
		if record.Timestamp > a.lastTS {
			a.lastTS = record.Timestamp
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.store.UpsertWindowMetrics(ctx, batch); err != nil {
				return sum, fmt.Errorf("upsert window metrics: %w", err)
			}
			sum.Windows += len(batch)
			batch = batch[:0]
			if err := a.saveState(ctx); err != nil {
				return sum, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return sum, fmt.Errorf("scan input: %w", err)
	}

	for _, acc := range a.accumulators {
		batch = append(batch, a.flushAccumulator(ctx, acc))
	}
	a.accumulators = make(map[string]*Accumulator)

	if len(batch) > 0 {
		if err := a.store.UpsertWindowMetrics(ctx, batch); err != nil {
			return sum, fmt.Errorf("upsert window metrics: %w", err)
		}
		sum.Windows += len(batch)
	}
	if err := a.saveState(ctx); err != nil {
		return sum, err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", sum.Total),
		zap.Int("windows", sum.Windows),
		zap.Int("ignored", sum.Ignored),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.Progress == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.Progress.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load progress: %w", err)
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

// saveState stores the last timestamp that cannot change any window still
// open in memory.
func (a *Aggregator) saveState(ctx context.Context) error {
	if a.cfg.Progress == nil {
		return nil
	}
	safe := a.lastTS
	if open := minOpenWindowStart(a.accumulators); open > 0 && open-1 < safe {
		safe = open - 1
	}
	return a.cfg.Progress.Save(ctx, safe)
}

func (a *Aggregator) flushAccumulator(ctx context.Context, acc *Accumulator) model.VaultWindowMetrics {
	var decimals0, decimals1 uint8
	if common.IsHexAddress(acc.Vault) {
		token0, token1, err := a.tokens.Tokens(ctx, common.HexToAddress(acc.Vault))
		if err != nil {
			a.logger.Warn("vault tokens", zap.String("vault", acc.Vault), zap.Error(err))
		}
		decimals0, decimals1 = token0.Decimals, token1.Decimals
	}

	tvl0, tvl1, method := a.tvl(ctx, acc)
	feeRate0, feeRate1 := computeFeeRates(acc.Net0, acc.Net1, tvl0, tvl1)

	return model.VaultWindowMetrics{
		ChainID:        acc.ChainID,
		VaultAddress:   acc.Vault,
		WindowSizeSecs: int64(a.cfg.WindowSeconds),
		WindowStart:    time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:      time.Unix(int64(acc.WindowEnd), 0).UTC(),
		CollectCount:   acc.CollectCount,
		RebalanceCount: acc.RebalanceCount,
		Fee0:           formatTokenAmount(acc.Fee0, decimals0),
		Fee1:           formatTokenAmount(acc.Fee1, decimals1),
		ProtocolFee0:   formatTokenAmount(acc.ProtocolFee0, decimals0),
		ProtocolFee1:   formatTokenAmount(acc.ProtocolFee1, decimals1),
		ManagerFee0:    formatTokenAmount(acc.ManagerFee0, decimals0),
		ManagerFee1:    formatTokenAmount(acc.ManagerFee1, decimals1),
		TVL0:           formatOptional(tvl0, decimals0),
		TVL1:           formatOptional(tvl1, decimals1),
		FeeRate0:       feeRate0,
		FeeRate1:       feeRate1,
		APR:            computeAPR(acc, tvl0, tvl1, a.cfg.WindowSeconds),
		TVLMethod:      method,
	}
}

func (a *Aggregator) tvl(ctx context.Context, acc *Accumulator) (*big.Int, *big.Int, string) {
	if acc.HasTotals() {
		return acc.Total0, acc.Total1, tvlMethodSnapshot
	}
	if a.totals == nil || acc.LastBlock == 0 || !common.IsHexAddress(acc.Vault) {
		return nil, nil, tvlMethodNone
	}
	total0, total1, method, err := a.totals.TotalAmounts(ctx, common.HexToAddress(acc.Vault), acc.LastBlock)
	if err != nil {
		a.logger.Warn("tvl fetch failed", zap.String("vault", acc.Vault), zap.Error(err))
		return nil, nil, tvlMethodNone
	}
	return total0, total1, method
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func vaultKey(address string) string {
	return strings.ToLower(address)
}

func minOpenWindowStart(acc map[string]*Accumulator) uint64 {
	var min uint64
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if min == 0 || entry.WindowStart < min {
			min = entry.WindowStart
		}
	}
	return min
}
