// Package keeper drives scheduled rebalances over every vault of a factory.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"liquidityVault/internal/factory"
	"liquidityVault/internal/ledger"
	"liquidityVault/internal/model"
	"liquidityVault/internal/observability"
	"liquidityVault/internal/retry"
	"liquidityVault/internal/storage"
)

// Vault is the part of a vault the keeper drives.
type Vault interface {
	Address() common.Address
	Token0() common.Address
	Token1() common.Address
	Rebalance(ctx context.Context, sender common.Address) error
	Describe(ctx context.Context) (model.VaultSnapshot, error)
}

// Source lists the vaults to visit on each pass.
type Source func(ctx context.Context) []Vault

// FactorySource visits every vault the factory has created.
func FactorySource(f *factory.Factory) Source {
	return func(ctx context.Context) []Vault {
		vaults := f.Vaults(ctx)
		out := make([]Vault, 0, len(vaults))
		for _, v := range vaults {
			out = append(out, v)
		}
		return out
	}
}

// TokenLookup resolves token metadata for display-unit gauges.
type TokenLookup interface {
	Token(ctx context.Context, token common.Address) (model.TokenMeta, bool)
}

type Config struct {
	Schedule          string
	Sender            common.Address
	Workers           int
	QueueSize         int
	MaxRetries        int
	RetryBaseDelay    time.Duration
	RunTimeout        time.Duration
	CheckpointPath    string
	CheckpointEnabled bool
}

// Status is the keeper's view of one vault.
type Status struct {
	Attempts      uint64
	Successes     uint64
	Skipped       uint64
	Failures      uint64
	LastAttempt   time.Time
	LastSuccess   time.Time
	LastTag       string
	LastTick      int32
	LastTimestamp uint64
}

// Summary counts the outcomes of one pass.
type Summary struct {
	Vaults    int
	Rebalance int
	Skipped   int
	Failed    int
}

type Keeper struct {
	cfg         Config
	source      Source
	tokens      TokenLookup
	metrics     *observability.Metrics
	snapshots   storage.SnapshotStore
	checkpoints *CheckpointStore
	pool        pond.Pool
	status      *xsync.Map[common.Address, Status]
	scheduler   *cron.Cron
	logger      *zap.Logger

	mu       sync.Mutex
	progress map[string]VaultCheckpoint
}

// Option customises optional collaborators.
type Option func(*Keeper)

func WithMetrics(m *observability.Metrics) Option {
	return func(k *Keeper) { k.metrics = m }
}

func WithSnapshotStore(s storage.SnapshotStore) Option {
	return func(k *Keeper) { k.snapshots = s }
}

func WithTokens(t TokenLookup) Option {
	return func(k *Keeper) { k.tokens = t }
}

func New(cfg Config, source Source, logger *zap.Logger, opts ...Option) (*Keeper, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if source == nil {
		return nil, fmt.Errorf("keeper source is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize < cfg.Workers {
		cfg.QueueSize = cfg.Workers * 4
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 30 * time.Second
	}

	k := &Keeper{
		cfg:         cfg,
		source:      source,
		checkpoints: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
		pool:        pond.NewPool(cfg.Workers, pond.WithQueueSize(cfg.QueueSize)),
		status:      xsync.NewMap[common.Address, Status](),
		logger:      logger,
		progress:    make(map[string]VaultCheckpoint),
	}
	for _, opt := range opts {
		opt(k)
	}

	cp, ok, err := k.checkpoints.Load()
	if err != nil {
		return nil, err
	}
	if ok {
		k.progress = cp.Vaults
		logger.Info("loaded keeper checkpoint", zap.Int("vaults", len(cp.Vaults)), zap.String("updated_at", cp.UpdatedAt))
	}
	return k, nil
}

// Status returns the tracked status of vault.
func (k *Keeper) Status(vault common.Address) (Status, bool) {
	return k.status.Load(vault)
}

// Progress returns a copy of the checkpointed progress.
func (k *Keeper) Progress() map[string]VaultCheckpoint {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make(map[string]VaultCheckpoint, len(k.progress))
	for addr, cp := range k.progress {
		out[addr] = cp
	}
	return out
}

// Run schedules RunOnce and blocks until ctx is done.
func (k *Keeper) Run(ctx context.Context) error {
	if k.cfg.Schedule == "" {
		return fmt.Errorf("keeper schedule is required")
	}
	k.scheduler = newScheduler(k.logger)
	_, err := k.scheduler.AddFunc(k.cfg.Schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, k.cfg.RunTimeout)
		defer cancel()
		if _, err := k.RunOnce(runCtx); err != nil {
			k.logger.Warn("keeper pass failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule keeper: %w", err)
	}

	k.scheduler.Start()
	k.logger.Info("keeper started", zap.String("schedule", k.cfg.Schedule), zap.Int("workers", k.cfg.Workers))

	<-ctx.Done()
	<-k.scheduler.Stop().Done()
	k.logger.Info("keeper stopped")
	return nil
}

// Close stops the worker pool after queued tasks finish.
func (k *Keeper) Close() {
	k.pool.StopAndWait()
}

// RunOnce visits every vault once. Per-vault outcomes are recorded in the
// status map and metrics; only infrastructure errors are returned.
func (k *Keeper) RunOnce(ctx context.Context) (Summary, error) {
	start := time.Now()
	vaults := k.source(ctx)

	var (
		mu      sync.Mutex
		summary = Summary{Vaults: len(vaults)}
	)

	group := k.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for _, v := range vaults {
		v := v
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			result := k.visit(groupCtx, v)
			mu.Lock()
			switch result {
			case observability.ResultOK:
				summary.Rebalance++
			case observability.ResultSkipped:
				summary.Skipped++
			default:
				summary.Failed++
			}
			mu.Unlock()
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		return summary, fmt.Errorf("wait rebalance group: %w", err)
	}

	if summary.Rebalance > 0 {
		if err := k.checkpoints.Save(k.Progress()); err != nil {
			return summary, err
		}
	}

	if k.metrics != nil {
		k.metrics.KeeperRunDuration.Observe(time.Since(start).Seconds())
		k.metrics.KeeperVaultsTracked.Set(float64(len(vaults)))
	}
	k.logger.Debug("keeper pass done",
		zap.Int("vaults", summary.Vaults),
		zap.Int("rebalanced", summary.Rebalance),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return summary, ctx.Err()
}

func (k *Keeper) visit(ctx context.Context, v Vault) string {
	addr := v.Address()
	now := time.Now()

	err := retry.Do(ctx, k.cfg.MaxRetries, k.cfg.RetryBaseDelay, retryable, func(ctx context.Context) error {
		return v.Rebalance(ctx, k.cfg.Sender)
	})

	result := classify(err)
	tag := ledger.TagOf(err)
	if err != nil && tag == "" {
		tag = err.Error()
	}

	var snap model.VaultSnapshot
	if result == observability.ResultOK {
		var derr error
		snap, derr = v.Describe(ctx)
		if derr != nil {
			k.logger.Warn("describe vault failed", zap.String("vault", addr.Hex()), zap.Error(derr))
		}
		k.recordSuccess(ctx, v, snap, derr == nil)
	}

	k.status.Compute(addr, func(st Status, _ bool) (Status, xsync.ComputeOp) {
		st.Attempts++
		st.LastAttempt = now
		st.LastTag = tag
		switch result {
		case observability.ResultOK:
			st.Successes++
			st.LastSuccess = now
			st.LastTick = snap.LastTick
			st.LastTimestamp = snap.LastTimestamp
		case observability.ResultSkipped:
			st.Skipped++
		default:
			st.Failures++
		}
		return st, xsync.UpdateOp
	})
	if k.metrics != nil {
		k.metrics.RecordRebalance(addr.Hex(), result)
	}

	switch result {
	case observability.ResultOK:
		k.logger.Info("vault rebalanced",
			zap.String("vault", addr.Hex()),
			zap.Int32("tick", snap.LastTick),
			zap.String("total0", snap.Total0),
			zap.String("total1", snap.Total1),
		)
	case observability.ResultSkipped:
		k.logger.Debug("rebalance not due", zap.String("vault", addr.Hex()), zap.String("tag", tag))
	default:
		k.logger.Warn("rebalance failed", zap.String("vault", addr.Hex()), zap.String("tag", tag), zap.Error(err))
	}
	return result
}

func (k *Keeper) recordSuccess(ctx context.Context, v Vault, snap model.VaultSnapshot, described bool) {
	addr := v.Address().Hex()

	k.mu.Lock()
	cp := k.progress[addr]
	cp.Rebalances++
	if described {
		cp.LastTick = snap.LastTick
		cp.LastTimestamp = snap.LastTimestamp
	}
	k.progress[addr] = cp
	k.mu.Unlock()

	if !described {
		return
	}
	if k.snapshots != nil {
		if err := k.snapshots.PutSnapshots([]model.VaultSnapshot{snap}); err != nil {
			k.logger.Warn("store vault snapshot failed", zap.String("vault", addr), zap.Error(err))
		}
	}
	if k.metrics != nil {
		k.metrics.RecordRebalanceSuccess(addr, snap.LastTimestamp)
		k.updateGauges(ctx, v, snap)
	}
}

func (k *Keeper) updateGauges(ctx context.Context, v Vault, snap model.VaultSnapshot) {
	meta0 := k.tokenMeta(ctx, v.Token0())
	meta1 := k.tokenMeta(ctx, v.Token1())
	k.metrics.SetVaultTotals(
		v.Address().Hex(),
		meta0.Symbol,
		meta1.Symbol,
		displayAmount(snap.Total0, meta0.Decimals),
		displayAmount(snap.Total1, meta1.Decimals),
		displayAmount(snap.TotalSupply, 18),
	)
}

func (k *Keeper) tokenMeta(ctx context.Context, token common.Address) model.TokenMeta {
	if k.tokens != nil {
		if meta, ok := k.tokens.Token(ctx, token); ok {
			if meta.Symbol == "" {
				meta.Symbol = token.Hex()
			}
			return meta
		}
	}
	return model.TokenMeta{Address: token.Hex(), Symbol: token.Hex()}
}

func displayAmount(raw string, decimals uint8) float64 {
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return 0
	}
	f, _ := decimal.NewFromBigInt(amount, -int32(decimals)).Float64()
	return f
}

// classify maps a rebalance outcome to a metrics result. Gating failures
// mean the vault is not due yet.
func classify(err error) string {
	if err == nil {
		return observability.ResultOK
	}
	if kind, ok := ledger.KindOf(err); ok && kind == ledger.KindGating {
		return observability.ResultSkipped
	}
	return observability.ResultFailed
}

// retryable rejects failures that a repeat of the same call cannot fix.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	kind, ok := ledger.KindOf(err)
	if !ok {
		return true
	}
	switch kind {
	case ledger.KindGating, ledger.KindValidation, ledger.KindAuthorization:
		return false
	default:
		return true
	}
}
