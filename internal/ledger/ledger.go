// Package ledger is the execution substrate the vaults run on: it owns token
// balances and a settlement clock, serializes every state-mutating call and
// makes each call all-or-nothing.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityVault/internal/model"
)

// Call describes the call a function runs in.
type Call struct {
	Sender    common.Address
	Timestamp uint64
	Block     uint64
}

// Snapshotter is implemented by components whose state must roll back
// together with the ledger when a call aborts.
type Snapshotter interface {
	Snapshot() any
	Restore(snapshot any)
}

// EventSink receives the events of each committed call, in commit order.
type EventSink interface {
	PutEventBatch(events []model.EventRecord) error
}

// Observer is notified about call outcomes.
type Observer interface {
	CallCommitted(events int)
	CallReverted(err error)
}

// Config holds ledger settings.
type Config struct {
	ChainID   uint64
	StartTime uint64
	Observer  Observer
}

// Ledger is safe for concurrent use. Calls are serialized; views run in
// parallel with each other but never with a call.
type Ledger struct {
	mu       sync.RWMutex
	chainID  uint64
	now      uint64
	block    uint64
	tokens   map[common.Address]model.TokenMeta
	balances map[common.Address]map[common.Address]*uint256.Int
	allow    map[common.Address]map[allowanceKey]*uint256.Int

	participants []Snapshotter
	sinks        []EventSink
	observer     Observer
	logger       *zap.Logger
}

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

type txKey struct{}

type txState struct {
	ledger   *Ledger
	call     Call
	events   *[]model.EventRecord
	readOnly bool
}

type snapshot struct {
	balances     map[common.Address]map[common.Address]*uint256.Int
	allow        map[common.Address]map[allowanceKey]*uint256.Int
	tokens       map[common.Address]model.TokenMeta
	participants int
	states       []any
}

// New builds an empty ledger.
func New(cfg Config, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		chainID:  cfg.ChainID,
		now:      cfg.StartTime,
		tokens:   make(map[common.Address]model.TokenMeta),
		balances: make(map[common.Address]map[common.Address]*uint256.Int),
		allow:    make(map[common.Address]map[allowanceKey]*uint256.Int),
		observer: cfg.Observer,
		logger:   logger,
	}
}

// ChainID returns the chain id stamped on emitted events.
func (l *Ledger) ChainID() uint64 {
	return l.chainID
}

// Now returns the settlement time the next call will observe.
func (l *Ledger) Now() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.now
}

// Timestamp returns the settlement time of the call in ctx, or the clock
// when ctx carries no call.
func (l *Ledger) Timestamp(ctx context.Context) uint64 {
	if tx := l.txFrom(ctx); tx != nil {
		return tx.call.Timestamp
	}
	return l.Now()
}

// BlockNumber returns the number of committed calls.
func (l *Ledger) BlockNumber() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.block
}

// Advance moves the clock forward.
func (l *Ledger) Advance(seconds uint64) {
	l.mu.Lock()
	l.now += seconds
	l.mu.Unlock()
}

// SetTime moves the clock to ts. The clock never goes backwards.
func (l *Ledger) SetTime(ts uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ts < l.now {
		return fmt.Errorf("set time %d: clock already at %d", ts, l.now)
	}
	l.now = ts
	return nil
}

// AddSink registers an event sink.
func (l *Ledger) AddSink(sink EventSink) {
	if sink == nil {
		return
	}
	l.mu.Lock()
	l.sinks = append(l.sinks, sink)
	l.mu.Unlock()
}

// Register adds a participant to the rollback set. Registration made during
// a call is itself undone if that call aborts.
func (l *Ledger) Register(ctx context.Context, participant Snapshotter) {
	if tx := l.txFrom(ctx); tx != nil {
		l.participants = append(l.participants, participant)
		return
	}
	l.mu.Lock()
	l.participants = append(l.participants, participant)
	l.mu.Unlock()
}

// CallFrom returns the call ctx runs in.
func CallFrom(ctx context.Context) (Call, bool) {
	tx, ok := ctx.Value(txKey{}).(*txState)
	if !ok {
		return Call{}, false
	}
	return tx.call, true
}

// Execute runs fn as one atomic call made by sender. When ctx already
// carries a call on this ledger, fn joins it with sender as the new caller
// and only the outermost call commits or rolls back.
func (l *Ledger) Execute(ctx context.Context, sender common.Address, fn func(ctx context.Context, call Call) error) error {
	if tx := l.txFrom(ctx); tx != nil {
		if tx.readOnly {
			return ErrReadOnly
		}
		inner := *tx
		inner.call.Sender = sender
		return fn(context.WithValue(ctx, txKey{}, &inner), inner.call)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	snap := l.snapshot()
	events := make([]model.EventRecord, 0, 8)
	tx := &txState{
		ledger: l,
		call:   Call{Sender: sender, Timestamp: l.now, Block: l.block + 1},
		events: &events,
	}

	defer func() {
		if r := recover(); r != nil {
			l.restore(snap)
			panic(r)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx), tx.call); err != nil {
		l.restore(snap)
		if l.observer != nil {
			l.observer.CallReverted(err)
		}
		l.logger.Debug("call reverted",
			zap.String("sender", sender.Hex()),
			zap.Uint64("ts", tx.call.Timestamp),
			zap.Error(err),
		)
		return err
	}

	l.block++
	if l.observer != nil {
		l.observer.CallCommitted(len(events))
	}
	l.deliver(events)
	return nil
}

// View runs fn against a consistent state without allowing writes.
func (l *Ledger) View(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx := l.txFrom(ctx); tx != nil {
		return fn(ctx)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	tx := &txState{
		ledger:   l,
		call:     Call{Timestamp: l.now, Block: l.block},
		readOnly: true,
	}
	return fn(context.WithValue(ctx, txKey{}, tx))
}

func (l *Ledger) txFrom(ctx context.Context) *txState {
	tx, ok := ctx.Value(txKey{}).(*txState)
	if !ok || tx.ledger != l {
		return nil
	}
	return tx
}

func (l *Ledger) snapshot() snapshot {
	snap := snapshot{
		balances:     cloneBalances(l.balances),
		allow:        cloneAllowances(l.allow),
		tokens:       make(map[common.Address]model.TokenMeta, len(l.tokens)),
		participants: len(l.participants),
		states:       make([]any, len(l.participants)),
	}
	for addr, meta := range l.tokens {
		snap.tokens[addr] = meta
	}
	for i, p := range l.participants {
		snap.states[i] = p.Snapshot()
	}
	return snap
}

func (l *Ledger) restore(snap snapshot) {
	l.balances = snap.balances
	l.allow = snap.allow
	l.tokens = snap.tokens
	l.participants = l.participants[:snap.participants]
	for i, p := range l.participants {
		p.Restore(snap.states[i])
	}
}

func (l *Ledger) deliver(events []model.EventRecord) {
	if len(events) == 0 {
		return
	}
	for _, sink := range l.sinks {
		if err := sink.PutEventBatch(events); err != nil {
			l.logger.Warn("deliver events", zap.Int("events", len(events)), zap.Error(err))
		}
	}
}
