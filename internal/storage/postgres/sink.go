package postgres

import (
	"context"
	"time"

	"liquidityVault/internal/model"
)

const defaultSinkTimeout = 10 * time.Second

// Sink adapts a Store to the synchronous event and snapshot sink interfaces.
type Sink struct {
	store   *Store
	timeout time.Duration
}

// NewSink wraps store. Each batch gets its own timeout.
func NewSink(store *Store, timeout time.Duration) *Sink {
	if timeout <= 0 {
		timeout = defaultSinkTimeout
	}
	return &Sink{store: store, timeout: timeout}
}

func (s *Sink) PutEventBatch(events []model.EventRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.store.InsertEvents(ctx, events)
}

func (s *Sink) PutSnapshots(snapshots []model.VaultSnapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.store.UpsertSnapshots(ctx, snapshots)
}
