package storage

import "liquidityVault/internal/model"

// Storage defines a sink for committed vault events.
type Storage interface {
	PutEventBatch(events []model.EventRecord) error
}

// SnapshotStore persists vault snapshots.
type SnapshotStore interface {
	PutSnapshots(snapshots []model.VaultSnapshot) error
}
