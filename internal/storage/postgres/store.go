package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"liquidityVault/internal/model"
)

//go:embed schema.sql
var schema string

// Store provides Postgres persistence for vault events, snapshots and metrics.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables the store writes to.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// InsertEvents stores events. Replayed events are ignored.
func (s *Store) InsertEvents(ctx context.Context, events []model.EventRecord) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ev := range events {
		payload := ev.Decoded
		if len(payload) == 0 {
			payload = json.RawMessage(`{}`)
		}
		batch.Queue(`
			INSERT INTO vault_events (
				chain_id, vault, block_number, log_index, event_name, sender, ts, payload
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (chain_id, vault, block_number, log_index) DO NOTHING
		`,
			int64(ev.ChainID),
			ev.Address,
			int64(ev.BlockNumber),
			int64(ev.LogIndex),
			ev.EventName,
			ev.Sender,
			int64(ev.Timestamp),
			[]byte(payload),
		)
	}
	return s.sendBatch(ctx, batch, len(events))
}

// UpsertSnapshots inserts or replaces vault snapshots.
func (s *Store) UpsertSnapshots(ctx context.Context, snapshots []model.VaultSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		state, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
		batch.Queue(`
			INSERT INTO vault_snapshots (
				chain_id, vault, ts, tick, total0, total1, total_supply, state, updated_at
			) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8, now())
			ON CONFLICT (chain_id, vault, ts)
			DO UPDATE SET
				tick = EXCLUDED.tick,
				total0 = EXCLUDED.total0,
				total1 = EXCLUDED.total1,
				total_supply = EXCLUDED.total_supply,
				state = EXCLUDED.state,
				updated_at = now()
		`,
			int64(snap.ChainID),
			snap.Address,
			int64(snap.Timestamp),
			snap.LastTick,
			snap.Total0,
			snap.Total1,
			snap.TotalSupply,
			state,
		)
	}
	return s.sendBatch(ctx, batch, len(snapshots))
}

// UpsertWindowMetrics inserts or updates window metrics.
func (s *Store) UpsertWindowMetrics(ctx context.Context, metrics []model.VaultWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO vault_window_metrics (
				chain_id, vault, window_size_seconds, window_start_ts, window_end_ts,
				collect_count, rebalance_count, fee0, fee1, protocol_fee0, protocol_fee1,
				manager_fee0, manager_fee1, tvl0, tvl1, fee_rate0, fee_rate1, apr, tvl_method,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8::numeric,$9::numeric,$10::numeric,$11::numeric,
				$12::numeric,$13::numeric,$14::numeric,$15::numeric,$16::numeric,$17::numeric,$18::numeric,$19,now(),now())
			ON CONFLICT (chain_id, vault, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				collect_count = EXCLUDED.collect_count,
				rebalance_count = EXCLUDED.rebalance_count,
				fee0 = EXCLUDED.fee0,
				fee1 = EXCLUDED.fee1,
				protocol_fee0 = EXCLUDED.protocol_fee0,
				protocol_fee1 = EXCLUDED.protocol_fee1,
				manager_fee0 = EXCLUDED.manager_fee0,
				manager_fee1 = EXCLUDED.manager_fee1,
				tvl0 = EXCLUDED.tvl0,
				tvl1 = EXCLUDED.tvl1,
				fee_rate0 = EXCLUDED.fee_rate0,
				fee_rate1 = EXCLUDED.fee_rate1,
				apr = EXCLUDED.apr,
				tvl_method = EXCLUDED.tvl_method,
				updated_at = now()
		`,
			int64(m.ChainID),
			m.VaultAddress,
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			int64(m.CollectCount),
			int64(m.RebalanceCount),
			m.Fee0,
			m.Fee1,
			m.ProtocolFee0,
			m.ProtocolFee1,
			m.ManagerFee0,
			m.ManagerFee1,
			m.TVL0,
			m.TVL1,
			m.FeeRate0,
			m.FeeRate1,
			m.APR,
			m.TVLMethod,
		)
	}
	return s.sendBatch(ctx, batch, len(metrics))
}

// CountEvents returns how many events of a vault are stored.
func (s *Store) CountEvents(ctx context.Context, chainID uint64, vault string) (int64, error) {
	var n int64
	row := s.pool.QueryRow(ctx, `SELECT count(*) FROM vault_events WHERE chain_id=$1 AND vault=$2`, int64(chainID), vault)
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// LatestSnapshot returns the most recent snapshot of a vault.
func (s *Store) LatestSnapshot(ctx context.Context, chainID uint64, vault string) (model.VaultSnapshot, bool, error) {
	var raw []byte
	row := s.pool.QueryRow(ctx, `
		SELECT state FROM vault_snapshots
		WHERE chain_id=$1 AND vault=$2
		ORDER BY ts DESC LIMIT 1
	`, int64(chainID), vault)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.VaultSnapshot{}, false, nil
		}
		return model.VaultSnapshot{}, false, err
	}
	var snap model.VaultSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return model.VaultSnapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, true, nil
}

// LoadState returns last_processed_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM vaultd_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(ts), true, nil
}

// SaveState upserts last_processed_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO vaultd_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, int64(ts))
	return err
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch, n int) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
