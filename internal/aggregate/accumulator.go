package aggregate

import (
	"encoding/json"
	"fmt"
	"math/big"

	"liquidityVault/internal/model"
)

// Accumulator holds aggregate values for one vault window.
type Accumulator struct {
	ChainID        uint64
	Vault          string
	WindowStart    uint64
	WindowEnd      uint64
	CollectCount   uint64
	RebalanceCount uint64
	// Gross fees collected from the pool, and the portion left to depositors.
	Fee0         *big.Int
	Fee1         *big.Int
	Net0         *big.Int
	Net1         *big.Int
	ProtocolFee0 *big.Int
	ProtocolFee1 *big.Int
	ManagerFee0  *big.Int
	ManagerFee1  *big.Int
	// Vault holdings at the latest Snapshot of the window; nil without one.
	Total0     *big.Int
	Total1     *big.Int
	Tick       int32
	SnapshotTS uint64
	LastBlock  uint64
	LastTS     uint64
	FirstBlock uint64
}

func NewAccumulator(record model.EventRecord, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		ChainID:      record.ChainID,
		Vault:        record.Address,
		WindowStart:  windowStart,
		WindowEnd:    windowEnd,
		Fee0:         big.NewInt(0),
		Fee1:         big.NewInt(0),
		Net0:         big.NewInt(0),
		Net1:         big.NewInt(0),
		ProtocolFee0: big.NewInt(0),
		ProtocolFee1: big.NewInt(0),
		ManagerFee0:  big.NewInt(0),
		ManagerFee1:  big.NewInt(0),
		LastBlock:    record.BlockNumber,
		LastTS:       record.Timestamp,
		FirstBlock:   record.BlockNumber,
	}
}

// HasTotals reports whether a Snapshot was seen in the window.
func (a *Accumulator) HasTotals() bool {
	return a.Total0 != nil && a.Total1 != nil
}

func (a *Accumulator) AddEvent(record model.EventRecord) error {
	if record.Timestamp >= a.LastTS {
		a.LastTS = record.Timestamp
		a.LastBlock = record.BlockNumber
	}
	if a.FirstBlock == 0 || record.BlockNumber < a.FirstBlock {
		a.FirstBlock = record.BlockNumber
	}

	switch record.EventName {
	case model.EventCollectFees:
		var fees model.CollectFeesEventData
		if err := json.Unmarshal(record.Decoded, &fees); err != nil {
			return fmt.Errorf("decode collect fees: %w", err)
		}
		return a.applyCollect(fees)
	case model.EventSnapshot:
		var snap model.SnapshotEventData
		if err := json.Unmarshal(record.Decoded, &snap); err != nil {
			return fmt.Errorf("decode snapshot: %w", err)
		}
		return a.applySnapshot(snap, record.Timestamp)
	default:
		return nil
	}
}

func (a *Accumulator) applyCollect(fees model.CollectFeesEventData) error {
	values, err := parseBigInts(
		fees.FeesToVault0, fees.FeesToVault1,
		fees.FeesToProtocol0, fees.FeesToProtocol1,
		fees.FeesToManager0, fees.FeesToManager1,
	)
	if err != nil {
		return err
	}
	vault0, vault1, protocol0, protocol1, manager0, manager1 := values[0], values[1], values[2], values[3], values[4], values[5]

	a.Net0.Add(a.Net0, vault0)
	a.Net1.Add(a.Net1, vault1)
	a.ProtocolFee0.Add(a.ProtocolFee0, protocol0)
	a.ProtocolFee1.Add(a.ProtocolFee1, protocol1)
	a.ManagerFee0.Add(a.ManagerFee0, manager0)
	a.ManagerFee1.Add(a.ManagerFee1, manager1)
	a.Fee0.Add(a.Fee0, vault0).Add(a.Fee0, protocol0).Add(a.Fee0, manager0)
	a.Fee1.Add(a.Fee1, vault1).Add(a.Fee1, protocol1).Add(a.Fee1, manager1)
	a.CollectCount++
	return nil
}

func (a *Accumulator) applySnapshot(snap model.SnapshotEventData, ts uint64) error {
	values, err := parseBigInts(snap.TotalAmount0, snap.TotalAmount1)
	if err != nil {
		return err
	}
	a.RebalanceCount++
	if a.HasTotals() && ts < a.SnapshotTS {
		return nil
	}
	a.Total0, a.Total1 = values[0], values[1]
	a.Tick = snap.Tick
	a.SnapshotTS = ts
	return nil
}

func parseBigInts(values ...string) ([]*big.Int, error) {
	out := make([]*big.Int, len(values))
	for i, value := range values {
		parsed, err := parseBigInt(value)
		if err != nil {
			return nil, err
		}
		out[i] = parsed
	}
	return out, nil
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return parsed, nil
}
