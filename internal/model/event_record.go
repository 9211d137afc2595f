package model

import "encoding/json"

// EventRecord is one emitted event in the JSON form written by the sinks
// and read back by aggregation and replay.
type EventRecord struct {
	ChainID     uint64          `json:"chain_id"`
	BlockNumber uint64          `json:"block_number"`
	TxIndex     uint64          `json:"tx_index"`
	LogIndex    uint64          `json:"log_index"`
	Address     string          `json:"address"`
	Sender      string          `json:"sender"`
	EventName   string          `json:"event_name"`
	Timestamp   uint64          `json:"timestamp"`
	Decoded     json.RawMessage `json:"decoded"`
	PoolMeta    *PoolMeta       `json:"pool_meta,omitempty"`
}
