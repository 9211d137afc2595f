package model

import "time"

// VaultWindowMetrics stores aggregated fee metrics for a vault window.
type VaultWindowMetrics struct {
	ChainID        uint64
	VaultAddress   string
	WindowSizeSecs int64
	WindowStart    time.Time
	WindowEnd      time.Time
	CollectCount   uint64
	RebalanceCount uint64
	Fee0           string
	Fee1           string
	ProtocolFee0   string
	ProtocolFee1   string
	ManagerFee0    string
	ManagerFee1    string
	TVL0           *string
	TVL1           *string
	FeeRate0       *string
	FeeRate1       *string
	APR            *string
	TVLMethod      string
}
