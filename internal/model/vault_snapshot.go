package model

// VaultSnapshot is the persisted view of a vault after a committed call.
type VaultSnapshot struct {
	ChainID              uint64 `json:"chain_id"`
	Address              string `json:"address"`
	Pool                 string `json:"pool"`
	Token0               string `json:"token0"`
	Token1               string `json:"token1"`
	Timestamp            uint64 `json:"timestamp"`
	Manager              string `json:"manager"`
	PendingManager       string `json:"pending_manager"`
	RebalanceDelegate    string `json:"rebalance_delegate"`
	ManagerFee           uint32 `json:"manager_fee"`
	PendingManagerFee    uint32 `json:"pending_manager_fee"`
	ProtocolFee          uint32 `json:"protocol_fee"`
	BaseThreshold        int32  `json:"base_threshold"`
	LimitThreshold       int32  `json:"limit_threshold"`
	FullRangeWeight      uint32 `json:"full_range_weight"`
	Period               uint32 `json:"period"`
	MinTickMove          int32  `json:"min_tick_move"`
	MaxTwapDeviation     int32  `json:"max_twap_deviation"`
	TwapDuration         uint32 `json:"twap_duration"`
	FullLower            int32  `json:"full_lower"`
	FullUpper            int32  `json:"full_upper"`
	BaseLower            int32  `json:"base_lower"`
	BaseUpper            int32  `json:"base_upper"`
	LimitLower           int32  `json:"limit_lower"`
	LimitUpper           int32  `json:"limit_upper"`
	LastTick             int32  `json:"last_tick"`
	LastTimestamp        uint64 `json:"last_timestamp"`
	TotalSupply          string `json:"total_supply"`
	MaxTotalSupply       string `json:"max_total_supply"`
	Total0               string `json:"total0"`
	Total1               string `json:"total1"`
	AccruedProtocolFees0 string `json:"accrued_protocol_fees0"`
	AccruedProtocolFees1 string `json:"accrued_protocol_fees1"`
	AccruedManagerFees0  string `json:"accrued_manager_fees0"`
	AccruedManagerFees1  string `json:"accrued_manager_fees1"`
}
