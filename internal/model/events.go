package model

// Event names emitted by pools, vaults and the factory.
const (
	EventSwap        = "Swap"
	EventMint        = "Mint"
	EventBurn        = "Burn"
	EventCollect     = "Collect"
	EventDeposit     = "Deposit"
	EventWithdraw    = "Withdraw"
	EventCollectFees = "CollectFees"
	EventSnapshot    = "Snapshot"
	EventNewVault    = "NewVault"
	EventTransfer    = "Transfer"
)

// SwapEventData is the Swap event payload.
type SwapEventData struct {
	Sender       string `json:"sender"`
	Recipient    string `json:"recipient"`
	Amount0      string `json:"amount0"`
	Amount1      string `json:"amount1"`
	SqrtPriceX96 string `json:"sqrt_price_x96"`
	Liquidity    string `json:"liquidity"`
	Tick         int32  `json:"tick"`
}

// MintEventData is the pool Mint event payload.
type MintEventData struct {
	Sender    string `json:"sender"`
	Owner     string `json:"owner"`
	TickLower int32  `json:"tick_lower"`
	TickUpper int32  `json:"tick_upper"`
	Amount    string `json:"amount"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
}

// BurnEventData is the pool Burn event payload.
type BurnEventData struct {
	Owner     string `json:"owner"`
	TickLower int32  `json:"tick_lower"`
	TickUpper int32  `json:"tick_upper"`
	Amount    string `json:"amount"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
}

// CollectEventData is the pool Collect event payload.
type CollectEventData struct {
	Owner     string `json:"owner"`
	Recipient string `json:"recipient"`
	TickLower int32  `json:"tick_lower"`
	TickUpper int32  `json:"tick_upper"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
}

// DepositEventData is the vault Deposit payload.
type DepositEventData struct {
	Sender  string `json:"sender"`
	To      string `json:"to"`
	Shares  string `json:"shares"`
	Amount0 string `json:"amount0"`
	Amount1 string `json:"amount1"`
}

// WithdrawEventData is the vault Withdraw payload.
type WithdrawEventData struct {
	Sender  string `json:"sender"`
	To      string `json:"to"`
	Shares  string `json:"shares"`
	Amount0 string `json:"amount0"`
	Amount1 string `json:"amount1"`
}

// CollectFeesEventData splits fees collected from the pool into the vault,
// protocol and manager portions.
type CollectFeesEventData struct {
	FeesToVault0    string `json:"fees_to_vault0"`
	FeesToVault1    string `json:"fees_to_vault1"`
	FeesToProtocol0 string `json:"fees_to_protocol0"`
	FeesToProtocol1 string `json:"fees_to_protocol1"`
	FeesToManager0  string `json:"fees_to_manager0"`
	FeesToManager1  string `json:"fees_to_manager1"`
}

// SnapshotEventData records total amounts and supply once the base and limit
// ranges are withdrawn during a rebalance.
type SnapshotEventData struct {
	Tick         int32  `json:"tick"`
	TotalAmount0 string `json:"total_amount0"`
	TotalAmount1 string `json:"total_amount1"`
	TotalSupply  string `json:"total_supply"`
}

// NewVaultEventData is emitted by the factory.
type NewVaultEventData struct {
	Vault string `json:"vault"`
	Pool  string `json:"pool"`
	Index uint64 `json:"index"`
}

// TransferEventData covers token and share transfers.
type TransferEventData struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}
