package vault

import "liquidityVault/internal/ledger"

// Validation failures.
var (
	ErrZeroDeposit        = ledger.Fail(ledger.KindValidation, "amount0Desired or amount1Desired")
	ErrRecipient          = ledger.Fail(ledger.KindValidation, "to")
	ErrAmount0Min         = ledger.Fail(ledger.KindValidation, "amount0Min")
	ErrAmount1Min         = ledger.Fail(ledger.KindValidation, "amount1Min")
	ErrShares             = ledger.Fail(ledger.KindValidation, "shares")
	ErrCross              = ledger.Fail(ledger.KindValidation, "cross")
	ErrInsufficientShares = ledger.Fail(ledger.KindValidation, "burn amount exceeds balance")
	ErrSharesTransfer     = ledger.Fail(ledger.KindValidation, "transfer amount exceeds balance")
	ErrSweepToken         = ledger.Fail(ledger.KindValidation, "token")

	ErrThresholdNotPositive = ledger.Fail(ledger.KindValidation, "threshold must be > 0")
	ErrThresholdTooHigh     = ledger.Fail(ledger.KindValidation, "threshold too high")
	ErrThresholdSpacing     = ledger.Fail(ledger.KindValidation, "threshold must be multiple of tickSpacing")
	ErrFullRangeWeight      = ledger.Fail(ledger.KindValidation, "fullRangeWeight must be <= 1e6")
	ErrMinTickMove          = ledger.Fail(ledger.KindValidation, "minTickMove must be >= 0")
	ErrTwapDeviationLow     = ledger.Fail(ledger.KindValidation, "maxTwapDeviation must be >= 0")
	ErrTwapDeviationHigh    = ledger.Fail(ledger.KindValidation, "maxTwapDeviation must be <= 1e6")
	ErrTwapDuration         = ledger.Fail(ledger.KindValidation, "twapDuration must be > 0")
	ErrManagerFee           = ledger.Fail(ledger.KindValidation, "managerFee must be <= 200000")
)

// Authorization failures.
var (
	ErrManager           = ledger.Fail(ledger.KindAuthorization, "manager")
	ErrPendingManager    = ledger.Fail(ledger.KindAuthorization, "pendingManager")
	ErrGovernance        = ledger.Fail(ledger.KindAuthorization, "governance")
	ErrRebalanceDelegate = ledger.Fail(ledger.KindAuthorization, "rebalanceDelegate")
	ErrCallbackCaller    = ledger.Fail(ledger.KindAuthorization, "pool")
)

// Rebalance gates.
var (
	ErrPeriod        = ledger.Fail(ledger.KindGating, "PE")
	ErrTickMove      = ledger.Fail(ledger.KindGating, "TM")
	ErrTwapDeviation = ledger.Fail(ledger.KindGating, "TP")
	ErrPriceBounds   = ledger.Fail(ledger.KindGating, "PRICE_BOUNDS")
)

// ErrMaxTotalSupply is returned when a deposit would push supply over the cap.
var ErrMaxTotalSupply = ledger.Fail(ledger.KindCapacity, "maxTotalSupply")
