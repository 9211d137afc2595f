package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"liquidityVault/internal/positionmath"
)

const (
	// MaxManagerFee caps the manager's cut of collected fees.
	MaxManagerFee = 200_000
	// MaxTwapDeviation caps the allowed spot/TWAP tick distance.
	MaxTwapDeviation = 1_000_000
	// InitialShareBonus is added to the first deposit's share count.
	InitialShareBonus = 1_000_000
)

// Params is the parameter set a vault is created with.
type Params struct {
	Name              string
	Symbol            string
	Manager           common.Address
	RebalanceDelegate common.Address
	ManagerFee        uint32
	MaxTotalSupply    *big.Int
	BaseThreshold     int32
	LimitThreshold    int32
	FullRangeWeight   uint32
	Period            uint32
	MinTickMove       int32
	MaxTwapDeviation  int32
	TwapDuration      uint32
}

// Validate checks p against the pool's tick spacing. The first violated
// rule is reported.
func (p Params) Validate(tickSpacing int32) error {
	if err := CheckThreshold(p.BaseThreshold, tickSpacing); err != nil {
		return err
	}
	if err := CheckThreshold(p.LimitThreshold, tickSpacing); err != nil {
		return err
	}
	if err := checkFullRangeWeight(p.FullRangeWeight); err != nil {
		return err
	}
	if err := checkMinTickMove(p.MinTickMove); err != nil {
		return err
	}
	if err := checkMaxTwapDeviation(p.MaxTwapDeviation); err != nil {
		return err
	}
	if err := checkTwapDuration(p.TwapDuration); err != nil {
		return err
	}
	return checkManagerFee(p.ManagerFee)
}

// CheckThreshold validates a base or limit threshold.
func CheckThreshold(threshold, tickSpacing int32) error {
	if threshold <= 0 {
		return ErrThresholdNotPositive
	}
	if threshold > positionmath.MaxTick {
		return ErrThresholdTooHigh
	}
	if tickSpacing <= 0 || threshold%tickSpacing != 0 {
		return ErrThresholdSpacing
	}
	return nil
}

func checkFullRangeWeight(weight uint32) error {
	if weight > positionmath.FeeDenominator {
		return ErrFullRangeWeight
	}
	return nil
}

func checkMinTickMove(move int32) error {
	if move < 0 {
		return ErrMinTickMove
	}
	return nil
}

func checkMaxTwapDeviation(deviation int32) error {
	if deviation < 0 {
		return ErrTwapDeviationLow
	}
	if deviation > MaxTwapDeviation {
		return ErrTwapDeviationHigh
	}
	return nil
}

func checkTwapDuration(duration uint32) error {
	if duration == 0 {
		return ErrTwapDuration
	}
	return nil
}

func checkManagerFee(fee uint32) error {
	if fee > MaxManagerFee {
		return ErrManagerFee
	}
	return nil
}
