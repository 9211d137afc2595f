package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"liquidityVault/internal/model"
	"liquidityVault/internal/report"
)

// VaultState is a deployed vault as read over RPC.
type VaultState struct {
	Address common.Address
	Pool    common.Address
	Token0  common.Address
	Token1  common.Address
	Manager common.Address
	Name    string
	Symbol  string

	TotalSupply    *big.Int
	MaxTotalSupply *big.Int
	Total0         *big.Int
	Total1         *big.Int
	Balance0       *big.Int
	Balance1       *big.Int

	Full  report.Range
	Base  report.Range
	Limit report.Range

	ProtocolFee          uint32
	ManagerFee           uint32
	AccruedProtocolFees0 *big.Int
	AccruedProtocolFees1 *big.Int
	AccruedManagerFees0  *big.Int
	AccruedManagerFees1  *big.Int

	BaseThreshold    int32
	LimitThreshold   int32
	FullRangeWeight  uint32
	Period           uint32
	MinTickMove      int32
	MaxTwapDeviation int32
	TwapDuration     uint32
	LastTick         int32
	LastTimestamp    uint64
}

// FetchVault reads every public field of the vault at block (nil for latest).
func FetchVault(ctx context.Context, caller Caller, vault common.Address, block *big.Int) (VaultState, error) {
	vaultABI, err := VaultABI()
	if err != nil {
		return VaultState{}, fmt.Errorf("parse vault abi: %w", err)
	}
	s := VaultState{Address: vault}

	for method, dst := range map[string]*common.Address{
		"pool":    &s.Pool,
		"token0":  &s.Token0,
		"token1":  &s.Token1,
		"manager": &s.Manager,
	} {
		if *dst, err = callAddress(ctx, caller, vault, vaultABI, method, block); err != nil {
			return VaultState{}, err
		}
	}

	for method, dst := range map[string]*string{"name": &s.Name, "symbol": &s.Symbol} {
		values, err := call(ctx, caller, vault, vaultABI, method, block)
		if err != nil {
			return VaultState{}, err
		}
		*dst, _ = values[0].(string)
	}

	for method, dst := range map[string]**big.Int{
		"totalSupply":          &s.TotalSupply,
		"maxTotalSupply":       &s.MaxTotalSupply,
		"accruedProtocolFees0": &s.AccruedProtocolFees0,
		"accruedProtocolFees1": &s.AccruedProtocolFees1,
		"accruedManagerFees0":  &s.AccruedManagerFees0,
		"accruedManagerFees1":  &s.AccruedManagerFees1,
	} {
		if *dst, err = callBig(ctx, caller, vault, vaultABI, method, block); err != nil {
			return VaultState{}, err
		}
	}

	for method, dst := range map[string]*int32{
		"fullLower":        &s.Full.Lower,
		"fullUpper":        &s.Full.Upper,
		"baseLower":        &s.Base.Lower,
		"baseUpper":        &s.Base.Upper,
		"limitLower":       &s.Limit.Lower,
		"limitUpper":       &s.Limit.Upper,
		"baseThreshold":    &s.BaseThreshold,
		"limitThreshold":   &s.LimitThreshold,
		"minTickMove":      &s.MinTickMove,
		"maxTwapDeviation": &s.MaxTwapDeviation,
		"lastTick":         &s.LastTick,
	} {
		if *dst, err = callInt24(ctx, caller, vault, vaultABI, method, block); err != nil {
			return VaultState{}, err
		}
	}

	for method, dst := range map[string]*uint32{
		"protocolFee":     &s.ProtocolFee,
		"managerFee":      &s.ManagerFee,
		"fullRangeWeight": &s.FullRangeWeight,
		"period":          &s.Period,
		"twapDuration":    &s.TwapDuration,
	} {
		v, err := callBig(ctx, caller, vault, vaultABI, method, block)
		if err != nil {
			return VaultState{}, err
		}
		*dst = uint32(v.Uint64())
	}

	lastTimestamp, err := callBig(ctx, caller, vault, vaultABI, "lastTimestamp", block)
	if err != nil {
		return VaultState{}, err
	}
	s.LastTimestamp = lastTimestamp.Uint64()

	if s.Total0, s.Total1, err = FetchTotalAmounts(ctx, caller, vault, block); err != nil {
		return VaultState{}, err
	}

	if s.Balance0, err = FetchBalance(ctx, caller, s.Token0, vault, block); err != nil {
		return VaultState{}, err
	}
	if s.Balance1, err = FetchBalance(ctx, caller, s.Token1, vault, block); err != nil {
		return VaultState{}, err
	}
	return s, nil
}

// ReportInput describes the vault for report.Build. Idle balances exclude
// accrued protocol and manager fees.
func (s VaultState) ReportInput() report.Input {
	idle0 := new(big.Int).Sub(s.Balance0, new(big.Int).Add(s.AccruedProtocolFees0, s.AccruedManagerFees0))
	idle1 := new(big.Int).Sub(s.Balance1, new(big.Int).Add(s.AccruedProtocolFees1, s.AccruedManagerFees1))
	if idle0.Sign() < 0 {
		idle0.SetInt64(0)
	}
	if idle1.Sign() < 0 {
		idle1.SetInt64(0)
	}
	return report.Input{
		Vault:       s.Address,
		Full:        s.Full,
		Base:        s.Base,
		Limit:       s.Limit,
		Idle0:       idle0,
		Idle1:       idle1,
		ProtocolFee: s.ProtocolFee,
		ManagerFee:  s.ManagerFee,
	}
}

// Snapshot converts the state into the persisted snapshot form.
func (s VaultState) Snapshot(chainID, timestamp uint64) model.VaultSnapshot {
	return model.VaultSnapshot{
		ChainID:              chainID,
		Address:              s.Address.Hex(),
		Pool:                 s.Pool.Hex(),
		Token0:               s.Token0.Hex(),
		Token1:               s.Token1.Hex(),
		Timestamp:            timestamp,
		Manager:              s.Manager.Hex(),
		ManagerFee:           s.ManagerFee,
		ProtocolFee:          s.ProtocolFee,
		BaseThreshold:        s.BaseThreshold,
		LimitThreshold:       s.LimitThreshold,
		FullRangeWeight:      s.FullRangeWeight,
		Period:               s.Period,
		MinTickMove:          s.MinTickMove,
		MaxTwapDeviation:     s.MaxTwapDeviation,
		TwapDuration:         s.TwapDuration,
		FullLower:            s.Full.Lower,
		FullUpper:            s.Full.Upper,
		BaseLower:            s.Base.Lower,
		BaseUpper:            s.Base.Upper,
		LimitLower:           s.Limit.Lower,
		LimitUpper:           s.Limit.Upper,
		LastTick:             s.LastTick,
		LastTimestamp:        s.LastTimestamp,
		TotalSupply:          s.TotalSupply.String(),
		MaxTotalSupply:       s.MaxTotalSupply.String(),
		Total0:               s.Total0.String(),
		Total1:               s.Total1.String(),
		AccruedProtocolFees0: s.AccruedProtocolFees0.String(),
		AccruedProtocolFees1: s.AccruedProtocolFees1.String(),
		AccruedManagerFees0:  s.AccruedManagerFees0.String(),
		AccruedManagerFees1:  s.AccruedManagerFees1.String(),
	}
}

// FetchVaultTokens returns token0 and token1 of a vault.
func FetchVaultTokens(ctx context.Context, caller Caller, vault common.Address) (common.Address, common.Address, error) {
	vaultABI, err := VaultABI()
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("parse vault abi: %w", err)
	}
	token0, err := callAddress(ctx, caller, vault, vaultABI, "token0", nil)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	token1, err := callAddress(ctx, caller, vault, vaultABI, "token1", nil)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return token0, token1, nil
}

// FetchTotalAmounts calls getTotalAmounts at block (nil for latest).
func FetchTotalAmounts(ctx context.Context, caller Caller, vault common.Address, block *big.Int) (*big.Int, *big.Int, error) {
	vaultABI, err := VaultABI()
	if err != nil {
		return nil, nil, fmt.Errorf("parse vault abi: %w", err)
	}
	values, err := call(ctx, caller, vault, vaultABI, "getTotalAmounts", block)
	if err != nil {
		return nil, nil, err
	}
	amounts, err := bigValues(values, 2)
	if err != nil {
		return nil, nil, fmt.Errorf("getTotalAmounts: %w", err)
	}
	return amounts[0], amounts[1], nil
}
