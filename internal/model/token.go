package model

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// TokenMeta captures ERC20 metadata.
type TokenMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
}

// FormatAmount renders a raw integer amount in whole-token units.
func (m TokenMeta) FormatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(m.Decimals)).String()
}
