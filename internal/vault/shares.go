package vault

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"liquidityVault/internal/ledger"
	"liquidityVault/internal/model"
)

// TotalSupply returns the number of shares outstanding.
func (v *Vault) TotalSupply(ctx context.Context) *big.Int {
	out := new(big.Int)
	_ = v.view(ctx, func(_ context.Context, st *state) error {
		out.Set(st.totalSupply)
		return nil
	})
	return out
}

// BalanceOf returns holder's share balance.
func (v *Vault) BalanceOf(ctx context.Context, holder common.Address) *big.Int {
	out := new(big.Int)
	_ = v.view(ctx, func(_ context.Context, st *state) error {
		if bal, ok := st.balances[holder]; ok {
			out.Set(bal)
		}
		return nil
	})
	return out
}

// Holders returns every address with a non-zero share balance.
func (v *Vault) Holders(ctx context.Context) map[common.Address]*big.Int {
	out := make(map[common.Address]*big.Int)
	_ = v.view(ctx, func(_ context.Context, st *state) error {
		for holder, bal := range st.balances {
			if bal.Sign() > 0 {
				out[holder] = new(big.Int).Set(bal)
			}
		}
		return nil
	})
	return out
}

// TransferShares moves shares from sender to to.
func (v *Vault) TransferShares(ctx context.Context, sender, to common.Address, amount *big.Int) error {
	return v.apply(ctx, sender, func(ctx context.Context, _ ledger.Call, st *state) error {
		if to == (common.Address{}) {
			return ErrRecipient
		}
		if amount == nil || amount.Sign() < 0 {
			return ErrShares
		}
		from := st.balance(sender)
		if from.Cmp(amount) < 0 {
			return ErrSharesTransfer
		}
		st.balances[sender] = new(big.Int).Sub(from, amount)
		st.balances[to] = new(big.Int).Add(st.balance(to), amount)
		return v.emitTransfer(ctx, sender, to, amount)
	})
}

func (s *state) balance(holder common.Address) *big.Int {
	if bal, ok := s.balances[holder]; ok {
		return bal
	}
	return new(big.Int)
}

func (v *Vault) mintShares(ctx context.Context, st *state, to common.Address, amount *big.Int) error {
	st.balances[to] = new(big.Int).Add(st.balance(to), amount)
	st.totalSupply = new(big.Int).Add(st.totalSupply, amount)
	return v.emitTransfer(ctx, common.Address{}, to, amount)
}

func (v *Vault) burnShares(ctx context.Context, st *state, from common.Address, amount *big.Int) error {
	bal := st.balance(from)
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientShares
	}
	st.balances[from] = new(big.Int).Sub(bal, amount)
	st.totalSupply = new(big.Int).Sub(st.totalSupply, amount)
	return v.emitTransfer(ctx, from, common.Address{}, amount)
}

func (v *Vault) emitTransfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	return v.ledger.Emit(ctx, v.address, model.EventTransfer, model.TransferEventData{
		From:   from.Hex(),
		To:     to.Hex(),
		Amount: amount.String(),
	})
}
