package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"liquidityVault/internal/model"
)

var maxUint256 = new(uint256.Int).SetAllOne()

// RegisterToken adds a token. Its address is taken from meta.
func (l *Ledger) RegisterToken(ctx context.Context, meta model.TokenMeta) error {
	if !common.IsHexAddress(meta.Address) {
		return fmt.Errorf("register token: invalid address %q", meta.Address)
	}
	addr := common.HexToAddress(meta.Address)
	return l.Execute(ctx, addr, func(ctx context.Context, _ Call) error {
		if _, ok := l.tokens[addr]; ok {
			return fmt.Errorf("register token %s: already registered", addr.Hex())
		}
		meta.Address = addr.Hex()
		l.tokens[addr] = meta
		l.balances[addr] = make(map[common.Address]*uint256.Int)
		l.allow[addr] = make(map[allowanceKey]*uint256.Int)
		return nil
	})
}

// Token returns the metadata of a registered token.
func (l *Ledger) Token(ctx context.Context, token common.Address) (model.TokenMeta, bool) {
	var meta model.TokenMeta
	var ok bool
	_ = l.View(ctx, func(context.Context) error {
		meta, ok = l.tokens[token]
		return nil
	})
	return meta, ok
}

// Mint credits amount of token to holder out of thin air.
func (l *Ledger) Mint(ctx context.Context, token, to common.Address, amount *big.Int) error {
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	return l.Execute(ctx, token, func(ctx context.Context, _ Call) error {
		book, ok := l.balances[token]
		if !ok {
			return ErrUnknownToken
		}
		if to == (common.Address{}) {
			return ErrZeroAddress
		}
		return credit(book, to, value)
	})
}

// Transfer moves amount of token from one holder to another.
func (l *Ledger) Transfer(ctx context.Context, token, from, to common.Address, amount *big.Int) error {
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	return l.Execute(ctx, from, func(ctx context.Context, _ Call) error {
		return l.move(token, from, to, value)
	})
}

// Approve sets the amount spender may move out of owner's balance.
// An allowance of 2^256-1 is never decremented.
func (l *Ledger) Approve(ctx context.Context, token, owner, spender common.Address, amount *big.Int) error {
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	return l.Execute(ctx, owner, func(ctx context.Context, _ Call) error {
		book, ok := l.allow[token]
		if !ok {
			return ErrUnknownToken
		}
		book[allowanceKey{owner: owner, spender: spender}] = value
		return nil
	})
}

// ApproveMax grants spender an unlimited allowance.
func (l *Ledger) ApproveMax(ctx context.Context, token, owner, spender common.Address) error {
	return l.Approve(ctx, token, owner, spender, maxUint256.ToBig())
}

// TransferFrom moves amount out of from's balance on behalf of spender.
func (l *Ledger) TransferFrom(ctx context.Context, token, spender, from, to common.Address, amount *big.Int) error {
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	return l.Execute(ctx, spender, func(ctx context.Context, _ Call) error {
		book, ok := l.allow[token]
		if !ok {
			return ErrUnknownToken
		}
		if spender != from {
			key := allowanceKey{owner: from, spender: spender}
			current, ok := book[key]
			if !ok || current.Lt(value) {
				return ErrInsufficientAllowance
			}
			if !current.Eq(maxUint256) {
				book[key] = new(uint256.Int).Sub(current, value)
			}
		}
		return l.move(token, from, to, value)
	})
}

// BalanceOf returns holder's balance of token.
func (l *Ledger) BalanceOf(ctx context.Context, token, holder common.Address) *big.Int {
	out := new(big.Int)
	_ = l.View(ctx, func(context.Context) error {
		if bal, ok := l.balances[token][holder]; ok {
			out = bal.ToBig()
		}
		return nil
	})
	return out
}

// Allowance returns the amount spender may still move out of owner's balance.
func (l *Ledger) Allowance(ctx context.Context, token, owner, spender common.Address) *big.Int {
	out := new(big.Int)
	_ = l.View(ctx, func(context.Context) error {
		if val, ok := l.allow[token][allowanceKey{owner: owner, spender: spender}]; ok {
			out = val.ToBig()
		}
		return nil
	})
	return out
}

func (l *Ledger) move(token, from, to common.Address, value *uint256.Int) error {
	book, ok := l.balances[token]
	if !ok {
		return ErrUnknownToken
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if value.IsZero() {
		return nil
	}
	bal, ok := book[from]
	if !ok || bal.Lt(value) {
		return ErrInsufficientBalance
	}
	book[from] = new(uint256.Int).Sub(bal, value)
	return credit(book, to, value)
}

func credit(book map[common.Address]*uint256.Int, to common.Address, value *uint256.Int) error {
	current, ok := book[to]
	if !ok {
		current = new(uint256.Int)
	}
	next, overflow := new(uint256.Int).AddOverflow(current, value)
	if overflow {
		return ErrBalanceOverflow
	}
	book[to] = next
	return nil
}

func toUint256(amount *big.Int) (*uint256.Int, error) {
	if amount == nil {
		return new(uint256.Int), nil
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %s", amount)
	}
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrBalanceOverflow
	}
	return value, nil
}

// Balances are replaced on every change and never mutated in place, so a
// shallow copy of each book is a full snapshot.
func cloneBalances(in map[common.Address]map[common.Address]*uint256.Int) map[common.Address]map[common.Address]*uint256.Int {
	out := make(map[common.Address]map[common.Address]*uint256.Int, len(in))
	for token, book := range in {
		copied := make(map[common.Address]*uint256.Int, len(book))
		for holder, bal := range book {
			copied[holder] = bal
		}
		out[token] = copied
	}
	return out
}

func cloneAllowances(in map[common.Address]map[allowanceKey]*uint256.Int) map[common.Address]map[allowanceKey]*uint256.Int {
	out := make(map[common.Address]map[allowanceKey]*uint256.Int, len(in))
	for token, book := range in {
		copied := make(map[allowanceKey]*uint256.Int, len(book))
		for key, val := range book {
			copied[key] = val
		}
		out[token] = copied
	}
	return out
}
