package aggregate

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"liquidityVault/internal/dex"
	"liquidityVault/internal/model"
)

// TokenResolver returns the token pair of a vault.
type TokenResolver interface {
	Tokens(ctx context.Context, vault common.Address) (model.TokenMeta, model.TokenMeta, error)
}

// StaticTokens serves one configured pair for every vault, which is how
// simulated event files are aggregated.
type StaticTokens struct {
	Token0 model.TokenMeta
	Token1 model.TokenMeta
}

func (s StaticTokens) Tokens(context.Context, common.Address) (model.TokenMeta, model.TokenMeta, error) {
	return s.Token0, s.Token1, nil
}

// ChainTokens reads token0/token1 from the vault contract and ERC20 metadata
// from the tokens, caching both.
type ChainTokens struct {
	caller dex.Caller
	metas  *dex.TokenMetaCache
	pairs  *xsync.Map[common.Address, [2]common.Address]
	logger *zap.Logger
}

func NewChainTokens(caller dex.Caller, logger *zap.Logger) *ChainTokens {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChainTokens{
		caller: caller,
		metas:  dex.NewTokenMetaCache(),
		pairs:  xsync.NewMap[common.Address, [2]common.Address](),
		logger: logger,
	}
}

func (c *ChainTokens) Tokens(ctx context.Context, vault common.Address) (model.TokenMeta, model.TokenMeta, error) {
	pair, ok := c.pairs.Load(vault)
	if !ok {
		token0, token1, err := dex.FetchVaultTokens(ctx, c.caller, vault)
		if err != nil {
			return model.TokenMeta{}, model.TokenMeta{}, fmt.Errorf("vault tokens %s: %w", vault.Hex(), err)
		}
		pair = [2]common.Address{token0, token1}
		c.pairs.Store(vault, pair)
	}

	meta0, err := c.metas.Resolve(ctx, c.caller, pair[0], c.logger)
	if err != nil {
		return model.TokenMeta{}, model.TokenMeta{}, fmt.Errorf("token0 meta: %w", err)
	}
	meta1, err := c.metas.Resolve(ctx, c.caller, pair[1], c.logger)
	if err != nil {
		return model.TokenMeta{}, model.TokenMeta{}, fmt.Errorf("token1 meta: %w", err)
	}
	return meta0, meta1, nil
}
