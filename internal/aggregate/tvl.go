package aggregate

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"liquidityVault/internal/dex"
)

const (
	tvlMethodSnapshot = "snapshot_totals"
	tvlMethodBlock    = "total_amounts_block"
	tvlMethodLatest   = "total_amounts_latest"
	tvlMethodNone     = "unavailable"
)

// TotalsReader supplies vault holdings for windows without a Snapshot.
type TotalsReader interface {
	TotalAmounts(ctx context.Context, vault common.Address, block uint64) (*big.Int, *big.Int, string, error)
}

// ChainTotals calls getTotalAmounts at the window's last block and falls
// back to the latest block when the node has pruned that state.
type ChainTotals struct {
	Caller dex.Caller
}

func (c ChainTotals) TotalAmounts(ctx context.Context, vault common.Address, block uint64) (*big.Int, *big.Int, string, error) {
	if c.Caller == nil {
		return nil, nil, tvlMethodNone, fmt.Errorf("chain client is nil")
	}
	total0, total1, err := dex.FetchTotalAmounts(ctx, c.Caller, vault, new(big.Int).SetUint64(block))
	if err == nil {
		return total0, total1, tvlMethodBlock, nil
	}
	total0, total1, errLatest := dex.FetchTotalAmounts(ctx, c.Caller, vault, nil)
	if errLatest == nil {
		return total0, total1, tvlMethodLatest, nil
	}
	return nil, nil, tvlMethodNone, fmt.Errorf("getTotalAmounts failed: %w", err)
}
