package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"liquidityVault/internal/model"
)

// Emit records an event for the call in ctx. Events are delivered to the
// sinks only if the outermost call commits. Emitting from a view is a no-op.
func (l *Ledger) Emit(ctx context.Context, contract common.Address, name string, payload any) error {
	tx := l.txFrom(ctx)
	if tx == nil || tx.events == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", name, err)
	}
	*tx.events = append(*tx.events, model.EventRecord{
		ChainID:     l.chainID,
		BlockNumber: tx.call.Block,
		LogIndex:    uint64(len(*tx.events)),
		Address:     contract.Hex(),
		Sender:      tx.call.Sender.Hex(),
		EventName:   name,
		Timestamp:   tx.call.Timestamp,
		Decoded:     data,
	})
	return nil
}
