package dex

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"liquidityVault/internal/model"
)

// SwapTopic returns topic0 of the pool Swap event.
func SwapTopic() (common.Hash, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return common.Hash{}, err
	}
	return poolABI.Events["Swap"].ID, nil
}

// DecodeSwap decodes a pool Swap log.
func DecodeSwap(log types.Log) (model.SwapEventData, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return model.SwapEventData{}, err
	}
	event := poolABI.Events["Swap"]
	if len(log.Topics) == 0 || log.Topics[0] != event.ID {
		return model.SwapEventData{}, fmt.Errorf("not a swap log")
	}

	indexedArgs := indexedArguments(event.Inputs)
	if len(log.Topics) != len(indexedArgs)+1 {
		return model.SwapEventData{}, fmt.Errorf("expected %d topics, got %d", len(indexedArgs)+1, len(log.Topics))
	}
	var indexed struct {
		Sender    common.Address
		Recipient common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArgs, log.Topics[1:]); err != nil {
		return model.SwapEventData{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return model.SwapEventData{}, fmt.Errorf("unpack swap: %w", err)
	}
	fields, err := bigValues(values, 5)
	if err != nil {
		return model.SwapEventData{}, fmt.Errorf("swap values: %w", err)
	}
	tick, err := int24FromBig(fields[4])
	if err != nil {
		return model.SwapEventData{}, err
	}

	return model.SwapEventData{
		Sender:       indexed.Sender.Hex(),
		Recipient:    indexed.Recipient.Hex(),
		Amount0:      fields[0].String(),
		Amount1:      fields[1].String(),
		SqrtPriceX96: fields[2].String(),
		Liquidity:    fields[3].String(),
		Tick:         tick,
	}, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
