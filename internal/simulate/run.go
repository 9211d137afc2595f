package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"liquidityVault/internal/model"
	"liquidityVault/internal/storage"
)

// Schedule describes the swap flow. Recorded swaps take precedence over the
// synthetic round trip when present.
type Schedule struct {
	Steps        int
	StepSeconds  uint64
	RoundTrip    *big.Int
	Swaps        []model.SwapEventData
	SwapsPerStep int
}

// StepFunc runs after the clock advanced at the end of each step.
type StepFunc func(ctx context.Context, step int) error

type Result struct {
	Steps        int
	Swaps        int
	SwapFailures int
}

// Run plays the schedule. Failed swaps are counted and skipped; a failing
// StepFunc stops the run.
func (w *World) Run(ctx context.Context, sched Schedule, after StepFunc) (Result, error) {
	var res Result
	next := 0
	perStep := sched.SwapsPerStep
	if perStep <= 0 {
		perStep = 1
	}

	for step := 0; step < sched.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		switch {
		case len(sched.Swaps) > 0:
			for i := 0; i < perStep && next < len(sched.Swaps); i++ {
				w.count(&res, w.ReplaySwap(ctx, sched.Swaps[next]))
				next++
			}
		case sched.RoundTrip != nil && sched.RoundTrip.Sign() > 0:
			w.count(&res, w.RoundTrip(ctx, sched.RoundTrip))
		}

		w.Ledger.Advance(sched.StepSeconds)
		if after != nil {
			if err := after(ctx, step); err != nil {
				return res, fmt.Errorf("step %d: %w", step, err)
			}
		}
		res.Steps++
	}
	return res, nil
}

func (w *World) count(res *Result, err error) {
	res.Swaps++
	if err != nil {
		res.SwapFailures++
		w.logger.Debug("swap failed", zap.Error(err))
	}
}

// ReadSwaps loads Swap payloads from an event JSONL file, skipping every
// other event.
func ReadSwaps(path string) ([]model.SwapEventData, error) {
	records, err := storage.ReadEvents(path)
	if err != nil {
		return nil, err
	}
	var swaps []model.SwapEventData
	for _, rec := range records {
		if rec.EventName != model.EventSwap {
			continue
		}
		var data model.SwapEventData
		if err := json.Unmarshal(rec.Decoded, &data); err != nil {
			return nil, fmt.Errorf("decode swap at block %d log %d: %w", rec.BlockNumber, rec.LogIndex, err)
		}
		swaps = append(swaps, data)
	}
	return swaps, nil
}
