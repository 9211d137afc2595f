package pool

import (
	"context"
	"sort"

	"liquidityVault/internal/ledger"
)

// observation records the tick cumulative at timestamp and the tick in
// effect from timestamp until the next observation.
type observation struct {
	timestamp      uint64
	tickCumulative int64
	tick           int32
}

func (p *SimPool) Observe(ctx context.Context, secondsAgos []uint32) ([]int64, error) {
	out := make([]int64, len(secondsAgos))
	err := p.ledger.View(ctx, func(ctx context.Context) error {
		call, _ := ledger.CallFrom(ctx)
		for i, ago := range secondsAgos {
			if uint64(ago) > call.Timestamp {
				return ErrObservationTooOld
			}
			cumulative, err := p.state.observeAt(call.Timestamp - uint64(ago))
			if err != nil {
				return err
			}
			out[i] = cumulative
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *simState) writeObservation(now uint64, tick int32, cardinality int) {
	last := len(s.observations) - 1
	prev := s.observations[last]
	if prev.timestamp >= now {
		s.observations[last].tick = tick
		return
	}
	s.observations = append(s.observations, observation{
		timestamp:      now,
		tickCumulative: prev.tickCumulative + int64(prev.tick)*int64(now-prev.timestamp),
		tick:           tick,
	})
	if len(s.observations) > cardinality {
		s.observations = append([]observation(nil), s.observations[len(s.observations)-cardinality:]...)
	}
}

func (s *simState) observeAt(target uint64) (int64, error) {
	if len(s.observations) == 0 || target < s.observations[0].timestamp {
		return 0, ErrObservationTooOld
	}
	idx := sort.Search(len(s.observations), func(i int) bool {
		return s.observations[i].timestamp > target
	}) - 1
	obs := s.observations[idx]
	return obs.tickCumulative + int64(obs.tick)*int64(target-obs.timestamp), nil
}
