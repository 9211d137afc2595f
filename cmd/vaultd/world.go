package main

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityVault/internal/config"
	"liquidityVault/internal/ledger"
	"liquidityVault/internal/simulate"
	"liquidityVault/internal/storage"
	"liquidityVault/internal/storage/postgres"
	"liquidityVault/internal/storage/redisstream"
	"liquidityVault/internal/vault"
)

// worldFromConfig parses the textual world settings.
func worldFromConfig(c config.WorldConfig) (simulate.Config, error) {
	addrs := map[string]string{
		"token0":     c.Token0,
		"token1":     c.Token1,
		"pool":       c.Pool,
		"lp":         c.LP,
		"factory":    c.Factory,
		"governance": c.Governance,
		"manager":    c.Manager,
		"trader":     c.Trader,
	}
	parsed := make(map[string]common.Address, len(addrs))
	for name, raw := range addrs {
		addr, err := config.ParseAddress(raw)
		if err != nil {
			return simulate.Config{}, fmt.Errorf("%s: %w", name, err)
		}
		if addr == (common.Address{}) {
			return simulate.Config{}, fmt.Errorf("%s address is required", name)
		}
		parsed[name] = addr
	}
	delegate, err := config.ParseAddress(c.RebalanceDelegate)
	if err != nil {
		return simulate.Config{}, fmt.Errorf("rebalance-delegate: %w", err)
	}

	amounts := map[string]string{
		"lp-liquidity":     c.LPLiquidity,
		"max-total-supply": c.MaxTotalSupply,
		"deposit0":         c.Deposit0,
		"deposit1":         c.Deposit1,
		"funding0":         c.Funding0,
		"funding1":         c.Funding1,
	}
	values := make(map[string]*big.Int, len(amounts))
	for name, raw := range amounts {
		v, err := config.ParseAmount(raw)
		if err != nil {
			return simulate.Config{}, fmt.Errorf("%s: %w", name, err)
		}
		values[name] = v
	}

	depositorAddrs, err := config.ParseAddresses(c.Depositors)
	if err != nil {
		return simulate.Config{}, fmt.Errorf("depositors: %w", err)
	}
	if len(depositorAddrs) == 0 {
		depositorAddrs = append(depositorAddrs, parsed["manager"])
	}
	depositors := make([]simulate.Depositor, 0, len(depositorAddrs))
	for _, addr := range depositorAddrs {
		depositors = append(depositors, simulate.Depositor{
			Address: addr,
			Amount0: values["deposit0"],
			Amount1: values["deposit1"],
		})
	}

	params := make([]vault.Params, 0, c.Vaults)
	for i := 0; i < c.Vaults; i++ {
		name := fmt.Sprintf("AV_%s_%s", c.Token0Symbol, c.Token1Symbol)
		if c.Vaults > 1 {
			name = fmt.Sprintf("%s_%d", name, i)
		}
		params = append(params, vault.Params{
			Name:              name,
			Symbol:            name,
			Manager:           parsed["manager"],
			RebalanceDelegate: delegate,
			ManagerFee:        c.ManagerFee,
			MaxTotalSupply:    values["max-total-supply"],
			BaseThreshold:     c.BaseThreshold,
			LimitThreshold:    c.LimitThreshold,
			FullRangeWeight:   c.FullRangeWeight,
			Period:            c.Period,
			MinTickMove:       c.MinTickMove,
			MaxTwapDeviation:  c.MaxTwapDeviation,
			TwapDuration:      c.TwapDuration,
		})
	}

	return simulate.Config{
		ChainID:        c.ChainID,
		StartTime:      c.StartTime,
		Token0:         simulate.Token{Address: parsed["token0"], Symbol: c.Token0Symbol, Decimals: c.Token0Decimals},
		Token1:         simulate.Token{Address: parsed["token1"], Symbol: c.Token1Symbol, Decimals: c.Token1Decimals},
		PoolAddress:    parsed["pool"],
		PoolFee:        c.PoolFee,
		StartTick:      c.StartTick,
		LP:             parsed["lp"],
		LPLiquidity:    values["lp-liquidity"],
		LPWidth:        c.LPWidth,
		FactoryAddress: parsed["factory"],
		Governance:     parsed["governance"],
		ProtocolFee:    c.ProtocolFee,
		Vaults:         params,
		Depositors:     depositors,
		Trader:         parsed["trader"],
		Funding0:       values["funding0"],
		Funding1:       values["funding1"],
		Warmup:         c.Warmup,
	}, nil
}

// sinkSet holds the event and snapshot sinks opened for a run.
type sinkSet struct {
	events    []ledger.EventSink
	snapshots storage.SnapshotStore
	closers   []func()
}

func openSinks(ctx context.Context, cfg config.SinkConfig, logger *zap.Logger) (*sinkSet, error) {
	set := &sinkSet{}

	if cfg.Out != "" {
		jsonl := storage.NewJsonlStorage(cfg.Out)
		set.events = append(set.events, jsonl)
		set.snapshots = jsonl
	}

	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			set.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		set.closers = append(set.closers, store.Close)
		if err := store.EnsureSchema(ctx); err != nil {
			set.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		sink := postgres.NewSink(store, 0)
		set.events = append(set.events, sink)
		set.snapshots = sink
	}

	if cfg.RedisAddr != "" {
		stream, err := redisstream.NewSink(ctx, redisstream.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Stream:   cfg.RedisStream,
			MaxLen:   cfg.RedisMaxLen,
		}, logger)
		if err != nil {
			set.Close()
			return nil, err
		}
		set.closers = append(set.closers, func() {
			if err := stream.Close(); err != nil {
				logger.Warn("close redis", zap.Error(err))
			}
		})
		set.events = append(set.events, stream)
	}

	logger.Info("event sinks",
		zap.String("out", cfg.Out),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.String("redis_addr", cfg.RedisAddr),
		zap.Int("count", len(set.events)),
	)
	return set, nil
}

func (s *sinkSet) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}
