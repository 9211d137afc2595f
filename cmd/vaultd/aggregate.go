package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityVault/internal/aggregate"
	"liquidityVault/internal/chain"
	"liquidityVault/internal/config"
	"liquidityVault/internal/model"
	"liquidityVault/internal/storage"
	"liquidityVault/internal/storage/postgres"
)

func runAggregate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadAggregate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.PGDSN == "" {
		return fmt.Errorf("pg-dsn is required for aggregate")
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	var client *chain.Client
	if cfg.RPCURL != "" {
		client, err = chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return err
		}
		defer client.Close()
	}

	var tokens aggregate.TokenResolver
	switch {
	case cfg.Token0 != "" && cfg.Token1 != "":
		token0, err := staticToken(cfg.Token0, cfg.Token0Decimals)
		if err != nil {
			return fmt.Errorf("token0: %w", err)
		}
		token1, err := staticToken(cfg.Token1, cfg.Token1Decimals)
		if err != nil {
			return fmt.Errorf("token1: %w", err)
		}
		tokens = aggregate.StaticTokens{Token0: token0, Token1: token1}
	case client != nil:
		tokens = aggregate.NewChainTokens(client, logger)
	default:
		return fmt.Errorf("either token0/token1 or rpc is required to resolve vault tokens")
	}

	var totals aggregate.TotalsReader
	if client != nil {
		totals = aggregate.ChainTotals{Caller: client}
	}

	recomputeFrom, err := config.ParseTimestamp(cfg.RecomputeFrom)
	if err != nil {
		return fmt.Errorf("recompute-from: %w", err)
	}

	windowSeconds := uint64(cfg.Window / time.Second)
	var progress storage.ProgressStore
	if cfg.StateFile != "" {
		progress = &storage.FileProgress{Path: cfg.StateFile}
	} else {
		progress = &postgres.NamedState{Store: store, Name: fmt.Sprintf("aggregate:%d", windowSeconds)}
	}

	agg := aggregate.NewAggregator(aggregate.Config{
		WindowSeconds: windowSeconds,
		BatchSize:     cfg.BatchSize,
		RecomputeFrom: recomputeFrom,
		Progress:      progress,
	}, store, tokens, totals, logger)

	summary, err := agg.Run(ctx, cfg.Input)
	if err != nil {
		return err
	}
	logger.Info("aggregation done",
		zap.String("input", cfg.Input),
		zap.Duration("window", cfg.Window),
		zap.Int("events", summary.Total),
		zap.Int("windows", summary.Windows),
		zap.Int("ignored", summary.Ignored),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	return nil
}

func staticToken(raw string, decimals uint8) (model.TokenMeta, error) {
	addr, err := config.ParseAddress(raw)
	if err != nil {
		return model.TokenMeta{}, err
	}
	return model.TokenMeta{Address: addr.Hex(), Symbol: addr.Hex(), Name: addr.Hex(), Decimals: decimals}, nil
}
