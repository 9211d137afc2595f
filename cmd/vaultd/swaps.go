package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityVault/internal/chain"
	"liquidityVault/internal/config"
	"liquidityVault/internal/storage"
	"liquidityVault/internal/swapfeed"
)

func runSwaps(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSwaps(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pools, err := config.ParseAddresses(cfg.Pools)
	if err != nil {
		return fmt.Errorf("pool: %w", err)
	}

	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return err
	}
	defer client.Close()

	var progress storage.ProgressStore
	if cfg.CheckpointEnabled {
		progress = &storage.FileProgress{Path: cfg.Checkpoint}
	}

	feed := swapfeed.New(swapfeed.Config{
		FromBlock:    cfg.FromBlock,
		ToBlock:      cfg.ToBlock,
		Pools:        pools,
		BatchSize:    cfg.BatchSize,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		WithPoolMeta: cfg.PoolMeta,
	}, client, storage.NewJsonlStorage(cfg.Out), progress, logger)

	written, err := feed.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("swap export done", zap.String("out", cfg.Out), zap.Int("swaps", written))
	return nil
}
