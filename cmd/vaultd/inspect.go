package main

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityVault/internal/chain"
	"liquidityVault/internal/config"
	"liquidityVault/internal/dex"
	"liquidityVault/internal/model"
	"liquidityVault/internal/report"
	"liquidityVault/internal/storage/postgres"
)

type inspectOutput struct {
	Vault       string         `json:"vault"`
	Name        string         `json:"name"`
	Pool        string         `json:"pool"`
	Block       uint64         `json:"block"`
	TotalSupply string         `json:"total_supply"`
	Position    report.Summary `json:"position"`
}

func runInspect(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadInspect(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return err
	}
	defer client.Close()

	block := cfg.Block
	if block == 0 {
		block, err = client.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("latest block: %w", err)
		}
	}
	blockNum := new(big.Int).SetUint64(block)

	vaultAddr, err := config.ParseAddress(cfg.Vault)
	if err != nil {
		return err
	}
	state, err := dex.FetchVault(ctx, client, vaultAddr, blockNum)
	if err != nil {
		return err
	}
	reader, err := dex.NewChainPool(ctx, client, state.Pool, blockNum)
	if err != nil {
		return err
	}
	breakdown, err := report.Build(ctx, reader, state.ReportInput())
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}

	metas := dex.NewTokenMetaCache()
	token0, err := metas.Resolve(ctx, client, state.Token0, logger)
	if err != nil {
		return err
	}
	token1, err := metas.Resolve(ctx, client, state.Token1, logger)
	if err != nil {
		return err
	}

	if cfg.PGDSN != "" {
		if err := storeSnapshot(cmd, client, cfg.PGDSN, state, block, logger); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(inspectOutput{
		Vault:       state.Address.Hex(),
		Name:        state.Name,
		Pool:        state.Pool.Hex(),
		Block:       block,
		TotalSupply: state.TotalSupply.String(),
		Position:    breakdown.Format(token0, token1),
	})
}

func storeSnapshot(cmd *cobra.Command, client *chain.Client, dsn string, state dex.VaultState, block uint64, logger *zap.Logger) error {
	ctx := cmd.Context()
	chainID, err := client.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	ts, err := client.BlockTimestamp(ctx, block)
	if err != nil {
		return err
	}

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	if err := store.UpsertSnapshots(ctx, []model.VaultSnapshot{state.Snapshot(chainID.Uint64(), ts)}); err != nil {
		return err
	}
	logger.Info("snapshot stored", zap.String("vault", state.Address.Hex()), zap.Uint64("block", block), zap.String("pg_dsn", redactDSN(dsn)))
	return nil
}
