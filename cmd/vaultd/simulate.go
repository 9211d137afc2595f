package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityVault/internal/config"
	"liquidityVault/internal/keeper"
	"liquidityVault/internal/observability"
	"liquidityVault/internal/report"
	"liquidityVault/internal/simulate"
)

type vaultOutput struct {
	Vault       string         `json:"vault"`
	Name        string         `json:"name"`
	TotalSupply string         `json:"total_supply"`
	Position    report.Summary `json:"position"`
}

type simulateOutput struct {
	Steps        int           `json:"steps"`
	Swaps        int           `json:"swaps"`
	SwapFailures int           `json:"swap_failures"`
	Rebalances   int           `json:"rebalances"`
	Vaults       []vaultOutput `json:"vaults"`
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSimulate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	world, sinks, err := buildWorld(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer sinks.Close()

	sender, err := senderFrom(cfg)
	if err != nil {
		return err
	}
	k, err := keeper.New(keeper.Config{
		Sender:  sender,
		Workers: 1,
	}, keeper.FactorySource(world.Factory), logger,
		keeper.WithSnapshotStore(sinks.snapshots),
		keeper.WithTokens(world.Ledger),
	)
	if err != nil {
		return err
	}
	defer k.Close()

	sched, err := scheduleFrom(cfg)
	if err != nil {
		return err
	}
	rebalances := 0
	res, err := world.Run(ctx, sched, func(ctx context.Context, step int) error {
		summary, err := k.RunOnce(ctx)
		rebalances += summary.Rebalance
		return err
	})
	if err != nil {
		return err
	}

	out := simulateOutput{
		Steps:        res.Steps,
		Swaps:        res.Swaps,
		SwapFailures: res.SwapFailures,
		Rebalances:   rebalances,
	}
	for _, v := range world.Vaults {
		breakdown, err := v.Breakdown(ctx)
		if err != nil {
			return fmt.Errorf("breakdown %s: %w", v.Address().Hex(), err)
		}
		out.Vaults = append(out.Vaults, vaultOutput{
			Vault:       v.Address().Hex(),
			Name:        v.Name(),
			TotalSupply: v.TotalSupply(ctx).String(),
			Position:    breakdown.Format(world.Config.Token0.Meta(), world.Config.Token1.Meta()),
		})
	}
	logger.Info("simulation done",
		zap.Int("steps", res.Steps),
		zap.Int("swaps", res.Swaps),
		zap.Int("swap_failures", res.SwapFailures),
		zap.Int("rebalances", rebalances),
	)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// buildWorld opens the configured sinks and builds the simulated world on top.
func buildWorld(ctx context.Context, cfg config.SimulateConfig, metrics *observability.Metrics, logger *zap.Logger) (*simulate.World, *sinkSet, error) {
	worldCfg, err := worldFromConfig(cfg.World)
	if err != nil {
		return nil, nil, err
	}
	sinks, err := openSinks(ctx, cfg.Sinks, logger)
	if err != nil {
		return nil, nil, err
	}

	opts := []simulate.Option{simulate.WithSinks(sinks.events...)}
	if metrics != nil {
		opts = append(opts, simulate.WithObserver(metrics))
	}
	world, err := simulate.Build(ctx, worldCfg, logger, opts...)
	if err != nil {
		sinks.Close()
		return nil, nil, fmt.Errorf("build world: %w", err)
	}
	return world, sinks, nil
}

func scheduleFrom(cfg config.SimulateConfig) (simulate.Schedule, error) {
	sched := simulate.Schedule{
		Steps:        cfg.Steps,
		StepSeconds:  cfg.StepSeconds,
		SwapsPerStep: cfg.SwapsPerStep,
	}
	if cfg.SwapsIn != "" {
		swaps, err := simulate.ReadSwaps(cfg.SwapsIn)
		if err != nil {
			return sched, err
		}
		sched.Swaps = swaps
	}
	if cfg.RoundTrip != "" {
		amount, err := config.ParseAmount(cfg.RoundTrip)
		if err != nil {
			return sched, fmt.Errorf("round-trip: %w", err)
		}
		sched.RoundTrip = amount
	}
	return sched, nil
}

// senderFrom defaults the keeper sender to the vault manager.
func senderFrom(cfg config.SimulateConfig) (common.Address, error) {
	raw := cfg.Sender
	if raw == "" {
		raw = cfg.World.Manager
	}
	sender, err := config.ParseAddress(raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("sender: %w", err)
	}
	return sender, nil
}
