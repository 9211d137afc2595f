package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "vaultd",
		Short:        "Concentrated-liquidity vault simulator, keeper and analytics",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay swap flow against simulated vaults and print their positions",
		RunE:  runSimulate,
	}
	addWorldFlags(simulateCmd.Flags())
	addRunFlags(simulateCmd.Flags())
	addSinkFlags(simulateCmd.Flags())
	root.AddCommand(simulateCmd)

	keeperCmd := &cobra.Command{
		Use:   "keeper",
		Short: "Rebalance simulated vaults on a schedule and serve Prometheus metrics",
		RunE:  runKeeper,
	}
	addWorldFlags(keeperCmd.Flags())
	addRunFlags(keeperCmd.Flags())
	addSinkFlags(keeperCmd.Flags())
	keeperCmd.Flags().String("schedule", "@every 10s", "cron schedule (seconds field enabled)")
	keeperCmd.Flags().Int("workers", 4, "concurrent vault rebalances")
	keeperCmd.Flags().Int("queue-size", 0, "pending rebalance queue size, 0 means workers*4")
	keeperCmd.Flags().Int("max-retries", 3, "retries for non-gating failures")
	keeperCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	keeperCmd.Flags().Duration("run-timeout", 30*time.Second, "timeout of one scheduled run")
	keeperCmd.Flags().String("checkpoint", "./data/keeper.json", "checkpoint file path")
	keeperCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	keeperCmd.Flags().String("metrics-addr", ":9090", "listen address for /metrics")
	keeperCmd.Flags().Duration("market-interval", 2*time.Second, "wall time between simulated market steps")
	root.AddCommand(keeperCmd)

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Read a deployed vault over JSON-RPC and print its position report",
		RunE:  runInspect,
	}
	inspectCmd.Flags().String("rpc", "", "RPC URL")
	inspectCmd.Flags().String("vault", "", "vault address")
	inspectCmd.Flags().Uint64("block", 0, "block number, 0 means latest")
	inspectCmd.Flags().String("pg-dsn", "", "optional Postgres DSN to store the snapshot")
	inspectCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(inspectCmd)

	aggregateCmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate vault events into fee window metrics",
		RunE:  runAggregate,
	}
	aggregateCmd.Flags().String("rpc", "", "optional RPC URL for token metadata and TVL fallback")
	aggregateCmd.Flags().String("in", "", "input events JSONL")
	aggregateCmd.Flags().Duration("window", time.Hour, "aggregation window (e.g. 5m, 1h)")
	aggregateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	aggregateCmd.Flags().Int("batch-size", 1000, "batch size for DB writes")
	aggregateCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	aggregateCmd.Flags().String("recompute-from", "", "recompute from timestamp (unix seconds or RFC3339)")
	aggregateCmd.Flags().String("token0", "", "token0 address when not resolved over RPC")
	aggregateCmd.Flags().Uint8("token0-decimals", 6, "token0 decimals")
	aggregateCmd.Flags().String("token1", "", "token1 address when not resolved over RPC")
	aggregateCmd.Flags().Uint8("token1-decimals", 18, "token1 decimals")
	aggregateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(aggregateCmd)

	swapsCmd := &cobra.Command{
		Use:   "swaps",
		Short: "Export pool Swap events for replay",
		RunE:  runSwaps,
	}
	swapsCmd.Flags().String("rpc", "", "RPC URL")
	swapsCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	swapsCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	swapsCmd.Flags().StringSlice("pool", nil, "pool addresses (comma-separated)")
	swapsCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	swapsCmd.Flags().String("out", "./data/swaps.jsonl", "output JSONL path")
	swapsCmd.Flags().String("checkpoint", "./data/swaps.checkpoint.json", "checkpoint file path")
	swapsCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	swapsCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	swapsCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	swapsCmd.Flags().Bool("pool-meta", false, "attach pool metadata to each record")
	swapsCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(swapsCmd)

	return root
}

func addWorldFlags(fs *pflag.FlagSet) {
	fs.Uint64("chain-id", 1, "chain id of the simulated ledger")
	fs.Uint64("start-time", 1_700_000_000, "unix time of the simulated clock at start")
	fs.String("token0", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "token0 address")
	fs.String("token0-symbol", "USDC", "token0 symbol")
	fs.Uint8("token0-decimals", 6, "token0 decimals")
	fs.String("token1", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", "token1 address")
	fs.String("token1-symbol", "WETH", "token1 symbol")
	fs.Uint8("token1-decimals", 18, "token1 decimals")
	fs.String("pool", "0x8ad599c3A0ff1De082011EFDDc58f1908eb6e6D8", "pool address")
	fs.Uint32("pool-fee", 3000, "pool fee in hundredths of a bip")
	fs.Int32("start-tick", 200_311, "pool tick at start")
	fs.String("lp-liquidity", "2e17", "background liquidity around the start price")
	fs.Int32("lp-width", 6000, "half width in ticks of the background liquidity")
	fs.Uint32("protocol-fee", 30_000, "factory protocol fee (1e6 = 100%)")
	fs.Int("vaults", 1, "number of vaults on the pool")
	fs.String("manager", "0x0000000000000000000000000000000000001111", "vault manager")
	fs.String("rebalance-delegate", "", "address allowed to rebalance besides the manager; empty lets anyone")
	fs.Uint32("manager-fee", 0, "manager fee (1e6 = 100%)")
	fs.String("max-total-supply", "1e20", "share supply cap")
	fs.Int32("base-threshold", 1200, "base order half width in ticks")
	fs.Int32("limit-threshold", 600, "limit order width in ticks")
	fs.Uint32("full-range-weight", 0, "share of capital in the full range (1e6 = 100%)")
	fs.Uint32("period", 3600, "minimum seconds between rebalances")
	fs.Int32("min-tick-move", 0, "minimum tick move between rebalances")
	fs.Int32("max-twap-deviation", 100, "maximum ticks between spot and TWAP")
	fs.Uint32("twap-duration", 60, "TWAP window in seconds")
	fs.StringSlice("depositors", nil, "depositor addresses, defaults to the manager")
	fs.String("deposit0", "21000e6", "token0 deposited by each depositor")
	fs.String("deposit1", "10e18", "token1 deposited by each depositor")
	fs.Uint64("warmup", 120, "seconds of price history before the first deposit")
}

func addRunFlags(fs *pflag.FlagSet) {
	fs.Int("steps", 24, "simulation steps")
	fs.Uint64("step-seconds", 3600, "simulated seconds per step")
	fs.String("round-trip", "5e17", "token1 swapped in and back each step when no swaps file is given")
	fs.String("swaps-in", "", "Swap events JSONL to replay instead of round trips")
	fs.Int("swaps-per-step", 1, "replayed swaps per step")
	fs.String("sender", "", "keeper sender, defaults to the manager")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
}

func addSinkFlags(fs *pflag.FlagSet) {
	fs.String("out", "./data/events.jsonl", "events JSONL path, empty disables")
	fs.String("pg-dsn", "", "Postgres DSN for events and snapshots")
	fs.String("redis-addr", "", "Redis address for the event stream")
	fs.String("redis-password", "", "Redis password")
	fs.Int("redis-db", 0, "Redis database")
	fs.String("redis-stream", "vaultd:events", "Redis stream key")
	fs.Int64("redis-max-len", 100_000, "approximate stream length cap")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
