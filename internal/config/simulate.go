package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// SinkConfig selects where committed events go. Empty values disable a sink.
type SinkConfig struct {
	Out           string
	PGDSN         string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStream   string
	RedisMaxLen   int64
}

// WorldConfig describes the simulated chain: tokens, pool, factory, vaults
// and actors. Addresses and amounts stay textual and are parsed by the
// caller.
type WorldConfig struct {
	ChainID   uint64
	StartTime uint64

	Token0         string
	Token0Symbol   string
	Token0Decimals uint8
	Token1         string
	Token1Symbol   string
	Token1Decimals uint8

	Pool        string
	PoolFee     uint32
	StartTick   int32
	LP          string
	LPLiquidity string
	LPWidth     int32

	Factory     string
	Governance  string
	ProtocolFee uint32

	Vaults            int
	Manager           string
	RebalanceDelegate string
	ManagerFee        uint32
	MaxTotalSupply    string
	BaseThreshold     int32
	LimitThreshold    int32
	FullRangeWeight   uint32
	Period            uint32
	MinTickMove       int32
	MaxTwapDeviation  int32
	TwapDuration      uint32

	Depositors []string
	Deposit0   string
	Deposit1   string
	Trader     string
	Funding0   string
	Funding1   string
	Warmup     uint64
}

// SimulateConfig holds configuration for the simulate command.
type SimulateConfig struct {
	World        WorldConfig
	Sinks        SinkConfig
	Steps        int
	StepSeconds  uint64
	RoundTrip    string
	SwapsIn      string
	SwapsPerStep int
	Sender       string
	LogLevel     string
}

// KeeperConfig holds configuration for the keeper command.
type KeeperConfig struct {
	SimulateConfig
	Schedule          string
	Workers           int
	QueueSize         int
	MaxRetries        int
	RetryBackoff      time.Duration
	RunTimeout        time.Duration
	Checkpoint        string
	CheckpointEnabled bool
	MetricsAddr       string
	MarketInterval    time.Duration
}

var worldDefaults = map[string]any{
	"chain-id":           uint64(1),
	"start-time":         uint64(1_700_000_000),
	"token0":             "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
	"token0-symbol":      "USDC",
	"token0-decimals":    6,
	"token1":             "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
	"token1-symbol":      "WETH",
	"token1-decimals":    18,
	"pool":               "0x8ad599c3A0ff1De082011EFDDc58f1908eb6e6D8",
	"pool-fee":           3000,
	"start-tick":         200_311,
	"lp":                 "0x0000000000000000000000000000000000006666",
	"lp-liquidity":       "2e17",
	"lp-width":           6000,
	"factory":            "0x0000000000000000000000000000000000f4c701",
	"governance":         "0x0000000000000000000000000000000000004444",
	"protocol-fee":       30_000,
	"vaults":             1,
	"manager":            "0x0000000000000000000000000000000000001111",
	"rebalance-delegate": "",
	"manager-fee":        0,
	"max-total-supply":   "1e20",
	"base-threshold":     1200,
	"limit-threshold":    600,
	"full-range-weight":  0,
	"period":             3600,
	"min-tick-move":      0,
	"max-twap-deviation": 100,
	"twap-duration":      60,
	"deposit0":           "21000e6",
	"deposit1":           "10e18",
	"trader":             "0x0000000000000000000000000000000000005555",
	"funding0":           "1e15",
	"funding1":           "1e24",
	"warmup":             uint64(120),
}

var simulateDefaults = map[string]any{
	"steps":          24,
	"step-seconds":   uint64(3600),
	"round-trip":     "5e17",
	"swaps-per-step": 1,
	"out":            "./data/events.jsonl",
	"redis-stream":   "vaultd:events",
	"redis-max-len":  int64(100_000),
	"log-level":      "info",
}

var keeperDefaults = map[string]any{
	"schedule":           "@every 10s",
	"workers":            4,
	"max-retries":        3,
	"retry-backoff":      500 * time.Millisecond,
	"run-timeout":        30 * time.Second,
	"checkpoint":         "./data/keeper.json",
	"checkpoint-enabled": true,
	"metrics-addr":       ":9090",
	"market-interval":    2 * time.Second,
}

// LoadSimulate merges config file, environment variables, and flags into SimulateConfig.
func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := load(cfgFile, flags, merge(worldDefaults, simulateDefaults))
	if err != nil {
		return SimulateConfig{}, err
	}
	cfg := simulateFrom(v)
	if cfg.World.Vaults <= 0 {
		return SimulateConfig{}, fmt.Errorf("vaults must be > 0")
	}
	if cfg.Steps < 0 {
		return SimulateConfig{}, fmt.Errorf("steps must be >= 0")
	}
	return cfg, nil
}

// LoadKeeper merges config file, environment variables, and flags into KeeperConfig.
func LoadKeeper(cfgFile string, flags *pflag.FlagSet) (KeeperConfig, error) {
	v, err := load(cfgFile, flags, merge(worldDefaults, simulateDefaults, keeperDefaults))
	if err != nil {
		return KeeperConfig{}, err
	}
	cfg := KeeperConfig{
		SimulateConfig:    simulateFrom(v),
		Schedule:          v.GetString("schedule"),
		Workers:           v.GetInt("workers"),
		QueueSize:         v.GetInt("queue-size"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		RunTimeout:        v.GetDuration("run-timeout"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		MetricsAddr:       v.GetString("metrics-addr"),
		MarketInterval:    v.GetDuration("market-interval"),
	}
	if cfg.Schedule == "" {
		return KeeperConfig{}, fmt.Errorf("schedule is required")
	}
	if cfg.World.Vaults <= 0 {
		return KeeperConfig{}, fmt.Errorf("vaults must be > 0")
	}
	return cfg, nil
}

func simulateFrom(v *viper.Viper) SimulateConfig {
	return SimulateConfig{
		World: WorldConfig{
			ChainID:           v.GetUint64("chain-id"),
			StartTime:         v.GetUint64("start-time"),
			Token0:            v.GetString("token0"),
			Token0Symbol:      v.GetString("token0-symbol"),
			Token0Decimals:    uint8(v.GetUint("token0-decimals")),
			Token1:            v.GetString("token1"),
			Token1Symbol:      v.GetString("token1-symbol"),
			Token1Decimals:    uint8(v.GetUint("token1-decimals")),
			Pool:              v.GetString("pool"),
			PoolFee:           v.GetUint32("pool-fee"),
			StartTick:         v.GetInt32("start-tick"),
			LP:                v.GetString("lp"),
			LPLiquidity:       v.GetString("lp-liquidity"),
			LPWidth:           v.GetInt32("lp-width"),
			Factory:           v.GetString("factory"),
			Governance:        v.GetString("governance"),
			ProtocolFee:       v.GetUint32("protocol-fee"),
			Vaults:            v.GetInt("vaults"),
			Manager:           v.GetString("manager"),
			RebalanceDelegate: v.GetString("rebalance-delegate"),
			ManagerFee:        v.GetUint32("manager-fee"),
			MaxTotalSupply:    v.GetString("max-total-supply"),
			BaseThreshold:     v.GetInt32("base-threshold"),
			LimitThreshold:    v.GetInt32("limit-threshold"),
			FullRangeWeight:   v.GetUint32("full-range-weight"),
			Period:            v.GetUint32("period"),
			MinTickMove:       v.GetInt32("min-tick-move"),
			MaxTwapDeviation:  v.GetInt32("max-twap-deviation"),
			TwapDuration:      v.GetUint32("twap-duration"),
			Depositors:        getStringSlice(v, "depositors"),
			Deposit0:          v.GetString("deposit0"),
			Deposit1:          v.GetString("deposit1"),
			Trader:            v.GetString("trader"),
			Funding0:          v.GetString("funding0"),
			Funding1:          v.GetString("funding1"),
			Warmup:            v.GetUint64("warmup"),
		},
		Sinks:        sinksFrom(v),
		Steps:        v.GetInt("steps"),
		StepSeconds:  v.GetUint64("step-seconds"),
		RoundTrip:    v.GetString("round-trip"),
		SwapsIn:      v.GetString("swaps-in"),
		SwapsPerStep: v.GetInt("swaps-per-step"),
		Sender:       v.GetString("sender"),
		LogLevel:     v.GetString("log-level"),
	}
}

func sinksFrom(v *viper.Viper) SinkConfig {
	return SinkConfig{
		Out:           v.GetString("out"),
		PGDSN:         v.GetString("pg-dsn"),
		RedisAddr:     v.GetString("redis-addr"),
		RedisPassword: v.GetString("redis-password"),
		RedisDB:       v.GetInt("redis-db"),
		RedisStream:   v.GetString("redis-stream"),
		RedisMaxLen:   v.GetInt64("redis-max-len"),
	}
}

func merge(sets ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, set := range sets {
		for k, val := range set {
			out[k] = val
		}
	}
	return out
}
