package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// AggregateConfig holds configuration for aggregation.
type AggregateConfig struct {
	RPCURL         string
	Input          string
	Window         time.Duration
	PGDSN          string
	BatchSize      int
	StateFile      string
	RecomputeFrom  string
	Token0         string
	Token0Decimals uint8
	Token1         string
	Token1Decimals uint8
	LogLevel       string
}

// LoadAggregate merges config file, environment variables, and flags into AggregateConfig.
func LoadAggregate(cfgFile string, flags *pflag.FlagSet) (AggregateConfig, error) {
	v, err := load(cfgFile, flags, map[string]any{
		"batch-size":      1000,
		"log-level":       "info",
		"window":          time.Hour,
		"token0-decimals": 6,
		"token1-decimals": 18,
	})
	if err != nil {
		return AggregateConfig{}, err
	}

	cfg := AggregateConfig{
		RPCURL:         v.GetString("rpc"),
		Input:          v.GetString("in"),
		Window:         v.GetDuration("window"),
		PGDSN:          v.GetString("pg-dsn"),
		BatchSize:      v.GetInt("batch-size"),
		StateFile:      v.GetString("state-file"),
		RecomputeFrom:  v.GetString("recompute-from"),
		Token0:         v.GetString("token0"),
		Token0Decimals: uint8(v.GetUint("token0-decimals")),
		Token1:         v.GetString("token1"),
		Token1Decimals: uint8(v.GetUint("token1-decimals")),
		LogLevel:       v.GetString("log-level"),
	}
	if cfg.Window < time.Second {
		return AggregateConfig{}, fmt.Errorf("window must be at least 1s")
	}
	return cfg, nil
}

// InspectConfig holds configuration for the inspect command.
type InspectConfig struct {
	RPCURL   string
	Vault    string
	Block    uint64
	PGDSN    string
	LogLevel string
}

// LoadInspect merges config file, environment variables, and flags into InspectConfig.
func LoadInspect(cfgFile string, flags *pflag.FlagSet) (InspectConfig, error) {
	v, err := load(cfgFile, flags, map[string]any{"log-level": "info"})
	if err != nil {
		return InspectConfig{}, err
	}
	cfg := InspectConfig{
		RPCURL:   v.GetString("rpc"),
		Vault:    v.GetString("vault"),
		Block:    v.GetUint64("block"),
		PGDSN:    v.GetString("pg-dsn"),
		LogLevel: v.GetString("log-level"),
	}
	if cfg.RPCURL == "" {
		return InspectConfig{}, fmt.Errorf("rpc url is required")
	}
	if _, err := ParseAddress(cfg.Vault); err != nil || cfg.Vault == "" {
		return InspectConfig{}, fmt.Errorf("valid vault address is required")
	}
	return cfg, nil
}

// SwapsConfig holds configuration for the swaps command.
type SwapsConfig struct {
	RPCURL            string
	FromBlock         uint64
	ToBlock           uint64
	Pools             []string
	BatchSize         uint64
	Out               string
	Checkpoint        string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	PoolMeta          bool
	LogLevel          string
}

// LoadSwaps merges config file, environment variables, and flags into SwapsConfig.
func LoadSwaps(cfgFile string, flags *pflag.FlagSet) (SwapsConfig, error) {
	v, err := load(cfgFile, flags, map[string]any{
		"batch-size":         uint64(2000),
		"out":                "./data/swaps.jsonl",
		"checkpoint":         "./data/swaps.checkpoint.json",
		"checkpoint-enabled": true,
		"max-retries":        5,
		"retry-backoff":      500 * time.Millisecond,
		"log-level":          "info",
	})
	if err != nil {
		return SwapsConfig{}, err
	}

	cfg := SwapsConfig{
		RPCURL:            v.GetString("rpc"),
		FromBlock:         v.GetUint64("from"),
		ToBlock:           v.GetUint64("to"),
		Pools:             getStringSlice(v, "pool"),
		BatchSize:         v.GetUint64("batch-size"),
		Out:               v.GetString("out"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		PoolMeta:          v.GetBool("pool-meta"),
		LogLevel:          v.GetString("log-level"),
	}
	if cfg.RPCURL == "" {
		return SwapsConfig{}, fmt.Errorf("rpc url is required")
	}
	if len(cfg.Pools) == 0 {
		return SwapsConfig{}, fmt.Errorf("at least one pool is required")
	}
	return cfg, nil
}
