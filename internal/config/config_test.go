package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadSimulateDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadSimulate("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.World.BaseThreshold != 1200 || cfg.World.LimitThreshold != 600 || cfg.World.Period != 3600 {
		t.Fatalf("unexpected vault defaults: %+v", cfg.World)
	}
	if cfg.World.Token0Decimals != 6 || cfg.World.Token1Decimals != 18 {
		t.Fatalf("unexpected token defaults: %+v", cfg.World)
	}
	if cfg.Steps != 24 || cfg.Sinks.Out != "./data/events.jsonl" || cfg.Sinks.RedisAddr != "" {
		t.Fatalf("unexpected run defaults: %+v", cfg)
	}
}

func TestLoadSimulateLayers(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "vaultd.yaml")
	content := "steps: 5\nbase-threshold: 2400\ndepositors:\n  - 0x0000000000000000000000000000000000000001\n  - 0x0000000000000000000000000000000000000002\n"
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("VAULT_PERIOD", "60")

	flags := pflag.NewFlagSet("simulate", pflag.ContinueOnError)
	flags.Int("steps", 24, "")
	if err := flags.Parse([]string{"--steps=7"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := LoadSimulate(cfgFile, flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Steps != 7 {
		t.Fatalf("flag should win over file, got %d", cfg.Steps)
	}
	if cfg.World.BaseThreshold != 2400 {
		t.Fatalf("file value lost: %d", cfg.World.BaseThreshold)
	}
	if cfg.World.Period != 60 {
		t.Fatalf("env value lost: %d", cfg.World.Period)
	}
	if len(cfg.World.Depositors) != 2 {
		t.Fatalf("depositors mismatch: %v", cfg.World.Depositors)
	}
}

func TestLoadKeeperDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadKeeper("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Schedule != "@every 10s" || cfg.Workers != 4 || cfg.RetryBackoff != 500*time.Millisecond {
		t.Fatalf("unexpected keeper defaults: %+v", cfg)
	}
	if cfg.World.Vaults != 1 {
		t.Fatalf("world defaults missing: %+v", cfg.World)
	}
}

func TestLoadInspectRequiresVault(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("VAULT_RPC", "http://127.0.0.1:8545")

	if _, err := LoadInspect("", nil); err == nil {
		t.Fatalf("expected error without vault")
	}
	t.Setenv("VAULT_VAULT", "not-an-address")
	if _, err := LoadInspect("", nil); err == nil {
		t.Fatalf("expected error for invalid vault")
	}
}

func TestLoadSwapsPools(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("VAULT_RPC", "http://127.0.0.1:8545")
	t.Setenv("VAULT_POOL", "0x8ad599c3A0ff1De082011EFDDc58f1908eb6e6D8, 0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640")

	cfg, err := LoadSwaps("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Pools) != 2 || cfg.BatchSize != 2000 {
		t.Fatalf("unexpected swaps config: %+v", cfg)
	}
}

func TestLoadAggregateWindow(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("VAULT_WINDOW", "15m")

	cfg, err := LoadAggregate("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Window != 15*time.Minute {
		t.Fatalf("window mismatch: %s", cfg.Window)
	}

	t.Setenv("VAULT_WINDOW", "500ms")
	if _, err := LoadAggregate("", nil); err == nil {
		t.Fatalf("expected error for sub-second window")
	}
}

func TestParseAmount(t *testing.T) {
	cases := map[string]string{
		"21000e6": "21000000000",
		"10e18":   "10000000000000000000",
		"":        "0",
		" 42 ":    "42",
	}
	for input, want := range cases {
		got, err := ParseAmount(input)
		if err != nil {
			t.Fatalf("%q: %v", input, err)
		}
		if got.String() != want {
			t.Fatalf("%q: got %s want %s", input, got, want)
		}
	}
	for _, bad := range []string{"-1", "1.5", "abc"} {
		if _, err := ParseAmount(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestParseAddresses(t *testing.T) {
	addrs, err := ParseAddresses([]string{"0x0000000000000000000000000000000000000001", ""})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(addrs) != 1 {
		t.Fatalf("expected one address, got %d", len(addrs))
	}
	if _, err := ParseAddresses([]string{"0x123"}); err == nil {
		t.Fatalf("expected error for short address")
	}
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("2023-11-14T22:13:20Z")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ts != 1_700_000_000 {
		t.Fatalf("timestamp mismatch: %d", ts)
	}
	if ts, _ := ParseTimestamp("1700000000"); ts != 1_700_000_000 {
		t.Fatalf("unix timestamp mismatch: %d", ts)
	}
}
