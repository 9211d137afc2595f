package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityVault/internal/config"
	"liquidityVault/internal/keeper"
	"liquidityVault/internal/observability"
	"liquidityVault/internal/simulate"
)

func runKeeper(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadKeeper(cfgFile, cmd.Flags())
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

	metrics := observability.NewMetrics()
	world, sinks, err := buildWorld(ctx, cfg.SimulateConfig, metrics, logger)
	if err != nil {
		return err
	}
	defer sinks.Close()

	sender, err := senderFrom(cfg.SimulateConfig)
	if err != nil {
		return err
	}
	k, err := keeper.New(keeper.Config{
		Schedule:          cfg.Schedule,
		Sender:            sender,
		Workers:           cfg.Workers,
		QueueSize:         cfg.QueueSize,
		MaxRetries:        cfg.MaxRetries,
		RetryBaseDelay:    cfg.RetryBackoff,
		RunTimeout:        cfg.RunTimeout,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
	}, keeper.FactorySource(world.Factory), logger,
		keeper.WithMetrics(metrics),
		keeper.WithSnapshotStore(sinks.snapshots),
		keeper.WithTokens(world.Ledger),
	)
	if err != nil {
		return err
	}
	defer k.Close()

	var server *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		server = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	sched, err := scheduleFrom(cfg.SimulateConfig)
	if err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		runMarket(ctx, world, sched, cfg.MarketInterval, logger)
	}()

	runErr := k.Run(ctx)
	stop()
	<-done

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown", zap.Error(err))
		}
	}
	return runErr
}

// runMarket keeps the simulated pool trading: every tick it plays the next
// recorded swaps (or a round trip) and advances the clock by one step.
func runMarket(ctx context.Context, world *simulate.World, sched simulate.Schedule, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	perStep := sched.SwapsPerStep
	if perStep <= 0 {
		perStep = 1
	}
	next := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		switch {
		case next < len(sched.Swaps):
			for i := 0; i < perStep && next < len(sched.Swaps); i++ {
				if err := world.ReplaySwap(ctx, sched.Swaps[next]); err != nil {
					logger.Debug("replay swap failed", zap.Int("index", next), zap.Error(err))
				}
				next++
			}
		case sched.RoundTrip != nil && sched.RoundTrip.Sign() > 0:
			if err := world.RoundTrip(ctx, sched.RoundTrip); err != nil {
				logger.Debug("round trip failed", zap.Error(err))
			}
		}
		world.Ledger.Advance(sched.StepSeconds)
	}
}
