package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"vaultYield/internal/apr"
	"vaultYield/internal/config"
	"vaultYield/internal/metrics"
	"vaultYield/internal/model"
	"vaultYield/internal/runner"
	"vaultYield/internal/storage"
	"vaultYield/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "vaultapr",
		Short:        "G-UNI vault APR estimator",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Compute vault APRs from the subgraph and an RPC node",
		RunE:  runLive,
	}

	runCmd.Flags().String("rpc", "", "Ethereum RPC URL")
	runCmd.Flags().String("subgraph-url", config.DefaultSubgraphURL, "G-UNI subgraph GraphQL endpoint")
	runCmd.Flags().String("helper-address", "", "liquidity helper contract address (default mainnet helper)")
	runCmd.Flags().Int("max-retries", 5, "maximum retry attempts for RPC and subgraph requests")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	addCommonFlags(runCmd)

	root.AddCommand(runCmd)

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Compute vault APRs from a recorded JSONL file",
		RunE:  runReplay,
	}

	replayCmd.Flags().String("in", "", "input replay JSONL")
	addCommonFlags(replayCmd)

	root.AddCommand(replayCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("pool", nil, "vault ids to compute (comma-separated), empty means all")
	cmd.Flags().Uint64("blocks-per-year", apr.DefaultBlocksPerYear, "blocks per year used for annualization")
	cmd.Flags().Uint64("supply-lag-blocks", apr.DefaultSupplyLagBlocks, "minimum age of the supply snapshot in blocks")
	cmd.Flags().Int("max-workers", 8, "vaults computed concurrently")
	cmd.Flags().Duration("fetch-timeout", 30*time.Second, "per-vault fetch timeout")
	cmd.Flags().Duration("interval", 0, "repeat every interval, 0 means a single pass")
	cmd.Flags().String("out", "", "optional output JSONL path")
	cmd.Flags().String("pg-dsn", "", "optional Postgres DSN")
	cmd.Flags().String("metrics-addr", "", "optional address for the Prometheus /metrics endpoint")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

// execute wires the engine, sinks and metrics around the given sources and runs the passes.
func execute(ctx context.Context, cfg config.Common, history runner.HistorySource, live runner.LiveSource, logger *zap.Logger, stdout io.Writer) error {
	estimator := apr.NewEstimator(apr.Config{
		BlocksPerYear:   cfg.BlocksPerYear,
		SupplyLagBlocks: cfg.SupplyLagBlocks,
	}, logger.Named("apr"))

	recorder := metrics.NewRecorder()
	deps := runner.Deps{
		History:   history,
		Live:      live,
		Estimator: estimator,
		Observer:  recorder,
	}

	if cfg.Out != "" {
		deps.Sinks = append(deps.Sinks, storage.NewJSONLSink(cfg.Out))
	}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		deps.Sinks = append(deps.Sinks, store)
		deps.Vaults = store
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := recorder.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	r, err := runner.NewRunner(runner.RunConfig{
		MaxWorkers:   cfg.MaxWorkers,
		FetchTimeout: cfg.FetchTimeout,
		Pools:        cfg.Pools,
		Interval:     cfg.Interval,
	}, deps, logger.Named("runner"))
	if err != nil {
		return err
	}

	logger.Info("vaultapr start",
		zap.Strings("pools", cfg.Pools),
		zap.Uint64("blocks_per_year", cfg.BlocksPerYear),
		zap.Uint64("supply_lag_blocks", cfg.SupplyLagBlocks),
		zap.Int("max_workers", cfg.MaxWorkers),
		zap.Duration("interval", cfg.Interval),
		zap.String("out", cfg.Out),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
	)

	return r.Loop(ctx, func(results []model.VaultAPR) {
		for _, res := range results {
			fmt.Fprintln(stdout, formatResult(res))
		}
	})
}

// formatResult renders one vault as "pool 0xabcd: 12.345%".
func formatResult(res model.VaultAPR) string {
	id := res.PoolID
	if len(id) > 6 {
		id = id[:6]
	}
	if res.Status == model.StatusFailed {
		return fmt.Sprintf("pool %s: failed: %s", id, res.Error)
	}
	return fmt.Sprintf("pool %s: %.3f%%", id, res.APR*100)
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
