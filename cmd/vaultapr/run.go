package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vaultYield/internal/chain"
	"vaultYield/internal/config"
	"vaultYield/internal/subgraph"
	"vaultYield/internal/vault"
)

func runLive(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	reader, err := vault.NewReader(vault.ReaderConfig{
		HelperAddress: cfg.HelperAddress,
		MaxRetries:    cfg.MaxRetries,
		RetryBackoff:  cfg.RetryBackoff,
	}, chainClient, logger.Named("vault"))
	if err != nil {
		return err
	}

	history, err := subgraph.NewClient(subgraph.Config{
		URL:          cfg.SubgraphURL,
		MaxRetries:   cfg.MaxRetries,
		RetryWaitMin: cfg.RetryBackoff,
		RetryWaitMax: 6 * cfg.RetryBackoff,
		Timeout:      cfg.FetchTimeout,
	}, logger.Named("subgraph"))
	if err != nil {
		return err
	}

	logger.Info("live sources ready",
		zap.String("rpc", cfg.RPCURL),
		zap.String("chain_id", chainClient.ChainID().String()),
		zap.String("subgraph", cfg.SubgraphURL),
	)

	return execute(ctx, cfg.Common, history, reader, logger, cmd.OutOrStdout())
}
