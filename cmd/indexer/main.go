package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"intentScope/internal/config"
)

func main() {
	root := &cobra.Command{
		Use:          "indexer",
		Short:        "Protocol adapter event indexer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run one indexing pass loop over every configured chain",
		RunE:  runIndexer,
	}
	addIndexFlags(runCmd)
	root.AddCommand(runCmd)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Repeat runs on an interval and serve /metrics",
		RunE:  runWatch,
	}
	addIndexFlags(watchCmd)
	watchCmd.Flags().Duration("interval", time.Minute, "time between runs")
	watchCmd.Flags().String("metrics-addr", ":9090", "metrics listen address")
	root.AddCommand(watchCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema",
		RunE:  runMigrate,
	}
	migrateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	migrateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(migrateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addIndexFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("pg-dsn", "", "Postgres DSN (empty keeps state in memory)")
	f.Uint64("chain-id", 0, "single chain id (alternative to the chains list)")
	f.String("chain-name", "", "single chain display name")
	f.String("rpc", "", "single chain RPC URL")
	f.String("explorer", "", "single chain block explorer URL")
	f.String("contract", "", "single chain protocol adapter address")
	f.Uint64("start-block", 0, "single chain first block to index")
	f.String("source", "rpc", "single chain source (rpc, explorer)")
	f.Uint64("window-size", 10, "blocks per RPC window")
	f.Int("max-passes", 20, "maximum passes per chain per run")
	f.Int("concurrency", 10, "in-flight request cap per upstream")
	f.Int("max-retries", 3, "attempts per upstream request")
	f.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	f.Duration("http-timeout", 30*time.Second, "upstream request timeout")
	f.Int("explorer-tx-pages", 3, "explorer transaction pages per pass")
	f.Int("explorer-log-pages", 2, "explorer log pages per pass")
	f.String("price-feed-url", "", "Pyth Hermes base URL")
	f.StringSlice("price-feeds", nil, "extra SYMBOL=feedId price feeds")
	f.StringSlice("kafka-brokers", nil, "Kafka brokers for alerts")
	f.String("kafka-alert-topic", "", "Kafka alert topic")
	f.String("log-level", "info", "log level (debug, info, warn, error)")
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func runIndexer(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("indexer start",
		zap.Int("chains", len(cfg.Chains)),
		zap.Uint64("window_size", cfg.WindowSize),
		zap.Int("max_passes", cfg.MaxPasses),
		zap.Bool("postgres", cfg.PGDSN != ""),
	)

	reports := a.runOnce(ctx)
	enc := json.NewEncoder(cmd.OutOrStdout())
	failed := 0
	for _, r := range reports {
		if err := enc.Encode(r); err != nil {
			return err
		}
		if r.Failed() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d chains failed", failed, len(reports))
	}
	return nil
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
