package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"intentScope/internal/alert"
	"intentScope/internal/chain"
	"intentScope/internal/config"
	"intentScope/internal/indexer"
	"intentScope/internal/metrics"
	"intentScope/internal/model"
	"intentScope/internal/pricing"
	"intentScope/internal/source"
	"intentScope/internal/storage"
	"intentScope/internal/storage/memory"
	"intentScope/internal/storage/postgres"
	"intentScope/internal/transport"
)

// app owns every long-lived dependency of a run or watch invocation.
type app struct {
	runner  *indexer.Runner
	store   storage.Store
	alerter alert.Alerter
	metrics *metrics.Metrics
	clients []*chain.Client
	logger  *zap.Logger
}

func newApp(ctx context.Context, cfg config.Config, reg *prometheus.Registry, logger *zap.Logger) (*app, error) {
	a := &app{logger: logger, metrics: metrics.New(reg)}
	if err := a.init(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context, cfg config.Config) error {
	logger := a.logger

	if cfg.PGDSN != "" {
		pg, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return err
		}
		a.store = pg
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	} else {
		logger.Warn("pg-dsn not set, state is kept in memory for this process only")
		a.store = memory.New()
	}

	alerters := alert.Multi{alert.NewLogAlerter(logger)}
	if len(cfg.KafkaBrokers) > 0 {
		k, err := alert.NewKafkaAlerter(cfg.KafkaBrokers, cfg.KafkaAlertTopic, nil)
		if err != nil {
			return err
		}
		alerters = append(alerters, k)
	}
	a.alerter = alerters

	feedClient := transport.NewHTTPClient(a.newTransport(cfg), cfg.HTTPTimeout)
	resolver := pricing.NewResolver(pricing.Config{
		Tokens:      cfg.Tokens,
		Feeds:       cfg.PriceFeeds,
		Concurrency: cfg.Concurrency,
	}, pricing.NewPythClient(cfg.PriceFeedURL, feedClient), logger)

	pipelines := make([]*indexer.Pipeline, 0, len(cfg.Chains))
	for _, cc := range cfg.Chains {
		p, err := a.newPipeline(ctx, cfg, cc, resolver)
		if err != nil {
			return fmt.Errorf("chain %d: %w", cc.ID, err)
		}
		pipelines = append(pipelines, p)
	}

	a.runner = indexer.NewRunner(indexer.RunConfig{MaxPasses: cfg.MaxPasses}, pipelines, logger)
	return nil
}

func (a *app) newTransport(cfg config.Config) *transport.Transport {
	return transport.New(transport.Config{
		MaxInFlight: cfg.Concurrency,
		MaxAttempts: cfg.MaxRetries,
		BaseDelay:   cfg.RetryBackoff,
		OnRetry: func(host string, attempt int, wait time.Duration, err error) {
			a.metrics.IncRetry(host)
			a.logger.Warn("upstream request retry",
				zap.String("host", host),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		},
	})
}

func (a *app) newPipeline(ctx context.Context, cfg config.Config, cc model.ChainConfig, resolver *pricing.Resolver) (*indexer.Pipeline, error) {
	logger := a.logger.With(zap.Uint64("chain_id", cc.ID), zap.String("chain", cc.Name))
	httpClient := transport.NewHTTPClient(a.newTransport(cfg), cfg.HTTPTimeout)

	client, err := chain.NewClient(ctx, cc.RPCURL, httpClient)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	a.clients = append(a.clients, client)

	contract := common.HexToAddress(cc.ContractAddress)
	var src source.Source
	switch cc.Source {
	case model.SourceExplorer:
		src = source.NewExplorerSource(source.ExplorerConfig{
			ChainID:     cc.ID,
			Contract:    contract,
			TxPages:     cfg.ExplorerTxPages,
			LogPages:    cfg.ExplorerLogPages,
			Concurrency: cfg.Concurrency,
		}, source.NewExplorerClient(cc.ExplorerURL, httpClient), a.store, logger)
	default:
		src = source.NewRPCSource(source.RPCConfig{
			ChainID:     cc.ID,
			Contract:    contract,
			StartBlock:  cc.StartBlock,
			WindowSize:  cfg.WindowSize,
			Concurrency: cfg.Concurrency,
		}, client, logger)
	}

	return indexer.NewPipeline(indexer.PipelineConfig{
		ChainID:  cc.ID,
		Name:     cc.Name,
		Contract: contract,
		Identity: client,
	}, src, a.store, resolver, client, a.metrics, logger), nil
}

// runOnce executes one run and raises an alert for every failed chain.
func (a *app) runOnce(ctx context.Context) []indexer.ChainReport {
	reports := a.runner.Run(ctx)
	now := time.Now()
	for _, r := range reports {
		a.logger.Info("chain run complete",
			zap.Uint64("chain_id", r.ChainID),
			zap.Int("passes_run", r.PassesRun),
			zap.Int("events_found", r.EventsFound),
			zap.Uint64("last_block", r.LastBlock),
			zap.Bool("caught_up", r.CaughtUp),
			zap.Strings("errors", r.Errors),
		)
		if al, ok := r.Alert(now); ok {
			if err := a.alerter.Send(context.WithoutCancel(ctx), al); err != nil {
				a.logger.Error("alert delivery failed", zap.Uint64("chain_id", r.ChainID), zap.Error(err))
			}
		}
	}
	return reports
}

func (a *app) metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (a *app) Close() {
	for _, c := range a.clients {
		c.Close()
	}
	if a.alerter != nil {
		if err := a.alerter.Close(); err != nil {
			a.logger.Warn("close alerter", zap.Error(err))
		}
	}
	if a.store != nil {
		a.store.Close()
	}
}
