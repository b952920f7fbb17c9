// Package main provides the entry point of the airdrop export scheduler and its API.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/memes-airdrop/internal/api"
	"github.com/memes-airdrop/internal/chain"
	"github.com/memes-airdrop/internal/config"
	"github.com/memes-airdrop/internal/exporter"
	"github.com/memes-airdrop/internal/logging"
	"github.com/memes-airdrop/internal/metrics"
	"github.com/memes-airdrop/internal/retry"
	"github.com/memes-airdrop/internal/service"
	"github.com/memes-airdrop/internal/storage"
	"github.com/memes-airdrop/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	postgresMigrations   = "migrations/postgres"
	clickhouseMigrations = "migrations/clickhouse"
	stopTimeout          = 45 * time.Second
)

func main() {
	runMigrations := flag.Bool("migrate", false, "Apply database migrations before starting")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(ctx, &cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	redisStore, err := storage.NewRedisStore(ctx, &cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer func() { _ = redisStore.Close() }()

	// The audit log is best-effort: without ClickHouse the scheduler still runs
	var clickhouse *storage.ClickHouseDB
	if cfg.Export.AuditEnabled {
		clickhouse, err = storage.NewClickHouseDB(ctx, &cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Warn("ClickHouse unavailable, export audit log disabled")
			clickhouse = nil
		} else {
			defer func() { _ = clickhouse.Close() }()
		}
	}

	if *runMigrations {
		if err := storage.RunMigrations(cfg.Database.Postgres.URL(), postgresMigrations); err != nil {
			logger.WithError(err).Fatal("Postgres migrations failed")
		}
		if clickhouse != nil {
			if err := storage.RunClickHouseMigrations(ctx, clickhouse, clickhouseMigrations); err != nil {
				logger.WithError(err).Fatal("ClickHouse migrations failed")
			}
		}
	}

	logger.Info("Connecting to chain...")
	chainClient, err := chain.Dial(ctx, &cfg.Chain, retry.DefaultRetryConfig())
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to chain RPC")
	}
	defer chainClient.Close()

	submitter, err := chain.NewSubmitter(chainClient, common.HexToAddress(cfg.Chain.AirdropContract), chain.SubmitterConfig{
		PrivateKeyHex:  cfg.Chain.AdminPrivateKey,
		ChainID:        chainClient.ChainID(),
		ConfirmTimeout: cfg.Export.ConfirmTimeout,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to bind airdrop contract")
	}
	if cfg.Chain.AdminPrivateKey == "" {
		logger.Warn("ADMIN_PRIVATE_KEY is not set; every export cycle will abort with a configuration error")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	exportMetrics := metrics.NewExportMetrics(registry)

	participants := storage.NewParticipantRepository(postgres)

	var audit exporter.AuditSink
	var history api.BatchHistory
	if clickhouse != nil {
		batches := storage.NewExportBatchRepository(clickhouse)
		audit, history = batches, batches
	}

	exp := exporter.New(participants, submitter, audit, exportMetrics, exporter.Config{
		BatchSize:     cfg.Export.BatchSize,
		IsolatePoison: cfg.Export.IsolatePoison,
		Breaker:       exporter.NewSubmissionBreaker(cfg.Export.BreakerMaxFailures, cfg.Export.BreakerCooldown),
	})

	scheduler, err := worker.NewExportScheduler(&worker.ExportSchedulerConfig{
		Exporter: exp,
		Lock:     storage.NewCycleLock(redisStore, storage.DefaultCycleLockKey, cfg.Export.LockTTL),
		Interval: cfg.Export.Interval,
		Metrics:  exportMetrics,
		Logger:   logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create export scheduler")
	}

	healthChecks := []api.HealthCheck{
		{Name: "postgres", Check: postgres.Ping},
		{Name: "redis", Check: redisStore.Ping},
		{Name: "chain", Check: func(ctx context.Context) error {
			_, err := chainClient.Eth().BlockNumber(ctx)
			return err
		}},
	}
	if clickhouse != nil {
		healthChecks = append(healthChecks, api.HealthCheck{Name: "clickhouse", Check: clickhouse.Ping})
	}

	server := api.NewServer(&api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RequestsPerS:    cfg.Server.RequestsPerS,
	}, api.Dependencies{
		Participants: service.NewParticipantService(participants),
		Scheduler:    scheduler,
		Pending:      participants,
		History:      history,
		HealthChecks: healthChecks,
		Metrics:      metrics.Handler(registry),
		Logger:       logger,
	})

	if err := scheduler.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start export scheduler")
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host":      cfg.Server.Host,
		"port":      cfg.Server.Port,
		"chainId":   chainClient.ChainID().String(),
		"contract":  cfg.Chain.AirdropContract,
		"interval":  cfg.Export.Interval.String(),
		"batchSize": cfg.Export.BatchSize,
	}).Info("Airdrop exporter started")

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serverErr:
		logger.WithError(err).Error("API server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Export scheduler did not stop cleanly")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("API server forced to shutdown")
	}

	logger.Info("Airdrop exporter exited")
}
