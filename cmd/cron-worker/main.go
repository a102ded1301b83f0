package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/onenesskingdom/oneness-ledger/internal/cron"
	"github.com/onenesskingdom/oneness-ledger/internal/ledger"
	"github.com/onenesskingdom/oneness-ledger/internal/transactions"
	"github.com/onenesskingdom/oneness-ledger/pkg/config"
	"github.com/onenesskingdom/oneness-ledger/pkg/db"
	"github.com/onenesskingdom/oneness-ledger/pkg/logger"
	"github.com/onenesskingdom/oneness-ledger/pkg/metrics"
	"github.com/onenesskingdom/oneness-ledger/pkg/outbox"
	"github.com/onenesskingdom/oneness-ledger/pkg/redis"
)

func main() {
	once := flag.Bool("once", false, "run a single maintenance cycle and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg, *once); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(context.Background(), "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(context.Background(), "cron worker shutting down gracefully")
}

func run(cfg *config.Config, logg *logger.Logger, once bool) (err error) {
	bootCtx := context.Background()

	dbClient, err := db.New(bootCtx, cfg.DB, logg)
	if err != nil {
		return err
	}
	redisClient, err := redis.New(bootCtx, cfg.Redis, logg)
	if err != nil {
		_ = dbClient.Close()
		return err
	}
	defer func() {
		err = multierr.Append(err, multierr.Combine(redisClient.Close(), dbClient.Close()))
	}()

	conn := dbClient.DB()
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:        logg,
		DB:            dbClient,
		Repository:    outbox.NewRepository(conn),
		RetentionDays: cfg.Cron.OutboxRetentionDays,
	})
	if err != nil {
		return err
	}
	audit, err := cron.NewTransferAuditJob(cron.TransferAuditJobParams{
		Logger:   logg,
		Ledger:   ledger.NewRepository(conn),
		Lookback: cfg.Cron.AuditLookback,
	})
	if err != nil {
		return err
	}
	stale, err := cron.NewStaleExchangeJob(cron.StaleExchangeJobParams{
		Logger:       logg,
		Transactions: transactions.NewRepository(conn),
		After:        cfg.Cron.StaleExchangeAfter,
	})
	if err != nil {
		return err
	}
	registry, err := cron.NewRegistry(retention, audit, stale)
	if err != nil {
		return err
	}

	lock, err := cron.NewRedisLock(redisClient, cfg.App.Env, cfg.Cron.LockTTL)
	if err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	scheduler, err := cron.NewScheduler(cron.SchedulerParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewMaintenanceMetrics(promRegistry),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	if once {
		_, err := scheduler.RunOnce(ctx)
		return err
	}

	if cfg.App.MetricsAddr != "" {
		metricsSrv := &http.Server{
			Addr:              cfg.App.MetricsAddr,
			Handler:           promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logg.Error(ctx, "metrics server stopped", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	logg.Info(ctx, "starting cron worker")
	return scheduler.Run(ctx)
}
