package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/onenesskingdom/oneness-ledger/internal/analytics"
	"github.com/onenesskingdom/oneness-ledger/pkg/bigquery"
	"github.com/onenesskingdom/oneness-ledger/pkg/config"
	"github.com/onenesskingdom/oneness-ledger/pkg/logger"
	"github.com/onenesskingdom/oneness-ledger/pkg/outbox/idempotency"
	"github.com/onenesskingdom/oneness-ledger/pkg/pubsub"
	"github.com/onenesskingdom/oneness-ledger/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "analytics-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "analytics-worker"

	logg = logger.New(logger.Options{
		ServiceName: "analytics-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		_ = redisClient.Close()
	}
	requireResource(ctx, logg, "pubsub", err)

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		_ = multierr.Append(pubsubClient.Close(), redisClient.Close())
	}
	requireResource(ctx, logg, "bigquery client", err)

	code := run(ctx, cfg, logg, pubsubClient, bqClient, redisClient)
	if err := multierr.Combine(bqClient.Close(), pubsubClient.Close(), redisClient.Close()); err != nil {
		logg.Error(ctx, "error closing clients", err)
	}
	os.Exit(code)
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, ps *pubsub.Client, bq *bigquery.Client, rdb *redis.Client) int {
	subscription, err := ps.Subscriber(ctx, cfg.PubSub.AnalyticsSubscription)
	if err != nil {
		logg.Error(ctx, "resource not working: analytics subscription", err)
		return 1
	}

	manager, err := idempotency.NewManager(rdb, cfg.Analytics.DedupeTTL)
	if err != nil {
		logg.Error(ctx, "resource not working: idempotency manager", err)
		return 1
	}

	service, err := analytics.NewService(analytics.ServiceParams{
		Subscription: subscription,
		Inserter:     bq,
		Table:        bq.Table(),
		Dedupe:       manager,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(ctx, "resource not working: analytics service", err)
		return 1
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":          cfg.App.Env,
		"serviceKind":  cfg.Service.Kind,
		"subscription": cfg.PubSub.AnalyticsSubscription,
	})
	logg.Info(runCtx, "analytics worker ready")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "analytics worker failed", err)
		return 1
	}
	logg.Info(runCtx, "analytics worker shutting down gracefully")
	return 0
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
