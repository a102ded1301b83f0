package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/onenesskingdom/oneness-ledger/api/routes"
	"github.com/onenesskingdom/oneness-ledger/internal/campaigns"
	"github.com/onenesskingdom/oneness-ledger/internal/exchange"
	"github.com/onenesskingdom/oneness-ledger/internal/ledger"
	"github.com/onenesskingdom/oneness-ledger/internal/posts"
	"github.com/onenesskingdom/oneness-ledger/internal/profiles"
	"github.com/onenesskingdom/oneness-ledger/internal/transactions"
	"github.com/onenesskingdom/oneness-ledger/pkg/config"
	"github.com/onenesskingdom/oneness-ledger/pkg/db"
	"github.com/onenesskingdom/oneness-ledger/pkg/logger"
	"github.com/onenesskingdom/oneness-ledger/pkg/metrics"
	"github.com/onenesskingdom/oneness-ledger/pkg/migrate"
	"github.com/onenesskingdom/oneness-ledger/pkg/outbox"
	"github.com/onenesskingdom/oneness-ledger/pkg/rates"
	"github.com/onenesskingdom/oneness-ledger/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	bootCtx := context.Background()

	dbClient, err := db.New(bootCtx, cfg.DB, logg)
	if err != nil {
		return err
	}
	if err := migrate.MaybeRunDev(bootCtx, cfg, logg, dbClient); err != nil {
		_ = dbClient.Close()
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

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	ledgerMetrics := metrics.NewLedgerMetrics(promRegistry)

	staticRates, err := rates.NewStaticProvider(cfg.Rates.OPTo)
	if err != nil {
		return err
	}
	rateProvider, err := rates.NewCachedProvider(staticRates, redisClient, cfg.Rates.CacheTTL, logg)
	if err != nil {
		return err
	}

	conn := dbClient.DB()
	now := func() time.Time { return time.Now().UTC() }
	entries := ledger.NewRepository(conn)
	txns := transactions.NewRepository(conn)
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)

	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		DB:                  dbClient,
		Repository:          entries,
		Transactions:        txns,
		Outbox:              emitter,
		Logger:              logg,
		Metrics:             ledgerMetrics,
		MonthlyLimitDivisor: cfg.Ledger.MonthlyLimitDivisor,
		Now:                 now,
	})
	if err != nil {
		return err
	}

	profileService, err := profiles.NewService(profiles.ServiceParams{
		DB:             dbClient,
		Repository:     profiles.NewRepository(conn),
		Ledger:         ledgerService,
		Transactions:   txns,
		Outbox:         emitter,
		Logger:         logg,
		WelcomeBonusOP: cfg.Ledger.WelcomeBonusOP,
		Now:            now,
	})
	if err != nil {
		return err
	}

	txnService, err := transactions.NewService(txns)
	if err != nil {
		return err
	}

	postService, err := posts.NewService(posts.NewRepository(conn), ledgerService)
	if err != nil {
		return err
	}

	campaignService, err := campaigns.NewService(campaigns.NewRepository(conn), entries, ledgerService)
	if err != nil {
		return err
	}

	exchangeService, err := exchange.NewService(exchange.ServiceParams{
		DB:                  dbClient,
		Ledger:              entries,
		Transactions:        txns,
		Outbox:              emitter,
		Rates:               rateProvider,
		Logger:              logg,
		Metrics:             ledgerMetrics,
		Policy:              exchange.NewPolicy(cfg.Ledger.ExchangeFeePercent, cfg.Ledger.MaxExchangePercent),
		MonthlyLimitDivisor: cfg.Ledger.MonthlyLimitDivisor,
		Now:                 now,
	})
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:   cfg,
			Logger:   logg,
			DB:       dbClient,
			Redis:    redisClient,
			Metrics:  promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
			Now:      now,
			Profiles: profileService,
			Ledger:   ledgerService,
			Txns:     txnService,
			Posts:    postService,
			Campaign: campaignService,
			Exchange: exchangeService,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.App.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logg.Info(ctx, "api server shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
