package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/fleetbill/fleetbill/internal/app"
	"github.com/fleetbill/fleetbill/internal/billing"
	"github.com/fleetbill/fleetbill/internal/catalog"
	"github.com/fleetbill/fleetbill/internal/myadmin"
	"github.com/fleetbill/fleetbill/internal/observability"
	"github.com/fleetbill/fleetbill/internal/platform/cache"
	"github.com/fleetbill/fleetbill/internal/platform/db"
	"github.com/fleetbill/fleetbill/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	adapter := myadmin.NewAdapter(
		myadmin.NewClient(cfg.MyAdminURL, cfg.MyAdminTimeout),
		cfg.MyAdminUsername,
		cfg.MyAdminPassword,
		logger,
	)

	runner := billing.NewRunner(
		catalog.NewRepository(pool),
		billing.NewPgTxManager(pool),
		adapter,
		cfg.ProductStaleAfter,
		logger,
	)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	mailer := jobs.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	billingJob := jobs.NewBillingRunJob(runner, jobsClient, cfg.BillsTo, metrics, logger)

	// The cron task carries a zero period, billing the month that just ended.
	cronTask, err := jobs.NewBillingRunTask(jobs.BillingRunPayload{})
	if err != nil {
		logger.Error("build billing cron task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeBillingRun, Handler: billingJob.Handle},
			{Type: jobs.TaskTypeSendEmail, Handler: jobs.NewMailHandler(mailer, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.BillingCron, Task: cronTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return worker.Run(groupCtx)
	})
	group.Go(func() error {
		logger.Info("serving worker metrics", slog.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
