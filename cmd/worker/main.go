package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/app"
	"github.com/meridian-erp/meridian-erp/internal/catalog"
	"github.com/meridian-erp/meridian-erp/internal/finance"
	"github.com/meridian-erp/meridian-erp/internal/fulfillment"
	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/production"
	"github.com/meridian-erp/meridian-erp/internal/quotes"
	"github.com/meridian-erp/meridian-erp/internal/sales"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	quoteService := quotes.NewService(quotes.NewRepository(pool), auditLogger)
	inventoryService := inventory.NewService(
		inventory.NewRepository(pool),
		catalog.NewRepository(pool),
		auditLogger,
		idempotencyStore,
		logger,
		inventory.ServiceConfig{AllowNegativeStock: cfg.AllowNegativeStock},
	)
	salesService := sales.NewService(sales.NewRepository(pool))
	financeService := finance.NewService(finance.NewRepository(pool))

	metrics := observability.NewMetrics()

	// The worker runs the same workflow service without locks or a queue:
	// asynq already serialises retries per task.
	workflow := fulfillment.NewService(fulfillment.ServiceParams{
		Quotes:      quoteService,
		Productions: production.NewRepository(pool),
		Inventory:   inventoryService,
		Sales:       salesService,
		Finance:     financeService,
		Receipts:    fulfillment.NewReceiptRepository(pool),
		Audit:       auditLogger,
		Metrics:     metrics,
		Logger:      logger,
	})

	expiryTask, err := jobs.NewQuoteExpiryTask(time.Now().UTC())
	if err != nil {
		logger.Error("build quote expiry task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyRetention)
	if err != nil {
		logger.Error("build idempotency cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerRepost, Handler: jobs.HandleLedgerRepost(workflow, metrics, logger)},
			{Type: jobs.TaskQuoteExpiry, Handler: jobs.HandleQuoteExpiry(quoteService, metrics, logger)},
			{Type: jobs.TaskIdempotencyCleanup, Handler: jobs.HandleIdempotencyCleanup(idempotencyStore, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/15 * * * *", Task: expiryTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 2 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
