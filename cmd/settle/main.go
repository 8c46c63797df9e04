// Package main runs the settlement worker. Each tick it submits approved
// withdrawals to the payout rail, re-queries the ones still in flight,
// resolves bills whose delivery is unknown and abandons stale gateway
// payments.
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"walletledger/internal/app"
	"walletledger/internal/config"
	"walletledger/internal/logger"
	"walletledger/internal/services/bills"
	"walletledger/internal/services/payment"
	"walletledger/internal/services/settlement"

	"go.uber.org/zap"
)

func main() {
	config.LoadEnv()
	cfg := config.Load()
	log := logger.Must(cfg.Env)
	defer log.Sync() //nolint:errcheck

	if cfg.Database.Driver == "memory" {
		log.Fatal("the settlement worker needs a shared store; STORE_DRIVER=memory is per-process")
	}

	a, err := app.Build(cfg, log)
	if err != nil {
		log.Fatal("failed to initialise ledger", zap.Error(err))
	}
	defer a.Close()

	rail, err := a.Rail()
	if err != nil {
		log.Fatal("failed to configure payout rail", zap.Error(err))
	}
	dispatcher := settlement.NewDispatcher(a.Engine, a.Repo, rail, log.Named("dispatcher"), settlement.NewPrometheusMetrics(a.Registry))
	dispatcher.SetBatchSize(cfg.Worker.BatchSize)
	payments := payment.NewService(a.Repo, a.Engine.Fees(), cfg.CheckoutURL, log.Named("payments"))
	biller := bills.NewHTTPBillerClient(cfg.Biller.BaseURL, cfg.Biller.APIKey, cfg.Biller.Timeout)
	billing := bills.NewService(a.Engine, a.Repo, biller, log.Named("bills"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("settlement worker started",
		zap.String("rail", rail.Name()),
		zap.Duration("interval", cfg.Worker.Interval),
	)

	ticker := time.NewTicker(cfg.Worker.Interval)
	defer ticker.Stop()
	for {
		runOnce(ctx, log, dispatcher, billing, payments, cfg.Worker)
		select {
		case <-ctx.Done():
			log.Info("settlement worker stopped")
			return
		case <-ticker.C:
		}
	}
}

func runOnce(ctx context.Context, log *zap.Logger, d *settlement.Dispatcher, billing *bills.Service, payments *payment.Service, cfg config.WorkerConfig) {
	if stats, err := d.DispatchApproved(ctx); err != nil {
		log.Error("dispatch failed", zap.Error(err))
	} else if stats != (settlement.DispatchStats{}) {
		log.Info("dispatched withdrawals",
			zap.Int("submitted", stats.Submitted),
			zap.Int("completed", stats.Completed),
			zap.Int("failed", stats.Failed),
			zap.Int("deferred", stats.Deferred),
		)
	}

	if stats, err := d.Requery(ctx); err != nil {
		log.Error("requery failed", zap.Error(err))
	} else if stats.Completed+stats.Failed > 0 {
		log.Info("settled in-flight withdrawals",
			zap.Int("completed", stats.Completed),
			zap.Int("failed", stats.Failed),
			zap.Int("deferred", stats.Deferred),
		)
	}

	if stats, err := billing.Requery(ctx, cfg.BillRequeryAfter, cfg.BatchSize); err != nil {
		log.Error("bill requery failed", zap.Error(err))
	} else if stats.Completed+stats.Failed > 0 {
		log.Info("resolved pending bills",
			zap.Int("completed", stats.Completed),
			zap.Int("failed", stats.Failed),
			zap.Int("pending", stats.Pending),
		)
	}

	if n, err := payments.AbandonStale(ctx, cfg.AbandonAfter); err != nil {
		log.Error("abandoning stale payments failed", zap.Error(err))
	} else if n > 0 {
		log.Info("abandoned stale payments", zap.Int64("count", n))
	}
}
