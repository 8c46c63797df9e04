// Package main starts the ledger HTTP API.
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"walletledger/internal/app"
	"walletledger/internal/config"
	"walletledger/internal/handlers"
	"walletledger/internal/logger"
	"walletledger/internal/middleware"
	"walletledger/internal/routes"
	"walletledger/internal/services/approval"
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

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	a, err := app.Build(cfg, log)
	if err != nil {
		log.Fatal("failed to initialise ledger", zap.Error(err))
	}
	defer a.Close()

	reconciler := settlement.NewReconciler(
		a.Engine,
		a.Repo,
		settlement.DefaultSources(cfg.Webhooks.MoniepointSecret, cfg.Webhooks.PaystackSecret),
		log.Named("settlement"),
		settlement.NewPrometheusMetrics(a.Registry),
	)
	biller := bills.NewHTTPBillerClient(cfg.Biller.BaseURL, cfg.Biller.APIKey, cfg.Biller.Timeout)

	server := routes.New(routes.Deps{
		Auth:     middleware.NewAuthMiddleware(cfg.JWTSecret, a.Repo, log.Named("auth")),
		Accounts: handlers.NewAccountHandler(a.Engine, cfg.JWTSecret, 24*time.Hour, log),
		Wallets:  handlers.NewWalletHandler(a.Engine),
		Transfer: handlers.NewTransferHandler(a.Engine),
		Bills:    handlers.NewBillHandler(bills.NewService(a.Engine, a.Repo, biller, log.Named("bills"))),
		Payments: handlers.NewPaymentHandler(payment.NewService(a.Repo, a.Engine.Fees(), cfg.CheckoutURL, log.Named("payments"))),
		Admin:    handlers.NewAdminHandler(a.Engine, approval.NewService(a.Engine, a.Repo, log.Named("approval"))),
		Webhooks: handlers.NewWebhookHandler(reconciler),
		Health: handlers.NewHealthHandler(map[string]handlers.Pinger{
			"database": handlers.PingFunc(a.PingDatabase),
			"redis":    handlers.PingFunc(a.PingRedis),
		}),
		Gatherer:    a.Registry,
		CORSOrigins: cfg.CORSOrigins,
		AccessLog:   true,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error("shutdown failed", zap.Error(err))
		}
	}()

	log.Info("listening", zap.String("port", cfg.Port), zap.String("store", cfg.Database.Driver))
	if err := server.Listen(":" + cfg.Port); err != nil {
		log.Error("server stopped", zap.Error(err))
	}
}
