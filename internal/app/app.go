// Package app assembles the ledger from configuration. The server, the
// settlement worker and the seed tool all start from Build.
package app

import (
	"context"
	"fmt"

	"walletledger/internal/config"
	"walletledger/internal/events"
	"walletledger/internal/repositories"
	"walletledger/internal/repositories/cache"
	"walletledger/internal/repositories/memory"
	"walletledger/internal/services/approval"
	"walletledger/internal/services/fee"
	"walletledger/internal/services/ledger"
	"walletledger/internal/services/payout"
	"walletledger/internal/services/transaction"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds the shared components. Close releases whatever Build opened.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Registry  *prometheus.Registry
	Repo      repositories.LedgerRepository
	Engine    *ledger.Engine
	Publisher events.Publisher

	db      *gorm.DB
	redis   *redis.Client
	closers []func() error
}

// Build opens the store, the cache and the event publisher and wires the
// ledger engine on top of them.
func Build(cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	switch cfg.Database.Driver {
	case "memory":
		logger.Warn("using the in-memory ledger store; balances are lost on restart")
		a.Repo = memory.New(memory.WithLockTimeout(cfg.Ledger.LockTimeout))
	case "postgres", "":
		db, err := repositories.OpenPostgres(cfg.Database)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.closers = append(a.closers, func() error { return repositories.Close(db) })
		a.Repo = repositories.NewLedgerRepository(db, cfg.Ledger.LockTimeout)
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.Database.Driver)
	}

	var history ledger.HistoryCache
	if cfg.Redis.Host != "" {
		a.redis = cache.NewRedisClient(cfg.Redis)
		a.closers = append(a.closers, a.redis.Close)
		if err := a.redis.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis unavailable, history cache disabled", zap.Error(err))
		} else {
			svc := cache.NewCacheService(a.redis, "walletledger", cfg.Ledger.HistoryCacheTTL)
			history = ledger.NewRedisHistoryCache(svc, cfg.Ledger.HistoryCacheTTL, logger)
		}
	}

	publisher, err := a.publisher()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Publisher = publisher

	policy := approval.NewThresholdPolicy(cfg.Ledger.SuspiciousAmount)
	a.Engine = ledger.NewEngine(ledger.Deps{
		Repo:      a.Repo,
		Fees:      fee.Default(),
		Factory:   transaction.NewFactory(policy),
		Publisher: publisher,
		Cache:     history,
		Metrics:   ledger.NewPrometheusMetrics(a.Registry),
		Logger:    logger.Named("ledger"),
	}, ledger.Config{
		BankName:           cfg.Ledger.BankName,
		Currency:           cfg.Ledger.Currency,
		PinCost:            cfg.Ledger.PinBcryptCost,
		AccountOpenRetries: cfg.Ledger.AccountOpenRetries,
	})
	return a, nil
}

func (a *App) publisher() (events.Publisher, error) {
	cfg := a.Config.Events
	switch cfg.Driver {
	case "kafka":
		writer := events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic, a.Logger)
		p := events.NewKafkaPublisher(writer)
		a.closers = append(a.closers, p.Close)
		return p, nil
	case "redis":
		if a.redis == nil {
			return nil, fmt.Errorf("EVENTS_DRIVER=redis needs REDIS_HOST")
		}
		return events.NewRedisPublisher(a.redis, cfg.RedisChannel), nil
	case "none", "":
		return events.Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown EVENTS_DRIVER %q", cfg.Driver)
	}
}

// Rail returns the configured payout rail.
func (a *App) Rail() (payout.Rail, error) {
	cfg := a.Config.Payout
	switch cfg.Rail {
	case "stripe":
		if cfg.StripeSecretKey == "" {
			return nil, fmt.Errorf("PAYOUT_RAIL=stripe needs STRIPE_SECRET_KEY")
		}
		return payout.NewStripeRail(cfg.StripeSecretKey, a.Logger.Named("stripe")), nil
	case "http", "":
		return payout.NewHTTPRail(payout.HTTPConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Secret:  cfg.Secret,
			Timeout: cfg.Timeout,
		}, a.Logger.Named("payout")), nil
	default:
		return nil, fmt.Errorf("unknown PAYOUT_RAIL %q", cfg.Rail)
	}
}

// PingDatabase is a no-op on the memory store.
func (a *App) PingDatabase(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (a *App) PingRedis(ctx context.Context) error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Ping(ctx).Err()
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("close failed", zap.Error(err))
		}
	}
}
