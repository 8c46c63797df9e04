package ledger

import (
	"context"
	"time"

	"walletledger/internal/repositories/cache"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// generationTTL outlives any cached page, so an expired counter never
// re-admits a page read under an older generation.
const generationTTL = 24 * time.Hour

type noopHistoryCache struct{}

func (noopHistoryCache) Get(context.Context, uuid.UUID) (*HistoryPage, int64, bool) {
	return nil, -1, false
}
func (noopHistoryCache) Set(context.Context, uuid.UUID, int64, *HistoryPage) {}
func (noopHistoryCache) Invalidate(context.Context, ...uuid.UUID) error      { return nil }

// RedisHistoryCache keeps the first history page of each wallet in Redis.
// Cache failures are logged and treated as misses.
type RedisHistoryCache struct {
	cache  *cache.CacheService
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisHistoryCache(svc *cache.CacheService, ttl time.Duration, logger *zap.Logger) *RedisHistoryCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisHistoryCache{cache: svc, ttl: ttl, logger: logger}
}

// Page and generation keys share a hash tag so a cluster keeps them in one
// slot for WATCH.
func (c *RedisHistoryCache) key(walletID uuid.UUID) string {
	return c.cache.Key("wallet", "{"+walletID.String()+"}", "history")
}

func (c *RedisHistoryCache) generationKey(walletID uuid.UUID) string {
	return c.cache.Key("wallet", "{"+walletID.String()+"}", "history", "gen")
}

func (c *RedisHistoryCache) Get(ctx context.Context, walletID uuid.UUID) (*HistoryPage, int64, bool) {
	var page HistoryPage
	found, err := c.cache.Fetch(ctx, c.key(walletID), &page)
	if err != nil {
		c.logger.Warn("history cache read failed", zap.String("wallet_id", walletID.String()), zap.Error(err))
		return nil, -1, false
	}
	if found {
		return &page, 0, true
	}
	gen, err := c.cache.Counter(ctx, c.generationKey(walletID))
	if err != nil {
		c.logger.Warn("history cache generation read failed", zap.String("wallet_id", walletID.String()), zap.Error(err))
		return nil, -1, false
	}
	return nil, gen, false
}

// Set is skipped when the generation could not be read.
func (c *RedisHistoryCache) Set(ctx context.Context, walletID uuid.UUID, generation int64, page *HistoryPage) {
	if generation < 0 {
		return
	}
	stored, err := c.cache.PutIfCounter(ctx, c.generationKey(walletID), generation, c.key(walletID), page, c.ttl)
	if err != nil {
		c.logger.Warn("history cache write failed", zap.String("wallet_id", walletID.String()), zap.Error(err))
		return
	}
	if !stored {
		c.logger.Debug("history page superseded before caching", zap.String("wallet_id", walletID.String()))
	}
}

func (c *RedisHistoryCache) Invalidate(ctx context.Context, walletIDs ...uuid.UUID) error {
	counters := make([]string, 0, len(walletIDs))
	pages := make([]string, 0, len(walletIDs))
	for _, id := range walletIDs {
		counters = append(counters, c.generationKey(id))
		pages = append(pages, c.key(id))
	}
	return c.cache.Bump(ctx, generationTTL, counters, pages...)
}
