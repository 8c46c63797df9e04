package cache

import (
	"net"
	"time"

	"walletledger/internal/config"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient builds the client shared by the history cache and the Redis
// event publisher.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}
