package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LJTian/CryptoCourier/internal/logger"
)

// NewRedisClient 创建 Redis 客户端；Ping 失败只告警，后续调用各自处理错误
func NewRedisClient(addr string) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log := logger.Named("storage")
		log.Warn().Err(err).Str("addr", addr).Msg("redis ping failed")
	}
	return rdb
}
