package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewKeyLocker returns a Redis locker when Redis is enabled and reachable,
// otherwise an in-process one. The returned close function releases the
// Redis client.
func NewKeyLocker(cfg config.RedisConfig, logger *zap.Logger) (shared.KeyLocker, func() error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Debug("using in-process stock locks")
		return NewMemoryKeyLocker(), func() error { return nil }, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("using Redis stock locks",
		zap.String("addr", cfg.Addr()),
		zap.Duration("ttl", cfg.LockTTL),
	)
	return NewRedisKeyLocker(client, cfg.LockTTL, cfg.LockRetryGap, WithLogger(logger.Named("lock"))), client.Close, nil
}
