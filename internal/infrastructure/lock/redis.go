package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultKeyPrefix = "stockledger:lock:"

// RedisKeyLocker serializes stock mutations across processes sharing a
// Redis instance. Each name is a redislock key held for at most ttl.
type RedisKeyLocker struct {
	locker   *redislock.Client
	ttl      time.Duration
	retryGap time.Duration
	prefix   string
	logger   *zap.Logger
}

// RedisKeyLockerOption configures a RedisKeyLocker
type RedisKeyLockerOption func(*RedisKeyLocker)

// WithKeyPrefix namespaces lock keys
func WithKeyPrefix(prefix string) RedisKeyLockerOption {
	return func(l *RedisKeyLocker) {
		l.prefix = prefix
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) RedisKeyLockerOption {
	return func(l *RedisKeyLocker) {
		l.logger = logger
	}
}

// NewRedisKeyLocker creates a locker on top of an existing client
func NewRedisKeyLocker(client redis.UniversalClient, ttl, retryGap time.Duration, opts ...RedisKeyLockerOption) *RedisKeyLocker {
	l := &RedisKeyLocker{
		locker:   redislock.New(client),
		ttl:      ttl,
		retryGap: retryGap,
		prefix:   defaultKeyPrefix,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock implements shared.KeyLocker. Obtaining retries every retryGap until
// ctx ends.
func (l *RedisKeyLocker) Lock(ctx context.Context, names ...string) (func(), error) {
	keys := normalize(names)
	held := make([]*redislock.Lock, 0, len(keys))
	release := func() {
		// ctx may already be cancelled; release must still reach redis
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				l.logger.Warn("failed to release lock", zap.String("key", held[i].Key()), zap.Error(err))
			}
		}
	}

	for _, k := range keys {
		lk, err := l.locker.Obtain(ctx, l.prefix+k, l.ttl, &redislock.Options{
			RetryStrategy: redislock.LinearBackoff(l.retryGap),
		})
		if err != nil {
			release()
			if errors.Is(err, redislock.ErrNotObtained) || ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s", shared.ErrLockNotObtained, k)
			}
			return nil, fmt.Errorf("obtaining lock %s: %w", k, err)
		}
		held = append(held, lk)
	}

	done := false
	return func() {
		if done {
			return
		}
		done = true
		release()
	}, nil
}

var _ shared.KeyLocker = (*RedisKeyLocker)(nil)
