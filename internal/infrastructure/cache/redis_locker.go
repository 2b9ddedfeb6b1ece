package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the key only while it still holds our token, so a
// lock that expired and was taken by another holder is left alone
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// redisLockClient is the part of the go-redis client the locker uses
type redisLockClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// RedisInvoiceLocker takes invoice locks with SET NX PX and releases them
// with a compare-and-delete script
type RedisInvoiceLocker struct {
	client    redisLockClient
	opts      LockOptions
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisInvoiceLocker creates a locker over an existing client
func NewRedisInvoiceLocker(client redisLockClient, opts LockOptions, log *zap.Logger) *RedisInvoiceLocker {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisInvoiceLocker{
		client:    client,
		opts:      opts.withDefaults(),
		keyPrefix: "lock:",
		logger:    log,
	}
}

// Acquire blocks until the lock is held or the wait timeout passes
func (l *RedisInvoiceLocker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := l.keyPrefix + key
	token := newToken()

	err := acquireWithRetry(ctx, l.opts, func(ctx context.Context) (bool, error) {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.opts.TTL).Result()
		if err != nil {
			return false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		return ok, nil
	})
	if err != nil {
		return nil, err
	}

	return func() {
		// the caller's context may already be cancelled
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.client.Eval(ctx, releaseScript, []string{redisKey}, token).Err(); err != nil {
			l.logger.Warn("failed to release lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

var _ InvoiceLocker = (*RedisInvoiceLocker)(nil)
