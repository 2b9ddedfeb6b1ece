// Package cache holds the per-invoice advisory lock. Lifecycle operations on
// the same invoice are serialized across service instances through Redis, or
// within one process through the in-memory locker.
package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// LockOptions controls how long a lock is held and how long Acquire waits
type LockOptions struct {
	TTL         time.Duration
	WaitTimeout time.Duration
	RetryDelay  time.Duration
}

// LockOptionsFromConfig converts the lock configuration section
func LockOptionsFromConfig(cfg config.LockConfig) LockOptions {
	return LockOptions{TTL: cfg.TTL, WaitTimeout: cfg.WaitTimeout, RetryDelay: cfg.RetryDelay}.withDefaults()
}

func (o LockOptions) withDefaults() LockOptions {
	if o.TTL <= 0 {
		o.TTL = 30 * time.Second
	}
	if o.WaitTimeout < 0 {
		o.WaitTimeout = 0
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 50 * time.Millisecond
	}
	return o
}

// InvoiceLocker is satisfied by both lockers
type InvoiceLocker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// NewInvoiceLocker builds the locker selected by lock.driver. The Redis
// locker pings the server first so a bad address fails at startup.
func NewInvoiceLocker(ctx context.Context, cfg *config.Config, log *zap.Logger) (InvoiceLocker, func() error, error) {
	opts := LockOptionsFromConfig(cfg.Lock)
	switch cfg.Lock.Driver {
	case config.LockDriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return NewRedisInvoiceLocker(client, opts, log), client.Close, nil
	case config.LockDriverMemory, "":
		return NewInMemoryInvoiceLocker(opts), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported lock driver %q", cfg.Lock.Driver)
	}
}

// acquireWithRetry calls try until it succeeds, the wait timeout passes or
// ctx is done
func acquireWithRetry(ctx context.Context, opts LockOptions, try func(context.Context) (bool, error)) error {
	deadline := time.Now().Add(opts.WaitTimeout)
	for {
		ok, err := try(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return shared.ErrLockNotAcquired
		}

		timer := time.NewTimer(opts.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func newToken() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
