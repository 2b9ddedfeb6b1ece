package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func fastOptions() LockOptions {
	return LockOptions{TTL: time.Second, WaitTimeout: 30 * time.Millisecond, RetryDelay: 5 * time.Millisecond}
}

func TestInMemoryInvoiceLocker(t *testing.T) {
	ctx := context.Background()

	t.Run("second holder times out", func(t *testing.T) {
		locker := NewInMemoryInvoiceLocker(fastOptions())

		release, err := locker.Acquire(ctx, "invoice:t:1")
		require.NoError(t, err)
		defer release()

		_, err = locker.Acquire(ctx, "invoice:t:1")
		assert.ErrorIs(t, err, shared.ErrLockNotAcquired)
	})

	t.Run("different keys do not block", func(t *testing.T) {
		locker := NewInMemoryInvoiceLocker(fastOptions())

		r1, err := locker.Acquire(ctx, "invoice:t:1")
		require.NoError(t, err)
		defer r1()
		r2, err := locker.Acquire(ctx, "invoice:t:2")
		require.NoError(t, err)
		defer r2()
	})

	t.Run("waiter gets the lock after release", func(t *testing.T) {
		opts := fastOptions()
		opts.WaitTimeout = time.Second
		locker := NewInMemoryInvoiceLocker(opts)

		release, err := locker.Acquire(ctx, "k")
		require.NoError(t, err)
		go func() {
			time.Sleep(20 * time.Millisecond)
			release()
		}()

		r2, err := locker.Acquire(ctx, "k")
		require.NoError(t, err)
		r2()
	})

	t.Run("expired lock can be taken", func(t *testing.T) {
		locker := NewInMemoryInvoiceLocker(fastOptions())
		now := time.Now()
		locker.now = func() time.Time { return now }

		stale, err := locker.Acquire(ctx, "k")
		require.NoError(t, err)

		now = now.Add(2 * time.Second)
		fresh, err := locker.Acquire(ctx, "k")
		require.NoError(t, err)

		// the stale holder must not free the new holder's lock
		stale()
		_, err = locker.Acquire(ctx, "k")
		assert.ErrorIs(t, err, shared.ErrLockNotAcquired)
		fresh()
	})

	t.Run("cancelled context stops waiting", func(t *testing.T) {
		opts := fastOptions()
		opts.WaitTimeout = time.Minute
		locker := NewInMemoryInvoiceLocker(opts)

		release, err := locker.Acquire(ctx, "k")
		require.NoError(t, err)
		defer release()

		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err = locker.Acquire(cctx, "k")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("serializes concurrent holders", func(t *testing.T) {
		opts := fastOptions()
		opts.WaitTimeout = 5 * time.Second
		opts.RetryDelay = time.Millisecond
		locker := NewInMemoryInvoiceLocker(opts)

		var inside, maxInside int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				release, err := locker.Acquire(ctx, "k")
				if !assert.NoError(t, err) {
					return
				}
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				release()
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), maxInside)
	})
}

// fakeRedis records SETNX and EVAL calls against a single-key store
type fakeRedis struct {
	mu       sync.Mutex
	values   map[string]string
	setErr   error
	evalErr  error
	released []string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: make(map[string]string)}
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return redis.NewBoolResult(false, f.setErr)
	}
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.evalErr != nil {
		return redis.NewCmdResult(nil, f.evalErr)
	}
	if f.values[keys[0]] == args[0].(string) {
		delete(f.values, keys[0])
		f.released = append(f.released, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func TestRedisInvoiceLocker(t *testing.T) {
	ctx := context.Background()

	t.Run("acquire and release", func(t *testing.T) {
		client := newFakeRedis()
		locker := NewRedisInvoiceLocker(client, fastOptions(), nil)

		release, err := locker.Acquire(ctx, "invoice:t:1")
		require.NoError(t, err)
		assert.Contains(t, client.values, "lock:invoice:t:1")

		_, err = locker.Acquire(ctx, "invoice:t:1")
		assert.ErrorIs(t, err, shared.ErrLockNotAcquired)

		release()
		assert.Equal(t, []string{"lock:invoice:t:1"}, client.released)

		again, err := locker.Acquire(ctx, "invoice:t:1")
		require.NoError(t, err)
		again()
	})

	t.Run("release leaves a foreign token alone", func(t *testing.T) {
		client := newFakeRedis()
		locker := NewRedisInvoiceLocker(client, fastOptions(), nil)

		release, err := locker.Acquire(ctx, "k")
		require.NoError(t, err)
		client.values["lock:k"] = "someone-else"

		release()
		assert.Empty(t, client.released)
		assert.Equal(t, "someone-else", client.values["lock:k"])
	})

	t.Run("redis errors are returned", func(t *testing.T) {
		client := newFakeRedis()
		client.setErr = errors.New("connection refused")
		locker := NewRedisInvoiceLocker(client, fastOptions(), nil)

		_, err := locker.Acquire(ctx, "k")
		require.Error(t, err)
		assert.NotErrorIs(t, err, shared.ErrLockNotAcquired)
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("release failure is logged", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		client := newFakeRedis()
		locker := NewRedisInvoiceLocker(client, fastOptions(), zap.New(core))

		release, err := locker.Acquire(ctx, "k")
		require.NoError(t, err)
		client.evalErr = errors.New("timeout")
		release()

		require.Equal(t, 1, logs.FilterMessage("failed to release lock").Len())
	})
}

func TestNewInvoiceLocker(t *testing.T) {
	t.Run("memory driver", func(t *testing.T) {
		cfg := &config.Config{Lock: config.LockConfig{Driver: config.LockDriverMemory}}
		locker, closeFn, err := NewInvoiceLocker(context.Background(), cfg, zap.NewNop())
		require.NoError(t, err)
		assert.IsType(t, &InMemoryInvoiceLocker{}, locker)
		assert.NoError(t, closeFn())
	})

	t.Run("unknown driver", func(t *testing.T) {
		cfg := &config.Config{Lock: config.LockConfig{Driver: "etcd"}}
		_, _, err := NewInvoiceLocker(context.Background(), cfg, zap.NewNop())
		assert.Error(t, err)
	})
}

func TestLockOptionsFromConfig(t *testing.T) {
	opts := LockOptionsFromConfig(config.LockConfig{WaitTimeout: time.Second})
	assert.Equal(t, 30*time.Second, opts.TTL)
	assert.Equal(t, time.Second, opts.WaitTimeout)
	assert.Equal(t, 50*time.Millisecond, opts.RetryDelay)
}
