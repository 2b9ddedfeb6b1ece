package cache

import (
	"context"
	"sync"
	"time"
)

type heldLock struct {
	token     string
	expiresAt time.Time
}

// InMemoryInvoiceLocker serializes invoice operations within one process.
// Locks expire after the TTL like their Redis counterparts.
type InMemoryInvoiceLocker struct {
	mu   sync.Mutex
	held map[string]heldLock
	opts LockOptions
	now  func() time.Time
}

// NewInMemoryInvoiceLocker creates an empty locker
func NewInMemoryInvoiceLocker(opts LockOptions) *InMemoryInvoiceLocker {
	return &InMemoryInvoiceLocker{
		held: make(map[string]heldLock),
		opts: opts.withDefaults(),
		now:  time.Now,
	}
}

// Acquire blocks until the lock is held or the wait timeout passes
func (l *InMemoryInvoiceLocker) Acquire(ctx context.Context, key string) (func(), error) {
	token := newToken()
	err := acquireWithRetry(ctx, l.opts, func(context.Context) (bool, error) {
		return l.tryLock(key, token), nil
	})
	if err != nil {
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.unlock(key, token) })
	}, nil
}

func (l *InMemoryInvoiceLocker) tryLock(key, token string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if h, ok := l.held[key]; ok && now.Before(h.expiresAt) {
		return false
	}
	l.held[key] = heldLock{token: token, expiresAt: now.Add(l.opts.TTL)}
	return true
}

func (l *InMemoryInvoiceLocker) unlock(key, token string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if h, ok := l.held[key]; ok && h.token == token {
		delete(l.held, key)
	}
}

var _ InvoiceLocker = (*InMemoryInvoiceLocker)(nil)
