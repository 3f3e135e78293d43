package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultLockTTL = 30 * time.Second

// MemoryKeyLocker serializes work per key inside one process. The ttl
// argument is accepted for interface parity and ignored; holders release
// through Unlock.
type MemoryKeyLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	slot    chan struct{}
	waiters int
}

func NewMemoryKeyLocker() *MemoryKeyLocker {
	return &MemoryKeyLocker{locks: make(map[string]*keyLock)}
}

func (l *MemoryKeyLocker) Acquire(ctx context.Context, key string, _ time.Duration) (LockHandle, error) {
	if l == nil {
		return nil, fmt.Errorf("core: key locker is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("core: lock key is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &keyLock{slot: make(chan struct{}, 1)}
		l.locks[key] = entry
	}
	entry.waiters++
	l.mu.Unlock()

	select {
	case entry.slot <- struct{}{}:
		return &memoryLockHandle{locker: l, key: key, entry: entry}, nil
	case <-ctx.Done():
		l.release(key, entry, false)
		return nil, fmt.Errorf("core: acquire lock %q: %w", key, ctx.Err())
	}
}

func (l *MemoryKeyLocker) release(key string, entry *keyLock, held bool) {
	if held {
		<-entry.slot
	}
	l.mu.Lock()
	entry.waiters--
	if entry.waiters == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

type memoryLockHandle struct {
	locker *MemoryKeyLocker
	key    string
	entry  *keyLock
	once   sync.Once
}

func (h *memoryLockHandle) Unlock(_ context.Context) error {
	if h == nil || h.locker == nil {
		return nil
	}
	h.once.Do(func() {
		h.locker.release(h.key, h.entry, true)
	})
	return nil
}

// WithKeyLock runs fn while holding the lock for key.
func WithKeyLock(ctx context.Context, locker KeyLocker, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	if locker == nil {
		return fn(ctx)
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	handle, err := locker.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer func() {
		_ = handle.Unlock(context.WithoutCancel(ctx))
	}()
	return fn(ctx)
}
