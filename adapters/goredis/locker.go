// Package goredis provides a Redis backed core.KeyLocker so that token
// refreshes and sync runs are single-flight across processes.
package goredis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-formsync/core"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const (
	defaultPrefix       = "formsync:lock:"
	defaultPollInterval = 50 * time.Millisecond
	defaultTTL          = 30 * time.Second
)

// releaseScript deletes the key only while it still holds our token.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// Client is the subset of redis.Cmdable used by Locker.
type Client interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

type Locker struct {
	client       Client
	prefix       string
	pollInterval time.Duration
}

type Option func(*Locker)

func WithPrefix(prefix string) Option {
	return func(l *Locker) {
		if prefix = strings.TrimSpace(prefix); prefix != "" {
			l.prefix = prefix
		}
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(l *Locker) {
		if interval > 0 {
			l.pollInterval = interval
		}
	}
}

func NewLocker(client Client, opts ...Option) *Locker {
	locker := &Locker{
		client:       client,
		prefix:       defaultPrefix,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(locker)
		}
	}
	return locker
}

// NewClient opens a go-redis client from the service config.
func NewClient(cfg core.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Acquire polls SET NX PX until the key is free or ctx is done. The lock
// expires after ttl if the holder never releases it.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (core.LockHandle, error) {
	if l == nil || l.client == nil {
		return nil, fmt.Errorf("goredis: client is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("goredis: lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	redisKey := l.prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("goredis: acquire %s: %w", key, err)
		}
		if ok {
			return &handle{client: l.client, key: redisKey, token: token}, nil
		}

		timer := time.NewTimer(l.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

type handle struct {
	client Client
	key    string
	token  string
}

// Unlock is a no-op when the lock already expired or moved to another
// holder.
func (h *handle) Unlock(ctx context.Context) error {
	err := h.client.Eval(ctx, releaseScript, []string{h.key}, h.token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("goredis: release %s: %w", h.key, err)
	}
	return nil
}

var (
	_ core.KeyLocker = (*Locker)(nil)
	_ Client         = (*redis.Client)(nil)
)
