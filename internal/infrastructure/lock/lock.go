// Package lock provides short-lived named locks that serialize work across
// requests, such as two tills opening a shift for the same operator.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "retail:lock:"

// ReleaseFunc releases an obtained lock
type ReleaseFunc = func(context.Context) error

// RedisLocker obtains locks through redislock so that every engine
// instance sharing the Redis server sees them.
type RedisLocker struct {
	client *redislock.Client
	logger *zap.Logger
}

// NewRedisLocker creates a RedisLocker on a shared client
func NewRedisLocker(client redis.UniversalClient, logger *zap.Logger) *RedisLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{
		client: redislock.New(client),
		logger: logger,
	}
}

// Lock obtains key for ttl without retrying. A held key returns
// ErrOperationInProgress.
func (l *RedisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error) {
	lk, err := l.client.Obtain(ctx, keyPrefix+key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, shared.ErrOperationInProgress.WithDetails(map[string]any{"lock": key})
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return func(ctx context.Context) error {
		err := lk.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("Lock expired before release", zap.String("lock", key), zap.Duration("ttl", ttl))
			return nil
		}
		return err
	}, nil
}

// LocalLocker holds locks in process memory. It is used when Redis is not
// configured and in tests.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]localLock
	now   func() time.Time
	token uint64
}

type localLock struct {
	token     uint64
	expiresAt time.Time
}

// NewLocalLocker creates an empty LocalLocker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		held: make(map[string]localLock),
		now:  time.Now,
	}
}

// Lock obtains key for ttl. An expired holder loses the key to the next caller.
func (l *LocalLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.held[key]; ok && now.Before(cur.expiresAt) {
		return nil, shared.ErrOperationInProgress.WithDetails(map[string]any{"lock": key})
	}
	l.token++
	token := l.token
	l.held[key] = localLock{token: token, expiresAt: now.Add(ttl)}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		// a holder whose lock expired must not release its successor's
		if cur, ok := l.held[key]; ok && cur.token == token {
			delete(l.held, key)
		}
		return nil
	}, nil
}

// Held reports whether key is currently locked
func (l *LocalLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.held[key]
	return ok && l.now().Before(cur.expiresAt)
}
