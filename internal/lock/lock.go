package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when the lock could not be acquired within the
// configured wait budget.
var ErrLockHeld = errors.New("session lock held")

// SessionLocker serializes orchestrator operations per session. Progress
// cursors are not safe under concurrent read-modify-write, so every flow
// operation runs under the session's lock.
type SessionLocker interface {
	// Acquire blocks until the lock for key is held or the wait budget runs
	// out. The returned release function is safe to call once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

const (
	lockTTL       = 30 * time.Second
	acquireWait   = 5 * time.Second
	acquireRetry  = 50 * time.Millisecond
	lockKeyPrefix = "chatflow:lock:"
)

// RedisLocker implements SessionLocker with SET NX + TTL. The TTL bounds how
// long a crashed holder can block the session.
type RedisLocker struct {
	Client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{Client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := lockKeyPrefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(acquireWait)

	for {
		ok, err := l.Client.SetNX(ctx, redisKey, token, lockTTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, ErrLockHeld
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(acquireRetry):
		}
	}

	release := func() {
		// Only delete our own token; a TTL-expired lock may belong to
		// someone else by now.
		current, err := l.Client.Get(context.Background(), redisKey).Result()
		if err == nil && current == token {
			_ = l.Client.Del(context.Background(), redisKey).Err()
		}
	}
	return release, nil
}

// MemoryLocker is an in-process SessionLocker for tests and single-instance
// deployments without redis.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	var once sync.Once
	return func() { once.Do(m.Unlock) }, nil
}
