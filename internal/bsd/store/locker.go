package store

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	id "bordereau/pkg/domain"
	"bordereau/pkg/platform/sentinel"
)

// MemoryLocker serializes operations per document with in-process mutexes.
// Suitable for tests and single-instance deployments.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[id.DocumentID]*sync.Mutex
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[id.DocumentID]*sync.Mutex)}
}

func (l *MemoryLocker) WithLock(ctx context.Context, docID id.DocumentID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[docID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[docID] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

// RedisLocker serializes operations per document across instances using a
// SET NX lease. The lease expires so a crashed holder cannot wedge the
// document forever.
type RedisLocker struct {
	client   *redis.Client
	lease    time.Duration
	maxWait  time.Duration
	interval time.Duration
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{
		client:   client,
		lease:    10 * time.Second,
		maxWait:  5 * time.Second,
		interval: 50 * time.Millisecond,
	}
}

// releaseScript deletes the lock only when the caller still holds it, so a
// slow operation cannot release a lease acquired by someone else.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func (l *RedisLocker) WithLock(ctx context.Context, docID id.DocumentID, fn func(ctx context.Context) error) error {
	key := "bordereau:lock:" + docID.String()
	token := docID.String() + ":" + time.Now().Format(time.RFC3339Nano)

	deadline := time.Now().Add(l.maxWait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.lease).Result()
		if err != nil {
			return sentinel.ErrUnavailable
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return sentinel.ErrLockHeld
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.interval):
		}
	}
	defer releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{key}, token)

	return fn(ctx)
}
