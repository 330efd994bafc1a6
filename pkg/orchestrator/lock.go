package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ScanLocker serializes whole scan cycles. Guardrail counters are
// read-modify-decide over shared persisted counts, so two overlapping
// cycles could jointly exceed max_concurrent_actions; the lock makes the
// entire scan one exclusive section.
type ScanLocker interface {
	// TryLock attempts to acquire the scan lock without blocking. It
	// returns false when another cycle holds it; the caller skips this
	// cycle rather than queueing.
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// MutexLocker is the in-process locker for single-instance deployments.
type MutexLocker struct {
	mu   sync.Mutex
	held bool
}

func NewMutexLocker() *MutexLocker { return &MutexLocker{} }

func (l *MutexLocker) TryLock(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *MutexLocker) Unlock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	return nil
}

// releaseScript deletes the lock key only when the caller still owns it,
// so an expired-and-reacquired lock is never released by the old owner.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements ScanLocker with SET NX and a fencing token, for
// deployments running more than one orchestrator instance.
type RedisLocker struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	token  string
}

// NewRedisLocker creates a locker on the given key. The TTL bounds how long
// a crashed instance can wedge scanning; it should exceed the longest
// expected cycle.
func NewRedisLocker(client *redis.Client, key string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLocker{client: client, key: key, ttl: ttl}
}

func (l *RedisLocker) TryLock(ctx context.Context) (bool, error) {
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("scan lock acquire: %w", err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

func (l *RedisLocker) Unlock(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	_, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Result()
	l.token = ""
	if err != nil && err != redis.Nil {
		return fmt.Errorf("scan lock release: %w", err)
	}
	return nil
}
