package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// =============================================================================
// Per-Name Exclusion
// =============================================================================

// Locker grants exclusive use of an instance name to one deployment at a time.
type Locker interface {
	// TryLock claims name without waiting. It returns ErrDeploymentInProgress
	// when the name is already held. unlock releases the claim and is safe to
	// call more than once.
	TryLock(ctx context.Context, name string) (unlock func(), err error)
}

// MemoryLocker is a Locker for a single process.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemoryLocker creates an in-process Locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]struct{})}
}

// TryLock implements Locker.
func (l *MemoryLocker) TryLock(_ context.Context, name string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[name]; busy {
		return nil, fmt.Errorf("%w: %s", ErrDeploymentInProgress, name)
	}
	l.held[name] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
		})
	}, nil
}

// =============================================================================
// Redis Locker
// =============================================================================

// DefaultLockTTL bounds how long a crashed holder can keep a name locked.
const DefaultLockTTL = 15 * time.Minute

const lockKeyPrefix = "relaunch:lock:"

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// renewScript pushes the expiry forward only if the key still holds our token.
var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker is a Locker shared by every process using the same Redis.
// A held lock is extended every ttl/3 until it is released, so the ttl only
// bounds how long a crashed holder blocks the name.
type RedisLocker struct {
	client     redis.UniversalClient
	ttl        time.Duration
	renewEvery time.Duration
	logger     *slog.Logger
}

// NewRedisLocker creates a Redis-backed Locker. A zero ttl uses DefaultLockTTL.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisLocker{
		client:     client,
		ttl:        ttl,
		renewEvery: max(ttl/3, time.Millisecond),
		logger:     logger.With("component", "redis_locker"),
	}
}

// TryLock implements Locker.
func (l *RedisLocker) TryLock(ctx context.Context, name string) (func(), error) {
	key := lockKeyPrefix + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeploymentInProgress, name)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.renew(name, key, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done

			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
				l.logger.Warn("failed to release lock", "name", name, "error", err)
			}
		})
	}, nil
}

// renew extends the lock until stop is closed or the token is gone.
func (l *RedisLocker) renew(name, key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.renewEvery)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.renewEvery)
			extended, err := renewScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil {
				l.logger.Warn("failed to extend lock", "name", name, "error", err)
				continue
			}
			if extended == 0 {
				l.logger.Error("lock lost while deployment is running", "name", name)
				return
			}
		}
	}
}
