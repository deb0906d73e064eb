package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionLocker guarantees at most one in-flight turn per session. Acquire
// returns ErrTurnInProgress when the session is already locked; the returned
// release func is safe to call more than once.
type SessionLocker interface {
	Acquire(ctx context.Context, sessionID string) (release func(), err error)
}

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisSessionLocker implements SessionLocker with SET NX and a TTL so a
// crashed worker cannot hold a session forever.
type RedisSessionLocker struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisSessionLocker(client *redis.Client, ttl time.Duration) *RedisSessionLocker {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisSessionLocker{redis: client, ttl: ttl}
}

func (l *RedisSessionLocker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	key := lockKey(sessionID)
	token := uuid.NewString()
	ok, err := l.redis.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("conversation: acquire session lock: %w", err)
	}
	if !ok {
		return nil, ErrTurnInProgress
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, l.redis, []string{key}, token).Err()
		})
	}, nil
}

func lockKey(sessionID string) string {
	return fmt.Sprintf("concierge:lock:%s", sessionID)
}

// MemorySessionLocker is the in-process SessionLocker.
type MemorySessionLocker struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func NewMemorySessionLocker() *MemorySessionLocker {
	return &MemorySessionLocker{active: make(map[string]struct{})}
}

func (l *MemorySessionLocker) Acquire(_ context.Context, sessionID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.active[sessionID]; busy {
		return nil, ErrTurnInProgress
	}
	l.active[sessionID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.active, sessionID)
			l.mu.Unlock()
		})
	}, nil
}
