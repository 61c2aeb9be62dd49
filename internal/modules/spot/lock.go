// README: Per-lot allocation locks: in-process channels or a Redis SET NX lease.
package spot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"parkmark/internal/logging"
	"parkmark/internal/types"
)

// Locker serialises the read-then-insert sequence of Occupy per lot.
// The returned unlock func must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, lotID types.ID) (unlock func(), err error)
}

// LocalLocker is enough for a single API instance.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[types.ID]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[types.ID]chan struct{})}
}

func (l *LocalLocker) Lock(ctx context.Context, lotID types.ID) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[lotID]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[lotID] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-slot }) }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrLockUnavailable, ctx.Err())
	}
}

const (
	lockKeyPattern = "parkmark:lot:%s:alloc_lock"
	lockRetryDelay = 25 * time.Millisecond
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker holds a lease per lot across API instances. A holder that dies
// loses the lease after ttl.
type RedisLocker struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &RedisLocker{redis: client, ttl: ttl}
}

func (l *RedisLocker) Lock(ctx context.Context, lotID types.ID) (func(), error) {
	key := lockKey(lotID)
	token := uuid.NewString()
	deadline := time.Now().Add(l.ttl)

	for {
		ok, err := l.redis.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLockUnavailable, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s held elsewhere", ErrLockUnavailable, key)
		}
		select {
		case <-time.After(lockRetryDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrLockUnavailable, ctx.Err())
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's ctx may already be cancelled; the lease must still go.
			rctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, l.redis, []string{key}, token).Err(); err != nil {
				logging.Warn().Err(err).Str("lot_id", string(lotID)).Msg("release allocation lock")
			}
		})
	}, nil
}

func lockKey(lotID types.ID) string {
	return fmt.Sprintf(lockKeyPattern, string(lotID))
}
