package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("schedule block lock not acquired")

const defaultLockKeyPrefix = "lock:block:"

// Locker guards the booking critical section per schedule block. The
// database's conditional update is the real capacity guarantee; the lock
// keeps concurrent bookings for a hot block from piling up on the row.
type Locker interface {
	WithBlockLock(ctx context.Context, blockID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisBlockLocker struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisBlockLocker creates a locker that keys one Redis entry per block
// under keyPrefix. An empty prefix selects the default namespace.
func NewRedisBlockLocker(client *redis.Client, ttl time.Duration, keyPrefix string) Locker {
	if keyPrefix == "" {
		keyPrefix = defaultLockKeyPrefix
	}
	return &redisBlockLocker{
		client: client,
		ttl:    ttl,
		prefix: keyPrefix,
	}
}

func (l *redisBlockLocker) key(blockID uuid.UUID) string {
	return l.prefix + blockID.String()
}

// WithBlockLock runs fn while holding the block's lock. fn gets at most the
// lock TTL to finish, so the lock cannot expire under a live holder.
func (l *redisBlockLocker) WithBlockLock(ctx context.Context, blockID uuid.UUID, fn func(ctx context.Context) error) error {
	unlock, err := l.acquire(ctx, l.key(blockID))
	if err != nil {
		return err
	}
	defer unlock()

	runCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(runCtx)
}

// unlockScript deletes the key only when it still holds our token, so an
// expired-and-reacquired lock is never released by the old holder.
var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisBlockLocker) acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire block lock: %w", err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	release := func() {
		// Release must run even when the caller's context is already done.
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_, _ = unlockScript.Run(relCtx, l.client, []string{key}, token).Result()
	}
	return release, nil
}
