package locking

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only when this holder still owns it, so an
// expired lease never releases a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0`)

// RedisLocker implements the lock with SET NX and a TTL lease, safe across
// processes.
type RedisLocker struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisLocker creates a distributed locker.
func NewRedisLocker(client *redis.Client, logger *slog.Logger) *RedisLocker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLocker{client: client, logger: logger}
}

// Acquire takes the lock or fails fast with ErrLockHeld.
func (l *RedisLocker) Acquire(ctx context.Context, userID, captureID uuid.UUID, ttl time.Duration) (func(), error) {
	key := lockKey(userID, captureID)
	holder := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, holder, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}

	release := func() {
		// Release uses a fresh context so an aborted request still unlocks.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.client, []string{key}, holder).Err(); err != nil && err != redis.Nil {
			l.logger.Warn("lock release failed, lease will expire", "key", key, "error", err)
		}
	}
	return release, nil
}
