package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockUnavailable wraps failures talking to the lock backend.
	ErrLockUnavailable = errors.New("lock backend unavailable")
)

// Locker guards critical sections keyed by an arbitrary resource name.
type Locker interface {
	// WithLock runs fn while holding key. It returns ErrLockNotAcquired when
	// another holder owns the key.
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
	// TryLock acquires key without blocking and returns the owner token.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, string, error)
	Unlock(ctx context.Context, key, token string) error
}

// DoctorScheduleKey serializes check-then-insert for one doctor's calendar.
func DoctorScheduleKey(doctorID uuid.UUID) string {
	return fmt.Sprintf("lock:doctor:%s", doctorID.String())
}

type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker creates a locker backed by SET NX keys with the given TTL.
func NewRedisLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	ok, token, err := l.TryLock(ctx, key, l.ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		// release with a fresh context so a cancelled request still frees the key
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = l.Unlock(releaseCtx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, string, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, "", fmt.Errorf("acquire lock %s: %w: %w", key, ErrLockUnavailable, err)
	}
	if !ok {
		return false, "", nil
	}
	return true, token, nil
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}
