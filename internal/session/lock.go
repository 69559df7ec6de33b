package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/aptitest-backend/internal/config"
	"github.com/stemsi/aptitest-backend/internal/model"
)

// ErrLockTimeout is returned when a session lock could not be taken before
// the context ended.
var ErrLockTimeout = errors.New("session lock not acquired")

// KeyedMutex serializes work per session inside one process.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[model.SessionKey]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[model.SessionKey]*keyedLock)}
}

// Lock blocks until the lock for key is held or ctx ends. The returned func
// releases it and must be called exactly once.
func (k *KeyedMutex) Lock(ctx context.Context, key model.SessionKey) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			k.release(key, l)
		}, nil
	case <-ctx.Done():
		k.release(key, l)
		return nil, fmt.Errorf("%w: %s: %w", ErrLockTimeout, key, ctx.Err())
	}
}

func (k *KeyedMutex) release(key model.SessionKey, l *keyedLock) {
	k.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}

// unlockScript deletes the lock only if it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker serializes work per session across server processes with a
// SET NX PX lease.
type RedisLocker struct {
	rdb   *redis.Client
	lease time.Duration
	retry time.Duration
	log   zerolog.Logger
}

// NewRedisLocker creates a RedisLocker. lease bounds how long a crashed holder
// can keep a session blocked.
func NewRedisLocker(rdb *redis.Client, lease time.Duration, log zerolog.Logger) *RedisLocker {
	return &RedisLocker{
		rdb:   rdb,
		lease: lease,
		retry: 25 * time.Millisecond,
		log:   log.With().Str("component", "session_locker").Logger(),
	}
}

// Lock polls until the lease is acquired or ctx ends.
func (l *RedisLocker) Lock(ctx context.Context, key model.SessionKey) (func(), error) {
	lockKey := config.CacheKey.SessionLockKey(key.SurveyType, key.UserCode)
	token := uuid.NewString()

	for {
		ok, err := l.rdb.SetNX(ctx, lockKey, token, l.lease).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return func() { l.release(key, lockKey, token) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", ErrLockTimeout, key, ctx.Err())
		case <-time.After(l.retry):
		}
	}
}

// release drops the lease if it is still ours. A failed release leaves the
// session blocked until the lease runs out.
func (l *RedisLocker) release(key model.SessionKey, lockKey, token string) {
	// Fresh context so a cancelled request still unlocks.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	released, err := unlockScript.Run(ctx, l.rdb, []string{lockKey}, token).Int()
	if err != nil {
		l.log.Error().Err(err).
			Str("session", key.String()).
			Dur("lease", l.lease).
			Msg("Failed to release session lock")
		return
	}
	if released == 0 {
		l.log.Warn().
			Str("session", key.String()).
			Dur("lease", l.lease).
			Msg("Session lock lease expired before release")
	}
}
