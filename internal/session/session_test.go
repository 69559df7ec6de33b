package session

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/aptitest-backend/internal/model"
	"github.com/stemsi/aptitest-backend/internal/phase"
)

func sampleSession(code string) *model.TestSession {
	deadline := time.Date(2026, 3, 2, 9, 0, 10, 0, time.UTC)
	return &model.TestSession{
		SurveyType:     "v1",
		UserCode:       code,
		Phase:          phase.B,
		Unit:           8,
		State:          model.SessionStateAwaitingAnswer,
		PendingAnswers: map[int]string{8: "A"},
		Deadline:       &deadline,
	}
}

func TestMemoryStoreRoundTripDoesNotAlias(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)
	sess := sampleSession("ABC1234")
	require.NoError(t, store.Save(ctx, sess))

	sess.PendingAnswers[9] = "C"

	got, err := store.Get(ctx, sess.Key())
	require.NoError(t, err)
	assert.Equal(t, map[int]string{8: "A"}, got.PendingAnswers)
	assert.Equal(t, phase.B, got.Phase)

	require.NoError(t, store.Delete(ctx, sess.Key()))
	_, err = store.Get(ctx, sess.Key())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreExpires(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	sess := sampleSession("ABC1234")
	require.NoError(t, store.Save(ctx, sess))

	now = now.Add(2 * time.Minute)
	_, err := store.Get(ctx, sess.Key())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	key := model.SessionKey{SurveyType: "v1", UserCode: "ABC1234"}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := km.Lock(context.Background(), key)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, km.locks)
}

func TestKeyedMutexHonorsContext(t *testing.T) {
	km := NewKeyedMutex()
	key := model.SessionKey{SurveyType: "v1", UserCode: "ABC1234"}
	unlock, err := km.Lock(context.Background(), key)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = km.Lock(ctx, key)
	assert.ErrorIs(t, err, ErrLockTimeout)

	other, err := km.Lock(context.Background(), model.SessionKey{SurveyType: "v1", UserCode: "XYZ9999"})
	require.NoError(t, err)
	other()
}

// redisClient connects to TEST_REDIS_URL or skips the test.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opt)
	require.NoError(t, rdb.Ping(context.Background()).Err())
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestRedisStoreAndLocker(t *testing.T) {
	rdb := redisClient(t)
	ctx := context.Background()

	store := NewRedisStore(rdb, time.Minute)
	sess := sampleSession("REDIS01")
	require.NoError(t, store.Save(ctx, sess))
	t.Cleanup(func() { store.Delete(ctx, sess.Key()) })

	got, err := store.Get(ctx, sess.Key())
	require.NoError(t, err)
	assert.Equal(t, sess.PendingAnswers, got.PendingAnswers)

	locker := NewRedisLocker(rdb, 5*time.Second, zerolog.Nop())
	unlock, err := locker.Lock(ctx, sess.Key())
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(short, sess.Key())
	assert.ErrorIs(t, err, ErrLockTimeout)

	unlock()
	again, err := locker.Lock(ctx, sess.Key())
	require.NoError(t, err)
	again()
}

// scriptedRedis answers commands in-process: SET NX always succeeds and
// scripts return evalResult or evalErr. No server is contacted.
type scriptedRedis struct {
	evalResult int64
	evalErr    error
}

func (h scriptedRedis) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h scriptedRedis) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		switch c := cmd.(type) {
		case *redis.BoolCmd:
			c.SetVal(true)
			return nil
		case *redis.Cmd:
			if h.evalErr != nil {
				c.SetErr(h.evalErr)
				return h.evalErr
			}
			c.SetVal(h.evalResult)
			return nil
		}
		return errors.New("unexpected command " + cmd.Name())
	}
}

func (h scriptedRedis) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestRedisLockerLogsFailedRelease(t *testing.T) {
	tests := []struct {
		name    string
		hook    scriptedRedis
		message string
	}{
		{name: "redis error", hook: scriptedRedis{evalErr: errors.New("connection reset")}, message: "Failed to release session lock"},
		{name: "lease lost", hook: scriptedRedis{evalResult: 0}, message: "Session lock lease expired before release"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
			rdb.AddHook(tt.hook)
			t.Cleanup(func() { rdb.Close() })

			var buf bytes.Buffer
			locker := NewRedisLocker(rdb, 5*time.Second, zerolog.New(&buf))
			unlock, err := locker.Lock(context.Background(), sampleSession("HOOK001").Key())
			require.NoError(t, err)
			unlock()

			assert.Contains(t, buf.String(), tt.message)
			assert.Contains(t, buf.String(), "v1:HOOK001")
		})
	}
}

func TestRedisLockerQuietOnCleanRelease(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	rdb.AddHook(scriptedRedis{evalResult: 1})
	t.Cleanup(func() { rdb.Close() })

	var buf bytes.Buffer
	locker := NewRedisLocker(rdb, 5*time.Second, zerolog.New(&buf))
	unlock, err := locker.Lock(context.Background(), sampleSession("HOOK002").Key())
	require.NoError(t, err)
	unlock()

	assert.Empty(t, buf.String())
}
