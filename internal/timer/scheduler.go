// Package timer tracks the server-side deadline of every active unit.
package timer

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/aptitest-backend/internal/config"
	"github.com/stemsi/aptitest-backend/internal/model"
)

// Deadline is one scheduled expiry.
type Deadline struct {
	Key model.SessionKey
	At  time.Time
}

// Scheduler stores at most one deadline per session. Due hands each expired
// deadline to exactly one caller by removing it.
type Scheduler interface {
	Schedule(ctx context.Context, key model.SessionKey, at time.Time) error
	Cancel(ctx context.Context, key model.SessionKey) error
	Due(ctx context.Context, now time.Time, limit int) ([]Deadline, error)
}

// RedisScheduler keeps deadlines in a sorted set scored by unix milliseconds.
type RedisScheduler struct {
	rdb *redis.Client
	key string
	log zerolog.Logger
}

// NewRedisScheduler creates a RedisScheduler.
func NewRedisScheduler(rdb *redis.Client, log zerolog.Logger) *RedisScheduler {
	return &RedisScheduler{
		rdb: rdb,
		key: config.CacheKey.DeadlinesKey(),
		log: log.With().Str("component", "deadline_scheduler").Logger(),
	}
}

func (s *RedisScheduler) Schedule(ctx context.Context, key model.SessionKey, at time.Time) error {
	err := s.rdb.ZAdd(ctx, s.key, redis.Z{Score: float64(at.UnixMilli()), Member: key.String()}).Err()
	if err != nil {
		return fmt.Errorf("schedule deadline %s: %w", key, err)
	}
	return nil
}

func (s *RedisScheduler) Cancel(ctx context.Context, key model.SessionKey) error {
	if err := s.rdb.ZRem(ctx, s.key, key.String()).Err(); err != nil {
		return fmt.Errorf("cancel deadline %s: %w", key, err)
	}
	return nil
}

// Due claims up to limit deadlines at or before now. A deadline is returned
// only to the process whose ZREM removed it.
func (s *RedisScheduler) Due(ctx context.Context, now time.Time, limit int) ([]Deadline, error) {
	entries, err := s.rdb.ZRangeByScoreWithScores(ctx, s.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list due deadlines: %w", err)
	}

	due := make([]Deadline, 0, len(entries))
	for _, z := range entries {
		member, _ := z.Member.(string)
		key, err := model.ParseSessionKey(member)
		if err != nil {
			s.log.Warn().Str("member", member).Msg("Dropping malformed deadline entry")
			s.rdb.ZRem(ctx, s.key, member)
			continue
		}
		removed, err := s.rdb.ZRem(ctx, s.key, member).Result()
		if err != nil {
			return due, fmt.Errorf("claim deadline %s: %w", key, err)
		}
		if removed == 0 {
			continue // claimed by another process
		}
		due = append(due, Deadline{Key: key, At: time.UnixMilli(int64(z.Score))})
	}
	return due, nil
}

// MemoryScheduler keeps deadlines in process memory.
type MemoryScheduler struct {
	mu        sync.Mutex
	deadlines map[model.SessionKey]time.Time
}

// NewMemoryScheduler creates an empty MemoryScheduler.
func NewMemoryScheduler() *MemoryScheduler {
	return &MemoryScheduler{deadlines: make(map[model.SessionKey]time.Time)}
}

func (s *MemoryScheduler) Schedule(_ context.Context, key model.SessionKey, at time.Time) error {
	s.mu.Lock()
	s.deadlines[key] = at
	s.mu.Unlock()
	return nil
}

func (s *MemoryScheduler) Cancel(_ context.Context, key model.SessionKey) error {
	s.mu.Lock()
	delete(s.deadlines, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryScheduler) Due(_ context.Context, now time.Time, limit int) ([]Deadline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []Deadline
	for key, at := range s.deadlines {
		if !at.After(now) {
			due = append(due, Deadline{Key: key, At: at})
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].At.Before(due[j].At) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	for _, d := range due {
		delete(s.deadlines, d.Key)
	}
	return due, nil
}

// Pending returns the deadline scheduled for key, if any.
func (s *MemoryScheduler) Pending(key model.SessionKey) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.deadlines[key]
	return at, ok
}
