// Package session keeps live test sessions and serializes the events applied
// to each one.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stemsi/aptitest-backend/internal/config"
	"github.com/stemsi/aptitest-backend/internal/model"
)

// ErrNotFound is returned when no live session exists for a key.
var ErrNotFound = errors.New("session not found")

// RedisStore keeps sessions as JSON strings with a sliding TTL.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore creates a RedisStore. Every Save refreshes the TTL.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

// Get loads the session stored under key.
func (s *RedisStore) Get(ctx context.Context, key model.SessionKey) (*model.TestSession, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.SessionKey(key.SurveyType, key.UserCode)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", key, err)
	}
	var sess model.TestSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", key, err)
	}
	return &sess, nil
}

// Save writes the session and refreshes its TTL.
func (s *RedisStore) Save(ctx context.Context, sess *model.TestSession) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	key := sess.Key()
	if err := s.rdb.Set(ctx, config.CacheKey.SessionKey(key.SurveyType, key.UserCode), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", key, err)
	}
	return nil
}

// Delete removes the session. Deleting a missing session is not an error.
func (s *RedisStore) Delete(ctx context.Context, key model.SessionKey) error {
	return s.rdb.Del(ctx, config.CacheKey.SessionKey(key.SurveyType, key.UserCode)).Err()
}

// MemoryStore keeps sessions in process memory. Entries are stored encoded so
// callers never share a *TestSession with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[model.SessionKey]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	raw     []byte
	expires time.Time
}

// NewMemoryStore creates a MemoryStore. A zero ttl keeps sessions forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[model.SessionKey]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get loads the session stored under key.
func (s *MemoryStore) Get(_ context.Context, key model.SessionKey) (*model.TestSession, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || (!e.expires.IsZero() && s.now().After(e.expires)) {
		return nil, ErrNotFound
	}
	var sess model.TestSession
	if err := json.Unmarshal(e.raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", key, err)
	}
	return &sess, nil
}

// Save writes the session and refreshes its TTL.
func (s *MemoryStore) Save(_ context.Context, sess *model.TestSession) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	e := memoryEntry{raw: raw}
	if s.ttl > 0 {
		e.expires = s.now().Add(s.ttl)
	}
	s.mu.Lock()
	s.entries[sess.Key()] = e
	s.mu.Unlock()
	return nil
}

// Delete removes the session.
func (s *MemoryStore) Delete(_ context.Context, key model.SessionKey) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}
