package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionKey returns the cache key for a test-taker's live session
func (r *CacheKeyStruct) SessionKey(surveyType, userCode string) string {
	return fmt.Sprintf("survey:%s:session:%s", surveyType, userCode)
}

// SessionLockKey returns the key of the per-session mutex
func (r *CacheKeyStruct) SessionLockKey(surveyType, userCode string) string {
	return fmt.Sprintf("survey:%s:session:%s:lock", surveyType, userCode)
}

// SessionEventsChannel returns the Redis PubSub channel for a session's events
func (r *CacheKeyStruct) SessionEventsChannel(surveyType, userCode string) string {
	return fmt.Sprintf("survey:%s:session:%s:events", surveyType, userCode)
}

// QuestionUnitKey returns the cache key for a rendered question unit
func (r *CacheKeyStruct) QuestionUnitKey(surveyType, phase string, unit int) string {
	return fmt.Sprintf("survey:%s:question:%s:%d", surveyType, phase, unit)
}

// DeadlinesKey returns the sorted set holding every pending unit deadline
func (r *CacheKeyStruct) DeadlinesKey() string {
	return "aptitest:deadlines"
}

var CacheKey = NewCacheKeyStruct()
