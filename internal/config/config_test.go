package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadReadsSurveyAndTimerSettings(t *testing.T) {
	t.Setenv("SURVEY_TYPES", "v1, v2 ,")
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("DEADLINE_GRACE_SECONDS", "5")
	t.Setenv("DEADLINE_POLL_MS", "250")
	t.Setenv("ASSET_BASE_URL", "https://cdn.example.com/images/")

	cfg := Load()
	assert.Equal(t, []string{"v1", "v2"}, cfg.SurveyTypes)
	assert.True(t, cfg.HasSurveyType("v2"))
	assert.False(t, cfg.HasSurveyType("v3"))
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, 5*time.Second, cfg.DeadlineGrace)
	assert.Equal(t, 250*time.Millisecond, cfg.DeadlinePoll)
	assert.Equal(t, "https://cdn.example.com/images", cfg.AssetBaseURL)
}

func TestGetEnvIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("COMMIT_RETRY_SECONDS", "soon")
	assert.Equal(t, 3, getEnvInt("COMMIT_RETRY_SECONDS", 3))
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "survey:v1:session:ABC1234", CacheKey.SessionKey("v1", "ABC1234"))
	assert.Equal(t, "survey:v1:question:B:8", CacheKey.QuestionUnitKey("v1", "B", 8))
}
