package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/aptitest-backend/internal/model"
	"github.com/stemsi/aptitest-backend/internal/repository"
	"github.com/stemsi/aptitest-backend/internal/timer"
)

type recordingExpirer struct {
	mu   sync.Mutex
	seen []model.SessionKey
	fail map[model.SessionKey]bool
}

func (e *recordingExpirer) ExpireTimer(_ context.Context, key model.SessionKey) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen = append(e.seen, key)
	if e.fail[key] {
		return errors.New("lock timeout")
	}
	return nil
}

func TestDeadlineWorkerExpiresDueSessions(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	sched := timer.NewMemoryScheduler()

	due := model.SessionKey{SurveyType: "v1", UserCode: "DUE0001"}
	later := model.SessionKey{SurveyType: "v1", UserCode: "LATE001"}
	broken := model.SessionKey{SurveyType: "v1", UserCode: "FAIL001"}
	require.NoError(t, sched.Schedule(ctx, due, now.Add(-time.Second)))
	require.NoError(t, sched.Schedule(ctx, later, now.Add(time.Minute)))
	require.NoError(t, sched.Schedule(ctx, broken, now))

	exp := &recordingExpirer{fail: map[model.SessionKey]bool{broken: true}}
	w := NewDeadlineWorker(sched, exp, time.Second, zerolog.Nop())
	w.now = func() time.Time { return now }

	assert.Equal(t, 2, w.Tick(ctx))
	assert.ElementsMatch(t, []model.SessionKey{due, broken}, exp.seen)

	_, ok := sched.Pending(due)
	assert.False(t, ok)
	_, ok = sched.Pending(later)
	assert.True(t, ok)

	at, ok := sched.Pending(broken)
	require.True(t, ok, "failed expiry is rescheduled")
	assert.Equal(t, now.Add(DeadlineRetryDelay), at)

	assert.Equal(t, 0, w.Tick(ctx))
}

type fakeMarker struct {
	marked map[string]time.Time
	err    error
}

func (m *fakeMarker) MarkUsed(_ context.Context, value string, at time.Time) error {
	if m.err != nil {
		return m.err
	}
	if value == "GONE000" {
		return repository.ErrNotFound
	}
	m.marked[value] = at
	return nil
}

func TestCodeUsedWorkerHandle(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	marker := &fakeMarker{marked: map[string]time.Time{}}
	w := NewCodeUsedWorker(marker, nil, zerolog.Nop())

	raw, err := json.Marshal(codeUsedPayload{Code: "ABC1234", UsedAt: at})
	require.NoError(t, err)
	require.NoError(t, w.handle(ctx, string(raw)))
	assert.True(t, marker.marked["ABC1234"].Equal(at))

	gone, err := json.Marshal(codeUsedPayload{Code: "GONE000", UsedAt: at})
	require.NoError(t, err)
	assert.NoError(t, w.handle(ctx, string(gone)), "unknown codes are dropped")
	assert.NoError(t, w.handle(ctx, "{not json"), "malformed payloads are dropped")

	marker.err = errors.New("connection refused")
	assert.Error(t, w.handle(ctx, string(raw)), "storage errors are retried")
}
