package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/aptitest-backend/internal/database"
	"github.com/stemsi/aptitest-backend/internal/events"
	"github.com/stemsi/aptitest-backend/internal/model"
	"github.com/stemsi/aptitest-backend/internal/phase"
	"github.com/stemsi/aptitest-backend/internal/repository"
	"github.com/stemsi/aptitest-backend/internal/session"
	"github.com/stemsi/aptitest-backend/internal/timer"
)

var v1 = model.SurveyContext{SurveyType: "v1"}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// flakyLedgers fails Save while failing is set.
type flakyLedgers struct {
	LedgerStore
	mu      sync.Mutex
	failing bool
}

func (f *flakyLedgers) Save(ctx context.Context, l *model.AnswerLedger) error {
	f.mu.Lock()
	failing := f.failing
	f.mu.Unlock()
	if failing {
		return errors.New("connection refused")
	}
	return f.LedgerStore.Save(ctx, l)
}

func (f *flakyLedgers) setFailing(v bool) {
	f.mu.Lock()
	f.failing = v
	f.mu.Unlock()
}

type harness struct {
	clock     *clock
	ledgers   *flakyLedgers
	codes     *repository.SQLiteCodeRepository
	parts     *repository.SQLiteParticipantRepository
	sessions  *session.MemoryStore
	deadlines *timer.MemoryScheduler
	broker    *events.MemoryBroker
	ledger    *LedgerService
	svc       *TestSessionService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := database.NewSQLite(context.Background(), ":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := &harness{
		clock:     &clock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
		ledgers:   &flakyLedgers{LedgerStore: repository.NewSQLiteLedgerRepository(db)},
		codes:     repository.NewSQLiteCodeRepository(db),
		parts:     repository.NewSQLiteParticipantRepository(db),
		sessions:  session.NewMemoryStore(time.Hour),
		deadlines: timer.NewMemoryScheduler(),
		broker:    events.NewMemoryBroker(),
	}
	h.ledger = NewLedgerService(h.ledgers, h.codes, h.parts, nil, zerolog.Nop())
	h.ledger.now = h.clock.Now
	h.svc = NewTestSessionService(
		h.sessions,
		session.NewKeyedMutex(),
		h.deadlines,
		h.ledger,
		h.broker,
		TestSessionOptions{Grace: 2 * time.Second, RetryDelay: 3 * time.Second},
		zerolog.Nop(),
	)
	h.svc.now = h.clock.Now
	h.svc.randIntN = func(n int) int { return n - 1 }
	return h
}

// position moves a stored session to p/unit with a fresh deadline.
func (h *harness) position(t *testing.T, code string, p phase.Phase, unit int) {
	t.Helper()
	ctx := context.Background()
	key := model.NewSessionKey(v1, code)
	sess, err := h.sessions.Get(ctx, key)
	require.NoError(t, err)
	u, err := phase.MustShape(p).UnitAt(unit)
	require.NoError(t, err)
	deadline := h.clock.Now().Add(u.TimeLimit)
	sess.Phase, sess.Unit, sess.Deadline = p, unit, &deadline
	require.NoError(t, h.sessions.Save(ctx, sess))
}

func (h *harness) start(t *testing.T, code string) {
	t.Helper()
	_, err := h.svc.StartSession(context.Background(), v1, code)
	require.NoError(t, err)
}

func (h *harness) ledgerOf(t *testing.T, code string) *model.AnswerLedger {
	t.Helper()
	l, err := h.ledger.Get(context.Background(), v1, code)
	require.NoError(t, err)
	return l
}

func TestStartSessionIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.svc.StartSession(ctx, v1, "ABC1234")
	require.NoError(t, err)
	assert.Equal(t, phase.A, first.Phase)
	assert.Equal(t, 1, first.Unit)
	assert.Equal(t, 10, first.RemainingSeconds)
	assert.Equal(t, 260, first.Progress.TotalQuestions)

	at, ok := h.deadlines.Pending(model.NewSessionKey(v1, "ABC1234"))
	require.True(t, ok)
	assert.Equal(t, h.clock.Now().Add(12*time.Second), at)

	h.clock.Advance(4 * time.Second)
	again, err := h.svc.StartSession(ctx, v1, "ABC1234")
	require.NoError(t, err)
	assert.Equal(t, 1, again.Unit)
	assert.Equal(t, 6, again.RemainingSeconds)
}

func TestSubmitIndividualAnswerWritesSlot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t, "ABC1234")
	h.position(t, "ABC1234", phase.A, 200)

	resp, err := h.svc.SubmitAnswer(ctx, v1, "ABC1234", "A", model.SingleAnswer{QuestionNumber: 200, Value: "3"})
	require.NoError(t, err)
	assert.Equal(t, SubmitResultCommitted, resp.Result)
	assert.Equal(t, 201, resp.Session.Unit)
	assert.Equal(t, 1, resp.Session.Progress.TotalAnswered)

	l := h.ledgerOf(t, "ABC1234")
	require.NotNil(t, l.TypeA[199])
	assert.Equal(t, "3", *l.TypeA[199])
	assert.Equal(t, 1, l.TotalAnswered)

	// The same answer again is a late duplicate.
	resp, err = h.svc.SubmitAnswer(ctx, v1, "ABC1234", "A", model.SingleAnswer{QuestionNumber: 200, Value: "5"})
	require.NoError(t, err)
	assert.Equal(t, SubmitResultDuplicate, resp.Result)
	assert.Equal(t, "3", *h.ledgerOf(t, "ABC1234").TypeA[199])
}

func TestBlockCommitsAtomically(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t, "ABC1234")
	h.position(t, "ABC1234", phase.B, 8)

	resp, err := h.svc.SubmitAnswer(ctx, v1, "ABC1234", "B", model.BlockAnswer{Values: map[int]string{8: "A"}})
	require.NoError(t, err)
	assert.Equal(t, SubmitResultPending, resp.Result)
	assert.Equal(t, model.SessionStateAwaitingAnswer, resp.Session.State)
	assert.Equal(t, map[int]string{8: "A"}, resp.Session.PendingAnswers)

	_, err = h.ledger.Get(ctx, v1, "ABC1234")
	assert.ErrorIs(t, err, model.ErrNotFound, "pending answers are not persisted")

	resp, err = h.svc.SubmitAnswer(ctx, v1, "ABC1234", "B", model.BlockAnswer{Values: map[int]string{9: "C"}})
	require.NoError(t, err)
	assert.Equal(t, SubmitResultCommitted, resp.Result)
	assert.Equal(t, 10, resp.Session.Unit)

	l := h.ledgerOf(t, "ABC1234")
	assert.Equal(t, "A", *l.TypeB[7])
	assert.Equal(t, "C", *l.TypeB[8])
	assert.Equal(t, 2, l.TotalAnswered)
}

func TestExpiredBlockCommitsPartialAndCompletes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t, "ABC1234")
	h.position(t, "ABC1234", phase.C, 8)
	key := model.NewSessionKey(v1, "ABC1234")

	_, err := h.svc.SubmitAnswer(ctx, v1, "ABC1234", "C", model.BlockAnswer{Values: map[int]string{8: "B"}})
	require.NoError(t, err)

	// Not due yet: the entry is put back.
	h.clock.Advance(10 * time.Minute)
	require.NoError(t, h.svc.ExpireTimer(ctx, key))
	sess, err := h.sessions.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, phase.C, sess.Phase)
	_, ok := h.deadlines.Pending(key)
	assert.True(t, ok)

	h.clock.Advance(2*time.Minute + 2*time.Second)
	require.NoError(t, h.svc.ExpireTimer(ctx, key))

	sess, err = h.sessions.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, sess.Completed())
	_, ok = h.deadlines.Pending(key)
	assert.False(t, ok)

	l := h.ledgerOf(t, "ABC1234")
	assert.Equal(t, "B", *l.TypeC[7])
	assert.Nil(t, l.TypeC[8])
	assert.Nil(t, l.TypeC[9])
	assert.NotNil(t, l.CompletedAt)
}

func TestLateSubmissionIsRejectedAndUnitClosed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t, "ABC1234")

	h.clock.Advance(12 * time.Second)
	_, err := h.svc.SubmitAnswer(ctx, v1, "ABC1234", "A", model.SingleAnswer{QuestionNumber: 1, Value: "4"})
	assert.ErrorIs(t, err, model.ErrDeadlinePassed)

	state, err := h.svc.GetState(ctx, v1, "ABC1234")
	require.NoError(t, err)
	assert.Equal(t, 2, state.Unit)
	assert.Equal(t, 0, state.Progress.TotalAnswered)
	assert.Nil(t, h.ledgerOf(t, "ABC1234").TypeA[0])
}

func TestSubmissionWithinGraceIsAccepted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t, "ABC1234")

	h.clock.Advance(11 * time.Second)
	resp, err := h.svc.SubmitAnswer(ctx, v1, "ABC1234", "A", model.SingleAnswer{QuestionNumber: 1, Value: "4"})
	require.NoError(t, err)
	assert.Equal(t, SubmitResultCommitted, resp.Result)
}

func TestInvalidSubmissionIsValidationError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t, "ABC1234")

	_, err := h.svc.SubmitAnswer(ctx, v1, "ABC1234", "A", model.SingleAnswer{QuestionNumber: 1, Value: "9"})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = h.svc.SubmitAnswer(ctx, v1, "ABC1234", "D", model.SingleAnswer{QuestionNumber: 1, Value: "1"})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = h.svc.SubmitAnswer(ctx, v1, "NOBODY", "A", model.SingleAnswer{QuestionNumber: 1, Value: "1"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestFailedCommitIsRetried(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t, "ABC1234")
	key := model.NewSessionKey(v1, "ABC1234")

	h.ledgers.setFailing(true)
	_, err := h.svc.SubmitAnswer(ctx, v1, "ABC1234", "A", model.SingleAnswer{QuestionNumber: 1, Value: "2"})
	assert.ErrorIs(t, err, model.ErrPersistence)

	sess, err := h.sessions.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStateCommitting, sess.State)
	assert.Equal(t, 1, sess.Unit)
	at, ok := h.deadlines.Pending(key)
	require.True(t, ok)
	assert.Equal(t, h.clock.Now().Add(3*time.Second), at)

	h.ledgers.setFailing(false)
	view, err := h.svc.RetryCommit(ctx, v1, "ABC1234")
	require.NoError(t, err)
	assert.Equal(t, 2, view.Unit)
	assert.Equal(t, "2", *h.ledgerOf(t, "ABC1234").TypeA[0])
}

func TestTimerResumesFailedCommit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t, "ABC1234")
	h.position(t, "ABC1234", phase.B, 10)
	key := model.NewSessionKey(v1, "ABC1234")

	h.ledgers.setFailing(true)
	_, err := h.svc.SubmitAnswer(ctx, v1, "ABC1234", "B", model.SingleAnswer{QuestionNumber: 10, Value: "D"})
	require.Error(t, err)

	h.ledgers.setFailing(false)
	h.clock.Advance(3 * time.Second)
	due, err := h.deadlines.Due(ctx, h.clock.Now(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.NoError(t, h.svc.ExpireTimer(ctx, due[0].Key))

	sess, err := h.sessions.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, phase.C, sess.Phase)
	assert.Equal(t, 1, sess.Unit)
	assert.Equal(t, "D", *h.ledgerOf(t, "ABC1234").TypeB[9])
}

func TestCompleteTestIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.codes.CreateBatch(ctx, []string{"ABC1234"}))
	require.NoError(t, h.parts.Upsert(ctx, &model.Participant{SurveyType: "v1", UserCode: "ABC1234", UserName: "Budi"}))
	h.start(t, "ABC1234")

	_, err := h.svc.SubmitAnswer(ctx, v1, "ABC1234", "A", model.SingleAnswer{QuestionNumber: 1, Value: "5"})
	require.NoError(t, err)

	first, err := h.svc.CompleteTest(ctx, v1, "ABC1234")
	require.NoError(t, err)
	assert.Equal(t, 1, first.TotalAnswered)
	require.NotNil(t, first.CompletedAt)
	require.NotNil(t, first.Session)
	assert.Equal(t, phase.Complete, first.Session.Phase)

	h.clock.Advance(time.Minute)
	second, err := h.svc.CompleteTest(ctx, v1, "ABC1234")
	require.NoError(t, err)
	assert.Equal(t, first.TotalAnswered, second.TotalAnswered)
	assert.True(t, first.CompletedAt.Equal(*second.CompletedAt))

	code, err := h.codes.GetByValue(ctx, "ABC1234")
	require.NoError(t, err)
	assert.True(t, code.IsUsed)

	p, err := h.parts.GetByCode(ctx, v1, "ABC1234")
	require.NoError(t, err)
	assert.Equal(t, 1, p.AnsweredCount)
}

func TestCompleteTestCommitsPendingBlock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t, "ABC1234")
	h.position(t, "ABC1234", phase.C, 8)

	_, err := h.svc.SubmitAnswer(ctx, v1, "ABC1234", "C", model.BlockAnswer{Values: map[int]string{8: "A", 10: "C"}})
	require.NoError(t, err)

	res, err := h.svc.CompleteTest(ctx, v1, "ABC1234")
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalAnswered)
}

func TestCompleteTestWithoutSessionOrLedger(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.CompleteTest(context.Background(), v1, "NOBODY")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAdminJumpToC(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t, "ABC1234")

	resp, err := h.svc.AdminJump(ctx, v1, "ABC1234", "C")
	require.NoError(t, err)
	assert.Equal(t, 250, resp.TotalAnswered)
	assert.Equal(t, phase.C, resp.Session.Phase)
	assert.Equal(t, 1, resp.Session.Unit)

	l := h.ledgerOf(t, "ABC1234")
	assert.Equal(t, 240, l.AnsweredIn(phase.A))
	assert.Equal(t, 10, l.AnsweredIn(phase.B))
	assert.Equal(t, 0, l.AnsweredIn(phase.C))
	assert.Nil(t, l.CompletedAt)
	assert.Equal(t, "5", *l.TypeA[0])
	assert.Equal(t, "D", *l.TypeB[0])

	// A second jump to the same or an earlier phase changes nothing.
	again, err := h.svc.AdminJump(ctx, v1, "ABC1234", "B")
	require.NoError(t, err)
	assert.Equal(t, phase.C, again.Session.Phase)
	assert.Equal(t, 250, again.TotalAnswered)
}

func TestAdminJumpToComplete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.codes.CreateBatch(ctx, []string{"ABC1234"}))

	resp, err := h.svc.AdminJump(ctx, v1, "ABC1234", "COMPLETE")
	require.NoError(t, err)
	assert.Equal(t, 260, resp.TotalAnswered)
	assert.Equal(t, phase.Complete, resp.Session.Phase)

	l := h.ledgerOf(t, "ABC1234")
	assert.NotNil(t, l.CompletedAt)

	code, err := h.codes.GetByValue(ctx, "ABC1234")
	require.NoError(t, err)
	assert.True(t, code.IsUsed)

	_, ok := h.deadlines.Pending(model.NewSessionKey(v1, "ABC1234"))
	assert.False(t, ok)
}

func TestAdminJumpRefillsPhasesAlreadyPassed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t, "ABC1234")
	_, err := h.svc.SubmitAnswer(ctx, v1, "ABC1234", "A", model.SingleAnswer{QuestionNumber: 1, Value: "1"})
	require.NoError(t, err)
	// The rest of A ran out on the timer.
	h.position(t, "ABC1234", phase.B, 1)

	resp, err := h.svc.AdminJump(ctx, v1, "ABC1234", "C")
	require.NoError(t, err)
	assert.Equal(t, 250, resp.TotalAnswered)

	l := h.ledgerOf(t, "ABC1234")
	assert.Equal(t, 240, l.AnsweredIn(phase.A))
	assert.Equal(t, 10, l.AnsweredIn(phase.B))
	assert.Equal(t, "5", *l.TypeA[0])
}

func TestAdminJumpToCompleteFromPhaseC(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.codes.CreateBatch(ctx, []string{"ABC1234"}))
	h.start(t, "ABC1234")
	h.position(t, "ABC1234", phase.C, 1)

	resp, err := h.svc.AdminJump(ctx, v1, "ABC1234", "COMPLETE")
	require.NoError(t, err)
	assert.Equal(t, 260, resp.TotalAnswered)
	assert.Equal(t, phase.Complete, resp.Session.Phase)

	l := h.ledgerOf(t, "ABC1234")
	assert.Equal(t, 240, l.AnsweredIn(phase.A))
	assert.Equal(t, 10, l.AnsweredIn(phase.B))
	assert.Equal(t, 10, l.AnsweredIn(phase.C))
	assert.NotNil(t, l.CompletedAt)

	// Already complete: nothing is rewritten.
	again, err := h.svc.AdminJump(ctx, v1, "ABC1234", "COMPLETE")
	require.NoError(t, err)
	assert.Equal(t, 260, again.TotalAnswered)
}

func TestAdminJumpRejectsUnknownTarget(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.AdminJump(context.Background(), v1, "ABC1234", "A")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestEventsArePublished(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t, "ABC1234")

	sub, err := h.broker.Subscribe(ctx, model.NewSessionKey(v1, "ABC1234"))
	require.NoError(t, err)
	defer sub.Close()

	_, err = h.svc.SubmitAnswer(ctx, v1, "ABC1234", "A", model.SingleAnswer{QuestionNumber: 1, Value: "1"})
	require.NoError(t, err)

	select {
	case ev := <-sub.Events():
		assert.Equal(t, model.EventUnitAdvanced, ev.Type)
		assert.Equal(t, 2, ev.Session.Unit)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestTotalMatchesSlotsThroughFullRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t, "ABC1234")
	key := model.NewSessionKey(v1, "ABC1234")

	for i := 0; ; i++ {
		sess, err := h.sessions.Get(ctx, key)
		require.NoError(t, err)
		if sess.Completed() {
			break
		}
		u, err := phase.MustShape(sess.Phase).UnitAt(sess.Unit)
		require.NoError(t, err)

		// Answer every third unit, let the rest expire.
		if i%3 == 0 {
			values := make(map[int]string, len(u.Members))
			for _, n := range u.Members {
				values[n] = phase.MustShape(sess.Phase).Values[0]
			}
			var ans model.Answer = model.BlockAnswer{Values: values}
			if !u.IsBlock() {
				ans = model.SingleAnswer{QuestionNumber: u.Index, Value: values[u.Index]}
			}
			_, err = h.svc.SubmitAnswer(ctx, v1, "ABC1234", string(sess.Phase), ans)
			require.NoError(t, err)
		} else {
			h.clock.Advance(u.TimeLimit + 2*time.Second)
			require.NoError(t, h.svc.ExpireTimer(ctx, key))
		}

		l := h.ledgerOf(t, "ABC1234")
		assert.Equal(t, l.AnsweredIn(phase.A)+l.AnsweredIn(phase.B)+l.AnsweredIn(phase.C), l.TotalAnswered)
	}

	l := h.ledgerOf(t, "ABC1234")
	assert.NotNil(t, l.CompletedAt)
	assert.Positive(t, l.TotalAnswered)
}

func strPtr(v string) *string { return &v }

func TestConcurrentSubmitAndExpireCommitOnce(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		answer  *string
	}{
		{name: "within grace", elapsed: 11 * time.Second, answer: strPtr("4")},
		{name: "overdue", elapsed: 12 * time.Second, answer: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			h.start(t, "ABC1234")
			key := model.NewSessionKey(v1, "ABC1234")
			h.clock.Advance(tt.elapsed)

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(2)
				go func() {
					defer wg.Done()
					_, _ = h.svc.SubmitAnswer(ctx, v1, "ABC1234", "A", model.SingleAnswer{QuestionNumber: 1, Value: "4"})
				}()
				go func() {
					defer wg.Done()
					_ = h.svc.ExpireTimer(ctx, key)
				}()
			}
			wg.Wait()

			sess, err := h.sessions.Get(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, 1, sess.Commits)
			assert.Equal(t, phase.A, sess.Phase)
			assert.Equal(t, 2, sess.Unit)

			l := h.ledgerOf(t, "ABC1234")
			assert.Equal(t, tt.answer, l.TypeA[0])
		})
	}
}

func TestCheckQuestionAccess(t *testing.T) {
	h := newHarness(t)
	h.start(t, "ABC1234")
	h.position(t, "ABC1234", phase.B, 3)
	ctx := context.Background()

	assert.NoError(t, h.svc.CheckQuestionAccess(ctx, v1, "ABC1234", "b", 3))
	assert.NoError(t, h.svc.CheckQuestionAccess(ctx, v1, "ABC1234", "B", 1))
	assert.NoError(t, h.svc.CheckQuestionAccess(ctx, v1, "ABC1234", "A", 240))

	assert.ErrorIs(t, h.svc.CheckQuestionAccess(ctx, v1, "ABC1234", "B", 4), model.ErrInvalidAccess)
	assert.ErrorIs(t, h.svc.CheckQuestionAccess(ctx, v1, "ABC1234", "C", 1), model.ErrInvalidAccess)
	assert.ErrorIs(t, h.svc.CheckQuestionAccess(ctx, v1, "ABC1234", "D", 1), model.ErrValidation)
	assert.ErrorIs(t, h.svc.CheckQuestionAccess(ctx, v1, "NOPE000", "A", 1), model.ErrNotFound)
}

func TestCheckQuestionAccessReportsBlockMembers(t *testing.T) {
	h := newHarness(t)
	h.start(t, "ABC1234")
	h.position(t, "ABC1234", phase.B, 8)
	ctx := context.Background()

	assert.NoError(t, h.svc.CheckQuestionAccess(ctx, v1, "ABC1234", "B", 8))

	err := h.svc.CheckQuestionAccess(ctx, v1, "ABC1234", "B", 9)
	require.ErrorIs(t, err, model.ErrInvalidAccess)
	assert.Contains(t, err.Error(), "accessed via question 8 as a block")

	assert.ErrorIs(t, h.svc.CheckQuestionAccess(ctx, v1, "ABC1234", "B", 11), model.ErrValidation)
}
