package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/aptitest-backend/internal/model"
	"github.com/stemsi/aptitest-backend/internal/phase"
	"github.com/stemsi/aptitest-backend/internal/progression"
	"github.com/stemsi/aptitest-backend/internal/session"
	"github.com/stemsi/aptitest-backend/internal/timer"
)

// lockWait bounds how long one event waits for the session lock.
const lockWait = 5 * time.Second

// SubmitResult values reported to the client.
const (
	SubmitResultCommitted = "COMMITTED"
	SubmitResultPending   = "PENDING"
	SubmitResultDuplicate = "DUPLICATE"
)

// TestSessionOptions tunes the timer behavior of TestSessionService.
type TestSessionOptions struct {
	// Grace is how long after a unit's deadline a submission is still
	// accepted. Expiry fires at deadline + Grace.
	Grace time.Duration
	// RetryDelay is how long to wait before retrying a failed commit.
	RetryDelay time.Duration
}

// TestSessionService drives test sessions through the progression state
// machine. Every operation runs under the session's lock.
type TestSessionService struct {
	sessions  SessionStore
	locker    Locker
	deadlines timer.Scheduler
	ledger    *LedgerService
	events    EventPublisher
	opts      TestSessionOptions
	log       zerolog.Logger
	now       func() time.Time
	randIntN  func(n int) int
}

// NewTestSessionService creates a new TestSessionService.
func NewTestSessionService(
	sessions SessionStore,
	locker Locker,
	deadlines timer.Scheduler,
	ledger *LedgerService,
	events EventPublisher,
	opts TestSessionOptions,
	log zerolog.Logger,
) *TestSessionService {
	return &TestSessionService{
		sessions:  sessions,
		locker:    locker,
		deadlines: deadlines,
		ledger:    ledger,
		events:    events,
		opts:      opts,
		log:       log.With().Str("component", "test_session_service").Logger(),
		now:       time.Now,
		randIntN:  rand.IntN,
	}
}

// CompletionResult is returned by CompleteTest.
type CompletionResult struct {
	TotalAnswered int                `json:"total_answered"`
	CompletedAt   *time.Time         `json:"completed_at"`
	Session       *model.SessionView `json:"session,omitempty"`
}

// StartSession returns the live session of a test-taker, creating it at
// phase A unit 1 on first login.
func (s *TestSessionService) StartSession(ctx context.Context, sc model.SurveyContext, userCode string) (*model.SessionView, error) {
	key := model.NewSessionKey(sc, userCode)
	var view *model.SessionView
	err := s.withLock(ctx, key, func() error {
		sess, err := s.sessions.Get(ctx, key)
		if errors.Is(err, session.ErrNotFound) {
			sess = progression.Start(sc, userCode, s.now())
			if err := s.persist(ctx, sess); err != nil {
				return err
			}
			s.log.Info().Str("session", key.String()).Msg("Session started")
		} else if err != nil {
			return fmt.Errorf("%w: load session: %w", model.ErrPersistence, err)
		} else if err := s.catchUp(ctx, sess); err != nil {
			return err
		}
		view, err = s.view(ctx, sess)
		return err
	})
	return view, err
}

// GetState returns the session snapshot. A commit left over from a failed
// write and an overdue unit are both settled first.
func (s *TestSessionService) GetState(ctx context.Context, sc model.SurveyContext, userCode string) (*model.SessionView, error) {
	key := model.NewSessionKey(sc, userCode)
	var view *model.SessionView
	err := s.withLock(ctx, key, func() error {
		sess, err := s.load(ctx, key)
		if err != nil {
			return err
		}
		if err := s.catchUp(ctx, sess); err != nil {
			return err
		}
		view, err = s.view(ctx, sess)
		return err
	})
	return view, err
}

// SubmitAnswer applies one answer event. Answers arriving later than the
// unit's deadline plus grace close the unit with what was pending and fail
// with model.ErrDeadlinePassed.
func (s *TestSessionService) SubmitAnswer(ctx context.Context, sc model.SurveyContext, userCode, phaseName string, ans model.Answer) (*model.SubmitAnswerResponse, error) {
	p, err := phase.Parse(phaseName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrValidation, err)
	}

	key := model.NewSessionKey(sc, userCode)
	var resp *model.SubmitAnswerResponse
	err = s.withLock(ctx, key, func() error {
		sess, err := s.load(ctx, key)
		if err != nil {
			return err
		}
		if err := s.resumeCommit(ctx, sess); err != nil {
			return err
		}

		if s.overdue(sess) {
			closedPhase, closed, deadline := sess.Phase, sess.Unit, *sess.Deadline
			if err := s.expire(ctx, sess, false); err != nil {
				return err
			}
			return fmt.Errorf("%w: type %s question %d closed at %s", model.ErrDeadlinePassed, closedPhase, closed, deadline.Format(time.RFC3339))
		}

		out, err := progression.Submit(sess, p, ans)
		if err != nil {
			return err
		}

		result := SubmitResultDuplicate
		switch out.Kind {
		case progression.OutcomeWaiting:
			result = SubmitResultPending
			if err := s.saveSession(ctx, sess); err != nil {
				return err
			}
			s.publish(ctx, sess, model.EventAnswerPending)
		case progression.OutcomeCommit:
			result = SubmitResultCommitted
			if err := s.commit(ctx, sess, out.Commit); err != nil {
				return err
			}
		}

		view, err := s.view(ctx, sess)
		if err != nil {
			return err
		}
		resp = &model.SubmitAnswerResponse{Result: result, Session: *view}
		return nil
	})
	return resp, err
}

// ExpireTimer handles one fired deadline. A deadline that moved is
// rescheduled; sessions that are gone or complete are dropped.
func (s *TestSessionService) ExpireTimer(ctx context.Context, key model.SessionKey) error {
	return s.withLock(ctx, key, func() error {
		sess, err := s.sessions.Get(ctx, key)
		if errors.Is(err, session.ErrNotFound) {
			return nil
		}
		if err != nil {
			s.scheduleRetry(ctx, key)
			return fmt.Errorf("%w: load session: %w", model.ErrPersistence, err)
		}
		if sess.Completed() {
			return nil
		}
		if sess.State == model.SessionStateCommitting {
			return s.resumeCommit(ctx, sess)
		}
		if !s.overdue(sess) {
			return s.schedule(ctx, sess)
		}
		return s.expire(ctx, sess, false)
	})
}

// RetryCommit resumes a commit left pending by a failed ledger write.
func (s *TestSessionService) RetryCommit(ctx context.Context, sc model.SurveyContext, userCode string) (*model.SessionView, error) {
	key := model.NewSessionKey(sc, userCode)
	var view *model.SessionView
	err := s.withLock(ctx, key, func() error {
		sess, err := s.load(ctx, key)
		if err != nil {
			return err
		}
		if err := s.resumeCommit(ctx, sess); err != nil {
			return err
		}
		view, err = s.view(ctx, sess)
		return err
	})
	return view, err
}

// CompleteTest finishes the test. Pending answers of the current unit are
// committed first. Calling it again returns the same result without side
// effects. It fails with model.ErrNotFound only when the test-taker has
// neither a session nor a ledger.
func (s *TestSessionService) CompleteTest(ctx context.Context, sc model.SurveyContext, userCode string) (*CompletionResult, error) {
	key := model.NewSessionKey(sc, userCode)
	var result *CompletionResult
	err := s.withLock(ctx, key, func() error {
		sess, err := s.sessions.Get(ctx, key)
		if err != nil && !errors.Is(err, session.ErrNotFound) {
			return fmt.Errorf("%w: load session: %w", model.ErrPersistence, err)
		}
		if sess == nil {
			if _, err := s.ledger.Get(ctx, sc, userCode); err != nil {
				return err
			}
		}

		if sess != nil && !sess.Completed() {
			if err := s.resumeCommit(ctx, sess); err != nil {
				return err
			}
		}
		if sess != nil && !sess.Completed() {
			out, err := progression.Expire(sess, s.now(), true)
			if err != nil {
				return err
			}
			if out.Kind == progression.OutcomeCommit {
				if _, err := s.ledger.UpsertAnswers(ctx, sc, userCode, out.Commit.Phase, out.Commit.Values); err != nil {
					// Keep the stored session as it was; the next event resumes.
					return err
				}
			}
			progression.Finish(sess, s.now())
		}

		l, err := s.ledger.MarkCompleted(ctx, sc, userCode)
		if err != nil {
			return err
		}

		result = &CompletionResult{TotalAnswered: l.TotalAnswered, CompletedAt: l.CompletedAt}
		if sess == nil {
			return nil
		}
		if err := s.persist(ctx, sess); err != nil {
			return err
		}
		s.publish(ctx, sess, model.EventCompleted)
		view := s.viewWith(sess, l)
		result.Session = &view
		return nil
	})
	return result, err
}

// AdminJump fast-forwards a session to unit 1 of target, or to completion.
// Every phase before target is rewritten in full with random valid answers,
// including phases the test-taker already went through, so a jump to C always
// leaves 250 answers and a jump to COMPLETE 260. It never moves a session
// backwards: at or past target it returns the current state as is.
func (s *TestSessionService) AdminJump(ctx context.Context, sc model.SurveyContext, userCode, targetName string) (*model.AdminJumpResponse, error) {
	target, err := phase.ParseTarget(targetName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrValidation, err)
	}

	key := model.NewSessionKey(sc, userCode)
	var resp *model.AdminJumpResponse
	err = s.withLock(ctx, key, func() error {
		sess, err := s.sessions.Get(ctx, key)
		if errors.Is(err, session.ErrNotFound) {
			sess = progression.Start(sc, userCode, s.now())
		} else if err != nil {
			return fmt.Errorf("%w: load session: %w", model.ErrPersistence, err)
		} else if err := s.resumeCommit(ctx, sess); err != nil {
			return err
		}

		if target.Rank() > sess.Phase.Rank() {
			for _, p := range target.Before() {
				if _, err := s.ledger.UpsertAnswers(ctx, sc, userCode, p, s.randomAnswers(p)); err != nil {
					return err
				}
			}
			if target == phase.Complete {
				if _, err := s.ledger.MarkCompleted(ctx, sc, userCode); err != nil {
					return err
				}
			}
			progression.JumpTo(sess, target, s.now())
			if err := s.persist(ctx, sess); err != nil {
				return err
			}
			s.publish(ctx, sess, model.EventAdminJump)
			s.log.Info().
				Str("session", key.String()).
				Str("target_phase", string(target)).
				Msg("Admin jump applied")
		}

		view, err := s.view(ctx, sess)
		if err != nil {
			return err
		}
		resp = &model.AdminJumpResponse{
			TargetPhase:   string(target),
			TotalAnswered: view.Progress.TotalAnswered,
			Session:       *view,
		}
		return nil
	})
	return resp, err
}

// CheckQuestionAccess rejects looking ahead: a test-taker may load the
// current unit and anything already behind it, never a later one. Indices
// that are not units of their own fail the same way Fetch does.
func (s *TestSessionService) CheckQuestionAccess(ctx context.Context, sc model.SurveyContext, userCode, phaseName string, unit int) error {
	p, err := phase.Parse(phaseName)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrValidation, err)
	}
	if _, err := resolveUnit(p, unit); err != nil {
		return err
	}
	sess, err := s.load(ctx, model.NewSessionKey(sc, userCode))
	if err != nil {
		return err
	}
	if p.Rank() > sess.Phase.Rank() || (p == sess.Phase && unit > sess.Unit) {
		return fmt.Errorf("%w: type %s question %d is not open yet", model.ErrInvalidAccess, p, unit)
	}
	return nil
}

// ─── Internals ──────────────────────────────────────────────────────

func (s *TestSessionService) withLock(ctx context.Context, key model.SessionKey, fn func() error) error {
	lockCtx, cancel := context.WithTimeout(ctx, lockWait)
	defer cancel()
	unlock, err := s.locker.Lock(lockCtx, key)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}
	defer unlock()
	return fn()
}

func (s *TestSessionService) load(ctx context.Context, key model.SessionKey) (*model.TestSession, error) {
	sess, err := s.sessions.Get(ctx, key)
	if errors.Is(err, session.ErrNotFound) {
		return nil, fmt.Errorf("%w: no session for %s, log in first", model.ErrNotFound, key.UserCode)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load session: %w", model.ErrPersistence, err)
	}
	return sess, nil
}

// overdue reports whether the active unit is past its deadline plus grace.
func (s *TestSessionService) overdue(sess *model.TestSession) bool {
	return sess.State == model.SessionStateAwaitingAnswer &&
		sess.Deadline != nil &&
		!s.now().Before(sess.Deadline.Add(s.opts.Grace))
}

// catchUp settles what a missed timer or failed write left behind.
func (s *TestSessionService) catchUp(ctx context.Context, sess *model.TestSession) error {
	if err := s.resumeCommit(ctx, sess); err != nil {
		return err
	}
	if s.overdue(sess) {
		return s.expire(ctx, sess, false)
	}
	return nil
}

// resumeCommit replays the commit of a session stuck in COMMITTING.
func (s *TestSessionService) resumeCommit(ctx context.Context, sess *model.TestSession) error {
	if sess.State != model.SessionStateCommitting {
		return nil
	}
	c, err := progression.PendingCommit(sess)
	if err != nil {
		return err
	}
	s.log.Info().Str("session", sess.Key().String()).Int("unit", c.Unit).Msg("Resuming pending commit")
	return s.commit(ctx, sess, c)
}

func (s *TestSessionService) expire(ctx context.Context, sess *model.TestSession, force bool) error {
	out, err := progression.Expire(sess, s.now(), force)
	if err != nil {
		return err
	}
	if out.Kind != progression.OutcomeCommit {
		return nil
	}
	s.log.Debug().
		Str("session", sess.Key().String()).
		Str("phase", string(out.Commit.Phase)).
		Int("unit", out.Commit.Unit).
		Int("answered", out.Commit.Answered()).
		Msg("Unit expired")
	s.publish(ctx, sess, model.EventUnitExpired)
	return s.commit(ctx, sess, out.Commit)
}

// commit writes c to the ledger and advances the session. When the ledger
// write fails the session is saved as COMMITTING and a retry is scheduled.
func (s *TestSessionService) commit(ctx context.Context, sess *model.TestSession, c *progression.Commit) error {
	sc := sess.Key().Survey()
	if _, err := s.ledger.UpsertAnswers(ctx, sc, sess.UserCode, c.Phase, c.Values); err != nil {
		s.log.Error().Err(err).
			Str("session", sess.Key().String()).
			Str("phase", string(c.Phase)).
			Int("unit", c.Unit).
			Msg("Commit failed, session left committing")
		if serr := s.sessions.Save(ctx, sess); serr != nil {
			s.log.Error().Err(serr).Str("session", sess.Key().String()).Msg("Failed to save committing session")
		}
		s.scheduleRetry(ctx, sess.Key())
		return err
	}

	tr, err := progression.Advance(sess, s.now())
	if err != nil {
		return err
	}
	if tr.Kind == progression.TransitionCompleted {
		if _, err := s.ledger.MarkCompleted(ctx, sc, sess.UserCode); err != nil {
			// The stored session is still COMMITTING; the retry replays the
			// same commit and completes again.
			s.scheduleRetry(ctx, sess.Key())
			return err
		}
	}
	if err := s.persist(ctx, sess); err != nil {
		s.scheduleRetry(ctx, sess.Key())
		return err
	}

	switch tr.Kind {
	case progression.TransitionUnit:
		s.publish(ctx, sess, model.EventUnitAdvanced)
	case progression.TransitionPhase:
		s.publish(ctx, sess, model.EventPhaseAdvanced)
	case progression.TransitionCompleted:
		s.publish(ctx, sess, model.EventCompleted)
	}
	return nil
}

// persist saves the session and brings its deadline entry in line with it.
func (s *TestSessionService) persist(ctx context.Context, sess *model.TestSession) error {
	if err := s.saveSession(ctx, sess); err != nil {
		return err
	}
	if sess.Completed() {
		if err := s.deadlines.Cancel(ctx, sess.Key()); err != nil {
			s.log.Warn().Err(err).Str("session", sess.Key().String()).Msg("Failed to cancel deadline")
		}
		return nil
	}
	return s.schedule(ctx, sess)
}

func (s *TestSessionService) saveSession(ctx context.Context, sess *model.TestSession) error {
	sess.UpdatedAt = s.now()
	if err := s.sessions.Save(ctx, sess); err != nil {
		return fmt.Errorf("%w: save session: %w", model.ErrPersistence, err)
	}
	return nil
}

func (s *TestSessionService) schedule(ctx context.Context, sess *model.TestSession) error {
	if sess.Deadline == nil {
		return nil
	}
	if err := s.deadlines.Schedule(ctx, sess.Key(), sess.Deadline.Add(s.opts.Grace)); err != nil {
		// Not fatal: the next request for this session catches up.
		s.log.Warn().Err(err).Str("session", sess.Key().String()).Msg("Failed to schedule deadline")
	}
	return nil
}

func (s *TestSessionService) scheduleRetry(ctx context.Context, key model.SessionKey) {
	if err := s.deadlines.Schedule(ctx, key, s.now().Add(s.opts.RetryDelay)); err != nil {
		s.log.Warn().Err(err).Str("session", key.String()).Msg("Failed to schedule commit retry")
	}
}

func (s *TestSessionService) publish(ctx context.Context, sess *model.TestSession, typ model.SessionEventType) {
	if s.events == nil {
		return
	}
	ev := model.SessionEvent{Type: typ, Session: s.viewWith(sess, nil), At: s.now()}
	if err := s.events.Publish(ctx, sess.Key(), ev); err != nil {
		s.log.Warn().Err(err).Str("session", sess.Key().String()).Str("event", string(typ)).Msg("Failed to publish session event")
	}
}

func (s *TestSessionService) view(ctx context.Context, sess *model.TestSession) (*model.SessionView, error) {
	l, err := s.ledger.Get(ctx, sess.Key().Survey(), sess.UserCode)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}
	v := s.viewWith(sess, l)
	return &v, nil
}

func (s *TestSessionService) viewWith(sess *model.TestSession, l *model.AnswerLedger) model.SessionView {
	v := model.SessionView{
		Phase:            sess.Phase,
		Unit:             sess.Unit,
		State:            sess.State,
		RemainingSeconds: sess.RemainingSeconds(s.now()),
		Progress:         l.Progress(),
	}
	if u, err := progression.CurrentUnit(sess); err == nil {
		v.IsBlock = u.IsBlock()
	}
	if len(sess.PendingAnswers) > 0 {
		v.PendingAnswers = make(map[int]string, len(sess.PendingAnswers))
		for n, a := range sess.PendingAnswers {
			v.PendingAnswers[n] = a
		}
	}
	return v
}

// randomAnswers fills every slot of p with a random valid value.
func (s *TestSessionService) randomAnswers(p phase.Phase) map[int]*string {
	shape := phase.MustShape(p)
	values := make(map[int]*string, shape.QuestionCount)
	for n := 1; n <= shape.QuestionCount; n++ {
		v := shape.Values[s.randIntN(len(shape.Values))]
		values[n] = &v
	}
	return values
}
