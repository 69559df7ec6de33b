// Package progression implements the unit-by-unit state machine that moves a
// test-taker through the three phases. It is pure: callers load the session,
// run one event through it, persist the resulting commit, and save the session.
package progression

import (
	"errors"
	"fmt"
	"time"

	"github.com/stemsi/aptitest-backend/internal/model"
	"github.com/stemsi/aptitest-backend/internal/phase"
)

// ErrNotCommitting is returned by Advance when no commit is in progress.
var ErrNotCommitting = errors.New("session is not committing a unit")

// OutcomeKind tells the caller what an event did to the session.
type OutcomeKind string

const (
	// OutcomeWaiting means a block still misses answers; nothing to persist.
	OutcomeWaiting OutcomeKind = "WAITING"
	// OutcomeCommit means the unit is closed and Commit must be written.
	OutcomeCommit OutcomeKind = "COMMIT"
	// OutcomeDuplicate means the event targeted a unit that is already
	// committed or being committed. It is dropped.
	OutcomeDuplicate OutcomeKind = "DUPLICATE"
	// OutcomeNotDue means an expiry fired before the unit's deadline.
	OutcomeNotDue OutcomeKind = "NOT_DUE"
)

// Commit is the atomic ledger write that closes one unit. Values holds every
// member of the unit; unanswered members are nil.
type Commit struct {
	Phase  phase.Phase
	Unit   int
	Values map[int]*string
}

// Answered counts the non-nil values of the commit.
func (c *Commit) Answered() int {
	n := 0
	for _, v := range c.Values {
		if v != nil {
			n++
		}
	}
	return n
}

// Outcome is the result of Submit or Expire.
type Outcome struct {
	Kind   OutcomeKind
	Commit *Commit
}

// TransitionKind describes where Advance moved the session.
type TransitionKind string

const (
	TransitionUnit      TransitionKind = "ADVANCING_UNIT"
	TransitionPhase     TransitionKind = "ADVANCING_PHASE"
	TransitionCompleted TransitionKind = "COMPLETED"
)

// Transition is the result of Advance.
type Transition struct {
	Kind TransitionKind
	From phase.Phase
	To   phase.Phase
	Unit int
}

// Start returns a fresh session positioned at phase A unit 1.
func Start(sc model.SurveyContext, userCode string, now time.Time) *model.TestSession {
	first := phase.MustShape(phase.A).First()
	deadline := now.Add(first.TimeLimit)
	return &model.TestSession{
		SurveyType: sc.SurveyType,
		UserCode:   userCode,
		Phase:      phase.A,
		Unit:       first.Index,
		State:      model.SessionStateAwaitingAnswer,
		Deadline:   &deadline,
		StartedAt:  now,
		UpdatedAt:  now,
	}
}

// CurrentUnit resolves the unit the session is positioned at.
func CurrentUnit(s *model.TestSession) (phase.Unit, error) {
	shape, err := phase.ShapeOf(s.Phase)
	if err != nil {
		return phase.Unit{}, err
	}
	return shape.UnitAt(s.Unit)
}

// Submit records an answer for the current unit. Validation failures leave
// the session untouched.
func Submit(s *model.TestSession, p phase.Phase, ans model.Answer) (Outcome, error) {
	if s.State != model.SessionStateAwaitingAnswer {
		return Outcome{Kind: OutcomeDuplicate}, nil
	}

	shape, err := phase.ShapeOf(p)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", model.ErrValidation, err)
	}
	if p.Rank() < s.Phase.Rank() {
		return Outcome{Kind: OutcomeDuplicate}, nil
	}
	if p.Rank() > s.Phase.Rank() {
		return Outcome{}, fmt.Errorf("%w: type %s is not open yet, the test is in type %s", model.ErrValidation, p, s.Phase)
	}

	unit, err := shape.UnitAt(s.Unit)
	if err != nil {
		return Outcome{}, fmt.Errorf("session position type %s unit %d: %w", s.Phase, s.Unit, err)
	}

	var incoming map[int]string
	switch a := ans.(type) {
	case model.SingleAnswer:
		owner, err := shape.UnitFor(a.QuestionNumber)
		if err != nil {
			return Outcome{}, fmt.Errorf("%w: %w", model.ErrValidation, err)
		}
		if owner.Index < unit.Index {
			return Outcome{Kind: OutcomeDuplicate}, nil
		}
		if owner.Index > unit.Index {
			return Outcome{}, fmt.Errorf("%w: type %s question %d is not open yet, the current question is %d", model.ErrValidation, p, a.QuestionNumber, unit.Index)
		}
		incoming = map[int]string{a.QuestionNumber: a.Value}

	case model.BlockAnswer:
		if !unit.IsBlock() {
			return Outcome{}, fmt.Errorf("%w: type %s question %d is not a block, send a question_number with a single answer", model.ErrValidation, p, unit.Index)
		}
		if len(a.Values) == 0 {
			return Outcome{}, fmt.Errorf("%w: block answer for type %s questions %v is empty", model.ErrValidation, p, unit.Members)
		}
		for n := range a.Values {
			if !unit.Has(n) {
				return Outcome{}, fmt.Errorf("%w: type %s question %d is not part of the block %v", model.ErrValidation, p, n, unit.Members)
			}
		}
		incoming = a.Values

	default:
		return Outcome{}, fmt.Errorf("%w: unsupported answer shape %T", model.ErrValidation, ans)
	}

	for n, v := range incoming {
		if !shape.ValidValue(v) {
			return Outcome{}, fmt.Errorf("%w: %q is not a valid answer for type %s question %d, expected one of %v", model.ErrValidation, v, p, n, shape.Values)
		}
	}

	if s.PendingAnswers == nil {
		s.PendingAnswers = make(map[int]string, len(unit.Members))
	}
	for n, v := range incoming {
		s.PendingAnswers[n] = v
	}

	if unit.IsBlock() && !blockFilled(unit, s.PendingAnswers) {
		return Outcome{Kind: OutcomeWaiting}, nil
	}
	return beginCommit(s, unit), nil
}

// Expire closes the current unit with whatever answers are pending. Unless
// force is set, it does nothing before the unit's deadline. A session that is
// already committing gets the same commit back so the caller can retry it.
func Expire(s *model.TestSession, now time.Time, force bool) (Outcome, error) {
	switch s.State {
	case model.SessionStateCompleted:
		return Outcome{Kind: OutcomeDuplicate}, nil
	case model.SessionStateCommitting:
		c, err := PendingCommit(s)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Kind: OutcomeCommit, Commit: c}, nil
	}

	if !force && s.Deadline != nil && now.Before(*s.Deadline) {
		return Outcome{Kind: OutcomeNotDue}, nil
	}
	unit, err := CurrentUnit(s)
	if err != nil {
		return Outcome{}, err
	}
	return beginCommit(s, unit), nil
}

// PendingCommit rebuilds the commit of a session stuck in COMMITTING.
func PendingCommit(s *model.TestSession) (*Commit, error) {
	if s.State != model.SessionStateCommitting {
		return nil, ErrNotCommitting
	}
	unit, err := CurrentUnit(s)
	if err != nil {
		return nil, err
	}
	return buildCommit(unit, s.PendingAnswers), nil
}

// Advance moves a committing session to its next unit, the next phase, or
// completion. Call it only after the commit was persisted.
func Advance(s *model.TestSession, now time.Time) (Transition, error) {
	if s.State != model.SessionStateCommitting {
		return Transition{}, ErrNotCommitting
	}
	shape, err := phase.ShapeOf(s.Phase)
	if err != nil {
		return Transition{}, err
	}

	from := s.Phase
	s.Commits++
	s.PendingAnswers = nil
	s.UpdatedAt = now

	if next, ok := shape.Next(s.Unit); ok {
		position(s, from, next, now)
		return Transition{Kind: TransitionUnit, From: from, To: from, Unit: next.Index}, nil
	}

	to := from.Next()
	if to == phase.Complete {
		finish(s)
		return Transition{Kind: TransitionCompleted, From: from, To: to}, nil
	}
	first := phase.MustShape(to).First()
	position(s, to, first, now)
	return Transition{Kind: TransitionPhase, From: from, To: to, Unit: first.Index}, nil
}

// JumpTo moves the session forward to unit 1 of target, or to completion.
// It reports false, leaving the session untouched, when the session is
// already at or past target.
func JumpTo(s *model.TestSession, target phase.Phase, now time.Time) bool {
	if target.Rank() <= s.Phase.Rank() || s.Completed() {
		return false
	}
	s.PendingAnswers = nil
	s.UpdatedAt = now
	if target == phase.Complete {
		finish(s)
		return true
	}
	position(s, target, phase.MustShape(target).First(), now)
	return true
}

// Finish marks the session complete without touching the ledger.
func Finish(s *model.TestSession, now time.Time) bool {
	if s.Completed() {
		return false
	}
	s.PendingAnswers = nil
	s.UpdatedAt = now
	finish(s)
	return true
}

func finish(s *model.TestSession) {
	s.Phase = phase.Complete
	s.Unit = 0
	s.State = model.SessionStateCompleted
	s.Deadline = nil
}

func position(s *model.TestSession, p phase.Phase, u phase.Unit, now time.Time) {
	deadline := now.Add(u.TimeLimit)
	s.Phase = p
	s.Unit = u.Index
	s.State = model.SessionStateAwaitingAnswer
	s.Deadline = &deadline
}

func beginCommit(s *model.TestSession, unit phase.Unit) Outcome {
	s.State = model.SessionStateCommitting
	return Outcome{Kind: OutcomeCommit, Commit: buildCommit(unit, s.PendingAnswers)}
}

func buildCommit(unit phase.Unit, pending map[int]string) *Commit {
	values := make(map[int]*string, len(unit.Members))
	for _, n := range unit.Members {
		if v, ok := pending[n]; ok && v != "" {
			val := v
			values[n] = &val
			continue
		}
		values[n] = nil
	}
	return &Commit{Phase: unit.Phase, Unit: unit.Index, Values: values}
}

func blockFilled(unit phase.Unit, pending map[int]string) bool {
	for _, n := range unit.Members {
		if pending[n] == "" {
			return false
		}
	}
	return true
}
