package model

import (
	"fmt"
	"time"

	"github.com/stemsi/aptitest-backend/internal/phase"
)

// AnswerLedger is the durable per-test-taker record of submitted answers.
// Each phase has a fixed number of slots; unanswered slots are nil.
type AnswerLedger struct {
	SurveyType    string     `json:"survey_type"`
	UserCode      string     `json:"user_code"`
	TypeA         []*string  `json:"type_a_answers"`
	TypeB         []*string  `json:"type_b_answers"`
	TypeC         []*string  `json:"type_c_answers"`
	TotalAnswered int        `json:"total_answered"`
	StartedAt     time.Time  `json:"test_started_at"`
	CompletedAt   *time.Time `json:"test_completed_at,omitempty"`
	LastUpdated   time.Time  `json:"last_updated"`
}

// NewAnswerLedger returns an empty ledger with every slot nil.
func NewAnswerLedger(sc SurveyContext, userCode string, now time.Time) *AnswerLedger {
	l := &AnswerLedger{
		SurveyType:  sc.SurveyType,
		UserCode:    userCode,
		StartedAt:   now,
		LastUpdated: now,
	}
	l.Normalize()
	return l
}

// Normalize pads or truncates each sequence to its phase's slot count and
// recomputes the total. Rows written by older clients may hold short arrays.
func (l *AnswerLedger) Normalize() {
	l.TypeA = fit(l.TypeA, phase.MustShape(phase.A).QuestionCount)
	l.TypeB = fit(l.TypeB, phase.MustShape(phase.B).QuestionCount)
	l.TypeC = fit(l.TypeC, phase.MustShape(phase.C).QuestionCount)
	l.Recount()
}

func fit(slots []*string, n int) []*string {
	if len(slots) > n {
		return slots[:n]
	}
	for len(slots) < n {
		slots = append(slots, nil)
	}
	return slots
}

// Slots returns the sequence for p, or nil for a phase without answers.
func (l *AnswerLedger) Slots(p phase.Phase) []*string {
	switch p {
	case phase.A:
		return l.TypeA
	case phase.B:
		return l.TypeB
	case phase.C:
		return l.TypeC
	}
	return nil
}

// Apply overwrites exactly the given question slots of phase p (nil clears a
// slot) and recomputes the total. Nothing is written if any entry is invalid.
func (l *AnswerLedger) Apply(p phase.Phase, values map[int]*string, now time.Time) error {
	shape, err := phase.ShapeOf(p)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	for n, v := range values {
		if n < 1 || n > shape.QuestionCount {
			return fmt.Errorf("%w: type %s has questions 1-%d, got %d", ErrValidation, p, shape.QuestionCount, n)
		}
		if v != nil && !shape.ValidValue(*v) {
			return fmt.Errorf("%w: %q is not a valid answer for type %s question %d", ErrValidation, *v, p, n)
		}
	}

	l.Normalize()
	slots := l.Slots(p)
	for n, v := range values {
		if v == nil {
			slots[n-1] = nil
			continue
		}
		val := *v
		slots[n-1] = &val
	}
	l.Recount()
	l.LastUpdated = now
	return nil
}

// Recount sets TotalAnswered from the non-nil slots of all three sequences.
func (l *AnswerLedger) Recount() int {
	l.TotalAnswered = countAnswered(l.TypeA) + countAnswered(l.TypeB) + countAnswered(l.TypeC)
	return l.TotalAnswered
}

// AnsweredIn counts the non-nil slots of phase p.
func (l *AnswerLedger) AnsweredIn(p phase.Phase) int {
	return countAnswered(l.Slots(p))
}

// Completed reports whether the completion marker is set.
func (l *AnswerLedger) Completed() bool {
	return l.CompletedAt != nil
}

// MarkCompleted sets the completion marker once. It reports whether this call
// set it.
func (l *AnswerLedger) MarkCompleted(now time.Time) bool {
	if l.CompletedAt != nil {
		return false
	}
	t := now
	l.CompletedAt = &t
	l.LastUpdated = now
	return true
}

func countAnswered(slots []*string) int {
	n := 0
	for _, s := range slots {
		if s != nil {
			n++
		}
	}
	return n
}

// LedgerProgress is the public summary of a ledger.
type LedgerProgress struct {
	TotalAnswered  int        `json:"total_answered"`
	TotalQuestions int        `json:"total_questions"`
	AnsweredA      int        `json:"answered_a"`
	AnsweredB      int        `json:"answered_b"`
	AnsweredC      int        `json:"answered_c"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Progress summarizes the ledger. A nil ledger reports zero progress.
func (l *AnswerLedger) Progress() LedgerProgress {
	p := LedgerProgress{TotalQuestions: phase.TotalQuestions()}
	if l == nil {
		return p
	}
	p.TotalAnswered = l.TotalAnswered
	p.AnsweredA = l.AnsweredIn(phase.A)
	p.AnsweredB = l.AnsweredIn(phase.B)
	p.AnsweredC = l.AnsweredIn(phase.C)
	p.CompletedAt = l.CompletedAt
	return p
}
