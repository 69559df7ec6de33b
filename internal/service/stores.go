package service

import (
	"context"
	"time"

	"github.com/stemsi/aptitest-backend/internal/model"
	"github.com/stemsi/aptitest-backend/internal/phase"
)

// The interfaces below are satisfied by the Postgres and SQLite repositories
// and by the Redis and in-memory session infrastructure.

// LedgerStore persists answer ledgers.
type LedgerStore interface {
	Get(ctx context.Context, sc model.SurveyContext, userCode string) (*model.AnswerLedger, error)
	Save(ctx context.Context, l *model.AnswerLedger) error
}

// CodeStore reads and consumes one-time codes.
type CodeStore interface {
	GetByValue(ctx context.Context, value string) (*model.Code, error)
	MarkUsed(ctx context.Context, value string, at time.Time) error
}

// ParticipantStore persists demographic intake forms.
type ParticipantStore interface {
	Upsert(ctx context.Context, p *model.Participant) error
	GetByCode(ctx context.Context, sc model.SurveyContext, userCode string) (*model.Participant, error)
	SetAnsweredCount(ctx context.Context, sc model.SurveyContext, userCode string, count int) error
}

// QuestionStore reads question content.
type QuestionStore interface {
	ListByNumbers(ctx context.Context, sc model.SurveyContext, p phase.Phase, numbers []int) ([]model.Question, error)
}

// SessionStore keeps live test sessions.
type SessionStore interface {
	Get(ctx context.Context, key model.SessionKey) (*model.TestSession, error)
	Save(ctx context.Context, s *model.TestSession) error
}

// Locker serializes all events of one session.
type Locker interface {
	Lock(ctx context.Context, key model.SessionKey) (unlock func(), err error)
}

// EventPublisher pushes session events to connected clients.
type EventPublisher interface {
	Publish(ctx context.Context, key model.SessionKey, ev model.SessionEvent) error
}

// CodeUsedQueue defers code-used marks that could not be written inline.
type CodeUsedQueue interface {
	Enqueue(ctx context.Context, code string, at time.Time) error
}
