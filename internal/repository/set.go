package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/aptitest-backend/internal/model"
	"github.com/stemsi/aptitest-backend/internal/phase"
)

// CodeStore is implemented by CodeRepository and SQLiteCodeRepository.
type CodeStore interface {
	GetByValue(ctx context.Context, value string) (*model.Code, error)
	MarkUsed(ctx context.Context, value string, at time.Time) error
	CreateBatch(ctx context.Context, values []string) error
	List(ctx context.Context, used *bool, limit int) ([]model.Code, error)
}

// LedgerStore is implemented by LedgerRepository and SQLiteLedgerRepository.
type LedgerStore interface {
	Get(ctx context.Context, sc model.SurveyContext, userCode string) (*model.AnswerLedger, error)
	Save(ctx context.Context, l *model.AnswerLedger) error
}

// ParticipantStore is implemented by ParticipantRepository and
// SQLiteParticipantRepository.
type ParticipantStore interface {
	Upsert(ctx context.Context, p *model.Participant) error
	GetByCode(ctx context.Context, sc model.SurveyContext, userCode string) (*model.Participant, error)
	SetAnsweredCount(ctx context.Context, sc model.SurveyContext, userCode string, count int) error
}

// QuestionStore is implemented by QuestionRepository and
// SQLiteQuestionRepository.
type QuestionStore interface {
	ListByNumbers(ctx context.Context, sc model.SurveyContext, p phase.Phase, numbers []int) ([]model.Question, error)
	Upsert(ctx context.Context, q *model.Question) error
}

// Set bundles the repositories of one durable store.
type Set struct {
	Codes        CodeStore
	Ledgers      LedgerStore
	Participants ParticipantStore
	Questions    QuestionStore
}

// NewPostgresSet creates the Postgres-backed repositories.
func NewPostgresSet(pool *pgxpool.Pool) *Set {
	return &Set{
		Codes:        NewCodeRepository(pool),
		Ledgers:      NewLedgerRepository(pool),
		Participants: NewParticipantRepository(pool),
		Questions:    NewQuestionRepository(pool),
	}
}

// NewSQLiteSet creates the SQLite-backed repositories.
func NewSQLiteSet(db *sql.DB) *Set {
	return &Set{
		Codes:        NewSQLiteCodeRepository(db),
		Ledgers:      NewSQLiteLedgerRepository(db),
		Participants: NewSQLiteParticipantRepository(db),
		Questions:    NewSQLiteQuestionRepository(db),
	}
}
