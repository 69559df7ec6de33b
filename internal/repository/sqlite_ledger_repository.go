package repository

import (
	"context"
	"database/sql"

	"github.com/stemsi/aptitest-backend/internal/model"
)

// SQLiteLedgerRepository is the SQLite twin of LedgerRepository.
type SQLiteLedgerRepository struct {
	db *sql.DB
}

// NewSQLiteLedgerRepository creates a new SQLiteLedgerRepository.
func NewSQLiteLedgerRepository(db *sql.DB) *SQLiteLedgerRepository {
	return &SQLiteLedgerRepository{db: db}
}

func (r *SQLiteLedgerRepository) Get(ctx context.Context, sc model.SurveyContext, userCode string) (*model.AnswerLedger, error) {
	l := &model.AnswerLedger{SurveyType: sc.SurveyType, UserCode: userCode}
	var (
		a, b, c          string
		started, updated int64
		completed        sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT type_a_answers, type_b_answers, type_c_answers, total_questions_answered,
		        test_started_at, test_completed_at, last_updated
		 FROM user_answers WHERE survey_type = ? AND user_code = ?`,
		sc.SurveyType, userCode,
	).Scan(&a, &b, &c, &l.TotalAnswered, &started, &completed, &updated)
	if err != nil {
		return nil, mapNoRows(err)
	}
	if err := decodeSlots(l, []byte(a), []byte(b), []byte(c)); err != nil {
		return nil, err
	}
	l.StartedAt = fromMillis(started)
	l.CompletedAt = fromNullMillis(completed)
	l.LastUpdated = fromMillis(updated)
	l.Normalize()
	return l, nil
}

func (r *SQLiteLedgerRepository) Save(ctx context.Context, l *model.AnswerLedger) error {
	a, b, c, err := encodeSlots(l)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO user_answers (survey_type, user_code, type_a_answers, type_b_answers, type_c_answers,
		                           total_questions_answered, test_started_at, test_completed_at, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (survey_type, user_code) DO UPDATE
		 SET type_a_answers = excluded.type_a_answers,
		     type_b_answers = excluded.type_b_answers,
		     type_c_answers = excluded.type_c_answers,
		     total_questions_answered = excluded.total_questions_answered,
		     test_completed_at = COALESCE(user_answers.test_completed_at, excluded.test_completed_at),
		     last_updated = excluded.last_updated`,
		l.SurveyType, l.UserCode, string(a), string(b), string(c), l.TotalAnswered,
		toMillis(l.StartedAt), toNullMillis(l.CompletedAt), toMillis(l.LastUpdated),
	)
	return err
}
