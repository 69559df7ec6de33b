package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/aptitest-backend/internal/model"
)

// LedgerRepository handles answer ledger data access.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// Get retrieves the ledger of one test-taker. Short answer arrays are padded.
func (r *LedgerRepository) Get(ctx context.Context, sc model.SurveyContext, userCode string) (*model.AnswerLedger, error) {
	l := &model.AnswerLedger{SurveyType: sc.SurveyType, UserCode: userCode}
	var a, b, c []byte
	err := r.pool.QueryRow(ctx,
		`SELECT type_a_answers, type_b_answers, type_c_answers, total_questions_answered,
		        test_started_at, test_completed_at, last_updated
		 FROM user_answers WHERE survey_type = $1 AND user_code = $2`,
		sc.SurveyType, userCode,
	).Scan(&a, &b, &c, &l.TotalAnswered, &l.StartedAt, &l.CompletedAt, &l.LastUpdated)
	if err != nil {
		return nil, mapNoRows(err)
	}
	if err := decodeSlots(l, a, b, c); err != nil {
		return nil, err
	}
	l.Normalize()
	return l, nil
}

// Save upserts the whole ledger row. test_completed_at is never cleared once
// set.
func (r *LedgerRepository) Save(ctx context.Context, l *model.AnswerLedger) error {
	a, b, c, err := encodeSlots(l)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO user_answers (survey_type, user_code, type_a_answers, type_b_answers, type_c_answers,
		                           total_questions_answered, test_started_at, test_completed_at, last_updated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (survey_type, user_code) DO UPDATE
		 SET type_a_answers = EXCLUDED.type_a_answers,
		     type_b_answers = EXCLUDED.type_b_answers,
		     type_c_answers = EXCLUDED.type_c_answers,
		     total_questions_answered = EXCLUDED.total_questions_answered,
		     test_completed_at = COALESCE(user_answers.test_completed_at, EXCLUDED.test_completed_at),
		     last_updated = EXCLUDED.last_updated`,
		l.SurveyType, l.UserCode, a, b, c, l.TotalAnswered, l.StartedAt, l.CompletedAt, l.LastUpdated,
	)
	return err
}

func encodeSlots(l *model.AnswerLedger) (a, b, c []byte, err error) {
	if a, err = json.Marshal(l.TypeA); err != nil {
		return nil, nil, nil, fmt.Errorf("encode type A answers: %w", err)
	}
	if b, err = json.Marshal(l.TypeB); err != nil {
		return nil, nil, nil, fmt.Errorf("encode type B answers: %w", err)
	}
	if c, err = json.Marshal(l.TypeC); err != nil {
		return nil, nil, nil, fmt.Errorf("encode type C answers: %w", err)
	}
	return a, b, c, nil
}

func decodeSlots(l *model.AnswerLedger, a, b, c []byte) error {
	if err := json.Unmarshal(a, &l.TypeA); err != nil {
		return fmt.Errorf("decode type A answers: %w", err)
	}
	if err := json.Unmarshal(b, &l.TypeB); err != nil {
		return fmt.Errorf("decode type B answers: %w", err)
	}
	if err := json.Unmarshal(c, &l.TypeC); err != nil {
		return fmt.Errorf("decode type C answers: %w", err)
	}
	return nil
}
