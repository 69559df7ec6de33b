package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/aptitest-backend/internal/model"
)

// ParticipantRepository handles demographic intake data access.
type ParticipantRepository struct {
	pool *pgxpool.Pool
}

// NewParticipantRepository creates a new ParticipantRepository.
func NewParticipantRepository(pool *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{pool: pool}
}

// Upsert stores the intake form. Submitting again replaces the previous form
// but keeps the answered count.
func (r *ParticipantRepository) Upsert(ctx context.Context, p *model.Participant) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO participants (survey_type, user_code, user_name, school, grade, gender, region,
		                           b_grade_subjects_count, desired_high_school, student_phone, parent_phone)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (survey_type, user_code) DO UPDATE
		 SET user_name = EXCLUDED.user_name,
		     school = EXCLUDED.school,
		     grade = EXCLUDED.grade,
		     gender = EXCLUDED.gender,
		     region = EXCLUDED.region,
		     b_grade_subjects_count = EXCLUDED.b_grade_subjects_count,
		     desired_high_school = EXCLUDED.desired_high_school,
		     student_phone = EXCLUDED.student_phone,
		     parent_phone = EXCLUDED.parent_phone
		 RETURNING id, answered_count, created_at`,
		p.SurveyType, p.UserCode, p.UserName, p.School, p.Grade, p.Gender, p.Region,
		p.BGradeSubjectsCount, p.DesiredHighSchool, p.StudentPhone, p.ParentPhone,
	).Scan(&p.ID, &p.AnsweredCount, &p.CreatedAt)
}

// GetByCode retrieves the intake form of one test-taker.
func (r *ParticipantRepository) GetByCode(ctx context.Context, sc model.SurveyContext, userCode string) (*model.Participant, error) {
	p := &model.Participant{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, survey_type, user_code, user_name, school, grade, COALESCE(gender, ''), COALESCE(region, ''),
		        COALESCE(b_grade_subjects_count, 0), COALESCE(desired_high_school, ''),
		        COALESCE(student_phone, ''), COALESCE(parent_phone, ''), answered_count, created_at
		 FROM participants WHERE survey_type = $1 AND user_code = $2`,
		sc.SurveyType, userCode,
	).Scan(&p.ID, &p.SurveyType, &p.UserCode, &p.UserName, &p.School, &p.Grade, &p.Gender, &p.Region,
		&p.BGradeSubjectsCount, &p.DesiredHighSchool, &p.StudentPhone, &p.ParentPhone, &p.AnsweredCount, &p.CreatedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return p, nil
}

// SetAnsweredCount records the final answered count. A test-taker who
// skipped the intake form has no row and is left alone.
func (r *ParticipantRepository) SetAnsweredCount(ctx context.Context, sc model.SurveyContext, userCode string, count int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE participants SET answered_count = $3 WHERE survey_type = $1 AND user_code = $2`,
		sc.SurveyType, userCode, count,
	)
	return err
}
