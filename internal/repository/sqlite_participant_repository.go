package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/stemsi/aptitest-backend/internal/model"
)

// SQLiteParticipantRepository is the SQLite twin of ParticipantRepository.
type SQLiteParticipantRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteParticipantRepository creates a new SQLiteParticipantRepository.
func NewSQLiteParticipantRepository(db *sql.DB) *SQLiteParticipantRepository {
	return &SQLiteParticipantRepository{db: db, now: time.Now}
}

func (r *SQLiteParticipantRepository) Upsert(ctx context.Context, p *model.Participant) error {
	var created int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO participants (survey_type, user_code, user_name, school, grade, gender, region,
		                           b_grade_subjects_count, desired_high_school, student_phone, parent_phone, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (survey_type, user_code) DO UPDATE
		 SET user_name = excluded.user_name,
		     school = excluded.school,
		     grade = excluded.grade,
		     gender = excluded.gender,
		     region = excluded.region,
		     b_grade_subjects_count = excluded.b_grade_subjects_count,
		     desired_high_school = excluded.desired_high_school,
		     student_phone = excluded.student_phone,
		     parent_phone = excluded.parent_phone
		 RETURNING id, answered_count, created_at`,
		p.SurveyType, p.UserCode, p.UserName, p.School, p.Grade, p.Gender, p.Region,
		p.BGradeSubjectsCount, p.DesiredHighSchool, p.StudentPhone, p.ParentPhone, toMillis(r.now()),
	).Scan(&p.ID, &p.AnsweredCount, &created)
	if err != nil {
		return err
	}
	p.CreatedAt = fromMillis(created)
	return nil
}

func (r *SQLiteParticipantRepository) GetByCode(ctx context.Context, sc model.SurveyContext, userCode string) (*model.Participant, error) {
	p := &model.Participant{}
	var created int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id, survey_type, user_code, user_name, school, grade, gender, region, b_grade_subjects_count,
		        desired_high_school, student_phone, parent_phone, answered_count, created_at
		 FROM participants WHERE survey_type = ? AND user_code = ?`,
		sc.SurveyType, userCode,
	).Scan(&p.ID, &p.SurveyType, &p.UserCode, &p.UserName, &p.School, &p.Grade, &p.Gender, &p.Region,
		&p.BGradeSubjectsCount, &p.DesiredHighSchool, &p.StudentPhone, &p.ParentPhone, &p.AnsweredCount, &created)
	if err != nil {
		return nil, mapNoRows(err)
	}
	p.CreatedAt = fromMillis(created)
	return p, nil
}

func (r *SQLiteParticipantRepository) SetAnsweredCount(ctx context.Context, sc model.SurveyContext, userCode string, count int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE participants SET answered_count = ? WHERE survey_type = ? AND user_code = ?`,
		count, sc.SurveyType, userCode,
	)
	return err
}
