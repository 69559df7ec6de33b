package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stemsi/aptitest-backend/internal/model"
	"github.com/stemsi/aptitest-backend/internal/phase"
)

// SQLiteQuestionRepository is the SQLite twin of QuestionRepository.
type SQLiteQuestionRepository struct {
	db *sql.DB
}

// NewSQLiteQuestionRepository creates a new SQLiteQuestionRepository.
func NewSQLiteQuestionRepository(db *sql.DB) *SQLiteQuestionRepository {
	return &SQLiteQuestionRepository{db: db}
}

func (r *SQLiteQuestionRepository) ListByNumbers(ctx context.Context, sc model.SurveyContext, p phase.Phase, numbers []int) ([]model.Question, error) {
	if len(numbers) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(numbers)), ",")
	args := []any{sc.SurveyType, string(p)}
	for _, n := range numbers {
		args = append(args, n)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT problem_number, category_main, category_sub, question_text, passage, options,
		        correct_answer, common_passage, image_path, common_images
		 FROM questions
		 WHERE survey_type = ? AND phase = ? AND problem_number IN (`+placeholders+`)
		 ORDER BY problem_number`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		q := model.Question{SurveyType: sc.SurveyType, Phase: p}
		var (
			options sql.NullString
			images  string
		)
		if err := rows.Scan(&q.ProblemNumber, &q.CategoryMain, &q.CategorySub, &q.QuestionText, &q.Passage,
			&options, &q.CorrectAnswer, &q.CommonPassage, &q.ImagePath, &images); err != nil {
			return nil, err
		}
		if options.Valid && options.String != "" {
			q.Options = json.RawMessage(options.String)
		}
		if err := decodeImages([]byte(images), &q); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (r *SQLiteQuestionRepository) Upsert(ctx context.Context, q *model.Question) error {
	images, err := json.Marshal(nonNilImages(q.CommonImages))
	if err != nil {
		return fmt.Errorf("encode common images: %w", err)
	}
	var options sql.NullString
	if len(q.Options) > 0 {
		options = sql.NullString{String: string(q.Options), Valid: true}
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO questions (survey_type, phase, problem_number, category_main, category_sub, question_text,
		                        passage, options, correct_answer, common_passage, image_path, common_images)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (survey_type, phase, problem_number) DO UPDATE
		 SET category_main = excluded.category_main,
		     category_sub = excluded.category_sub,
		     question_text = excluded.question_text,
		     passage = excluded.passage,
		     options = excluded.options,
		     correct_answer = excluded.correct_answer,
		     common_passage = excluded.common_passage,
		     image_path = excluded.image_path,
		     common_images = excluded.common_images`,
		q.SurveyType, string(q.Phase), q.ProblemNumber, q.CategoryMain, q.CategorySub, q.QuestionText,
		q.Passage, options, q.CorrectAnswer, q.CommonPassage, q.ImagePath, string(images),
	)
	return err
}
