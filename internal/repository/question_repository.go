package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/aptitest-backend/internal/model"
	"github.com/stemsi/aptitest-backend/internal/phase"
)

// QuestionRepository handles question content data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByNumbers retrieves the given questions of one phase, ordered by
// problem number. Missing numbers are simply absent from the result.
func (r *QuestionRepository) ListByNumbers(ctx context.Context, sc model.SurveyContext, p phase.Phase, numbers []int) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT problem_number, category_main, category_sub, question_text, passage, options,
		        correct_answer, common_passage, image_path, common_images
		 FROM questions
		 WHERE survey_type = $1 AND phase = $2 AND problem_number = ANY($3)
		 ORDER BY problem_number`,
		sc.SurveyType, string(p), numbers,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		q := model.Question{SurveyType: sc.SurveyType, Phase: p}
		var images []byte
		if err := rows.Scan(&q.ProblemNumber, &q.CategoryMain, &q.CategorySub, &q.QuestionText, &q.Passage,
			&q.Options, &q.CorrectAnswer, &q.CommonPassage, &q.ImagePath, &images); err != nil {
			return nil, err
		}
		if err := decodeImages(images, &q); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// Upsert inserts or replaces one question.
func (r *QuestionRepository) Upsert(ctx context.Context, q *model.Question) error {
	images, err := json.Marshal(nonNilImages(q.CommonImages))
	if err != nil {
		return fmt.Errorf("encode common images: %w", err)
	}
	var options []byte
	if len(q.Options) > 0 {
		options = q.Options
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO questions (survey_type, phase, problem_number, category_main, category_sub, question_text,
		                        passage, options, correct_answer, common_passage, image_path, common_images)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (survey_type, phase, problem_number) DO UPDATE
		 SET category_main = EXCLUDED.category_main,
		     category_sub = EXCLUDED.category_sub,
		     question_text = EXCLUDED.question_text,
		     passage = EXCLUDED.passage,
		     options = EXCLUDED.options,
		     correct_answer = EXCLUDED.correct_answer,
		     common_passage = EXCLUDED.common_passage,
		     image_path = EXCLUDED.image_path,
		     common_images = EXCLUDED.common_images`,
		q.SurveyType, string(q.Phase), q.ProblemNumber, q.CategoryMain, q.CategorySub, q.QuestionText,
		q.Passage, options, q.CorrectAnswer, q.CommonPassage, q.ImagePath, images,
	)
	return err
}

func decodeImages(raw []byte, q *model.Question) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &q.CommonImages); err != nil {
		return fmt.Errorf("decode common images of question %d: %w", q.ProblemNumber, err)
	}
	return nil
}

func nonNilImages(images []string) []string {
	if images == nil {
		return []string{}
	}
	return images
}
