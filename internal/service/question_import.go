package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stemsi/aptitest-backend/internal/model"
	"github.com/stemsi/aptitest-backend/internal/phase"
)

// QuestionWriter stores question content.
type QuestionWriter interface {
	Upsert(ctx context.Context, q *model.Question) error
}

// questionBankFile is the YAML layout of one question bank:
//
//	survey_type: v1
//	phase: B
//	questions:
//	  - problem_number: 1
//	    question_text: ...
//	    options: {A: ..., B: ..., C: ..., D: ...}
//	    correct_answer: C
type questionBankFile struct {
	SurveyType string              `yaml:"survey_type"`
	Phase      string              `yaml:"phase"`
	Questions  []questionBankEntry `yaml:"questions"`
}

type questionBankEntry struct {
	model.Question `yaml:",inline"`
	Options        interface{} `yaml:"options"`
}

// ImportQuestions reads a YAML question bank from r and upserts every
// question. The whole file is validated before anything is written.
func ImportQuestions(ctx context.Context, store QuestionWriter, r io.Reader, surveyTypes []string) (int, error) {
	var file questionBankFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return 0, fmt.Errorf("%w: parse question bank: %w", model.ErrValidation, err)
	}

	known := false
	for _, st := range surveyTypes {
		if st == file.SurveyType {
			known = true
		}
	}
	if !known {
		return 0, fmt.Errorf("%w: unknown survey_type %q", model.ErrValidation, file.SurveyType)
	}
	p, err := phase.Parse(file.Phase)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", model.ErrValidation, err)
	}
	shape := phase.MustShape(p)

	questions := make([]model.Question, 0, len(file.Questions))
	seen := make(map[int]bool, len(file.Questions))
	for _, e := range file.Questions {
		q := e.Question
		n := q.ProblemNumber
		if n < 1 || n > shape.QuestionCount {
			return 0, fmt.Errorf("%w: type %s has no question %d", model.ErrValidation, p, n)
		}
		if seen[n] {
			return 0, fmt.Errorf("%w: type %s question %d appears twice", model.ErrValidation, p, n)
		}
		seen[n] = true

		q.CorrectAnswer = strings.ToUpper(strings.TrimSpace(q.CorrectAnswer))
		if q.CorrectAnswer != "" && !shape.ValidValue(q.CorrectAnswer) {
			return 0, fmt.Errorf("%w: type %s question %d has invalid correct_answer %q", model.ErrValidation, p, n, q.CorrectAnswer)
		}
		if e.Options != nil {
			raw, err := json.Marshal(e.Options)
			if err != nil {
				return 0, fmt.Errorf("%w: type %s question %d options: %w", model.ErrValidation, p, n, err)
			}
			q.Options = raw
		}
		q.SurveyType = file.SurveyType
		q.Phase = p
		questions = append(questions, q)
	}

	for i := range questions {
		if err := store.Upsert(ctx, &questions[i]); err != nil {
			return i, fmt.Errorf("%w: store question %d: %w", model.ErrPersistence, questions[i].ProblemNumber, err)
		}
	}
	return len(questions), nil
}
