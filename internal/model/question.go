package model

import (
	"encoding/json"

	"github.com/stemsi/aptitest-backend/internal/phase"
)

// Question is one stored question, including its answer key.
type Question struct {
	SurveyType    string          `json:"survey_type" yaml:"-"`
	Phase         phase.Phase     `json:"phase" yaml:"-"`
	ProblemNumber int             `json:"problem_number" yaml:"problem_number"`
	CategoryMain  string          `json:"category_main,omitempty" yaml:"category_main"`
	CategorySub   string          `json:"category_sub,omitempty" yaml:"category_sub"`
	QuestionText  string          `json:"question_text,omitempty" yaml:"question_text"`
	Passage       string          `json:"passage,omitempty" yaml:"passage"`
	Options       json.RawMessage `json:"options,omitempty" yaml:"-"`
	CorrectAnswer string          `json:"correct_answer" yaml:"correct_answer"`
	CommonPassage string          `json:"common_passage,omitempty" yaml:"common_passage"`
	ImagePath     string          `json:"image_path,omitempty" yaml:"image_path"`
	CommonImages  []string        `json:"common_images,omitempty" yaml:"common_images"`
}

// QuestionView is a question as served to the test-taker. It never carries
// the answer key.
type QuestionView struct {
	QuestionNumber int             `json:"question_number"`
	CategoryMain   string          `json:"category_main,omitempty"`
	CategorySub    string          `json:"category_sub,omitempty"`
	QuestionText   string          `json:"question_text,omitempty"`
	Passage        string          `json:"passage,omitempty"`
	Options        json.RawMessage `json:"options,omitempty"`
	ImageURL       string          `json:"image_url,omitempty"`
}

// SharedContext is the material shared by every member of a block.
type SharedContext struct {
	Passage string   `json:"passage,omitempty"`
	Images  []string `json:"images,omitempty"`
}

// UnitPayload is the response for one navigable unit.
type UnitPayload struct {
	Phase            phase.Phase    `json:"phase"`
	Unit             int            `json:"unit"`
	IsBlock          bool           `json:"is_block"`
	Members          []QuestionView `json:"members"`
	SharedContext    *SharedContext `json:"shared_context,omitempty"`
	TimeLimitSeconds int            `json:"time_limit_seconds"`
}
