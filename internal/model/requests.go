package model

import "encoding/json"

// SubmitAnswerRequest is the payload for one answer submission. A null
// question_number marks a block-wide submission whose answer is an object
// keyed by question number.
type SubmitAnswerRequest struct {
	Phase          string          `json:"phase" binding:"required,oneof=A B C a b c"`
	QuestionNumber *int            `json:"question_number" binding:"omitempty,min=1,max=240"`
	Answer         json.RawMessage `json:"answer" binding:"required"`
}

// SubmitAnswerResponse reports what the submission did.
type SubmitAnswerResponse struct {
	Result  string      `json:"result"`
	Session SessionView `json:"session"`
}

// AdminJumpRequest is the payload for the admin phase shortcut.
type AdminJumpRequest struct {
	UserCode    string `json:"user_code" binding:"required,min=4,max=50"`
	TargetPhase string `json:"target_phase" binding:"required"`
}

// AdminJumpResponse reports the ledger state after a jump.
type AdminJumpResponse struct {
	TargetPhase   string      `json:"target_phase"`
	TotalAnswered int         `json:"total_answered"`
	Session       SessionView `json:"session"`
}
